package model

import (
	"bytes"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Digest domains. The version suffix leaves room for a future encoding change.
const (
	DomainSession    = "skirmish/session/v1"
	DomainEvent      = "skirmish/event/v1"
	DomainStatistics = "skirmish/statistics/v1"
)

// hashWithDomain computes SHA256(domain || 0x00 || data).
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Encode serializes a record deterministically: struct fields in declaration
// order, map keys sorted, payloads canonical, no HTML escaping.
func Encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// Digest hashes the deterministic encoding of v under a domain.
func Digest(domain string, v any) (string, error) {
	data, err := Encode(v)
	if err != nil {
		return "", fmt.Errorf("digest %s: %w", domain, err)
	}
	return hashWithDomain(domain, data), nil
}

// DigestBytes hashes an already encoded record under a domain.
func DigestBytes(domain string, data []byte) string {
	return hashWithDomain(domain, data)
}

// SessionDigest identifies a derived session state. Devices that folded the
// same accepted log produce the same digest.
func SessionDigest(s GameSession) (string, error) {
	return Digest(DomainSession, s)
}

// MustSessionDigest is like SessionDigest but panics on error.
// Use only in tests or when the session is known to be encodable.
func MustSessionDigest(s GameSession) string {
	d, err := SessionDigest(s)
	if err != nil {
		panic(err)
	}
	return d
}

// NewEventID returns a time-sortable UUIDv7 for a new event.
func NewEventID() string {
	return uuid.Must(uuid.NewV7()).String()
}

const roomAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// RoomCodeLength is the length of generated session ids.
const RoomCodeLength = 6

// NewRoomCode returns a random six-character room code usable as a SessionID.
func NewRoomCode() SessionID {
	b := make([]byte, RoomCodeLength)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("room code: %v", err))
	}
	for i := range b {
		b[i] = roomAlphabet[int(b[i])%len(roomAlphabet)]
	}
	return SessionID(b)
}

// ValidRoomCode reports whether id has the room-code shape.
func ValidRoomCode(id SessionID) bool {
	if len(id) != RoomCodeLength {
		return false
	}
	for i := 0; i < len(id); i++ {
		if !bytes.ContainsRune([]byte(roomAlphabet), rune(id[i])) {
			return false
		}
	}
	return true
}
