// Package auth issues the opaque, stable player identity the engine keys
// sessions and statistics by.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"

	"github.com/roach88/skirmish/internal/model"
	"github.com/roach88/skirmish/internal/store"
)

// ErrAuthFailed is fatal for the caller: no identity, no game state effects.
var ErrAuthFailed = errors.New("authentication failed")

// Authenticator yields the local player's identity.
type Authenticator interface {
	Authenticate(ctx context.Context) (model.PlayerIdentity, error)
}

// MaxNameLength bounds display names, in runes.
const MaxNameLength = 24

// DefaultName is used when no display name is configured.
const DefaultName = "Neighbor"

// NormalizeName trims a display name, converts it to NFC and truncates it to
// MaxNameLength runes. An empty result becomes DefaultName.
func NormalizeName(name string) string {
	name = norm.NFC.String(strings.TrimSpace(name))
	if utf8.RuneCountInString(name) > MaxNameLength {
		name = string([]rune(name)[:MaxNameLength])
		name = strings.TrimSpace(name)
	}
	if name == "" {
		return DefaultName
	}
	return name
}

// Static returns a fixed, configured identity.
type Static struct {
	identity model.PlayerIdentity
}

// NewStatic creates a Static authenticator.
func NewStatic(id model.PlayerID, name string) *Static {
	return &Static{identity: model.PlayerIdentity{ID: id, DisplayName: NormalizeName(name)}}
}

// Authenticate returns the configured identity, or ErrAuthFailed if no
// player id was configured.
func (s *Static) Authenticate(ctx context.Context) (model.PlayerIdentity, error) {
	if err := ctx.Err(); err != nil {
		return model.PlayerIdentity{}, err
	}
	if strings.TrimSpace(string(s.identity.ID)) == "" {
		return model.PlayerIdentity{}, fmt.Errorf("%w: no player id configured", ErrAuthFailed)
	}
	return s.identity, nil
}

// IdentityStore persists the device identity.
type IdentityStore interface {
	LoadIdentity(ctx context.Context) (model.PlayerIdentity, error)
	SaveIdentity(ctx context.Context, id model.PlayerIdentity) error
}

// Device signs in anonymously: the first call generates a UUIDv7 player id
// and persists it, later calls return the same id. A configured display
// name replaces the stored one.
type Device struct {
	store IdentityStore
	name  string
	newID func() (uuid.UUID, error)
}

// NewDevice creates a Device authenticator. An empty name keeps the stored
// display name.
func NewDevice(s IdentityStore, name string) *Device {
	return &Device{store: s, name: name, newID: uuid.NewV7}
}

// Authenticate loads or issues the device identity.
func (d *Device) Authenticate(ctx context.Context) (model.PlayerIdentity, error) {
	id, err := d.store.LoadIdentity(ctx)
	switch {
	case errors.Is(err, store.ErrNotFound):
		u, err := d.newID()
		if err != nil {
			return model.PlayerIdentity{}, fmt.Errorf("%w: generate id: %v", ErrAuthFailed, err)
		}
		id = model.PlayerIdentity{ID: model.PlayerID(u.String()), DisplayName: NormalizeName(d.name)}
		if err := d.store.SaveIdentity(ctx, id); err != nil {
			return model.PlayerIdentity{}, fmt.Errorf("%w: %v", ErrAuthFailed, err)
		}
		return id, nil

	case err != nil:
		return model.PlayerIdentity{}, fmt.Errorf("%w: %v", ErrAuthFailed, err)
	}

	if d.name != "" {
		if name := NormalizeName(d.name); name != id.DisplayName {
			id.DisplayName = name
			if err := d.store.SaveIdentity(ctx, id); err != nil {
				return model.PlayerIdentity{}, fmt.Errorf("%w: %v", ErrAuthFailed, err)
			}
		}
	}
	return id, nil
}
