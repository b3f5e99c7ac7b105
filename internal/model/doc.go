// Package model defines the shared vocabulary of the synchronization engine:
// player identities, game sessions, move events, round outcomes and
// statistics snapshots.
//
// Move payloads are opaque to the engine. They are represented as a small,
// closed value tree (Object, Array, String, Int, Bool) with a canonical JSON
// encoding so that two payloads are equal exactly when their encodings are
// byte-identical. Floats and null are not representable.
//
// Digests over canonical encodings are used to validate cached records and to
// compare the derived state computed by different devices.
package model
