// Package session implements the per-session game progression:
//
//	pending --(both joins)--> active --(termination rule)--> completed
//	                            |
//	                            +------(abandon event)-----> abandoned
//
// The machine is a pure fold over accepted events. Applying the full accepted
// log of a session to its header always reproduces the same state, which is
// what local-cache rebuilds rely on.
//
// Events that cannot be applied are reported with a typed error and leave the
// game state untouched; only LastSeq advances past them so they are never
// offered again.
package session
