// Package coordinator keeps the local player's sessions in step with the
// remote session channel.
//
// Player intents (create, join, move, abandon) become appends on the channel.
// Their effects are never applied optimistically: every accepted event,
// including the player's own, reaches local state through the session's
// subscription, the resolver and the state machine, and is committed to the
// local cache before a snapshot is published.
//
// Failures are classified (see Classify). Rejections are reported to the
// caller as *IntentError and leave state untouched. Transient failures are
// retried with exponential backoff while the session's snapshot shows a
// reconnecting notice. A corrupt cache record only resyncs its own session.
package coordinator
