package harness

import "github.com/roach88/skirmish/internal/model"

// TraceEvent is one scenario step and the channel's answer to it.
type TraceEvent struct {
	Step    int
	Author  model.PlayerID
	Kind    model.EventKind
	Round   int
	Payload model.Object

	// Seq is the assigned sequence number, zero when rejected.
	Seq int64
	// Reason is the rejection reason, empty when accepted.
	Reason string
}

// Outcome returns "accepted" or the rejection reason.
func (e TraceEvent) Outcome() string {
	if e.Reason == "" {
		return Accepted
	}
	return e.Reason
}

// Device is the result of one simulated delivery order.
type Device struct {
	Order  []int64
	Digest string
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every expectation and assertion held.
	Pass bool

	// Trace lists every step in submission order.
	Trace []TraceEvent

	// Final is the session every device converged on.
	Final model.GameSession

	// Devices lists the simulated devices in delivery order.
	Devices []Device

	// Errors contains validation error messages. Empty if Pass is true.
	Errors []string
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
