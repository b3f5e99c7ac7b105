package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/skirmish/internal/channel"
	"github.com/roach88/skirmish/internal/model"
	"github.com/roach88/skirmish/internal/resolver"
	"github.com/roach88/skirmish/internal/session"
	"github.com/roach88/skirmish/internal/store"
	"github.com/roach88/skirmish/internal/testutil"
)

// Harness is the scenario execution engine. It drives one session on an
// in-process hub with deterministic event ids and clocks.
type Harness struct {
	hub    *channel.Hub
	store  *store.Store
	ids    *testutil.SequentialIDs
	clocks *testutil.AuthorClocks
	logger *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Each scenario runs against a fresh hub and a fresh in-memory cache.
//
// Execution flow:
// 1. Create the session header on the hub
// 2. Append each step and check its expectation
// 3. Deliver the accepted log to every simulated device
// 4. Check that devices and hub converged
// 5. Evaluate assertions against the trace and converged session
func Run(scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := &Harness{
		hub:    channel.NewHub(channel.WithHubLogger(logger)),
		store:  st,
		ids:    testutil.NewSequentialIDs("step"),
		clocks: testutil.NewAuthorClocks(),
		logger: logger,
	}
	defer h.hub.Close()

	ctx := context.Background()
	a, b := scenario.Players[0], scenario.Players[1]
	header := model.NewSession(
		scenario.SessionID(),
		model.PlayerIdentity{ID: model.PlayerID(a.ID), DisplayName: a.Name},
		model.PlayerIdentity{ID: model.PlayerID(b.ID), DisplayName: b.Name},
		scenario.RuleSet(),
		testutil.Epoch,
	)
	if err := h.hub.Create(ctx, header); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	result := NewResult()
	if err := h.executeSteps(ctx, header.ID, scenario.Steps, result); err != nil {
		return nil, fmt.Errorf("failed to execute steps: %w", err)
	}
	if err := h.deliver(ctx, header, scenario.Deliveries, result); err != nil {
		return nil, fmt.Errorf("failed to deliver events: %w", err)
	}

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

// executeSteps appends every step to the hub and records the answer.
func (h *Harness) executeSteps(ctx context.Context, id model.SessionID, steps []Step, result *Result) error {
	for i, step := range steps {
		current, err := h.hub.Session(ctx, id)
		if err != nil {
			return err
		}
		round := step.Round
		if round == 0 {
			round = current.Round
		}
		payload, err := stepPayload(step)
		if err != nil {
			return fmt.Errorf("step %d: %w", i+1, err)
		}

		author := model.PlayerID(step.Author)
		ev := model.MoveEvent{
			ID:        h.ids.Next(),
			SessionID: id,
			Author:    author,
			Kind:      model.EventKind(step.Kind),
			Round:     round,
			Payload:   payload,
			Clock:     h.clocks.Next(author),
		}

		te := TraceEvent{Step: i + 1, Author: author, Kind: ev.Kind, Round: round, Payload: payload}
		seq, err := h.hub.Append(ctx, ev)
		reason, rejected := channel.RejectionReason(err)
		switch {
		case err == nil:
			te.Seq = seq
		case rejected:
			te.Reason = string(reason)
		default:
			return fmt.Errorf("step %d: %w", i+1, err)
		}
		result.Trace = append(result.Trace, te)

		if step.Expect != "" && step.Expect != te.Outcome() {
			result.AddError(fmt.Sprintf("step %d (%s %s round %d): expected %s, got %s",
				te.Step, te.Author, te.Kind, te.Round, step.Expect, te.Outcome()))
		}

		h.logger.Debug("step executed", "step", te.Step, "author", author, "kind", ev.Kind, "outcome", te.Outcome())
	}
	return nil
}

func stepPayload(step Step) (model.Object, error) {
	if step.Payload == nil && step.Forfeit == "" {
		return nil, nil
	}
	obj := model.Object{}
	if step.Payload != nil {
		v, err := model.FromAny(step.Payload)
		if err != nil {
			return nil, fmt.Errorf("payload: %w", err)
		}
		obj = v.(model.Object)
	}
	if step.Forfeit != "" {
		obj[model.ForfeitKey] = model.String(step.Forfeit)
	}
	return obj, nil
}

// deliver feeds the accepted log to one simulated device per delivery order
// and checks that all of them, and the hub, hold the same session. The first
// device persists its result to the cache; the converged session is read
// back from there.
func (h *Harness) deliver(ctx context.Context, header model.GameSession, orders [][]int64, result *Result) error {
	log, err := h.hub.Log(header.ID)
	if err != nil {
		return err
	}
	if len(orders) == 0 {
		inOrder := make([]int64, len(log))
		for i, ev := range log {
			inOrder[i] = ev.Seq
		}
		orders = [][]int64{inOrder}
	}

	bySeq := make(map[int64]model.MoveEvent, len(log))
	for _, ev := range log {
		bySeq[ev.Seq] = ev
	}

	machine, err := session.ForSession(header)
	if err != nil {
		return err
	}
	authority, err := h.hub.Session(ctx, header.ID)
	if err != nil {
		return err
	}
	want, err := model.SessionDigest(authority)
	if err != nil {
		return err
	}

	for i, order := range orders {
		res := resolver.New(machine, resolver.WithLogger(h.logger))
		s := header
		var applied []model.MoveEvent
		feed := func(ev model.MoveEvent) {
			var r resolver.Result
			s, r = res.Feed(s, ev)
			applied = append(applied, r.Applied...)
		}

		for _, seq := range order {
			ev, ok := bySeq[seq]
			if !ok {
				return fmt.Errorf("deliveries[%d]: no accepted event with seq %d", i, seq)
			}
			feed(ev)
		}
		// Late arrivals: whatever the order left out.
		for _, ev := range log {
			if ev.Seq > s.LastSeq {
				feed(ev)
			}
		}

		digest, err := model.SessionDigest(s)
		if err != nil {
			return err
		}
		result.Devices = append(result.Devices, Device{Order: order, Digest: digest})
		if digest != want {
			result.AddError(fmt.Sprintf("device %d (order %v) diverged from the channel", i+1, order))
		}

		if i == 0 {
			if err := h.store.PutSession(ctx, header); err != nil {
				return err
			}
			if err := h.store.Commit(ctx, s, applied); err != nil {
				return err
			}
		}
	}

	final, err := h.store.GetSession(ctx, header.ID)
	if err != nil {
		return err
	}
	result.Final = final
	return nil
}

// Converged reports whether every device matched the first one.
func (r *Result) Converged() bool {
	for _, d := range r.Devices {
		if d.Digest != r.Devices[0].Digest {
			return false
		}
	}
	return len(r.Devices) > 0
}
