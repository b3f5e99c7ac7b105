// Package harness runs scripted game sessions against the session channel
// and checks that every device converges on the same state.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: round_one_duplicate
//	description: "A resubmitted move is refused"
//	session: ROOM01
//	players:
//	  - { id: A, name: Ana }
//	  - { id: B, name: Beto }
//	rules: { kind: clash, threshold: 3, max_rounds: 30 }
//	steps:
//	  - { author: A, kind: join }
//	  - { author: B, kind: join }
//	  - { author: A, kind: move, payload: { hand: rock } }
//	  - { author: A, kind: move, round: 1, payload: { hand: paper }, expect: DUPLICATE_MOVE }
//	deliveries:
//	  - [3, 1, 2]
//	assertions:
//	  - type: final_state
//	    expect: { status: active, round: 1, score.A: 0 }
//	  - type: trace_count
//	    reason: DUPLICATE_MOVE
//	    count: 1
//
// Instead of inline rules a scenario may name a CUE rule file with
// rules_file, resolved relative to the scenario.
//
// Each step is appended to an in-process Hub. A step without a round targets
// the session's current round. expect is either "accepted" or a rejection
// reason; a step without expect is only traced.
//
// Every delivery order is a simulated device: the accepted log is delivered
// to it in that order (sequence numbers, duplicates allowed) and folded
// through the resolver. A device that is missing sequence numbers receives
// them afterwards in order. All devices, and the hub itself, must end with
// the same session digest.
//
// # Assertion Types
//
//   - trace_contains: some step matches author, kind and reason
//   - trace_count: exactly count steps match author, kind and reason
//   - final_state: fields of the converged session
//
// # Deterministic Testing
//
// Event ids and author clocks come from testutil generators and the session
// header has a fixed creation time, so a scenario always produces the same
// trace. Traces are compared against golden files in testdata/golden.
package harness
