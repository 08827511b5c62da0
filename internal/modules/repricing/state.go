package repricing

import "fmt"

// State of one item within a batch.
type State string

const (
	StatePending State = "pending"
	StatePriced  State = "priced"
	StateApplied State = "applied"
	StateSkipped State = "skipped"
	StateFailed  State = "failed"
)

// States lists every state in lifecycle order.
var States = []State{StatePending, StatePriced, StateApplied, StateSkipped, StateFailed}

// Skip reasons.
const (
	ReasonWithinTolerance = "within_tolerance"
	ReasonGuardrail       = "guardrail"
	ReasonDryRun          = "dry_run"
)

var transitions = map[State][]State{
	StatePending: {StatePriced, StateFailed},
	StatePriced:  {StateApplied, StateSkipped, StateFailed},
}

// Terminal reports whether no further transition is allowed from s.
func (s State) Terminal() bool {
	return len(transitions[s]) == 0
}

// ItemOutcome is the per-item result of a batch.
type ItemOutcome struct {
	ItemID     int64   `json:"item_id"`
	State      State   `json:"state"`
	OldPrice   float64 `json:"old_price,omitempty"`
	NewPrice   float64 `json:"new_price,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
	RuleID     int64   `json:"rule_id,omitempty"`
	Strategy   string  `json:"strategy,omitempty"`
	Reason     string  `json:"reason,omitempty"`
	Error      string  `json:"error,omitempty"`
}

func newOutcome(itemID int64) ItemOutcome {
	return ItemOutcome{ItemID: itemID, State: StatePending}
}

// transition moves the outcome to next, rejecting moves the lifecycle does not allow.
func (o *ItemOutcome) transition(next State) error {
	for _, allowed := range transitions[o.State] {
		if allowed == next {
			o.State = next
			return nil
		}
	}
	return fmt.Errorf("invalid repricing transition for item %d: %s -> %s", o.ItemID, o.State, next)
}

// fail records err and moves to failed. Failing a terminal outcome is a no-op.
func (o *ItemOutcome) fail(err error) {
	if o.transition(StateFailed) == nil {
		o.Error = err.Error()
	}
}
