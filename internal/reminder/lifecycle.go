package reminder

import (
	"context"

	"github.com/qmuntal/stateless"
)

type State stateless.State

var (
	StateScheduled   State = "Scheduled"
	StateDue         State = "Due"
	StateFired       State = "Fired"
	StateDeactivated State = "Deactivated" // terminal, once reminders only
)

type Trigger stateless.Trigger

var (
	TriggerWindowOpened Trigger = "WindowOpened"
	TriggerClaimed      Trigger = "Claimed"
	TriggerLost         Trigger = "Lost" // another poller fired it, or the claim failed
	TriggerSettled      Trigger = "Settled"
)

// newLifecycle builds the per-pass state machine of one reminder. Settling a
// fired once reminder ends in StateDeactivated; repeating ones go back to
// StateScheduled.
func newLifecycle(r *Reminder) *stateless.StateMachine {
	once := func(_ context.Context, _ ...any) bool { return r.RepeatType == RepeatOnce }
	repeating := func(_ context.Context, _ ...any) bool { return r.RepeatType != RepeatOnce }

	fsm := stateless.NewStateMachine(StateScheduled)
	fsm.Configure(StateScheduled).
		Permit(TriggerWindowOpened, StateDue)
	fsm.Configure(StateDue).
		Permit(TriggerClaimed, StateFired).
		Permit(TriggerLost, StateScheduled)
	fsm.Configure(StateFired).
		Permit(TriggerSettled, StateScheduled, repeating).
		Permit(TriggerSettled, StateDeactivated, once)
	return fsm
}
