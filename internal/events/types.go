package events

// Event enumerates topics published inside the trader.
type Event string

const (
	// EventCycle carries an engine.CycleOutcome after every poll.
	EventCycle Event = "cycle"
	// EventRunState carries the new engine.RunState after start/stop.
	EventRunState Event = "run_state"

	EventOrderSubmitted Event = "order.submitted"
	EventOrderAccepted  Event = "order.accepted"
	EventOrderRejected  Event = "order.rejected"

	// EventAlert carries an operator-facing string.
	EventAlert Event = "alert"
)
