package engine

import (
	"fmt"
	"time"

	"band-trader/internal/order"
	"band-trader/internal/volatility"
)

// RunState gates whether cycles act on price signals.
type RunState int32

const (
	Stopped RunState = iota
	Running
)

func (s RunState) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Running:
		return "running"
	default:
		return fmt.Sprintf("RunState(%d)", int32(s))
	}
}

func (s RunState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// OutcomeKind classifies what a single cycle did.
type OutcomeKind string

const (
	OutcomeIdle            OutcomeKind = "idle"
	OutcomeNoSignal        OutcomeKind = "no_signal"
	OutcomeOrderPlaced     OutcomeKind = "order_placed"
	OutcomeOrderFailed     OutcomeKind = "order_failed"
	OutcomeFeedUnavailable OutcomeKind = "feed_unavailable"
)

// CycleOutcome is the result of one fetch → decide → execute pass.
// Provider failures end up in Err; they never escape a cycle.
type CycleOutcome struct {
	Kind   OutcomeKind    `json:"kind"`
	Price  float64        `json:"price,omitempty"`
	At     time.Time      `json:"at"`
	Order  *order.Request `json:"order,omitempty"`
	Result *order.Result  `json:"result,omitempty"`
	Err    error          `json:"-"`
	Error  string         `json:"error,omitempty"`
}

// Snapshot is the read-only view served to the control plane.
type Snapshot struct {
	State       RunState               `json:"state"`
	Initialized bool                   `json:"initialized"`
	Symbol      string                 `json:"symbol"`
	Interval    string                 `json:"interval"`
	K           float64                `json:"k"`
	Stats       *volatility.Stats      `json:"stats,omitempty"`
	Thresholds  *volatility.Thresholds `json:"thresholds,omitempty"`
	LastOutcome *CycleOutcome          `json:"last_outcome,omitempty"`
	InFlight    int32                  `json:"orders_in_flight"`
	ServerTime  time.Time              `json:"server_time"`
}
