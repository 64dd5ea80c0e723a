// Package engine owns the trading decision loop: thresholds derived once from
// history, a start/stop flag, and the poll → decide → execute cycle.
//
// The control plane talks to it only through Service.
package engine

// Service is the surface exposed to the control plane. Start and Stop are
// idempotent and never block on an in-progress cycle.
type Service interface {
	Start()
	Stop()
	Status() RunState
	Snapshot() Snapshot
}

var _ Service = (*Controller)(nil)
