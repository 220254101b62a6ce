// Package opmon implements operational monitoring: per-module counters with
// atomic read-and-clear semantics, a periodic collection loop, and pluggable
// snapshot publishers.
package opmon

import "time"

// Snapshot is one operational-monitoring record for a single module.
type Snapshot struct {
	Module              string    `json:"module"`
	Session             string    `json:"session"`
	CollectedAt         time.Time `json:"collected_at"`
	TotalAmount         int64     `json:"total_amount"`
	AmountSinceLastCall int64     `json:"amount_since_last_call"`
}

// Collectable is implemented by modules that expose operational counters.
// CollectOpmon must fill TotalAmount from a plain load of the cumulative
// counter and AmountSinceLastCall from an atomic swap-to-zero of the window
// counter; Session and CollectedAt are stamped by the collector.
type Collectable interface {
	Name() string
	CollectOpmon() Snapshot
}

// SnapshotOf builds a snapshot from a counter pair. The window counter is
// reset as a side effect; the total is unchanged.
func SnapshotOf(module string, c *Counter) Snapshot {
	return Snapshot{
		Module:              module,
		TotalAmount:         c.Total(),
		AmountSinceLastCall: c.SnapshotWindow(),
	}
}
