// Package dashboard serves a single live status page over a websocket,
// using a ping-pong-monitored, congestion-aware websocket writer to push
// StatusUpdate snapshots of a running simulation.
package dashboard

// StatusUpdate is the idempotent, JSON-serialized payload pushed to the
// dashboard's websocket client on a fixed cadence. It carries the
// simulation's whole status at once, small enough that resending it in full
// is cheap and it needs no incremental diffing.
type StatusUpdate struct {
	Tick             int            `json:"tick"`
	SimulationID     string         `json:"simulation_id"`
	ActiveEntities   int            `json:"active_entities"`
	TotalEntities    int            `json:"total_entities"`
	LastSnapshotTick int            `json:"last_snapshot_tick"`
	EventCounts      map[string]int `json:"event_counts"`
	AverageReward    float64        `json:"average_reward"`
}
