package sync

import "time"

// State is the server state reported to subscribers.
type State struct {
	DataDate      string    `json:"data_date"`
	LoadedAt      time.Time `json:"loaded_at"`
	Records       int       `json:"records"`
	ActivePresets []string  `json:"active_presets"`
	WSClients     int       `json:"ws_clients"`
}

// Event is one message on the stream. Snapshot, heartbeat and reload events
// share this shape.
type Event struct {
	BroadcasterID string `json:"broadcaster_id"`
	Timestamp     int64  `json:"timestamp"`
	Sequence      uint64 `json:"sequence"`
	State         State  `json:"state"`
}
