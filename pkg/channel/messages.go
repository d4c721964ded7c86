package channel

const (
	StatusAlive   = "alive"
	StatusOffline = "offline"
)

// Announcement is what a client publishes on the register and alive topics.
// The broker publishes the offline variant as the client's last will.
type Announcement struct {
	ClientID   string `json:"client_id"             cbor:"client_id"`
	Status     string `json:"status,omitempty"      cbor:"status,omitempty"`
	NumSamples uint64 `json:"num_samples,omitempty" cbor:"num_samples,omitempty"`
}

// Ack answers a registration on the client's registry topic.
type Ack struct {
	ClientID string `json:"client_id"       cbor:"client_id"`
	Accepted bool   `json:"accepted"        cbor:"accepted"`
	Error    string `json:"error,omitempty" cbor:"error,omitempty"`
}

// Published is the notification broadcast after a round is committed.
type Published struct {
	Round     uint64             `json:"round"             cbor:"round"`
	Loss      *float64           `json:"loss,omitempty"    cbor:"loss,omitempty"`
	Metrics   map[string]float64 `json:"metrics,omitempty" cbor:"metrics,omitempty"`
	Timestamp int64              `json:"timestamp"         cbor:"timestamp"`
}
