package domain

import "time"

// UpdateKind distinguishes the entries a consumer queue can carry.
type UpdateKind uint8

const (
	// UpdateData carries a topic payload.
	UpdateData UpdateKind = iota
	// UpdateGap marks events dropped by queue overflow. The stream is
	// latest-state-wins, not a lossless log.
	UpdateGap
	// UpdateHeartbeat is a periodic keep-alive so consumers can tell a
	// dead publish path from "nothing changed".
	UpdateHeartbeat
)

func (k UpdateKind) String() string {
	switch k {
	case UpdateData:
		return "data"
	case UpdateGap:
		return "gap"
	case UpdateHeartbeat:
		return "heartbeat"
	default:
		return "unknown"
	}
}

// Update is one entry in a consumer queue. Exactly one payload pointer
// is set for UpdateData, matching Topic; Dropped is set for UpdateGap.
type Update struct {
	Kind  UpdateKind
	Topic Topic
	Key   string

	Ticker *Ticker
	Book   *OrderBook
	User   *UserState

	Dropped int
	Ts      time.Time
}
