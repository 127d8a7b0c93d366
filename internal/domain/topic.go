package domain

// Topic classifies the streamed data kinds the feed carries.
type Topic string

const (
	TopicPrice     Topic = "price"
	TopicOrderBook Topic = "order_book"
	TopicUserState Topic = "user_state"
)

// Subscription identifies one streamed key within a topic: a symbol for
// market topics, an account address for user state.
type Subscription struct {
	Topic Topic
	Key   string
}

// ConnState is the lifecycle state of the exchange connection.
// Transitions only move forward through
// disconnected -> connecting -> connected -> degraded -> connecting -> ...
// A reconnect always passes through connecting again.
type ConnState int32

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
	StateDegraded
)

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDegraded:
		return "degraded"
	default:
		return "unknown"
	}
}

// ValueSource records which path produced a cached value.
type ValueSource int

const (
	SourceStream ValueSource = iota
	SourceFallback
)

func (s ValueSource) String() string {
	if s == SourceFallback {
		return "fallback"
	}
	return "stream"
}
