package gateway

import "time"

// WebSocket message types
const (
	MessageText   = 1
	MessageBinary = 2
)

// Timeout constants used when the configuration leaves them unset
const (
	// WriteWait is time allowed to write a message to the peer
	WriteWait = 10 * time.Second

	// PongWait is time allowed to read the next pong message from the peer
	PongWait = 30 * time.Second

	// PingPeriod is period between pings. Must be less than PongWait
	PingPeriod = (PongWait * 9) / 10

	// MaxMessageSize is maximum message size allowed from peer
	MaxMessageSize = 51200

	// WriteChannelSize is the per-connection outbound buffer
	WriteChannelSize = 256

	// presenceWriteTimeout bounds the best-effort durable presence write
	presenceWriteTimeout = 2 * time.Second
)

// Query parameter keys
const (
	QueryToken  = "token"
	QuerySendId = "send_id"
)

// broadcastKey shards broadcasts that have no room or identity of their own
const broadcastKey = "*"
