package gateway

import "errors"

// Connection-level errors. Frame and auth failures are reported with errcode values instead.
var (
	ErrConnClosed       = errors.New("connection closed")
	ErrWriteChannelFull = errors.New("write channel full")
	ErrReadLoopPanic    = errors.New("read loop panicked")
)
