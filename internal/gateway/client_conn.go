package gateway

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mbeoliero/kit/log"

	"github.com/mbeoliero/parley/internal/config"
)

// ClientConn represents a WebSocket connection wrapper
type ClientConn interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close() error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
}

// ConnOptions holds per-connection limits and deadlines
type ConnOptions struct {
	MaxMessageSize   int64
	WriteWait        time.Duration
	PongWait         time.Duration
	PingPeriod       time.Duration
	WriteChannelSize int
}

// NewConnOptions builds ConnOptions from config, falling back to the package defaults
func NewConnOptions(cfg *config.WebSocketConfig) ConnOptions {
	opts := ConnOptions{
		MaxMessageSize:   MaxMessageSize,
		WriteWait:        WriteWait,
		PongWait:         PongWait,
		PingPeriod:       PingPeriod,
		WriteChannelSize: WriteChannelSize,
	}
	if cfg == nil {
		return opts
	}
	if cfg.MaxMessageSize > 0 {
		opts.MaxMessageSize = cfg.MaxMessageSize
	}
	if cfg.WriteWait > 0 {
		opts.WriteWait = cfg.WriteWait
	}
	if cfg.PongWait > 0 {
		opts.PongWait = cfg.PongWait
	}
	if cfg.PingPeriod > 0 && cfg.PingPeriod < opts.PongWait {
		opts.PingPeriod = cfg.PingPeriod
	} else {
		opts.PingPeriod = (opts.PongWait * 9) / 10
	}
	if cfg.WriteChannelSize > 0 {
		opts.WriteChannelSize = cfg.WriteChannelSize
	}
	return opts
}

// writeQueue is the buffered outbound side shared by both websocket implementations
type writeQueue struct {
	ch        chan []byte
	mu        sync.Mutex
	closed    bool
	closeOnce sync.Once
	done      chan struct{}
}

func newWriteQueue(size int) *writeQueue {
	return &writeQueue{
		ch:   make(chan []byte, size),
		done: make(chan struct{}),
	}
}

// push queues data without blocking; a full queue means a slow consumer
func (q *writeQueue) push(data []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrConnClosed
	}

	select {
	case q.ch <- data:
		return nil
	default:
		return ErrWriteChannelFull
	}
}

func (q *writeQueue) close() {
	q.closeOnce.Do(func() {
		q.mu.Lock()
		q.closed = true
		close(q.ch)
		q.mu.Unlock()

		close(q.done)
	})
}

// websocketClientConn implements ClientConn using gorilla/websocket
type websocketClientConn struct {
	*writeQueue
	conn *websocket.Conn
	opts ConnOptions
}

// NewWebSocketClientConn creates a new websocket client connection
func NewWebSocketClientConn(conn *websocket.Conn, opts ConnOptions) *websocketClientConn {
	c := &websocketClientConn{
		writeQueue: newWriteQueue(opts.WriteChannelSize),
		conn:       conn,
		opts:       opts,
	}

	conn.SetReadLimit(opts.MaxMessageSize)
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(opts.PongWait))
	})

	go c.writeLoop()

	return c
}

// writeLoop handles all writes to the connection (single writer pattern)
func (c *websocketClientConn) writeLoop() {
	ticker := time.NewTicker(c.opts.PingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.ch:
			c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Warn("write message error: %v", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Debug("ping error: %v", err)
				return
			}

		case <-c.done:
			return
		}
	}
}

// ReadMessage reads a message from the connection
func (c *websocketClientConn) ReadMessage() ([]byte, error) {
	c.conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	_, message, err := c.conn.ReadMessage()
	return message, err
}

// WriteMessage queues a message to be written
func (c *websocketClientConn) WriteMessage(data []byte) error {
	return c.push(data)
}

// Close closes the connection
func (c *websocketClientConn) Close() error {
	c.close()
	return nil
}

// SetReadDeadline sets the read deadline
func (c *websocketClientConn) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

// SetWriteDeadline sets the write deadline
func (c *websocketClientConn) SetWriteDeadline(t time.Time) error {
	return c.conn.SetWriteDeadline(t)
}
