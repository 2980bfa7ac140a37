package gateway

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/mbeoliero/kit/log"

	"github.com/mbeoliero/parley/pkg/constant"
	"github.com/mbeoliero/parley/pkg/errcode"
)

// Client represents a connected WebSocket client
type Client struct {
	mu        sync.Mutex
	conn      ClientConn
	UserId    string
	ConnId    string
	server    *WsServer
	closed    atomic.Bool
	closedErr error
	ctx       context.Context
	cancel    context.CancelFunc

	// rooms this connection is joined to, guarded by roomMu
	roomMu   sync.Mutex
	rooms    map[string]struct{}
	detached bool
}

// NewClient creates a new client
func NewClient(conn ClientConn, userId, connId string, server *WsServer) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		conn:   conn,
		UserId: userId,
		ConnId: connId,
		server: server,
		ctx:    ctx,
		cancel: cancel,
		rooms:  make(map[string]struct{}),
	}
}

// readLoop continuously reads messages from the connection.
// It always ends with the server releasing everything the connection held.
func (c *Client) readLoop() {
	defer func() {
		if r := recover(); r != nil {
			c.closedErr = ErrReadLoopPanic
			log.CtxError(c.ctx, "client read loop panic: user_id=%s, error=%v", c.UserId, r)
		}
		c.close()
	}()

	for {
		message, err := c.conn.ReadMessage()
		if err != nil {
			log.CtxDebug(c.ctx, "read message error: user_id=%s, conn_id=%s, error=%v", c.UserId, c.ConnId, err)
			c.closedErr = err
			return
		}

		if c.closed.Load() {
			c.closedErr = ErrConnClosed
			return
		}

		if err := c.handleMessage(message); err != nil {
			log.CtxWarn(c.ctx, "handle message error: user_id=%s, error=%v", c.UserId, err)
			c.closedErr = err
			return
		}
	}
}

// handleMessage handles a single incoming frame. Only write failures end the connection.
func (c *Client) handleMessage(message []byte) error {
	var req WSRequest
	if err := Decode(message, &req); err != nil || req.Event == "" {
		return c.reply(&req, errcode.ErrInvalidProtocol, nil)
	}

	log.CtxDebug(c.ctx, "received event: event=%s, user_id=%s, conn_id=%s", req.Event, c.UserId, c.ConnId)

	handler, ok := c.server.handlers[req.Event]
	if !ok {
		return c.reply(&req, errcode.ErrInvalidProtocol, nil)
	}

	// In-flight operations still persist if the connection drops meanwhile
	data, err := handler(context.WithoutCancel(c.ctx), c, req.Data)
	return c.reply(&req, err, data)
}

// reply sends a response to the client
func (c *Client) reply(req *WSRequest, err error, data any) error {
	resp := WSResponse{
		Event: req.Event,
		ReqId: req.ReqId,
		Data:  data,
	}

	if err != nil {
		e := errcode.From(err)
		if e == nil {
			log.CtxError(c.ctx, "unexpected event error: event=%s, user_id=%s, error=%v", req.Event, c.UserId, err)
			e = errcode.ErrInternalServer
		}
		resp.ErrCode = e.Code
		resp.ErrMsg = e.Msg
		resp.Data = nil
	}

	payload, encErr := Encode(&resp)
	if encErr != nil {
		return encErr
	}
	return c.write(payload)
}

// write writes a frame to the connection
func (c *Client) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return nil
	}

	return c.conn.WriteMessage(data)
}

// Push delivers a pre-encoded push frame
func (c *Client) Push(data []byte) error {
	if c.closed.Load() {
		return ErrConnClosed
	}
	return c.write(data)
}

// Kick sends a kicked notice and closes the connection
func (c *Client) Kick() error {
	if data, err := EncodePush(constant.EventKicked, nil); err == nil {
		c.write(data)
	}
	return c.Close()
}

// Close closes the client connection
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return nil
	}

	c.closed.Store(true)
	c.cancel()
	return c.conn.Close()
}

// close handles cleanup when connection is closed
func (c *Client) close() {
	c.Close()
	c.server.Disconnect(c)
}

// IsClosed returns whether the client is closed
func (c *Client) IsClosed() bool {
	return c.closed.Load()
}

// InRoom reports whether the connection is joined to roomId
func (c *Client) InRoom(roomId string) bool {
	c.roomMu.Lock()
	defer c.roomMu.Unlock()
	_, ok := c.rooms[roomId]
	return ok
}

// Rooms returns a snapshot of the joined rooms
func (c *Client) Rooms() []string {
	c.roomMu.Lock()
	defer c.roomMu.Unlock()
	rooms := make([]string, 0, len(c.rooms))
	for roomId := range c.rooms {
		rooms = append(rooms, roomId)
	}
	return rooms
}

func (c *Client) removeRoom(roomId string) {
	c.roomMu.Lock()
	delete(c.rooms, roomId)
	c.roomMu.Unlock()
}

// detach stops further joins and hands back the rooms still held
func (c *Client) detach() []string {
	c.roomMu.Lock()
	defer c.roomMu.Unlock()
	c.detached = true
	rooms := make([]string, 0, len(c.rooms))
	for roomId := range c.rooms {
		rooms = append(rooms, roomId)
	}
	c.rooms = make(map[string]struct{})
	return rooms
}
