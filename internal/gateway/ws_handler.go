package gateway

import (
	"context"
	"errors"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/hertz-contrib/websocket"
	"github.com/mbeoliero/kit/log"

	"github.com/mbeoliero/parley/pkg/errcode"
)

// HandleHertzConnection handles a WebSocket connection from Hertz using hertz-contrib/websocket.
// The handshake is rejected before upgrade unless the token was issued to send_id.
func (s *WsServer) HandleHertzConnection(ctx context.Context, c *app.RequestContext, upgrader *websocket.HertzUpgrader) {
	if s.onlineConnNum.Load() >= s.maxConnNum {
		c.String(consts.StatusServiceUnavailable, "connection limit exceeded")
		return
	}

	token := string(c.Query(QueryToken))
	sendId := string(c.Query(QuerySendId))

	claims, err := s.authenticate(token, sendId)
	if err != nil {
		log.CtxDebug(ctx, "token validation failed: send_id=%s, error=%v", sendId, err)
		if errors.Is(err, errcode.ErrTokenMissing) {
			c.String(consts.StatusBadRequest, "missing required parameters")
			return
		}
		c.String(consts.StatusUnauthorized, "unauthorized")
		return
	}

	err = upgrader.Upgrade(c, func(conn *websocket.Conn) {
		// Blocks until the connection closes
		s.serve(context.WithoutCancel(ctx), NewHertzWebSocketClientConn(conn, s.connOpts), claims.UserId)
	})
	if err != nil {
		log.CtxWarn(ctx, "websocket upgrade failed: %v", err)
	}
}
