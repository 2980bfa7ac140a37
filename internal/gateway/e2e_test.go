package gateway

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/mbeoliero/parley/internal/entity"
	"github.com/mbeoliero/parley/internal/service"
	"github.com/mbeoliero/parley/pkg/constant"
	"github.com/mbeoliero/parley/pkg/jwt"
)

func dial(t *testing.T, srv *httptest.Server, token, sendId string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	u := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?" + url.Values{
		QueryToken:  {token},
		QuerySendId: {sendId},
	}.Encode()
	return websocket.DefaultDialer.Dial(u, nil)
}

// readUntil reads frames until one carries event
func readUntil(t *testing.T, conn *websocket.Conn, event string) *frame {
	t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for {
		require.NoError(t, conn.SetReadDeadline(deadline))
		_, data, err := conn.ReadMessage()
		require.NoError(t, err, "waiting for %s", event)
		var f frame
		require.NoError(t, Decode(data, &f))
		if f.Event == event {
			return &f
		}
	}
}

func TestE2E_HandshakeAndMessage(t *testing.T) {
	r := require.New(t)

	// Given a real websocket server
	h := newHarness(t)
	h.users("u1", "u2")
	h.conversation("c1", "u1", "u2")
	srv := httptest.NewServer(http.HandlerFunc(h.server.HandleConnection))
	defer srv.Close()

	tokenA, err := jwt.GenerateToken("u1", h.cfg.JWT.Secret, 1)
	r.NoError(err)
	tokenB, err := jwt.GenerateToken("u2", h.cfg.JWT.Secret, 1)
	r.NoError(err)

	// When the token does not belong to send_id
	_, resp, err := dial(t, srv, tokenA, "u2")

	// Then the upgrade is refused
	r.Error(err)
	r.Equal(http.StatusUnauthorized, resp.StatusCode)

	// When the token is missing
	_, resp, err = dial(t, srv, "", "u1")

	// Then
	r.Error(err)
	r.Equal(http.StatusBadRequest, resp.StatusCode)
	r.Zero(h.server.OnlineConnCount())

	// When both connect properly
	a, _, err := dial(t, srv, tokenA, "u1")
	r.NoError(err)
	defer a.Close()
	b, _, err := dial(t, srv, tokenB, "u2")
	r.NoError(err)
	defer b.Close()
	waitFor(t, func() bool { return h.server.OnlineConnCount() == 2 })

	payload, err := Encode(&service.SendMessageRequest{ConversationId: "c1", Content: "over the wire"})
	r.NoError(err)
	req, err := Encode(&WSRequest{Event: constant.EventSendMessage, ReqId: "1", Data: payload})
	r.NoError(err)
	r.NoError(a.WriteMessage(websocket.TextMessage, req))

	// Then
	var ack entity.MessageInfo
	ackFrame := readUntil(t, a, constant.EventSendMessage)
	r.Equal("1", ackFrame.ReqId)
	r.Zero(ackFrame.ErrCode)
	ackFrame.decode(t, &ack)

	var got entity.MessageInfo
	readUntil(t, b, constant.EventNewMessage).decode(t, &got)
	r.Equal(ack.Id, got.Id)
	r.Equal("over the wire", got.Content)

	// When the sender hangs up
	r.NoError(a.Close())

	// Then the peer sees it go offline
	var offline PresenceEvent
	readUntil(t, b, constant.EventUserOffline).decode(t, &offline)
	r.Equal("u1", offline.UserId)
	waitFor(t, func() bool { return h.server.OnlineConnCount() == 1 })
}
