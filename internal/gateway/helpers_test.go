package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mbeoliero/parley/internal/config"
	"github.com/mbeoliero/parley/internal/entity"
	"github.com/mbeoliero/parley/internal/repository/memstore"
	"github.com/mbeoliero/parley/internal/service"
	"github.com/mbeoliero/parley/pkg/constant"
)

const waitTimeout = 2 * time.Second

// fakeConn is an in-process ClientConn
type fakeConn struct {
	in     chan []byte
	out    chan []byte
	closed chan struct{}
	once   sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:     make(chan []byte, 64),
		out:    make(chan []byte, 256),
		closed: make(chan struct{}),
	}
}

func (f *fakeConn) ReadMessage() ([]byte, error) {
	select {
	case m := <-f.in:
		return m, nil
	case <-f.closed:
		return nil, ErrConnClosed
	}
}

func (f *fakeConn) WriteMessage(data []byte) error {
	select {
	case <-f.closed:
		return ErrConnClosed
	default:
	}
	select {
	case f.out <- data:
		return nil
	default:
		return ErrWriteChannelFull
	}
}

func (f *fakeConn) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeConn) SetReadDeadline(time.Time) error  { return nil }
func (f *fakeConn) SetWriteDeadline(time.Time) error { return nil }

// frame is the union of response and push frames
type frame struct {
	Event   string          `json:"event"`
	ReqId   string          `json:"req_id"`
	ErrCode int             `json:"err_code"`
	ErrMsg  string          `json:"err_msg"`
	Data    json.RawMessage `json:"data"`
}

func (f *frame) decode(t *testing.T, v any) {
	t.Helper()
	require.NoError(t, Decode(f.Data, v))
}

var connSeq atomic.Int64

type testClient struct {
	t       *testing.T
	client  *Client
	conn    *fakeConn
	pending []*frame
	reqSeq  int
}

// send writes a request frame and returns its req_id
func (tc *testClient) send(event string, data any) string {
	tc.t.Helper()
	tc.reqSeq++
	req := WSRequest{Event: event, ReqId: fmt.Sprintf("r%d", tc.reqSeq)}
	if data != nil {
		raw, err := Encode(data)
		require.NoError(tc.t, err)
		req.Data = raw
	}
	payload, err := Encode(&req)
	require.NoError(tc.t, err)
	tc.conn.in <- payload
	return req.ReqId
}

// call sends a request and waits for its response
func (tc *testClient) call(event string, data any) *frame {
	tc.t.Helper()
	reqId := tc.send(event, data)
	f, ok := tc.await(func(f *frame) bool { return f.ReqId == reqId }, waitTimeout)
	require.True(tc.t, ok, "no response to %s", event)
	return f
}

// expect waits for the next push of event
func (tc *testClient) expect(event string) *frame {
	tc.t.Helper()
	f, ok := tc.await(func(f *frame) bool { return f.ReqId == "" && f.Event == event }, waitTimeout)
	require.True(tc.t, ok, "user %s did not receive %s", tc.client.UserId, event)
	return f
}

// count drains pushes of event for wait and returns how many arrived
func (tc *testClient) count(event string, wait time.Duration) int {
	n := 0
	for {
		_, ok := tc.await(func(f *frame) bool { return f.ReqId == "" && f.Event == event }, wait)
		if !ok {
			return n
		}
		n++
	}
}

func (tc *testClient) await(match func(*frame) bool, timeout time.Duration) (*frame, bool) {
	tc.t.Helper()
	for i, f := range tc.pending {
		if match(f) {
			tc.pending = append(tc.pending[:i], tc.pending[i+1:]...)
			return f, true
		}
	}

	deadline := time.After(timeout)
	for {
		select {
		case data := <-tc.conn.out:
			var f frame
			require.NoError(tc.t, Decode(data, &f))
			if match(&f) {
				return &f, true
			}
			tc.pending = append(tc.pending, &f)
		case <-deadline:
			return nil, false
		}
	}
}

func (tc *testClient) disconnect() {
	tc.conn.Close()
}

type harness struct {
	t        *testing.T
	ctx      context.Context
	cfg      *config.Config
	store    *memstore.Store
	server   *WsServer
	messages *service.MessageService
	calls    *service.CallService
}

func newHarness(t *testing.T) *harness {
	cfg := config.Default()
	cfg.Storage.Driver = constant.StorageDriverMemory
	cfg.JWT.Secret = "test-secret"
	cfg.Chat.TypingTimeout = 300 * time.Millisecond

	store := memstore.New()
	messages := service.NewMessageService(store, &cfg.Chat)
	calls := service.NewCallService(store)
	server := NewWsServer(cfg, store, nil, messages, calls)
	messages.SetPusher(server)
	calls.SetPusher(server)

	ctx, cancel := context.WithCancel(context.Background())
	server.Run(ctx)
	t.Cleanup(cancel)

	return &harness{
		t:        t,
		ctx:      context.Background(),
		cfg:      cfg,
		store:    store,
		server:   server,
		messages: messages,
		calls:    calls,
	}
}

func (h *harness) users(ids ...string) {
	for _, id := range ids {
		require.NoError(h.t, h.store.Users().Create(h.ctx, &entity.User{Id: id, Name: "name-" + id}))
	}
}

func (h *harness) conversation(id string, members ...string) {
	now := entity.NowUnixMilli()
	conv := &entity.Conversation{Id: id, IsGroup: len(members) > 2, CreatedAt: now}
	if len(members) == 2 {
		key := entity.GenPairKey(members[0], members[1])
		conv.PairKey = &key
	}
	participants := make([]*entity.Participant, 0, len(members))
	for i, m := range members {
		participants = append(participants, &entity.Participant{
			ConversationId: id,
			UserId:         m,
			Role:           constant.RoleMember,
			JoinedAt:       now + int64(i),
		})
	}
	require.NoError(h.t, h.store.Conversations().Create(h.ctx, conv, participants))
}

// connect attaches a fake connection for userId and starts its read loop
func (h *harness) connect(userId string) *testClient {
	conn := newFakeConn()
	client := NewClient(conn, userId, fmt.Sprintf("conn-%d", connSeq.Add(1)), h.server)
	h.server.Connect(h.ctx, client)
	go client.readLoop()
	h.t.Cleanup(func() { conn.Close() })
	return &testClient{t: h.t, client: client, conn: conn}
}

// waitFor polls cond until it holds
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, waitTimeout, 10*time.Millisecond)
}
