package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"github.com/mbeoliero/kit/log"
	"github.com/redis/go-redis/v9"

	"github.com/mbeoliero/parley/internal/config"
	"github.com/mbeoliero/parley/internal/entity"
	"github.com/mbeoliero/parley/internal/repository"
	"github.com/mbeoliero/parley/internal/service"
	"github.com/mbeoliero/parley/pkg/constant"
	"github.com/mbeoliero/parley/pkg/errcode"
	"github.com/mbeoliero/parley/pkg/idgen"
	"github.com/mbeoliero/parley/pkg/jwt"
)

// HandlerFunc handles one inbound event and returns the response data
type HandlerFunc func(ctx context.Context, c *Client, data json.RawMessage) (any, error)

// WsServer is the WebSocket server. It owns presence, room membership, typing state and push delivery.
type WsServer struct {
	upgrader      *websocket.Upgrader
	cfg           *config.Config
	connOpts      ConnOptions
	instanceId    string
	clients       sync.Map // connId -> *Client
	presence      *PresenceStore
	rooms         *RoomMap
	typing        *TypingTracker
	dispatcher    *Dispatcher
	bus           *Bus
	conversations repository.ConversationStore
	msgService    *service.MessageService
	callService   *service.CallService
	handlers      map[string]HandlerFunc
	onlineConnNum atomic.Int64
	maxConnNum    int64
}

var _ service.Pusher = (*WsServer)(nil)
var _ service.PresenceReader = (*WsServer)(nil)

// NewWsServer creates a new WebSocket server. rdb may be nil for a single instance without Redis.
func NewWsServer(cfg *config.Config, store repository.Store, rdb *redis.Client, msgService *service.MessageService, callService *service.CallService) *WsServer {
	s := &WsServer{
		upgrader: &websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(cfg.Server.AllowedOrigins),
		},
		cfg:           cfg,
		connOpts:      NewConnOptions(&cfg.WebSocket),
		instanceId:    idgen.NewConnId(),
		rooms:         NewRoomMap(),
		dispatcher:    NewDispatcher(cfg.WebSocket.PushWorkerNum, cfg.WebSocket.PushChannelSize),
		conversations: store.Conversations(),
		msgService:    msgService,
		callService:   callService,
		maxConnNum:    cfg.WebSocket.MaxConnNum,
	}
	s.presence = NewPresenceStore(store.Users(), rdb, cfg.Chat.OnlineTTL, s.notifyPresence)
	s.typing = NewTypingTracker(cfg.Chat.TypingTimeout, s.notifyTyping)
	s.bus = NewBus(rdb, cfg.Redis.FanoutChannel, s.instanceId, s.apply)
	s.handlers = s.eventHandlers()
	return s
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		return OriginAllowed(r.Header.Get("Origin"), allowed)
	}
}

// OriginAllowed validates an Origin header. Requests without one are same-origin or non-browser clients.
func OriginAllowed(origin string, allowed []string) bool {
	if origin == "" {
		return true
	}
	for _, o := range allowed {
		if o == "*" || strings.EqualFold(origin, o) {
			return true
		}
	}
	return false
}

// Run starts the push workers and, when configured, the fan-out bus
func (s *WsServer) Run(ctx context.Context) {
	s.dispatcher.Run(ctx)
	log.Info("started %d push workers", len(s.dispatcher.queues))

	if s.bus != nil {
		go s.bus.Run(ctx)
	}
}

// Shutdown kicks every live connection; their read loops release the rest
func (s *WsServer) Shutdown() {
	s.clients.Range(func(_, v any) bool {
		v.(*Client).Kick()
		return true
	})
}

// Presence returns the presence store
func (s *WsServer) Presence() *PresenceStore {
	return s.presence
}

// Rooms returns the room map
func (s *WsServer) Rooms() *RoomMap {
	return s.rooms
}

// Typing returns the typing tracker
func (s *WsServer) Typing() *TypingTracker {
	return s.typing
}

// OnlineConnCount returns the number of live connections on this instance
func (s *WsServer) OnlineConnCount() int64 {
	return s.onlineConnNum.Load()
}

// Lookup implements service.PresenceReader
func (s *WsServer) Lookup(ctx context.Context, userId string) (entity.Presence, bool) {
	return s.presence.Lookup(ctx, userId)
}

// Connect registers an authenticated connection: presence first, then its rooms
func (s *WsServer) Connect(ctx context.Context, client *Client) {
	s.clients.Store(client.ConnId, client)
	s.onlineConnNum.Add(1)

	s.presence.Connect(ctx, client)

	convIds, err := s.conversations.ListConversationIds(ctx, client.UserId)
	if err != nil {
		log.CtxError(ctx, "load rooms failed: user_id=%s, conn_id=%s, error=%v", client.UserId, client.ConnId, err)
	}
	joined := 0
	for _, id := range convIds {
		if s.rooms.Join(id, client) {
			joined++
		}
	}

	log.CtxInfo(ctx, "client connected: user_id=%s, conn_id=%s, rooms=%d, online_users=%d, online_conns=%d",
		client.UserId, client.ConnId, joined, s.presence.OnlineUserCount(), s.onlineConnNum.Load())
}

// Disconnect releases everything the connection holds. It is safe to call more than once.
func (s *WsServer) Disconnect(client *Client) {
	if _, loaded := s.clients.LoadAndDelete(client.ConnId); !loaded {
		return
	}
	ctx := context.WithoutCancel(client.ctx)

	rooms := s.rooms.LeaveAll(client)
	stopped := s.typing.StopAll(rooms, client.UserId)
	offline := s.presence.Disconnect(ctx, client)
	s.onlineConnNum.Add(-1)

	log.CtxInfo(ctx, "client disconnected: user_id=%s, conn_id=%s, rooms=%d, typing_stopped=%d, user_offline=%v, online_conns=%d, reason=%v",
		client.UserId, client.ConnId, len(rooms), stopped, offline, s.onlineConnNum.Load(), client.closedErr)
}

// serve runs a freshly upgraded connection until it closes
func (s *WsServer) serve(ctx context.Context, conn ClientConn, userId string) {
	client := NewClient(conn, userId, idgen.NewConnId(), s)
	s.Connect(ctx, client)
	client.readLoop()
}

// authenticate checks the handshake token against the claimed identity
func (s *WsServer) authenticate(token, sendId string) (*jwt.Claims, error) {
	if token == "" || sendId == "" {
		return nil, errcode.ErrTokenMissing
	}
	return jwt.ValidateToken(token, s.cfg.JWT.Secret, sendId)
}

// HandleConnection handles a new WebSocket connection on a net/http server
func (s *WsServer) HandleConnection(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if s.onlineConnNum.Load() >= s.maxConnNum {
		http.Error(w, "connection limit exceeded", http.StatusServiceUnavailable)
		return
	}

	token := r.URL.Query().Get(QueryToken)
	sendId := r.URL.Query().Get(QuerySendId)

	claims, err := s.authenticate(token, sendId)
	if err != nil {
		log.CtxDebug(ctx, "token validation failed: send_id=%s, error=%v", sendId, err)
		if errors.Is(err, errcode.ErrTokenMissing) {
			http.Error(w, "missing required parameters", http.StatusBadRequest)
			return
		}
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.CtxWarn(ctx, "websocket upgrade failed: %v", err)
		return
	}

	s.serve(context.WithoutCancel(ctx), NewWebSocketClientConn(conn, s.connOpts), claims.UserId)
}

// ========== service.Pusher ==========

// PushToRoom delivers to every connection joined to roomId except excludeConnId
func (s *WsServer) PushToRoom(ctx context.Context, roomId, event string, data any, excludeConnId string) {
	s.publish(ctx, &Envelope{Kind: routeRoom, Room: roomId, ExcludeConn: excludeConnId}, event, data)
}

// PushToUsers delivers to every live connection of the users
func (s *WsServer) PushToUsers(ctx context.Context, userIds []string, event string, data any) {
	if len(userIds) == 0 {
		return
	}
	s.publish(ctx, &Envelope{Kind: routeUsers, Users: userIds}, event, data)
}

// PushToRoomAndUsers delivers once per connection to the room and the users' connections
func (s *WsServer) PushToRoomAndUsers(ctx context.Context, roomId string, userIds []string, event string, data any) {
	s.publish(ctx, &Envelope{Kind: routeRoomUsers, Room: roomId, Users: userIds}, event, data)
}

// JoinUsersToRoom joins every live connection of the users to roomId
func (s *WsServer) JoinUsersToRoom(ctx context.Context, roomId string, userIds []string) {
	if len(userIds) == 0 {
		return
	}
	s.publish(ctx, &Envelope{Kind: routeJoin, Room: roomId, Users: userIds}, "", nil)
}

// DissolveRoom removes every connection from roomId
func (s *WsServer) DissolveRoom(ctx context.Context, roomId string) {
	s.publish(ctx, &Envelope{Kind: routeDissolve, Room: roomId}, "", nil)
}

// publish applies the envelope locally and forwards it to other instances
func (s *WsServer) publish(ctx context.Context, env *Envelope, event string, data any) {
	if event != "" {
		payload, err := EncodePush(event, data)
		if err != nil {
			log.CtxError(ctx, "encode push failed: event=%s, error=%v", event, err)
			return
		}
		env.Event = event
		env.Payload = payload
	}
	env.Origin = s.instanceId

	s.apply(env)
	if s.bus != nil {
		s.bus.Publish(ctx, env)
	}
}

// apply resolves the envelope against local state. Targets are fixed here, before any queued delivery.
func (s *WsServer) apply(env *Envelope) {
	switch env.Kind {
	case routeJoin:
		for _, userId := range env.Users {
			for _, c := range s.presence.Clients(userId) {
				s.rooms.Join(env.Room, c)
			}
		}
		return
	case routeDissolve:
		s.rooms.Dissolve(env.Room)
		return
	}

	s.dispatcher.Dispatch(&pushTask{
		key:     env.shardKey(),
		event:   env.Event,
		targets: s.resolve(env),
		payload: env.Payload,
	})
}

// resolve lists the target connections of an envelope, each connection at most once
func (s *WsServer) resolve(env *Envelope) []*Client {
	seen := make(map[string]struct{})
	var targets []*Client
	add := func(c *Client) {
		if env.ExcludeConn != "" && c.ConnId == env.ExcludeConn {
			return
		}
		if env.ExcludeUser != "" && c.UserId == env.ExcludeUser {
			return
		}
		if _, ok := seen[c.ConnId]; ok {
			return
		}
		seen[c.ConnId] = struct{}{}
		targets = append(targets, c)
	}

	switch env.Kind {
	case routeRoom:
		for _, c := range s.rooms.Members(env.Room) {
			add(c)
		}
	case routeUsers:
		for _, userId := range env.Users {
			for _, c := range s.presence.Clients(userId) {
				add(c)
			}
		}
	case routeRoomUsers:
		for _, c := range s.rooms.Members(env.Room) {
			add(c)
		}
		for _, userId := range env.Users {
			for _, c := range s.presence.Clients(userId) {
				add(c)
			}
		}
	case routeAll:
		s.clients.Range(func(_, v any) bool {
			add(v.(*Client))
			return true
		})
	default:
		log.Warn("unknown route kind: kind=%s, event=%s", env.Kind, env.Event)
	}
	return targets
}

// notifyPresence broadcasts an online or offline transition to every connection
func (s *WsServer) notifyPresence(userId string, online bool, lastSeenAt *int64) {
	event := constant.EventUserOnline
	if !online {
		event = constant.EventUserOffline
	}
	s.publish(context.Background(), &Envelope{Kind: routeAll, Key: userId}, event, &PresenceEvent{
		UserId:     userId,
		LastSeenAt: lastSeenAt,
	})
}

// notifyTyping tells the rest of the room that userId started or stopped typing
func (s *WsServer) notifyTyping(conversationId, userId string, typing bool) {
	s.publish(context.Background(), &Envelope{Kind: routeRoom, Room: conversationId, ExcludeUser: userId}, constant.EventTyping, &TypingEvent{
		ConversationId: conversationId,
		UserId:         userId,
		IsTyping:       typing,
	})
}
