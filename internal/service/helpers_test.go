package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mbeoliero/parley/internal/entity"
	"github.com/mbeoliero/parley/internal/repository/memstore"
	"github.com/mbeoliero/parley/pkg/constant"
)

type pushed struct {
	Room    string
	Users   []string
	Event   string
	Data    any
	Exclude string
}

type recordingPusher struct {
	mu     sync.Mutex
	pushes []pushed
	joins  map[string][]string
	gone   []string
}

func newRecordingPusher() *recordingPusher {
	return &recordingPusher{joins: make(map[string][]string)}
}

func (p *recordingPusher) PushToRoom(_ context.Context, roomId, event string, data any, excludeConnId string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pushes = append(p.pushes, pushed{Room: roomId, Event: event, Data: data, Exclude: excludeConnId})
}

func (p *recordingPusher) PushToUsers(_ context.Context, userIds []string, event string, data any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pushes = append(p.pushes, pushed{Users: userIds, Event: event, Data: data})
}

func (p *recordingPusher) PushToRoomAndUsers(_ context.Context, roomId string, userIds []string, event string, data any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pushes = append(p.pushes, pushed{Room: roomId, Users: userIds, Event: event, Data: data})
}

func (p *recordingPusher) JoinUsersToRoom(_ context.Context, roomId string, userIds []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.joins[roomId] = append(p.joins[roomId], userIds...)
}

func (p *recordingPusher) DissolveRoom(_ context.Context, roomId string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.gone = append(p.gone, roomId)
}

func (p *recordingPusher) events(event string) []pushed {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []pushed
	for _, e := range p.pushes {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

type fixture struct {
	ctx      context.Context
	store    *memstore.Store
	pusher   *recordingPusher
	messages *MessageService
	calls    *CallService
	convs    *ConversationService
	contacts *ContactService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := memstore.New()
	p := newRecordingPusher()

	f := &fixture{
		ctx:      context.Background(),
		store:    st,
		pusher:   p,
		messages: NewMessageService(st, nil),
		calls:    NewCallService(st),
		convs:    NewConversationService(st),
		contacts: NewContactService(st),
	}
	f.messages.SetPusher(p)
	f.calls.SetPusher(p)
	f.convs.SetPusher(p)

	for _, id := range []string{"u1", "u2", "u3"} {
		require.NoError(t, st.Users().Create(f.ctx, &entity.User{Id: id, Name: "name-" + id}))
	}
	return f
}

// pair creates a one-to-one conversation between a and b directly in storage
func (f *fixture) pair(t *testing.T, id, a, b string) {
	t.Helper()
	key := entity.GenPairKey(a, b)
	require.NoError(t, f.store.Conversations().Create(f.ctx, &entity.Conversation{Id: id, PairKey: &key}, []*entity.Participant{
		{UserId: a, Role: constant.RoleMember, JoinedAt: 1},
		{UserId: b, Role: constant.RoleMember, JoinedAt: 2},
	}))
}

func (f *fixture) send(t *testing.T, sender, convId, content string) *entity.MessageInfo {
	t.Helper()
	info, err := f.messages.SendMessage(f.ctx, sender, &SendMessageRequest{ConversationId: convId, Content: content})
	require.NoError(t, err)
	return info
}
