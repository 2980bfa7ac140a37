package gateway

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mbeoliero/parley/pkg/constant"
)

func TestBus_DisabledWithoutRedis(t *testing.T) {
	r := require.New(t)

	r.Nil(NewBus(nil, "fanout", "node-a", func(*Envelope) {}))
}

func TestEnvelope_ShardKey(t *testing.T) {
	r := require.New(t)

	r.Equal("u1", (&Envelope{Kind: routeAll, Key: "u1"}).shardKey())
	r.Equal("c1", (&Envelope{Kind: routeRoomUsers, Room: "c1", Users: []string{"u2"}}).shardKey())
	r.Equal("u2", (&Envelope{Kind: routeUsers, Users: []string{"u2", "u3"}}).shardKey())
	r.Equal(broadcastKey, (&Envelope{Kind: routeAll}).shardKey())
}

func TestServer_AppliesRemoteEnvelopes(t *testing.T) {
	r := require.New(t)

	// Given
	h := newHarness(t)
	h.users("u1", "u2", "u3")
	a := h.connect("u1")
	b := h.connect("u2")

	// When another instance joins u1 and u2 to a room it created
	h.server.apply(&Envelope{Origin: "remote", Kind: routeJoin, Room: "c9", Users: []string{"u1", "u2"}})

	// Then both local connections are members
	r.True(a.client.InRoom("c9"))
	r.True(b.client.InRoom("c9"))

	// When it routes a typing event to that room excluding u1
	payload, err := EncodePush(constant.EventTyping, &TypingEvent{ConversationId: "c9", UserId: "u1", IsTyping: true})
	r.NoError(err)
	h.server.apply(&Envelope{Origin: "remote", Kind: routeRoom, Room: "c9", ExcludeUser: "u1", Event: constant.EventTyping, Payload: payload})

	// Then only u2 receives it
	var typing TypingEvent
	b.expect(constant.EventTyping).decode(t, &typing)
	r.Equal("u1", typing.UserId)
	r.True(typing.IsTyping)
	r.Equal(0, a.count(constant.EventTyping, quiet))

	// When it dissolves the room
	h.server.apply(&Envelope{Origin: "remote", Kind: routeDissolve, Room: "c9"})

	// Then nobody is left in it
	r.False(a.client.InRoom("c9"))
	r.Empty(h.server.Rooms().Members("c9"))
}
