package gateway

import (
	"context"

	"github.com/mbeoliero/kit/log"
	"github.com/redis/go-redis/v9"
)

// Route kinds carried by an Envelope
const (
	routeRoom      = "room"
	routeUsers     = "users"
	routeRoomUsers = "room_users"
	routeAll       = "all"
	routeJoin      = "join"
	routeDissolve  = "dissolve"
)

// Envelope is one routing decision. Every instance applies it to its own connections.
type Envelope struct {
	Origin      string   `json:"origin"`
	Kind        string   `json:"kind"`
	Key         string   `json:"key,omitempty"`
	Room        string   `json:"room,omitempty"`
	Users       []string `json:"users,omitempty"`
	ExcludeConn string   `json:"exclude_conn,omitempty"`
	ExcludeUser string   `json:"exclude_user,omitempty"`
	Event       string   `json:"event,omitempty"`
	Payload     []byte   `json:"payload,omitempty"`
}

// shardKey keeps events about the same room or identity on one push worker
func (e *Envelope) shardKey() string {
	switch {
	case e.Key != "":
		return e.Key
	case e.Room != "":
		return e.Room
	case len(e.Users) > 0:
		return e.Users[0]
	default:
		return broadcastKey
	}
}

// Bus relays envelopes between gateway instances over Redis pub/sub
type Bus struct {
	rdb     *redis.Client
	channel string
	origin  string
	apply   func(env *Envelope)
}

// NewBus returns nil when there is no Redis client or channel, which keeps delivery local
func NewBus(rdb *redis.Client, channel, origin string, apply func(env *Envelope)) *Bus {
	if rdb == nil || channel == "" {
		return nil
	}
	return &Bus{rdb: rdb, channel: channel, origin: origin, apply: apply}
}

// Publish sends the envelope to the other instances
func (b *Bus) Publish(ctx context.Context, env *Envelope) {
	data, err := Encode(env)
	if err != nil {
		log.CtxError(ctx, "encode envelope failed: kind=%s, event=%s, error=%v", env.Kind, env.Event, err)
		return
	}
	if err := b.rdb.Publish(ctx, b.channel, data).Err(); err != nil {
		log.CtxWarn(ctx, "publish envelope failed: kind=%s, event=%s, error=%v", env.Kind, env.Event, err)
	}
}

// Run applies envelopes from other instances until ctx is done
func (b *Bus) Run(ctx context.Context) {
	sub := b.rdb.Subscribe(ctx, b.channel)
	defer sub.Close()

	ch := sub.Channel()
	log.Info("fanout bus subscribed: channel=%s, origin=%s", b.channel, b.origin)

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var env Envelope
			if err := Decode([]byte(msg.Payload), &env); err != nil {
				log.Warn("decode envelope failed: %v", err)
				continue
			}
			if env.Origin == b.origin {
				continue
			}
			b.apply(&env)
		}
	}
}
