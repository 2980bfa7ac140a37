package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mbeoliero/kit/log"
	"github.com/redis/go-redis/v9"

	"github.com/mbeoliero/parley/internal/entity"
	"github.com/mbeoliero/parley/internal/repository"
	"github.com/mbeoliero/parley/pkg/constant"
)

// PresenceNotifier is called on online and offline transitions, outside the identity's lock.
// Calls for one identity never overlap and follow the order of the transitions.
type PresenceNotifier func(userId string, online bool, lastSeenAt *int64)

// presenceEntry is one identity's live connections and status
type presenceEntry struct {
	mu       sync.Mutex
	clients  map[string]*Client // connId -> Client
	online   bool
	lastSeen *int64
	version  int64

	// transitions are numbered under mu and announced in that order
	nextTicket uint64
	announceMu sync.Mutex
	announced  sync.Cond
	served     uint64
}

func newPresenceEntry() *presenceEntry {
	e := &presenceEntry{clients: make(map[string]*Client)}
	e.announced.L = &e.announceMu
	return e
}

// ticket numbers a transition; callers hold mu
func (e *presenceEntry) ticket() uint64 {
	t := e.nextTicket
	e.nextTicket++
	return t
}

// PresenceStore counts live connections per identity and tracks online transitions.
// The map lock only guards entry lookup; each identity mutates under its own lock.
type PresenceStore struct {
	mu      sync.RWMutex
	entries map[string]*presenceEntry
	users   repository.UserStore
	rdb     *redis.Client
	ttl     time.Duration
	notify  PresenceNotifier
}

// NewPresenceStore creates a PresenceStore. users and rdb are optional.
func NewPresenceStore(users repository.UserStore, rdb *redis.Client, ttl time.Duration, notify PresenceNotifier) *PresenceStore {
	if notify == nil {
		notify = func(string, bool, *int64) {}
	}
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	return &PresenceStore{
		entries: make(map[string]*presenceEntry),
		users:   users,
		rdb:     rdb,
		ttl:     ttl,
		notify:  notify,
	}
}

func (p *PresenceStore) entry(userId string) *presenceEntry {
	p.mu.RLock()
	e, ok := p.entries[userId]
	p.mu.RUnlock()
	if ok {
		return e
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok = p.entries[userId]; ok {
		return e
	}
	e = newPresenceEntry()
	p.entries[userId] = e
	return e
}

func (p *PresenceStore) lookupEntry(userId string) (*presenceEntry, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	e, ok := p.entries[userId]
	return e, ok
}

// Connect registers the connection and reports whether the identity just came online
func (p *PresenceStore) Connect(ctx context.Context, client *Client) bool {
	e := p.entry(client.UserId)

	e.mu.Lock()
	if _, ok := e.clients[client.ConnId]; ok {
		e.mu.Unlock()
		return false
	}
	e.clients[client.ConnId] = client
	transitioned := len(e.clients) == 1
	var (
		version int64
		ticket  uint64
	)
	if transitioned {
		e.online = true
		e.lastSeen = nil
		version = e.bump()
		ticket = e.ticket()
	}
	e.mu.Unlock()

	if transitioned {
		p.announce(e, ticket, client.UserId, true, nil)
	}
	p.setOnline(ctx, client.UserId)
	if transitioned {
		p.persist(ctx, client.UserId, true, nil, version)
		log.CtxInfo(ctx, "user online: user_id=%s, conn_id=%s", client.UserId, client.ConnId)
	}
	return transitioned
}

// Disconnect releases the connection and reports whether the identity just went offline.
// Releasing an unknown connection is a no-op.
func (p *PresenceStore) Disconnect(ctx context.Context, client *Client) bool {
	e, ok := p.lookupEntry(client.UserId)
	if !ok {
		return false
	}

	e.mu.Lock()
	if _, ok := e.clients[client.ConnId]; !ok {
		e.mu.Unlock()
		return false
	}
	delete(e.clients, client.ConnId)
	transitioned := len(e.clients) == 0
	var (
		version  int64
		ticket   uint64
		lastSeen *int64
	)
	if transitioned {
		lastSeen = entity.Int64Ptr(entity.NowUnixMilli())
		e.online = false
		e.lastSeen = lastSeen
		version = e.bump()
		ticket = e.ticket()
	}
	e.mu.Unlock()

	if transitioned {
		p.announce(e, ticket, client.UserId, false, lastSeen)
		p.setOffline(ctx, client.UserId, *lastSeen)
		p.persist(ctx, client.UserId, false, lastSeen, version)
		log.CtxInfo(ctx, "user offline: user_id=%s, conn_id=%s", client.UserId, client.ConnId)
	}
	return transitioned
}

// announce waits for the earlier transitions of the identity, then hands this one to the notifier
func (p *PresenceStore) announce(e *presenceEntry, ticket uint64, userId string, online bool, lastSeen *int64) {
	e.announceMu.Lock()
	defer e.announceMu.Unlock()
	for e.served != ticket {
		e.announced.Wait()
	}
	defer func() {
		e.served++
		e.announced.Broadcast()
	}()
	p.notify(userId, online, lastSeen)
}

// bump returns a version above both the previous one and the wall clock
func (e *presenceEntry) bump() int64 {
	v := time.Now().UnixNano()
	if v <= e.version {
		v = e.version + 1
	}
	e.version = v
	return v
}

// Clients returns a snapshot of the identity's live connections on this instance
func (p *PresenceStore) Clients(userId string) []*Client {
	e, ok := p.lookupEntry(userId)
	if !ok {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	clients := make([]*Client, 0, len(e.clients))
	for _, c := range e.clients {
		clients = append(clients, c)
	}
	return clients
}

// ConnCount returns the number of live connections of the identity on this instance
func (p *PresenceStore) ConnCount(userId string) int {
	e, ok := p.lookupEntry(userId)
	if !ok {
		return 0
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.clients)
}

// OnlineUserCount returns the number of identities online on this instance
func (p *PresenceStore) OnlineUserCount() int {
	p.mu.RLock()
	entries := make([]*presenceEntry, 0, len(p.entries))
	for _, e := range p.entries {
		entries = append(entries, e)
	}
	p.mu.RUnlock()

	n := 0
	for _, e := range entries {
		e.mu.Lock()
		if e.online {
			n++
		}
		e.mu.Unlock()
	}
	return n
}

// Lookup returns the live presence of userId.
// An identity online on another instance is found through its Redis online key.
func (p *PresenceStore) Lookup(ctx context.Context, userId string) (entity.Presence, bool) {
	presence := entity.Presence{UserId: userId}

	e, known := p.lookupEntry(userId)
	if known {
		e.mu.Lock()
		presence.Online = e.online
		presence.LastSeenAt = e.lastSeen
		e.mu.Unlock()
		if presence.Online {
			return presence, true
		}
	}

	if p.rdb != nil {
		exists, err := p.rdb.Exists(ctx, onlineKey(userId)).Result()
		if err != nil {
			log.CtxWarn(ctx, "check online key failed: user_id=%s, error=%v", userId, err)
		} else if exists > 0 {
			return entity.Presence{UserId: userId, Online: true}, true
		}

		if !known {
			lastSeen, err := p.rdb.Get(ctx, lastSeenKey(userId)).Int64()
			if err == nil {
				presence.LastSeenAt = entity.Int64Ptr(lastSeen)
				return presence, true
			}
			if !errors.Is(err, redis.Nil) {
				log.CtxWarn(ctx, "get last seen key failed: user_id=%s, error=%v", userId, err)
			}
		}
	}

	return presence, known
}

// Refresh extends the identity's online key while it still has a live connection here
func (p *PresenceStore) Refresh(ctx context.Context, userId string) {
	if p.ConnCount(userId) > 0 {
		p.setOnline(ctx, userId)
	}
}

// persist writes the transition to durable storage; failures are logged only
func (p *PresenceStore) persist(ctx context.Context, userId string, online bool, lastSeen *int64, version int64) {
	if p.users == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), presenceWriteTimeout)
	defer cancel()

	if err := p.users.UpdatePresence(ctx, userId, online, lastSeen, version); err != nil {
		log.CtxWarn(ctx, "persist presence failed: user_id=%s, online=%t, error=%v", userId, online, err)
	}
}

// setOnline marks user as online in Redis
func (p *PresenceStore) setOnline(ctx context.Context, userId string) {
	if p.rdb == nil {
		return
	}
	if err := p.rdb.Set(ctx, onlineKey(userId), "1", p.ttl).Err(); err != nil {
		log.CtxWarn(ctx, "set online key failed: user_id=%s, error=%v", userId, err)
	}
}

// setOffline marks user as offline in Redis and records the last-seen stamp
func (p *PresenceStore) setOffline(ctx context.Context, userId string, lastSeen int64) {
	if p.rdb == nil {
		return
	}
	_, err := p.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, onlineKey(userId))
		pipe.Set(ctx, lastSeenKey(userId), lastSeen, 0)
		return nil
	})
	if err != nil {
		log.CtxWarn(ctx, "set offline keys failed: user_id=%s, error=%v", userId, err)
	}
}

func onlineKey(userId string) string {
	return fmt.Sprintf(constant.RedisKeyOnline(), userId)
}

func lastSeenKey(userId string) string {
	return fmt.Sprintf(constant.RedisKeyLastSeen(), userId)
}
