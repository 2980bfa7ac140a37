package gateway

import (
	"sync"
	"time"

	"github.com/mbeoliero/kit/log"
)

// TypingNotifier is told about every typing set change
type TypingNotifier func(conversationId, userId string, typing bool)

type typingEntry struct {
	timer *time.Timer
	gen   uint64
}

// typingSet is one conversation's typing identities; a dead set has left the map
type typingSet struct {
	mu    sync.Mutex
	users map[string]*typingEntry
	dead  bool
}

// TypingTracker keeps per-conversation typing sets with an inactivity timeout
type TypingTracker struct {
	sets    sync.Map // conversationId -> *typingSet
	timeout time.Duration
	notify  TypingNotifier

	genMu sync.Mutex
	gen   uint64
}

// NewTypingTracker creates a TypingTracker. A non-positive timeout disables expiry.
func NewTypingTracker(timeout time.Duration, notify TypingNotifier) *TypingTracker {
	if notify == nil {
		notify = func(string, string, bool) {}
	}
	return &TypingTracker{timeout: timeout, notify: notify}
}

func (t *TypingTracker) nextGen() uint64 {
	t.genMu.Lock()
	defer t.genMu.Unlock()
	t.gen++
	return t.gen
}

// Start marks userId as typing in conversationId. Repeats only push the deadline back.
func (t *TypingTracker) Start(conversationId, userId string) bool {
	for {
		v, _ := t.sets.LoadOrStore(conversationId, &typingSet{users: make(map[string]*typingEntry)})
		set := v.(*typingSet)

		set.mu.Lock()
		if set.dead {
			set.mu.Unlock()
			continue
		}

		entry, exists := set.users[userId]
		if exists {
			t.arm(conversationId, userId, entry)
			set.mu.Unlock()
			return false
		}

		entry = &typingEntry{}
		t.arm(conversationId, userId, entry)
		set.users[userId] = entry
		t.notify(conversationId, userId, true)
		set.mu.Unlock()
		return true
	}
}

// Stop removes userId from conversationId's typing set, dropping the set once empty
func (t *TypingTracker) Stop(conversationId, userId string) bool {
	return t.remove(conversationId, userId, 0)
}

// StopAll removes userId from every given conversation, notifying each one it was typing in
func (t *TypingTracker) StopAll(conversationIds []string, userId string) int {
	n := 0
	for _, id := range conversationIds {
		if t.Stop(id, userId) {
			n++
		}
	}
	return n
}

// IsTyping reports whether userId is typing in conversationId
func (t *TypingTracker) IsTyping(conversationId, userId string) bool {
	v, ok := t.sets.Load(conversationId)
	if !ok {
		return false
	}
	set := v.(*typingSet)
	set.mu.Lock()
	defer set.mu.Unlock()
	_, ok = set.users[userId]
	return ok
}

// Typing returns the identities typing in conversationId
func (t *TypingTracker) Typing(conversationId string) []string {
	v, ok := t.sets.Load(conversationId)
	if !ok {
		return nil
	}
	set := v.(*typingSet)
	set.mu.Lock()
	defer set.mu.Unlock()
	users := make([]string, 0, len(set.users))
	for userId := range set.users {
		users = append(users, userId)
	}
	return users
}

// arm (re)starts the entry's deadline; callers hold the set lock
func (t *TypingTracker) arm(conversationId, userId string, entry *typingEntry) {
	if entry.timer != nil {
		entry.timer.Stop()
	}
	if t.timeout <= 0 {
		return
	}
	gen := t.nextGen()
	entry.gen = gen
	entry.timer = time.AfterFunc(t.timeout, func() {
		if t.remove(conversationId, userId, gen) {
			log.Debug("typing expired: conversation_id=%s, user_id=%s", conversationId, userId)
		}
	})
}

// remove deletes the entry; a non-zero gen only matches the timer that armed it
func (t *TypingTracker) remove(conversationId, userId string, gen uint64) bool {
	v, ok := t.sets.Load(conversationId)
	if !ok {
		return false
	}
	set := v.(*typingSet)

	set.mu.Lock()
	defer set.mu.Unlock()

	entry, ok := set.users[userId]
	if !ok || (gen != 0 && entry.gen != gen) {
		return false
	}
	if entry.timer != nil {
		entry.timer.Stop()
	}
	delete(set.users, userId)
	if len(set.users) == 0 {
		set.dead = true
		t.sets.CompareAndDelete(conversationId, set)
	}
	t.notify(conversationId, userId, false)
	return true
}
