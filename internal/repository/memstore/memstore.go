// Package memstore is an in-process implementation of repository.Store.
// It backs the memory storage driver and the service tests.
package memstore

import (
	"context"
	"maps"
	"sort"
	"sync"

	"github.com/mbeoliero/parley/internal/entity"
	"github.com/mbeoliero/parley/internal/repository"
)

type pairKey struct{ a, b string }

type state struct {
	users         map[string]entity.User
	conversations map[string]entity.Conversation
	pairKeys      map[string]string
	participants  map[pairKey]entity.Participant // (conversation, user)
	messages      map[string]entity.Message
	deletions     map[pairKey]entity.MessageDeletion // (message, user)
	receipts      map[pairKey]entity.MessageReceipt  // (message, user)
	contacts      map[pairKey]entity.Contact         // (owner, friend)
	calls         map[string]entity.Call
	callMembers   map[pairKey]entity.CallParticipant // (call, user)
	nextId        int64
}

func newState() *state {
	return &state{
		users:         make(map[string]entity.User),
		conversations: make(map[string]entity.Conversation),
		pairKeys:      make(map[string]string),
		participants:  make(map[pairKey]entity.Participant),
		messages:      make(map[string]entity.Message),
		deletions:     make(map[pairKey]entity.MessageDeletion),
		receipts:      make(map[pairKey]entity.MessageReceipt),
		contacts:      make(map[pairKey]entity.Contact),
		calls:         make(map[string]entity.Call),
		callMembers:   make(map[pairKey]entity.CallParticipant),
	}
}

func (s *state) clone() *state {
	return &state{
		users:         maps.Clone(s.users),
		conversations: maps.Clone(s.conversations),
		pairKeys:      maps.Clone(s.pairKeys),
		participants:  maps.Clone(s.participants),
		messages:      maps.Clone(s.messages),
		deletions:     maps.Clone(s.deletions),
		receipts:      maps.Clone(s.receipts),
		contacts:      maps.Clone(s.contacts),
		calls:         maps.Clone(s.calls),
		callMembers:   maps.Clone(s.callMembers),
		nextId:        s.nextId,
	}
}

func (s *state) autoId() int64 {
	s.nextId++
	return s.nextId
}

// Store keeps every table in maps guarded by one mutex
type Store struct {
	mu   *sync.Mutex
	root **state
	inTx bool
}

var _ repository.Store = (*Store)(nil)

// New creates an empty Store
func New() *Store {
	st := newState()
	return &Store{mu: &sync.Mutex{}, root: &st}
}

// lock acquires the store mutex unless the caller already holds it through a transaction
func (m *Store) lock() func() {
	if m.inTx {
		return func() {}
	}
	m.mu.Lock()
	return m.mu.Unlock
}

func (m *Store) s() *state { return *m.root }

func (m *Store) Users() repository.UserStore                 { return userStore{m} }
func (m *Store) Conversations() repository.ConversationStore { return conversationStore{m} }
func (m *Store) Messages() repository.MessageStore           { return messageStore{m} }
func (m *Store) Contacts() repository.ContactStore           { return contactStore{m} }
func (m *Store) Calls() repository.CallStore                 { return callStore{m} }

// Transaction serializes fn against every other access and restores the previous state if fn fails
func (m *Store) Transaction(ctx context.Context, fn func(tx repository.Store) error) error {
	if m.inTx {
		return fn(m)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.s().clone()
	if err := fn(&Store{mu: m.mu, root: m.root, inTx: true}); err != nil {
		*m.root = snapshot
		return err
	}
	return nil
}

// userStore

type userStore struct{ m *Store }

func (r userStore) Create(_ context.Context, user *entity.User) error {
	defer r.m.lock()()
	s := r.m.s()
	if _, ok := s.users[user.Id]; ok {
		return repository.ErrDuplicate
	}
	now := entity.NowUnixMilli()
	if user.CreatedAt == 0 {
		user.CreatedAt = now
	}
	user.UpdatedAt = now
	s.users[user.Id] = *user
	return nil
}

func (r userStore) GetById(_ context.Context, id string) (*entity.User, error) {
	defer r.m.lock()()
	u, ok := r.m.s().users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (r userStore) GetByIds(_ context.Context, ids []string) ([]*entity.User, error) {
	defer r.m.lock()()
	var users []*entity.User
	for _, id := range ids {
		if u, ok := r.m.s().users[id]; ok {
			users = append(users, &u)
		}
	}
	return users, nil
}

func (r userStore) UpdatePresence(_ context.Context, userId string, online bool, lastSeenAt *int64, version int64) error {
	defer r.m.lock()()
	s := r.m.s()
	u, ok := s.users[userId]
	if !ok || u.PresenceVersion >= version {
		return nil
	}
	u.IsOnline = online
	u.LastSeenAt = lastSeenAt
	u.PresenceVersion = version
	s.users[userId] = u
	return nil
}

// conversationStore

type conversationStore struct{ m *Store }

func (r conversationStore) Create(_ context.Context, conv *entity.Conversation, participants []*entity.Participant) error {
	defer r.m.lock()()
	s := r.m.s()
	if _, ok := s.conversations[conv.Id]; ok {
		return repository.ErrDuplicate
	}
	if conv.PairKey != nil {
		if _, ok := s.pairKeys[*conv.PairKey]; ok {
			return repository.ErrDuplicate
		}
	}
	if conv.CreatedAt == 0 {
		conv.CreatedAt = entity.NowUnixMilli()
	}
	for _, p := range participants {
		if _, ok := s.participants[pairKey{conv.Id, p.UserId}]; ok {
			return repository.ErrDuplicate
		}
	}

	s.conversations[conv.Id] = *conv
	if conv.PairKey != nil {
		s.pairKeys[*conv.PairKey] = conv.Id
	}
	for _, p := range participants {
		p.Id = s.autoId()
		p.ConversationId = conv.Id
		if p.JoinedAt == 0 {
			p.JoinedAt = conv.CreatedAt
		}
		s.participants[pairKey{conv.Id, p.UserId}] = *p
	}
	return nil
}

func (r conversationStore) GetById(_ context.Context, id string) (*entity.Conversation, error) {
	defer r.m.lock()()
	c, ok := r.m.s().conversations[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (r conversationStore) GetByIds(_ context.Context, ids []string) ([]*entity.Conversation, error) {
	defer r.m.lock()()
	var convs []*entity.Conversation
	for _, id := range ids {
		if c, ok := r.m.s().conversations[id]; ok {
			convs = append(convs, &c)
		}
	}
	sort.SliceStable(convs, func(i, j int) bool { return convs[i].CreatedAt > convs[j].CreatedAt })
	return convs, nil
}

func (r conversationStore) GetByPairKey(_ context.Context, key string) (*entity.Conversation, error) {
	defer r.m.lock()()
	s := r.m.s()
	id, ok := s.pairKeys[key]
	if !ok {
		return nil, nil
	}
	c := s.conversations[id]
	return &c, nil
}

func (r conversationStore) GetParticipant(_ context.Context, conversationId, userId string) (*entity.Participant, error) {
	defer r.m.lock()()
	p, ok := r.m.s().participants[pairKey{conversationId, userId}]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (r conversationStore) ListParticipants(_ context.Context, conversationIds []string) ([]*entity.Participant, error) {
	defer r.m.lock()()
	wanted := make(map[string]struct{}, len(conversationIds))
	for _, id := range conversationIds {
		wanted[id] = struct{}{}
	}
	var out []*entity.Participant
	for k, p := range r.m.s().participants {
		if _, ok := wanted[k.a]; ok {
			out = append(out, &p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].JoinedAt != out[j].JoinedAt {
			return out[i].JoinedAt < out[j].JoinedAt
		}
		return out[i].Id < out[j].Id
	})
	return out, nil
}

func (r conversationStore) ListConversationIds(_ context.Context, userId string) ([]string, error) {
	defer r.m.lock()()
	var ids []string
	for k := range r.m.s().participants {
		if k.b == userId {
			ids = append(ids, k.a)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// messageStore

type messageStore struct{ m *Store }

func (r messageStore) Create(_ context.Context, msg *entity.Message) error {
	defer r.m.lock()()
	s := r.m.s()
	if _, ok := s.messages[msg.Id]; ok {
		return repository.ErrDuplicate
	}
	if msg.CreatedAt == 0 {
		msg.CreatedAt = entity.NowUnixMilli()
	}
	msg.UpdatedAt = msg.CreatedAt
	s.messages[msg.Id] = cloneMessage(*msg)
	return nil
}

func (r messageStore) GetById(_ context.Context, id string) (*entity.Message, error) {
	defer r.m.lock()()
	msg, ok := r.m.s().messages[id]
	if !ok {
		return nil, nil
	}
	msg = cloneMessage(msg)
	return &msg, nil
}

func (r messageStore) GetForParticipant(_ context.Context, userId, messageId string) (*entity.Message, error) {
	defer r.m.lock()()
	s := r.m.s()
	msg, ok := s.messages[messageId]
	if !ok {
		return nil, nil
	}
	if _, ok := s.participants[pairKey{msg.ConversationId, userId}]; !ok {
		return nil, nil
	}
	msg = cloneMessage(msg)
	return &msg, nil
}

func (r messageStore) ListForViewer(_ context.Context, viewerId, conversationId string) ([]*entity.ViewerMessage, error) {
	defer r.m.lock()()
	s := r.m.s()
	var out []*entity.ViewerMessage
	for _, msg := range s.messages {
		if msg.ConversationId != conversationId {
			continue
		}
		_, deleted := s.deletions[pairKey{msg.Id, viewerId}]
		out = append(out, &entity.ViewerMessage{Message: cloneMessage(msg), DeletedForMe: deleted})
	}
	sortMessages(out)
	return out, nil
}

func (r messageStore) ListUnreadIds(_ context.Context, readerId, conversationId string) ([]string, error) {
	defer r.m.lock()()
	s := r.m.s()
	var unread []*entity.ViewerMessage
	for _, msg := range s.messages {
		if msg.ConversationId != conversationId || msg.SenderId == readerId {
			continue
		}
		if _, ok := s.receipts[pairKey{msg.Id, readerId}]; ok {
			continue
		}
		unread = append(unread, &entity.ViewerMessage{Message: msg})
	}
	sortMessages(unread)
	ids := make([]string, 0, len(unread))
	for _, m := range unread {
		ids = append(ids, m.Id)
	}
	return ids, nil
}

func (r messageStore) CreateReceipts(_ context.Context, receipts []*entity.MessageReceipt) (int64, error) {
	defer r.m.lock()()
	s := r.m.s()
	var inserted int64
	for _, rc := range receipts {
		key := pairKey{rc.MessageId, rc.UserId}
		if _, ok := s.receipts[key]; ok {
			continue
		}
		rc.Id = s.autoId()
		s.receipts[key] = *rc
		inserted++
	}
	return inserted, nil
}

func (r messageStore) CountUnread(_ context.Context, readerId string, conversationIds []string) (map[string]int64, error) {
	defer r.m.lock()()
	s := r.m.s()
	counts := make(map[string]int64, len(conversationIds))
	wanted := make(map[string]struct{}, len(conversationIds))
	for _, id := range conversationIds {
		wanted[id] = struct{}{}
	}
	for _, msg := range s.messages {
		if _, ok := wanted[msg.ConversationId]; !ok || msg.SenderId == readerId {
			continue
		}
		if _, ok := s.receipts[pairKey{msg.Id, readerId}]; ok {
			continue
		}
		counts[msg.ConversationId]++
	}
	return counts, nil
}

func (r messageStore) MarkDeletedForAll(_ context.Context, senderId, messageId string, now int64) (bool, error) {
	defer r.m.lock()()
	s := r.m.s()
	msg, ok := s.messages[messageId]
	if !ok || msg.SenderId != senderId || msg.DeletedForAll {
		return false, nil
	}
	msg.MarkDeletedForAll(now)
	s.messages[messageId] = msg
	return true, nil
}

func (r messageStore) UpsertDeletion(_ context.Context, deletion *entity.MessageDeletion) error {
	defer r.m.lock()()
	s := r.m.s()
	key := pairKey{deletion.MessageId, deletion.UserId}
	if _, ok := s.deletions[key]; ok {
		return nil
	}
	if deletion.CreatedAt == 0 {
		deletion.CreatedAt = entity.NowUnixMilli()
	}
	deletion.Id = s.autoId()
	s.deletions[key] = *deletion
	return nil
}

func (r messageStore) GetCallAnchor(_ context.Context, callId string) (*entity.Message, error) {
	defer r.m.lock()()
	for _, msg := range r.m.s().messages {
		if msg.Type == entity.MessageTypeSystem && msg.CallId != nil && *msg.CallId == callId {
			msg = cloneMessage(msg)
			return &msg, nil
		}
	}
	return nil, nil
}

func (r messageStore) UpdateCallAnchor(_ context.Context, messageId, content string, meta *entity.CallMeta, now int64) error {
	defer r.m.lock()()
	s := r.m.s()
	msg, ok := s.messages[messageId]
	if !ok || msg.DeletedForAll {
		return nil
	}
	msg.Content = content
	if meta != nil {
		cp := *meta
		msg.CallMeta = &cp
	} else {
		msg.CallMeta = nil
	}
	msg.UpdatedAt = now
	s.messages[messageId] = msg
	return nil
}

func cloneMessage(msg entity.Message) entity.Message {
	if msg.Attachment != nil {
		a := *msg.Attachment
		msg.Attachment = &a
	}
	if msg.CallMeta != nil {
		cm := *msg.CallMeta
		msg.CallMeta = &cm
	}
	return msg
}

func sortMessages(msgs []*entity.ViewerMessage) {
	sort.Slice(msgs, func(i, j int) bool {
		if msgs[i].CreatedAt != msgs[j].CreatedAt {
			return msgs[i].CreatedAt < msgs[j].CreatedAt
		}
		return msgs[i].Id < msgs[j].Id
	})
}

// contactStore

type contactStore struct{ m *Store }

func (r contactStore) Create(_ context.Context, contact *entity.Contact) error {
	defer r.m.lock()()
	s := r.m.s()
	key := pairKey{contact.OwnerId, contact.FriendId}
	if _, ok := s.contacts[key]; ok {
		return repository.ErrDuplicate
	}
	if contact.CreatedAt == 0 {
		contact.CreatedAt = entity.NowUnixMilli()
	}
	contact.Id = s.autoId()
	s.contacts[key] = *contact
	return nil
}

func (r contactStore) CreateIgnoreDuplicates(_ context.Context, contacts []*entity.Contact) (int64, error) {
	defer r.m.lock()()
	s := r.m.s()
	now := entity.NowUnixMilli()
	var inserted int64
	for _, c := range contacts {
		key := pairKey{c.OwnerId, c.FriendId}
		if _, ok := s.contacts[key]; ok {
			continue
		}
		if c.CreatedAt == 0 {
			c.CreatedAt = now
		}
		c.Id = s.autoId()
		s.contacts[key] = *c
		inserted++
	}
	return inserted, nil
}

func (r contactStore) ListOwnersHavingFriend(_ context.Context, ownerIds []string, friendId string) ([]string, error) {
	defer r.m.lock()()
	var owners []string
	for _, owner := range ownerIds {
		if _, ok := r.m.s().contacts[pairKey{owner, friendId}]; ok {
			owners = append(owners, owner)
		}
	}
	return owners, nil
}

func (r contactStore) Exists(_ context.Context, ownerId, friendId string) (bool, error) {
	defer r.m.lock()()
	_, ok := r.m.s().contacts[pairKey{ownerId, friendId}]
	return ok, nil
}

func (r contactStore) ListByOwner(_ context.Context, ownerId string) ([]*entity.Contact, error) {
	defer r.m.lock()()
	var out []*entity.Contact
	for k, c := range r.m.s().contacts {
		if k.a == ownerId {
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Id > out[j].Id })
	return out, nil
}

// callStore

type callStore struct{ m *Store }

func (r callStore) Create(_ context.Context, call *entity.Call) error {
	defer r.m.lock()()
	s := r.m.s()
	if _, ok := s.calls[call.Id]; ok {
		return repository.ErrDuplicate
	}
	if call.CreatedAt == 0 {
		call.CreatedAt = entity.NowUnixMilli()
	}
	s.calls[call.Id] = *call
	return nil
}

func (r callStore) GetById(_ context.Context, id string) (*entity.Call, error) {
	defer r.m.lock()()
	c, ok := r.m.s().calls[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (r callStore) Transition(_ context.Context, callId string, to entity.CallStatus, startedAt, endedAt *int64) (bool, error) {
	defer r.m.lock()()
	s := r.m.s()
	c, ok := s.calls[callId]
	if !ok || !c.Status.CanTransition(to) {
		return false, nil
	}
	c.Status = to
	if startedAt != nil {
		c.StartedAt = entity.Int64Ptr(*startedAt)
	}
	if endedAt != nil {
		c.EndedAt = entity.Int64Ptr(*endedAt)
	}
	s.calls[callId] = c
	return true, nil
}

func (r callStore) AddParticipant(_ context.Context, p *entity.CallParticipant) error {
	defer r.m.lock()()
	s := r.m.s()
	key := pairKey{p.CallId, p.UserId}
	if existing, ok := s.callMembers[key]; ok {
		existing.JoinedAt = p.JoinedAt
		existing.LeftAt = nil
		s.callMembers[key] = existing
		return nil
	}
	p.Id = s.autoId()
	s.callMembers[key] = *p
	return nil
}

func (r callStore) MarkParticipantLeft(_ context.Context, callId, userId string, now int64) error {
	defer r.m.lock()()
	s := r.m.s()
	key := pairKey{callId, userId}
	p, ok := s.callMembers[key]
	if !ok || p.LeftAt != nil {
		return nil
	}
	p.LeftAt = entity.Int64Ptr(now)
	s.callMembers[key] = p
	return nil
}

// CallParticipants returns the participants of a call, used by tests
func (m *Store) CallParticipants(callId string) []entity.CallParticipant {
	defer m.lock()()
	var out []entity.CallParticipant
	for k, p := range m.s().callMembers {
		if k.a == callId {
			out = append(out, p)
		}
	}
	return out
}
