package repository

import (
	"context"

	"github.com/mbeoliero/parley/internal/entity"
)

// Store is the durable storage collaborator used by the services.
// Lookups return (nil, nil) when the row does not exist.
type Store interface {
	Users() UserStore
	Conversations() ConversationStore
	Messages() MessageStore
	Contacts() ContactStore
	Calls() CallStore

	// Transaction runs fn atomically; any error returned by fn rolls back every write made through tx
	Transaction(ctx context.Context, fn func(tx Store) error) error
}

// UserStore persists users and their last known presence
type UserStore interface {
	Create(ctx context.Context, user *entity.User) error
	GetById(ctx context.Context, id string) (*entity.User, error)
	GetByIds(ctx context.Context, ids []string) ([]*entity.User, error)
	// UpdatePresence applies the write only if version is newer than the stored one
	UpdatePresence(ctx context.Context, userId string, online bool, lastSeenAt *int64, version int64) error
}

// ConversationStore persists conversations and their participants
type ConversationStore interface {
	// Create inserts the conversation and its participants, ErrDuplicate when the pair key is taken
	Create(ctx context.Context, conv *entity.Conversation, participants []*entity.Participant) error
	GetById(ctx context.Context, id string) (*entity.Conversation, error)
	GetByIds(ctx context.Context, ids []string) ([]*entity.Conversation, error)
	GetByPairKey(ctx context.Context, pairKey string) (*entity.Conversation, error)
	GetParticipant(ctx context.Context, conversationId, userId string) (*entity.Participant, error)
	// ListParticipants returns participants ordered by join time
	ListParticipants(ctx context.Context, conversationIds []string) ([]*entity.Participant, error)
	ListConversationIds(ctx context.Context, userId string) ([]string, error)
}

// MessageStore persists messages, receipts and personal deletions
type MessageStore interface {
	Create(ctx context.Context, msg *entity.Message) error
	GetById(ctx context.Context, id string) (*entity.Message, error)
	// GetForParticipant returns the message only when userId participates in its conversation
	GetForParticipant(ctx context.Context, userId, messageId string) (*entity.Message, error)
	// ListForViewer returns a conversation's messages ordered by creation time with viewerId's deletion state
	ListForViewer(ctx context.Context, viewerId, conversationId string) ([]*entity.ViewerMessage, error)
	// ListUnreadIds returns ids of messages not authored by readerId and without a receipt from readerId
	ListUnreadIds(ctx context.Context, readerId, conversationId string) ([]string, error)
	// CreateReceipts inserts receipts, silently skipping existing ones, and reports how many were inserted
	CreateReceipts(ctx context.Context, receipts []*entity.MessageReceipt) (int64, error)
	// CountUnread counts, per conversation, messages not authored by readerId and without a receipt from readerId.
	// Personal deletions do not affect the count, matching ListUnreadIds.
	CountUnread(ctx context.Context, readerId string, conversationIds []string) (map[string]int64, error)
	// MarkDeletedForAll rewrites the message if senderId authored it and it is not deleted yet, reporting whether it changed
	MarkDeletedForAll(ctx context.Context, senderId, messageId string, now int64) (bool, error)
	UpsertDeletion(ctx context.Context, deletion *entity.MessageDeletion) error
	GetCallAnchor(ctx context.Context, callId string) (*entity.Message, error)
	UpdateCallAnchor(ctx context.Context, messageId, content string, meta *entity.CallMeta, now int64) error
}

// ContactStore persists address-book entries
type ContactStore interface {
	// Create inserts one contact, ErrDuplicate when it already exists
	Create(ctx context.Context, contact *entity.Contact) error
	// CreateIgnoreDuplicates inserts contacts, skipping existing (owner, friend) pairs
	CreateIgnoreDuplicates(ctx context.Context, contacts []*entity.Contact) (int64, error)
	// ListOwnersHavingFriend returns which of ownerIds already have friendId as a contact
	ListOwnersHavingFriend(ctx context.Context, ownerIds []string, friendId string) ([]string, error)
	Exists(ctx context.Context, ownerId, friendId string) (bool, error)
	ListByOwner(ctx context.Context, ownerId string) ([]*entity.Contact, error)
}

// CallStore persists calls and call participants
type CallStore interface {
	Create(ctx context.Context, call *entity.Call) error
	GetById(ctx context.Context, id string) (*entity.Call, error)
	// Transition moves the call to `to` only from one of its valid source states, reporting whether it applied
	Transition(ctx context.Context, callId string, to entity.CallStatus, startedAt, endedAt *int64) (bool, error)
	// AddParticipant inserts or rejoins a participant
	AddParticipant(ctx context.Context, p *entity.CallParticipant) error
	MarkParticipantLeft(ctx context.Context, callId, userId string, now int64) error
}
