package service

import (
	"context"
	"errors"

	"github.com/mbeoliero/kit/log"
	"github.com/samber/lo"

	"github.com/mbeoliero/parley/internal/entity"
	"github.com/mbeoliero/parley/internal/repository"
	"github.com/mbeoliero/parley/pkg/errcode"
)

// PresenceReader exposes the live presence of tracked identities
type PresenceReader interface {
	// Lookup returns the live presence and whether it is known to the gateway
	Lookup(ctx context.Context, userId string) (entity.Presence, bool)
}

// ContactService handles address-book operations
type ContactService struct {
	store    repository.Store
	presence PresenceReader
}

// NewContactService creates a new ContactService
func NewContactService(store repository.Store) *ContactService {
	return &ContactService{store: store}
}

// SetPresenceReader sets the live presence source
func (s *ContactService) SetPresenceReader(presence PresenceReader) {
	s.presence = presence
}

// AddContact adds friendId to ownerId's address book
func (s *ContactService) AddContact(ctx context.Context, ownerId, friendId string) (*entity.ContactInfo, error) {
	if friendId == "" {
		return nil, errcode.ErrInvalidParam
	}
	if friendId == ownerId {
		return nil, errcode.ErrSelfTarget
	}

	friend, err := s.store.Users().GetById(ctx, friendId)
	if err != nil {
		return nil, storageErr(ctx, "get user", err, errcode.ErrInternalServer)
	}
	if friend == nil {
		return nil, errcode.ErrUserNotFound
	}

	contact := &entity.Contact{OwnerId: ownerId, FriendId: friendId, CreatedAt: entity.NowUnixMilli()}
	if err := s.store.Contacts().Create(ctx, contact); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, errcode.ErrContactExists
		}
		return nil, storageErr(ctx, "create contact", err, errcode.ErrInternalServer)
	}

	log.CtxInfo(ctx, "contact added: owner_id=%s, friend_id=%s", ownerId, friendId)
	return s.toInfo(ctx, contact, friend), nil
}

// ListContacts returns the owner's contacts with their presence
func (s *ContactService) ListContacts(ctx context.Context, ownerId string) ([]*entity.ContactInfo, error) {
	contacts, err := s.store.Contacts().ListByOwner(ctx, ownerId)
	if err != nil {
		return nil, storageErr(ctx, "list contacts", err, errcode.ErrInternalServer)
	}

	friendIds := lo.Map(contacts, func(c *entity.Contact, _ int) string { return c.FriendId })
	friends, err := s.store.Users().GetByIds(ctx, friendIds)
	if err != nil {
		return nil, storageErr(ctx, "get friends", err, errcode.ErrInternalServer)
	}
	byId := lo.KeyBy(friends, func(u *entity.User) string { return u.Id })

	result := make([]*entity.ContactInfo, 0, len(contacts))
	for _, c := range contacts {
		friend, ok := byId[c.FriendId]
		if !ok {
			friend = &entity.User{Id: c.FriendId}
		}
		result = append(result, s.toInfo(ctx, c, friend))
	}
	return result, nil
}

func (s *ContactService) toInfo(ctx context.Context, c *entity.Contact, friend *entity.User) *entity.ContactInfo {
	return &entity.ContactInfo{
		Id:        c.Id,
		Friend:    friend.ToSummary(),
		Presence:  resolvePresence(ctx, s.presence, friend),
		CreatedAt: c.CreatedAt,
	}
}

// resolvePresence prefers the live view and falls back to the durable record
func resolvePresence(ctx context.Context, presence PresenceReader, user *entity.User) *entity.Presence {
	if presence != nil {
		if p, ok := presence.Lookup(ctx, user.Id); ok {
			return &p
		}
	}
	return &entity.Presence{UserId: user.Id, Online: user.IsOnline, LastSeenAt: user.LastSeenAt}
}
