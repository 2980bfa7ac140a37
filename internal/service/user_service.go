package service

import (
	"context"

	"github.com/mbeoliero/kit/log"

	"github.com/mbeoliero/parley/internal/entity"
	"github.com/mbeoliero/parley/internal/repository"
	"github.com/mbeoliero/parley/pkg/errcode"
)

// UserService handles user-related lookups
type UserService struct {
	userStore repository.UserStore
	presence  PresenceReader
}

// NewUserService creates a new UserService
func NewUserService(userStore repository.UserStore) *UserService {
	return &UserService{
		userStore: userStore,
	}
}

// SetPresenceReader sets the live presence source
func (s *UserService) SetPresenceReader(presence PresenceReader) {
	s.presence = presence
}

// GetPresence returns whether userId is online and when it was last seen
func (s *UserService) GetPresence(ctx context.Context, userId string) (*entity.Presence, error) {
	if userId == "" {
		return nil, errcode.ErrInvalidParam
	}

	user, err := s.userStore.GetById(ctx, userId)
	if err != nil {
		log.CtxError(ctx, "get user failed: user_id=%s, error=%v", userId, err)
		return nil, errcode.ErrInternalServer
	}
	if user == nil {
		// identities that connected without a profile row are still tracked live
		if s.presence != nil {
			if p, ok := s.presence.Lookup(ctx, userId); ok {
				return &p, nil
			}
		}
		return nil, errcode.ErrUserNotFound
	}
	return resolvePresence(ctx, s.presence, user), nil
}
