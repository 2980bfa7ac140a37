package service

import (
	"context"
	"errors"
	"strings"

	"github.com/mbeoliero/kit/log"
	"github.com/samber/lo"

	"github.com/mbeoliero/parley/internal/entity"
	"github.com/mbeoliero/parley/internal/repository"
	"github.com/mbeoliero/parley/pkg/constant"
	"github.com/mbeoliero/parley/pkg/errcode"
	"github.com/mbeoliero/parley/pkg/idgen"
)

// ConversationService handles conversation-related business logic
type ConversationService struct {
	store  repository.Store
	pusher Pusher
}

// NewConversationService creates a new ConversationService
func NewConversationService(store repository.Store) *ConversationService {
	return &ConversationService{store: store, pusher: noopPusher{}}
}

// SetPusher sets the event pusher
func (s *ConversationService) SetPusher(pusher Pusher) {
	if pusher != nil {
		s.pusher = pusher
	}
}

// StartConversation returns the one-to-one conversation with friendId, creating it on first use.
// friendId must already be a contact of userId.
func (s *ConversationService) StartConversation(ctx context.Context, userId, friendId string) (*entity.ConversationInfo, error) {
	if friendId == "" {
		return nil, errcode.ErrInvalidParam
	}
	if friendId == userId {
		return nil, errcode.ErrSelfTarget
	}

	isContact, err := s.store.Contacts().Exists(ctx, userId, friendId)
	if err != nil {
		return nil, storageErr(ctx, "check contact", err, errcode.ErrInternalServer)
	}
	if !isContact {
		return nil, errcode.ErrNotContact
	}

	pairKey := entity.GenPairKey(userId, friendId)
	conv, err := s.store.Conversations().GetByPairKey(ctx, pairKey)
	if err != nil {
		return nil, storageErr(ctx, "get conversation by pair", err, errcode.ErrInternalServer)
	}
	if conv != nil {
		return s.buildInfo(ctx, conv)
	}

	id, err := idgen.NextID()
	if err != nil {
		log.CtxError(ctx, "generate conversation id failed: %v", err)
		return nil, errcode.ErrCreateConvFailed
	}
	now := entity.NowUnixMilli()
	conv = &entity.Conversation{Id: id, IsGroup: false, PairKey: &pairKey, CreatedAt: now}
	participants := []*entity.Participant{
		{UserId: userId, Role: constant.RoleMember, JoinedAt: now},
		{UserId: friendId, Role: constant.RoleMember, JoinedAt: now},
	}

	if err := s.store.Conversations().Create(ctx, conv, participants); err != nil {
		if !errors.Is(err, repository.ErrDuplicate) {
			return nil, storageErr(ctx, "create conversation", err, errcode.ErrCreateConvFailed)
		}
		// lost the race to a concurrent start, use the winner
		conv, err = s.store.Conversations().GetByPairKey(ctx, pairKey)
		if err != nil {
			return nil, storageErr(ctx, "get conversation by pair", err, errcode.ErrInternalServer)
		}
		if conv == nil {
			return nil, errcode.ErrCreateConvFailed
		}
		return s.buildInfo(ctx, conv)
	}

	s.pusher.JoinUsersToRoom(ctx, conv.Id, []string{userId, friendId})
	log.CtxInfo(ctx, "conversation created: conversation_id=%s, user_id=%s, friend_id=%s", conv.Id, userId, friendId)
	return conv.ToConversationInfo(participants), nil
}

// CreateGroupRequest represents create group request
type CreateGroupRequest struct {
	Name      string   `json:"name"`
	MemberIds []string `json:"member_ids"`
}

// CreateGroup creates a group owned by ownerId; every member must be one of the owner's contacts
func (s *ConversationService) CreateGroup(ctx context.Context, ownerId string, req *CreateGroupRequest) (*entity.ConversationInfo, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, errcode.ErrInvalidParam
	}
	memberIds := lo.Uniq(lo.Without(req.MemberIds, ownerId, ""))
	if len(memberIds) == 0 {
		return nil, errcode.ErrGroupTooSmall
	}

	contacts, err := s.store.Contacts().ListByOwner(ctx, ownerId)
	if err != nil {
		return nil, storageErr(ctx, "list contacts", err, errcode.ErrInternalServer)
	}
	friendIds := lo.Map(contacts, func(c *entity.Contact, _ int) string { return c.FriendId })
	if !lo.Every(friendIds, memberIds) {
		return nil, errcode.ErrNotContact
	}

	id, err := idgen.NextID()
	if err != nil {
		log.CtxError(ctx, "generate conversation id failed: %v", err)
		return nil, errcode.ErrCreateConvFailed
	}
	now := entity.NowUnixMilli()
	conv := &entity.Conversation{Id: id, IsGroup: true, Name: &name, CreatedAt: now}

	participants := make([]*entity.Participant, 0, len(memberIds)+1)
	participants = append(participants, &entity.Participant{UserId: ownerId, Role: constant.RoleAdmin, JoinedAt: now})
	for _, memberId := range memberIds {
		participants = append(participants, &entity.Participant{UserId: memberId, Role: constant.RoleMember, JoinedAt: now})
	}

	if err := s.store.Conversations().Create(ctx, conv, participants); err != nil {
		return nil, storageErr(ctx, "create group", err, errcode.ErrCreateConvFailed)
	}

	s.pusher.JoinUsersToRoom(ctx, conv.Id, append([]string{ownerId}, memberIds...))
	log.CtxInfo(ctx, "group created: conversation_id=%s, owner_id=%s, members=%d", conv.Id, ownerId, len(memberIds))
	return conv.ToConversationInfo(participants), nil
}

// ListConversations returns every conversation of userId with participants and live unread counts
func (s *ConversationService) ListConversations(ctx context.Context, userId string) ([]*entity.ConversationInfo, error) {
	ids, err := s.store.Conversations().ListConversationIds(ctx, userId)
	if err != nil {
		return nil, storageErr(ctx, "list conversation ids", err, errcode.ErrInternalServer)
	}
	if len(ids) == 0 {
		return []*entity.ConversationInfo{}, nil
	}

	convs, err := s.store.Conversations().GetByIds(ctx, ids)
	if err != nil {
		return nil, storageErr(ctx, "get conversations", err, errcode.ErrInternalServer)
	}
	participants, err := s.store.Conversations().ListParticipants(ctx, ids)
	if err != nil {
		return nil, storageErr(ctx, "list participants", err, errcode.ErrInternalServer)
	}
	counts, err := s.store.Messages().CountUnread(ctx, userId, ids)
	if err != nil {
		return nil, storageErr(ctx, "count unread", err, errcode.ErrInternalServer)
	}

	byConv := lo.GroupBy(participants, func(p *entity.Participant) string { return p.ConversationId })
	return lo.Map(convs, func(c *entity.Conversation, _ int) *entity.ConversationInfo {
		info := c.ToConversationInfo(byConv[c.Id])
		info.UnreadCount = counts[c.Id]
		return info
	}), nil
}

func (s *ConversationService) buildInfo(ctx context.Context, conv *entity.Conversation) (*entity.ConversationInfo, error) {
	participants, err := s.store.Conversations().ListParticipants(ctx, []string{conv.Id})
	if err != nil {
		return nil, storageErr(ctx, "list participants", err, errcode.ErrInternalServer)
	}
	return conv.ToConversationInfo(participants), nil
}
