package service

import (
	"context"

	"github.com/mbeoliero/kit/log"
	"github.com/samber/lo"

	"github.com/mbeoliero/parley/internal/config"
	"github.com/mbeoliero/parley/internal/entity"
	"github.com/mbeoliero/parley/internal/repository"
	"github.com/mbeoliero/parley/pkg/constant"
	"github.com/mbeoliero/parley/pkg/errcode"
	"github.com/mbeoliero/parley/pkg/idgen"
)

// MessageService handles message-related business logic
type MessageService struct {
	store   repository.Store
	retrier *Retrier
	pusher  Pusher
}

// NewMessageService creates a new MessageService
func NewMessageService(store repository.Store, cfg *config.ChatConfig) *MessageService {
	return &MessageService{
		store:   store,
		retrier: NewRetrier(cfg),
		pusher:  noopPusher{},
	}
}

// SetPusher sets the event pusher
func (s *MessageService) SetPusher(pusher Pusher) {
	if pusher != nil {
		s.pusher = pusher
	}
}

// SendMessageRequest represents send message request
type SendMessageRequest struct {
	ConversationId string             `json:"conversation_id"`
	Content        string             `json:"content"`
	Attachment     *entity.Attachment `json:"attachment,omitempty"`
	ReplyToId      *string            `json:"reply_to_id,omitempty"`
}

// SendMessage stores a message and fans it out to the conversation.
// Empty content is accepted; the message type follows the attachment.
func (s *MessageService) SendMessage(ctx context.Context, senderId string, req *SendMessageRequest) (*entity.MessageInfo, error) {
	if req.ConversationId == "" {
		return nil, errcode.ErrInvalidParam
	}

	participants, err := s.requireParticipant(ctx, senderId, req.ConversationId)
	if err != nil {
		return nil, err
	}
	receiverIds := lo.FilterMap(participants, func(p *entity.Participant, _ int) (string, bool) {
		return p.UserId, p.UserId != senderId
	})

	if req.ReplyToId != nil && *req.ReplyToId != "" {
		target, err := s.store.Messages().GetById(ctx, *req.ReplyToId)
		if err != nil {
			return nil, storageErr(ctx, "get reply target", err, errcode.ErrSendFailed)
		}
		if target == nil || target.ConversationId != req.ConversationId {
			return nil, errcode.ErrMessageNotFound
		}
	} else {
		req.ReplyToId = nil
	}

	id, err := idgen.NextID()
	if err != nil {
		log.CtxError(ctx, "generate message id failed: %v", err)
		return nil, errcode.ErrSendFailed
	}

	msg := &entity.Message{
		Id:             id,
		ConversationId: req.ConversationId,
		SenderId:       senderId,
		Type:           entity.DeriveMessageType(req.Attachment),
		Content:        req.Content,
		Attachment:     req.Attachment,
		ReplyToId:      req.ReplyToId,
		CreatedAt:      entity.NowUnixMilli(),
	}
	if err := s.store.Messages().Create(ctx, msg); err != nil {
		return nil, storageErr(ctx, "create message", err, errcode.ErrSendFailed)
	}
	s.ensureReciprocalContacts(ctx, senderId, receiverIds)

	info := msg.ToMessageInfo(s.senderSummary(ctx, senderId))
	s.pusher.PushToRoomAndUsers(ctx, req.ConversationId, receiverIds, constant.EventNewMessage, info)

	log.CtxInfo(ctx, "message sent: sender_id=%s, conversation_id=%s, message_id=%s", senderId, req.ConversationId, msg.Id)
	return info, nil
}

// ensureReciprocalContacts adds the sender to the address book of every receiver missing it.
// It runs only after the message is stored; failures are logged and never fail the send.
func (s *MessageService) ensureReciprocalContacts(ctx context.Context, senderId string, receiverIds []string) {
	if len(receiverIds) == 0 {
		return
	}

	existing, err := s.store.Contacts().ListOwnersHavingFriend(ctx, receiverIds, senderId)
	if err != nil {
		log.CtxWarn(ctx, "list reciprocal contacts failed: sender_id=%s, error=%v", senderId, err)
		return
	}

	missing := lo.Without(receiverIds, existing...)
	if len(missing) == 0 {
		return
	}

	contacts := lo.Map(missing, func(ownerId string, _ int) *entity.Contact {
		return &entity.Contact{OwnerId: ownerId, FriendId: senderId}
	})
	inserted, err := s.store.Contacts().CreateIgnoreDuplicates(ctx, contacts)
	if err != nil {
		log.CtxWarn(ctx, "create reciprocal contacts failed: sender_id=%s, error=%v", senderId, err)
		return
	}
	log.CtxDebug(ctx, "reciprocal contacts created: sender_id=%s, count=%d", senderId, inserted)
}

// GetMessages returns every message of a conversation oldest first, as seen by userId
func (s *MessageService) GetMessages(ctx context.Context, userId, conversationId string) ([]*entity.MessageInfo, error) {
	if conversationId == "" {
		return nil, errcode.ErrInvalidParam
	}
	if _, err := s.requireParticipant(ctx, userId, conversationId); err != nil {
		return nil, err
	}

	messages, err := s.store.Messages().ListForViewer(ctx, userId, conversationId)
	if err != nil {
		return nil, storageErr(ctx, "list messages", err, errcode.ErrPullFailed)
	}

	senderIds := lo.Uniq(lo.Map(messages, func(m *entity.ViewerMessage, _ int) string { return m.SenderId }))
	senders, err := s.store.Users().GetByIds(ctx, senderIds)
	if err != nil {
		return nil, storageErr(ctx, "get senders", err, errcode.ErrPullFailed)
	}
	byId := lo.KeyBy(senders, func(u *entity.User) string { return u.Id })

	result := make([]*entity.MessageInfo, 0, len(messages))
	for _, m := range messages {
		var sender *entity.UserSummary
		if u, ok := byId[m.SenderId]; ok {
			sender = u.ToSummary()
		}
		result = append(result, m.ToViewerInfo(sender))
	}
	return result, nil
}

// MarkReadResult reports how many receipts a mark-read inserted
type MarkReadResult struct {
	Count int64 `json:"count"`
}

// MarkRead records a receipt for every other-authored message userId has not read yet
func (s *MessageService) MarkRead(ctx context.Context, userId, conversationId string) (*MarkReadResult, error) {
	if conversationId == "" {
		return nil, errcode.ErrInvalidParam
	}
	if _, err := s.requireParticipant(ctx, userId, conversationId); err != nil {
		return nil, err
	}

	var count int64
	err := s.retrier.Do(ctx, func() error {
		ids, err := s.store.Messages().ListUnreadIds(ctx, userId, conversationId)
		if err != nil {
			return err
		}
		now := entity.NowUnixMilli()
		receipts := lo.Map(ids, func(id string, _ int) *entity.MessageReceipt {
			return &entity.MessageReceipt{MessageId: id, UserId: userId, ReadAt: now}
		})
		n, err := s.store.Messages().CreateReceipts(ctx, receipts)
		if err != nil {
			return err
		}
		count += n
		return nil
	})
	if err != nil {
		return nil, storageErr(ctx, "mark read", err, errcode.ErrInternalServer)
	}

	if count > 0 {
		s.pusher.PushToRoom(ctx, conversationId, constant.EventMessagesRead, &MessagesReadEvent{
			ConversationId: conversationId,
			UserId:         userId,
			Count:          count,
		}, "")
	}

	log.CtxDebug(ctx, "messages read: user_id=%s, conversation_id=%s, count=%d", userId, conversationId, count)
	return &MarkReadResult{Count: count}, nil
}

// GetUnreadCounts returns the unread count of every conversation userId participates in
func (s *MessageService) GetUnreadCounts(ctx context.Context, userId string) ([]*entity.UnreadCount, error) {
	convIds, err := s.store.Conversations().ListConversationIds(ctx, userId)
	if err != nil {
		return nil, storageErr(ctx, "list conversation ids", err, errcode.ErrInternalServer)
	}

	counts, err := s.store.Messages().CountUnread(ctx, userId, convIds)
	if err != nil {
		return nil, storageErr(ctx, "count unread", err, errcode.ErrInternalServer)
	}

	return lo.Map(convIds, func(id string, _ int) *entity.UnreadCount {
		return &entity.UnreadCount{ConversationId: id, UnreadCount: counts[id]}
	}), nil
}

// DeleteForEveryone replaces the message content for all participants.
// Repeating it returns the deleted message without another write or broadcast.
func (s *MessageService) DeleteForEveryone(ctx context.Context, userId, messageId string) (*entity.MessageInfo, error) {
	if messageId == "" {
		return nil, errcode.ErrInvalidParam
	}

	msg, err := s.store.Messages().GetById(ctx, messageId)
	if err != nil {
		return nil, storageErr(ctx, "get message", err, errcode.ErrInternalServer)
	}
	if msg == nil {
		return nil, errcode.ErrMessageNotFound
	}
	if msg.SenderId != userId {
		return nil, errcode.ErrNotSender
	}
	if msg.DeletedForAll {
		return msg.ToMessageInfo(s.senderSummary(ctx, userId)), nil
	}

	applied, err := s.store.Messages().MarkDeletedForAll(ctx, userId, messageId, entity.NowUnixMilli())
	if err != nil {
		return nil, storageErr(ctx, "delete message for everyone", err, errcode.ErrInternalServer)
	}

	updated, err := s.store.Messages().GetById(ctx, messageId)
	if err != nil {
		return nil, storageErr(ctx, "get message", err, errcode.ErrInternalServer)
	}
	if updated == nil {
		return nil, errcode.ErrMessageNotFound
	}

	info := updated.ToMessageInfo(s.senderSummary(ctx, userId))
	if applied {
		s.pusher.PushToRoom(ctx, updated.ConversationId, constant.EventMessageUpdated, info, "")
		log.CtxInfo(ctx, "message deleted for everyone: user_id=%s, message_id=%s", userId, messageId)
	}
	return info, nil
}

// DeleteForMe hides the message from userId only. Non-participants get NotFound.
func (s *MessageService) DeleteForMe(ctx context.Context, userId, messageId string) error {
	if messageId == "" {
		return errcode.ErrInvalidParam
	}

	msg, err := s.store.Messages().GetForParticipant(ctx, userId, messageId)
	if err != nil {
		return storageErr(ctx, "get message", err, errcode.ErrInternalServer)
	}
	if msg == nil {
		return errcode.ErrMessageNotFound
	}

	err = s.retrier.Do(ctx, func() error {
		return s.store.Messages().UpsertDeletion(ctx, &entity.MessageDeletion{
			MessageId: messageId,
			UserId:    userId,
			CreatedAt: entity.NowUnixMilli(),
		})
	})
	if err != nil {
		return storageErr(ctx, "delete message for me", err, errcode.ErrInternalServer)
	}
	return nil
}

// requireParticipant checks membership and returns the conversation's participants
func (s *MessageService) requireParticipant(ctx context.Context, userId, conversationId string) ([]*entity.Participant, error) {
	return requireParticipant(ctx, s.store, userId, conversationId)
}

func (s *MessageService) senderSummary(ctx context.Context, userId string) *entity.UserSummary {
	return userSummary(ctx, s.store, userId)
}

func requireParticipant(ctx context.Context, store repository.Store, userId, conversationId string) ([]*entity.Participant, error) {
	participants, err := store.Conversations().ListParticipants(ctx, []string{conversationId})
	if err != nil {
		return nil, storageErr(ctx, "list participants", err, errcode.ErrInternalServer)
	}
	if !lo.ContainsBy(participants, func(p *entity.Participant) bool { return p.UserId == userId }) {
		return nil, errcode.ErrNotParticipant
	}
	return participants, nil
}

func userSummary(ctx context.Context, store repository.Store, userId string) *entity.UserSummary {
	user, err := store.Users().GetById(ctx, userId)
	if err != nil {
		log.CtxWarn(ctx, "get user summary failed: user_id=%s, error=%v", userId, err)
		return nil
	}
	if user == nil {
		return &entity.UserSummary{Id: userId}
	}
	return user.ToSummary()
}
