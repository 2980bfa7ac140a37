package service

import (
	"context"
	"errors"

	"github.com/mbeoliero/kit/log"

	"github.com/mbeoliero/parley/internal/entity"
	"github.com/mbeoliero/parley/internal/repository"
	"github.com/mbeoliero/parley/pkg/constant"
	"github.com/mbeoliero/parley/pkg/errcode"
	"github.com/mbeoliero/parley/pkg/idgen"
)

// CallService drives the call signaling state machine and its anchor message
type CallService struct {
	store  repository.Store
	pusher Pusher
}

// NewCallService creates a new CallService
func NewCallService(store repository.Store) *CallService {
	return &CallService{store: store, pusher: noopPusher{}}
}

// SetPusher sets the event pusher
func (s *CallService) SetPusher(pusher Pusher) {
	if pusher != nil {
		s.pusher = pusher
	}
}

// StartCallRequest represents start call request
type StartCallRequest struct {
	ConversationId string          `json:"conversation_id"`
	CallType       entity.CallType `json:"call_type"`
}

// CallResult is a call together with its anchor message
type CallResult struct {
	Call    *entity.Call        `json:"call"`
	Message *entity.MessageInfo `json:"message,omitempty"`
}

// StartCall creates a ringing call and its SYSTEM anchor message atomically
func (s *CallService) StartCall(ctx context.Context, callerId string, req *StartCallRequest) (*CallResult, error) {
	if req.ConversationId == "" || !req.CallType.Valid() {
		return nil, errcode.ErrInvalidParam
	}
	if _, err := requireParticipant(ctx, s.store, callerId, req.ConversationId); err != nil {
		return nil, err
	}

	callId, err := idgen.NextID()
	if err != nil {
		log.CtxError(ctx, "generate call id failed: %v", err)
		return nil, errcode.ErrInternalServer
	}
	msgId, err := idgen.NextID()
	if err != nil {
		log.CtxError(ctx, "generate message id failed: %v", err)
		return nil, errcode.ErrInternalServer
	}

	now := entity.NowUnixMilli()
	call := &entity.Call{
		Id:             callId,
		ConversationId: req.ConversationId,
		CallerId:       callerId,
		Type:           req.CallType,
		Status:         entity.CallStatusRinging,
		CreatedAt:      now,
	}
	anchor := &entity.Message{
		Id:             msgId,
		ConversationId: req.ConversationId,
		SenderId:       callerId,
		Type:           entity.MessageTypeSystem,
		Content:        entity.CallText(call.Type, call.Status),
		CallId:         &callId,
		CallMeta: &entity.CallMeta{
			CallId:   callId,
			CallType: call.Type,
			Status:   call.Status,
		},
		CreatedAt: now,
	}

	err = s.store.Transaction(ctx, func(tx repository.Store) error {
		if err := tx.Calls().Create(ctx, call); err != nil {
			return err
		}
		if err := tx.Calls().AddParticipant(ctx, &entity.CallParticipant{CallId: callId, UserId: callerId, JoinedAt: now}); err != nil {
			return err
		}
		return tx.Messages().Create(ctx, anchor)
	})
	if err != nil {
		return nil, storageErr(ctx, "start call", err, errcode.ErrInternalServer)
	}

	info := anchor.ToMessageInfo(userSummary(ctx, s.store, callerId))
	s.pusher.JoinUsersToRoom(ctx, constant.CallChannel(callId), []string{callerId})
	s.pusher.PushToRoom(ctx, req.ConversationId, constant.EventNewMessage, info, "")
	s.pusher.PushToRoom(ctx, req.ConversationId, constant.EventCallRing, &CallRingEvent{
		CallId:         callId,
		MessageId:      anchor.Id,
		ConversationId: req.ConversationId,
		From:           callerId,
		CallType:       string(call.Type),
	}, "")

	log.CtxInfo(ctx, "call started: call_id=%s, caller_id=%s, conversation_id=%s, type=%s", callId, callerId, req.ConversationId, call.Type)
	return &CallResult{Call: call, Message: info}, nil
}

// AcceptCall moves a ringing call to ONGOING and joins the accepter to it
func (s *CallService) AcceptCall(ctx context.Context, userId, callId string) (*CallResult, error) {
	res, err := s.transition(ctx, userId, callId, entity.CallStatusOngoing, func(tx repository.Store, now int64) error {
		return tx.Calls().AddParticipant(ctx, &entity.CallParticipant{CallId: callId, UserId: userId, JoinedAt: now})
	})
	if err != nil {
		return nil, err
	}
	s.pusher.JoinUsersToRoom(ctx, constant.CallChannel(callId), []string{userId})
	s.publish(ctx, res, constant.EventCallAccepted, &CallSignalEvent{CallId: callId, UserId: userId})
	return res, nil
}

// RejectCall moves the call to REJECTED
func (s *CallService) RejectCall(ctx context.Context, userId, callId string) (*CallResult, error) {
	res, err := s.transition(ctx, userId, callId, entity.CallStatusRejected, nil)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, res, constant.EventCallRejected, &CallSignalEvent{CallId: callId, UserId: userId})
	return res, nil
}

// EndCall marks the actor as left and moves the call to ENDED, also from RINGING
func (s *CallService) EndCall(ctx context.Context, userId, callId string) (*CallResult, error) {
	res, err := s.transition(ctx, userId, callId, entity.CallStatusEnded, func(tx repository.Store, now int64) error {
		return tx.Calls().MarkParticipantLeft(ctx, callId, userId, now)
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, res, constant.EventCallEnded, &CallSignalEvent{CallId: callId, EndedBy: userId})
	return res, nil
}

// MissCall moves a ringing call to MISSED
func (s *CallService) MissCall(ctx context.Context, userId, callId string) (*CallResult, error) {
	res, err := s.transition(ctx, userId, callId, entity.CallStatusMissed, nil)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, res, constant.EventCallMissed, &CallSignalEvent{CallId: callId})
	return res, nil
}

// transition applies one state machine edge, its side effect and the anchor rewrite in a transaction.
// Invalid edges return ErrInvalidTransition and leave every row untouched.
func (s *CallService) transition(ctx context.Context, userId, callId string, to entity.CallStatus, sideEffect func(tx repository.Store, now int64) error) (*CallResult, error) {
	if callId == "" {
		return nil, errcode.ErrInvalidParam
	}

	var (
		call   *entity.Call
		anchor *entity.Message
	)
	now := entity.NowUnixMilli()

	err := s.store.Transaction(ctx, func(tx repository.Store) error {
		var err error
		call, err = tx.Calls().GetById(ctx, callId)
		if err != nil {
			return err
		}
		if call == nil {
			return errcode.ErrCallNotFound
		}
		if _, err := requireParticipant(ctx, tx, userId, call.ConversationId); err != nil {
			return err
		}
		if !call.Status.CanTransition(to) {
			return errcode.ErrInvalidTransition
		}

		var startedAt, endedAt *int64
		if to == entity.CallStatusOngoing {
			startedAt = entity.Int64Ptr(now)
		} else {
			endedAt = entity.Int64Ptr(now)
		}
		applied, err := tx.Calls().Transition(ctx, callId, to, startedAt, endedAt)
		if err != nil {
			return err
		}
		if !applied {
			return errcode.ErrInvalidTransition
		}
		call.Status = to
		if startedAt != nil {
			call.StartedAt = startedAt
		}
		if endedAt != nil {
			call.EndedAt = endedAt
		}

		if sideEffect != nil {
			if err := sideEffect(tx, now); err != nil {
				return err
			}
		}

		anchor, err = s.rewriteAnchor(ctx, tx, call, userId, now)
		return err
	})
	if err != nil {
		if errors.Is(err, errcode.ErrInvalidTransition) {
			status := entity.CallStatus("")
			if call != nil {
				status = call.Status
			}
			log.CtxWarn(ctx, "ignored call transition: call_id=%s, user_id=%s, from=%s, to=%s", callId, userId, status, to)
			return nil, errcode.ErrInvalidTransition
		}
		return nil, storageErr(ctx, "call transition", err, errcode.ErrInternalServer)
	}

	res := &CallResult{Call: call}
	if anchor != nil {
		res.Message = anchor.ToMessageInfo(userSummary(ctx, s.store, anchor.SenderId))
	}
	log.CtxInfo(ctx, "call transitioned: call_id=%s, user_id=%s, status=%s", callId, userId, to)
	return res, nil
}

// rewriteAnchor edits the call's SYSTEM message in place; a missing anchor is logged and skipped
func (s *CallService) rewriteAnchor(ctx context.Context, tx repository.Store, call *entity.Call, actorId string, now int64) (*entity.Message, error) {
	anchor, err := tx.Messages().GetCallAnchor(ctx, call.Id)
	if err != nil {
		return nil, err
	}
	if anchor == nil || anchor.DeletedForAll {
		log.CtxWarn(ctx, "call anchor message missing: call_id=%s, conversation_id=%s", call.Id, call.ConversationId)
		return nil, nil
	}

	meta := anchor.CallMeta
	if meta == nil {
		meta = &entity.CallMeta{CallId: call.Id, CallType: call.Type}
	}
	meta.Apply(call.Status, actorId, now)
	content := entity.CallText(call.Type, call.Status)

	if err := tx.Messages().UpdateCallAnchor(ctx, anchor.Id, content, meta, now); err != nil {
		return nil, err
	}
	anchor.Content = content
	anchor.CallMeta = meta
	anchor.UpdatedAt = now
	return anchor, nil
}

// publish notifies the room of the anchor change and the call channel of the transition
func (s *CallService) publish(ctx context.Context, res *CallResult, event string, signal *CallSignalEvent) {
	if res.Message != nil {
		s.pusher.PushToRoom(ctx, res.Call.ConversationId, constant.EventMessageUpdated, res.Message, "")
	}
	channel := constant.CallChannel(res.Call.Id)
	s.pusher.PushToRoom(ctx, channel, event, signal, "")
	if res.Call.Status.IsTerminal() {
		s.pusher.DissolveRoom(ctx, channel)
	}
}
