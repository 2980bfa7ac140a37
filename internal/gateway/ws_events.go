package gateway

import (
	"context"
	"encoding/json"

	"github.com/mbeoliero/kit/log"

	"github.com/mbeoliero/parley/internal/service"
	"github.com/mbeoliero/parley/pkg/constant"
	"github.com/mbeoliero/parley/pkg/errcode"
)

func (s *WsServer) eventHandlers() map[string]HandlerFunc {
	return map[string]HandlerFunc{
		constant.EventSendMessage:        s.handleSendMessage,
		constant.EventMarkRead:           s.handleMarkRead,
		constant.EventTypingStart:        s.handleTypingStart,
		constant.EventTypingStop:         s.handleTypingStop,
		constant.EventDeleteForAll:       s.handleDeleteForAll,
		constant.EventDeleteForMe:        s.handleDeleteForMe,
		constant.EventJoinConversation:   s.handleJoinConversation,
		constant.EventCallStart:          s.handleCallStart,
		constant.EventCallAccept:         s.handleCallAccept,
		constant.EventCallReject:         s.handleCallReject,
		constant.EventCallEnd:            s.handleCallEnd,
		constant.EventCallMiss:           s.handleCallMiss,
		constant.EventWebRTCOffer:        s.handleWebRTC(constant.EventWebRTCOffer),
		constant.EventWebRTCAnswer:       s.handleWebRTC(constant.EventWebRTCAnswer),
		constant.EventWebRTCIceCandidate: s.handleWebRTC(constant.EventWebRTCIceCandidate),
		constant.EventHeartbeat:          s.handleHeartbeat,
	}
}

// decodeData decodes an event payload; a missing payload is an invalid parameter
func decodeData[T any](data json.RawMessage) (*T, error) {
	var v T
	if len(data) == 0 {
		return nil, errcode.ErrInvalidParam
	}
	if err := Decode(data, &v); err != nil {
		return nil, errcode.ErrInvalidParam.Wrap(err)
	}
	return &v, nil
}

// ========== Message Handlers ==========

func (s *WsServer) handleSendMessage(ctx context.Context, c *Client, data json.RawMessage) (any, error) {
	req, err := decodeData[service.SendMessageRequest](data)
	if err != nil {
		return nil, err
	}
	return s.msgService.SendMessage(ctx, c.UserId, req)
}

func (s *WsServer) handleMarkRead(ctx context.Context, c *Client, data json.RawMessage) (any, error) {
	req, err := decodeData[ConversationReq](data)
	if err != nil {
		return nil, err
	}
	return s.msgService.MarkRead(ctx, c.UserId, req.ConversationId)
}

func (s *WsServer) handleDeleteForAll(ctx context.Context, c *Client, data json.RawMessage) (any, error) {
	req, err := decodeData[MessageReq](data)
	if err != nil {
		return nil, err
	}
	return s.msgService.DeleteForEveryone(ctx, c.UserId, req.MessageId)
}

func (s *WsServer) handleDeleteForMe(ctx context.Context, c *Client, data json.RawMessage) (any, error) {
	req, err := decodeData[MessageReq](data)
	if err != nil {
		return nil, err
	}
	if err := s.msgService.DeleteForMe(ctx, c.UserId, req.MessageId); err != nil {
		return nil, err
	}
	return req, nil
}

// handleJoinConversation joins the connection to a conversation created after it connected
func (s *WsServer) handleJoinConversation(ctx context.Context, c *Client, data json.RawMessage) (any, error) {
	req, err := decodeData[ConversationReq](data)
	if err != nil {
		return nil, err
	}
	if req.ConversationId == "" {
		return nil, errcode.ErrInvalidParam
	}

	p, err := s.conversations.GetParticipant(ctx, req.ConversationId, c.UserId)
	if err != nil {
		log.CtxError(ctx, "get participant failed: user_id=%s, conversation_id=%s, error=%v", c.UserId, req.ConversationId, err)
		return nil, errcode.ErrInternalServer
	}
	if p == nil {
		return nil, errcode.ErrNotParticipant
	}
	if !s.rooms.Join(req.ConversationId, c) {
		return nil, errcode.ErrConnClosed
	}
	return &JoinResp{ConversationId: req.ConversationId}, nil
}

// ========== Typing Handlers ==========

func (s *WsServer) handleTypingStart(_ context.Context, c *Client, data json.RawMessage) (any, error) {
	req, err := s.joinedConversation(c, data)
	if err != nil {
		return nil, err
	}
	s.typing.Start(req.ConversationId, c.UserId)
	return nil, nil
}

func (s *WsServer) handleTypingStop(_ context.Context, c *Client, data json.RawMessage) (any, error) {
	req, err := s.joinedConversation(c, data)
	if err != nil {
		return nil, err
	}
	s.typing.Stop(req.ConversationId, c.UserId)
	return nil, nil
}

// joinedConversation decodes a conversation payload the connection is joined to
func (s *WsServer) joinedConversation(c *Client, data json.RawMessage) (*ConversationReq, error) {
	req, err := decodeData[ConversationReq](data)
	if err != nil {
		return nil, err
	}
	if req.ConversationId == "" {
		return nil, errcode.ErrInvalidParam
	}
	if !c.InRoom(req.ConversationId) {
		return nil, errcode.ErrNotParticipant
	}
	return req, nil
}

// ========== Call Handlers ==========

func (s *WsServer) handleCallStart(ctx context.Context, c *Client, data json.RawMessage) (any, error) {
	req, err := decodeData[service.StartCallRequest](data)
	if err != nil {
		return nil, err
	}
	return s.callService.StartCall(ctx, c.UserId, req)
}

func (s *WsServer) handleCallAccept(ctx context.Context, c *Client, data json.RawMessage) (any, error) {
	req, err := decodeData[CallReq](data)
	if err != nil {
		return nil, err
	}
	return s.callService.AcceptCall(ctx, c.UserId, req.CallId)
}

func (s *WsServer) handleCallReject(ctx context.Context, c *Client, data json.RawMessage) (any, error) {
	req, err := decodeData[CallReq](data)
	if err != nil {
		return nil, err
	}
	return s.callService.RejectCall(ctx, c.UserId, req.CallId)
}

func (s *WsServer) handleCallEnd(ctx context.Context, c *Client, data json.RawMessage) (any, error) {
	req, err := decodeData[CallReq](data)
	if err != nil {
		return nil, err
	}
	return s.callService.EndCall(ctx, c.UserId, req.CallId)
}

func (s *WsServer) handleCallMiss(ctx context.Context, c *Client, data json.RawMessage) (any, error) {
	req, err := decodeData[CallReq](data)
	if err != nil {
		return nil, err
	}
	return s.callService.MissCall(ctx, c.UserId, req.CallId)
}

// handleWebRTC relays a signaling payload verbatim to the rest of the room
func (s *WsServer) handleWebRTC(event string) HandlerFunc {
	return func(ctx context.Context, c *Client, data json.RawMessage) (any, error) {
		req, err := decodeData[WebRTCReq](data)
		if err != nil {
			return nil, err
		}
		if req.ConversationId == "" || !req.hasPayload(event) {
			return nil, errcode.ErrInvalidParam
		}
		if !c.InRoom(req.ConversationId) {
			return nil, errcode.ErrNotParticipant
		}

		s.publish(ctx, &Envelope{Kind: routeRoom, Room: req.ConversationId, ExcludeUser: c.UserId}, event, &WebRTCSignal{
			From:           c.UserId,
			ConversationId: req.ConversationId,
			Offer:          req.Offer,
			Answer:         req.Answer,
			Candidate:      req.Candidate,
		})
		return nil, nil
	}
}

// hasPayload reports whether the field matching event is present
func (r *WebRTCReq) hasPayload(event string) bool {
	switch event {
	case constant.EventWebRTCOffer:
		return len(r.Offer) > 0
	case constant.EventWebRTCAnswer:
		return len(r.Answer) > 0
	case constant.EventWebRTCIceCandidate:
		return len(r.Candidate) > 0
	default:
		return false
	}
}

// ========== Connection Handlers ==========

func (s *WsServer) handleHeartbeat(ctx context.Context, c *Client, _ json.RawMessage) (any, error) {
	s.presence.Refresh(ctx, c.UserId)
	return nil, nil
}
