package gateway

import (
	"encoding/json"

	"github.com/bytedance/sonic"
)

// WSRequest represents a WebSocket request frame
type WSRequest struct {
	Event string          `json:"event"`            // Inbound event name
	ReqId string          `json:"req_id,omitempty"` // Client correlation id, echoed back
	Data  json.RawMessage `json:"data,omitempty"`   // Event payload
}

// WSResponse answers a single WSRequest
type WSResponse struct {
	Event   string `json:"event"`
	ReqId   string `json:"req_id,omitempty"`
	ErrCode int    `json:"err_code"` // 0 = success
	ErrMsg  string `json:"err_msg"`
	Data    any    `json:"data,omitempty"`
}

// WSPush is a server initiated frame
type WSPush struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// ConversationReq targets a conversation
type ConversationReq struct {
	ConversationId string `json:"conversation_id"`
}

// MessageReq targets a message
type MessageReq struct {
	MessageId string `json:"message_id"`
}

// CallReq targets a call
type CallReq struct {
	CallId string `json:"call_id"`
}

// WebRTCReq carries one signaling payload; exactly one of offer, answer or candidate is expected
type WebRTCReq struct {
	ConversationId string          `json:"conversation_id"`
	Offer          json.RawMessage `json:"offer,omitempty"`
	Answer         json.RawMessage `json:"answer,omitempty"`
	Candidate      json.RawMessage `json:"candidate,omitempty"`
}

// WebRTCSignal is the relayed form of a WebRTCReq, tagged with its sender
type WebRTCSignal struct {
	From           string          `json:"from"`
	ConversationId string          `json:"conversation_id"`
	Offer          json.RawMessage `json:"offer,omitempty"`
	Answer         json.RawMessage `json:"answer,omitempty"`
	Candidate      json.RawMessage `json:"candidate,omitempty"`
}

// TypingEvent notifies a room that an identity started or stopped typing
type TypingEvent struct {
	ConversationId string `json:"conversation_id"`
	UserId         string `json:"user_id"`
	IsTyping       bool   `json:"is_typing"`
}

// PresenceEvent is broadcast on online and offline transitions
type PresenceEvent struct {
	UserId     string `json:"user_id"`
	LastSeenAt *int64 `json:"last_seen_at,omitempty"`
}

// JoinResp reports the room a connection joined
type JoinResp struct {
	ConversationId string `json:"conversation_id"`
}

// Encode encodes data to JSON bytes
func Encode(v any) ([]byte, error) {
	return sonic.ConfigStd.Marshal(v)
}

// Decode decodes JSON bytes to struct
func Decode(data []byte, v any) error {
	return sonic.ConfigStd.Unmarshal(data, v)
}

// EncodePush renders a push frame once so it can be shared by every target connection
func EncodePush(event string, data any) ([]byte, error) {
	return Encode(&WSPush{Event: event, Data: data})
}
