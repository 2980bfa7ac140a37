package service

import "context"

// Pusher delivers events to live connections.
// Targets without any live connection are silently skipped.
type Pusher interface {
	// PushToRoom delivers to every connection joined to roomId except excludeConnId
	PushToRoom(ctx context.Context, roomId, event string, data any, excludeConnId string)
	// PushToUsers delivers to every live connection of the given users
	PushToUsers(ctx context.Context, userIds []string, event string, data any)
	// PushToRoomAndUsers delivers once per connection to the union of the room and the users' connections
	PushToRoomAndUsers(ctx context.Context, roomId string, userIds []string, event string, data any)
	// JoinUsersToRoom joins every live connection of the users to roomId
	JoinUsersToRoom(ctx context.Context, roomId string, userIds []string)
	// DissolveRoom removes every connection from roomId
	DissolveRoom(ctx context.Context, roomId string)
}

type noopPusher struct{}

func (noopPusher) PushToRoom(context.Context, string, string, any, string)           {}
func (noopPusher) PushToUsers(context.Context, []string, string, any)                {}
func (noopPusher) PushToRoomAndUsers(context.Context, string, []string, string, any) {}
func (noopPusher) JoinUsersToRoom(context.Context, string, []string)                 {}
func (noopPusher) DissolveRoom(context.Context, string)                              {}

// MessagesReadEvent is pushed to a room after a participant read messages
type MessagesReadEvent struct {
	ConversationId string `json:"conversation_id"`
	UserId         string `json:"user_id"`
	Count          int64  `json:"count"`
}

// CallRingEvent is pushed to the conversation room when a call starts
type CallRingEvent struct {
	CallId         string `json:"call_id"`
	MessageId      string `json:"message_id"`
	ConversationId string `json:"conversation_id"`
	From           string `json:"from"`
	CallType       string `json:"call_type"`
}

// CallSignalEvent is pushed to a call channel on every transition
type CallSignalEvent struct {
	CallId  string `json:"call_id"`
	UserId  string `json:"user_id,omitempty"`
	EndedBy string `json:"ended_by,omitempty"`
}
