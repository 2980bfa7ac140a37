package constant

// Inbound events sent by clients over the real-time transport
const (
	EventSendMessage        = "send-message"
	EventMarkRead           = "mark-read"
	EventTypingStart        = "typing:start"
	EventTypingStop         = "typing:stop"
	EventDeleteForAll       = "delete-message-for-all"
	EventDeleteForMe        = "delete-message-for-me"
	EventJoinConversation   = "join-conversation"
	EventCallStart          = "call:start"
	EventCallAccept         = "call:accept"
	EventCallReject         = "call:reject"
	EventCallEnd            = "call:end"
	EventCallMiss           = "call:miss"
	EventWebRTCOffer        = "webrtc:offer"
	EventWebRTCAnswer       = "webrtc:answer"
	EventWebRTCIceCandidate = "webrtc:ice-candidate"
	EventHeartbeat          = "heartbeat"
)

// Outbound events pushed to clients
const (
	EventNewMessage     = "new-message"
	EventMessageUpdated = "message:updated"
	EventMessagesRead   = "messages-read"
	EventTyping         = "typing"
	EventUserOnline     = "user:online"
	EventUserOffline    = "user:offline"
	EventCallRing       = "call:ring"
	EventCallAccepted   = "call:accepted"
	EventCallRejected   = "call:rejected"
	EventCallEnded      = "call:ended"
	EventCallMissed     = "call:missed"
	EventKicked         = "kicked"
)
