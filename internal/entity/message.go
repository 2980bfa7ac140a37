package entity

import (
	"strings"

	"github.com/mbeoliero/parley/pkg/constant"
)

// MessageType is the closed set of message kinds
type MessageType string

const (
	MessageTypeText   MessageType = "TEXT"
	MessageTypeImage  MessageType = "IMAGE"
	MessageTypeFile   MessageType = "FILE"
	MessageTypeSystem MessageType = "SYSTEM"
)

// Valid reports whether t is one of the known message types
func (t MessageType) Valid() bool {
	switch t {
	case MessageTypeText, MessageTypeImage, MessageTypeFile, MessageTypeSystem:
		return true
	default:
		return false
	}
}

// Attachment is the metadata of an uploaded file attached to a message
type Attachment struct {
	Url      string `json:"url"`
	Type     string `json:"type"`
	Size     int64  `json:"size"`
	Format   string `json:"format,omitempty"`
	PublicId string `json:"public_id,omitempty"`
	FileName string `json:"file_name,omitempty"`
	FileSize int64  `json:"file_size,omitempty"`
	FileType string `json:"file_type,omitempty"`
}

// DeriveMessageType returns IMAGE for image media, FILE for any other attachment and TEXT without one
func DeriveMessageType(a *Attachment) MessageType {
	if a == nil || a.Type == "" {
		return MessageTypeText
	}
	if strings.HasPrefix(a.Type, "image") {
		return MessageTypeImage
	}
	return MessageTypeFile
}

// Message represents a message
type Message struct {
	Id             string      `json:"id" gorm:"column:id;primaryKey;size:64"`
	ConversationId string      `json:"conversation_id" gorm:"column:conversation_id;size:64;index:idx_msg_conv_created,priority:1"`
	SenderId       string      `json:"sender_id" gorm:"column:sender_id;size:64"`
	Type           MessageType `json:"type" gorm:"column:type;size:16"`
	Content        string      `json:"content" gorm:"column:content;type:text"`
	Attachment     *Attachment `json:"attachment" gorm:"column:attachment;serializer:json"`
	ReplyToId      *string     `json:"reply_to_id" gorm:"column:reply_to_id;size:64"`
	CallId         *string     `json:"call_id" gorm:"column:call_id;size:64;index"`
	CallMeta       *CallMeta   `json:"call_meta" gorm:"column:call_meta;serializer:json"`
	DeletedForAll  bool        `json:"deleted_for_all" gorm:"column:deleted_for_all"`
	CreatedAt      int64       `json:"created_at" gorm:"column:created_at;index:idx_msg_conv_created,priority:2"`
	UpdatedAt      int64       `json:"updated_at" gorm:"column:updated_at"`
}

// TableName returns the table name for Message
func (Message) TableName() string {
	return "messages"
}

// MarkDeletedForAll applies the irreversible delete-for-everyone rewrite
func (m *Message) MarkDeletedForAll(now int64) {
	m.DeletedForAll = true
	m.Type = MessageTypeSystem
	m.Content = constant.DeletedForAllText
	m.Attachment = nil
	m.CallMeta = nil
	m.UpdatedAt = now
}

// MessageDeletion records a delete-for-me of one message by one user
type MessageDeletion struct {
	Id        int64  `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	MessageId string `json:"message_id" gorm:"column:message_id;size:64;uniqueIndex:uk_msg_deletion,priority:1"`
	UserId    string `json:"user_id" gorm:"column:user_id;size:64;uniqueIndex:uk_msg_deletion,priority:2"`
	CreatedAt int64  `json:"created_at" gorm:"column:created_at"`
}

// TableName returns the table name for MessageDeletion
func (MessageDeletion) TableName() string {
	return "message_deletions"
}

// MessageReceipt records that a user has read a message
type MessageReceipt struct {
	Id        int64  `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	MessageId string `json:"message_id" gorm:"column:message_id;size:64;uniqueIndex:uk_msg_receipt,priority:1"`
	UserId    string `json:"user_id" gorm:"column:user_id;size:64;uniqueIndex:uk_msg_receipt,priority:2"`
	ReadAt    int64  `json:"read_at" gorm:"column:read_at"`
}

// TableName returns the table name for MessageReceipt
func (MessageReceipt) TableName() string {
	return "message_receipts"
}

// ViewerMessage is a message together with the viewer's private deletion state
type ViewerMessage struct {
	Message
	DeletedForMe bool `gorm:"column:deleted_for_me"`
}

// MessageInfo represents message info for API response
type MessageInfo struct {
	Id             string       `json:"id"`
	ConversationId string       `json:"conversation_id"`
	SenderId       string       `json:"sender_id"`
	Sender         *UserSummary `json:"sender,omitempty"`
	Type           MessageType  `json:"type"`
	Content        string       `json:"content"`
	Attachment     *Attachment  `json:"attachment"`
	ReplyToId      *string      `json:"reply_to_id"`
	CallId         *string      `json:"call_id,omitempty"`
	CallMeta       *CallMeta    `json:"call_meta,omitempty"`
	DeletedForAll  bool         `json:"deleted_for_all"`
	CreatedAt      int64        `json:"created_at"`
	UpdatedAt      int64        `json:"updated_at"`
}

// ToMessageInfo converts Message to MessageInfo
func (m *Message) ToMessageInfo(sender *UserSummary) *MessageInfo {
	return &MessageInfo{
		Id:             m.Id,
		ConversationId: m.ConversationId,
		SenderId:       m.SenderId,
		Sender:         sender,
		Type:           m.Type,
		Content:        m.Content,
		Attachment:     m.Attachment,
		ReplyToId:      m.ReplyToId,
		CallId:         m.CallId,
		CallMeta:       m.CallMeta,
		DeletedForAll:  m.DeletedForAll,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

// ToViewerInfo converts a message as seen by its viewer, hiding deleted content
// Delete-for-everyone wins over delete-for-me in the placeholder text
func (vm *ViewerMessage) ToViewerInfo(sender *UserSummary) *MessageInfo {
	info := vm.Message.ToMessageInfo(sender)
	switch {
	case vm.DeletedForAll:
		info.hide(constant.DeletedForAllText)
	case vm.DeletedForMe:
		info.hide(constant.DeletedForMeText)
	}
	return info
}

func (i *MessageInfo) hide(placeholder string) {
	i.Content = placeholder
	i.Attachment = nil
	i.CallMeta = nil
	i.Type = MessageTypeSystem
}
