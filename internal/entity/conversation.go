package entity

// Conversation represents a one-to-one or group conversation
type Conversation struct {
	Id        string  `json:"id" gorm:"column:id;primaryKey;size:64"`
	IsGroup   bool    `json:"is_group" gorm:"column:is_group"`
	Name      *string `json:"name" gorm:"column:name"`
	PairKey   *string `json:"-" gorm:"column:pair_key;size:160;uniqueIndex"`
	CreatedAt int64   `json:"created_at" gorm:"column:created_at"`
}

// TableName returns the table name for Conversation
func (Conversation) TableName() string {
	return "conversations"
}

// Participant is a member of a conversation
type Participant struct {
	Id             int64  `json:"-" gorm:"column:id;primaryKey;autoIncrement"`
	ConversationId string `json:"conversation_id" gorm:"column:conversation_id;size:64;uniqueIndex:uk_participant,priority:1"`
	UserId         string `json:"user_id" gorm:"column:user_id;size:64;uniqueIndex:uk_participant,priority:2;index:idx_participant_user"`
	Role           string `json:"role" gorm:"column:role;size:16"`
	JoinedAt       int64  `json:"joined_at" gorm:"column:joined_at"`
}

// TableName returns the table name for Participant
func (Participant) TableName() string {
	return "participants"
}

// ConversationInfo represents conversation info for API response
type ConversationInfo struct {
	Id           string         `json:"id"`
	IsGroup      bool           `json:"is_group"`
	Name         *string        `json:"name"`
	CreatedAt    int64          `json:"created_at"`
	Participants []*Participant `json:"participants"`
	UnreadCount  int64          `json:"unread_count"`
}

// ToConversationInfo converts Conversation to ConversationInfo
func (c *Conversation) ToConversationInfo(participants []*Participant) *ConversationInfo {
	return &ConversationInfo{
		Id:           c.Id,
		IsGroup:      c.IsGroup,
		Name:         c.Name,
		CreatedAt:    c.CreatedAt,
		Participants: participants,
	}
}

// UnreadCount is the unread counter of one conversation
type UnreadCount struct {
	ConversationId string `json:"conversation_id"`
	UnreadCount    int64  `json:"unread_count"`
}
