package entity

// Contact is an address-book entry owned by OwnerId
type Contact struct {
	Id        int64  `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	OwnerId   string `json:"owner_id" gorm:"column:owner_id;size:64;uniqueIndex:uk_contact,priority:1"`
	FriendId  string `json:"friend_id" gorm:"column:friend_id;size:64;uniqueIndex:uk_contact,priority:2"`
	CreatedAt int64  `json:"created_at" gorm:"column:created_at"`
}

// TableName returns the table name for Contact
func (Contact) TableName() string {
	return "contacts"
}

// ContactInfo represents a contact with its friend summary and live presence
type ContactInfo struct {
	Id        int64        `json:"id"`
	Friend    *UserSummary `json:"friend"`
	Presence  *Presence    `json:"presence"`
	CreatedAt int64        `json:"created_at"`
}
