package entity

// User represents a user in the system
type User struct {
	Id              string `json:"id" gorm:"column:id;primaryKey;size:64"`
	Name            string `json:"name" gorm:"column:name"`
	Phone           string `json:"phone" gorm:"column:phone"`
	Email           string `json:"email" gorm:"column:email"`
	About           string `json:"about" gorm:"column:about"`
	IsOnline        bool   `json:"is_online" gorm:"column:is_online"`
	LastSeenAt      *int64 `json:"last_seen_at" gorm:"column:last_seen_at"`
	PresenceVersion int64  `json:"-" gorm:"column:presence_version"`
	CreatedAt       int64  `json:"created_at" gorm:"column:created_at;autoCreateTime:milli"`
	UpdatedAt       int64  `json:"updated_at" gorm:"column:updated_at;autoUpdateTime:milli"`
}

// TableName returns the table name for User
func (User) TableName() string {
	return "users"
}

// UserSummary is the sender/friend summary attached to outbound payloads
type UserSummary struct {
	Id    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// ToSummary converts User to UserSummary
func (u *User) ToSummary() *UserSummary {
	return &UserSummary{
		Id:    u.Id,
		Name:  u.Name,
		Email: u.Email,
		Phone: u.Phone,
	}
}

// Presence is the externally visible presence state of an identity
type Presence struct {
	UserId     string `json:"user_id"`
	Online     bool   `json:"online"`
	LastSeenAt *int64 `json:"last_seen_at"`
}
