package entity

// CallType is the closed set of call media kinds
type CallType string

const (
	CallTypeAudio CallType = "AUDIO"
	CallTypeVideo CallType = "VIDEO"
)

// Valid reports whether t is a known call type
func (t CallType) Valid() bool {
	switch t {
	case CallTypeAudio, CallTypeVideo:
		return true
	default:
		return false
	}
}

// Emoji returns the icon rendered in front of call timeline text
func (t CallType) Emoji() string {
	switch t {
	case CallTypeAudio:
		return "📞"
	case CallTypeVideo:
		return "🎥"
	default:
		return ""
	}
}

// CallStatus is the state of a call
type CallStatus string

const (
	CallStatusRinging  CallStatus = "RINGING"
	CallStatusOngoing  CallStatus = "ONGOING"
	CallStatusEnded    CallStatus = "ENDED"
	CallStatusRejected CallStatus = "REJECTED"
	CallStatusMissed   CallStatus = "MISSED"
)

// IsTerminal reports whether no transition may leave s
func (s CallStatus) IsTerminal() bool {
	switch s {
	case CallStatusEnded, CallStatusRejected, CallStatusMissed:
		return true
	default:
		return false
	}
}

// Label returns the timeline text for s
func (s CallStatus) Label() string {
	switch s {
	case CallStatusRinging:
		return "Call started"
	case CallStatusOngoing:
		return "Call in progress"
	case CallStatusEnded:
		return "Call ended"
	case CallStatusRejected:
		return "Call rejected"
	case CallStatusMissed:
		return "Missed call"
	default:
		return ""
	}
}

// callTransitions lists the states each target may be entered from
var callTransitions = map[CallStatus][]CallStatus{
	CallStatusOngoing:  {CallStatusRinging},
	CallStatusRejected: {CallStatusRinging, CallStatusOngoing},
	CallStatusEnded:    {CallStatusRinging, CallStatusOngoing},
	CallStatusMissed:   {CallStatusRinging},
}

// TransitionSources returns the states from which to is reachable
func TransitionSources(to CallStatus) []CallStatus {
	return callTransitions[to]
}

// CanTransition reports whether from -> to is a valid edge
func (s CallStatus) CanTransition(to CallStatus) bool {
	for _, from := range callTransitions[to] {
		if from == s {
			return true
		}
	}
	return false
}

// CallText renders the anchor message content for a call in status s
func CallText(t CallType, s CallStatus) string {
	return t.Emoji() + " " + s.Label()
}

// Call is a voice or video call started inside a conversation
type Call struct {
	Id             string     `json:"id" gorm:"column:id;primaryKey;size:64"`
	ConversationId string     `json:"conversation_id" gorm:"column:conversation_id;size:64;index"`
	CallerId       string     `json:"caller_id" gorm:"column:caller_id;size:64"`
	Type           CallType   `json:"type" gorm:"column:type;size:16"`
	Status         CallStatus `json:"status" gorm:"column:status;size:16"`
	StartedAt      *int64     `json:"started_at" gorm:"column:started_at"`
	EndedAt        *int64     `json:"ended_at" gorm:"column:ended_at"`
	CreatedAt      int64      `json:"created_at" gorm:"column:created_at"`
}

// TableName returns the table name for Call
func (Call) TableName() string {
	return "calls"
}

// CallParticipant is a user who joined a call
type CallParticipant struct {
	Id       int64  `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	CallId   string `json:"call_id" gorm:"column:call_id;size:64;uniqueIndex:uk_call_participant,priority:1"`
	UserId   string `json:"user_id" gorm:"column:user_id;size:64;uniqueIndex:uk_call_participant,priority:2"`
	JoinedAt int64  `json:"joined_at" gorm:"column:joined_at"`
	LeftAt   *int64 `json:"left_at" gorm:"column:left_at"`
}

// TableName returns the table name for CallParticipant
func (CallParticipant) TableName() string {
	return "call_participants"
}

// CallMeta is the status snapshot stored on a call's anchor message
type CallMeta struct {
	CallId     string     `json:"call_id"`
	CallType   CallType   `json:"call_type"`
	Status     CallStatus `json:"status"`
	AcceptedBy string     `json:"accepted_by,omitempty"`
	AcceptedAt int64      `json:"accepted_at,omitempty"`
	RejectedBy string     `json:"rejected_by,omitempty"`
	RejectedAt int64      `json:"rejected_at,omitempty"`
	EndedBy    string     `json:"ended_by,omitempty"`
	EndedAt    int64      `json:"ended_at,omitempty"`
	MissedAt   int64      `json:"missed_at,omitempty"`
}

// Apply records the transition to status by actor at now
func (m *CallMeta) Apply(status CallStatus, actor string, now int64) {
	m.Status = status
	switch status {
	case CallStatusRinging:
	case CallStatusOngoing:
		m.AcceptedBy, m.AcceptedAt = actor, now
	case CallStatusRejected:
		m.RejectedBy, m.RejectedAt = actor, now
	case CallStatusEnded:
		m.EndedBy, m.EndedAt = actor, now
	case CallStatusMissed:
		m.MissedAt = now
	}
}
