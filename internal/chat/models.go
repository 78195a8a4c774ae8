package chat

import (
	"time"

	"gorm.io/datatypes"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

const (
	Greeting         = "Hello! I'm HealthyAI. How can I help you today?"
	DefaultTitle     = "New conversation"
	PlaceholderReply = "HealthyAI is thinking..."
)

// Session is one persisted conversation thread. (user_id, session_id) is
// unique by convention of SaveSession, not by a store constraint.
type Session struct {
	ID           uint64    `gorm:"primaryKey;autoIncrement" json:"-"`
	SessionID    string    `gorm:"type:varchar(64);not null;index:idx_chat_session_user_sid,priority:2" json:"session_id"`
	UserID       uint64    `gorm:"not null;index:idx_chat_session_user_sid,priority:1" json:"-"`
	UserEmail    string    `gorm:"type:varchar(255)" json:"-"`
	Title        string    `gorm:"type:varchar(64);not null" json:"title"`
	LastMessage  string    `gorm:"type:text" json:"last_message"`
	MessageCount int       `gorm:"not null;default:0" json:"message_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `gorm:"index" json:"updated_at"`
}

func (Session) TableName() string { return "chat_sessions" }

// Message is the stored record. Role is empty on legacy rows and is then
// inferred from AIResponse.
type Message struct {
	ID             uint64         `gorm:"primaryKey;autoIncrement" json:"id"`
	SessionID      string         `gorm:"type:varchar(64);not null;index:idx_chat_msg_session_created,priority:1;index:uniq_chat_msg_idempo,unique,priority:2" json:"session_id"`
	UserID         uint64         `gorm:"not null;index:uniq_chat_msg_idempo,unique,priority:1" json:"-"`
	UserEmail      string         `gorm:"type:varchar(255)" json:"-"`
	Role           string         `gorm:"type:varchar(16)" json:"role,omitempty"`
	Text           string         `gorm:"type:text" json:"text"`
	AIResponse     *string        `gorm:"type:text" json:"ai_response,omitempty"`
	Metadata       datatypes.JSON `json:"metadata,omitempty"`
	IdempotencyKey *string        `gorm:"type:varchar(128);index:uniq_chat_msg_idempo,unique,priority:3" json:"-"`
	CreatedAt      time.Time      `gorm:"index:idx_chat_msg_session_created,priority:2" json:"created_at"`
}

func (Message) TableName() string { return "chat_messages" }

// Metadata is attached to assistant replies. Empty fields are omitted from
// the stored JSON.
type Metadata struct {
	Intent           string           `json:"intent,omitempty"`
	IntentConfidence *float64         `json:"intentConfidence,omitempty"`
	Risk             string           `json:"risk,omitempty"`
	Stage            string           `json:"stage,omitempty"`
	Sources          []map[string]any `json:"sources,omitempty"`
}

func (m Metadata) IsEmpty() bool {
	return m.Intent == "" && m.IntentConfidence == nil && m.Risk == "" && m.Stage == "" && len(m.Sources) == 0
}

// ChatMessage is the display form held by a workspace view.
type ChatMessage struct {
	Role     Role      `json:"role"`
	Content  string    `json:"content"`
	Pending  bool      `json:"pending,omitempty"`
	Metadata *Metadata `json:"metadata,omitempty"`

	key string
}

// Identity is the signed-in user a workspace acts for.
type Identity struct {
	UserID uint64
	Email  string
}
