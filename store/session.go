package store

// Role identifies who authored a transcript message.
type Role string

const (
	RoleUser      Role = "user"
	RoleExpert    Role = "expert"
	RoleModerator Role = "moderator"
	RoleSystem    Role = "system"
)

// SessionStatus is the lifecycle state of a session.
// A session is draft iff its transcript is empty; it becomes active on the
// first appended message and never reverts.
type SessionStatus string

const (
	SessionStatusDraft  SessionStatus = "draft"
	SessionStatusActive SessionStatus = "active"
)

// Expert is one panel member. Immutable for the lifetime of a session.
type Expert struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Persona string `json:"persona"`
	Model   string `json:"model"`
}

// Moderator is the moderator configuration of a session.
type Moderator struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Model        string `json:"model"`
	SystemPrompt string `json:"systemPrompt"`
}

// Message is one completed transcript entry. Intermediate stream deltas are
// never persisted; only end-of-turn messages are appended.
type Message struct {
	Role         Role   `json:"role"`
	Name         string `json:"name,omitempty"`
	Content      string `json:"content"`
	TurnID       string `json:"turnId,omitempty"`
	ReplyToName  string `json:"replyToName,omitempty"`
	ReplyToQuote string `json:"replyToQuote,omitempty"`
}

// Session is a panel conversation record.
type Session struct {
	ID             string        `json:"id"`
	Title          string        `json:"title"`
	PanelPresetKey string        `json:"panelPresetKey,omitempty"`
	Experts        []Expert      `json:"experts,omitempty"`
	Moderator      Moderator     `json:"moderator"`
	AutoDiscuss    bool          `json:"autoDiscuss"`
	Status         SessionStatus `json:"status"`
	Transcript     []Message     `json:"history"`
	CreatedTs      int64         `json:"createdTs"`
	UpdatedTs      int64         `json:"updatedTs"`
}

// Clone returns a deep copy of the session.
func (s *Session) Clone() *Session {
	clone := *s
	clone.Experts = append([]Expert(nil), s.Experts...)
	clone.Transcript = append([]Message(nil), s.Transcript...)
	return &clone
}
