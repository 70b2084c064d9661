package query

// Roles for conversation history entries.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a session's conversation history.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
