package models

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Completion is the outcome of one successful provider call.
type Completion struct {
	Text      string
	TokensIn  int64
	TokensOut int64
}

func (c Completion) TotalTokens() int64 {
	return c.TokensIn + c.TokensOut
}
