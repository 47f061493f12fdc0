package schemas

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ImageURL carries an inline image as a data URL.
type ImageURL struct {
	URL string `json:"url"`
}

// ContentPart is one element of a multimodal message body. Exactly one of
// Text or ImageURL is set, selected by Type ("text" or "image_url").
type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// Turn is a single conversation turn sent to the model.
type Turn struct {
	Role    Role          `json:"role"`
	Content []ContentPart `json:"content"`
}

// TextTurn builds a single-part text turn.
func TextTurn(role Role, text string) Turn {
	return Turn{Role: role, Content: []ContentPart{{Type: "text", Text: text}}}
}

// Context is the conversation history owned by the agent loop. It starts
// with one system turn and then strictly alternates user/assistant. Turns
// are only ever appended; past turns are mutated in exactly one way, by
// StripImages, which bounds payload growth.
type Context struct {
	turns []Turn
}

// NewContext seeds a context with the system prompt.
func NewContext(systemPrompt string) *Context {
	return &Context{turns: []Turn{TextTurn(RoleSystem, systemPrompt)}}
}

// Append adds a turn to the end of the history.
func (c *Context) Append(t Turn) { c.turns = append(c.turns, t) }

// Turns returns the history slice. Callers must treat it as read-only.
func (c *Context) Turns() []Turn { return c.turns }

// Len reports the number of turns including the system turn.
func (c *Context) Len() int { return len(c.turns) }

// StripImages removes image parts from every turn except the last n, so a
// long task does not resend every screenshot on every model call. Text parts
// are kept in place.
func (c *Context) StripImages(keepLast int) {
	cutoff := len(c.turns) - keepLast
	for i := 0; i < cutoff; i++ {
		turn := &c.turns[i]
		kept := turn.Content[:0]
		for _, part := range turn.Content {
			if part.Type != "image_url" {
				kept = append(kept, part)
			}
		}
		turn.Content = kept
	}
}
