package llm

import "context"

// Message roles mirror the wire protocol: the remote endpoint only knows
// "user" and "model".
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// Message is one entry in the conversation history sent to the remote endpoint.
type Message struct {
	Role string
	Text string
}

// Conversation is the per-session history. It grows by exactly one user and
// one model entry per successful turn; a failed turn rolls its speculative
// user entry back so the history always reflects what the remote model saw.
//
// A Conversation is owned by a single session and is not safe for concurrent
// mutation from multiple callers.
type Conversation struct {
	messages []Message
}

// NewConversation creates an empty conversation history.
func NewConversation() *Conversation {
	return &Conversation{}
}

// Messages returns a copy of the history in insertion order.
func (c *Conversation) Messages() []Message {
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Len returns the number of entries in the history.
func (c *Conversation) Len() int {
	return len(c.messages)
}

func (c *Conversation) append(m Message) {
	c.messages = append(c.messages, m)
}

// truncate rolls the history back to n entries.
func (c *Conversation) truncate(n int) {
	if n >= 0 && n <= len(c.messages) {
		c.messages = c.messages[:n]
	}
}

// Generator produces the next model reply for a conversation.
//
// Send appends userText to conv as a speculative user entry, performs the
// round trip, and on success appends the reply as a model entry. On a
// terminal failure the speculative entry is removed and a *GenerateError
// is returned.
type Generator interface {
	Send(ctx context.Context, conv *Conversation, userText string) (string, error)
}
