package assist

import (
	"context"
	"errors"
	"sync"
	"time"

	"leadline/internal/domain"
)

// State is the conversation's send cycle position.
type State string

const (
	// StateIdle accepts a new send.
	StateIdle State = "idle"
	// StateAwaiting has a send in flight; further sends are rejected.
	StateAwaiting State = "awaiting"
	// StateErrored is idle after a failed send. A new send is accepted and
	// clears the error.
	StateErrored State = "errored"
)

// ErrBusy rejects a send while another is in flight. The transcript is not
// touched.
var ErrBusy = errors.New("a message is already awaiting a response")

const greeting = "Hi! I'm your Leadline assistant. Ask me about your leads, deals, or what to focus on today."

// errorReply is the assistant turn recorded when a send fails. It carries no
// provider detail on purpose.
const errorReply = "Sorry, the AI service is unavailable right now. Please try again in a moment."

// Conversation is the session-scoped assistant transcript and its send state
// machine. The transcript is append-only: turns are never edited or removed,
// only Reset starts over. Safe for concurrent use.
type Conversation struct {
	gateway Gateway
	now     func() time.Time

	mu    sync.Mutex
	state State
	gen   uint64
	msgs  []domain.Message
}

// NewConversation starts an idle conversation seeded with the assistant
// greeting.
func NewConversation(gw Gateway) *Conversation {
	c := &Conversation{gateway: gw, now: time.Now, state: StateIdle}
	c.msgs = []domain.Message{c.assistantTurn(greeting)}
	return c
}

// Send appends the user turn, runs the gateway call, and appends the reply.
// While the call is in flight the conversation is Awaiting and concurrent
// sends fail with ErrBusy. A failed call appends a fixed apology turn and
// leaves the conversation Errored; the gateway error itself is swallowed.
// Responses that complete after a Reset are discarded.
func (c *Conversation) Send(ctx context.Context, text string, snapshot domain.Snapshot) (domain.Message, error) {
	c.mu.Lock()
	if c.state == StateAwaiting {
		c.mu.Unlock()
		return domain.Message{}, ErrBusy
	}
	c.state = StateAwaiting
	token := c.gen
	c.msgs = append(c.msgs, domain.Message{
		Role:      domain.RoleUser,
		Content:   text,
		Timestamp: c.now().UTC().Format(time.RFC3339),
	})
	c.mu.Unlock()

	reply, err := c.gateway.Chat(ctx, text, snapshot)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != token {
		// Reset happened while the call was in flight; this response
		// belongs to a transcript that no longer exists.
		return domain.Message{}, ErrUnavailable
	}
	var turn domain.Message
	if err != nil {
		turn = c.assistantTurn(errorReply)
		c.msgs = append(c.msgs, turn)
		c.state = StateErrored
		return turn, nil
	}
	turn = c.assistantTurn(reply)
	c.msgs = append(c.msgs, turn)
	c.state = StateIdle
	return turn, nil
}

// Reset discards the transcript and starts over from the greeting. Any
// in-flight response is invalidated rather than interrupted.
func (c *Conversation) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.state = StateIdle
	c.msgs = []domain.Message{c.assistantTurn(greeting)}
}

// Messages returns a copy of the transcript in order.
func (c *Conversation) Messages() []domain.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.Message, len(c.msgs))
	copy(out, c.msgs)
	return out
}

// State reports the current send cycle position.
func (c *Conversation) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Conversation) assistantTurn(text string) domain.Message {
	return domain.Message{
		Role:      domain.RoleAssistant,
		Content:   text,
		Timestamp: c.now().UTC().Format(time.RFC3339),
	}
}
