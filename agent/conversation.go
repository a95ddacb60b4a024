package agent

import (
	"strings"

	"github.com/AnkitD0811/cloud-security-scanner/types"
)

// State is a node of the scan loop.
type State string

const (
	StateInit  State = "INIT"
	StateThink State = "THINK"
	StateAct   State = "ACT"
	StateWrite State = "WRITE"
	StateDone  State = "DONE"
)

// Conversation is the ordered message log of one run. Append returns a new
// value and never touches the receiver, so earlier steps keep their view.
type Conversation struct {
	messages []types.Message
}

// NewConversation starts a log with a system instruction and the task message.
func NewConversation(system, task string) Conversation {
	var msgs []types.Message
	if strings.TrimSpace(system) != "" {
		msgs = append(msgs, types.Message{Role: types.RoleSystem, Content: system})
	}
	msgs = append(msgs, types.Message{Role: types.RoleUser, Content: task})
	return Conversation{messages: msgs}
}

func (c Conversation) Append(msgs ...types.Message) Conversation {
	out := make([]types.Message, 0, len(c.messages)+len(msgs))
	out = append(out, c.messages...)
	out = append(out, msgs...)
	return Conversation{messages: out}
}

func (c Conversation) Len() int { return len(c.messages) }

// Messages returns a copy of the log.
func (c Conversation) Messages() []types.Message {
	return append([]types.Message(nil), c.messages...)
}

// Observations returns the tool messages in append order.
func (c Conversation) Observations() []types.Message {
	var out []types.Message
	for _, msg := range c.messages {
		if msg.Role == types.RoleTool {
			out = append(out, msg)
		}
	}
	return out
}

// split separates system instructions from the rest of the log.
func (c Conversation) split() (string, []types.Message) {
	var system []string
	rest := make([]types.Message, 0, len(c.messages))
	for _, msg := range c.messages {
		if msg.Role == types.RoleSystem {
			system = append(system, msg.Content)
			continue
		}
		rest = append(rest, msg)
	}
	return strings.Join(system, "\n\n"), rest
}

// step is the loop position plus the conversation as of entering it.
type step struct {
	state     State
	iteration int
	conv      Conversation
}

func (s step) to(next State) step {
	return step{state: next, iteration: s.iteration, conv: s.conv}
}

func (s step) with(conv Conversation) step {
	s.conv = conv
	return s
}
