package history

import (
	"context"

	"github.com/chatkernel/chatkernel/types"
)

// ChatHistory is an ordered, insertion-order-significant sequence of
// messages. It is not safe for concurrent use; the orchestrator serializes
// all mutation between turns.
type ChatHistory struct {
	messages []types.Message
}

// New creates a ChatHistory seeded with the given messages.
func New(messages ...types.Message) *ChatHistory {
	h := &ChatHistory{}
	h.messages = append(h.messages, messages...)
	return h
}

// Add appends one message.
func (h *ChatHistory) Add(msg types.Message) {
	h.messages = append(h.messages, msg)
}

// AddAll appends messages preserving their order.
func (h *ChatHistory) AddAll(msgs []types.Message) {
	h.messages = append(h.messages, msgs...)
}

// Messages returns a copy of the transcript. Agents receive this copy each
// turn and must not be assumed to mutate the original.
func (h *ChatHistory) Messages() []types.Message {
	out := make([]types.Message, len(h.messages))
	copy(out, h.messages)
	return out
}

// Last returns the most recent message and true, or a zero message and
// false when the history is empty.
func (h *ChatHistory) Last() (types.Message, bool) {
	if len(h.messages) == 0 {
		return types.Message{}, false
	}
	return h.messages[len(h.messages)-1], true
}

// Len returns the number of messages.
func (h *ChatHistory) Len() int {
	return len(h.messages)
}

// Clear removes all messages.
func (h *ChatHistory) Clear() {
	h.messages = h.messages[:0]
}

// TotalTokens estimates the transcript's token footprint.
func (h *ChatHistory) TotalTokens(tok types.Tokenizer) int {
	if tok == nil {
		tok = types.NewEstimateTokenizer()
	}
	return tok.CountMessagesTokens(h.messages)
}

// Reduce applies the reducer in place. It returns true when the transcript
// was replaced by a shorter one, false when the reducer declined to act.
func (h *ChatHistory) Reduce(ctx context.Context, r Reducer) (bool, error) {
	reduced, changed, err := r.Reduce(ctx, h.messages)
	if err != nil {
		return false, err
	}
	if !changed {
		return false, nil
	}
	h.messages = reduced
	return true, nil
}
