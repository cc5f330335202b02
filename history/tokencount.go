package history

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"

	"github.com/chatkernel/chatkernel/types"
)

// TiktokenCounter counts tokens with a BPE encoding. It implements
// types.Tokenizer for callers that want real counts instead of the
// character estimate.
type TiktokenCounter struct {
	enc         *tiktoken.Tiktoken
	msgOverhead int
}

// NewTiktokenCounter creates a counter for the named encoding, e.g.
// "cl100k_base" or "o200k_base".
func NewTiktokenCounter(encoding string) (*TiktokenCounter, error) {
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("load tiktoken encoding %q: %w", encoding, err)
	}
	return &TiktokenCounter{enc: enc, msgOverhead: 4}, nil
}

// NewTiktokenCounterForModel creates a counter for the named model.
func NewTiktokenCounterForModel(model string) (*TiktokenCounter, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		return nil, fmt.Errorf("load tiktoken encoding for model %q: %w", model, err)
	}
	return &TiktokenCounter{enc: enc, msgOverhead: 4}, nil
}

// CountTokens counts tokens in text.
func (c *TiktokenCounter) CountTokens(text string) int {
	if text == "" {
		return 0
	}
	return len(c.enc.Encode(text, nil, nil))
}

// CountMessageTokens counts tokens in a message.
func (c *TiktokenCounter) CountMessageTokens(msg types.Message) int {
	tokens := c.msgOverhead
	tokens += c.CountTokens(msg.Content)
	if msg.Name != "" {
		tokens += c.CountTokens(msg.Name)
	}
	for _, tc := range msg.ToolCalls {
		tokens += c.CountTokens(tc.Name)
		tokens += c.CountTokens(string(tc.Arguments))
	}
	for _, r := range msg.Results {
		tokens += c.CountTokens(r.Text)
	}
	return tokens
}

// CountMessagesTokens counts tokens in messages.
func (c *TiktokenCounter) CountMessagesTokens(msgs []types.Message) int {
	total := 0
	for _, msg := range msgs {
		total += c.CountMessageTokens(msg)
	}
	return total
}

var _ types.Tokenizer = (*TiktokenCounter)(nil)
