package types

import (
	"encoding/json"
	"time"
)

// Role represents the role of a message participant.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// MetadataIsSummary marks a message synthesized by a summarizing reducer.
// Reducers set it to true on the summary message they prepend; later
// reduction passes use it to recognize prior summaries.
const MetadataIsSummary = "is_summary"

// ToolCall represents a tool invocation request from the LLM.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ResultKind discriminates the payload carried by a FunctionResult.
type ResultKind string

const (
	// ResultKindText is a plain textual tool result.
	ResultKindText ResultKind = "text"
	// ResultKindHandoff names another agent that should take over the
	// conversation. Swarm selection inspects results of this kind.
	ResultKindHandoff ResultKind = "handoff"
)

// FunctionResult is one ordered result item attached to a tool message.
// The Kind tag must be checked before reading the variant fields: Text is
// valid only for ResultKindText, Handoff only for ResultKindHandoff.
type FunctionResult struct {
	CallID  string        `json:"call_id"`
	Name    string        `json:"name"`
	Kind    ResultKind    `json:"kind"`
	Text    string        `json:"text,omitempty"`
	Handoff *AgentHandoff `json:"handoff,omitempty"`
}

// AgentHandoff names the agent that control should pass to.
type AgentHandoff struct {
	AgentName string `json:"agent_name"`
}

// Message represents a conversation message.
type Message struct {
	Role       Role             `json:"role"`
	Content    string           `json:"content,omitempty"`
	Name       string           `json:"name,omitempty"`
	ToolCalls  []ToolCall       `json:"tool_calls,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
	Results    []FunctionResult `json:"results,omitempty"`
	Metadata   map[string]any   `json:"metadata,omitempty"`
	Timestamp  time.Time        `json:"timestamp,omitempty"`
}

// NewMessage creates a new message with the given role and content.
func NewMessage(role Role, content string) Message {
	return Message{
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// NewSystemMessage creates a new system message.
func NewSystemMessage(content string) Message {
	return NewMessage(RoleSystem, content)
}

// NewUserMessage creates a new user message.
func NewUserMessage(content string) Message {
	return NewMessage(RoleUser, content)
}

// NewAssistantMessage creates a new assistant message.
func NewAssistantMessage(content string) Message {
	return NewMessage(RoleAssistant, content)
}

// NewToolMessage creates a new tool result message.
func NewToolMessage(toolCallID, name, content string) Message {
	return Message{
		Role:       RoleTool,
		Content:    content,
		Name:       name,
		ToolCallID: toolCallID,
		Results: []FunctionResult{
			{CallID: toolCallID, Name: name, Kind: ResultKindText, Text: content},
		},
		Timestamp: time.Now(),
	}
}

// NewHandoffMessage creates a tool result message that hands control to
// another agent.
func NewHandoffMessage(toolCallID, name, targetAgent string) Message {
	return Message{
		Role:       RoleTool,
		Name:       name,
		ToolCallID: toolCallID,
		Results: []FunctionResult{
			{
				CallID:  toolCallID,
				Name:    name,
				Kind:    ResultKindHandoff,
				Handoff: &AgentHandoff{AgentName: targetAgent},
			},
		},
		Timestamp: time.Now(),
	}
}

// WithToolCalls adds tool calls to the message.
func (m Message) WithToolCalls(calls []ToolCall) Message {
	m.ToolCalls = calls
	return m
}

// WithName tags the message with the producing agent's name.
func (m Message) WithName(name string) Message {
	m.Name = name
	return m
}

// WithMetadata adds a metadata entry to the message.
func (m Message) WithMetadata(key string, value any) Message {
	meta := make(map[string]any, len(m.Metadata)+1)
	for k, v := range m.Metadata {
		meta[k] = v
	}
	meta[key] = value
	m.Metadata = meta
	return m
}

// HasToolCalls reports whether the message requests one or more tool calls.
func (m Message) HasToolCalls() bool {
	return len(m.ToolCalls) > 0
}

// IsToolResult reports whether the message is the result half of a
// call/result pair.
func (m Message) IsToolResult() bool {
	return m.Role == RoleTool && (m.ToolCallID != "" || len(m.Results) > 0)
}

// IsSummary reports whether the message was synthesized by a reducer.
func (m Message) IsSummary() bool {
	v, ok := m.Metadata[MetadataIsSummary]
	if !ok {
		return false
	}
	b, ok := v.(bool)
	return ok && b
}

// HandoffTarget returns the last handoff result in the message, or nil when
// the message does not hand control to another agent.
func (m Message) HandoffTarget() *AgentHandoff {
	for i := len(m.Results) - 1; i >= 0; i-- {
		if m.Results[i].Kind == ResultKindHandoff && m.Results[i].Handoff != nil {
			return m.Results[i].Handoff
		}
	}
	return nil
}
