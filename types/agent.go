package types

import "context"

// =============================================================================
// Minimal Agent Capability Interface
// =============================================================================
// The orchestration core never constructs agents; it only drives them. The
// interfaces here define the smallest contract the core consumes: identity
// plus the ability to turn accumulated history into new messages.
//
// The types package is the lowest-level package with no internal
// dependencies, so placing these interfaces here avoids circular imports.
// =============================================================================

// Agent is the capability consumed by group chat orchestration and the
// actor runtime. Implementations live outside this module (LLM-backed,
// scripted, remote); the core never inspects how a response is produced.
type Agent interface {
	// ID returns the agent's unique identifier.
	ID() string
	// Name returns the agent's display name, used to tag produced messages.
	Name() string
	// Description returns a short human-readable description.
	Description() string
	// Invoke produces one or more new messages given the accumulated
	// history. The agent must not mutate the input slice.
	Invoke(ctx context.Context, messages []Message) ([]Message, error)
}

// StreamingAgent is an optional extension for agents that can produce their
// turn incrementally. The message channel is closed when the turn is
// complete; the error channel delivers at most one terminal error.
// Use a type assertion to check if an Agent also streams:
//
//	if s, ok := agent.(types.StreamingAgent); ok { ... }
type StreamingAgent interface {
	Agent
	InvokeStream(ctx context.Context, messages []Message) (<-chan Message, <-chan error)
}
