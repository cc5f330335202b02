package runtime

import (
	"context"

	"github.com/google/uuid"
)

// ActorState is the lifecycle state of one actor instance.
type ActorState string

const (
	ActorUnregistered ActorState = "unregistered"
	ActorActivated    ActorState = "activated"
	ActorDeactivated  ActorState = "deactivated"
)

// Envelope wraps one in-flight message. Payload is opaque to the runtime
// and only interpreted by the receiving actor.
type Envelope struct {
	ID      string `json:"id"`
	Kind    string `json:"kind,omitempty"`
	Payload any    `json:"payload,omitempty"`
}

// NewEnvelope wraps a payload with a fresh message ID.
func NewEnvelope(kind string, payload any) Envelope {
	return Envelope{ID: uuid.New().String(), Kind: kind, Payload: payload}
}

// Actor handles messages delivered by the runtime. One instance's messages
// are handled strictly sequentially; the runtime checks ctx cancellation at
// the delivery boundary and never invokes OnMessage for a cancelled
// delivery.
type Actor interface {
	OnMessage(ctx context.Context, env Envelope, mctx MessageContext) (any, error)
}

// ActorFactory builds one actor instance. The runtime and the instance's
// identity are passed explicitly; there is no ambient instantiation
// context to discover them from.
type ActorFactory func(rt *Runtime, id AgentID) (Actor, error)

// Activatable is an optional hook run after an instance is created and
// before it receives its first message. Rehydration from durable state
// belongs here.
type Activatable interface {
	OnActivate(ctx context.Context) error
}

// Deactivatable is an optional hook run when the runtime shuts the
// instance down.
type Deactivatable interface {
	OnDeactivate(ctx context.Context) error
}
