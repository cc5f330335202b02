package runtime

import (
	"context"

	"go.uber.org/zap"
)

// DropMessage is the sentinel an intervention hook returns to drop the
// message it was given.
type DropMessage struct{}

// InterventionHandler observes and optionally rewrites messages as they
// flow through the runtime. Each hook returns the message unchanged, a
// modified message, or the DropMessage sentinel.
//
// Returning nil from a hook is a misuse: it is logged as a warning and
// normalized to "no change". It is never treated as a drop, since silently
// dropping on nil would be a behavior-changing bug.
type InterventionHandler interface {
	// OnSend runs for point-to-point sends before delivery.
	OnSend(ctx context.Context, message any, sender *AgentID, recipient AgentID) any
	// OnPublish runs for topic broadcasts before fan-out.
	OnPublish(ctx context.Context, message any, sender *AgentID, topic TopicID) any
	// OnResponse runs for RPC replies on their way back to the sender.
	OnResponse(ctx context.Context, message any, sender AgentID, recipient *AgentID) any
}

// PassthroughHandler forwards every message unchanged. Embed it to
// implement only the hooks you care about.
type PassthroughHandler struct{}

// OnSend implements InterventionHandler.
func (PassthroughHandler) OnSend(_ context.Context, message any, _ *AgentID, _ AgentID) any {
	return message
}

// OnPublish implements InterventionHandler.
func (PassthroughHandler) OnPublish(_ context.Context, message any, _ *AgentID, _ TopicID) any {
	return message
}

// OnResponse implements InterventionHandler.
func (PassthroughHandler) OnResponse(_ context.Context, message any, _ AgentID, _ *AgentID) any {
	return message
}

// normalizeHookResult applies the nil-misuse rule: nil keeps the previous
// message, DropMessage reports a drop, anything else replaces the message.
func normalizeHookResult(result, previous any, hook string, logger *zap.Logger) (msg any, dropped bool) {
	if result == nil {
		logger.Warn("intervention handler returned nil, treating as unchanged",
			zap.String("hook", hook),
		)
		return previous, false
	}
	if _, ok := result.(DropMessage); ok {
		return nil, true
	}
	return result, false
}
