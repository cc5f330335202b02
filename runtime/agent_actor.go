package runtime

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/chatkernel/chatkernel/history"
	"github.com/chatkernel/chatkernel/types"
)

// Envelope kinds understood by AgentActor.
const (
	// KindChatMessage carries one types.Message into the actor's
	// conversation state.
	KindChatMessage = "chat_message"
	// KindInvoke asks the wrapped agent to produce its turn from the
	// accumulated conversation.
	KindInvoke = "invoke"
	// KindReset clears the actor's conversation state.
	KindReset = "reset"
)

// Thread receives conversation messages once a session exists. It stands in
// for whatever session object the hosting application maintains.
type Thread interface {
	OnNewMessage(ctx context.Context, msg types.Message) error
}

// AgentActor hosts one agent as an actor. Messages that arrive before a
// thread is attached accumulate in a local history buffer; once a thread is
// available, subsequent messages are routed directly to it instead.
type AgentActor struct {
	agent  types.Agent
	buffer *history.ChatHistory
	thread Thread

	logger *zap.Logger
}

// NewAgentActor wraps an agent for hosting in the runtime. logger may be nil.
func NewAgentActor(agent types.Agent, logger *zap.Logger) *AgentActor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AgentActor{
		agent:  agent,
		buffer: history.New(),
		logger: logger.With(
			zap.String("component", "agent_actor"),
			zap.String("agent", agent.Name()),
		),
	}
}

// NewAgentActorFactory returns an ActorFactory producing one AgentActor per
// instance for the given agent.
func NewAgentActorFactory(agent types.Agent, logger *zap.Logger) ActorFactory {
	return func(_ *Runtime, _ AgentID) (Actor, error) {
		return NewAgentActor(agent, logger), nil
	}
}

// AttachThread routes subsequent chat messages to the thread. Messages
// buffered before attachment are replayed into the thread first.
func (a *AgentActor) AttachThread(ctx context.Context, thread Thread) error {
	for _, msg := range a.buffer.Messages() {
		if err := thread.OnNewMessage(ctx, msg); err != nil {
			return fmt.Errorf("replay buffered message into thread: %w", err)
		}
	}
	a.buffer.Clear()
	a.thread = thread
	return nil
}

// OnMessage implements Actor.
func (a *AgentActor) OnMessage(ctx context.Context, env Envelope, mctx MessageContext) (any, error) {
	switch env.Kind {
	case KindChatMessage:
		msg, err := coerceChatMessage(env.Payload)
		if err != nil {
			return nil, err
		}
		if a.thread != nil {
			return nil, a.thread.OnNewMessage(ctx, msg)
		}
		a.buffer.Add(msg)
		return nil, nil

	case KindInvoke:
		out, err := a.agent.Invoke(ctx, a.buffer.Messages())
		if err != nil {
			return nil, fmt.Errorf("agent %q: %w", a.agent.Name(), err)
		}
		for _, msg := range out {
			if msg.Name == "" {
				msg.Name = a.agent.Name()
			}
			a.buffer.Add(msg)
		}
		a.logger.Debug("agent invoked",
			zap.String("delivery", mctx.String()),
			zap.Int("messages", len(out)),
		)
		return out, nil

	case KindReset:
		a.buffer.Clear()
		return nil, nil

	default:
		return nil, fmt.Errorf("agent actor: unsupported message kind %q", env.Kind)
	}
}

// coerceChatMessage accepts a types.Message directly or its JSON-decoded
// map form, which is what a rehydrated durable buffer yields.
func coerceChatMessage(payload any) (types.Message, error) {
	switch v := payload.(type) {
	case types.Message:
		return v, nil
	case *types.Message:
		return *v, nil
	case map[string]any:
		// Round-trip through JSON so every field survives rehydration,
		// including tool calls, results, and metadata.
		raw, err := json.Marshal(v)
		if err != nil {
			return types.Message{}, fmt.Errorf("agent actor: encode chat payload: %w", err)
		}
		var msg types.Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			return types.Message{}, fmt.Errorf("agent actor: decode chat payload: %w", err)
		}
		return msg, nil
	default:
		return types.Message{}, fmt.Errorf("agent actor: unsupported chat payload %T", payload)
	}
}

var _ Actor = (*AgentActor)(nil)
