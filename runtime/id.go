package runtime

import "fmt"

// AgentID identifies one actor instance as a declared type plus a
// per-instance key. Subscriptions derive the key from a topic's source, so
// each distinct source addresses a logically separate instance of the same
// type.
type AgentID struct {
	Type string `json:"type"`
	Key  string `json:"key"`
}

// NewAgentID creates an AgentID.
func NewAgentID(agentType, key string) AgentID {
	return AgentID{Type: agentType, Key: key}
}

// String implements fmt.Stringer.
func (id AgentID) String() string {
	return id.Type + "/" + id.Key
}

// TopicID identifies a pub/sub topic as a type string plus the source that
// published it.
type TopicID struct {
	Type   string `json:"type"`
	Source string `json:"source"`
}

// NewTopicID creates a TopicID.
func NewTopicID(topicType, source string) TopicID {
	return TopicID{Type: topicType, Source: source}
}

// String implements fmt.Stringer.
func (t TopicID) String() string {
	return t.Type + "/" + t.Source
}

// MessageContext carries delivery metadata for one message. Cancellation
// travels on the context.Context handed to the actor's OnMessage; the
// runtime checks it at the delivery boundary before invoking the actor.
type MessageContext struct {
	// MessageID is the runtime-assigned envelope ID.
	MessageID string
	// Sender identifies the sending actor, nil for external callers.
	Sender *AgentID
	// Topic is set for published messages, nil for point-to-point sends.
	Topic *TopicID
	// IsRPC reports whether the sender awaits a response.
	IsRPC bool
}

func (c MessageContext) String() string {
	switch {
	case c.Topic != nil:
		return fmt.Sprintf("publish(%s)", c.Topic)
	case c.IsRPC:
		return "send"
	default:
		return "notify"
	}
}
