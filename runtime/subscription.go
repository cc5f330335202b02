package runtime

import "strings"

// Subscription maps a published topic to the actor type that should receive
// it, and derives the concrete instance from the topic's source.
type Subscription interface {
	// ID returns a stable identifier for the subscription.
	ID() string
	// Matches reports whether the subscription applies to the topic.
	Matches(topic TopicID) bool
	// MapToAgent derives the receiving actor instance from a matching
	// topic. The per-instance key is the topic's source, so one actor
	// instance exists per conversation/session rather than one global
	// singleton.
	MapToAgent(topic TopicID) AgentID
}

// TypeSubscription matches a topic's type string exactly.
type TypeSubscription struct {
	TopicType string
	AgentType string
}

// NewTypeSubscription creates an exact-match subscription.
func NewTypeSubscription(topicType, agentType string) TypeSubscription {
	return TypeSubscription{TopicType: topicType, AgentType: agentType}
}

// ID implements Subscription.
func (s TypeSubscription) ID() string {
	return "type:" + s.TopicType + "->" + s.AgentType
}

// Matches implements Subscription.
func (s TypeSubscription) Matches(topic TopicID) bool {
	return topic.Type == s.TopicType
}

// MapToAgent implements Subscription.
func (s TypeSubscription) MapToAgent(topic TopicID) AgentID {
	return AgentID{Type: s.AgentType, Key: topic.Source}
}

// TypePrefixSubscription matches any topic whose type starts with the
// configured prefix.
type TypePrefixSubscription struct {
	TopicPrefix string
	AgentType   string
}

// NewTypePrefixSubscription creates a prefix-match subscription.
func NewTypePrefixSubscription(topicPrefix, agentType string) TypePrefixSubscription {
	return TypePrefixSubscription{TopicPrefix: topicPrefix, AgentType: agentType}
}

// ID implements Subscription.
func (s TypePrefixSubscription) ID() string {
	return "prefix:" + s.TopicPrefix + "->" + s.AgentType
}

// Matches implements Subscription.
func (s TypePrefixSubscription) Matches(topic TopicID) bool {
	return strings.HasPrefix(topic.Type, s.TopicPrefix)
}

// MapToAgent implements Subscription.
func (s TypePrefixSubscription) MapToAgent(topic TopicID) AgentID {
	return AgentID{Type: s.AgentType, Key: topic.Source}
}

var (
	_ Subscription = TypeSubscription{}
	_ Subscription = TypePrefixSubscription{}
)
