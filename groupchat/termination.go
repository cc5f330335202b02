package groupchat

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/chatkernel/chatkernel/types"
)

// TerminationStrategy decides whether the group conversation should stop
// after the given agent's turn. The orchestrator independently enforces its
// iteration cap regardless of what the strategy returns.
type TerminationStrategy interface {
	ShouldTerminate(ctx context.Context, agent types.Agent, history []types.Message) (bool, error)
}

// AgentScope restricts a termination strategy to a fixed set of agents,
// matched by ID or name. An empty scope applies to every agent.
type AgentScope struct {
	Agents []string
}

// AppliesTo reports whether the strategy's predicate should run for the
// given agent. When it returns false the strategy short-circuits to
// "do not terminate" without evaluating the predicate.
func (s AgentScope) AppliesTo(agent types.Agent) bool {
	if len(s.Agents) == 0 {
		return true
	}
	for _, id := range s.Agents {
		if agent.ID() == id || agent.Name() == id {
			return true
		}
	}
	return false
}

// TerminationPredicate is the domain condition evaluated once the agent
// scope filter passes.
type TerminationPredicate func(ctx context.Context, agent types.Agent, history []types.Message) (bool, error)

// PredicateTermination wraps a caller-supplied predicate with agent-scope
// filtering. A nil predicate is a configuration error surfaced on first use.
type PredicateTermination struct {
	Scope     AgentScope
	Predicate TerminationPredicate
}

// ShouldTerminate implements TerminationStrategy.
func (t *PredicateTermination) ShouldTerminate(ctx context.Context, agent types.Agent, history []types.Message) (bool, error) {
	if !t.Scope.AppliesTo(agent) {
		return false, nil
	}
	if t.Predicate == nil {
		return false, types.NewError(types.ErrMissingPredicate, "termination predicate not provided")
	}
	return t.Predicate(ctx, agent, history)
}

// SubstringTermination terminates when the most recent message contains
// Match and none of the Negations. Matching is case-insensitive.
type SubstringTermination struct {
	Scope     AgentScope
	Match     string
	Negations []string

	logger *zap.Logger
}

// NewApprovalTermination terminates on "approved" unless negated by
// "not approved" or "rejected". The optional agent list scopes the check.
func NewApprovalTermination(logger *zap.Logger, agents ...string) *SubstringTermination {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SubstringTermination{
		Scope:     AgentScope{Agents: agents},
		Match:     "approved",
		Negations: []string{"not approved", "rejected"},
		logger:    logger.With(zap.String("strategy", "approval_termination")),
	}
}

// ShouldTerminate implements TerminationStrategy.
func (t *SubstringTermination) ShouldTerminate(_ context.Context, agent types.Agent, history []types.Message) (bool, error) {
	if !t.Scope.AppliesTo(agent) {
		return false, nil
	}
	if len(history) == 0 {
		return false, nil
	}

	content := strings.ToLower(history[len(history)-1].Content)
	if !strings.Contains(content, strings.ToLower(t.Match)) {
		return false, nil
	}
	for _, neg := range t.Negations {
		if strings.Contains(content, strings.ToLower(neg)) {
			return false, nil
		}
	}
	if t.logger != nil {
		t.logger.Debug("termination condition met",
			zap.String("agent", agent.Name()),
			zap.String("match", t.Match),
		)
	}
	return true, nil
}

// CompletionFunc is a delegated completion call used by
// DelegatedTermination: given the acting agent's name and serialized
// history, it returns one message carrying the verdict, or nil when the
// delegate abstains.
type CompletionFunc func(ctx context.Context, agentName string, history []types.Message) (*types.Message, error)

// VerdictParser extracts the terminate/continue decision from the
// delegate's message. A nil result means "do not terminate".
type VerdictParser func(msg types.Message) (*bool, error)

// DelegatedTermination delegates the yes/no decision to an external
// completion call. Delegate failures propagate to the caller unchanged.
type DelegatedTermination struct {
	Scope    AgentScope
	Complete CompletionFunc
	Parse    VerdictParser
}

// ShouldTerminate implements TerminationStrategy.
func (t *DelegatedTermination) ShouldTerminate(ctx context.Context, agent types.Agent, history []types.Message) (bool, error) {
	if !t.Scope.AppliesTo(agent) {
		return false, nil
	}
	if t.Complete == nil {
		return false, types.NewError(types.ErrMissingPredicate, "delegated termination requires a completion function")
	}

	msg, err := t.Complete(ctx, agent.Name(), history)
	if err != nil {
		return false, err
	}
	if msg == nil {
		return false, nil
	}

	parse := t.Parse
	if parse == nil {
		parse = defaultVerdictParser
	}
	verdict, err := parse(*msg)
	if err != nil {
		return false, err
	}
	if verdict == nil {
		return false, nil
	}
	return *verdict, nil
}

func defaultVerdictParser(msg types.Message) (*bool, error) {
	switch strings.ToLower(strings.TrimSpace(msg.Content)) {
	case "true", "yes":
		v := true
		return &v, nil
	case "false", "no":
		v := false
		return &v, nil
	default:
		return nil, nil
	}
}

var (
	_ TerminationStrategy = (*PredicateTermination)(nil)
	_ TerminationStrategy = (*SubstringTermination)(nil)
	_ TerminationStrategy = (*DelegatedTermination)(nil)
)
