package groupchat

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/chatkernel/chatkernel/types"
)

// SelectionStrategy chooses which agent acts next in a multi-agent turn
// sequence. Implementations may keep a cursor across calls; Reset returns
// the cursor to its initial state. Next fails when agents is empty.
type SelectionStrategy interface {
	Next(ctx context.Context, agents []types.Agent, history []types.Message) (types.Agent, error)
	Reset()
}

// SequentialSelection rotates through the agent list in order, starting
// from the first agent. An optional initial agent is force-selected on the
// first call; the rotation then skips one slot if the naive next pick would
// immediately repeat it.
type SequentialSelection struct {
	initialAgent types.Agent

	mu          sync.Mutex
	index       int
	hasSelected bool
	justForced  bool

	logger *zap.Logger
}

// NewSequentialSelection creates a round-robin selection strategy.
// logger may be nil.
func NewSequentialSelection(logger *zap.Logger) *SequentialSelection {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SequentialSelection{
		index:  -1,
		logger: logger.With(zap.String("strategy", "sequential_selection")),
	}
}

// WithInitialAgent force-selects the given agent on the first call.
func (s *SequentialSelection) WithInitialAgent(agent types.Agent) *SequentialSelection {
	s.initialAgent = agent
	return s
}

// Next implements SelectionStrategy.
func (s *SequentialSelection) Next(_ context.Context, agents []types.Agent, _ []types.Message) (types.Agent, error) {
	if len(agents) == 0 {
		return nil, types.NewError(types.ErrNoAgents, "sequential selection requires at least one agent")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.initialAgent != nil && !s.hasSelected {
		s.hasSelected = true
		s.justForced = true
		s.logger.Debug("initial agent force-selected", zap.String("agent", s.initialAgent.Name()))
		return s.initialAgent, nil
	}

	next := (s.index + 1) % len(agents)
	if s.justForced && agents[next].ID() == s.initialAgent.ID() {
		// Skip one slot so the force-selected agent does not act twice in a row.
		next = (next + 1) % len(agents)
	}
	s.justForced = false
	s.index = next

	agent := agents[next]
	s.logger.Debug("agent selected",
		zap.Int("index", next),
		zap.String("agent", agent.Name()),
	)
	return agent, nil
}

// Reset implements SelectionStrategy.
func (s *SequentialSelection) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.index = -1
	s.hasSelected = false
	s.justForced = false
}

// SwarmSelection hands control between agents based on handoff results. The
// first call returns the first agent unconditionally; later calls follow
// the most recent message's handoff target when present, otherwise the
// previously recorded current agent keeps the floor.
type SwarmSelection struct {
	mu      sync.Mutex
	current types.Agent

	logger *zap.Logger
}

// NewSwarmSelection creates a handoff-driven selection strategy.
// logger may be nil.
func NewSwarmSelection(logger *zap.Logger) *SwarmSelection {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SwarmSelection{
		logger: logger.With(zap.String("strategy", "swarm_selection")),
	}
}

// Next implements SelectionStrategy.
func (s *SwarmSelection) Next(_ context.Context, agents []types.Agent, history []types.Message) (types.Agent, error) {
	if len(agents) == 0 {
		return nil, types.NewError(types.ErrNoAgents, "swarm selection requires at least one agent")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Only the seed message present: the conversation has not started yet.
	if len(history) <= 1 {
		s.current = agents[0]
		s.logger.Debug("swarm start", zap.String("agent", s.current.Name()))
		return s.current, nil
	}

	last := history[len(history)-1]
	if target := last.HandoffTarget(); target != nil {
		for _, a := range agents {
			if a.Name() == target.AgentName || a.ID() == target.AgentName {
				s.current = a
				s.logger.Debug("handoff accepted", zap.String("agent", a.Name()))
				return a, nil
			}
		}
		return nil, types.NewError(types.ErrUnknownAgent, "handoff names an agent outside this group").
			WithAgent(target.AgentName)
	}

	if s.current == nil {
		return nil, types.NewError(types.ErrNoCurrentAgent, "no current agent established for swarm selection")
	}
	return s.current, nil
}

// Reset implements SelectionStrategy.
func (s *SwarmSelection) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = nil
}

var (
	_ SelectionStrategy = (*SequentialSelection)(nil)
	_ SelectionStrategy = (*SwarmSelection)(nil)
)
