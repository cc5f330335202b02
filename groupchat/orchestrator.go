package groupchat

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/chatkernel/chatkernel/history"
	"github.com/chatkernel/chatkernel/internal/metrics"
	"github.com/chatkernel/chatkernel/types"
)

// State is the orchestrator lifecycle state.
type State string

const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFaulted   State = "faulted"
)

// Config configures the orchestration loop.
type Config struct {
	// MaximumIterations is the hard cap on turns. The orchestrator counts
	// turns itself and force-stops at the cap regardless of what the
	// termination strategy returns.
	MaximumIterations int `json:"maximum_iterations" yaml:"maximum_iterations"`
}

// DefaultConfig returns the default orchestration configuration.
func DefaultConfig() Config {
	return Config{MaximumIterations: 10}
}

// Orchestrator drives repeated agent turns until a termination strategy
// signals completion or the iteration cap is reached.
//
// The orchestrator exclusively owns the shared transcript and the iteration
// counter. Turns are strictly sequential: a streaming agent's output is
// fully drained before the next turn's selection occurs.
type Orchestrator struct {
	agents      []types.Agent
	selection   SelectionStrategy
	termination TerminationStrategy
	cfg         Config

	mu         sync.Mutex
	hist       *history.ChatHistory
	state      State
	iterations int

	logger    *zap.Logger
	tracer    trace.Tracer
	collector *metrics.Collector
}

// NewOrchestrator creates a group chat orchestrator. The agent list must be
// non-empty. logger may be nil.
func NewOrchestrator(agents []types.Agent, selection SelectionStrategy, termination TerminationStrategy, cfg Config, logger *zap.Logger) (*Orchestrator, error) {
	if len(agents) == 0 {
		return nil, types.NewError(types.ErrNoAgents, "group chat requires at least one agent")
	}
	if selection == nil || termination == nil {
		return nil, types.NewError(types.ErrMissingPredicate, "group chat requires selection and termination strategies")
	}
	if cfg.MaximumIterations <= 0 {
		cfg.MaximumIterations = DefaultConfig().MaximumIterations
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		agents:      agents,
		selection:   selection,
		termination: termination,
		cfg:         cfg,
		hist:        history.New(),
		state:       StateIdle,
		logger:      logger.With(zap.String("component", "group_chat")),
		tracer:      otel.Tracer("github.com/chatkernel/chatkernel/groupchat"),
	}, nil
}

// SetCollector attaches a metrics collector. Optional.
func (o *Orchestrator) SetCollector(c *metrics.Collector) {
	o.collector = c
}

// AddChatMessage appends a message to the shared transcript, typically the
// seed user message before the first Invoke.
func (o *Orchestrator) AddChatMessage(msg types.Message) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.hist.Add(msg)
}

// History returns a copy of the shared transcript.
func (o *Orchestrator) History() []types.Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.hist.Messages()
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// IsComplete reports whether the conversation has finished, successfully
// or not.
func (o *Orchestrator) IsComplete() bool {
	s := o.State()
	return s == StateCompleted || s == StateFaulted
}

// Reset clears the shared transcript and returns the orchestrator to Idle.
// Selection strategy cursor state is deliberately untouched; callers
// needing a fresh rotation must call the strategy's own Reset.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.hist.Clear()
	o.state = StateIdle
	o.iterations = 0
}

// ReduceHistory applies a reducer to the shared transcript between
// invocations, keeping it within budget.
func (o *Orchestrator) ReduceHistory(ctx context.Context, r history.Reducer) (bool, error) {
	o.mu.Lock()
	changed, err := o.hist.Reduce(ctx, r)
	o.mu.Unlock()

	if o.collector != nil {
		kind := "truncation"
		if _, ok := r.(*history.SummarizationReducer); ok {
			kind = "summarization"
		}
		outcome := "noop"
		switch {
		case err != nil:
			outcome = "error"
		case changed:
			outcome = "reduced"
		}
		o.collector.ObserveReduction(kind, outcome)
	}
	return changed, err
}

// Invoke runs the orchestration loop to completion and returns every
// message produced across all turns, in turn order.
func (o *Orchestrator) Invoke(ctx context.Context) ([]types.Message, error) {
	var produced []types.Message
	err := o.run(ctx, func(msg types.Message) {
		produced = append(produced, msg)
	})
	return produced, err
}

// InvokeStream runs the orchestration loop, delivering each produced
// message as it is appended to the transcript. The message channel is
// closed when the loop finishes; the error channel delivers at most one
// terminal error.
func (o *Orchestrator) InvokeStream(ctx context.Context) (<-chan types.Message, <-chan error) {
	msgCh := make(chan types.Message)
	errCh := make(chan error, 1)

	go func() {
		defer close(msgCh)
		defer close(errCh)
		err := o.run(ctx, func(msg types.Message) {
			select {
			case msgCh <- msg:
			case <-ctx.Done():
			}
		})
		if err != nil {
			errCh <- err
		}
	}()

	return msgCh, errCh
}

// run executes the turn loop. emit is called for every message produced,
// after it has been appended to the shared transcript.
func (o *Orchestrator) run(ctx context.Context, emit func(types.Message)) error {
	if err := o.transitionToRunning(); err != nil {
		return err
	}

	o.logger.Info("group chat started",
		zap.Int("agents", len(o.agents)),
		zap.Int("max_iterations", o.cfg.MaximumIterations),
	)

	for turn := 0; turn < o.cfg.MaximumIterations; turn++ {
		if err := ctx.Err(); err != nil {
			return o.fault(fmt.Errorf("group chat cancelled: %w", err))
		}

		agent, err := o.selection.Next(ctx, o.agents, o.History())
		if err != nil {
			return o.fault(fmt.Errorf("select agent for turn %d: %w", turn+1, err))
		}

		stop, err := o.executeTurn(ctx, turn, agent, emit)
		if err != nil {
			return o.fault(err)
		}
		if stop {
			break
		}
	}

	o.mu.Lock()
	o.state = StateCompleted
	iterations := o.iterations
	o.mu.Unlock()

	if o.collector != nil {
		o.collector.ObserveSession("completed")
	}
	o.logger.Info("group chat completed", zap.Int("turns", iterations))
	return nil
}

// executeTurn invokes one agent, appends its output, and evaluates the
// termination strategy. It returns true when the conversation should stop.
func (o *Orchestrator) executeTurn(ctx context.Context, turn int, agent types.Agent, emit func(types.Message)) (bool, error) {
	ctx, span := o.tracer.Start(ctx, "groupchat.turn",
		trace.WithAttributes(
			attribute.Int("groupchat.turn", turn+1),
			attribute.String("groupchat.agent", agent.Name()),
		),
	)
	defer span.End()

	start := time.Now()
	msgs, err := o.invokeAgent(ctx, agent)
	if err != nil {
		return false, fmt.Errorf("turn %d, agent %q: %w", turn+1, agent.Name(), err)
	}

	o.mu.Lock()
	for i := range msgs {
		if msgs[i].Name == "" {
			msgs[i].Name = agent.Name()
		}
		o.hist.Add(msgs[i])
	}
	o.iterations++
	o.mu.Unlock()

	// Emit outside the critical section: the stream channel is unbuffered
	// and a consumer may call accessors that take o.mu between receives.
	for _, msg := range msgs {
		emit(msg)
	}

	if o.collector != nil {
		o.collector.ObserveTurn(agent.Name(), time.Since(start))
	}
	o.logger.Debug("turn completed",
		zap.Int("turn", turn+1),
		zap.String("agent", agent.Name()),
		zap.Int("messages", len(msgs)),
	)

	stop, err := o.termination.ShouldTerminate(ctx, agent, o.History())
	if err != nil {
		return false, fmt.Errorf("termination check after turn %d, agent %q: %w", turn+1, agent.Name(), err)
	}
	return stop, nil
}

// invokeAgent calls the agent, fully draining its stream first when it
// supports streaming. Partial outputs are collected in generation order.
func (o *Orchestrator) invokeAgent(ctx context.Context, agent types.Agent) ([]types.Message, error) {
	snapshot := o.History()

	streamer, ok := agent.(types.StreamingAgent)
	if !ok {
		return agent.Invoke(ctx, snapshot)
	}

	msgCh, errCh := streamer.InvokeStream(ctx, snapshot)
	var out []types.Message
	for msgCh != nil || errCh != nil {
		select {
		case msg, open := <-msgCh:
			if !open {
				msgCh = nil
				continue
			}
			out = append(out, msg)
		case err, open := <-errCh:
			if !open {
				errCh = nil
				continue
			}
			if err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

func (o *Orchestrator) transitionToRunning() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	switch o.state {
	case StateIdle, StateCompleted:
		o.state = StateRunning
		return nil
	default:
		return types.NewError(types.ErrInvalidTransition,
			fmt.Sprintf("cannot invoke group chat while %s", o.state))
	}
}

func (o *Orchestrator) fault(err error) error {
	o.mu.Lock()
	o.state = StateFaulted
	o.mu.Unlock()
	if o.collector != nil {
		o.collector.ObserveSession("faulted")
	}
	o.logger.Error("group chat faulted", zap.Error(err))
	return err
}
