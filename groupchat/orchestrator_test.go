package groupchat

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatkernel/chatkernel/history"
	"github.com/chatkernel/chatkernel/types"
)

// streamingFakeAgent emits its scripted chunks over channels.
type streamingFakeAgent struct {
	fakeAgent
	chunks []string
}

func (a *streamingFakeAgent) InvokeStream(_ context.Context, _ []types.Message) (<-chan types.Message, <-chan error) {
	msgCh := make(chan types.Message)
	errCh := make(chan error, 1)
	go func() {
		defer close(msgCh)
		defer close(errCh)
		for _, c := range a.chunks {
			msgCh <- types.NewAssistantMessage(c)
		}
	}()
	return msgCh, errCh
}

func neverTerminate() *PredicateTermination {
	return &PredicateTermination{
		Predicate: func(_ context.Context, _ types.Agent, _ []types.Message) (bool, error) {
			return false, nil
		},
	}
}

func TestOrchestrator_RequiresAgents(t *testing.T) {
	t.Parallel()
	_, err := NewOrchestrator(nil, NewSequentialSelection(nil), neverTerminate(), DefaultConfig(), nil)
	require.Error(t, err)
	assert.Equal(t, types.ErrNoAgents, errCode(t, err))
}

func TestOrchestrator_MaximumIterationsHardStop(t *testing.T) {
	t.Parallel()
	writer := newFakeAgent("writer")
	o, err := NewOrchestrator(
		[]types.Agent{writer},
		NewSequentialSelection(nil),
		neverTerminate(),
		Config{MaximumIterations: 3},
		nil,
	)
	require.NoError(t, err)

	o.AddChatMessage(types.NewUserMessage("write a slogan"))
	produced, err := o.Invoke(context.Background())
	require.NoError(t, err)

	assert.Len(t, produced, 3)
	assert.Equal(t, 3, writer.calls)
	assert.True(t, o.IsComplete())
	assert.Equal(t, StateCompleted, o.State())
	assert.Len(t, o.History(), 4) // seed plus one message per turn
}

func TestOrchestrator_WriterReviewerApproval(t *testing.T) {
	t.Parallel()
	writer := newFakeAgent("writer", "draft 1", "draft 2", "draft 3")
	reviewer := newFakeAgent("reviewer", "too long", "still too long", "approved")
	o, err := NewOrchestrator(
		[]types.Agent{writer, reviewer},
		NewSequentialSelection(nil),
		NewApprovalTermination(nil, "reviewer"),
		Config{MaximumIterations: 20},
		nil,
	)
	require.NoError(t, err)

	o.AddChatMessage(types.NewUserMessage("write a slogan for an espresso machine"))
	produced, err := o.Invoke(context.Background())
	require.NoError(t, err)

	// writer/reviewer alternate; the reviewer approves on the third round.
	require.Len(t, produced, 6)
	assert.Equal(t, "writer", produced[0].Name)
	assert.Equal(t, "reviewer", produced[1].Name)
	assert.Equal(t, "approved", produced[5].Content)
	assert.True(t, o.IsComplete())
}

func TestOrchestrator_ApprovalScopeIgnoresWriter(t *testing.T) {
	t.Parallel()
	// The writer parrots "approved" but is outside the termination scope, so
	// the loop only stops when the reviewer says it.
	writer := newFakeAgent("writer", "approved", "approved")
	reviewer := newFakeAgent("reviewer", "approved")
	o, err := NewOrchestrator(
		[]types.Agent{writer, reviewer},
		NewSequentialSelection(nil),
		NewApprovalTermination(nil, "reviewer"),
		Config{MaximumIterations: 20},
		nil,
	)
	require.NoError(t, err)

	o.AddChatMessage(types.NewUserMessage("go"))
	produced, err := o.Invoke(context.Background())
	require.NoError(t, err)

	assert.Len(t, produced, 2)
	assert.Equal(t, "reviewer", produced[1].Name)
}

func TestOrchestrator_AgentErrorFaults(t *testing.T) {
	t.Parallel()
	broken := newFakeAgent("broken")
	broken.err = errors.New("provider returned 500")
	o, err := NewOrchestrator(
		[]types.Agent{broken},
		NewSequentialSelection(nil),
		neverTerminate(),
		DefaultConfig(),
		nil,
	)
	require.NoError(t, err)

	_, err = o.Invoke(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, broken.err)
	assert.Equal(t, StateFaulted, o.State())
	assert.True(t, o.IsComplete())

	// A faulted orchestrator refuses to run again until Reset.
	_, err = o.Invoke(context.Background())
	require.Error(t, err)
	assert.Equal(t, types.ErrInvalidTransition, errCode(t, err))

	o.Reset()
	assert.Equal(t, StateIdle, o.State())
}

func TestOrchestrator_StreamingAgentFullyDrained(t *testing.T) {
	t.Parallel()
	streamer := &streamingFakeAgent{
		fakeAgent: *newFakeAgent("streamer"),
		chunks:    []string{"part one", "part two", "part three"},
	}
	o, err := NewOrchestrator(
		[]types.Agent{streamer},
		NewSequentialSelection(nil),
		neverTerminate(),
		Config{MaximumIterations: 2},
		nil,
	)
	require.NoError(t, err)

	o.AddChatMessage(types.NewUserMessage("go"))
	produced, err := o.Invoke(context.Background())
	require.NoError(t, err)

	// Each turn drains all three chunks before the next turn begins.
	require.Len(t, produced, 6)
	assert.Equal(t, "part one", produced[0].Content)
	assert.Equal(t, "part three", produced[2].Content)
	assert.Equal(t, "part one", produced[3].Content)
}

func TestOrchestrator_InvokeStreamDeliversInOrder(t *testing.T) {
	t.Parallel()
	writer := newFakeAgent("writer", "draft")
	reviewer := newFakeAgent("reviewer", "approved")
	o, err := NewOrchestrator(
		[]types.Agent{writer, reviewer},
		NewSequentialSelection(nil),
		NewApprovalTermination(nil, "reviewer"),
		Config{MaximumIterations: 10},
		nil,
	)
	require.NoError(t, err)

	o.AddChatMessage(types.NewUserMessage("go"))
	msgCh, errCh := o.InvokeStream(context.Background())

	var got []string
	for msg := range msgCh {
		got = append(got, msg.Content)
	}
	require.NoError(t, <-errCh)
	assert.Equal(t, []string{"draft", "approved"}, got)
	assert.True(t, o.IsComplete())
}

// pairAgent produces a draft and an approval in the same turn.
type pairAgent struct{ fakeAgent }

func (a *pairAgent) Invoke(_ context.Context, _ []types.Message) ([]types.Message, error) {
	a.calls++
	return []types.Message{
		types.NewAssistantMessage("draft"),
		types.NewAssistantMessage("approved"),
	}, nil
}

func TestOrchestrator_StreamConsumerInspectsStateBetweenReceives(t *testing.T) {
	t.Parallel()
	writer := &pairAgent{fakeAgent: fakeAgent{id: "agent-writer", name: "writer"}}
	o, err := NewOrchestrator(
		[]types.Agent{writer},
		NewSequentialSelection(nil),
		NewApprovalTermination(nil, "writer"),
		Config{MaximumIterations: 5},
		nil,
	)
	require.NoError(t, err)

	o.AddChatMessage(types.NewUserMessage("go"))
	msgCh, errCh := o.InvokeStream(context.Background())

	var got []string
	for msg := range msgCh {
		// Taking the orchestrator lock between receives must not block the
		// producer when a single turn emits several messages.
		_ = o.IsComplete()
		_ = o.History()
		got = append(got, msg.Content)
	}
	require.NoError(t, <-errCh)
	assert.Equal(t, []string{"draft", "approved"}, got)
	assert.True(t, o.IsComplete())
}

func TestOrchestrator_CancellationFaults(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	o, err := NewOrchestrator(
		[]types.Agent{newFakeAgent("writer")},
		NewSequentialSelection(nil),
		neverTerminate(),
		DefaultConfig(),
		nil,
	)
	require.NoError(t, err)

	_, err = o.Invoke(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateFaulted, o.State())
}

func TestOrchestrator_ResetKeepsSelectionCursor(t *testing.T) {
	t.Parallel()
	sel := NewSequentialSelection(nil)
	o, err := NewOrchestrator(
		[]types.Agent{newFakeAgent("a"), newFakeAgent("b")},
		sel,
		neverTerminate(),
		Config{MaximumIterations: 1},
		nil,
	)
	require.NoError(t, err)

	_, err = o.Invoke(context.Background())
	require.NoError(t, err)

	o.Reset()
	assert.Empty(t, o.History())

	// The rotation cursor survives Reset: the next run starts with b.
	produced, err := o.Invoke(context.Background())
	require.NoError(t, err)
	require.Len(t, produced, 1)
	assert.Equal(t, "b", produced[0].Name)
}

func TestOrchestrator_SwarmHandoffFlow(t *testing.T) {
	t.Parallel()
	// Triage hands off to billing on its first turn; billing then keeps the
	// floor and resolves the request.
	triage := &handoffAgent{fakeAgent: *newFakeAgent("triage"), target: "billing"}
	billing := newFakeAgent("billing", "refund issued, approved")

	o, err := NewOrchestrator(
		[]types.Agent{triage, billing},
		NewSwarmSelection(nil),
		NewApprovalTermination(nil, "billing"),
		Config{MaximumIterations: 10},
		nil,
	)
	require.NoError(t, err)

	o.AddChatMessage(types.NewUserMessage("I want a refund"))
	produced, err := o.Invoke(context.Background())
	require.NoError(t, err)

	require.Len(t, produced, 2)
	assert.NotNil(t, produced[0].HandoffTarget())
	assert.Equal(t, "billing", produced[1].Name)
	assert.True(t, o.IsComplete())
}

// handoffAgent emits a handoff to target on every turn.
type handoffAgent struct {
	fakeAgent
	target string
}

func (a *handoffAgent) Invoke(_ context.Context, _ []types.Message) ([]types.Message, error) {
	a.calls++
	return []types.Message{types.NewHandoffMessage("call_h", "transfer_to_"+a.target, a.target)}, nil
}

func TestOrchestrator_ReduceHistoryBetweenRuns(t *testing.T) {
	t.Parallel()
	o, err := NewOrchestrator(
		[]types.Agent{newFakeAgent("writer")},
		NewSequentialSelection(nil),
		neverTerminate(),
		Config{MaximumIterations: 8},
		nil,
	)
	require.NoError(t, err)

	o.AddChatMessage(types.NewUserMessage("go"))
	_, err = o.Invoke(context.Background())
	require.NoError(t, err)
	require.Len(t, o.History(), 9)

	r := history.NewTruncationReducer(history.ReducerConfig{TargetCount: 4, ThresholdCount: 1}, nil)
	changed, err := o.ReduceHistory(context.Background(), r)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Len(t, o.History(), 4)
}
