package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/chatkernel/chatkernel/runtime/state"
	"github.com/chatkernel/chatkernel/types"
)

// MessageBuffer is a durable FIFO queue of envelopes owned by one actor
// instance. Every mutation persists the full queue snapshot, so in-flight
// messages survive actor restarts with at-least-once semantics. There is no
// incremental append optimization: correctness over throughput.
type MessageBuffer struct {
	store state.Store
	key   string
	queue []Envelope

	logger *zap.Logger
}

// NewMessageBuffer creates a buffer bound to the given store key and
// rehydrates any previously persisted queue. A missing snapshot initializes
// an empty queue.
func NewMessageBuffer(ctx context.Context, store state.Store, key string, logger *zap.Logger) (*MessageBuffer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &MessageBuffer{
		store:  store,
		key:    key,
		logger: logger.With(zap.String("component", "message_buffer"), zap.String("key", key)),
	}

	data, err := store.Load(ctx, key)
	switch {
	case errors.Is(err, state.ErrNotFound):
		// First activation for this key.
	case err != nil:
		return nil, types.NewError(types.ErrStateUnavailable,
			fmt.Sprintf("rehydrate message buffer %q", key)).WithCause(err).WithRetryable(true)
	default:
		if err := json.Unmarshal(data, &b.queue); err != nil {
			return nil, fmt.Errorf("decode message buffer snapshot %q: %w", key, err)
		}
		b.logger.Info("message buffer rehydrated", zap.Int("pending", len(b.queue)))
	}
	return b, nil
}

// Len returns the number of queued envelopes.
func (b *MessageBuffer) Len() int {
	return len(b.queue)
}

// Enqueue appends an envelope and persists the updated queue snapshot.
func (b *MessageBuffer) Enqueue(ctx context.Context, env Envelope) error {
	b.queue = append(b.queue, env)
	if err := b.persist(ctx); err != nil {
		// Roll the in-memory append back so memory and durable state agree.
		b.queue = b.queue[:len(b.queue)-1]
		return err
	}
	return nil
}

// DequeueAll drains the queue, persists the now-empty state, and returns
// the drained envelopes in FIFO order.
func (b *MessageBuffer) DequeueAll(ctx context.Context) ([]Envelope, error) {
	if len(b.queue) == 0 {
		return nil, nil
	}
	drained := b.queue
	b.queue = nil
	if err := b.persist(ctx); err != nil {
		b.queue = drained
		return nil, err
	}
	return drained, nil
}

func (b *MessageBuffer) persist(ctx context.Context) error {
	data, err := json.Marshal(b.queue)
	if err != nil {
		return fmt.Errorf("encode message buffer snapshot %q: %w", b.key, err)
	}
	if err := b.store.Save(ctx, b.key, data); err != nil {
		return types.NewError(types.ErrStateUnavailable,
			fmt.Sprintf("persist message buffer %q", b.key)).WithCause(err).WithRetryable(true)
	}
	return nil
}

// Envelope kinds understood by BufferActor.
const (
	KindEnqueue    = "enqueue"
	KindDequeueAll = "dequeue_all"
)

// BufferActor exposes a MessageBuffer as an addressable actor: KindEnqueue
// messages append their envelope, KindDequeueAll drains the queue and
// returns the pending envelopes to the sender.
type BufferActor struct {
	buffer *MessageBuffer
}

// NewBufferActorFactory returns an ActorFactory producing one durable
// buffer per actor instance, keyed by the instance identity.
func NewBufferActorFactory(store state.Store, logger *zap.Logger) ActorFactory {
	return func(_ *Runtime, id AgentID) (Actor, error) {
		buffer, err := NewMessageBuffer(context.Background(), store, id.String(), logger)
		if err != nil {
			return nil, err
		}
		return &BufferActor{buffer: buffer}, nil
	}
}

// OnMessage implements Actor.
func (a *BufferActor) OnMessage(ctx context.Context, env Envelope, _ MessageContext) (any, error) {
	switch env.Kind {
	case KindEnqueue:
		return nil, a.buffer.Enqueue(ctx, env)
	case KindDequeueAll:
		return a.buffer.DequeueAll(ctx)
	default:
		return nil, fmt.Errorf("buffer actor: unsupported message kind %q", env.Kind)
	}
}

var _ Actor = (*BufferActor)(nil)
