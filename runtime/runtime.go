package runtime

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/chatkernel/chatkernel/internal/metrics"
	"github.com/chatkernel/chatkernel/types"
)

// ErrMessageDropped is returned by Send when an intervention handler drops
// the request or its response. Published messages dropped by a handler are
// counted and silently skipped instead.
var ErrMessageDropped = errors.New("runtime: message dropped by intervention handler")

// Options configures a Runtime.
type Options struct {
	// MailboxSize is the per-actor queue capacity. Defaults to 64.
	MailboxSize int
	// PublishRate optionally throttles per-recipient fan-out of published
	// messages. Nil means unlimited.
	PublishRate *rate.Limiter
	// DropWhenFull makes delivery fail fast with a MAILBOX_OVERFLOW error
	// when the target mailbox is at capacity, instead of blocking the
	// sender until a slot frees up.
	DropWhenFull bool
	// Collector optionally records runtime metrics.
	Collector *metrics.Collector
}

// Runtime is an in-process actor runtime. Actor types are registered with
// explicit factories; instances are created lazily the first time an
// AgentID is addressed, one goroutine per instance.
type Runtime struct {
	mu        sync.RWMutex
	factories map[string]ActorFactory
	actors    map[AgentID]*actorRef
	subs      []Subscription
	handlers  []InterventionHandler
	closed    bool

	// quit is closed when Shutdown begins; senders tracks deliveries that
	// are past the closed check but not yet enqueued. Mailboxes are only
	// closed after every such sender has returned, so an enqueue can never
	// race a channel close.
	quit    chan struct{}
	senders sync.WaitGroup

	opts   Options
	group  *errgroup.Group
	logger *zap.Logger
}

type actorRef struct {
	id      AgentID
	actor   Actor
	mailbox chan delivery
	state   ActorState
}

type delivery struct {
	ctx  context.Context
	env  Envelope
	mctx MessageContext
	resp chan deliveryResult // nil for fire-and-forget
}

type deliveryResult struct {
	value any
	err   error
}

// NewRuntime creates an in-process runtime. logger may be nil.
func NewRuntime(opts Options, logger *zap.Logger) *Runtime {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.MailboxSize <= 0 {
		opts.MailboxSize = 64
	}
	return &Runtime{
		factories: make(map[string]ActorFactory),
		actors:    make(map[AgentID]*actorRef),
		quit:      make(chan struct{}),
		opts:      opts,
		group:     &errgroup.Group{},
		logger:    logger.With(zap.String("component", "actor_runtime")),
	}
}

// RegisterFactory registers the factory used to build instances of an
// actor type. Registering the same type twice is an error.
func (rt *Runtime) RegisterFactory(agentType string, factory ActorFactory) error {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.closed {
		return types.NewError(types.ErrRuntimeClosed, "runtime is closed")
	}
	if _, exists := rt.factories[agentType]; exists {
		return types.NewError(types.ErrTypeRegistered, "actor type already registered").WithAgent(agentType)
	}
	rt.factories[agentType] = factory
	rt.logger.Info("actor type registered", zap.String("type", agentType))
	return nil
}

// AddSubscription registers a topic subscription.
func (rt *Runtime) AddSubscription(sub Subscription) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.subs = append(rt.subs, sub)
	rt.logger.Info("subscription added", zap.String("subscription", sub.ID()))
}

// AddInterventionHandler appends a handler to the intervention chain.
// Handlers run in registration order.
func (rt *Runtime) AddInterventionHandler(h InterventionHandler) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.handlers = append(rt.handlers, h)
}

// Send delivers a message point-to-point and waits for the actor's
// response. Intervention handlers may rewrite the request (OnSend) and the
// reply (OnResponse); a drop at either point yields ErrMessageDropped.
func (rt *Runtime) Send(ctx context.Context, to AgentID, env Envelope, sender *AgentID) (any, error) {
	msg, dropped := rt.applySendHooks(ctx, env.Payload, sender, to)
	if dropped {
		if rt.opts.Collector != nil {
			rt.opts.Collector.ObserveDrop("send")
		}
		return nil, ErrMessageDropped
	}
	env.Payload = msg

	ref, err := rt.ensureActor(to)
	if err != nil {
		return nil, err
	}

	respCh := make(chan deliveryResult, 1)
	d := delivery{
		ctx: ctx,
		env: env,
		mctx: MessageContext{
			MessageID: env.ID,
			Sender:    sender,
			IsRPC:     true,
		},
		resp: respCh,
	}
	if err := rt.enqueue(ref, d); err != nil {
		return nil, err
	}

	select {
	case res := <-respCh:
		if res.err != nil {
			return nil, res.err
		}
		reply, dropped := rt.applyResponseHooks(ctx, res.value, to, sender)
		if dropped {
			if rt.opts.Collector != nil {
				rt.opts.Collector.ObserveDrop("response")
			}
			return nil, ErrMessageDropped
		}
		return reply, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Publish broadcasts a message to every actor instance subscribed to the
// topic. Delivery is fire-and-forget; a handler drop suppresses the whole
// broadcast.
func (rt *Runtime) Publish(ctx context.Context, topic TopicID, env Envelope, sender *AgentID) error {
	msg, dropped := rt.applyPublishHooks(ctx, env.Payload, sender, topic)
	if dropped {
		if rt.opts.Collector != nil {
			rt.opts.Collector.ObserveDrop("publish")
		}
		rt.logger.Debug("publish dropped by intervention handler", zap.String("topic", topic.String()))
		return nil
	}
	env.Payload = msg

	rt.mu.RLock()
	subs := make([]Subscription, len(rt.subs))
	copy(subs, rt.subs)
	rt.mu.RUnlock()

	delivered := 0
	for _, sub := range subs {
		if !sub.Matches(topic) {
			continue
		}
		if rt.opts.PublishRate != nil {
			if err := rt.opts.PublishRate.Wait(ctx); err != nil {
				return err
			}
		}

		to := sub.MapToAgent(topic)
		ref, err := rt.ensureActor(to)
		if err != nil {
			return fmt.Errorf("resolve subscriber %s: %w", to, err)
		}

		d := delivery{
			ctx: ctx,
			env: env,
			mctx: MessageContext{
				MessageID: env.ID,
				Sender:    sender,
				Topic:     &topic,
			},
		}
		if err := rt.enqueue(ref, d); err != nil {
			return err
		}
		delivered++
	}

	rt.logger.Debug("message published",
		zap.String("topic", topic.String()),
		zap.Int("recipients", delivered),
	)
	return nil
}

// ActorState reports the lifecycle state of an instance.
func (rt *Runtime) ActorState(id AgentID) ActorState {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	if ref, ok := rt.actors[id]; ok {
		return ref.state
	}
	return ActorUnregistered
}

// Shutdown unblocks pending senders, closes every mailbox, waits for
// in-flight messages to drain, and runs deactivation hooks.
func (rt *Runtime) Shutdown(ctx context.Context) error {
	rt.mu.Lock()
	if rt.closed {
		rt.mu.Unlock()
		return nil
	}
	rt.closed = true
	refs := make([]*actorRef, 0, len(rt.actors))
	for _, ref := range rt.actors {
		refs = append(refs, ref)
	}
	rt.mu.Unlock()

	// Senders parked on a full mailbox wake on quit; new enqueues are
	// rejected by the closed flag. Only then is closing the mailboxes safe.
	close(rt.quit)
	rt.senders.Wait()
	for _, ref := range refs {
		close(ref.mailbox)
	}
	if err := rt.group.Wait(); err != nil {
		return err
	}

	for _, ref := range refs {
		if d, ok := ref.actor.(Deactivatable); ok {
			if err := d.OnDeactivate(ctx); err != nil {
				rt.logger.Warn("actor deactivation failed",
					zap.String("actor", ref.id.String()),
					zap.Error(err),
				)
			}
		}
		rt.mu.Lock()
		ref.state = ActorDeactivated
		rt.mu.Unlock()
	}
	rt.logger.Info("runtime shut down", zap.Int("actors", len(refs)))
	return nil
}

// ensureActor returns the instance for id, creating and activating it on
// first use.
func (rt *Runtime) ensureActor(id AgentID) (*actorRef, error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.closed {
		return nil, types.NewError(types.ErrRuntimeClosed, "runtime is closed")
	}
	if ref, ok := rt.actors[id]; ok {
		return ref, nil
	}

	factory, ok := rt.factories[id.Type]
	if !ok {
		return nil, types.NewError(types.ErrActorNotFound, "no factory registered for actor type").WithAgent(id.Type)
	}
	actor, err := factory(rt, id)
	if err != nil {
		return nil, fmt.Errorf("build actor %s: %w", id, err)
	}
	if a, ok := actor.(Activatable); ok {
		if err := a.OnActivate(context.Background()); err != nil {
			return nil, fmt.Errorf("activate actor %s: %w", id, err)
		}
	}

	ref := &actorRef{
		id:      id,
		actor:   actor,
		mailbox: make(chan delivery, rt.opts.MailboxSize),
		state:   ActorActivated,
	}
	rt.actors[id] = ref
	rt.group.Go(func() error {
		rt.actorLoop(ref)
		return nil
	})
	rt.logger.Debug("actor activated", zap.String("actor", id.String()))
	return ref, nil
}

func (rt *Runtime) enqueue(ref *actorRef, d delivery) error {
	rt.mu.RLock()
	if rt.closed {
		rt.mu.RUnlock()
		return types.NewError(types.ErrRuntimeClosed, "runtime is closed")
	}
	rt.senders.Add(1)
	rt.mu.RUnlock()
	defer rt.senders.Done()

	if rt.opts.DropWhenFull {
		select {
		case ref.mailbox <- d:
			if rt.opts.Collector != nil {
				rt.opts.Collector.SetMailboxDepth(ref.id.Type, len(ref.mailbox))
			}
			return nil
		default:
			if rt.opts.Collector != nil {
				rt.opts.Collector.ObserveDrop("overflow")
			}
			return types.NewError(types.ErrMailboxOverflow, "actor mailbox is full").WithAgent(ref.id.Type)
		}
	}

	select {
	case ref.mailbox <- d:
		if rt.opts.Collector != nil {
			rt.opts.Collector.SetMailboxDepth(ref.id.Type, len(ref.mailbox))
		}
		return nil
	case <-rt.quit:
		return types.NewError(types.ErrRuntimeClosed, "runtime is closed")
	case <-d.ctx.Done():
		return d.ctx.Err()
	}
}

// actorLoop drains one instance's mailbox strictly sequentially.
// Cancellation is checked here, at the delivery boundary: a cancelled
// delivery is skipped without invoking the actor and is not an error.
func (rt *Runtime) actorLoop(ref *actorRef) {
	for d := range ref.mailbox {
		if d.ctx.Err() != nil {
			if d.resp != nil {
				d.resp <- deliveryResult{err: d.ctx.Err()}
			}
			continue
		}

		value, err := ref.actor.OnMessage(d.ctx, d.env, d.mctx)
		if rt.opts.Collector != nil {
			rt.opts.Collector.ObserveDelivery(ref.id.Type)
			rt.opts.Collector.SetMailboxDepth(ref.id.Type, len(ref.mailbox))
		}
		if d.resp != nil {
			d.resp <- deliveryResult{value: value, err: err}
		} else if err != nil {
			rt.logger.Warn("actor message handling failed",
				zap.String("actor", ref.id.String()),
				zap.String("message_id", d.env.ID),
				zap.Error(err),
			)
		}
	}
}

func (rt *Runtime) applySendHooks(ctx context.Context, msg any, sender *AgentID, to AgentID) (any, bool) {
	rt.mu.RLock()
	handlers := rt.handlers
	rt.mu.RUnlock()
	for _, h := range handlers {
		result := h.OnSend(ctx, msg, sender, to)
		next, dropped := normalizeHookResult(result, msg, "on_send", rt.logger)
		if dropped {
			return nil, true
		}
		msg = next
	}
	return msg, false
}

func (rt *Runtime) applyPublishHooks(ctx context.Context, msg any, sender *AgentID, topic TopicID) (any, bool) {
	rt.mu.RLock()
	handlers := rt.handlers
	rt.mu.RUnlock()
	for _, h := range handlers {
		result := h.OnPublish(ctx, msg, sender, topic)
		next, dropped := normalizeHookResult(result, msg, "on_publish", rt.logger)
		if dropped {
			return nil, true
		}
		msg = next
	}
	return msg, false
}

func (rt *Runtime) applyResponseHooks(ctx context.Context, msg any, sender AgentID, recipient *AgentID) (any, bool) {
	if msg == nil {
		// Nothing for the hooks to rewrite or drop.
		return nil, false
	}
	rt.mu.RLock()
	handlers := rt.handlers
	rt.mu.RUnlock()
	for _, h := range handlers {
		result := h.OnResponse(ctx, msg, sender, recipient)
		next, dropped := normalizeHookResult(result, msg, "on_response", rt.logger)
		if dropped {
			return nil, true
		}
		msg = next
	}
	return msg, false
}
