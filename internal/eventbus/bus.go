// Package eventbus carries domain events between producers and subscribers
// inside the process. Dispatch is asynchronous: Publish returns immediately
// and each subscription drains its own FIFO on a dedicated goroutine, so
// every handler observes events in publish order while handlers never block
// one another.
package eventbus

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/floorcast/floorcast/internal/queue"
)

// Handler processes a single event variant. Errors are logged with the
// handler name and isolated; context.Canceled is never logged as a failure.
type Handler func(ctx context.Context, event Event) error

// Bus dispatches events to subscribed handlers keyed by variant.
type Bus struct {
	log    *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc

	mu   sync.Mutex
	subs map[Kind][]*subscription
	wg   sync.WaitGroup
}

type subscription struct {
	name    string
	handler Handler
	pending *queue.Queue[Event]
}

// New creates an empty bus. Close releases its subscription goroutines.
func New(log *zap.Logger) *Bus {
	ctx, cancel := context.WithCancel(context.Background())
	return &Bus{
		log:    log,
		ctx:    ctx,
		cancel: cancel,
		subs:   map[Kind][]*subscription{},
	}
}

// Subscribe registers a handler for one event variant and returns an
// idempotent unsubscribe function. A dispatch already in flight when
// unsubscribe is called may still run to completion.
func (b *Bus) Subscribe(kind Kind, name string, handler Handler) func() {
	sub := &subscription{
		name:    name,
		handler: handler,
		pending: queue.New[Event](),
	}

	b.mu.Lock()
	b.subs[kind] = append(b.subs[kind], sub)
	b.mu.Unlock()

	go b.drain(sub)

	var once sync.Once
	return func() {
		once.Do(func() { b.unsubscribe(kind, sub) })
	}
}

// Publish enqueues the event for every handler subscribed to its variant
// and returns immediately.
func (b *Bus) Publish(event Event) {
	b.mu.Lock()
	subs := b.subs[event.Kind()]
	for _, sub := range subs {
		b.wg.Add(1)
		if !sub.pending.Push(event) {
			b.wg.Done()
		}
	}
	b.mu.Unlock()
}

// WaitAll blocks until every published event has been dispatched. Used by
// graceful shutdown and tests.
func (b *Bus) WaitAll() {
	b.wg.Wait()
}

// Close cancels handler contexts and stops all subscription goroutines.
// Pending undelivered events are dropped.
func (b *Bus) Close() {
	b.cancel()
	b.mu.Lock()
	var dropped int
	for kind, subs := range b.subs {
		for _, sub := range subs {
			dropped += sub.pending.Close()
		}
		delete(b.subs, kind)
	}
	b.mu.Unlock()
	for i := 0; i < dropped; i++ {
		b.wg.Done()
	}
}

func (b *Bus) unsubscribe(kind Kind, target *subscription) {
	b.mu.Lock()
	subs := b.subs[kind]
	for i, sub := range subs {
		if sub == target {
			b.subs[kind] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	dropped := target.pending.Close()
	b.mu.Unlock()

	for i := 0; i < dropped; i++ {
		b.wg.Done()
	}
}

func (b *Bus) drain(sub *subscription) {
	for {
		event, ok := sub.pending.Pop()
		if !ok {
			return
		}
		b.dispatch(sub, event)
		b.wg.Done()
	}
}

func (b *Bus) dispatch(sub *subscription, event Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("event handler panicked",
				zap.String("handler", sub.name),
				zap.String("kind", string(event.Kind())),
				zap.Any("panic", r))
		}
	}()

	err := sub.handler(b.ctx, event)
	if err != nil && !errors.Is(err, context.Canceled) {
		b.log.Warn("event handler failed",
			zap.String("handler", sub.name),
			zap.String("kind", string(event.Kind())),
			zap.Error(err))
	}
}
