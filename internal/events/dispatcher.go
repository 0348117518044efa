package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EventHandler handles a published event.
type EventHandler func(context.Context, Event) error

// Dispatcher interface allows event publication/subscription.
type Dispatcher interface {
	// Publish hands the event to every subscriber and returns without waiting for them.
	Publish(ctx context.Context, event Event)
	Subscribe(eventType EventType, name string, handler EventHandler)
	// Wait blocks until in-flight handlers finish.
	Wait()
}

// FailureRecorder counts swallowed handler failures.
type FailureRecorder interface {
	RecordSideEffectFailure(name string)
}

type subscription struct {
	name    string
	handler EventHandler
}

// asyncDispatcher runs every handler in its own goroutine on a detached context.
type asyncDispatcher struct {
	mu        sync.RWMutex
	listeners map[EventType][]subscription
	wg        sync.WaitGroup
	logger    *zap.Logger
	failures  FailureRecorder
	timeout   time.Duration
}

// NewAsyncDispatcher creates a dispatcher instance. failures may be nil.
func NewAsyncDispatcher(logger *zap.Logger, failures FailureRecorder, timeout time.Duration) Dispatcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &asyncDispatcher{
		listeners: make(map[EventType][]subscription),
		logger:    logger,
		failures:  failures,
		timeout:   timeout,
	}
}

func (d *asyncDispatcher) Publish(ctx context.Context, event Event) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	d.mu.RLock()
	subs := append([]subscription{}, d.listeners[event.Type]...)
	d.mu.RUnlock()

	detached := context.WithoutCancel(ctx)
	for _, sub := range subs {
		d.wg.Add(1)
		go d.run(detached, sub, event)
	}
}

func (d *asyncDispatcher) run(ctx context.Context, sub subscription, event Event) {
	defer d.wg.Done()
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		return sub.handler(ctx, event)
	}()
	if err == nil {
		return
	}
	d.logger.Warn("event handler failed",
		zap.String("handler", sub.name),
		zap.String("event_type", string(event.Type)),
		zap.String("event_id", event.ID),
		zap.String("ticket_id", event.TicketID),
		zap.Error(err))
	if d.failures != nil {
		d.failures.RecordSideEffectFailure(sub.name)
	}
}

// Subscribe registers a handler for the given event type.
func (d *asyncDispatcher) Subscribe(eventType EventType, name string, handler EventHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listeners[eventType] = append(d.listeners[eventType], subscription{name: name, handler: handler})
}

func (d *asyncDispatcher) Wait() {
	d.wg.Wait()
}
