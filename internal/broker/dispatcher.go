package broker

import (
	"context"
	"sync"
	"time"

	"github.com/lostfound/backend/pkg/logger"
	"go.uber.org/zap"
)

const deliveryTimeout = 5 * time.Second

// Dispatcher is the outbound notification channel. Notify enqueues without
// blocking; a single goroutine fans each notification out to every sink.
// Delivery is best effort: sink failures are logged and never retried.
type Dispatcher struct {
	queue chan Notification
	sinks []Sink

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

func NewDispatcher(buffer int, sinks ...Sink) *Dispatcher {
	if buffer <= 0 {
		buffer = 1
	}

	d := &Dispatcher{
		queue: make(chan Notification, buffer),
		sinks: sinks,
		done:  make(chan struct{}),
	}
	go d.run()
	return d
}

// Notify implements Notifier. A full or closed queue drops the notification.
func (d *Dispatcher) Notify(n Notification) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		logger.Log.Warn("Notification dropped: dispatcher closed",
			zap.String("type", string(n.Type)),
			zap.String("item_id", n.ItemID.String()),
		)
		return
	}

	select {
	case d.queue <- n:
	default:
		logger.Log.Warn("Notification dropped: queue full",
			zap.String("type", string(n.Type)),
			zap.String("item_id", n.ItemID.String()),
			zap.Int("capacity", cap(d.queue)),
		)
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)

	for n := range d.queue {
		d.deliver(n)
	}
}

func (d *Dispatcher) deliver(n Notification) {
	for _, sink := range d.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)
		err := sink.Deliver(ctx, n)
		cancel()

		if err != nil {
			logger.Log.Error("Notification delivery failed",
				zap.String("sink", sink.Name()),
				zap.String("type", string(n.Type)),
				zap.String("notification_id", n.ID.String()),
				zap.Error(err),
			)
		}
	}
}

// Close stops accepting notifications and waits for queued ones to be delivered.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	<-d.done
}

// LogSink writes every notification to the application log.
type LogSink struct{}

func (LogSink) Name() string { return "log" }

func (LogSink) Deliver(_ context.Context, n Notification) error {
	fields := []zap.Field{
		zap.String("notification_id", n.ID.String()),
		zap.String("type", string(n.Type)),
		zap.String("audience", string(n.Audience)),
		zap.String("item_id", n.ItemID.String()),
		zap.String("message", n.Message),
	}
	if n.RecipientID != nil {
		fields = append(fields, zap.String("recipient_id", n.RecipientID.String()))
	}

	logger.Log.Info("Notification", fields...)
	return nil
}
