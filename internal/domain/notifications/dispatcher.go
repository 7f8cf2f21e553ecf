package notifications

import (
	"context"
	"log/slog"
	"sync"
)

type Counter interface {
	NotificationSent()
	NotificationFailed()
	NotificationDropped()
}

// Dispatcher queues events and delivers them from a background worker. The
// worker outlives the context it was started with and runs until Stop.
type Dispatcher struct {
	service *Service
	metrics Counter
	queue   chan Event
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewDispatcher(service *Service, metrics Counter, queueSize int) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 128
	}
	return &Dispatcher{service: service, metrics: metrics, queue: make(chan Event, queueSize)}
}

// Start launches the worker. ctx supplies values only; cancelling it does
// not stop delivery.
func (d *Dispatcher) Start(ctx context.Context) {
	ctx, d.cancel = context.WithCancel(context.WithoutCancel(ctx))
	d.wg.Add(1)
	go d.worker(ctx)
}

// Stop delivers what is queued and waits for the worker to exit. Call it
// once nothing can Emit anymore.
func (d *Dispatcher) Stop() {
	if d.cancel != nil {
		d.cancel()
	}
	d.wg.Wait()
}

func (d *Dispatcher) Emit(ctx context.Context, e Event) {
	select {
	case d.queue <- e:
	default:
		slog.Warn("notification queue full", "type", e.Type, "requestId", e.RequestID)
		if d.metrics != nil {
			d.metrics.NotificationDropped()
		}
	}
}

func (d *Dispatcher) worker(ctx context.Context) {
	defer d.wg.Done()
	deliverCtx := context.WithoutCancel(ctx)
	for {
		select {
		case <-ctx.Done():
			d.drain(deliverCtx)
			return
		case e := <-d.queue:
			d.deliver(deliverCtx, e)
		}
	}
}

func (d *Dispatcher) drain(ctx context.Context) {
	for {
		select {
		case e := <-d.queue:
			d.deliver(ctx, e)
		default:
			return
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, e Event) {
	if err := d.service.Deliver(ctx, e); err != nil {
		slog.Warn("notification delivery failed", "type", e.Type, "requestId", e.RequestID, "err", err)
		if d.metrics != nil {
			d.metrics.NotificationFailed()
		}
		return
	}
	if d.metrics != nil {
		d.metrics.NotificationSent()
	}
}
