package notify

import (
	model "auction-engine/internal/models"
	"auction-engine/utils"
	"context"
	"errors"
	"sync"
	"time"

	"github.com/smallnest/chanx"
)

// ErrDispatcherClosed is returned by Dispatch after Close
var ErrDispatcherClosed = errors.New("dispatcher is closed")

// Dispatcher hands event batches to a Notifier on a background goroutine.
// The queue is unbounded so a slow notifier never blocks bid processing.
type Dispatcher struct {
	notifier Notifier
	timeout  time.Duration
	queue    *chanx.UnboundedChan[[]model.Event]
	cancel   context.CancelFunc
	done     chan struct{}

	mu     sync.Mutex
	closed bool
}

// NewDispatcher starts the delivery goroutine. timeout bounds each Notify call.
func NewDispatcher(notifier Notifier, timeout time.Duration) *Dispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		notifier: notifier,
		timeout:  timeout,
		queue:    chanx.NewUnboundedChan[[]model.Event](ctx, 64),
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go d.run()
	return d
}

// Dispatch queues events for delivery and returns immediately
func (d *Dispatcher) Dispatch(events []model.Event) error {
	if len(events) == 0 {
		return nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrDispatcherClosed
	}
	d.queue.In <- events
	return nil
}

// Pending reports how many batches are waiting for delivery
func (d *Dispatcher) Pending() int {
	return d.queue.Len()
}

// Close stops accepting events, delivers everything already queued and waits
// for the delivery goroutine, or gives up when ctx is done
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue.In)
	d.mu.Unlock()

	defer d.cancel()
	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for events := range d.queue.Out {
		d.deliver(events)
	}
}

func (d *Dispatcher) deliver(events []model.Event) {
	ctx := context.Background()
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	if err := d.notifier.Notify(ctx, events); err != nil {
		utils.Warn("Event delivery failed", map[string]any{
			"auction_id": events[0].AuctionID,
			"events":     len(events),
			"error":      err.Error(),
		})
	}
}
