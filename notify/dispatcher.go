package notify

import (
	"context"
	"errors"
	"time"

	"github.com/rustyeddy/pairtrader/logging"
)

// Deliverer hands a notification to one destination.
type Deliverer interface {
	Deliver(ctx context.Context, n Notification) error
}

// LogDeliverer writes notifications to the log at their level.
type LogDeliverer struct {
	Log logging.LoggerInterface
}

func (d LogDeliverer) Deliver(_ context.Context, n Notification) error {
	switch n.Level {
	case Error:
		d.Log.Error("[%s] %s", n.Kind, n.Message)
	case Warning:
		d.Log.Warning("[%s] %s", n.Kind, n.Message)
	default:
		d.Log.Info("[%s] %s", n.Kind, n.Message)
	}
	return nil
}

// Dispatcher drains the queue. A notification is marked sent only after
// every deliverer accepted it, so a failure means it is retried later.
type Dispatcher struct {
	queue      *Queue
	deliverers []Deliverer
	interval   time.Duration
	log        logging.LoggerInterface
}

func NewDispatcher(q *Queue, interval time.Duration, log logging.LoggerInterface, ds ...Deliverer) *Dispatcher {
	if log == nil {
		log = logging.Nop()
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Dispatcher{queue: q, deliverers: ds, interval: interval, log: log}
}

// Flush delivers everything pending once and returns how many were sent.
func (d *Dispatcher) Flush(ctx context.Context) (int, error) {
	pending, err := d.queue.Pending()
	if err != nil {
		return 0, err
	}
	var sent []string
	var errs []error
	for _, n := range pending {
		ok := true
		for _, dl := range d.deliverers {
			if err := dl.Deliver(ctx, n); err != nil {
				errs = append(errs, err)
				ok = false
				break
			}
		}
		if ok {
			sent = append(sent, n.ID)
		}
	}
	if err := d.queue.MarkSent(sent...); err != nil {
		errs = append(errs, err)
	}
	return len(sent), errors.Join(errs...)
}

// Run flushes every interval until ctx is done.
func (d *Dispatcher) Run(ctx context.Context) {
	t := time.NewTicker(d.interval)
	defer t.Stop()
	for {
		if _, err := d.Flush(ctx); err != nil {
			d.log.Warning("notification delivery: %v", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}
