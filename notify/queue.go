// Package notify queues outbound notifications in a JSON file and delivers
// them at least once to the log and any websocket listeners.
package notify

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rustyeddy/pairtrader/internal/store"
	"github.com/rustyeddy/pairtrader/metrics"
)

type Level string

const (
	Info    Level = "info"
	Warning Level = "warning"
	Error   Level = "error"
)

type Notification struct {
	ID        string    `json:"id"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Sent      bool      `json:"sent"`
	Level     Level     `json:"level,omitempty"`
	Kind      string    `json:"kind,omitempty"`
}

// Sink accepts notifications from the engine.
type Sink interface {
	Publish(level Level, kind, message string) error
}

// Queue is the notification file. Each change rewrites the whole array.
type Queue struct {
	mu   sync.Mutex
	path string
	now  func() time.Time
}

func NewQueue(path string) *Queue {
	return &Queue{path: path, now: time.Now}
}

func (q *Queue) load() ([]Notification, error) {
	var ns []Notification
	if _, err := store.ReadJSON(q.path, &ns); err != nil {
		if errors.Is(err, store.ErrCorrupt) {
			return nil, nil
		}
		return nil, err
	}
	return ns, nil
}

func (q *Queue) Publish(level Level, kind, message string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	ns, err := q.load()
	if err != nil {
		return fmt.Errorf("notify: %w", err)
	}
	ns = append(ns, Notification{
		ID:        uuid.NewString(),
		Message:   message,
		Timestamp: q.now().UTC(),
		Level:     level,
		Kind:      kind,
	})
	if err := store.WriteJSON(q.path, ns); err != nil {
		return fmt.Errorf("notify: %w", err)
	}
	metrics.Notifications.WithLabelValues("queued").Inc()
	return nil
}

// List returns every queued notification, oldest first.
func (q *Queue) List() ([]Notification, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.load()
}

func (q *Queue) Pending() ([]Notification, error) {
	all, err := q.List()
	if err != nil {
		return nil, err
	}
	var out []Notification
	for _, n := range all {
		if !n.Sent {
			out = append(out, n)
		}
	}
	return out, nil
}

// MarkSent flags the given IDs as delivered.
func (q *Queue) MarkSent(ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	ns, err := q.load()
	if err != nil {
		return err
	}
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	for i := range ns {
		if want[ns[i].ID] && !ns[i].Sent {
			ns[i].Sent = true
			metrics.Notifications.WithLabelValues("sent").Inc()
		}
	}
	return store.WriteJSON(q.path, ns)
}

// Prune drops sent notifications older than age and returns how many went.
func (q *Queue) Prune(age time.Duration) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	ns, err := q.load()
	if err != nil {
		return 0, err
	}
	cutoff := q.now().Add(-age)
	kept := ns[:0]
	for _, n := range ns {
		if n.Sent && n.Timestamp.Before(cutoff) {
			continue
		}
		kept = append(kept, n)
	}
	removed := len(ns) - len(kept)
	if removed == 0 {
		return 0, nil
	}
	return removed, store.WriteJSON(q.path, kept)
}
