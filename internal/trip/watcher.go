package trip

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultWatchInterval is how often the watcher re-reads the history.
const DefaultWatchInterval = 30 * time.Second

// StatusEvent is a newly observed status change for an order.
type StatusEvent struct {
	OrderID string
	Entry   HistoryEntry
}

// Watcher polls the status history of one order and emits an event for
// every entry it has not seen before. The first poll seeds the baseline
// without emitting, so startup does not replay the whole history.
type Watcher struct {
	svc      *Service
	orderID  string
	interval time.Duration
	log      zerolog.Logger

	mu     sync.Mutex
	seen   map[string]bool
	seeded bool
}

// WatcherOpts holds parameters for creating a Watcher.
type WatcherOpts struct {
	Service  *Service
	OrderID  string
	Interval time.Duration // defaults to DefaultWatchInterval
	Logger   zerolog.Logger
}

// NewWatcher creates a Watcher.
func NewWatcher(opts WatcherOpts) (*Watcher, error) {
	if opts.Service == nil {
		return nil, fmt.Errorf("trip: watcher: service is required")
	}
	if opts.OrderID == "" {
		return nil, fmt.Errorf("trip: watcher: order id is required")
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultWatchInterval
	}
	return &Watcher{
		svc:      opts.Service,
		orderID:  opts.OrderID,
		interval: interval,
		log:      opts.Logger,
		seen:     make(map[string]bool),
	}, nil
}

// Poll runs one detection cycle and returns the status entries that are
// new since the previous cycle.
func (w *Watcher) Poll(ctx context.Context) ([]StatusEvent, error) {
	history, err := w.svc.History(ctx, w.orderID)
	if err != nil {
		return nil, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	var events []StatusEvent
	for _, e := range history {
		key := e.Stamp + "\x00" + e.Status
		if w.seen[key] {
			continue
		}
		w.seen[key] = true
		if w.seeded {
			events = append(events, StatusEvent{OrderID: w.orderID, Entry: e})
		}
	}
	if !w.seeded {
		w.seeded = true
	}
	return events, nil
}

// Run starts the watcher loop: one awaited initial poll to seed the
// baseline, then a fixed ticker until ctx is cancelled. New entries are
// emitted on the returned channel, which closes on teardown.
func (w *Watcher) Run(ctx context.Context) <-chan StatusEvent {
	ch := make(chan StatusEvent, 16)
	go func() {
		defer close(ch)

		emit := func(events []StatusEvent) {
			for _, e := range events {
				select {
				case ch <- e:
				case <-ctx.Done():
					return
				}
			}
		}

		if events, err := w.Poll(ctx); err != nil {
			w.log.Warn().Err(err).Msg("trip: initial status poll")
		} else {
			emit(events)
		}

		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				events, err := w.Poll(ctx)
				if err != nil {
					w.log.Warn().Err(err).Msg("trip: status poll")
					continue
				}
				emit(events)
			}
		}
	}()
	return ch
}

// Seeded reports whether the watcher has established its baseline.
func (w *Watcher) Seeded() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.seeded
}
