package queue

import (
	"context"
	"hash/fnv"

	"github.com/rs/zerolog"

	"github.com/ovialab/admin-portal/internal/core/ports"
)

const (
	defaultWorkers = 4
	channelBuffer  = 256
)

// Dispatcher decorates a ChangeFeed with asynchronous publication. Events are
// routed to a fixed set of workers using consistent hashing on the user id,
// guaranteeing per-user delivery order: a tab never sees an older forced
// logout timestamp after a newer one.
type Dispatcher struct {
	workers []chan ports.ProfileEvent
	feed    ports.ChangeFeed
	log     zerolog.Logger
}

// NewDispatcher creates a Dispatcher with numWorkers sharded workers in front
// of feed. If numWorkers <= 0, defaultWorkers is used.
func NewDispatcher(numWorkers int, feed ports.ChangeFeed, log zerolog.Logger) *Dispatcher {
	if numWorkers <= 0 {
		numWorkers = defaultWorkers
	}
	d := &Dispatcher{
		workers: make([]chan ports.ProfileEvent, numWorkers),
		feed:    feed,
		log:     log,
	}
	for i := range d.workers {
		d.workers[i] = make(chan ports.ProfileEvent, channelBuffer)
	}
	return d
}

// Start launches all worker goroutines. Workers stop when ctx is cancelled.
func (d *Dispatcher) Start(ctx context.Context) {
	for i, ch := range d.workers {
		go d.runWorker(ctx, i, ch)
	}
}

// Subscribe delegates to the underlying feed.
func (d *Dispatcher) Subscribe(ctx context.Context, userID string) (ports.FeedSubscription, error) {
	return d.feed.Subscribe(ctx, userID)
}

// Publish hands the event to the worker responsible for its user. Publication
// is best-effort: when the worker's buffer is full the event is dropped and
// logged, and stale sessions are still caught by the gate on the next request.
func (d *Dispatcher) Publish(_ context.Context, event ports.ProfileEvent) error {
	select {
	case d.workers[d.shardIndex(event.UserID)] <- event:
	default:
		d.log.Warn().Str("user_id", event.UserID).Msg("profile event dropped, worker saturated")
	}
	return nil
}

// shardIndex maps a user id deterministically to a worker index.
func (d *Dispatcher) shardIndex(userID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return int(h.Sum32()) % len(d.workers)
}

func (d *Dispatcher) runWorker(ctx context.Context, id int, ch <-chan ports.ProfileEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			if err := d.feed.Publish(ctx, event); err != nil {
				d.log.Error().Err(err).
					Str("user_id", event.UserID).
					Int("worker_id", id).
					Msg("profile event publication failed")
			}
		}
	}
}
