// Package broadcaster fans events out to an arbitrary number of
// subscribers, isolating slow consumers with bounded per-subscriber
// queues that drop the oldest entry under overload. Subscriber
// bookkeeping uses a mutex-guarded map of per-key state, updated under
// a short-held lock while the actual work happens outside it.
package broadcaster

import (
	"sync"

	"github.com/fleetwatch/monitor/internal/domain"
	"github.com/fleetwatch/monitor/internal/logger"
)

const defaultQueueDepth = 256

// Filter restricts which events a Subscription receives. A nil/zero
// Filter matches everything.
type Filter struct {
	Kinds      map[domain.EventKind]struct{}
	ServiceIDs map[string]struct{}
}

// Matches reports whether e passes f. An empty Kinds or ServiceIDs set
// means "don't filter on this dimension."
func (f Filter) Matches(e domain.Event) bool {
	if len(f.Kinds) > 0 {
		if _, ok := f.Kinds[e.Kind]; !ok {
			return false
		}
	}
	if len(f.ServiceIDs) > 0 {
		if _, ok := f.ServiceIDs[e.ServiceID()]; !ok {
			return false
		}
	}
	return true
}

// Subscription is a live handle to a subscriber's bounded event queue.
type Subscription struct {
	id     uint64
	events chan domain.Event
	b      *Broadcaster
}

// Events returns the channel to range over for delivered events.
func (s *Subscription) Events() <-chan domain.Event { return s.events }

// Close unregisters the subscription and closes its channel.
func (s *Subscription) Close() { s.b.unsubscribe(s.id) }

type subscriber struct {
	id     uint64
	filter Filter
	queue  chan domain.Event
}

// Broadcaster is the pub/sub fan-out fabric (spec §4.5).
type Broadcaster struct {
	mu          sync.Mutex
	subscribers map[uint64]*subscriber
	nextID      uint64
	queueDepth  int
	logger      logger.Logger

	droppedMu sync.Mutex
	dropped   map[uint64]int64
}

// New builds a Broadcaster. queueDepth defaults to 256 per subscriber.
func New(queueDepth int, log logger.Logger) *Broadcaster {
	if queueDepth <= 0 {
		queueDepth = defaultQueueDepth
	}
	return &Broadcaster{
		subscribers: make(map[uint64]*subscriber),
		queueDepth:  queueDepth,
		logger:      log,
		dropped:     make(map[uint64]int64),
	}
}

// Subscribe registers a new subscriber matching filter and returns its
// Subscription. The mutex is held only long enough to register.
func (b *Broadcaster) Subscribe(filter Filter) *Subscription {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	sub := &subscriber{id: id, filter: filter, queue: make(chan domain.Event, b.queueDepth)}
	b.subscribers[id] = sub
	b.mu.Unlock()

	return &Subscription{id: id, events: sub.queue, b: b}
}

func (b *Broadcaster) unsubscribe(id uint64) {
	b.mu.Lock()
	sub, ok := b.subscribers[id]
	delete(b.subscribers, id)
	b.mu.Unlock()
	if ok {
		close(sub.queue)
	}
}

// Publish delivers e to every subscriber whose filter matches. Publish
// reads a snapshot of the subscriber list under the lock, then does all
// the (potentially blocking, hence drop-oldest) delivery work outside
// it, so a slow subscriber never stalls registration of new ones.
func (b *Broadcaster) Publish(e domain.Event) {
	b.mu.Lock()
	subs := make([]*subscriber, 0, len(b.subscribers))
	for _, s := range b.subscribers {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	for _, s := range subs {
		if !s.filter.Matches(e) {
			continue
		}
		b.deliver(s, e)
	}
}

// deliver enqueues e to s's queue, dropping the oldest queued event if
// full rather than blocking or dropping the new one: subscribers always
// see a prefix-of-most-recent view, never a stale head forever stuck
// behind a burst.
func (b *Broadcaster) deliver(s *subscriber, e domain.Event) {
	select {
	case s.queue <- e:
		return
	default:
	}

	select {
	case <-s.queue:
	default:
	}
	select {
	case s.queue <- e:
	default:
	}

	b.droppedMu.Lock()
	b.dropped[s.id]++
	b.droppedMu.Unlock()
}

// DroppedCount returns how many events have been dropped for a given
// subscriber due to queue saturation (broadcast_dropped{subscriber}).
func (b *Broadcaster) DroppedCount(sub *Subscription) int64 {
	b.droppedMu.Lock()
	defer b.droppedMu.Unlock()
	return b.dropped[sub.id]
}

// SubscriberCount returns the number of currently registered subscribers.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers)
}
