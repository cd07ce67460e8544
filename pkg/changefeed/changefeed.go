package changefeed

import (
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/cuemby/solidb/pkg/types"
)

// ChangeType enumerates the three mutation kinds a collection's feed
// reports (spec §4.11).
type ChangeType string

const (
	Insert ChangeType = "insert"
	Update ChangeType = "update"
	Delete ChangeType = "delete"
)

// Change is one event published to a collection's feed and, through the
// Hub, to the global aggregated feed.
type Change struct {
	Type       ChangeType    `json:"type"`
	Database   string        `json:"-"`
	Collection string        `json:"-"`
	Key        string        `json:"key"`
	Data       *types.Object `json:"data,omitempty"`
	OldData    *types.Object `json:"old_data,omitempty"`

	// OriginNode/OriginSequence identify the replication log entry this
	// change came from, used by the global feed's dedup window (spec
	// §4.11 "deduplicates by (origin_node, origin_sequence)").
	OriginNode     string `json:"-"`
	OriginSequence uint64 `json:"-"`
}

const subscriberBuffer = 64

// Subscription is a live feed subscriber. Changes arrive on C; if the
// publisher disconnects this subscriber for falling behind, C is closed
// instead of further sends (spec §5 "slow-consumer policy").
type Subscription struct {
	C      chan *Change
	cancel func()
}

// Close unsubscribes and releases the channel.
func (s *Subscription) Close() { s.cancel() }

// broker is one broadcast channel: every subscriber gets every Change
// published to it. Modeled on the teacher's pkg/events.Broker, with one
// behavioral change: a full subscriber buffer disconnects that
// subscriber rather than silently dropping the event.
type broker struct {
	mu          sync.RWMutex
	subscribers map[chan *Change]bool
}

func newBroker() *broker {
	return &broker{subscribers: map[chan *Change]bool{}}
}

func (b *broker) subscribe() chan *Change {
	ch := make(chan *Change, subscriberBuffer)
	b.mu.Lock()
	b.subscribers[ch] = true
	b.mu.Unlock()
	return ch
}

func (b *broker) unsubscribe(ch chan *Change) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subscribers[ch]; ok {
		delete(b.subscribers, ch)
		close(ch)
	}
}

func (b *broker) publish(c *Change) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subscribers {
		select {
		case ch <- c:
		default:
			delete(b.subscribers, ch)
			close(ch)
		}
	}
}

// Hub owns every collection's broker plus the global aggregated feed.
type Hub struct {
	mu      sync.Mutex
	brokers map[string]*broker
	global  *broker
	seen    *lru.Cache[string, struct{}]
}

// NewHub builds a Hub whose global-feed dedup window remembers the last
// dedupWindow (origin_node, origin_sequence) pairs it has seen.
func NewHub(dedupWindow int) *Hub {
	seen, _ := lru.New[string, struct{}](dedupWindow)
	return &Hub{
		brokers: map[string]*broker{},
		global:  newBroker(),
		seen:    seen,
	}
}

func feedKey(database, collection string) string { return database + "/" + collection }

func (h *Hub) brokerFor(database, collection string) *broker {
	key := feedKey(database, collection)
	h.mu.Lock()
	defer h.mu.Unlock()
	b, ok := h.brokers[key]
	if !ok {
		b = newBroker()
		h.brokers[key] = b
	}
	return b
}

// Publish broadcasts change to its collection's subscribers and, unless
// it is a duplicate of a change already seen from the same origin, to
// the global feed.
func (h *Hub) Publish(change *Change) {
	h.brokerFor(change.Database, change.Collection).publish(change)

	if change.OriginNode == "" {
		h.global.publish(change)
		return
	}
	dedupKey := fmt.Sprintf("%s:%d", change.OriginNode, change.OriginSequence)
	h.mu.Lock()
	_, dup := h.seen.Get(dedupKey)
	if !dup {
		h.seen.Add(dedupKey, struct{}{})
	}
	h.mu.Unlock()
	if !dup {
		h.global.publish(change)
	}
}

// Subscribe opens a feed scoped to one collection.
func (h *Hub) Subscribe(database, collection string) *Subscription {
	b := h.brokerFor(database, collection)
	ch := b.subscribe()
	return &Subscription{C: ch, cancel: func() { b.unsubscribe(ch) }}
}

// SubscribeGlobal opens the deduplicated, all-collections feed.
func (h *Hub) SubscribeGlobal() *Subscription {
	ch := h.global.subscribe()
	return &Subscription{C: ch, cancel: func() { h.global.unsubscribe(ch) }}
}
