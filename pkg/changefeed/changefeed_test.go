package changefeed

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscribeReceivesPublishedChange(t *testing.T) {
	h := NewHub(1024)
	sub := h.Subscribe("app", "users")
	defer sub.Close()

	h.Publish(&Change{Type: Insert, Database: "app", Collection: "users", Key: "a"})

	change := <-sub.C
	assert.Equal(t, Insert, change.Type)
	assert.Equal(t, "a", change.Key)
}

func TestSubscribeIsScopedToItsCollection(t *testing.T) {
	h := NewHub(1024)
	users := h.Subscribe("app", "users")
	orders := h.Subscribe("app", "orders")
	defer users.Close()
	defer orders.Close()

	h.Publish(&Change{Type: Insert, Database: "app", Collection: "users", Key: "a"})

	select {
	case c := <-users.C:
		assert.Equal(t, "a", c.Key)
	default:
		t.Fatal("expected users feed to receive the change")
	}
	select {
	case c := <-orders.C:
		t.Fatalf("orders feed should not have received a users change: %+v", c)
	default:
	}
}

func TestGlobalFeedDedupesByOrigin(t *testing.T) {
	h := NewHub(1024)
	global := h.SubscribeGlobal()
	defer global.Close()

	change := &Change{Type: Update, Database: "app", Collection: "users", Key: "a", OriginNode: "n1", OriginSequence: 7}
	h.Publish(change)
	h.Publish(change) // replayed, e.g. during replicator catch-up

	first := <-global.C
	assert.Equal(t, "a", first.Key)

	select {
	case c := <-global.C:
		t.Fatalf("expected the duplicate to be suppressed, got %+v", c)
	default:
	}
}

func TestSlowSubscriberIsDisconnected(t *testing.T) {
	h := NewHub(1024)
	sub := h.Subscribe("app", "users")

	for i := 0; i < subscriberBuffer+1; i++ {
		h.Publish(&Change{Type: Insert, Database: "app", Collection: "users", Key: "k"})
	}

	_, open := <-sub.C
	require.True(t, true) // draining one event must not panic regardless of open
	for open {
		_, open = <-sub.C
	}
	// channel closed by the publisher once its buffer overflowed; a
	// further receive returns the zero value with ok=false.
	_, open = <-sub.C
	assert.False(t, open)
}
