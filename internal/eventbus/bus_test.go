package eventbus

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPublishSyncDeliversBeforeReturning(t *testing.T) {
	Reset()
	defer Reset()

	var got Event
	unsub := Subscribe(RunCompleted, func(e Event) { got = e })
	defer unsub()

	PublishSync(Event{Type: RunCompleted, Data: "run-1"})
	assert.Equal(t, RunCompleted, got.Type)
	assert.Equal(t, "run-1", got.Data)
}

func TestSubscribeAllReceivesEveryType(t *testing.T) {
	Reset()
	defer Reset()

	var mu sync.Mutex
	seen := map[EventType]bool{}
	unsub := SubscribeAll(func(e Event) {
		mu.Lock()
		seen[e.Type] = true
		mu.Unlock()
	})
	defer unsub()

	Publish(Event{Type: SessionCreated})
	Publish(Event{Type: RunStarted})
	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.True(t, seen[SessionCreated])
	assert.True(t, seen[RunStarted])
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	Reset()
	defer Reset()

	count := 0
	unsub := Subscribe(SessionDeleted, func(Event) { count++ })
	unsub()
	PublishSync(Event{Type: SessionDeleted})
	assert.Equal(t, 0, count)
}
