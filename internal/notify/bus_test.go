package notify

import (
	"sync"
	"testing"
	"time"

	"github.com/prudhvinik1/tenantsync/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, sub *Subscription) models.Message {
	t.Helper()
	select {
	case msg := <-sub.C():
		return msg
	case <-time.After(time.Second):
		t.Fatal("expected a message")
		return models.Message{}
	}
}

func assertEmpty(t *testing.T, sub *Subscription) {
	t.Helper()
	select {
	case msg := <-sub.C():
		t.Fatalf("unexpected message %+v", msg)
	default:
	}
}

func TestBus_TenantIsolation(t *testing.T) {
	bus := NewBus()
	a1 := bus.Subscribe("a1", "acme")
	a2 := bus.Subscribe("a2", "acme")
	g1 := bus.Subscribe("g1", "globex")

	bus.Notify("acme", DataAvailable("customers", "id-1", time.Now()))

	assert.Equal(t, models.EventSyncNotification, receive(t, a1).Event)
	assert.Equal(t, models.EventSyncNotification, receive(t, a2).Event)
	assertEmpty(t, g1)
}

func TestBus_EmitExcludesSender(t *testing.T) {
	bus := NewBus()
	sender := bus.Subscribe("s", "acme")
	peer := bus.Subscribe("p", "acme")

	bus.Emit("acme", models.Message{Event: models.EventSyncStatusUpdate, Payload: map[string]any{"status": "syncing"}}, "s")

	msg := receive(t, peer)
	assert.Equal(t, models.EventSyncStatusUpdate, msg.Event)
	assertEmpty(t, sender)
}

func TestBus_SubscribeIsIdempotentAndMoves(t *testing.T) {
	bus := NewBus()
	first := bus.Subscribe("c1", "acme")
	again := bus.Subscribe("c1", "acme")
	assert.Same(t, first, again)
	assert.Equal(t, 1, bus.TenantConnectionCount("acme"))

	moved := bus.Subscribe("c1", "globex")
	assert.Same(t, first, moved)
	assert.Equal(t, "globex", moved.TenantID())
	assert.Zero(t, bus.TenantConnectionCount("acme"))
	assert.Equal(t, 1, bus.TenantConnectionCount("globex"))
	assert.Equal(t, []string{"globex"}, bus.Tenants())

	bus.Notify("acme", SyncComplete("customers", "x", time.Now()))
	assertEmpty(t, moved)
}

func TestBus_UnsubscribeClosesQueue(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe("c1", "acme")

	bus.Unsubscribe("c1")
	bus.Unsubscribe("c1")
	bus.Unsubscribe("never-subscribed")

	_, ok := <-sub.C()
	assert.False(t, ok, "channel should be closed")
	<-sub.Done()
	assert.Zero(t, bus.ConnectionCount())
	assert.Empty(t, bus.Tenants())
}

func TestBus_FullQueueDrops(t *testing.T) {
	dropped := 0
	bus := NewBus(WithQueueSize(1), WithDropHook(func() { dropped++ }))
	sub := bus.Subscribe("c1", "acme")

	assert.Equal(t, 1, bus.Deliver("acme", models.Message{Event: "one"}, ""))
	assert.Equal(t, 0, bus.Deliver("acme", models.Message{Event: "two"}, ""))

	assert.Equal(t, 1, dropped)
	assert.Equal(t, "one", receive(t, sub).Event)
	assertEmpty(t, sub)
}

type recordingPublisher struct {
	mu      sync.Mutex
	tenants []string
}

func (p *recordingPublisher) Publish(tenantID string, _ models.Message, _ string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tenants = append(p.tenants, tenantID)
}

func TestBus_EmitForwardsToPublisher(t *testing.T) {
	bus := NewBus()
	pub := &recordingPublisher{}
	bus.SetPublisher(pub)

	bus.Notify("acme", SyncError("customers", "boom", time.Now()))
	bus.Deliver("acme", models.Message{Event: "remote"}, "")

	assert.Equal(t, []string{"acme"}, pub.tenants, "Deliver must not re-publish")
}

func TestBus_ConcurrentUse(t *testing.T) {
	bus := NewBus()
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := string(rune('a' + i))
			bus.Subscribe(id, "acme")
			bus.Notify("acme", DataAvailable("customers", id, time.Now()))
			bus.Unsubscribe(id)
		}(i)
	}
	wg.Wait()

	require.Zero(t, bus.ConnectionCount())
}

func TestConflictDetected_CarriesVersions(t *testing.T) {
	n := ConflictDetected("customers", "id-1", models.Record{"version": int64(3)}, models.Record{"version": int64(2)}, time.Now())

	assert.Equal(t, models.NotificationConflictDetected, n.Type)
	assert.Equal(t, map[string]any{"serverVersion": int64(3), "clientVersion": int64(2)}, n.Data)
}
