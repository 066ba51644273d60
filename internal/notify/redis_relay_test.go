package notify

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/prudhvinik1/tenantsync/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func encodeEnvelope(t *testing.T, env envelope) []byte {
	t.Helper()
	data, err := json.Marshal(env)
	require.NoError(t, err)
	return data
}

func TestRedisRelay_HandleDeliversRemoteMessages(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe("c1", "acme")
	relay := NewRedisRelay(nil, bus, "node-a", time.Second, zap.NewNop().Sugar())

	relay.handle(relayChannel("acme"), encodeEnvelope(t, envelope{
		Node:    "node-b",
		Tenant:  "acme",
		Message: models.Message{Event: models.EventSyncNotification, Payload: map[string]any{"type": "data_available"}},
	}))

	msg := receive(t, sub)
	assert.Equal(t, models.EventSyncNotification, msg.Event)
}

func TestRedisRelay_HandleSkipsOwnAndMalformed(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe("c1", "acme")
	relay := NewRedisRelay(nil, bus, "node-a", time.Second, zap.NewNop().Sugar())

	// Own node
	relay.handle(relayChannel("acme"), encodeEnvelope(t, envelope{Node: "node-a", Tenant: "acme"}))
	// Tenant mismatch between channel and body
	relay.handle(relayChannel("acme"), encodeEnvelope(t, envelope{Node: "node-b", Tenant: "globex"}))
	// Garbage
	relay.handle(relayChannel("acme"), []byte("{"))

	assertEmpty(t, sub)
}

func TestRedisRelay_PublishNeverBlocks(t *testing.T) {
	relay := NewRedisRelay(nil, NewBus(), "node-a", time.Second, zap.NewNop().Sugar())

	assert.NotPanics(t, func() {
		for i := 0; i < relayOutboxSize+10; i++ {
			relay.Publish("acme", models.Message{Event: "x"}, "")
		}
	})
	assert.Len(t, relay.outbox, relayOutboxSize)
}

// TestRedisRelay_CrossNode runs two relays against a live Redis. Set
// TEST_REDIS_URL to enable it.
func TestRedisRelay_CrossNode(t *testing.T) {
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}
	opts, err := redis.ParseURL(url)
	require.NoError(t, err)
	client := redis.NewClient(opts)
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	busA, busB := NewBus(), NewBus()
	relayA := NewRedisRelay(client, busA, "node-a", time.Second, zap.NewNop().Sugar())
	relayB := NewRedisRelay(client, busB, "node-b", time.Second, zap.NewNop().Sugar())
	busA.SetPublisher(relayA)
	busB.SetPublisher(relayB)
	go relayA.Run(ctx)
	go relayB.Run(ctx)

	subB := busB.Subscribe("b1", "acme")
	subA := busA.Subscribe("a1", "acme")

	// Give both subscriptions time to register
	time.Sleep(200 * time.Millisecond)

	busA.Notify("acme", DataAvailable("customers", "id-1", time.Now()))

	assert.Equal(t, models.EventSyncNotification, receive(t, subA).Event)
	assert.Equal(t, models.EventSyncNotification, receive(t, subB).Event)
	time.Sleep(100 * time.Millisecond)
	assertEmpty(t, subA)
}
