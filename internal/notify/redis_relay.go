package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/prudhvinik1/tenantsync/internal/models"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	relayChannelPrefix = "tenantsync:notify:"
	relayOutboxSize    = 256
)

// envelope is the relay wire format.
type envelope struct {
	Node    string         `json:"node"`
	Tenant  string         `json:"tenant"`
	Exclude string         `json:"exclude,omitempty"`
	Message models.Message `json:"message"`
}

// RedisRelay mirrors bus traffic between nodes over Redis pub/sub so a push
// handled on one node reaches connections held by another.
type RedisRelay struct {
	client  *redis.Client
	bus     *Bus
	nodeID  string
	timeout time.Duration
	logger  *zap.SugaredLogger
	outbox  chan envelope
}

func NewRedisRelay(client *redis.Client, bus *Bus, nodeID string, timeout time.Duration, logger *zap.SugaredLogger) *RedisRelay {
	return &RedisRelay{
		client:  client,
		bus:     bus,
		nodeID:  nodeID,
		timeout: timeout,
		logger:  logger,
		outbox:  make(chan envelope, relayOutboxSize),
	}
}

func relayChannel(tenantID string) string {
	return relayChannelPrefix + tenantID
}

// Publish queues msg for the publisher loop. It never blocks.
func (r *RedisRelay) Publish(tenantID string, msg models.Message, excludeConnID string) {
	select {
	case r.outbox <- envelope{Node: r.nodeID, Tenant: tenantID, Exclude: excludeConnID, Message: msg}:
	default:
		r.logger.Warnw("Relay outbox full, message not forwarded", "tenant", tenantID, "event", msg.Event)
	}
}

// Run subscribes to every tenant channel and drains the outbox until ctx ends.
func (r *RedisRelay) Run(ctx context.Context) error {
	pubsub := r.client.PSubscribe(ctx, relayChannelPrefix+"*")
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to relay channels: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return nil
			case m, ok := <-ch:
				if !ok {
					return nil
				}
				r.handle(m.Channel, []byte(m.Payload))
			}
		}
	})

	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case env := <-r.outbox:
				r.send(ctx, env)
			}
		}
	})

	return g.Wait()
}

func (r *RedisRelay) send(ctx context.Context, env envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		r.logger.Errorw("Failed to encode relay message", "tenant", env.Tenant, "error", err)
		return
	}

	pubCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if err := r.client.Publish(pubCtx, relayChannel(env.Tenant), data).Err(); err != nil {
		r.logger.Warnw("Failed to publish relay message", "tenant", env.Tenant, "error", err)
	}
}

// handle delivers a message received from another node. Own messages were
// already delivered locally by Emit.
func (r *RedisRelay) handle(channel string, payload []byte) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		r.logger.Warnw("Discarding malformed relay message", "channel", channel, "error", err)
		return
	}
	if env.Node == r.nodeID {
		return
	}
	if tenant := strings.TrimPrefix(channel, relayChannelPrefix); tenant != env.Tenant {
		r.logger.Warnw("Discarding relay message with mismatched tenant", "channel", channel, "tenant", env.Tenant)
		return
	}
	r.bus.Deliver(env.Tenant, env.Message, env.Exclude)
}
