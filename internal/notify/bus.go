// Package notify fans sync events out to the live connections of a tenant.
// Delivery is at-most-once: a connection whose queue is full misses the
// message rather than slowing the publisher down.
package notify

import (
	"sort"
	"sync"

	"github.com/prudhvinik1/tenantsync/internal/models"
	"go.uber.org/zap"
)

const DefaultQueueSize = 64

// Subscription is one connection's registration on the bus.
type Subscription struct {
	ConnectionID string

	tenantID string
	ch       chan models.Message
	done     chan struct{}
	closed   bool
	mu       sync.Mutex
}

// C returns the channel messages for this connection arrive on. It is closed
// on Unsubscribe.
func (s *Subscription) C() <-chan models.Message {
	return s.ch
}

// Done is closed when the subscription ends.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

func (s *Subscription) TenantID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tenantID
}

func (s *Subscription) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.done)
	close(s.ch)
}

// Publisher forwards locally emitted messages to other nodes.
type Publisher interface {
	Publish(tenantID string, msg models.Message, excludeConnID string)
}

type Option func(*Bus)

func WithQueueSize(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.queueSize = n
		}
	}
}

// WithDropHook is called once per message dropped on a full queue.
func WithDropHook(fn func()) Option {
	return func(b *Bus) { b.onDrop = fn }
}

func WithLogger(logger *zap.SugaredLogger) Option {
	return func(b *Bus) { b.logger = logger }
}

// Bus maps tenants to their live connections.
type Bus struct {
	mu      sync.RWMutex
	tenants map[string]map[string]*Subscription
	conns   map[string]*Subscription

	queueSize int
	onDrop    func()
	logger    *zap.SugaredLogger

	pubMu     sync.RWMutex
	publisher Publisher
}

func NewBus(opts ...Option) *Bus {
	b := &Bus{
		tenants:   make(map[string]map[string]*Subscription),
		conns:     make(map[string]*Subscription),
		queueSize: DefaultQueueSize,
		logger:    zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// SetPublisher attaches the cross-node relay. Nil detaches it.
func (b *Bus) SetPublisher(p Publisher) {
	b.pubMu.Lock()
	defer b.pubMu.Unlock()
	b.publisher = p
}

// Subscribe registers a connection under a tenant. Subscribing an already
// registered connection again returns the same subscription, moved to
// tenantID if it differs.
func (b *Bus) Subscribe(connID, tenantID string) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	if sub, ok := b.conns[connID]; ok {
		old := sub.TenantID()
		if old != tenantID {
			b.removeFromTenant(old, connID)
			b.addToTenant(tenantID, sub)
			sub.mu.Lock()
			sub.tenantID = tenantID
			sub.mu.Unlock()
			b.logger.Debugw("Connection moved tenant", "connection", connID, "from", old, "to", tenantID)
		}
		return sub
	}

	sub := &Subscription{
		ConnectionID: connID,
		tenantID:     tenantID,
		ch:           make(chan models.Message, b.queueSize),
		done:         make(chan struct{}),
	}
	b.conns[connID] = sub
	b.addToTenant(tenantID, sub)
	return sub
}

// Unsubscribe removes a connection from whichever tenant holds it. Unknown
// connections are ignored.
func (b *Bus) Unsubscribe(connID string) {
	b.mu.Lock()
	sub, ok := b.conns[connID]
	if ok {
		delete(b.conns, connID)
		b.removeFromTenant(sub.TenantID(), connID)
	}
	b.mu.Unlock()

	if ok {
		sub.close()
	}
}

func (b *Bus) addToTenant(tenantID string, sub *Subscription) {
	members, ok := b.tenants[tenantID]
	if !ok {
		members = make(map[string]*Subscription)
		b.tenants[tenantID] = members
	}
	members[sub.ConnectionID] = sub
}

func (b *Bus) removeFromTenant(tenantID, connID string) {
	members, ok := b.tenants[tenantID]
	if !ok {
		return
	}
	delete(members, connID)
	if len(members) == 0 {
		delete(b.tenants, tenantID)
	}
}

// Emit delivers msg to every local connection of the tenant except
// excludeConnID and hands it to the relay, if any.
func (b *Bus) Emit(tenantID string, msg models.Message, excludeConnID string) {
	b.Deliver(tenantID, msg, excludeConnID)

	b.pubMu.RLock()
	p := b.publisher
	b.pubMu.RUnlock()
	if p != nil {
		p.Publish(tenantID, msg, excludeConnID)
	}
}

// Deliver delivers msg to local connections only. The relay uses it for
// messages that originated on other nodes.
func (b *Bus) Deliver(tenantID string, msg models.Message, excludeConnID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	delivered := 0
	for connID, sub := range b.tenants[tenantID] {
		if connID == excludeConnID {
			continue
		}
		select {
		case sub.ch <- msg:
			delivered++
		default:
			// Queue full, drop the message
			b.logger.Warnw("Notification dropped", "tenant", tenantID, "connection", connID, "event", msg.Event)
			if b.onDrop != nil {
				b.onDrop()
			}
		}
	}
	return delivered
}

// Notify emits a sync notification to every connection of the tenant.
func (b *Bus) Notify(tenantID string, n models.Notification) {
	b.Emit(tenantID, models.Message{Event: models.EventSyncNotification, Payload: n}, "")
}

// ConnectionCount returns the number of local connections.
func (b *Bus) ConnectionCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.conns)
}

// TenantConnectionCount returns the number of local connections of a tenant.
func (b *Bus) TenantConnectionCount(tenantID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.tenants[tenantID])
}

// Tenants lists tenants with at least one local connection, sorted.
func (b *Bus) Tenants() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	ids := make([]string, 0, len(b.tenants))
	for id := range b.tenants {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
