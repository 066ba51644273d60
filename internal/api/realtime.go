package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prudhvinik1/tenantsync/internal/metrics"
	"github.com/prudhvinik1/tenantsync/internal/models"
	"github.com/prudhvinik1/tenantsync/internal/notify"
	"github.com/prudhvinik1/tenantsync/internal/repositories"
	"github.com/prudhvinik1/tenantsync/internal/services"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

const (
	defaultWriteTimeout = 5 * time.Second
	defaultPingEvery    = 30 * time.Second
	replyQueueSize      = 16
	maxFrameBytes       = 64 << 10
)

// Client frame types.
const (
	frameAuthenticate     = "authenticate"
	frameSyncStatusUpdate = models.EventSyncStatusUpdate
	framePing             = "ping"
)

type RealtimeOptions struct {
	NodeID       string
	WriteTimeout time.Duration
	PingEvery    time.Duration
}

// Realtime serves the WebSocket channel. Connections authenticate in-band,
// then receive their tenant's notifications from the bus.
type Realtime struct {
	bus      *notify.Bus
	verifier services.TokenVerifier
	presence repositories.PresenceRepository
	metrics  *metrics.Metrics
	logger   *zap.SugaredLogger
	opts     RealtimeOptions
	upgrader websocket.Upgrader

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRealtime creates the WebSocket gateway. presence may be nil.
func NewRealtime(
	bus *notify.Bus,
	verifier services.TokenVerifier,
	presence repositories.PresenceRepository,
	m *metrics.Metrics,
	logger *zap.SugaredLogger,
	opts RealtimeOptions,
) *Realtime {
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}
	if opts.PingEvery <= 0 {
		opts.PingEvery = defaultPingEvery
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Realtime{
		bus:      bus,
		verifier: verifier,
		presence: presence,
		metrics:  m,
		logger:   logger,
		opts:     opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		ctx:    ctx,
		cancel: cancel,
	}
}

// Close disconnects every open connection and waits for their cleanup.
func (rt *Realtime) Close() {
	rt.cancel()
	rt.wg.Wait()
}

// wsClient is the per-connection state. tenantID is owned by the read loop.
type wsClient struct {
	id         string
	conn       *websocket.Conn
	tenantID   string
	replies    chan any
	subscribed chan *notify.Subscription
	writerDone chan struct{}
}

type authenticatedFrame struct {
	Type          string `json:"type"`
	Authenticated bool   `json:"authenticated"`
	TenantID      string `json:"tenantId"`
}

type messageFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type pongFrame struct {
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
}

func (rt *Realtime) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := rt.upgrader.Upgrade(w, r, nil)
	if err != nil {
		rt.logger.Debugw("WebSocket upgrade failed", "error", err)
		return
	}

	rt.wg.Add(1)
	defer rt.wg.Done()

	c := &wsClient{
		id:         uuid.NewString(),
		conn:       conn,
		replies:    make(chan any, replyQueueSize),
		subscribed: make(chan *notify.Subscription, 1),
		writerDone: make(chan struct{}),
	}
	rt.metrics.ConnectionOpened()
	rt.logger.Debugw("Client connected", "connection", c.id)

	ctx, cancel := context.WithCancel(rt.ctx)
	go rt.writePump(ctx, c)

	rt.readPump(ctx, c)

	cancel()
	<-c.writerDone
	_ = conn.Close()
	rt.disconnect(c)
}

func (rt *Realtime) disconnect(c *wsClient) {
	rt.bus.Unsubscribe(c.id)
	rt.metrics.ConnectionClosed()

	if rt.presence != nil && c.tenantID != "" {
		ctx, cancel := context.WithTimeout(context.Background(), rt.opts.WriteTimeout)
		defer cancel()
		if err := rt.presence.DeletePresence(ctx, c.tenantID, c.id); err != nil {
			rt.logger.Warnw("Failed to clear presence", "connection", c.id, "error", err)
		}
	}
	rt.logger.Debugw("Client disconnected", "connection", c.id, "tenant", c.tenantID)
}

func (rt *Realtime) readPump(ctx context.Context, c *wsClient) {
	pongWait := 2 * rt.opts.PingEvery
	c.conn.SetReadLimit(maxFrameBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	// Runs on this goroutine inside ReadMessage, so c.tenantID is safe to read
	c.conn.SetPongHandler(func(string) error {
		rt.touch(ctx, c)
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				rt.logger.Debugw("WebSocket read failed", "connection", c.id, "error", err)
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		rt.handleFrame(ctx, c, frame)
	}
}

func (rt *Realtime) handleFrame(ctx context.Context, c *wsClient, frame []byte) {
	if !gjson.ValidBytes(frame) {
		rt.reply(c, messageFrame{Type: "error", Message: "invalid message format"})
		return
	}
	msg := gjson.ParseBytes(frame)

	switch frameType := msg.Get("type").String(); frameType {
	case frameAuthenticate:
		rt.authenticate(ctx, c, msg.Get("token").String(), msg.Get("tenantId").String())

	case frameSyncStatusUpdate:
		if c.tenantID == "" {
			rt.reply(c, messageFrame{Type: "authentication_error", Message: "not authenticated"})
			return
		}
		payload, _ := msg.Value().(map[string]any)
		delete(payload, "type")
		rt.bus.Emit(c.tenantID, models.Message{Event: models.EventSyncStatusUpdate, Payload: payload}, c.id)

	case framePing:
		rt.reply(c, pongFrame{Type: "pong", Timestamp: models.FormatTime(time.Now())})
		rt.touch(ctx, c)

	default:
		rt.reply(c, messageFrame{Type: "error", Message: "unknown message type: " + frameType})
	}
}

func (rt *Realtime) authenticate(ctx context.Context, c *wsClient, token, tenantID string) {
	claims, err := rt.verifier.VerifyToken(token)
	if err != nil {
		rt.logger.Infow("WebSocket authentication failed", "connection", c.id, "error", err)
		rt.reply(c, messageFrame{Type: "authentication_error", Message: "Invalid token"})
		return
	}
	if tenantID != "" && tenantID != claims.TenantID {
		rt.reply(c, messageFrame{Type: "authentication_error", Message: "tenant does not match token"})
		return
	}

	sub := rt.bus.Subscribe(c.id, claims.TenantID)
	previous := c.tenantID
	c.tenantID = claims.TenantID
	if previous == "" {
		c.subscribed <- sub
	} else if previous != claims.TenantID && rt.presence != nil {
		if err := rt.presence.DeletePresence(ctx, previous, c.id); err != nil {
			rt.logger.Warnw("Failed to clear presence", "connection", c.id, "error", err)
		}
	}

	rt.logger.Infow("Client authenticated", "connection", c.id, "tenant", c.tenantID)
	rt.reply(c, authenticatedFrame{Type: "authenticated", Authenticated: true, TenantID: c.tenantID})
	rt.touch(ctx, c)
}

// touch refreshes the connection's presence entry. It is called on
// authentication, on JSON pings and on every keepalive pong.
func (rt *Realtime) touch(ctx context.Context, c *wsClient) {
	if rt.presence == nil || c.tenantID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, rt.opts.WriteTimeout)
	defer cancel()

	err := rt.presence.SetPresence(ctx, &models.Presence{
		TenantID:     c.tenantID,
		ConnectionID: c.id,
		NodeID:       rt.opts.NodeID,
		Status:       string(models.StatusOnline),
		LastSeen:     time.Now().UTC(),
	})
	if err != nil {
		rt.logger.Warnw("Failed to refresh presence", "connection", c.id, "error", err)
	}
}

// reply queues a direct response. The read loop never blocks on a slow
// writer.
func (rt *Realtime) reply(c *wsClient, frame any) {
	select {
	case c.replies <- frame:
	default:
		rt.logger.Warnw("Reply dropped", "connection", c.id)
	}
}

// writePump is the only goroutine writing to the connection.
func (rt *Realtime) writePump(ctx context.Context, c *wsClient) {
	defer close(c.writerDone)

	ticker := time.NewTicker(rt.opts.PingEvery)
	defer ticker.Stop()

	var notifications <-chan models.Message
	for {
		select {
		case <-ctx.Done():
			deadline := time.Now().Add(rt.opts.WriteTimeout)
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
			// Unblocks the read loop on server shutdown
			_ = c.conn.Close()
			return

		case sub := <-c.subscribed:
			notifications = sub.C()

		case msg, ok := <-notifications:
			if !ok {
				notifications = nil
				continue
			}
			if !rt.write(c, msg) {
				return
			}

		case frame := <-c.replies:
			if !rt.write(c, frame) {
				return
			}

		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(rt.opts.WriteTimeout)); err != nil {
				_ = c.conn.Close()
				return
			}
		}
	}
}

func (rt *Realtime) write(c *wsClient, v any) bool {
	_ = c.conn.SetWriteDeadline(time.Now().Add(rt.opts.WriteTimeout))
	if err := c.conn.WriteJSON(v); err != nil {
		rt.logger.Debugw("WebSocket write failed", "connection", c.id, "error", err)
		_ = c.conn.Close()
		return false
	}
	return true
}
