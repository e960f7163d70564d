// Package presence tracks which users are currently online over long-lived
// websocket connections, broadcasts status changes to every connected peer,
// and keeps the persisted online flags in step with the in-memory registry.
package presence

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	gorillaws "github.com/gorilla/websocket"

	"github.com/campuslink/presence/internal/eventbus"
	"github.com/campuslink/presence/internal/logging"
	"github.com/campuslink/presence/pkg/domain"
	"github.com/campuslink/presence/pkg/errors"
	"github.com/campuslink/presence/pkg/store"
)

// Options represents hub configuration options
type Options struct {
	// HeartbeatInterval is how often the liveness sweep runs
	HeartbeatInterval time.Duration

	// HeartbeatTimeout is the silence window after which an identified
	// connection is evicted
	HeartbeatTimeout time.Duration

	// StoreTimeout bounds each persistence write
	StoreTimeout time.Duration

	// SendTimeout bounds each per-connection send
	SendTimeout time.Duration
}

// DefaultOptions returns default hub options. The timeout equals the sweep
// interval, so one missed ping window triggers eviction.
func DefaultOptions() Options {
	return Options{
		HeartbeatInterval: 10 * time.Second,
		HeartbeatTimeout:  10 * time.Second,
		StoreTimeout:      5 * time.Second,
		SendTimeout:       5 * time.Second,
	}
}

type inboundFrame struct {
	clientID string
	data     []byte
}

type offlineRequest struct {
	userID string
	done   chan struct{}
}

type registerRequest struct {
	client domain.Client
	done   chan struct{}
}

// connState pairs a connection with the identity it has announced, if any.
type connState struct {
	client domain.Client
	info   *domain.ClientInfo
}

// Hub implements domain.Hub. All registry mutations happen on the single
// run goroutine; callers talk to it through channels, so no locking guards
// the conns map.
type Hub struct {
	opts   Options
	logger *logging.Logger
	store  store.StatusStore
	bus    eventbus.Bus

	register   chan registerRequest
	unregister chan string
	inbound    chan inboundFrame
	offline    chan offlineRequest

	// conns is owned exclusively by the run goroutine
	conns map[string]*connState

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Statistics
	connectedClients int64
	identifiedUsers  int64
	messagesReceived int64
	broadcastsSent   int64
	startTime        time.Time
}

// NewHub creates a new presence hub
func NewHub(statusStore store.StatusStore, logger *logging.Logger, bus eventbus.Bus, opts Options) *Hub {
	return &Hub{
		opts:       opts,
		logger:     logger,
		store:      statusStore,
		bus:        bus,
		register:   make(chan registerRequest, 100),
		unregister: make(chan string, 100),
		inbound:    make(chan inboundFrame, 1000),
		offline:    make(chan offlineRequest, 100),
		conns:      make(map[string]*connState),
		startTime:  time.Now(),
	}
}

// Start implements domain.Hub
func (h *Hub) Start(ctx context.Context) error {
	h.ctx, h.cancel = context.WithCancel(ctx)
	h.wg.Add(1)
	go h.run()
	h.logger.Info("presence hub started",
		"heartbeat_interval", h.opts.HeartbeatInterval,
		"heartbeat_timeout", h.opts.HeartbeatTimeout,
	)
	return nil
}

// Stop implements domain.Hub. Every open connection is closed with a
// shutdown close code.
func (h *Hub) Stop() error {
	h.logger.Info("stopping presence hub")
	h.cancel()
	h.wg.Wait()

	// The run goroutine has exited, so the map is safe to touch here.
	for clientID, st := range h.conns {
		if err := st.client.Close(gorillaws.CloseNormalClosure, "server shutdown"); err != nil {
			h.logger.Warn("error closing connection on shutdown", "client_id", clientID, "error", err)
		}
		delete(h.conns, clientID)
	}
	atomic.StoreInt64(&h.connectedClients, 0)
	atomic.StoreInt64(&h.identifiedUsers, 0)

	h.logger.Info("presence hub stopped")
	return nil
}

// Register implements domain.Hub. It returns once the run goroutine has
// admitted the connection, so frames the client sends right after cannot
// overtake its registration.
func (h *Hub) Register(client domain.Client) error {
	req := registerRequest{client: client, done: make(chan struct{})}

	select {
	case h.register <- req:
	case <-h.ctx.Done():
		return domain.ErrHubStopped
	default:
		return errors.New(errors.ErrorTypeInternal, "REGISTER_QUEUE_FULL", "register queue is full")
	}

	select {
	case <-req.done:
		return nil
	case <-h.ctx.Done():
		return domain.ErrHubStopped
	}
}

// Unregister implements domain.Hub
func (h *Hub) Unregister(clientID string) error {
	select {
	case h.unregister <- clientID:
		return nil
	case <-h.ctx.Done():
		return domain.ErrHubStopped
	default:
		return errors.New(errors.ErrorTypeInternal, "UNREGISTER_QUEUE_FULL", "unregister queue is full")
	}
}

// Inbound implements domain.Hub
func (h *Hub) Inbound(clientID string, frame []byte) error {
	select {
	case h.inbound <- inboundFrame{clientID: clientID, data: frame}:
		atomic.AddInt64(&h.messagesReceived, 1)
		return nil
	case <-h.ctx.Done():
		return domain.ErrHubStopped
	default:
		return errors.New(errors.ErrorTypeInternal, "INBOUND_QUEUE_FULL", "inbound queue is full")
	}
}

// Broadcast implements domain.Hub. The fan-out itself happens on the run
// goroutine; an empty client id marks the frame as internal.
func (h *Hub) Broadcast(message []byte) error {
	select {
	case h.inbound <- inboundFrame{data: message}:
		return nil
	case <-h.ctx.Done():
		return domain.ErrHubStopped
	default:
		return errors.New(errors.ErrorTypeInternal, "BROADCAST_QUEUE_FULL", "broadcast queue is full")
	}
}

// SetOffline implements domain.Hub. It is the internal entry point the logout
// web path uses: same semantics as an "offline" frame, minus the wire message.
// Persistence failures are logged, never surfaced, matching the protocol path.
func (h *Hub) SetOffline(ctx context.Context, userID string) error {
	req := offlineRequest{userID: userID, done: make(chan struct{})}

	select {
	case h.offline <- req:
	case <-ctx.Done():
		return ctx.Err()
	case <-h.ctx.Done():
		return domain.ErrHubStopped
	}

	select {
	case <-req.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-h.ctx.Done():
		return domain.ErrHubStopped
	}
}

// Stats implements domain.Hub
func (h *Hub) Stats() domain.HubStats {
	return domain.HubStats{
		ConnectedClients: int(atomic.LoadInt64(&h.connectedClients)),
		IdentifiedUsers:  int(atomic.LoadInt64(&h.identifiedUsers)),
		MessagesReceived: atomic.LoadInt64(&h.messagesReceived),
		BroadcastsSent:   atomic.LoadInt64(&h.broadcastsSent),
		UptimeSeconds:    int64(time.Since(h.startTime).Seconds()),
	}
}

// run is the main hub loop
func (h *Hub) run() {
	defer h.wg.Done()

	ticker := time.NewTicker(h.opts.HeartbeatInterval)
	defer ticker.Stop()

	for {
		if stopped := h.loop(ticker); stopped {
			return
		}
	}
}

// loop multiplexes all registry work onto this one goroutine. A panic in any
// handler is recovered and logged so one bad connection cannot take the
// process down; the outer run loop re-enters immediately.
func (h *Hub) loop(ticker *time.Ticker) (stopped bool) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("recovered from panic in hub loop", "panic", r)
		}
	}()

	for {
		select {
		case <-h.ctx.Done():
			return true

		case req := <-h.register:
			h.handleRegister(req.client)
			close(req.done)

		case clientID := <-h.unregister:
			h.handleDisconnect(clientID)

		case frame := <-h.inbound:
			h.handleFrame(frame.clientID, frame.data)

		case req := <-h.offline:
			h.handleOffline(req.userID)
			close(req.done)

		case <-ticker.C:
			h.sweep(time.Now())
		}
	}
}

// handleRegister records a new, still anonymous connection.
func (h *Hub) handleRegister(client domain.Client) {
	clientID := client.ID()

	if _, exists := h.conns[clientID]; exists {
		h.logger.Warn("client already registered", "client_id", clientID)
		return
	}

	h.conns[clientID] = &connState{client: client}
	atomic.AddInt64(&h.connectedClients, 1)

	h.publish(eventbus.EventClientConnected, map[string]string{"client_id": clientID})

	h.logger.Info("connection registered",
		"client_id", clientID,
		"total_connections", len(h.conns),
	)
}

// handleDisconnect handles a transport going away for any reason: client
// navigated away, network dropped, explicit close.
func (h *Hub) handleDisconnect(clientID string) {
	st, ok := h.conns[clientID]
	if !ok {
		return
	}

	delete(h.conns, clientID)
	atomic.AddInt64(&h.connectedClients, -1)

	if st.info != nil {
		userID := st.info.UserID
		atomic.AddInt64(&h.identifiedUsers, -1)

		h.persistOnline(userID, false)
		h.broadcastStatus(userID, false)
		h.publish(eventbus.EventUserOffline, map[string]string{"user_id": userID, "client_id": clientID})

		h.logger.Info("user disconnected", "user_id", userID, "client_id", clientID)
	}

	h.publish(eventbus.EventClientDisconnected, map[string]string{"client_id": clientID})
}

// handleFrame parses and dispatches one wire frame.
func (h *Hub) handleFrame(clientID string, data []byte) {
	// Internal broadcasts ride the inbound channel with an empty client id
	if clientID == "" {
		h.fanOut(data)
		return
	}

	st, ok := h.conns[clientID]
	if !ok {
		// Frame raced a disconnect; nothing to do
		return
	}

	var msg domain.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		h.logger.Warn("invalid message", "client_id", clientID, "error", err)
		h.sendError(st.client, "invalid message format")
		return
	}

	switch msg.Type {
	case domain.MessageTypeOnline:
		if msg.UserID == "" {
			h.logger.Warn("online frame without user id", "client_id", clientID)
			return
		}
		h.handleOnline(clientID, st, msg.UserID)

	case domain.MessageTypeOffline:
		if msg.UserID == "" {
			h.logger.Warn("offline frame without user id", "client_id", clientID)
			return
		}
		h.handleOffline(msg.UserID)

	case domain.MessageTypePing:
		h.handlePing(st)

	default:
		h.logger.Warn("unknown message type", "client_id", clientID, "type", msg.Type)
	}
}

// handleOnline records the identity announced by a connection, persists the
// flag and tells everyone.
func (h *Hub) handleOnline(clientID string, st *connState, userID string) {
	if st.info == nil {
		atomic.AddInt64(&h.identifiedUsers, 1)
	}
	st.info = &domain.ClientInfo{
		UserID:   userID,
		LastPing: time.Now(),
	}

	h.persistOnline(userID, true)
	h.broadcastStatus(userID, true)
	h.publish(eventbus.EventUserOnline, map[string]string{"user_id": userID, "client_id": clientID})

	h.logger.Info("user online", "user_id", userID, "client_id", clientID)
}

// handleOffline marks a user offline by id. The announcement may come from
// any connection, or from no connection at all (the logout path), so the
// registry entry is located by value, not by the sender's handle. With no
// matching entry this still persists and broadcasts: offline is idempotent
// at the protocol layer.
func (h *Hub) handleOffline(userID string) {
	for _, st := range h.conns {
		if st.info != nil && st.info.UserID == userID {
			st.info = nil
			atomic.AddInt64(&h.identifiedUsers, -1)
			break
		}
	}

	h.persistOnline(userID, false)
	h.broadcastStatus(userID, false)
	h.publish(eventbus.EventUserOffline, map[string]string{"user_id": userID})

	h.logger.Info("user offline", "user_id", userID)
}

// handlePing refreshes the liveness timestamp. Pings from anonymous
// connections are ignored.
func (h *Hub) handlePing(st *connState) {
	if st.info != nil {
		st.info.LastPing = time.Now()
	}
}

// broadcastStatus fans a status update out to every open connection.
func (h *Hub) broadcastStatus(userID string, online bool) {
	data, err := domain.NewStatusUpdate(userID, online).Encode()
	if err != nil {
		h.logger.Error("failed to marshal status update", "user_id", userID, "error", err)
		return
	}
	h.fanOut(data)
}

// fanOut serializes once and sends to every connection, identified or not.
// A failing peer is logged and skipped; fan-out is best-effort, never
// all-or-nothing.
func (h *Hub) fanOut(data []byte) {
	var successCount, errorCount int

	for clientID, st := range h.conns {
		ctx, cancel := context.WithTimeout(context.Background(), h.opts.SendTimeout)
		err := st.client.Send(ctx, data)
		cancel()

		if err != nil {
			errorCount++
			h.logger.Warn("failed to send to client", "client_id", clientID, "error", err)
		} else {
			successCount++
		}
	}

	atomic.AddInt64(&h.broadcastsSent, 1)

	h.logger.Debug("broadcast complete",
		"success_count", successCount,
		"error_count", errorCount,
	)
}

// sendError sends an error frame to one client only.
func (h *Hub) sendError(client domain.Client, text string) {
	data, err := domain.NewErrorMessage(text).Encode()
	if err != nil {
		h.logger.Error("failed to marshal error message", "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.opts.SendTimeout)
	defer cancel()

	if err := client.Send(ctx, data); err != nil {
		h.logger.Warn("failed to send error message", "client_id", client.ID(), "error", err)
	}
}

// persistOnline writes the flag through the store. Failures are logged with
// the affected user and otherwise ignored: the registry mutation and the
// broadcast proceed regardless, and the store catches up on the next write.
func (h *Hub) persistOnline(userID string, online bool) {
	ctx, cancel := context.WithTimeout(context.Background(), h.opts.StoreTimeout)
	defer cancel()

	if err := h.store.SetOnline(ctx, userID, online); err != nil {
		h.logger.Error("failed to persist online flag",
			"user_id", userID,
			"online", online,
			"error", err,
		)
	}
}

// publish emits an event for in-process subscribers.
func (h *Hub) publish(eventType eventbus.EventType, data map[string]string) {
	if h.bus == nil {
		return
	}
	h.bus.PublishAsync(eventbus.NewEvent(eventType, "presence-hub", data))
}
