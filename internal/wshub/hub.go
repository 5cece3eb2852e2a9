package wshub

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/connect4-arena/internal/obslog"
)

// Handler consumes frames read from a session and its close.
type Handler interface {
	Handle(ctx context.Context, sessionID string, raw []byte)
	Disconnect(ctx context.Context, sessionID string)
}

type Options struct {
	// AllowedOrigins are host patterns accepted on the handshake. Empty
	// means same-origin only.
	AllowedOrigins []string
	SendBuffer     int
	WriteTimeout   time.Duration
	PingInterval   time.Duration
	ReadLimit      int64
}

func (o Options) withDefaults() Options {
	if o.SendBuffer <= 0 {
		o.SendBuffer = 64
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 5 * time.Second
	}
	if o.PingInterval <= 0 {
		o.PingInterval = 30 * time.Second
	}
	if o.ReadLimit <= 0 {
		o.ReadLimit = 4096
	}
	return o
}

type client struct {
	id     string
	conn   *websocket.Conn
	send   chan any
	done   chan struct{}
	once   sync.Once
	cancel context.CancelFunc
}

func (c *client) stop() {
	c.once.Do(func() {
		close(c.done)
		c.cancel()
	})
}

// Hub owns every live connection and the per-match broadcast groups. It is
// the match.Transport and the gateway's Sender.
type Hub struct {
	opts Options

	mu      sync.RWMutex
	clients map[string]*client
	groups  map[string]map[string]struct{}
	joined  map[string]map[string]struct{}
	handler Handler

	wg sync.WaitGroup
}

func New(opts Options) *Hub {
	return &Hub{
		opts:    opts.withDefaults(),
		clients: make(map[string]*client),
		groups:  make(map[string]map[string]struct{}),
		joined:  make(map[string]map[string]struct{}),
	}
}

// Bind sets the frame handler. It must be called before serving.
func (h *Hub) Bind(handler Handler) {
	h.mu.Lock()
	h.handler = handler
	h.mu.Unlock()
}

func (h *Hub) currentHandler() Handler {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.handler
}

// ServeHTTP upgrades the request and runs the session until it closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:  h.opts.AllowedOrigins,
		CompressionMode: websocket.CompressionNoContextTakeover,
	})
	if err != nil {
		obslog.L().Warn("ws_accept_error", zap.String("remote", r.RemoteAddr), zap.Error(err))
		return
	}
	conn.SetReadLimit(h.opts.ReadLimit)

	ctx, cancel := context.WithCancel(context.Background())
	c := &client{
		id:     uuid.NewString(),
		conn:   conn,
		send:   make(chan any, h.opts.SendBuffer),
		done:   make(chan struct{}),
		cancel: cancel,
	}
	h.register(c)
	obslog.L().Info("ws_connected", zap.String("session_id", c.id), zap.String("remote", r.RemoteAddr))

	h.wg.Add(2)
	go h.writeLoop(ctx, c)
	go h.pingLoop(ctx, c)

	h.readLoop(ctx, c)

	c.stop()
	h.unregister(c)
	_ = conn.Close(websocket.StatusNormalClosure, "")
	if handler := h.currentHandler(); handler != nil {
		dctx, dcancel := context.WithTimeout(context.Background(), h.opts.WriteTimeout)
		handler.Disconnect(dctx, c.id)
		dcancel()
	}
	obslog.L().Info("ws_disconnected", zap.String("session_id", c.id))
}

func (h *Hub) readLoop(ctx context.Context, c *client) {
	for {
		typ, raw, err := c.conn.Read(ctx)
		if err != nil {
			if status := websocket.CloseStatus(err); status == -1 && !errors.Is(err, context.Canceled) {
				obslog.L().Debug("ws_read_error", zap.String("session_id", c.id), zap.Error(err))
			}
			return
		}
		if typ != websocket.MessageText {
			continue
		}
		handler := h.currentHandler()
		if handler == nil {
			continue
		}
		handler.Handle(ctx, c.id, raw)
	}
}

func (h *Hub) writeLoop(ctx context.Context, c *client) {
	defer h.wg.Done()
	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			wctx, cancel := context.WithTimeout(ctx, h.opts.WriteTimeout)
			err := wsjson.Write(wctx, c.conn, msg)
			cancel()
			if err != nil {
				obslog.L().Debug("ws_write_error", zap.String("session_id", c.id), zap.Error(err))
				c.stop()
				_ = c.conn.Close(websocket.StatusGoingAway, "write failure")
				return
			}
		}
	}
}

func (h *Hub) pingLoop(ctx context.Context, c *client) {
	defer h.wg.Done()
	t := time.NewTicker(h.opts.PingInterval)
	defer t.Stop()
	failures := 0
	for {
		select {
		case <-c.done:
			return
		case <-t.C:
			pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
			err := c.conn.Ping(pctx)
			cancel()
			if err == nil {
				failures = 0
				continue
			}
			failures++
			if failures >= 2 {
				c.stop()
				_ = c.conn.Close(websocket.StatusGoingAway, "ping failure")
				return
			}
		}
	}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, c.id)
	for matchID := range h.joined[c.id] {
		members := h.groups[matchID]
		delete(members, c.id)
		if len(members) == 0 {
			delete(h.groups, matchID)
		}
	}
	delete(h.joined, c.id)
}

// Send queues msg for one session. A full queue drops the connection.
func (h *Hub) Send(sessionID string, msg any) {
	h.mu.RLock()
	c := h.clients[sessionID]
	h.mu.RUnlock()
	if c == nil {
		return
	}
	h.enqueue(c, msg)
}

// Broadcast queues msg for every session in the match group.
func (h *Hub) Broadcast(matchID string, msg any) {
	h.mu.RLock()
	targets := make([]*client, 0, len(h.groups[matchID]))
	for sid := range h.groups[matchID] {
		if c := h.clients[sid]; c != nil {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()
	for _, c := range targets {
		h.enqueue(c, msg)
	}
}

func (h *Hub) enqueue(c *client, msg any) {
	select {
	case <-c.done:
	case c.send <- msg:
	default:
		obslog.L().Warn("ws_send_overflow", zap.String("session_id", c.id))
		c.stop()
		_ = c.conn.Close(websocket.StatusPolicyViolation, "slow consumer")
	}
}

// Join adds a live session to the match group.
func (h *Hub) Join(sessionID, matchID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[sessionID]; !ok {
		return
	}
	members := h.groups[matchID]
	if members == nil {
		members = make(map[string]struct{})
		h.groups[matchID] = members
	}
	members[sessionID] = struct{}{}
	set := h.joined[sessionID]
	if set == nil {
		set = make(map[string]struct{})
		h.joined[sessionID] = set
	}
	set[matchID] = struct{}{}
}

func (h *Hub) IsLive(sessionID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[sessionID]
	return ok
}

// Len returns the number of live sessions.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close drops every connection and waits for the writers to stop.
func (h *Hub) Close(ctx context.Context) error {
	h.mu.RLock()
	all := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		all = append(all, c)
	}
	h.mu.RUnlock()
	for _, c := range all {
		c.stop()
		_ = c.conn.Close(websocket.StatusGoingAway, "server shutdown")
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}
