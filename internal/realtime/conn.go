package realtime

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/puzpuzpuz/xsync"

	"github.com/nerrad567/beacon-notify-core/internal/audit"
	"github.com/nerrad567/beacon-notify-core/internal/auth"
	"github.com/nerrad567/beacon-notify-core/internal/infrastructure/config"
)

// CloseAuthRejected is the close code sent when the upgrade credential is
// not accepted.
const CloseAuthRejected = 4001

// Connection defaults, used when a HandlerConfig field is zero.
const (
	defaultMaxMessageSize = 8192
	defaultPingInterval   = 30 * time.Second
	defaultPongTimeout    = 10 * time.Second
	defaultSendBuffer     = 64
	writeWait             = 10 * time.Second
)

// ErrShuttingDown is returned by Accept once Shutdown has started.
var ErrShuttingDown = errors.New("realtime handler is shutting down")

// State is the lifecycle state of a Conn.
type State int32

const (
	StateConnecting State = iota
	StateAuthenticated
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Authenticator resolves the credential presented on upgrade.
// *auth.Authenticator satisfies it.
type Authenticator interface {
	Authenticate(ctx context.Context, credential string) (*auth.User, error)
}

// HandlerConfig tunes every connection accepted by a Handler.
type HandlerConfig struct {
	MaxMessageSize int64
	PingInterval   time.Duration
	PongTimeout    time.Duration
	SendBuffer     int
}

// HandlerConfigFrom converts the websocket section of the service config.
func HandlerConfigFrom(cfg config.WebSocketConfig) HandlerConfig {
	return HandlerConfig{
		MaxMessageSize: int64(cfg.MaxMessageSize),
		PingInterval:   time.Duration(cfg.PingInterval) * time.Second,
		PongTimeout:    time.Duration(cfg.PongTimeout) * time.Second,
		SendBuffer:     cfg.SendBuffer,
	}
}

func (c HandlerConfig) withDefaults() HandlerConfig {
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = defaultMaxMessageSize
	}
	if c.PingInterval <= 0 {
		c.PingInterval = defaultPingInterval
	}
	if c.PongTimeout <= 0 {
		c.PongTimeout = defaultPongTimeout
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = defaultSendBuffer
	}
	return c
}

// HandlerDeps holds a Handler's collaborators. Audit and Logger are
// optional.
type HandlerDeps struct {
	Config        HandlerConfig
	Authenticator Authenticator
	Registry      *Registry
	Router        *Router
	Audit         AuditRecorder
	Logger        Logger
}

// Handler runs upgraded websocket connections: it authenticates them,
// joins them to their user's session and dispatches their messages.
type Handler struct {
	cfg      HandlerConfig
	authn    Authenticator
	registry *Registry
	router   *Router
	audit    AuditRecorder
	logger   Logger

	conns *xsync.MapOf[string, *Conn]

	// mu orders Accept against Shutdown: no connection opens and no wg.Add
	// happens once closing is set.
	mu      sync.Mutex
	closing bool
	wg      sync.WaitGroup
}

// NewHandler creates a Handler from deps.
func NewHandler(deps HandlerDeps) *Handler {
	h := &Handler{
		cfg:      deps.Config.withDefaults(),
		authn:    deps.Authenticator,
		registry: deps.Registry,
		router:   deps.Router,
		audit:    deps.Audit,
		logger:   deps.Logger,
		conns:    xsync.NewMapOf[*Conn](),
	}
	if h.logger == nil {
		h.logger = noopLogger{}
	}
	return h
}

// Accept takes ownership of ws. The credential is checked first; on
// rejection the socket is closed with CloseAuthRejected and an error of
// kind KindAuthenticationRejected is returned. Otherwise the connection
// joins its session and is served in the background until either side
// closes it. After Shutdown has started the socket is closed with
// CloseGoingAway and ErrShuttingDown is returned.
func (h *Handler) Accept(ctx context.Context, ws *websocket.Conn, credential string) (*Conn, error) {
	c := h.newConn(ws)
	if h.isClosing() {
		h.turnAway(c)
		return nil, ErrShuttingDown
	}

	user, err := h.authn.Authenticate(ctx, credential)
	if err != nil {
		h.reject(ctx, c, err)
		return nil, &Error{Kind: KindAuthenticationRejected, Err: err}
	}

	c.user = user
	c.sessionKey = SessionKey(user.ID)
	c.setState(StateAuthenticated)

	h.mu.Lock()
	if h.closing {
		h.mu.Unlock()
		h.turnAway(c)
		return nil, ErrShuttingDown
	}
	h.conns.Store(c.id, c)
	h.registry.Join(c.sessionKey, c)
	c.setState(StateOpen)
	h.wg.Add(2)
	h.mu.Unlock()

	h.logger.Info("websocket connection opened",
		"conn_id", c.id, "user_id", user.ID, "session_key", c.sessionKey)

	go c.writePump()
	go c.readPump()
	return c, nil
}

func (h *Handler) isClosing() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closing
}

// turnAway closes a connection that arrived during shutdown.
func (h *Handler) turnAway(c *Conn) {
	c.setState(StateClosed)
	c.cancel()

	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	if err := c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait)); err != nil {
		h.logger.Debug("writing going-away close frame failed", "conn_id", c.id, "error", err)
	}
	c.ws.Close() //nolint:errcheck // connection is being discarded

	h.logger.Info("websocket connection refused during shutdown", "conn_id", c.id)
}

// ConnectionCount returns the number of open connections.
func (h *Handler) ConnectionCount() int {
	return h.conns.Size()
}

// Shutdown closes every connection with a going-away frame and waits for
// their goroutines to exit or ctx to expire.
func (h *Handler) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	h.closing = true
	h.mu.Unlock()

	h.conns.Range(func(_ string, c *Conn) bool {
		c.Close(websocket.CloseGoingAway, "server shutting down")
		return true
	})

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Handler) reject(ctx context.Context, c *Conn, cause error) {
	c.setState(StateClosed)
	c.cancel()

	msg := websocket.FormatCloseMessage(CloseAuthRejected, msgAuthRejected)
	if err := c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait)); err != nil {
		h.logger.Debug("writing auth rejection close frame failed", "conn_id", c.id, "error", err)
	}
	c.ws.Close() //nolint:errcheck // connection is being discarded

	reason := rejectReason(cause)
	h.logger.Warn("websocket authentication rejected", "conn_id", c.id, "reason", reason, "error", cause)

	if h.audit == nil {
		return
	}
	entry := &audit.Entry{
		Action:     audit.ActionAuthReject,
		EntityType: audit.EntityConnection,
		EntityID:   c.id,
		Source:     audit.SourceWebSocket,
		Details:    map[string]any{"reason": reason},
	}
	if err := h.audit.Create(ctx, entry); err != nil {
		h.logger.Warn("recording auth rejection audit entry failed", "conn_id", c.id, "error", err)
	}
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, auth.ErrMissingCredentials):
		return "missing_credentials"
	case errors.Is(err, auth.ErrTokenInvalid):
		return "invalid_token"
	case errors.Is(err, auth.ErrUserNotFound):
		return "unknown_user"
	case errors.Is(err, auth.ErrUserInactive):
		return "inactive_user"
	default:
		return "lookup_failed"
	}
}

// Conn is one websocket connection. Client messages are handled in
// arrival order and their replies are written in the same order.
type Conn struct {
	id         string
	h          *Handler
	ws         *websocket.Conn
	user       *auth.User
	sessionKey string
	state      atomic.Int32

	ctx    context.Context
	cancel context.CancelFunc

	send chan []byte
	done chan struct{}

	closeOnce sync.Once
	closeCode int
	closeText string
}

func (h *Handler) newConn(ws *websocket.Conn) *Conn {
	ctx, cancel := context.WithCancel(context.Background())
	return &Conn{
		id:     "conn-" + uuid.NewString()[:8],
		h:      h,
		ws:     ws,
		ctx:    ctx,
		cancel: cancel,
		send:   make(chan []byte, h.cfg.SendBuffer),
		done:   make(chan struct{}),
	}
}

// ID implements Member.
func (c *Conn) ID() string { return c.id }

// User returns the authenticated user, or nil before authentication.
func (c *Conn) User() *auth.User { return c.user }

// SessionKey returns the session the connection belongs to.
func (c *Conn) SessionKey() string { return c.sessionKey }

// State returns the current lifecycle state.
func (c *Conn) State() State { return State(c.state.Load()) }

func (c *Conn) setState(s State) { c.state.Store(int32(s)) }

// Done is closed once the connection has left its session.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Deliver implements Member. It never blocks; a full send queue drops
// the payload.
func (c *Conn) Deliver(payload []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// Close leaves the session and closes the socket with code and text.
func (c *Conn) Close(code int, text string) {
	c.teardown(code, text)
}

// reply queues a direct response, waiting for room so replies are never
// dropped or reordered.
func (c *Conn) reply(payload []byte) {
	select {
	case c.send <- payload:
	case <-c.done:
	}
}

func (c *Conn) replyError(err error) {
	c.reply(errorFrame(AsError(err)))
}

func (c *Conn) teardown(code int, text string) {
	c.closeOnce.Do(func() {
		c.closeCode = code
		c.closeText = text
		c.setState(StateClosed)
		if c.sessionKey != "" {
			c.h.registry.Leave(c.sessionKey, c)
		}
		c.h.conns.Delete(c.id)
		c.cancel()
		close(c.done)

		c.h.logger.Info("websocket connection closed",
			"conn_id", c.id, "session_key", c.sessionKey, "code", code)
	})
}

func (c *Conn) readPump() {
	defer c.h.wg.Done()
	defer c.teardown(websocket.CloseNormalClosure, "")

	cfg := c.h.cfg
	c.ws.SetReadLimit(cfg.MaxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(cfg.PingInterval + cfg.PongTimeout)) //nolint:errcheck // read error surfaces below
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(cfg.PingInterval + cfg.PongTimeout))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				c.h.logger.Warn("websocket read error", "conn_id", c.id, "error", err)
			}
			return
		}
		c.ws.SetReadDeadline(time.Now().Add(cfg.PingInterval + cfg.PongTimeout)) //nolint:errcheck // next read reports it
		c.handle(data)
	}
}

func (c *Conn) handle(data []byte) {
	in, err := DecodeMessage(data)

	c.h.logger.Info("websocket message received",
		"conn_id", c.id, "user_id", c.user.ID, "session_key", c.sessionKey, "type", in.RawType)

	if err != nil {
		rtErr := AsError(err)
		c.h.logger.Debug("rejected websocket message", "conn_id", c.id, "kind", rtErr.Kind.String(), "error", rtErr)
		c.reply(errorFrame(rtErr))
		return
	}

	switch in.Type {
	case MessageProximityEvent:
		if _, err := c.h.router.ReportProximity(c.ctx, c.user.ID, *in.Proximity); err != nil {
			c.replyError(err)
		}
	case MessageNotificationAck:
		if err := c.h.router.AcknowledgeNotification(c.ctx, c.user.ID, in.Ack.NotificationID); err != nil {
			c.replyError(err)
			return
		}
		c.reply(encode(StatusReply{Status: StatusAcknowledged}))
	default:
		c.reply(errorFrame(&Error{Kind: KindUnknownMessageType}))
	}
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(c.h.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.ws.Close() //nolint:errcheck // best effort on teardown
		c.h.wg.Done()
	}()

	for {
		select {
		case payload := <-c.send:
			if err := c.write(websocket.TextMessage, payload); err != nil {
				c.teardown(websocket.CloseAbnormalClosure, "")
				return
			}

		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.teardown(websocket.CloseAbnormalClosure, "")
				return
			}

		case <-c.done:
			if c.closeCode == websocket.CloseAbnormalClosure {
				return
			}
			c.flush()
			msg := websocket.FormatCloseMessage(c.closeCode, c.closeText)
			c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait)) //nolint:errcheck // peer may already be gone
			return
		}
	}
}

// flush writes whatever is still queued without waiting for more.
func (c *Conn) flush() {
	for {
		select {
		case payload := <-c.send:
			if err := c.write(websocket.TextMessage, payload); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *Conn) write(messageType int, payload []byte) error {
	c.ws.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck // write reports it
	return c.ws.WriteMessage(messageType, payload)
}
