package transport

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/marain-chat/marain-server/internal/v1/app"
	"github.com/marain-chat/marain-server/internal/v1/logging"
	"github.com/marain-chat/marain-server/internal/v1/metrics"
	"github.com/marain-chat/marain-server/internal/v1/types"
	"github.com/marain-chat/marain-server/internal/v1/wire"
)

// Options configures a Hub. Zero values fall back to sensible defaults.
type Options struct {
	AllowedOrigins   []string      // empty allows any origin
	HandshakeTimeout time.Duration // read deadline on the login frame
	EventBuffer      int           // per-session event sink capacity
}

// Hub accepts WebSocket upgrades, runs the login handshake, and hands
// authenticated connections to session workers. It tracks live sessions so
// shutdown can cancel them and wait for their cleanup.
type Hub struct {
	commands         chan<- app.Command
	allowedOrigins   []string
	handshakeTimeout time.Duration
	eventBuffer      int

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	sessions map[*SessionWorker]struct{}
	wg       sync.WaitGroup
}

// NewHub creates a Hub submitting commands into the given gateway sink.
func NewHub(commands chan<- app.Command, opts Options) *Hub {
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = 10 * time.Second
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = 256
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		commands:         commands,
		allowedOrigins:   opts.AllowedOrigins,
		handshakeTimeout: opts.HandshakeTimeout,
		eventBuffer:      opts.EventBuffer,
		ctx:              ctx,
		cancel:           cancel,
		sessions:         make(map[*SessionWorker]struct{}),
	}
}

// ServeWs upgrades the request and runs the connection on its own goroutine.
// GET /ws
func (h *Hub) ServeWs(c *gin.Context) {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return validateOrigin(r, h.allowedOrigins) == nil
		},
		WriteBufferPool: &sync.Pool{},
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logging.Error(c.Request.Context(), "failed to upgrade connection", zap.Error(err))
		return
	}

	// The request context dies with the handler; only the correlation ID
	// survives into the session's context.
	correlationID, _ := c.Request.Context().Value(logging.CorrelationIDKey).(string)

	h.wg.Add(1)
	go h.runConnection(correlationID, conn)
}

// runConnection performs the handshake and, on success, runs the session
// worker until the connection ends or the hub shuts down.
func (h *Hub) runConnection(correlationID string, conn wsConnection) {
	defer h.wg.Done()
	defer func() { _ = conn.Close() }()

	ctx, cancel := context.WithCancel(h.ctx)
	defer cancel()
	if correlationID != "" {
		ctx = context.WithValue(ctx, logging.CorrelationIDKey, correlationID)
	}

	metrics.IncConnection()
	defer metrics.DecConnection()

	user, ok := h.handshake(ctx, conn)
	if !ok {
		metrics.Handshakes.WithLabelValues(metrics.OutcomeFailure).Inc()
		return
	}
	metrics.Handshakes.WithLabelValues(metrics.OutcomeSuccess).Inc()

	ctx = context.WithValue(ctx, logging.UserIDKey, user.ID)
	logging.Info(ctx, "login handshake complete", zap.String("name", user.Name))

	worker := newSessionWorker(user, conn, h.commands, h.eventBuffer)
	h.track(worker)
	defer h.untrack(worker)

	worker.Run(ctx)
}

// handshake consumes the first frame of a new socket: it must be a binary
// Login with no token. On success the ECDH-derived session key is fixed and
// the LoginSuccess reply goes out in cleartext; every later frame is
// encrypted. Any failure answers with a JustNo refusal and ends the
// connection.
func (h *Hub) handshake(ctx context.Context, conn wsConnection) (types.User, bool) {
	_ = conn.SetReadDeadline(time.Now().Add(h.handshakeTimeout))

	messageType, data, err := conn.ReadMessage()
	if err != nil {
		logging.Warn(ctx, "handshake read failed", zap.Error(err))
		return types.User{}, false
	}
	_ = conn.SetReadDeadline(time.Time{})

	if messageType != websocket.BinaryMessage {
		logging.Warn(ctx, "handshake frame is not binary", zap.Int("message_type", messageType))
		h.loginFail(ctx, conn)
		return types.User{}, false
	}

	msg, err := wire.UnmarshalClient(data)
	if err != nil {
		logging.Warn(ctx, "handshake frame undecodable", zap.Error(err))
		h.loginFail(ctx, conn)
		return types.User{}, false
	}

	login, ok := msg.Body.(wire.Login)
	if !ok || msg.Token != nil {
		logging.Warn(ctx, "handshake frame is not a login")
		h.loginFail(ctx, conn)
		return types.User{}, false
	}

	// Fresh keypair per connection: compromising one session's key exposes
	// no other session.
	serverPublic, serverSecret, err := wire.GenerateKeyPair()
	if err != nil {
		logging.Error(ctx, "keypair generation failed", zap.Error(err))
		h.loginFail(ctx, conn)
		return types.User{}, false
	}
	sharedSecret, err := wire.SharedSecret(serverSecret, login.ClientPublicKey)
	if err != nil {
		logging.Warn(ctx, "ecdh rejected client public key", zap.Error(err))
		h.loginFail(ctx, conn)
		return types.User{}, false
	}

	user := types.NewUser(newUserID(), login.Name, sharedSecret)

	success := wire.ServerMsg{
		Status:    wire.StatusYes(),
		Timestamp: wire.Now(),
		Body:      wire.LoginSuccess{Token: user.ID, PublicKey: serverPublic},
	}
	if err := writePlaintext(conn, success); err != nil {
		logging.Warn(ctx, "failed to send login success", zap.Error(err))
		return types.User{}, false
	}

	return user, true
}

// loginFail answers a failed handshake with a cleartext JustNo and a close
// frame. Write errors here are irrelevant; the connection is dead either way.
func (h *Hub) loginFail(ctx context.Context, conn wsConnection) {
	refusal := wire.ServerMsg{
		Status:    wire.StatusJustNo(),
		Timestamp: wire.Now(),
		Body:      wire.Empty{},
	}
	if err := writePlaintext(conn, refusal); err != nil {
		logging.Warn(ctx, "failed to send login refusal", zap.Error(err))
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "login failed"))
}

// writePlaintext sends one unencrypted server message. Only the two
// handshake replies go out this way.
func writePlaintext(conn wsConnection, msg wire.ServerMsg) error {
	data, err := wire.MarshalServer(msg)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.BinaryMessage, data)
}

// newUserID renders a fresh UUIDv4 as 32 uppercase hex characters.
func newUserID() string {
	return fmt.Sprintf("%X", [16]byte(uuid.New()))
}

func (h *Hub) track(w *SessionWorker) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessions[w] = struct{}{}
}

func (h *Hub) untrack(w *SessionWorker) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.sessions, w)
}

// SessionCount reports the number of live sessions.
func (h *Hub) SessionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// Shutdown cancels every live session and waits for their cleanup, or until
// ctx expires. Each session walks its normal teardown: DropUser, terminal
// UserLeft, close frame.
func (h *Hub) Shutdown(ctx context.Context) error {
	logging.Info(ctx, "shutting down hub", zap.Int("sessions", h.SessionCount()))
	h.cancel()

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logging.Info(ctx, "all sessions closed")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("hub shutdown: %w", ctx.Err())
	}
}

// validateOrigin checks if the request origin is in the allowed list. An
// empty list or a missing Origin header (non-browser client) allows the
// request.
func validateOrigin(r *http.Request, allowedOrigins []string) error {
	origin := r.Header.Get("Origin")
	if origin == "" || len(allowedOrigins) == 0 {
		return nil
	}

	originURL, err := url.Parse(origin)
	if err != nil {
		return fmt.Errorf("invalid origin URL: %w", err)
	}

	for _, allowed := range allowedOrigins {
		allowedURL, err := url.Parse(allowed)
		if err != nil {
			continue
		}
		// Scheme and host must both match
		if originURL.Scheme == allowedURL.Scheme && originURL.Host == allowedURL.Host {
			return nil
		}
	}

	return fmt.Errorf("origin not allowed: %s", origin)
}
