// Package httpapi exposes the chat room over HTTP polling. Clients log in,
// send and log out with POSTs and fetch new events with
// GET /chat/messages?lastTime=<cursor>. Identity travels in a session cookie.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/whisper/roomchat/internal/chat"
	"github.com/whisper/roomchat/internal/logging"
	"github.com/whisper/roomchat/internal/metrics"
	"github.com/whisper/roomchat/internal/protocol"
	"github.com/whisper/roomchat/internal/ratelimit"
	"github.com/whisper/roomchat/internal/room"
	"github.com/whisper/roomchat/internal/session"
)

// DefaultCookieName is the session cookie used when none is configured.
const DefaultCookieName = "CHATSESSION"

// Limiter throttles requests per identifier. *ratelimit.Limiter satisfies it.
type Limiter interface {
	Allow(ctx context.Context, op ratelimit.Op, identifier string) (bool, error)
}

// Publisher forwards appended events to out-of-process observers.
// *messaging.NATSClient satisfies it.
type Publisher interface {
	PublishRoomEvent(data []byte) error
}

// Options configures optional collaborators. Nil Limiter and Publisher
// disable rate limiting and the event feed.
type Options struct {
	CookieName string
	Limiter    Limiter
	Publisher  Publisher
}

// Handler serves the chat endpoints for one room.
type Handler struct {
	room      *room.Coordinator
	sessions  session.Store
	limiter   Limiter
	publisher Publisher
	cookie    string
	started   time.Time
}

// NewHandler creates a Handler for the given room and session store.
func NewHandler(c *room.Coordinator, sessions session.Store, opts Options) *Handler {
	if opts.CookieName == "" {
		opts.CookieName = DefaultCookieName
	}
	return &Handler{
		room:      c,
		sessions:  sessions,
		limiter:   opts.Limiter,
		publisher: opts.Publisher,
		cookie:    opts.CookieName,
		started:   time.Now(),
	}
}

// RegisterRoutes registers the chat, health and metrics routes. Every other
// path answers 404 with an "invalid request path" failure.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	chatGroup := r.Group("/chat")
	{
		chatGroup.POST("/login", h.Login)
		chatGroup.POST("/send", h.Send)
		chatGroup.POST("/logout", h.Logout)
		chatGroup.GET("/messages", h.Messages)
	}

	r.GET("/health", h.Health)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, protocol.Fail(protocol.MsgInvalidPath+c.Request.URL.Path))
	})
}

// Login binds the caller's session to a new room name. A session that was
// bound to another name gives that name up once the new login succeeds.
func (h *Handler) Login(c *gin.Context) {
	const op = "login"
	defer observe(op, time.Now())

	ctx := c.Request.Context()
	l := logging.FromContext(ctx)

	if !h.allow(c, op, ratelimit.OpLogin, c.ClientIP()) {
		return
	}

	oldToken, oldName, err := h.currentUser(c)
	if err != nil {
		h.serverError(c, op, err)
		return
	}

	ack, err := h.room.Login(param(c, "username"))
	if err != nil {
		h.reject(c, op, err)
		return
	}
	h.publish(ctx, ack.Event)

	token, err := h.sessions.Create(ctx, ack.Name)
	if err != nil {
		// Roll the roster back so the name is not stranded without a session.
		if ev, ok := h.room.Logout(ack.Name); ok {
			h.publish(ctx, ev)
		}
		h.serverError(c, op, err)
		return
	}

	if oldToken != "" {
		if err := h.sessions.Delete(ctx, oldToken); err != nil {
			l.Warn().Err(err).Msg("failed to delete replaced session")
		}
	}
	if oldName != "" {
		if ev, ok := h.room.Logout(oldName); ok {
			h.publish(ctx, ev)
		}
	}

	h.setCookie(c, token)
	c.Set(logging.FieldUsername, ack.Name)
	metrics.RequestsTotal.WithLabelValues(op, metrics.OutcomeOK).Inc()
	l.Info().Str(logging.FieldUsername, ack.Name).Msg("user joined")
	c.JSON(http.StatusOK, protocol.LoggedIn(ack.Name))
}

// Send appends a user message on behalf of the session's user.
func (h *Handler) Send(c *gin.Context) {
	const op = "send"
	defer observe(op, time.Now())

	_, name, err := h.currentUser(c)
	if err != nil {
		h.serverError(c, op, err)
		return
	}
	if name != "" {
		c.Set(logging.FieldUsername, name)
		if !h.allow(c, op, ratelimit.OpSend, name) {
			return
		}
	}

	ack, err := h.room.Send(name, param(c, "content"))
	if err != nil {
		h.reject(c, op, err)
		return
	}
	h.publish(c.Request.Context(), ack.Event)

	metrics.RequestsTotal.WithLabelValues(op, metrics.OutcomeOK).Inc()
	c.JSON(http.StatusOK, protocol.OK())
}

// Messages returns every event newer than lastTime plus the roster. A
// missing or malformed lastTime reads as 0.
func (h *Handler) Messages(c *gin.Context) {
	const op = "poll"
	defer observe(op, time.Now())

	snap := h.room.Poll(parseCursor(param(c, "lastTime")))

	metrics.RequestsTotal.WithLabelValues(op, metrics.OutcomeOK).Inc()
	c.JSON(http.StatusOK, protocol.NewPollResponse(snap.Events, snap.Cursor, snap.Users))
}

// Logout releases the session's name, if any, and always ends the session.
func (h *Handler) Logout(c *gin.Context) {
	const op = "logout"
	defer observe(op, time.Now())

	ctx := c.Request.Context()
	l := logging.FromContext(ctx)

	token, name, err := h.currentUser(c)
	if err != nil {
		// The cookie is still cleared; the store entry expires on its own.
		l.Warn().Err(err).Msg("session lookup failed during logout")
	}

	if name != "" {
		c.Set(logging.FieldUsername, name)
		if ev, ok := h.room.Logout(name); ok {
			h.publish(ctx, ev)
			l.Info().Str(logging.FieldUsername, name).Msg("user left")
		}
	}
	if token != "" {
		if err := h.sessions.Delete(ctx, token); err != nil {
			l.Warn().Err(err).Msg("failed to delete session")
		}
	}

	h.clearCookie(c)
	metrics.RequestsTotal.WithLabelValues(op, metrics.OutcomeOK).Inc()
	c.JSON(http.StatusOK, protocol.OK())
}

// Health reports liveness and room size.
func (h *Handler) Health(c *gin.Context) {
	stats := h.room.Stats()
	c.JSON(http.StatusOK, protocol.HealthResponse{
		Status: "ok",
		Online: stats.Online,
		Logged: stats.Logged,
		Uptime: time.Since(h.started).Round(time.Second).String(),
	})
}

// currentUser resolves the session cookie. Both values are empty when the
// request carries no session.
func (h *Handler) currentUser(c *gin.Context) (token, name string, err error) {
	token, err = c.Cookie(h.cookie)
	if err != nil || token == "" {
		return "", "", nil
	}
	name, err = h.sessions.Lookup(c.Request.Context(), token)
	if err != nil {
		return token, "", err
	}
	return token, name, nil
}

func (h *Handler) allow(c *gin.Context, op string, limited ratelimit.Op, identifier string) bool {
	if h.limiter == nil {
		return true
	}
	ok, err := h.limiter.Allow(c.Request.Context(), limited, identifier)
	if err != nil {
		l := logging.FromContext(c.Request.Context())
		l.Warn().Err(err).Str("op", op).Msg("rate limiter unavailable")
	}
	if ok {
		return true
	}
	metrics.RequestsTotal.WithLabelValues(op, metrics.OutcomeLimited).Inc()
	c.JSON(http.StatusTooManyRequests, protocol.Fail(protocol.MsgRateLimited))
	return false
}

func (h *Handler) publish(ctx context.Context, ev chat.ChatEvent) {
	metrics.EventsTotal.WithLabelValues(string(ev.Kind)).Inc()
	if h.publisher == nil {
		return
	}
	l := logging.FromContext(ctx)
	data, err := protocol.EncodeEvent(ev)
	if err != nil {
		l.Error().Err(err).Msg("failed to encode room event")
		return
	}
	if err := h.publisher.PublishRoomEvent(data); err != nil {
		l.Warn().Err(err).Msg("failed to publish room event")
	}
}

func (h *Handler) reject(c *gin.Context, op string, err error) {
	if !isClientError(err) {
		h.serverError(c, op, err)
		return
	}
	metrics.RequestsTotal.WithLabelValues(op, metrics.OutcomeRejected).Inc()
	c.JSON(http.StatusOK, protocol.Fail(err.Error()))
}

func (h *Handler) serverError(c *gin.Context, op string, err error) {
	l := logging.FromContext(c.Request.Context())
	l.Error().Err(err).Str("op", op).Msg("request failed")
	metrics.RequestsTotal.WithLabelValues(op, metrics.OutcomeError).Inc()
	c.JSON(http.StatusInternalServerError, protocol.Fail(protocol.MsgServerError))
}

func (h *Handler) setCookie(c *gin.Context, token string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookie, token, 0, "/", "", false, true)
}

func (h *Handler) clearCookie(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookie, "", -1, "/", "", false, true)
}

func isClientError(err error) bool {
	return errors.Is(err, room.ErrEmptyName) ||
		errors.Is(err, room.ErrNameTaken) ||
		errors.Is(err, room.ErrEmptyContent) ||
		errors.Is(err, room.ErrNotLoggedIn)
}

// param reads a request parameter from the form body, then the query string.
func param(c *gin.Context, key string) string {
	if v, ok := c.GetPostForm(key); ok {
		return v
	}
	return c.Query(key)
}

func parseCursor(s string) int64 {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func observe(op string, start time.Time) {
	metrics.RequestLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
