package ws

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"github.com/waflawe/eXwonder-backend/internal/observability"
)

// MessengerHandler upgrades websocket connections and hands them to sessions.
// Authentication happens in-band through the authenticate frame, so the
// upgrade itself is open.
type MessengerHandler struct {
	dispatcher   *Dispatcher
	readLimit    int64
	sendBuffer   int
	writeTimeout time.Duration
	upgrader     websocket.Upgrader
}

// NewMessengerHandler constructs a MessengerHandler. An empty origin list
// admits every origin.
func NewMessengerHandler(dispatcher *Dispatcher, readLimit int64, sendBuffer int, writeTimeout time.Duration, allowedOrigins []string) *MessengerHandler {
	return &MessengerHandler{
		dispatcher:   dispatcher,
		readLimit:    readLimit,
		sendBuffer:   sendBuffer,
		writeTimeout: writeTimeout,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return originAllowed(allowedOrigins, r.Header.Get("Origin"))
			},
		},
	}
}

func originAllowed(allowed []string, origin string) bool {
	if len(allowed) == 0 || origin == "" {
		return true
	}
	for _, candidate := range allowed {
		if strings.EqualFold(candidate, origin) {
			return true
		}
	}
	return false
}

// Handle upgrades the connection and starts the session pumps.
func (h *MessengerHandler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("messenger/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	if h.readLimit > 0 {
		conn.SetReadLimit(h.readLimit)
	}

	info := ConnInfo{
		ConnID:      newConnID(),
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   observability.RequestIDFromRequest(c.Request),
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}

	session := NewSession(conn, h.dispatcher, info, h.sendBuffer, h.writeTimeout)
	session.onClose = func(s *Session) {
		observability.DecWSActive("messenger")
		observability.IncWSEvent("messenger", "ws_disconnect")
		publishConnEvent("ws_disconnect", s.info, time.Since(s.info.ConnectedAt))
	}

	observability.IncWSActive("messenger")
	observability.IncWSEvent("messenger", "ws_connect")
	publishConnEvent("ws_connect", info, 0)

	session.Start()
}

// publishConnEvent emits a connection lifecycle event on its own context:
// the disconnect path outlives the handshake request, whose context is
// canceled once the connection is hijacked.
func publishConnEvent(event string, info ConnInfo, duration time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = observability.PublishEvent(ctx, "ws_events.messenger",
		observability.WSEvent(event, info.ConnID, wsEventPayload(info, duration)),
		observability.BuildHeaders(info.RequestID, info.TraceID))
}

func wsEventPayload(info ConnInfo, duration time.Duration) map[string]any {
	return map[string]any{
		"duration_ms": duration.Milliseconds(),
		"identity": map[string]any{
			"device_id": info.DeviceID,
			"ip":        info.IP,
		},
	}
}
