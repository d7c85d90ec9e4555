package handler

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/eventure/ticketing/internal/model"
	"github.com/eventure/ticketing/internal/notify"
)

const (
	// writeWait bounds how long a single frame write may block before
	// the connection is considered dead.
	writeWait = 10 * time.Second
	// pongWait is the read deadline extended on every pong; the ping
	// period must be shorter so the peer always has a ping to answer.
	pongWait   = 60 * time.Second
	pingPeriod = 50 * time.Second
)

// wsFrame is the envelope written to the client for every delivered
// notification, live or replayed.
type wsFrame struct {
	Kind         string              `json:"kind"` // "notification" or "replay"
	Notification *model.Notification `json:"notification"`
}

// replayRequest is the only frame the client sends: its last
// acknowledged timestamp.  Everything strictly after it is re-sent.
type replayRequest struct {
	Since time.Time `json:"since"`
}

// WSHandler bridges an authenticated websocket connection to the
// notification broker.  Each user holds at most one live connection; a
// new connect displaces the old one.
type WSHandler struct {
	Broker *notify.Broker
	Log    *logrus.Logger

	upgrader websocket.Upgrader
}

// NewWSHandler constructs a WSHandler.
func NewWSHandler(broker *notify.Broker, log *logrus.Logger) *WSHandler {
	if broker == nil {
		panic("nil broker passed to NewWSHandler")
	}
	return &WSHandler{
		Broker: broker,
		Log:    log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Auth is the bearer token, not the origin; cross-origin
			// dashboards are expected.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Serve handles GET /v1/ws.  After the upgrade the client may send
// replay requests carrying its last-acked timestamp; the handler pushes
// missed rows followed by live notifications until either side closes.
func (h *WSHandler) Serve(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade already wrote the error response.
		return nil
	}
	defer conn.Close()

	sub := h.Broker.Subscribe(userID)
	defer h.Broker.Unsubscribe(sub)

	log := h.Log.WithField("user_id", userID)
	log.Info("websocket connected")
	defer log.Info("websocket disconnected")

	// Reader goroutine: consumes replay requests and pongs, signals
	// closure.  Replay rows are funneled through the writer loop so the
	// connection sees a single writer.
	replayed := make(chan []model.Notification, 1)
	done := make(chan struct{})
	go h.readLoop(c, conn, userID, replayed, done)

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case n, ok := <-sub.C:
			if !ok {
				// Displaced by a newer connection for the same user.
				return nil
			}
			if err := h.write(conn, wsFrame{Kind: "notification", Notification: &n}); err != nil {
				return nil
			}
		case rows := <-replayed:
			for i := range rows {
				if err := h.write(conn, wsFrame{Kind: "replay", Notification: &rows[i]}); err != nil {
					return nil
				}
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return nil
			}
		case <-done:
			return nil
		}
	}
}

func (h *WSHandler) readLoop(c echo.Context, conn *websocket.Conn, userID string, replayed chan<- []model.Notification, done chan<- struct{}) {
	defer close(done)
	conn.SetReadLimit(4096)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		var req replayRequest
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		rows, err := h.Broker.Replay(c.Request().Context(), userID, req.Since)
		if err != nil {
			h.Log.WithError(err).WithField("user_id", userID).Warn("replay lookup failed")
			continue
		}
		select {
		case replayed <- rows:
		default:
			// A previous replay is still being flushed; the client can
			// re-request once it catches up.
		}
	}
}

func (h *WSHandler) write(conn *websocket.Conn, frame wsFrame) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(frame)
}
