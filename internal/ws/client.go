package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"github.com/natanaelribeiro272-glitch/meetlines-sub000/internal/apperrors"
	"github.com/natanaelribeiro272-glitch/meetlines-sub000/internal/engine"
	"github.com/natanaelribeiro272-glitch/meetlines-sub000/internal/middleware"
	"github.com/natanaelribeiro272-glitch/meetlines-sub000/internal/tracker"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ClientMessage is what the device sends upstream: raw position fixes, a
// permission loss notice, or a visibility toggle.
type ClientMessage struct {
	Action    string  `json:"action"` // "position", "position_denied", "visibility", "ping"
	Latitude  float64 `json:"latitude,omitempty"`
	Longitude float64 `json:"longitude,omitempty"`
	Enabled   bool    `json:"enabled,omitempty"`
}

// ServerMessage wraps a session update or control reply for the wire.
type ServerMessage struct {
	Event string         `json:"event"`
	Data  *engine.Update `json:"data,omitempty"`
}

// Client is one websocket connection bound to a viewing session. The device
// is the position source: fixes arrive as client messages and feed the
// session's tracker.
type Client struct {
	ID      string
	UserID  uint
	session *engine.Session
	feed    *positionFeed
	conn    *websocket.Conn
	send    chan []byte
	logger  *log.Entry
}

// positionFeed adapts client-reported fixes to the tracker source interface.
type positionFeed struct {
	fixes  chan tracker.Fix
	denied chan struct{}
}

func newPositionFeed() *positionFeed {
	return &positionFeed{
		fixes:  make(chan tracker.Fix, 16),
		denied: make(chan struct{}, 1),
	}
}

func (f *positionFeed) Next(ctx context.Context) (tracker.Fix, error) {
	select {
	case fix := <-f.fixes:
		return fix, nil
	case <-f.denied:
		return tracker.Fix{}, apperrors.NewPermissionDenied("location access revoked by device")
	case <-ctx.Done():
		return tracker.Fix{}, ctx.Err()
	}
}

func (f *positionFeed) offer(fix tracker.Fix) {
	select {
	case f.fixes <- fix:
	default:
		// Tracker is behind; dropping a fix is harmless, the next one
		// supersedes it anyway.
	}
}

func (f *positionFeed) deny() {
	select {
	case f.denied <- struct{}{}:
	default:
	}
}

// Handler upgrades authenticated connections into live sessions.
type Handler struct {
	engine *engine.Service
}

func NewHandler(eng *engine.Service) *Handler {
	return &Handler{engine: eng}
}

// HandleWebSocket authenticates via the token query parameter, upgrades the
// connection and starts the viewing session.
func (h *Handler) HandleWebSocket(c echo.Context) error {
	token := c.QueryParam("token")
	if token == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing token")
	}
	claims, err := middleware.ParseToken(token)
	if err != nil {
		return err
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		log.WithError(err).Warn("websocket upgrade failed")
		return nil
	}

	feed := newPositionFeed()
	// The session outlives this request; its lifecycle is bound to the
	// connection, not the upgrade request context.
	session, err := h.engine.StartSession(context.Background(), claims.UserID, feed)
	if err != nil {
		conn.Close()
		return nil
	}

	client := &Client{
		ID:      uuid.New().String(),
		UserID:  claims.UserID,
		session: session,
		feed:    feed,
		conn:    conn,
		send:    make(chan []byte, 16),
		logger:  log.WithField("component", "ws").WithField("viewerId", claims.UserID),
	}

	go client.writePump()
	go client.readPump()
	return nil
}

func (c *Client) readPump() {
	defer func() {
		c.session.Stop()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.WithError(err).Debug("websocket read error")
			}
			break
		}
		c.handleMessage(message)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case update, ok := <-c.session.Updates():
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			data, err := json.Marshal(ServerMessage{Event: string(update.Type), Data: &update})
			if err != nil {
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) handleMessage(message []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		return
	}

	switch msg.Action {
	case "ping":
		c.sendEvent("pong")
	case "position":
		c.feed.offer(tracker.Fix{
			Latitude:  msg.Latitude,
			Longitude: msg.Longitude,
			At:        time.Now(),
		})
	case "position_denied":
		c.feed.deny()
	case "visibility":
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		var err error
		if msg.Enabled {
			_, err = c.session.EnableVisibility(ctx)
		} else {
			_, err = c.session.DisableVisibility(ctx)
		}
		if err != nil {
			c.logger.WithError(err).Warn("visibility toggle failed")
		}
	}
}

func (c *Client) sendEvent(event string) {
	data, _ := json.Marshal(ServerMessage{Event: event})
	select {
	case c.send <- data:
	default:
	}
}
