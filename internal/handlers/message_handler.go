package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/natanaelribeiro272-glitch/meetlines-sub000/internal/engine"
	"github.com/natanaelribeiro272-glitch/meetlines-sub000/internal/middleware"
	"github.com/natanaelribeiro272-glitch/meetlines-sub000/internal/models"
)

// MessageHandler handles direct message HTTP requests
type MessageHandler struct {
	engine *engine.Service
}

// NewMessageHandler creates a new MessageHandler
func NewMessageHandler(eng *engine.Service) *MessageHandler {
	return &MessageHandler{engine: eng}
}

// RegisterMessageRoutes registers message-related routes
func (h *MessageHandler) RegisterMessageRoutes(g *echo.Group) {
	g.POST("/messages", h.Send)
	g.GET("/messages/unread", h.UnreadCounts)
	g.POST("/messages/:peerId/read", h.MarkRead)
}

// Send delivers a direct message.
func (h *MessageHandler) Send(c echo.Context) error {
	userID, err := middleware.CurrentUserID(c)
	if err != nil {
		return err
	}

	var req models.SendMessageRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request payload")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	msg, err := h.engine.SendMessage(c.Request().Context(), userID, req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, msg)
}

// UnreadCounts returns the viewer's non-zero per-peer unread counters.
func (h *MessageHandler) UnreadCounts(c echo.Context) error {
	userID, err := middleware.CurrentUserID(c)
	if err != nil {
		return err
	}

	counts, err := h.engine.UnreadCounts(c.Request().Context(), userID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"unread": counts})
}

// MarkRead flags every unread message from the peer as read.
func (h *MessageHandler) MarkRead(c echo.Context) error {
	userID, err := middleware.CurrentUserID(c)
	if err != nil {
		return err
	}
	peerID, err := parseIDParam(c, "peerId")
	if err != nil {
		return err
	}

	if err := h.engine.MarkMessagesRead(c.Request().Context(), userID, peerID); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
