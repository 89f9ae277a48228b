package handlers

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/natanaelribeiro272-glitch/meetlines-sub000/internal/engine"
	"github.com/natanaelribeiro272-glitch/meetlines-sub000/internal/middleware"
	"github.com/natanaelribeiro272-glitch/meetlines-sub000/internal/models"
)

// FriendshipHandler handles friendship edge HTTP requests
type FriendshipHandler struct {
	engine *engine.Service
}

// NewFriendshipHandler creates a new FriendshipHandler
func NewFriendshipHandler(eng *engine.Service) *FriendshipHandler {
	return &FriendshipHandler{engine: eng}
}

// RegisterFriendshipRoutes registers friendship-related routes
func (h *FriendshipHandler) RegisterFriendshipRoutes(g *echo.Group) {
	g.POST("/friends", h.AddFriend)
	g.DELETE("/friends/:friendId", h.RemoveFriend)
	g.GET("/friends/:friendId/status", h.Status)
}

// AddFriend creates the edge. Adding is immediate: no approval round-trip.
func (h *FriendshipHandler) AddFriend(c echo.Context) error {
	userID, err := middleware.CurrentUserID(c)
	if err != nil {
		return err
	}

	var req models.AddFriendRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request payload")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	edge, err := h.engine.AddFriend(c.Request().Context(), userID, req.FriendID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, edge)
}

// RemoveFriend dissolves the edge unilaterally.
func (h *FriendshipHandler) RemoveFriend(c echo.Context) error {
	userID, err := middleware.CurrentUserID(c)
	if err != nil {
		return err
	}
	friendID, err := parseIDParam(c, "friendId")
	if err != nil {
		return err
	}

	if err := h.engine.RemoveFriend(c.Request().Context(), userID, friendID); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Status returns the edge state between the viewer and another user.
func (h *FriendshipHandler) Status(c echo.Context) error {
	userID, err := middleware.CurrentUserID(c)
	if err != nil {
		return err
	}
	friendID, err := parseIDParam(c, "friendId")
	if err != nil {
		return err
	}

	status, err := h.engine.FriendStatus(c.Request().Context(), userID, friendID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"status": status})
}

// parseIDParam reads a numeric path parameter.
func parseIDParam(c echo.Context, name string) (uint, error) {
	raw := c.Param(name)
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "Invalid "+name)
	}
	return uint(id), nil
}
