package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/natanaelribeiro272-glitch/meetlines-sub000/internal/apperrors"
	"github.com/natanaelribeiro272-glitch/meetlines-sub000/internal/engine"
	"github.com/natanaelribeiro272-glitch/meetlines-sub000/internal/middleware"
	"github.com/natanaelribeiro272-glitch/meetlines-sub000/internal/models"
)

// httpError maps an engine error onto the HTTP status it deserves.
func httpError(err error) error {
	var ae *apperrors.Err
	if errors.As(err, &ae) {
		return echo.NewHTTPError(ae.StatusCode(), ae.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

// DiscoveryHandler handles candidate pool and visibility HTTP requests
type DiscoveryHandler struct {
	engine *engine.Service
}

// NewDiscoveryHandler creates a new DiscoveryHandler
func NewDiscoveryHandler(eng *engine.Service) *DiscoveryHandler {
	return &DiscoveryHandler{engine: eng}
}

// RegisterDiscoveryRoutes registers discovery-related routes
func (h *DiscoveryHandler) RegisterDiscoveryRoutes(g *echo.Group) {
	g.GET("/discovery/nearby", h.Nearby)
	g.GET("/discovery/friends", h.Friends)
	g.GET("/discovery/visibility", h.GetVisibility)
	g.POST("/discovery/visibility", h.UpdateVisibility)
	g.POST("/discovery/position", h.ReportPosition)
}

// Nearby returns the viewer's current nearby candidate pool.
func (h *DiscoveryHandler) Nearby(c echo.Context) error {
	userID, err := middleware.CurrentUserID(c)
	if err != nil {
		return err
	}
	rows, err := h.engine.NearbyCandidates(c.Request().Context(), userID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"candidates": rows})
}

// Friends returns the viewer's friends pool. Friends surface regardless of
// distance; distance is attached only when both sides have a fresh position.
func (h *DiscoveryHandler) Friends(c echo.Context) error {
	userID, err := middleware.CurrentUserID(c)
	if err != nil {
		return err
	}
	rows, err := h.engine.FriendCandidates(c.Request().Context(), userID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"candidates": rows})
}

// GetVisibility returns the viewer's visibility profile.
func (h *DiscoveryHandler) GetVisibility(c echo.Context) error {
	userID, err := middleware.CurrentUserID(c)
	if err != nil {
		return err
	}
	profile, err := h.engine.Visibility(c.Request().Context(), userID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, profile)
}

// UpdateVisibility flips discoverability or changes the content scope.
func (h *DiscoveryHandler) UpdateVisibility(c echo.Context) error {
	userID, err := middleware.CurrentUserID(c)
	if err != nil {
		return err
	}

	var req models.UpdateVisibilityRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request payload")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	profile, err := h.engine.ToggleVisibility(c.Request().Context(), userID, req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, profile)
}

// ReportPosition accepts a manual position fix for clients not streaming over
// the websocket.
func (h *DiscoveryHandler) ReportPosition(c echo.Context) error {
	userID, err := middleware.CurrentUserID(c)
	if err != nil {
		return err
	}

	var req models.UpdatePositionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request payload")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	pos := &models.UserPosition{
		UserID:    userID,
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
		UpdatedAt: time.Now(),
	}
	if err := h.engine.ReportPosition(c.Request().Context(), pos); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pos)
}
