package user

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/hiring-api/internal/handler"
	"github.com/jwalitptl/hiring-api/internal/model"
	"github.com/jwalitptl/hiring-api/internal/service/preferences"
	apperrors "github.com/jwalitptl/hiring-api/pkg/errors"
)

const (
	defaultNotificationLimit = 50
	maxNotificationLimit     = 200
)

// NotificationLister is satisfied by *notification.Service.
type NotificationLister interface {
	List(ctx context.Context, userID uuid.UUID, limit int) ([]*model.NotificationRecord, error)
}

// Handler serves the per-user notification history and email preferences.
type Handler struct {
	notifications NotificationLister
	preferences   preferences.Service
}

func NewHandler(notifications NotificationLister, prefs preferences.Service) *Handler {
	return &Handler{notifications: notifications, preferences: prefs}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	users := r.Group("/users/:id")
	{
		users.GET("/notifications", h.ListNotifications)
		users.GET("/email-preferences", h.GetPreferences)
		users.PUT("/email-preferences", h.UpdatePreferences)
	}
}

func (h *Handler) ListNotifications(c *gin.Context) {
	userID, ok := handler.RequireSelf(c)
	if !ok {
		return
	}

	limit := defaultNotificationLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxNotificationLimit {
			handler.Fail(c, apperrors.BadRequest("limit must be between 1 and 200", err))
			return
		}
		limit = n
	}

	records, err := h.notifications.List(c.Request.Context(), userID, limit)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(records))
}

func (h *Handler) GetPreferences(c *gin.Context) {
	userID, ok := handler.RequireSelf(c)
	if !ok {
		return
	}

	prefs, err := h.preferences.Get(c.Request.Context(), userID)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(prefs))
}

func (h *Handler) UpdatePreferences(c *gin.Context) {
	userID, ok := handler.RequireSelf(c)
	if !ok {
		return
	}

	var req model.UpdateEmailPreferencesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.Fail(c, apperrors.BadRequest("invalid request body", err))
		return
	}

	prefs, err := h.preferences.Update(c.Request.Context(), userID, &req)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(prefs))
}
