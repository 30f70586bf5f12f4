package application

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/hiring-api/internal/handler"
	"github.com/jwalitptl/hiring-api/internal/model"
	"github.com/jwalitptl/hiring-api/internal/service/application"
	apperrors "github.com/jwalitptl/hiring-api/pkg/errors"
)

type Handler struct {
	service application.Service
}

func NewHandler(service application.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	applications := r.Group("/applications")
	{
		applications.POST("", h.Submit)
		applications.GET("/:id", h.Get)
		applications.GET("/:id/history", h.History)
		applications.PATCH("/:id/status", h.Transition)
		applications.POST("/:id/interview", h.ScheduleInterview)
	}
	r.GET("/users/:id/applications", h.ListByUser)
}

func (h *Handler) Submit(c *gin.Context) {
	actor, ok := handler.ActorID(c)
	if !ok {
		handler.Fail(c, apperrors.Unauthorized(nil))
		return
	}

	var req model.SubmitApplicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.Fail(c, apperrors.BadRequest("invalid request body", err))
		return
	}

	app, err := h.service.Submit(c.Request.Context(), actor, req.JobID)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, handler.NewSuccessResponse(app))
}

func (h *Handler) Get(c *gin.Context) {
	id, err := handler.PathUUID(c, "id")
	if err != nil {
		handler.Fail(c, err)
		return
	}

	app, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(app))
}

func (h *Handler) History(c *gin.Context) {
	id, err := handler.PathUUID(c, "id")
	if err != nil {
		handler.Fail(c, err)
		return
	}

	entries, err := h.service.History(c.Request.Context(), id)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(entries))
}

func (h *Handler) Transition(c *gin.Context) {
	id, err := handler.PathUUID(c, "id")
	if err != nil {
		handler.Fail(c, err)
		return
	}

	var req model.TransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.Fail(c, apperrors.BadRequest("invalid request body", err))
		return
	}
	status, err := model.ParseStatus(req.Status)
	if err != nil {
		handler.Fail(c, err)
		return
	}

	app, err := h.service.Transition(c.Request.Context(), id, status, actorPtr(c), req.Note)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(app))
}

func (h *Handler) ScheduleInterview(c *gin.Context) {
	id, err := handler.PathUUID(c, "id")
	if err != nil {
		handler.Fail(c, err)
		return
	}

	var req model.Interview
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.Fail(c, apperrors.BadRequest("invalid request body", err))
		return
	}
	if req.ScheduledAt.IsZero() {
		handler.Fail(c, apperrors.BadRequest("scheduled_at is required", nil))
		return
	}

	app, err := h.service.ScheduleInterview(c.Request.Context(), id, req, actorPtr(c))
	if err != nil {
		handler.Fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, handler.NewSuccessResponse(app))
}

func (h *Handler) ListByUser(c *gin.Context) {
	userID, ok := handler.RequireSelf(c)
	if !ok {
		return
	}

	apps, err := h.service.ListByUser(c.Request.Context(), userID)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(apps))
}

func actorPtr(c *gin.Context) *uuid.UUID {
	if id, ok := handler.ActorID(c); ok {
		return &id
	}
	return nil
}
