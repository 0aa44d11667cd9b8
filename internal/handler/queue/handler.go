package queue

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/medicore/clinic-api/internal/handler"
	"github.com/medicore/clinic-api/internal/model"
	"github.com/medicore/clinic-api/internal/service/queue"
	"github.com/medicore/clinic-api/internal/service/settings"
)

type Handler struct {
	service  *queue.Service
	settings *settings.Service
}

func NewHandler(service *queue.Service, settings *settings.Service) *Handler {
	return &Handler{service: service, settings: settings}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	q := r.Group("/queue")
	{
		q.POST("/walk-ins", h.RegisterWalkIn)
		q.GET("", h.GetQueue)
		q.POST("/:id/call", h.CallPatient)
		q.POST("/:id/start", h.StartConsultation)
		q.POST("/:id/complete", h.CompleteConsultation)
		q.POST("/:id/skip", h.SkipPatient)
		q.POST("/appointments/:id/assign-doctor", h.AssignDoctor)
	}
}

func (h *Handler) RegisterWalkIn(c *gin.Context) {
	hospitalID, ok := handler.HospitalID(c)
	if !ok {
		return
	}
	actorID, ok := handler.ActorID(c)
	if !ok {
		return
	}

	var req model.RegisterWalkInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	hospitalSettings, err := h.settings.Resolve(c.Request.Context(), hospitalID)
	if err != nil {
		handler.Error(c, err)
		return
	}

	result, err := h.service.RegisterWalkIn(c.Request.Context(), hospitalID, &req, hospitalSettings, actorID)
	if err != nil {
		handler.Error(c, err)
		return
	}
	status := http.StatusCreated
	if result.Waitlisted {
		// The walk-in was accepted but parked on the waitlist.
		status = http.StatusAccepted
	}
	c.JSON(status, handler.NewSuccessResponse(result))
}

func (h *Handler) GetQueue(c *gin.Context) {
	doctorID, err := uuid.Parse(c.Query("doctor_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid doctor ID"))
		return
	}

	date := time.Now()
	if d := c.Query("date"); d != "" {
		date, err = time.Parse("2006-01-02", d)
		if err != nil {
			c.JSON(http.StatusBadRequest, handler.NewErrorResponse("date must be YYYY-MM-DD"))
			return
		}
	}
	date = time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())

	summary, err := h.service.Summary(c.Request.Context(), doctorID, date)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(summary))
}

func (h *Handler) CallPatient(c *gin.Context) {
	h.transition(c, h.service.Call)
}

func (h *Handler) StartConsultation(c *gin.Context) {
	h.transition(c, h.service.StartConsultation)
}

func (h *Handler) CompleteConsultation(c *gin.Context) {
	h.transition(c, h.service.Complete)
}

func (h *Handler) SkipPatient(c *gin.Context) {
	h.transition(c, h.service.Skip)
}

func (h *Handler) transition(c *gin.Context, fn func(ctx context.Context, queueID, changedBy uuid.UUID) (*model.QueueEntry, error)) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid queue entry ID"))
		return
	}
	actorID, ok := handler.ActorID(c)
	if !ok {
		return
	}

	entry, err := fn(c.Request.Context(), id, actorID)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(entry))
}

func (h *Handler) AssignDoctor(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid appointment ID"))
		return
	}
	actorID, ok := handler.ActorID(c)
	if !ok {
		return
	}

	var req model.AssignDoctorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	appt, entry, err := h.service.AssignDoctor(c.Request.Context(), id, &req, actorID)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(gin.H{
		"appointment": appt,
		"queue_entry": entry,
	}))
}
