package schedule

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/medicore/clinic-api/internal/handler"
	"github.com/medicore/clinic-api/internal/model"
	"github.com/medicore/clinic-api/internal/service/schedule"
)

type Handler struct {
	service *schedule.Service
}

func NewHandler(service *schedule.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	schedules := r.Group("/schedules")
	{
		schedules.POST("/rules", h.CreateRule)
		schedules.GET("/rules", h.ListRules)
		schedules.PATCH("/rules/:id", h.UpdateRule)
		schedules.DELETE("/rules/:id", h.DeleteRule)
		schedules.POST("/leaves", h.CreateLeave)
		schedules.GET("/leaves", h.ListLeaves)
		schedules.DELETE("/leaves/:id", h.DeleteLeave)
		schedules.GET("/doctors/:id/slots", h.GetAvailableSlots)
	}
}

func (h *Handler) CreateRule(c *gin.Context) {
	var req model.CreateScheduleRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	rule, err := h.service.CreateRule(c.Request.Context(), &req)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusCreated, handler.NewSuccessResponse(rule))
}

func (h *Handler) ListRules(c *gin.Context) {
	doctorID, err := uuid.Parse(c.Query("doctor_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid doctor ID"))
		return
	}
	activeOnly := c.Query("active_only") == "true"

	rules, err := h.service.ListRules(c.Request.Context(), doctorID, activeOnly)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(rules))
}

func (h *Handler) UpdateRule(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid rule ID"))
		return
	}

	var req model.UpdateScheduleRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	rule, err := h.service.UpdateRule(c.Request.Context(), id, &req)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(rule))
}

func (h *Handler) DeleteRule(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid rule ID"))
		return
	}

	if err := h.service.DeleteRule(c.Request.Context(), id); err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(nil))
}

func (h *Handler) CreateLeave(c *gin.Context) {
	actorID, ok := handler.ActorID(c)
	if !ok {
		return
	}

	var req model.CreateLeaveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	leave, err := h.service.CreateLeave(c.Request.Context(), &req, actorID)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusCreated, handler.NewSuccessResponse(leave))
}

func (h *Handler) ListLeaves(c *gin.Context) {
	doctorID, err := uuid.Parse(c.Query("doctor_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid doctor ID"))
		return
	}

	leaves, err := h.service.ListLeaves(c.Request.Context(), doctorID)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(leaves))
}

func (h *Handler) DeleteLeave(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid leave ID"))
		return
	}

	if err := h.service.DeleteLeave(c.Request.Context(), id); err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(nil))
}

func (h *Handler) GetAvailableSlots(c *gin.Context) {
	doctorID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid doctor ID"))
		return
	}
	date, err := time.Parse("2006-01-02", c.Query("date"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("date must be YYYY-MM-DD"))
		return
	}

	slots, err := h.service.AvailableSlots(c.Request.Context(), doctorID, date)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(gin.H{
		"doctor_id": doctorID,
		"date":      date.Format("2006-01-02"),
		"slots":     slots,
	}))
}
