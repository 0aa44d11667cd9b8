package waitlist

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/medicore/clinic-api/internal/handler"
	"github.com/medicore/clinic-api/internal/model"
	"github.com/medicore/clinic-api/internal/service/waitlist"
)

type Handler struct {
	service *waitlist.Service
}

func NewHandler(service *waitlist.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	wl := r.Group("/waitlist")
	{
		wl.POST("", h.AddEntry)
		wl.GET("", h.ListEntries)
		wl.GET("/:id", h.GetEntry)
		wl.POST("/:id/cancel", h.CancelEntry)
		wl.POST("/:id/promote", h.PromoteEntry)
	}
}

func (h *Handler) AddEntry(c *gin.Context) {
	hospitalID, ok := handler.HospitalID(c)
	if !ok {
		return
	}
	actorID, ok := handler.ActorID(c)
	if !ok {
		return
	}

	var req model.AddWaitlistRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	entry, err := h.service.Add(c.Request.Context(), hospitalID, &req, actorID)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusCreated, handler.NewSuccessResponse(entry))
}

func (h *Handler) GetEntry(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid waitlist entry ID"))
		return
	}

	entry, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(entry))
}

func (h *Handler) ListEntries(c *gin.Context) {
	filters := &model.WaitlistFilters{
		Status: model.WaitlistStatus(c.Query("status")),
	}
	if id := c.Query("doctor_id"); id != "" {
		doctorID, err := uuid.Parse(id)
		if err != nil {
			c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid doctor ID"))
			return
		}
		filters.DoctorID = &doctorID
	}
	if id := c.Query("patient_id"); id != "" {
		patientID, err := uuid.Parse(id)
		if err != nil {
			c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid patient ID"))
			return
		}
		filters.PatientID = &patientID
	}
	if d := c.Query("date"); d != "" {
		date, err := time.Parse("2006-01-02", d)
		if err != nil {
			c.JSON(http.StatusBadRequest, handler.NewErrorResponse("date must be YYYY-MM-DD"))
			return
		}
		filters.Date = &date
	}
	if err := c.ShouldBindQuery(&filters.Pagination); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid pagination"))
		return
	}

	entries, total, err := h.service.List(c.Request.Context(), filters)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(model.PagedResult[*model.WaitlistEntry]{
		Total:    total,
		Page:     filters.Page,
		PageSize: filters.PageSize,
		Data:     entries,
	}))
}

func (h *Handler) CancelEntry(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid waitlist entry ID"))
		return
	}

	entry, err := h.service.Cancel(c.Request.Context(), id)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(entry))
}

func (h *Handler) PromoteEntry(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid waitlist entry ID"))
		return
	}
	actorID, ok := handler.ActorID(c)
	if !ok {
		return
	}

	result, err := h.service.Promote(c.Request.Context(), id, actorID)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusCreated, handler.NewSuccessResponse(result))
}
