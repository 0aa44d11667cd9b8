package appointment

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/medicore/clinic-api/internal/handler"
	"github.com/medicore/clinic-api/internal/model"
	"github.com/medicore/clinic-api/internal/service/appointment"
	"github.com/medicore/clinic-api/internal/service/settings"
)

type Handler struct {
	service  *appointment.Service
	settings *settings.Service
}

func NewHandler(service *appointment.Service, settings *settings.Service) *Handler {
	return &Handler{service: service, settings: settings}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	appointments := r.Group("/appointments")
	{
		appointments.POST("", h.CreateAppointment)
		appointments.GET("", h.ListAppointments)
		appointments.GET("/stats", h.GetStats)
		appointments.GET("/number/:number", h.GetAppointmentByNumber)
		appointments.GET("/:id", h.GetAppointment)
		appointments.GET("/:id/history", h.GetStatusHistory)
		appointments.PATCH("/:id/status", h.UpdateStatus)
		appointments.POST("/:id/cancel", h.CancelAppointment)
		appointments.POST("/:id/reschedule", h.RescheduleAppointment)
	}
}

func (h *Handler) CreateAppointment(c *gin.Context) {
	hospitalID, ok := handler.HospitalID(c)
	if !ok {
		return
	}
	actorID, ok := handler.ActorID(c)
	if !ok {
		return
	}

	var req model.CreateAppointmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	hospitalSettings, err := h.settings.Resolve(c.Request.Context(), hospitalID)
	if err != nil {
		handler.Error(c, err)
		return
	}

	appt, err := h.service.Create(c.Request.Context(), hospitalID, &req, hospitalSettings, actorID)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusCreated, handler.NewSuccessResponse(appt))
}

func (h *Handler) GetAppointment(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid appointment ID"))
		return
	}

	appt, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(appt))
}

func (h *Handler) GetAppointmentByNumber(c *gin.Context) {
	appt, err := h.service.GetByNumber(c.Request.Context(), c.Param("number"))
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(appt))
}

func (h *Handler) ListAppointments(c *gin.Context) {
	filters, ok := parseFilters(c)
	if !ok {
		return
	}

	appointments, total, err := h.service.List(c.Request.Context(), filters)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(model.PagedResult[*model.Appointment]{
		Total:    total,
		Page:     filters.Page,
		PageSize: filters.PageSize,
		Data:     appointments,
	}))
}

func (h *Handler) GetStats(c *gin.Context) {
	filters, ok := parseFilters(c)
	if !ok {
		return
	}

	stats, err := h.service.Stats(c.Request.Context(), filters)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(stats))
}

func (h *Handler) GetStatusHistory(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid appointment ID"))
		return
	}

	events, err := h.service.StatusHistory(c.Request.Context(), id)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(events))
}

func (h *Handler) UpdateStatus(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid appointment ID"))
		return
	}
	actorID, ok := handler.ActorID(c)
	if !ok {
		return
	}

	var req model.UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	appt, err := h.service.UpdateStatus(c.Request.Context(), id, &req, actorID)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(appt))
}

func (h *Handler) CancelAppointment(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid appointment ID"))
		return
	}
	actorID, ok := handler.ActorID(c)
	if !ok {
		return
	}

	var req model.CancelAppointmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	appt, err := h.service.Cancel(c.Request.Context(), id, &req, actorID)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(appt))
}

func (h *Handler) RescheduleAppointment(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid appointment ID"))
		return
	}
	hospitalID, ok := handler.HospitalID(c)
	if !ok {
		return
	}
	actorID, ok := handler.ActorID(c)
	if !ok {
		return
	}

	var req model.RescheduleAppointmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	hospitalSettings, err := h.settings.Resolve(c.Request.Context(), hospitalID)
	if err != nil {
		handler.Error(c, err)
		return
	}

	appt, err := h.service.Reschedule(c.Request.Context(), id, &req, hospitalSettings, actorID)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(appt))
}

func parseFilters(c *gin.Context) (*model.AppointmentFilters, bool) {
	filters := &model.AppointmentFilters{
		Status: model.AppointmentStatus(c.Query("status")),
		Type:   model.AppointmentType(c.Query("type")),
		Search: c.Query("search"),
	}

	if id := c.Query("doctor_id"); id != "" {
		doctorID, err := uuid.Parse(id)
		if err != nil {
			c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid doctor ID"))
			return nil, false
		}
		filters.DoctorID = &doctorID
	}
	if id := c.Query("patient_id"); id != "" {
		patientID, err := uuid.Parse(id)
		if err != nil {
			c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid patient ID"))
			return nil, false
		}
		filters.PatientID = &patientID
	}
	if date := c.Query("date_from"); date != "" {
		t, err := time.Parse("2006-01-02", date)
		if err != nil {
			c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid date_from"))
			return nil, false
		}
		filters.DateFrom = &t
	}
	if date := c.Query("date_to"); date != "" {
		t, err := time.Parse("2006-01-02", date)
		if err != nil {
			c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid date_to"))
			return nil, false
		}
		filters.DateTo = &t
	}
	if err := c.ShouldBindQuery(&filters.Pagination); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid pagination"))
		return nil, false
	}
	return filters, true
}
