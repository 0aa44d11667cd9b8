package identifier

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/medicore/clinic-api/internal/handler"
	"github.com/medicore/clinic-api/internal/service/sequencer"
)

type Handler struct {
	service *sequencer.Service
}

func NewHandler(service *sequencer.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	ids := r.Group("/identifiers")
	{
		ids.POST("/patient", h.GeneratePatientID)
		ids.POST("/staff", h.GenerateStaffID)
		ids.GET("/:id/validate", h.ValidateID)
	}
}

type generatePatientRequest struct {
	HospitalCode string `json:"hospital_code" binding:"required,len=2"`
	Gender       string `json:"gender"`
}

type generateStaffRequest struct {
	HospitalCode string `json:"hospital_code" binding:"required,len=2"`
	Role         string `json:"role"`
}

func (h *Handler) GeneratePatientID(c *gin.Context) {
	var req generatePatientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	id, err := h.service.NextPatientID(c.Request.Context(), req.HospitalCode, req.Gender)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusCreated, handler.NewSuccessResponse(gin.H{"identifier": id}))
}

func (h *Handler) GenerateStaffID(c *gin.Context) {
	var req generateStaffRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	id, err := h.service.NextStaffID(c.Request.Context(), req.HospitalCode, req.Role)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusCreated, handler.NewSuccessResponse(gin.H{"identifier": id}))
}

func (h *Handler) ValidateID(c *gin.Context) {
	id := c.Param("id")
	if !h.service.Validate(id) {
		c.JSON(http.StatusOK, handler.NewSuccessResponse(gin.H{"identifier": id, "valid": false}))
		return
	}

	components, err := h.service.Parse(id)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(gin.H{
		"identifier": id,
		"valid":      true,
		"components": components,
	}))
}
