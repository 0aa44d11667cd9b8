package handler

import (
	stderrors "errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/medicore/clinic-api/pkg/errors"
)

// Actor and hospital identity arrive from the upstream gateway as headers;
// authentication itself happens outside this service.
const (
	HeaderHospitalID = "X-Hospital-ID"
	HeaderActorID    = "X-Actor-ID"
)

type Response struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func NewSuccessResponse(data interface{}) *Response {
	return &Response{
		Status: "success",
		Data:   data,
	}
}

func NewErrorResponse(message string) *Response {
	return &Response{
		Status:  "error",
		Message: message,
	}
}

// Error renders a service error with its mapped HTTP status. Unknown errors
// are hidden behind a 500 and left on the context for the error middleware
// to log.
func Error(c *gin.Context, err error) {
	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		c.JSON(appErr.StatusCode(), NewErrorResponse(appErr.Message))
		return
	}
	_ = c.Error(err)
	c.JSON(http.StatusInternalServerError, NewErrorResponse("internal server error"))
}

// HospitalID extracts the acting hospital from the request headers.
func HospitalID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.GetHeader(HeaderHospitalID))
	if err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse("missing or invalid X-Hospital-ID header"))
		return uuid.Nil, false
	}
	return id, true
}

// ActorID extracts the acting user from the request headers.
func ActorID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.GetHeader(HeaderActorID))
	if err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse("missing or invalid X-Actor-ID header"))
		return uuid.Nil, false
	}
	return id, true
}
