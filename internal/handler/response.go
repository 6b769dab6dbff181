package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/careops/clinic-api/pkg/errors"
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

// HTTPStatus maps application error codes onto HTTP status codes.
func HTTPStatus(err error) int {
	switch apperrors.CodeOf(err) {
	case apperrors.ErrNotFound:
		return http.StatusNotFound
	case apperrors.ErrBadRequest, apperrors.ErrUnknownRole:
		return http.StatusBadRequest
	case apperrors.ErrUnauthorized:
		return http.StatusUnauthorized
	case apperrors.ErrForbidden:
		return http.StatusForbidden
	case apperrors.ErrIllegalTransition, apperrors.ErrConflict:
		return http.StatusConflict
	case apperrors.ErrIncompleteRecord:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// Error writes the standard error envelope for a service failure.
func Error(c *gin.Context, err error) {
	c.JSON(HTTPStatus(err), NewErrorResponse(err.Error()))
}
