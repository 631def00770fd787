package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fitpulse/service-billing/internal/platform/domain"
)

// Envelope is the JSON body every endpoint returns.
type Envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Meta    interface{} `json:"meta,omitempty"`
}

// CursorMeta describes cursor pagination.
type CursorMeta struct {
	Limit      int    `json:"limit"`
	NextCursor string `json:"next_cursor,omitempty"`
	HasMore    bool   `json:"has_more"`
}

// Success writes a 200 response.
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Envelope{Success: true, Data: data})
}

// Created writes a 201 response.
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Envelope{Success: true, Data: data})
}

// CursorPage writes a 200 response with cursor pagination metadata.
func CursorPage(c *gin.Context, data interface{}, nextCursor string, limit int) {
	c.JSON(http.StatusOK, Envelope{
		Success: true,
		Data:    data,
		Meta:    CursorMeta{Limit: limit, NextCursor: nextCursor, HasMore: nextCursor != ""},
	})
}

// BadRequest writes a 400 response.
func BadRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, Envelope{Success: false, Error: msg})
}

// Unauthorized writes a 401 response.
func Unauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, Envelope{Success: false, Error: msg})
}

// Forbidden writes a 403 response.
func Forbidden(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusForbidden, Envelope{Success: false, Error: msg})
}

// Error maps a domain error to its HTTP status and writes it.
func Error(c *gin.Context, err error) {
	c.AbortWithStatusJSON(StatusFor(err), Envelope{Success: false, Error: err.Error()})
}

// StatusFor returns the HTTP status for an error kind.
func StatusFor(err error) int {
	switch {
	case domain.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case domain.Is(err, domain.ErrConflict):
		return http.StatusConflict
	case domain.Is(err, domain.ErrInvalidState):
		return http.StatusUnprocessableEntity
	case domain.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case domain.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case domain.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case domain.Is(err, domain.ErrDataUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
