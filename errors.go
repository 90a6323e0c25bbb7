// errors.go
package main

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Pipeline error taxonomy. Backend failures are non-fatal and trigger
// fallthrough to the next provider; only OCR and confirm-time persistence
// failures surface to the caller as hard errors.
var (
	ErrBackendUnavailable = errors.New("analysis backend unavailable")
	ErrMalformedResponse  = errors.New("no usable JSON object in backend response")
	ErrAllBackendsFailed  = errors.New("all analysis backends failed")
	ErrInsufficientText   = errors.New("extracted text below minimum length")
	ErrPersistenceFailure = errors.New("tracking persistence failed")
)

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Stage   string `json:"stage,omitempty"`
	Details string `json:"details,omitempty"`
}

// SuccessResponse represents a standardized success response
type SuccessResponse struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Error codes
const (
	ErrCodeValidation = "VALIDATION_ERROR"
	ErrCodeNotFound   = "NOT_FOUND"
	ErrCodeInternal   = "INTERNAL_ERROR"
	ErrCodeRateLimit  = "RATE_LIMIT_EXCEEDED"
	ErrCodeBadRequest = "BAD_REQUEST"
	ErrCodeConflict   = "CONFLICT"
)

// Helper functions for consistent error responses
func RespondWithError(c *gin.Context, statusCode int, errorCode, message, details string) {
	c.JSON(statusCode, ErrorResponse{
		Error:   message,
		Code:    errorCode,
		Details: details,
	})
}

func RespondWithSuccess(c *gin.Context, statusCode int, message string, data interface{}) {
	response := SuccessResponse{
		Message: message,
	}
	if data != nil {
		response.Data = data
	}
	c.JSON(statusCode, response)
}

// Specific error response helpers
func RespondBadRequest(c *gin.Context, message string) {
	RespondWithError(c, http.StatusBadRequest, ErrCodeBadRequest, message, "")
}

func RespondNotFound(c *gin.Context, message string) {
	RespondWithError(c, http.StatusNotFound, ErrCodeNotFound, message, "")
}

func RespondInternalError(c *gin.Context, message string) {
	RespondWithError(c, http.StatusInternalServerError, ErrCodeInternal, message, "")
}

func RespondSuccessWithData(c *gin.Context, message string, data interface{}) {
	RespondWithSuccess(c, http.StatusOK, message, data)
}
