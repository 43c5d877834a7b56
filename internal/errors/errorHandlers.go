package errors

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// Code is the machine-readable error code returned in JSON bodies.
type Code string

const (
	CodeBadRequest         Code = "BAD_REQUEST"
	CodeUnauthorized       Code = "UNAUTHORIZED"
	CodeForbidden          Code = "FORBIDDEN"
	CodeNotFound           Code = "NOT_FOUND"
	CodePaymentRequired    Code = "PAYMENT_REQUIRED"
	CodeRateLimitExceeded  Code = "RATE_LIMIT_EXCEEDED"
	CodeModelCompatibility Code = "MODEL_COMPATIBILITY_ERROR"
	CodeChatError          Code = "CHAT_ERROR"
	CodeInternal           Code = "INTERNAL_SERVER_ERROR"
)

// CustomError carries an HTTP status, a machine code and an optional wrapped
// internal error that is logged but never returned to the client.
type CustomError struct {
	Code       Code
	Message    string
	StatusCode int
	Internal   error
	// Details is returned verbatim alongside the message when present, e.g.
	// a rate-limit reset timestamp.
	Details map[string]interface{}
}

func (e *CustomError) Error() string {
	return e.Message
}

func (e *CustomError) Unwrap() error {
	return e.Internal
}

func newError(code Code, message string, statusCode int, internal error) *CustomError {
	return &CustomError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
		Internal:   internal,
	}
}

func New400Error(message string) *CustomError {
	return newError(CodeBadRequest, message, http.StatusBadRequest, nil)
}

func New401Error() *CustomError {
	return newError(CodeUnauthorized, "Unauthorized access", http.StatusUnauthorized, nil)
}

func New403Error() *CustomError {
	return newError(CodeForbidden, "Access forbidden", http.StatusForbidden, nil)
}

func New404Error(message string) *CustomError {
	return newError(CodeNotFound, message, http.StatusNotFound, nil)
}

func New500Error(internal error) *CustomError {
	return newError(CodeInternal, "An unexpected error occurred", http.StatusInternalServerError, internal)
}

func NewPaymentRequiredError(message string) *CustomError {
	return newError(CodePaymentRequired, message, http.StatusPaymentRequired, nil)
}

func NewRateLimitError(message string, details map[string]interface{}) *CustomError {
	e := newError(CodeRateLimitExceeded, message, http.StatusTooManyRequests, nil)
	e.Details = details
	return e
}

func NewChatError(internal error) *CustomError {
	return newError(CodeChatError, "Failed to generate a response", http.StatusInternalServerError, internal)
}

func NewModelCompatibilityError(message string, internal error) *CustomError {
	return newError(CodeModelCompatibility, message, http.StatusBadRequest, internal)
}

// ClassifyGenerationError maps a provider failure onto the chat error
// taxonomy. Tool-calling and reasoning-mode rejections get the compatibility
// code so the client can suggest switching models.
func ClassifyGenerationError(err error) *CustomError {
	if err == nil {
		return nil
	}
	if custom, ok := err.(*CustomError); ok {
		return custom
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "tool") && (strings.Contains(msg, "support") || strings.Contains(msg, "unsupported") || strings.Contains(msg, "not enabled")),
		strings.Contains(msg, "function call") && strings.Contains(msg, "support"),
		strings.Contains(msg, "does not support function"):
		return NewModelCompatibilityError("The selected model does not support tool calling", err)
	case strings.Contains(msg, "reasoning") && (strings.Contains(msg, "support") || strings.Contains(msg, "invalid")),
		strings.Contains(msg, "thinking") && strings.Contains(msg, "support"):
		return NewModelCompatibilityError("The selected model does not support the requested reasoning mode", err)
	default:
		return NewChatError(err)
	}
}

// HandleError renders an error as the JSON error body with its status code.
func HandleError(c *gin.Context, err error) {
	var customErr *CustomError
	var ok bool

	if customErr, ok = err.(*CustomError); !ok {
		customErr = New500Error(err)
	}

	if customErr.Internal != nil {
		log.Error().
			Err(customErr.Internal).
			Str("code", string(customErr.Code)).
			Str("url", c.Request.URL.String()).
			Msg("Request failed")
	}

	body := gin.H{
		"error":   customErr.Code,
		"message": customErr.Message,
	}
	for k, v := range customErr.Details {
		body[k] = v
	}
	c.JSON(customErr.StatusCode, body)
}

func LogAndReturn500(internal error) *CustomError {
	log.Error().Err(internal).Msg("Internal Server Error")
	return New500Error(internal)
}
