package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/ledgerbook/pkg/apperr"
)

type errorPayload struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

// fieldError is a request-shape problem found before a service is called.
type fieldError struct {
	err   *apperr.Error
	field string
}

func (e *fieldError) Error() string { return e.err.Error() }
func (e *fieldError) Unwrap() error { return e.err }

var (
	ErrInvalidRequest      = apperr.Validation("invalid_request", "invalid request")
	ErrMissingOrganization = apperr.Validation("invalid_organization", "X-Org-ID header is required")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return ErrInvalidRequest
}

func newValidationError(field, code, message string) error {
	return &fieldError{err: apperr.Validation(code, message), field: field}
}

func mapError(err error) (int, errorPayload) {
	kind := apperr.KindOf(err)
	payload := errorPayload{
		Type:    string(kind),
		Code:    apperr.CodeOf(err),
		Message: apperr.MessageOf(err),
	}
	var fe *fieldError
	if errors.As(err, &fe) {
		payload.Field = fe.field
	}

	switch kind {
	case apperr.KindValidation:
		return http.StatusBadRequest, payload
	case apperr.KindPreconditionFailed:
		return http.StatusPreconditionFailed, payload
	case apperr.KindConflict:
		return http.StatusConflict, payload
	case apperr.KindNotFound:
		return http.StatusNotFound, payload
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    string(apperr.KindInternal),
			Code:    string(apperr.KindInternal),
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog feeds error_type and error_code into the request log.
func classifyErrorForLog(err error) (string, string) {
	return string(apperr.KindOf(err)), apperr.CodeOf(err)
}
