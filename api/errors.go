/*
errors.go - Domain error to HTTP status translation

PURPOSE:
  The association service raises typed errors from generic/errors.go and
  never formats responses. This file is the one place that decides what a
  client sees for each category.

MAPPING:
  ValidationError      400  field + reason in details
  NotFoundError        404
  ConflictError        409
  BusinessRuleError    422  rule id + remaining balance when set
  InfrastructureError  500  generic message, cause logged only

  Anything unclassified is treated as infrastructure.

SEE ALSO:
  - generic/errors.go: Error taxonomy
  - metrics.go: domain_errors_total by kind
*/
package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/warp/dues-engine/generic"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`

	// Set for validation errors.
	Field string `json:"field,omitempty"`

	// Set for business rule violations.
	Rule      string  `json:"rule,omitempty"`
	Remaining *string `json:"remaining,omitempty"`
}

// statusFor picks the HTTP status for an error returned by the service.
func statusFor(err error) int {
	switch {
	case errors.Is(err, generic.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, generic.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, generic.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, generic.ErrBusinessRule):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// writeDomainError writes err with the status its category maps to.
func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, message string, err error) {
	h.metrics.observeError(err)
	status := statusFor(err)

	if status == http.StatusInternalServerError {
		h.logger.Error(message,
			"error", err,
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()),
		)
		writeError(w, status, message, nil)
		return
	}

	resp := ErrorResponse{Error: message, Details: err.Error()}

	var verr *generic.ValidationError
	if errors.As(err, &verr) {
		resp.Field = verr.Field
	}
	var rule *generic.BusinessRuleError
	if errors.As(err, &rule) {
		resp.Rule = rule.Rule
		resp.Details = rule.Message
		if rule.Remaining != nil {
			resp.Remaining = strPtr(rule.Remaining.String())
		}
	}
	writeJSON(w, status, resp)
}

// badRequest is for transport-level problems: unreadable JSON, bad query values.
func (h *Handler) badRequest(w http.ResponseWriter, message string, err error) {
	h.metrics.observeError(generic.ErrValidation)
	writeError(w, http.StatusBadRequest, message, err)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

func strPtr(s string) *string {
	return &s
}
