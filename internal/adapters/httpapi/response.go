package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.trai.ch/tally/internal/core/domain"
)

type apiError struct {
	Status    string `json:"status"`
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeSuccess(w http.ResponseWriter, statusCode int, data any) {
	writeJSON(w, statusCode, map[string]any{
		"status": "success",
		"data":   data,
	})
}

func writeError(w http.ResponseWriter, r *http.Request, statusCode int, code, message string) {
	writeJSON(w, statusCode, apiError{
		Status:    "error",
		Code:      code,
		Message:   message,
		RequestID: requestIDFromContext(r.Context()),
	})
}

func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := mapDomainError(err)
	writeError(w, r, status, code, err.Error())
}

func mapDomainError(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrEmptySubject):
		return http.StatusBadRequest, "missing_subject"
	case errors.Is(err, domain.ErrAnonymousSubject):
		return http.StatusUnprocessableEntity, "anonymous_subject"
	case errors.Is(err, domain.ErrInvalidCacheKey):
		return http.StatusBadRequest, "invalid_key"
	case errors.Is(err, domain.ErrInvalidParams):
		return http.StatusBadRequest, "invalid_params"
	case errors.Is(err, domain.ErrChannelNotAllowed):
		return http.StatusForbidden, "channel_not_allowed"
	case errors.Is(err, domain.ErrQueueStopped):
		return http.StatusServiceUnavailable, "queue_stopped"
	case errors.Is(err, domain.ErrStateContention):
		return http.StatusConflict, "state_contention"
	case errors.Is(err, domain.ErrStoreReadFailed), errors.Is(err, domain.ErrStoreWriteFailed):
		return http.StatusServiceUnavailable, "store_unavailable"
	case errors.Is(err, domain.ErrNetwork), errors.Is(err, domain.ErrParse):
		return http.StatusBadGateway, domain.KindOf(err).String()
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
