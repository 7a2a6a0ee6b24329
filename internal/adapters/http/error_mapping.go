package httpadapter

import (
	"net/http"

	"github.com/okutan/corpusqa/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case domain.IsKind(err, domain.ErrNoEvidence):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrGenerationUnavailable):
		return http.StatusServiceUnavailable
	case domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// errorBody keeps 5xx messages generic; 4xx bodies carry the wrapped cause
// so callers can fix their request. No-evidence and generation-unavailable
// get stable codes clients can branch on.
func errorBody(err error, status int) map[string]string {
	body := map[string]string{}
	switch {
	case domain.IsKind(err, domain.ErrNoEvidence):
		body["code"] = "no_evidence"
	case domain.IsKind(err, domain.ErrGenerationUnavailable):
		body["code"] = "generation_unavailable"
	case domain.IsKind(err, domain.ErrTemporary):
		body["code"] = "temporarily_unavailable"
	}
	if status >= 500 && body["code"] == "" {
		body["error"] = "internal error"
		return body
	}
	body["error"] = err.Error()
	return body
}
