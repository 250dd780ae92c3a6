package http

import (
	"encoding/json"
	"net/http"

	"quiz-arena-service/internal/domain"
)

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func statusFor(err error) int {
	switch domain.KindOf(err) {
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindConflict:
		return http.StatusConflict
	case domain.KindForbidden:
		return http.StatusForbidden
	case domain.KindPreconditionFailed:
		return http.StatusPreconditionFailed
	case domain.KindExpired:
		return http.StatusGone
	default:
		return http.StatusInternalServerError
	}
}

// errorBody hides internal error text from clients.
func errorBody(err error) errorPayload {
	if domain.KindOf(err) == domain.KindInternal {
		return errorPayload{Code: "internal", Message: "internal error"}
	}
	return errorPayload{Code: domain.CodeOf(err), Message: err.Error()}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), errorBody(err))
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorPayload{Code: "bad_request", Message: msg})
}
