package routes

import (
	"encoding/json"
	"errors"
	"net/http"

	exchangeerrors "p2pexchange/core/errors"
	"p2pexchange/gateway/auth"
	"p2pexchange/gateway/middleware"
)

type errorBody struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps exchange errors onto HTTP status codes. Unknown errors are
// internal.
func statusFor(err error) (int, string) {
	var reqErr *requestError
	if errors.As(err, &reqErr) {
		return http.StatusBadRequest, "InvalidRequest"
	}
	code := exchangeerrors.Code(err)
	if errors.Is(err, exchangeerrors.ErrNotFound) {
		return http.StatusNotFound, code
	}
	switch exchangeerrors.ClassOf(err) {
	case exchangeerrors.ClassAuthorization:
		return http.StatusForbidden, code
	case exchangeerrors.ClassState:
		return http.StatusConflict, code
	case exchangeerrors.ClassValidation:
		return http.StatusBadRequest, code
	case exchangeerrors.ClassIntegrity:
		return http.StatusUnprocessableEntity, code
	case exchangeerrors.ClassThrottle:
		return http.StatusTooManyRequests, code
	default:
		return http.StatusInternalServerError, code
	}
}

func (h *handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed",
			"request_id", middleware.RequestID(r.Context()),
			"route", r.Method+" "+r.URL.Path,
			"error", err,
		)
		message = http.StatusText(status)
	}
	writeJSON(w, status, errorBody{Code: code, Error: message})
}

// principal returns the authenticated caller. Routes reaching it are always
// behind the authentication middleware.
func principal(r *http.Request) *auth.Principal {
	p, ok := auth.FromContext(r.Context())
	if !ok {
		return &auth.Principal{}
	}
	return p
}
