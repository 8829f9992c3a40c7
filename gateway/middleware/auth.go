package middleware

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"p2pexchange/gateway/auth"
)

// Authenticate verifies the request signatures and stores the recovered
// principal on the request context. The body is buffered and restored so the
// handler can decode it.
func Authenticate(verifier *auth.Verifier, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var body []byte
			if r.Body != nil {
				data, err := io.ReadAll(io.LimitReader(r.Body, int64(auth.MaxBodyForSignature)+1))
				_ = r.Body.Close()
				if err != nil {
					writeError(w, http.StatusBadRequest, "InvalidRequest", "failed to read request body")
					return
				}
				body = data
			}
			principal, err := verifier.Authenticate(r, body)
			if err != nil {
				status := http.StatusUnauthorized
				if errors.Is(err, auth.ErrBodyTooLarge) {
					status = http.StatusRequestEntityTooLarge
				}
				logger.Debug("request authentication failed", "request_id", RequestID(r.Context()), "error", err)
				writeError(w, status, "Unauthenticated", err.Error())
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))
			r.ContentLength = int64(len(body))
			next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), principal)))
		})
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"code": code, "error": message})
}
