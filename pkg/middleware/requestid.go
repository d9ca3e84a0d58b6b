package middleware

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"

	"github.com/Anubhav12123/AI-Recommender-System/pkg/logger"
)

const requestIDHeader = "X-Request-ID"

// RequestID assigns each request a random id (unless the client supplied
// one), stores it in the request context for logging, and echoes it in the
// response header.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = newRequestID()
		}
		ctx := logger.WithRequestID(r.Context(), id)
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func newRequestID() string {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "unknown"
	}
	return hex.EncodeToString(buf[:])
}
