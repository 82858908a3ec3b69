// SPDX-License-Identifier: MIT

package middleware

import (
	"net/http"

	xglog "github.com/ManuGH/playbackd/internal/log"
	"github.com/google/uuid"
)

// HeaderRequestID carries the correlation id between client and daemon.
const HeaderRequestID = "X-Request-ID"

// RequestID adds a unique ID to every request, reusing one the client sent.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get(HeaderRequestID)
		if reqID == "" {
			reqID = uuid.New().String()
		}
		w.Header().Set(HeaderRequestID, reqID)
		ctx := xglog.ContextWithRequestID(r.Context(), reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
