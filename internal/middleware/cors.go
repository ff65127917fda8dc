package middleware

import (
	"net/http"
	"strings"
)

// CORS allows the configured origins. origin is "*" or a comma-separated
// list; a matching request origin is echoed back.
func CORS(origin string) func(http.Handler) http.Handler {
	allowedOrigins := splitOrigins(origin)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqOrigin := r.Header.Get("Origin")
			allowed := allowedOrigins[0]

			if reqOrigin != "" && isAllowed(reqOrigin, allowedOrigins) {
				allowed = reqOrigin
				w.Header().Add("Vary", "Origin")
			}

			w.Header().Set("Access-Control-Allow-Origin", allowed)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func splitOrigins(origin string) []string {
	var out []string
	for _, o := range strings.Split(origin, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}

func isAllowed(reqOrigin string, configured []string) bool {
	for _, c := range configured {
		if c == "*" || c == reqOrigin {
			return true
		}
	}
	return false
}
