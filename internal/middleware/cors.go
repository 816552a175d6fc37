package middleware

import (
	"fmt"
	"net/http"
	"strings"
)

// CORSConfig holds CORS middleware configuration
type CORSConfig struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	AllowCredentials bool
	MaxAge           int
}

// CollectCORS is the policy for the public collect endpoint: any origin may
// post events, since the capture script runs on tenants' own domains.
func CollectCORS() func(http.Handler) http.Handler {
	return CORS(CORSConfig{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
	})
}

// CORS returns a middleware that handles Cross-Origin Resource Sharing (CORS)
func CORS(config CORSConfig) func(http.Handler) http.Handler {
	allowedMethods := strings.Join(config.AllowedMethods, ", ")
	allowedHeaders := strings.Join(config.AllowedHeaders, ", ")
	maxAge := "300"
	if config.MaxAge > 0 {
		maxAge = fmt.Sprintf("%d", config.MaxAge)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			for _, allowed := range config.AllowedOrigins {
				matched := false

				switch {
				case allowed == "*":
					// Open endpoint: reflect nothing, allow everyone.
					w.Header().Set("Access-Control-Allow-Origin", "*")
					matched = true
				case strings.HasPrefix(allowed, "*."):
					// Wildcard match: "*.example.com" matches "app.example.com"
					suffix := strings.TrimPrefix(allowed, "*")
					if origin != "" && strings.HasSuffix(origin, suffix) {
						w.Header().Set("Access-Control-Allow-Origin", origin)
						matched = true
					}
				case origin != "" && origin == allowed:
					w.Header().Set("Access-Control-Allow-Origin", origin)
					matched = true
				}

				if matched {
					break
				}
			}

			w.Header().Set("Access-Control-Allow-Methods", allowedMethods)
			w.Header().Set("Access-Control-Allow-Headers", allowedHeaders)

			if config.AllowCredentials {
				w.Header().Set("Access-Control-Allow-Credentials", "true")
			}

			w.Header().Set("Access-Control-Max-Age", maxAge)

			// Handle preflight OPTIONS request
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
