package middleware

import (
	"net/http"
	"strings"

	"github.com/go-chi/cors"
)

// CORS allows the storefront origin (and local dev) to call the API with cookies.
func CORS(storefrontOrigin string) func(http.Handler) http.Handler {
	origins := []string{"http://localhost:3000"}
	if origin := strings.TrimRight(strings.TrimSpace(storefrontOrigin), "/"); origin != "" && origin != origins[0] {
		origins = append(origins, origin)
	}
	return cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key", "X-Requested-With"},
		AllowCredentials: true,
		MaxAge:           300,
	}).Handler
}
