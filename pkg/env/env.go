package env

import (
	"os"
	"strings"
)

// Get returns the trimmed value of key, or fallback when it is unset or blank.
func Get(key, fallback string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return fallback
}

// ListenAddr builds a ":port" address from the platform PORT variable, falling
// back to the configured port.
func ListenAddr(configured string) string {
	return ":" + strings.TrimPrefix(Get("PORT", configured), ":")
}
