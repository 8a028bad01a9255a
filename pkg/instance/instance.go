package instance

import "os"

const fallbackID = "storefront-0"

// GetID identifies this process in logs. WORKER_ID wins, then the hostname.
func GetID() string {
	if id := os.Getenv("WORKER_ID"); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return fallbackID
}
