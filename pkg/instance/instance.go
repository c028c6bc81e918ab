package instance

import (
	"os"

	"github.com/angelmondragon/gpo-backend/pkg/env"
)

// GetID returns the worker instance identifier. GPO_WORKER_ID wins, then the
// hostname, then a fixed fallback.
func GetID() string {
	if id := env.Get(env.WorkerID, ""); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "worker-0"
}
