// Package env reads process settings that are needed before config.Load runs.
package env

import (
	"os"
	"strings"
)

const (
	LogFormat = "GPO_LOG_FORMAT"
	WorkerID  = "GPO_WORKER_ID"
)

// Get returns the trimmed value of key, or fallback when it is unset or blank.
func Get(key, fallback string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return fallback
}
