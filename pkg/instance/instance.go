package instance

import (
	"os"

	"github.com/angelmondragon/orderplanner/pkg/env"
)

// GetID identifies this process in logs and lock values. Explicit ids win
// over the platform dyno name and the hostname.
func GetID() string {
	if id := env.First("", "ORDERPLANNER_INSTANCE_ID", "DYNO"); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "local"
}
