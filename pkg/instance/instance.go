package instance

import (
	"os"
	"strings"
)

// ID names the running process for logs. Heroku sets DYNO, containers set
// HOSTNAME; STOREFRONT_INSTANCE_ID overrides both.
func ID() string {
	for _, key := range []string{"STOREFRONT_INSTANCE_ID", "DYNO", "HOSTNAME"} {
		if id := strings.TrimSpace(os.Getenv(key)); id != "" {
			return id
		}
	}
	return "local"
}
