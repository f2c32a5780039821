package config

import (
	"fmt"
	"os"
)

// WriteTemplate writes a starter config for new deployments.
func WriteTemplate(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(defaultTemplate), 0o600)
}

const defaultTemplate = `name = "pairctl"
addr = ":8080"
# dev fabricates the transport locally, prod dials the real network
mode = "prod"

[store]
backend = "file"
root = "./sessions"
# redis_addr = "localhost:6379"
# redis_password = ""
# redis_db = 0

[backup]
# leave endpoint empty to disable off-box credential backups
endpoint = ""
access_key = ""
secret_key = ""
bucket = "pairctl-backups"
use_ssl = true

[bot]
name = "pairctl"
prefix = "!"

[session]
handshake_timeout_ms = 30000
max_attempts = 5
artifact_wait_ms = 45000
backoff_initial_ms = 250
backoff_multiplier = 2.0
backoff_max_ms = 5000
backoff_jitter = true
`
