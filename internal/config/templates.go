package config

import (
	"fmt"
	"os"
)

func Template() string {
	return defaultTemplate
}

// WriteTemplate writes the default settings file to path. Existing files are
// kept unless overwrite is set.
func WriteTemplate(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(defaultTemplate), 0o600)
}

const defaultTemplate = `host = "minechat.dvmn.org"
listen_port = 5000
send_port = 5050
datetime_format = "02.01.06 15:04"
# log_file = "minechat.log"

[retry]
max_attempts = 3
delay = "5s"

[timeouts]
connect = "10s"
handshake = "15s"
write = "15s"

[token_store]
backend = "file"
path = "minechat.token"
# backend = "redis"
# redis_addr = "127.0.0.1:6379"
# redis_key = "minechat:token"

[admin]
# addr = "127.0.0.1:7020"
# token = "change-me"
cors_origins = ["http://localhost:3000"]
`
