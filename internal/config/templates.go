package config

import (
	"fmt"
	"strings"
)

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "root":
		return rootTemplate, nil
	case "frame":
		return frameTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	return writeFile(path, []byte(template), overwrite)
}

const rootTemplate = `origin = "https://stage.example"
listen = "127.0.0.1:9300"
admin_listen = "127.0.0.1:9400"
cors_origins = ["http://localhost:3000"]
heartbeat = "30s"

[[documents]]
id = "stage"
behaviors = ["#pulse", "#reset"]

[[tickers]]
name = "pulse"
seconds = 2.0
pattern = [true, false, true]
`

const frameTemplate = `origin = "https://frame.example"
parent = "127.0.0.1:9300"
admin_listen = "127.0.0.1:9401"
allowed_origins = ["https://stage.example"]
parent_max_connect_attempts = 0

[[documents]]
id = "banner"
behaviors = ["#pulse"]
`
