package config

import (
	"github.com/knadh/koanf/providers/confmap"
)

const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"

	EnvPrefix = "REMINDD_"
)

func DefaultConfig() map[string]any {
	return map[string]any{
		"owner_id": "",
		"timezone": "Local",
		"database": map[string]any{
			"path": "~/.remindd/remindd.db",
		},
		"remote": map[string]any{
			"driver":                DriverMemory,
			"dsn":                   "",
			"poll_interval_seconds": 5,
			"retry_seconds":         5,
		},
		"scheduler": map[string]any{
			"horizon_days":           60,
			"buffer":                 64,
			"sweep_interval_seconds": 300,
		},
		"http": map[string]any{
			"addr":         "127.0.0.1:8080",
			"cors_origins": []string{"http://localhost:3000"},
		},
		"notify": map[string]any{
			"desktop": false,
			"sendgrid": map[string]any{
				"api_key":    "",
				"from_email": "",
				"from_name":  "remindd",
				"to_email":   "",
				"to_name":    "",
			},
		},
		"log": map[string]any{
			"level":       "info",
			"development": false,
		},
	}
}

func defaultProvider() *confmap.Confmap {
	return confmap.Provider(DefaultConfig(), ".")
}

func DefaultPath() string {
	return "~/.remindd/config.yaml"
}
