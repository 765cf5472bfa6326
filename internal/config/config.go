// Package config reads service configuration from the environment.
package config

import (
	"os"
	"strconv"
)

// Config holds settings shared by the worker, API, and CLI commands.
// Every field has a default so a bare environment still produces a
// usable local configuration.
type Config struct {
	// DatabaseURL is the Postgres connection string for the schedule
	// and result stores.
	DatabaseURL string

	// ClickHouse settings for the simulated-itinerary archive.
	ClickHouseHost     string
	ClickHousePort     int
	ClickHouseDatabase string
	ClickHouseUser     string
	ClickHousePassword string

	// BrokerURL is the NATS server used as the job queue.
	BrokerURL string

	// FlirtBase is the public base URL used in notification e-mails.
	FlirtBase string

	// SMTP settings for completion notifications.
	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string

	// APIPort is the listen port for the simulation submission API.
	APIPort int
}

// FromEnv builds a Config from environment variables, falling back to
// local-development defaults.
func FromEnv() Config {
	return Config{
		DatabaseURL:        envStr("DATABASE_URL", "postgres://flowsim:@localhost:5432/flowsim?sslmode=disable"),
		ClickHouseHost:     envStr("CLICKHOUSE_HOST", "localhost"),
		ClickHousePort:     envInt("CLICKHOUSE_PORT", 9000),
		ClickHouseDatabase: envStr("CLICKHOUSE_DB", "flowsim"),
		ClickHouseUser:     envStr("CLICKHOUSE_USER", "default"),
		ClickHousePassword: envStr("CLICKHOUSE_PASSWORD", ""),
		BrokerURL:          envStr("BROKER_URL", "nats://localhost:4222"),
		FlirtBase:          envStr("FLIRT_BASE", "https://flirt.eha.io"),
		SMTPHost:           envStr("SMTP_HOST", "email-smtp.us-east-1.amazonaws.com"),
		SMTPPort:           envInt("SMTP_PORT", 465),
		SMTPUser:           envStr("SMTP_USER", ""),
		SMTPPassword:       envStr("SMTP_PASSWORD", ""),
		APIPort:            envInt("SIM_PORT", 45000),
	}
}

func envStr(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
