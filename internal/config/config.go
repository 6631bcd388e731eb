// Package config provides configuration management for the pixel output server.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all configuration values for the server.
type Config struct {
	// Server configuration
	Port string
	Env  string

	// Logging
	LogLevel string

	// Device configuration
	DevicesFile string
	Crossfade   time.Duration // length of the cross-fade between effects

	// Preview stream
	PreviewEnabled bool
	CORSOrigin     string

	// MQTT telemetry, disabled when MQTTBroker is empty
	MQTTBroker      string
	MQTTClientID    string
	MQTTTopicPrefix string
	MQTTUsername    string
	MQTTPassword    string
}

// Load loads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		// Server
		Port: getEnv("PORT", "4000"),
		Env:  getEnv("ENV", "development"),

		LogLevel: getEnv("LOG_LEVEL", "info"),

		// Devices
		DevicesFile: getEnv("DEVICES_FILE", "./devices.toml"),
		Crossfade:   getEnvSeconds("CROSSFADE_SECONDS", time.Second),

		// Preview
		PreviewEnabled: getEnvBool("PREVIEW_ENABLED", true),
		CORSOrigin:     getEnv("CORS_ORIGIN", "http://localhost:3000"),

		// MQTT
		MQTTBroker:      getEnv("MQTT_BROKER", ""),
		MQTTClientID:    getEnv("MQTT_CLIENT_ID", "lacylights-pixels"),
		MQTTTopicPrefix: getEnv("MQTT_TOPIC_PREFIX", "lacylights/devices"),
		MQTTUsername:    getEnv("MQTT_USERNAME", ""),
		MQTTPassword:    getEnv("MQTT_PASSWORD", ""),
	}
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// TelemetryEnabled reports whether an MQTT broker is configured.
func (c *Config) TelemetryEnabled() bool {
	return c.MQTTBroker != ""
}

// getEnv returns the value of an environment variable or a default value.
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvBool returns the boolean value of an environment variable or a default value.
func getEnvBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

// getEnvSeconds reads a non-negative fractional number of seconds.
func getEnvSeconds(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if secs, err := strconv.ParseFloat(value, 64); err == nil && secs >= 0 {
			return time.Duration(secs * float64(time.Second))
		}
	}
	return defaultValue
}
