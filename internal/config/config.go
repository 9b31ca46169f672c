// Package config provides configuration loading for the FFIEC client.
package config

import (
	"os"
	"strconv"
)

// ClientConfig holds connection and throttling configuration.
type ClientConfig struct {
	// Endpoints
	SOAPEndpoint string
	RESTBaseURL  string

	// Throttling (requests per hour, per protocol)
	SOAPRatePerHour int
	RESTRatePerHour int
	RateBurst       int

	// Concurrency and timeouts
	MaxConcurrent  int
	TimeoutSecs    int
	MaxRetries     int

	// Proxy URL, empty for direct connections
	Proxy string

	// UseLegacyErrors collapses typed errors into plain generic errors
	UseLegacyErrors bool
}

// Load loads configuration from environment.
func Load() *ClientConfig {
	return &ClientConfig{
		SOAPEndpoint:    getEnv("FFIEC_SOAP_ENDPOINT", "https://cdr.ffiec.gov/Public/PWS/WebServices/RetrievalService.asmx"),
		RESTBaseURL:     getEnv("FFIEC_REST_BASE_URL", "https://ffieccdr.azure-api.us/public"),
		SOAPRatePerHour: getEnvInt("FFIEC_SOAP_RATE_PER_HOUR", 1000),
		RESTRatePerHour: getEnvInt("FFIEC_REST_RATE_PER_HOUR", 2500),
		RateBurst:       getEnvInt("FFIEC_RATE_BURST", 5),
		MaxConcurrent:   getEnvInt("FFIEC_MAX_CONCURRENT", 5),
		TimeoutSecs:     getEnvInt("FFIEC_TIMEOUT_SECS", 30),
		MaxRetries:      getEnvInt("FFIEC_MAX_RETRIES", 3),
		Proxy:           getEnv("FFIEC_PROXY", ""),
		UseLegacyErrors: getEnvBool("FFIEC_USE_LEGACY_ERRORS", false),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}
