package config

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/BadgerOps/pimsync/internal/safety"
)

// Setting keys understood by ResolveEndpoint.
const (
	KeyAPIKey      = "EPI_APIKEY"
	KeyEndpointURL = "EPI_ENDPOINT_URL"
	KeyRESTTimeout = "EPI_RESTTIMEOUT"
	KeyEnabled     = "ENABLE_EPI_ENDPOINT"
)

// maxTimeoutHours is the largest timeout a time.Duration can hold.
const maxTimeoutHours = math.MaxInt64 / int64(time.Hour)

var settingKeys = []string{KeyAPIKey, KeyEndpointURL, KeyRESTTimeout, KeyEnabled}

// Endpoint is the resolved, validated connection settings for the remote importer.
type Endpoint struct {
	APIKey       string
	BaseURL      string // always ends with "/"
	TimeoutHours int
	Enabled      bool
}

// Timeout converts TimeoutHours into a transport timeout.
func (e *Endpoint) Timeout() time.Duration {
	return time.Duration(e.TimeoutHours) * time.Hour
}

// URL returns the absolute URL of a remote operation.
func (e *Endpoint) URL(operation string) string {
	return e.BaseURL + strings.TrimPrefix(operation, "/")
}

// ConfigurationError reports a missing or invalid setting. It is raised before
// any network activity and is never retried.
type ConfigurationError struct {
	Key     string
	Message string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Key, e.Message)
}

// ResolveEndpoint validates settings and builds an Endpoint.
func ResolveEndpoint(settings map[string]string) (*Endpoint, error) {
	apiKey := strings.TrimSpace(settings[KeyAPIKey])
	if apiKey == "" {
		return nil, &ConfigurationError{Key: KeyAPIKey, Message: "setting is required"}
	}

	rawURL := strings.TrimSpace(settings[KeyEndpointURL])
	if rawURL == "" {
		return nil, &ConfigurationError{Key: KeyEndpointURL, Message: "setting is required"}
	}
	baseURL, err := safety.NormalizeBaseURL(rawURL)
	if err != nil {
		return nil, &ConfigurationError{Key: KeyEndpointURL, Message: err.Error()}
	}

	rawTimeout := strings.TrimSpace(settings[KeyRESTTimeout])
	if rawTimeout == "" {
		return nil, &ConfigurationError{Key: KeyRESTTimeout, Message: "setting is required"}
	}
	hours, err := strconv.Atoi(rawTimeout)
	if err != nil {
		return nil, &ConfigurationError{Key: KeyRESTTimeout, Message: fmt.Sprintf("%q is not an integer", rawTimeout)}
	}
	if hours <= 0 {
		return nil, &ConfigurationError{Key: KeyRESTTimeout, Message: "timeout must be a positive number of hours"}
	}
	if int64(hours) > maxTimeoutHours {
		return nil, &ConfigurationError{Key: KeyRESTTimeout, Message: fmt.Sprintf("timeout must not exceed %d hours", maxTimeoutHours)}
	}

	enabled := true
	if raw, ok := settings[KeyEnabled]; ok {
		if b, ok := parseFlag(raw); ok {
			enabled = b
		}
	}

	return &Endpoint{
		APIKey:       apiKey,
		BaseURL:      baseURL,
		TimeoutHours: hours,
		Enabled:      enabled,
	}, nil
}

// parseFlag accepts only "true" or "false", ignoring case and surrounding space.
func parseFlag(raw string) (value, ok bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "true":
		return true, true
	case "false":
		return false, true
	}
	return false, false
}
