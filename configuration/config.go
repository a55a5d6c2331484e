// Package configuration builds dispatchers from JSON or YAML files, so
// deployments can change destinations and thresholds without recompiling.
package configuration

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/farolabs/beacon/core"
)

// DispatcherConfiguration represents the configuration for a dispatcher.
type DispatcherConfiguration struct {
	Interceptors       []InterceptorConfiguration `json:"Interceptors,omitempty" yaml:"interceptors,omitempty"`
	Tracker            *TrackerConfiguration      `json:"Tracker,omitempty" yaml:"tracker,omitempty"`
	RecoveryInterval   string                     `json:"RecoveryInterval,omitempty" yaml:"recoveryInterval,omitempty"`
	HandleTimeout      string                     `json:"HandleTimeout,omitempty" yaml:"handleTimeout,omitempty"`
	HealthCheckTimeout string                     `json:"HealthCheckTimeout,omitempty" yaml:"healthCheckTimeout,omitempty"`
	ShutdownTimeout    string                     `json:"ShutdownTimeout,omitempty" yaml:"shutdownTimeout,omitempty"`
	MaskKeys           []string                   `json:"MaskKeys,omitempty" yaml:"maskKeys,omitempty"`
	MaskStrategy       string                     `json:"MaskStrategy,omitempty" yaml:"maskStrategy,omitempty"`
}

// InterceptorConfiguration represents one interceptor with its arguments.
type InterceptorConfiguration struct {
	Name string                 `json:"Name" yaml:"name"`
	Args map[string]interface{} `json:"Args,omitempty" yaml:"args,omitempty"`
}

// TrackerConfiguration represents the health tracker thresholds.
type TrackerConfiguration struct {
	MaxConsecutiveFailures int    `json:"MaxConsecutiveFailures,omitempty" yaml:"maxConsecutiveFailures,omitempty"`
	RecoveryInterval       string `json:"RecoveryInterval,omitempty" yaml:"recoveryInterval,omitempty"`
	MaxRecoveryAttempts    int    `json:"MaxRecoveryAttempts,omitempty" yaml:"maxRecoveryAttempts,omitempty"`
}

// Configuration is the root configuration object.
type Configuration struct {
	Beacon DispatcherConfiguration `json:"Beacon" yaml:"beacon"`
}

// LoadFromFile loads configuration from a JSON or YAML file, chosen by
// file extension.
func LoadFromFile(filename string) (*Configuration, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		return LoadFromYAML(data)
	default:
		return LoadFromJSON(data)
	}
}

// LoadFromJSON loads configuration from JSON data.
func LoadFromJSON(data []byte) (*Configuration, error) {
	var config Configuration
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}
	return &config, nil
}

// LoadFromYAML loads configuration from YAML data.
func LoadFromYAML(data []byte) (*Configuration, error) {
	var config Configuration
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return &config, nil
}

// ParseSeverity parses a severity name.
func ParseSeverity(severityStr string) (core.Severity, error) {
	switch strings.ToLower(severityStr) {
	case "debug", "dbg":
		return core.SeverityDebug, nil
	case "info", "inf":
		return core.SeverityInfo, nil
	case "notice", "ntc":
		return core.SeverityNotice, nil
	case "warning", "warn", "wrn":
		return core.SeverityWarning, nil
	case "error", "err":
		return core.SeverityError, nil
	case "fault", "flt":
		return core.SeverityFault, nil
	default:
		return core.SeverityInfo, fmt.Errorf("unknown severity: %s", severityStr)
	}
}

// ParsePurpose parses a purpose name.
func ParsePurpose(purposeStr string) (core.Purpose, error) {
	switch strings.ToLower(purposeStr) {
	case "diagnostic":
		return core.PurposeDiagnostic, nil
	case "operational":
		return core.PurposeOperational, nil
	case "analytics":
		return core.PurposeAnalytics, nil
	default:
		return core.PurposeDiagnostic, fmt.Errorf("unknown purpose: %s", purposeStr)
	}
}

// GetString gets a string value from configuration args.
func GetString(args map[string]interface{}, key string, defaultValue string) string {
	if v, ok := args[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return defaultValue
}

// GetInt gets an int value from configuration args.
func GetInt(args map[string]interface{}, key string, defaultValue int) int {
	if v, ok := args[key]; ok {
		switch val := v.(type) {
		case float64:
			return int(val)
		case int:
			return val
		case string:
			var i int
			if _, err := fmt.Sscanf(val, "%d", &i); err == nil {
				return i
			}
		}
	}
	return defaultValue
}

// GetInt64 gets an int64 value from configuration args.
func GetInt64(args map[string]interface{}, key string, defaultValue int64) int64 {
	if v, ok := args[key]; ok {
		switch val := v.(type) {
		case float64:
			return int64(val)
		case int64:
			return val
		case int:
			return int64(val)
		case string:
			var i int64
			if _, err := fmt.Sscanf(val, "%d", &i); err == nil {
				return i
			}
		}
	}
	return defaultValue
}

// GetBool gets a bool value from configuration args.
func GetBool(args map[string]interface{}, key string, defaultValue bool) bool {
	if v, ok := args[key]; ok {
		switch val := v.(type) {
		case bool:
			return val
		case string:
			return strings.ToLower(val) == "true"
		}
	}
	return defaultValue
}
