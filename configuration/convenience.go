package configuration

import (
	"fmt"
	"os"

	"github.com/farolabs/beacon"
)

// CreateDispatcherFromFile creates a dispatcher from a JSON or YAML
// configuration file. This is the main entry point for configuration-based
// dispatcher creation.
func CreateDispatcherFromFile(filename string) (*beacon.Dispatcher, error) {
	config, err := LoadFromFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	builder := NewDispatcherBuilder()
	return builder.Build(config)
}

// CreateDispatcherFromJSON creates a dispatcher from JSON configuration data.
func CreateDispatcherFromJSON(jsonData []byte) (*beacon.Dispatcher, error) {
	config, err := LoadFromJSON(jsonData)
	if err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	builder := NewDispatcherBuilder()
	return builder.Build(config)
}

// CreateDispatcherFromYAML creates a dispatcher from YAML configuration data.
func CreateDispatcherFromYAML(yamlData []byte) (*beacon.Dispatcher, error) {
	config, err := LoadFromYAML(yamlData)
	if err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	builder := NewDispatcherBuilder()
	return builder.Build(config)
}

// CreateDispatcherFromEnvironment creates a dispatcher from
// environment-specific config files. It looks for beacon.json and
// beacon.{environment}.json files.
func CreateDispatcherFromEnvironment(environment string) (*beacon.Dispatcher, error) {
	baseConfig, err := loadIfPresent("beacon.json")
	if err != nil {
		return nil, fmt.Errorf("failed to load base configuration: %w", err)
	}
	if baseConfig == nil {
		baseConfig = &Configuration{}
	}

	if environment != "" {
		envFile := fmt.Sprintf("beacon.%s.json", environment)
		envConfig, err := loadIfPresent(envFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load environment configuration: %w", err)
		}
		if envConfig != nil {
			mergeConfiguration(baseConfig, envConfig)
		}
	}

	builder := NewDispatcherBuilder()
	return builder.Build(baseConfig)
}

func loadIfPresent(filename string) (*Configuration, error) {
	if _, err := os.Stat(filename); os.IsNotExist(err) {
		return nil, nil
	}
	return LoadFromFile(filename)
}

// mergeConfiguration merges source configuration into target.
// Source values override target values.
func mergeConfiguration(target, source *Configuration) {
	if len(source.Beacon.Interceptors) > 0 {
		target.Beacon.Interceptors = source.Beacon.Interceptors
	}
	if source.Beacon.Tracker != nil {
		target.Beacon.Tracker = source.Beacon.Tracker
	}
	if source.Beacon.RecoveryInterval != "" {
		target.Beacon.RecoveryInterval = source.Beacon.RecoveryInterval
	}
	if source.Beacon.HandleTimeout != "" {
		target.Beacon.HandleTimeout = source.Beacon.HandleTimeout
	}
	if source.Beacon.HealthCheckTimeout != "" {
		target.Beacon.HealthCheckTimeout = source.Beacon.HealthCheckTimeout
	}
	if source.Beacon.ShutdownTimeout != "" {
		target.Beacon.ShutdownTimeout = source.Beacon.ShutdownTimeout
	}
	if len(source.Beacon.MaskKeys) > 0 {
		target.Beacon.MaskKeys = source.Beacon.MaskKeys
	}
	if source.Beacon.MaskStrategy != "" {
		target.Beacon.MaskStrategy = source.Beacon.MaskStrategy
	}
}
