package configuration

import (
	"fmt"
	"strings"
	"time"

	"github.com/farolabs/beacon"
	"github.com/farolabs/beacon/core"
	"github.com/farolabs/beacon/interceptors"
)

// DispatcherBuilder builds a dispatcher from configuration.
type DispatcherBuilder struct {
	interceptorFactories map[string]InterceptorFactory
}

// InterceptorFactory creates an interceptor from configuration arguments.
type InterceptorFactory func(args map[string]interface{}) (core.Interceptor, error)

// NewDispatcherBuilder creates a builder with the default factories.
func NewDispatcherBuilder() *DispatcherBuilder {
	db := &DispatcherBuilder{
		interceptorFactories: make(map[string]InterceptorFactory),
	}

	db.RegisterInterceptor("Console", createConsoleInterceptor)
	db.RegisterInterceptor("Memory", createMemoryInterceptor)
	db.RegisterInterceptor("Spool", createSpoolInterceptor)
	db.RegisterInterceptor("Collector", createCollectorInterceptor)
	db.RegisterInterceptor("RedisStream", createRedisStreamInterceptor)
	db.RegisterInterceptor("WSTail", createWSTailInterceptor)

	return db
}

// RegisterInterceptor registers a factory, overriding any previous
// registration under the same name.
func (db *DispatcherBuilder) RegisterInterceptor(name string, factory InterceptorFactory) {
	db.interceptorFactories[name] = factory
}

// Build creates a dispatcher from configuration.
func (db *DispatcherBuilder) Build(config *Configuration) (*beacon.Dispatcher, error) {
	var options []beacon.Option

	cfg := config.Beacon

	if cfg.Tracker != nil {
		tracker := beacon.TrackerConfig{
			MaxConsecutiveFailures: cfg.Tracker.MaxConsecutiveFailures,
			MaxRecoveryAttempts:    cfg.Tracker.MaxRecoveryAttempts,
		}
		if cfg.Tracker.RecoveryInterval != "" {
			tracker.RecoveryInterval = parseDuration(cfg.Tracker.RecoveryInterval, 0)
		}
		options = append(options, beacon.WithTrackerConfig(tracker))
	}

	if cfg.RecoveryInterval != "" {
		options = append(options, beacon.WithRecoveryInterval(parseDuration(cfg.RecoveryInterval, 30*time.Second)))
	}
	if cfg.HandleTimeout != "" {
		options = append(options, beacon.WithHandleTimeout(parseDuration(cfg.HandleTimeout, 30*time.Second)))
	}
	if cfg.HealthCheckTimeout != "" {
		options = append(options, beacon.WithHealthCheckTimeout(parseDuration(cfg.HealthCheckTimeout, 5*time.Second)))
	}
	if cfg.ShutdownTimeout != "" {
		options = append(options, beacon.WithShutdownTimeout(parseDuration(cfg.ShutdownTimeout, 30*time.Second)))
	}

	if len(cfg.MaskKeys) > 0 {
		options = append(options, beacon.WithMaskKeys(cfg.MaskKeys...))
	}
	if cfg.MaskStrategy != "" {
		strategy, err := ParseMaskStrategy(cfg.MaskStrategy)
		if err != nil {
			return nil, err
		}
		options = append(options, beacon.WithMaskStrategy(strategy))
	}

	for _, interceptorConfig := range cfg.Interceptors {
		interceptor, err := db.createInterceptor(interceptorConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to create interceptor %s: %w", interceptorConfig.Name, err)
		}
		options = append(options, beacon.WithInterceptor(interceptor))
	}

	return beacon.New(options...), nil
}

// createInterceptor creates an interceptor from configuration.
func (db *DispatcherBuilder) createInterceptor(config InterceptorConfiguration) (core.Interceptor, error) {
	factory, ok := db.interceptorFactories[config.Name]
	if !ok {
		return nil, fmt.Errorf("unknown interceptor: %s", config.Name)
	}

	return factory(config.Args)
}

// ParseMaskStrategy parses a mask strategy name.
func ParseMaskStrategy(strategyStr string) (beacon.MaskStrategy, error) {
	switch strings.ToLower(strategyStr) {
	case "redact":
		return beacon.MaskRedact, nil
	case "hash":
		return beacon.MaskHash, nil
	case "partial":
		return beacon.MaskPartial, nil
	default:
		return beacon.MaskRedact, fmt.Errorf("unknown mask strategy: %s", strategyStr)
	}
}

// Default interceptor factories

func createConsoleInterceptor(args map[string]interface{}) (core.Interceptor, error) {
	opts := interceptors.ConsoleOptions{
		ShowPayload: GetBool(args, "showPayload", true),
		NoColor:     GetBool(args, "noColor", false),
	}

	severityStr := GetString(args, "minSeverity", "")
	if severityStr != "" {
		severity, err := ParseSeverity(severityStr)
		if err != nil {
			return nil, err
		}
		opts.MinSeverity = severity
	}

	return interceptors.NewConsoleWithOptions(opts), nil
}

func createMemoryInterceptor(args map[string]interface{}) (core.Interceptor, error) {
	return interceptors.NewMemory(), nil
}

func createSpoolInterceptor(args map[string]interface{}) (core.Interceptor, error) {
	path := GetString(args, "path", "")
	if path == "" {
		return nil, fmt.Errorf("spool interceptor requires 'path' argument")
	}

	return interceptors.NewSpoolWithOptions(interceptors.SpoolOptions{
		Path:        path,
		MaxFileSize: GetInt64(args, "fileSizeLimitBytes", 0),
		MaxFiles:    GetInt(args, "retainedFileCount", 0),
	})
}

func createCollectorInterceptor(args map[string]interface{}) (core.Interceptor, error) {
	url := GetString(args, "serverUrl", "")
	if url == "" {
		return nil, fmt.Errorf("collector interceptor requires 'serverUrl' argument")
	}

	var options []interceptors.CollectorOption

	if apiKey := GetString(args, "apiKey", ""); apiKey != "" {
		options = append(options, interceptors.WithCollectorAPIKey(apiKey))
	}

	options = append(options, interceptors.WithCollectorBatchSize(GetInt(args, "batchSize", 100)))
	options = append(options, interceptors.WithCollectorBatchTimeout(
		parseDuration(GetString(args, "period", "5s"), 5*time.Second)))
	options = append(options, interceptors.WithCollectorCompression(GetBool(args, "compress", false)))
	options = append(options, interceptors.WithCollectorRetry(
		GetInt(args, "maxRetries", 3),
		parseDuration(GetString(args, "retryBackoff", "1s"), time.Second)))

	return interceptors.NewCollector(url, options...), nil
}

func createRedisStreamInterceptor(args map[string]interface{}) (core.Interceptor, error) {
	addr := GetString(args, "addr", "")
	if addr == "" {
		return nil, fmt.Errorf("redis stream interceptor requires 'addr' argument")
	}

	stream := GetString(args, "stream", "beacon-events")

	var options []interceptors.RedisStreamOption
	if maxLen := GetInt64(args, "maxLen", 0); maxLen > 0 {
		options = append(options, interceptors.WithRedisStreamMaxLen(maxLen))
	}
	if password := GetString(args, "password", ""); password != "" {
		options = append(options, interceptors.WithRedisStreamAuth(password, GetInt(args, "db", 0)))
	}

	return interceptors.NewRedisStream(addr, stream, options...), nil
}

func createWSTailInterceptor(args map[string]interface{}) (core.Interceptor, error) {
	url := GetString(args, "url", "")
	if url == "" {
		return nil, fmt.Errorf("ws tail interceptor requires 'url' argument")
	}

	var options []interceptors.WSTailOption
	if timeout := GetString(args, "writeTimeout", ""); timeout != "" {
		options = append(options, interceptors.WithWSTailWriteTimeout(parseDuration(timeout, 10*time.Second)))
	}

	return interceptors.NewWSTail(url, options...), nil
}

// parseDuration parses a duration string, falling back to a default.
func parseDuration(s string, defaultValue time.Duration) time.Duration {
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	return defaultValue
}
