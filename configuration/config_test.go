package configuration

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/farolabs/beacon/core"
)

func TestLoadFromJSON(t *testing.T) {
	jsonData := `{
		"Beacon": {
			"RecoveryInterval": "10s",
			"HandleTimeout": "2s",
			"MaskKeys": ["password", "token"],
			"MaskStrategy": "hash",
			"Tracker": {
				"MaxConsecutiveFailures": 5,
				"RecoveryInterval": "1m",
				"MaxRecoveryAttempts": 10
			},
			"Interceptors": [
				{
					"Name": "Console",
					"Args": {
						"minSeverity": "warning"
					}
				},
				{
					"Name": "Memory"
				}
			]
		}
	}`

	config, err := LoadFromJSON([]byte(jsonData))
	if err != nil {
		t.Fatalf("Failed to load JSON: %v", err)
	}

	if config.Beacon.RecoveryInterval != "10s" {
		t.Errorf("Expected recovery interval 10s, got %s", config.Beacon.RecoveryInterval)
	}
	if config.Beacon.HandleTimeout != "2s" {
		t.Errorf("Expected handle timeout 2s, got %s", config.Beacon.HandleTimeout)
	}
	if len(config.Beacon.MaskKeys) != 2 {
		t.Errorf("Expected 2 mask keys, got %d", len(config.Beacon.MaskKeys))
	}
	if config.Beacon.MaskStrategy != "hash" {
		t.Errorf("Expected mask strategy hash, got %s", config.Beacon.MaskStrategy)
	}

	if config.Beacon.Tracker == nil {
		t.Fatal("Expected tracker configuration")
	}
	if config.Beacon.Tracker.MaxConsecutiveFailures != 5 {
		t.Errorf("Expected 5 max failures, got %d", config.Beacon.Tracker.MaxConsecutiveFailures)
	}

	if len(config.Beacon.Interceptors) != 2 {
		t.Fatalf("Expected 2 interceptors, got %d", len(config.Beacon.Interceptors))
	}
	if config.Beacon.Interceptors[0].Name != "Console" {
		t.Errorf("Expected first interceptor Console, got %s", config.Beacon.Interceptors[0].Name)
	}
	if GetString(config.Beacon.Interceptors[0].Args, "minSeverity", "") != "warning" {
		t.Errorf("Expected minSeverity arg warning, got %v", config.Beacon.Interceptors[0].Args)
	}
}

func TestLoadFromYAML(t *testing.T) {
	yamlData := `
beacon:
  recoveryInterval: 15s
  maskKeys:
    - password
  maskStrategy: partial
  tracker:
    maxConsecutiveFailures: 2
    recoveryInterval: 45s
    maxRecoveryAttempts: 3
  interceptors:
    - name: Console
      args:
        minSeverity: error
        noColor: true
    - name: Spool
      args:
        path: /tmp/spool
        retainedFileCount: 7
`

	config, err := LoadFromYAML([]byte(yamlData))
	if err != nil {
		t.Fatalf("Failed to load YAML: %v", err)
	}

	if config.Beacon.RecoveryInterval != "15s" {
		t.Errorf("Expected recovery interval 15s, got %s", config.Beacon.RecoveryInterval)
	}
	if config.Beacon.MaskStrategy != "partial" {
		t.Errorf("Expected mask strategy partial, got %s", config.Beacon.MaskStrategy)
	}

	if config.Beacon.Tracker == nil || config.Beacon.Tracker.MaxConsecutiveFailures != 2 {
		t.Errorf("Expected tracker config with 2 max failures, got %+v", config.Beacon.Tracker)
	}

	if len(config.Beacon.Interceptors) != 2 {
		t.Fatalf("Expected 2 interceptors, got %d", len(config.Beacon.Interceptors))
	}
	if !GetBool(config.Beacon.Interceptors[0].Args, "noColor", false) {
		t.Error("Expected noColor arg to be true")
	}
	if GetInt(config.Beacon.Interceptors[1].Args, "retainedFileCount", 0) != 7 {
		t.Errorf("Expected retainedFileCount 7, got %v", config.Beacon.Interceptors[1].Args)
	}
}

func TestLoadFromFile(t *testing.T) {
	tmpDir := t.TempDir()

	t.Run("json extension", func(t *testing.T) {
		path := filepath.Join(tmpDir, "beacon.json")
		content := `{"Beacon": {"RecoveryInterval": "5s"}}`
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("Failed to write config: %v", err)
		}

		config, err := LoadFromFile(path)
		if err != nil {
			t.Fatalf("Failed to load file: %v", err)
		}
		if config.Beacon.RecoveryInterval != "5s" {
			t.Errorf("Expected recovery interval 5s, got %s", config.Beacon.RecoveryInterval)
		}
	})

	t.Run("yaml extension", func(t *testing.T) {
		path := filepath.Join(tmpDir, "beacon.yaml")
		content := "beacon:\n  recoveryInterval: 7s\n"
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("Failed to write config: %v", err)
		}

		config, err := LoadFromFile(path)
		if err != nil {
			t.Fatalf("Failed to load file: %v", err)
		}
		if config.Beacon.RecoveryInterval != "7s" {
			t.Errorf("Expected recovery interval 7s, got %s", config.Beacon.RecoveryInterval)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		if _, err := LoadFromFile(filepath.Join(tmpDir, "nope.json")); err == nil {
			t.Error("Expected an error for a missing file")
		}
	})

	t.Run("malformed json", func(t *testing.T) {
		path := filepath.Join(tmpDir, "broken.json")
		if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
			t.Fatalf("Failed to write config: %v", err)
		}
		if _, err := LoadFromFile(path); err == nil {
			t.Error("Expected an error for malformed JSON")
		}
	})
}

func TestParseSeverity(t *testing.T) {
	tests := []struct {
		input    string
		expected core.Severity
		wantErr  bool
	}{
		{"debug", core.SeverityDebug, false},
		{"DBG", core.SeverityDebug, false},
		{"Info", core.SeverityInfo, false},
		{"inf", core.SeverityInfo, false},
		{"notice", core.SeverityNotice, false},
		{"NTC", core.SeverityNotice, false},
		{"Warning", core.SeverityWarning, false},
		{"warn", core.SeverityWarning, false},
		{"WRN", core.SeverityWarning, false},
		{"Error", core.SeverityError, false},
		{"err", core.SeverityError, false},
		{"fault", core.SeverityFault, false},
		{"FLT", core.SeverityFault, false},
		{"unknown", core.SeverityInfo, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			severity, err := ParseSeverity(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseSeverity(%s) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if severity != tt.expected {
				t.Errorf("ParseSeverity(%s) = %v, want %v", tt.input, severity, tt.expected)
			}
		})
	}
}

func TestParsePurpose(t *testing.T) {
	tests := []struct {
		input    string
		expected core.Purpose
		wantErr  bool
	}{
		{"diagnostic", core.PurposeDiagnostic, false},
		{"Operational", core.PurposeOperational, false},
		{"ANALYTICS", core.PurposeAnalytics, false},
		{"telemetry", core.PurposeDiagnostic, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			purpose, err := ParsePurpose(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParsePurpose(%s) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if purpose != tt.expected {
				t.Errorf("ParsePurpose(%s) = %v, want %v", tt.input, purpose, tt.expected)
			}
		})
	}
}

func TestGetHelpers(t *testing.T) {
	args := map[string]interface{}{
		"name":     "spool",
		"size":     float64(42),
		"sizeStr":  "17",
		"big":      float64(1 << 40),
		"enabled":  true,
		"flagStr":  "TRUE",
		"duration": "250ms",
	}

	if got := GetString(args, "name", "x"); got != "spool" {
		t.Errorf("GetString = %q", got)
	}
	if got := GetString(args, "missing", "fallback"); got != "fallback" {
		t.Errorf("GetString default = %q", got)
	}
	if got := GetInt(args, "size", 0); got != 42 {
		t.Errorf("GetInt = %d", got)
	}
	if got := GetInt(args, "sizeStr", 0); got != 17 {
		t.Errorf("GetInt from string = %d", got)
	}
	if got := GetInt64(args, "big", 0); got != 1<<40 {
		t.Errorf("GetInt64 = %d", got)
	}
	if got := GetBool(args, "enabled", false); !got {
		t.Error("GetBool should be true")
	}
	if got := GetBool(args, "flagStr", false); !got {
		t.Error("GetBool should parse TRUE")
	}
	if got := parseDuration(GetString(args, "duration", ""), 0); got != 250*time.Millisecond {
		t.Errorf("parseDuration = %v", got)
	}
	if got := parseDuration("not a duration", time.Second); got != time.Second {
		t.Errorf("parseDuration fallback = %v", got)
	}
}
