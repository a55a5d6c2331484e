package beacon

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// MaskStrategy determines how masked payload values are rendered.
type MaskStrategy int

const (
	// MaskRedact replaces the value with "[redacted]".
	MaskRedact MaskStrategy = iota
	// MaskHash replaces the value with a truncated SHA-256 of it, so equal
	// values stay correlatable without being readable.
	MaskHash
	// MaskPartial keeps the last four characters and stars the rest.
	// Values of four characters or fewer are starred entirely.
	MaskPartial
)

// maskSet is a case-insensitive set of payload keys whose values are masked.
type maskSet struct {
	keys     map[string]struct{}
	strategy MaskStrategy
}

func newMaskSet(keys []string, strategy MaskStrategy) *maskSet {
	if len(keys) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		set[strings.ToLower(key)] = struct{}{}
	}
	return &maskSet{keys: set, strategy: strategy}
}

// apply returns the value to store for key, masking it if the key matches.
func (m *maskSet) apply(key, value string) string {
	if m == nil {
		return value
	}
	if _, masked := m.keys[strings.ToLower(key)]; !masked {
		return value
	}
	return maskValue(value, m.strategy)
}

func maskValue(value string, strategy MaskStrategy) string {
	switch strategy {
	case MaskHash:
		sum := sha256.Sum256([]byte(value))
		return "sha256:" + hex.EncodeToString(sum[:6])
	case MaskPartial:
		runes := []rune(value)
		if len(runes) <= 4 {
			return strings.Repeat("*", len(runes))
		}
		return strings.Repeat("*", len(runes)-4) + string(runes[len(runes)-4:])
	default:
		return "[redacted]"
	}
}
