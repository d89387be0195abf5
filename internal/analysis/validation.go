package analysis

import (
	"fmt"
	"strings"
)

const (
	minTimeWindowDays = 1
	maxTimeWindowDays = 30
	maxExclusionRefs  = 10
)

// ValidateConfig rejects a config before any job record is created. The
// returned error wraps ErrInvalidConfig and lists every problem found.
func ValidateConfig(cfg Config) error {
	var issues []string

	refs := 0
	for _, name := range cfg.ExclusionChannels {
		if strings.TrimSpace(name) != "" {
			refs++
		}
	}
	if refs == 0 {
		issues = append(issues, "exclusionChannels must contain at least one channel name")
	}
	if refs > maxExclusionRefs {
		issues = append(issues, fmt.Sprintf("exclusionChannels must contain at most %d channel names", maxExclusionRefs))
	}

	if cfg.MinSubscribers < 0 {
		issues = append(issues, "minSubscribers must not be negative")
	}
	if cfg.MaxSubscribers <= 0 {
		issues = append(issues, "maxSubscribers must be positive")
	} else if cfg.MinSubscribers > cfg.MaxSubscribers {
		issues = append(issues, "minSubscribers must not exceed maxSubscribers")
	}

	if cfg.TimeWindowDays < minTimeWindowDays || cfg.TimeWindowDays > maxTimeWindowDays {
		issues = append(issues, fmt.Sprintf("timeWindowDays must be between %d and %d", minTimeWindowDays, maxTimeWindowDays))
	}

	if cfg.OutlierThreshold < 0 {
		issues = append(issues, "outlierThreshold must not be negative")
	}

	if len(issues) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(issues, "; "))
	}
	return nil
}

// NormalizeConfig trims whitespace-only reference names and drops empties.
func NormalizeConfig(cfg Config) Config {
	cleaned := make([]string, 0, len(cfg.ExclusionChannels))
	for _, name := range cfg.ExclusionChannels {
		if trimmed := strings.TrimSpace(name); trimmed != "" {
			cleaned = append(cleaned, trimmed)
		}
	}
	cfg.ExclusionChannels = cleaned
	return cfg
}
