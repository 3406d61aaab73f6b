package retry

import "time"

const (
	PresetQuick      = "quick"
	PresetStandard   = "standard"
	PresetAggressive = "aggressive"
)

// Quick suits transient errors where latency matters.
func Quick() Config {
	return Config{MaxAttempts: 3, InitialDelay: 100 * time.Millisecond, MaxDelay: time.Second, BackoffMultiplier: 2, JitterFactor: 0.1}
}

// Standard suits ordinary API calls.
func Standard() Config {
	return Config{MaxAttempts: 3, InitialDelay: time.Second, MaxDelay: 10 * time.Second, BackoffMultiplier: 2, JitterFactor: 0.2}
}

// Aggressive favours eventual success over latency.
func Aggressive() Config {
	return Config{MaxAttempts: 5, InitialDelay: 500 * time.Millisecond, MaxDelay: 30 * time.Second, BackoffMultiplier: 2, JitterFactor: 0.3}
}

// Presets returns the built-in policies keyed by name.
func Presets() map[string]Config {
	return map[string]Config{
		PresetQuick:      Quick(),
		PresetStandard:   Standard(),
		PresetAggressive: Aggressive(),
	}
}
