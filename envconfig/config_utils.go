package envconfig

import (
	"fmt"
	"log/slog"
	"strconv"
)

// Bool returns a getter for a boolean variable, defaulting to false.
func Bool(key string) func() bool {
	return func() bool {
		if s := Var(key); s != "" {
			b, err := strconv.ParseBool(s)
			if err != nil {
				return true
			}
			return b
		}
		return false
	}
}

// Uint returns a getter for an unsigned integer variable with a default.
func Uint(key string, defaultValue uint) func() uint {
	return func() uint {
		if s := Var(key); s != "" {
			if n, err := strconv.ParseUint(s, 10, 64); err != nil {
				slog.Warn("invalid environment variable, using default", "key", key, "value", s, "default", defaultValue)
			} else {
				return uint(n)
			}
		}
		return defaultValue
	}
}

// EnvVar describes one environment variable for usage output.
type EnvVar struct {
	Name        string
	Value       any
	Description string
}

// AsMap returns every configuration with its current value and
// description.
func AsMap() map[string]EnvVar {
	return map[string]EnvVar{
		"PARLEY_HOST":       {"PARLEY_HOST", Host(), "IP address for the parley server (default 127.0.0.1:11435)"},
		"PARLEY_DEBUG":      {"PARLEY_DEBUG", LogLevel(), "Show additional debug information (e.g. PARLEY_DEBUG=1)"},
		"PARLEY_BATCH":      {"PARLEY_BATCH", BatchSize(), "Maximum number of tokens per batch (default 512)"},
		"PARLEY_CONTEXT":    {"PARLEY_CONTEXT", ContextLength(), "Engine cache size in cells (default 4096)"},
		"PARLEY_VOCAB":      {"PARLEY_VOCAB", VocabSize(), "Logit vector length (default 32000)"},
		"PARLEY_LOGITS_F16": {"PARLEY_LOGITS_F16", LogitsF16(), "Store cached logits half-precision"},
	}
}

// Values returns every configuration value as a string map, for startup
// logging.
func Values() map[string]string {
	vals := make(map[string]string)
	for k, v := range AsMap() {
		vals[k] = fmt.Sprintf("%v", v.Value)
	}
	return vals
}
