// Package envconfig resolves PARLEY_* environment variables into typed
// configuration values. Every getter re-reads the environment so tests
// can flip variables with t.Setenv.
package envconfig

import (
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
)

// Host returns the listen address for the HTTP server.
// Configurable via PARLEY_HOST. Default: 127.0.0.1:11435.
func Host() string {
	defaultHost, defaultPort := "127.0.0.1", "11435"

	s := Var("PARLEY_HOST")
	if s == "" {
		return net.JoinHostPort(defaultHost, defaultPort)
	}

	host, port, err := net.SplitHostPort(s)
	if err != nil {
		host, port = s, defaultPort
	}
	if host == "" {
		host = defaultHost
	}

	if n, err := strconv.ParseInt(port, 10, 32); err != nil || n > 65535 || n < 0 {
		slog.Warn("invalid port, using default", "port", port, "default", defaultPort)
		port = defaultPort
	}

	return net.JoinHostPort(host, port)
}

// LogLevel returns the slog level.
// Configurable via PARLEY_DEBUG (e.g. PARLEY_DEBUG=1).
func LogLevel() slog.Level {
	level := slog.LevelInfo
	if s := Var("PARLEY_DEBUG"); s != "" {
		if b, _ := strconv.ParseBool(s); b {
			level = slog.LevelDebug
		} else if i, _ := strconv.ParseInt(s, 10, 64); i != 0 {
			level = slog.Level(i * -4)
		}
	}

	return level
}

var (
	// BatchSize is the fixed entry capacity of each batch.
	BatchSize = Uint("PARLEY_BATCH", 512)

	// ContextLength is the engine cache size in cells.
	ContextLength = Uint("PARLEY_CONTEXT", 4096)

	// VocabSize is the length of produced logit vectors.
	VocabSize = Uint("PARLEY_VOCAB", 32000)

	// LogitsF16 stores cached logits half-precision.
	LogitsF16 = Bool("PARLEY_LOGITS_F16")
)

// Var returns an environment variable, trimmed of surrounding whitespace
// and quotes.
func Var(key string) string {
	return strings.Trim(strings.TrimSpace(os.Getenv(key)), "\"'")
}
