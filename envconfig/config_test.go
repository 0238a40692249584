package envconfig

import (
	"log/slog"
	"testing"
)

func TestHost(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  string
	}{
		{"default", "", "127.0.0.1:11435"},
		{"host only", "0.0.0.0", "0.0.0.0:11435"},
		{"host and port", "0.0.0.0:11434", "0.0.0.0:11434"},
		{"port only", ":8080", "127.0.0.1:8080"},
		{"invalid port", "127.0.0.1:99999", "127.0.0.1:11435"},
		{"quoted", "\"127.0.0.1:8080\"", "127.0.0.1:8080"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("PARLEY_HOST", tt.value)

			if got := Host(); got != tt.want {
				t.Errorf("Host() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLogLevel(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  slog.Level
	}{
		{"default", "", slog.LevelInfo},
		{"true", "1", slog.LevelDebug},
		{"false", "0", slog.LevelInfo},
		{"numeric", "2", slog.Level(-8)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("PARLEY_DEBUG", tt.value)

			if got := LogLevel(); got != tt.want {
				t.Errorf("LogLevel() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestUint(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  uint
	}{
		{"default", "", 512},
		{"valid", "128", 128},
		{"invalid", "nope", 512},
		{"negative", "-5", 512},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("PARLEY_BATCH", tt.value)

			if got := BatchSize(); got != tt.want {
				t.Errorf("BatchSize() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestBool(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  bool
	}{
		{"default", "", false},
		{"true", "1", true},
		{"false", "false", false},
		{"garbage", "yes please", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("PARLEY_LOGITS_F16", tt.value)

			if got := LogitsF16(); got != tt.want {
				t.Errorf("LogitsF16() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestVar(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  string
	}{
		{"empty", "", ""},
		{"trimmed", "  x  ", "x"},
		{"quotes", "\"x\"", "x"},
		{"single quotes", "'x'", "x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("PARLEY_TEST_VAR", tt.value)

			if got := Var("PARLEY_TEST_VAR"); got != tt.want {
				t.Errorf("Var() = %q, want %q", got, tt.want)
			}
		})
	}
}
