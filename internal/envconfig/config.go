// Package envconfig reads ndbuf settings from the environment.
package envconfig

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// Var returns an environment variable stripped of surrounding quotes and spaces.
func Var(key string) string {
	return strings.Trim(strings.TrimSpace(os.Getenv(key)), "\"'")
}

// AllocMode returns the default allocation mode name.
// Configurable via NDBUF_ALLOC (heap, direct or javacpp). Default: heap.
func AllocMode() string {
	switch s := strings.ToLower(Var("NDBUF_ALLOC")); s {
	case "":
		return "heap"
	case "heap", "direct", "javacpp":
		return s
	default:
		slog.Warn("invalid NDBUF_ALLOC, using heap", "value", s)
		return "heap"
	}
}

// WorkspaceSize returns the initial workspace arena size in bytes.
// Configurable via NDBUF_WORKSPACE_SIZE. Default: 16 MiB.
var WorkspaceSize = Uint64("NDBUF_WORKSPACE_SIZE", 16<<20)

// WorkspaceMaxSize returns the largest size a workspace arena may grow to.
// Configurable via NDBUF_WORKSPACE_MAX_SIZE. Default: 1 GiB.
var WorkspaceMaxSize = Uint64("NDBUF_WORKSPACE_MAX_SIZE", 1<<30)

// WorkspaceSpill reports whether exhausted workspaces spill to the heap.
// Configurable via NDBUF_WORKSPACE_SPILL. Default: true.
var WorkspaceSpill = BoolWithDefault("NDBUF_WORKSPACE_SPILL")

// ParallelMinChunk returns the minimum elements per goroutine in bulk conversions.
// Configurable via NDBUF_PARALLEL_MIN. Default: 4096.
var ParallelMinChunk = Uint64("NDBUF_PARALLEL_MIN", 4096)

// LogLevel returns the log level.
// Configurable via NDBUF_DEBUG: true for debug, an integer n for level -4n.
func LogLevel() slog.Level {
	level := slog.LevelInfo
	if s := Var("NDBUF_DEBUG"); s != "" {
		if b, _ := strconv.ParseBool(s); b {
			level = slog.LevelDebug
		} else if i, _ := strconv.ParseInt(s, 10, 64); i != 0 {
			level = slog.Level(i * -4)
		}
	}
	return level
}

// BoolWithDefault returns a getter for a boolean variable with a default.
func BoolWithDefault(k string) func(defaultValue bool) bool {
	return func(defaultValue bool) bool {
		if s := Var(k); s != "" {
			b, err := strconv.ParseBool(s)
			if err != nil {
				return true
			}
			return b
		}
		return defaultValue
	}
}

// Uint64 returns a getter for an unsigned integer variable with a default.
func Uint64(key string, defaultValue uint64) func() uint64 {
	return func() uint64 {
		if s := Var(key); s != "" {
			if n, err := strconv.ParseUint(s, 10, 64); err != nil {
				slog.Warn("invalid environment variable, using default", "key", key, "value", s, "default", defaultValue)
			} else {
				return n
			}
		}
		return defaultValue
	}
}

// EnvVar describes one configuration variable.
type EnvVar struct {
	Name        string
	Value       any
	Description string
}

// AsMap returns every variable with its current value.
func AsMap() map[string]EnvVar {
	return map[string]EnvVar{
		"NDBUF_ALLOC":              {"NDBUF_ALLOC", AllocMode(), "Default allocation mode (heap, direct)"},
		"NDBUF_WORKSPACE_SIZE":     {"NDBUF_WORKSPACE_SIZE", WorkspaceSize(), "Initial workspace size in bytes"},
		"NDBUF_WORKSPACE_MAX_SIZE": {"NDBUF_WORKSPACE_MAX_SIZE", WorkspaceMaxSize(), "Maximum workspace size in bytes"},
		"NDBUF_WORKSPACE_SPILL":    {"NDBUF_WORKSPACE_SPILL", WorkspaceSpill(true), "Spill exhausted workspaces to the heap"},
		"NDBUF_PARALLEL_MIN":       {"NDBUF_PARALLEL_MIN", ParallelMinChunk(), "Minimum elements per goroutine in bulk conversions"},
		"NDBUF_DEBUG":              {"NDBUF_DEBUG", LogLevel(), "Log level"},
	}
}

// Values returns every variable formatted as a string.
func Values() map[string]string {
	vals := make(map[string]string)
	for k, v := range AsMap() {
		vals[k] = fmt.Sprintf("%v", v.Value)
	}
	return vals
}
