// Package sysutil provides process-level helpers: logging setup, host
// identification, and tiny string/env utilities that do not belong to any
// domain package.
package sysutil

import (
	"os"
	"runtime"
	"strings"

	"github.com/rs/zerolog"
)

// SetLogLevel applies a textual level ("trace", "debug", "info", "warn",
// "error", "fatal", "panic") to the global zerolog level. Unknown or empty
// values fall back to info.
func SetLogLevel(level string) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}

// IsTruthy reports whether s spells a truthy flag value
// ("1", "t", "true", "y", "yes", "on" — case-insensitive).
func IsTruthy(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "t", "true", "y", "yes", "on":
		return true
	}
	return false
}

// FirstNonEmpty returns the first non-empty string in vals, or "".
func FirstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// DeviceInfo identifies the host device for session metadata:
// "<hostname> <os>/<arch>". Hostname failures degrade to "unknown".
func DeviceInfo() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "unknown"
	}
	return host + " " + runtime.GOOS + "/" + runtime.GOARCH
}
