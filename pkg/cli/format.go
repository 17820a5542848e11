// Package cli provides shared formatting helpers for the fleetwire CLI.
package cli

import (
	"os"
	"strings"
)

// colorEnabled is false when NO_COLOR env var is set (per no-color.org).
var colorEnabled = os.Getenv("NO_COLOR") == ""

// Green wraps s in ANSI green. Returns s unchanged when NO_COLOR is set.
func Green(s string) string {
	if !colorEnabled {
		return s
	}
	return "\033[32m" + s + "\033[0m"
}

// Yellow wraps s in ANSI yellow. Returns s unchanged when NO_COLOR is set.
func Yellow(s string) string {
	if !colorEnabled {
		return s
	}
	return "\033[33m" + s + "\033[0m"
}

// Red wraps s in ANSI red. Returns s unchanged when NO_COLOR is set.
func Red(s string) string {
	if !colorEnabled {
		return s
	}
	return "\033[31m" + s + "\033[0m"
}

// Bold wraps s in ANSI bold. Returns s unchanged when NO_COLOR is set.
func Bold(s string) string {
	if !colorEnabled {
		return s
	}
	return "\033[1m" + s + "\033[0m"
}

// Status colors a per-device result status: success green, timeout
// yellow, anything else red.
func Status(status string) string {
	switch strings.ToLower(status) {
	case "success", "ok", "ready":
		return Green(status)
	case "timeout", "warning":
		return Yellow(status)
	default:
		return Red(status)
	}
}

// Severity colors an alert severity: normal green, warning yellow,
// critical red.
func Severity(severity string) string {
	switch strings.ToLower(severity) {
	case "normal":
		return Green(severity)
	case "warning":
		return Yellow(severity)
	default:
		return Red(severity)
	}
}
