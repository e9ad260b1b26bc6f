// Package logging scrubs sensitive material from strings before they reach
// logs or API responses: connection credentials and filesystem paths.
package logging

import (
	"regexp"
)

// RedactedText replaces sensitive data.
const RedactedText = "[REDACTED]"

var (
	// password=xxx, pwd=xxx, pass=xxx up to the next delimiter
	passwordPattern = regexp.MustCompile(`(?i)(password|pwd|pass)=[^;&\s]+`)

	// user:pass@host in URL-style connection strings
	connStringPattern = regexp.MustCompile(`://[^:/\s]+:[^@\s]+@[^/\s]+`)

	// Absolute unix paths with at least two segments. Error detail must not
	// reveal where uploads live on disk.
	absPathPattern = regexp.MustCompile(`(/[\w.\-]+){2,}/?`)
)

// SanitizeConnectionString removes credentials from a connection string so
// it can be logged.
func SanitizeConnectionString(connStr string) string {
	if connStr == "" {
		return ""
	}
	sanitized := passwordPattern.ReplaceAllString(connStr, "${1}="+RedactedText)
	return connStringPattern.ReplaceAllString(sanitized, "://"+RedactedText+"@"+RedactedText)
}

// SanitizeError scrubs credentials from an error message.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	return SanitizeConnectionString(err.Error())
}

// ScrubPaths replaces absolute filesystem paths in a message with a
// placeholder. Applied to error detail persisted on uploads and jobs.
func ScrubPaths(message string) string {
	if message == "" {
		return ""
	}
	return absPathPattern.ReplaceAllString(message, "[path]")
}

// TruncateString shortens s to maxLen with an ellipsis.
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
