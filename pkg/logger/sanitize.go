package logger

import (
	"log/slog"
	"strings"
)

// SanitizedEmail masks an email address for logging (e.g., "u***@*******.com")
func SanitizedEmail(email string) string {
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return "[invalid-email]"
	}

	local := MaskUsername(parts[0])

	// keep the TLD only
	domainParts := strings.Split(parts[1], ".")
	for i := 0; i < len(domainParts)-1; i++ {
		domainParts[i] = strings.Repeat("*", len(domainParts[i]))
	}

	return local + "@" + strings.Join(domainParts, ".")
}

// MaskUsername keeps the first character of a login name and masks the rest
func MaskUsername(username string) string {
	runes := []rune(username)
	if len(runes) <= 1 {
		return username
	}
	return string(runes[0]) + strings.Repeat("*", len(runes)-1)
}

// RedactedAttr returns "[REDACTED]" in production and the raw value elsewhere
func RedactedAttr(key, value, env string) slog.Attr {
	if env == "production" {
		return slog.String(key, "[REDACTED]")
	}
	return slog.String(key, value)
}

var sensitiveQueryParams = []string{
	"password",
	"token",
	"secret",
	"email",
	"usuario",
	"username",
	"auth",
}

// SanitizeQueryString reports whether a raw query string must be redacted before logging
func SanitizeQueryString(rawQuery string) bool {
	query := strings.ToLower(rawQuery)
	for _, param := range sensitiveQueryParams {
		if strings.Contains(query, param) {
			return true
		}
	}
	return false
}
