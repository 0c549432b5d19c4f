package logging

import (
	"log/slog"
	"net/url"
	"regexp"
	"sort"
	"strings"
)

// RedactedValue is the canonical placeholder used for sensitive fields in logs.
const RedactedValue = "[REDACTED]"

// Keys that are never written verbatim, whatever the call site. Matching is
// case-insensitive and ignores '_', '-' and '.'.
var sensitiveKeys = map[string]struct{}{
	"hmacsecret":    {},
	"secret":        {},
	"password":      {},
	"token":         {},
	"authorization": {},
	"apikey":        {},
	"headers":       {},
	"dsn":           {},
	"redisaddr":     {},
	"redisurl":      {},
}

// Keys whose values carry credentials inside a connection string. These are
// scrubbed rather than masked so the driver and host stay visible.
var connectionKeys = map[string]struct{}{
	"dsn":       {},
	"redisaddr": {},
	"redisurl":  {},
}

var redactionAllowlist = map[string]struct{}{
	"service":   {},
	"env":       {},
	"message":   {},
	"severity":  {},
	"timestamp": {},
	"error":     {},
	"reason":    {},
	"component": {},
	"operation": {},
	"challenge": {},
	"method":    {},
	"backend":   {},
	"driver":    {},
	"channel":   {},
}

var kvPassword = regexp.MustCompile(`(?i)\b(password|pass|pwd)=([^\s;&]+)`)

func normalizeKey(key string) string {
	key = strings.ToLower(strings.TrimSpace(key))
	return strings.NewReplacer("_", "", "-", "", ".", "").Replace(key)
}

// IsSensitive reports whether values logged under key must not appear in
// clear text.
func IsSensitive(key string) bool {
	_, ok := sensitiveKeys[normalizeKey(key)]
	return ok
}

// IsAllowlisted reports whether the provided key is exempt from automatic redaction.
func IsAllowlisted(key string) bool {
	_, ok := redactionAllowlist[normalizeKey(key)]
	return ok
}

// RedactionAllowlist returns a sorted copy of the log keys emitted without
// redaction by MaskField.
func RedactionAllowlist() []string {
	keys := make([]string, 0, len(redactionAllowlist))
	for key := range redactionAllowlist {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// MaskValue returns the canonical redacted placeholder for non-empty values. Empty values
// are returned unchanged to avoid introducing noise in logs.
func MaskValue(value string) string {
	if strings.TrimSpace(value) == "" {
		return value
	}
	return RedactedValue
}

// ScrubDSN removes credentials from a database DSN or Redis address.
// "postgres://stele:pw@db:5432/events" becomes
// "postgres://stele:[REDACTED]@db:5432/events" and key/value DSNs have their
// password field masked. File paths pass through unchanged.
func ScrubDSN(dsn string) string {
	trimmed := strings.TrimSpace(dsn)
	if trimmed == "" {
		return dsn
	}
	if strings.Contains(trimmed, "://") {
		parsed, err := url.Parse(trimmed)
		if err != nil {
			return RedactedValue
		}
		if parsed.User != nil {
			if _, hasPassword := parsed.User.Password(); hasPassword {
				parsed.User = url.UserPassword(parsed.User.Username(), RedactedValue)
			} else if parsed.Scheme == "redis" || parsed.Scheme == "rediss" {
				// redis://token@host carries the secret as the username.
				parsed.User = url.User(RedactedValue)
			}
		}
		query := parsed.Query()
		for key := range query {
			if IsSensitive(key) || normalizeKey(key) == "sslpassword" {
				query.Set(key, RedactedValue)
			}
		}
		parsed.RawQuery = query.Encode()
		// url.String escapes the placeholder brackets; keep logs readable.
		out := parsed.String()
		out = strings.ReplaceAll(out, url.QueryEscape(RedactedValue), RedactedValue)
		return strings.ReplaceAll(out, url.PathEscape(RedactedValue), RedactedValue)
	}
	scrubbed := kvPassword.ReplaceAllString(trimmed, "${1}="+RedactedValue)
	// MySQL style user:password@tcp(host)/db.
	if at := strings.Index(scrubbed, "@"); at > 0 {
		if colon := strings.Index(scrubbed[:at], ":"); colon >= 0 {
			scrubbed = scrubbed[:colon+1] + RedactedValue + scrubbed[at:]
		}
	}
	return scrubbed
}

// MaskField returns a slog.Attr for a configuration value. Connection strings
// keep their driver and host with credentials scrubbed, allowlisted keys pass
// through and anything else is masked. The original key casing is preserved.
func MaskField(key, value string) slog.Attr {
	if strings.TrimSpace(value) == "" {
		return slog.String(key, value)
	}
	if _, ok := connectionKeys[normalizeKey(key)]; ok {
		return slog.String(key, ScrubDSN(value))
	}
	if IsAllowlisted(key) {
		return slog.String(key, value)
	}
	return slog.String(key, RedactedValue)
}

// redactAttr runs on every record written by SetupWriter so that a secret
// logged through a plain slog.String is still masked.
func redactAttr(attr slog.Attr) slog.Attr {
	if !IsSensitive(attr.Key) {
		return attr
	}
	if attr.Value.Kind() != slog.KindString {
		return slog.String(attr.Key, RedactedValue)
	}
	value := attr.Value.String()
	if strings.Contains(value, RedactedValue) {
		return attr
	}
	if _, ok := connectionKeys[normalizeKey(attr.Key)]; ok {
		return slog.String(attr.Key, ScrubDSN(value))
	}
	return slog.String(attr.Key, MaskValue(value))
}
