package storage

import (
	"fmt"
	"regexp"
	"time"
)

// timeLayout is fixed-width so that stored strings sort chronologically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// FormatTime renders t in UTC with a fixed-width layout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// FormatTimePtr renders t, or returns nil for a nil pointer so drivers store NULL.
func FormatTimePtr(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return FormatTime(*t)
}

// ParseTime parses a timestamp written by FormatTime or any RFC 3339 value.
// Values without a zone are treated as UTC.
func ParseTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	for _, layout := range []string{"2006-01-02T15:04:05.999999999", "2006-01-02 15:04:05.999999999", "2006-01-02 15:04:05"} {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

// ValidateIdentifier rejects table or collection names that cannot be
// interpolated into SQL safely.
func ValidateIdentifier(name string) error {
	if !identifierPattern.MatchString(name) {
		return fmt.Errorf("invalid collection name %q", name)
	}
	return nil
}
