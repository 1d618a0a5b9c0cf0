package literal

import (
	"strconv"
	"strings"
	"time"
)

// Time is an instant or a period. An instant has Start equal to End.
type Time struct {
	Start time.Time
	End   time.Time
}

// IsInstant reports whether the time is a single instant.
func (t Time) IsInstant() bool { return t.Start.Equal(t.End) }

func (t Time) String() string {
	if t.IsInstant() {
		return t.Start.UTC().Format(time.RFC3339Nano)
	}
	return t.Start.UTC().Format(time.RFC3339Nano) + "/" + t.End.UTC().Format(time.RFC3339Nano)
}

// layouts accepted for a single ISO-8601 time. Times without an offset are
// read as UTC.
var layouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseTime reads an ISO-8601 instant or a start/end period.
func ParseTime(text string) (Time, error) {
	s := strings.TrimSpace(text)
	if start, end, ok := strings.Cut(s, "/"); ok {
		st, err := parseInstant(start)
		if err != nil {
			return Time{}, err
		}
		en, err := parseInstant(end)
		if err != nil {
			return Time{}, err
		}
		if en.Before(st) {
			return Time{}, &TypeMismatchError{Context: "datetime literal", Want: "period ending after its start", Got: strconv.Quote(s)}
		}
		return Time{Start: st, End: en}, nil
	}

	t, err := parseInstant(s)
	if err != nil {
		return Time{}, err
	}
	return Time{Start: t, End: t}, nil
}

// ParseInstant reads an ISO-8601 instant. A period is accepted only when
// its start equals its end.
func ParseInstant(text string) (time.Time, error) {
	t, err := ParseTime(text)
	if err != nil {
		return time.Time{}, err
	}
	if !t.IsInstant() {
		return time.Time{}, &TypeMismatchError{Context: "datetime literal", Want: "instant", Got: "period " + t.String()}
	}
	return t.Start, nil
}

func parseInstant(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, &TypeMismatchError{Context: "datetime literal", Want: "ISO-8601 time", Got: strconv.Quote(s)}
}
