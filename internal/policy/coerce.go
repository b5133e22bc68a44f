package policy

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/timmy/parlsync/internal/reconcile"
	"github.com/timmy/parlsync/internal/unl"
)

// Source date and time layouts.
const (
	isoDate   = "2006-01-02"
	czechDate = "02.01.2006"
	clockTime = "15:04:05"
	shortTime = "15:04"
)

var errMissing = errors.New("value is NULL")

// requiredInt coerces a mandatory integer field.
func requiredInt(rec unl.Record, field string) (int, error) {
	v, ok := rec.Get(field)
	if !ok {
		return 0, &reconcile.FieldError{Field: field, Err: errMissing}
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, &reconcile.FieldError{Field: field, Err: err}
	}
	return n, nil
}

// intOrZero coerces an optional integer field, zero when absent or invalid.
func intOrZero(rec unl.Record, field string) int {
	v, ok := rec.Get(field)
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

// intOrDefault is intOrZero with a custom fallback.
func intOrDefault(rec unl.Record, field string, def int) int {
	v, ok := rec.Get(field)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// optionalInt coerces an optional integer field, nil when absent or invalid.
func optionalInt(rec unl.Record, field string) *int {
	v, ok := rec.Get(field)
	if !ok {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return nil
	}
	return &n
}

// text returns a field as a nullable string.
func text(rec unl.Record, field string) *string {
	v, ok := rec.Get(field)
	if !ok {
		return nil
	}
	return &v
}

// date parses a field against layouts in order, nil when none match.
func date(rec unl.Record, field string, layouts ...string) *time.Time {
	v, ok := rec.Get(field)
	if !ok {
		return nil
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, v); err == nil {
			return &t
		}
	}
	return nil
}

// clock normalizes a time-of-day field to HH:MM:SS, nil when unparseable.
func clock(rec unl.Record, field string) *string {
	v, ok := rec.Get(field)
	if !ok {
		return nil
	}
	for _, layout := range []string{clockTime, shortTime} {
		if t, err := time.Parse(layout, v); err == nil {
			s := t.Format(clockTime)
			return &s
		}
	}
	return nil
}

// flag reads a sentinel boolean: 1/0, true/false, ano/ne, a/n.
func flag(rec unl.Record, field string, def bool) bool {
	v, ok := rec.Get(field)
	if !ok {
		return def
	}
	switch strings.ToLower(v) {
	case "1", "true", "t", "ano", "a", "y", "yes":
		return true
	case "0", "false", "f", "ne", "n", "no":
		return false
	}
	return def
}

// present reports whether a field holds any value.
func present(rec unl.Record, field string) bool {
	_, ok := rec.Get(field)
	return ok
}

func singleKey(name string, value interface{}) reconcile.Key {
	return reconcile.Key{{Name: name, Value: value}}
}
