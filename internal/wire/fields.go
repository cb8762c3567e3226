package wire

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// object is a decoded JSON object with synonym-aware accessors.
type object map[string]any

// str returns the first non-empty string among keys. Numbers are
// formatted so that numeric ids and phones survive.
func (o object) str(keys ...string) string {
	for _, k := range keys {
		switch v := o[k].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case json.Number:
			return v.String()
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}

// boolean returns the value of key and whether it was present as a bool
// (or a "true"/"false" string).
func (o object) boolean(key string) (bool, bool) {
	switch v := o[key].(type) {
	case bool:
		return v, true
	case string:
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b, true
		}
	}
	return false, false
}

// child returns the nested object under key, if any.
func (o object) child(key string) (object, bool) {
	m, ok := o[key].(map[string]any)
	if !ok {
		return nil, false
	}
	return object(m), true
}

// timestamp returns the first parseable time among keys.
func (o object) timestamp(keys ...string) (time.Time, bool) {
	for _, k := range keys {
		switch v := o[k].(type) {
		case string:
			if t, ok := ParseTime(v); ok {
				return t, true
			}
		case json.Number:
			if n, err := v.Int64(); err == nil && n > 0 {
				return fromEpoch(n), true
			}
		case float64:
			if v > 0 {
				return fromEpoch(int64(v)), true
			}
		}
	}
	return time.Time{}, false
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000Z07:00",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// ParseTime accepts ISO-8601 variants and epoch seconds or millis.
func ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil && n > 0 {
		return fromEpoch(n), true
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// fromEpoch accepts seconds or milliseconds.
func fromEpoch(n int64) time.Time {
	if n < 1e11 {
		return time.Unix(n, 0)
	}
	return time.UnixMilli(n)
}
