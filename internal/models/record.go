package models

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Universal record fields every entity kind carries.
const (
	FieldID         = "id"
	FieldCreatedAt  = "createdAt"
	FieldUpdatedAt  = "updatedAt"
	FieldVersion    = "version"
	FieldSyncStatus = "sync_status"
)

const (
	SyncStatusSynced  = "synced"
	SyncStatusPending = "pending"
)

// Record is a heterogeneous entity instance as exchanged with clients.
type Record map[string]any

// Clone returns a shallow copy. Nested values are shared.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

func (r Record) ID() string {
	s, _ := r[FieldID].(string)
	return s
}

func (r Record) SetID(id string) {
	r[FieldID] = id
}

// Has reports whether the field is present and not null.
func (r Record) Has(field string) bool {
	v, ok := r[field]
	return ok && v != nil
}

// Version returns the record version, 0 when absent or not numeric.
func (r Record) Version() int64 {
	n, _ := Int64(r[FieldVersion])
	return n
}

func (r Record) SetVersion(v int64) {
	r[FieldVersion] = v
}

// Time parses a timestamp field. The second result is false when the field
// is missing or cannot be interpreted as an instant.
func (r Record) Time(field string) (time.Time, bool) {
	return ParseTime(r[field])
}

func (r Record) SetTime(field string, t time.Time) {
	r[field] = FormatTime(t)
}

func (r Record) UpdatedAt() (time.Time, bool) {
	return r.Time(FieldUpdatedAt)
}

// FormatTime is the canonical wire representation of server instants.
func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// ParseTime accepts ISO-8601 strings, time values and unix milliseconds, the
// forms offline clients are known to send.
func ParseTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, !t.IsZero()
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return time.Time{}, false
		}
		for _, layout := range timeLayouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				return parsed, true
			}
		}
		return time.Time{}, false
	default:
		ms, ok := Int64(v)
		if !ok || ms <= 0 {
			return time.Time{}, false
		}
		return time.UnixMilli(ms).UTC(), true
	}
}

// Int64 coerces JSON-decoded numerics (and numeric strings) to int64.
func Int64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float32:
		return int64(n), true
	case float64:
		return int64(n), true
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		f, err := n.Float64()
		return int64(f), err == nil
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		return i, err == nil
	default:
		return 0, false
	}
}
