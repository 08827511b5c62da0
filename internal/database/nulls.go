package database

import (
	"database/sql"
	"time"
)

// Conversions between optional domain fields and nullable SQLite columns.
// Times are stored as Unix seconds.

// NullInt64 converts an optional int64 to a nullable column value.
func NullInt64(v *int64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

// NullFloat64 converts an optional float64 to a nullable column value.
func NullFloat64(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

// NullString stores empty strings as NULL.
func NullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// NullUnix converts an optional time to nullable Unix seconds.
func NullUnix(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.Unix()
}

// Int64Ptr reads a scanned sql.NullInt64 back into an optional field.
func Int64Ptr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	out := v.Int64
	return &out
}

// Float64Ptr reads a scanned sql.NullFloat64 back into an optional field.
func Float64Ptr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	out := v.Float64
	return &out
}

// TimePtr reads nullable Unix seconds back into an optional UTC time.
func TimePtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(v.Int64, 0).UTC()
	return &t
}

// BoolInt converts a bool to the 0/1 integer SQLite stores.
func BoolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// FromUnix converts Unix seconds to a UTC time.
func FromUnix(sec int64) time.Time {
	return time.Unix(sec, 0).UTC()
}
