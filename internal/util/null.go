package util

import "database/sql"

// NullInt64 converts an identifier to sql.NullInt64.
// Zero and negative values are treated as invalid (null), since upstream
// and local identifiers start at 1.
func NullInt64(i int64) sql.NullInt64 {
	if i <= 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: i, Valid: true}
}

// NullInt64Value returns the int64 held by n, or zero when it is null.
func NullInt64Value(n sql.NullInt64) int64 {
	if !n.Valid {
		return 0
	}
	return n.Int64
}
