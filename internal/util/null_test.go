package util

import (
	"database/sql"
	"testing"
)

func TestNullInt64(t *testing.T) {
	tests := []struct {
		in    int64
		valid bool
	}{
		{0, false},
		{-3, false},
		{1, true},
		{42, true},
	}
	for _, tt := range tests {
		got := NullInt64(tt.in)
		if got.Valid != tt.valid {
			t.Errorf("NullInt64(%d).Valid = %v, want %v", tt.in, got.Valid, tt.valid)
		}
		if got.Valid && got.Int64 != tt.in {
			t.Errorf("NullInt64(%d).Int64 = %d", tt.in, got.Int64)
		}
	}
}

func TestNullInt64Value(t *testing.T) {
	if got := NullInt64Value(sql.NullInt64{}); got != 0 {
		t.Errorf("expected 0 for null, got %d", got)
	}
	if got := NullInt64Value(sql.NullInt64{Int64: 7, Valid: true}); got != 7 {
		t.Errorf("expected 7, got %d", got)
	}
}
