package model

import "time"

// SequenceCounter is one monotonic counter row for the 12-character
// identifier scheme, keyed by (hospital, entity kind, category, year, month).
// Rows are created lazily and mutated only by an atomic increment-and-read.
type SequenceCounter struct {
	HospitalCode string    `db:"hospital_code" json:"hospital_code"`
	EntityKind   string    `db:"entity_kind" json:"entity_kind"`
	CategoryCode string    `db:"category_code" json:"category_code"`
	YearCode     string    `db:"year_code" json:"year_code"`
	MonthCode    string    `db:"month_code" json:"month_code"`
	LastValue    int       `db:"last_value" json:"last_value"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}
