package postgres

import (
	"context"
	"fmt"

	"github.com/medicore/clinic-api/internal/repository"
)

// NextValue increments and returns the counter for the key. The upsert is a
// single statement, so concurrent callers serialize on the row and never see
// the same value. Missing rows are created starting at 1.
func (r *sequenceRepository) NextValue(ctx context.Context, key repository.SequenceKey) (int, error) {
	query := `
		INSERT INTO sequence_counters (
			hospital_code, entity_kind, category_code, year_code, month_code,
			last_value, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, 1, NOW(), NOW())
		ON CONFLICT (hospital_code, entity_kind, category_code, year_code, month_code)
		DO UPDATE SET last_value = sequence_counters.last_value + 1, updated_at = NOW()
		RETURNING last_value
	`
	var value int
	err := r.db.GetContext(ctx, &value, query,
		key.HospitalCode,
		key.EntityKind,
		key.CategoryCode,
		key.YearCode,
		key.MonthCode,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to advance sequence counter: %w", err)
	}
	return value, nil
}
