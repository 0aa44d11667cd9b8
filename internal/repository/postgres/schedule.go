package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/medicore/clinic-api/internal/model"
	apperrors "github.com/medicore/clinic-api/pkg/errors"
)

const scheduleRuleColumns = `
	id, doctor_id, day_of_week, shift_name, start_time, end_time,
	break_start_time, break_end_time, slot_duration_minutes,
	max_patients_per_slot, is_active, effective_from, effective_to,
	created_at, updated_at`

func (r *scheduleRepository) CreateRule(ctx context.Context, rule *model.ScheduleRule) error {
	now := time.Now()
	rule.ID = uuid.New()
	rule.CreatedAt = now
	rule.UpdatedAt = now

	query := `
		INSERT INTO schedule_rules (` + scheduleRuleColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	_, err := r.db.ExecContext(ctx, query,
		rule.ID, rule.DoctorID, rule.DayOfWeek, rule.ShiftName,
		rule.StartTime, rule.EndTime, rule.BreakStartTime, rule.BreakEndTime,
		rule.SlotDurationMinutes, rule.MaxPatientsPerSlot, rule.IsActive,
		rule.EffectiveFrom, rule.EffectiveTo, rule.CreatedAt, rule.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.Conflict("schedule rule already exists for this shift", err)
		}
		return fmt.Errorf("failed to create schedule rule: %w", err)
	}
	return nil
}

func (r *scheduleRepository) GetRule(ctx context.Context, id uuid.UUID) (*model.ScheduleRule, error) {
	query := `SELECT ` + scheduleRuleColumns + ` FROM schedule_rules WHERE id = $1`

	var rule model.ScheduleRule
	err := r.db.GetContext(ctx, &rule, query, id)
	if err != nil {
		if isNoRows(err) {
			return nil, apperrors.NotFound("schedule rule", err)
		}
		return nil, fmt.Errorf("failed to get schedule rule: %w", err)
	}
	return &rule, nil
}

func (r *scheduleRepository) UpdateRule(ctx context.Context, rule *model.ScheduleRule) error {
	rule.UpdatedAt = time.Now()

	query := `
		UPDATE schedule_rules
		SET start_time = $1, end_time = $2, break_start_time = $3,
			break_end_time = $4, slot_duration_minutes = $5,
			max_patients_per_slot = $6, is_active = $7, effective_to = $8,
			updated_at = $9
		WHERE id = $10
	`
	result, err := r.db.ExecContext(ctx, query,
		rule.StartTime, rule.EndTime, rule.BreakStartTime, rule.BreakEndTime,
		rule.SlotDurationMinutes, rule.MaxPatientsPerSlot, rule.IsActive,
		rule.EffectiveTo, rule.UpdatedAt, rule.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update schedule rule: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return apperrors.NotFound("schedule rule", nil)
	}
	return nil
}

func (r *scheduleRepository) DeleteRule(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM schedule_rules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete schedule rule: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return apperrors.NotFound("schedule rule", nil)
	}
	return nil
}

func (r *scheduleRepository) ListRules(ctx context.Context, doctorID uuid.UUID, activeOnly bool) ([]*model.ScheduleRule, error) {
	query := `SELECT ` + scheduleRuleColumns + ` FROM schedule_rules WHERE doctor_id = $1`
	if activeOnly {
		query += " AND is_active = true"
	}
	query += " ORDER BY day_of_week ASC, start_time ASC"

	var rules []*model.ScheduleRule
	if err := r.db.SelectContext(ctx, &rules, query, doctorID); err != nil {
		return nil, fmt.Errorf("failed to list schedule rules: %w", err)
	}
	return rules, nil
}

func (r *scheduleRepository) ListRulesForDate(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]*model.ScheduleRule, error) {
	query := `
		SELECT ` + scheduleRuleColumns + `
		FROM schedule_rules
		WHERE doctor_id = $1
		AND day_of_week = $2
		AND is_active = true
		AND effective_from <= $3
		AND (effective_to IS NULL OR effective_to >= $3)
		ORDER BY start_time ASC
	`
	var rules []*model.ScheduleRule
	err := r.db.SelectContext(ctx, &rules, query, doctorID, int(date.Weekday()), date)
	if err != nil {
		return nil, fmt.Errorf("failed to list schedule rules for date: %w", err)
	}
	return rules, nil
}

func (r *scheduleRepository) CreateLeave(ctx context.Context, leave *model.LeaveRecord) error {
	leave.ID = uuid.New()
	leave.CreatedAt = time.Now()

	query := `
		INSERT INTO leave_records (
			id, doctor_id, leave_date, leave_type, reason, status,
			approved_by, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.ExecContext(ctx, query,
		leave.ID, leave.DoctorID, leave.LeaveDate, leave.LeaveType,
		leave.Reason, leave.Status, leave.ApprovedBy, leave.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.Conflict("leave record already exists for this date", err)
		}
		return fmt.Errorf("failed to create leave record: %w", err)
	}
	return nil
}

func (r *scheduleRepository) DeleteLeave(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM leave_records WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete leave record: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return apperrors.NotFound("leave record", nil)
	}
	return nil
}

func (r *scheduleRepository) ListLeaves(ctx context.Context, doctorID uuid.UUID) ([]*model.LeaveRecord, error) {
	query := `
		SELECT id, doctor_id, leave_date, leave_type, reason, status,
			approved_by, created_at
		FROM leave_records
		WHERE doctor_id = $1
		ORDER BY leave_date DESC
	`
	var leaves []*model.LeaveRecord
	if err := r.db.SelectContext(ctx, &leaves, query, doctorID); err != nil {
		return nil, fmt.Errorf("failed to list leave records: %w", err)
	}
	return leaves, nil
}

func (r *scheduleRepository) ApprovedLeave(ctx context.Context, doctorID uuid.UUID, date time.Time) (*model.LeaveRecord, error) {
	query := `
		SELECT id, doctor_id, leave_date, leave_type, reason, status,
			approved_by, created_at
		FROM leave_records
		WHERE doctor_id = $1
		AND leave_date = $2
		AND status = 'approved'
		LIMIT 1
	`
	var leave model.LeaveRecord
	err := r.db.GetContext(ctx, &leave, query, doctorID, date)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to check leave records: %w", err)
	}
	return &leave, nil
}
