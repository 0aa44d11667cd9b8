package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/medicore/clinic-api/internal/model"
	apperrors "github.com/medicore/clinic-api/pkg/errors"
)

const appointmentColumns = `
	id, hospital_id, appointment_number, patient_id, doctor_id,
	appointment_date, start_time, end_time, appointment_type, priority,
	status, chief_complaint, cancel_reason, reschedule_reason,
	reschedule_count, check_in_at, consultation_start_at,
	consultation_end_at, cancelled_by, cancelled_at, created_by,
	created_at, updated_at`

func insertAppointmentTx(ctx context.Context, tx *sqlx.Tx, appt *model.Appointment) error {
	query := `
		INSERT INTO appointments (` + appointmentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			$15, $16, $17, $18, $19, $20, $21, $22, $23)
	`
	_, err := tx.ExecContext(ctx, query,
		appt.ID, appt.HospitalID, appt.AppointmentNumber, appt.PatientID,
		appt.DoctorID, appt.Date, appt.StartTime, appt.EndTime, appt.Type,
		appt.Priority, appt.Status, appt.ChiefComplaint, appt.CancelReason,
		appt.RescheduleReason, appt.RescheduleCount, appt.CheckInAt,
		appt.ConsultStartAt, appt.ConsultEndAt, appt.CancelledBy,
		appt.CancelledAt, appt.CreatedBy, appt.CreatedAt, appt.UpdatedAt,
	)
	return err
}

func insertStatusEventTx(ctx context.Context, tx *sqlx.Tx, event *model.AppointmentStatusEvent) error {
	query := `
		INSERT INTO appointment_status_events (
			id, appointment_id, from_status, to_status, changed_by, note, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := tx.ExecContext(ctx, query,
		event.ID, event.AppointmentID, event.FromStatus, event.ToStatus,
		event.ChangedBy, event.Note, event.CreatedAt,
	)
	return err
}

func (r *appointmentRepository) CreateWithEvent(ctx context.Context, appt *model.Appointment, event *model.AppointmentStatusEvent) error {
	now := time.Now()
	appt.ID = uuid.New()
	appt.CreatedAt = now
	appt.UpdatedAt = now
	event.ID = uuid.New()
	event.AppointmentID = appt.ID
	event.CreatedAt = now

	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if err := insertAppointmentTx(ctx, tx, appt); err != nil {
			return err
		}
		return insertStatusEventTx(ctx, tx, event)
	})
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.Conflict("appointment number already exists", err)
		}
		return fmt.Errorf("failed to create appointment: %w", err)
	}
	return nil
}

func (r *appointmentRepository) UpdateWithEvent(ctx context.Context, appt *model.Appointment, event *model.AppointmentStatusEvent) error {
	now := time.Now()
	appt.UpdatedAt = now
	event.ID = uuid.New()
	event.AppointmentID = appt.ID
	event.CreatedAt = now

	query := `
		UPDATE appointments
		SET doctor_id = $1, appointment_date = $2, start_time = $3,
			end_time = $4, priority = $5, status = $6, chief_complaint = $7,
			cancel_reason = $8, reschedule_reason = $9, reschedule_count = $10,
			check_in_at = $11, consultation_start_at = $12,
			consultation_end_at = $13, cancelled_by = $14, cancelled_at = $15,
			updated_at = $16
		WHERE id = $17
	`
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		result, err := tx.ExecContext(ctx, query,
			appt.DoctorID, appt.Date, appt.StartTime, appt.EndTime,
			appt.Priority, appt.Status, appt.ChiefComplaint, appt.CancelReason,
			appt.RescheduleReason, appt.RescheduleCount, appt.CheckInAt,
			appt.ConsultStartAt, appt.ConsultEndAt, appt.CancelledBy,
			appt.CancelledAt, appt.UpdatedAt, appt.ID,
		)
		if err != nil {
			return err
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if rows == 0 {
			return apperrors.NotFound("appointment", nil)
		}
		return insertStatusEventTx(ctx, tx, event)
	})
	if err != nil {
		if apperrors.IsCode(err, apperrors.ErrNotFound) {
			return err
		}
		return fmt.Errorf("failed to update appointment: %w", err)
	}
	return nil
}

func (r *appointmentRepository) Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE id = $1`

	var appt model.Appointment
	err := r.db.GetContext(ctx, &appt, query, id)
	if err != nil {
		if isNoRows(err) {
			return nil, apperrors.NotFound("appointment", err)
		}
		return nil, fmt.Errorf("failed to get appointment: %w", err)
	}
	return &appt, nil
}

func (r *appointmentRepository) GetByNumber(ctx context.Context, number string) (*model.Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE appointment_number = $1`

	var appt model.Appointment
	err := r.db.GetContext(ctx, &appt, query, number)
	if err != nil {
		if isNoRows(err) {
			return nil, apperrors.NotFound("appointment", err)
		}
		return nil, fmt.Errorf("failed to get appointment by number: %w", err)
	}
	return &appt, nil
}

func (r *appointmentRepository) List(ctx context.Context, filters *model.AppointmentFilters) ([]*model.Appointment, int64, error) {
	where := " WHERE 1=1"
	args := []interface{}{}
	argCount := 1

	if filters.DoctorID != nil {
		where += fmt.Sprintf(" AND doctor_id = $%d", argCount)
		args = append(args, *filters.DoctorID)
		argCount++
	}
	if filters.PatientID != nil {
		where += fmt.Sprintf(" AND patient_id = $%d", argCount)
		args = append(args, *filters.PatientID)
		argCount++
	}
	if filters.Status != "" {
		where += fmt.Sprintf(" AND status = $%d", argCount)
		args = append(args, filters.Status)
		argCount++
	}
	if filters.Type != "" {
		where += fmt.Sprintf(" AND appointment_type = $%d", argCount)
		args = append(args, filters.Type)
		argCount++
	}
	if filters.DateFrom != nil {
		where += fmt.Sprintf(" AND appointment_date >= $%d", argCount)
		args = append(args, *filters.DateFrom)
		argCount++
	}
	if filters.DateTo != nil {
		where += fmt.Sprintf(" AND appointment_date <= $%d", argCount)
		args = append(args, *filters.DateTo)
		argCount++
	}
	if filters.Search != "" {
		where += fmt.Sprintf(" AND (appointment_number ILIKE $%d OR chief_complaint ILIKE $%d)", argCount, argCount)
		args = append(args, "%"+filters.Search+"%")
		argCount++
	}

	var total int64
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM appointments"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count appointments: %w", err)
	}

	filters.Normalize()
	query := "SELECT " + appointmentColumns + " FROM appointments" + where +
		fmt.Sprintf(" ORDER BY appointment_date DESC, start_time ASC NULLS LAST LIMIT $%d OFFSET $%d", argCount, argCount+1)
	args = append(args, filters.PageSize, filters.Offset())

	var appointments []*model.Appointment
	if err := r.db.SelectContext(ctx, &appointments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list appointments: %w", err)
	}
	return appointments, total, nil
}

func (r *appointmentRepository) CountAtSlot(ctx context.Context, doctorID uuid.UUID, date time.Time, startTime string, excludeID *uuid.UUID) (int, error) {
	query := `
		SELECT COUNT(*) FROM appointments
		WHERE doctor_id = $1
		AND appointment_date = $2
		AND start_time = $3
		AND status NOT IN ('cancelled', 'rescheduled')
	`
	args := []interface{}{doctorID, date, startTime}
	if excludeID != nil {
		query += " AND id != $4"
		args = append(args, *excludeID)
	}

	var count int
	if err := r.db.GetContext(ctx, &count, query, args...); err != nil {
		return 0, fmt.Errorf("failed to count slot bookings: %w", err)
	}
	return count, nil
}

func (r *appointmentRepository) CountsByTime(ctx context.Context, doctorID uuid.UUID, date time.Time) (map[string]int, error) {
	query := `
		SELECT start_time, COUNT(*) AS bookings
		FROM appointments
		WHERE doctor_id = $1
		AND appointment_date = $2
		AND start_time IS NOT NULL
		AND status NOT IN ('cancelled', 'rescheduled')
		GROUP BY start_time
	`
	rows := []struct {
		StartTime string `db:"start_time"`
		Bookings  int    `db:"bookings"`
	}{}
	if err := r.db.SelectContext(ctx, &rows, query, doctorID, date); err != nil {
		return nil, fmt.Errorf("failed to count bookings by time: %w", err)
	}

	counts := make(map[string]int, len(rows))
	for _, row := range rows {
		counts[row.StartTime] = row.Bookings
	}
	return counts, nil
}

func (r *appointmentRepository) ListStatusEvents(ctx context.Context, appointmentID uuid.UUID) ([]*model.AppointmentStatusEvent, error) {
	query := `
		SELECT id, appointment_id, from_status, to_status, changed_by, note, created_at
		FROM appointment_status_events
		WHERE appointment_id = $1
		ORDER BY created_at ASC
	`
	var events []*model.AppointmentStatusEvent
	if err := r.db.SelectContext(ctx, &events, query, appointmentID); err != nil {
		return nil, fmt.Errorf("failed to list status events: %w", err)
	}
	return events, nil
}

func (r *appointmentRepository) Stats(ctx context.Context, filters *model.AppointmentFilters) (*model.AppointmentStats, error) {
	where := " WHERE 1=1"
	args := []interface{}{}
	argCount := 1

	if filters.DoctorID != nil {
		where += fmt.Sprintf(" AND doctor_id = $%d", argCount)
		args = append(args, *filters.DoctorID)
		argCount++
	}
	if filters.DateFrom != nil {
		where += fmt.Sprintf(" AND appointment_date >= $%d", argCount)
		args = append(args, *filters.DateFrom)
		argCount++
	}
	if filters.DateTo != nil {
		where += fmt.Sprintf(" AND appointment_date <= $%d", argCount)
		args = append(args, *filters.DateTo)
		argCount++
	}

	query := `
		SELECT
			COUNT(*) AS total,
			COUNT(*) FILTER (WHERE appointment_type = 'scheduled') AS scheduled,
			COUNT(*) FILTER (WHERE appointment_type = 'walk-in') AS walk_ins,
			COUNT(*) FILTER (WHERE status = 'completed') AS completed,
			COUNT(*) FILTER (WHERE status = 'cancelled') AS cancelled,
			COUNT(*) FILTER (WHERE status = 'no-show') AS no_shows,
			COUNT(*) FILTER (WHERE status IN ('scheduled', 'confirmed')) AS pending
		FROM appointments` + where

	var row struct {
		Total     int `db:"total"`
		Scheduled int `db:"scheduled"`
		WalkIns   int `db:"walk_ins"`
		Completed int `db:"completed"`
		Cancelled int `db:"cancelled"`
		NoShows   int `db:"no_shows"`
		Pending   int `db:"pending"`
	}
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		return nil, fmt.Errorf("failed to compute appointment stats: %w", err)
	}

	stats := &model.AppointmentStats{
		Total:     row.Total,
		Scheduled: row.Scheduled,
		WalkIns:   row.WalkIns,
		Completed: row.Completed,
		Cancelled: row.Cancelled,
		NoShows:   row.NoShows,
		Pending:   row.Pending,
	}
	if row.Total > 0 {
		stats.CompletionRate = rate(row.Completed, row.Total)
		stats.CancellationRate = rate(row.Cancelled, row.Total)
		stats.NoShowRate = rate(row.NoShows, row.Total)
	}
	return stats, nil
}

func rate(part, total int) float64 {
	return float64(int(float64(part)/float64(total)*1000+0.5)) / 10
}
