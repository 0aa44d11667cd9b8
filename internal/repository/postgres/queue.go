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

const queueEntryColumns = `
	id, appointment_id, doctor_id, queue_date, queue_number, position,
	status, called_at, created_at, updated_at`

// lockQueueTx takes a transaction-scoped advisory lock on (doctor, date) so
// the MAX/COUNT reads and the insert that follows are serialized against
// concurrent allocations for the same queue. The unique constraint on
// (doctor_id, queue_date, queue_number) backstops the lock.
func lockQueueTx(ctx context.Context, tx *sqlx.Tx, doctorID uuid.UUID, date time.Time) error {
	key := fmt.Sprintf("queue:%s:%s", doctorID, date.Format("2006-01-02"))
	_, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key)
	return err
}

// allocateQueueEntryTx computes queue number and position for (doctor, date)
// and inserts the entry. Callers must run it inside a transaction holding
// the queue advisory lock.
func allocateQueueEntryTx(ctx context.Context, tx *sqlx.Tx, entry *model.QueueEntry) error {
	var queueNumber int
	err := tx.GetContext(ctx, &queueNumber, `
		SELECT COALESCE(MAX(queue_number), 0) + 1
		FROM queue_entries
		WHERE doctor_id = $1 AND queue_date = $2
	`, entry.DoctorID, entry.QueueDate)
	if err != nil {
		return err
	}

	var position int
	err = tx.GetContext(ctx, &position, `
		SELECT COUNT(*) + 1
		FROM queue_entries
		WHERE doctor_id = $1 AND queue_date = $2
		AND status IN ('waiting', 'called')
	`, entry.DoctorID, entry.QueueDate)
	if err != nil {
		return err
	}

	now := time.Now()
	entry.ID = uuid.New()
	entry.QueueNumber = queueNumber
	entry.Position = position
	entry.Status = model.QueueStatusWaiting
	entry.CreatedAt = now
	entry.UpdatedAt = now

	_, err = tx.ExecContext(ctx, `
		INSERT INTO queue_entries (`+queueEntryColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		entry.ID, entry.AppointmentID, entry.DoctorID, entry.QueueDate,
		entry.QueueNumber, entry.Position, entry.Status, entry.CalledAt,
		entry.CreatedAt, entry.UpdatedAt,
	)
	return err
}

func (r *queueRepository) CreateWalkIn(ctx context.Context, appt *model.Appointment, event *model.AppointmentStatusEvent, entry *model.QueueEntry) error {
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
		if err := insertStatusEventTx(ctx, tx, event); err != nil {
			return err
		}
		if err := lockQueueTx(ctx, tx, entry.DoctorID, entry.QueueDate); err != nil {
			return err
		}
		entry.AppointmentID = appt.ID
		return allocateQueueEntryTx(ctx, tx, entry)
	})
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.Conflict("walk-in registration collided with a concurrent booking", err)
		}
		return fmt.Errorf("failed to register walk-in: %w", err)
	}
	return nil
}

func (r *queueRepository) Allocate(ctx context.Context, entry *model.QueueEntry) error {
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if err := lockQueueTx(ctx, tx, entry.DoctorID, entry.QueueDate); err != nil {
			return err
		}
		return allocateQueueEntryTx(ctx, tx, entry)
	})
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.Conflict("queue number already taken", err)
		}
		return fmt.Errorf("failed to allocate queue entry: %w", err)
	}
	return nil
}

func (r *queueRepository) Reassign(ctx context.Context, appointmentID uuid.UUID, entry *model.QueueEntry) error {
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM queue_entries WHERE appointment_id = $1`, appointmentID,
		); err != nil {
			return err
		}
		if err := lockQueueTx(ctx, tx, entry.DoctorID, entry.QueueDate); err != nil {
			return err
		}
		return allocateQueueEntryTx(ctx, tx, entry)
	})
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.Conflict("queue number already taken", err)
		}
		return fmt.Errorf("failed to reassign queue entry: %w", err)
	}
	return nil
}

func (r *queueRepository) Get(ctx context.Context, id uuid.UUID) (*model.QueueEntry, error) {
	query := `SELECT ` + queueEntryColumns + ` FROM queue_entries WHERE id = $1`

	var entry model.QueueEntry
	err := r.db.GetContext(ctx, &entry, query, id)
	if err != nil {
		if isNoRows(err) {
			return nil, apperrors.NotFound("queue entry", err)
		}
		return nil, fmt.Errorf("failed to get queue entry: %w", err)
	}
	return &entry, nil
}

func (r *queueRepository) GetByAppointment(ctx context.Context, appointmentID uuid.UUID) (*model.QueueEntry, error) {
	query := `SELECT ` + queueEntryColumns + ` FROM queue_entries WHERE appointment_id = $1`

	var entry model.QueueEntry
	err := r.db.GetContext(ctx, &entry, query, appointmentID)
	if err != nil {
		if isNoRows(err) {
			return nil, apperrors.NotFound("queue entry", err)
		}
		return nil, fmt.Errorf("failed to get queue entry: %w", err)
	}
	return &entry, nil
}

func (r *queueRepository) UpdateWithAppointment(ctx context.Context, entry *model.QueueEntry, appt *model.Appointment, event *model.AppointmentStatusEvent) error {
	entry.UpdatedAt = time.Now()

	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE queue_entries
			SET status = $1, called_at = $2, updated_at = $3
			WHERE id = $4
		`, entry.Status, entry.CalledAt, entry.UpdatedAt, entry.ID)
		if err != nil {
			return err
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if rows == 0 {
			return apperrors.NotFound("queue entry", nil)
		}

		if appt == nil {
			return nil
		}

		appt.UpdatedAt = entry.UpdatedAt
		if _, err := tx.ExecContext(ctx, `
			UPDATE appointments
			SET status = $1, consultation_start_at = $2,
				consultation_end_at = $3, updated_at = $4
			WHERE id = $5
		`, appt.Status, appt.ConsultStartAt, appt.ConsultEndAt, appt.UpdatedAt, appt.ID); err != nil {
			return err
		}

		event.ID = uuid.New()
		event.AppointmentID = appt.ID
		event.CreatedAt = entry.UpdatedAt
		return insertStatusEventTx(ctx, tx, event)
	})
	if err != nil {
		if apperrors.IsCode(err, apperrors.ErrNotFound) {
			return err
		}
		return fmt.Errorf("failed to update queue entry: %w", err)
	}
	return nil
}

func (r *queueRepository) CountActive(ctx context.Context, doctorID uuid.UUID, date time.Time) (int, error) {
	query := `
		SELECT COUNT(*) FROM queue_entries
		WHERE doctor_id = $1 AND queue_date = $2
		AND status IN ('waiting', 'called')
	`
	var count int
	if err := r.db.GetContext(ctx, &count, query, doctorID, date); err != nil {
		return 0, fmt.Errorf("failed to count queue entries: %w", err)
	}
	return count, nil
}

func (r *queueRepository) ListForDisplay(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]model.QueueDisplayItem, error) {
	query := `
		SELECT q.id, q.appointment_id, q.doctor_id, q.queue_date,
			q.queue_number, q.position, q.status, q.called_at,
			q.created_at, q.updated_at,
			a.priority, a.status AS appointment_status, a.patient_id,
			COALESCE(p.full_name, '') AS patient_name,
			a.appointment_number, a.chief_complaint
		FROM queue_entries q
		JOIN appointments a ON a.id = q.appointment_id
		LEFT JOIN patients p ON p.id = a.patient_id
		WHERE q.doctor_id = $1 AND q.queue_date = $2
		ORDER BY
			CASE a.priority
				WHEN 'emergency' THEN 0
				WHEN 'urgent' THEN 1
				ELSE 2
			END ASC,
			q.queue_number ASC
	`
	var items []model.QueueDisplayItem
	if err := r.db.SelectContext(ctx, &items, query, doctorID, date); err != nil {
		return nil, fmt.Errorf("failed to list queue: %w", err)
	}
	return items, nil
}
