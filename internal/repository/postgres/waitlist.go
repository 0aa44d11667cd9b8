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

const waitlistColumns = `
	id, hospital_id, patient_id, doctor_id, preferred_date, preferred_time,
	priority, status, position, chief_complaint, appointment_id, expires_at,
	created_at, updated_at`

func (r *waitlistRepository) Create(ctx context.Context, entry *model.WaitlistEntry) error {
	now := time.Now()
	entry.ID = uuid.New()
	entry.CreatedAt = now
	entry.UpdatedAt = now

	query := `
		INSERT INTO waitlist_entries (` + waitlistColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err := r.db.ExecContext(ctx, query,
		entry.ID, entry.HospitalID, entry.PatientID, entry.DoctorID,
		entry.PreferredDate, entry.PreferredTime, entry.Priority, entry.Status,
		entry.Position, entry.Complaint, entry.AppointmentID, entry.ExpiresAt,
		entry.CreatedAt, entry.UpdatedAt,
	)
	if err != nil {
		// Partial unique index on (patient_id, doctor_id, preferred_date)
		// WHERE status = 'waiting' enforces the single-active invariant.
		if isUniqueViolation(err) {
			return apperrors.Conflict("patient is already waitlisted for this doctor and date", err)
		}
		return fmt.Errorf("failed to create waitlist entry: %w", err)
	}
	return nil
}

func (r *waitlistRepository) Get(ctx context.Context, id uuid.UUID) (*model.WaitlistEntry, error) {
	query := `SELECT ` + waitlistColumns + ` FROM waitlist_entries WHERE id = $1`

	var entry model.WaitlistEntry
	err := r.db.GetContext(ctx, &entry, query, id)
	if err != nil {
		if isNoRows(err) {
			return nil, apperrors.NotFound("waitlist entry", err)
		}
		return nil, fmt.Errorf("failed to get waitlist entry: %w", err)
	}
	return &entry, nil
}

func (r *waitlistRepository) Update(ctx context.Context, entry *model.WaitlistEntry) error {
	entry.UpdatedAt = time.Now()

	query := `
		UPDATE waitlist_entries
		SET status = $1, position = $2, appointment_id = $3, expires_at = $4,
			updated_at = $5
		WHERE id = $6
	`
	result, err := r.db.ExecContext(ctx, query,
		entry.Status, entry.Position, entry.AppointmentID, entry.ExpiresAt,
		entry.UpdatedAt, entry.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update waitlist entry: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return apperrors.NotFound("waitlist entry", nil)
	}
	return nil
}

func (r *waitlistRepository) List(ctx context.Context, filters *model.WaitlistFilters) ([]*model.WaitlistEntry, int64, error) {
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
	if filters.Date != nil {
		where += fmt.Sprintf(" AND preferred_date = $%d", argCount)
		args = append(args, *filters.Date)
		argCount++
	}

	var total int64
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM waitlist_entries"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count waitlist entries: %w", err)
	}

	filters.Normalize()
	query := "SELECT " + waitlistColumns + " FROM waitlist_entries" + where +
		fmt.Sprintf(" ORDER BY preferred_date ASC, position ASC LIMIT $%d OFFSET $%d", argCount, argCount+1)
	args = append(args, filters.PageSize, filters.Offset())

	var entries []*model.WaitlistEntry
	if err := r.db.SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list waitlist entries: %w", err)
	}
	return entries, total, nil
}

func (r *waitlistRepository) ActiveExists(ctx context.Context, patientID, doctorID uuid.UUID, preferredDate time.Time) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM waitlist_entries
			WHERE patient_id = $1 AND doctor_id = $2
			AND preferred_date = $3 AND status = 'waiting'
		)
	`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, patientID, doctorID, preferredDate); err != nil {
		return false, fmt.Errorf("failed to check waitlist: %w", err)
	}
	return exists, nil
}

func (r *waitlistRepository) CountWaiting(ctx context.Context, doctorID uuid.UUID, preferredDate time.Time) (int, error) {
	query := `
		SELECT COUNT(*) FROM waitlist_entries
		WHERE doctor_id = $1 AND preferred_date = $2 AND status = 'waiting'
	`
	var count int
	if err := r.db.GetContext(ctx, &count, query, doctorID, preferredDate); err != nil {
		return 0, fmt.Errorf("failed to count waitlist entries: %w", err)
	}
	return count, nil
}

// Promote performs the three-step promotion as one transaction: create the
// appointment (plus its initial status event), allocate a queue entry, and
// compare-and-set the waitlist entry from waiting to booked. A concurrent or
// repeated promotion loses the compare-and-set and rolls everything back.
func (r *waitlistRepository) Promote(ctx context.Context, entry *model.WaitlistEntry, appt *model.Appointment, event *model.AppointmentStatusEvent, queueEntry *model.QueueEntry) error {
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

		if err := lockQueueTx(ctx, tx, queueEntry.DoctorID, queueEntry.QueueDate); err != nil {
			return err
		}
		queueEntry.AppointmentID = appt.ID
		if err := allocateQueueEntryTx(ctx, tx, queueEntry); err != nil {
			return err
		}

		result, err := tx.ExecContext(ctx, `
			UPDATE waitlist_entries
			SET status = $1, appointment_id = $2, updated_at = $3
			WHERE id = $4 AND status = 'waiting'
		`, model.WaitlistStatusBooked, appt.ID, now, entry.ID)
		if err != nil {
			return err
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if rows == 0 {
			return apperrors.StatePrecondition("waitlist entry is no longer waiting", nil)
		}

		entry.Status = model.WaitlistStatusBooked
		entry.AppointmentID = &appt.ID
		entry.UpdatedAt = now
		return nil
	})
	if err != nil {
		if apperrors.IsCode(err, apperrors.ErrStatePrecondition) {
			return err
		}
		if isUniqueViolation(err) {
			return apperrors.Conflict("promotion collided with a concurrent booking", err)
		}
		return fmt.Errorf("failed to promote waitlist entry: %w", err)
	}
	return nil
}
