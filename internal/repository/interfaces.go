package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/medicore/clinic-api/internal/model"
)

// SequenceKey identifies one counter row.
type SequenceKey struct {
	HospitalCode string
	EntityKind   string
	CategoryCode string
	YearCode     string
	MonthCode    string
}

// All repository interfaces in one file
type (
	// SequenceRepository owns the monotonic identifier counters. NextValue
	// must be atomic: concurrent calls for the same key never observe the
	// same value.
	SequenceRepository interface {
		NextValue(ctx context.Context, key SequenceKey) (int, error)
	}

	AppointmentRepository interface {
		// CreateWithEvent persists the appointment and its initial status
		// event in one transaction.
		CreateWithEvent(ctx context.Context, appt *model.Appointment, event *model.AppointmentStatusEvent) error
		// UpdateWithEvent persists field changes and appends a status event
		// in one transaction.
		UpdateWithEvent(ctx context.Context, appt *model.Appointment, event *model.AppointmentStatusEvent) error
		Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error)
		GetByNumber(ctx context.Context, number string) (*model.Appointment, error)
		List(ctx context.Context, filters *model.AppointmentFilters) ([]*model.Appointment, int64, error)
		// CountAtSlot counts active (non-cancelled, non-rescheduled)
		// appointments for the doctor at the exact date and time.
		CountAtSlot(ctx context.Context, doctorID uuid.UUID, date time.Time, startTime string, excludeID *uuid.UUID) (int, error)
		// CountsByTime returns active booking counts per start time for one
		// doctor and date, keyed by "HH:MM".
		CountsByTime(ctx context.Context, doctorID uuid.UUID, date time.Time) (map[string]int, error)
		ListStatusEvents(ctx context.Context, appointmentID uuid.UUID) ([]*model.AppointmentStatusEvent, error)
		Stats(ctx context.Context, filters *model.AppointmentFilters) (*model.AppointmentStats, error)
	}

	ScheduleRepository interface {
		CreateRule(ctx context.Context, rule *model.ScheduleRule) error
		GetRule(ctx context.Context, id uuid.UUID) (*model.ScheduleRule, error)
		UpdateRule(ctx context.Context, rule *model.ScheduleRule) error
		DeleteRule(ctx context.Context, id uuid.UUID) error
		ListRules(ctx context.Context, doctorID uuid.UUID, activeOnly bool) ([]*model.ScheduleRule, error)
		// ListRulesForDate returns active rules matching the date's weekday
		// whose effective range contains the date.
		ListRulesForDate(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]*model.ScheduleRule, error)
		CreateLeave(ctx context.Context, leave *model.LeaveRecord) error
		DeleteLeave(ctx context.Context, id uuid.UUID) error
		ListLeaves(ctx context.Context, doctorID uuid.UUID) ([]*model.LeaveRecord, error)
		// ApprovedLeave returns the approved leave record covering the date,
		// or nil when the doctor is available.
		ApprovedLeave(ctx context.Context, doctorID uuid.UUID, date time.Time) (*model.LeaveRecord, error)
	}

	QueueRepository interface {
		// CreateWalkIn persists the walk-in appointment, its initial status
		// event, and a freshly allocated queue entry in one transaction.
		CreateWalkIn(ctx context.Context, appt *model.Appointment, event *model.AppointmentStatusEvent, entry *model.QueueEntry) error
		// Allocate computes the next queue number (MAX+1) and position
		// (waiting/called count + 1) for (doctor, date) and inserts the
		// entry, all inside one serialized transaction.
		Allocate(ctx context.Context, entry *model.QueueEntry) error
		// Reassign removes any queue entry for the appointment and allocates
		// a fresh one at the back of the new doctor's line.
		Reassign(ctx context.Context, appointmentID uuid.UUID, entry *model.QueueEntry) error
		Get(ctx context.Context, id uuid.UUID) (*model.QueueEntry, error)
		GetByAppointment(ctx context.Context, appointmentID uuid.UUID) (*model.QueueEntry, error)
		// UpdateWithAppointment persists the queue entry transition together
		// with its appointment mutation and status event in one transaction.
		// appt and event may be nil when the appointment is untouched.
		UpdateWithAppointment(ctx context.Context, entry *model.QueueEntry, appt *model.Appointment, event *model.AppointmentStatusEvent) error
		// CountActive counts waiting and called entries for (doctor, date).
		CountActive(ctx context.Context, doctorID uuid.UUID, date time.Time) (int, error)
		// ListForDisplay returns the doctor's queue for a date ordered by
		// priority tier, then queue number.
		ListForDisplay(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]model.QueueDisplayItem, error)
	}

	WaitlistRepository interface {
		Create(ctx context.Context, entry *model.WaitlistEntry) error
		Get(ctx context.Context, id uuid.UUID) (*model.WaitlistEntry, error)
		Update(ctx context.Context, entry *model.WaitlistEntry) error
		List(ctx context.Context, filters *model.WaitlistFilters) ([]*model.WaitlistEntry, int64, error)
		// ActiveExists reports whether a waiting entry already exists for
		// (patient, doctor, preferred date).
		ActiveExists(ctx context.Context, patientID, doctorID uuid.UUID, preferredDate time.Time) (bool, error)
		CountWaiting(ctx context.Context, doctorID uuid.UUID, preferredDate time.Time) (int, error)
		// Promote flips a waiting entry to booked and creates the
		// appointment plus queue entry in a single transaction. The entry's
		// status is compare-and-set from waiting; any other state fails.
		Promote(ctx context.Context, entry *model.WaitlistEntry, appt *model.Appointment, event *model.AppointmentStatusEvent, queueEntry *model.QueueEntry) error
	}

	// PatientRepository and DoctorRepository are read-only views of records
	// owned by other systems.
	PatientRepository interface {
		Get(ctx context.Context, id uuid.UUID) (*model.PatientRef, error)
	}

	DoctorRepository interface {
		Get(ctx context.Context, id uuid.UUID) (*model.DoctorRef, error)
	}

	SettingsRepository interface {
		GetByHospital(ctx context.Context, hospitalID uuid.UUID) (*model.HospitalSettings, error)
	}
)
