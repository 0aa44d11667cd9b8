package model

import (
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	AppointmentStatusScheduled   AppointmentStatus = "scheduled"
	AppointmentStatusConfirmed   AppointmentStatus = "confirmed"
	AppointmentStatusInProgress  AppointmentStatus = "in-progress"
	AppointmentStatusCompleted   AppointmentStatus = "completed"
	AppointmentStatusCancelled   AppointmentStatus = "cancelled"
	AppointmentStatusRescheduled AppointmentStatus = "rescheduled"
	AppointmentStatusNoShow      AppointmentStatus = "no-show"
)

// IsTerminal reports whether no further transitions are allowed.
func (s AppointmentStatus) IsTerminal() bool {
	switch s {
	case AppointmentStatusCompleted, AppointmentStatusCancelled, AppointmentStatusNoShow:
		return true
	}
	return false
}

type AppointmentType string

const (
	AppointmentTypeScheduled AppointmentType = "scheduled"
	AppointmentTypeWalkIn    AppointmentType = "walk-in"
)

type Priority string

const (
	PriorityNormal    Priority = "normal"
	PriorityUrgent    Priority = "urgent"
	PriorityEmergency Priority = "emergency"
)

// Tier returns the queue sort tier: emergency ahead of urgent ahead of normal.
func (p Priority) Tier() int {
	switch p {
	case PriorityEmergency:
		return 0
	case PriorityUrgent:
		return 1
	default:
		return 2
	}
}

func (p Priority) Valid() bool {
	switch p {
	case PriorityNormal, PriorityUrgent, PriorityEmergency:
		return true
	}
	return false
}

// Appointment is the booking record. The appointment number is immutable and
// globally unique; every status change is mirrored by an
// AppointmentStatusEvent row.
type Appointment struct {
	Base
	HospitalID        uuid.UUID         `db:"hospital_id" json:"hospital_id"`
	AppointmentNumber string            `db:"appointment_number" json:"appointment_number"`
	PatientID         uuid.UUID         `db:"patient_id" json:"patient_id"`
	DoctorID          *uuid.UUID        `db:"doctor_id" json:"doctor_id,omitempty"`
	Date              time.Time         `db:"appointment_date" json:"appointment_date"`
	StartTime         *string           `db:"start_time" json:"start_time,omitempty"`
	EndTime           *string           `db:"end_time" json:"end_time,omitempty"`
	Type              AppointmentType   `db:"appointment_type" json:"appointment_type"`
	Priority          Priority          `db:"priority" json:"priority"`
	Status            AppointmentStatus `db:"status" json:"status"`
	ChiefComplaint    string            `db:"chief_complaint" json:"chief_complaint,omitempty"`
	CancelReason      *string           `db:"cancel_reason" json:"cancel_reason,omitempty"`
	RescheduleReason  *string           `db:"reschedule_reason" json:"reschedule_reason,omitempty"`
	RescheduleCount   int               `db:"reschedule_count" json:"reschedule_count"`
	CheckInAt         *time.Time        `db:"check_in_at" json:"check_in_at,omitempty"`
	ConsultStartAt    *time.Time        `db:"consultation_start_at" json:"consultation_start_at,omitempty"`
	ConsultEndAt      *time.Time        `db:"consultation_end_at" json:"consultation_end_at,omitempty"`
	CancelledBy       *uuid.UUID        `db:"cancelled_by" json:"cancelled_by,omitempty"`
	CancelledAt       *time.Time        `db:"cancelled_at" json:"cancelled_at,omitempty"`
	CreatedBy         uuid.UUID         `db:"created_by" json:"created_by"`
}

// AppointmentStatusEvent is the append-only audit trail for appointment
// status transitions. Rows are never updated or deleted.
type AppointmentStatusEvent struct {
	ID            uuid.UUID          `db:"id" json:"id"`
	AppointmentID uuid.UUID          `db:"appointment_id" json:"appointment_id"`
	FromStatus    *AppointmentStatus `db:"from_status" json:"from_status,omitempty"`
	ToStatus      AppointmentStatus  `db:"to_status" json:"to_status"`
	ChangedBy     uuid.UUID          `db:"changed_by" json:"changed_by"`
	Note          string             `db:"note" json:"note,omitempty"`
	CreatedAt     time.Time          `db:"created_at" json:"created_at"`
}

type CreateAppointmentRequest struct {
	PatientID      uuid.UUID  `json:"patient_id" binding:"required"`
	DoctorID       *uuid.UUID `json:"doctor_id"`
	Date           string     `json:"appointment_date" binding:"required,dateonly"`
	StartTime      *string    `json:"start_time" binding:"omitempty,clock"`
	Priority       Priority   `json:"priority"`
	ChiefComplaint string     `json:"chief_complaint" binding:"max=1000"`
}

type UpdateStatusRequest struct {
	Status AppointmentStatus `json:"status" binding:"required"`
	Note   string            `json:"note" binding:"max=500"`
}

type CancelAppointmentRequest struct {
	Reason string `json:"reason" binding:"max=255"`
}

type RescheduleAppointmentRequest struct {
	Date      string  `json:"appointment_date" binding:"required,dateonly"`
	StartTime string  `json:"start_time" binding:"required,clock"`
	Reason    *string `json:"reason"`
}

type AppointmentFilters struct {
	DoctorID  *uuid.UUID
	PatientID *uuid.UUID
	Status    AppointmentStatus
	Type      AppointmentType
	DateFrom  *time.Time
	DateTo    *time.Time
	Search    string
	Pagination
}

// AppointmentStats is the aggregate summary over a filtered appointment set.
type AppointmentStats struct {
	Total            int     `json:"total_appointments"`
	Scheduled        int     `json:"total_scheduled"`
	WalkIns          int     `json:"total_walk_ins"`
	Completed        int     `json:"total_completed"`
	Cancelled        int     `json:"total_cancelled"`
	NoShows          int     `json:"total_no_shows"`
	Pending          int     `json:"total_pending"`
	CompletionRate   float64 `json:"completion_rate"`
	CancellationRate float64 `json:"cancellation_rate"`
	NoShowRate       float64 `json:"no_show_rate"`
}
