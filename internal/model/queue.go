package model

import (
	"time"

	"github.com/google/uuid"
)

type QueueStatus string

const (
	QueueStatusWaiting        QueueStatus = "waiting"
	QueueStatusCalled         QueueStatus = "called"
	QueueStatusInConsultation QueueStatus = "in_consultation"
	QueueStatusCompleted      QueueStatus = "completed"
	QueueStatusSkipped        QueueStatus = "skipped"
)

func (s QueueStatus) IsTerminal() bool {
	return s == QueueStatusCompleted || s == QueueStatusSkipped
}

// QueueEntry is one walk-in's place in a doctor's same-day queue.
// (doctor, date, queue number) is unique.
type QueueEntry struct {
	Base
	AppointmentID uuid.UUID   `db:"appointment_id" json:"appointment_id"`
	DoctorID      uuid.UUID   `db:"doctor_id" json:"doctor_id"`
	QueueDate     time.Time   `db:"queue_date" json:"queue_date"`
	QueueNumber   int         `db:"queue_number" json:"queue_number"`
	Position      int         `db:"position" json:"position"`
	Status        QueueStatus `db:"status" json:"status"`
	CalledAt      *time.Time  `db:"called_at" json:"called_at,omitempty"`
}

// QueueDisplayItem is a queue entry joined with its appointment for board
// display, ordered by priority tier then queue number.
type QueueDisplayItem struct {
	QueueEntry
	Priority      Priority          `db:"priority" json:"priority"`
	ApptStatus    AppointmentStatus `db:"appointment_status" json:"appointment_status"`
	PatientID     uuid.UUID         `db:"patient_id" json:"patient_id"`
	PatientName   string            `db:"patient_name" json:"patient_name"`
	ApptNumber    string            `db:"appointment_number" json:"appointment_number"`
	ChiefComplain string            `db:"chief_complaint" json:"chief_complaint,omitempty"`
}

// QueueSummary is the live overview for one doctor's queue on a date.
type QueueSummary struct {
	DoctorID       uuid.UUID          `json:"doctor_id"`
	QueueDate      string             `json:"queue_date"`
	TotalWaiting   int                `json:"total_waiting"`
	InConsultation int                `json:"total_in_consultation"`
	CompletedToday int                `json:"total_completed_today"`
	Items          []QueueDisplayItem `json:"items"`
}

type RegisterWalkInRequest struct {
	PatientID      uuid.UUID  `json:"patient_id" binding:"required"`
	DoctorID       *uuid.UUID `json:"doctor_id"`
	Priority       Priority   `json:"priority"`
	ChiefComplaint string     `json:"chief_complaint" binding:"max=1000"`
}

// WalkInResult is the outcome of a walk-in registration: an appointment and,
// when a doctor was assigned and capacity allowed, a queue entry. When the
// doctor's day is full the request lands on the waitlist instead.
type WalkInResult struct {
	Appointment   *Appointment   `json:"appointment,omitempty"`
	QueueEntry    *QueueEntry    `json:"queue_entry,omitempty"`
	WaitlistEntry *WaitlistEntry `json:"waitlist_entry,omitempty"`
	Waitlisted    bool           `json:"waitlisted"`
}

type AssignDoctorRequest struct {
	DoctorID uuid.UUID `json:"doctor_id" binding:"required"`
}
