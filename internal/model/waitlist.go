package model

import (
	"time"

	"github.com/google/uuid"
)

type WaitlistStatus string

const (
	WaitlistStatusWaiting   WaitlistStatus = "waiting"
	WaitlistStatusBooked    WaitlistStatus = "booked"
	WaitlistStatusCancelled WaitlistStatus = "cancelled"
	WaitlistStatusExpired   WaitlistStatus = "expired"
)

// WaitlistEntry holds a patient wanting a slot that is currently full. At
// most one waiting entry may exist per (patient, doctor, preferred date).
// ExpiresAt is reserved for a future expiry policy; nothing sweeps it.
type WaitlistEntry struct {
	Base
	HospitalID    uuid.UUID      `db:"hospital_id" json:"hospital_id"`
	PatientID     uuid.UUID      `db:"patient_id" json:"patient_id"`
	DoctorID      uuid.UUID      `db:"doctor_id" json:"doctor_id"`
	PreferredDate time.Time      `db:"preferred_date" json:"preferred_date"`
	PreferredTime *string        `db:"preferred_time" json:"preferred_time,omitempty"`
	Priority      Priority       `db:"priority" json:"priority"`
	Status        WaitlistStatus `db:"status" json:"status"`
	Position      int            `db:"position" json:"position"`
	Complaint     string         `db:"chief_complaint" json:"chief_complaint,omitempty"`
	AppointmentID *uuid.UUID     `db:"appointment_id" json:"appointment_id,omitempty"`
	ExpiresAt     *time.Time     `db:"expires_at" json:"expires_at,omitempty"`
}

type AddWaitlistRequest struct {
	PatientID      uuid.UUID `json:"patient_id" binding:"required"`
	DoctorID       uuid.UUID `json:"doctor_id" binding:"required"`
	PreferredDate  string    `json:"preferred_date" binding:"required,dateonly"`
	PreferredTime  *string   `json:"preferred_time" binding:"omitempty,clock"`
	Priority       Priority  `json:"priority"`
	ChiefComplaint string    `json:"chief_complaint" binding:"max=1000"`
}

type WaitlistFilters struct {
	DoctorID  *uuid.UUID
	PatientID *uuid.UUID
	Status    WaitlistStatus
	Date      *time.Time
	Pagination
}

// PromotionResult is the outcome of converting a waitlist entry into a real
// appointment plus queue entry.
type PromotionResult struct {
	Entry       *WaitlistEntry `json:"waitlist_entry"`
	Appointment *Appointment   `json:"appointment"`
	QueueEntry  *QueueEntry    `json:"queue_entry"`
}
