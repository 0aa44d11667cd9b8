package model

import (
	"github.com/google/uuid"
)

// Patient and doctor records are owned elsewhere; the scheduling core reads
// them by id only.

type PatientRef struct {
	ID            uuid.UUID `db:"id" json:"id"`
	PatientNumber string    `db:"patient_number" json:"patient_number"`
	FullName      string    `db:"full_name" json:"full_name"`
	Gender        string    `db:"gender" json:"gender"`
	Email         *string   `db:"email" json:"email,omitempty"`
}

type DoctorRef struct {
	ID              uuid.UUID `db:"id" json:"id"`
	HospitalID      uuid.UUID `db:"hospital_id" json:"hospital_id"`
	FullName        string    `db:"full_name" json:"full_name"`
	Specialization  string    `db:"specialization" json:"specialization"`
	ConsultationFee float64   `db:"consultation_fee" json:"consultation_fee"`
	IsActive        bool      `db:"is_active" json:"is_active"`
}

// HospitalSettings is the configuration snapshot resolved once at the
// request boundary and passed into operations explicitly.
type HospitalSettings struct {
	HospitalID          uuid.UUID `db:"hospital_id" json:"hospital_id"`
	HospitalCode        string    `db:"hospital_code" json:"hospital_code"`
	AutoConfirm         bool      `db:"auto_confirm" json:"auto_confirm"`
	DefaultSlotMinutes  int       `db:"default_slot_minutes" json:"default_slot_minutes"`
	WalkInAllowed       bool      `db:"walk_in_allowed" json:"walk_in_allowed"`
	PastBookingGraceHrs int       `db:"past_booking_grace_hours" json:"past_booking_grace_hours"`
}
