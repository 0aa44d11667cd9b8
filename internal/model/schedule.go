package model

import (
	"time"

	"github.com/google/uuid"
)

// ScheduleRule is one recurring weekly availability window for a doctor.
// A doctor typically has one rule per weekday, or several for split shifts.
type ScheduleRule struct {
	Base
	DoctorID            uuid.UUID  `db:"doctor_id" json:"doctor_id"`
	DayOfWeek           int        `db:"day_of_week" json:"day_of_week"`
	ShiftName           string     `db:"shift_name" json:"shift_name"`
	StartTime           string     `db:"start_time" json:"start_time"`
	EndTime             string     `db:"end_time" json:"end_time"`
	BreakStartTime      *string    `db:"break_start_time" json:"break_start_time,omitempty"`
	BreakEndTime        *string    `db:"break_end_time" json:"break_end_time,omitempty"`
	SlotDurationMinutes int        `db:"slot_duration_minutes" json:"slot_duration_minutes"`
	MaxPatientsPerSlot  int        `db:"max_patients_per_slot" json:"max_patients_per_slot"`
	IsActive            bool       `db:"is_active" json:"is_active"`
	EffectiveFrom       time.Time  `db:"effective_from" json:"effective_from"`
	EffectiveTo         *time.Time `db:"effective_to" json:"effective_to,omitempty"`
}

// CoversDate reports whether the rule's effective range contains d.
func (r *ScheduleRule) CoversDate(d time.Time) bool {
	day := d.Truncate(24 * time.Hour)
	if day.Before(r.EffectiveFrom.Truncate(24 * time.Hour)) {
		return false
	}
	if r.EffectiveTo != nil && day.After(r.EffectiveTo.Truncate(24*time.Hour)) {
		return false
	}
	return true
}

type LeaveType string

const (
	LeaveFullDay   LeaveType = "full_day"
	LeaveMorning   LeaveType = "morning"
	LeaveAfternoon LeaveType = "afternoon"
)

type LeaveStatus string

const (
	LeavePending  LeaveStatus = "pending"
	LeaveApproved LeaveStatus = "approved"
	LeaveRejected LeaveStatus = "rejected"
)

// LeaveRecord marks a doctor unavailable for a calendar date. Only approved
// records affect availability.
type LeaveRecord struct {
	ID         uuid.UUID   `db:"id" json:"id"`
	DoctorID   uuid.UUID   `db:"doctor_id" json:"doctor_id"`
	LeaveDate  time.Time   `db:"leave_date" json:"leave_date"`
	LeaveType  LeaveType   `db:"leave_type" json:"leave_type"`
	Reason     string      `db:"reason" json:"reason,omitempty"`
	Status     LeaveStatus `db:"status" json:"status"`
	ApprovedBy *uuid.UUID  `db:"approved_by" json:"approved_by,omitempty"`
	CreatedAt  time.Time   `db:"created_at" json:"created_at"`
}

// Slot is a discrete bookable time point derived from a schedule rule.
type Slot struct {
	Time            string `json:"time"`
	Available       bool   `json:"available"`
	CurrentBookings int    `json:"current_bookings"`
	MaxBookings     int    `json:"max_bookings"`
}

type CreateScheduleRuleRequest struct {
	DoctorID            uuid.UUID `json:"doctor_id" binding:"required"`
	DayOfWeek           *int      `json:"day_of_week" binding:"required"`
	ShiftName           string    `json:"shift_name"`
	StartTime           string    `json:"start_time" binding:"required,clock"`
	EndTime             string    `json:"end_time" binding:"required,clock"`
	BreakStartTime      *string   `json:"break_start_time" binding:"omitempty,clock"`
	BreakEndTime        *string   `json:"break_end_time" binding:"omitempty,clock"`
	SlotDurationMinutes int       `json:"slot_duration_minutes"`
	MaxPatientsPerSlot  int       `json:"max_patients_per_slot"`
	EffectiveFrom       string    `json:"effective_from" binding:"required,dateonly"`
	EffectiveTo         *string   `json:"effective_to"`
}

type UpdateScheduleRuleRequest struct {
	StartTime           *string `json:"start_time"`
	EndTime             *string `json:"end_time"`
	BreakStartTime      *string `json:"break_start_time"`
	BreakEndTime        *string `json:"break_end_time"`
	SlotDurationMinutes *int    `json:"slot_duration_minutes"`
	MaxPatientsPerSlot  *int    `json:"max_patients_per_slot"`
	IsActive            *bool   `json:"is_active"`
	EffectiveTo         *string `json:"effective_to"`
}

type CreateLeaveRequest struct {
	DoctorID  uuid.UUID `json:"doctor_id" binding:"required"`
	LeaveDate string    `json:"leave_date" binding:"required,dateonly"`
	LeaveType LeaveType `json:"leave_type"`
	Reason    string    `json:"reason" binding:"max=255"`
}
