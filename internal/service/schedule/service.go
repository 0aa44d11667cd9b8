// Package schedule owns doctor availability: recurring weekly schedule rules,
// leave records, and the derived bookable slot grid.
package schedule

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/medicore/clinic-api/internal/model"
	"github.com/medicore/clinic-api/internal/repository"
	"github.com/medicore/clinic-api/pkg/errors"
)

const (
	dateLayout  = "2006-01-02"
	noonMinutes = 12 * 60
)

type Service struct {
	repo     repository.ScheduleRepository
	apptRepo repository.AppointmentRepository
	now      func() time.Time
}

func NewService(repo repository.ScheduleRepository, apptRepo repository.AppointmentRepository) *Service {
	return &Service{repo: repo, apptRepo: apptRepo, now: time.Now}
}

func (s *Service) CreateRule(ctx context.Context, req *model.CreateScheduleRuleRequest) (*model.ScheduleRule, error) {
	if req.DayOfWeek == nil || *req.DayOfWeek < 0 || *req.DayOfWeek > 6 {
		return nil, errors.Validation("day_of_week must be between 0 and 6", nil)
	}
	start, err := parseClock(req.StartTime)
	if err != nil {
		return nil, errors.Validation("start_time must be HH:MM", err)
	}
	end, err := parseClock(req.EndTime)
	if err != nil {
		return nil, errors.Validation("end_time must be HH:MM", err)
	}
	if end <= start {
		return nil, errors.Validation("end_time must be after start_time", nil)
	}
	if err := validateBreak(req.BreakStartTime, req.BreakEndTime, start, end); err != nil {
		return nil, err
	}

	effectiveFrom, err := time.Parse(dateLayout, req.EffectiveFrom)
	if err != nil {
		return nil, errors.Validation("effective_from must be YYYY-MM-DD", err)
	}
	var effectiveTo *time.Time
	if req.EffectiveTo != nil {
		t, err := time.Parse(dateLayout, *req.EffectiveTo)
		if err != nil {
			return nil, errors.Validation("effective_to must be YYYY-MM-DD", err)
		}
		if t.Before(effectiveFrom) {
			return nil, errors.Validation("effective_to must not precede effective_from", nil)
		}
		effectiveTo = &t
	}

	slotMinutes := req.SlotDurationMinutes
	if slotMinutes <= 0 {
		slotMinutes = 30
	}
	maxPerSlot := req.MaxPatientsPerSlot
	if maxPerSlot <= 0 {
		maxPerSlot = 1
	}

	rule := &model.ScheduleRule{
		DoctorID:            req.DoctorID,
		DayOfWeek:           *req.DayOfWeek,
		ShiftName:           req.ShiftName,
		StartTime:           req.StartTime,
		EndTime:             req.EndTime,
		BreakStartTime:      req.BreakStartTime,
		BreakEndTime:        req.BreakEndTime,
		SlotDurationMinutes: slotMinutes,
		MaxPatientsPerSlot:  maxPerSlot,
		IsActive:            true,
		EffectiveFrom:       effectiveFrom,
		EffectiveTo:         effectiveTo,
	}
	if err := s.repo.CreateRule(ctx, rule); err != nil {
		return nil, err
	}
	return rule, nil
}

func (s *Service) UpdateRule(ctx context.Context, id uuid.UUID, req *model.UpdateScheduleRuleRequest) (*model.ScheduleRule, error) {
	rule, err := s.repo.GetRule(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.StartTime != nil {
		rule.StartTime = *req.StartTime
	}
	if req.EndTime != nil {
		rule.EndTime = *req.EndTime
	}
	if req.BreakStartTime != nil {
		rule.BreakStartTime = req.BreakStartTime
	}
	if req.BreakEndTime != nil {
		rule.BreakEndTime = req.BreakEndTime
	}
	if req.SlotDurationMinutes != nil {
		rule.SlotDurationMinutes = *req.SlotDurationMinutes
	}
	if req.MaxPatientsPerSlot != nil {
		rule.MaxPatientsPerSlot = *req.MaxPatientsPerSlot
	}
	if req.IsActive != nil {
		rule.IsActive = *req.IsActive
	}
	if req.EffectiveTo != nil {
		t, err := time.Parse(dateLayout, *req.EffectiveTo)
		if err != nil {
			return nil, errors.Validation("effective_to must be YYYY-MM-DD", err)
		}
		rule.EffectiveTo = &t
	}

	start, err := parseClock(rule.StartTime)
	if err != nil {
		return nil, errors.Validation("start_time must be HH:MM", err)
	}
	end, err := parseClock(rule.EndTime)
	if err != nil {
		return nil, errors.Validation("end_time must be HH:MM", err)
	}
	if end <= start {
		return nil, errors.Validation("end_time must be after start_time", nil)
	}
	if err := validateBreak(rule.BreakStartTime, rule.BreakEndTime, start, end); err != nil {
		return nil, err
	}
	if rule.SlotDurationMinutes <= 0 {
		return nil, errors.Validation("slot_duration_minutes must be positive", nil)
	}
	if rule.MaxPatientsPerSlot <= 0 {
		return nil, errors.Validation("max_patients_per_slot must be positive", nil)
	}

	if err := s.repo.UpdateRule(ctx, rule); err != nil {
		return nil, err
	}
	return rule, nil
}

func (s *Service) DeleteRule(ctx context.Context, id uuid.UUID) error {
	return s.repo.DeleteRule(ctx, id)
}

func (s *Service) ListRules(ctx context.Context, doctorID uuid.UUID, activeOnly bool) ([]*model.ScheduleRule, error) {
	return s.repo.ListRules(ctx, doctorID, activeOnly)
}

func (s *Service) CreateLeave(ctx context.Context, req *model.CreateLeaveRequest, approvedBy uuid.UUID) (*model.LeaveRecord, error) {
	date, err := time.Parse(dateLayout, req.LeaveDate)
	if err != nil {
		return nil, errors.Validation("leave_date must be YYYY-MM-DD", err)
	}
	leaveType := req.LeaveType
	if leaveType == "" {
		leaveType = model.LeaveFullDay
	}
	switch leaveType {
	case model.LeaveFullDay, model.LeaveMorning, model.LeaveAfternoon:
	default:
		return nil, errors.Validation("leave_type must be full_day, morning, or afternoon", nil)
	}

	leave := &model.LeaveRecord{
		DoctorID:   req.DoctorID,
		LeaveDate:  date,
		LeaveType:  leaveType,
		Reason:     req.Reason,
		Status:     model.LeaveApproved,
		ApprovedBy: &approvedBy,
	}
	if err := s.repo.CreateLeave(ctx, leave); err != nil {
		return nil, err
	}
	return leave, nil
}

func (s *Service) DeleteLeave(ctx context.Context, id uuid.UUID) error {
	return s.repo.DeleteLeave(ctx, id)
}

func (s *Service) ListLeaves(ctx context.Context, doctorID uuid.UUID) ([]*model.LeaveRecord, error) {
	return s.repo.ListLeaves(ctx, doctorID)
}

// AvailableSlots derives the bookable slot grid for a doctor and date. Each
// matching schedule rule contributes slots from start to end at its slot
// duration, minus the break window. A slot is available while its booking
// count is below the rule's per-slot capacity; on a half-day leave the
// blocked half reports as unavailable, and a full-day leave yields no slots.
func (s *Service) AvailableSlots(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]model.Slot, error) {
	leave, err := s.repo.ApprovedLeave(ctx, doctorID, date)
	if err != nil {
		return nil, err
	}
	if leave != nil && leave.LeaveType == model.LeaveFullDay {
		return []model.Slot{}, nil
	}

	rules, err := s.repo.ListRulesForDate(ctx, doctorID, date)
	if err != nil {
		return nil, err
	}
	if len(rules) == 0 {
		return []model.Slot{}, nil
	}

	counts, err := s.apptRepo.CountsByTime(ctx, doctorID, date)
	if err != nil {
		return nil, err
	}

	now := s.now()
	sameDay := date.Format(dateLayout) == now.Format(dateLayout)
	nowMinutes := now.Hour()*60 + now.Minute()

	var slots []model.Slot
	for _, rule := range rules {
		times, err := slotTimes(rule)
		if err != nil {
			return nil, err
		}

		for _, t := range times {
			clock := minutesToClock(t)
			booked := counts[clock]
			available := booked < rule.MaxPatientsPerSlot

			if leave != nil {
				if leave.LeaveType == model.LeaveMorning && t < noonMinutes {
					available = false
				}
				if leave.LeaveType == model.LeaveAfternoon && t >= noonMinutes {
					available = false
				}
			}
			if sameDay && t <= nowMinutes {
				available = false
			}

			slots = append(slots, model.Slot{
				Time:            clock,
				Available:       available,
				CurrentBookings: booked,
				MaxBookings:     rule.MaxPatientsPerSlot,
			})
		}
	}
	if slots == nil {
		return []model.Slot{}, nil
	}

	// Split shifts contribute separate runs; merge them into one ascending
	// grid, dropping duplicate times where rules overlap.
	sort.SliceStable(slots, func(i, j int) bool { return slots[i].Time < slots[j].Time })
	merged := slots[:0]
	for _, slot := range slots {
		if n := len(merged); n > 0 && merged[n-1].Time == slot.Time {
			continue
		}
		merged = append(merged, slot)
	}
	return merged, nil
}

// slotTimes walks a rule's shift in slot-duration steps and returns the
// minute marks. A step landing inside the break window jumps to the break's
// end, so slots after an unaligned break anchor on the break end rather than
// the shift start.
func slotTimes(rule *model.ScheduleRule) ([]int, error) {
	start, err := parseClock(rule.StartTime)
	if err != nil {
		return nil, fmt.Errorf("malformed rule start time %q: %w", rule.StartTime, err)
	}
	end, err := parseClock(rule.EndTime)
	if err != nil {
		return nil, fmt.Errorf("malformed rule end time %q: %w", rule.EndTime, err)
	}

	breakStart, breakEnd := -1, -1
	if rule.BreakStartTime != nil && rule.BreakEndTime != nil {
		if breakStart, err = parseClock(*rule.BreakStartTime); err != nil {
			return nil, fmt.Errorf("malformed rule break start %q: %w", *rule.BreakStartTime, err)
		}
		if breakEnd, err = parseClock(*rule.BreakEndTime); err != nil {
			return nil, fmt.Errorf("malformed rule break end %q: %w", *rule.BreakEndTime, err)
		}
	}

	var times []int
	for t := start; t+rule.SlotDurationMinutes <= end; {
		if breakStart >= 0 && t >= breakStart && t < breakEnd {
			t = breakEnd
			continue
		}
		times = append(times, t)
		t += rule.SlotDurationMinutes
	}
	return times, nil
}

// SlotCapacity validates that startTime falls on the doctor's slot grid for
// the date and returns the per-slot capacity. It fails when the doctor is on
// leave for that half of the day or the time is outside every rule window.
func (s *Service) SlotCapacity(ctx context.Context, doctorID uuid.UUID, date time.Time, startTime string) (int, error) {
	t, err := parseClock(startTime)
	if err != nil {
		return 0, errors.Validation("start_time must be HH:MM", err)
	}

	leave, err := s.repo.ApprovedLeave(ctx, doctorID, date)
	if err != nil {
		return 0, err
	}
	if leave != nil {
		switch {
		case leave.LeaveType == model.LeaveFullDay,
			leave.LeaveType == model.LeaveMorning && t < noonMinutes,
			leave.LeaveType == model.LeaveAfternoon && t >= noonMinutes:
			return 0, errors.StatePrecondition("doctor is on leave for this date", nil)
		}
	}

	rules, err := s.repo.ListRulesForDate(ctx, doctorID, date)
	if err != nil {
		return 0, err
	}
	for _, rule := range rules {
		times, err := slotTimes(rule)
		if err != nil {
			continue
		}
		// Bookings must land exactly on the slot grid.
		for _, slot := range times {
			if slot == t {
				return rule.MaxPatientsPerSlot, nil
			}
		}
	}
	return 0, errors.Validation("start_time is outside the doctor's schedule", nil)
}

// DayCapacity returns the total number of patients the doctor can see on the
// date, used to decide whether a walk-in still fits or goes to the waitlist.
func (s *Service) DayCapacity(ctx context.Context, doctorID uuid.UUID, date time.Time) (int, error) {
	slots, err := s.AvailableSlots(ctx, doctorID, date)
	if err != nil {
		return 0, err
	}
	capacity := 0
	for _, slot := range slots {
		capacity += slot.MaxBookings
	}
	return capacity, nil
}

func validateBreak(breakStart, breakEnd *string, start, end int) error {
	if breakStart == nil && breakEnd == nil {
		return nil
	}
	if breakStart == nil || breakEnd == nil {
		return errors.Validation("break start and end must be set together", nil)
	}
	bs, err := parseClock(*breakStart)
	if err != nil {
		return errors.Validation("break_start_time must be HH:MM", err)
	}
	be, err := parseClock(*breakEnd)
	if err != nil {
		return errors.Validation("break_end_time must be HH:MM", err)
	}
	if be <= bs || bs < start || be > end {
		return errors.Validation("break window must sit inside the shift", nil)
	}
	return nil
}

// parseClock converts "HH:MM" to minutes since midnight.
func parseClock(clock string) (int, error) {
	t, err := time.Parse("15:04", clock)
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}

func minutesToClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}
