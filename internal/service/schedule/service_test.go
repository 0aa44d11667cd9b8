package schedule

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medicore/clinic-api/internal/model"
	"github.com/medicore/clinic-api/pkg/errors"
)

type fakeScheduleRepo struct {
	rules  map[uuid.UUID]*model.ScheduleRule
	leaves []*model.LeaveRecord
}

func newFakeScheduleRepo() *fakeScheduleRepo {
	return &fakeScheduleRepo{rules: make(map[uuid.UUID]*model.ScheduleRule)}
}

func (r *fakeScheduleRepo) CreateRule(ctx context.Context, rule *model.ScheduleRule) error {
	rule.ID = uuid.New()
	r.rules[rule.ID] = rule
	return nil
}

func (r *fakeScheduleRepo) GetRule(ctx context.Context, id uuid.UUID) (*model.ScheduleRule, error) {
	rule, ok := r.rules[id]
	if !ok {
		return nil, errors.NotFound("schedule rule", nil)
	}
	copied := *rule
	return &copied, nil
}

func (r *fakeScheduleRepo) UpdateRule(ctx context.Context, rule *model.ScheduleRule) error {
	if _, ok := r.rules[rule.ID]; !ok {
		return errors.NotFound("schedule rule", nil)
	}
	r.rules[rule.ID] = rule
	return nil
}

func (r *fakeScheduleRepo) DeleteRule(ctx context.Context, id uuid.UUID) error {
	if _, ok := r.rules[id]; !ok {
		return errors.NotFound("schedule rule", nil)
	}
	delete(r.rules, id)
	return nil
}

func (r *fakeScheduleRepo) ListRules(ctx context.Context, doctorID uuid.UUID, activeOnly bool) ([]*model.ScheduleRule, error) {
	var out []*model.ScheduleRule
	for _, rule := range r.rules {
		if rule.DoctorID == doctorID && (!activeOnly || rule.IsActive) {
			out = append(out, rule)
		}
	}
	return out, nil
}

func (r *fakeScheduleRepo) ListRulesForDate(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]*model.ScheduleRule, error) {
	var out []*model.ScheduleRule
	for _, rule := range r.rules {
		if rule.DoctorID == doctorID && rule.IsActive &&
			rule.DayOfWeek == int(date.Weekday()) && rule.CoversDate(date) {
			out = append(out, rule)
		}
	}
	return out, nil
}

func (r *fakeScheduleRepo) CreateLeave(ctx context.Context, leave *model.LeaveRecord) error {
	leave.ID = uuid.New()
	r.leaves = append(r.leaves, leave)
	return nil
}

func (r *fakeScheduleRepo) DeleteLeave(ctx context.Context, id uuid.UUID) error {
	for i, leave := range r.leaves {
		if leave.ID == id {
			r.leaves = append(r.leaves[:i], r.leaves[i+1:]...)
			return nil
		}
	}
	return errors.NotFound("leave record", nil)
}

func (r *fakeScheduleRepo) ListLeaves(ctx context.Context, doctorID uuid.UUID) ([]*model.LeaveRecord, error) {
	var out []*model.LeaveRecord
	for _, leave := range r.leaves {
		if leave.DoctorID == doctorID {
			out = append(out, leave)
		}
	}
	return out, nil
}

func (r *fakeScheduleRepo) ApprovedLeave(ctx context.Context, doctorID uuid.UUID, date time.Time) (*model.LeaveRecord, error) {
	for _, leave := range r.leaves {
		if leave.DoctorID == doctorID && leave.Status == model.LeaveApproved &&
			leave.LeaveDate.Equal(date) {
			return leave, nil
		}
	}
	return nil, nil
}

// countsApptRepo satisfies the appointment repository with canned per-slot
// booking counts; the schedule service only calls CountsByTime.
type countsApptRepo struct {
	counts map[string]int
}

func (r *countsApptRepo) CreateWithEvent(ctx context.Context, appt *model.Appointment, event *model.AppointmentStatusEvent) error {
	return nil
}

func (r *countsApptRepo) UpdateWithEvent(ctx context.Context, appt *model.Appointment, event *model.AppointmentStatusEvent) error {
	return nil
}

func (r *countsApptRepo) Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	return nil, errors.NotFound("appointment", nil)
}

func (r *countsApptRepo) GetByNumber(ctx context.Context, number string) (*model.Appointment, error) {
	return nil, errors.NotFound("appointment", nil)
}

func (r *countsApptRepo) List(ctx context.Context, filters *model.AppointmentFilters) ([]*model.Appointment, int64, error) {
	return nil, 0, nil
}

func (r *countsApptRepo) CountAtSlot(ctx context.Context, doctorID uuid.UUID, date time.Time, startTime string, excludeID *uuid.UUID) (int, error) {
	return r.counts[startTime], nil
}

func (r *countsApptRepo) CountsByTime(ctx context.Context, doctorID uuid.UUID, date time.Time) (map[string]int, error) {
	return r.counts, nil
}

func (r *countsApptRepo) ListStatusEvents(ctx context.Context, appointmentID uuid.UUID) ([]*model.AppointmentStatusEvent, error) {
	return nil, nil
}

func (r *countsApptRepo) Stats(ctx context.Context, filters *model.AppointmentFilters) (*model.AppointmentStats, error) {
	return &model.AppointmentStats{}, nil
}

// monday is a fixed reference date well in the future of the fixed clock.
var monday = time.Date(2026, time.March, 16, 0, 0, 0, 0, time.UTC)

func newTestService(repo *fakeScheduleRepo, counts map[string]int) *Service {
	if counts == nil {
		counts = map[string]int{}
	}
	svc := NewService(repo, &countsApptRepo{counts: counts})
	svc.now = func() time.Time {
		return time.Date(2026, time.March, 10, 8, 0, 0, 0, time.UTC)
	}
	return svc
}

func addMorningRule(t *testing.T, repo *fakeScheduleRepo, doctorID uuid.UUID, maxPerSlot int) *model.ScheduleRule {
	t.Helper()
	breakStart, breakEnd := "11:00", "11:30"
	rule := &model.ScheduleRule{
		DoctorID:            doctorID,
		DayOfWeek:           int(monday.Weekday()),
		ShiftName:           "morning",
		StartTime:           "09:00",
		EndTime:             "12:00",
		BreakStartTime:      &breakStart,
		BreakEndTime:        &breakEnd,
		SlotDurationMinutes: 30,
		MaxPatientsPerSlot:  maxPerSlot,
		IsActive:            true,
		EffectiveFrom:       time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, repo.CreateRule(context.Background(), rule))
	return rule
}

func TestAvailableSlotsGrid(t *testing.T) {
	repo := newFakeScheduleRepo()
	doctorID := uuid.New()
	addMorningRule(t, repo, doctorID, 2)

	svc := newTestService(repo, map[string]int{"09:00": 2, "09:30": 1})

	slots, err := svc.AvailableSlots(context.Background(), doctorID, monday)
	require.NoError(t, err)

	times := make([]string, len(slots))
	for i, s := range slots {
		times[i] = s.Time
	}
	// 11:00 falls in the break; 11:30 still fits before 12:00.
	assert.Equal(t, []string{"09:00", "09:30", "10:00", "10:30", "11:30"}, times)

	assert.False(t, slots[0].Available, "09:00 is at capacity")
	assert.Equal(t, 2, slots[0].CurrentBookings)
	assert.True(t, slots[1].Available, "09:30 has one opening left")
	assert.True(t, slots[2].Available)
}

func TestAvailableSlotsUnalignedBreak(t *testing.T) {
	repo := newFakeScheduleRepo()
	doctorID := uuid.New()
	rule := addMorningRule(t, repo, doctorID, 1)
	breakStart, breakEnd := "10:00", "10:15"
	rule.BreakStartTime = &breakStart
	rule.BreakEndTime = &breakEnd

	svc := newTestService(repo, nil)
	slots, err := svc.AvailableSlots(context.Background(), doctorID, monday)
	require.NoError(t, err)

	times := make([]string, len(slots))
	for i, s := range slots {
		times[i] = s.Time
	}
	// The walk resumes at the break's end, not on the next 30-minute mark,
	// so the grid after the break anchors on 10:15.
	assert.Equal(t, []string{"09:00", "09:30", "10:15", "10:45", "11:15"}, times)
}

func TestAvailableSlotsSplitShift(t *testing.T) {
	repo := newFakeScheduleRepo()
	doctorID := uuid.New()

	// Afternoon shift created first: the merged grid must still come out
	// ascending, with overlapping times collapsed.
	afternoon := &model.ScheduleRule{
		DoctorID:            doctorID,
		DayOfWeek:           int(monday.Weekday()),
		ShiftName:           "afternoon",
		StartTime:           "13:00",
		EndTime:             "15:00",
		SlotDurationMinutes: 30,
		MaxPatientsPerSlot:  1,
		IsActive:            true,
		EffectiveFrom:       time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, repo.CreateRule(context.Background(), afternoon))
	addMorningRule(t, repo, doctorID, 1)

	svc := newTestService(repo, nil)
	slots, err := svc.AvailableSlots(context.Background(), doctorID, monday)
	require.NoError(t, err)

	times := make([]string, len(slots))
	for i, s := range slots {
		times[i] = s.Time
	}
	assert.Equal(t, []string{
		"09:00", "09:30", "10:00", "10:30", "11:30",
		"13:00", "13:30", "14:00", "14:30",
	}, times)
}

func TestAvailableSlotsNoRules(t *testing.T) {
	svc := newTestService(newFakeScheduleRepo(), nil)

	slots, err := svc.AvailableSlots(context.Background(), uuid.New(), monday)
	require.NoError(t, err)
	assert.Empty(t, slots)
}

func TestAvailableSlotsFullDayLeave(t *testing.T) {
	repo := newFakeScheduleRepo()
	doctorID := uuid.New()
	addMorningRule(t, repo, doctorID, 2)
	repo.leaves = append(repo.leaves, &model.LeaveRecord{
		ID: uuid.New(), DoctorID: doctorID, LeaveDate: monday,
		LeaveType: model.LeaveFullDay, Status: model.LeaveApproved,
	})

	svc := newTestService(repo, nil)
	slots, err := svc.AvailableSlots(context.Background(), doctorID, monday)
	require.NoError(t, err)
	assert.Empty(t, slots)
}

func TestAvailableSlotsMorningLeave(t *testing.T) {
	repo := newFakeScheduleRepo()
	doctorID := uuid.New()
	rule := addMorningRule(t, repo, doctorID, 1)
	rule.EndTime = "14:00"
	repo.leaves = append(repo.leaves, &model.LeaveRecord{
		ID: uuid.New(), DoctorID: doctorID, LeaveDate: monday,
		LeaveType: model.LeaveMorning, Status: model.LeaveApproved,
	})

	svc := newTestService(repo, nil)
	slots, err := svc.AvailableSlots(context.Background(), doctorID, monday)
	require.NoError(t, err)
	require.NotEmpty(t, slots)

	for _, s := range slots {
		if s.Time < "12:00" {
			assert.False(t, s.Available, "morning slot %s should be blocked", s.Time)
		} else {
			assert.True(t, s.Available, "afternoon slot %s should stay open", s.Time)
		}
	}
}

func TestAvailableSlotsPastTimesToday(t *testing.T) {
	repo := newFakeScheduleRepo()
	doctorID := uuid.New()
	rule := addMorningRule(t, repo, doctorID, 1)
	rule.DayOfWeek = int(time.Tuesday)

	svc := newTestService(repo, nil)
	today := time.Date(2026, time.March, 10, 0, 0, 0, 0, time.UTC)
	svc.now = func() time.Time {
		return time.Date(2026, time.March, 10, 10, 5, 0, 0, time.UTC)
	}

	slots, err := svc.AvailableSlots(context.Background(), doctorID, today)
	require.NoError(t, err)
	require.NotEmpty(t, slots)

	for _, s := range slots {
		if s.Time <= "10:05" {
			assert.False(t, s.Available, "past slot %s should be unavailable", s.Time)
		}
	}
	assert.True(t, slots[len(slots)-1].Available)
}

func TestSlotCapacity(t *testing.T) {
	repo := newFakeScheduleRepo()
	doctorID := uuid.New()
	addMorningRule(t, repo, doctorID, 3)
	svc := newTestService(repo, nil)

	capacity, err := svc.SlotCapacity(context.Background(), doctorID, monday, "09:30")
	require.NoError(t, err)
	assert.Equal(t, 3, capacity)

	// Off the slot grid.
	_, err = svc.SlotCapacity(context.Background(), doctorID, monday, "09:15")
	assert.True(t, errors.IsCode(err, errors.ErrValidation))

	// Inside the break window.
	_, err = svc.SlotCapacity(context.Background(), doctorID, monday, "11:00")
	assert.True(t, errors.IsCode(err, errors.ErrValidation))

	// Outside the shift entirely.
	_, err = svc.SlotCapacity(context.Background(), doctorID, monday, "15:00")
	assert.True(t, errors.IsCode(err, errors.ErrValidation))
}

func TestSlotCapacityAfterUnalignedBreak(t *testing.T) {
	repo := newFakeScheduleRepo()
	doctorID := uuid.New()
	rule := addMorningRule(t, repo, doctorID, 2)
	breakStart, breakEnd := "10:00", "10:15"
	rule.BreakStartTime = &breakStart
	rule.BreakEndTime = &breakEnd
	svc := newTestService(repo, nil)

	// Slots published after the break are bookable.
	capacity, err := svc.SlotCapacity(context.Background(), doctorID, monday, "10:15")
	require.NoError(t, err)
	assert.Equal(t, 2, capacity)

	// The pre-break grid no longer continues past the break.
	_, err = svc.SlotCapacity(context.Background(), doctorID, monday, "10:30")
	assert.True(t, errors.IsCode(err, errors.ErrValidation))

	_, err = svc.SlotCapacity(context.Background(), doctorID, monday, "10:00")
	assert.True(t, errors.IsCode(err, errors.ErrValidation))
}

func TestSlotCapacityOnLeave(t *testing.T) {
	repo := newFakeScheduleRepo()
	doctorID := uuid.New()
	addMorningRule(t, repo, doctorID, 1)
	repo.leaves = append(repo.leaves, &model.LeaveRecord{
		ID: uuid.New(), DoctorID: doctorID, LeaveDate: monday,
		LeaveType: model.LeaveMorning, Status: model.LeaveApproved,
	})
	svc := newTestService(repo, nil)

	_, err := svc.SlotCapacity(context.Background(), doctorID, monday, "09:00")
	assert.True(t, errors.IsCode(err, errors.ErrStatePrecondition))
}

func TestDayCapacity(t *testing.T) {
	repo := newFakeScheduleRepo()
	doctorID := uuid.New()
	addMorningRule(t, repo, doctorID, 2)
	svc := newTestService(repo, nil)

	// 5 slots at 2 patients each.
	capacity, err := svc.DayCapacity(context.Background(), doctorID, monday)
	require.NoError(t, err)
	assert.Equal(t, 10, capacity)
}

func TestCreateRuleValidation(t *testing.T) {
	svc := newTestService(newFakeScheduleRepo(), nil)
	day := 1

	cases := []struct {
		name string
		req  model.CreateScheduleRuleRequest
	}{
		{"end before start", model.CreateScheduleRuleRequest{
			DoctorID: uuid.New(), DayOfWeek: &day,
			StartTime: "12:00", EndTime: "09:00", EffectiveFrom: "2026-01-01",
		}},
		{"malformed time", model.CreateScheduleRuleRequest{
			DoctorID: uuid.New(), DayOfWeek: &day,
			StartTime: "9am", EndTime: "12:00", EffectiveFrom: "2026-01-01",
		}},
		{"break outside shift", model.CreateScheduleRuleRequest{
			DoctorID: uuid.New(), DayOfWeek: &day,
			StartTime: "09:00", EndTime: "12:00", EffectiveFrom: "2026-01-01",
			BreakStartTime: strPtr("08:00"), BreakEndTime: strPtr("08:30"),
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.CreateRule(context.Background(), &tc.req)
			assert.True(t, errors.IsCode(err, errors.ErrValidation))
		})
	}
}

func TestCreateRuleDefaults(t *testing.T) {
	svc := newTestService(newFakeScheduleRepo(), nil)
	day := 2

	rule, err := svc.CreateRule(context.Background(), &model.CreateScheduleRuleRequest{
		DoctorID: uuid.New(), DayOfWeek: &day,
		StartTime: "09:00", EndTime: "12:00", EffectiveFrom: "2026-01-01",
	})
	require.NoError(t, err)
	assert.Equal(t, 30, rule.SlotDurationMinutes)
	assert.Equal(t, 1, rule.MaxPatientsPerSlot)
	assert.True(t, rule.IsActive)
}

func strPtr(s string) *string { return &s }
