package appointment

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medicore/clinic-api/internal/config"
	"github.com/medicore/clinic-api/internal/model"
	"github.com/medicore/clinic-api/pkg/errors"
	"github.com/medicore/clinic-api/pkg/lock"
	"github.com/medicore/clinic-api/pkg/logger"
)

type fakeApptRepo struct {
	appointments map[uuid.UUID]*model.Appointment
	events       []*model.AppointmentStatusEvent
}

func newFakeApptRepo() *fakeApptRepo {
	return &fakeApptRepo{appointments: make(map[uuid.UUID]*model.Appointment)}
}

func (r *fakeApptRepo) CreateWithEvent(ctx context.Context, appt *model.Appointment, event *model.AppointmentStatusEvent) error {
	for _, existing := range r.appointments {
		if existing.AppointmentNumber == appt.AppointmentNumber {
			return errors.Conflict("appointment number already exists", nil)
		}
	}
	appt.ID = uuid.New()
	copied := *appt
	r.appointments[appt.ID] = &copied
	event.AppointmentID = appt.ID
	r.events = append(r.events, event)
	return nil
}

func (r *fakeApptRepo) UpdateWithEvent(ctx context.Context, appt *model.Appointment, event *model.AppointmentStatusEvent) error {
	if _, ok := r.appointments[appt.ID]; !ok {
		return errors.NotFound("appointment", nil)
	}
	copied := *appt
	r.appointments[appt.ID] = &copied
	event.AppointmentID = appt.ID
	r.events = append(r.events, event)
	return nil
}

func (r *fakeApptRepo) Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	appt, ok := r.appointments[id]
	if !ok {
		return nil, errors.NotFound("appointment", nil)
	}
	copied := *appt
	return &copied, nil
}

func (r *fakeApptRepo) GetByNumber(ctx context.Context, number string) (*model.Appointment, error) {
	for _, appt := range r.appointments {
		if appt.AppointmentNumber == number {
			copied := *appt
			return &copied, nil
		}
	}
	return nil, errors.NotFound("appointment", nil)
}

func (r *fakeApptRepo) List(ctx context.Context, filters *model.AppointmentFilters) ([]*model.Appointment, int64, error) {
	var out []*model.Appointment
	for _, appt := range r.appointments {
		out = append(out, appt)
	}
	return out, int64(len(out)), nil
}

func (r *fakeApptRepo) CountAtSlot(ctx context.Context, doctorID uuid.UUID, date time.Time, startTime string, excludeID *uuid.UUID) (int, error) {
	count := 0
	for _, appt := range r.appointments {
		if appt.DoctorID == nil || *appt.DoctorID != doctorID {
			continue
		}
		if !appt.Date.Equal(date) || appt.StartTime == nil || *appt.StartTime != startTime {
			continue
		}
		if appt.Status == model.AppointmentStatusCancelled || appt.Status == model.AppointmentStatusRescheduled {
			continue
		}
		if excludeID != nil && appt.ID == *excludeID {
			continue
		}
		count++
	}
	return count, nil
}

func (r *fakeApptRepo) CountsByTime(ctx context.Context, doctorID uuid.UUID, date time.Time) (map[string]int, error) {
	return map[string]int{}, nil
}

func (r *fakeApptRepo) ListStatusEvents(ctx context.Context, appointmentID uuid.UUID) ([]*model.AppointmentStatusEvent, error) {
	var out []*model.AppointmentStatusEvent
	for _, e := range r.events {
		if e.AppointmentID == appointmentID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *fakeApptRepo) Stats(ctx context.Context, filters *model.AppointmentFilters) (*model.AppointmentStats, error) {
	return &model.AppointmentStats{}, nil
}

type fakePatientRepo struct {
	patients map[uuid.UUID]*model.PatientRef
}

func (r *fakePatientRepo) Get(ctx context.Context, id uuid.UUID) (*model.PatientRef, error) {
	p, ok := r.patients[id]
	if !ok {
		return nil, errors.NotFound("patient", nil)
	}
	return p, nil
}

type fakeDoctorRepo struct {
	doctors map[uuid.UUID]*model.DoctorRef
}

func (r *fakeDoctorRepo) Get(ctx context.Context, id uuid.UUID) (*model.DoctorRef, error) {
	d, ok := r.doctors[id]
	if !ok {
		return nil, errors.NotFound("doctor", nil)
	}
	return d, nil
}

// stubSlots accepts any grid time with a fixed capacity.
type stubSlots struct {
	capacity int
	err      error
}

func (s *stubSlots) SlotCapacity(ctx context.Context, doctorID uuid.UUID, date time.Time, startTime string) (int, error) {
	if s.err != nil {
		return 0, s.err
	}
	return s.capacity, nil
}

type stubNumbers struct {
	n int
}

func (s *stubNumbers) NextAppointmentNumber(walkIn bool) string {
	s.n++
	prefix := "APT"
	if walkIn {
		prefix = "WLK"
	}
	return fmt.Sprintf("%s-20260316-%04d", prefix, s.n)
}

type recordingNotifier struct {
	booked      int
	cancelled   int
	rescheduled int
}

func (n *recordingNotifier) AppointmentBooked(ctx context.Context, appt *model.Appointment, patient *model.PatientRef) {
	n.booked++
}

func (n *recordingNotifier) AppointmentCancelled(ctx context.Context, appt *model.Appointment, patient *model.PatientRef) {
	n.cancelled++
}

func (n *recordingNotifier) AppointmentRescheduled(ctx context.Context, appt *model.Appointment, patient *model.PatientRef) {
	n.rescheduled++
}

type fixture struct {
	svc      *Service
	repo     *fakeApptRepo
	notifier *recordingNotifier
	slots    *stubSlots

	hospitalID uuid.UUID
	patientID  uuid.UUID
	doctorID   uuid.UUID
	actorID    uuid.UUID
	settings   *model.HospitalSettings
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repo:       newFakeApptRepo(),
		notifier:   &recordingNotifier{},
		slots:      &stubSlots{capacity: 1},
		hospitalID: uuid.New(),
		patientID:  uuid.New(),
		doctorID:   uuid.New(),
		actorID:    uuid.New(),
		settings: &model.HospitalSettings{
			HospitalCode:        "HC",
			AutoConfirm:         true,
			DefaultSlotMinutes:  30,
			WalkInAllowed:       true,
			PastBookingGraceHrs: 1,
		},
	}

	patients := &fakePatientRepo{patients: map[uuid.UUID]*model.PatientRef{
		f.patientID: {ID: f.patientID, FullName: "Jordan Blake"},
	}}
	doctors := &fakeDoctorRepo{doctors: map[uuid.UUID]*model.DoctorRef{
		f.doctorID: {ID: f.doctorID, FullName: "Dr. Reyes", IsActive: true},
	}}

	f.svc = NewService(
		f.repo, patients, doctors, f.slots, &stubNumbers{}, f.notifier,
		lock.NewMutexLocker(),
		config.SchedulingConfig{MaxRescheduleCount: 3, CancelCutoff: 2 * time.Hour},
		logger.NewLogger(nil),
	)
	f.svc.now = func() time.Time {
		return time.Date(2026, time.March, 10, 8, 0, 0, 0, time.UTC)
	}
	return f
}

func (f *fixture) createRequest() *model.CreateAppointmentRequest {
	start := "09:00"
	return &model.CreateAppointmentRequest{
		PatientID:      f.patientID,
		DoctorID:       &f.doctorID,
		Date:           "2026-03-16",
		StartTime:      &start,
		ChiefComplaint: "headache",
	}
}

func (f *fixture) book(t *testing.T) *model.Appointment {
	t.Helper()
	appt, err := f.svc.Create(context.Background(), f.hospitalID, f.createRequest(), f.settings, f.actorID)
	require.NoError(t, err)
	return appt
}

func TestCreateAppointment(t *testing.T) {
	f := newFixture(t)

	appt := f.book(t)

	assert.Equal(t, model.AppointmentStatusConfirmed, appt.Status, "auto-confirm is on")
	assert.Equal(t, model.AppointmentTypeScheduled, appt.Type)
	assert.Equal(t, model.PriorityNormal, appt.Priority)
	require.NotNil(t, appt.EndTime)
	assert.Equal(t, "09:30", *appt.EndTime)
	assert.Regexp(t, `^APT-`, appt.AppointmentNumber)
	assert.Equal(t, 1, f.notifier.booked)

	events, err := f.repo.ListStatusEvents(context.Background(), appt.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Nil(t, events[0].FromStatus)
	assert.Equal(t, model.AppointmentStatusConfirmed, events[0].ToStatus)
}

func TestCreateWithoutAutoConfirm(t *testing.T) {
	f := newFixture(t)
	f.settings.AutoConfirm = false

	appt := f.book(t)
	assert.Equal(t, model.AppointmentStatusScheduled, appt.Status)
}

func TestCreateDoubleBookingConflict(t *testing.T) {
	f := newFixture(t)
	f.book(t)

	_, err := f.svc.Create(context.Background(), f.hospitalID, f.createRequest(), f.settings, f.actorID)
	assert.True(t, errors.IsCode(err, errors.ErrConflict), "second booking of the last opening must conflict")
}

func TestCreateSecondSlotOpening(t *testing.T) {
	f := newFixture(t)
	f.slots.capacity = 2
	f.book(t)
	f.book(t)

	_, err := f.svc.Create(context.Background(), f.hospitalID, f.createRequest(), f.settings, f.actorID)
	assert.True(t, errors.IsCode(err, errors.ErrConflict))
}

func TestCreateInPast(t *testing.T) {
	f := newFixture(t)
	req := f.createRequest()
	req.Date = "2026-03-01"

	_, err := f.svc.Create(context.Background(), f.hospitalID, req, f.settings, f.actorID)
	assert.True(t, errors.IsCode(err, errors.ErrValidation))
}

func TestCreateWithinGraceWindow(t *testing.T) {
	f := newFixture(t)
	req := f.createRequest()
	// 07:30 today is in the past but inside the 1 hour grace window.
	req.Date = "2026-03-10"
	start := "07:30"
	req.StartTime = &start

	_, err := f.svc.Create(context.Background(), f.hospitalID, req, f.settings, f.actorID)
	assert.NoError(t, err)
}

func TestCreateInactiveDoctor(t *testing.T) {
	f := newFixture(t)
	inactive := uuid.New()
	f.svc.doctors.(*fakeDoctorRepo).doctors[inactive] = &model.DoctorRef{ID: inactive, IsActive: false}

	req := f.createRequest()
	req.DoctorID = &inactive
	_, err := f.svc.Create(context.Background(), f.hospitalID, req, f.settings, f.actorID)
	assert.True(t, errors.IsCode(err, errors.ErrStatePrecondition))
}

func TestCreateInvalidPriority(t *testing.T) {
	f := newFixture(t)
	req := f.createRequest()
	req.Priority = "asap"

	_, err := f.svc.Create(context.Background(), f.hospitalID, req, f.settings, f.actorID)
	assert.True(t, errors.IsCode(err, errors.ErrValidation))
}

func TestStatusTransitions(t *testing.T) {
	f := newFixture(t)
	f.settings.AutoConfirm = false
	appt := f.book(t)

	// scheduled -> confirmed carries no implicit timestamps; check-in
	// belongs to the queue flow.
	appt, err := f.svc.UpdateStatus(context.Background(), appt.ID,
		&model.UpdateStatusRequest{Status: model.AppointmentStatusConfirmed}, f.actorID)
	require.NoError(t, err)
	assert.Nil(t, appt.CheckInAt)

	// confirmed -> in-progress stamps consultation start.
	appt, err = f.svc.UpdateStatus(context.Background(), appt.ID,
		&model.UpdateStatusRequest{Status: model.AppointmentStatusInProgress}, f.actorID)
	require.NoError(t, err)
	assert.NotNil(t, appt.ConsultStartAt)

	// in-progress -> completed changes the status only; consultation end is
	// stamped by queue completion.
	appt, err = f.svc.UpdateStatus(context.Background(), appt.ID,
		&model.UpdateStatusRequest{Status: model.AppointmentStatusCompleted}, f.actorID)
	require.NoError(t, err)
	assert.Nil(t, appt.ConsultEndAt)

	// completed is terminal.
	_, err = f.svc.UpdateStatus(context.Background(), appt.ID,
		&model.UpdateStatusRequest{Status: model.AppointmentStatusConfirmed}, f.actorID)
	assert.True(t, errors.IsCode(err, errors.ErrStatePrecondition))

	history, err := f.svc.StatusHistory(context.Background(), appt.ID)
	require.NoError(t, err)
	assert.Len(t, history, 4, "every transition leaves an audit event")
}

func TestStatusSkipsAreRejected(t *testing.T) {
	f := newFixture(t)
	f.settings.AutoConfirm = false
	appt := f.book(t)

	// scheduled cannot jump straight to completed.
	_, err := f.svc.UpdateStatus(context.Background(), appt.ID,
		&model.UpdateStatusRequest{Status: model.AppointmentStatusCompleted}, f.actorID)
	assert.True(t, errors.IsCode(err, errors.ErrStatePrecondition))

	// cancellation must go through the dedicated operation.
	_, err = f.svc.UpdateStatus(context.Background(), appt.ID,
		&model.UpdateStatusRequest{Status: model.AppointmentStatusCancelled}, f.actorID)
	assert.True(t, errors.IsCode(err, errors.ErrValidation))
}

func TestStatusDirectStart(t *testing.T) {
	f := newFixture(t)
	f.settings.AutoConfirm = false
	appt := f.book(t)

	// A scheduled patient who shows up goes straight into consultation.
	appt, err := f.svc.UpdateStatus(context.Background(), appt.ID,
		&model.UpdateStatusRequest{Status: model.AppointmentStatusInProgress}, f.actorID)
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusInProgress, appt.Status)
	assert.NotNil(t, appt.ConsultStartAt)
}

func TestStatusStartKeepsExistingTimestamp(t *testing.T) {
	f := newFixture(t)
	appt := f.book(t)

	earlier := time.Date(2026, time.March, 10, 7, 45, 0, 0, time.UTC)
	f.repo.appointments[appt.ID].ConsultStartAt = &earlier

	appt, err := f.svc.UpdateStatus(context.Background(), appt.ID,
		&model.UpdateStatusRequest{Status: model.AppointmentStatusInProgress}, f.actorID)
	require.NoError(t, err)
	require.NotNil(t, appt.ConsultStartAt)
	assert.Equal(t, earlier, *appt.ConsultStartAt, "an existing start is never overwritten")
}

func TestCancelInProgress(t *testing.T) {
	f := newFixture(t)
	appt := f.book(t)

	_, err := f.svc.UpdateStatus(context.Background(), appt.ID,
		&model.UpdateStatusRequest{Status: model.AppointmentStatusInProgress}, f.actorID)
	require.NoError(t, err)

	// In-progress is not terminal; the cutoff does not apply once started.
	cancelled, err := f.svc.Cancel(context.Background(), appt.ID,
		&model.CancelAppointmentRequest{Reason: "patient left"}, f.actorID)
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusCancelled, cancelled.Status)
}

func TestCancel(t *testing.T) {
	f := newFixture(t)
	appt := f.book(t)

	cancelled, err := f.svc.Cancel(context.Background(), appt.ID,
		&model.CancelAppointmentRequest{Reason: "patient request"}, f.actorID)
	require.NoError(t, err)

	assert.Equal(t, model.AppointmentStatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancelReason)
	assert.Equal(t, "patient request", *cancelled.CancelReason)
	assert.NotNil(t, cancelled.CancelledAt)
	assert.Equal(t, 1, f.notifier.cancelled)

	// Cancelling again fails.
	_, err = f.svc.Cancel(context.Background(), appt.ID,
		&model.CancelAppointmentRequest{Reason: "again"}, f.actorID)
	assert.True(t, errors.IsCode(err, errors.ErrStatePrecondition))
}

func TestCancelCutoff(t *testing.T) {
	f := newFixture(t)
	req := f.createRequest()
	// Booked for today at 09:00; the clock reads 08:00 and the cutoff is 2h.
	req.Date = "2026-03-10"
	appt, err := f.svc.Create(context.Background(), f.hospitalID, req, f.settings, f.actorID)
	require.NoError(t, err)

	_, err = f.svc.Cancel(context.Background(), appt.ID,
		&model.CancelAppointmentRequest{Reason: "too late"}, f.actorID)
	assert.True(t, errors.IsCode(err, errors.ErrStatePrecondition))
}

func TestReschedule(t *testing.T) {
	f := newFixture(t)
	appt := f.book(t)

	moved, err := f.svc.Reschedule(context.Background(), appt.ID,
		&model.RescheduleAppointmentRequest{Date: "2026-03-17", StartTime: "10:00"},
		f.settings, f.actorID)
	require.NoError(t, err)

	// Same record, same number, new slot.
	assert.Equal(t, appt.ID, moved.ID)
	assert.Equal(t, appt.AppointmentNumber, moved.AppointmentNumber)
	assert.Equal(t, model.AppointmentStatusRescheduled, moved.Status)
	assert.Equal(t, 1, moved.RescheduleCount)
	assert.Equal(t, "2026-03-17", moved.Date.Format("2006-01-02"))
	require.NotNil(t, moved.StartTime)
	assert.Equal(t, "10:00", *moved.StartTime)
	assert.Equal(t, 1, f.notifier.rescheduled)

	events, err := f.svc.StatusHistory(context.Background(), appt.ID)
	require.NoError(t, err)
	last := events[len(events)-1]
	assert.Contains(t, last.Note, "2026-03-16 09:00")
	assert.Contains(t, last.Note, "2026-03-17 10:00")

	// The record continues its lifecycle at the new slot.
	confirmed, err := f.svc.UpdateStatus(context.Background(), appt.ID,
		&model.UpdateStatusRequest{Status: model.AppointmentStatusConfirmed}, f.actorID)
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusConfirmed, confirmed.Status)
}

func TestRescheduleCompletedFails(t *testing.T) {
	f := newFixture(t)
	f.settings.AutoConfirm = false
	appt := f.book(t)

	for _, status := range []model.AppointmentStatus{
		model.AppointmentStatusConfirmed,
		model.AppointmentStatusInProgress,
		model.AppointmentStatusCompleted,
	} {
		_, err := f.svc.UpdateStatus(context.Background(), appt.ID,
			&model.UpdateStatusRequest{Status: status}, f.actorID)
		require.NoError(t, err)
	}

	_, err := f.svc.Reschedule(context.Background(), appt.ID,
		&model.RescheduleAppointmentRequest{Date: "2026-03-18", StartTime: "10:00"},
		f.settings, f.actorID)
	assert.True(t, errors.IsCode(err, errors.ErrStatePrecondition))
}

func TestRescheduleLimit(t *testing.T) {
	f := newFixture(t)
	appt := f.book(t)

	for i := 0; i < 3; i++ {
		moved, err := f.svc.Reschedule(context.Background(), appt.ID,
			&model.RescheduleAppointmentRequest{Date: "2026-03-17", StartTime: fmt.Sprintf("1%d:00", i)},
			f.settings, f.actorID)
		require.NoError(t, err)
		assert.Equal(t, i+1, moved.RescheduleCount)
	}

	_, err := f.svc.Reschedule(context.Background(), appt.ID,
		&model.RescheduleAppointmentRequest{Date: "2026-03-18", StartTime: "09:00"},
		f.settings, f.actorID)
	assert.True(t, errors.IsCode(err, errors.ErrStatePrecondition), "fourth reschedule exceeds the cap")
}

func TestRescheduleIntoFullSlot(t *testing.T) {
	f := newFixture(t)
	first := f.book(t)

	_, err := f.svc.Create(context.Background(), f.hospitalID, &model.CreateAppointmentRequest{
		PatientID: f.patientID,
		DoctorID:  &f.doctorID,
		Date:      "2026-03-17",
		StartTime: strPtr("10:00"),
	}, f.settings, f.actorID)
	require.NoError(t, err)

	// Moving the first appointment onto the occupied slot conflicts.
	_, err = f.svc.Reschedule(context.Background(), first.ID,
		&model.RescheduleAppointmentRequest{Date: "2026-03-17", StartTime: "10:00"},
		f.settings, f.actorID)
	assert.True(t, errors.IsCode(err, errors.ErrConflict))
}

func strPtr(s string) *string { return &s }
