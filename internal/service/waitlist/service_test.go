package waitlist

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medicore/clinic-api/internal/model"
	"github.com/medicore/clinic-api/pkg/errors"
	"github.com/medicore/clinic-api/pkg/logger"
)

// fakeWaitlistRepo mimics the compare-and-set inside Promote: only a waiting
// row flips to booked.
type fakeWaitlistRepo struct {
	entries map[uuid.UUID]*model.WaitlistEntry
	appts   *fakeApptRepo
	queue   []*model.QueueEntry
}

func newFakeWaitlistRepo(appts *fakeApptRepo) *fakeWaitlistRepo {
	return &fakeWaitlistRepo{entries: make(map[uuid.UUID]*model.WaitlistEntry), appts: appts}
}

func (r *fakeWaitlistRepo) Create(ctx context.Context, entry *model.WaitlistEntry) error {
	entry.ID = uuid.New()
	copied := *entry
	r.entries[entry.ID] = &copied
	return nil
}

func (r *fakeWaitlistRepo) Get(ctx context.Context, id uuid.UUID) (*model.WaitlistEntry, error) {
	entry, ok := r.entries[id]
	if !ok {
		return nil, errors.NotFound("waitlist entry", nil)
	}
	copied := *entry
	return &copied, nil
}

func (r *fakeWaitlistRepo) Update(ctx context.Context, entry *model.WaitlistEntry) error {
	if _, ok := r.entries[entry.ID]; !ok {
		return errors.NotFound("waitlist entry", nil)
	}
	copied := *entry
	r.entries[entry.ID] = &copied
	return nil
}

func (r *fakeWaitlistRepo) List(ctx context.Context, filters *model.WaitlistFilters) ([]*model.WaitlistEntry, int64, error) {
	var out []*model.WaitlistEntry
	for _, e := range r.entries {
		out = append(out, e)
	}
	return out, int64(len(out)), nil
}

func (r *fakeWaitlistRepo) ActiveExists(ctx context.Context, patientID, doctorID uuid.UUID, preferredDate time.Time) (bool, error) {
	for _, e := range r.entries {
		if e.PatientID == patientID && e.DoctorID == doctorID &&
			e.PreferredDate.Equal(preferredDate) && e.Status == model.WaitlistStatusWaiting {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeWaitlistRepo) CountWaiting(ctx context.Context, doctorID uuid.UUID, preferredDate time.Time) (int, error) {
	count := 0
	for _, e := range r.entries {
		if e.DoctorID == doctorID && e.PreferredDate.Equal(preferredDate) &&
			e.Status == model.WaitlistStatusWaiting {
			count++
		}
	}
	return count, nil
}

func (r *fakeWaitlistRepo) Promote(ctx context.Context, entry *model.WaitlistEntry, appt *model.Appointment, event *model.AppointmentStatusEvent, queueEntry *model.QueueEntry) error {
	stored, ok := r.entries[entry.ID]
	if !ok {
		return errors.NotFound("waitlist entry", nil)
	}
	if stored.Status != model.WaitlistStatusWaiting {
		return errors.StatePrecondition("waitlist entry is no longer waiting", nil)
	}
	if err := r.appts.insert(appt, event); err != nil {
		return err
	}
	stored.Status = model.WaitlistStatusBooked
	stored.AppointmentID = &appt.ID
	entry.Status = stored.Status
	entry.AppointmentID = stored.AppointmentID

	queueEntry.ID = uuid.New()
	queueEntry.AppointmentID = appt.ID
	queueEntry.QueueNumber = len(r.queue) + 1
	queueEntry.Position = len(r.queue) + 1
	queueEntry.Status = model.QueueStatusWaiting
	r.queue = append(r.queue, queueEntry)
	return nil
}

type fakeApptRepo struct {
	appointments map[uuid.UUID]*model.Appointment
}

func newFakeApptRepo() *fakeApptRepo {
	return &fakeApptRepo{appointments: make(map[uuid.UUID]*model.Appointment)}
}

func (r *fakeApptRepo) insert(appt *model.Appointment, event *model.AppointmentStatusEvent) error {
	for _, existing := range r.appointments {
		if existing.AppointmentNumber == appt.AppointmentNumber {
			return errors.Conflict("appointment number already exists", nil)
		}
	}
	appt.ID = uuid.New()
	copied := *appt
	r.appointments[appt.ID] = &copied
	return nil
}

func (r *fakeApptRepo) CreateWithEvent(ctx context.Context, appt *model.Appointment, event *model.AppointmentStatusEvent) error {
	return r.insert(appt, event)
}

func (r *fakeApptRepo) UpdateWithEvent(ctx context.Context, appt *model.Appointment, event *model.AppointmentStatusEvent) error {
	return nil
}

func (r *fakeApptRepo) Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	appt, ok := r.appointments[id]
	if !ok {
		return nil, errors.NotFound("appointment", nil)
	}
	return appt, nil
}

func (r *fakeApptRepo) GetByNumber(ctx context.Context, number string) (*model.Appointment, error) {
	return nil, errors.NotFound("appointment", nil)
}

func (r *fakeApptRepo) List(ctx context.Context, filters *model.AppointmentFilters) ([]*model.Appointment, int64, error) {
	return nil, 0, nil
}

func (r *fakeApptRepo) CountAtSlot(ctx context.Context, doctorID uuid.UUID, date time.Time, startTime string, excludeID *uuid.UUID) (int, error) {
	return 0, nil
}

func (r *fakeApptRepo) CountsByTime(ctx context.Context, doctorID uuid.UUID, date time.Time) (map[string]int, error) {
	return map[string]int{}, nil
}

func (r *fakeApptRepo) ListStatusEvents(ctx context.Context, appointmentID uuid.UUID) ([]*model.AppointmentStatusEvent, error) {
	return nil, nil
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

type stubNumbers struct {
	n int
}

func (s *stubNumbers) NextAppointmentNumber(walkIn bool) string {
	s.n++
	prefix := "APT"
	if walkIn {
		prefix = "WLK"
	}
	return fmt.Sprintf("%s-20260310-%04d", prefix, s.n)
}

type recordingNotifier struct {
	promoted int
}

func (n *recordingNotifier) WaitlistPromoted(ctx context.Context, appt *model.Appointment, patient *model.PatientRef) {
	n.promoted++
}

type fixture struct {
	svc      *Service
	repo     *fakeWaitlistRepo
	appts    *fakeApptRepo
	notifier *recordingNotifier

	hospitalID uuid.UUID
	patientID  uuid.UUID
	doctorID   uuid.UUID
	actorID    uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	appts := newFakeApptRepo()
	f := &fixture{
		repo:       newFakeWaitlistRepo(appts),
		appts:      appts,
		notifier:   &recordingNotifier{},
		hospitalID: uuid.New(),
		patientID:  uuid.New(),
		doctorID:   uuid.New(),
		actorID:    uuid.New(),
	}

	patients := &fakePatientRepo{patients: map[uuid.UUID]*model.PatientRef{
		f.patientID: {ID: f.patientID, FullName: "Jordan Blake"},
	}}
	doctors := &fakeDoctorRepo{doctors: map[uuid.UUID]*model.DoctorRef{
		f.doctorID: {ID: f.doctorID, FullName: "Dr. Reyes", IsActive: true},
	}}

	f.svc = NewService(f.repo, appts, patients, doctors,
		&stubNumbers{}, f.notifier, logger.NewLogger(nil))
	f.svc.now = func() time.Time {
		return time.Date(2026, time.March, 10, 8, 0, 0, 0, time.UTC)
	}
	return f
}

func (f *fixture) addRequest() *model.AddWaitlistRequest {
	preferred := "10:00"
	return &model.AddWaitlistRequest{
		PatientID:     f.patientID,
		DoctorID:      f.doctorID,
		PreferredDate: "2026-03-16",
		PreferredTime: &preferred,
	}
}

func (f *fixture) add(t *testing.T) *model.WaitlistEntry {
	t.Helper()
	entry, err := f.svc.Add(context.Background(), f.hospitalID, f.addRequest(), f.actorID)
	require.NoError(t, err)
	return entry
}

func TestAdd(t *testing.T) {
	f := newFixture(t)

	entry := f.add(t)
	assert.Equal(t, model.WaitlistStatusWaiting, entry.Status)
	assert.Equal(t, 1, entry.Position)
	assert.Equal(t, model.PriorityNormal, entry.Priority)
}

func TestAddPositionsGrow(t *testing.T) {
	f := newFixture(t)
	f.add(t)

	other := uuid.New()
	f.svc.patients.(*fakePatientRepo).patients[other] = &model.PatientRef{ID: other}
	req := f.addRequest()
	req.PatientID = other

	entry, err := f.svc.Add(context.Background(), f.hospitalID, req, f.actorID)
	require.NoError(t, err)
	assert.Equal(t, 2, entry.Position)
}

func TestAddRejectsDuplicate(t *testing.T) {
	f := newFixture(t)
	f.add(t)

	_, err := f.svc.Add(context.Background(), f.hospitalID, f.addRequest(), f.actorID)
	assert.True(t, errors.IsCode(err, errors.ErrConflict))
}

func TestAddRejectsPastDate(t *testing.T) {
	f := newFixture(t)
	req := f.addRequest()
	req.PreferredDate = "2026-03-09"

	_, err := f.svc.Add(context.Background(), f.hospitalID, req, f.actorID)
	assert.True(t, errors.IsCode(err, errors.ErrValidation))
}

func TestCancel(t *testing.T) {
	f := newFixture(t)
	entry := f.add(t)

	cancelled, err := f.svc.Cancel(context.Background(), entry.ID)
	require.NoError(t, err)
	assert.Equal(t, model.WaitlistStatusCancelled, cancelled.Status)

	// Cancelling again settles on cancelled rather than erroring.
	cancelled, err = f.svc.Cancel(context.Background(), entry.ID)
	require.NoError(t, err)
	assert.Equal(t, model.WaitlistStatusCancelled, cancelled.Status)
}

func TestCancelBookedEntry(t *testing.T) {
	f := newFixture(t)
	entry := f.add(t)

	_, err := f.svc.Promote(context.Background(), entry.ID, f.actorID)
	require.NoError(t, err)

	_, err = f.svc.Cancel(context.Background(), entry.ID)
	assert.True(t, errors.IsCode(err, errors.ErrStatePrecondition))
}

func TestPromote(t *testing.T) {
	f := newFixture(t)
	entry := f.add(t)

	result, err := f.svc.Promote(context.Background(), entry.ID, f.actorID)
	require.NoError(t, err)

	assert.Equal(t, model.WaitlistStatusBooked, result.Entry.Status)
	require.NotNil(t, result.Appointment)
	assert.Equal(t, model.AppointmentStatusConfirmed, result.Appointment.Status)
	assert.Equal(t, model.AppointmentTypeWalkIn, result.Appointment.Type)
	assert.Regexp(t, `^WLK-`, result.Appointment.AppointmentNumber)
	// Promotion books the patient for today, not the preferred date.
	assert.Equal(t, time.Date(2026, time.March, 10, 0, 0, 0, 0, time.UTC), result.Appointment.Date)
	require.NotNil(t, result.QueueEntry)
	assert.Equal(t, 1, result.QueueEntry.QueueNumber)
	assert.Equal(t, model.QueueStatusWaiting, result.QueueEntry.Status)
	assert.Equal(t, 1, f.notifier.promoted)
	require.NotNil(t, result.Entry.AppointmentID)
	assert.Equal(t, result.Appointment.ID, *result.Entry.AppointmentID)
}

func TestPromoteTwiceFails(t *testing.T) {
	f := newFixture(t)
	entry := f.add(t)

	_, err := f.svc.Promote(context.Background(), entry.ID, f.actorID)
	require.NoError(t, err)

	_, err = f.svc.Promote(context.Background(), entry.ID, f.actorID)
	assert.True(t, errors.IsCode(err, errors.ErrStatePrecondition))

	// Exactly one appointment came out of the double attempt.
	assert.Len(t, f.appts.appointments, 1)
}

func TestPromoteCancelledEntry(t *testing.T) {
	f := newFixture(t)
	entry := f.add(t)
	_, err := f.svc.Cancel(context.Background(), entry.ID)
	require.NoError(t, err)

	_, err = f.svc.Promote(context.Background(), entry.ID, f.actorID)
	assert.True(t, errors.IsCode(err, errors.ErrStatePrecondition))
}
