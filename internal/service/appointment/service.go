// Package appointment owns the booking lifecycle: creation, the status state
// machine, cancellation, and rescheduling.
package appointment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/medicore/clinic-api/internal/config"
	"github.com/medicore/clinic-api/internal/model"
	"github.com/medicore/clinic-api/internal/repository"
	"github.com/medicore/clinic-api/pkg/errors"
	"github.com/medicore/clinic-api/pkg/lock"
	"github.com/medicore/clinic-api/pkg/logger"
)

const (
	dateLayout       = "2006-01-02"
	numberRetryLimit = 3
)

// SlotChecker validates a booking time against the doctor's schedule and
// returns the per-slot capacity.
type SlotChecker interface {
	SlotCapacity(ctx context.Context, doctorID uuid.UUID, date time.Time, startTime string) (int, error)
}

// NumberSource issues appointment reference numbers.
type NumberSource interface {
	NextAppointmentNumber(walkIn bool) string
}

// Notifier delivers best-effort patient notifications.
type Notifier interface {
	AppointmentBooked(ctx context.Context, appt *model.Appointment, patient *model.PatientRef)
	AppointmentCancelled(ctx context.Context, appt *model.Appointment, patient *model.PatientRef)
	AppointmentRescheduled(ctx context.Context, appt *model.Appointment, patient *model.PatientRef)
}

// allowedTransitions is the status state machine for UpdateStatus.
// Cancellation and rescheduling have dedicated operations and are not
// reachable here. A rescheduled appointment continues its lifecycle at the
// new slot, so it takes the same transitions as a scheduled one.
var allowedTransitions = map[model.AppointmentStatus][]model.AppointmentStatus{
	model.AppointmentStatusScheduled:   {model.AppointmentStatusConfirmed, model.AppointmentStatusInProgress, model.AppointmentStatusNoShow},
	model.AppointmentStatusConfirmed:   {model.AppointmentStatusInProgress, model.AppointmentStatusNoShow},
	model.AppointmentStatusInProgress:  {model.AppointmentStatusCompleted},
	model.AppointmentStatusRescheduled: {model.AppointmentStatusConfirmed, model.AppointmentStatusInProgress, model.AppointmentStatusNoShow},
}

type Service struct {
	repo     repository.AppointmentRepository
	patients repository.PatientRepository
	doctors  repository.DoctorRepository
	slots    SlotChecker
	numbers  NumberSource
	notifier Notifier
	locker   lock.Locker
	cfg      config.SchedulingConfig
	logger   *logger.Logger
	now      func() time.Time
}

func NewService(
	repo repository.AppointmentRepository,
	patients repository.PatientRepository,
	doctors repository.DoctorRepository,
	slots SlotChecker,
	numbers NumberSource,
	notifier Notifier,
	locker lock.Locker,
	cfg config.SchedulingConfig,
	logger *logger.Logger,
) *Service {
	return &Service{
		repo:     repo,
		patients: patients,
		doctors:  doctors,
		slots:    slots,
		numbers:  numbers,
		notifier: notifier,
		locker:   locker,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// Create books a scheduled appointment. When a doctor and start time are
// given, the slot is validated against the schedule and the capacity check
// plus insert run under a per-slot lock so two requests cannot both grab the
// last opening.
func (s *Service) Create(ctx context.Context, hospitalID uuid.UUID, req *model.CreateAppointmentRequest, settings *model.HospitalSettings, createdBy uuid.UUID) (*model.Appointment, error) {
	date, err := time.Parse(dateLayout, req.Date)
	if err != nil {
		return nil, errors.Validation("appointment_date must be YYYY-MM-DD", err)
	}

	priority := req.Priority
	if priority == "" {
		priority = model.PriorityNormal
	}
	if !priority.Valid() {
		return nil, errors.Validation("priority must be normal, urgent, or emergency", nil)
	}

	if err := s.checkNotPast(date, req.StartTime, settings); err != nil {
		return nil, err
	}

	patient, err := s.patients.Get(ctx, req.PatientID)
	if err != nil {
		return nil, err
	}

	if req.DoctorID != nil {
		doctor, err := s.doctors.Get(ctx, *req.DoctorID)
		if err != nil {
			return nil, err
		}
		if !doctor.IsActive {
			return nil, errors.StatePrecondition("doctor is not active", nil)
		}
	}

	status := model.AppointmentStatusScheduled
	if settings.AutoConfirm {
		status = model.AppointmentStatusConfirmed
	}

	slotMinutes := settings.DefaultSlotMinutes
	if slotMinutes <= 0 {
		slotMinutes = 30
	}

	appt := &model.Appointment{
		HospitalID:     hospitalID,
		PatientID:      req.PatientID,
		DoctorID:       req.DoctorID,
		Date:           date,
		StartTime:      req.StartTime,
		Type:           model.AppointmentTypeScheduled,
		Priority:       priority,
		Status:         status,
		ChiefComplaint: req.ChiefComplaint,
		CreatedBy:      createdBy,
	}
	if req.StartTime != nil {
		end, err := addMinutes(*req.StartTime, slotMinutes)
		if err != nil {
			return nil, errors.Validation("start_time must be HH:MM", err)
		}
		appt.EndTime = &end
	}

	create := func(ctx context.Context) error {
		if req.DoctorID != nil && req.StartTime != nil {
			capacity, err := s.slots.SlotCapacity(ctx, *req.DoctorID, date, *req.StartTime)
			if err != nil {
				return err
			}
			booked, err := s.repo.CountAtSlot(ctx, *req.DoctorID, date, *req.StartTime, nil)
			if err != nil {
				return err
			}
			if booked >= capacity {
				return errors.Conflict("slot is fully booked", nil)
			}
		}
		return s.persistNew(ctx, appt, createdBy, "appointment created", false)
	}

	if req.DoctorID != nil && req.StartTime != nil {
		key := bookingKey(*req.DoctorID, date, *req.StartTime)
		err = s.locker.WithLock(ctx, key, create)
	} else {
		err = create(ctx)
	}
	if err != nil {
		return nil, err
	}

	s.notifier.AppointmentBooked(ctx, appt, patient)
	return appt, nil
}

// persistNew inserts the appointment with its initial status event, retrying
// with a fresh reference number when the random suffix collides.
func (s *Service) persistNew(ctx context.Context, appt *model.Appointment, createdBy uuid.UUID, note string, walkIn bool) error {
	for attempt := 0; attempt < numberRetryLimit; attempt++ {
		appt.AppointmentNumber = s.numbers.NextAppointmentNumber(walkIn)
		event := &model.AppointmentStatusEvent{
			ToStatus:  appt.Status,
			ChangedBy: createdBy,
			Note:      note,
		}
		err := s.repo.CreateWithEvent(ctx, appt, event)
		if err == nil {
			return nil
		}
		if !errors.IsCode(err, errors.ErrConflict) {
			return err
		}
		s.logger.Warn("appointment number collision, retrying", "number", appt.AppointmentNumber)
	}
	return errors.Internal(fmt.Errorf("exhausted appointment number retries"))
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) GetByNumber(ctx context.Context, number string) (*model.Appointment, error) {
	return s.repo.GetByNumber(ctx, number)
}

func (s *Service) List(ctx context.Context, filters *model.AppointmentFilters) ([]*model.Appointment, int64, error) {
	return s.repo.List(ctx, filters)
}

// StatusHistory returns the append-only audit trail, oldest first.
func (s *Service) StatusHistory(ctx context.Context, id uuid.UUID) ([]*model.AppointmentStatusEvent, error) {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.ListStatusEvents(ctx, id)
}

func (s *Service) Stats(ctx context.Context, filters *model.AppointmentFilters) (*model.AppointmentStats, error) {
	return s.repo.Stats(ctx, filters)
}

// CheckDoubleBooking reports whether an active appointment already occupies
// the exact doctor/date/time. Create and Reschedule run the same check under
// the slot lock; this is the read-only variant for callers probing ahead.
func (s *Service) CheckDoubleBooking(ctx context.Context, doctorID uuid.UUID, date time.Time, startTime string, excludeID *uuid.UUID) (bool, error) {
	count, err := s.repo.CountAtSlot(ctx, doctorID, date, startTime, excludeID)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// UpdateStatus applies one state machine transition and records the audit
// event. Terminal states reject every transition.
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, req *model.UpdateStatusRequest, changedBy uuid.UUID) (*model.Appointment, error) {
	switch req.Status {
	case model.AppointmentStatusCancelled:
		return nil, errors.Validation("use the cancel operation to cancel an appointment", nil)
	case model.AppointmentStatusRescheduled:
		return nil, errors.Validation("use the reschedule operation to move an appointment", nil)
	}

	appt, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := checkTransition(appt.Status, req.Status); err != nil {
		return nil, err
	}

	from := appt.Status
	appt.Status = req.Status
	// Entering in-progress stamps the consultation start; every other
	// timestamp is owned by a dedicated operation (check-in by the queue,
	// consultation end by queue completion).
	if req.Status == model.AppointmentStatusInProgress && appt.ConsultStartAt == nil {
		now := s.now()
		appt.ConsultStartAt = &now
	}

	event := &model.AppointmentStatusEvent{
		FromStatus: &from,
		ToStatus:   req.Status,
		ChangedBy:  changedBy,
		Note:       req.Note,
	}
	if err := s.repo.UpdateWithEvent(ctx, appt, event); err != nil {
		return nil, err
	}
	return appt, nil
}

// Cancel finalizes the appointment as cancelled. Any non-terminal state may
// be cancelled; upcoming appointments additionally respect the cancellation
// cutoff window.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, req *model.CancelAppointmentRequest, cancelledBy uuid.UUID) (*model.Appointment, error) {
	appt, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if appt.Status.IsTerminal() {
		return nil, errors.StatePrecondition(
			fmt.Sprintf("appointment in status %s cannot be cancelled", appt.Status), nil)
	}

	// The cutoff only guards appointments that have not started yet; a
	// consultation already in progress is always past its start time.
	if appt.Status != model.AppointmentStatusInProgress &&
		appt.StartTime != nil && s.cfg.CancelCutoff > 0 {
		startAt, err := combine(appt.Date, *appt.StartTime)
		if err == nil && s.now().After(startAt.Add(-s.cfg.CancelCutoff)) {
			return nil, errors.StatePrecondition("cancellation window has closed", nil)
		}
	}

	from := appt.Status
	now := s.now()
	appt.Status = model.AppointmentStatusCancelled
	appt.CancelReason = &req.Reason
	appt.CancelledBy = &cancelledBy
	appt.CancelledAt = &now

	event := &model.AppointmentStatusEvent{
		FromStatus: &from,
		ToStatus:   model.AppointmentStatusCancelled,
		ChangedBy:  cancelledBy,
		Note:       req.Reason,
	}
	if err := s.repo.UpdateWithEvent(ctx, appt, event); err != nil {
		return nil, err
	}

	if patient, perr := s.patients.Get(ctx, appt.PatientID); perr == nil {
		s.notifier.AppointmentCancelled(ctx, appt, patient)
	}
	return appt, nil
}

// Reschedule moves the appointment to a new slot in place: same record, same
// reference number, new date and time, status rescheduled, reschedule count
// incremented and capped. The capacity check at the target slot and the
// update run under the per-slot lock.
func (s *Service) Reschedule(ctx context.Context, id uuid.UUID, req *model.RescheduleAppointmentRequest, settings *model.HospitalSettings, changedBy uuid.UUID) (*model.Appointment, error) {
	appt, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	switch appt.Status {
	case model.AppointmentStatusScheduled, model.AppointmentStatusConfirmed, model.AppointmentStatusRescheduled:
	default:
		return nil, errors.StatePrecondition(
			fmt.Sprintf("appointment in status %s cannot be rescheduled", appt.Status), nil)
	}
	if s.cfg.MaxRescheduleCount > 0 && appt.RescheduleCount >= s.cfg.MaxRescheduleCount {
		return nil, errors.StatePrecondition("reschedule limit reached", nil)
	}
	if appt.DoctorID == nil {
		return nil, errors.Validation("appointment has no doctor assigned", nil)
	}

	date, err := time.Parse(dateLayout, req.Date)
	if err != nil {
		return nil, errors.Validation("appointment_date must be YYYY-MM-DD", err)
	}
	startTime := req.StartTime
	if err := s.checkNotPast(date, &startTime, settings); err != nil {
		return nil, err
	}

	slotMinutes := settings.DefaultSlotMinutes
	if slotMinutes <= 0 {
		slotMinutes = 30
	}
	end, err := addMinutes(startTime, slotMinutes)
	if err != nil {
		return nil, errors.Validation("start_time must be HH:MM", err)
	}

	oldDate := appt.Date.Format(dateLayout)
	oldTime := "unscheduled"
	if appt.StartTime != nil {
		oldTime = *appt.StartTime
	}

	key := bookingKey(*appt.DoctorID, date, startTime)
	err = s.locker.WithLock(ctx, key, func(ctx context.Context) error {
		capacity, err := s.slots.SlotCapacity(ctx, *appt.DoctorID, date, startTime)
		if err != nil {
			return err
		}
		booked, err := s.repo.CountAtSlot(ctx, *appt.DoctorID, date, startTime, &appt.ID)
		if err != nil {
			return err
		}
		if booked >= capacity {
			return errors.Conflict("slot is fully booked", nil)
		}

		from := appt.Status
		appt.Date = date
		appt.StartTime = &startTime
		appt.EndTime = &end
		appt.Status = model.AppointmentStatusRescheduled
		appt.RescheduleCount++
		appt.RescheduleReason = req.Reason

		event := &model.AppointmentStatusEvent{
			FromStatus: &from,
			ToStatus:   model.AppointmentStatusRescheduled,
			ChangedBy:  changedBy,
			Note: fmt.Sprintf("rescheduled from %s %s to %s %s",
				oldDate, oldTime, req.Date, startTime),
		}
		return s.repo.UpdateWithEvent(ctx, appt, event)
	})
	if err != nil {
		return nil, err
	}

	if patient, perr := s.patients.Get(ctx, appt.PatientID); perr == nil {
		s.notifier.AppointmentRescheduled(ctx, appt, patient)
	}
	return appt, nil
}

// checkNotPast rejects booking times already behind the clock, with the
// hospital's grace window applied.
func (s *Service) checkNotPast(date time.Time, startTime *string, settings *model.HospitalSettings) error {
	grace := time.Duration(settings.PastBookingGraceHrs) * time.Hour
	now := s.now()
	if startTime != nil {
		startAt, err := combine(date, *startTime)
		if err != nil {
			return errors.Validation("start_time must be HH:MM", err)
		}
		if startAt.Before(now.Add(-grace)) {
			return errors.Validation("appointment time is in the past", nil)
		}
		return nil
	}
	dayEnd := date.Add(24 * time.Hour)
	if dayEnd.Before(now.Add(-grace)) {
		return errors.Validation("appointment date is in the past", nil)
	}
	return nil
}

func checkTransition(from, to model.AppointmentStatus) error {
	if from.IsTerminal() {
		return errors.StatePrecondition(
			fmt.Sprintf("appointment in status %s is final", from), nil)
	}
	for _, allowed := range allowedTransitions[from] {
		if allowed == to {
			return nil
		}
	}
	return errors.StatePrecondition(
		fmt.Sprintf("cannot transition appointment from %s to %s", from, to), nil)
}

func bookingKey(doctorID uuid.UUID, date time.Time, startTime string) string {
	return fmt.Sprintf("booking:%s:%s:%s", doctorID, date.Format(dateLayout), startTime)
}

// combine merges a calendar date with an "HH:MM" clock into one instant.
func combine(date time.Time, clock string) (time.Time, error) {
	t, err := time.Parse("15:04", clock)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(date.Year(), date.Month(), date.Day(),
		t.Hour(), t.Minute(), 0, 0, date.Location()), nil
}

func addMinutes(clock string, minutes int) (string, error) {
	t, err := time.Parse("15:04", clock)
	if err != nil {
		return "", err
	}
	return t.Add(time.Duration(minutes) * time.Minute).Format("15:04"), nil
}
