// Package queue manages same-day walk-in flow: registration with capacity
// routing, the live queue board, and the called/consultation/completed
// lifecycle with its appointment side effects.
package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/medicore/clinic-api/internal/model"
	"github.com/medicore/clinic-api/internal/repository"
	"github.com/medicore/clinic-api/pkg/errors"
	"github.com/medicore/clinic-api/pkg/logger"
)

const (
	dateLayout       = "2006-01-02"
	numberRetryLimit = 3
)

// CapacityChecker reports how many patients a doctor can see on a date.
type CapacityChecker interface {
	DayCapacity(ctx context.Context, doctorID uuid.UUID, date time.Time) (int, error)
}

// NumberSource issues appointment reference numbers.
type NumberSource interface {
	NextAppointmentNumber(walkIn bool) string
}

// queueTransitions is the queue entry state machine.
var queueTransitions = map[model.QueueStatus][]model.QueueStatus{
	model.QueueStatusWaiting:        {model.QueueStatusCalled, model.QueueStatusSkipped},
	model.QueueStatusCalled:         {model.QueueStatusInConsultation, model.QueueStatusCompleted, model.QueueStatusSkipped},
	model.QueueStatusInConsultation: {model.QueueStatusCompleted},
}

type Service struct {
	repo     repository.QueueRepository
	apptRepo repository.AppointmentRepository
	waitlist repository.WaitlistRepository
	patients repository.PatientRepository
	doctors  repository.DoctorRepository
	capacity CapacityChecker
	numbers  NumberSource
	logger   *logger.Logger
	now      func() time.Time
}

func NewService(
	repo repository.QueueRepository,
	apptRepo repository.AppointmentRepository,
	waitlist repository.WaitlistRepository,
	patients repository.PatientRepository,
	doctors repository.DoctorRepository,
	capacity CapacityChecker,
	numbers NumberSource,
	logger *logger.Logger,
) *Service {
	return &Service{
		repo:     repo,
		apptRepo: apptRepo,
		waitlist: waitlist,
		patients: patients,
		doctors:  doctors,
		capacity: capacity,
		numbers:  numbers,
		logger:   logger,
		now:      time.Now,
	}
}

// RegisterWalkIn books a same-day walk-in. With no doctor given, only the
// appointment is created and a doctor is assigned later. With a doctor, the
// patient gets a queue number while the day's capacity lasts; once the day is
// full the request is routed onto the waitlist instead.
func (s *Service) RegisterWalkIn(ctx context.Context, hospitalID uuid.UUID, req *model.RegisterWalkInRequest, settings *model.HospitalSettings, createdBy uuid.UUID) (*model.WalkInResult, error) {
	if !settings.WalkInAllowed {
		return nil, errors.StatePrecondition("walk-in registration is disabled for this hospital", nil)
	}

	priority := req.Priority
	if priority == "" {
		priority = model.PriorityNormal
	}
	if !priority.Valid() {
		return nil, errors.Validation("priority must be normal, urgent, or emergency", nil)
	}

	if _, err := s.patients.Get(ctx, req.PatientID); err != nil {
		return nil, err
	}

	now := s.now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	appt := &model.Appointment{
		HospitalID:     hospitalID,
		PatientID:      req.PatientID,
		DoctorID:       req.DoctorID,
		Date:           today,
		Type:           model.AppointmentTypeWalkIn,
		Priority:       priority,
		Status:         model.AppointmentStatusConfirmed,
		ChiefComplaint: req.ChiefComplaint,
		CheckInAt:      &now,
		CreatedBy:      createdBy,
	}

	if req.DoctorID == nil {
		if err := s.createUnassigned(ctx, appt, createdBy); err != nil {
			return nil, err
		}
		return &model.WalkInResult{Appointment: appt}, nil
	}

	doctor, err := s.doctors.Get(ctx, *req.DoctorID)
	if err != nil {
		return nil, err
	}
	if !doctor.IsActive {
		return nil, errors.StatePrecondition("doctor is not active", nil)
	}

	dayCapacity, err := s.capacity.DayCapacity(ctx, *req.DoctorID, today)
	if err != nil {
		return nil, err
	}
	active, err := s.repo.CountActive(ctx, *req.DoctorID, today)
	if err != nil {
		return nil, err
	}
	if active >= dayCapacity {
		entry, err := s.routeToWaitlist(ctx, hospitalID, req, priority, today)
		if err != nil {
			return nil, err
		}
		s.logger.Info("walk-in routed to waitlist",
			"doctor_id", *req.DoctorID, "capacity", dayCapacity, "active", active)
		return &model.WalkInResult{WaitlistEntry: entry, Waitlisted: true}, nil
	}

	entry := &model.QueueEntry{
		DoctorID:  *req.DoctorID,
		QueueDate: today,
	}
	for attempt := 0; ; attempt++ {
		appt.AppointmentNumber = s.numbers.NextAppointmentNumber(true)
		event := &model.AppointmentStatusEvent{
			ToStatus:  appt.Status,
			ChangedBy: createdBy,
			Note:      "walk-in registered",
		}
		err = s.repo.CreateWalkIn(ctx, appt, event, entry)
		if err == nil {
			break
		}
		if !errors.IsCode(err, errors.ErrConflict) || attempt+1 >= numberRetryLimit {
			return nil, err
		}
		s.logger.Warn("walk-in registration collision, retrying", "number", appt.AppointmentNumber)
	}

	return &model.WalkInResult{Appointment: appt, QueueEntry: entry}, nil
}

func (s *Service) createUnassigned(ctx context.Context, appt *model.Appointment, createdBy uuid.UUID) error {
	for attempt := 0; ; attempt++ {
		appt.AppointmentNumber = s.numbers.NextAppointmentNumber(true)
		event := &model.AppointmentStatusEvent{
			ToStatus:  appt.Status,
			ChangedBy: createdBy,
			Note:      "walk-in registered, awaiting doctor assignment",
		}
		err := s.apptRepo.CreateWithEvent(ctx, appt, event)
		if err == nil {
			return nil
		}
		if !errors.IsCode(err, errors.ErrConflict) || attempt+1 >= numberRetryLimit {
			return err
		}
	}
}

func (s *Service) routeToWaitlist(ctx context.Context, hospitalID uuid.UUID, req *model.RegisterWalkInRequest, priority model.Priority, date time.Time) (*model.WaitlistEntry, error) {
	waiting, err := s.waitlist.CountWaiting(ctx, *req.DoctorID, date)
	if err != nil {
		return nil, err
	}
	entry := &model.WaitlistEntry{
		HospitalID:    hospitalID,
		PatientID:     req.PatientID,
		DoctorID:      *req.DoctorID,
		PreferredDate: date,
		Priority:      priority,
		Status:        model.WaitlistStatusWaiting,
		Position:      waiting + 1,
		Complaint:     req.ChiefComplaint,
	}
	if err := s.waitlist.Create(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// AssignDoctor attaches a doctor to an unassigned walk-in and gives it a
// queue number at the back of that doctor's line. Reassigning to a different
// doctor moves the entry to the new queue.
func (s *Service) AssignDoctor(ctx context.Context, appointmentID uuid.UUID, req *model.AssignDoctorRequest, changedBy uuid.UUID) (*model.Appointment, *model.QueueEntry, error) {
	appt, err := s.apptRepo.Get(ctx, appointmentID)
	if err != nil {
		return nil, nil, err
	}
	if appt.Type != model.AppointmentTypeWalkIn {
		return nil, nil, errors.Validation("only walk-in appointments take queue assignment", nil)
	}
	if appt.Status.IsTerminal() || appt.Status == model.AppointmentStatusInProgress {
		return nil, nil, errors.StatePrecondition(
			fmt.Sprintf("appointment in status %s cannot be reassigned", appt.Status), nil)
	}

	doctor, err := s.doctors.Get(ctx, req.DoctorID)
	if err != nil {
		return nil, nil, err
	}
	if !doctor.IsActive {
		return nil, nil, errors.StatePrecondition("doctor is not active", nil)
	}
	if appt.DoctorID != nil && *appt.DoctorID == req.DoctorID {
		return nil, nil, errors.Validation("appointment is already assigned to this doctor", nil)
	}

	from := appt.Status
	appt.DoctorID = &req.DoctorID
	event := &model.AppointmentStatusEvent{
		FromStatus: &from,
		ToStatus:   appt.Status,
		ChangedBy:  changedBy,
		Note:       fmt.Sprintf("assigned to doctor %s", doctor.FullName),
	}
	if err := s.apptRepo.UpdateWithEvent(ctx, appt, event); err != nil {
		return nil, nil, err
	}

	entry := &model.QueueEntry{
		DoctorID:  req.DoctorID,
		QueueDate: appt.Date,
	}
	if err := s.repo.Reassign(ctx, appointmentID, entry); err != nil {
		return nil, nil, err
	}
	return appt, entry, nil
}

// Summary returns the live queue board for one doctor and date.
func (s *Service) Summary(ctx context.Context, doctorID uuid.UUID, date time.Time) (*model.QueueSummary, error) {
	items, err := s.repo.ListForDisplay(ctx, doctorID, date)
	if err != nil {
		return nil, err
	}

	summary := &model.QueueSummary{
		DoctorID:  doctorID,
		QueueDate: date.Format(dateLayout),
		Items:     items,
	}
	for _, item := range items {
		switch item.Status {
		case model.QueueStatusWaiting, model.QueueStatusCalled:
			summary.TotalWaiting++
		case model.QueueStatusInConsultation:
			summary.InConsultation++
		case model.QueueStatusCompleted:
			summary.CompletedToday++
		}
	}
	return summary, nil
}

// Call announces the next patient: waiting to called.
func (s *Service) Call(ctx context.Context, queueID uuid.UUID, changedBy uuid.UUID) (*model.QueueEntry, error) {
	entry, err := s.repo.Get(ctx, queueID)
	if err != nil {
		return nil, err
	}
	if err := checkQueueTransition(entry.Status, model.QueueStatusCalled); err != nil {
		return nil, err
	}

	now := s.now()
	entry.Status = model.QueueStatusCalled
	entry.CalledAt = &now
	if err := s.repo.UpdateWithAppointment(ctx, entry, nil, nil); err != nil {
		return nil, err
	}
	return entry, nil
}

// StartConsultation moves a called patient into consultation and flips the
// appointment to in-progress in the same transaction.
func (s *Service) StartConsultation(ctx context.Context, queueID uuid.UUID, changedBy uuid.UUID) (*model.QueueEntry, error) {
	return s.transitionWithAppointment(ctx, queueID, changedBy,
		model.QueueStatusInConsultation, model.AppointmentStatusInProgress, "consultation started")
}

// Complete finishes the visit: queue entry completed, appointment completed.
// Legal from called as well as in_consultation, so a desk can close out a
// patient who was seen without the consultation ever being started on the
// board.
func (s *Service) Complete(ctx context.Context, queueID uuid.UUID, changedBy uuid.UUID) (*model.QueueEntry, error) {
	return s.transitionWithAppointment(ctx, queueID, changedBy,
		model.QueueStatusCompleted, model.AppointmentStatusCompleted, "consultation completed")
}

// Skip removes a no-show from the line and marks the appointment no-show.
func (s *Service) Skip(ctx context.Context, queueID uuid.UUID, changedBy uuid.UUID) (*model.QueueEntry, error) {
	return s.transitionWithAppointment(ctx, queueID, changedBy,
		model.QueueStatusSkipped, model.AppointmentStatusNoShow, "skipped in queue")
}

func (s *Service) transitionWithAppointment(ctx context.Context, queueID, changedBy uuid.UUID, target model.QueueStatus, apptTarget model.AppointmentStatus, note string) (*model.QueueEntry, error) {
	entry, err := s.repo.Get(ctx, queueID)
	if err != nil {
		return nil, err
	}
	if err := checkQueueTransition(entry.Status, target); err != nil {
		return nil, err
	}

	appt, err := s.apptRepo.Get(ctx, entry.AppointmentID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	entry.Status = target

	from := appt.Status
	appt.Status = apptTarget
	switch apptTarget {
	case model.AppointmentStatusInProgress:
		appt.ConsultStartAt = &now
	case model.AppointmentStatusCompleted:
		appt.ConsultEndAt = &now
	}
	event := &model.AppointmentStatusEvent{
		FromStatus: &from,
		ToStatus:   apptTarget,
		ChangedBy:  changedBy,
		Note:       note,
	}

	if err := s.repo.UpdateWithAppointment(ctx, entry, appt, event); err != nil {
		return nil, err
	}
	return entry, nil
}

func checkQueueTransition(from, to model.QueueStatus) error {
	if from.IsTerminal() {
		return errors.StatePrecondition(
			fmt.Sprintf("queue entry in status %s is final", from), nil)
	}
	for _, allowed := range queueTransitions[from] {
		if allowed == to {
			return nil
		}
	}
	return errors.StatePrecondition(
		fmt.Sprintf("cannot transition queue entry from %s to %s", from, to), nil)
}
