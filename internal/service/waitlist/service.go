// Package waitlist holds patients wanting a full slot and promotes them into
// real appointments when capacity frees up.
package waitlist

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

// NumberSource issues appointment reference numbers.
type NumberSource interface {
	NextAppointmentNumber(walkIn bool) string
}

// Notifier delivers best-effort patient notifications.
type Notifier interface {
	WaitlistPromoted(ctx context.Context, appt *model.Appointment, patient *model.PatientRef)
}

type Service struct {
	repo     repository.WaitlistRepository
	apptRepo repository.AppointmentRepository
	patients repository.PatientRepository
	doctors  repository.DoctorRepository
	numbers  NumberSource
	notifier Notifier
	logger   *logger.Logger
	now      func() time.Time
}

func NewService(
	repo repository.WaitlistRepository,
	apptRepo repository.AppointmentRepository,
	patients repository.PatientRepository,
	doctors repository.DoctorRepository,
	numbers NumberSource,
	notifier Notifier,
	logger *logger.Logger,
) *Service {
	return &Service{
		repo:     repo,
		apptRepo: apptRepo,
		patients: patients,
		doctors:  doctors,
		numbers:  numbers,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

// Add places a patient on the waitlist for a doctor and date. At most one
// waiting entry may exist per (patient, doctor, date).
func (s *Service) Add(ctx context.Context, hospitalID uuid.UUID, req *model.AddWaitlistRequest, createdBy uuid.UUID) (*model.WaitlistEntry, error) {
	date, err := time.Parse(dateLayout, req.PreferredDate)
	if err != nil {
		return nil, errors.Validation("preferred_date must be YYYY-MM-DD", err)
	}
	now := s.now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	if date.Before(today) {
		return nil, errors.Validation("preferred_date is in the past", nil)
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
	doctor, err := s.doctors.Get(ctx, req.DoctorID)
	if err != nil {
		return nil, err
	}
	if !doctor.IsActive {
		return nil, errors.StatePrecondition("doctor is not active", nil)
	}

	exists, err := s.repo.ActiveExists(ctx, req.PatientID, req.DoctorID, date)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, errors.Conflict("patient is already waitlisted for this doctor and date", nil)
	}

	waiting, err := s.repo.CountWaiting(ctx, req.DoctorID, date)
	if err != nil {
		return nil, err
	}

	entry := &model.WaitlistEntry{
		HospitalID:    hospitalID,
		PatientID:     req.PatientID,
		DoctorID:      req.DoctorID,
		PreferredDate: date,
		PreferredTime: req.PreferredTime,
		Priority:      priority,
		Status:        model.WaitlistStatusWaiting,
		Position:      waiting + 1,
		Complaint:     req.ChiefComplaint,
	}
	if err := s.repo.Create(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*model.WaitlistEntry, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, filters *model.WaitlistFilters) ([]*model.WaitlistEntry, int64, error) {
	return s.repo.List(ctx, filters)
}

// Cancel withdraws an entry. Booked entries are final: the appointment
// created by promotion must be cancelled through the appointment operations.
// Cancelling an already cancelled or expired entry just settles it as
// cancelled.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (*model.WaitlistEntry, error) {
	entry, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if entry.Status == model.WaitlistStatusBooked {
		return nil, errors.StatePrecondition(
			"waitlist entry is already booked; cancel the appointment instead", nil)
	}

	entry.Status = model.WaitlistStatusCancelled
	if err := s.repo.Update(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// Promote converts a waiting entry into a booked walk-in appointment for
// today with a queue number at the back of the doctor's line, atomically. A
// repeated or concurrent promotion of the same entry fails the
// compare-and-set inside the repository and nothing is written.
func (s *Service) Promote(ctx context.Context, id uuid.UUID, changedBy uuid.UUID) (*model.PromotionResult, error) {
	entry, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if entry.Status != model.WaitlistStatusWaiting {
		return nil, errors.StatePrecondition(
			fmt.Sprintf("waitlist entry in status %s cannot be promoted", entry.Status), nil)
	}

	now := s.now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	appt := &model.Appointment{
		HospitalID:     entry.HospitalID,
		PatientID:      entry.PatientID,
		DoctorID:       &entry.DoctorID,
		Date:           today,
		Type:           model.AppointmentTypeWalkIn,
		Priority:       entry.Priority,
		Status:         model.AppointmentStatusConfirmed,
		ChiefComplaint: entry.Complaint,
		CreatedBy:      changedBy,
	}

	queueEntry := &model.QueueEntry{
		DoctorID:  entry.DoctorID,
		QueueDate: today,
	}

	for attempt := 0; ; attempt++ {
		appt.AppointmentNumber = s.numbers.NextAppointmentNumber(true)
		event := &model.AppointmentStatusEvent{
			ToStatus:  appt.Status,
			ChangedBy: changedBy,
			Note:      "promoted from waitlist",
		}
		err = s.repo.Promote(ctx, entry, appt, event, queueEntry)
		if err == nil {
			break
		}
		if errors.IsCode(err, errors.ErrConflict) && attempt+1 < numberRetryLimit {
			s.logger.Warn("waitlist promotion collision, retrying", "number", appt.AppointmentNumber)
			continue
		}
		return nil, err
	}

	if patient, perr := s.patients.Get(ctx, entry.PatientID); perr == nil {
		s.notifier.WaitlistPromoted(ctx, appt, patient)
	}

	return &model.PromotionResult{
		Entry:       entry,
		Appointment: appt,
		QueueEntry:  queueEntry,
	}, nil
}
