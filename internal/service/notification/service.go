// Package notification sends best-effort patient emails for booking events.
// Failures are logged and swallowed: a dead SMTP relay must never fail a
// booking.
package notification

import (
	"context"
	"fmt"

	"github.com/medicore/clinic-api/internal/model"
	"github.com/medicore/clinic-api/pkg/logger"
)

// MailSender is the transport used for outbound mail.
type MailSender interface {
	Enabled() bool
	Send(to, subject, body string) error
}

type Service struct {
	sender MailSender
	logger *logger.Logger
}

func NewService(sender MailSender, logger *logger.Logger) *Service {
	return &Service{sender: sender, logger: logger}
}

func (s *Service) AppointmentBooked(ctx context.Context, appt *model.Appointment, patient *model.PatientRef) {
	body := fmt.Sprintf(
		"Dear %s,\n\nYour appointment %s is booked for %s",
		patient.FullName, appt.AppointmentNumber, appt.Date.Format("2006-01-02"),
	)
	if appt.StartTime != nil {
		body += " at " + *appt.StartTime
	}
	body += ".\n"
	s.send(patient, "Appointment confirmation", body)
}

func (s *Service) AppointmentCancelled(ctx context.Context, appt *model.Appointment, patient *model.PatientRef) {
	body := fmt.Sprintf(
		"Dear %s,\n\nYour appointment %s on %s has been cancelled.\n",
		patient.FullName, appt.AppointmentNumber, appt.Date.Format("2006-01-02"),
	)
	s.send(patient, "Appointment cancelled", body)
}

func (s *Service) AppointmentRescheduled(ctx context.Context, appt *model.Appointment, patient *model.PatientRef) {
	body := fmt.Sprintf(
		"Dear %s,\n\nYour appointment %s has been moved to %s",
		patient.FullName, appt.AppointmentNumber, appt.Date.Format("2006-01-02"),
	)
	if appt.StartTime != nil {
		body += " at " + *appt.StartTime
	}
	body += ".\n"
	s.send(patient, "Appointment rescheduled", body)
}

func (s *Service) WaitlistPromoted(ctx context.Context, appt *model.Appointment, patient *model.PatientRef) {
	body := fmt.Sprintf(
		"Dear %s,\n\nA slot opened up and your waitlist entry is now a booked appointment: %s on %s.\n",
		patient.FullName, appt.AppointmentNumber, appt.Date.Format("2006-01-02"),
	)
	s.send(patient, "Waitlist promotion", body)
}

func (s *Service) send(patient *model.PatientRef, subject, body string) {
	if !s.sender.Enabled() {
		return
	}
	if patient.Email == nil || *patient.Email == "" {
		s.logger.Debug("patient has no email, skipping notification", "patient_id", patient.ID)
		return
	}
	if err := s.sender.Send(*patient.Email, subject, body); err != nil {
		s.logger.Error(err, "failed to send notification email", "patient_id", patient.ID)
	}
}
