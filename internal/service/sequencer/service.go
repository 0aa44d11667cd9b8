// Package sequencer issues the clinic's collision-proof identifiers: the
// 12-character checksum ids for patients and staff, and the simpler dated
// reference numbers for appointments.
package sequencer

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/medicore/clinic-api/internal/repository"
	"github.com/medicore/clinic-api/pkg/errors"
	"github.com/medicore/clinic-api/pkg/identifier"
)

type Service struct {
	repo repository.SequenceRepository
	now  func() time.Time
}

func NewService(repo repository.SequenceRepository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// NextPatientID allocates a fresh patient identifier. Gender picks the
// category code; the sequence comes from the counter keyed by
// (hospital, patient, category, year, month).
func (s *Service) NextPatientID(ctx context.Context, hospitalCode, gender string) (string, error) {
	return s.nextID(ctx, hospitalCode, string(identifier.EntityPatient), identifier.GenderCode(gender))
}

// NextStaffID allocates a fresh staff identifier with a role category code.
func (s *Service) NextStaffID(ctx context.Context, hospitalCode, role string) (string, error) {
	return s.nextID(ctx, hospitalCode, string(identifier.EntityStaff), identifier.RoleCode(role))
}

func (s *Service) nextID(ctx context.Context, hospitalCode, kind string, category byte) (string, error) {
	if len(hospitalCode) != 2 {
		return "", errors.Validation("hospital code must be 2 characters", nil)
	}

	now := s.now()
	key := repository.SequenceKey{
		HospitalCode: hospitalCode,
		EntityKind:   kind,
		CategoryCode: string(category),
		YearCode:     fmt.Sprintf("%02d", now.Year()%100),
		MonthCode:    string(identifier.MonthCode(now.Month())),
	}

	seq, err := s.repo.NextValue(ctx, key)
	if err != nil {
		return "", fmt.Errorf("failed to allocate sequence: %w", err)
	}

	id, err := identifier.Format(hospitalCode, category, now, seq)
	if err != nil {
		return "", fmt.Errorf("failed to format identifier: %w", err)
	}
	return id, nil
}

// Validate checks an identifier's length, alphabet, and checksum.
func (s *Service) Validate(id string) bool {
	return identifier.Validate(id)
}

// Parse decodes an identifier into its components.
func (s *Service) Parse(id string) (*identifier.Components, error) {
	c, err := identifier.Parse(id)
	if err != nil {
		return nil, errors.Validation("malformed identifier", err)
	}
	return c, nil
}

// NextAppointmentNumber builds a dated reference number with a random
// suffix, e.g. APT-20260901-4827 or WLK-20260901-0315 for walk-ins.
// Uniqueness is enforced by the appointment_number constraint; callers retry
// with a fresh number on collision.
func (s *Service) NextAppointmentNumber(walkIn bool) string {
	prefix := "APT"
	if walkIn {
		prefix = "WLK"
	}
	return fmt.Sprintf("%s-%s-%04d", prefix, s.now().Format("20060102"), rand.Intn(10000))
}
