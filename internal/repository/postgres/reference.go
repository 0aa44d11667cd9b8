package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/medicore/clinic-api/internal/model"
	apperrors "github.com/medicore/clinic-api/pkg/errors"
)

// Patients, doctors, and hospital settings live in tables owned by other
// services; the scheduling core only reads them.

func (r *patientRepository) Get(ctx context.Context, id uuid.UUID) (*model.PatientRef, error) {
	query := `
		SELECT id, patient_number, full_name, gender, email
		FROM patients
		WHERE id = $1
	`
	var patient model.PatientRef
	err := r.db.GetContext(ctx, &patient, query, id)
	if err != nil {
		if isNoRows(err) {
			return nil, apperrors.NotFound("patient", err)
		}
		return nil, fmt.Errorf("failed to get patient: %w", err)
	}
	return &patient, nil
}

func (r *doctorRepository) Get(ctx context.Context, id uuid.UUID) (*model.DoctorRef, error) {
	query := `
		SELECT id, hospital_id, full_name, specialization, consultation_fee, is_active
		FROM doctors
		WHERE id = $1
	`
	var doctor model.DoctorRef
	err := r.db.GetContext(ctx, &doctor, query, id)
	if err != nil {
		if isNoRows(err) {
			return nil, apperrors.NotFound("doctor", err)
		}
		return nil, fmt.Errorf("failed to get doctor: %w", err)
	}
	return &doctor, nil
}

func (r *settingsRepository) GetByHospital(ctx context.Context, hospitalID uuid.UUID) (*model.HospitalSettings, error) {
	query := `
		SELECT hospital_id, hospital_code, auto_confirm, default_slot_minutes,
			walk_in_allowed, past_booking_grace_hours
		FROM hospital_settings
		WHERE hospital_id = $1
	`
	var settings model.HospitalSettings
	err := r.db.GetContext(ctx, &settings, query, hospitalID)
	if err != nil {
		if isNoRows(err) {
			return nil, apperrors.NotFound("hospital settings", err)
		}
		return nil, fmt.Errorf("failed to get hospital settings: %w", err)
	}
	return &settings, nil
}
