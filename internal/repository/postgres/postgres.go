package postgres

import (
	"github.com/jmoiron/sqlx"

	"github.com/medicore/clinic-api/internal/repository"
)

type sequenceRepository struct {
	db *sqlx.DB
}

type appointmentRepository struct {
	db *sqlx.DB
}

type scheduleRepository struct {
	db *sqlx.DB
}

type queueRepository struct {
	db *sqlx.DB
}

type waitlistRepository struct {
	db *sqlx.DB
}

type patientRepository struct {
	db *sqlx.DB
}

type doctorRepository struct {
	db *sqlx.DB
}

type settingsRepository struct {
	db *sqlx.DB
}

func NewSequenceRepository(db *sqlx.DB) repository.SequenceRepository {
	return &sequenceRepository{db: db}
}

func NewAppointmentRepository(db *sqlx.DB) repository.AppointmentRepository {
	return &appointmentRepository{db: db}
}

func NewScheduleRepository(db *sqlx.DB) repository.ScheduleRepository {
	return &scheduleRepository{db: db}
}

func NewQueueRepository(db *sqlx.DB) repository.QueueRepository {
	return &queueRepository{db: db}
}

func NewWaitlistRepository(db *sqlx.DB) repository.WaitlistRepository {
	return &waitlistRepository{db: db}
}

func NewPatientRepository(db *sqlx.DB) repository.PatientRepository {
	return &patientRepository{db: db}
}

func NewDoctorRepository(db *sqlx.DB) repository.DoctorRepository {
	return &doctorRepository{db: db}
}

func NewSettingsRepository(db *sqlx.DB) repository.SettingsRepository {
	return &settingsRepository{db: db}
}
