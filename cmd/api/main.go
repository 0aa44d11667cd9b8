package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/medicore/clinic-api/internal/config"
	"github.com/medicore/clinic-api/internal/email"
	appointmentHandler "github.com/medicore/clinic-api/internal/handler/appointment"
	healthHandler "github.com/medicore/clinic-api/internal/handler/health"
	identifierHandler "github.com/medicore/clinic-api/internal/handler/identifier"
	queueHandler "github.com/medicore/clinic-api/internal/handler/queue"
	scheduleHandler "github.com/medicore/clinic-api/internal/handler/schedule"
	waitlistHandler "github.com/medicore/clinic-api/internal/handler/waitlist"
	"github.com/medicore/clinic-api/internal/repository/postgres"
	"github.com/medicore/clinic-api/internal/router"
	appointmentService "github.com/medicore/clinic-api/internal/service/appointment"
	notificationService "github.com/medicore/clinic-api/internal/service/notification"
	queueService "github.com/medicore/clinic-api/internal/service/queue"
	scheduleService "github.com/medicore/clinic-api/internal/service/schedule"
	sequencerService "github.com/medicore/clinic-api/internal/service/sequencer"
	settingsService "github.com/medicore/clinic-api/internal/service/settings"
	waitlistService "github.com/medicore/clinic-api/internal/service/waitlist"
	"github.com/medicore/clinic-api/pkg/lock"
	"github.com/medicore/clinic-api/pkg/logger"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	appLogger := logger.NewLogger(nil)

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	// Redis is optional: with it, booking locks hold across replicas;
	// without it, a single instance uses in-process mutexes.
	var locker lock.Locker = lock.NewMutexLocker()
	if cfg.Redis.Addr != "" {
		redisClient, err := lock.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer redisClient.Close()
		locker = lock.NewRedisLocker(redisClient, 10*time.Second)
	}

	// Repositories
	sequenceRepo := postgres.NewSequenceRepository(db)
	apptRepo := postgres.NewAppointmentRepository(db)
	scheduleRepo := postgres.NewScheduleRepository(db)
	queueRepo := postgres.NewQueueRepository(db)
	waitlistRepo := postgres.NewWaitlistRepository(db)
	patientRepo := postgres.NewPatientRepository(db)
	doctorRepo := postgres.NewDoctorRepository(db)
	settingsRepo := postgres.NewSettingsRepository(db)

	// Services
	sequencerSvc := sequencerService.NewService(sequenceRepo)
	settingsSvc := settingsService.NewService(settingsRepo, cfg.Scheduling.SettingsCacheTTL)
	scheduleSvc := scheduleService.NewService(scheduleRepo, apptRepo)
	notifier := notificationService.NewService(email.NewSender(cfg.SMTP), appLogger)
	apptSvc := appointmentService.NewService(
		apptRepo, patientRepo, doctorRepo,
		scheduleSvc, sequencerSvc, notifier, locker,
		cfg.Scheduling, appLogger,
	)
	queueSvc := queueService.NewService(
		queueRepo, apptRepo, waitlistRepo, patientRepo, doctorRepo,
		scheduleSvc, sequencerSvc, appLogger,
	)
	waitlistSvc := waitlistService.NewService(
		waitlistRepo, apptRepo, patientRepo, doctorRepo,
		sequencerSvc, notifier, appLogger,
	)

	// Router and handlers
	r := router.NewRouter(
		cfg.RateLimit,
		healthHandler.NewHandler(db),
		identifierHandler.NewHandler(sequencerSvc),
		appointmentHandler.NewHandler(apptSvc, settingsSvc),
		scheduleHandler.NewHandler(scheduleSvc),
		queueHandler.NewHandler(queueSvc, settingsSvc),
		waitlistHandler.NewHandler(waitlistSvc),
	)
	r.Setup()

	srv := &http.Server{
		Addr:           fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:        r.Engine(),
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server exited properly")
}
