package main

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/medportal/timetable/libs/config"
	"github.com/medportal/timetable/libs/db"
	"github.com/medportal/timetable/libs/runtime"
	"github.com/medportal/timetable/services/timetable-service/internal/directory"
	"github.com/medportal/timetable/services/timetable-service/internal/inbox"
	"github.com/medportal/timetable/services/timetable-service/internal/outbox"
	"github.com/medportal/timetable/services/timetable-service/internal/portal"
	"github.com/medportal/timetable/services/timetable-service/internal/storage"
)

// backend bundles the appointment directory with what it brings along.
type backend struct {
	dir    directory.Directory
	names  directory.PatientNamer
	inbox  inbox.Recorder
	checks []runtime.ReadyCheck
	close  func()
}

// openBackend selects the appointment source from APPOINTMENTS_BACKEND:
// the portal REST API (default) or the local Postgres store with its outbox.
func openBackend(ctx context.Context, logger *slog.Logger, brokers []string) (*backend, error) {
	switch strings.ToLower(config.String("APPOINTMENTS_BACKEND", "rest")) {
	case "postgres":
		dbURL, err := config.RequiredString("DATABASE_URL")
		if err != nil {
			return nil, err
		}
		pool, err := db.Open(ctx, dbURL, db.DefaultOptions())
		if err != nil {
			return nil, err
		}
		outboxRepo := outbox.NewRepository()
		repo := storage.NewAppointmentRepository(pool, outboxRepo)
		publisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
			Brokers:   brokers,
			PollEvery: 2 * time.Second,
			BatchSize: 50,
		})
		go publisher.Run(ctx)
		logger.Info("appointments backend", "kind", "postgres")
		return &backend{
			dir:    repo,
			names:  repo,
			inbox:  inbox.NewRepository(pool),
			checks: []runtime.ReadyCheck{{Name: "db", Check: db.ReadyCheck(pool)}},
			close:  pool.Close,
		}, nil
	default:
		timeout, err := config.Seconds("PORTAL_TIMEOUT_SECONDS", 10*time.Second)
		if err != nil {
			return nil, err
		}
		baseURL, err := config.RequiredString("PORTAL_BASE_URL")
		if err != nil {
			return nil, err
		}
		client, err := portal.NewClient(portal.Config{
			BaseURL: baseURL,
			Timeout: timeout,
			Token:   config.String("PORTAL_SERVICE_TOKEN", ""),
			Logger:  logger,
		})
		if err != nil {
			return nil, err
		}
		logger.Info("appointments backend", "kind", "rest", "base_url", baseURL)
		return &backend{
			dir:    client,
			names:  client,
			inbox:  inbox.NewMemoryRecorder(10000),
			checks: []runtime.ReadyCheck{{Name: "portal", Check: client.Ping}},
			close:  func() {},
		}, nil
	}
}
