package seed

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/carepulse/analytics-platform/pkg/common/database"
	"github.com/carepulse/analytics-platform/pkg/common/kafka"
	"github.com/carepulse/analytics-platform/pkg/common/logger"
	"github.com/carepulse/analytics-platform/pkg/common/models"
	"github.com/carepulse/analytics-platform/pkg/observability/metrics"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	EntityProfile     = "app_profile"
	EntityAppointment = "appointment"
	EntityABEvent     = "ab_event"
)

// Service drives the three per-entity ingestion pipelines. Each file runs in
// isolation: a failure in one neither blocks nor rolls back the others.
// Reports to Kafka and counts-cache invalidation are best effort and never
// fail a run.
type Service struct {
	repo     *Repository
	dataDir  string
	sources  SourceMap
	producer *kafka.Producer
	cache    *redis.Client
}

func NewService(repo *Repository, dataDir string, sources SourceMap, producer *kafka.Producer, cache *redis.Client) *Service {
	return &Service{
		repo:     repo,
		dataDir:  dataDir,
		sources:  sources,
		producer: producer,
		cache:    cache,
	}
}

// Run executes one full ingestion pass. The returned error is non-nil only
// for run-level failures (storage unreachable); per-file failures are
// reported inside the FileReports.
func (s *Service) Run(ctx context.Context) ([]models.FileReport, error) {
	if err := s.repo.Ping(ctx); err != nil {
		return nil, fmt.Errorf("storage unreachable, aborting ingestion run: %w", err)
	}

	runID := uuid.New().String()
	log := logger.WithField("run_id", runID)
	log.WithField("data_dir", s.dataDir).Info("ingestion run started")

	// The three pipelines touch disjoint tables and have no ordering
	// dependency, so they run concurrently over the shared pool.
	reports := make([]models.FileReport, 3)
	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		reports[0] = s.seedProfiles(ctx, runID)
	}()
	go func() {
		defer wg.Done()
		reports[1] = s.seedAppointments(ctx, runID)
	}()
	go func() {
		defer wg.Done()
		reports[2] = s.seedABEvents(ctx, runID)
	}()
	wg.Wait()

	if s.cache != nil {
		if err := s.cache.Del(ctx, database.CountsCacheKey).Err(); err != nil {
			log.WithError(err).Warn("failed to invalidate counts cache")
		}
	}

	failed := 0
	for _, rep := range reports {
		if rep.Error != "" {
			failed++
		}
	}
	log.WithFields(map[string]interface{}{
		"files_failed": failed,
	}).Info("ingestion run finished")

	return reports, nil
}

func (s *Service) seedProfiles(ctx context.Context, runID string) models.FileReport {
	rep := models.FileReport{Entity: EntityProfile, File: s.sources.Profiles, StartedAt: time.Now().UTC()}

	f, skipped, err := s.openSource(s.sources.Profiles, &rep)
	if skipped {
		return rep
	}
	if err != nil {
		return s.failFile(ctx, runID, rep, nil, err)
	}
	defer f.Close()

	rows, err := NewRowReader(f)
	if err != nil {
		return s.failFile(ctx, runID, rep, nil, fmt.Errorf("reading %s: %w", rep.File, err))
	}

	ix, err := s.repo.BuildProfileIndex(ctx)
	if err != nil {
		return s.failFile(ctx, runID, rep, nil, fmt.Errorf("building profile index: %w", err))
	}

	plan, err := PlanProfiles(rows, ix)
	if err != nil {
		return s.failFile(ctx, runID, rep, nil, fmt.Errorf("reading %s: %w", rep.File, err))
	}

	res, err := s.repo.CommitProfiles(ctx, plan)
	if err != nil {
		return s.failFile(ctx, runID, rep, plan.Errors, fmt.Errorf("committing %s: %w", rep.File, err))
	}

	return s.finishFile(ctx, runID, rep, res, plan.Errors)
}

func (s *Service) seedAppointments(ctx context.Context, runID string) models.FileReport {
	rep := models.FileReport{Entity: EntityAppointment, File: s.sources.Appointments, StartedAt: time.Now().UTC()}

	f, skipped, err := s.openSource(s.sources.Appointments, &rep)
	if skipped {
		return rep
	}
	if err != nil {
		return s.failFile(ctx, runID, rep, nil, err)
	}
	defer f.Close()

	rows, err := NewRowReader(f)
	if err != nil {
		return s.failFile(ctx, runID, rep, nil, fmt.Errorf("reading %s: %w", rep.File, err))
	}

	ix, err := s.repo.BuildAppointmentIndex(ctx)
	if err != nil {
		return s.failFile(ctx, runID, rep, nil, fmt.Errorf("building appointment index: %w", err))
	}

	plan, err := PlanAppointments(rows, ix)
	if err != nil {
		return s.failFile(ctx, runID, rep, nil, fmt.Errorf("reading %s: %w", rep.File, err))
	}

	res, err := s.repo.CommitAppointments(ctx, plan)
	if err != nil {
		return s.failFile(ctx, runID, rep, plan.Errors, fmt.Errorf("committing %s: %w", rep.File, err))
	}

	return s.finishFile(ctx, runID, rep, res, plan.Errors)
}

func (s *Service) seedABEvents(ctx context.Context, runID string) models.FileReport {
	rep := models.FileReport{Entity: EntityABEvent, File: s.sources.ABEvents, StartedAt: time.Now().UTC()}

	f, skipped, err := s.openSource(s.sources.ABEvents, &rep)
	if skipped {
		return rep
	}
	if err != nil {
		return s.failFile(ctx, runID, rep, nil, err)
	}
	defer f.Close()

	rows, err := NewRowReader(f)
	if err != nil {
		return s.failFile(ctx, runID, rep, nil, fmt.Errorf("reading %s: %w", rep.File, err))
	}

	ix, err := s.repo.BuildABEventIndex(ctx)
	if err != nil {
		return s.failFile(ctx, runID, rep, nil, fmt.Errorf("building ab event index: %w", err))
	}

	plan, err := PlanABEvents(rows, ix)
	if err != nil {
		return s.failFile(ctx, runID, rep, nil, fmt.Errorf("reading %s: %w", rep.File, err))
	}

	res, err := s.repo.CommitABEvents(ctx, plan)
	if err != nil {
		return s.failFile(ctx, runID, rep, plan.Errors, fmt.Errorf("committing %s: %w", rep.File, err))
	}

	return s.finishFile(ctx, runID, rep, res, plan.Errors)
}

// openSource opens one source file. A missing file marks the report skipped;
// partial datasets are expected, not errors.
func (s *Service) openSource(name string, rep *models.FileReport) (*os.File, bool, error) {
	path := filepath.Join(s.dataDir, name)
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			rep.Skipped = true
			logger.WithFields(map[string]interface{}{
				"entity": rep.Entity,
				"file":   name,
			}).Info("source file absent, skipping entity")
			return nil, true, nil
		}
		return nil, false, fmt.Errorf("opening %s: %w", name, err)
	}
	return f, false, nil
}

func (s *Service) failFile(ctx context.Context, runID string, rep models.FileReport, rowErrors []*RowError, err error) models.FileReport {
	rep.Error = err.Error()
	rep.RowErrors = len(rowErrors)
	rep.Duration = time.Since(rep.StartedAt).String()

	logger.WithError(err).WithFields(map[string]interface{}{
		"run_id": runID,
		"entity": rep.Entity,
		"file":   rep.File,
	}).Error("file ingestion failed")

	if recordErr := s.repo.RecordRun(ctx, runID, rep, rowErrors); recordErr != nil {
		logger.WithError(recordErr).Warn("failed to record ingestion run")
	}
	s.publishReport(ctx, rep)
	return rep
}

func (s *Service) finishFile(ctx context.Context, runID string, rep models.FileReport, res CommitResult, rowErrors []*RowError) models.FileReport {
	rep.Inserted = res.Inserted
	rep.Updated = res.Updated
	rep.Duplicate = res.Skipped
	rep.RowErrors = res.RowErrors
	rep.Duration = time.Since(rep.StartedAt).String()

	metrics.ObserveFileIngestion(rep.Entity, res.Inserted, res.Updated, res.Skipped, res.RowErrors)

	logger.WithFields(map[string]interface{}{
		"run_id":     runID,
		"entity":     rep.Entity,
		"file":       rep.File,
		"inserted":   rep.Inserted,
		"updated":    rep.Updated,
		"duplicates": rep.Duplicate,
		"row_errors": rep.RowErrors,
		"duration":   rep.Duration,
	}).Info("file ingested")

	if err := s.repo.RecordRun(ctx, runID, rep, rowErrors); err != nil {
		logger.WithError(err).Warn("failed to record ingestion run")
	}
	s.publishReport(ctx, rep)
	return rep
}

func (s *Service) publishReport(ctx context.Context, rep models.FileReport) {
	if s.producer == nil {
		return
	}
	err := s.producer.PublishEvent(ctx, "ingestion-report", rep.Entity, map[string]interface{}{
		"file":       rep.File,
		"inserted":   rep.Inserted,
		"updated":    rep.Updated,
		"duplicates": rep.Duplicate,
		"row_errors": rep.RowErrors,
		"error":      rep.Error,
		"skipped":    rep.Skipped,
	})
	if err != nil {
		logger.WithError(err).Warn("failed to publish ingestion report")
	}
}
