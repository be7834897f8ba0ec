package analytics

import (
	"context"
	"encoding/json"
	"time"

	"github.com/carepulse/analytics-platform/pkg/common/database"
	"github.com/carepulse/analytics-platform/pkg/common/logger"
	"github.com/carepulse/analytics-platform/pkg/common/models"
	"github.com/redis/go-redis/v9"
)

type Service struct {
	repo     *Repository
	cache    *redis.Client
	cacheTTL time.Duration
}

// NewService wires the query facade. cache may be nil; counts are then
// computed on every call.
func NewService(repo *Repository, cache *redis.Client, cacheTTL time.Duration) *Service {
	return &Service{repo: repo, cache: cache, cacheTTL: cacheTTL}
}

func (s *Service) ListProfiles(ctx context.Context, f models.ProfileFilter, limit, offset int) ([]models.AppProfile, error) {
	return s.repo.ListProfiles(ctx, f, limit, offset)
}

func (s *Service) ProfilePage(ctx context.Context, f models.ProfileFilter, limit, offset int) (models.Page, error) {
	total, err := s.repo.CountProfiles(ctx, f)
	if err != nil {
		return models.Page{}, err
	}
	return models.Page{Limit: limit, Offset: offset, Total: total}, nil
}

func (s *Service) ListAppointments(ctx context.Context, f models.AppointmentFilter, limit, offset int) ([]models.Appointment, error) {
	return s.repo.ListAppointments(ctx, f, limit, offset)
}

func (s *Service) AppointmentPage(ctx context.Context, f models.AppointmentFilter, limit, offset int) (models.Page, error) {
	total, err := s.repo.CountAppointments(ctx, f)
	if err != nil {
		return models.Page{}, err
	}
	return models.Page{Limit: limit, Offset: offset, Total: total}, nil
}

func (s *Service) ListABEvents(ctx context.Context, f models.ABEventFilter, limit, offset int) ([]models.ABEvent, error) {
	return s.repo.ListABEvents(ctx, f, limit, offset)
}

func (s *Service) ABEventPage(ctx context.Context, f models.ABEventFilter, limit, offset int) (models.Page, error) {
	total, err := s.repo.CountABEvents(ctx, f)
	if err != nil {
		return models.Page{}, err
	}
	return models.Page{Limit: limit, Offset: offset, Total: total}, nil
}

func (s *Service) Health(ctx context.Context) error {
	return s.repo.Health(ctx)
}

func (s *Service) ABFunnel(ctx context.Context) ([]models.FunnelRow, error) {
	return s.repo.ABFunnel(ctx)
}

// Counts serves per-table totals, consulting the cache first. Cache failures
// fall through to the database.
func (s *Service) Counts(ctx context.Context) (map[string]int64, error) {
	if s.cache != nil {
		cached, err := s.cache.Get(ctx, database.CountsCacheKey).Bytes()
		if err == nil {
			var counts map[string]int64
			if err := json.Unmarshal(cached, &counts); err == nil {
				return counts, nil
			}
		} else if err != redis.Nil {
			logger.WithError(err).Warn("counts cache read failed")
		}
	}

	counts, err := s.repo.Counts(ctx)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if payload, err := json.Marshal(counts); err == nil {
			if err := s.cache.Set(ctx, database.CountsCacheKey, payload, s.cacheTTL).Err(); err != nil {
				logger.WithError(err).Warn("counts cache write failed")
			}
		}
	}
	return counts, nil
}
