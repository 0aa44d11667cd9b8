// Package settings resolves per-hospital configuration. Settings are read
// once at the request boundary and passed into operations explicitly, so a
// mid-request settings change never splits one operation's behavior.
package settings

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/medicore/clinic-api/internal/model"
	"github.com/medicore/clinic-api/internal/repository"
)

type Service struct {
	repo  repository.SettingsRepository
	cache *cache.Cache
}

func NewService(repo repository.SettingsRepository, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Service{
		repo:  repo,
		cache: cache.New(ttl, 2*ttl),
	}
}

// Resolve returns the hospital's settings, served from cache within the TTL.
func (s *Service) Resolve(ctx context.Context, hospitalID uuid.UUID) (*model.HospitalSettings, error) {
	key := hospitalID.String()
	if cached, ok := s.cache.Get(key); ok {
		return cached.(*model.HospitalSettings), nil
	}

	settings, err := s.repo.GetByHospital(ctx, hospitalID)
	if err != nil {
		return nil, err
	}
	s.cache.SetDefault(key, settings)
	return settings, nil
}

// Invalidate drops the cached settings for a hospital.
func (s *Service) Invalidate(hospitalID uuid.UUID) {
	s.cache.Delete(hospitalID.String())
}
