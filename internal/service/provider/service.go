package provider

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/carebook/booking-api/internal/model"
	"github.com/carebook/booking-api/internal/repository"
	apperrors "github.com/carebook/booking-api/pkg/errors"
)

// Service is the provider directory. Reads go through a short-lived TTL
// cache; fee updates invalidate the entry so the next booking snapshots the
// new fee.
type Service struct {
	repo  repository.ProviderRepository
	cache *cache.Cache
}

func NewService(repo repository.ProviderRepository, ttl, sweep time.Duration) *Service {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if sweep <= 0 {
		sweep = 2 * ttl
	}
	return &Service{
		repo:  repo,
		cache: cache.New(ttl, sweep),
	}
}

func cacheKey(id uuid.UUID) string {
	return "provider:" + id.String()
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*model.Provider, error) {
	if cached, ok := s.cache.Get(cacheKey(id)); ok {
		return cached.(*model.Provider), nil
	}

	provider, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, translate(err, "provider")
	}

	s.cache.SetDefault(cacheKey(id), provider)
	return provider, nil
}

func (s *Service) List(ctx context.Context) ([]*model.Provider, error) {
	providers, err := s.repo.List(ctx)
	if err != nil {
		return nil, translate(err, "providers")
	}
	return providers, nil
}

// UpdateFee changes the provider's current fee. Existing appointments keep
// the amount they snapshotted at creation.
func (s *Service) UpdateFee(ctx context.Context, id uuid.UUID, fee int64, caller *model.Caller) (*model.Provider, error) {
	if caller == nil || caller.Role != model.RoleAdmin {
		return nil, apperrors.Forbidden("only admins may update fees")
	}
	if fee <= 0 {
		return nil, apperrors.BadRequest("fee must be positive", nil)
	}

	provider, err := s.repo.UpdateFee(ctx, id, fee)
	if err != nil {
		return nil, translate(err, "provider")
	}

	s.cache.Delete(cacheKey(id))
	return provider, nil
}

func translate(err error, resource string) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return apperrors.NotFound(resource, err)
	case errors.Is(err, repository.ErrUnavailable):
		return apperrors.TransientStorage(err)
	default:
		return apperrors.Internal(err)
	}
}
