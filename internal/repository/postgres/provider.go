package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/carebook/booking-api/internal/model"
	"github.com/carebook/booking-api/internal/repository"
)

const providerColumns = `id, number, name, email, specialty, fee, available, created_at, updated_at`

func (r *providerRepository) Create(ctx context.Context, provider *model.Provider) error {
	query := `
		INSERT INTO providers (id, number, name, email, specialty, fee, available, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	now := time.Now()
	provider.CreatedAt = now
	provider.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, query,
		provider.ID,
		provider.Number,
		provider.Name,
		provider.Email,
		provider.Specialty,
		provider.Fee,
		provider.Available,
		provider.CreatedAt,
		provider.UpdatedAt,
	)
	if err != nil {
		return wrapError("create provider", err)
	}
	return nil
}

func (r *providerRepository) Get(ctx context.Context, id uuid.UUID) (*model.Provider, error) {
	query := `SELECT ` + providerColumns + ` FROM providers WHERE id = $1`

	var provider model.Provider
	if err := r.db.GetContext(ctx, &provider, query, id); err != nil {
		return nil, wrapError("get provider", err)
	}
	return &provider, nil
}

func (r *providerRepository) GetByEmail(ctx context.Context, email string) (*model.Provider, error) {
	query := `SELECT ` + providerColumns + ` FROM providers WHERE email = $1`

	var provider model.Provider
	if err := r.db.GetContext(ctx, &provider, query, email); err != nil {
		return nil, wrapError("get provider by email", err)
	}
	return &provider, nil
}

func (r *providerRepository) List(ctx context.Context) ([]*model.Provider, error) {
	query := `SELECT ` + providerColumns + ` FROM providers ORDER BY name ASC`

	var providers []*model.Provider
	if err := r.db.SelectContext(ctx, &providers, query); err != nil {
		return nil, wrapError("list providers", err)
	}
	return providers, nil
}

func (r *providerRepository) UpdateFee(ctx context.Context, id uuid.UUID, fee int64) (*model.Provider, error) {
	query := `
		UPDATE providers
		SET fee = $2, updated_at = now()
		WHERE id = $1
		RETURNING ` + providerColumns

	var provider model.Provider
	err := r.db.GetContext(ctx, &provider, query, id, fee)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, wrapError("update provider fee", err)
	}
	return &provider, nil
}
