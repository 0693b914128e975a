package storage

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/tanvir-rahman/doctorsportal/internal/booking"
	"github.com/tanvir-rahman/doctorsportal/internal/model"
	"github.com/tanvir-rahman/doctorsportal/libs/db"
)

// CatalogRepository reads the treatment catalog. The catalog is seeded by
// migration and read-only at runtime.
type CatalogRepository struct {
	pool *db.Pool
}

func NewCatalogRepository(pool *db.Pool) *CatalogRepository {
	return &CatalogRepository{pool: pool}
}

func (r *CatalogRepository) ListOptions(ctx context.Context) ([]model.AppointmentOption, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, price_cents, slots
		FROM appointment_options
		ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var options []model.AppointmentOption
	for rows.Next() {
		var opt model.AppointmentOption
		if err := rows.Scan(&opt.ID, &opt.Name, &opt.PriceCents, &opt.Slots); err != nil {
			return nil, err
		}
		options = append(options, opt)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return options, nil
}

func (r *CatalogRepository) GetOptionByName(ctx context.Context, name string) (model.AppointmentOption, error) {
	var opt model.AppointmentOption
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, price_cents, slots
		FROM appointment_options
		WHERE name = $1
	`, name).Scan(&opt.ID, &opt.Name, &opt.PriceCents, &opt.Slots)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.AppointmentOption{}, booking.ErrNotFound
		}
		return model.AppointmentOption{}, err
	}
	return opt, nil
}
