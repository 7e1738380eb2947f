// Package catalogdb persists catalog data in Postgres.
package catalogdb

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/medispa/backoffice/internal/core/catalog"
	db "github.com/medispa/backoffice/internal/data/dbsql/pgx"
)

type Store struct {
	log *slog.Logger
	db  db.DB
}

func NewStore(log *slog.Logger, database db.DB) *Store {
	return &Store{
		log: log,
		db:  database,
	}
}

func (s *Store) ExecUnderTx(ctx context.Context, fn func(tx catalog.Store) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(NewStore(s.log, tx)); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (s *Store) InsertService(ctx context.Context, svc catalog.Service) error {
	data := dbService{
		ID:          svc.ID,
		Name:        svc.Name,
		Description: svc.Description,
		Category:    svc.Category,
		IsActive:    svc.IsActive,
		CreatedAt:   svc.CreatedAt,
	}

	const q = `
	INSERT INTO services
		(id, name, description, category, is_active, created_at)
	VALUES
		(@id, @name, @description, @category, @is_active, @created_at)`

	if err := db.NamedExec(ctx, s.log, s.db, q, data); err != nil {
		if errors.Is(err, db.ErrDBDuplicatedEntry) {
			return catalog.ErrInvalidArgument
		}
		return err
	}

	return nil
}

func (s *Store) InsertVariant(ctx context.Context, v catalog.Variant) error {
	data := dbVariant{
		ID:          v.ID,
		ServiceID:   v.ServiceID,
		Name:        v.Name,
		DurationMin: v.DurationMin,
		Price:       v.Price.String(),
	}

	const q = `
	INSERT INTO service_variants
		(id, service_id, name, duration_min, price)
	VALUES
		(@id, @service_id, @name, @duration_min, @price::numeric)`

	return db.NamedExec(ctx, s.log, s.db, q, data)
}

func (s *Store) UpdateService(ctx context.Context, svc catalog.Service) error {
	data := dbService{
		ID:          svc.ID,
		Name:        svc.Name,
		Description: svc.Description,
		Category:    svc.Category,
		IsActive:    svc.IsActive,
		CreatedAt:   svc.CreatedAt,
	}

	const q = `
	UPDATE services SET
		name = @name,
		description = @description,
		category = @category,
		is_active = @is_active
	WHERE
		id = @id`

	return db.NamedExec(ctx, s.log, s.db, q, data)
}

func (s *Store) QueryServiceByID(ctx context.Context, serviceID uuid.UUID) (catalog.Service, error) {
	data := struct {
		ID uuid.UUID `db:"id"`
	}{
		ID: serviceID,
	}

	const q = `
	SELECT
		id, name, description, category, is_active, created_at
	FROM
		services
	WHERE
		id = @id`

	row, err := db.NamedQueryStruct[dbService](ctx, s.log, s.db, q, data)
	if err != nil {
		if errors.Is(err, db.ErrDBNotFound) {
			return catalog.Service{}, catalog.ErrNotFound
		}
		return catalog.Service{}, err
	}

	svc := toService(row)

	variants, err := s.queryVariants(ctx, []uuid.UUID{svc.ID})
	if err != nil {
		return catalog.Service{}, err
	}
	svc.Variants = variants[svc.ID]

	return svc, nil
}

func (s *Store) QueryServices(ctx context.Context, filter catalog.Filter) ([]catalog.Service, error) {
	data := struct {
		Category   string `db:"category"`
		Search     string `db:"search"`
		ActiveOnly bool   `db:"active_only"`
	}{
		Category:   filter.Category,
		Search:     "%" + filter.Search + "%",
		ActiveOnly: filter.ActiveOnly,
	}

	const q = `
	SELECT
		id, name, description, category, is_active, created_at
	FROM
		services
	WHERE
		(NOT @active_only OR is_active)
		AND (@category = '' OR category = @category)
		AND name ILIKE @search
	ORDER BY
		name`

	rows, err := db.NamedQuerySlice[dbService](ctx, s.log, s.db, q, data)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return []catalog.Service{}, nil
	}

	ids := make([]uuid.UUID, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
	}

	variants, err := s.queryVariants(ctx, ids)
	if err != nil {
		return nil, err
	}

	services := make([]catalog.Service, len(rows))
	for i, r := range rows {
		svc := toService(r)
		svc.Variants = variants[svc.ID]
		services[i] = svc
	}

	return services, nil
}

func (s *Store) queryVariants(ctx context.Context, serviceIDs []uuid.UUID) (map[uuid.UUID][]catalog.Variant, error) {
	data := struct {
		ServiceIDs []uuid.UUID `db:"service_ids"`
	}{
		ServiceIDs: serviceIDs,
	}

	const q = `
	SELECT
		id, service_id, name, duration_min, price::text AS price
	FROM
		service_variants
	WHERE
		service_id = ANY(@service_ids)
	ORDER BY
		price`

	rows, err := db.NamedQuerySlice[dbVariant](ctx, s.log, s.db, q, data)
	if err != nil {
		return nil, err
	}

	out := make(map[uuid.UUID][]catalog.Variant)
	for _, row := range rows {
		v, err := toVariant(row)
		if err != nil {
			return nil, err
		}
		out[v.ServiceID] = append(out[v.ServiceID], v)
	}

	return out, nil
}

func (s *Store) InsertPackage(ctx context.Context, p catalog.Package) error {
	data := struct {
		ID            uuid.UUID `db:"id"`
		ServiceID     uuid.UUID `db:"service_id"`
		Name          string    `db:"name"`
		Description   string    `db:"description"`
		TotalSessions int       `db:"total_sessions"`
		Price         string    `db:"price"`
		IsActive      bool      `db:"is_active"`
		CreatedAt     time.Time `db:"created_at"`
	}{
		ID:            p.ID,
		ServiceID:     p.ServiceID,
		Name:          p.Name,
		Description:   p.Description,
		TotalSessions: p.TotalSessions,
		Price:         p.Price.String(),
		IsActive:      p.IsActive,
		CreatedAt:     p.CreatedAt,
	}

	const q = `
	INSERT INTO packages
		(id, service_id, name, description, total_sessions, price, is_active, created_at)
	VALUES
		(@id, @service_id, @name, @description, @total_sessions, @price::numeric, @is_active, @created_at)`

	return db.NamedExec(ctx, s.log, s.db, q, data)
}

func (s *Store) UpdatePackage(ctx context.Context, p catalog.Package) error {
	data := struct {
		ID            uuid.UUID `db:"id"`
		Name          string    `db:"name"`
		Description   string    `db:"description"`
		TotalSessions int       `db:"total_sessions"`
		Price         string    `db:"price"`
		IsActive      bool      `db:"is_active"`
	}{
		ID:            p.ID,
		Name:          p.Name,
		Description:   p.Description,
		TotalSessions: p.TotalSessions,
		Price:         p.Price.String(),
		IsActive:      p.IsActive,
	}

	const q = `
	UPDATE packages SET
		name = @name,
		description = @description,
		total_sessions = @total_sessions,
		price = @price::numeric,
		is_active = @is_active
	WHERE
		id = @id`

	return db.NamedExec(ctx, s.log, s.db, q, data)
}

func (s *Store) DeletePackage(ctx context.Context, packageID uuid.UUID) error {
	data := struct {
		ID uuid.UUID `db:"id"`
	}{
		ID: packageID,
	}

	const q = `
	DELETE FROM packages
	WHERE
		id = @id`

	return db.NamedExec(ctx, s.log, s.db, q, data)
}

func (s *Store) QueryPackageByID(ctx context.Context, packageID uuid.UUID) (catalog.Package, error) {
	data := struct {
		ID uuid.UUID `db:"id"`
	}{
		ID: packageID,
	}

	const q = `
	SELECT
		p.id, p.service_id, s.name AS service_name, p.name, p.description,
		p.total_sessions, p.price::text AS price, p.is_active,
		(SELECT COUNT(*) FROM client_packages cp WHERE cp.package_id = p.id) AS purchase_count,
		p.created_at
	FROM
		packages AS p
		JOIN services AS s ON s.id = p.service_id
	WHERE
		p.id = @id`

	row, err := db.NamedQueryStruct[dbPackage](ctx, s.log, s.db, q, data)
	if err != nil {
		if errors.Is(err, db.ErrDBNotFound) {
			return catalog.Package{}, catalog.ErrNotFound
		}
		return catalog.Package{}, err
	}

	return toPackage(row)
}

func (s *Store) QueryPackages(ctx context.Context) ([]catalog.Package, error) {
	const q = `
	SELECT
		p.id, p.service_id, s.name AS service_name, p.name, p.description,
		p.total_sessions, p.price::text AS price, p.is_active,
		(SELECT COUNT(*) FROM client_packages cp WHERE cp.package_id = p.id) AS purchase_count,
		p.created_at
	FROM
		packages AS p
		JOIN services AS s ON s.id = p.service_id
	ORDER BY
		p.created_at DESC`

	rows, err := db.NamedQuerySlice[dbPackage](ctx, s.log, s.db, q, struct{}{})
	if err != nil {
		return nil, err
	}

	packages := make([]catalog.Package, len(rows))
	for i, row := range rows {
		p, err := toPackage(row)
		if err != nil {
			return nil, err
		}
		packages[i] = p
	}

	return packages, nil
}

func (s *Store) CountPurchases(ctx context.Context, packageID uuid.UUID) (int, error) {
	data := struct {
		ID uuid.UUID `db:"id"`
	}{
		ID: packageID,
	}

	const q = `
	SELECT
		COUNT(*) AS count
	FROM
		client_packages
	WHERE
		package_id = @id`

	row, err := db.NamedQueryStruct[struct {
		Count int `db:"count"`
	}](ctx, s.log, s.db, q, data)
	if err != nil {
		return 0, err
	}

	return row.Count, nil
}
