// Package ledgerdb persists ledger data in Postgres.
package ledgerdb

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/medispa/backoffice/internal/core/ledger"
	db "github.com/medispa/backoffice/internal/data/dbsql/pgx"
	"github.com/shopspring/decimal"
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

func (s *Store) ExecUnderTx(ctx context.Context, fn func(tx ledger.Store) error) error {
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

// QueryBalanceForUpdate reads the client balance taking a row lock, so
// concurrent ledger operations for the same client serialize here.
func (s *Store) QueryBalanceForUpdate(ctx context.Context, clientID uuid.UUID) (decimal.Decimal, error) {
	data := struct {
		ClientID uuid.UUID `db:"client_id"`
	}{
		ClientID: clientID,
	}

	const q = `
	SELECT
		balance::text AS balance
	FROM
		clients
	WHERE
		id = @client_id
	FOR UPDATE`

	row, err := db.NamedQueryStruct[struct {
		Balance string `db:"balance"`
	}](ctx, s.log, s.db, q, data)
	if err != nil {
		if errors.Is(err, db.ErrDBNotFound) {
			return decimal.Decimal{}, ledger.ErrNotFound
		}
		return decimal.Decimal{}, err
	}

	return decimal.NewFromString(row.Balance)
}

func (s *Store) UpdateBalance(ctx context.Context, clientID uuid.UUID, balance decimal.Decimal) error {
	data := struct {
		ClientID uuid.UUID `db:"client_id"`
		Balance  string    `db:"balance"`
	}{
		ClientID: clientID,
		Balance:  balance.String(),
	}

	const q = `
	UPDATE clients SET
		balance = @balance::numeric
	WHERE
		id = @client_id`

	return db.NamedExec(ctx, s.log, s.db, q, data)
}

func (s *Store) ServiceIDByVariant(ctx context.Context, variantID uuid.UUID) (uuid.UUID, error) {
	data := struct {
		VariantID uuid.UUID `db:"variant_id"`
	}{
		VariantID: variantID,
	}

	const q = `
	SELECT
		service_id
	FROM
		service_variants
	WHERE
		id = @variant_id`

	row, err := db.NamedQueryStruct[struct {
		ServiceID uuid.UUID `db:"service_id"`
	}](ctx, s.log, s.db, q, data)
	if err != nil {
		if errors.Is(err, db.ErrDBNotFound) {
			return uuid.Nil, ledger.ErrNotFound
		}
		return uuid.Nil, err
	}

	return row.ServiceID, nil
}

// EarliestEligiblePackage returns the client's active, non-exhausted,
// unexpired entitlement for the service that expires soonest, locking
// the row so the following decrement cannot race another checkout.
func (s *Store) EarliestEligiblePackage(ctx context.Context, clientID, serviceID uuid.UUID, now time.Time) (ledger.ClientPackage, error) {
	data := struct {
		ClientID  uuid.UUID `db:"client_id"`
		ServiceID uuid.UUID `db:"service_id"`
		Now       time.Time `db:"now"`
	}{
		ClientID:  clientID,
		ServiceID: serviceID,
		Now:       now,
	}

	const q = `
	SELECT
		cp.id,
		cp.client_id,
		cp.package_id,
		p.name AS package_name,
		p.service_id,
		s.name AS service_name,
		cp.sessions_remaining,
		p.total_sessions,
		p.price::text AS price,
		cp.purchase_date,
		cp.expiry_date,
		cp.is_active
	FROM
		client_packages AS cp
		JOIN packages AS p ON p.id = cp.package_id
		JOIN services AS s ON s.id = p.service_id
	WHERE
		cp.client_id = @client_id
		AND p.service_id = @service_id
		AND cp.is_active
		AND cp.sessions_remaining > 0
		AND cp.expiry_date > @now
	ORDER BY
		cp.expiry_date
	LIMIT 1
	FOR UPDATE OF cp`

	cp, err := db.NamedQueryStruct[dbClientPackage](ctx, s.log, s.db, q, data)
	if err != nil {
		if errors.Is(err, db.ErrDBNotFound) {
			return ledger.ClientPackage{}, ledger.ErrNotFound
		}
		return ledger.ClientPackage{}, err
	}

	return toClientPackage(cp)
}

func (s *Store) DecrementSessions(ctx context.Context, clientPackageID uuid.UUID) error {
	data := struct {
		ID uuid.UUID `db:"id"`
	}{
		ID: clientPackageID,
	}

	// The CHECK constraint on sessions_remaining is the backstop; the
	// caller only decrements rows it selected FOR UPDATE with > 0.
	const q = `
	UPDATE client_packages SET
		sessions_remaining = sessions_remaining - 1
	WHERE
		id = @id`

	return db.NamedExec(ctx, s.log, s.db, q, data)
}

func (s *Store) InsertRecord(ctx context.Context, r ledger.Record) error {
	record := dbRecord{
		ID:           r.ID,
		ClientID:     r.ClientID,
		Date:         r.Date,
		Type:         string(r.Type),
		TotalAmount:  r.TotalAmount.String(),
		BalanceAfter: r.BalanceAfter.String(),
		StaffName:    r.StaffName,
		Notes:        r.Notes,
		CreatedAt:    r.CreatedAt,
	}

	const q = `
	INSERT INTO treatment_records
		(id, client_id, date, type, total_amount, balance_after, staff_name, notes, created_at)
	VALUES
		(@id, @client_id, @date, @type, @total_amount::numeric, @balance_after::numeric, @staff_name, @notes, @created_at)`

	if err := db.NamedExec(ctx, s.log, s.db, q, record); err != nil {
		return err
	}

	const qi = `
	INSERT INTO treatments
		(id, treatment_record_id, name, price, service_variant_id, client_package_id)
	VALUES
		(@id, @treatment_record_id, @name, @price::numeric, @service_variant_id, @client_package_id)`

	for _, it := range r.Items {
		item := dbLineItem{
			ID:               it.ID,
			RecordID:         r.ID,
			Name:             it.Name,
			Price:            it.Price.String(),
			ServiceVariantID: it.ServiceVariantID,
			ClientPackageID:  it.ClientPackageID,
		}
		if err := db.NamedExec(ctx, s.log, s.db, qi, item); err != nil {
			return err
		}
	}

	return nil
}

func (s *Store) QueryRecords(ctx context.Context, clientID uuid.UUID) ([]ledger.Record, error) {
	data := struct {
		ClientID uuid.UUID `db:"client_id"`
	}{
		ClientID: clientID,
	}

	const q = `
	SELECT
		id, client_id, date, type, total_amount::text AS total_amount,
		balance_after::text AS balance_after, staff_name, notes, created_at
	FROM
		treatment_records
	WHERE
		client_id = @client_id
	ORDER BY
		date DESC, created_at DESC`

	rows, err := db.NamedQuerySlice[dbRecord](ctx, s.log, s.db, q, data)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return []ledger.Record{}, nil
	}

	ids := make([]uuid.UUID, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
	}

	itemsData := struct {
		RecordIDs []uuid.UUID `db:"record_ids"`
	}{
		RecordIDs: ids,
	}

	const qi = `
	SELECT
		id, treatment_record_id, name, price::text AS price,
		service_variant_id, client_package_id
	FROM
		treatments
	WHERE
		treatment_record_id = ANY(@record_ids)
	ORDER BY
		id`

	itemRows, err := db.NamedQuerySlice[dbLineItem](ctx, s.log, s.db, qi, itemsData)
	if err != nil && !errors.Is(err, db.ErrDBNotFound) {
		return nil, err
	}

	itemsByRecord := make(map[uuid.UUID][]ledger.LineItem)
	for _, it := range itemRows {
		item, err := toLineItem(it)
		if err != nil {
			return nil, err
		}
		itemsByRecord[it.RecordID] = append(itemsByRecord[it.RecordID], item)
	}

	records := make([]ledger.Record, len(rows))
	for i, r := range rows {
		record, err := toRecord(r)
		if err != nil {
			return nil, err
		}
		record.Items = itemsByRecord[r.ID]
		records[i] = record
	}

	return records, nil
}

func (s *Store) QueryPackage(ctx context.Context, packageID uuid.UUID) (ledger.Package, error) {
	data := struct {
		PackageID uuid.UUID `db:"package_id"`
	}{
		PackageID: packageID,
	}

	// The join guarantees the referenced service still exists.
	const q = `
	SELECT
		p.id, p.service_id, p.name, p.total_sessions,
		p.price::text AS price, p.is_active
	FROM
		packages AS p
		JOIN services AS s ON s.id = p.service_id
	WHERE
		p.id = @package_id`

	p, err := db.NamedQueryStruct[dbPackage](ctx, s.log, s.db, q, data)
	if err != nil {
		if errors.Is(err, db.ErrDBNotFound) {
			return ledger.Package{}, ledger.ErrNotFound
		}
		return ledger.Package{}, err
	}

	return toPackage(p)
}

func (s *Store) ActivePackageExists(ctx context.Context, clientID, serviceID uuid.UUID) (bool, error) {
	data := struct {
		ClientID  uuid.UUID `db:"client_id"`
		ServiceID uuid.UUID `db:"service_id"`
	}{
		ClientID:  clientID,
		ServiceID: serviceID,
	}

	const q = `
	SELECT
		COUNT(*) AS count
	FROM
		client_packages AS cp
		JOIN packages AS p ON p.id = cp.package_id
	WHERE
		cp.client_id = @client_id
		AND p.service_id = @service_id
		AND cp.is_active
		AND cp.sessions_remaining > 0`

	row, err := db.NamedQueryStruct[struct {
		Count int `db:"count"`
	}](ctx, s.log, s.db, q, data)
	if err != nil {
		return false, err
	}

	return row.Count > 0, nil
}

func (s *Store) InsertClientPackage(ctx context.Context, cp ledger.ClientPackage) error {
	data := struct {
		ID                uuid.UUID `db:"id"`
		ClientID          uuid.UUID `db:"client_id"`
		PackageID         uuid.UUID `db:"package_id"`
		SessionsRemaining int       `db:"sessions_remaining"`
		PurchaseDate      time.Time `db:"purchase_date"`
		ExpiryDate        time.Time `db:"expiry_date"`
		IsActive          bool      `db:"is_active"`
	}{
		ID:                cp.ID,
		ClientID:          cp.ClientID,
		PackageID:         cp.PackageID,
		SessionsRemaining: cp.SessionsRemaining,
		PurchaseDate:      cp.PurchaseDate,
		ExpiryDate:        cp.ExpiryDate,
		IsActive:          cp.IsActive,
	}

	const q = `
	INSERT INTO client_packages
		(id, client_id, package_id, sessions_remaining, purchase_date, expiry_date, is_active)
	VALUES
		(@id, @client_id, @package_id, @sessions_remaining, @purchase_date, @expiry_date, @is_active)`

	return db.NamedExec(ctx, s.log, s.db, q, data)
}

func (s *Store) QueryClientPackage(ctx context.Context, id uuid.UUID) (ledger.ClientPackage, error) {
	data := struct {
		ID uuid.UUID `db:"id"`
	}{
		ID: id,
	}

	const q = `
	SELECT
		cp.id,
		cp.client_id,
		cp.package_id,
		p.name AS package_name,
		p.service_id,
		s.name AS service_name,
		cp.sessions_remaining,
		p.total_sessions,
		p.price::text AS price,
		cp.purchase_date,
		cp.expiry_date,
		cp.is_active
	FROM
		client_packages AS cp
		JOIN packages AS p ON p.id = cp.package_id
		JOIN services AS s ON s.id = p.service_id
	WHERE
		cp.id = @id`

	cp, err := db.NamedQueryStruct[dbClientPackage](ctx, s.log, s.db, q, data)
	if err != nil {
		if errors.Is(err, db.ErrDBNotFound) {
			return ledger.ClientPackage{}, ledger.ErrNotFound
		}
		return ledger.ClientPackage{}, err
	}

	return toClientPackage(cp)
}

func (s *Store) UpdateClientPackage(ctx context.Context, cp ledger.ClientPackage) error {
	data := struct {
		ID                uuid.UUID `db:"id"`
		SessionsRemaining int       `db:"sessions_remaining"`
		PurchaseDate      time.Time `db:"purchase_date"`
		ExpiryDate        time.Time `db:"expiry_date"`
		IsActive          bool      `db:"is_active"`
	}{
		ID:                cp.ID,
		SessionsRemaining: cp.SessionsRemaining,
		PurchaseDate:      cp.PurchaseDate,
		ExpiryDate:        cp.ExpiryDate,
		IsActive:          cp.IsActive,
	}

	const q = `
	UPDATE client_packages SET
		sessions_remaining = @sessions_remaining,
		purchase_date = @purchase_date,
		expiry_date = @expiry_date,
		is_active = @is_active
	WHERE
		id = @id`

	return db.NamedExec(ctx, s.log, s.db, q, data)
}

func (s *Store) QueryClientPackages(ctx context.Context, clientID uuid.UUID) ([]ledger.ClientPackage, error) {
	data := struct {
		ClientID uuid.UUID `db:"client_id"`
	}{
		ClientID: clientID,
	}

	const q = `
	SELECT
		cp.id,
		cp.client_id,
		cp.package_id,
		p.name AS package_name,
		p.service_id,
		s.name AS service_name,
		cp.sessions_remaining,
		p.total_sessions,
		p.price::text AS price,
		cp.purchase_date,
		cp.expiry_date,
		cp.is_active
	FROM
		client_packages AS cp
		JOIN packages AS p ON p.id = cp.package_id
		JOIN services AS s ON s.id = p.service_id
	WHERE
		cp.client_id = @client_id
	ORDER BY
		cp.purchase_date DESC`

	rows, err := db.NamedQuerySlice[dbClientPackage](ctx, s.log, s.db, q, data)
	if err != nil {
		return nil, err
	}

	cps := make([]ledger.ClientPackage, len(rows))
	for i, row := range rows {
		cp, err := toClientPackage(row)
		if err != nil {
			return nil, err
		}
		cps[i] = cp
	}

	return cps, nil
}
