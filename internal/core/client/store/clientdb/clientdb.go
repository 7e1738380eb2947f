// Package clientdb persists client records in Postgres.
package clientdb

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/medispa/backoffice/internal/core/client"
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

func (s *Store) Insert(ctx context.Context, c client.Client) error {
	const q = `
	INSERT INTO clients
		(id, name, email, phone, gender, dob, occupation, referred_by, consultant, notes, balance, created_at)
	VALUES
		(@id, @name, @email, @phone, @gender, @dob, @occupation, @referred_by, @consultant, @notes, @balance::numeric, @created_at)`

	if err := db.NamedExec(ctx, s.log, s.db, q, toDBClient(c)); err != nil {
		if errors.Is(err, db.ErrDBDuplicatedEntry) {
			return client.ErrDuplicateEmail
		}
		return err
	}

	return nil
}

// Update writes profile fields only. The balance column belongs to the
// ledger store.
func (s *Store) Update(ctx context.Context, c client.Client) error {
	const q = `
	UPDATE clients SET
		name = @name,
		email = @email,
		phone = @phone,
		gender = @gender,
		dob = @dob,
		occupation = @occupation,
		referred_by = @referred_by,
		consultant = @consultant,
		notes = @notes
	WHERE
		id = @id`

	if err := db.NamedExec(ctx, s.log, s.db, q, toDBClient(c)); err != nil {
		if errors.Is(err, db.ErrDBDuplicatedEntry) {
			return client.ErrDuplicateEmail
		}
		return err
	}

	return nil
}

func (s *Store) QueryByID(ctx context.Context, clientID uuid.UUID) (client.Client, error) {
	data := struct {
		ID uuid.UUID `db:"id"`
	}{
		ID: clientID,
	}

	const q = `
	SELECT
		id, name, email, phone, gender, dob, occupation, referred_by,
		consultant, notes, balance::text AS balance, created_at
	FROM
		clients
	WHERE
		id = @id`

	c, err := db.NamedQueryStruct[dbClient](ctx, s.log, s.db, q, data)
	if err != nil {
		if errors.Is(err, db.ErrDBNotFound) {
			return client.Client{}, client.ErrNotFound
		}
		return client.Client{}, err
	}

	return toClient(c)
}

func (s *Store) Query(ctx context.Context, search string) ([]client.Client, error) {
	data := struct {
		Search string `db:"search"`
	}{
		Search: "%" + search + "%",
	}

	const q = `
	SELECT
		id, name, email, phone, gender, dob, occupation, referred_by,
		consultant, notes, balance::text AS balance, created_at
	FROM
		clients
	WHERE
		name ILIKE @search OR email ILIKE @search
	ORDER BY
		name`

	rows, err := db.NamedQuerySlice[dbClient](ctx, s.log, s.db, q, data)
	if err != nil {
		return nil, err
	}

	clients := make([]client.Client, len(rows))
	for i, row := range rows {
		c, err := toClient(row)
		if err != nil {
			return nil, err
		}
		clients[i] = c
	}

	return clients, nil
}
