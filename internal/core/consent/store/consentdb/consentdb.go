// Package consentdb persists consent forms in Postgres.
package consentdb

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/medispa/backoffice/internal/core/consent"
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

type dbForm struct {
	ID        uuid.UUID `db:"id"`
	ClientID  uuid.UUID `db:"client_id"`
	Type      string    `db:"type"`
	Signature string    `db:"signature"`
	FormData  []byte    `db:"form_data"`
	SignedAt  time.Time `db:"signed_at"`
	CreatedAt time.Time `db:"created_at"`
}

func toForm(f dbForm) consent.Form {
	return consent.Form{
		ID:        f.ID,
		ClientID:  f.ClientID,
		Type:      consent.FormType(f.Type),
		Signature: f.Signature,
		FormData:  json.RawMessage(f.FormData),
		SignedAt:  f.SignedAt,
		CreatedAt: f.CreatedAt,
	}
}

func (s *Store) Insert(ctx context.Context, f consent.Form) error {
	data := dbForm{
		ID:        f.ID,
		ClientID:  f.ClientID,
		Type:      string(f.Type),
		Signature: f.Signature,
		FormData:  []byte(f.FormData),
		SignedAt:  f.SignedAt,
		CreatedAt: f.CreatedAt,
	}

	const q = `
	INSERT INTO consent_forms
		(id, client_id, type, signature, form_data, signed_at, created_at)
	VALUES
		(@id, @client_id, @type, @signature, @form_data::jsonb, @signed_at, @created_at)`

	return db.NamedExec(ctx, s.log, s.db, q, data)
}

func (s *Store) QueryByClient(ctx context.Context, clientID uuid.UUID) ([]consent.Form, error) {
	data := struct {
		ClientID uuid.UUID `db:"client_id"`
	}{
		ClientID: clientID,
	}

	const q = `
	SELECT
		id, client_id, type, signature, form_data, signed_at, created_at
	FROM
		consent_forms
	WHERE
		client_id = @client_id
	ORDER BY
		signed_at DESC`

	rows, err := db.NamedQuerySlice[dbForm](ctx, s.log, s.db, q, data)
	if err != nil {
		return nil, err
	}

	forms := make([]consent.Form, len(rows))
	for i, row := range rows {
		forms[i] = toForm(row)
	}

	return forms, nil
}
