package clientdb

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/medispa/backoffice/internal/core/client"
	"github.com/shopspring/decimal"
)

type dbClient struct {
	ID         uuid.UUID  `db:"id"`
	Name       string     `db:"name"`
	Email      *string    `db:"email"`
	Phone      *string    `db:"phone"`
	Gender     *string    `db:"gender"`
	DOB        *time.Time `db:"dob"`
	Occupation *string    `db:"occupation"`
	ReferredBy *string    `db:"referred_by"`
	Consultant *string    `db:"consultant"`
	Notes      string     `db:"notes"`
	Balance    string     `db:"balance"`
	CreatedAt  time.Time  `db:"created_at"`
}

func toClient(c dbClient) (client.Client, error) {
	balance, err := decimal.NewFromString(c.Balance)
	if err != nil {
		return client.Client{}, fmt.Errorf("parsing balance: %w", err)
	}

	return client.Client{
		ID:         c.ID,
		Name:       c.Name,
		Email:      deref(c.Email),
		Phone:      deref(c.Phone),
		Gender:     deref(c.Gender),
		DOB:        c.DOB,
		Occupation: deref(c.Occupation),
		ReferredBy: deref(c.ReferredBy),
		Consultant: deref(c.Consultant),
		Notes:      c.Notes,
		Balance:    balance,
		CreatedAt:  c.CreatedAt,
	}, nil
}

func toDBClient(c client.Client) dbClient {
	return dbClient{
		ID:         c.ID,
		Name:       c.Name,
		Email:      nullable(c.Email),
		Phone:      nullable(c.Phone),
		Gender:     nullable(c.Gender),
		DOB:        c.DOB,
		Occupation: nullable(c.Occupation),
		ReferredBy: nullable(c.ReferredBy),
		Consultant: nullable(c.Consultant),
		Notes:      c.Notes,
		Balance:    c.Balance.String(),
		CreatedAt:  c.CreatedAt,
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// nullable maps the empty string to NULL so the unique constraint on
// email ignores clients registered without one.
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
