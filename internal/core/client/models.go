package client

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Client is a spa client: profile attributes plus the prepaid balance.
// The balance is only ever mutated by the ledger core; profile edits
// through this package never touch it.
type Client struct {
	ID         uuid.UUID
	Name       string
	Email      string
	Phone      string
	Gender     string
	DOB        *time.Time
	Occupation string
	ReferredBy string
	Consultant string
	Notes      string
	Balance    decimal.Decimal
	CreatedAt  time.Time
}

// NewClient is the information needed to register a client.
type NewClient struct {
	Name       string
	Email      string
	Phone      string
	Gender     string
	DOB        *time.Time
	Occupation string
	ReferredBy string
	Consultant string
	Notes      string
}

// UpdateClient carries the profile fields that may be edited. Nil
// means leave unchanged.
type UpdateClient struct {
	Name       *string
	Email      *string
	Phone      *string
	Gender     *string
	DOB        *time.Time
	Occupation *string
	ReferredBy *string
	Consultant *string
	Notes      *string
}
