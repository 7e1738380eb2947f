// Package client deals with client records and balance reads.
package client

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/medispa/backoffice/internal/web"
	"github.com/shopspring/decimal"
)

// Set of errors for client API.
var (
	ErrNotFound        = errors.New("client not found")
	ErrInvalidArgument = errors.New("client invalid argument")
	ErrDuplicateEmail  = errors.New("client email already registered")
)

// Store is used to persist client's data.
type Store interface {
	Insert(ctx context.Context, c Client) error
	Update(ctx context.Context, c Client) error
	QueryByID(ctx context.Context, clientID uuid.UUID) (Client, error)
	Query(ctx context.Context, search string) ([]Client, error)
}

// Core deals with client's business logic.
type Core struct {
	store Store
}

// NewCore constructs a client core.
func NewCore(store Store) *Core {
	return &Core{store: store}
}

// Create registers a new client with a zero balance.
func (c *Core) Create(ctx context.Context, nc NewClient) (Client, error) {
	if nc.Name == "" {
		return Client{}, fmt.Errorf("%w: name is required", ErrInvalidArgument)
	}

	cl := Client{
		ID:         uuid.New(),
		Name:       nc.Name,
		Email:      nc.Email,
		Phone:      nc.Phone,
		Gender:     nc.Gender,
		DOB:        nc.DOB,
		Occupation: nc.Occupation,
		ReferredBy: nc.ReferredBy,
		Consultant: nc.Consultant,
		Notes:      nc.Notes,
		Balance:    decimal.Zero,
		CreatedAt:  web.GetTime(ctx),
	}

	if err := c.store.Insert(ctx, cl); err != nil {
		return Client{}, err
	}

	return cl, nil
}

// Update edits profile fields. The balance is not editable here.
func (c *Core) Update(ctx context.Context, clientID uuid.UUID, uc UpdateClient) (Client, error) {
	cl, err := c.store.QueryByID(ctx, clientID)
	if err != nil {
		return Client{}, err
	}

	if uc.Name != nil {
		if *uc.Name == "" {
			return Client{}, fmt.Errorf("%w: name must not be empty", ErrInvalidArgument)
		}
		cl.Name = *uc.Name
	}
	if uc.Email != nil {
		cl.Email = *uc.Email
	}
	if uc.Phone != nil {
		cl.Phone = *uc.Phone
	}
	if uc.Gender != nil {
		cl.Gender = *uc.Gender
	}
	if uc.DOB != nil {
		cl.DOB = uc.DOB
	}
	if uc.Occupation != nil {
		cl.Occupation = *uc.Occupation
	}
	if uc.ReferredBy != nil {
		cl.ReferredBy = *uc.ReferredBy
	}
	if uc.Consultant != nil {
		cl.Consultant = *uc.Consultant
	}
	if uc.Notes != nil {
		cl.Notes = *uc.Notes
	}

	if err := c.store.Update(ctx, cl); err != nil {
		return Client{}, err
	}

	return cl, nil
}

// QueryByID returns one client.
func (c *Core) QueryByID(ctx context.Context, clientID uuid.UUID) (Client, error) {
	return c.store.QueryByID(ctx, clientID)
}

// Query lists clients, optionally filtered by a name/email search term.
func (c *Core) Query(ctx context.Context, search string) ([]Client, error) {
	return c.store.Query(ctx, search)
}

// Balance returns the client's current prepaid balance.
func (c *Core) Balance(ctx context.Context, clientID uuid.UUID) (decimal.Decimal, error) {
	cl, err := c.store.QueryByID(ctx, clientID)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return cl.Balance, nil
}
