// Package catalog deals with the service and package catalogs:
// reference data edited by staff, read by the checkout and purchase
// flows but never mutated by them.
package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/medispa/backoffice/internal/web"
)

// Set of errors for catalog API.
var (
	ErrNotFound        = errors.New("catalog not found")
	ErrInvalidArgument = errors.New("catalog invalid argument")
	ErrPackageInUse    = errors.New("package has client purchases")
)

// Store is used to persist catalog data.
type Store interface {
	// ExecUnderTx executes the fn function under a transaction. If fn returns
	// an error the transaction is rolled back and the error is returned.
	ExecUnderTx(ctx context.Context, fn func(tx Store) error) error

	InsertService(ctx context.Context, svc Service) error
	InsertVariant(ctx context.Context, v Variant) error
	UpdateService(ctx context.Context, svc Service) error
	QueryServiceByID(ctx context.Context, serviceID uuid.UUID) (Service, error)
	QueryServices(ctx context.Context, filter Filter) ([]Service, error)

	InsertPackage(ctx context.Context, p Package) error
	UpdatePackage(ctx context.Context, p Package) error
	DeletePackage(ctx context.Context, packageID uuid.UUID) error
	QueryPackageByID(ctx context.Context, packageID uuid.UUID) (Package, error)
	QueryPackages(ctx context.Context) ([]Package, error)
	CountPurchases(ctx context.Context, packageID uuid.UUID) (int, error)
}

// Core deals with catalog business logic.
type Core struct {
	store Store
}

// NewCore constructs a catalog core.
func NewCore(store Store) *Core {
	return &Core{store: store}
}

// CreateService adds a service with its variants atomically.
func (c *Core) CreateService(ctx context.Context, ns NewService) (Service, error) {
	if err := ns.validate(); err != nil {
		return Service{}, err
	}

	now := web.GetTime(ctx)
	svc := Service{
		ID:          uuid.New(),
		Name:        ns.Name,
		Description: ns.Description,
		Category:    ns.Category,
		IsActive:    ns.IsActive,
		CreatedAt:   now,
	}
	if svc.Category == "" {
		svc.Category = "other"
	}

	for _, nv := range ns.Variants {
		svc.Variants = append(svc.Variants, Variant{
			ID:          uuid.New(),
			ServiceID:   svc.ID,
			Name:        nv.Name,
			DurationMin: nv.DurationMin,
			Price:       nv.Price,
		})
	}

	fn := func(tx Store) error {
		if err := tx.InsertService(ctx, svc); err != nil {
			return err
		}
		for _, v := range svc.Variants {
			if err := tx.InsertVariant(ctx, v); err != nil {
				return err
			}
		}
		return nil
	}

	if err := c.store.ExecUnderTx(ctx, fn); err != nil {
		return Service{}, err
	}

	return svc, nil
}

// UpdateService edits service fields. Variants are reference data for
// existing ledger rows and are not removable here.
func (c *Core) UpdateService(ctx context.Context, serviceID uuid.UUID, us UpdateService) (Service, error) {
	svc, err := c.store.QueryServiceByID(ctx, serviceID)
	if err != nil {
		return Service{}, err
	}

	if us.Name != nil {
		if *us.Name == "" {
			return Service{}, fmt.Errorf("%w: name must not be empty", ErrInvalidArgument)
		}
		svc.Name = *us.Name
	}
	if us.Description != nil {
		svc.Description = *us.Description
	}
	if us.Category != nil {
		svc.Category = *us.Category
	}
	if us.IsActive != nil {
		svc.IsActive = *us.IsActive
	}

	if err := c.store.UpdateService(ctx, svc); err != nil {
		return Service{}, err
	}

	return svc, nil
}

// QueryServiceByID returns one service with its variants.
func (c *Core) QueryServiceByID(ctx context.Context, serviceID uuid.UUID) (Service, error) {
	return c.store.QueryServiceByID(ctx, serviceID)
}

// QueryServices lists services matching the filter.
func (c *Core) QueryServices(ctx context.Context, filter Filter) ([]Service, error) {
	return c.store.QueryServices(ctx, filter)
}

// CreatePackage adds a package for an existing service.
func (c *Core) CreatePackage(ctx context.Context, np NewPackage) (Package, error) {
	switch {
	case np.Name == "":
		return Package{}, fmt.Errorf("%w: name is required", ErrInvalidArgument)
	case np.TotalSessions <= 0:
		return Package{}, fmt.Errorf("%w: total sessions must be positive", ErrInvalidArgument)
	case np.Price.IsNegative():
		return Package{}, fmt.Errorf("%w: price must not be negative", ErrInvalidArgument)
	}

	svc, err := c.store.QueryServiceByID(ctx, np.ServiceID)
	if err != nil {
		return Package{}, err
	}

	p := Package{
		ID:            uuid.New(),
		ServiceID:     svc.ID,
		ServiceName:   svc.Name,
		Name:          np.Name,
		Description:   np.Description,
		TotalSessions: np.TotalSessions,
		Price:         np.Price,
		IsActive:      true,
		CreatedAt:     web.GetTime(ctx),
	}

	if err := c.store.InsertPackage(ctx, p); err != nil {
		return Package{}, err
	}

	return p, nil
}

// UpdatePackage edits package fields.
func (c *Core) UpdatePackage(ctx context.Context, packageID uuid.UUID, up UpdatePackage) (Package, error) {
	p, err := c.store.QueryPackageByID(ctx, packageID)
	if err != nil {
		return Package{}, err
	}

	if up.Name != nil {
		if *up.Name == "" {
			return Package{}, fmt.Errorf("%w: name must not be empty", ErrInvalidArgument)
		}
		p.Name = *up.Name
	}
	if up.Description != nil {
		p.Description = *up.Description
	}
	if up.TotalSessions != nil {
		if *up.TotalSessions <= 0 {
			return Package{}, fmt.Errorf("%w: total sessions must be positive", ErrInvalidArgument)
		}
		p.TotalSessions = *up.TotalSessions
	}
	if up.Price != nil {
		if up.Price.IsNegative() {
			return Package{}, fmt.Errorf("%w: price must not be negative", ErrInvalidArgument)
		}
		p.Price = *up.Price
	}
	if up.IsActive != nil {
		p.IsActive = *up.IsActive
	}

	if err := c.store.UpdatePackage(ctx, p); err != nil {
		return Package{}, err
	}

	return p, nil
}

// DeletePackage removes a catalog package. Purchased entitlements keep
// referencing their package, so anything ever bought cannot be removed;
// deactivate it instead.
func (c *Core) DeletePackage(ctx context.Context, packageID uuid.UUID) error {
	fn := func(tx Store) error {
		if _, err := tx.QueryPackageByID(ctx, packageID); err != nil {
			return err
		}

		n, err := tx.CountPurchases(ctx, packageID)
		if err != nil {
			return err
		}
		if n > 0 {
			return ErrPackageInUse
		}

		return tx.DeletePackage(ctx, packageID)
	}

	return c.store.ExecUnderTx(ctx, fn)
}

// QueryPackageByID returns one package.
func (c *Core) QueryPackageByID(ctx context.Context, packageID uuid.UUID) (Package, error) {
	return c.store.QueryPackageByID(ctx, packageID)
}

// QueryPackages lists the package catalog with purchase counts.
func (c *Core) QueryPackages(ctx context.Context) ([]Package, error) {
	return c.store.QueryPackages(ctx)
}

func (ns NewService) validate() error {
	switch {
	case ns.Name == "":
		return fmt.Errorf("%w: name is required", ErrInvalidArgument)
	case len(ns.Variants) == 0:
		return fmt.Errorf("%w: at least one variant is required", ErrInvalidArgument)
	}

	for _, v := range ns.Variants {
		if v.Name == "" {
			return fmt.Errorf("%w: variant name is required", ErrInvalidArgument)
		}
		if v.DurationMin <= 0 {
			return fmt.Errorf("%w: variant duration must be positive", ErrInvalidArgument)
		}
		if v.Price.IsNegative() {
			return fmt.Errorf("%w: variant price must not be negative", ErrInvalidArgument)
		}
	}

	return nil
}
