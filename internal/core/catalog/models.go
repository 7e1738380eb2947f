package catalog

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Service is a treatment offered by the spa. Every service has at least
// one variant; variants carry the bookable duration and price.
type Service struct {
	ID          uuid.UUID
	Name        string
	Description string
	Category    string
	IsActive    bool
	Variants    []Variant
	CreatedAt   time.Time
}

// Variant is one bookable flavor of a service.
type Variant struct {
	ID          uuid.UUID
	ServiceID   uuid.UUID
	Name        string
	DurationMin int
	Price       decimal.Decimal
}

// NewService is the information needed to add a service to the catalog.
type NewService struct {
	Name        string
	Description string
	Category    string
	IsActive    bool
	Variants    []NewVariant
}

// NewVariant is one variant of a new service.
type NewVariant struct {
	Name        string
	DurationMin int
	Price       decimal.Decimal
}

// UpdateService carries editable service fields. Nil means unchanged.
type UpdateService struct {
	Name        *string
	Description *string
	Category    *string
	IsActive    *bool
}

// Package is a catalog entry selling N sessions of a service for a
// fixed price.
type Package struct {
	ID            uuid.UUID
	ServiceID     uuid.UUID
	ServiceName   string
	Name          string
	Description   string
	TotalSessions int
	Price         decimal.Decimal
	IsActive      bool
	PurchaseCount int
	CreatedAt     time.Time
}

// NewPackage is the information needed to add a package to the catalog.
type NewPackage struct {
	ServiceID     uuid.UUID
	Name          string
	Description   string
	TotalSessions int
	Price         decimal.Decimal
}

// UpdatePackage carries editable package fields. Nil means unchanged.
type UpdatePackage struct {
	Name          *string
	Description   *string
	TotalSessions *int
	Price         *decimal.Decimal
	IsActive      *bool
}

// Filter narrows service listings.
type Filter struct {
	Category   string
	Search     string
	ActiveOnly bool
}
