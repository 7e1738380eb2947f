package catalogdb

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/medispa/backoffice/internal/core/catalog"
	"github.com/shopspring/decimal"
)

type dbService struct {
	ID          uuid.UUID `db:"id"`
	Name        string    `db:"name"`
	Description string    `db:"description"`
	Category    string    `db:"category"`
	IsActive    bool      `db:"is_active"`
	CreatedAt   time.Time `db:"created_at"`
}

func toService(s dbService) catalog.Service {
	return catalog.Service{
		ID:          s.ID,
		Name:        s.Name,
		Description: s.Description,
		Category:    s.Category,
		IsActive:    s.IsActive,
		CreatedAt:   s.CreatedAt,
	}
}

type dbVariant struct {
	ID          uuid.UUID `db:"id"`
	ServiceID   uuid.UUID `db:"service_id"`
	Name        string    `db:"name"`
	DurationMin int       `db:"duration_min"`
	Price       string    `db:"price"`
}

func toVariant(v dbVariant) (catalog.Variant, error) {
	price, err := decimal.NewFromString(v.Price)
	if err != nil {
		return catalog.Variant{}, fmt.Errorf("parsing price: %w", err)
	}

	return catalog.Variant{
		ID:          v.ID,
		ServiceID:   v.ServiceID,
		Name:        v.Name,
		DurationMin: v.DurationMin,
		Price:       price,
	}, nil
}

type dbPackage struct {
	ID            uuid.UUID `db:"id"`
	ServiceID     uuid.UUID `db:"service_id"`
	ServiceName   string    `db:"service_name"`
	Name          string    `db:"name"`
	Description   string    `db:"description"`
	TotalSessions int       `db:"total_sessions"`
	Price         string    `db:"price"`
	IsActive      bool      `db:"is_active"`
	PurchaseCount int       `db:"purchase_count"`
	CreatedAt     time.Time `db:"created_at"`
}

func toPackage(p dbPackage) (catalog.Package, error) {
	price, err := decimal.NewFromString(p.Price)
	if err != nil {
		return catalog.Package{}, fmt.Errorf("parsing price: %w", err)
	}

	return catalog.Package{
		ID:            p.ID,
		ServiceID:     p.ServiceID,
		ServiceName:   p.ServiceName,
		Name:          p.Name,
		Description:   p.Description,
		TotalSessions: p.TotalSessions,
		Price:         price,
		IsActive:      p.IsActive,
		PurchaseCount: p.PurchaseCount,
		CreatedAt:     p.CreatedAt,
	}, nil
}
