package ledgerdb

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/medispa/backoffice/internal/core/ledger"
	"github.com/shopspring/decimal"
)

// Money columns travel as text between Postgres and Go to keep the
// numeric values exact; the conversion functions below are the only
// place the parsing happens.

type dbRecord struct {
	ID           uuid.UUID `db:"id"`
	ClientID     uuid.UUID `db:"client_id"`
	Date         time.Time `db:"date"`
	Type         string    `db:"type"`
	TotalAmount  string    `db:"total_amount"`
	BalanceAfter string    `db:"balance_after"`
	StaffName    string    `db:"staff_name"`
	Notes        string    `db:"notes"`
	CreatedAt    time.Time `db:"created_at"`
}

func toRecord(r dbRecord) (ledger.Record, error) {
	total, err := decimal.NewFromString(r.TotalAmount)
	if err != nil {
		return ledger.Record{}, fmt.Errorf("parsing total_amount: %w", err)
	}
	after, err := decimal.NewFromString(r.BalanceAfter)
	if err != nil {
		return ledger.Record{}, fmt.Errorf("parsing balance_after: %w", err)
	}

	return ledger.Record{
		ID:           r.ID,
		ClientID:     r.ClientID,
		Date:         r.Date,
		Type:         ledger.RecordType(r.Type),
		TotalAmount:  total,
		BalanceAfter: after,
		StaffName:    r.StaffName,
		Notes:        r.Notes,
		CreatedAt:    r.CreatedAt,
	}, nil
}

type dbLineItem struct {
	ID               uuid.UUID  `db:"id"`
	RecordID         uuid.UUID  `db:"treatment_record_id"`
	Name             string     `db:"name"`
	Price            string     `db:"price"`
	ServiceVariantID *uuid.UUID `db:"service_variant_id"`
	ClientPackageID  *uuid.UUID `db:"client_package_id"`
}

func toLineItem(it dbLineItem) (ledger.LineItem, error) {
	price, err := decimal.NewFromString(it.Price)
	if err != nil {
		return ledger.LineItem{}, fmt.Errorf("parsing price: %w", err)
	}

	return ledger.LineItem{
		ID:               it.ID,
		Name:             it.Name,
		Price:            price,
		ServiceVariantID: it.ServiceVariantID,
		ClientPackageID:  it.ClientPackageID,
	}, nil
}

type dbPackage struct {
	ID            uuid.UUID `db:"id"`
	ServiceID     uuid.UUID `db:"service_id"`
	Name          string    `db:"name"`
	TotalSessions int       `db:"total_sessions"`
	Price         string    `db:"price"`
	IsActive      bool      `db:"is_active"`
}

func toPackage(p dbPackage) (ledger.Package, error) {
	price, err := decimal.NewFromString(p.Price)
	if err != nil {
		return ledger.Package{}, fmt.Errorf("parsing price: %w", err)
	}

	return ledger.Package{
		ID:            p.ID,
		ServiceID:     p.ServiceID,
		Name:          p.Name,
		TotalSessions: p.TotalSessions,
		Price:         price,
		IsActive:      p.IsActive,
	}, nil
}

type dbClientPackage struct {
	ID                uuid.UUID `db:"id"`
	ClientID          uuid.UUID `db:"client_id"`
	PackageID         uuid.UUID `db:"package_id"`
	PackageName       string    `db:"package_name"`
	ServiceID         uuid.UUID `db:"service_id"`
	ServiceName       string    `db:"service_name"`
	SessionsRemaining int       `db:"sessions_remaining"`
	TotalSessions     int       `db:"total_sessions"`
	Price             string    `db:"price"`
	PurchaseDate      time.Time `db:"purchase_date"`
	ExpiryDate        time.Time `db:"expiry_date"`
	IsActive          bool      `db:"is_active"`
}

func toClientPackage(cp dbClientPackage) (ledger.ClientPackage, error) {
	price, err := decimal.NewFromString(cp.Price)
	if err != nil {
		return ledger.ClientPackage{}, fmt.Errorf("parsing price: %w", err)
	}

	return ledger.ClientPackage{
		ID:                cp.ID,
		ClientID:          cp.ClientID,
		PackageID:         cp.PackageID,
		PackageName:       cp.PackageName,
		ServiceID:         cp.ServiceID,
		ServiceName:       cp.ServiceName,
		SessionsRemaining: cp.SessionsRemaining,
		TotalSessions:     cp.TotalSessions,
		Price:             price,
		PurchaseDate:      cp.PurchaseDate,
		ExpiryDate:        cp.ExpiryDate,
		IsActive:          cp.IsActive,
	}, nil
}
