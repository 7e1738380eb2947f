package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RecordType classifies a ledger entry by how it moves the balance.
// FUND_ADDITION credits the client, the other two debit it.
type RecordType string

const (
	TypeTreatment       RecordType = "TREATMENT"
	TypeFundAddition    RecordType = "FUND_ADDITION"
	TypePackagePurchase RecordType = "PACKAGE_PURCHASE"
)

func (t RecordType) valid() bool {
	switch t {
	case TypeTreatment, TypeFundAddition, TypePackagePurchase:
		return true
	}
	return false
}

// Record is one entry in a client's ledger. Records are append only:
// TotalAmount is the amount that actually moved the balance (net of any
// package offsets) and BalanceAfter is the balance snapshot right after
// this entry.
type Record struct {
	ID           uuid.UUID
	ClientID     uuid.UUID
	Date         time.Time
	Type         RecordType
	TotalAmount  decimal.Decimal
	BalanceAfter decimal.Decimal
	StaffName    string
	Notes        string
	Items        []LineItem
	CreatedAt    time.Time
}

// LineItem is one treatment within a TREATMENT record. Price is the
// nominal catalog price; when ClientPackageID is set the item was paid
// with a package session and contributed nothing to TotalAmount.
type LineItem struct {
	ID               uuid.UUID
	Name             string
	Price            decimal.Decimal
	ServiceVariantID *uuid.UUID
	ClientPackageID  *uuid.UUID
}

// NewRecord is the information needed to post a ledger entry.
type NewRecord struct {
	Date        time.Time
	Type        RecordType
	TotalAmount decimal.Decimal
	StaffName   string
	Notes       string
	Items       []NewLineItem
	UsePackages bool
}

// NewLineItem is one treatment to charge at checkout.
type NewLineItem struct {
	Name             string
	Price            decimal.Decimal
	ServiceVariantID *uuid.UUID
}

// Package is the catalog view the purchase workflow needs.
type Package struct {
	ID            uuid.UUID
	ServiceID     uuid.UUID
	Name          string
	TotalSessions int
	Price         decimal.Decimal
	IsActive      bool
}

// ClientPackage is a purchased entitlement: a bundle of prepaid
// sessions for one service, expiring PackageValidity after purchase.
type ClientPackage struct {
	ID                uuid.UUID
	ClientID          uuid.UUID
	PackageID         uuid.UUID
	PackageName       string
	ServiceID         uuid.UUID
	ServiceName       string
	SessionsRemaining int
	TotalSessions     int
	Price             decimal.Decimal
	PurchaseDate      time.Time
	ExpiryDate        time.Time
	IsActive          bool
}

// UpdateClientPackage carries the administrative overrides allowed on
// an entitlement. A new PurchaseDate recomputes the expiry with the
// standard validity window.
type UpdateClientPackage struct {
	SessionsRemaining *int
	PurchaseDate      *time.Time
	IsActive          *bool
}

// Purchase is the result of buying a package: the created entitlement,
// the debited balance and the ledger record written for the purchase.
type Purchase struct {
	ClientPackage ClientPackage
	Balance       decimal.Decimal
	Record        Record
}
