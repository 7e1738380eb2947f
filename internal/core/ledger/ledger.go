// Package ledger implements the client balance ledger: fund additions,
// treatment charges with automatic package-session allocation, and the
// package purchase workflow. Every balance-affecting operation runs as
// one store transaction; a record insert and its balance update are
// never observable separately.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/medispa/backoffice/internal/web"
	"github.com/shopspring/decimal"
)

// Set of errors for ledger API.
var (
	ErrNotFound            = errors.New("ledger not found")
	ErrInvalidArgument     = errors.New("ledger invalid argument")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrDuplicatePackage    = errors.New("client already has an active package for this service")
	ErrTransactionFailed   = errors.New("ledger transaction failed")
)

// PackageValidity is how long a purchased package stays usable.
const PackageValidity = 500 * 24 * time.Hour

// Store is used to persist ledger data. Implementations must guarantee
// that reads inside ExecUnderTx take row locks on the client and on any
// entitlement rows they return, so concurrent operations on the same
// client serialize at the database.
type Store interface {
	// ExecUnderTx executes the fn function under a transaction. If fn returns
	// an error the transaction is rolled back and the error is returned.
	ExecUnderTx(ctx context.Context, fn func(tx Store) error) error

	QueryBalanceForUpdate(ctx context.Context, clientID uuid.UUID) (decimal.Decimal, error)
	UpdateBalance(ctx context.Context, clientID uuid.UUID, balance decimal.Decimal) error

	ServiceIDByVariant(ctx context.Context, variantID uuid.UUID) (uuid.UUID, error)
	EarliestEligiblePackage(ctx context.Context, clientID, serviceID uuid.UUID, now time.Time) (ClientPackage, error)
	DecrementSessions(ctx context.Context, clientPackageID uuid.UUID) error

	InsertRecord(ctx context.Context, r Record) error
	QueryRecords(ctx context.Context, clientID uuid.UUID) ([]Record, error)

	QueryPackage(ctx context.Context, packageID uuid.UUID) (Package, error)
	ActivePackageExists(ctx context.Context, clientID, serviceID uuid.UUID) (bool, error)
	InsertClientPackage(ctx context.Context, cp ClientPackage) error
	QueryClientPackage(ctx context.Context, id uuid.UUID) (ClientPackage, error)
	UpdateClientPackage(ctx context.Context, cp ClientPackage) error
	QueryClientPackages(ctx context.Context, clientID uuid.UUID) ([]ClientPackage, error)
}

// Locker serializes ledger operations per client across instances.
type Locker interface {
	Lock(ctx context.Context, key string) (func() error, error)
}

// Config holds the ledger policy knobs.
type Config struct {
	// AllowOverdraft lets TREATMENT charges drive the balance negative
	// (the spa extends credit). Package purchases always require the
	// full price in balance regardless of this setting.
	AllowOverdraft bool
}

// Core deals with the ledger business logic.
type Core struct {
	log    *slog.Logger
	store  Store
	locker Locker
	cfg    Config
}

// NewCore constructs a ledger core.
func NewCore(log *slog.Logger, store Store, locker Locker, cfg Config) *Core {
	return &Core{log: log, store: store, locker: locker, cfg: cfg}
}

// PostRecord posts a ledger entry for the client and returns the stored
// record. For TREATMENT entries with UsePackages set, each line item is
// first resolved against the client's entitlements: the active,
// unexpired package for the item's service with the earliest expiry
// covers the item, its session count is decremented and the item's cash
// contribution drops to zero. Allocation, record insert and balance
// update all commit or roll back together.
func (c *Core) PostRecord(ctx context.Context, clientID uuid.UUID, nr NewRecord) (Record, error) {
	if err := nr.validate(); err != nil {
		return Record{}, err
	}

	unlock, err := c.locker.Lock(ctx, lockKey(clientID))
	if err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrTransactionFailed, err)
	}
	defer unlock()

	now := web.GetTime(ctx)
	date := nr.Date
	if date.IsZero() {
		date = now
	}

	var rec Record
	fn := func(tx Store) error {
		balance, err := tx.QueryBalanceForUpdate(ctx, clientID)
		if err != nil {
			return err
		}

		charged := nr.TotalAmount
		items := make([]LineItem, 0, len(nr.Items))

		for _, ni := range nr.Items {
			item := LineItem{
				ID:               uuid.New(),
				Name:             ni.Name,
				Price:            ni.Price,
				ServiceVariantID: ni.ServiceVariantID,
			}

			if nr.Type == TypeTreatment && nr.UsePackages && ni.ServiceVariantID != nil {
				covered, cpID, err := c.allocate(ctx, tx, clientID, *ni.ServiceVariantID, now)
				if err != nil {
					return err
				}
				if covered {
					item.ClientPackageID = &cpID
					charged = charged.Sub(ni.Price)
				}
			}

			items = append(items, item)
		}

		newBalance := balance.Add(charged)
		if nr.Type != TypeFundAddition {
			newBalance = balance.Sub(charged)
		}

		if nr.Type == TypeTreatment && !c.cfg.AllowOverdraft && newBalance.IsNegative() {
			return ErrInsufficientBalance
		}

		notes := nr.Notes
		if offset := nr.TotalAmount.Sub(charged); offset.IsPositive() {
			notes = strings.TrimSpace(fmt.Sprintf("%s (%s covered by package)", notes, offset))
		}

		rec = Record{
			ID:           uuid.New(),
			ClientID:     clientID,
			Date:         date,
			Type:         nr.Type,
			TotalAmount:  charged,
			BalanceAfter: newBalance,
			StaffName:    nr.StaffName,
			Notes:        notes,
			CreatedAt:    now,
		}
		if nr.Type == TypeTreatment {
			rec.Items = items
		}

		if err := tx.InsertRecord(ctx, rec); err != nil {
			return fmt.Errorf("failed to insert record: %w", err)
		}

		return tx.UpdateBalance(ctx, clientID, newBalance)
	}

	if err := c.store.ExecUnderTx(ctx, fn); err != nil {
		return Record{}, c.wrapTxErr(err)
	}

	return rec, nil
}

// allocate finds the entitlement covering one line item, consumes a
// session from it and reports the entitlement id. Items of one checkout
// run sequentially under the same transaction, so a decrement here is
// visible to the next item's eligibility query.
func (c *Core) allocate(ctx context.Context, tx Store, clientID, variantID uuid.UUID, now time.Time) (bool, uuid.UUID, error) {
	serviceID, err := tx.ServiceIDByVariant(ctx, variantID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, uuid.Nil, nil
		}
		return false, uuid.Nil, err
	}

	cp, err := tx.EarliestEligiblePackage(ctx, clientID, serviceID, now)
	if err != nil {
		// No eligible package is not an error, the item is paid in cash.
		if errors.Is(err, ErrNotFound) {
			return false, uuid.Nil, nil
		}
		return false, uuid.Nil, err
	}

	if err := tx.DecrementSessions(ctx, cp.ID); err != nil {
		return false, uuid.Nil, fmt.Errorf("failed to consume session from package %s: %w", cp.ID, err)
	}

	return true, cp.ID, nil
}

// PurchasePackage buys the catalog package for the client: creates the
// entitlement, debits the balance and writes a PACKAGE_PURCHASE ledger
// record, all in one transaction. A client may hold at most one live
// package per service, and unlike treatment charges the purchase never
// overdraws the balance.
func (c *Core) PurchasePackage(ctx context.Context, clientID, packageID uuid.UUID) (Purchase, error) {
	unlock, err := c.locker.Lock(ctx, lockKey(clientID))
	if err != nil {
		return Purchase{}, fmt.Errorf("%w: %v", ErrTransactionFailed, err)
	}
	defer unlock()

	now := web.GetTime(ctx)

	var purchase Purchase
	fn := func(tx Store) error {
		pkg, err := tx.QueryPackage(ctx, packageID)
		if err != nil {
			return err
		}

		balance, err := tx.QueryBalanceForUpdate(ctx, clientID)
		if err != nil {
			return err
		}

		exists, err := tx.ActivePackageExists(ctx, clientID, pkg.ServiceID)
		if err != nil {
			return err
		}
		if exists {
			return ErrDuplicatePackage
		}

		if balance.LessThan(pkg.Price) {
			return ErrInsufficientBalance
		}

		cp := ClientPackage{
			ID:                uuid.New(),
			ClientID:          clientID,
			PackageID:         pkg.ID,
			PackageName:       pkg.Name,
			ServiceID:         pkg.ServiceID,
			SessionsRemaining: pkg.TotalSessions,
			TotalSessions:     pkg.TotalSessions,
			Price:             pkg.Price,
			PurchaseDate:      now,
			ExpiryDate:        now.Add(PackageValidity),
			IsActive:          true,
		}

		newBalance := balance.Sub(pkg.Price)

		rec := Record{
			ID:           uuid.New(),
			ClientID:     clientID,
			Date:         now,
			Type:         TypePackagePurchase,
			TotalAmount:  pkg.Price,
			BalanceAfter: newBalance,
			StaffName:    "System",
			Notes:        fmt.Sprintf("Package purchase: %s", pkg.Name),
			CreatedAt:    now,
		}

		if err := tx.InsertClientPackage(ctx, cp); err != nil {
			return fmt.Errorf("failed to insert client package: %w", err)
		}
		if err := tx.InsertRecord(ctx, rec); err != nil {
			return fmt.Errorf("failed to insert record: %w", err)
		}
		if err := tx.UpdateBalance(ctx, clientID, newBalance); err != nil {
			return err
		}

		purchase = Purchase{ClientPackage: cp, Balance: newBalance, Record: rec}
		return nil
	}

	if err := c.store.ExecUnderTx(ctx, fn); err != nil {
		return Purchase{}, c.wrapTxErr(err)
	}

	// Hydrate the display names the insert does not carry. The purchase
	// is already committed, so a failed read here is reported but does
	// not fail the call.
	cp, err := c.store.QueryClientPackage(ctx, purchase.ClientPackage.ID)
	if err != nil {
		c.log.Error("hydrating purchased package", "ERROR", err, "client_package_id", purchase.ClientPackage.ID)
		return purchase, nil
	}
	purchase.ClientPackage = cp

	return purchase, nil
}

// CancelPackage soft-cancels the entitlement. Balance is not restored
// and used sessions remain used.
func (c *Core) CancelPackage(ctx context.Context, clientID, clientPackageID uuid.UUID) (ClientPackage, error) {
	var out ClientPackage
	fn := func(tx Store) error {
		cp, err := tx.QueryClientPackage(ctx, clientPackageID)
		if err != nil {
			return err
		}
		if cp.ClientID != clientID {
			return ErrNotFound
		}

		cp.IsActive = false
		if err := tx.UpdateClientPackage(ctx, cp); err != nil {
			return err
		}
		out = cp
		return nil
	}

	if err := c.store.ExecUnderTx(ctx, fn); err != nil {
		return ClientPackage{}, c.wrapTxErr(err)
	}
	return out, nil
}

// AmendClientPackage applies administrative overrides to an entitlement.
// Changing the purchase date recomputes the expiry with the standard
// validity window.
func (c *Core) AmendClientPackage(ctx context.Context, clientID, clientPackageID uuid.UUID, up UpdateClientPackage) (ClientPackage, error) {
	var out ClientPackage
	fn := func(tx Store) error {
		cp, err := tx.QueryClientPackage(ctx, clientPackageID)
		if err != nil {
			return err
		}
		if cp.ClientID != clientID {
			return ErrNotFound
		}

		if up.SessionsRemaining != nil {
			n := *up.SessionsRemaining
			if n < 0 || n > cp.TotalSessions {
				return fmt.Errorf("%w: sessions remaining must be within [0, %d]", ErrInvalidArgument, cp.TotalSessions)
			}
			cp.SessionsRemaining = n
		}
		if up.PurchaseDate != nil {
			cp.PurchaseDate = *up.PurchaseDate
			cp.ExpiryDate = cp.PurchaseDate.Add(PackageValidity)
		}
		if up.IsActive != nil {
			cp.IsActive = *up.IsActive
		}

		if err := tx.UpdateClientPackage(ctx, cp); err != nil {
			return err
		}
		out = cp
		return nil
	}

	if err := c.store.ExecUnderTx(ctx, fn); err != nil {
		return ClientPackage{}, c.wrapTxErr(err)
	}
	return out, nil
}

// QueryRecords returns the client's ledger ordered by entry date,
// newest first, with line items attached to TREATMENT records.
func (c *Core) QueryRecords(ctx context.Context, clientID uuid.UUID) ([]Record, error) {
	return c.store.QueryRecords(ctx, clientID)
}

// QueryClientPackages returns the client's entitlements, active or not.
func (c *Core) QueryClientPackages(ctx context.Context, clientID uuid.UUID) ([]ClientPackage, error) {
	return c.store.QueryClientPackages(ctx, clientID)
}

// wrapTxErr keeps business errors untouched and tags everything else as
// a failed transaction, which the caller may retry from scratch since
// nothing partial was committed.
func (c *Core) wrapTxErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ErrInvalidArgument),
		errors.Is(err, ErrInsufficientBalance),
		errors.Is(err, ErrDuplicatePackage):
		return err
	default:
		return fmt.Errorf("%w: %v", ErrTransactionFailed, err)
	}
}

func lockKey(clientID uuid.UUID) string {
	return "ledger:client:" + clientID.String()
}

func (nr NewRecord) validate() error {
	switch {
	case !nr.Type.valid():
		return fmt.Errorf("%w: unknown record type %q", ErrInvalidArgument, nr.Type)
	case nr.TotalAmount.IsNegative():
		return fmt.Errorf("%w: amount must not be negative", ErrInvalidArgument)
	case nr.Type == TypeTreatment && len(nr.Items) == 0:
		return fmt.Errorf("%w: treatment record needs at least one line item", ErrInvalidArgument)
	case nr.Type != TypeTreatment && len(nr.Items) > 0:
		return fmt.Errorf("%w: only treatment records carry line items", ErrInvalidArgument)
	}

	for _, it := range nr.Items {
		if it.Name == "" {
			return fmt.Errorf("%w: line item needs a name", ErrInvalidArgument)
		}
		if it.Price.IsNegative() {
			return fmt.Errorf("%w: line item price must not be negative", ErrInvalidArgument)
		}
	}

	return nil
}
