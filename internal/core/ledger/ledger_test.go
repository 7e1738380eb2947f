package ledger_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/medispa/backoffice/internal/core/catalog"
	"github.com/medispa/backoffice/internal/core/catalog/store/catalogdb"
	"github.com/medispa/backoffice/internal/core/client"
	"github.com/medispa/backoffice/internal/core/client/store/clientdb"
	"github.com/medispa/backoffice/internal/core/ledger"
	"github.com/medispa/backoffice/internal/core/ledger/store/ledgerdb"
	"github.com/medispa/backoffice/internal/data/dbtest"
	"github.com/medispa/backoffice/internal/lock"
	"github.com/medispa/backoffice/internal/web"
	"github.com/shopspring/decimal"
)

var cmpDecimal = cmp.Comparer(func(a, b decimal.Decimal) bool { return a.Equal(b) })

// ctxAt pins the request clock so expiry dates and record ordering are
// deterministic.
func ctxAt(now time.Time) context.Context {
	return web.SetValues(context.Background(), &web.Values{Now: now})
}

type fixture struct {
	log     *slog.Logger
	client  *client.Core
	catalog *catalog.Core
	ledger  *ledger.Core
	store   *ledgerdb.Store
}

func newFixture(t *testing.T, cfg ledger.Config) fixture {
	t.Helper()

	log, database, teardown := dbtest.NewUnit(t, dbtest.WithMigrations())
	t.Cleanup(teardown)

	store := ledgerdb.NewStore(log, database)
	return fixture{
		log:     log,
		client:  client.NewCore(clientdb.NewStore(log, database)),
		catalog: catalog.NewCore(catalogdb.NewStore(log, database)),
		ledger:  ledger.NewCore(log, store, lock.Noop{}, cfg),
		store:   store,
	}
}

func (f fixture) newClient(t *testing.T, ctx context.Context) uuid.UUID {
	t.Helper()
	c, err := f.client.Create(ctx, client.NewClient{Name: "Ana Costa"})
	if err != nil {
		t.Fatalf("creating client: %v", err)
	}
	return c.ID
}

// newCatalog creates a service with one variant and a package of
// sessions sessions at the given price. It returns the variant and
// package ids.
func (f fixture) newCatalog(t *testing.T, ctx context.Context, price decimal.Decimal, sessions int) (uuid.UUID, uuid.UUID) {
	t.Helper()

	svc, err := f.catalog.CreateService(ctx, catalog.NewService{
		Name:     "Laser Hair Removal",
		Category: "laser",
		IsActive: true,
		Variants: []catalog.NewVariant{
			{Name: "Full Legs", DurationMin: 45, Price: decimal.NewFromInt(30)},
		},
	})
	if err != nil {
		t.Fatalf("creating service: %v", err)
	}

	pkg, err := f.catalog.CreatePackage(ctx, catalog.NewPackage{
		ServiceID:     svc.ID,
		Name:          "Laser 5-pack",
		TotalSessions: sessions,
		Price:         price,
	})
	if err != nil {
		t.Fatalf("creating package: %v", err)
	}

	return svc.Variants[0].ID, pkg.ID
}

func (f fixture) fund(t *testing.T, ctx context.Context, clientID uuid.UUID, amount int64) ledger.Record {
	t.Helper()
	rec, err := f.ledger.PostRecord(ctx, clientID, ledger.NewRecord{
		Type:        ledger.TypeFundAddition,
		TotalAmount: decimal.NewFromInt(amount),
		StaffName:   "Front Desk",
	})
	if err != nil {
		t.Fatalf("adding funds: %v", err)
	}
	return rec
}

func TestLedgerFlow(t *testing.T) {
	f := newFixture(t, ledger.Config{AllowOverdraft: true})

	t0 := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	clientID := f.newClient(t, ctxAt(t0))
	variantID, pkgID := f.newCatalog(t, ctxAt(t0), decimal.NewFromInt(80), 5)

	f.fund(t, ctxAt(t0.Add(1*time.Minute)), clientID, 100)

	balance, err := f.client.Balance(context.Background(), clientID)
	if err != nil {
		t.Fatalf("querying balance: %v", err)
	}
	if !balance.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("after funding got balance %s want 100", balance)
	}

	// Purchase debits the price, creates the entitlement and writes a
	// PACKAGE_PURCHASE record.
	t1 := t0.Add(2 * time.Minute)
	purchase, err := f.ledger.PurchasePackage(ctxAt(t1), clientID, pkgID)
	if err != nil {
		t.Fatalf("purchasing package: %v", err)
	}

	if !purchase.Balance.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("after purchase got balance %s want 20", purchase.Balance)
	}
	cp := purchase.ClientPackage
	if cp.SessionsRemaining != 5 {
		t.Fatalf("got %d sessions remaining want 5", cp.SessionsRemaining)
	}
	if want := t1.Add(500 * 24 * time.Hour); !cp.ExpiryDate.Equal(want) {
		t.Fatalf("got expiry %s want %s", cp.ExpiryDate, want)
	}
	if purchase.Record.Type != ledger.TypePackagePurchase {
		t.Fatalf("got record type %s want %s", purchase.Record.Type, ledger.TypePackagePurchase)
	}
	if purchase.Record.StaffName != "System" {
		t.Fatalf("got staff name %q want System", purchase.Record.StaffName)
	}
	if purchase.Record.Notes != "Package purchase: Laser 5-pack" {
		t.Fatalf("got notes %q", purchase.Record.Notes)
	}

	// A treatment on the covered service consumes a session and leaves
	// the balance alone.
	t2 := t0.Add(3 * time.Minute)
	rec, err := f.ledger.PostRecord(ctxAt(t2), clientID, ledger.NewRecord{
		Type:        ledger.TypeTreatment,
		TotalAmount: decimal.NewFromInt(30),
		StaffName:   "Dr. Lee",
		UsePackages: true,
		Items: []ledger.NewLineItem{
			{Name: "Full Legs", Price: decimal.NewFromInt(30), ServiceVariantID: &variantID},
		},
	})
	if err != nil {
		t.Fatalf("posting treatment: %v", err)
	}

	if !rec.TotalAmount.IsZero() {
		t.Fatalf("got charged amount %s want 0", rec.TotalAmount)
	}
	if !rec.BalanceAfter.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("got balance after %s want 20", rec.BalanceAfter)
	}
	if rec.Notes != "(30 covered by package)" {
		t.Fatalf("got notes %q", rec.Notes)
	}
	if len(rec.Items) != 1 || rec.Items[0].ClientPackageID == nil {
		t.Fatalf("expected the line item to reference the entitlement: %+v", rec.Items)
	}
	if *rec.Items[0].ClientPackageID != cp.ID {
		t.Fatalf("item consumed package %s want %s", rec.Items[0].ClientPackageID, cp.ID)
	}

	cps, err := f.ledger.QueryClientPackages(context.Background(), clientID)
	if err != nil {
		t.Fatalf("querying client packages: %v", err)
	}
	if len(cps) != 1 || cps[0].SessionsRemaining != 4 {
		t.Fatalf("expected 4 sessions remaining: %+v", cps)
	}

	f.fund(t, ctxAt(t0.Add(4*time.Minute)), clientID, 50)

	// The ledger replays to the stored balance, newest record first.
	recs, err := f.ledger.QueryRecords(context.Background(), clientID)
	if err != nil {
		t.Fatalf("querying records: %v", err)
	}
	if len(recs) != 4 {
		t.Fatalf("got %d records want 4", len(recs))
	}

	wantAfter := []int64{70, 20, 20, 100}
	for i, r := range recs {
		if !r.BalanceAfter.Equal(decimal.NewFromInt(wantAfter[i])) {
			t.Fatalf("record %d got balance after %s want %d", i, r.BalanceAfter, wantAfter[i])
		}
	}

	balance, err = f.client.Balance(context.Background(), clientID)
	if err != nil {
		t.Fatalf("querying balance: %v", err)
	}
	if diff := cmp.Diff(recs[0].BalanceAfter, balance, cmpDecimal); diff != "" {
		t.Fatalf("latest record disagrees with stored balance: %s", diff)
	}
}

func TestAllocationEarliestExpiry(t *testing.T) {
	f := newFixture(t, ledger.Config{AllowOverdraft: true})

	t0 := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	ctx := ctxAt(t0)

	clientID := f.newClient(t, ctx)
	variantID, pkgID := f.newCatalog(t, ctx, decimal.NewFromInt(10), 2)
	f.fund(t, ctx, clientID, 200)

	first, err := f.ledger.PurchasePackage(ctx, clientID, pkgID)
	if err != nil {
		t.Fatalf("purchasing first package: %v", err)
	}

	// Deactivate the first entitlement so a second purchase of the same
	// service is allowed, then bring it back with an earlier expiry.
	inactive := false
	if _, err := f.ledger.AmendClientPackage(ctx, clientID, first.ClientPackage.ID, ledger.UpdateClientPackage{IsActive: &inactive}); err != nil {
		t.Fatalf("deactivating first package: %v", err)
	}

	second, err := f.ledger.PurchasePackage(ctx, clientID, pkgID)
	if err != nil {
		t.Fatalf("purchasing second package: %v", err)
	}

	active := true
	earlier := t0.Add(-100 * 24 * time.Hour)
	if _, err := f.ledger.AmendClientPackage(ctx, clientID, first.ClientPackage.ID, ledger.UpdateClientPackage{
		PurchaseDate: &earlier,
		IsActive:     &active,
	}); err != nil {
		t.Fatalf("reactivating first package: %v", err)
	}

	rec, err := f.ledger.PostRecord(ctx, clientID, ledger.NewRecord{
		Type:        ledger.TypeTreatment,
		TotalAmount: decimal.NewFromInt(30),
		UsePackages: true,
		Items: []ledger.NewLineItem{
			{Name: "Full Legs", Price: decimal.NewFromInt(30), ServiceVariantID: &variantID},
		},
	})
	if err != nil {
		t.Fatalf("posting treatment: %v", err)
	}

	got := rec.Items[0].ClientPackageID
	if got == nil || *got != first.ClientPackage.ID {
		t.Fatalf("item consumed package %v want the earliest-expiring %s", got, first.ClientPackage.ID)
	}

	cps, err := f.ledger.QueryClientPackages(context.Background(), clientID)
	if err != nil {
		t.Fatalf("querying client packages: %v", err)
	}
	for _, cp := range cps {
		switch cp.ID {
		case first.ClientPackage.ID:
			if cp.SessionsRemaining != 1 {
				t.Fatalf("first package got %d sessions want 1", cp.SessionsRemaining)
			}
		case second.ClientPackage.ID:
			if cp.SessionsRemaining != 2 {
				t.Fatalf("second package got %d sessions want 2", cp.SessionsRemaining)
			}
		}
	}
}

func TestAllocationSequentialItems(t *testing.T) {
	f := newFixture(t, ledger.Config{AllowOverdraft: true})

	t0 := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	ctx := ctxAt(t0)

	clientID := f.newClient(t, ctx)
	variantID, pkgID := f.newCatalog(t, ctx, decimal.NewFromInt(10), 2)
	f.fund(t, ctx, clientID, 200)

	if _, err := f.ledger.PurchasePackage(ctx, clientID, pkgID); err != nil {
		t.Fatalf("purchasing package: %v", err)
	}

	// Three items against a 2-session package: the first two are
	// covered, the third falls back to cash.
	rec, err := f.ledger.PostRecord(ctx, clientID, ledger.NewRecord{
		Type:        ledger.TypeTreatment,
		TotalAmount: decimal.NewFromInt(90),
		UsePackages: true,
		Items: []ledger.NewLineItem{
			{Name: "Session A", Price: decimal.NewFromInt(30), ServiceVariantID: &variantID},
			{Name: "Session B", Price: decimal.NewFromInt(30), ServiceVariantID: &variantID},
			{Name: "Session C", Price: decimal.NewFromInt(30), ServiceVariantID: &variantID},
		},
	})
	if err != nil {
		t.Fatalf("posting treatment: %v", err)
	}

	if !rec.TotalAmount.Equal(decimal.NewFromInt(30)) {
		t.Fatalf("got charged amount %s want 30", rec.TotalAmount)
	}
	if rec.Notes != "(60 covered by package)" {
		t.Fatalf("got notes %q", rec.Notes)
	}
	if rec.Items[0].ClientPackageID == nil || rec.Items[1].ClientPackageID == nil {
		t.Fatalf("first two items should be covered: %+v", rec.Items)
	}
	if rec.Items[2].ClientPackageID != nil {
		t.Fatalf("third item should be cash: %+v", rec.Items[2])
	}

	// 200 - 10 (package) - 30 (cash item).
	if !rec.BalanceAfter.Equal(decimal.NewFromInt(160)) {
		t.Fatalf("got balance after %s want 160", rec.BalanceAfter)
	}
}

func TestAllocationSkipsExpired(t *testing.T) {
	f := newFixture(t, ledger.Config{AllowOverdraft: true})

	t0 := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	ctx := ctxAt(t0)

	clientID := f.newClient(t, ctx)
	variantID, pkgID := f.newCatalog(t, ctx, decimal.NewFromInt(10), 2)
	f.fund(t, ctx, clientID, 200)

	purchase, err := f.ledger.PurchasePackage(ctx, clientID, pkgID)
	if err != nil {
		t.Fatalf("purchasing package: %v", err)
	}

	// Push the purchase date back far enough that the validity window
	// has elapsed.
	longAgo := t0.Add(-501 * 24 * time.Hour)
	if _, err := f.ledger.AmendClientPackage(ctx, clientID, purchase.ClientPackage.ID, ledger.UpdateClientPackage{PurchaseDate: &longAgo}); err != nil {
		t.Fatalf("amending package: %v", err)
	}

	rec, err := f.ledger.PostRecord(ctx, clientID, ledger.NewRecord{
		Type:        ledger.TypeTreatment,
		TotalAmount: decimal.NewFromInt(30),
		UsePackages: true,
		Items: []ledger.NewLineItem{
			{Name: "Full Legs", Price: decimal.NewFromInt(30), ServiceVariantID: &variantID},
		},
	})
	if err != nil {
		t.Fatalf("posting treatment: %v", err)
	}

	if rec.Items[0].ClientPackageID != nil {
		t.Fatalf("expired package covered the item: %+v", rec.Items[0])
	}
	if !rec.TotalAmount.Equal(decimal.NewFromInt(30)) {
		t.Fatalf("got charged amount %s want 30", rec.TotalAmount)
	}
}

func TestAllocationOptOut(t *testing.T) {
	f := newFixture(t, ledger.Config{AllowOverdraft: true})

	ctx := ctxAt(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC))
	clientID := f.newClient(t, ctx)
	variantID, pkgID := f.newCatalog(t, ctx, decimal.NewFromInt(10), 2)
	f.fund(t, ctx, clientID, 200)

	if _, err := f.ledger.PurchasePackage(ctx, clientID, pkgID); err != nil {
		t.Fatalf("purchasing package: %v", err)
	}

	rec, err := f.ledger.PostRecord(ctx, clientID, ledger.NewRecord{
		Type:        ledger.TypeTreatment,
		TotalAmount: decimal.NewFromInt(30),
		UsePackages: false,
		Items: []ledger.NewLineItem{
			{Name: "Full Legs", Price: decimal.NewFromInt(30), ServiceVariantID: &variantID},
		},
	})
	if err != nil {
		t.Fatalf("posting treatment: %v", err)
	}

	if rec.Items[0].ClientPackageID != nil {
		t.Fatalf("opted out but item was covered: %+v", rec.Items[0])
	}
	if !rec.TotalAmount.Equal(decimal.NewFromInt(30)) {
		t.Fatalf("got charged amount %s want 30", rec.TotalAmount)
	}

	cps, err := f.ledger.QueryClientPackages(context.Background(), clientID)
	if err != nil {
		t.Fatalf("querying client packages: %v", err)
	}
	if cps[0].SessionsRemaining != 2 {
		t.Fatalf("sessions should be untouched, got %d", cps[0].SessionsRemaining)
	}
}

func TestPurchaseDuplicatePackage(t *testing.T) {
	f := newFixture(t, ledger.Config{AllowOverdraft: true})

	ctx := ctxAt(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC))
	clientID := f.newClient(t, ctx)
	_, pkgID := f.newCatalog(t, ctx, decimal.NewFromInt(80), 5)
	f.fund(t, ctx, clientID, 200)

	if _, err := f.ledger.PurchasePackage(ctx, clientID, pkgID); err != nil {
		t.Fatalf("first purchase: %v", err)
	}

	_, err := f.ledger.PurchasePackage(ctx, clientID, pkgID)
	if !errors.Is(err, ledger.ErrDuplicatePackage) {
		t.Fatalf("got error %v want ErrDuplicatePackage", err)
	}

	// Nothing from the rejected purchase may persist.
	balance, err := f.client.Balance(context.Background(), clientID)
	if err != nil {
		t.Fatalf("querying balance: %v", err)
	}
	if !balance.Equal(decimal.NewFromInt(120)) {
		t.Fatalf("got balance %s want 120", balance)
	}

	cps, err := f.ledger.QueryClientPackages(context.Background(), clientID)
	if err != nil {
		t.Fatalf("querying client packages: %v", err)
	}
	if len(cps) != 1 {
		t.Fatalf("got %d entitlements want 1", len(cps))
	}
}

func TestPurchaseInsufficientBalance(t *testing.T) {
	f := newFixture(t, ledger.Config{AllowOverdraft: true})

	ctx := ctxAt(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC))
	clientID := f.newClient(t, ctx)
	_, pkgID := f.newCatalog(t, ctx, decimal.NewFromInt(80), 5)
	f.fund(t, ctx, clientID, 79)

	_, err := f.ledger.PurchasePackage(ctx, clientID, pkgID)
	if !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Fatalf("got error %v want ErrInsufficientBalance", err)
	}

	recs, err := f.ledger.QueryRecords(context.Background(), clientID)
	if err != nil {
		t.Fatalf("querying records: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("got %d records want only the fund addition", len(recs))
	}
}

func TestOverdraftPolicy(t *testing.T) {
	ctx := ctxAt(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC))

	nr := ledger.NewRecord{
		Type:        ledger.TypeTreatment,
		TotalAmount: decimal.NewFromInt(50),
		Items: []ledger.NewLineItem{
			{Name: "Facial", Price: decimal.NewFromInt(50)},
		},
	}

	t.Run("allowed", func(t *testing.T) {
		f := newFixture(t, ledger.Config{AllowOverdraft: true})
		clientID := f.newClient(t, ctx)
		f.fund(t, ctx, clientID, 20)

		rec, err := f.ledger.PostRecord(ctx, clientID, nr)
		if err != nil {
			t.Fatalf("posting treatment: %v", err)
		}
		if !rec.BalanceAfter.Equal(decimal.NewFromInt(-30)) {
			t.Fatalf("got balance after %s want -30", rec.BalanceAfter)
		}
	})

	t.Run("denied", func(t *testing.T) {
		f := newFixture(t, ledger.Config{AllowOverdraft: false})
		clientID := f.newClient(t, ctx)
		f.fund(t, ctx, clientID, 20)

		if _, err := f.ledger.PostRecord(ctx, clientID, nr); !errors.Is(err, ledger.ErrInsufficientBalance) {
			t.Fatalf("got error %v want ErrInsufficientBalance", err)
		}

		balance, err := f.client.Balance(context.Background(), clientID)
		if err != nil {
			t.Fatalf("querying balance: %v", err)
		}
		if !balance.Equal(decimal.NewFromInt(20)) {
			t.Fatalf("got balance %s want 20", balance)
		}
	})
}

func TestAmendAndCancel(t *testing.T) {
	f := newFixture(t, ledger.Config{AllowOverdraft: true})

	t0 := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	ctx := ctxAt(t0)

	clientID := f.newClient(t, ctx)
	_, pkgID := f.newCatalog(t, ctx, decimal.NewFromInt(80), 5)
	f.fund(t, ctx, clientID, 200)

	purchase, err := f.ledger.PurchasePackage(ctx, clientID, pkgID)
	if err != nil {
		t.Fatalf("purchasing package: %v", err)
	}
	cpID := purchase.ClientPackage.ID

	// Sessions outside [0, total] are rejected.
	bad := 6
	if _, err := f.ledger.AmendClientPackage(ctx, clientID, cpID, ledger.UpdateClientPackage{SessionsRemaining: &bad}); !errors.Is(err, ledger.ErrInvalidArgument) {
		t.Fatalf("got error %v want ErrInvalidArgument", err)
	}

	// A new purchase date shifts the expiry by the validity window.
	newDate := t0.Add(-30 * 24 * time.Hour)
	sessions := 2
	cp, err := f.ledger.AmendClientPackage(ctx, clientID, cpID, ledger.UpdateClientPackage{
		SessionsRemaining: &sessions,
		PurchaseDate:      &newDate,
	})
	if err != nil {
		t.Fatalf("amending package: %v", err)
	}
	if cp.SessionsRemaining != 2 {
		t.Fatalf("got %d sessions want 2", cp.SessionsRemaining)
	}
	if want := newDate.Add(500 * 24 * time.Hour); !cp.ExpiryDate.Equal(want) {
		t.Fatalf("got expiry %s want %s", cp.ExpiryDate, want)
	}

	// Amending someone else's entitlement is a not-found.
	active := true
	otherClient := f.newClient(t, ctx)
	if _, err := f.ledger.AmendClientPackage(ctx, otherClient, cpID, ledger.UpdateClientPackage{IsActive: &active}); !errors.Is(err, ledger.ErrNotFound) {
		t.Fatalf("got error %v want ErrNotFound", err)
	}

	// Cancel deactivates without touching the balance.
	cp, err = f.ledger.CancelPackage(ctx, clientID, cpID)
	if err != nil {
		t.Fatalf("cancelling package: %v", err)
	}
	if cp.IsActive {
		t.Fatal("package still active after cancel")
	}

	balance, err := f.client.Balance(context.Background(), clientID)
	if err != nil {
		t.Fatalf("querying balance: %v", err)
	}
	if !balance.Equal(decimal.NewFromInt(120)) {
		t.Fatalf("got balance %s want 120", balance)
	}
}

func TestPostRecordValidation(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	core := ledger.NewCore(log, nil, lock.Noop{}, ledger.Config{})
	ctx := context.Background()
	clientID := uuid.New()

	tests := []struct {
		name string
		nr   ledger.NewRecord
	}{
		{"unknown type", ledger.NewRecord{Type: "REFUND", TotalAmount: decimal.NewFromInt(10)}},
		{"negative amount", ledger.NewRecord{Type: ledger.TypeFundAddition, TotalAmount: decimal.NewFromInt(-10)}},
		{"treatment without items", ledger.NewRecord{Type: ledger.TypeTreatment, TotalAmount: decimal.NewFromInt(10)}},
		{"fund addition with items", ledger.NewRecord{
			Type:        ledger.TypeFundAddition,
			TotalAmount: decimal.NewFromInt(10),
			Items:       []ledger.NewLineItem{{Name: "Facial", Price: decimal.NewFromInt(10)}},
		}},
		{"item without name", ledger.NewRecord{
			Type:        ledger.TypeTreatment,
			TotalAmount: decimal.NewFromInt(10),
			Items:       []ledger.NewLineItem{{Price: decimal.NewFromInt(10)}},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := core.PostRecord(ctx, clientID, tt.nr); !errors.Is(err, ledger.ErrInvalidArgument) {
				t.Fatalf("got error %v want ErrInvalidArgument", err)
			}
		})
	}
}

// failingStore lets everything through except the balance update, to
// prove the record insert rolls back with it.
type failingStore struct {
	ledger.Store
}

func (f failingStore) ExecUnderTx(ctx context.Context, fn func(tx ledger.Store) error) error {
	return f.Store.ExecUnderTx(ctx, func(tx ledger.Store) error {
		return fn(failingStore{Store: tx})
	})
}

func (f failingStore) UpdateBalance(ctx context.Context, clientID uuid.UUID, balance decimal.Decimal) error {
	return errors.New("balance update refused")
}

func TestAtomicity(t *testing.T) {
	f := newFixture(t, ledger.Config{AllowOverdraft: true})

	ctx := ctxAt(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC))
	clientID := f.newClient(t, ctx)
	_, pkgID := f.newCatalog(t, ctx, decimal.NewFromInt(80), 5)
	f.fund(t, ctx, clientID, 100)

	broken := ledger.NewCore(f.log, failingStore{Store: f.store}, lock.Noop{}, ledger.Config{AllowOverdraft: true})

	_, err := broken.PostRecord(ctx, clientID, ledger.NewRecord{
		Type:        ledger.TypeTreatment,
		TotalAmount: decimal.NewFromInt(30),
		Items:       []ledger.NewLineItem{{Name: "Facial", Price: decimal.NewFromInt(30)}},
	})
	if !errors.Is(err, ledger.ErrTransactionFailed) {
		t.Fatalf("got error %v want ErrTransactionFailed", err)
	}

	// A purchase whose balance write fails after the entitlement insert
	// must leave no orphan entitlement behind.
	_, err = broken.PurchasePackage(ctx, clientID, pkgID)
	if !errors.Is(err, ledger.ErrTransactionFailed) {
		t.Fatalf("got error %v want ErrTransactionFailed", err)
	}

	cps, err := f.ledger.QueryClientPackages(context.Background(), clientID)
	if err != nil {
		t.Fatalf("querying client packages: %v", err)
	}
	if len(cps) != 0 {
		t.Fatalf("rolled back entitlement persisted: %+v", cps)
	}

	recs, err := f.ledger.QueryRecords(context.Background(), clientID)
	if err != nil {
		t.Fatalf("querying records: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("rolled back record persisted: got %d records want 1", len(recs))
	}

	balance, err := f.client.Balance(context.Background(), clientID)
	if err != nil {
		t.Fatalf("querying balance: %v", err)
	}
	if !balance.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("got balance %s want 100", balance)
	}
}

func TestQueryRecordsOrderedByDate(t *testing.T) {
	f := newFixture(t, ledger.Config{AllowOverdraft: true})

	t0 := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	clientID := f.newClient(t, ctxAt(t0))

	f.fund(t, ctxAt(t0), clientID, 100)

	// Backdated entry, created last but dated earliest.
	if _, err := f.ledger.PostRecord(ctxAt(t0.Add(time.Minute)), clientID, ledger.NewRecord{
		Date:        t0.Add(-48 * time.Hour),
		Type:        ledger.TypeTreatment,
		TotalAmount: decimal.NewFromInt(30),
		Items:       []ledger.NewLineItem{{Name: "Facial", Price: decimal.NewFromInt(30)}},
	}); err != nil {
		t.Fatalf("posting backdated treatment: %v", err)
	}

	recs, err := f.ledger.QueryRecords(context.Background(), clientID)
	if err != nil {
		t.Fatalf("querying records: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("got %d records want 2", len(recs))
	}
	if recs[0].Type != ledger.TypeFundAddition {
		t.Fatalf("got first record %s, entries must order by date not creation", recs[0].Type)
	}
	if !recs[1].Date.Equal(t0.Add(-48 * time.Hour)) {
		t.Fatalf("got last record date %s want the backdated one", recs[1].Date)
	}
}
