package catalog_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
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

func TestServiceCatalog(t *testing.T) {
	ctx := context.Background()
	log, database, teardown := dbtest.NewUnit(t, dbtest.WithMigrations())
	t.Cleanup(teardown)

	core := catalog.NewCore(catalogdb.NewStore(log, database))

	svc, err := core.CreateService(ctx, catalog.NewService{
		Name:     "Laser Hair Removal",
		Category: "laser",
		IsActive: true,
		Variants: []catalog.NewVariant{
			{Name: "Underarms", DurationMin: 20, Price: decimal.NewFromInt(15)},
			{Name: "Full Legs", DurationMin: 45, Price: decimal.NewFromInt(30)},
		},
	})
	if err != nil {
		t.Fatalf("creating service: %v", err)
	}

	got, err := core.QueryServiceByID(ctx, svc.ID)
	if err != nil {
		t.Fatalf("querying service: %v", err)
	}
	if len(got.Variants) != 2 {
		t.Fatalf("got %d variants want 2", len(got.Variants))
	}
	// Variants come back cheapest first.
	if got.Variants[0].Name != "Underarms" {
		t.Fatalf("got first variant %q want Underarms", got.Variants[0].Name)
	}

	if _, err := core.CreateService(ctx, catalog.NewService{Name: "No Variants"}); !errors.Is(err, catalog.ErrInvalidArgument) {
		t.Fatalf("got error %v want ErrInvalidArgument", err)
	}

	inactive, err := core.CreateService(ctx, catalog.NewService{
		Name:     "Retired Facial",
		IsActive: false,
		Variants: []catalog.NewVariant{{Name: "Basic", DurationMin: 30, Price: decimal.NewFromInt(20)}},
	})
	if err != nil {
		t.Fatalf("creating inactive service: %v", err)
	}
	if inactive.Category != "other" {
		t.Fatalf("got category %q want other", inactive.Category)
	}

	active, err := core.QueryServices(ctx, catalog.Filter{ActiveOnly: true})
	if err != nil {
		t.Fatalf("querying active services: %v", err)
	}
	if len(active) != 1 || active[0].ID != svc.ID {
		t.Fatalf("active filter returned %+v", active)
	}

	byCategory, err := core.QueryServices(ctx, catalog.Filter{Category: "laser"})
	if err != nil {
		t.Fatalf("querying by category: %v", err)
	}
	if len(byCategory) != 1 {
		t.Fatalf("got %d services in category want 1", len(byCategory))
	}

	deactivate := false
	updated, err := core.UpdateService(ctx, svc.ID, catalog.UpdateService{IsActive: &deactivate})
	if err != nil {
		t.Fatalf("updating service: %v", err)
	}
	if updated.IsActive {
		t.Fatal("service still active after update")
	}
}

func TestPackageCatalog(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	ctx := web.SetValues(context.Background(), &web.Values{Now: now})
	log, database, teardown := dbtest.NewUnit(t, dbtest.WithMigrations())
	t.Cleanup(teardown)

	core := catalog.NewCore(catalogdb.NewStore(log, database))

	svc, err := core.CreateService(ctx, catalog.NewService{
		Name:     "Laser Hair Removal",
		IsActive: true,
		Variants: []catalog.NewVariant{{Name: "Full Legs", DurationMin: 45, Price: decimal.NewFromInt(30)}},
	})
	if err != nil {
		t.Fatalf("creating service: %v", err)
	}

	pkg, err := core.CreatePackage(ctx, catalog.NewPackage{
		ServiceID:     svc.ID,
		Name:          "Laser 5-pack",
		TotalSessions: 5,
		Price:         decimal.NewFromInt(80),
	})
	if err != nil {
		t.Fatalf("creating package: %v", err)
	}
	if pkg.ServiceName != svc.Name {
		t.Fatalf("got service name %q want %q", pkg.ServiceName, svc.Name)
	}

	got, err := core.QueryPackageByID(ctx, pkg.ID)
	if err != nil {
		t.Fatalf("querying package: %v", err)
	}
	if diff := cmp.Diff(pkg, got, cmpDecimal); diff != "" {
		t.Fatalf("stored package differs: %s", diff)
	}
	if got.PurchaseCount != 0 {
		t.Fatalf("got purchase count %d want 0", got.PurchaseCount)
	}

	if _, err := core.CreatePackage(ctx, catalog.NewPackage{
		ServiceID:     svc.ID,
		Name:          "Zero sessions",
		TotalSessions: 0,
		Price:         decimal.NewFromInt(10),
	}); !errors.Is(err, catalog.ErrInvalidArgument) {
		t.Fatalf("got error %v want ErrInvalidArgument", err)
	}

	// A package with a live purchase cannot be deleted.
	clientCore := client.NewCore(clientdb.NewStore(log, database))
	ledgerCore := ledger.NewCore(log, ledgerdb.NewStore(log, database), lock.Noop{}, ledger.Config{AllowOverdraft: true})

	buyer, err := clientCore.Create(ctx, client.NewClient{Name: "Ana Costa"})
	if err != nil {
		t.Fatalf("creating client: %v", err)
	}
	if _, err := ledgerCore.PostRecord(ctx, buyer.ID, ledger.NewRecord{
		Type:        ledger.TypeFundAddition,
		TotalAmount: decimal.NewFromInt(100),
	}); err != nil {
		t.Fatalf("adding funds: %v", err)
	}
	purchase, err := ledgerCore.PurchasePackage(ctx, buyer.ID, pkg.ID)
	if err != nil {
		t.Fatalf("purchasing package: %v", err)
	}

	if err := core.DeletePackage(ctx, pkg.ID); !errors.Is(err, catalog.ErrPackageInUse) {
		t.Fatalf("got error %v want ErrPackageInUse", err)
	}

	// Cancelling the purchase keeps the history row, so the package is
	// still undeletable and must be deactivated instead.
	if _, err := ledgerCore.CancelPackage(ctx, buyer.ID, purchase.ClientPackage.ID); err != nil {
		t.Fatalf("cancelling purchase: %v", err)
	}
	if err := core.DeletePackage(ctx, pkg.ID); !errors.Is(err, catalog.ErrPackageInUse) {
		t.Fatalf("got error %v want ErrPackageInUse", err)
	}

	deactivate := false
	updated, err := core.UpdatePackage(ctx, pkg.ID, catalog.UpdatePackage{IsActive: &deactivate})
	if err != nil {
		t.Fatalf("deactivating package: %v", err)
	}
	if updated.IsActive {
		t.Fatal("package still active after update")
	}

	// A never-purchased package deletes cleanly.
	unsold, err := core.CreatePackage(ctx, catalog.NewPackage{
		ServiceID:     svc.ID,
		Name:          "Unsold 3-pack",
		TotalSessions: 3,
		Price:         decimal.NewFromInt(50),
	})
	if err != nil {
		t.Fatalf("creating package: %v", err)
	}
	if err := core.DeletePackage(ctx, unsold.ID); err != nil {
		t.Fatalf("deleting package: %v", err)
	}
	if _, err := core.QueryPackageByID(ctx, unsold.ID); !errors.Is(err, catalog.ErrNotFound) {
		t.Fatalf("got error %v want ErrNotFound", err)
	}
}
