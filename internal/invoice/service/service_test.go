package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/estate/internal/clock"
	"github.com/smallbiznis/estate/internal/config"
	"github.com/smallbiznis/estate/internal/events"
	invoicedomain "github.com/smallbiznis/estate/internal/invoice/domain"
	"github.com/smallbiznis/estate/internal/invoice/repository"
	"github.com/smallbiznis/estate/internal/reference"
	refdomain "github.com/smallbiznis/estate/internal/reference/domain"
	taxdomain "github.com/smallbiznis/estate/internal/tax/domain"
	taxrepo "github.com/smallbiznis/estate/internal/tax/repository"
	taxservice "github.com/smallbiznis/estate/internal/tax/service"
	"github.com/smallbiznis/estate/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func dec(v string) decimal.Decimal { return decimal.RequireFromString(v) }

type fixture struct {
	svc       *Service
	db        *gorm.DB
	clock     *clock.FakeClock
	publisher *events.Recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := config.DefaultPricingConfig()
	registry, err := reference.BuildRegistry(cfg)
	require.NoError(t, err)
	holder := config.NewStaticPricingConfigHolder(cfg)

	db := testutil.OpenDB(t,
		&invoicedomain.Invoice{},
		&invoicedomain.InvoiceItem{},
		&invoicedomain.InvoiceSequence{},
		&taxdomain.TaxRule{},
	)
	clk := clock.NewFakeClock(time.Date(2026, 7, 14, 12, 0, 0, 0, time.UTC))

	tax := taxservice.NewService(taxservice.Params{
		DB:       db,
		Log:      zap.NewNop(),
		Clock:    clk,
		Registry: registry,
		Pricing:  holder,
		Repo:     taxrepo.NewRepository(),
	})
	_, err = tax.SeedDefaults(context.Background())
	require.NoError(t, err)

	publisher := &events.Recorder{}
	svc := NewService(Params{
		DB:        db,
		Log:       zap.NewNop(),
		GenID:     testutil.Node(t),
		Clock:     clk,
		Registry:  registry,
		Pricing:   holder,
		Tax:       tax,
		Repo:      repository.NewRepository(),
		Publisher: publisher,
	})
	return &fixture{svc: svc, db: db, clock: clk, publisher: publisher}
}

func listingRequest(country, subtotal string) invoicedomain.CreateInvoiceRequest {
	return invoicedomain.CreateInvoiceRequest{
		UserID:      7,
		Type:        invoicedomain.InvoiceTypeListing,
		CountryCode: country,
		Subtotal:    dec(subtotal),
		Description: "Listing fee",
	}
}

func TestCreateInvoiceComputesTaxAndNumber(t *testing.T) {
	f := newFixture(t)

	inv, err := f.svc.CreateInvoice(context.Background(), listingRequest("AE", "1000.00"))
	require.NoError(t, err)
	assert.Equal(t, "INV-2026-000001", inv.InvoiceNumber)
	assert.Equal(t, "AED", inv.CurrencyCode)
	assert.Equal(t, "50.00", inv.TaxAmount.StringFixed(2))
	assert.Equal(t, "1050.00", inv.Total.StringFixed(2))
	assert.Equal(t, invoicedomain.InvoiceStatusUnpaid, inv.Status)
	assert.Equal(t, []string{events.InvoiceCreated}, f.publisher.Types())

	items, err := f.svc.GetInvoiceItems(context.Background(), inv.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "1000.00", items[0].Amount.StringFixed(2))

	next, err := f.svc.CreateInvoice(context.Background(), listingRequest("SA", "10"))
	require.NoError(t, err)
	assert.Equal(t, "INV-2026-000002", next.InvoiceNumber)
}

func TestCreateInvoiceSequenceRestartsEachYear(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateInvoice(ctx, listingRequest("SA", "10"))
	require.NoError(t, err)

	f.clock.Set(time.Date(2027, 1, 1, 0, 0, 1, 0, time.UTC))
	inv, err := f.svc.CreateInvoice(ctx, listingRequest("SA", "10"))
	require.NoError(t, err)
	assert.Equal(t, "INV-2027-000001", inv.InvoiceNumber)
}

func TestCreateInvoiceRoundsSubtotal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	inv, err := f.svc.CreateInvoice(ctx, listingRequest("US", "100.005"))
	require.NoError(t, err)
	assert.Equal(t, "100.01", inv.Subtotal.StringFixed(2))

	inv, err = f.svc.CreateInvoice(ctx, listingRequest("JP", "100.005"))
	require.NoError(t, err)
	assert.Equal(t, "100", inv.Subtotal.String())
}

func TestCreateInvoiceValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateInvoice(ctx, listingRequest("AE", "0"))
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidAmount)

	_, err = f.svc.CreateInvoice(ctx, listingRequest("AE", "-5"))
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidAmount)

	_, err = f.svc.CreateInvoice(ctx, listingRequest("JP", "0.4"))
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidAmount)

	_, err = f.svc.CreateInvoice(ctx, listingRequest("ZZ", "10"))
	assert.ErrorIs(t, err, refdomain.ErrUnsupportedCountry)

	req := listingRequest("AE", "10")
	req.CurrencyCode = "SAR"
	_, err = f.svc.CreateInvoice(ctx, req)
	assert.ErrorIs(t, err, invoicedomain.ErrCurrencyMismatch)

	req = listingRequest("AE", "10")
	req.UserID = 0
	_, err = f.svc.CreateInvoice(ctx, req)
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidInvoice)

	req = listingRequest("AE", "10")
	req.Type = "donation"
	_, err = f.svc.CreateInvoice(ctx, req)
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidInvoice)

	var count int64
	require.NoError(t, f.db.Model(&invoicedomain.Invoice{}).Count(&count).Error)
	assert.Zero(t, count)
}

func insertTakenNumber(t *testing.T, f *fixture, number string) {
	t.Helper()
	require.NoError(t, f.db.Create(&invoicedomain.Invoice{
		ID:            snowflake.ID(time.Now().UnixNano()),
		InvoiceNumber: number,
		UserID:        1,
		Type:          invoicedomain.InvoiceTypeListing,
		CountryCode:   "SA",
		CurrencyCode:  "SAR",
		Subtotal:      dec("1"),
		TaxRate:       dec("0"),
		TaxAmount:     dec("0"),
		Total:         dec("1"),
		Description:   "imported",
		Status:        invoicedomain.InvoiceStatusUnpaid,
		CreatedAt:     f.clock.Now(),
		UpdatedAt:     f.clock.Now(),
	}).Error)
}

func TestCreateInvoiceRetriesOnNumberCollision(t *testing.T) {
	f := newFixture(t)
	insertTakenNumber(t, f, "INV-2026-000001")

	inv, err := f.svc.CreateInvoice(context.Background(), listingRequest("SA", "10"))
	require.NoError(t, err)
	assert.Equal(t, "INV-2026-000002", inv.InvoiceNumber)
}

func TestCreateInvoiceGivesUpAfterRetries(t *testing.T) {
	f := newFixture(t)
	for _, n := range []string{"INV-2026-000001", "INV-2026-000002", "INV-2026-000003"} {
		insertTakenNumber(t, f, n)
	}

	_, err := f.svc.CreateInvoice(context.Background(), listingRequest("SA", "10"))
	assert.ErrorIs(t, err, invoicedomain.ErrInvoiceNumberConflict)

	var count int64
	require.NoError(t, f.db.Model(&invoicedomain.InvoiceItem{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestCreateInvoiceConcurrentNumbersAreUnique(t *testing.T) {
	f := newFixture(t)
	const n = 20

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		numbers = map[string]struct{}{}
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			inv, err := f.svc.CreateInvoice(context.Background(), listingRequest("SA", "10"))
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			numbers[inv.InvoiceNumber] = struct{}{}
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Len(t, numbers, n)
}

func TestGetUserInvoicesNewestFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var ids []snowflake.ID
	for i := 0; i < 3; i++ {
		inv, err := f.svc.CreateInvoice(ctx, listingRequest("SA", "10"))
		require.NoError(t, err)
		ids = append(ids, inv.ID)
		f.clock.Advance(time.Minute)
	}
	other := listingRequest("SA", "10")
	other.UserID = 99
	_, err := f.svc.CreateInvoice(ctx, other)
	require.NoError(t, err)

	page, err := f.svc.GetUserInvoices(ctx, 7, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), page.Total)
	require.Len(t, page.Invoices, 2)
	assert.Equal(t, ids[2], page.Invoices[0].ID)
	assert.Equal(t, ids[1], page.Invoices[1].ID)

	page, err = f.svc.GetUserInvoices(ctx, 7, 2, 2)
	require.NoError(t, err)
	require.Len(t, page.Invoices, 1)
	assert.Equal(t, ids[0], page.Invoices[0].ID)

	page, err = f.svc.GetUserInvoices(ctx, 7, 0, 1000)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 100, page.Limit)
}

func TestMarkPaidOnlyFromUnpaid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv, err := f.svc.CreateInvoice(ctx, listingRequest("SA", "10"))
	require.NoError(t, err)

	var paid *invoicedomain.Invoice
	require.NoError(t, f.db.Transaction(func(tx *gorm.DB) error {
		paid, err = f.svc.MarkPaidTx(ctx, tx, inv.ID, "PAY-123")
		return err
	}))
	assert.Equal(t, invoicedomain.InvoiceStatusPaid, paid.Status)
	require.NotNil(t, paid.PaidAt)
	assert.Equal(t, "PAY-123", *paid.PaymentReference)
	assert.True(t, paid.Total.Equal(inv.Total))

	err = f.db.Transaction(func(tx *gorm.DB) error {
		_, err := f.svc.MarkPaidTx(ctx, tx, inv.ID, "PAY-456")
		return err
	})
	assert.ErrorIs(t, err, invoicedomain.ErrInvoiceNotPayable)

	err = f.db.Transaction(func(tx *gorm.DB) error {
		_, err := f.svc.MarkPaidTx(ctx, tx, snowflake.ID(12345), "PAY-1")
		return err
	})
	assert.ErrorIs(t, err, invoicedomain.ErrInvoiceNotFound)

	err = f.db.Transaction(func(tx *gorm.DB) error {
		_, err := f.svc.MarkPaidTx(ctx, tx, inv.ID, " ")
		return err
	})
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidPaymentRef)
}

func TestSupersede(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first, err := f.svc.CreateInvoice(ctx, listingRequest("SA", "10"))
	require.NoError(t, err)
	second, err := f.svc.CreateInvoice(ctx, listingRequest("SA", "12"))
	require.NoError(t, err)

	require.NoError(t, f.db.Transaction(func(tx *gorm.DB) error {
		return f.svc.SupersedeTx(ctx, tx, first.ID, second.ID)
	}))
	stored, err := f.svc.GetInvoice(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusSuperseded, stored.Status)
	require.NotNil(t, stored.SupersededBy)
	assert.Equal(t, second.ID, *stored.SupersededBy)
	assert.True(t, stored.Subtotal.Equal(dec("10")))

	err = f.db.Transaction(func(tx *gorm.DB) error {
		return f.svc.SupersedeTx(ctx, tx, first.ID, second.ID)
	})
	assert.ErrorIs(t, err, invoicedomain.ErrInvoiceNotPayable)
}

func TestListInvoicesFilters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.CreateInvoice(ctx, listingRequest("SA", "10"))
	require.NoError(t, err)
	_, err = f.svc.CreateInvoice(ctx, listingRequest("AE", "10"))
	require.NoError(t, err)

	all, err := f.svc.ListInvoices(ctx, invoicedomain.ListInvoicesFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	sa, err := f.svc.ListInvoices(ctx, invoicedomain.ListInvoicesFilter{CountryCode: "sa"})
	require.NoError(t, err)
	require.Len(t, sa, 1)
	assert.Equal(t, "SA", sa[0].CountryCode)

	_, err = f.svc.ListInvoices(ctx, invoicedomain.ListInvoicesFilter{CountryCode: "XX"})
	assert.ErrorIs(t, err, refdomain.ErrUnsupportedCountry)
}

func TestGetInvoiceNotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.GetInvoice(context.Background(), snowflake.ID(1))
	assert.ErrorIs(t, err, invoicedomain.ErrInvoiceNotFound)
	_, err = f.svc.GetInvoice(context.Background(), 0)
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidInvoiceID)
}
