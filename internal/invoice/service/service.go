package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/estate/internal/clock"
	"github.com/smallbiznis/estate/internal/config"
	"github.com/smallbiznis/estate/internal/events"
	invoicedomain "github.com/smallbiznis/estate/internal/invoice/domain"
	"github.com/smallbiznis/estate/internal/invoice/format"
	"github.com/smallbiznis/estate/internal/observability/metrics"
	"github.com/smallbiznis/estate/internal/reference"
	taxdomain "github.com/smallbiznis/estate/internal/tax/domain"
	"github.com/smallbiznis/estate/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	maxNumberAttempts = 3
	defaultPageLimit  = 10
	maxPageLimit      = 100
	maxExportRows     = 10000
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Registry  *reference.Registry
	Pricing   *config.PricingConfigHolder
	Tax       taxdomain.Calculator
	Repo      invoicedomain.Repository
	Publisher events.Publisher `optional:"true"`
	Metrics   *metrics.Metrics `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	registry  *reference.Registry
	pricing   *config.PricingConfigHolder
	tax       taxdomain.Calculator
	repo      invoicedomain.Repository
	publisher events.Publisher
	metrics   *metrics.Metrics
}

func NewService(p Params) *Service {
	publisher := p.Publisher
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("invoice.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		registry:  p.Registry,
		pricing:   p.Pricing,
		tax:       p.Tax,
		repo:      p.Repo,
		publisher: publisher,
		metrics:   p.Metrics,
	}
}

func (s *Service) CreateInvoice(ctx context.Context, req invoicedomain.CreateInvoiceRequest) (*invoicedomain.Invoice, error) {
	var created *invoicedomain.Invoice
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		invoice, err := s.CreateInvoiceTx(ctx, tx, req)
		if err != nil {
			return err
		}
		created = invoice
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.NotifyCreated(ctx, created)
	return created, nil
}

// CreateInvoiceTx validates req, computes tax on the rounded subtotal and
// persists the invoice with one line item. Number collisions are retried
// inside a savepoint so the caller's transaction survives them.
func (s *Service) CreateInvoiceTx(ctx context.Context, tx *gorm.DB, req invoicedomain.CreateInvoiceRequest) (*invoicedomain.Invoice, error) {
	if req.UserID <= 0 || !req.Type.Valid() {
		return nil, invoicedomain.ErrInvalidInvoice
	}
	country, currency, err := s.registry.CountryCurrency(req.CountryCode)
	if err != nil {
		return nil, err
	}
	if code := strings.TrimSpace(req.CurrencyCode); code != "" {
		requested, err := s.registry.Currency(code)
		if err != nil {
			return nil, err
		}
		if requested.Code != currency.Code {
			return nil, invoicedomain.ErrCurrencyMismatch
		}
	}

	subtotal := req.Subtotal.Round(currency.Scale())
	if !subtotal.IsPositive() {
		return nil, invoicedomain.ErrInvalidAmount
	}

	quote, err := s.tax.Calculate(ctx, subtotal, country.Code, req.IsTaxExempt)
	if err != nil {
		return nil, err
	}

	symbol := strings.TrimSpace(req.CurrencySymbol)
	if symbol == "" {
		symbol = country.CurrencySymbol
	}
	description := strings.TrimSpace(req.Description)
	if description == "" {
		description = fmt.Sprintf("%s invoice", req.Type)
	}

	now := s.clock.Now()
	template := s.pricing.Get().InvoiceNumberTemplate
	if strings.TrimSpace(template) == "" {
		template = format.DefaultInvoiceNumberTemplate
	}
	scope := format.SequenceScope(template, now)

	invoice := &invoicedomain.Invoice{
		UserID:         req.UserID,
		Type:           req.Type,
		PlanID:         req.PlanID,
		PropertyID:     req.PropertyID,
		WorkflowID:     req.WorkflowID,
		CountryCode:    country.Code,
		CurrencyCode:   currency.Code,
		CurrencySymbol: symbol,
		Subtotal:       subtotal,
		TaxRate:        quote.TaxRate,
		TaxAmount:      quote.TaxAmount,
		Total:          quote.Total,
		IsTaxExempt:    req.IsTaxExempt,
		Description:    description,
		Status:         invoicedomain.InvoiceStatusUnpaid,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	for attempt := 1; attempt <= maxNumberAttempts; attempt++ {
		seq, err := s.repo.NextSequence(ctx, tx, scope, now)
		if err != nil {
			return nil, fmt.Errorf("next invoice sequence: %w", err)
		}
		number, err := format.FormatInvoiceNumber(template, now, seq)
		if err != nil {
			return nil, err
		}

		invoice.ID = s.genID.Generate()
		invoice.InvoiceNumber = number
		items := []invoicedomain.InvoiceItem{{
			ID:          s.genID.Generate(),
			InvoiceID:   invoice.ID,
			Description: description,
			Quantity:    1,
			UnitAmount:  subtotal,
			Amount:      subtotal,
			CreatedAt:   now,
		}}

		err = tx.Transaction(func(sp *gorm.DB) error {
			return s.repo.Insert(ctx, sp, invoice, items)
		})
		if err == nil {
			return invoice, nil
		}
		if !db.IsDuplicateKeyErr(err) {
			return nil, fmt.Errorf("insert invoice: %w", err)
		}
		s.log.Warn("invoice number collision",
			zap.String("invoice_number", number),
			zap.Int("attempt", attempt),
		)
	}
	return nil, invoicedomain.ErrInvoiceNumberConflict
}

func (s *Service) GetInvoice(ctx context.Context, id snowflake.ID) (*invoicedomain.Invoice, error) {
	return s.GetInvoiceTx(ctx, s.db, id)
}

func (s *Service) GetInvoiceTx(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*invoicedomain.Invoice, error) {
	if id == 0 {
		return nil, invoicedomain.ErrInvalidInvoiceID
	}
	invoice, err := s.repo.FindByID(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if invoice == nil {
		return nil, invoicedomain.ErrInvoiceNotFound
	}
	return invoice, nil
}

func (s *Service) GetInvoiceItems(ctx context.Context, id snowflake.ID) ([]invoicedomain.InvoiceItem, error) {
	if _, err := s.GetInvoice(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.ListItems(ctx, s.db, id)
}

func (s *Service) GetUserInvoices(ctx context.Context, userID int64, page, limit int) (invoicedomain.UserInvoicesPage, error) {
	if userID <= 0 {
		return invoicedomain.UserInvoicesPage{}, invoicedomain.ErrInvalidInvoice
	}
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}

	invoices, total, err := s.repo.ListByUser(ctx, s.db, userID, limit, (page-1)*limit)
	if err != nil {
		return invoicedomain.UserInvoicesPage{}, err
	}
	if invoices == nil {
		invoices = []invoicedomain.Invoice{}
	}
	return invoicedomain.UserInvoicesPage{Invoices: invoices, Page: page, Limit: limit, Total: total}, nil
}

func (s *Service) ListInvoices(ctx context.Context, filter invoicedomain.ListInvoicesFilter) ([]invoicedomain.Invoice, error) {
	if filter.CountryCode != "" {
		country, err := s.registry.Country(filter.CountryCode)
		if err != nil {
			return nil, err
		}
		filter.CountryCode = country.Code
	}
	if filter.Limit <= 0 || filter.Limit > maxExportRows {
		filter.Limit = maxExportRows
	}
	return s.repo.List(ctx, s.db, filter)
}

// MarkPaidTx moves an unpaid invoice to paid. Any other status is rejected.
func (s *Service) MarkPaidTx(ctx context.Context, tx *gorm.DB, id snowflake.ID, reference string) (*invoicedomain.Invoice, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, invoicedomain.ErrInvalidPaymentRef
	}
	affected, err := s.repo.MarkPaid(ctx, tx, id, reference, s.clock.Now())
	if err != nil {
		return nil, err
	}
	invoice, err := s.GetInvoiceTx(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, invoicedomain.ErrInvoiceNotPayable
	}
	return invoice, nil
}

func (s *Service) SupersedeTx(ctx context.Context, tx *gorm.DB, oldID, newID snowflake.ID) error {
	if oldID == newID {
		return invoicedomain.ErrInvalidInvoiceID
	}
	affected, err := s.repo.Supersede(ctx, tx, oldID, newID, s.clock.Now())
	if err != nil {
		return err
	}
	if affected == 0 {
		if _, err := s.GetInvoiceTx(ctx, tx, oldID); err != nil {
			return err
		}
		return invoicedomain.ErrInvoiceNotPayable
	}
	return nil
}

func (s *Service) NotifyCreated(ctx context.Context, invoice *invoicedomain.Invoice) {
	if invoice == nil {
		return
	}
	s.metrics.RecordInvoiceCreated(ctx, invoice.CountryCode, invoice.CurrencyCode)
	s.publisher.Publish(ctx, events.InvoiceCreated, invoiceEvent(invoice))
	s.log.Info("invoice created",
		zap.String("invoice_id", invoice.ID.String()),
		zap.String("invoice_number", invoice.InvoiceNumber),
		zap.String("country_code", invoice.CountryCode),
	)
}

func (s *Service) NotifyPaid(ctx context.Context, invoice *invoicedomain.Invoice) {
	if invoice == nil {
		return
	}
	s.publisher.Publish(ctx, events.InvoicePaid, invoiceEvent(invoice))
}

func invoiceEvent(invoice *invoicedomain.Invoice) map[string]any {
	payload := map[string]any{
		"invoice_id":     invoice.ID.String(),
		"invoice_number": invoice.InvoiceNumber,
		"user_id":        invoice.UserID,
		"type":           string(invoice.Type),
		"country_code":   invoice.CountryCode,
		"currency_code":  invoice.CurrencyCode,
		"total":          invoice.Total.String(),
		"status":         string(invoice.Status),
	}
	if invoice.WorkflowID != nil {
		payload["workflow_id"] = invoice.WorkflowID.String()
	}
	return payload
}

var _ invoicedomain.Service = (*Service)(nil)
