package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/estate/internal/audit/domain"
	"github.com/smallbiznis/estate/internal/authorization"
	"github.com/smallbiznis/estate/internal/clock"
	"github.com/smallbiznis/estate/internal/events"
	invoicedomain "github.com/smallbiznis/estate/internal/invoice/domain"
	"github.com/smallbiznis/estate/internal/observability/metrics"
	"github.com/smallbiznis/estate/internal/reference"
	workflowdomain "github.com/smallbiznis/estate/internal/workflow/domain"
	"github.com/smallbiznis/estate/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultAuditLimit   = 50
	maxAuditLimit       = 100
	defaultReviewsLimit = 20
	maxReviewsLimit     = 100
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Registry  *reference.Registry
	Repo      workflowdomain.Repository
	Invoices  invoicedomain.Service
	Authz     authorization.Service
	AuditSvc  auditdomain.Service `optional:"true"`
	Publisher events.Publisher    `optional:"true"`
	Metrics   *metrics.Metrics    `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	registry  *reference.Registry
	repo      workflowdomain.Repository
	invoices  invoicedomain.Service
	authz     authorization.Service
	auditSvc  auditdomain.Service
	publisher events.Publisher
	metrics   *metrics.Metrics
}

// transition is a committed status change waiting for its after-commit
// notifications.
type transition struct {
	workflow *workflowdomain.Workflow
	from     workflowdomain.Status
	actor    authorization.Actor
}

func NewService(p Params) *Service {
	publisher := p.Publisher
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("workflow.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		registry:  p.Registry,
		repo:      p.Repo,
		invoices:  p.Invoices,
		authz:     p.Authz,
		auditSvc:  p.AuditSvc,
		publisher: publisher,
		metrics:   p.Metrics,
	}
}

func (s *Service) CreateWorkflow(ctx context.Context, actor authorization.Actor, req workflowdomain.CreateWorkflowRequest) (*workflowdomain.Workflow, error) {
	if actor.UserID <= 0 || req.PropertyID <= 0 {
		return nil, workflowdomain.ErrInvalidWorkflow
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
	symbol := strings.TrimSpace(req.CurrencySymbol)
	if symbol == "" {
		symbol = country.CurrencySymbol
	}

	existing, err := s.repo.FindByProperty(ctx, s.db, req.PropertyID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, workflowdomain.ErrAlreadyExists
	}

	now := s.clock.Now()
	workflow := &workflowdomain.Workflow{
		ID:             s.genID.Generate(),
		PropertyID:     req.PropertyID,
		OwnerID:        actor.UserID,
		Status:         workflowdomain.StatusDraft,
		CountryCode:    country.Code,
		CurrencyCode:   currency.Code,
		CurrencySymbol: symbol,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repo.Insert(ctx, s.db, workflow); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, workflowdomain.ErrAlreadyExists
		}
		return nil, err
	}

	s.log.Info("workflow created",
		zap.String("workflow_id", workflow.ID.String()),
		zap.Int64("property_id", workflow.PropertyID),
		zap.String("country_code", workflow.CountryCode),
	)
	return workflow, nil
}

func (s *Service) GetWorkflow(ctx context.Context, id snowflake.ID) (*workflowdomain.Workflow, error) {
	return s.loadTx(ctx, s.db, id)
}

func (s *Service) GetByProperty(ctx context.Context, propertyID int64) (*workflowdomain.Workflow, error) {
	if propertyID <= 0 {
		return nil, workflowdomain.ErrInvalidWorkflow
	}
	workflow, err := s.repo.FindByProperty(ctx, s.db, propertyID)
	if err != nil {
		return nil, err
	}
	if workflow == nil {
		return nil, workflowdomain.ErrWorkflowNotFound
	}
	return workflow, nil
}

// UpdateWorkflowStatus moves the workflow along one edge and appends the
// audit entry in the same transaction.
func (s *Service) UpdateWorkflowStatus(ctx context.Context, actor authorization.Actor, id snowflake.ID, to workflowdomain.Status, notes string) (*workflowdomain.Workflow, error) {
	if !to.Valid() {
		return nil, workflowdomain.ErrInvalidStatus
	}

	var done *transition
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		workflow, err := s.loadTx(ctx, tx, id)
		if err != nil {
			return err
		}
		done, err = s.transitionTx(ctx, tx, actor, workflow, to, notes, to == workflowdomain.StatusPendingReview && workflow.Status == workflowdomain.StatusPendingReview)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.notifyTransition(ctx, done)
	return done.workflow, nil
}

// Review applies an administrator decision to a workflow awaiting review.
func (s *Service) Review(ctx context.Context, actor authorization.Actor, id snowflake.ID, action workflowdomain.ReviewAction, notes string) (*workflowdomain.Workflow, error) {
	to, ok := action.Target()
	if !ok {
		return nil, workflowdomain.ErrInvalidReviewAction
	}

	var done *transition
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		workflow, err := s.loadTx(ctx, tx, id)
		if err != nil {
			return err
		}
		if workflow.Status != workflowdomain.StatusPendingReview {
			return workflowdomain.ErrInvalidTransition
		}
		done, err = s.transitionTx(ctx, tx, actor, workflow, to, notes, action == workflowdomain.ReviewRequestChanges)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.notifyTransition(ctx, done)
	s.audit(ctx, auditdomain.ActionWorkflowReview, "listing_workflow", done.workflow.ID.String(), map[string]any{
		"action":      string(action),
		"property_id": done.workflow.PropertyID,
		"from_status": string(done.from),
		"to_status":   string(done.workflow.Status),
	})
	return done.workflow, nil
}

func (s *Service) LinkInvoice(ctx context.Context, id snowflake.ID, invoiceID snowflake.ID, supersede bool) (*workflowdomain.Workflow, error) {
	if invoiceID == 0 {
		return nil, invoicedomain.ErrInvalidInvoiceID
	}
	var linked *workflowdomain.Workflow
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		workflow, err := s.loadTx(ctx, tx, id)
		if err != nil {
			return err
		}
		invoice, err := s.invoices.GetInvoiceTx(ctx, tx, invoiceID)
		if err != nil {
			return err
		}
		if err := s.linkTx(ctx, tx, workflow, invoice, supersede); err != nil {
			return err
		}
		linked = workflow
		return nil
	})
	if err != nil {
		return nil, err
	}
	return linked, nil
}

// Checkout issues the listing invoice for a workflow. From draft it links
// the invoice and moves to pending_payment. From pending_payment it replaces
// the unpaid invoice with the new one.
func (s *Service) Checkout(ctx context.Context, actor authorization.Actor, id snowflake.ID, req workflowdomain.CheckoutRequest) (*workflowdomain.CheckoutResult, error) {
	invoiceType := req.Type
	if invoiceType == "" {
		invoiceType = invoicedomain.InvoiceTypeListing
	}

	var (
		result workflowdomain.CheckoutResult
		done   *transition
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		workflow, err := s.loadTx(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := s.authorize(ctx, actor, workflow, workflowdomain.StatusDraft, workflowdomain.StatusPendingPayment); err != nil {
			return err
		}
		if req.IsTaxExempt {
			if err := s.authz.Authorize(ctx, actor, authorization.ObjectInvoice, authorization.ActionInvoiceTaxExempt); err != nil {
				return err
			}
		}
		if workflow.Status != workflowdomain.StatusDraft && workflow.Status != workflowdomain.StatusPendingPayment {
			return workflowdomain.ErrInvalidTransition
		}

		propertyID := workflow.PropertyID
		workflowID := workflow.ID
		invoice, err := s.invoices.CreateInvoiceTx(ctx, tx, invoicedomain.CreateInvoiceRequest{
			UserID:         workflow.OwnerID,
			Type:           invoiceType,
			PlanID:         req.PlanID,
			PropertyID:     &propertyID,
			WorkflowID:     &workflowID,
			CountryCode:    workflow.CountryCode,
			CurrencyCode:   workflow.CurrencyCode,
			CurrencySymbol: workflow.CurrencySymbol,
			Subtotal:       req.Subtotal,
			IsTaxExempt:    req.IsTaxExempt,
			Description:    req.Description,
		})
		if err != nil {
			return err
		}

		previous := workflow.InvoiceID
		if err := s.linkTx(ctx, tx, workflow, invoice, workflow.Status == workflowdomain.StatusPendingPayment); err != nil {
			return err
		}
		if previous != nil {
			old := *previous
			result.Superseded = &old
		}

		if workflow.Status == workflowdomain.StatusDraft {
			done, err = s.transitionTx(ctx, tx, actor, workflow, workflowdomain.StatusPendingPayment, "", false)
			if err != nil {
				return err
			}
			workflow = done.workflow
		}

		result.Workflow = workflow
		result.Invoice = invoice
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invoices.NotifyCreated(ctx, result.Invoice)
	if done != nil {
		s.notifyTransition(ctx, done)
	}
	return &result, nil
}

// ConfirmPayment marks the invoice paid and, when it belongs to a workflow
// awaiting payment, moves that workflow to pending_review.
func (s *Service) ConfirmPayment(ctx context.Context, actor authorization.Actor, invoiceID snowflake.ID, reference string) (*workflowdomain.PaymentResult, error) {
	if invoiceID == 0 {
		return nil, invoicedomain.ErrInvalidInvoiceID
	}
	if err := s.authz.Authorize(ctx, actor, authorization.ObjectInvoice, authorization.ActionInvoiceConfirmPayment); err != nil {
		return nil, err
	}

	var (
		result workflowdomain.PaymentResult
		done   *transition
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		invoice, err := s.invoices.MarkPaidTx(ctx, tx, invoiceID, reference)
		if err != nil {
			return err
		}
		result.Invoice = invoice

		workflow, err := s.repo.FindByInvoice(ctx, tx, invoiceID)
		if err != nil {
			return err
		}
		if workflow == nil {
			return nil
		}
		if workflow.Status != workflowdomain.StatusPendingPayment {
			result.Workflow = workflow
			return nil
		}
		done, err = s.transitionTx(ctx, tx, actor, workflow, workflowdomain.StatusPendingReview, "payment confirmed", false)
		if err != nil {
			return err
		}
		result.Workflow = done.workflow
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invoices.NotifyPaid(ctx, result.Invoice)
	if done != nil {
		s.notifyTransition(ctx, done)
	}
	s.audit(ctx, auditdomain.ActionInvoicePaymentConfirm, "invoice", invoiceID.String(), map[string]any{
		"invoice_number":    result.Invoice.InvoiceNumber,
		"payment_reference": strings.TrimSpace(reference),
	})
	return &result, nil
}

func (s *Service) GetAuditLog(ctx context.Context, propertyID int64, limit int) ([]workflowdomain.AuditEntry, error) {
	if propertyID <= 0 {
		return nil, workflowdomain.ErrInvalidWorkflow
	}
	if limit <= 0 {
		limit = defaultAuditLimit
	}
	if limit > maxAuditLimit {
		limit = maxAuditLimit
	}
	entries, err := s.repo.ListAudit(ctx, s.db, propertyID, limit)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []workflowdomain.AuditEntry{}
	}
	return entries, nil
}

func (s *Service) ListPendingReviews(ctx context.Context, page, limit int) (workflowdomain.PendingReviewsPage, error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = defaultReviewsLimit
	}
	if limit > maxReviewsLimit {
		limit = maxReviewsLimit
	}
	items, total, err := s.repo.ListByStatus(ctx, s.db, workflowdomain.StatusPendingReview, limit, (page-1)*limit)
	if err != nil {
		return workflowdomain.PendingReviewsPage{}, err
	}
	if items == nil {
		items = []workflowdomain.Workflow{}
	}
	return workflowdomain.PendingReviewsPage{Workflows: items, Page: page, Limit: limit, Total: total}, nil
}

func (s *Service) loadTx(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*workflowdomain.Workflow, error) {
	if id == 0 {
		return nil, workflowdomain.ErrInvalidWorkflowID
	}
	workflow, err := s.repo.FindByID(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if workflow == nil {
		return nil, workflowdomain.ErrWorkflowNotFound
	}
	return workflow, nil
}

func (s *Service) authorize(ctx context.Context, actor authorization.Actor, workflow *workflowdomain.Workflow, from, to workflowdomain.Status) error {
	object, action, ownerOnly := workflowdomain.RequiredPermission(from, to)
	if err := s.authz.Authorize(ctx, actor, object, action); err != nil {
		return err
	}
	if ownerOnly && !actor.IsSystem() && actor.UserID != workflow.OwnerID {
		return authorization.ErrForbidden
	}
	return nil
}

func (s *Service) transitionTx(
	ctx context.Context,
	tx *gorm.DB,
	actor authorization.Actor,
	workflow *workflowdomain.Workflow,
	to workflowdomain.Status,
	notes string,
	changesRequested bool,
) (*transition, error) {
	from := workflow.Status
	if !workflowdomain.CanTransition(from, to) {
		return nil, workflowdomain.ErrInvalidTransition
	}
	if err := s.authorize(ctx, actor, workflow, from, to); err != nil {
		return nil, err
	}
	if err := s.checkInvoiceGate(ctx, tx, workflow, from, to); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	update := workflowdomain.StatusUpdate{
		From:             from,
		To:               to,
		ChangesRequested: changesRequested,
		Now:              now,
	}
	var notesPtr *string
	if trimmed := strings.TrimSpace(notes); trimmed != "" {
		notesPtr = &trimmed
	}
	if from == workflowdomain.StatusPendingReview {
		update.ReviewNotes = notesPtr
	}

	affected, err := s.repo.UpdateStatus(ctx, tx, workflow.ID, update)
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, workflowdomain.ErrConcurrentUpdate
	}

	entry := &workflowdomain.AuditEntry{
		ID:         s.genID.Generate(),
		WorkflowID: workflow.ID,
		PropertyID: workflow.PropertyID,
		ActorRole:  string(actor.Role),
		FromStatus: from,
		ToStatus:   to,
		Notes:      notesPtr,
		CreatedAt:  now,
	}
	if actor.UserID > 0 {
		userID := actor.UserID
		entry.ActorUserID = &userID
	}
	if err := s.repo.InsertAudit(ctx, tx, entry); err != nil {
		return nil, fmt.Errorf("append workflow audit: %w", err)
	}

	updated := *workflow
	updated.Status = to
	updated.ChangesRequested = changesRequested
	updated.UpdatedAt = now
	if update.ReviewNotes != nil {
		updated.ReviewNotes = update.ReviewNotes
	}
	return &transition{workflow: &updated, from: from, actor: actor}, nil
}

// checkInvoiceGate keeps the payment edges tied to the invoice: a workflow
// needs a linked invoice to await payment, and that invoice must be paid
// before the workflow can go to review.
func (s *Service) checkInvoiceGate(ctx context.Context, tx *gorm.DB, workflow *workflowdomain.Workflow, from, to workflowdomain.Status) error {
	switch {
	case to == workflowdomain.StatusPendingPayment:
		if workflow.InvoiceID == nil {
			return workflowdomain.ErrInvoiceRequired
		}
	case from == workflowdomain.StatusPendingPayment && to == workflowdomain.StatusPendingReview:
		if workflow.InvoiceID == nil {
			return workflowdomain.ErrInvoiceRequired
		}
		invoice, err := s.invoices.GetInvoiceTx(ctx, tx, *workflow.InvoiceID)
		if err != nil {
			return err
		}
		if invoice.Status != invoicedomain.InvoiceStatusPaid {
			return workflowdomain.ErrInvoiceUnpaid
		}
	}
	return nil
}

// linkTx points workflow at invoice. A workflow that already has an invoice
// only accepts a different one when supersede is set; the old invoice is
// then marked superseded.
func (s *Service) linkTx(ctx context.Context, tx *gorm.DB, workflow *workflowdomain.Workflow, invoice *invoicedomain.Invoice, supersede bool) error {
	if invoice.WorkflowID != nil && *invoice.WorkflowID != workflow.ID {
		return workflowdomain.ErrInvoiceMismatch
	}
	if invoice.UserID != workflow.OwnerID {
		return workflowdomain.ErrInvoiceMismatch
	}

	previous := workflow.InvoiceID
	if previous != nil {
		if *previous == invoice.ID || !supersede {
			return workflowdomain.ErrAlreadyLinked
		}
		if err := s.invoices.SupersedeTx(ctx, tx, *previous, invoice.ID); err != nil {
			if !errors.Is(err, invoicedomain.ErrInvoiceNotPayable) {
				return err
			}
			return workflowdomain.ErrInvalidTransition
		}
	}

	now := s.clock.Now()
	affected, err := s.repo.SetInvoice(ctx, tx, workflow.ID, previous, invoice.ID, now)
	if err != nil {
		return err
	}
	if affected == 0 {
		return workflowdomain.ErrConcurrentUpdate
	}

	id := invoice.ID
	workflow.InvoiceID = &id
	workflow.UpdatedAt = now
	return nil
}

func (s *Service) notifyTransition(ctx context.Context, t *transition) {
	if t == nil {
		return
	}
	s.metrics.RecordWorkflowTransition(ctx, string(t.from), string(t.workflow.Status))
	payload := map[string]any{
		"workflow_id": t.workflow.ID.String(),
		"property_id": t.workflow.PropertyID,
		"from_status": string(t.from),
		"to_status":   string(t.workflow.Status),
		"actor_role":  string(t.actor.Role),
	}
	if t.workflow.InvoiceID != nil {
		payload["invoice_id"] = t.workflow.InvoiceID.String()
	}
	s.publisher.Publish(ctx, events.WorkflowStatusChanged, payload)
	s.log.Info("workflow status changed",
		zap.String("workflow_id", t.workflow.ID.String()),
		zap.String("from_status", string(t.from)),
		zap.String("to_status", string(t.workflow.Status)),
	)
}

func (s *Service) audit(ctx context.Context, action, targetType, targetID string, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	_ = s.auditSvc.AuditLog(ctx, "", nil, action, targetType, &targetID, metadata)
}

var _ workflowdomain.Service = (*Service)(nil)
