package authorization

import (
	"context"
	"errors"
)

const (
	ObjectInvoice      = "invoice"
	ObjectWorkflow     = "workflow"
	ObjectTaxRule      = "tax_rule"
	ObjectPlanPrice    = "plan_price"
	ObjectExchangeRate = "exchange_rate"
	ObjectAuditLog     = "audit_log"
)

const (
	ActionInvoiceViewAny        = "invoice.view_any"
	ActionInvoiceConfirmPayment = "invoice.confirm_payment"
	ActionInvoiceExport         = "invoice.export"
	ActionInvoiceTaxExempt      = "invoice.tax_exempt"
	ActionWorkflowCheckout      = "workflow.checkout"
	ActionWorkflowReview        = "workflow.review"
	ActionTaxRuleManage         = "tax_rule.manage"
	ActionPlanPriceManage       = "plan_price.manage"
	ActionExchangeRateManage    = "exchange_rate.manage"
	ActionAuditLogView          = "audit_log.view"
)

var (
	ErrForbidden     = errors.New("forbidden")
	ErrInvalidActor  = errors.New("invalid_actor")
	ErrInvalidObject = errors.New("invalid_object")
	ErrInvalidAction = errors.New("invalid_action")
)

type Service interface {
	Authorize(ctx context.Context, actor Actor, object string, action string) error
}
