package domain

import "errors"

var (
	ErrInvalidWorkflow     = errors.New("invalid_workflow")
	ErrInvalidWorkflowID   = errors.New("invalid_workflow_id")
	ErrInvalidStatus       = errors.New("invalid_workflow_status")
	ErrInvalidReviewAction = errors.New("invalid_review_action")
	ErrWorkflowNotFound    = errors.New("workflow_not_found")
	ErrAlreadyExists       = errors.New("workflow_already_exists")
	ErrInvalidTransition   = errors.New("invalid_transition")
	ErrAlreadyLinked       = errors.New("invoice_already_linked")
	ErrInvoiceMismatch     = errors.New("invoice_workflow_mismatch")
	ErrConcurrentUpdate    = errors.New("concurrent_update")
	ErrInvoiceRequired     = errors.New("workflow_invoice_required")
	ErrInvoiceUnpaid       = errors.New("workflow_invoice_unpaid")
)
