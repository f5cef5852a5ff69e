package domain

import "github.com/smallbiznis/estate/internal/authorization"

// CanTransition reports whether from -> to is an edge of the listing state
// machine. pending_review -> pending_review is the request-changes loop.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusDraft:
		return to == StatusPendingPayment
	case StatusPendingPayment:
		return to == StatusPendingReview
	case StatusPendingReview:
		return to == StatusApproved || to == StatusRejected || to == StatusPendingReview
	default:
		return false
	}
}

// RequiredPermission returns the capability an actor needs to take the edge.
// ownerOnly is set when a non-system actor must also own the workflow.
func RequiredPermission(from, to Status) (object string, action string, ownerOnly bool) {
	switch {
	case from == StatusDraft && to == StatusPendingPayment:
		return authorization.ObjectWorkflow, authorization.ActionWorkflowCheckout, true
	case from == StatusPendingPayment && to == StatusPendingReview:
		return authorization.ObjectInvoice, authorization.ActionInvoiceConfirmPayment, false
	default:
		return authorization.ObjectWorkflow, authorization.ActionWorkflowReview, false
	}
}
