package domain

import (
	"testing"

	"github.com/smallbiznis/estate/internal/authorization"
	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	allowed := [][2]Status{
		{StatusDraft, StatusPendingPayment},
		{StatusPendingPayment, StatusPendingReview},
		{StatusPendingReview, StatusApproved},
		{StatusPendingReview, StatusRejected},
		{StatusPendingReview, StatusPendingReview},
	}
	for _, edge := range allowed {
		assert.True(t, CanTransition(edge[0], edge[1]), "%s -> %s", edge[0], edge[1])
	}

	denied := [][2]Status{
		{StatusApproved, StatusPendingPayment},
		{StatusRejected, StatusPendingReview},
		{StatusDraft, StatusApproved},
		{StatusPendingPayment, StatusDraft},
		{StatusDraft, StatusDraft},
		{StatusPendingPayment, StatusApproved},
	}
	for _, edge := range denied {
		assert.False(t, CanTransition(edge[0], edge[1]), "%s -> %s", edge[0], edge[1])
	}
}

func TestRequiredPermission(t *testing.T) {
	_, action, owner := RequiredPermission(StatusDraft, StatusPendingPayment)
	assert.Equal(t, authorization.ActionWorkflowCheckout, action)
	assert.True(t, owner)

	_, action, owner = RequiredPermission(StatusPendingPayment, StatusPendingReview)
	assert.Equal(t, authorization.ActionInvoiceConfirmPayment, action)
	assert.False(t, owner)

	for _, to := range []Status{StatusApproved, StatusRejected, StatusPendingReview} {
		_, action, _ = RequiredPermission(StatusPendingReview, to)
		assert.Equal(t, authorization.ActionWorkflowReview, action)
	}
}

func TestReviewActionTarget(t *testing.T) {
	to, ok := ReviewRequestChanges.Target()
	assert.True(t, ok)
	assert.Equal(t, StatusPendingReview, to)

	_, ok = ReviewAction("escalate").Target()
	assert.False(t, ok)
	assert.True(t, StatusApproved.Terminal())
	assert.False(t, Status("archived").Valid())
}
