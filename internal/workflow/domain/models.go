package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Status string

const (
	StatusDraft          Status = "draft"
	StatusPendingPayment Status = "pending_payment"
	StatusPendingReview  Status = "pending_review"
	StatusApproved       Status = "approved"
	StatusRejected       Status = "rejected"
)

func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusPendingPayment, StatusPendingReview, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

type ReviewAction string

const (
	ReviewApprove        ReviewAction = "approve"
	ReviewReject         ReviewAction = "reject"
	ReviewRequestChanges ReviewAction = "request_changes"
)

// Target returns the status a review action moves a workflow to.
func (a ReviewAction) Target() (Status, bool) {
	switch a {
	case ReviewApprove:
		return StatusApproved, true
	case ReviewReject:
		return StatusRejected, true
	case ReviewRequestChanges:
		return StatusPendingReview, true
	}
	return "", false
}

// Workflow tracks one listing from draft to a review decision.
type Workflow struct {
	ID               snowflake.ID  `json:"id,string" gorm:"primaryKey"`
	PropertyID       int64         `json:"property_id" gorm:"not null;uniqueIndex:ux_listing_workflows_property"`
	OwnerID          int64         `json:"owner_id" gorm:"not null;index"`
	Status           Status        `json:"status" gorm:"type:text;not null;index"`
	InvoiceID        *snowflake.ID `json:"invoice_id,omitempty,string" gorm:"index"`
	CountryCode      string        `json:"country_code" gorm:"type:char(2);not null"`
	CurrencyCode     string        `json:"currency_code" gorm:"type:char(3);not null"`
	CurrencySymbol   string        `json:"currency_symbol" gorm:"type:text;not null"`
	ChangesRequested bool          `json:"changes_requested" gorm:"not null"`
	ReviewNotes      *string       `json:"review_notes,omitempty" gorm:"type:text"`
	CreatedAt        time.Time     `json:"created_at" gorm:"not null"`
	UpdatedAt        time.Time     `json:"updated_at" gorm:"not null"`
}

func (Workflow) TableName() string { return "listing_workflows" }

// AuditEntry is one status transition. Rows are never updated or deleted.
type AuditEntry struct {
	ID          snowflake.ID `json:"id,string" gorm:"primaryKey"`
	WorkflowID  snowflake.ID `json:"workflow_id,string" gorm:"not null;index"`
	PropertyID  int64        `json:"property_id" gorm:"not null;index"`
	ActorUserID *int64       `json:"actor_user_id,omitempty"`
	ActorRole   string       `json:"actor_role" gorm:"type:text;not null"`
	FromStatus  Status       `json:"from_status" gorm:"type:text;not null"`
	ToStatus    Status       `json:"to_status" gorm:"type:text;not null"`
	Notes       *string      `json:"notes,omitempty" gorm:"type:text"`
	CreatedAt   time.Time    `json:"created_at" gorm:"not null;index"`
}

func (AuditEntry) TableName() string { return "workflow_audit_log" }
