package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/estate/internal/authorization"
	workflowdomain "github.com/smallbiznis/estate/internal/workflow/domain"
)

const propertyAuditLogLimit = 50

type createWorkflowRequest struct {
	PropertyID     int64  `json:"propertyId" binding:"required,gt=0"`
	CountryCode    string `json:"countryCode" binding:"required,iso_country"`
	CurrencyCode   string `json:"currencyCode" binding:"omitempty,iso_currency"`
	CurrencySymbol string `json:"currencySymbol" binding:"max=8"`
}

func (s *Server) CreateWorkflow(c *gin.Context) {
	actor, ok := actorFromRequest(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req createWorkflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindingError(err))
		return
	}

	workflow, err := s.workflowSvc.CreateWorkflow(c.Request.Context(), actor, workflowdomain.CreateWorkflowRequest{
		PropertyID:     req.PropertyID,
		CountryCode:    strings.ToUpper(strings.TrimSpace(req.CountryCode)),
		CurrencyCode:   strings.ToUpper(strings.TrimSpace(req.CurrencyCode)),
		CurrencySymbol: strings.TrimSpace(req.CurrencySymbol),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"workflow": workflow})
}

// GetWorkflowByProperty returns the workflow and its transition history to
// the owner or a reviewer.
func (s *Server) GetWorkflowByProperty(c *gin.Context) {
	actor, ok := actorFromRequest(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	propertyID, err := parseOptionalInt64(c.Param("propertyId"))
	if err != nil || propertyID == nil || *propertyID <= 0 {
		AbortWithError(c, newValidationError("propertyId", "invalid_propertyId", "invalid propertyId"))
		return
	}

	ctx := c.Request.Context()
	workflow, err := s.workflowSvc.GetByProperty(ctx, *propertyID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if workflow.OwnerID != actor.UserID && !s.can(c, authorization.ObjectWorkflow, authorization.ActionWorkflowReview) {
		AbortWithError(c, ErrForbidden)
		return
	}

	entries, err := s.workflowSvc.GetAuditLog(ctx, workflow.PropertyID, propertyAuditLogLimit)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"workflow": workflow, "auditLog": entries})
}

func (s *Server) ListPendingReviews(c *gin.Context) {
	page, limit, err := parsePage(c.Query("page"), c.Query("limit"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.workflowSvc.ListPendingReviews(c.Request.Context(), page, limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

type reviewWorkflowRequest struct {
	Action string `json:"action" binding:"required,oneof=approve reject request_changes"`
	Notes  string `json:"notes" binding:"max=2000"`
}

func (s *Server) ReviewWorkflow(c *gin.Context) {
	actor, ok := actorFromRequest(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	id, err := parseSnowflakeParam(c.Param("workflowId"), "workflowId")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req reviewWorkflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindingError(err))
		return
	}

	workflow, err := s.workflowSvc.Review(c.Request.Context(), actor, id, workflowdomain.ReviewAction(req.Action), strings.TrimSpace(req.Notes))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"workflow": workflow})
}

type confirmPaymentRequest struct {
	Reference string `json:"reference" binding:"required,max=200"`
}

func (s *Server) ConfirmPayment(c *gin.Context) {
	actor, ok := actorFromRequest(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	invoiceID, err := parseSnowflakeParam(c.Param("invoiceId"), "invoiceId")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req confirmPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindingError(err))
		return
	}

	result, err := s.workflowSvc.ConfirmPayment(c.Request.Context(), actor, invoiceID, strings.TrimSpace(req.Reference))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}
