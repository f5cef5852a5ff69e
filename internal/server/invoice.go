package server

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/estate/internal/authorization"
	"github.com/smallbiznis/estate/internal/invoice/export"
	invoicedomain "github.com/smallbiznis/estate/internal/invoice/domain"
	"github.com/smallbiznis/estate/internal/invoice/render"
	pricingdomain "github.com/smallbiznis/estate/internal/pricing/domain"
	workflowdomain "github.com/smallbiznis/estate/internal/workflow/domain"
)

const (
	defaultCurrencyScale = 2
	xlsxContentType      = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

type generateInvoiceRequest struct {
	PlanID         string          `json:"planId"`
	PropertyID     *int64          `json:"propertyId" binding:"omitempty,gt=0"`
	WorkflowID     string          `json:"workflowId"`
	Type           string          `json:"type" binding:"omitempty,oneof=subscription listing"`
	CountryCode    string          `json:"countryCode" binding:"omitempty,iso_country"`
	CurrencyCode   string          `json:"currencyCode" binding:"omitempty,iso_currency"`
	CurrencySymbol string          `json:"currencySymbol" binding:"max=8"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	IsTaxExempt    bool            `json:"isTaxExempt"`
	Description    string          `json:"description" binding:"max=500"`
}

// GenerateInvoice issues an invoice for the caller. With workflowId the
// invoice is created through the workflow checkout so the workflow moves to
// pending_payment in the same transaction.
func (s *Server) GenerateInvoice(c *gin.Context) {
	actor, ok := actorFromRequest(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req generateInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindingError(err))
		return
	}

	planID, err := parseOptionalSnowflakeID(req.PlanID)
	if err != nil {
		AbortWithError(c, newValidationError("planId", "invalid_planId", "invalid planId"))
		return
	}
	workflowID, err := parseOptionalSnowflakeID(req.WorkflowID)
	if err != nil {
		AbortWithError(c, newValidationError("workflowId", "invalid_workflowId", "invalid workflowId"))
		return
	}

	ctx := c.Request.Context()
	// only finance may issue zero-tax invoices
	if req.IsTaxExempt && !s.can(c, authorization.ObjectInvoice, authorization.ActionInvoiceTaxExempt) {
		AbortWithError(c, authorization.ErrForbidden)
		return
	}

	invoiceType := invoicedomain.InvoiceType(req.Type)
	if invoiceType == "" {
		invoiceType = invoicedomain.InvoiceTypeSubscription
		if req.PropertyID != nil || workflowID != nil {
			invoiceType = invoicedomain.InvoiceTypeListing
		}
	}

	var workflow *workflowdomain.Workflow
	if workflowID != nil {
		workflow, err = s.workflowSvc.GetWorkflow(ctx, *workflowID)
		if err != nil {
			AbortWithError(c, err)
			return
		}
	}

	subtotal := req.Subtotal
	countryCode := strings.ToUpper(strings.TrimSpace(req.CountryCode))
	if workflow != nil {
		countryCode = workflow.CountryCode
	}
	if subtotal.IsZero() && planID != nil {
		if countryCode == "" {
			AbortWithError(c, newValidationError("countryCode", "invalid_countryCode", "countryCode is required"))
			return
		}
		quote, err := s.quotePlan(ctx, pricingdomain.QuotePlanRequest{PlanID: *planID, CountryCode: countryCode})
		if err != nil {
			AbortWithError(c, err)
			return
		}
		subtotal = quote.Pricing.Amount
	}

	if workflow != nil {
		result, err := s.workflowSvc.Checkout(ctx, actor, workflow.ID, workflowdomain.CheckoutRequest{
			Type:        invoiceType,
			PlanID:      planID,
			Subtotal:    subtotal,
			IsTaxExempt: req.IsTaxExempt,
			Description: req.Description,
		})
		if err != nil {
			AbortWithError(c, err)
			return
		}

		resp := gin.H{
			"invoice":       result.Invoice,
			"invoiceNumber": result.Invoice.InvoiceNumber,
			"workflow":      result.Workflow,
		}
		if result.Superseded != nil {
			resp["supersededInvoiceId"] = result.Superseded.String()
		}
		c.JSON(http.StatusCreated, resp)
		return
	}

	if countryCode == "" {
		AbortWithError(c, newValidationError("countryCode", "invalid_countryCode", "countryCode is required"))
		return
	}

	invoice, err := s.invoiceSvc.CreateInvoice(ctx, invoicedomain.CreateInvoiceRequest{
		UserID:         actor.UserID,
		Type:           invoiceType,
		PlanID:         planID,
		PropertyID:     req.PropertyID,
		CountryCode:    countryCode,
		CurrencyCode:   strings.ToUpper(strings.TrimSpace(req.CurrencyCode)),
		CurrencySymbol: req.CurrencySymbol,
		Subtotal:       subtotal,
		IsTaxExempt:    req.IsTaxExempt,
		Description:    req.Description,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"invoice":       invoice,
		"invoiceNumber": invoice.InvoiceNumber,
	})
}

func (s *Server) GetInvoice(c *gin.Context) {
	invoice, ok := s.loadVisibleInvoice(c)
	if !ok {
		return
	}

	items, err := s.invoiceSvc.GetInvoiceItems(c.Request.Context(), invoice.ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"invoice": invoice, "items": items})
}

func (s *Server) GetInvoiceHTML(c *gin.Context) {
	input, ok := s.invoiceRenderInput(c)
	if !ok {
		return
	}

	html, err := s.renderer.RenderHTML(input)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(html))
}

// GetInvoicePDF renders an unpaid invoice, or a receipt once it is paid.
func (s *Server) GetInvoicePDF(c *gin.Context) {
	input, ok := s.invoiceRenderInput(c)
	if !ok {
		return
	}

	var (
		doc []byte
		err error
	)
	if input.Invoice.Status == invoicedomain.InvoiceStatusPaid {
		doc, err = s.pdf.GenerateReceipt(c.Request.Context(), render.PDFReceiptData(input))
	} else {
		doc, err = s.pdf.GenerateInvoice(c.Request.Context(), render.PDFInvoiceData(input))
	}
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("inline; filename=%q", input.Invoice.InvoiceNumber+".pdf"))
	c.Data(http.StatusOK, "application/pdf", doc)
}

func (s *Server) ListMyInvoices(c *gin.Context) {
	actor, ok := actorFromRequest(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	page, limit, err := parsePage(c.Query("page"), c.Query("limit"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.invoiceSvc.GetUserInvoices(c.Request.Context(), actor.UserID, page, limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

type exportInvoicesQuery struct {
	UserID  string `form:"user_id"`
	Status  string `form:"status" binding:"omitempty,oneof=unpaid paid superseded"`
	Country string `form:"country"`
	From    string `form:"from"`
	To      string `form:"to"`
	Limit   int    `form:"limit" binding:"omitempty,gte=1,lte=10000"`
}

func (s *Server) ExportInvoices(c *gin.Context) {
	var query exportInvoicesQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, bindingError(err))
		return
	}

	userID, err := parseOptionalInt64(query.UserID)
	if err != nil {
		AbortWithError(c, newValidationError("user_id", "invalid_user_id", "invalid user_id"))
		return
	}
	from, err := parseOptionalTime(query.From, false)
	if err != nil {
		AbortWithError(c, newValidationError("from", "invalid_from", "invalid from"))
		return
	}
	to, err := parseOptionalTime(query.To, true)
	if err != nil {
		AbortWithError(c, newValidationError("to", "invalid_to", "invalid to"))
		return
	}

	invoices, err := s.invoiceSvc.ListInvoices(c.Request.Context(), invoicedomain.ListInvoicesFilter{
		UserID:      userID,
		Status:      invoicedomain.InvoiceStatus(query.Status),
		CountryCode: strings.ToUpper(strings.TrimSpace(query.Country)),
		CreatedFrom: from,
		CreatedTo:   to,
		Limit:       query.Limit,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var buf bytes.Buffer
	if err := export.WriteXLSX(&buf, invoices); err != nil {
		AbortWithError(c, err)
		return
	}

	filename := fmt.Sprintf("invoices-%s.xlsx", s.clock.Now().UTC().Format(dateOnlyLayout))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

// loadVisibleInvoice loads the :invoiceId invoice if the caller owns it or
// may view any invoice.
func (s *Server) loadVisibleInvoice(c *gin.Context) (*invoicedomain.Invoice, bool) {
	actor, ok := actorFromRequest(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return nil, false
	}
	id, err := parseSnowflakeParam(c.Param("invoiceId"), "invoiceId")
	if err != nil {
		AbortWithError(c, err)
		return nil, false
	}

	invoice, err := s.invoiceSvc.GetInvoice(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return nil, false
	}
	if invoice.UserID != actor.UserID && !s.can(c, authorization.ObjectInvoice, authorization.ActionInvoiceViewAny) {
		AbortWithError(c, ErrForbidden)
		return nil, false
	}
	return invoice, true
}

func (s *Server) invoiceRenderInput(c *gin.Context) (render.RenderInput, bool) {
	invoice, ok := s.loadVisibleInvoice(c)
	if !ok {
		return render.RenderInput{}, false
	}
	items, err := s.invoiceSvc.GetInvoiceItems(c.Request.Context(), invoice.ID)
	if err != nil {
		AbortWithError(c, err)
		return render.RenderInput{}, false
	}

	return render.RenderInput{
		Invoice:     *invoice,
		Items:       items,
		Scale:       s.currencyScale(invoice.CurrencyCode),
		CompanyName: s.cfg.AppName,
	}, true
}

func (s *Server) currencyScale(code string) int32 {
	currency, err := s.registry.Currency(code)
	if err != nil {
		return defaultCurrencyScale
	}
	return currency.Scale()
}
