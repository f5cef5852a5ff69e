package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/estate/internal/authorization"
	taxdomain "github.com/smallbiznis/estate/internal/tax/domain"
)

type taxQuoteView struct {
	Subtotal       string               `json:"subtotal"`
	CountryCode    string               `json:"country_code"`
	CurrencyCode   string               `json:"currency_code"`
	CurrencySymbol string               `json:"currency_symbol"`
	TaxLabel       string               `json:"tax_label"`
	TaxRate        string               `json:"tax_rate"`
	TaxAmount      string               `json:"tax_amount"`
	Total          string               `json:"total"`
	IsExempt       bool                 `json:"is_exempt"`
	RateSource     taxdomain.RateSource `json:"rate_source"`
}

func newTaxQuoteView(q taxdomain.Quote) taxQuoteView {
	return taxQuoteView{
		Subtotal:       q.Subtotal.StringFixed(q.Scale),
		CountryCode:    q.CountryCode,
		CurrencyCode:   q.CurrencyCode,
		CurrencySymbol: q.CurrencySymbol,
		TaxLabel:       q.TaxLabel,
		TaxRate:        q.TaxRate.String(),
		TaxAmount:      q.TaxAmount.StringFixed(q.Scale),
		Total:          q.Total.StringFixed(q.Scale),
		IsExempt:       q.IsExempt,
		RateSource:     q.RateSource,
	}
}

// ListTaxRules is the public, read-only rule listing.
func (s *Server) ListTaxRules(c *gin.Context) {
	rules, err := s.taxSvc.ListRules(c.Request.Context(), strings.ToUpper(strings.TrimSpace(c.Query("country"))))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": rules})
}

// PreviewTax computes tax on an amount already in the country's currency.
func (s *Server) PreviewTax(c *gin.Context) {
	amount, err := parseDecimalParam(c.Query("amount"), "amount")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	country := strings.ToUpper(strings.TrimSpace(c.Query("country")))
	if country == "" {
		AbortWithError(c, newValidationError("country", "invalid_country", "country is required"))
		return
	}
	exempt, err := parseOptionalBool(c.Query("exempt"))
	if err != nil {
		AbortWithError(c, newValidationError("exempt", "invalid_exempt", "invalid exempt"))
		return
	}

	quote, err := s.taxSvc.Calculate(c.Request.Context(), amount, country, exempt != nil && *exempt)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"tax":       newTaxQuoteView(quote),
		"breakdown": s.taxSvc.FormatBreakdown(quote, quote.CurrencySymbol),
	})
}

func (s *Server) AdminListTaxRules(c *gin.Context) {
	rules, err := s.taxSvc.ListRules(c.Request.Context(), "")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": rules})
}

func (s *Server) AdminGetTaxRule(c *gin.Context) {
	rule, err := s.taxSvc.GetRule(c.Request.Context(), strings.ToUpper(strings.TrimSpace(c.Param("countryCode"))))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": rule})
}

type updateTaxRuleRequest struct {
	Rate  *decimal.Decimal `json:"rate" binding:"required"`
	Notes string           `json:"notes" binding:"max=500"`
}

func (s *Server) AdminUpdateTaxRule(c *gin.Context) {
	var req updateTaxRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindingError(err))
		return
	}

	var actorID string
	if actor, ok := authorization.ActorFromContext(c.Request.Context()); ok {
		actorID = actor.IDString()
	}

	rule, err := s.taxSvc.UpdateRule(c.Request.Context(), taxdomain.UpdateRuleRequest{
		CountryCode: strings.ToUpper(strings.TrimSpace(c.Param("countryCode"))),
		Rate:        *req.Rate,
		Notes:       strings.TrimSpace(req.Notes),
		ActorID:     actorID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": rule})
}
