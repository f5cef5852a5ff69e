package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	exchangeratedomain "github.com/smallbiznis/estate/internal/exchangerate/domain"
	pricingdomain "github.com/smallbiznis/estate/internal/pricing/domain"
	taxdomain "github.com/smallbiznis/estate/internal/tax/domain"
	taxservice "github.com/smallbiznis/estate/internal/tax/service"
	"go.uber.org/zap"
)

var parityRate = decimal.NewFromInt(1)

type localPriceView struct {
	Amount         string     `json:"amount"`
	Formatted      string     `json:"formatted"`
	CurrencyCode   string     `json:"currency_code"`
	CurrencySymbol string     `json:"currency_symbol"`
	Rate           string     `json:"rate"`
	RateUpdatedAt  *time.Time `json:"rate_updated_at,omitempty"`
	RateStale      bool       `json:"rate_stale"`
	RateFallback   bool       `json:"rate_fallback"`
}

func newLocalPriceView(p pricingdomain.LocalPrice) localPriceView {
	view := localPriceView{
		Amount:         p.Amount.StringFixed(p.Scale),
		Formatted:      taxservice.FormatMoney(p.Amount, p.Scale, p.CurrencySymbol),
		CurrencyCode:   p.CurrencyCode,
		CurrencySymbol: p.CurrencySymbol,
		Rate:           p.Rate.String(),
		RateStale:      p.Stale,
		RateFallback:   p.RateFallback,
	}
	if !p.RateUpdatedAt.IsZero() {
		updatedAt := p.RateUpdatedAt.UTC()
		view.RateUpdatedAt = &updatedAt
	}
	return view
}

type planPricingView struct {
	PlanID      snowflake.ID              `json:"plan_id,string"`
	PlanCode    string                    `json:"plan_code"`
	PlanName    string                    `json:"plan_name"`
	PlanType    pricingdomain.PlanType    `json:"plan_type"`
	PriceSource pricingdomain.PriceSource `json:"price_source"`
	localPriceView
	Tax taxQuoteView `json:"tax"`
}

func newPlanPricingView(q *pricingdomain.PlanQuote) planPricingView {
	return planPricingView{
		PlanID:         q.Plan.ID,
		PlanCode:       q.Plan.Code,
		PlanName:       q.Plan.Name,
		PlanType:       q.Plan.Type,
		PriceSource:    q.PriceSource,
		localPriceView: newLocalPriceView(q.Pricing),
		Tax:            newTaxQuoteView(q.Tax),
	}
}

type planWithPricing struct {
	pricingdomain.Plan
	Pricing   *planPricingView     `json:"pricing,omitempty"`
	Breakdown *taxdomain.Breakdown `json:"breakdown,omitempty"`
}

// ListPlans lists active plans. With ?country each plan carries its local
// price and tax breakdown.
func (s *Server) ListPlans(c *gin.Context) {
	ctx := c.Request.Context()
	plans, err := s.planSvc.ListPlans(ctx, true)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	country := strings.ToUpper(strings.TrimSpace(c.Query("country")))
	out := make([]planWithPricing, 0, len(plans))
	for _, plan := range plans {
		item := planWithPricing{Plan: plan}
		if country != "" {
			quote, err := s.quotePlan(ctx, pricingdomain.QuotePlanRequest{PlanID: plan.ID, CountryCode: country})
			if err != nil {
				AbortWithError(c, err)
				return
			}
			view := newPlanPricingView(quote)
			item.Pricing = &view
			item.Breakdown = &quote.Breakdown
		}
		out = append(out, item)
	}

	c.JSON(http.StatusOK, gin.H{"data": out})
}

// GetLocalPrice converts an amount into a country's currency.
func (s *Server) GetLocalPrice(c *gin.Context) {
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
	currency := strings.ToUpper(strings.TrimSpace(c.Query("currency")))
	if currency == "" {
		currency = s.pricing.Get().BaseCurrency
	}

	ctx := c.Request.Context()
	price, err := s.priceEngine.LocalPrice(ctx, amount, currency, country)
	if err != nil {
		if !s.parityFallbackAllowed(err) {
			AbortWithError(c, err)
			return
		}
		price, err = s.priceEngine.LocalPriceAtRate(amount, currency, country, parityRate)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		price.RateFallback = true
		s.noteRateFallback(ctx, price.CurrencyCode)
	}
	if price.Stale {
		s.obsMetrics.RecordRateStale(ctx, price.CurrencyCode)
	}

	c.JSON(http.StatusOK, gin.H{"pricing": newLocalPriceView(price)})
}

type calculatePricingRequest struct {
	PlanID      string `json:"planId" binding:"required"`
	CountryCode string `json:"countryCode" binding:"required,iso_country"`
	IsTaxExempt bool   `json:"isTaxExempt"`
}

func (s *Server) CalculatePricing(c *gin.Context) {
	var req calculatePricingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindingError(err))
		return
	}
	planID, err := parseSnowflakeParam(req.PlanID, "planId")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	quote, err := s.quotePlan(c.Request.Context(), pricingdomain.QuotePlanRequest{
		PlanID:      planID,
		CountryCode: strings.ToUpper(strings.TrimSpace(req.CountryCode)),
		IsTaxExempt: req.IsTaxExempt,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"pricing":   newPlanPricingView(quote),
		"breakdown": quote.Breakdown,
	})
}

// quotePlan prices a plan, degrading to parity when the rate is missing and
// the operator has allowed it.
func (s *Server) quotePlan(ctx context.Context, req pricingdomain.QuotePlanRequest) (*pricingdomain.PlanQuote, error) {
	quote, err := s.planSvc.QuotePlan(ctx, req)
	if err != nil {
		if !s.parityFallbackAllowed(err) {
			return nil, err
		}
		quote, err = s.planSvc.QuotePlanAtRate(ctx, req, parityRate)
		if err != nil {
			return nil, err
		}
		s.noteRateFallback(ctx, quote.Pricing.CurrencyCode)
	}
	if quote.Pricing.Stale {
		s.obsMetrics.RecordRateStale(ctx, quote.Pricing.CurrencyCode)
	}
	return quote, nil
}

func (s *Server) parityFallbackAllowed(err error) bool {
	return errors.Is(err, exchangeratedomain.ErrRateUnavailable) &&
		s.pricing.Get().ExchangeRates.AllowParityFallback
}

func (s *Server) noteRateFallback(ctx context.Context, currency string) {
	s.log.Warn("exchange rate unavailable; pricing at parity",
		zap.String("currency", currency),
	)
	s.obsMetrics.RecordRateFallback(ctx, currency)
}

func (s *Server) ListPlanPrices(c *gin.Context) {
	planID, err := parseSnowflakeParam(c.Param("planId"), "planId")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	prices, err := s.planSvc.ListCountryPrices(c.Request.Context(), planID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": prices})
}

type upsertPlanPriceRequest struct {
	Price *decimal.Decimal `json:"price" binding:"required"`
}

func (s *Server) UpsertPlanPrice(c *gin.Context) {
	planID, err := parseSnowflakeParam(c.Param("planId"), "planId")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req upsertPlanPriceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindingError(err))
		return
	}

	price, err := s.planSvc.UpsertCountryPrice(c.Request.Context(), pricingdomain.UpsertCountryPriceRequest{
		PlanID:      planID,
		CountryCode: strings.ToUpper(strings.TrimSpace(c.Param("countryCode"))),
		Price:       *req.Price,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": price})
}

type reorderPlansRequest struct {
	PlanIDs []string `json:"planIds" binding:"required,min=1"`
}

func (s *Server) ReorderPlans(c *gin.Context) {
	var req reorderPlansRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindingError(err))
		return
	}

	ids := make([]snowflake.ID, 0, len(req.PlanIDs))
	for _, raw := range req.PlanIDs {
		id, err := parseSnowflakeParam(raw, "planIds")
		if err != nil {
			AbortWithError(c, err)
			return
		}
		ids = append(ids, id)
	}

	if err := s.planSvc.ReorderPlans(c.Request.Context(), ids); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
