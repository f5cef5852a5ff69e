package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/estate/internal/audit/domain"
	auditrepo "github.com/smallbiznis/estate/internal/audit/repository"
	auditservice "github.com/smallbiznis/estate/internal/audit/service"
	"github.com/smallbiznis/estate/internal/authorization"
	"github.com/smallbiznis/estate/internal/clock"
	"github.com/smallbiznis/estate/internal/config"
	"github.com/smallbiznis/estate/internal/events"
	exchangeratedomain "github.com/smallbiznis/estate/internal/exchangerate/domain"
	exchangeraterepo "github.com/smallbiznis/estate/internal/exchangerate/repository"
	exchangerateservice "github.com/smallbiznis/estate/internal/exchangerate/service"
	"github.com/smallbiznis/estate/internal/exchangerate/source"
	invoicedomain "github.com/smallbiznis/estate/internal/invoice/domain"
	"github.com/smallbiznis/estate/internal/invoice/render"
	invoicerepo "github.com/smallbiznis/estate/internal/invoice/repository"
	invoiceservice "github.com/smallbiznis/estate/internal/invoice/service"
	obsmetrics "github.com/smallbiznis/estate/internal/observability/metrics"
	pricingdomain "github.com/smallbiznis/estate/internal/pricing/domain"
	pricingrepo "github.com/smallbiznis/estate/internal/pricing/repository"
	pricingservice "github.com/smallbiznis/estate/internal/pricing/service"
	"github.com/smallbiznis/estate/internal/providers/pdf"
	"github.com/smallbiznis/estate/internal/ratelimit"
	"github.com/smallbiznis/estate/internal/reference"
	taxdomain "github.com/smallbiznis/estate/internal/tax/domain"
	taxrepo "github.com/smallbiznis/estate/internal/tax/repository"
	taxservice "github.com/smallbiznis/estate/internal/tax/service"
	"github.com/smallbiznis/estate/internal/testutil"
	workflowdomain "github.com/smallbiznis/estate/internal/workflow/domain"
	workflowrepo "github.com/smallbiznis/estate/internal/workflow/repository"
	workflowservice "github.com/smallbiznis/estate/internal/workflow/service"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	owner   = authorization.Actor{UserID: 7, Role: authorization.RoleUser}
	other   = authorization.Actor{UserID: 8, Role: authorization.RoleUser}
	finance = authorization.Actor{UserID: 20, Role: authorization.RoleFinance}
	admin   = authorization.Actor{UserID: 30, Role: authorization.RoleAdmin}
)

type testServer struct {
	srv       *Server
	db        *gorm.DB
	clock     *clock.FakeClock
	plans     *pricingservice.PlanService
	publisher *events.Recorder
}

type serverOption struct {
	mutate  func(*config.PricingConfig)
	limiter func(*config.PricingConfigHolder) *ratelimit.PublicLimiter
	source  func(exchangeratedomain.Source) exchangeratedomain.Source
	metrics *obsmetrics.Metrics
}

func newTestServer(t *testing.T, opt serverOption) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.DefaultPricingConfig()
	if opt.mutate != nil {
		opt.mutate(&cfg)
	}
	registry, err := reference.BuildRegistry(cfg)
	require.NoError(t, err)
	holder := config.NewStaticPricingConfigHolder(cfg)

	db := testutil.OpenDB(t,
		&exchangeratedomain.ExchangeRate{},
		&taxdomain.TaxRule{},
		&pricingdomain.Plan{},
		&pricingdomain.CountryPlanPrice{},
		&invoicedomain.Invoice{},
		&invoicedomain.InvoiceItem{},
		&invoicedomain.InvoiceSequence{},
		&workflowdomain.Workflow{},
		&workflowdomain.AuditEntry{},
		&auditdomain.AuditLog{},
	)
	clk := clock.NewFakeClock(time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC))
	node := testutil.Node(t)
	publisher := &events.Recorder{}

	audit := auditservice.NewService(auditservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  auditrepo.Provide(),
		Clock: clk,
	})
	enforcer, err := authorization.NewEnforcer(db)
	require.NoError(t, err)
	authz := authorization.NewService(authorization.Params{Log: zap.NewNop(), Enforcer: enforcer, AuditSvc: audit})

	var rateSource exchangeratedomain.Source = source.NewStatic(holder, clk)
	if opt.source != nil {
		rateSource = opt.source(rateSource)
	}
	rates := exchangerateservice.New(exchangerateservice.Params{
		Log:       zap.NewNop(),
		Clock:     clk,
		Pricing:   holder,
		Source:    rateSource,
		Metrics:   opt.metrics,
		Repo:      exchangeraterepo.Provide(db),
		Publisher: publisher,
	})

	tax := taxservice.NewService(taxservice.Params{
		DB:       db,
		Log:      zap.NewNop(),
		Clock:    clk,
		Registry: registry,
		Pricing:  holder,
		Repo:     taxrepo.NewRepository(),
		AuditSvc: audit,
	})
	_, err = tax.SeedDefaults(context.Background())
	require.NoError(t, err)

	engine := pricingservice.NewEngine(registry, rates)
	plans := pricingservice.NewPlanService(pricingservice.Params{
		DB:       db,
		Log:      zap.NewNop(),
		GenID:    node,
		Clock:    clk,
		Registry: registry,
		Engine:   engine,
		Tax:      tax,
		Repo:     pricingrepo.Provide(db),
		AuditSvc: audit,
	})

	invoices := invoiceservice.NewService(invoiceservice.Params{
		DB:        db,
		Log:       zap.NewNop(),
		GenID:     node,
		Clock:     clk,
		Registry:  registry,
		Pricing:   holder,
		Tax:       tax,
		Repo:      invoicerepo.NewRepository(),
		Publisher: publisher,
	})
	workflows := workflowservice.NewService(workflowservice.Params{
		DB:        db,
		Log:       zap.NewNop(),
		GenID:     node,
		Clock:     clk,
		Registry:  registry,
		Repo:      workflowrepo.NewRepository(),
		Invoices:  invoices,
		Authz:     authz,
		AuditSvc:  audit,
		Publisher: publisher,
	})

	var limiter *ratelimit.PublicLimiter
	if opt.limiter != nil {
		limiter = opt.limiter(holder)
	}

	srv, err := NewServer(ServerParams{
		Gin:           NewEngine(nil),
		Cfg:           config.Config{AppName: "Estate"},
		DB:            db,
		Log:           zap.NewNop(),
		Clock:         clk,
		Registry:      registry,
		Pricing:       holder,
		AuthzSvc:      authz,
		AuditSvc:      audit,
		WorkflowSvc:   workflows,
		InvoiceSvc:    invoices,
		TaxSvc:        tax,
		PlanSvc:       plans,
		PriceEngine:   engine,
		Rates:         rates,
		Renderer:      render.NewRenderer(),
		PDF:           pdf.New(),
		PublicLimiter: limiter,
		ObsMetrics:    opt.metrics,
	})
	require.NoError(t, err)

	return &testServer{srv: srv, db: db, clock: clk, plans: plans, publisher: publisher}
}

type request struct {
	method   string
	path     string
	body     any
	actor    *authorization.Actor
	language string
}

func (ts *testServer) do(t *testing.T, r request) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	if r.body != nil {
		require.NoError(t, json.NewEncoder(&body).Encode(r.body))
	}
	req := httptest.NewRequest(r.method, r.path, &body)
	req.Header.Set("Content-Type", "application/json")
	if r.actor != nil {
		req.Header.Set(HeaderUserID, strconv.FormatInt(r.actor.UserID, 10))
		req.Header.Set(HeaderUserRole, string(r.actor.Role))
	}
	if r.language != "" {
		req.Header.Set("Accept-Language", r.language)
	}
	rec := httptest.NewRecorder()
	ts.srv.Engine().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func errorOf(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	body := decodeBody(t, rec)
	payload, ok := body["error"].(map[string]any)
	require.True(t, ok, rec.Body.String())
	return payload
}

func (ts *testServer) createPlan(t *testing.T, code, price string) *pricingdomain.Plan {
	t.Helper()
	plan, err := ts.plans.CreatePlan(context.Background(), pricingdomain.CreatePlanRequest{
		Code:         code,
		Name:         code,
		Type:         pricingdomain.PlanTypeListing,
		BasePrice:    decimal.RequireFromString(price),
		BaseCurrency: "USD",
		DurationDays: 30,
	})
	require.NoError(t, err)
	return plan
}
