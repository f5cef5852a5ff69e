package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/estate/internal/audit"
	auditdomain "github.com/smallbiznis/estate/internal/audit/domain"
	"github.com/smallbiznis/estate/internal/authorization"
	"github.com/smallbiznis/estate/internal/clock"
	"github.com/smallbiznis/estate/internal/config"
	"github.com/smallbiznis/estate/internal/events"
	"github.com/smallbiznis/estate/internal/exchangerate"
	exchangeratedomain "github.com/smallbiznis/estate/internal/exchangerate/domain"
	"github.com/smallbiznis/estate/internal/invoice"
	invoicedomain "github.com/smallbiznis/estate/internal/invoice/domain"
	"github.com/smallbiznis/estate/internal/invoice/render"
	obsmiddleware "github.com/smallbiznis/estate/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/estate/internal/observability/metrics"
	obstracing "github.com/smallbiznis/estate/internal/observability/tracing"
	"github.com/smallbiznis/estate/internal/pricing"
	pricingdomain "github.com/smallbiznis/estate/internal/pricing/domain"
	"github.com/smallbiznis/estate/internal/providers"
	"github.com/smallbiznis/estate/internal/providers/pdf"
	"github.com/smallbiznis/estate/internal/ratelimit"
	"github.com/smallbiznis/estate/internal/reference"
	"github.com/smallbiznis/estate/internal/tax"
	taxdomain "github.com/smallbiznis/estate/internal/tax/domain"
	"github.com/smallbiznis/estate/internal/workflow"
	workflowdomain "github.com/smallbiznis/estate/internal/workflow/domain"
	"github.com/smallbiznis/estate/pkg/redisclient"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	redisclient.Module,
	reference.Module,
	events.Module,
	ratelimit.Module,
	audit.Module,
	authorization.Module,
	exchangerate.Module,
	tax.Module,
	pricing.Module,
	providers.Module,
	invoice.Module,
	workflow.Module,
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(run),
)

func NewEngine(httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())
	r.Use(ActorContext())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func run(lc fx.Lifecycle, cfg config.Config, s *Server, log *zap.Logger) {
	srv := &http.Server{
		Addr:              net.JoinHostPort("", cfg.HTTPPort),
		Handler:           s.Engine(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", srv.Addr)
			if err != nil {
				return err
			}
			log.Info("http server listening", zap.String("addr", srv.Addr))
			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("http server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine        *gin.Engine
	cfg           config.Config
	db            *gorm.DB
	log           *zap.Logger
	clock         clock.Clock
	registry      *reference.Registry
	pricing       *config.PricingConfigHolder
	authzSvc      authorization.Service
	auditSvc      auditdomain.Service
	workflowSvc   workflowdomain.Service
	invoiceSvc    invoicedomain.Service
	taxSvc        taxdomain.Service
	planSvc       pricingdomain.PlanService
	priceEngine   pricingdomain.Engine
	rates         exchangeratedomain.Provider
	renderer      render.Renderer
	pdf           pdf.Provider
	publicLimiter *ratelimit.PublicLimiter
	obsMetrics    *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin           *gin.Engine
	Cfg           config.Config
	DB            *gorm.DB
	Log           *zap.Logger
	Clock         clock.Clock
	Registry      *reference.Registry
	Pricing       *config.PricingConfigHolder
	AuthzSvc      authorization.Service
	AuditSvc      auditdomain.Service
	WorkflowSvc   workflowdomain.Service
	InvoiceSvc    invoicedomain.Service
	TaxSvc        taxdomain.Service
	PlanSvc       pricingdomain.PlanService
	PriceEngine   pricingdomain.Engine
	Rates         exchangeratedomain.Provider
	Renderer      render.Renderer
	PDF           pdf.Provider
	PublicLimiter *ratelimit.PublicLimiter `optional:"true"`
	ObsMetrics    *obsmetrics.Metrics      `optional:"true"`
}

func NewServer(p ServerParams) (*Server, error) {
	if err := registerValidators(p.Registry); err != nil {
		return nil, err
	}

	svc := &Server{
		engine:        p.Gin,
		cfg:           p.Cfg,
		db:            p.DB,
		log:           p.Log.Named("http"),
		clock:         p.Clock,
		registry:      p.Registry,
		pricing:       p.Pricing,
		authzSvc:      p.AuthzSvc,
		auditSvc:      p.AuditSvc,
		workflowSvc:   p.WorkflowSvc,
		invoiceSvc:    p.InvoiceSvc,
		taxSvc:        p.TaxSvc,
		planSvc:       p.PlanSvc,
		priceEngine:   p.PriceEngine,
		rates:         p.Rates,
		renderer:      p.Renderer,
		pdf:           p.PDF,
		publicLimiter: p.PublicLimiter,
		obsMetrics:    p.ObsMetrics,
	}

	svc.registerHealthRoutes()
	svc.registerAPIRoutes()
	svc.registerPublicRoutes()
	svc.registerWorkflowRoutes()
	svc.registerAdminRoutes()

	return svc, nil
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerHealthRoutes() {
	s.engine.GET("/health", s.Health)
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	api.GET("/countries", s.ListCountries)
	api.GET("/currencies", s.ListCurrencies)
}

func (s *Server) registerPublicRoutes() {
	public := s.engine.Group("/workflow", s.PublicRateLimit())

	public.GET("/plans", s.ListPlans)
	public.GET("/local-price", s.GetLocalPrice)
	public.POST("/calculate-pricing", s.CalculatePricing)
	public.GET("/tax-rules", s.ListTaxRules)
	public.GET("/tax-preview", s.PreviewTax)
}

func (s *Server) registerWorkflowRoutes() {
	wf := s.engine.Group("/workflow", RequireActor())

	wf.POST("/create", s.CreateWorkflow)
	wf.GET("/property/:propertyId", s.GetWorkflowByProperty)
	wf.POST("/generate-invoice", s.GenerateInvoice)
	wf.GET("/my-invoices", s.ListMyInvoices)
	wf.GET("/invoice/:invoiceId", s.GetInvoice)
	wf.GET("/invoice/:invoiceId/html", s.GetInvoiceHTML)
	wf.GET("/invoice/:invoiceId/pdf", s.GetInvoicePDF)
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/workflow/admin", RequireActor())

	admin.GET("/pending-reviews", s.authorizeAction(authorization.ObjectWorkflow, authorization.ActionWorkflowReview), s.ListPendingReviews)
	// Review and payment confirmation authorize inside the workflow service.
	admin.POST("/review/:workflowId", s.ReviewWorkflow)
	admin.POST("/invoice/:invoiceId/confirm-payment", s.ConfirmPayment)

	admin.GET("/invoices/export", s.authorizeAction(authorization.ObjectInvoice, authorization.ActionInvoiceExport), s.ExportInvoices)

	admin.GET("/tax-rules", s.authorizeAction(authorization.ObjectTaxRule, authorization.ActionTaxRuleManage), s.AdminListTaxRules)
	admin.GET("/tax-rules/:countryCode", s.authorizeAction(authorization.ObjectTaxRule, authorization.ActionTaxRuleManage), s.AdminGetTaxRule)
	admin.PUT("/tax-rules/:countryCode", s.authorizeAction(authorization.ObjectTaxRule, authorization.ActionTaxRuleManage), s.AdminUpdateTaxRule)

	admin.GET("/plans/:planId/prices", s.authorizeAction(authorization.ObjectPlanPrice, authorization.ActionPlanPriceManage), s.ListPlanPrices)
	admin.PUT("/plans/:planId/prices/:countryCode", s.authorizeAction(authorization.ObjectPlanPrice, authorization.ActionPlanPriceManage), s.UpsertPlanPrice)
	admin.PUT("/plans/order", s.authorizeAction(authorization.ObjectPlanPrice, authorization.ActionPlanPriceManage), s.ReorderPlans)

	admin.GET("/exchange-rates", s.authorizeAction(authorization.ObjectExchangeRate, authorization.ActionExchangeRateManage), s.ListExchangeRates)
	admin.POST("/exchange-rates/refresh", s.authorizeAction(authorization.ObjectExchangeRate, authorization.ActionExchangeRateManage), s.RefreshExchangeRates)

	admin.GET("/audit-logs", s.authorizeAction(authorization.ObjectAuditLog, authorization.ActionAuditLogView), s.ListAuditLogs)
}
