package authorization

import (
	"context"
	_ "embed"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	auditdomain "github.com/smallbiznis/estate/internal/audit/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

type Params struct {
	fx.In

	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
	AuditSvc auditdomain.Service `optional:"true"`
}

type ServiceImpl struct {
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
	auditSvc auditdomain.Service
}

// NewEnforcer loads policies from the casbin_rule table and seeds the
// built-in role policies. Seeding is idempotent.
func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	if err := enforcer.BuildRoleLinks(); err != nil {
		return nil, err
	}
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
		auditSvc: p.AuditSvc,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, actor Actor, object string, action string) error {
	if _, ok := ParseRole(string(actor.Role)); !ok {
		return ErrInvalidActor
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	allowed, err := s.enforcer.Enforce(roleSubject(actor.Role), object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.auditDenied(ctx, actor, object, action)
		return ErrForbidden
	}
	return nil
}

func (s *ServiceImpl) auditDenied(ctx context.Context, actor Actor, object string, action string) {
	s.log.Info("authorization denied",
		zap.String("role", string(actor.Role)),
		zap.String("object", object),
		zap.String("action", action),
	)
	if s.auditSvc == nil {
		return
	}
	var actorID *string
	if id := actor.IDString(); id != "" {
		actorID = &id
	}
	targetID := "capability"
	_ = s.auditSvc.AuditLog(ctx, string(actor.Role), actorID, "authorization.denied", "authorization", &targetID, map[string]any{
		"object": object,
		"action": action,
	})
}

func roleSubject(role Role) string {
	return "role:" + string(role)
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		{roleSubject(RoleUser), ObjectWorkflow, ActionWorkflowCheckout},

		{roleSubject(RoleFinance), ObjectInvoice, ActionInvoiceViewAny},
		{roleSubject(RoleFinance), ObjectInvoice, ActionInvoiceConfirmPayment},
		{roleSubject(RoleFinance), ObjectInvoice, ActionInvoiceExport},
		{roleSubject(RoleFinance), ObjectInvoice, ActionInvoiceTaxExempt},

		{roleSubject(RoleAdmin), ObjectWorkflow, ActionWorkflowReview},
		{roleSubject(RoleAdmin), ObjectTaxRule, ActionTaxRuleManage},
		{roleSubject(RoleAdmin), ObjectPlanPrice, ActionPlanPriceManage},
		{roleSubject(RoleAdmin), ObjectExchangeRate, ActionExchangeRateManage},
		{roleSubject(RoleAdmin), ObjectAuditLog, ActionAuditLogView},

		{roleSubject(RoleSystem), ObjectWorkflow, ActionWorkflowCheckout},
		{roleSubject(RoleSystem), ObjectInvoice, ActionInvoiceConfirmPayment},
		{roleSubject(RoleSystem), ObjectExchangeRate, ActionExchangeRateManage},
	}
	for _, policy := range policies {
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}

	// admin inherits every finance permission
	_, err := enforcer.AddGroupingPolicy(roleSubject(RoleAdmin), roleSubject(RoleFinance))
	return err
}
