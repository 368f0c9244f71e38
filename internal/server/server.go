package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/banadama/pricing/internal/audit"
	auditdomain "github.com/banadama/pricing/internal/audit/domain"
	"github.com/banadama/pricing/internal/authorization"
	"github.com/banadama/pricing/internal/cache"
	"github.com/banadama/pricing/internal/checkout"
	checkoutdomain "github.com/banadama/pricing/internal/checkout/domain"
	"github.com/banadama/pricing/internal/config"
	"github.com/banadama/pricing/internal/ledger"
	"github.com/banadama/pricing/internal/observability"
	obsmiddleware "github.com/banadama/pricing/internal/observability/logger"
	obsmetrics "github.com/banadama/pricing/internal/observability/metrics"
	obstracing "github.com/banadama/pricing/internal/observability/tracing"
	"github.com/banadama/pricing/internal/pricing"
	pricingdomain "github.com/banadama/pricing/internal/pricing/domain"
	"github.com/banadama/pricing/internal/pricingrule"
	pricingruledomain "github.com/banadama/pricing/internal/pricingrule/domain"
	"github.com/banadama/pricing/internal/ratelimit"
	"github.com/banadama/pricing/internal/settlement"
	settlementdomain "github.com/banadama/pricing/internal/settlement/domain"
	"github.com/banadama/pricing/internal/tax"
	taxdomain "github.com/banadama/pricing/internal/tax/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	authorization.Module,
	audit.Module,
	cache.Module,
	pricingrule.Module,
	tax.Module,
	pricing.Module,
	ledger.Module,
	settlement.Module,
	checkout.Module,
	ratelimit.Module,
	fx.Provide(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, engineMetrics *obsmetrics.EngineMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(ActorContext())
	r.Use(obstracing.GinMiddleware())
	r.Use(HTTPMetrics(engineMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(cfg config.Config, obsCfg observability.Config, engineMetrics *obsmetrics.EngineMetrics) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	return NewEngine(obsCfg, engineMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, log *zap.Logger, s *Server) {
	addr := strings.TrimSpace(cfg.HTTPAddr)
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Engine(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", addr))
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
	engine         *gin.Engine
	authzSvc       authorization.Service
	auditSvc       auditdomain.Service
	pricingEngine  pricingdomain.Engine
	pricingRuleSvc pricingruledomain.Service
	taxSvc         taxdomain.Service
	settlementSvc  settlementdomain.Service
	checkoutSvc    checkoutdomain.Service
	limiter        *ratelimit.PricingLimiter
}

type ServerParams struct {
	fx.In

	Gin            *gin.Engine
	AuthzSvc       authorization.Service
	AuditSvc       auditdomain.Service
	PricingEngine  pricingdomain.Engine
	PricingRuleSvc pricingruledomain.Service
	TaxSvc         taxdomain.Service
	SettlementSvc  settlementdomain.Service
	CheckoutSvc    checkoutdomain.Service
	Limiter        *ratelimit.PricingLimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:         p.Gin,
		authzSvc:       p.AuthzSvc,
		auditSvc:       p.AuditSvc,
		pricingEngine:  p.PricingEngine,
		pricingRuleSvc: p.PricingRuleSvc,
		taxSvc:         p.TaxSvc,
		settlementSvc:  p.SettlementSvc,
		checkoutSvc:    p.CheckoutSvc,
		limiter:        p.Limiter,
	}

	svc.registerAPIRoutes()
	svc.registerAdminRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")
	api.Use(RequireActor())

	// -------- Pricing --------
	api.POST("/pricing/breakdowns",
		s.authorize(authorization.ObjectPricing, authorization.ActionPricingCompute),
		s.BreakdownRateLimit(),
		s.ComputeBreakdown,
	)

	// -------- Settlements --------
	api.POST("/settlements/:order_id", s.authorize(authorization.ObjectSettlement, authorization.ActionSettlementCommit), s.CommitSettlement)
	api.GET("/settlements/:order_id", s.authorize(authorization.ObjectSettlement, authorization.ActionSettlementView), s.GetSettlement)

	// -------- Checkout --------
	api.POST("/orders", s.authorize(authorization.ObjectOrder, authorization.ActionOrderPlace), s.PlaceOrder)
	api.POST("/rfqs/:rfq_id/quotes", s.authorize(authorization.ObjectQuote, authorization.ActionQuoteCreate), s.QuoteRFQ)
	api.POST("/rfqs/:rfq_id/accept", s.authorize(authorization.ObjectQuote, authorization.ActionQuoteAccept), s.AcceptQuote)
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/admin")
	admin.Use(RequireActor())

	// -------- Pricing rules --------
	admin.GET("/pricing-rules", s.authorize(authorization.ObjectPricingRule, authorization.ActionPricingRuleView), s.ListPricingRules)
	admin.POST("/pricing-rules", s.authorize(authorization.ObjectPricingRule, authorization.ActionPricingRuleManage), s.CreatePricingRule)
	admin.GET("/pricing-rules/:id", s.authorize(authorization.ObjectPricingRule, authorization.ActionPricingRuleView), s.GetPricingRule)
	admin.PATCH("/pricing-rules/:id", s.authorize(authorization.ObjectPricingRule, authorization.ActionPricingRuleManage), s.UpdatePricingRule)
	admin.DELETE("/pricing-rules/:id", s.authorize(authorization.ObjectPricingRule, authorization.ActionPricingRuleManage), s.DeletePricingRule)
	admin.POST("/pricing-rules/:id/deactivate", s.authorize(authorization.ObjectPricingRule, authorization.ActionPricingRuleManage), s.DeactivatePricingRule)

	// -------- Tax definitions --------
	admin.GET("/tax-definitions", s.authorize(authorization.ObjectTaxDefinition, authorization.ActionTaxView), s.ListTaxDefinitions)
	admin.POST("/tax-definitions", s.authorize(authorization.ObjectTaxDefinition, authorization.ActionTaxManage), s.CreateTaxDefinition)
	admin.PATCH("/tax-definitions/:id", s.authorize(authorization.ObjectTaxDefinition, authorization.ActionTaxManage), s.UpdateTaxDefinition)
	admin.POST("/tax-definitions/:id/disable", s.authorize(authorization.ObjectTaxDefinition, authorization.ActionTaxManage), s.DisableTaxDefinition)

	// -------- Audit --------
	admin.GET("/audit-logs", s.authorize(authorization.ObjectAuditLog, authorization.ActionAuditLogView), s.ListAuditLogs)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
