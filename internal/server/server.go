package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/bizsuite/internal/catalog"
	"github.com/smallbiznis/bizsuite/internal/config"
	"github.com/smallbiznis/bizsuite/internal/entitlement"
	"github.com/smallbiznis/bizsuite/internal/modulesub"
	subdomain "github.com/smallbiznis/bizsuite/internal/modulesub/domain"
	"github.com/smallbiznis/bizsuite/internal/observability"
	obsmiddleware "github.com/smallbiznis/bizsuite/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/bizsuite/internal/observability/metrics"
	obstracing "github.com/smallbiznis/bizsuite/internal/observability/tracing"
	"github.com/smallbiznis/bizsuite/internal/organization"
	organizationdomain "github.com/smallbiznis/bizsuite/internal/organization/domain"
	"github.com/smallbiznis/bizsuite/internal/payment"
	paymentdomain "github.com/smallbiznis/bizsuite/internal/payment/domain"
	providerpayment "github.com/smallbiznis/bizsuite/internal/providers/payment"
	"github.com/smallbiznis/bizsuite/internal/sweeper"
	"github.com/smallbiznis/bizsuite/internal/usage"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	config.Module,
	fx.Provide(registerGin),
	fx.Provide(catalog.New),
	organization.Module,
	providerpayment.Module,
	modulesub.Module,
	payment.Module,
	usage.Module,
	entitlement.Module,
	sweeper.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
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
	engine *gin.Engine
	cfg    config.Config
	db     *gorm.DB
	genID  *snowflake.Node

	orgRepo         organizationdomain.Repository
	subscriptionSvc subdomain.Service
	paymentSvc      paymentdomain.Service
	paymentRepo     paymentdomain.Repository
	paymentProvider providerpayment.Provider
	entitlementSvc  entitlement.Service
	catalog         *catalog.Catalog
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	DB              *gorm.DB
	GenID           *snowflake.Node
	OrgRepo         organizationdomain.Repository
	SubscriptionSvc subdomain.Service
	PaymentSvc      paymentdomain.Service
	PaymentRepo     paymentdomain.Repository
	PaymentProvider providerpayment.Provider
	EntitlementSvc  entitlement.Service
	Catalog         *catalog.Catalog
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		db:              p.DB,
		genID:           p.GenID,
		orgRepo:         p.OrgRepo,
		subscriptionSvc: p.SubscriptionSvc,
		paymentSvc:      p.PaymentSvc,
		paymentRepo:     p.PaymentRepo,
		paymentProvider: p.PaymentProvider,
		entitlementSvc:  p.EntitlementSvc,
		catalog:         p.Catalog,
	}

	svc.registerWebhookRoutes()
	svc.registerAPIRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerWebhookRoutes() {
	webhooks := s.engine.Group("/webhooks")

	webhooks.POST("/payment/:provider", s.HandlePaymentWebhook)
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api/v1", s.OrgContext())

	billing := api.Group("/billing")
	{
		billing.GET("/modules", s.ListBillingModules)
		billing.POST("/checkout", s.CreateCheckout)
		billing.POST("/checkout/confirm", s.ConfirmCheckout)
		billing.POST("/portal", s.CreatePortal)
		billing.POST("/modules/:module/cancel", s.CancelModule)
		billing.POST("/modules/:module/resume", s.ResumeModule)
		billing.GET("/modules/:module/events", s.ListModuleEvents)
	}

	entitlements := api.Group("/entitlements")
	{
		entitlements.GET("/:module", s.GetModuleEntitlement)
		entitlements.GET("/:module/:feature", s.GetFeatureUsage)
	}
}
