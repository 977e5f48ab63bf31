package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/gymstack/gymstack/internal/audit/domain"
	"github.com/gymstack/gymstack/internal/authorization"
	"github.com/gymstack/gymstack/internal/config"
	membershipdomain "github.com/gymstack/gymstack/internal/membership/domain"
	paymentdomain "github.com/gymstack/gymstack/internal/payment/domain"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("server",
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(func(s *Server) { s.RegisterRoutes() }),
	fx.Invoke(RunHTTP),
)

type Params struct {
	fx.In

	Cfg         config.Config
	Log         *zap.Logger
	DB          *gorm.DB
	Registry    *prometheus.Registry
	Engine      *gin.Engine
	Authz       authorization.Authorizer
	Memberships membershipdomain.Service
	Audit       auditdomain.Service
	AuditExport auditdomain.ExportService
	Checkout    paymentdomain.CheckoutService
	Callbacks   paymentdomain.CallbackGateway
}

type Server struct {
	cfg      config.Config
	log      *zap.Logger
	db       *gorm.DB
	registry *prometheus.Registry
	engine   *gin.Engine

	authz          authorization.Authorizer
	membershipSvc  membershipdomain.Service
	auditSvc       auditdomain.Service
	auditExportSvc auditdomain.ExportService
	checkoutSvc    paymentdomain.CheckoutService
	callbacks      paymentdomain.CallbackGateway
}

func NewServer(p Params) *Server {
	return &Server{
		cfg:            p.Cfg,
		log:            p.Log.Named("server"),
		db:             p.DB,
		registry:       p.Registry,
		engine:         p.Engine,
		authz:          p.Authz,
		membershipSvc:  p.Memberships,
		auditSvc:       p.Audit,
		auditExportSvc: p.AuditExport,
		checkoutSvc:    p.Checkout,
		callbacks:      p.Callbacks,
	}
}

func NewEngine(cfg config.Config, log *zap.Logger) *gin.Engine {
	if !cfg.IsDev() {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery(), RequestLogger(log.Named("http")))
	return engine
}

func (s *Server) RegisterRoutes() {
	r := s.engine

	r.GET("/healthz", s.Health)
	r.GET("/metrics", s.Metrics())
	r.GET("/payments/callback", s.PaymentCallback)

	api := r.Group("/api", s.OrgContext(), s.ActorContext())

	api.POST("/memberships", s.RequirePermission(authorization.ActionCreate), s.CreateMembership)
	api.GET("/memberships/:id", s.RequirePermission(authorization.ActionRead), s.GetMembership)
	api.GET("/memberships/:id/notes", s.RequirePermission(authorization.ActionRead), s.ListMembershipNotes)
	api.GET("/members/:id/memberships", s.RequirePermission(authorization.ActionRead), s.ListMemberMemberships)
	api.PUT("/memberships/:id/dates", s.RequirePermission(authorization.ActionModifyDates), s.ModifyMembershipDates)
	api.PUT("/memberships/:id/limits", s.RequirePermission(authorization.ActionModifyLimits), s.ModifyMembershipLimits)
	api.POST("/memberships/:id/hold", s.RequirePermission(authorization.ActionHold), s.HoldMembership)
	api.POST("/memberships/:id/resume", s.RequirePermission(authorization.ActionResume), s.ResumeMembership)
	api.POST("/memberships/:id/cancel", s.RequirePermission(authorization.ActionCancel), s.CancelMembership)
	api.POST("/memberships/:id/upgrade", s.RequirePermission(authorization.ActionUpgrade), s.UpgradeMembership)
	api.POST("/memberships/:id/transfer", s.RequirePermission(authorization.ActionTransfer), s.TransferMembership)
	api.POST("/memberships/:id/reinstate", s.RequirePermission(authorization.ActionReinstate), s.ReinstateMembership)

	api.POST("/checkout", s.RequirePermission(authorization.ActionCheckout), s.StartCheckout)
	api.GET("/notes/export", s.RequirePermission(authorization.ActionExportNotes), s.ExportNotes)
}

func RunHTTP(lc fx.Lifecycle, cfg config.Config, log *zap.Logger, engine *gin.Engine) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}
