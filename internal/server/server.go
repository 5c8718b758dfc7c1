package server

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/minghua-center/minghua/internal/audit"
	auditdomain "github.com/minghua-center/minghua/internal/audit/domain"
	"github.com/minghua-center/minghua/internal/authorization"
	"github.com/minghua-center/minghua/internal/clock"
	"github.com/minghua-center/minghua/internal/config"
	"github.com/minghua-center/minghua/internal/identity"
	"github.com/minghua-center/minghua/internal/identity/local"
	"github.com/minghua-center/minghua/internal/invitation"
	invitationdomain "github.com/minghua-center/minghua/internal/invitation/domain"
	invitationservice "github.com/minghua-center/minghua/internal/invitation/service"
	"github.com/minghua-center/minghua/internal/observability"
	"github.com/minghua-center/minghua/internal/observability/metrics"
	"github.com/minghua-center/minghua/internal/profile"
	profiledomain "github.com/minghua-center/minghua/internal/profile/domain"
	"github.com/minghua-center/minghua/internal/session/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module assembles the HTTP surface and its feature dependencies.
var Module = fx.Module("http.server",
	observability.Module,
	identity.Module,
	profile.Module,
	invitation.Module,
	audit.Module,
	authorization.Module,
	fx.Provide(NewCookieManager),
	fx.Provide(newLedger),
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(registerRoutes),
	fx.Invoke(run),
)

func newLedger(cfg config.Config, clk clock.Clock) *ratelimit.Ledger {
	return ratelimit.NewLedger(clk,
		ratelimit.WithMaxAttempts(cfg.SignInMaxAttempts),
		ratelimit.WithWindow(cfg.SignInWindow),
		ratelimit.WithMaxTracked(cfg.SignInMaxTracked),
	)
}

// Server carries the handler dependencies.
type Server struct {
	cfg         config.Config
	log         *zap.Logger
	provider    *local.Provider
	profiles    profiledomain.Repository
	invitations *invitationservice.Service
	inviteRepo  invitationdomain.Repository
	auditSvc    auditdomain.Service
	authz       *authorization.Service
	ledger      *ratelimit.Ledger
	cookies     *CookieManager
	metrics     *metrics.Metrics
	clock       clock.Clock
}

type ServerParams struct {
	fx.In

	Cfg         config.Config
	Log         *zap.Logger
	Provider    *local.Provider
	Profiles    profiledomain.Repository
	Invitations *invitationservice.Service
	InviteRepo  invitationdomain.Repository
	AuditSvc    auditdomain.Service
	Authz       *authorization.Service
	Ledger      *ratelimit.Ledger
	Cookies     *CookieManager
	Metrics     *metrics.Metrics
	Clock       clock.Clock
}

func NewServer(p ServerParams) *Server {
	return &Server{
		cfg:         p.Cfg,
		log:         p.Log.Named("server"),
		provider:    p.Provider,
		profiles:    p.Profiles,
		invitations: p.Invitations,
		inviteRepo:  p.InviteRepo,
		auditSvc:    p.AuditSvc,
		authz:       p.Authz,
		ledger:      p.Ledger,
		cookies:     p.Cookies,
		metrics:     p.Metrics,
		clock:       p.Clock,
	}
}

func NewEngine(cfg config.Config, registry *prometheus.Registry) *gin.Engine {
	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	return r
}

func registerRoutes(r *gin.Engine, s *Server) {
	api := r.Group("/api")

	authGroup := api.Group("/auth")
	authGroup.POST("/login", s.Login)
	authGroup.POST("/logout", s.RequireSession(), s.Logout)
	authGroup.GET("/me", s.RequireSession(), s.Me)

	invitations := api.Group("/invitations")
	invitations.POST("", s.RequireSession(), s.RequireRole(authorization.ResourceInvitations, authorization.ActionCreate), s.CreateInvitation)
	invitations.GET("", s.RequireSession(), s.RequireRole(authorization.ResourceInvitations, authorization.ActionView), s.ListInvitations)
	invitations.POST("/accept", s.RequireSession(), s.AcceptInvitation)

	api.GET("/audit-logs", s.RequireSession(), s.RequireRole(authorization.ResourceAuditLogs, authorization.ActionView), s.ListAuditLogs)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			_ = ctx
			log.Info("http server starting", zap.String("addr", cfg.HTTPAddr))
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Error("http server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}
