package session

import (
	"context"

	"github.com/minghua-center/minghua/internal/clock"
	"github.com/minghua-center/minghua/internal/config"
	identitydomain "github.com/minghua-center/minghua/internal/identity/domain"
	profiledomain "github.com/minghua-center/minghua/internal/profile/domain"
	"github.com/minghua-center/minghua/internal/session/domain"
	"github.com/minghua-center/minghua/internal/session/ratelimit"
	"github.com/minghua-center/minghua/internal/session/service"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func newLedger(cfg config.Config, clk clock.Clock) *ratelimit.Ledger {
	return ratelimit.NewLedger(clk,
		ratelimit.WithMaxAttempts(cfg.SignInMaxAttempts),
		ratelimit.WithWindow(cfg.SignInWindow),
		ratelimit.WithMaxTracked(cfg.SignInMaxTracked),
	)
}

func newManager(cfg config.Config, log *zap.Logger, provider identitydomain.Provider, profiles profiledomain.Repository, ledger *ratelimit.Ledger) domain.Service {
	return service.New(log, provider, profiles, ledger,
		service.WithDevMode(cfg.IsDevelopment()),
	)
}

func registerHooks(lc fx.Lifecycle, svc domain.Service) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return svc.Initialize(ctx)
		},
		OnStop: func(ctx context.Context) error {
			_ = ctx
			svc.Close()
			return nil
		},
	})
}

// Module wires the session manager for client builds. The HTTP server does
// not mount this; it authenticates per-request tokens instead.
var Module = fx.Module("session",
	fx.Provide(newLedger),
	fx.Provide(newManager),
	fx.Invoke(registerHooks),
)
