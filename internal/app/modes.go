package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/walletlink/internal/domain"
	"github.com/alanyoungcy/walletlink/internal/server"
	"github.com/alanyoungcy/walletlink/internal/server/handler"
	"github.com/alanyoungcy/walletlink/internal/server/ws"
	"github.com/alanyoungcy/walletlink/internal/service"
)

// ServerMode serves the HTTP API and the progress WebSocket until ctx ends.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")
	if !a.cfg.Server.Enabled {
		return fmt.Errorf("app: server mode requires server.enabled")
	}

	g, ctx := errgroup.WithContext(ctx)

	hub := ws.NewHub(deps.Bus, service.ProgressChannel, a.cfg.Server.CORSOrigins, a.logger)
	g.Go(func() error {
		return hub.Run(ctx)
	})

	handlers := server.Handlers{
		Health: handler.NewHealthHandler(deps.HealthChecks, a.logger),
		Status: handler.NewStatusHandler(handler.StatusInfo{
			ChainID:          a.cfg.Polymarket.ChainID,
			Exchange:         deps.Contracts.Exchange.Hex(),
			EscrowContract:   a.cfg.Escrow.Contract,
			FeeBps:           a.cfg.Escrow.FeeBps,
			ReferrerShareBps: a.cfg.Escrow.ReferrerShareBps,
			PerformanceBps:   a.cfg.Escrow.PerformanceBps,
			StartedAt:        time.Now().UTC(),
		}),
		Links: handler.NewLinkHandler(deps.Links, a.logger),
		Audit: handler.NewAuditHandler(deps.Audit, a.logger),
	}
	if deps.Trades != nil {
		handlers.Orders = handler.NewOrderHandler(deps.Trades, a.logger)
	}
	if deps.Claims != nil {
		handlers.Claims = handler.NewClaimHandler(deps.Claims, a.logger)
	}

	srv := server.NewServer(server.Config{
		Port:              a.cfg.Server.Port,
		CORSOrigins:       a.cfg.Server.CORSOrigins,
		APIKey:            a.cfg.Server.APIKey,
		RequestsPerMinute: a.cfg.Server.RequestsPerMinute,
	}, handlers, hub, deps.Limiter, a.logger)

	g.Go(func() error {
		a.logger.InfoContext(ctx, "HTTP server listening",
			slog.Int("port", a.cfg.Server.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", a.cfg.Server.Port)),
		)
		return srv.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})

	return g.Wait()
}

// LinkMode links the configured wallet once, logging each progress step, and
// returns when the flow finishes.
func (a *App) LinkMode(ctx context.Context, deps *Dependencies) error {
	userID := a.link.UserID
	if userID == "" {
		if deps.Local == nil {
			return fmt.Errorf("app: %w: link mode needs a user id or a local key", domain.ErrConfiguration)
		}
		addr, err := deps.Local.GetAddress(ctx)
		if err != nil {
			return fmt.Errorf("app: resolve signer address: %w", err)
		}
		userID = addr.Hex()
	}
	a.logger.InfoContext(ctx, "starting link mode",
		slog.String("user_id", userID),
		slog.String("topology", string(a.link.Topology)),
	)

	res, err := deps.Links.Link(ctx, service.LinkRequest{
		UserID:   userID,
		WalletID: a.link.WalletID,
		Topology: a.link.Topology,
		OnProgress: func(p domain.Progress) {
			a.logger.InfoContext(ctx, "link progress",
				slog.String("step", p.Step),
				slog.Int("index", p.Index),
				slog.Int("total", p.Total),
				slog.String("detail", p.Detail),
				slog.String("tx_hash", p.TxHash),
			)
		},
	})
	if err != nil {
		return fmt.Errorf("app: link %s: %w", userID, err)
	}

	a.logger.InfoContext(ctx, "wallet linked",
		slog.String("user_id", res.UserID),
		slog.String("topology", string(res.Topology)),
		slog.String("signer", res.SignerAddress),
		slog.String("smart_account", res.SmartAccountAddress),
		slog.String("api_key", res.APIKey),
		slog.Bool("deployed_this_call", res.DeployedThisCall),
		slog.Int("allowances_set", res.AllowancesSet),
		slog.Int("allowances_already_approved", res.AllowancesAlreadyApproved),
	)
	return nil
}
