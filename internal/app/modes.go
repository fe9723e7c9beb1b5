package app

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/polydesk/internal/domain"
	"github.com/alanyoungcy/polydesk/internal/server"
	"github.com/alanyoungcy/polydesk/internal/server/handler"
	"github.com/alanyoungcy/polydesk/internal/server/ws"
	"github.com/alanyoungcy/polydesk/internal/uistate"
)

// serve runs the dashboard server together with the gas estimator and, when
// enabled, the order tracker. It blocks until ctx is cancelled or one of them
// fails.
func (a *App) serve(ctx context.Context, deps *Dependencies, args []string) error {
	fs := a.flags("serve")
	port := fs.Int("port", a.cfg.Server.Port, "listen port")
	noTracker := fs.Bool("no-tracker", false, "disable order status tracking")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a.logger.InfoContext(ctx, "app: starting dashboard server",
		slog.Int("port", *port),
		slog.String("wallet", deps.Orders.Wallet()),
		slog.Bool("redis", a.cfg.Redis.Enabled),
		slog.Bool("journal", deps.AuditStore != nil),
	)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return deps.Gas.Run(ctx)
	})

	tracking := a.cfg.Tracker.Enabled && !*noTracker
	if tracking {
		g.Go(func() error {
			return deps.Tracker.Run(ctx)
		})
	}

	a.startHTTPServer(ctx, g, deps, *port, tracking)

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// startHTTPServer registers the dashboard routes and runs the server and its
// websocket hub inside g.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, port int, tracking bool) {
	status := &deskStatus{deps: deps, tracking: tracking}

	hub := ws.NewHub(deps.SignalBus, ws.Config{
		Channels:       ws.DefaultChannels,
		Hello:          func() any { return status.snapshot() },
		AllowedOrigins: a.cfg.Server.CORSOrigins,
	}, a.logger)
	g.Go(func() error {
		return hub.Run(ctx)
	})

	// Every connected dashboard follows view state changes made by any other.
	deps.State.OnChange(func(s uistate.State) {
		a.publishState(ctx, deps.SignalBus, s)
		deps.View.Trigger()
	})
	g.Go(func() error {
		return deps.View.Run(ctx)
	})

	srv := server.NewServer(server.Config{
		Port:        port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
	}, server.Handlers{
		Health:  handler.NewHealthHandler(deps.Checks),
		Status:  handler.NewStatusHandler(status, a.cfg.Chain.ChainID, time.Now().UTC()),
		Markets: handler.NewMarketHandler(deps.Markets, a.logger),
		Orders:  handler.NewOrderHandler(deps.Orders, a.logger),
		Funds:   handler.NewFundsHandler(deps.Funds, a.logger),
		State:   handler.NewStateHandler(deps.State, a.logger),
		Hub:     hub,
	}, deps.RateLimiter, a.logger)

	g.Go(func() error {
		return srv.Start(ctx)
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}

func (a *App) publishState(ctx context.Context, bus domain.SignalBus, s uistate.State) {
	state, err := json.Marshal(s)
	if err != nil {
		return
	}
	payload, err := json.Marshal(domain.StateEvent{
		Kind:  domain.EventStateChanged,
		State: state,
		At:    time.Now().UTC(),
	})
	if err != nil {
		return
	}
	if err := bus.Publish(ctx, domain.ChannelState, payload); err != nil {
		a.logger.WarnContext(ctx, "app: publish view state failed", slog.String("error", err.Error()))
	}
}

// deskStatus reports live runtime figures for /api/status and the websocket
// hello frame.
type deskStatus struct {
	deps     *Dependencies
	tracking bool
}

func (s *deskStatus) Wallet() string { return s.deps.Orders.Wallet() }

func (s *deskStatus) TrackedOrders() int {
	if !s.tracking {
		return 0
	}
	return s.deps.Tracker.Tracked()
}

func (s *deskStatus) ApprovalPending() bool { return s.deps.Funds.Pending() }

func (s *deskStatus) Gas() (domain.GasEstimate, bool) { return s.deps.Gas.Current() }

func (s *deskStatus) snapshot() map[string]any {
	hello := map[string]any{
		"wallet":          s.Wallet(),
		"walletConnected": s.Wallet() != "",
		"trackedOrders":   s.TrackedOrders(),
		"approvalPending": s.ApprovalPending(),
	}
	if gas, ok := s.Gas(); ok {
		hello["gas"] = gas
	}
	return hello
}

// flags returns a flag set for one command that reports errors instead of
// exiting.
func (a *App) flags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.out)
	return fs
}
