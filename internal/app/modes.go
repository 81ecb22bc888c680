package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/polyarb/internal/arbitrage"
	"github.com/alanyoungcy/polyarb/internal/crypto"
	"github.com/alanyoungcy/polyarb/internal/domain"
	"github.com/alanyoungcy/polyarb/internal/executor"
	"github.com/alanyoungcy/polyarb/internal/server"
	"github.com/alanyoungcy/polyarb/internal/server/handler"
	"github.com/alanyoungcy/polyarb/internal/server/middleware"
	"github.com/alanyoungcy/polyarb/internal/server/ws"
	"github.com/alanyoungcy/polyarb/internal/service"
)

const shutdownTimeout = 10 * time.Second

// MonitorMode scans and reports. Fundable opportunities are notified and
// published but never dispatched.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode")

	g, ctx := errgroup.WithContext(ctx)

	hub := a.newHub(deps)
	scan := a.newScanService(deps, hub)
	sched := a.newScheduler(deps, scan)

	a.startHub(ctx, g, hub)
	startPipeline(ctx, g, sched, deps.Notify)
	a.startHTTPServer(ctx, g, deps, hub, sched)

	return g.Wait()
}

// ExecuteMode scans and dispatches fundable opportunities. No HTTP surface is
// started.
func (a *App) ExecuteMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting execute mode")

	g, ctx := errgroup.WithContext(ctx)

	exec := a.newExecutor(ctx, deps)
	scan := a.newScanService(deps, nil)
	scan.SetDispatcher(exec)
	sched := a.newScheduler(deps, scan)

	startPipeline(ctx, g, sched, exec, deps.Notify)

	return g.Wait()
}

// FullMode runs the scanner, the executor and the HTTP and WebSocket API.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)

	hub := a.newHub(deps)
	exec := a.newExecutor(ctx, deps)
	scan := a.newScanService(deps, hub)
	scan.SetDispatcher(exec)
	sched := a.newScheduler(deps, scan)

	a.startHub(ctx, g, hub)
	startPipeline(ctx, g, sched, exec, deps.Notify)
	a.startHTTPServer(ctx, g, deps, hub, sched)

	return g.Wait()
}

// newScanService builds the per-cycle service. Without Redis the hub, when
// present, is the publisher so WebSocket clients still see live events.
func (a *App) newScanService(deps *Dependencies, hub *ws.Hub) *service.ScanService {
	evaluator := arbitrage.NewEvaluator(arbitrage.EvaluatorConfig{
		MinProfit:        decimal.NewFromFloat(a.cfg.Profit.MinProfit),
		GasUnits:         a.cfg.Profit.GasUnits,
		NativeToFiat:     decimal.NewFromFloat(a.cfg.Profit.NativeToFiat),
		FinancingEnabled: a.cfg.Financing.Enabled,
		MaxFlashLoan:     decimal.NewFromFloat(a.cfg.Financing.MaxFlashLoan),
	}, deps.Premium, a.logger)

	scanner := arbitrage.NewScanner(arbitrage.ScannerConfig{
		UnitAmount:  decimal.NewFromFloat(a.cfg.Scan.UnitAmount),
		ScaleFactor: decimal.NewFromFloat(a.cfg.Scan.ScaleFactor),
	}, deps.Registry, deps.Oracle, a.logger)

	svc := service.NewScanService(service.ScanConfig{
		LockTTL:      defaultCycleTimeout,
		ArchiveEvery: a.cfg.Scan.ArchiveEvery,
	}, deps.Chain, scanner, evaluator, deps.Status, a.logger)
	svc.SetNotifier(deps.Notify)

	switch {
	case deps.SignalBus != nil:
		svc.SetBus(deps.SignalBus)
	case hub != nil:
		svc.SetBus(hub)
	}
	if a.cfg.Scan.LockEnabled && deps.LockManager != nil {
		svc.SetLocks(deps.LockManager)
	}
	if deps.Archiver != nil {
		svc.SetArchiver(deps.Archiver)
	}
	return svc
}

func (a *App) newScheduler(deps *Dependencies, scan *service.ScanService) *Scheduler {
	return NewScheduler(scan, deps.Status, a.cfg.Scan.Interval, a.logger)
}

// newExecutor builds the dispatch queue on top of the live gateway when a
// wallet is configured, and the simulated gateway otherwise.
func (a *App) newExecutor(ctx context.Context, deps *Dependencies) *executor.Executor {
	gateway := a.buildGateway(ctx, deps)

	exec := executor.NewExecutor(gateway, a.cfg.Execution.QueueSize, a.logger)
	exec.SetStores(deps.DispatchStore, deps.AuditStore)
	exec.SetNotifier(deps.Notify)
	exec.SetRecorder(deps.Status)
	exec.SetDedupTTL(a.cfg.Execution.DedupTTL.Duration)
	if deps.SignalBus != nil {
		exec.SetBus(deps.SignalBus)
	}
	return exec
}

func (a *App) buildGateway(ctx context.Context, deps *Dependencies) executor.Gateway {
	if !a.cfg.Execution.Enabled {
		a.logger.InfoContext(ctx, "execution disabled, dispatches are simulated")
		return executor.NewSimulatedGateway()
	}

	routers := make(map[string]common.Address, len(a.cfg.Venues))
	for _, v := range deps.Registry.Venues() {
		routers[v.Name] = v.Router
	}
	live, err := executor.NewLiveGateway(executor.LiveConfig{
		ChainID:               a.cfg.Chain.ChainID,
		Pool:                  common.HexToAddress(a.cfg.Financing.PoolAddress),
		Receiver:              common.HexToAddress(a.cfg.Execution.ReceiverAddress),
		Routers:               routers,
		MaxGasPriceGwei:       decimal.NewFromFloat(a.cfg.Execution.MaxGasPriceGwei),
		AcceleratedMultiplier: decimal.NewFromFloat(a.cfg.Execution.AcceleratedGasMultiplier),
		GasLimit:              a.cfg.Execution.GasLimit,
	}, deps.Chain, crypto.KeyConfig{
		RawPrivateKey:    a.cfg.Wallet.PrivateKey,
		EncryptedKeyPath: a.cfg.Wallet.EncryptedKeyPath,
		KeyPassword:      a.cfg.Wallet.KeyPassword,
	}, deps.Status.Accelerated, a.logger)
	if err != nil {
		if errors.Is(err, domain.ErrConfiguration) {
			a.logger.WarnContext(ctx, "no wallet configured, falling back to simulated dispatch")
			return executor.NewSimulatedGateway()
		}
		a.logger.ErrorContext(ctx, "live gateway unavailable, falling back to simulated dispatch",
			slog.String("error", err.Error()),
		)
		return executor.NewSimulatedGateway()
	}
	if _, err := live.CheckBalance(ctx); err != nil {
		a.logger.WarnContext(ctx, "wallet balance check failed", slog.String("error", err.Error()))
	}
	return live
}

// newHub returns nil when the HTTP server is disabled.
func (a *App) newHub(deps *Dependencies) *ws.Hub {
	if !a.cfg.Server.Enabled {
		return nil
	}
	return ws.NewHub(ws.Config{
		Bus:            deps.SignalBus,
		Snapshot:       deps.Status.Snapshot,
		AllowedOrigins: a.cfg.Server.CORSOrigins,
	}, a.logger)
}

func (a *App) startHub(ctx context.Context, g *errgroup.Group, hub *ws.Hub) {
	if hub == nil {
		return
	}
	g.Go(func() error { return hub.Run(ctx) })
}

// startHTTPServer adds the API server to g and shuts it down gracefully when
// ctx is cancelled. A cadence change through the API wakes the scheduler so
// the new interval applies immediately.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, hub *ws.Hub, sched *Scheduler) {
	if !a.cfg.Server.Enabled {
		return
	}

	handlers := server.Handlers{
		Health:    handler.NewHealthHandler(deps.Chain, a.logger),
		Status:    handler.NewStatusHandler(deps.Status, deps.DispatchStore, a.logger),
		Endpoints: handler.NewEndpointHandler(deps.Chain, a.logger),
		Mode:      handler.NewModeHandler(deps.Status, sched.Wake, a.logger),
	}

	var limiter domain.RateLimiter = middleware.NewLocalLimiter()
	if deps.RateLimiter != nil {
		limiter = deps.RateLimiter
	}

	srv := server.NewServer(server.Config{
		Port:            a.cfg.Server.Port,
		CORSOrigins:     a.cfg.Server.CORSOrigins,
		APIKey:          a.cfg.Server.APIKey,
		RateLimitPerMin: a.cfg.Server.RateLimitPerMin,
	}, handlers, hub, limiter, a.logger)

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("app: %w", err)
		}
		return nil
	})
}
