package app

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/polyarb/internal/arbitrage"
	"github.com/alanyoungcy/polyarb/internal/config"
	"github.com/alanyoungcy/polyarb/internal/financing"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func offlineConfig() *config.Config {
	cfg := config.Defaults()
	cfg.Redis.Enabled = false
	cfg.Supabase.Enabled = false
	cfg.S3.Enabled = false
	return &cfg
}

func TestBuildRegistryFromConfig(t *testing.T) {
	cfg := offlineConfig()
	reg, err := buildRegistry(cfg)
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}
	if len(reg.Tokens()) != len(cfg.Tokens) || len(reg.Venues()) != len(cfg.Venues) {
		t.Fatalf("expected %d tokens and %d venues, got %d and %d",
			len(cfg.Tokens), len(cfg.Venues), len(reg.Tokens()), len(reg.Venues()))
	}
	usdc, ok := reg.Token("USDC")
	if !ok {
		t.Fatal("USDC not registered")
	}
	if usdc.Address != common.HexToAddress("0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174") || usdc.Decimals != 6 {
		t.Fatalf("unexpected USDC asset %+v", usdc)
	}
}

func TestBuildRegistryRejectsDuplicates(t *testing.T) {
	cfg := offlineConfig()
	cfg.Venues = append(cfg.Venues, cfg.Venues[0])
	if _, err := buildRegistry(cfg); err == nil {
		t.Fatal("expected duplicate venue error")
	}
}

func TestWireWithoutInfrastructure(t *testing.T) {
	cfg := offlineConfig()
	deps, cleanup, err := Wire(context.Background(), cfg, quietLogger())
	if err != nil {
		t.Fatalf("wire: %v", err)
	}
	defer cleanup()

	if deps.QuoteCache != nil || deps.SignalBus != nil || deps.LockManager != nil || deps.RateLimiter != nil {
		t.Fatal("redis-backed dependencies should be nil when redis is disabled")
	}
	if deps.DispatchStore != nil || deps.AuditStore != nil || deps.Archiver != nil {
		t.Fatal("storage dependencies should be nil when disabled")
	}
	if _, ok := deps.Premium.(*financing.Pool); !ok {
		t.Fatalf("expected the lending pool as premium source, got %T", deps.Premium)
	}

	snap := deps.Status.Snapshot()
	if snap.Mode != "full" || snap.VenueCount != 2 || snap.TokenCount != 3 {
		t.Fatalf("unexpected status snapshot %+v", snap)
	}
	if snap.Connection.Connected {
		t.Fatal("chain should not be connected before Connect")
	}
}

func TestWireStaticPremiumWhenFinancingDisabled(t *testing.T) {
	cfg := offlineConfig()
	cfg.Financing.Enabled = false
	deps, cleanup, err := Wire(context.Background(), cfg, quietLogger())
	if err != nil {
		t.Fatalf("wire: %v", err)
	}
	defer cleanup()

	static, ok := deps.Premium.(arbitrage.StaticPremium)
	if !ok {
		t.Fatalf("expected static premium, got %T", deps.Premium)
	}
	if static.Rate.String() != "0.0005" {
		t.Fatalf("expected default rate 0.0005, got %s", static.Rate)
	}
}

func TestWireRejectsEmptyEndpointList(t *testing.T) {
	cfg := offlineConfig()
	cfg.Chain.RPCURLs = nil
	if _, _, err := Wire(context.Background(), cfg, quietLogger()); err == nil {
		t.Fatal("expected error without endpoints")
	}
}

func TestGatewayFallsBackToSimulated(t *testing.T) {
	cfg := offlineConfig()
	deps, cleanup, err := Wire(context.Background(), cfg, quietLogger())
	if err != nil {
		t.Fatalf("wire: %v", err)
	}
	defer cleanup()

	a := New(cfg, quietLogger())
	if gw := a.buildGateway(context.Background(), deps); !gw.Simulated() {
		t.Fatal("disabled execution must simulate")
	}

	cfg.Execution.Enabled = true
	cfg.Execution.ReceiverAddress = "0x000000000000000000000000000000000000dEaD"
	if gw := a.buildGateway(context.Background(), deps); !gw.Simulated() {
		t.Fatal("execution without a wallet key must fall back to simulation")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	a := New(offlineConfig(), quietLogger())
	calls := 0
	a.closers = append(a.closers, func() { calls++ })
	a.Close()
	a.Close()
	if calls != 1 {
		t.Fatalf("expected cleanup once, got %d", calls)
	}
}
