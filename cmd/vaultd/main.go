package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"stakevault/config"
	"stakevault/core/events"
	coretypes "stakevault/core/types"
	"stakevault/native/registry"
	"stakevault/native/rewardtoken"
	"stakevault/native/vault"
	"stakevault/observability/logging"
	"stakevault/observability/metrics"
	"stakevault/rpc"
	"stakevault/state"
	"stakevault/storage"
)

// obsEmitter forwards ledger events to the structured log and keeps the
// Prometheus counters in sync.
type obsEmitter struct {
	log     *slog.Logger
	metrics *metrics.VaultMetrics
}

type attributedEvent interface {
	events.Event
	Event() *coretypes.Event
}

func (e *obsEmitter) Emit(evt events.Event) {
	if evt == nil {
		return
	}
	args := []any{"event", evt.EventType()}
	if payload, ok := evt.(attributedEvent); ok {
		if rendered := payload.Event(); rendered != nil {
			for k, v := range rendered.Attributes {
				args = append(args, k, v)
			}
		}
	}
	e.log.Info("ledger event", args...)
	if claimed, ok := evt.(events.VaultRewardClaimed); ok {
		e.metrics.AddRewardPaid(claimed.Amount)
	}
}

func main() {
	configPath := flag.String("config", "vaultd.toml", "path to the daemon configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "path", *configPath, "error", err)
		os.Exit(1)
	}

	var fileCfg *logging.FileConfig
	if cfg.LogFile != "" {
		fileCfg = &logging.FileConfig{
			Path:       cfg.LogFile,
			MaxSizeMB:  cfg.LogMaxSizeMB,
			MaxBackups: cfg.LogMaxBackups,
			MaxAgeDays: cfg.LogMaxAgeDays,
		}
	}
	logger := logging.Setup(cfg.ServiceName, cfg.Environment, fileCfg)

	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "ledger"))
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	manager := state.NewManager(db)
	emitter := &obsEmitter{log: logger, metrics: metrics.Vault()}

	tokenRegistry := registry.NewRegistry()
	tokenRegistry.SetState(manager)
	tokenRegistry.SetEmitter(emitter)

	rewards := rewardtoken.NewLedger()
	rewards.SetState(manager)
	rewards.SetEmitter(emitter)

	admin, err := cfg.Admin()
	if err != nil {
		logger.Error("invalid admin address", "error", err)
		os.Exit(1)
	}
	engine := vault.NewEngine(vault.ModuleAddress(), admin)
	engine.SetState(manager)
	engine.SetRegistry(tokenRegistry)
	engine.SetIssuer(rewards)
	engine.SetClock(vault.NewTickingClock(cfg.Genesis(), cfg.BlockInterval()))
	engine.SetEmitter(emitter)

	if err := seedParams(manager, cfg); err != nil {
		logger.Error("failed to seed parameters", "error", err)
		os.Exit(1)
	}
	if params, err := engine.Params(); err == nil {
		metrics.Vault().SetWaitingPeriod(params.WithdrawalWaitingPeriodSeconds)
	}
	if total, err := engine.StakedTotal(); err == nil {
		metrics.Vault().SetStakedTotal(total)
	}

	adminAuth := rpc.NewAdminAuthenticator(rpc.AdminAuthConfig{
		HMACSecret: os.Getenv("VAULT_ADMIN_JWT_SECRET"),
		Issuer:     os.Getenv("VAULT_ADMIN_JWT_ISSUER"),
		Audience:   os.Getenv("VAULT_ADMIN_JWT_AUDIENCE"),
	})
	server := rpc.NewServer(engine, tokenRegistry, rewards, adminAuth)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 2)
	go func() {
		logger.Info("starting JSON-RPC server", "addr", cfg.RPCAddress)
		errCh <- server.Start(cfg.RPCAddress)
	}()

	ops := chi.NewRouter()
	ops.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	ops.Handle("/metrics", promhttp.Handler())
	opsServer := &http.Server{Addr: cfg.OpsAddress, Handler: ops}
	go func() {
		logger.Info("starting ops server", "addr", cfg.OpsAddress)
		if err := opsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		logger.Error("server failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = opsServer.Shutdown(shutdownCtx)
}

// seedParams writes the configured vault parameters on first boot only;
// administrative updates made at runtime survive restarts.
func seedParams(manager *state.Manager, cfg *config.Config) error {
	existing, err := manager.GetParams()
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}
	rate, err := cfg.RewardRate()
	if err != nil {
		return err
	}
	return manager.PutParams(vault.Params{
		RewardRatePerTokenPerHeight:    rate,
		WithdrawalWaitingPeriodSeconds: cfg.WithdrawalWaitingPeriodSeconds,
	})
}
