package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"tally/cmd/internal/passphrase"
	"tally/config"
	"tally/core"
	"tally/core/events"
	"tally/core/genesis"
	"tally/crypto"
	"tally/observability"
	"tally/observability/logging"
	telemetry "tally/observability/otel"
	"tally/services/keeper"
	"tally/storage"
)

const (
	keeperPassEnv = "TALLY_KEEPER_PASS"
	environEnv    = "TALLY_ENV"
	genesisEnv    = "TALLY_GENESIS"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	genesisFlag := flag.String("genesis", "", "Path to a genesis JSON file (overrides TALLY_GENESIS, GenesisFile and the inline genesis section)")
	flag.Parse()

	passSource := passphrase.NewSource(keeperPassEnv)
	cfg, err := config.Load(*configFile, config.WithKeystorePassphraseSource(passSource.Get))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	env := strings.TrimSpace(os.Getenv(environEnv))
	if env == "" {
		env = cfg.Environment
	}
	logOpts := []logging.Option{logging.WithLevel(logging.ParseLevel(cfg.LogLevel))}
	if cfg.LogFile != "" {
		logOpts = append(logOpts, logging.WithFile(cfg.LogFile, 100, 5))
	}
	logger := logging.Setup("tallyd", env, logOpts...)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, env, *genesisFlag, passSource, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("tallyd exited", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("tallyd stopped")
}

func run(ctx context.Context, cfg *config.Config, env, genesisFlag string, passSource *passphrase.Source, logger *slog.Logger) error {
	headers := telemetry.ParseHeaders(cfg.Telemetry.Headers)
	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName: "tallyd",
		Environment: env,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     headers,
		Traces:      cfg.Telemetry.Traces,
		Metrics:     cfg.Telemetry.Metrics,
		SampleRatio: cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	if cfg.Telemetry.Traces || cfg.Telemetry.Metrics {
		logger.Info("telemetry enabled",
			slog.String("endpoint", cfg.Telemetry.Endpoint),
			logging.MaskHeaders("headers", headers))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", slog.Any("error", err))
		}
	}()

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	spec, err := resolveGenesis(genesisFlag, cfg)
	if err != nil {
		return err
	}
	applied, err := genesis.Build(spec, db)
	if err != nil {
		return fmt.Errorf("apply genesis: %w", err)
	}
	logger.Info("genesis ready",
		slog.Bool("applied", applied),
		slog.String("mint", spec.MintAddress().String()),
		slog.String("storage", cfg.Storage))

	sp, err := core.NewStateProcessor(db,
		core.WithLogger(logger),
		core.WithEmitter(events.Fanout{observability.Events(), newLogEmitter(logger)}),
		core.WithUpgradeAuthority(spec.UpgradeAuthorityAddress()),
	)
	if err != nil {
		return err
	}

	group, ctx := errgroup.WithContext(ctx)

	server := &http.Server{
		Addr:              cfg.MetricsAddress,
		Handler:           newMetricsHandler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	group.Go(func() error {
		logger.Info("metrics listening", slog.String("address", cfg.MetricsAddress))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	k, err := newKeeper(cfg, sp, passSource, logger)
	if err != nil {
		return err
	}
	if k != nil {
		group.Go(func() error {
			logger.Info("keeper started", slog.String("address", k.Address().String()))
			return k.Run(ctx)
		})
	}

	return group.Wait()
}

func openDatabase(cfg *config.Config) (storage.Database, error) {
	switch cfg.Storage {
	case config.StorageMemory:
		return storage.NewMemDB(), nil
	default:
		db, err := storage.NewLevelDB(cfg.DataDir)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		return db, nil
	}
}

// resolveGenesis picks the genesis source: the flag, then TALLY_GENESIS,
// then GenesisFile, then the inline section.
func resolveGenesis(flagPath string, cfg *config.Config) (*genesis.Spec, error) {
	path := strings.TrimSpace(flagPath)
	if path == "" {
		path = strings.TrimSpace(os.Getenv(genesisEnv))
	}
	if path == "" {
		path = strings.TrimSpace(cfg.GenesisFile)
	}
	if path != "" {
		return genesis.LoadSpec(path)
	}
	if cfg.Genesis == nil {
		return nil, fmt.Errorf("no genesis configured: set GenesisFile, the [genesis] section or %s", genesisEnv)
	}
	spec := cfg.Genesis.Spec()
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("invalid genesis section: %w", err)
	}
	return spec, nil
}

func newKeeper(cfg *config.Config, sp *core.StateProcessor, passSource *passphrase.Source, logger *slog.Logger) (*keeper.Keeper, error) {
	kcfg := keeper.DefaultConfig()
	if cfg.KeeperConfig != "" {
		loaded, err := keeper.LoadConfig(cfg.KeeperConfig)
		if err != nil {
			return nil, err
		}
		kcfg = loaded
	}
	if !kcfg.Enabled {
		logger.Info("keeper disabled")
		return nil, nil
	}

	var key *crypto.PrivateKey
	var err error
	if cfg.KeeperKeyEnv != "" {
		key, err = crypto.LoadSigningKey("", "", cfg.KeeperKeyEnv)
	} else {
		pass, passErr := passSource.Get()
		if passErr != nil {
			return nil, passErr
		}
		key, err = crypto.LoadSigningKey(cfg.KeeperKeystorePath, pass, "")
	}
	if err != nil {
		return nil, fmt.Errorf("load keeper key: %w", err)
	}
	logger.Info("keeper key loaded",
		slog.String("address", key.Address().String()),
		keeperKeySource(cfg))
	return keeper.New(sp, key, kcfg, keeper.WithLogger(logger))
}

// keeperKeySource describes where the keeper key came from. The hex key held
// in KeeperKeyEnv is masked; the keystore path and variable name are not
// secret.
func keeperKeySource(cfg *config.Config) slog.Attr {
	if cfg.KeeperKeyEnv != "" {
		return slog.Group("key_source",
			slog.String("env", cfg.KeeperKeyEnv),
			logging.MaskField("keeper_key", os.Getenv(cfg.KeeperKeyEnv)))
	}
	return slog.Group("key_source", slog.String("keystore", cfg.KeeperKeystorePath))
}

// newMetricsHandler serves /metrics and /healthz behind otelhttp so scrapes
// show up as spans when tracing is on.
func newMetricsHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return otelhttp.NewHandler(mux, "tallyd")
}
