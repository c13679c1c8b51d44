package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"trustflow/cmd/internal/passphrase"
	"trustflow/config"
	"trustflow/core"
	"trustflow/crypto"
	"trustflow/indexer"
	nativecommon "trustflow/native/common"
	"trustflow/observability/logging"
	telemetry "trustflow/observability/otel"
	"trustflow/rpc"
	"trustflow/rpc/middleware"
	"trustflow/storage"
)

const (
	serviceName     = "trustflowd"
	envName         = "TRUSTFLOW_ENV"
	genesisPathEnv  = "TRUSTFLOW_GENESIS"
	ownerPassEnv    = "TRUSTFLOW_OWNER_PASS"
	shutdownTimeout = 15 * time.Second
)

type envLookupFunc func(string) (string, bool)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	genesisFlag := flag.String("genesis", "", "Path to the YAML genesis file (overrides TRUSTFLOW_GENESIS and config GenesisFile)")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	env := strings.TrimSpace(os.Getenv(envName))
	if env == "" {
		env = cfg.Logging.Env
	}
	logger := logging.Setup(serviceName, env, logging.Options{
		Level:     logging.ParseLevel(cfg.Logging.Level),
		File:      cfg.Logging.File,
		MaxSizeMB: cfg.Logging.MaxSizeMB,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	genesisPath := resolveGenesisPath(*genesisFlag, cfg.GenesisFile, os.LookupEnv)
	d, err := newDaemon(ctx, cfg, daemonOptions{
		Env:         env,
		GenesisPath: genesisPath,
		Lookup:      os.LookupEnv,
		Passphrase:  passphrase.NewSource(ownerPassEnv, "owner keystore").Get,
		Logger:      logger,
	})
	if err != nil {
		logger.Error("failed to start", slog.Any("error", err))
		os.Exit(1)
	}
	if err := d.Run(ctx); err != nil {
		logger.Error("daemon stopped with error", slog.Any("error", err))
		d.Close()
		os.Exit(1)
	}
	d.Close()
	logger.Info("daemon stopped")
}

// resolveGenesisPath prefers the flag, then the environment, then config.
func resolveGenesisPath(cliPath, cfgPath string, lookup envLookupFunc) string {
	if trimmed := strings.TrimSpace(cliPath); trimmed != "" {
		return trimmed
	}
	if lookup != nil {
		if value, ok := lookup(genesisPathEnv); ok {
			if trimmed := strings.TrimSpace(value); trimmed != "" {
				return trimmed
			}
		}
	}
	return strings.TrimSpace(cfgPath)
}

type daemonOptions struct {
	Env         string
	GenesisPath string
	Lookup      envLookupFunc
	Passphrase  func() (string, error)
	Logger      *slog.Logger
}

type daemon struct {
	cfg       *config.Config
	logger    *slog.Logger
	db        *storage.LevelDB
	node      *core.Node
	server    *rpc.Server
	indexer   *indexer.Indexer
	listener  net.Listener
	telemetry func(context.Context) error
}

// newDaemon opens storage, initializes the ledger on first start and binds
// the RPC listener. Nothing is served until Run.
func newDaemon(ctx context.Context, cfg *config.Config, opts daemonOptions) (*daemon, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	lookup := opts.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	d := &daemon{cfg: cfg, logger: logger}
	ok := false
	defer func() {
		if !ok {
			d.Close()
		}
	}()

	if cfg.Telemetry.Traces || cfg.Telemetry.Metrics {
		hostname, _ := os.Hostname()
		shutdown, err := telemetry.Init(ctx, telemetry.Config{
			ServiceName: serviceName,
			Environment: opts.Env,
			InstanceID:  hostname,
			ChainID:     cfg.ChainID,
			Modules:     []string{"bank", "lending"},
			Endpoint:    cfg.Telemetry.Endpoint,
			Insecure:    cfg.Telemetry.Insecure,
			Headers:     telemetry.ParseHeaders(cfg.Telemetry.Headers),
			Metrics:     cfg.Telemetry.Metrics,
			Traces:      cfg.Telemetry.Traces,
			SampleRatio: cfg.Telemetry.SampleRatio,
		})
		if err != nil {
			return nil, fmt.Errorf("init telemetry: %w", err)
		}
		d.telemetry = shutdown
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("prepare data dir: %w", err)
	}
	db, err := storage.NewLevelDB(cfg.DatabasePath())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	d.db = db

	quota, err := cfg.QuotaLimits()
	if err != nil {
		return nil, err
	}
	node, err := core.NewNode(db, core.Options{
		ChainID: cfg.ChainID,
		Pauses:  nativecommon.NewPauses(cfg.PauseFlags()),
		Quota:   quota,
		Logger:  logger,
	})
	if err != nil {
		return nil, err
	}
	d.node = node
	if err := d.ensureGenesis(opts.GenesisPath, opts.Passphrase); err != nil {
		return nil, err
	}

	secret := ""
	if cfg.RPC.JWT.Enable {
		secret, _ = lookup(cfg.RPC.JWT.HSSecretEnv)
		if strings.TrimSpace(secret) == "" {
			return nil, fmt.Errorf("rpc.jwt enabled but %s is empty", cfg.RPC.JWT.HSSecretEnv)
		}
	}
	d.server = rpc.NewServer(node, rpc.Config{
		MaxBodyBytes: cfg.RPC.MaxBodyBytes,
		RateLimit: &middleware.RateLimit{
			RequestsPerMinute: float64(cfg.RPC.RateLimitPerMinute),
			Burst:             cfg.RPC.Burst,
		},
		Auth: middleware.NewAuthenticator(middleware.AuthConfig{
			Enabled:    cfg.RPC.JWT.Enable,
			HMACSecret: secret,
			Issuer:     cfg.RPC.JWT.Issuer,
			Audience:   cfg.RPC.JWT.Audience,
			ClockSkew:  time.Duration(cfg.RPC.JWT.MaxSkewSeconds) * time.Second,
		}, logger),
		Observability: middleware.NewObservability(middleware.ObservabilityConfig{
			ServiceName: serviceName,
			LogRequests: opts.Env == "dev",
		}, logger),
		Logger: logger,
	})

	if cfg.Indexer.Enable {
		gdb, err := indexer.Open(cfg.Indexer.Driver, cfg.IndexerDSN())
		if err != nil {
			return nil, err
		}
		ix, err := indexer.New(gdb, logger)
		if err != nil {
			return nil, err
		}
		d.indexer = ix
	}

	listener, err := net.Listen("tcp", cfg.ListenAddress)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", cfg.ListenAddress, err)
	}
	d.listener = listener

	logger.Info("daemon initialised",
		slog.String("listen", listener.Addr().String()),
		slog.String("data_dir", cfg.DataDir),
		slog.Uint64("chain_id", cfg.ChainID),
		slog.Bool("indexer", cfg.Indexer.Enable),
		logging.MaskField("jwt_secret", secret),
	)
	ok = true
	return d, nil
}

// ensureGenesis initializes an empty database from the genesis file. An
// owner missing from the file is taken from the owner keystore.
func (d *daemon) ensureGenesis(path string, pass func() (string, error)) error {
	initialized, err := d.node.Initialized()
	if err != nil {
		return err
	}
	if initialized {
		d.logger.Info("ledger already initialised")
		return nil
	}
	if path == "" {
		return errors.New("ledger not initialised and no genesis file provided; supply one via --genesis, TRUSTFLOW_GENESIS or config GenesisFile")
	}
	doc, err := config.LoadGenesis(path)
	if err != nil {
		return err
	}
	if strings.TrimSpace(doc.Owner) == "" && d.cfg.OwnerKeystorePath != "" {
		owner, err := keystoreOwner(d.cfg.OwnerKeystorePath, pass)
		if err != nil {
			return err
		}
		doc.Owner = owner
	}
	genesis, err := doc.Resolve()
	if err != nil {
		return err
	}
	if err := d.node.InitGenesis(genesis); err != nil {
		return fmt.Errorf("init genesis: %w", err)
	}
	d.logger.Info("ledger initialised from genesis",
		slog.String("owner", crypto.FormatAddress(genesis.Owner)),
		slog.Int("allocations", len(genesis.Allocations)))
	return nil
}

func keystoreOwner(path string, pass func() (string, error)) (string, error) {
	if pass == nil {
		return "", fmt.Errorf("owner keystore %s requires a passphrase", path)
	}
	secret, err := pass()
	if err != nil {
		return "", err
	}
	key, err := crypto.LoadFromKeystore(path, secret)
	if err != nil {
		return "", fmt.Errorf("load owner keystore: %w", err)
	}
	return key.PubKey().Address().String(), nil
}

// Addr is the bound RPC address.
func (d *daemon) Addr() net.Addr {
	if d.listener == nil {
		return nil
	}
	return d.listener.Addr()
}

// Run serves RPC and, when enabled, the indexer until ctx is cancelled, then
// drains connections.
func (d *daemon) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var indexerDone chan error
	if d.indexer != nil {
		indexerDone = make(chan error, 1)
		go func() { indexerDone <- d.indexer.Run(runCtx, d.node) }()
	}

	serveErr := make(chan error, 1)
	go func() { serveErr <- d.server.Serve(d.listener) }()

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			runErr = err
		}
	case err := <-indexerDone:
		if err != nil && !errors.Is(err, context.Canceled) {
			runErr = fmt.Errorf("indexer: %w", err)
		}
		indexerDone = nil
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()
	if err := d.server.Shutdown(shutdownCtx); err != nil {
		d.logger.Warn("rpc shutdown", slog.Any("error", err))
	}
	cancel()
	if indexerDone != nil {
		<-indexerDone
	}
	if d.telemetry != nil {
		if err := d.telemetry(shutdownCtx); err != nil {
			d.logger.Warn("telemetry shutdown", slog.Any("error", err))
		}
		d.telemetry = nil
	}
	return runErr
}

// Close releases storage. It is safe to call more than once.
func (d *daemon) Close() {
	if d.listener != nil {
		_ = d.listener.Close()
	}
	if d.indexer != nil {
		if sqlDB, err := d.indexer.DB().DB(); err == nil {
			_ = sqlDB.Close()
		}
		d.indexer = nil
	}
	if d.db != nil {
		d.db.Close()
		d.db = nil
	}
	if d.telemetry != nil {
		_ = d.telemetry(context.Background())
		d.telemetry = nil
	}
}
