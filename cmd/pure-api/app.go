package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/Sternrassler/pure-api-client/pkg/checkpoint"
	"github.com/Sternrassler/pure-api-client/pkg/config"
	"github.com/Sternrassler/pure-api-client/pkg/logging"
	"github.com/Sternrassler/pure-api-client/pkg/metrics"
	"github.com/Sternrassler/pure-api-client/pkg/pureapi"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// app holds the state shared by all subcommands of one invocation.
type app struct {
	stdout io.Writer
	stderr io.Writer

	configPath  string
	domain      string
	apiVersion  string
	logLevel    string
	pretty      bool
	metricsAddr string

	cfg    *config.Config
	logger zerolog.Logger
	server *http.Server
	redis  *redis.Client
}

func newApp(stdout, stderr io.Writer) *app {
	return &app{stdout: stdout, stderr: stderr, logger: zerolog.Nop()}
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "pure-api",
		Short: "Read a Pure instance through its web service API",
		Long: `Read collections and the change feed of a Pure instance.

Records are written to stdout as newline-delimited JSON, logs to stderr.
Configuration comes from --config (YAML), .env files and PURE_API_*
environment variables.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return a.setup()
		},
	}
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &usageError{err}
	})

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", os.Getenv("PURE_API_CONFIG"), "YAML config file")
	flags.StringVar(&a.domain, "domain", "", "Pure host, overrides PURE_API_DOMAIN")
	flags.StringVar(&a.apiVersion, "api-version", "", "schema version (default: latest known)")
	flags.StringVar(&a.logLevel, "log-level", "", "debug, info, warn, error or disabled")
	flags.BoolVar(&a.pretty, "pretty", false, "human-readable logs")
	flags.StringVar(&a.metricsAddr, "metrics-addr", "", "serve /metrics, /health and /ready on this address while running")

	root.AddCommand(
		a.collectionsCmd(),
		a.getCmd(),
		a.filterCmd(),
		a.changesCmd(),
	)
	return root
}

// setup loads configuration, applies global flags and configures logging.
func (a *app) setup() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return &usageError{err}
	}

	if a.domain != "" {
		cfg.Pure.Domain = a.domain
	}
	if a.apiVersion != "" {
		cfg.Pure.Version = a.apiVersion
	}
	if a.logLevel != "" {
		level, err := logging.ParseLevel(a.logLevel)
		if err != nil {
			return &usageError{err}
		}
		cfg.Log.Level = string(level)
	}
	if a.pretty {
		cfg.Log.Pretty = true
	}
	a.cfg = cfg

	logCfg := cfg.Logging()
	logCfg.Output = a.stderr
	logging.Setup(logCfg)
	a.logger = logging.NewLogger(logging.ComponentCLI)

	if a.metricsAddr != "" {
		return a.serveMetrics()
	}
	return nil
}

// newClient creates the Pure client. A non-empty checkpointName stores
// change feed cursors in Redis under that name.
func (a *app) newClient(ctx context.Context, checkpointName string) (*pureapi.Client, error) {
	cfg := a.cfg.PureAPI()

	if checkpointName != "" {
		store, err := a.checkpointStore(ctx)
		if err != nil {
			return nil, err
		}
		cfg.Checkpoint = store
		cfg.CheckpointKey = checkpoint.Key{Name: checkpointName}
	}

	c, err := pureapi.New(cfg)
	if err != nil {
		return nil, err
	}
	a.logger.Debug().
		Str("base_url", c.Executor().BaseURL()).
		Str("checkpoint", checkpointName).
		Msg("Client created")
	return c, nil
}

func (a *app) checkpointStore(ctx context.Context) (checkpoint.Store, error) {
	opts, err := a.cfg.RedisOptions()
	if err != nil {
		return nil, &usageError{fmt.Errorf("checkpoints need redis: %w", err)}
	}

	a.redis = redis.NewClient(opts)
	if err := a.redis.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis at %s: %w", opts.Addr, err)
	}
	a.logger.Debug().Str("addr", opts.Addr).Msg("Connected to Redis")

	return checkpoint.NewRedisStore(a.redis, a.cfg.Redis.CheckpointTTL), nil
}

func (a *app) serveMetrics() error {
	ln, err := net.Listen("tcp", a.metricsAddr)
	if err != nil {
		return &usageError{fmt.Errorf("metrics listener: %w", err)}
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/health", healthHandler)
	mux.HandleFunc("/ready", a.readyHandler)

	a.server = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := a.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error().Err(err).Msg("Metrics server failed")
		}
	}()

	a.logger.Info().Str("addr", ln.Addr().String()).Msg("Serving metrics")
	return nil
}

// close releases the metrics server and the Redis connection.
func (a *app) close() {
	if a.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.server.Shutdown(ctx); err != nil {
			a.logger.Warn().Err(err).Msg("Metrics server shutdown")
		}
		cancel()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("Redis close")
		}
	}
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

// readyHandler reports whether the checkpoint store, if any, is reachable.
func (a *app) readyHandler(w http.ResponseWriter, r *http.Request) {
	if a.redis != nil {
		if err := a.redis.Ping(r.Context()).Err(); err != nil {
			http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}
