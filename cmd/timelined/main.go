package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	_ "github.com/joho/godotenv/autoload"

	"github.com/timelinesocial/timeline/server"
	"github.com/timelinesocial/timeline/sigauth"
	"github.com/timelinesocial/timeline/social"
	"github.com/timelinesocial/timeline/store"
	"github.com/timelinesocial/timeline/util/cliutil"

	"github.com/carlmjohnson/versioninfo"
	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/urfave/cli/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
)

func main() {
	if err := run(os.Args); err != nil {
		slog.Error("exiting", "err", err)
		os.Exit(-1)
	}
}

func run(args []string) error {

	app := cli.App{
		Name:    "timelined",
		Usage:   "content-addressed micro-blogging daemon",
		Version: versioninfo.Short(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "log verbosity level (eg: warn, info, debug)",
				EnvVars: []string{"TIMELINE_LOG_LEVEL", "GO_LOG_LEVEL", "LOG_LEVEL"},
			},
			&cli.StringFlag{
				Name:    "otel-exporter-otlp-endpoint",
				Usage:   "OTLP HTTP endpoint to export traces to",
				EnvVars: []string{"OTEL_EXPORTER_OTLP_ENDPOINT"},
			},
		},
		Commands: []*cli.Command{
			&cli.Command{
				Name:   "serve",
				Usage:  "run the timeline API daemon",
				Action: runServe,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "bind",
						Usage:   "Specify the local IP/port to bind to",
						Value:   ":8000",
						EnvVars: []string{"TIMELINE_BIND"},
					},
					&cli.StringFlag{
						Name:    "metrics-listen",
						Usage:   "IP or address, and port, to listen on for metrics APIs",
						Value:   ":8001",
						EnvVars: []string{"TIMELINE_METRICS_LISTEN"},
					},
					&cli.StringFlag{
						Name:    "store-url",
						Usage:   "record store: mem://, pebble:///path, redis://host:6379/0, sqlite://file, postgres://..., or https:// gateway",
						Value:   "mem://",
						EnvVars: []string{"TIMELINE_STORE_URL"},
					},
					&cli.StringFlag{
						Name:    "node-id",
						Usage:   "name this node announces itself as when providing records (default: random)",
						EnvVars: []string{"TIMELINE_NODE_ID"},
					},
					&cli.IntFlag{
						Name:    "max-db-connections",
						Usage:   "max open connections for SQL stores",
						Value:   40,
						EnvVars: []string{"TIMELINE_MAX_DB_CONNECTIONS"},
					},
					&cli.BoolFlag{
						Name:    "db-tracing",
						Usage:   "emit OpenTelemetry spans for SQL statements",
						EnvVars: []string{"TIMELINE_DB_TRACING"},
					},
					&cli.StringFlag{
						Name:    "sig-alg",
						Usage:   "JWS algorithm user keys are registered for (ES256, RS256, EdDSA)",
						Value:   jwa.ES256.String(),
						EnvVars: []string{"TIMELINE_SIG_ALG"},
					},
					&cli.IntFlag{
						Name:    "timeline-limit",
						Usage:   "max entries returned by a timeline read",
						Value:   127,
						EnvVars: []string{"TIMELINE_TIMELINE_LIMIT"},
					},
					&cli.IntFlag{
						Name:    "fanout",
						Usage:   "max concurrent store reads per request",
						Value:   16,
						EnvVars: []string{"TIMELINE_FANOUT"},
					},
					&cli.IntFlag{
						Name:    "max-swap-attempts",
						Usage:   "compare-and-swap retries before a contended write fails",
						Value:   5,
						EnvVars: []string{"TIMELINE_MAX_SWAP_ATTEMPTS"},
					},
					&cli.IntFlag{
						Name:    "cache-size",
						Usage:   "number of records kept in the read cache (0 disables it)",
						EnvVars: []string{"TIMELINE_CACHE_SIZE"},
					},
					&cli.DurationFlag{
						Name:    "cache-ttl",
						Usage:   "how long a cached record may be served",
						Value:   30 * time.Second,
						EnvVars: []string{"TIMELINE_CACHE_TTL"},
					},
					&cli.BoolFlag{
						Name:    "compensate",
						Usage:   "undo the applied half of a partially failed multi-record write",
						EnvVars: []string{"TIMELINE_COMPENSATE"},
					},
					&cli.Float64Flag{
						Name:    "rate-limit",
						Usage:   "per-client requests per second (0 disables rate limiting)",
						EnvVars: []string{"TIMELINE_RATE_LIMIT"},
					},
					&cli.DurationFlag{
						Name:    "request-timeout",
						Usage:   "deadline for store work done on behalf of one request",
						Value:   30 * time.Second,
						EnvVars: []string{"TIMELINE_REQUEST_TIMEOUT"},
					},
				},
			},
		},
	}

	return app.Run(args)
}

func configLogger(cctx *cli.Context) (*slog.Logger, error) {
	return cliutil.SetupSlog(cliutil.LogOptions{
		LogLevel: cctx.String("log-level"),
	})
}

func setupOTEL(cctx *cli.Context) (func(), error) {
	ep := cctx.String("otel-exporter-otlp-endpoint")
	if ep == "" {
		return func() {}, nil
	}
	slog.Info("setting up trace exporter", "endpoint", ep)

	// otlptracehttp reads OTEL_EXPORTER_OTLP_* from the environment
	exp, err := otlptracehttp.New(cctx.Context)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}
	tp := tracesdk.NewTracerProvider(
		tracesdk.WithBatcher(exp),
		tracesdk.WithResource(resource.NewSchemaless(
			attribute.String("service.name", "timelined"),
		)),
	)
	otel.SetTracerProvider(tp)

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown trace provider", "error", err)
		}
	}, nil
}

func runServe(cctx *cli.Context) error {
	ctx := cctx.Context
	logger, err := configLogger(cctx)
	if err != nil {
		return err
	}

	shutdownOTEL, err := setupOTEL(cctx)
	if err != nil {
		return err
	}
	defer shutdownOTEL()

	alg, err := sigauth.ParseAlgorithm(cctx.String("sig-alg"))
	if err != nil {
		return err
	}

	nodeID := cctx.String("node-id")
	if nodeID == "" {
		nodeID = uuid.NewString()
	}
	backend, err := store.Open(ctx, cctx.String("store-url"), store.OpenOptions{
		Logger:         logger.With("system", "store"),
		NodeID:         nodeID,
		MaxConnections: cctx.Int("max-db-connections"),
		DBTracing:      cctx.Bool("db-tracing"),
	})
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	if closer, ok := backend.(io.Closer); ok {
		defer closer.Close()
	}

	st := store.NewInstrumentedStore(backend)
	if size := cctx.Int("cache-size"); size > 0 {
		st = store.NewCachedStore(st, size, cctx.Duration("cache-ttl"))
	}

	svc := social.NewService(st, social.Config{
		SigAlg:          alg,
		TimelineLimit:   cctx.Int("timeline-limit"),
		Concurrency:     cctx.Int("fanout"),
		MaxSwapAttempts: cctx.Int("max-swap-attempts"),
		Compensate:      cctx.Bool("compensate"),
	}, logger)

	srv, err := server.NewServer(svc, server.Config{
		Logger:         logger,
		Bind:           cctx.String("bind"),
		RateLimit:      cctx.Float64("rate-limit"),
		RequestTimeout: cctx.Duration("request-timeout"),
	})
	if err != nil {
		return err
	}

	// prometheus HTTP endpoint: /metrics
	go func() {
		if err := srv.RunMetrics(cctx.String("metrics-listen")); err != nil {
			slog.Error("failed to start metrics endpoint", "error", err)
			panic(fmt.Errorf("failed to start metrics endpoint: %w", err))
		}
	}()

	logger.Info("starting timelined", "store", cctx.String("store-url"), "node", nodeID, "sig_alg", alg)
	return srv.RunAPI()
}
