package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/davidBerries/twitter-timeline/pkg/collector"
	"github.com/davidBerries/twitter-timeline/pkg/config"
	"github.com/davidBerries/twitter-timeline/pkg/export"
	"github.com/davidBerries/twitter-timeline/pkg/logging"
	"github.com/davidBerries/twitter-timeline/pkg/pool"
	"github.com/davidBerries/twitter-timeline/pkg/ratelimit"
	"github.com/davidBerries/twitter-timeline/pkg/transport"
)

var version = "0.1.0"

func main() {
	app := &cli.App{
		Name:    "timeline-collector",
		Usage:   "collect user timelines into JSON, NDJSON, or CSV files",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "env-file", Value: ".env", Usage: "env file to load before reading the environment"},
			&cli.StringFlag{Name: "inputs", Aliases: []string{"i"}, Usage: "file with one target per line (# comments allowed)"},
			&cli.IntFlag{Name: "max-posts", Value: config.DefaultMaxPosts, Usage: "max posts per target (0 falls back to the default of 100)"},
			&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Value: config.DefaultOutputDir, Usage: "output directory"},
			&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Value: config.DefaultFormat, Usage: "export format: json, ndjson, csv"},
			&cli.IntFlag{Name: "concurrency", Aliases: []string{"c"}, Value: config.DefaultConcurrency, Usage: "targets collected in parallel"},
			&cli.DurationFlag{Name: "request-delay", Value: config.DefaultRequestDelay, Usage: "courtesy wait between page fetches"},
			&cli.StringFlag{Name: "redis", Usage: "redis address for shared rate limit state"},
			&cli.StringFlag{Name: "metrics-addr", Usage: "listen address for Prometheus metrics (e.g. :9090)"},
			&cli.StringFlag{Name: "log-level", Value: config.DefaultLogLevel, Usage: "debug, info, warn, error"},
			&cli.BoolFlag{Name: "pretty", Usage: "human-readable log output"},
		},
		Commands: []*cli.Command{
			newCollectCommand(),
			newResolveCommand(),
			newCronCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// runner wires settings, transport, and rate limiting for the commands.
type runner struct {
	settings *config.Settings
	client   *transport.Client
	logger   zerolog.Logger
}

func newRunner(c *cli.Context) (*runner, error) {
	settings, err := config.Load(c.String("env-file"))
	if err != nil {
		return nil, err
	}

	// CLI flags override environment values when set.
	if c.IsSet("max-posts") || settings.MaxPosts == 0 {
		settings.MaxPosts = c.Int("max-posts")
	}
	if c.IsSet("output") {
		settings.OutputDir = c.String("output")
	}
	if c.IsSet("format") {
		settings.Format = c.String("format")
	}
	if c.IsSet("concurrency") {
		settings.Concurrency = c.Int("concurrency")
	}
	if c.IsSet("request-delay") {
		settings.RequestDelay = c.Duration("request-delay")
	}
	if c.IsSet("redis") {
		settings.RedisAddr = c.String("redis")
	}
	if c.IsSet("metrics-addr") {
		settings.MetricsAddr = c.String("metrics-addr")
	}
	if c.IsSet("log-level") {
		settings.LogLevel = c.String("log-level")
	}
	if c.IsSet("pretty") {
		settings.Pretty = c.Bool("pretty")
	}

	if err := settings.Validate(); err != nil {
		return nil, err
	}
	if _, err := export.ParseFormat(settings.Format); err != nil {
		return nil, err
	}

	logging.Setup(logging.Config{
		Level:  logging.LogLevel(settings.LogLevel),
		Pretty: settings.Pretty,
	})
	logger := logging.NewLogger("main")

	transportCfg := transport.DefaultConfig(settings.BearerToken)
	transportCfg.Cookie = settings.Cookie

	if settings.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: settings.RedisAddr})
		if err := redisClient.Ping(c.Context).Err(); err != nil {
			return nil, fmt.Errorf("connect to redis at %s: %w", settings.RedisAddr, err)
		}
		transportCfg.RateLimiter = ratelimit.NewTracker(redisClient, logging.NewLogger("ratelimit"))
		logger.Info().Str("addr", settings.RedisAddr).Msg("Shared rate limit state enabled")
	}

	client, err := transport.New(transportCfg)
	if err != nil {
		return nil, err
	}

	return &runner{settings: settings, client: client, logger: logger}, nil
}

// serveMetrics starts the Prometheus endpoint when configured.
func (r *runner) serveMetrics() {
	if r.settings.MetricsAddr == "" {
		return
	}
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		r.logger.Info().Str("addr", r.settings.MetricsAddr).Msg("Serving metrics")
		if err := http.ListenAndServe(r.settings.MetricsAddr, mux); err != nil {
			r.logger.Error().Err(err).Msg("Metrics server failed")
		}
	}()
}

func newCollectCommand() *cli.Command {
	return &cli.Command{
		Name:      "collect",
		Usage:     "collect timelines for the given targets (ids or screen names)",
		ArgsUsage: "[targets...]",
		Action: func(c *cli.Context) error {
			r, err := newRunner(c)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			r.serveMetrics()

			targets, err := config.LoadTargets(c.Args().Slice(), c.String("inputs"))
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}

			ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := r.collectAll(ctx, targets); err != nil {
				return cli.Exit(err.Error(), 1)
			}
			return nil
		},
	}
}

func newResolveCommand() *cli.Command {
	return &cli.Command{
		Name:      "resolve",
		Usage:     "resolve screen names to user ids",
		ArgsUsage: "screen-name [screen-name...]",
		Action: func(c *cli.Context) error {
			r, err := newRunner(c)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			if c.NArg() == 0 {
				return cli.Exit("no screen names given", 1)
			}
			for _, name := range c.Args().Slice() {
				id, err := r.client.ResolveUser(c.Context, name)
				if err != nil {
					return cli.Exit(fmt.Sprintf("resolve %s: %v", name, err), 1)
				}
				fmt.Printf("%s\t%s\n", name, id)
			}
			return nil
		},
	}
}

func newCronCommand() *cli.Command {
	return &cli.Command{
		Name:  "cron",
		Usage: "collect targets on a schedule",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "schedule", Value: "@every 15m", Usage: "cron expression or @every duration"},
		},
		Action: func(c *cli.Context) error {
			r, err := newRunner(c)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			r.serveMetrics()

			targets, err := config.LoadTargets(c.Args().Slice(), c.String("inputs"))
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}

			ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			var running sync.Mutex
			sched := cron.New()
			_, err = sched.AddFunc(c.String("schedule"), func() {
				if !running.TryLock() {
					r.logger.Warn().Msg("Previous collection still running, skipping tick")
					return
				}
				defer running.Unlock()
				if err := r.collectAll(ctx, targets); err != nil {
					r.logger.Error().Err(err).Msg("Scheduled collection failed")
				}
			})
			if err != nil {
				return cli.Exit(fmt.Sprintf("bad schedule: %v", err), 1)
			}

			r.logger.Info().
				Str("schedule", c.String("schedule")).
				Int("targets", len(targets)).
				Msg("Scheduler started")
			sched.Start()

			<-ctx.Done()
			stopCtx := sched.Stop()
			<-stopCtx.Done()
			return nil
		},
	}
}

// collectAll runs one collection per target through a bounded worker
// pool. Pages within a target stay sequential; only targets run in
// parallel. A cancelled context ends workers early but already
// collected posts are still exported.
func (r *runner) collectAll(ctx context.Context, targets []string) error {
	format, _ := export.ParseFormat(r.settings.Format)

	p := pool.New(pool.Config{MaxConcurrency: r.settings.Concurrency})
	_, err := p.Run(ctx, targets, func(ctx context.Context, target string) error {
		return r.collectOne(ctx, target, format)
	})
	return err
}

func (r *runner) collectOne(ctx context.Context, target string, format export.Format) error {
	targetID := target
	if !isNumeric(target) {
		id, err := r.client.ResolveUser(ctx, target)
		if err != nil {
			return fmt.Errorf("resolve %s: %w", target, err)
		}
		r.logger.Debug().Str("screen_name", target).Str("user_id", id).Msg("Resolved target")
		targetID = id
	}

	cfg := collector.DefaultConfig(targetID)
	cfg.MaxPosts = r.settings.MaxPosts
	cfg.RequestDelay = r.settings.RequestDelay

	ctrl, err := collector.New(r.client, cfg)
	if err != nil {
		return err
	}

	started := time.Now()
	posts, summary, err := ctrl.Collect(ctx)

	// A failed run still exports whatever was collected.
	if len(posts) > 0 || err == nil {
		name := fmt.Sprintf("%s.%s", target, format)
		path := filepath.Join(r.settings.OutputDir, name)
		if werr := export.Write(path, format, posts); werr != nil {
			if err == nil {
				err = werr
			}
		}
	}

	event := r.logger.Info()
	if err != nil {
		event = r.logger.Error().Err(err)
	}
	event.
		Str("target", target).
		Str("reason", string(summary.Reason)).
		Int("posts", len(posts)).
		Dur("took", time.Since(started)).
		Msg("Collection finished")

	return err
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
