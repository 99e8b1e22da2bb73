package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"synchronsync/internal/calendar"
	"synchronsync/internal/config"
	"synchronsync/internal/journal"
	"synchronsync/internal/localtime"
	"synchronsync/internal/metrics"
	"synchronsync/internal/notify"
	appsync "synchronsync/internal/sync"
	"synchronsync/internal/synchron"
)

func main() {
	// Credentials may live in a legacy credentials.env or a plain .env.
	_ = godotenv.Load("credentials.env")
	_ = godotenv.Load()

	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	logger := zerolog.New(output).With().Timestamp().Logger()

	app := &cli.App{
		Name:  "synchronsync",
		Usage: "Mirror synchron.de studio appointments into a Google Calendar.",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to the YAML config file",
				EnvVars: []string{"SYNCHRONSYNC_CONFIG"},
			},
		},
		Commands: []*cli.Command{
			runCommand(&logger),
			watchCommand(&logger),
			exportCommand(&logger),
		},
	}

	if err := app.Run(os.Args); err != nil {
		logger.Fatal().Err(err).Msg("synchronsync failed")
	}
}

// runtime bundles everything a sync run needs.
type runtime struct {
	cfg    *config.Config
	runner *appsync.Runner
	jrnl   *journal.Journal
	rdb    *redis.Client
}

func (rt *runtime) close() {
	if rt.jrnl != nil {
		_ = rt.jrnl.Close()
	}
	if rt.rdb != nil {
		_ = rt.rdb.Close()
	}
}

func setup(ctx context.Context, c *cli.Context, logger *zerolog.Logger) (*runtime, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	localizer, err := localtime.New(cfg.Google.TimeZone)
	if err != nil {
		return nil, err
	}

	var rdb *redis.Client
	var sessionCache synchron.SessionCache
	if cfg.Redis.Address != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		sessionCache = synchron.NewRedisSessionCache(rdb, cfg.SessionTTL())
	}

	portal, err := synchron.NewClient(synchron.Config{
		BaseURL:         cfg.Portal.BaseURL,
		Username:        cfg.Portal.Username,
		Password:        cfg.Portal.Password,
		MaxAppointments: cfg.Portal.MaxAppointments,
		LoginRetries:    cfg.Portal.LoginRetries,
		LoginRetryDelay: cfg.LoginRetryDelay(),
	}, sessionCache, logger)
	if err != nil {
		return nil, err
	}

	gateway, err := calendar.NewGoogleGateway(ctx, calendar.Config{
		ClientID:          cfg.Google.ClientID,
		ClientSecret:      cfg.Google.ClientSecret,
		RefreshToken:      cfg.Google.RefreshToken,
		CalendarID:        cfg.Google.CalendarID,
		TimeZone:          cfg.Google.TimeZone,
		RequestsPerSecond: cfg.Google.RequestsPerSecond,
	}, logger)
	if err != nil {
		return nil, err
	}

	var notifier notify.Notifier = notify.Nop{}
	if cfg.Telegram.BotToken != "" && cfg.Telegram.ChatID != 0 {
		notifier, err = notify.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, logger)
		if err != nil {
			return nil, err
		}
	} else {
		logger.Info().Msg("telegram not configured, notifications disabled")
	}

	rt := &runtime{cfg: cfg, rdb: rdb}

	var jrnl appsync.Journal
	if cfg.Journal.Enabled {
		rt.jrnl, err = journal.Open(cfg.Journal.Path)
		if err != nil {
			rt.close()
			return nil, err
		}
		jrnl = rt.jrnl
	}

	reconciler := appsync.NewReconciler(gateway, notifier, jrnl, localizer.Location(), logger)
	rt.runner = appsync.NewRunner(portal, gateway, reconciler, jrnl, localizer, logger)
	return rt, nil
}

func runCommand(logger *zerolog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Run a single sync cycle and exit.",
		Action: func(c *cli.Context) error {
			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			rt, err := setup(ctx, c, logger)
			if err != nil {
				return err
			}
			defer rt.close()

			metrics.Register()
			_, err = rt.runner.Run(ctx)
			return err
		},
	}
}

func watchCommand(logger *zerolog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "Run sync cycles on a cron schedule until interrupted.",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "schedule",
				Usage: "cron schedule, overrides sync.schedule from the config",
			},
		},
		Action: func(c *cli.Context) error {
			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			rt, err := setup(ctx, c, logger)
			if err != nil {
				return err
			}
			defer rt.close()

			metrics.Register()

			if rt.cfg.Monitoring.HealthCheckPort == 0 {
				rt.cfg.Monitoring.HealthCheckPort = 8090
			}
			go startHealthServer(ctx, rt.cfg.Monitoring.HealthCheckPort, rt, logger)

			if rt.cfg.Monitoring.PrometheusEnabled {
				if rt.cfg.Monitoring.PrometheusPort == 0 {
					rt.cfg.Monitoring.PrometheusPort = 9090
				}
				go startMetricsServer(ctx, rt.cfg.Monitoring.PrometheusPort, logger)
			}

			if rt.jrnl != nil && rt.cfg.Journal.Backup.Enabled {
				backup := journal.NewBackupService(rt.cfg.Journal.Path, journal.BackupConfig{
					Enabled:       true,
					StoragePath:   rt.cfg.Journal.Backup.Path,
					Interval:      rt.cfg.BackupInterval(),
					RetentionDays: rt.cfg.Journal.Backup.RetentionDays,
				}, logger)
				go backup.Start(ctx)
			}

			schedule := rt.cfg.Sync.Schedule
			if s := c.String("schedule"); s != "" {
				schedule = s
			}

			// Overlapping cycles would race on create/delete; skip instead.
			var inFlight atomic.Bool
			runOnce := func() {
				if !inFlight.CompareAndSwap(false, true) {
					logger.Warn().Msg("previous sync cycle still running, skipping")
					return
				}
				defer inFlight.Store(false)
				if _, err := rt.runner.Run(ctx); err != nil {
					logger.Error().Err(err).Msg("sync cycle failed")
				}
			}

			scheduler := cron.New()
			if _, err := scheduler.AddFunc(schedule, runOnce); err != nil {
				return fmt.Errorf("invalid schedule %q: %w", schedule, err)
			}

			logger.Info().Str("schedule", schedule).Msg("synchronsync watcher started")
			runOnce()
			scheduler.Start()

			<-ctx.Done()
			<-scheduler.Stop().Done()
			logger.Info().Msg("synchronsync watcher stopped")
			return nil
		},
	}
}

func exportCommand(logger *zerolog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Export the sync journal to an Excel workbook.",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "out",
				Value: "synchronsync-report.xlsx",
				Usage: "output file path",
			},
			&cli.IntFlag{
				Name:  "runs",
				Value: 100,
				Usage: "number of most recent runs to export",
			},
		},
		Action: func(c *cli.Context) error {
			cfg, err := config.Load(c.String("config"))
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			jrnl, err := journal.Open(cfg.Journal.Path)
			if err != nil {
				return err
			}
			defer jrnl.Close()

			if err := jrnl.ExportExcel(c.Context, c.String("out"), c.Int("runs")); err != nil {
				return err
			}
			logger.Info().Str("path", c.String("out")).Msg("journal exported")
			return nil
		},
	}
}

func startHealthServer(ctx context.Context, port int, rt *runtime, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		ctxPing, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		if rt.jrnl != nil {
			if err := rt.jrnl.PingContext(ctxPing); err != nil {
				http.Error(w, "journal not ready", http.StatusServiceUnavailable)
				return
			}
		}
		if rt.rdb != nil {
			if err := rt.rdb.Ping(ctxPing).Err(); err != nil {
				http.Error(w, "redis not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	serve(ctx, port, mux, logger, "health")
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	serve(ctx, port, mux, logger, "metrics")
}

func serve(ctx context.Context, port int, handler http.Handler, logger *zerolog.Logger, name string) {
	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: handler}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Str("server", name).Msg("server error")
	}
}
