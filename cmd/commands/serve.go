package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/dohr-michael/editthread/internal/config"
	"github.com/dohr-michael/editthread/internal/events"
	"github.com/dohr-michael/editthread/internal/gateway"
	"github.com/dohr-michael/editthread/internal/heartbeat"
	"github.com/dohr-michael/editthread/internal/host"
	"github.com/dohr-michael/editthread/internal/logging"
	"github.com/dohr-michael/editthread/internal/scheduler"
	"github.com/dohr-michael/editthread/internal/stats"
	"github.com/dohr-michael/editthread/internal/storage"
	"github.com/dohr-michael/editthread/internal/tasks"
	"github.com/dohr-michael/editthread/internal/worker"
)

// NewServeCommand returns the serve subcommand.
func NewServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the edit worker, its host and the gateway",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "host",
				Usage: "Host to listen on",
			},
			&cli.IntFlag{
				Name:  "port",
				Usage: "Port to listen on",
			},
		},
		Action: runServe,
	}
}

func heartbeatPath() string {
	return filepath.Join(config.EditthreadPath(), "heartbeat.json")
}

func runServe(ctx context.Context, cmd *cli.Command) error {
	configPath := cmd.String("config")
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// CLI flags override config
	if cmd.IsSet("host") {
		cfg.Gateway.Host = cmd.String("host")
	}
	if cmd.IsSet("port") {
		cfg.Gateway.Port = int(cmd.Int("port"))
	}
	if cmd.Bool("debug") {
		cfg.Debug = true
	}

	logCloser, err := logging.Setup(cfg.Log, cfg.Debug)
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	defer logCloser.Close()

	db, err := storage.OpenSQLite(cfg.Storage.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	if n, err := tasks.RecoverTasks(db); err != nil {
		slog.Warn("recover tasks", "error", err)
	} else if n > 0 {
		slog.Info("marked interrupted tasks as failed", "count", n)
	}

	bus := events.NewBus(cfg.Events.BufferSize)
	defer bus.Close()

	eventLog := storage.NewEventLogger(cfg.Storage.EventLogDir, bus)
	defer eventLog.Close()
	tracker := storage.NewOutcomeTracker(bus)
	defer tracker.Close()

	registry := tasks.NewRegistry()
	w := worker.New(worker.Config{
		Registry: registry,
		Hook:     stats.NewCollector(time.Second),
		Throttle: cfg.Worker.Throttle.Duration(),
		Debug:    cfg.Debug,
	})
	w.Start()

	h := host.New(host.Config{
		Worker:        w,
		World:         db,
		Tasks:         db,
		Bus:           bus,
		Registry:      registry,
		QueueSize:     cfg.Worker.QueueSize,
		Tick:          cfg.Worker.Tick.Duration(),
		StatsInterval: cfg.Worker.StatsInterval.Duration(),
		MaxChunks:     int64(cfg.Worker.MaxChunks),
	})
	defer h.Close()

	sched := scheduler.New(scheduler.Config{Submitter: h, Bus: bus, Entries: cfg.Schedule})
	sched.Start()
	defer sched.Stop()

	server := gateway.NewServer(gateway.Options{
		Host:     h,
		Tasks:    db,
		Bus:      bus,
		Tracker:  tracker,
		EventLog: eventLog,
		Schedule: sched,
		Addr:     cfg.Gateway.Host,
		Port:     cfg.Gateway.Port,
	})

	hb := heartbeat.NewWriter(heartbeatPath(), fmt.Sprintf("%s:%d", cfg.Gateway.Host, cfg.Gateway.Port), func() heartbeat.Worker {
		st := h.Status()
		return heartbeat.Worker{State: st.WorkerState, Running: st.Running, Queued: len(st.Queued)}
	})

	reloader := config.NewReloader(configPath, config.DotenvPath(), cfg)
	reloader.OnReload(func(_, c *config.Config) {
		debug := c.Debug || cmd.Bool("debug")
		logging.SetDebug(debug, c.Log.Level)
		if err := h.SetDebug(debug); err != nil {
			slog.Warn("push debug flag to worker", "error", err)
		}
		sched.SetEntries(c.Schedule)
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return h.Run(gctx)
	})
	g.Go(func() error {
		return hb.Run(gctx)
	})
	g.Go(func() error {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		hup := make(chan os.Signal, 1)
		signal.Notify(hup, syscall.SIGHUP)
		defer signal.Stop(hup)
		reloader.Watch(gctx, hup)
		return nil
	})

	return g.Wait()
}
