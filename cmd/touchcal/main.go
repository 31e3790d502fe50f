package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"touchcal/internal/clock"
	"touchcal/internal/config"
	"touchcal/internal/events"
	"touchcal/internal/ics"
	appLog "touchcal/internal/log"
	"touchcal/internal/planner"
	"touchcal/internal/taskstore"
	"touchcal/internal/template"
	"touchcal/internal/web"
)

type flagConfig struct {
	configPath string
	listen     string
	once       bool
	debug      bool
}

func main() {
	appLog.Info("touchcal starting", "version", "0.1.0")

	flags := parseFlags()
	if flags.debug {
		appLog.SetLevel(appLog.LevelDebug)
	}

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}

	// CLI --listen overrides config file listen if provided.
	if flags.listen != "" {
		conf.Listen = flags.listen
	}

	loc := resolveLocationOrLocal(conf.Timezone)

	appLog.Info("effective config",
		"listen", conf.Listen,
		"timezone", loc.String(),
		"data_dir", conf.DataDir,
		"classes_path", conf.ClassesPath,
		"refresh", conf.RefreshCron,
		"backup_enabled", conf.BackupEnabled,
		"once", flags.once,
	)

	// Completion store. A corrupt primary file is recovered from backups
	// (or an empty store) inside Open; it is a warning, not a fatal error.
	tasks, err := taskstore.Open(conf.DataDir, conf.BackupEnabled)
	if err != nil {
		var corrupt *taskstore.CorruptStoreError
		if !errors.As(err, &corrupt) {
			appLog.Error("failed to open task store", err, "data_dir", conf.DataDir)
			os.Exit(1)
		}
		appLog.Warn("task store was corrupt, continuing with recovered state", "err", corrupt)
	}

	eventStore, err := events.Open(conf.DataDir, conf.BackupEnabled)
	if err != nil {
		appLog.Error("failed to open event store", err, "data_dir", conf.DataDir)
		os.Exit(1)
	}

	templates := template.NewStore()
	if err := templates.LoadFiles(conf.ClassesPath, conf.ICSClassesPath); err != nil {
		// A broken document on startup is surfaced but not fatal: the
		// engine runs with an empty template set until a good reload.
		appLog.Error("failed to load class templates", err, "path", conf.ClassesPath)
	}

	engine := planner.NewEngine(templates, tasks, clock.Real{}, loc)

	// Materialize today at startup so the kiosk shows a full task list
	// even before the first scheduled refresh.
	if _, err := engine.GetTasksForDate(engine.Today()); err != nil {
		appLog.Error("initial materialization failed", err)
	}

	if flags.once {
		appLog.Info("once mode, exiting after initial materialization")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	// Daily refresh: materialize the (possibly new) current date on the
	// configured schedule, default shortly after midnight.
	sched := cron.New(cron.WithLocation(loc))
	if _, err := sched.AddFunc(conf.RefreshCron, func() {
		today := engine.Today()
		if _, err := engine.GetTasksForDate(today); err != nil {
			appLog.Error("scheduled materialization failed", err, "date", today)
		}
	}); err != nil {
		appLog.Error("invalid refresh schedule", err, "refresh", conf.RefreshCron)
		os.Exit(1)
	}
	sched.Start()
	defer sched.Stop()

	importer := ics.NewImporter(eventStore, ics.ImportConfig{DisplayLocation: loc})
	server := web.NewServer(conf, engine, eventStore, importer)

	httpServer := &http.Server{
		Addr:    conf.Listen,
		Handler: server.Handler(),
	}

	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+conf.Listen)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLog.Error("HTTP server failed", err)
			cancel()
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		appLog.Error("HTTP shutdown failed", err)
	}

	appLog.Info("touchcal exiting")
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/touchcal/config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Materialize today's tasks and exit")
	flag.BoolVar(&cfg.debug, "debug", false, "Enable debug logging")

	flag.Parse()

	return cfg
}

func resolveLocationOrLocal(name string) *time.Location {
	if name == "" || name == "Local" {
		return time.Local
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		appLog.Error("failed to load timezone; falling back to local", err, "name", name)
		return time.Local
	}
	return loc
}
