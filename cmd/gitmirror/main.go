package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"git.skarv.dev/infra/gitmirror/internal/config"
	"git.skarv.dev/infra/gitmirror/internal/daemon"
	"git.skarv.dev/infra/gitmirror/internal/history"
	"git.skarv.dev/infra/gitmirror/internal/mirror"
	"git.skarv.dev/infra/gitmirror/internal/notify"
	"git.skarv.dev/infra/gitmirror/internal/version"
)

var CLI struct {
	Config  string `short:"c" help:"Configuration file path" default:"config.yaml"`
	Verbose bool   `short:"v" help:"Enable verbose logging"`

	Run struct {
		DryRun bool `help:"Compute and report the overlay plan without committing"`
	} `cmd:"" help:"Run a single mirror pass"`

	Init struct {
		Force bool `help:"Overwrite existing configuration file"`
	} `cmd:"" help:"Initialize a new configuration file"`

	History struct {
		Limit int `short:"n" help:"Number of runs to show" default:"20"`
	} `cmd:"" help:"Show recent mirror runs"`

	Daemon struct{} `cmd:"" help:"Run as a long-lived service with HTTP trigger and schedule"`

	Version struct{} `cmd:"" help:"Print version information"`
}

func main() {
	ctx := kong.Parse(&CLI)

	switch ctx.Command() {
	case "run":
		cfg := loadConfig()
		setupLogging(cfg)
		if err := runMirror(cfg, CLI.Run.DryRun); err != nil {
			slog.Error("Mirror run failed", "error", err)
			os.Exit(1)
		}
	case "init":
		setupLogging(nil)
		if err := config.Init(CLI.Config, CLI.Init.Force); err != nil {
			slog.Error("Init failed", "error", err)
			os.Exit(1)
		}
		slog.Info("Configuration written", "path", CLI.Config)
	case "history":
		cfg := loadConfig()
		setupLogging(cfg)
		if err := showHistory(cfg, CLI.History.Limit); err != nil {
			slog.Error("History failed", "error", err)
			os.Exit(1)
		}
	case "daemon":
		cfg := loadConfig()
		setupLogging(cfg)
		if err := runDaemon(cfg); err != nil {
			slog.Error("Daemon failed", "error", err)
			os.Exit(1)
		}
	case "version":
		fmt.Printf("gitmirror %s (commit %s, built %s)\n", version.Version, version.GitCommit, version.BuildTime)
	}
}

func loadConfig() *config.Config {
	cfg, err := config.Load(CLI.Config)
	if err != nil {
		// Logging is not configured yet at this point.
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func setupLogging(cfg *config.Config) {
	levels := map[config.LogLevel]slog.Level{
		config.LogLevelDebug: slog.LevelDebug,
		config.LogLevelInfo:  slog.LevelInfo,
		config.LogLevelWarn:  slog.LevelWarn,
		config.LogLevelError: slog.LevelError,
	}

	level := slog.LevelInfo
	format := config.LogFormatText
	if cfg != nil {
		level = levels[config.NormalizeLogLevel(cfg.Log.Level)]
		format = config.NormalizeLogFormat(cfg.Log.Format)
	}
	if CLI.Verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if format == config.LogFormatJSON {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// runMirror executes one mirror pass. A pass that finds nothing to update
// exits zero just like one that commits.
func runMirror(cfg *config.Config, dryRun bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := mirror.Options{DryRun: dryRun}

	if cfg.History != nil {
		store, err := history.NewSQLiteStore(cfg.History.Path)
		if err != nil {
			return fmt.Errorf("open history store: %w", err)
		}
		defer store.Close()
		opts.History = store
	}

	notifier, err := notify.NewNATSPublisher(cfg.Notify)
	if err != nil {
		return err
	}
	if notifier != nil {
		defer notifier.Close()
		opts.Notifier = notifier
	}

	engine := mirror.NewEngine(cfg, slog.Default(), opts)
	result, err := engine.Run(ctx)
	if err != nil {
		return err
	}

	if result.Changed {
		slog.Info("Mirror updated destination",
			"commit", result.Commit,
			"added", result.Added,
			"updated", result.Updated,
			"deleted", result.Deleted)
	} else {
		slog.Info("Destination already up to date")
	}
	return nil
}

func showHistory(cfg *config.Config, limit int) error {
	if cfg.History == nil {
		return fmt.Errorf("history is not configured (set history.path)")
	}

	store, err := history.NewSQLiteStore(cfg.History.Path)
	if err != nil {
		return fmt.Errorf("open history store: %w", err)
	}
	defer store.Close()

	runs, err := store.ListRuns(context.Background(), limit)
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("No runs recorded yet.")
		return nil
	}

	for _, run := range runs {
		line := fmt.Sprintf("%s  %-9s  %6dms  +%d ~%d -%d",
			run.StartedAt.Format("2006-01-02 15:04:05"),
			run.Outcome,
			run.Duration.Milliseconds(),
			run.FilesAdded, run.FilesUpdated, run.FilesDeleted)
		if run.CommitSHA != "" {
			line += "  " + shortSHA(run.CommitSHA)
		}
		if run.Error != "" {
			line += "  " + run.Error
		}
		fmt.Println(line)
	}
	return nil
}

func shortSHA(sha string) string {
	if len(sha) > 8 {
		return sha[:8]
	}
	return sha
}

func runDaemon(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	d, err := daemon.New(CLI.Config, cfg, slog.Default())
	if err != nil {
		return err
	}
	return d.Run(ctx)
}
