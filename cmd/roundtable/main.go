package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/harunnryd/roundtable/pkg/control"
	"github.com/harunnryd/roundtable/pkg/engine"
	"github.com/harunnryd/roundtable/pkg/logging"
	"github.com/harunnryd/roundtable/pkg/runner"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config")
	envFile := flag.String("env", ".env", "dotenv file loaded before the config")
	headless := flag.Bool("headless", false, "read commands from stdin instead of the key listener")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "warning: load %s: %v\n", *envFile, err)
	}

	cfg, err := engine.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if *headless {
		cfg.Control.Mode = "line"
	}

	// The key listener owns the terminal, so logs go to a file.
	var out io.Writer = os.Stdout
	if cfg.Control.Mode == "tui" {
		f, err := openLogFile(cfg.LogFile)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
		defer f.Close()
		out = f
	}
	logger := logging.InitLogger(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, Output: out})

	providers := engine.NewProviderRegistry()
	registerProviders(providers)
	logger.Debug("providers_registered", "providers", providers.Names())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := engine.NewEngine(ctx, engine.Options{
		Config:    cfg,
		Providers: providers,
		Banner:    out,
		Logger:    logger,
		Hooks: runner.Hooks{
			OnForceExit: func(stragglers []string) {
				logger.Error("forced_exit", "stragglers", stragglers)
				os.Exit(1)
			},
		},
	})
	if err != nil {
		logger.Error("engine_init_failed", "error", err)
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	inputCtx, cancelInput := context.WithCancel(ctx)
	var input sync.WaitGroup
	if err := startInput(inputCtx, &input, cfg, app, logger); err != nil {
		logger.Error("control_init_failed", "error", err)
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	runErr := app.Run(ctx)
	cancelInput()
	input.Wait()
	if runErr != nil {
		logger.Error("roundtable_stopped", "error", runErr)
		os.Exit(1)
	}
	logger.Info("roundtable_stopped")
}

func startInput(ctx context.Context, wg *sync.WaitGroup, cfg engine.Config, app *engine.Engine, logger *slog.Logger) error {
	if cfg.Control.Mode != "tui" {
		lr := control.NewLineReader(os.Stdin, app.Queue(), logger)
		// stdin reads cannot be interrupted, so the line reader is not joined.
		go func() {
			if err := lr.Run(ctx); err != nil {
				logger.Warn("line_reader_stopped", "error", err)
			}
		}()
		return nil
	}
	keys, err := control.DefaultKeyMap().WithBindings(cfg.Control.Keys)
	if err != nil {
		return fmt.Errorf("control.keys: %w", err)
	}
	tui := control.NewTUI(app.Queue(), keys, app.Slots())
	app.Coordinator().AddListener(tui)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := tui.Run(ctx); err != nil {
			logger.Error("tui_failed", "error", err)
			app.Coordinator().RequestShutdown()
		}
	}()
	return nil
}

func openLogFile(path string) (*os.File, error) {
	if path == "" {
		path = "roundtable.log"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return f, nil
}
