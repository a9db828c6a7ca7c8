package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"checkhub/internal/config"
	"checkhub/internal/ghclient"
	"checkhub/internal/handler"
	"checkhub/internal/server"
	"checkhub/internal/store"
	"checkhub/internal/stream"
	"checkhub/internal/telemetry"
	"checkhub/internal/webhook"
)

const shutdownTimeout = 15 * time.Second

var (
	configFile string
	logFile    string
	dbPath     string
	host       string
	port       int
	testMode   bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the webhook server",
	Long: `Start the HTTP server to receive GitHub webhook requests and serve the
repository API.

Settings come from checkhub.yaml and CHECKHUB_ environment variables; the
flags below override both.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&logFile, "log", "", "Path to log file (overrides log.file)")
	serveCmd.Flags().StringVar(&dbPath, "db", "", "Path to SQLite database (overrides storage.path)")
	serveCmd.Flags().StringVar(&host, "host", "", "Host to bind to (overrides server.host)")
	serveCmd.Flags().IntVarP(&port, "port", "p", 0, "Port to listen on (overrides server.port)")
	serveCmd.Flags().BoolVar(&testMode, "test-mode", false, "Enable test mode (disables rate limiting)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, path, err := loadConfig()
	if err != nil {
		return err
	}
	applyServeFlags(cmd, cfg)

	logger, closeLog, err := setupLogging(cfg.Log.File, cfg.Log.Level)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	defer closeLog()

	logger.Info("Starting checkhub", "version", version, "config", path)

	if cfg.Hook.AllowUnsigned {
		logger.Warn("Webhook deliveries without a signature are ACCEPTED; set hook.allow_unsigned=false to require signatures")
	}
	if config.IsWeakSecret(cfg.Hook.Secret) {
		logger.Warn("hook.secret looks weak; generate a new one with 'checkhub secret'")
	}
	if cfg.GitHub.Token == "" {
		logger.Warn("github.token is not set; commit statuses and repository config files will not be available")
	}
	if cfg.Hook.URL == "" {
		logger.Warn("hook.url is not set; enabling checks will not create repository webhooks")
	}

	shutdownTracer := telemetry.ShutdownFunc(telemetry.Noop)
	if cfg.Telemetry.Enabled {
		shutdownTracer, err = telemetry.InitTracer("checkhub", os.Stdout, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize tracing: %w", err)
		}
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracer(ctx); err != nil {
			logger.Error("Failed to flush traces", "error", err)
		}
	}()

	logger.Info("Opening database", "db", cfg.Storage.Path)
	st, err := store.NewStore(cfg.Storage.Path)
	if err != nil {
		logger.Error("Failed to open database", "error", err)
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer st.Close()

	clients := ghclient.NewFactory(cfg.GitHub.BaseURL)
	appClient, err := clients(cfg.GitHub.Token)
	if err != nil {
		return fmt.Errorf("failed to create GitHub client: %w", err)
	}

	checkers := handler.DefaultCheckers()
	locks := handler.NewLockManager()
	hooks := handler.NewHookHandler(st, appClient, checkers, locks, logger)
	dispatcher := webhook.NewDispatcher(hooks.Registry(), logger)
	logger.Info("Registered webhook handlers", "events", dispatcher.Registry().Events())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := stream.NewHub(logger)
	go hub.Run(ctx)

	srv := server.NewServer(server.Options{
		Store:        st,
		Dispatcher:   dispatcher,
		Repositories: handler.NewRepositoryHandler(st, logger),
		Checks: handler.NewCheckHandler(st, checkers, locks, handler.CheckHandlerConfig{
			HookURL: cfg.Hook.URL,
			Secret:  cfg.Hook.Secret,
		}, logger),
		CheckTypes:    checkers.Types(),
		Stream:        hub,
		Clients:       clients,
		Secret:        []byte(cfg.Hook.Secret),
		AllowUnsigned: cfg.Hook.AllowUnsigned,
		Environment:   cfg.Server.Environment,
		RateLimit:     cfg.Server.RateLimit,
		HookRateLimit: cfg.Hook.RateLimit,
		Logger:        logger,
		TestMode:      testMode,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(cfg.Server.Host, cfg.Server.Port)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("Server failed", "error", err)
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	return <-errCh
}

// loadConfig loads --config, or the first checkhub.yaml found in the default
// locations. Without a file, settings come from the environment only.
func loadConfig() (*config.Config, string, error) {
	path := configFile
	if path == "" {
		path = config.Find()
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, path, err
	}
	return cfg, path, nil
}

func applyServeFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("log") {
		cfg.Log.File = logFile
	}
	if flags.Changed("db") {
		cfg.Storage.Path = dbPath
	}
	if flags.Changed("host") {
		cfg.Server.Host = host
	}
	if flags.Changed("port") {
		cfg.Server.Port = port
	}
}

// setupLogging configures slog for console and optional file logging.
// The returned func closes the log file.
func setupLogging(logPath, level string) (*slog.Logger, func(), error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	var out io.Writer = os.Stdout
	closeFn := func() {}

	if logPath != "" {
		// Create log directory if needed
		if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
			return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
		}

		// Open log file with secure permissions
		file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file: %w", err)
		}

		// Log to both file and console
		out = io.MultiWriter(os.Stdout, file)
		closeFn = func() { file.Close() }
	}

	jsonHandler := slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level: lvl,
	})

	return slog.New(jsonHandler), closeFn, nil
}
