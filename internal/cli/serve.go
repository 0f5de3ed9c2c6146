package cli

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/halim/overlook/internal/config"
	"github.com/halim/overlook/internal/logger"
	"github.com/halim/overlook/internal/runner"
	"github.com/halim/overlook/internal/server"
	"github.com/halim/overlook/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the Overlook server",
	Long: `Run the session API server. It persists sessions and trajectory
records, launches the configured agent command for new sessions, and
streams every change to connected consoles over WebSocket.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	loader := config.NewLoader(cfgFile)
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	log, err := logger.New(logger.Config{
		Level:   cfg.Logging.Level,
		File:    cfg.Logging.File,
		Console: cfg.Logging.Console,
		Pretty:  cfg.Logging.Pretty,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Close()

	st, err := store.Open(store.Config{
		DBPath: filepath.Join(cfg.DataDir, "overlook.db"),
		Logger: log.GetZerolog(),
	})
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	srv, err := server.New(server.Config{
		Host:          cfg.Server.Host,
		Port:          cfg.Server.Port,
		Store:         st,
		SweepSchedule: cfg.Server.SweepSchedule,
		Logger:        log.GetZerolog(),
	})
	if err != nil {
		return fmt.Errorf("failed to build server: %w", err)
	}

	agents, err := runner.New(runner.Config{
		AgentCommand: cfg.Server.AgentCommand,
		Store:        st,
		Publisher:    srv.Broadcaster(),
		Logger:       log.GetZerolog(),
	})
	if err != nil {
		return fmt.Errorf("failed to build runner: %w", err)
	}
	srv.SetAgents(agents)

	// Log level follows config file edits while the server runs
	watcher, err := config.NewWatcher(loader, log.GetZerolog(), func(fresh *config.Config) {
		log.SetLevel(fresh.Logging.Level)
	})
	if err != nil {
		log.Warn().Err(err).Msg("Config watcher unavailable")
	} else {
		defer watcher.Stop()
	}

	if err := srv.Start(); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info().Str("signal", sig.String()).Msg("Shutting down")

	agents.Shutdown(10 * time.Second)
	if err := srv.Stop(); err != nil {
		return err
	}
	return nil
}
