package cli

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/halim/overlook/internal/client"
	"github.com/halim/overlook/internal/config"
	"github.com/halim/overlook/internal/dispatch"
	"github.com/halim/overlook/internal/logger"
	"github.com/halim/overlook/internal/state"
	"github.com/halim/overlook/internal/tui"
)

var serverURL string

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Open the session console",
	Long: `Open the terminal console against a running Overlook server.
The console lists sessions, follows trajectory output live, and can start
or halt sessions.`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&serverURL, "server", "", "server base URL (overrides config)")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	loader := config.NewLoader(cfgFile)
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if serverURL != "" {
		cfg.Client.ServerURL = serverURL
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	// The TUI owns the terminal, so logs go to the file only
	log, err := logger.New(logger.Config{
		Level:   cfg.Logging.Level,
		File:    cfg.Logging.File,
		Console: false,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Close()

	sessions := state.NewSessionStore()
	trajectories := state.NewTrajectoryStore()

	api, err := client.NewAPI(client.APIConfig{
		BaseURL: cfg.Client.ServerURL,
		Logger:  log.GetZerolog(),
	})
	if err != nil {
		return fmt.Errorf("failed to build api client: %w", err)
	}

	actions, err := client.NewActions(client.ActionsConfig{
		API:          api,
		Sessions:     sessions,
		Trajectories: trajectories,
		Logger:       log.GetZerolog(),
	})
	if err != nil {
		return fmt.Errorf("failed to build actions: %w", err)
	}

	wsURL, err := api.WebSocketURL()
	if err != nil {
		return fmt.Errorf("failed to derive websocket url: %w", err)
	}

	transport, err := client.NewTransport(client.TransportConfig{
		URL:    wsURL,
		Logger: log.GetZerolog(),
	})
	if err != nil {
		return fmt.Errorf("failed to build transport: %w", err)
	}

	disp, err := dispatch.New(dispatch.Config{
		Sessions:     sessions,
		Trajectories: trajectories,
		Logger:       log.GetZerolog(),
	})
	if err != nil {
		return fmt.Errorf("failed to build dispatcher: %w", err)
	}

	m, err := tui.New(tui.Config{
		Sessions:     sessions,
		Trajectories: trajectories,
		Actions:      actions,
		Loader:       loader,
		Theme:        cfg.Client.Theme,
		Logger:       log.GetZerolog(),
	})
	if err != nil {
		return fmt.Errorf("failed to build console: %w", err)
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	go transport.Run(ctx)
	go disp.Run(ctx, transport.Frames())

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion())

	// Store mutations arrive from the dispatcher goroutine; nudge the UI
	// whenever one lands
	sessions.Subscribe(func() { p.Send(tui.StoreChangedMsg{}) })
	trajectories.Subscribe(func() { p.Send(tui.StoreChangedMsg{}) })

	_, err = p.Run()

	cancel()
	transport.Close()
	return err
}
