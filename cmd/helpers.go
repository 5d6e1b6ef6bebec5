package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/supremehyo/appium-mcp-claude-android/internal/bridge"
	"github.com/supremehyo/appium-mcp-claude-android/internal/config"
	"github.com/supremehyo/appium-mcp-claude-android/internal/logging"
	"github.com/supremehyo/appium-mcp-claude-android/internal/store"
)

// configPath returns the --config flag value.
func configPath() string {
	path, _ := rootCmd.PersistentFlags().GetString("config")
	if path == "" {
		return config.DefaultPath
	}
	return path
}

// loadConfig reads the configuration file, falling back to defaults when
// it does not exist.
func loadConfig() (config.Config, error) {
	return config.LoadOrDefault(configPath())
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}

// newBridge builds a bridge from the configuration file. The caller must
// disconnect it.
func newBridge() (*bridge.Bridge, config.Config, error) {
	cfg, err := config.Load(configPath())
	if err != nil {
		return nil, cfg, err
	}
	b, err := bridge.FromConfig(cfg, nil)
	return b, cfg, err
}

// disconnect closes the bridge session, logging failures.
func disconnect(b *bridge.Bridge) {
	if err := b.Disconnect(context.Background()); err != nil {
		log := logging.For("cmd")
		log.Warn().Err(err).Msg("disconnect failed")
	}
}

// openStore opens the run history, or returns nil with a warning when it
// cannot be opened.
func openStore(cfg config.Config) *store.Store {
	if cfg.Store.Path == "" {
		return nil
	}
	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		log := logging.For("cmd")
		log.Warn().Err(err).Msg("run history disabled")
		return nil
	}
	return st
}
