package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/supremehyo/appium-mcp-claude-android/internal/appium"
	"github.com/supremehyo/appium-mcp-claude-android/internal/config"
	"github.com/supremehyo/appium-mcp-claude-android/internal/logging"
	"github.com/supremehyo/appium-mcp-claude-android/internal/output"
)

var appiumCmd = &cobra.Command{
	Use:   "server",
	Short: "Manage the local Appium server",
}

var appiumStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start Appium and keep it running until interrupted",
	Long: `Start a local Appium server with base path / and wait for Ctrl-C, then stop it.
If a server already answers on the port nothing is started.

Examples:
  appium-bridge server start
  appium-bridge server start --port 4725 --log-file logs/appium.log`,
	RunE: runAppiumStart,
}

var appiumStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check whether an Appium server answers on the port",
	RunE:  runAppiumStatus,
}

func init() {
	rootCmd.AddCommand(appiumCmd)
	appiumCmd.AddCommand(appiumStartCmd, appiumStatusCmd)
	appiumCmd.PersistentFlags().Int("port", 0, "Appium port (0 = appium.port from config)")
	appiumStartCmd.Flags().String("log-file", "", "Redirect Appium output to this file")
}

// appiumManager builds a manager from the config file and the --port flag.
func appiumManager(cmd *cobra.Command) (*appium.Manager, config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, cfg, err
	}
	port, _ := cmd.Flags().GetInt("port")
	ac := cfg.Appium
	if port > 0 {
		ac.Port = port
	}
	if cmd.Flags().Changed("log-file") {
		ac.LogFile, _ = cmd.Flags().GetString("log-file")
	}
	return appium.NewManager(ac), cfg, nil
}

func runAppiumStart(cmd *cobra.Command, args []string) error {
	mgr, cfg, err := appiumManager(cmd)
	if err != nil {
		return err
	}
	ctx, cancel := signalContext(cmd)
	defer cancel()

	already, err := mgr.Start(ctx, cfg.Appium.StartTimeout)
	if err != nil {
		return err
	}
	res := output.ServerResult{Status: "started", URL: mgr.URL(), LogFile: mgr.LogFile}
	if already {
		res = output.ServerResult{Status: "already_running", URL: mgr.URL()}
		return output.Print(res)
	}
	if err := output.Print(res); err != nil {
		mgr.Stop()
		return err
	}

	<-ctx.Done()
	log := logging.For("cmd")
	log.Info().Msg("interrupted, stopping appium")
	if err := mgr.Stop(); err != nil {
		return fmt.Errorf("stop appium: %w", err)
	}
	return nil
}

func runAppiumStatus(cmd *cobra.Command, args []string) error {
	mgr, _, err := appiumManager(cmd)
	if err != nil {
		return err
	}
	status := "not_running"
	if mgr.IsRunning(cmd.Context()) {
		status = "running"
	}
	return output.Print(output.ServerResult{Status: status, URL: mgr.URL()})
}
