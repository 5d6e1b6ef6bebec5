package cmd

import (
	"github.com/spf13/cobra"
	"github.com/supremehyo/appium-mcp-claude-android/internal/logging"
	"github.com/supremehyo/appium-mcp-claude-android/internal/output"
	"github.com/supremehyo/appium-mcp-claude-android/internal/server"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Start Appium, detect a device and write the config file",
	Long: `Start Appium unless it is already running, pick the first online device from adb,
write its UiAutomator2 capabilities to the config file and open a test session.

A server started here keeps running after the command exits.`,
	RunE: runSetup,
}

func init() {
	rootCmd.AddCommand(setupCmd)
	setupCmd.Flags().Int("port", 0, "Appium port (0 = appium.port from config)")
}

func runSetup(cmd *cobra.Command, args []string) error {
	port, _ := cmd.Flags().GetInt("port")

	ctx, cancel := signalContext(cmd)
	defer cancel()

	srv, err := server.New(server.Config{ConfigPath: configPath()})
	if err != nil {
		return err
	}
	res, err := srv.Setup(ctx, port)
	if err != nil {
		return err
	}
	if err := srv.Disconnect(ctx); err != nil {
		log := logging.For("cmd")
		log.Warn().Err(err).Msg("closing test session failed")
	}
	return output.Print(res)
}
