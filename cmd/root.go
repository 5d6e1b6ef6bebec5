package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/supremehyo/appium-mcp-claude-android/internal/config"
	"github.com/supremehyo/appium-mcp-claude-android/internal/logging"
	"github.com/supremehyo/appium-mcp-claude-android/internal/output"
	"github.com/supremehyo/appium-mcp-claude-android/internal/version"
)

var rootCmd = &cobra.Command{
	Use:   "appium-bridge",
	Short: "Drive Android and iOS devices from natural-language instructions",
	Long: `A CLI and MCP server that reads a device screen through Appium, asks a
planner for actions and executes them, turn by turn.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", version.Version, version.Commit, version.BuildDate)
	rootCmd.PersistentFlags().String("config", config.DefaultPath, "Configuration file (YAML or JSON)")
	rootCmd.PersistentFlags().String("format", "yaml", "Output format: yaml, json")
	rootCmd.PersistentFlags().Bool("pretty", false, "Pretty-print JSON output")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("log-format", "console", "Log format: console, json")
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		level, _ := rootCmd.PersistentFlags().GetString("log-level")
		logFormat, _ := rootCmd.PersistentFlags().GetString("log-format")
		if err := logging.Init(logging.Config{Level: level, Format: logging.Format(logFormat)}); err != nil {
			return err
		}

		// Use the root persistent flag directly to avoid conflicts with
		// subcommand local flags (e.g. screenshot --image-format).
		format, _ := rootCmd.PersistentFlags().GetString("format")
		switch format {
		case "yaml":
			output.OutputFormat = output.FormatYAML
		case "json":
			output.OutputFormat = output.FormatJSON
		default:
			return fmt.Errorf("unsupported format: %s (use yaml or json)", format)
		}
		output.PrettyOutput, _ = rootCmd.PersistentFlags().GetBool("pretty")
		return nil
	}
}
