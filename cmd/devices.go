package cmd

import (
	"github.com/spf13/cobra"
	"github.com/supremehyo/appium-mcp-claude-android/internal/device"
	"github.com/supremehyo/appium-mcp-claude-android/internal/output"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List Android devices known to adb",
	Long:  "List devices from 'adb devices' with their state. Online devices include manufacturer, model and Android version.",
	RunE:  runDevices,
}

func init() {
	rootCmd.AddCommand(devicesCmd)
}

func runDevices(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, cancel := signalContext(cmd)
	defer cancel()

	listings, err := device.NewADB(cfg.ADBBinary).ListDetailed(ctx)
	if err != nil {
		return err
	}
	if listings == nil {
		listings = []device.Listing{}
	}
	return output.Print(output.DevicesResult{Count: len(listings), Devices: listings})
}
