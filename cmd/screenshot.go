package cmd

import (
	"encoding/base64"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/supremehyo/appium-mcp-claude-android/internal/annotate"
	"github.com/supremehyo/appium-mcp-claude-android/internal/model"
)

var screenshotCmd = &cobra.Command{
	Use:   "screenshot",
	Short: "Capture a device screenshot",
	Long: `Capture the device screen for vision model fallback. With --annotate every
element from the current snapshot is boxed and labelled with its 1-based index,
matching the indexes printed by the elements command.`,
	RunE: runScreenshot,
}

func init() {
	rootCmd.AddCommand(screenshotCmd)
	screenshotCmd.Flags().String("output", "", "Output file path (default: stdout as base64)")
	screenshotCmd.Flags().String("image-format", "png", "Image format: png, jpg")
	screenshotCmd.Flags().Int("quality", 80, "JPEG quality 1-100")
	screenshotCmd.Flags().Float64("scale", 0.5, "Scale factor 0.1-1.0 (for token efficiency)")
	screenshotCmd.Flags().Bool("annotate", false, "Draw element bounds and indexes")
}

func runScreenshot(cmd *cobra.Command, args []string) error {
	outPath, _ := cmd.Flags().GetString("output")
	format, _ := cmd.Flags().GetString("image-format")
	quality, _ := cmd.Flags().GetInt("quality")
	scale, _ := cmd.Flags().GetFloat64("scale")
	withLabels, _ := cmd.Flags().GetBool("annotate")

	ctx, cancel := signalContext(cmd)
	defer cancel()

	b, _, err := newBridge()
	if err != nil {
		return err
	}
	defer disconnect(b)

	if err := b.Connect(ctx); err != nil {
		return err
	}
	sess := b.Session()

	var nodes []model.NodeSnapshot
	if withLabels {
		if nodes, err = b.Refresh(ctx); err != nil {
			return err
		}
	}
	raw, err := sess.Screenshot(ctx)
	if err != nil {
		return fmt.Errorf("capture screenshot: %w", err)
	}
	width, height, err := sess.WindowSize(ctx)
	if err != nil {
		return fmt.Errorf("window size: %w", err)
	}

	data, err := annotate.Render(raw, nodes, width, height, annotate.Options{
		Annotate: withLabels,
		Scale:    scale,
		Format:   format,
		Quality:  quality,
	})
	if err != nil {
		return err
	}

	if outPath != "" {
		return os.WriteFile(outPath, data, 0644)
	}

	// Default: write to stdout as base64 for easy agent consumption
	encoder := base64.NewEncoder(base64.StdEncoding, os.Stdout)
	if _, err := encoder.Write(data); err != nil {
		return err
	}
	if err := encoder.Close(); err != nil {
		return err
	}
	fmt.Println()
	return nil
}
