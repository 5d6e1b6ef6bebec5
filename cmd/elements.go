package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/supremehyo/appium-mcp-claude-android/internal/logging"
	"github.com/supremehyo/appium-mcp-claude-android/internal/model"
	"github.com/supremehyo/appium-mcp-claude-android/internal/output"
)

var elementsCmd = &cobra.Command{
	Use:   "elements",
	Short: "List the UI elements on the device screen",
	Long: `Capture one snapshot and print every element with the 1-based index planners
and execute actions refer to. Filters keep the original indexes.

Examples:
  appium-bridge elements
  appium-bridge elements --roles interactive
  appium-bridge elements --text login --bbox 0,0,1080,1200
  appium-bridge elements --diff`,
	RunE: runElements,
}

func init() {
	rootCmd.AddCommand(elementsCmd)
	elementsCmd.Flags().String("text", "", "Only elements whose text, description or resource ID contains this (case-insensitive)")
	elementsCmd.Flags().String("roles", "", "Comma-separated roles: btn,txt,input,img,chk,toggle,radio,list,scroll,group or interactive")
	elementsCmd.Flags().String("bbox", "", "Only elements intersecting left,top,right,bottom")
	elementsCmd.Flags().Bool("diff", false, "Include changes since the last snapshot saved for this device")
}

// parseBBox parses "left,top,right,bottom".
func parseBBox(s string) (*model.Bounds, error) {
	var b model.Bounds
	if _, err := fmt.Sscanf(s, "%d,%d,%d,%d", &b[0], &b[1], &b[2], &b[3]); err != nil {
		return nil, fmt.Errorf("invalid --bbox %q (use left,top,right,bottom): %w", s, err)
	}
	return &b, nil
}

// parseRoles splits a comma-separated role list.
func parseRoles(s string) []string {
	var roles []string
	for _, r := range strings.Split(s, ",") {
		if r = strings.TrimSpace(r); r != "" {
			roles = append(roles, r)
		}
	}
	return roles
}

func runElements(cmd *cobra.Command, args []string) error {
	text, _ := cmd.Flags().GetString("text")
	roles, _ := cmd.Flags().GetString("roles")
	bbox, _ := cmd.Flags().GetString("bbox")
	withDiff, _ := cmd.Flags().GetBool("diff")

	filter := model.NodeFilter{Text: text, Roles: parseRoles(roles)}
	if bbox != "" {
		b, err := parseBBox(bbox)
		if err != nil {
			return err
		}
		filter.BBox = b
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()

	b, _, err := newBridge()
	if err != nil {
		return err
	}
	defer disconnect(b)

	nodes, err := b.Refresh(ctx)
	if err != nil {
		return err
	}
	res := output.NewElementsResult(b.Device(), time.Now().Unix(), nodes)
	res.Source = "device"

	if withDiff {
		log := logging.For("cmd")
		if prev, err := model.LoadSnapshot(b.Device()); err != nil {
			log.Debug().Err(err).Msg("no previous snapshot")
		} else {
			diff := model.DiffNodes(prev, nodes)
			res.Changes = &diff
		}
		if err := model.SaveSnapshot(b.Device(), nodes); err != nil {
			log.Warn().Err(err).Msg("failed to save snapshot")
		}
	}

	res.Filter(filter)
	return output.Print(res)
}
