package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/supremehyo/appium-mcp-claude-android/internal/model"
	"github.com/supremehyo/appium-mcp-claude-android/internal/output"
	"github.com/supremehyo/appium-mcp-claude-android/internal/server"
)

var execCmd = &cobra.Command{
	Use:   "exec <action>",
	Short: "Execute one action on the device",
	Long: `Execute a single action without planning. Element actions target the element
given by --index (from the elements command), --text, --content-desc or --resource-id,
with --x/--y as the fallback point.

Actions: ` + strings.Join(model.ActionNames(), ", ") + `

Examples:
  appium-bridge exec tap --text Login
  appium-bridge exec input_text --resource-id com.app:id/username --text alice
  appium-bridge exec swipe --x 500 --y 1600 --end-x 500 --end-y 400
  appium-bridge exec scroll_down`,
	Args: cobra.ExactArgs(1),
	RunE: runExec,
}

func init() {
	rootCmd.AddCommand(execCmd)
	execCmd.Flags().Int("index", 0, "1-based element index")
	execCmd.Flags().String("text", "", "Element text, or the text to type/assert")
	execCmd.Flags().String("content-desc", "", "Element content description")
	execCmd.Flags().String("resource-id", "", "Element resource ID")
	execCmd.Flags().Int("x", 0, "X coordinate")
	execCmd.Flags().Int("y", 0, "Y coordinate")
	execCmd.Flags().Int("end-x", 0, "Swipe end X coordinate")
	execCmd.Flags().Int("end-y", 0, "Swipe end Y coordinate")
	execCmd.Flags().Int("duration", 0, "Duration in milliseconds (long_press, swipe, wait)")
}

// flagParams collects the flags that were set, keyed the way the
// execute_action tool names its arguments.
func flagParams(flags *pflag.FlagSet) map[string]interface{} {
	params := map[string]interface{}{}
	flags.Visit(func(f *pflag.Flag) {
		key := strings.ReplaceAll(f.Name, "-", "_")
		switch f.Value.Type() {
		case "int":
			n, _ := flags.GetInt(f.Name)
			params[key] = n
		default:
			params[key] = f.Value.String()
		}
	})
	return params
}

func runExec(cmd *cobra.Command, args []string) error {
	params := flagParams(cmd.Flags())
	params["action"] = args[0]
	action, err := server.ActionFromArgs(params)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()

	b, _, err := newBridge()
	if err != nil {
		return err
	}
	defer disconnect(b)

	if action.Locator != nil && action.Locator.Strategy == model.StrategyNodeIndex {
		if _, err := b.Refresh(ctx); err != nil {
			return err
		}
	}
	_, execErr := b.Execute(ctx, []model.PlannedAction{action})

	res := output.ActionResult{OK: execErr == nil, Action: action.Describe()}
	if execErr != nil {
		res.Error = execErr.Error()
	}
	if err := output.Print(res); err != nil {
		return err
	}
	return execErr
}
