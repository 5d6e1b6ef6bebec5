package cmd

import (
	"github.com/spf13/cobra"
	"github.com/supremehyo/appium-mcp-claude-android/internal/logging"
	"github.com/supremehyo/appium-mcp-claude-android/internal/output"
	"github.com/supremehyo/appium-mcp-claude-android/internal/store"
)

var runCmd = &cobra.Command{
	Use:   "run <instruction>",
	Short: "Run a natural-language instruction on the device",
	Long: `Read the screen, ask the configured planner for actions, execute them and
repeat until the planner stops asking for another turn or --max-turns is reached.

Examples:
  appium-bridge run "tap the login button"
  appium-bridge run "type alice into the username field" --max-turns 2`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().Int("max-turns", 0, "Maximum planning turns (0 = loop.max_turns from config)")
	runCmd.Flags().Bool("no-history", false, "Do not record the run in the history store")
}

func runRun(cmd *cobra.Command, args []string) error {
	maxTurns, _ := cmd.Flags().GetInt("max-turns")
	noHistory, _ := cmd.Flags().GetBool("no-history")
	request := args[0]

	ctx, cancel := signalContext(cmd)
	defer cancel()

	b, cfg, err := newBridge()
	if err != nil {
		return err
	}
	defer disconnect(b)

	run := store.NewRun(request, b.Device())
	res, runErr := b.RunInstruction(ctx, request, maxTurns)
	run.Turns, run.Actions, run.Ledger = res.Turns, res.Actions, res.Ledger
	run.Finish(runErr)

	result := output.NewRunResult(request, res.Turns, res.Thoughts, res.Actions, res.Ledger, runErr)
	if !noHistory {
		if st := openStore(cfg); st != nil {
			defer st.Close()
			if id, err := st.Record(ctx, run); err != nil {
				log := logging.For("cmd")
				log.Warn().Err(err).Msg("failed to record run")
			} else {
				result.RunID = id
			}
		}
	}

	if err := output.Print(result); err != nil {
		return err
	}
	return runErr
}
