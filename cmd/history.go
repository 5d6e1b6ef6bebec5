package cmd

import (
	"errors"

	"github.com/spf13/cobra"
	"github.com/supremehyo/appium-mcp-claude-android/internal/output"
	"github.com/supremehyo/appium-mcp-claude-android/internal/store"
)

// HistoryResult lists recorded runs.
type HistoryResult struct {
	Count int         `yaml:"count" json:"count"`
	Runs  []store.Run `yaml:"runs"  json:"runs"`
}

var historyCmd = &cobra.Command{
	Use:   "history [run-id]",
	Short: "Show recorded instruction runs",
	Long: `List recent runs from the history database, newest first, or show one run by id.

Examples:
  appium-bridge history
  appium-bridge history --limit 3
  appium-bridge history 6f1c2e0a-...`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().Int("limit", 10, "Number of runs to list")
}

func runHistory(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Store.Path == "" {
		return errors.New("run history is disabled (store.path is empty)")
	}
	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer st.Close()

	if len(args) == 1 {
		run, err := st.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return output.Print(run)
	}

	runs, err := st.Recent(cmd.Context(), limit)
	if err != nil {
		return err
	}
	if runs == nil {
		runs = []store.Run{}
	}
	return output.Print(HistoryResult{Count: len(runs), Runs: runs})
}
