package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/supremehyo/appium-mcp-claude-android/internal/model"
	"github.com/supremehyo/appium-mcp-claude-android/internal/output"
	"github.com/supremehyo/appium-mcp-claude-android/internal/server"
	"gopkg.in/yaml.v3"
)

// DoResult is the output of a batch do command.
type DoResult struct {
	OK        bool     `yaml:"ok"              json:"ok"`
	Action    string   `yaml:"action"          json:"action"`
	Steps     int      `yaml:"steps"           json:"steps"`
	Completed int      `yaml:"completed"       json:"completed"`
	Error     string   `yaml:"error,omitempty" json:"error,omitempty"`
	Ledger    []string `yaml:"ledger"          json:"ledger"`
}

var doCmd = &cobra.Command{
	Use:   "do",
	Short: "Execute multiple actions in a batch",
	Long: `Execute a sequence of actions from a YAML list on stdin.

Each step is an action name with the exec flags as a map. Steps run in order
against one snapshot and execution stops on the first error.

Example:
  appium-bridge do <<'EOF'
  - tap: { resource_id: "com.app:id/username" }
  - input_text: { text: "alice" }
  - tap: { text: "Sign in" }
  - wait: { duration: 2000 }
  - assert_text: { resource_id: "com.app:id/greeting", text: "Welcome" }
  EOF`,
	RunE: runDo,
}

func init() {
	rootCmd.AddCommand(doCmd)
}

// parseSteps turns a YAML list of single-key step maps into actions.
func parseSteps(data []byte) ([]model.PlannedAction, error) {
	var rawSteps []map[string]map[string]interface{}
	if err := yaml.Unmarshal(data, &rawSteps); err != nil {
		return nil, fmt.Errorf("failed to parse YAML steps: %w", err)
	}
	if len(rawSteps) == 0 {
		return nil, fmt.Errorf("no steps provided, expected a YAML list of actions")
	}

	actions := make([]model.PlannedAction, 0, len(rawSteps))
	for i, step := range rawSteps {
		if len(step) != 1 {
			return nil, fmt.Errorf("step %d: expected exactly one action key, got %d", i+1, len(step))
		}
		for name, params := range step {
			if params == nil {
				params = map[string]interface{}{}
			}
			params["action"] = name
			a, err := server.ActionFromArgs(params)
			if err != nil {
				return nil, fmt.Errorf("step %d: %w", i+1, err)
			}
			actions = append(actions, a)
		}
	}
	return actions, nil
}

func runDo(cmd *cobra.Command, args []string) error {
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return fmt.Errorf("failed to read stdin: %w", err)
	}
	if len(data) == 0 {
		return fmt.Errorf("no steps provided on stdin, pipe a YAML list of actions")
	}
	actions, err := parseSteps(data)
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

	if _, err := b.Refresh(ctx); err != nil {
		return err
	}
	ledger, execErr := b.Execute(ctx, actions)

	res := DoResult{
		OK:     execErr == nil,
		Action: "do",
		Steps:  len(actions),
		Ledger: ledger.Lines(),
	}
	for _, o := range ledger {
		if o.Status != model.StatusError {
			res.Completed++
		}
	}
	if execErr != nil {
		res.Error = execErr.Error()
	}
	if err := output.Print(res); err != nil {
		return err
	}
	return execErr
}
