// Package output prints command results as YAML or JSON.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/supremehyo/appium-mcp-claude-android/internal/device"
	"github.com/supremehyo/appium-mcp-claude-android/internal/model"
	"gopkg.in/yaml.v3"
)

// Format represents the output format.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// OutputFormat is the current output format, set by the root command's --format flag.
var OutputFormat Format = FormatYAML

// PrettyOutput enables pretty-printing for JSON output.
var PrettyOutput bool

// Out receives printed results.
var Out io.Writer = os.Stdout

// ElementsResult is the output of `elements` and get_screen_elements.
type ElementsResult struct {
	Device   string              `yaml:"device,omitempty"  json:"device,omitempty"`
	Source   string              `yaml:"source,omitempty"  json:"source,omitempty"`
	TS       int64               `yaml:"ts"                json:"ts"`
	Count    int                 `yaml:"count"             json:"count"`
	Elements []model.IndexedNode `yaml:"elements"          json:"elements"`
	Changes  *model.NodeDiff     `yaml:"changes,omitempty" json:"changes,omitempty"`
}

// NewElementsResult indexes nodes 1-based in snapshot order.
func NewElementsResult(device string, ts int64, nodes []model.NodeSnapshot) ElementsResult {
	indexed := model.Indexed(nodes)
	if indexed == nil {
		indexed = []model.IndexedNode{}
	}
	return ElementsResult{Device: device, TS: ts, Count: len(indexed), Elements: indexed}
}

// Filter keeps the elements matching f, with their original indexes.
func (r *ElementsResult) Filter(f model.NodeFilter) {
	r.Elements = model.FilterNodes(r.Elements, f)
	r.Count = len(r.Elements)
}

// ActionResult is the output of `exec` and execute_action.
type ActionResult struct {
	OK     bool   `yaml:"ok"              json:"ok"`
	Action string `yaml:"action"          json:"action"`
	Error  string `yaml:"error,omitempty" json:"error,omitempty"`
}

// RunResult is the output of `run` and run_scenario.
type RunResult struct {
	RunID    string   `yaml:"run_id,omitempty"   json:"run_id,omitempty"`
	Request  string   `yaml:"request"            json:"request"`
	OK       bool     `yaml:"ok"                 json:"ok"`
	Turns    int      `yaml:"turns"              json:"turns"`
	Thoughts []string `yaml:"thoughts,omitempty" json:"thoughts,omitempty"`
	Actions  []string `yaml:"actions"            json:"actions"`
	Ledger   []string `yaml:"ledger"             json:"ledger"`
	Error    string   `yaml:"error,omitempty"    json:"error,omitempty"`
}

// NewRunResult describes every attempted action and ledger entry.
func NewRunResult(request string, turns int, thoughts []string, actions []model.PlannedAction, ledger model.Ledger, err error) RunResult {
	r := RunResult{
		Request:  request,
		OK:       err == nil,
		Turns:    turns,
		Thoughts: thoughts,
		Actions:  make([]string, len(actions)),
		Ledger:   ledger.Lines(),
	}
	for i, a := range actions {
		r.Actions[i] = a.Describe()
	}
	if err != nil {
		r.Error = err.Error()
	}
	return r
}

// DevicesResult is the output of `devices` and list_devices.
type DevicesResult struct {
	Count   int              `yaml:"count"   json:"count"`
	Devices []device.Listing `yaml:"devices" json:"devices"`
}

// ServerResult is the output of the appium server commands.
type ServerResult struct {
	Status  string `yaml:"status"             json:"status"`
	URL     string `yaml:"url"                json:"url"`
	LogFile string `yaml:"log_file,omitempty" json:"log_file,omitempty"`
}

// Print serializes v to Out in the current output format.
func Print(v interface{}) error {
	return Fprint(Out, v)
}

// Fprint serializes v to w in the current output format.
func Fprint(w io.Writer, v interface{}) error {
	switch OutputFormat {
	case FormatJSON:
		if PrettyOutput {
			return PrintPrettyJSON(w, v)
		}
		return PrintJSON(w, v)
	case FormatYAML:
		return PrintYAML(w, v)
	default:
		return fmt.Errorf("unsupported output format: %s", OutputFormat)
	}
}

// PrintJSON serializes v to w as compact single-line JSON.
func PrintJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

// PrintPrettyJSON serializes v to w as indented JSON.
func PrintPrettyJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

// PrintYAML serializes v to w as YAML.
func PrintYAML(w io.Writer, v interface{}) error {
	enc := yaml.NewEncoder(w)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("yaml encode: %w", err)
	}
	return enc.Close()
}
