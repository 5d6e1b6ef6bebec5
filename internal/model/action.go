package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Locator strategies understood by the executor.
const (
	StrategyNodeIndex          = "node_index"
	StrategyID                 = "id"
	StrategyAccessibilityID    = "accessibility_id"
	StrategyText               = "text"
	StrategyXPath              = "xpath"
	StrategyAndroidUIAutomator = "android_uiautomator"
	StrategyIOSPredicate       = "ios_predicate"
	StrategyClassName          = "class_name"
	StrategyCoordinates        = "coordinates"
)

// Locator identifies how to find an element on the device.
type Locator struct {
	Strategy string `yaml:"strategy" json:"strategy"`
	Value    string `yaml:"value"    json:"value"`
}

// UnmarshalJSON accepts a string, a number (node indices) or a two-element
// array (coordinates) as the locator value.
func (l *Locator) UnmarshalJSON(data []byte) error {
	var raw struct {
		Strategy string          `json:"strategy"`
		Value    json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	l.Strategy = raw.Strategy
	l.Value = ""
	if len(raw.Value) == 0 || string(raw.Value) == "null" {
		return nil
	}

	var v interface{}
	if err := json.Unmarshal(raw.Value, &v); err != nil {
		return fmt.Errorf("locator value: %w", err)
	}
	switch val := v.(type) {
	case string:
		l.Value = val
	case float64:
		l.Value = strconv.FormatFloat(val, 'f', -1, 64)
	case []interface{}:
		parts := make([]string, 0, len(val))
		for _, p := range val {
			parts = append(parts, fmt.Sprintf("%v", p))
		}
		l.Value = strings.Join(parts, ",")
	default:
		l.Value = fmt.Sprintf("%v", val)
	}
	return nil
}

// MarshalJSON writes node indices as numbers so plans round-trip with the
// shape planners produce.
func (l Locator) MarshalJSON() ([]byte, error) {
	type plain struct {
		Strategy string      `json:"strategy"`
		Value    interface{} `json:"value"`
	}
	p := plain{Strategy: l.Strategy, Value: l.Value}
	if l.Strategy == StrategyNodeIndex {
		if n, err := strconv.Atoi(l.Value); err == nil {
			p.Value = n
		}
	}
	return json.Marshal(p)
}

// NodeIndex returns the 1-based index of a node_index locator.
func (l Locator) NodeIndex() (int, bool) {
	if l.Strategy != StrategyNodeIndex {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(l.Value))
	if err != nil {
		return 0, false
	}
	return n, true
}

func (l Locator) String() string {
	return l.Strategy + "=" + l.Value
}

// ActionKind is the closed set of actions the executor can dispatch.
type ActionKind int

const (
	ActionUnsupported ActionKind = iota
	ActionTap
	ActionInputText
	ActionWait
	ActionAssertText
	ActionSwipe
	ActionLongPress
	ActionBack
	ActionHideKeyboard
	ActionScrollDown
	ActionScrollUp
)

var actionNames = map[ActionKind]string{
	ActionTap:          "tap",
	ActionInputText:    "input_text",
	ActionWait:         "wait",
	ActionAssertText:   "assert_text",
	ActionSwipe:        "swipe",
	ActionLongPress:    "long_press",
	ActionBack:         "back",
	ActionHideKeyboard: "hide_keyboard",
	ActionScrollDown:   "scroll_down",
	ActionScrollUp:     "scroll_up",
}

// ParseActionKind maps an action name onto its kind. Unknown names map to
// ActionUnsupported.
func ParseActionKind(name string) ActionKind {
	for k, n := range actionNames {
		if n == name {
			return k
		}
	}
	return ActionUnsupported
}

func (k ActionKind) String() string {
	if n, ok := actionNames[k]; ok {
		return n
	}
	return "unsupported"
}

// ActionNames lists the supported vocabulary in declaration order.
func ActionNames() []string {
	names := make([]string, 0, len(actionNames))
	for k := ActionTap; k <= ActionScrollUp; k++ {
		names = append(names, actionNames[k])
	}
	return names
}

// Metadata keys read by the executor.
const (
	MetaEnd                 = "end"
	MetaDurationMS          = "duration_ms"
	MetaFallbackCoordinates = "fallback_coordinates"
	MetaAutoHideKeyboard    = "auto_hide_keyboard"
	MetaReason              = "reason"
)

// PlannedAction is one unit of planner intent.
type PlannedAction struct {
	Name     string                 `yaml:"name"               json:"name"`
	Locator  *Locator               `yaml:"locator,omitempty"  json:"locator,omitempty"`
	Value    interface{}            `yaml:"value,omitempty"    json:"value,omitempty"`
	Metadata map[string]interface{} `yaml:"metadata,omitempty" json:"metadata,omitempty"`
}

// Kind returns the dispatch variant for the action name.
func (a PlannedAction) Kind() ActionKind {
	return ParseActionKind(a.Name)
}

// StringValue renders the free-form value as text. nil becomes "".
func (a PlannedAction) StringValue() string {
	switch v := a.Value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// Meta returns a metadata entry.
func (a PlannedAction) Meta(key string) (interface{}, bool) {
	if a.Metadata == nil {
		return nil, false
	}
	v, ok := a.Metadata[key]
	return v, ok
}

// MetaBool reads a boolean metadata flag, returning def when absent or not a bool.
func (a PlannedAction) MetaBool(key string, def bool) bool {
	v, ok := a.Meta(key)
	if !ok {
		return def
	}
	switch b := v.(type) {
	case bool:
		return b
	case string:
		if parsed, err := strconv.ParseBool(b); err == nil {
			return parsed
		}
	}
	return def
}

// MetaInt reads an integer metadata entry, returning def when absent or invalid.
func (a PlannedAction) MetaInt(key string, def int) int {
	v, ok := a.Meta(key)
	if !ok {
		return def
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	case string:
		if parsed, err := strconv.Atoi(strings.TrimSpace(n)); err == nil {
			return parsed
		}
	}
	return def
}

// Describe is the short form used in ledger entries, e.g. "tap(node_index=3)".
func (a PlannedAction) Describe() string {
	var parts []string
	if a.Locator != nil {
		parts = append(parts, a.Locator.String())
	}
	if v := a.StringValue(); v != "" {
		parts = append(parts, fmt.Sprintf("value=%q", v))
	}
	return a.Name + "(" + strings.Join(parts, ", ") + ")"
}

// PlanResponse is the structured planner output.
type PlanResponse struct {
	Thought  string          `yaml:"thought,omitempty" json:"thought,omitempty"`
	Actions  []PlannedAction `yaml:"actions"           json:"actions"`
	Continue bool            `yaml:"request_refresh"   json:"request_refresh"`
}

// ParsePlan decodes a planner JSON document.
func ParsePlan(data []byte) (PlanResponse, error) {
	var plan PlanResponse
	if err := json.Unmarshal(data, &plan); err != nil {
		return PlanResponse{}, fmt.Errorf("invalid plan: %w", err)
	}
	return plan, nil
}
