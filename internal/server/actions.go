package server

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/supremehyo/appium-mcp-claude-android/internal/model"
)

// Swipe defaults for execute_action when coordinates are omitted.
var (
	defaultSwipeStart = model.Point{X: 500, Y: 1000}
	defaultSwipeEnd   = model.Point{X: 500, Y: 300}
)

const defaultSwipeMS = 400

// ActionFromArgs maps execute_action arguments onto a planned action.
//
// Element actions take their target from index, text, content_desc or
// resource_id, in that order; x/y become the fallback point. For
// input_text and assert_text, text is the value and not a locator.
func ActionFromArgs(params map[string]interface{}) (model.PlannedAction, error) {
	name := strings.TrimSpace(StringParam(params, "action", ""))
	if name == "" {
		return model.PlannedAction{}, errors.New("action is required")
	}
	a := model.PlannedAction{Name: name, Metadata: map[string]interface{}{}}
	kind := a.Kind()
	if kind == model.ActionUnsupported {
		return a, fmt.Errorf("unknown action: %s (use one of %s)", name, strings.Join(model.ActionNames(), ", "))
	}

	text := StringParam(params, "text", "")
	at, hasPoint := pointParam(params, "x", "y")
	duration := IntParam(params, "duration", 0)
	if duration > 0 {
		a.Metadata[model.MetaDurationMS] = duration
	}

	switch kind {
	case model.ActionTap, model.ActionLongPress:
		a.Locator = elementLocator(params, true)
		if hasPoint {
			a.Metadata[model.MetaFallbackCoordinates] = at.String()
			if a.Locator == nil {
				a.Locator = &model.Locator{Strategy: model.StrategyCoordinates, Value: at.String()}
			}
		}
		if a.Locator == nil {
			return a, fmt.Errorf("%s needs index, text, content_desc, resource_id or x/y", name)
		}

	case model.ActionInputText:
		a.Locator = elementLocator(params, false)
		a.Value = text

	case model.ActionAssertText:
		a.Locator = elementLocator(params, false)
		if a.Locator == nil {
			return a, errors.New("assert_text needs index, content_desc or resource_id")
		}
		a.Value = text

	case model.ActionSwipe:
		if !hasPoint {
			at = defaultSwipeStart
		}
		end, ok := pointParam(params, "end_x", "end_y")
		if !ok {
			end = defaultSwipeEnd
		}
		if duration <= 0 {
			a.Metadata[model.MetaDurationMS] = defaultSwipeMS
		}
		a.Value = at.String()
		a.Metadata[model.MetaEnd] = end.String()

	case model.ActionWait:
		if duration > 0 {
			a.Value = float64(duration) / 1000
			delete(a.Metadata, model.MetaDurationMS)
		}
	}

	if len(a.Metadata) == 0 {
		a.Metadata = nil
	}
	return a, nil
}

func elementLocator(params map[string]interface{}, useText bool) *model.Locator {
	if idx := IntParam(params, "index", 0); idx > 0 {
		return &model.Locator{Strategy: model.StrategyNodeIndex, Value: strconv.Itoa(idx)}
	}
	if v := StringParam(params, "text", ""); useText && v != "" {
		return &model.Locator{Strategy: model.StrategyText, Value: v}
	}
	if v := StringParam(params, "content_desc", ""); v != "" {
		return &model.Locator{Strategy: model.StrategyAccessibilityID, Value: v}
	}
	if v := StringParam(params, "resource_id", ""); v != "" {
		return &model.Locator{Strategy: model.StrategyID, Value: v}
	}
	return nil
}

func pointParam(params map[string]interface{}, xKey, yKey string) (model.Point, bool) {
	if !HasParam(params, xKey) || !HasParam(params, yKey) {
		return model.Point{}, false
	}
	return model.Point{X: IntParam(params, xKey, 0), Y: IntParam(params, yKey, 0)}, true
}
