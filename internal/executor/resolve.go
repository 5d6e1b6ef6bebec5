package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/supremehyo/appium-mcp-claude-android/internal/driver"
	"github.com/supremehyo/appium-mcp-claude-android/internal/model"
)

// Resolution is the outcome of resolving an action's locator. A zero
// Resolution means "not found, proceed"; lookup failures that should abort
// are returned as errors instead.
type Resolution struct {
	Element  driver.Element
	Fallback *model.Point // center of a referenced node that has no derivable locator
}

// Found reports whether an element was resolved.
func (r Resolution) Found() bool {
	return r.Element != nil
}

// turn is what one Execute call borrows from the control loop.
type turn struct {
	sess  driver.Session
	nodes []model.NodeSnapshot
}

// resolve maps the action's locator onto an element. wait extends the lookup
// up to Timing.ElementWait.
func (e *Executor) resolve(ctx context.Context, t turn, a model.PlannedAction, wait bool) (Resolution, error) {
	loc := a.Locator
	if loc == nil || loc.Strategy == "" {
		return Resolution{}, nil
	}

	switch loc.Strategy {
	case model.StrategyCoordinates:
		if p, ok := model.ParseCoordinates(loc.Value); ok {
			return Resolution{Fallback: &p}, nil
		}
		return Resolution{}, nil

	case model.StrategyNodeIndex:
		idx, ok := loc.NodeIndex()
		if !ok {
			e.log.Debug().Str("value", loc.Value).Msg("node index is not a number")
			return Resolution{}, nil
		}
		node, ok := model.NodeAt(t.nodes, idx)
		if !ok {
			e.log.Debug().Int("index", idx).Int("nodes", len(t.nodes)).Msg("node index out of range")
			return Resolution{}, nil
		}
		pref, ok := node.PreferredLocator()
		if !ok {
			if p, ok := node.Bounds.Center(); ok {
				return Resolution{Fallback: &p}, nil
			}
			return Resolution{}, nil
		}
		el, err := e.lookup(ctx, t.sess, pref, wait)
		return Resolution{Element: el}, err

	default:
		el, err := e.lookup(ctx, t.sess, *loc, wait)
		return Resolution{Element: el}, err
	}
}

// lookup finds one element, hiding the keyboard and retrying exactly once
// when the first attempt misses while the keyboard is up.
func (e *Executor) lookup(ctx context.Context, sess driver.Session, loc model.Locator, wait bool) (driver.Element, error) {
	if loc.Value == "" {
		return nil, nil
	}
	strategy, value := loc.Strategy, loc.Value
	if strategy == model.StrategyText {
		strategy, value = model.StrategyXPath, TextXPath(loc.Value)
	}

	el, err := e.findWithWait(ctx, sess, strategy, value, wait)
	if el != nil || err != nil {
		return el, err
	}
	if !e.keyboardShown(ctx, sess) {
		return nil, nil
	}

	e.log.Info().Str("locator", loc.String()).Msg("element not found, hiding keyboard and retrying")
	e.hideKeyboard(ctx, sess)
	e.sleep(ctx, e.timing.KeyboardSettle)
	return e.find(ctx, sess, strategy, value)
}

func (e *Executor) findWithWait(ctx context.Context, sess driver.Session, strategy, value string, wait bool) (driver.Element, error) {
	el, err := e.find(ctx, sess, strategy, value)
	if el != nil || err != nil || !wait || e.timing.ElementWait <= 0 {
		return el, err
	}
	poll := e.timing.ElementPoll
	if poll <= 0 {
		poll = 250 * time.Millisecond
	}
	deadline := e.now().Add(e.timing.ElementWait)
	for e.now().Before(deadline) {
		e.sleep(ctx, poll)
		if el, err = e.find(ctx, sess, strategy, value); el != nil || err != nil {
			return el, err
		}
	}
	return nil, nil
}

// find performs one lookup. Misses and unknown strategies are "not found";
// any other driver failure is returned.
func (e *Executor) find(ctx context.Context, sess driver.Session, strategy, value string) (driver.Element, error) {
	el, err := sess.Find(ctx, strategy, value)
	switch {
	case err == nil:
		return el, nil
	case errors.Is(err, driver.ErrNoSuchElement):
		return nil, nil
	case errors.Is(err, driver.ErrUnsupportedStrategy):
		e.log.Warn().Str("strategy", strategy).Msg("unsupported locator strategy")
		return nil, nil
	default:
		return nil, fmt.Errorf("find %s=%s: %w", strategy, value, err)
	}
}

func (e *Executor) keyboardShown(ctx context.Context, sess driver.Session) bool {
	shown, err := sess.IsKeyboardShown(ctx)
	if err != nil {
		e.log.Debug().Err(err).Msg("keyboard state not supported")
		return false
	}
	return shown
}

// hideKeyboard never fails: a keyboard that is not shown is a normal outcome.
func (e *Executor) hideKeyboard(ctx context.Context, sess driver.Session) {
	if err := sess.HideKeyboard(ctx); err != nil {
		e.log.Debug().Err(err).Msg("hide keyboard failed (normal when no keyboard is shown)")
		return
	}
	e.log.Debug().Msg("keyboard hidden")
}

// TextXPath matches an element whose visible text or accessibility
// description equals value.
func TextXPath(value string) string {
	lit := xpathLiteral(value)
	return fmt.Sprintf("//*[@text=%s or @content-desc=%s]", lit, lit)
}

// xpathLiteral quotes s for XPath 1.0, which has no escape sequences.
func xpathLiteral(s string) string {
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	parts := strings.Split(s, "'")
	quoted := make([]string, 0, 2*len(parts))
	for i, p := range parts {
		if i > 0 {
			quoted = append(quoted, `"'"`)
		}
		quoted = append(quoted, "'"+p+"'")
	}
	return "concat(" + strings.Join(quoted, ", ") + ")"
}
