// Package executor maps planned actions onto driver calls.
//
// Actions run strictly in order. The first failing action is recorded and
// aborts the rest of the batch; unsupported actions are recorded as skipped.
package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/supremehyo/appium-mcp-claude-android/internal/driver"
	"github.com/supremehyo/appium-mcp-claude-android/internal/logging"
	"github.com/supremehyo/appium-mcp-claude-android/internal/model"
)

// ErrUnresolved is returned when an action that requires an element or a
// coordinate has neither.
var ErrUnresolved = errors.New("element could not be resolved")

// AssertionError reports a found element whose text does not contain the
// expected value.
type AssertionError struct {
	Expected string
	Actual   string
}

func (e *AssertionError) Error() string {
	return fmt.Sprintf("expected '%s' in '%s'", e.Expected, e.Actual)
}

// Timing holds every pause the executor makes.
type Timing struct {
	KeyboardSettle    time.Duration // after hiding the keyboard before retrying a lookup
	InputSettle       time.Duration // after typing before auto-hiding the keyboard
	ElementWait       time.Duration // extra lookup time for input_text and assert_text
	ElementPoll       time.Duration
	SwipeDuration     time.Duration
	LongPressDuration time.Duration
	ScrollHold        time.Duration
}

// DefaultTiming returns the production pauses.
func DefaultTiming() Timing {
	return Timing{
		KeyboardSettle:    500 * time.Millisecond,
		InputSettle:       300 * time.Millisecond,
		ElementPoll:       250 * time.Millisecond,
		SwipeDuration:     400 * time.Millisecond,
		LongPressDuration: 1000 * time.Millisecond,
		ScrollHold:        300 * time.Millisecond,
	}
}

// Text-input classes tried when input_text has no target.
var textInputClasses = []string{"android.widget.EditText", "XCUIElementTypeTextField"}

// Executor runs action batches against a borrowed session.
type Executor struct {
	timing Timing
	log    zerolog.Logger
	sleep  func(context.Context, time.Duration)
	now    func() time.Time
}

// Option configures an Executor.
type Option func(*Executor)

// WithSleep replaces the pause function, e.g. with a recorder in tests.
func WithSleep(fn func(context.Context, time.Duration)) Option {
	return func(e *Executor) { e.sleep = fn }
}

// WithClock replaces the clock used for element waits.
func WithClock(now func() time.Time) Option {
	return func(e *Executor) { e.now = now }
}

// New returns an executor with the given timing.
func New(timing Timing, opts ...Option) *Executor {
	e := &Executor{
		timing: timing,
		log:    logging.For("executor"),
		sleep:  sleepCtx,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// Execute runs actions in order against sess, resolving node_index locators
// against nodes. It returns the ledger of every attempted action; on failure
// the ledger ends with the failing action and the error is returned too.
func (e *Executor) Execute(ctx context.Context, sess driver.Session, nodes []model.NodeSnapshot, actions []model.PlannedAction) (model.Ledger, error) {
	if sess == nil {
		return nil, driver.ErrNoSession
	}
	t := turn{sess: sess, nodes: nodes}
	ledger := make(model.Ledger, 0, len(actions))

	for _, a := range actions {
		desc := a.Describe()
		kind := a.Kind()
		if kind == model.ActionUnsupported {
			e.log.Warn().Str("action", a.Name).Msg("skipping unsupported action")
			ledger = append(ledger, model.Outcome{Status: model.StatusSkip, Action: desc})
			continue
		}

		e.log.Info().Str("action", desc).Msg("executing")
		if err := e.dispatch(ctx, t, kind, a); err != nil {
			e.log.Error().Err(err).Str("action", desc).Msg("action failed")
			ledger = append(ledger, model.Outcome{Status: model.StatusError, Action: desc, Reason: err.Error()})
			return ledger, fmt.Errorf("%s: %w", desc, err)
		}
		ledger = append(ledger, model.Outcome{Status: model.StatusOK, Action: desc})
	}
	return ledger, nil
}

// ExecuteOne runs a single action and returns its outcome.
func (e *Executor) ExecuteOne(ctx context.Context, sess driver.Session, nodes []model.NodeSnapshot, a model.PlannedAction) (model.Outcome, error) {
	ledger, err := e.Execute(ctx, sess, nodes, []model.PlannedAction{a})
	if len(ledger) == 0 {
		return model.Outcome{Status: model.StatusError, Action: a.Describe(), Reason: fmt.Sprint(err)}, err
	}
	return ledger[0], err
}

func (e *Executor) dispatch(ctx context.Context, t turn, kind model.ActionKind, a model.PlannedAction) error {
	switch kind {
	case model.ActionTap:
		return e.tap(ctx, t, a)
	case model.ActionInputText:
		return e.inputText(ctx, t, a)
	case model.ActionWait:
		secs := model.ParseSeconds(a.Value, 1.0)
		e.sleep(ctx, time.Duration(secs*float64(time.Second)))
		return nil
	case model.ActionAssertText:
		return e.assertText(ctx, t, a)
	case model.ActionSwipe:
		return e.swipe(ctx, t, a)
	case model.ActionLongPress:
		return e.longPress(ctx, t, a)
	case model.ActionBack:
		return t.sess.Back(ctx)
	case model.ActionHideKeyboard:
		e.hideKeyboard(ctx, t.sess)
		return nil
	case model.ActionScrollDown:
		return e.scroll(ctx, t, 0.8, 0.2)
	case model.ActionScrollUp:
		return e.scroll(ctx, t, 0.2, 0.8)
	}
	return fmt.Errorf("no handler for %s", kind)
}

// point picks a gesture coordinate: the action value, then the resolved
// fallback, then a fallback stashed in metadata.
func point(a model.PlannedAction, res Resolution) (model.Point, bool) {
	if p, ok := model.ParseCoordinates(a.Value); ok {
		return p, true
	}
	if res.Fallback != nil {
		return *res.Fallback, true
	}
	if v, ok := a.Meta(model.MetaFallbackCoordinates); ok {
		return model.ParseCoordinates(v)
	}
	return model.Point{}, false
}

// tap is best effort: with nothing to tap it logs and succeeds.
func (e *Executor) tap(ctx context.Context, t turn, a model.PlannedAction) error {
	res, err := e.resolve(ctx, t, a, false)
	if err != nil {
		return err
	}
	if res.Found() {
		return res.Element.Click(ctx)
	}
	p, ok := point(a, res)
	if !ok {
		e.log.Error().Str("action", a.Describe()).Msg("tap failed: no locator or coordinates available")
		return nil
	}
	return t.sess.Perform(ctx, driver.Tap(p))
}

func (e *Executor) inputText(ctx context.Context, t turn, a model.PlannedAction) error {
	res, err := e.resolve(ctx, t, a, true)
	if err != nil {
		return err
	}
	el := res.Element
	if el == nil {
		el = e.focusedInput(ctx, t.sess)
	}
	if el == nil {
		return fmt.Errorf("input_text: %w", ErrUnresolved)
	}

	if err := el.Clear(ctx); err != nil {
		return fmt.Errorf("clear: %w", err)
	}
	if text := a.StringValue(); text != "" {
		if err := el.SendKeys(ctx, text); err != nil {
			return fmt.Errorf("send keys: %w", err)
		}
	}
	if a.MetaBool(model.MetaAutoHideKeyboard, true) {
		e.sleep(ctx, e.timing.InputSettle)
		e.hideKeyboard(ctx, t.sess)
	}
	return nil
}

// focusedInput falls back to the focused element, then the first text
// input on screen.
func (e *Executor) focusedInput(ctx context.Context, sess driver.Session) driver.Element {
	if el, err := sess.ActiveElement(ctx); err == nil && el != nil {
		e.log.Info().Msg("using active element for input")
		return el
	} else if err != nil {
		e.log.Debug().Err(err).Msg("no active element")
	}
	for _, class := range textInputClasses {
		el, err := e.find(ctx, sess, model.StrategyClassName, class)
		if err != nil {
			e.log.Debug().Err(err).Str("class", class).Msg("text input lookup failed")
			continue
		}
		if el != nil {
			e.log.Info().Str("class", class).Msg("using first text input as fallback")
			return el
		}
	}
	return nil
}

func (e *Executor) assertText(ctx context.Context, t turn, a model.PlannedAction) error {
	res, err := e.resolve(ctx, t, a, true)
	if err != nil {
		return err
	}
	if !res.Found() {
		return fmt.Errorf("assert_text: %w", ErrUnresolved)
	}
	actual, err := res.Element.Text(ctx)
	if err != nil {
		return fmt.Errorf("read text: %w", err)
	}
	return CheckText(a.StringValue(), actual)
}

// CheckText passes when the trimmed expected value is a substring of the
// trimmed actual text.
func CheckText(expected, actual string) error {
	expected = strings.TrimSpace(expected)
	actual = strings.TrimSpace(actual)
	if !strings.Contains(actual, expected) {
		return &AssertionError{Expected: expected, Actual: actual}
	}
	return nil
}

// swipe needs both endpoints; a missing one is logged, not raised.
func (e *Executor) swipe(ctx context.Context, t turn, a model.PlannedAction) error {
	start, okStart := model.ParseCoordinates(a.Value)
	var end model.Point
	okEnd := false
	if v, ok := a.Meta(model.MetaEnd); ok {
		end, okEnd = model.ParseCoordinates(v)
	}
	if !okStart || !okEnd {
		e.log.Error().Str("action", a.Describe()).Msg("swipe requires start and end coordinates")
		return nil
	}
	hold := time.Duration(a.MetaInt(model.MetaDurationMS, int(e.timing.SwipeDuration.Milliseconds()))) * time.Millisecond
	return t.sess.Perform(ctx, driver.Drag(start, end, hold))
}

func (e *Executor) longPress(ctx context.Context, t turn, a model.PlannedAction) error {
	res, err := e.resolve(ctx, t, a, false)
	if err != nil {
		return err
	}
	var p model.Point
	if res.Found() {
		rect, err := res.Element.Rect(ctx)
		if err != nil {
			return fmt.Errorf("element rect: %w", err)
		}
		p = rect.Center()
	} else {
		var ok bool
		if p, ok = point(a, res); !ok {
			return fmt.Errorf("long_press: %w", ErrUnresolved)
		}
	}
	hold := time.Duration(a.MetaInt(model.MetaDurationMS, int(e.timing.LongPressDuration.Milliseconds()))) * time.Millisecond
	return t.sess.Perform(ctx, driver.Press(p, hold))
}

// scroll drags vertically through the horizontal center of the screen
// between the given fractions of its height.
func (e *Executor) scroll(ctx context.Context, t turn, from, to float64) error {
	w, h, err := t.sess.WindowSize(ctx)
	if err != nil {
		return err
	}
	x := w / 2
	start := model.Point{X: x, Y: int(float64(h) * from)}
	end := model.Point{X: x, Y: int(float64(h) * to)}
	return t.sess.Perform(ctx, driver.Drag(start, end, e.timing.ScrollHold))
}
