// Package driver defines the automation session the bridge drives and
// implements it over the WebDriver wire protocol spoken by Appium.
package driver

import (
	"context"
	"errors"

	"github.com/supremehyo/appium-mcp-claude-android/internal/model"
)

var (
	// ErrNoSuchElement is returned by Find when no element matches.
	ErrNoSuchElement = errors.New("no such element")
	// ErrNoSession is returned when the session is gone on the server side.
	ErrNoSession = errors.New("no active session")
	// ErrUnsupportedStrategy is returned by Find for unknown locator strategies.
	ErrUnsupportedStrategy = errors.New("unsupported locator strategy")
)

// Rect is an element's on-screen rectangle.
type Rect struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Center returns the midpoint of the rectangle.
func (r Rect) Center() model.Point {
	return model.Point{X: r.X + r.Width/2, Y: r.Y + r.Height/2}
}

// Element is a handle to one element found in a session.
type Element interface {
	ID() string
	Click(ctx context.Context) error
	Clear(ctx context.Context) error
	SendKeys(ctx context.Context, text string) error
	Text(ctx context.Context) (string, error)
	Rect(ctx context.Context) (Rect, error)
}

// Session is one live automation session on a device.
type Session interface {
	ID() string
	// IsAlive reports whether the session still answers.
	IsAlive(ctx context.Context) bool
	// Source returns the page source markup.
	Source(ctx context.Context) (string, error)
	// Find performs a single lookup. Misses return ErrNoSuchElement.
	Find(ctx context.Context, strategy, value string) (Element, error)
	// ActiveElement returns the element holding input focus.
	ActiveElement(ctx context.Context) (Element, error)
	Perform(ctx context.Context, g Gesture) error
	WindowSize(ctx context.Context) (width, height int, err error)
	HideKeyboard(ctx context.Context) error
	IsKeyboardShown(ctx context.Context) (bool, error)
	Back(ctx context.Context) error
	// Screenshot returns PNG bytes of the current screen.
	Screenshot(ctx context.Context) ([]byte, error)
	Close(ctx context.Context) error
}

// Connector opens sessions against an automation server.
type Connector interface {
	Connect(ctx context.Context, endpoint string, caps map[string]interface{}) (Session, error)
}

// ConnectorFunc adapts a function to Connector.
type ConnectorFunc func(ctx context.Context, endpoint string, caps map[string]interface{}) (Session, error)

// Connect calls f.
func (f ConnectorFunc) Connect(ctx context.Context, endpoint string, caps map[string]interface{}) (Session, error) {
	return f(ctx, endpoint, caps)
}

var strategyUsing = map[string]string{
	model.StrategyID:                 "id",
	model.StrategyAccessibilityID:    "accessibility id",
	model.StrategyXPath:              "xpath",
	model.StrategyAndroidUIAutomator: "-android uiautomator",
	model.StrategyIOSPredicate:       "-ios predicate string",
	model.StrategyClassName:          "class name",
}

// Using maps a locator strategy onto the WebDriver "using" value.
func Using(strategy string) (string, bool) {
	u, ok := strategyUsing[strategy]
	return u, ok
}
