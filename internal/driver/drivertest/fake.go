// Package drivertest provides an in-memory driver.Session that records
// every call, for tests of packages built on the driver.
package drivertest

import (
	"context"
	"fmt"
	"sync"

	"github.com/supremehyo/appium-mcp-claude-android/internal/driver"
)

// Element is a scripted element.
type Element struct {
	IDValue   string
	TextValue string
	RectValue driver.Rect

	ClickErr error

	mu     sync.Mutex
	Clicks int
	Clears int
	Keys   []string
}

func (e *Element) ID() string { return e.IDValue }

func (e *Element) Click(context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Clicks++
	return e.ClickErr
}

func (e *Element) Clear(context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Clears++
	return nil
}

func (e *Element) SendKeys(_ context.Context, text string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Keys = append(e.Keys, text)
	return nil
}

func (e *Element) Text(context.Context) (string, error) { return e.TextValue, nil }

func (e *Element) Rect(context.Context) (driver.Rect, error) { return e.RectValue, nil }

// Lookup is one recorded Find call.
type Lookup struct {
	Strategy string
	Value    string
}

// Session is a scripted driver.Session. Elements maps "strategy=value" to
// the element Find returns; anything else misses with ErrNoSuchElement
// unless FindFunc is set.
type Session struct {
	SessionID  string
	Alive      bool
	PageSource string
	SourceErr  error

	Elements map[string]driver.Element
	FindFunc func(strategy, value string) (driver.Element, error)
	Active   driver.Element

	KeyboardShown   bool
	KeyboardErr     error
	HideKeyboardErr error
	Width, Height   int
	PerformErr      error
	BackErr         error
	PNG             []byte

	mu                sync.Mutex
	Lookups           []Lookup
	Gestures          []driver.Gesture
	HideKeyboardCalls int
	BackCalls         int
	Closed            bool
}

// NewSession returns an alive session with a 1080x2340 screen.
func NewSession(id string) *Session {
	return &Session{
		SessionID: id,
		Alive:     true,
		Elements:  map[string]driver.Element{},
		Width:     1080,
		Height:    2340,
	}
}

// Key builds the Elements map key.
func Key(strategy, value string) string {
	return strategy + "=" + value
}

func (s *Session) ID() string { return s.SessionID }

func (s *Session) IsAlive(context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Alive && !s.Closed
}

func (s *Session) Source(context.Context) (string, error) {
	return s.PageSource, s.SourceErr
}

func (s *Session) Find(_ context.Context, strategy, value string) (driver.Element, error) {
	s.mu.Lock()
	s.Lookups = append(s.Lookups, Lookup{Strategy: strategy, Value: value})
	s.mu.Unlock()

	if s.FindFunc != nil {
		return s.FindFunc(strategy, value)
	}
	if _, ok := driver.Using(strategy); !ok {
		return nil, fmt.Errorf("%w: %s", driver.ErrUnsupportedStrategy, strategy)
	}
	if el, ok := s.Elements[Key(strategy, value)]; ok {
		return el, nil
	}
	return nil, driver.ErrNoSuchElement
}

func (s *Session) ActiveElement(context.Context) (driver.Element, error) {
	if s.Active == nil {
		return nil, driver.ErrNoSuchElement
	}
	return s.Active, nil
}

func (s *Session) Perform(_ context.Context, g driver.Gesture) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Gestures = append(s.Gestures, g)
	return s.PerformErr
}

func (s *Session) WindowSize(context.Context) (int, int, error) {
	return s.Width, s.Height, nil
}

func (s *Session) HideKeyboard(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.HideKeyboardCalls++
	if s.HideKeyboardErr == nil {
		s.KeyboardShown = false
	}
	return s.HideKeyboardErr
}

func (s *Session) IsKeyboardShown(context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.KeyboardShown, s.KeyboardErr
}

func (s *Session) Back(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.BackCalls++
	return s.BackErr
}

func (s *Session) Screenshot(context.Context) ([]byte, error) {
	return s.PNG, nil
}

func (s *Session) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Closed = true
	return nil
}

// LookupCount returns how many Find calls were made.
func (s *Session) LookupCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Lookups)
}
