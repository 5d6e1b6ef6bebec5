// Package bridge runs the perceive, plan and act loop over one device
// session.
//
// A Bridge exclusively owns its session. It provides no locking: callers
// that share a Bridge must serialize their calls.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/supremehyo/appium-mcp-claude-android/internal/config"
	"github.com/supremehyo/appium-mcp-claude-android/internal/device"
	"github.com/supremehyo/appium-mcp-claude-android/internal/driver"
	"github.com/supremehyo/appium-mcp-claude-android/internal/executor"
	"github.com/supremehyo/appium-mcp-claude-android/internal/logging"
	"github.com/supremehyo/appium-mcp-claude-android/internal/model"
	"github.com/supremehyo/appium-mcp-claude-android/internal/planner"
	"github.com/supremehyo/appium-mcp-claude-android/internal/prompt"
	"github.com/supremehyo/appium-mcp-claude-android/internal/snapshot"
)

// ConnectionError is returned when every connection attempt failed.
type ConnectionError struct {
	Attempts int
	Last     error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("failed to connect after %d attempts: %v", e.Attempts, e.Last)
}

func (e *ConnectionError) Unwrap() error { return e.Last }

// DumpSource produces an accessibility dump for a device ("" on failure).
type DumpSource interface {
	Dump(ctx context.Context, udid string) string
}

// Options are the loop's fixed, injectable parameters.
type Options struct {
	Endpoint        string
	Capabilities    map[string]interface{}
	UseDump         bool
	Dump            DumpSource
	MaxTurns        int
	HistorySize     int
	NodeLimit       int
	ConnectAttempts int
	ConnectDelay    time.Duration
}

// DefaultOptions mirrors the loop defaults of config.Default.
func DefaultOptions() Options {
	loop := config.Default().Loop
	return Options{
		MaxTurns:        loop.MaxTurns,
		HistorySize:     loop.HistorySize,
		NodeLimit:       loop.NodeLimit,
		ConnectAttempts: loop.ConnectAttempts,
		ConnectDelay:    loop.ConnectDelay,
	}
}

// Result is everything one RunInstruction call attempted.
type Result struct {
	Request  string                `yaml:"request"            json:"request"`
	Turns    int                   `yaml:"turns"              json:"turns"`
	Thoughts []string              `yaml:"thoughts,omitempty" json:"thoughts,omitempty"`
	Actions  []model.PlannedAction `yaml:"actions"            json:"actions"`
	Ledger   model.Ledger          `yaml:"ledger"             json:"ledger"`
}

// Bridge drives one device session.
type Bridge struct {
	opts      Options
	connector driver.Connector
	planner   planner.Planner
	prompts   *prompt.Builder
	exec      *executor.Executor
	sleep     func(context.Context, time.Duration)
	log       zerolog.Logger

	session driver.Session
	nodes   []model.NodeSnapshot
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithSleep replaces the pause between connection attempts.
func WithSleep(fn func(context.Context, time.Duration)) Option {
	return func(b *Bridge) { b.sleep = fn }
}

// WithExecutor replaces the action executor.
func WithExecutor(e *executor.Executor) Option {
	return func(b *Bridge) { b.exec = e }
}

// New returns a disconnected bridge.
func New(opts Options, connector driver.Connector, p planner.Planner, options ...Option) *Bridge {
	def := DefaultOptions()
	if opts.MaxTurns <= 0 {
		opts.MaxTurns = def.MaxTurns
	}
	if opts.HistorySize < 0 {
		opts.HistorySize = def.HistorySize
	}
	if opts.NodeLimit <= 0 {
		opts.NodeLimit = def.NodeLimit
	}
	if opts.ConnectAttempts <= 0 {
		opts.ConnectAttempts = def.ConnectAttempts
	}
	if opts.ConnectDelay < 0 {
		opts.ConnectDelay = 0
	}

	b := &Bridge{
		opts:      opts,
		connector: connector,
		planner:   p,
		prompts:   prompt.NewBuilder(prompt.ContextFromCapabilities(opts.Capabilities), opts.NodeLimit),
		exec:      executor.New(executor.DefaultTiming()),
		sleep:     sleepCtx,
		log:       logging.For("bridge"),
	}
	for _, o := range options {
		o(b)
	}
	return b
}

// FromConfig wires a bridge from a loaded configuration: the WebDriver
// connector, the configured planner, executor timing and the adb dump
// source.
func FromConfig(cfg config.Config, connector driver.Connector) (*Bridge, error) {
	nodeLimit := cfg.Loop.NodeLimit
	if nodeLimit <= 0 {
		nodeLimit = prompt.DefaultNodeLimit
	}
	p, err := planner.New(cfg.Planner, nodeLimit)
	if err != nil {
		return nil, err
	}
	if connector == nil {
		connector = driver.NewWebDriver(nil)
	}

	timing := executor.DefaultTiming()
	timing.KeyboardSettle = cfg.Loop.KeyboardSettle
	timing.InputSettle = cfg.Loop.InputSettle
	timing.ElementWait = cfg.Loop.ElementWait

	opts := Options{
		Endpoint:        cfg.ServerURL,
		Capabilities:    cfg.Capabilities,
		UseDump:         cfg.UseAccessibilityDump,
		MaxTurns:        cfg.Loop.MaxTurns,
		HistorySize:     cfg.Loop.HistorySize,
		NodeLimit:       nodeLimit,
		ConnectAttempts: cfg.Loop.ConnectAttempts,
		ConnectDelay:    cfg.Loop.ConnectDelay,
	}
	if opts.UseDump {
		opts.Dump = device.NewADB(cfg.ADBBinary)
	}
	return New(opts, connector, p, WithExecutor(executor.New(timing))), nil
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

// Session returns the current session, nil when disconnected.
func (b *Bridge) Session() driver.Session {
	return b.session
}

// Nodes returns the most recent snapshot.
func (b *Bridge) Nodes() []model.NodeSnapshot {
	return b.nodes
}

// Options returns the effective options.
func (b *Bridge) Options() Options {
	return b.opts
}

// Connect reuses a live session or opens a new one, retrying up to
// ConnectAttempts times with ConnectDelay between attempts.
func (b *Bridge) Connect(ctx context.Context) error {
	if b.session != nil {
		if b.session.IsAlive(ctx) {
			b.log.Debug().Str("session", b.session.ID()).Msg("reusing live session")
			return nil
		}
		b.log.Warn().Str("session", b.session.ID()).Msg("session is stale, reconnecting")
		if err := b.session.Close(ctx); err != nil {
			b.log.Debug().Err(err).Msg("closing stale session failed")
		}
		b.session = nil
	}

	b.log.Info().Str("endpoint", b.opts.Endpoint).Msg("connecting to appium server")
	var last error
	for attempt := 1; attempt <= b.opts.ConnectAttempts; attempt++ {
		sess, err := b.connector.Connect(ctx, b.opts.Endpoint, b.opts.Capabilities)
		if err == nil {
			b.session = sess
			b.log.Info().Str("session", sess.ID()).Int("attempt", attempt).Msg("connected")
			return nil
		}
		last = err
		b.log.Warn().Err(err).Int("attempt", attempt).Int("max", b.opts.ConnectAttempts).Msg("connection attempt failed")
		if attempt < b.opts.ConnectAttempts {
			b.sleep(ctx, b.opts.ConnectDelay)
		}
		if ctx.Err() != nil {
			last = ctx.Err()
			break
		}
	}
	b.log.Error().Err(last).Int("attempts", b.opts.ConnectAttempts).Msg("all connection attempts failed")
	return &ConnectionError{Attempts: b.opts.ConnectAttempts, Last: last}
}

// Disconnect closes the session, if any.
func (b *Bridge) Disconnect(ctx context.Context) error {
	if b.session == nil {
		return nil
	}
	b.log.Info().Str("session", b.session.ID()).Msg("closing session")
	err := b.session.Close(ctx)
	b.session = nil
	b.nodes = nil
	return err
}

// CollectNodes captures one snapshot. With the dump source enabled a
// non-empty dump wins; otherwise the session's UI tree is parsed. The
// fallback applies to this call only.
func (b *Bridge) CollectNodes(ctx context.Context) ([]model.NodeSnapshot, error) {
	if b.opts.UseDump && b.opts.Dump != nil {
		if nodes := snapshot.ParseDump(b.opts.Dump.Dump(ctx, b.Device())); len(nodes) > 0 {
			b.log.Debug().Int("nodes", len(nodes)).Msg("collected nodes from accessibility dump")
			return nodes, nil
		}
		b.log.Warn().Msg("accessibility dump empty, falling back to UI tree")
	}
	if b.session == nil {
		return nil, driver.ErrNoSession
	}
	src, err := b.session.Source(ctx)
	if err != nil {
		return nil, fmt.Errorf("read UI tree: %w", err)
	}
	nodes := snapshot.ParseTree(src)
	b.log.Debug().Int("nodes", len(nodes)).Msg("collected nodes from UI tree")
	return nodes, nil
}

// Device is the udid capability of the session, "" when unset.
func (b *Bridge) Device() string {
	return config.CapabilityString(b.opts.Capabilities, "udid")
}

// Refresh connects and replaces the current snapshot.
func (b *Bridge) Refresh(ctx context.Context) ([]model.NodeSnapshot, error) {
	if err := b.Connect(ctx); err != nil {
		return nil, err
	}
	nodes, err := b.CollectNodes(ctx)
	if err != nil {
		return nil, err
	}
	b.nodes = nodes
	return nodes, nil
}

// Execute connects and runs actions against the current snapshot.
func (b *Bridge) Execute(ctx context.Context, actions []model.PlannedAction) (model.Ledger, error) {
	if err := b.Connect(ctx); err != nil {
		return nil, err
	}
	return b.exec.Execute(ctx, b.session, b.nodes, actions)
}

// RunInstruction connects, then plans and executes up to maxTurns batches
// (the configured default when maxTurns <= 0). It stops early when a plan
// does not ask for another turn. On failure the partial result is returned
// together with the error.
func (b *Bridge) RunInstruction(ctx context.Context, request string, maxTurns int) (Result, error) {
	if maxTurns <= 0 {
		maxTurns = b.opts.MaxTurns
	}
	res := Result{Request: request}
	timer := logging.Start(b.log, "run_instruction")

	if _, err := b.Refresh(ctx); err != nil {
		timer.End(err)
		return res, err
	}

	var history []string
	for turn := 1; turn <= maxTurns; turn++ {
		b.log.Info().Int("turn", turn).Int("nodes", len(b.nodes)).Msg("planning turn")
		text := b.prompts.Build(request, b.nodes, model.RecentHistory(history, b.opts.HistorySize))
		plan, err := b.planner.Plan(ctx, planner.Request{Prompt: text, UserRequest: request, Nodes: b.nodes})
		if err != nil {
			err = fmt.Errorf("turn %d: plan: %w", turn, err)
			timer.End(err)
			return res, err
		}
		b.log.Info().Int("turn", turn).Int("actions", len(plan.Actions)).Str("thought", plan.Thought).Msg("planner produced actions")
		if plan.Thought != "" {
			res.Thoughts = append(res.Thoughts, plan.Thought)
		}

		ledger, err := b.exec.Execute(ctx, b.session, b.nodes, plan.Actions)
		history = append(history, ledger.Lines()...)
		res.Ledger = append(res.Ledger, ledger...)
		res.Actions = append(res.Actions, plan.Actions[:len(ledger)]...)
		res.Turns = turn
		if err != nil {
			err = fmt.Errorf("turn %d: %w", turn, err)
			timer.End(err)
			return res, err
		}

		if !plan.Continue {
			b.log.Info().Int("turn", turn).Msg("planner requested stop")
			break
		}
		if turn == maxTurns {
			b.log.Info().Int("max_turns", maxTurns).Msg("turn limit reached")
			break
		}
		nodes, err := b.CollectNodes(ctx)
		if err != nil {
			err = fmt.Errorf("turn %d: refresh: %w", turn, err)
			timer.End(err)
			return res, err
		}
		if diff := model.DiffNodes(b.nodes, nodes); diff.Empty() {
			b.log.Warn().Int("turn", turn).Msg("screen unchanged after actions")
		} else {
			b.log.Debug().Int("turn", turn).Str("changes", diff.Summary()).Msg("screen changed")
		}
		b.nodes = nodes
	}
	timer.End(nil)
	return res, nil
}

// IsConnectionError reports whether err came from exhausted connection
// attempts.
func IsConnectionError(err error) bool {
	var ce *ConnectionError
	return errors.As(err, &ce)
}
