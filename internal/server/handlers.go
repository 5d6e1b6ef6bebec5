package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/supremehyo/appium-mcp-claude-android/internal/appium"
	"github.com/supremehyo/appium-mcp-claude-android/internal/bridge"
	"github.com/supremehyo/appium-mcp-claude-android/internal/driver"
	"github.com/supremehyo/appium-mcp-claude-android/internal/model"
	"github.com/supremehyo/appium-mcp-claude-android/internal/output"
	"github.com/supremehyo/appium-mcp-claude-android/internal/store"
	"gopkg.in/yaml.v3"
)

const (
	defaultMaxSteps     = 10
	defaultHistoryLimit = 10
)

// resultToText serializes a tool result to YAML for the MCP response.
func resultToText(v interface{}) string {
	b, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%+v", v)
	}
	return string(b)
}

// toolError reports a failed tool call, with connection hints when the
// device could not be reached.
func (s *Server) toolError(tool string, err error) *mcp.CallToolResult {
	text := fmt.Sprintf("%s failed: %v", tool, err)
	if bridge.IsConnectionError(err) || errors.Is(err, driver.ErrNoSession) {
		text += fmt.Sprintf(`

Make sure:
1. Appium server is running (appium --base-path /)
2. Device/emulator is connected (adb devices)
3. Config file exists at %s`, s.opts.ConfigPath)
	}
	return mcp.NewToolResultError(text)
}

func (s *Server) handleSetupConnection(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	port := IntParam(request.GetArguments(), "port", 0)
	res, err := s.Setup(ctx, port)
	if err != nil {
		return s.toolError("setup_connection", err), nil
	}
	return mcp.NewToolResultText(resultToText(res)), nil
}

func (s *Server) handleListDevices(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	listings, err := s.adb.ListDetailed(ctx)
	if err != nil {
		return s.toolError("list_devices", err), nil
	}
	if len(listings) == 0 {
		return mcp.NewToolResultText(noDevicesText), nil
	}
	return mcp.NewToolResultText(resultToText(output.DevicesResult{Count: len(listings), Devices: listings})), nil
}

func (s *Server) handleStartServer(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	port := IntParam(request.GetArguments(), "port", 0)

	s.mu.Lock()
	defer s.mu.Unlock()

	mgr := s.manager(port)
	already, err := mgr.Start(ctx, s.cfg.Appium.StartTimeout)
	if err != nil {
		return s.toolError("start_server", err), nil
	}
	res := output.ServerResult{Status: serverStatus(already), URL: mgr.URL()}
	if !already {
		res.LogFile = mgr.LogFile
	}
	return mcp.NewToolResultText(resultToText(res)), nil
}

func (s *Server) handleStopServer(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	mgr := s.manager(0)
	res := output.ServerResult{URL: mgr.URL()}
	if !mgr.IsRunning(ctx) && !mgr.Owned() {
		res.Status = "not_running"
		return mcp.NewToolResultText(resultToText(res)), nil
	}
	if err := mgr.Stop(); err != nil {
		if errors.Is(err, appium.ErrNotRunning) {
			err = fmt.Errorf("server at %s was not started by this process", mgr.URL())
		}
		return s.toolError("stop_server", err), nil
	}
	res.Status = "stopped"
	return mcp.NewToolResultText(resultToText(res)), nil
}

func (s *Server) handleGetScreenElements(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	params := request.GetArguments()
	refresh := BoolParam(params, "refresh", false)
	withChanges := BoolParam(params, "changes", false)
	filter := model.NodeFilter{
		Text:  StringParam(params, "text", ""),
		Roles: splitList(StringParam(params, "roles", "")),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := s.bridgeFor(ctx)
	if err != nil {
		return s.toolError("get_screen_elements", err), nil
	}
	if err := b.Connect(ctx); err != nil {
		return s.toolError("get_screen_elements", err), nil
	}
	session := b.Session().ID()
	if refresh {
		s.cache.InvalidateSession(session)
	}
	nodes, cached, err := s.cache.ReadNodes(session, func() ([]model.NodeSnapshot, error) {
		return b.Refresh(ctx)
	})
	if err != nil {
		return s.toolError("get_screen_elements", err), nil
	}

	res := output.NewElementsResult(b.Device(), time.Now().Unix(), nodes)
	res.Source = "device"
	if cached {
		res.Source = "cache"
	}
	if withChanges && s.lastNodes != nil {
		diff := model.DiffNodes(s.lastNodes, nodes)
		res.Changes = &diff
	}
	s.lastNodes = nodes
	res.Filter(filter)
	var buf bytes.Buffer
	if err := output.PrintPrettyJSON(&buf, res); err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(buf.String()), nil
}

func (s *Server) handleExecuteAction(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	action, err := ActionFromArgs(request.GetArguments())
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := s.bridgeFor(ctx)
	if err != nil {
		return s.toolError("execute_action", err), nil
	}
	if action.Locator != nil && action.Locator.Strategy == model.StrategyNodeIndex && len(b.Nodes()) == 0 {
		if _, err := b.Refresh(ctx); err != nil {
			return s.toolError("execute_action", err), nil
		}
	}

	_, err = b.Execute(ctx, []model.PlannedAction{action})
	s.cache.InvalidateAll()

	res := output.ActionResult{OK: err == nil, Action: action.Describe()}
	if err != nil {
		if bridge.IsConnectionError(err) {
			return s.toolError("execute_action", err), nil
		}
		res.Error = err.Error()
		return mcp.NewToolResultError(resultToText(res)), nil
	}
	return mcp.NewToolResultText(resultToText(res)), nil
}

func (s *Server) handleRunScenario(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	params := request.GetArguments()
	scenario := StringParam(params, "scenario", "")
	if scenario == "" {
		return mcp.NewToolResultError("scenario is required"), nil
	}
	maxSteps := IntParam(params, "max_steps", defaultMaxSteps)

	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := s.bridgeFor(ctx)
	if err != nil {
		return s.toolError("run_scenario", err), nil
	}

	run := store.NewRun(scenario, b.Device())
	res, err := b.RunInstruction(ctx, scenario, maxSteps)
	s.cache.InvalidateAll()

	run.Turns = res.Turns
	run.Actions = res.Actions
	run.Ledger = res.Ledger
	run.Finish(err)

	out := output.NewRunResult(scenario, res.Turns, res.Thoughts, res.Actions, res.Ledger, err)
	out.RunID = s.record(ctx, run)
	if err != nil {
		return mcp.NewToolResultError(resultToText(out)), nil
	}
	return mcp.NewToolResultText(resultToText(out)), nil
}

// record stores a finished run. Store failures are logged; the run itself
// already happened.
func (s *Server) record(ctx context.Context, run store.Run) string {
	if s.store == nil {
		return ""
	}
	id, err := s.store.Record(ctx, run)
	if err != nil {
		s.log.Error().Err(err).Str("request", run.Request).Msg("failed to record run")
		return ""
	}
	return id
}

func (s *Server) handleRunHistory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.store == nil {
		return mcp.NewToolResultError("run history is disabled"), nil
	}
	limit := IntParam(request.GetArguments(), "limit", defaultHistoryLimit)
	runs, err := s.store.Recent(ctx, limit)
	if err != nil {
		return s.toolError("run_history", err), nil
	}
	type historyResult struct {
		Count int         `yaml:"count"`
		Runs  []store.Run `yaml:"runs"`
	}
	return mcp.NewToolResultText(resultToText(historyResult{Count: len(runs), Runs: runs})), nil
}
