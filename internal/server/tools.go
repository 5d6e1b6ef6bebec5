package server

import (
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/supremehyo/appium-mcp-claude-android/internal/model"
)

func (s *Server) registerTools() {
	// setup_connection
	s.mcp.AddTool(
		mcp.NewTool("setup_connection",
			mcp.WithDescription("Start the Appium server if needed, detect the first online Android device with adb, write its capabilities to the configuration file and connect. Use this as the first step."),
			mcp.WithNumber("port", mcp.Description("Appium server port (default: 4723)")),
		),
		s.handleSetupConnection,
	)

	// list_devices
	s.mcp.AddTool(
		mcp.NewTool("list_devices",
			mcp.WithDescription("List Android devices detected by adb with UDID, status and model. Online devices include manufacturer and Android version."),
		),
		s.handleListDevices,
	)

	// start_server
	s.mcp.AddTool(
		mcp.NewTool("start_server",
			mcp.WithDescription("Start a local Appium server (base path /) unless one already answers on the port"),
			mcp.WithNumber("port", mcp.Description("Appium server port (default: 4723)")),
		),
		s.handleStartServer,
	)

	// stop_server
	s.mcp.AddTool(
		mcp.NewTool("stop_server",
			mcp.WithDescription("Stop the Appium server started by this process"),
		),
		s.handleStopServer,
	)

	// get_screen_elements
	s.mcp.AddTool(
		mcp.NewTool("get_screen_elements",
			mcp.WithDescription("List the UI elements on the device screen with 1-based index, text, content_desc, resource_id, class_name and bounds. Use the index with execute_action."),
			mcp.WithBoolean("refresh", mcp.Description("Bypass the snapshot cache")),
			mcp.WithString("text", mcp.Description("Only elements whose text, content_desc or resource_id contains this (case-insensitive)")),
			mcp.WithString("roles", mcp.Description("Comma-separated roles: btn, txt, input, img, chk, toggle, radio, list, scroll, group, or the meta-role interactive")),
			mcp.WithBoolean("changes", mcp.Description("Include elements added, removed or changed since the previous get_screen_elements call")),
		),
		s.handleGetScreenElements,
	)

	// execute_action
	s.mcp.AddTool(
		mcp.NewTool("execute_action",
			mcp.WithDescription("Execute one action on the device: "+strings.Join(model.ActionNames(), ", ")),
			mcp.WithString("action", mcp.Required(), mcp.Enum(model.ActionNames()...), mcp.Description("The action to perform")),
			mcp.WithNumber("index", mcp.Description("1-based element index from get_screen_elements")),
			mcp.WithString("text", mcp.Description("tap/long_press: element text. input_text: text to type. assert_text: expected text")),
			mcp.WithString("content_desc", mcp.Description("Content description of the target element")),
			mcp.WithString("resource_id", mcp.Description("Resource ID of the target element")),
			mcp.WithNumber("x", mcp.Description("X coordinate (tap/long_press fallback, swipe start)")),
			mcp.WithNumber("y", mcp.Description("Y coordinate (tap/long_press fallback, swipe start)")),
			mcp.WithNumber("end_x", mcp.Description("Swipe end X coordinate")),
			mcp.WithNumber("end_y", mcp.Description("Swipe end Y coordinate")),
			mcp.WithNumber("duration", mcp.Description("Duration in milliseconds for long_press, swipe and wait")),
		),
		s.handleExecuteAction,
	)

	// run_scenario
	s.mcp.AddTool(
		mcp.NewTool("run_scenario",
			mcp.WithDescription("Run a natural-language scenario: read the screen, plan actions, execute them and repeat until the planner stops or max_steps turns ran. Returns the action ledger."),
			mcp.WithString("scenario", mcp.Required(), mcp.Description("What to do, e.g. 'log in with the test account'")),
			mcp.WithNumber("max_steps", mcp.Description("Maximum planning turns (default: 10)")),
		),
		s.handleRunScenario,
	)

	// run_history
	s.mcp.AddTool(
		mcp.NewTool("run_history",
			mcp.WithDescription("List recent scenario runs with their ledgers, newest first"),
			mcp.WithNumber("limit", mcp.Description("Number of runs (default: 10)")),
		),
		s.handleRunHistory,
	)
}
