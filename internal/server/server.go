// Package server exposes the bridge as Model Context Protocol tools.
//
// The server owns exactly one bridge and serializes every tool call with a
// single mutex.
package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
	"github.com/supremehyo/appium-mcp-claude-android/internal/appium"
	"github.com/supremehyo/appium-mcp-claude-android/internal/bridge"
	"github.com/supremehyo/appium-mcp-claude-android/internal/config"
	"github.com/supremehyo/appium-mcp-claude-android/internal/device"
	"github.com/supremehyo/appium-mcp-claude-android/internal/driver"
	"github.com/supremehyo/appium-mcp-claude-android/internal/logging"
	"github.com/supremehyo/appium-mcp-claude-android/internal/model"
	"github.com/supremehyo/appium-mcp-claude-android/internal/store"
	"github.com/supremehyo/appium-mcp-claude-android/internal/version"
)

// Config holds MCP server configuration.
type Config struct {
	Transport  string
	Port       int
	CacheTTL   time.Duration
	ConfigPath string
}

// Server wraps the MCP server with the bridge and the device tooling.
type Server struct {
	opts Config

	mu     sync.Mutex
	cfg    config.Config
	reload bool
	bridge *bridge.Bridge

	// lastNodes is the snapshot returned by the previous get_screen_elements.
	lastNodes []model.NodeSnapshot

	connector driver.Connector
	adb       *device.ADB
	appium    *appium.Manager
	store     *store.Store
	cache     *SnapshotCache
	mcp       *mcpserver.MCPServer
	log       zerolog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithConnector replaces the WebDriver connector.
func WithConnector(c driver.Connector) Option {
	return func(s *Server) { s.connector = c }
}

// WithADB replaces the adb client.
func WithADB(a *device.ADB) Option {
	return func(s *Server) { s.adb = a }
}

// WithAppium replaces the Appium server manager.
func WithAppium(m *appium.Manager) Option {
	return func(s *Server) { s.appium = m }
}

// WithStore records scenario runs in st.
func WithStore(st *store.Store) Option {
	return func(s *Server) { s.store = st }
}

// New creates and configures an MCP server with all tools registered. A
// missing configuration file is not an error here; tools that need a
// device connection ask for setup_connection instead.
func New(opts Config, options ...Option) (*Server, error) {
	if opts.ConfigPath == "" {
		opts.ConfigPath = config.DefaultPath
	}
	cfg, err := config.LoadOrDefault(opts.ConfigPath)
	if err != nil {
		return nil, err
	}

	s := &Server{
		opts:  opts,
		cfg:   cfg,
		cache: NewSnapshotCache(opts.CacheTTL),
		log:   logging.For("server"),
	}
	for _, o := range options {
		o(s)
	}
	if s.adb == nil {
		s.adb = device.NewADB(cfg.ADBBinary)
	}

	s.mcp = mcpserver.NewMCPServer("appium-bridge", version.Version)
	s.registerTools()
	return s, nil
}

// Serve starts the MCP server with the configured transport and watches
// the configuration file until it returns.
func (s *Server) Serve() error {
	if err := os.MkdirAll(filepath.Dir(s.opts.ConfigPath), 0o755); err != nil {
		s.log.Warn().Err(err).Msg("cannot create config directory")
	}
	if w, err := config.Watch(s.opts.ConfigPath, s.onConfigChange); err != nil {
		s.log.Warn().Err(err).Msg("config watch disabled")
	} else {
		defer w.Close()
	}
	defer s.Close(context.Background())

	s.log.Info().Str("transport", s.opts.Transport).Str("config", s.opts.ConfigPath).Msg("serving MCP tools")
	switch s.opts.Transport {
	case "", "stdio":
		return mcpserver.ServeStdio(s.mcp)
	case "streamable-http":
		httpServer := mcpserver.NewStreamableHTTPServer(s.mcp)
		return httpServer.Start(fmt.Sprintf(":%d", s.opts.Port))
	default:
		return fmt.Errorf("unsupported transport: %s (use stdio or streamable-http)", s.opts.Transport)
	}
}

// Close ends the device session and stops an Appium server this process
// started.
func (s *Server) Close(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bridge != nil {
		if err := s.bridge.Disconnect(ctx); err != nil {
			s.log.Warn().Err(err).Msg("disconnect failed")
		}
	}
	if s.appium != nil && s.appium.Owned() {
		if err := s.appium.Stop(); err != nil {
			s.log.Warn().Err(err).Msg("stopping appium failed")
		}
	}
}

// Disconnect ends the device session and leaves the Appium server running.
func (s *Server) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bridge == nil {
		return nil
	}
	return s.bridge.Disconnect(ctx)
}

// onConfigChange marks the bridge for a rebuild on the next tool call.
// Writes that leave the configuration unchanged, such as the server's own
// setup, are ignored.
func (s *Server) onConfigChange(cfg config.Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if reflect.DeepEqual(cfg, s.cfg) {
		return
	}
	s.log.Info().Msg("configuration changed, bridge will reconnect")
	s.cfg = cfg
	s.reload = true
	s.cache.InvalidateAll()
}

// bridgeFor returns the current bridge, rebuilding it from the
// configuration file when there is none or the file changed.
// The caller must hold s.mu.
func (s *Server) bridgeFor(ctx context.Context) (*bridge.Bridge, error) {
	if s.bridge != nil && !s.reload {
		return s.bridge, nil
	}
	cfg, err := config.Load(s.opts.ConfigPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config file not found: %s (run setup_connection first)", s.opts.ConfigPath)
	}
	if err != nil {
		return nil, err
	}
	return s.replaceBridge(ctx, cfg)
}

// replaceBridge closes the current bridge and builds one for cfg.
// The caller must hold s.mu.
func (s *Server) replaceBridge(ctx context.Context, cfg config.Config) (*bridge.Bridge, error) {
	if s.bridge != nil {
		if err := s.bridge.Disconnect(ctx); err != nil {
			s.log.Warn().Err(err).Msg("closing previous session failed")
		}
		s.bridge = nil
	}
	b, err := bridge.FromConfig(cfg, s.connector)
	if err != nil {
		return nil, err
	}
	s.cfg = cfg
	s.reload = false
	s.bridge = b
	s.lastNodes = nil
	s.cache.InvalidateAll()
	return b, nil
}

// manager returns the Appium manager for port, keeping a server this
// process already started.
// The caller must hold s.mu.
func (s *Server) manager(port int) *appium.Manager {
	if s.appium != nil && (port <= 0 || s.appium.Port == port || s.appium.Owned()) {
		return s.appium
	}
	ac := s.cfg.Appium
	if port > 0 {
		ac.Port = port
	}
	s.appium = appium.NewManager(ac)
	return s.appium
}

// SetupResult describes a completed setup_connection.
type SetupResult struct {
	ServerURL    string         `yaml:"server_url"  json:"server_url"`
	ServerStatus string         `yaml:"server"      json:"server"`
	Device       device.Details `yaml:"device"      json:"device"`
	ConfigPath   string         `yaml:"config_path" json:"config_path"`
	Session      string         `yaml:"session"     json:"session"`
}

// Setup starts Appium when needed, picks the first online device, writes
// its capabilities to the configuration file and connects.
func (s *Server) Setup(ctx context.Context, port int) (SetupResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	mgr := s.manager(port)
	already, err := mgr.Start(ctx, s.cfg.Appium.StartTimeout)
	if err != nil {
		return SetupResult{}, fmt.Errorf("start appium: %w", err)
	}
	res := SetupResult{ServerURL: mgr.URL(), ServerStatus: serverStatus(already), ConfigPath: s.opts.ConfigPath}

	devices, err := s.adb.List(ctx)
	if err != nil {
		return res, err
	}
	dev, ok := device.FirstOnline(devices)
	if !ok {
		return res, errors.New(noDevicesText)
	}
	details, err := s.adb.Details(ctx, dev.UDID)
	if err != nil {
		return res, err
	}
	res.Device = details

	cfg := s.cfg
	cfg.ServerURL = mgr.URL()
	cfg.Appium.Port = mgr.Port
	cfg.Capabilities = config.AndroidCapabilities(details.UDID, details.Model)
	if err := config.Save(s.opts.ConfigPath, cfg); err != nil {
		return res, err
	}

	b, err := s.replaceBridge(ctx, cfg)
	if err != nil {
		return res, err
	}
	if err := b.Connect(ctx); err != nil {
		return res, err
	}
	res.Session = b.Session().ID()
	s.log.Info().Str("udid", details.UDID).Str("session", res.Session).Msg("setup complete")
	return res, nil
}

func serverStatus(alreadyRunning bool) string {
	if alreadyRunning {
		return "already_running"
	}
	return "started"
}

const noDevicesText = `no Android devices found. Please ensure:
1. Device is connected via USB or emulator is running
2. USB debugging is enabled
3. Run 'adb devices' to verify connection`
