// Package appium manages the lifecycle of a local Appium server process.
package appium

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/supremehyo/appium-mcp-claude-android/internal/config"
	"github.com/supremehyo/appium-mcp-claude-android/internal/logging"
)

// ErrNotRunning is returned by Stop when this manager did not start a server.
var ErrNotRunning = errors.New("appium server is not running")

const (
	statusTimeout = 2 * time.Second
	pollInterval  = 500 * time.Millisecond
	stopTimeout   = 5 * time.Second
	basePath      = "/"
)

// Manager starts, checks and stops one Appium server.
type Manager struct {
	Binary  string
	Host    string
	Port    int
	LogFile string

	client *http.Client
	log    zerolog.Logger

	mu   sync.Mutex
	cmd  *exec.Cmd
	done chan struct{}
	logf *os.File
}

// NewManager returns a manager for the configured address.
func NewManager(cfg config.AppiumConfig) *Manager {
	def := config.Default().Appium
	if cfg.Binary == "" {
		cfg.Binary = def.Binary
	}
	if cfg.Host == "" {
		cfg.Host = def.Host
	}
	if cfg.Port == 0 {
		cfg.Port = def.Port
	}
	return &Manager{
		Binary:  cfg.Binary,
		Host:    cfg.Host,
		Port:    cfg.Port,
		LogFile: cfg.LogFile,
		client:  &http.Client{Timeout: statusTimeout},
		log:     logging.For("appium"),
	}
}

// URL is the server's base URL.
func (m *Manager) URL() string {
	return "http://" + net.JoinHostPort(m.Host, strconv.Itoa(m.Port))
}

// IsRunning reports whether GET /status answers 200 within two seconds.
func (m *Manager) IsRunning(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, statusTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.URL()+"/status", nil)
	if err != nil {
		return false
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Owned reports whether this manager started a server that is still alive.
func (m *Manager) Owned() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cmd == nil {
		return false
	}
	select {
	case <-m.done:
		return false
	default:
		return true
	}
}

// Start launches the server unless one already answers, then polls its
// status until timeout. It reports whether a server was already running.
func (m *Manager) Start(ctx context.Context, timeout time.Duration) (bool, error) {
	if m.IsRunning(ctx) {
		m.log.Info().Str("url", m.URL()).Msg("appium server already running")
		return true, nil
	}
	if timeout <= 0 {
		timeout = config.Default().Appium.StartTimeout
	}

	if err := m.spawn(); err != nil {
		return false, err
	}
	m.log.Info().Str("url", m.URL()).Dur("timeout", timeout).Msg("starting appium server")

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	tick := time.NewTicker(pollInterval)
	defer tick.Stop()
	for {
		if m.IsRunning(ctx) {
			m.log.Info().Str("url", m.URL()).Msg("appium server started")
			return false, nil
		}
		select {
		case <-ctx.Done():
			m.Stop()
			return false, ctx.Err()
		case <-m.exited():
			m.Stop()
			return false, fmt.Errorf("appium exited before becoming ready (see %s)", m.logName())
		case <-deadline.C:
			m.Stop()
			return false, fmt.Errorf("appium server failed to start within %s", timeout)
		case <-tick.C:
		}
	}
}

func (m *Manager) spawn() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cmd := exec.Command(m.Binary,
		"--address", m.Host,
		"--port", strconv.Itoa(m.Port),
		"--base-path", basePath,
		"--relaxed-security",
	)
	setProcessGroup(cmd)

	var logf *os.File
	if m.LogFile != "" {
		if err := os.MkdirAll(filepath.Dir(m.LogFile), 0o755); err != nil {
			return fmt.Errorf("create log dir: %w", err)
		}
		f, err := os.Create(m.LogFile)
		if err != nil {
			return fmt.Errorf("create appium log: %w", err)
		}
		logf = f
		cmd.Stdout = f
		cmd.Stderr = f
		m.log.Info().Str("log_file", m.LogFile).Msg("appium output redirected")
	}

	if err := cmd.Start(); err != nil {
		if logf != nil {
			logf.Close()
		}
		if errors.Is(err, exec.ErrNotFound) {
			return fmt.Errorf("appium not found (install it with: npm install -g appium): %w", err)
		}
		return fmt.Errorf("start appium: %w", err)
	}

	done := make(chan struct{})
	go func() {
		cmd.Wait()
		close(done)
	}()
	m.cmd, m.done, m.logf = cmd, done, logf
	return nil
}

func (m *Manager) exited() <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.done
}

func (m *Manager) logName() string {
	if m.LogFile == "" {
		return "no log file"
	}
	return m.LogFile
}

// Stop terminates the server this manager started: SIGTERM to its process
// group, then a kill after five seconds.
func (m *Manager) Stop() error {
	m.mu.Lock()
	cmd, done, logf := m.cmd, m.done, m.logf
	m.cmd, m.done, m.logf = nil, nil, nil
	m.mu.Unlock()

	if cmd == nil {
		return ErrNotRunning
	}
	defer func() {
		if logf != nil {
			logf.Close()
		}
	}()

	m.log.Info().Int("pid", cmd.Process.Pid).Msg("stopping appium server")
	if err := terminate(cmd); err != nil {
		m.log.Debug().Err(err).Msg("terminate failed")
	}
	select {
	case <-done:
	case <-time.After(stopTimeout):
		m.log.Warn().Msg("appium did not exit, killing")
		if err := kill(cmd); err != nil {
			return fmt.Errorf("kill appium: %w", err)
		}
		<-done
	}
	m.log.Info().Msg("appium server stopped")
	return nil
}
