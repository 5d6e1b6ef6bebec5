// Package device talks to Android devices through the adb binary: the
// device inventory, per-device properties and the accessibility dump used
// as an alternative snapshot source.
package device

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/supremehyo/appium-mcp-claude-android/internal/logging"
	"golang.org/x/sync/errgroup"
)

// StatusOnline is the adb state of a device that is ready for automation.
const StatusOnline = "device"

// Command timeouts.
const (
	ListTimeout = 10 * time.Second
	PropTimeout = 5 * time.Second
	DumpTimeout = 10 * time.Second
)

const unknown = "Unknown"

// Device is one line of `adb devices -l`.
type Device struct {
	UDID   string `yaml:"udid"   json:"udid"`
	Status string `yaml:"status" json:"status"`
	Model  string `yaml:"model"  json:"model"`
}

// Online reports whether the device is ready for automation.
func (d Device) Online() bool {
	return d.Status == StatusOnline
}

// Details are the properties read from a device with getprop.
type Details struct {
	UDID           string `yaml:"udid"            json:"udid"`
	Manufacturer   string `yaml:"manufacturer"    json:"manufacturer"`
	Model          string `yaml:"model"           json:"model"`
	AndroidVersion string `yaml:"android_version" json:"android_version"`
}

// Listing is a device with its details when it is online.
type Listing struct {
	Device  `yaml:",inline"`
	Details *Details `yaml:"details,omitempty" json:"details,omitempty"`
}

// Runner executes a command and returns its standard output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.Output()
	if err != nil {
		if ee, ok := err.(*exec.ExitError); ok && len(ee.Stderr) > 0 {
			return out, fmt.Errorf("%w: %s", err, strings.TrimSpace(string(ee.Stderr)))
		}
		return out, err
	}
	return out, nil
}

// ADB runs adb commands.
type ADB struct {
	Binary string
	run    Runner
	log    zerolog.Logger
}

// NewADB returns a client for the given adb binary ("adb" when empty).
func NewADB(binary string) *ADB {
	if binary == "" {
		binary = "adb"
	}
	return &ADB{Binary: binary, run: execRunner, log: logging.For("device")}
}

// WithRunner replaces the command runner.
func (a *ADB) WithRunner(r Runner) *ADB {
	a.run = r
	return a
}

func (a *ADB) output(ctx context.Context, timeout time.Duration, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	out, err := a.run(ctx, a.Binary, args...)
	if ctx.Err() == context.DeadlineExceeded {
		return "", fmt.Errorf("adb %s timed out after %s", strings.Join(args, " "), timeout)
	}
	if err != nil {
		return "", fmt.Errorf("adb %s: %w", strings.Join(args, " "), err)
	}
	return string(out), nil
}

// List returns every device adb knows about, in adb's order.
func (a *ADB) List(ctx context.Context) ([]Device, error) {
	out, err := a.output(ctx, ListTimeout, "devices", "-l")
	if err != nil {
		return nil, err
	}
	devices := ParseDevices(out)
	a.log.Debug().Int("count", len(devices)).Msg("listed devices")
	return devices, nil
}

// ParseDevices parses `adb devices -l` output. The header line is skipped;
// lines are "udid status [key:value...]" and the model comes from "model:".
func ParseDevices(out string) []Device {
	var devices []Device
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "List of devices attached") || strings.HasPrefix(line, "*") {
			continue
		}
		parts := strings.Fields(line)
		if len(parts) < 2 {
			continue
		}
		d := Device{UDID: parts[0], Status: parts[1], Model: unknown}
		for _, p := range parts[2:] {
			if v, ok := strings.CutPrefix(p, "model:"); ok {
				d.Model = v
				break
			}
		}
		devices = append(devices, d)
	}
	return devices
}

// FirstOnline returns the first device that is ready for automation.
func FirstOnline(devices []Device) (Device, bool) {
	for _, d := range devices {
		if d.Online() {
			return d, true
		}
	}
	return Device{}, false
}

// Details reads manufacturer, model and Android version. Properties that
// cannot be read stay "Unknown".
func (a *ADB) Details(ctx context.Context, udid string) (Details, error) {
	info := Details{UDID: udid, Manufacturer: unknown, Model: unknown, AndroidVersion: unknown}
	if err := ValidateID(udid); err != nil {
		return info, err
	}
	props := []struct {
		key string
		dst *string
	}{
		{"ro.product.manufacturer", &info.Manufacturer},
		{"ro.product.model", &info.Model},
		{"ro.build.version.release", &info.AndroidVersion},
	}
	for _, p := range props {
		out, err := a.output(ctx, PropTimeout, "-s", udid, "shell", "getprop", p.key)
		if err != nil {
			a.log.Warn().Err(err).Str("udid", udid).Str("prop", p.key).Msg("getprop failed")
			continue
		}
		if v := strings.TrimSpace(out); v != "" {
			*p.dst = v
		}
	}
	return info, nil
}

// ListDetailed lists devices and reads the details of every online device
// concurrently.
func (a *ADB) ListDetailed(ctx context.Context) ([]Listing, error) {
	devices, err := a.List(ctx)
	if err != nil {
		return nil, err
	}
	listings := make([]Listing, len(devices))
	g, gctx := errgroup.WithContext(ctx)
	for i, d := range devices {
		listings[i].Device = d
		if !d.Online() {
			continue
		}
		g.Go(func() error {
			details, err := a.Details(gctx, d.UDID)
			if err != nil {
				a.log.Warn().Err(err).Str("udid", d.UDID).Msg("skipping device details")
				return nil
			}
			listings[i].Details = &details
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return listings, nil
}

// Dump returns `dumpsys accessibility` output for udid (the default device
// when empty). Any failure is logged and yields "".
func (a *ADB) Dump(ctx context.Context, udid string) string {
	args := []string{"shell", "dumpsys", "accessibility"}
	if udid != "" {
		if err := ValidateID(udid); err != nil {
			a.log.Error().Err(err).Msg("accessibility dump skipped")
			return ""
		}
		args = append([]string{"-s", udid}, args...)
	}
	out, err := a.output(ctx, DumpTimeout, args...)
	if err != nil {
		a.log.Error().Err(err).Msg("accessibility dump failed")
		return ""
	}
	return out
}

var idPattern = regexp.MustCompile(`^[a-zA-Z0-9._:\-]+$`)

// ValidateID rejects device ids that could not have come from adb.
func ValidateID(udid string) error {
	if udid == "" {
		return fmt.Errorf("device ID cannot be empty")
	}
	if len(udid) > 256 {
		return fmt.Errorf("device ID too long (max 256 characters)")
	}
	if !idPattern.MatchString(udid) {
		return fmt.Errorf("invalid device ID %q", udid)
	}
	return nil
}
