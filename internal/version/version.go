// Package version holds build metadata injected at link time.
package version

// Set via -ldflags "-X github.com/supremehyo/appium-mcp-claude-android/internal/version.Version=..."
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)
