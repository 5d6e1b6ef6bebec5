package main

import "github.com/supremehyo/appium-mcp-claude-android/cmd"

func main() {
	cmd.Execute()
}
