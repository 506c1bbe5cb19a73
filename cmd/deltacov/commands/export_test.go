package commands

// Test hooks.
var (
	NewCheckCommandWithRun = newCheckCommand
	MCPHTTPHandler         = mcpHTTPHandler
	NewMCPServer           = newMCPServer
)
