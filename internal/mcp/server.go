// Package mcp exposes wult's measurement engine over the Model
// Context Protocol: a short-lived run, a capability probe, and a
// record-field glossary.
package mcp

import (
	"context"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Server wraps the MCP server instance.
type Server struct {
	mcpServer *server.MCPServer
}

// NewServer creates a new MCP server with registered tools.
func NewServer(version string) *Server {
	s := server.NewMCPServer("wult", version, server.WithLogging())
	registerTools(s)
	return &Server{mcpServer: s}
}

// Start runs the server in stdio mode (blocking).
func (s *Server) Start(ctx context.Context) error {
	stdioServer := server.NewStdioServer(s.mcpServer)
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

// registerTools adds all supported tools to the server.
func registerTools(s *server.MCPServer) {
	startTool := mcp.NewTool("start_measurement",
		mcp.WithDescription("Run a short wult wake-latency measurement and return the collected datapoints as JSON. Requires root and MSR/BPF prerequisites (see get_capabilities)."),
		mcp.WithNumber("min_t_ns",
			mcp.Description("Minimum launch distance in nanoseconds"),
			mcp.DefaultNumber(1_000_000),
		),
		mcp.WithNumber("max_t_ns",
			mcp.Description("Maximum launch distance in nanoseconds"),
			mcp.DefaultNumber(4_000_000),
		),
		mcp.WithNumber("cpu_num",
			mcp.Description("CPU to pin the measurement to"),
			mcp.DefaultNumber(0),
		),
		mcp.WithNumber("count",
			mcp.Description("Number of datapoints to collect before stopping"),
			mcp.DefaultNumber(100),
		),
		mcp.WithNumber("req_cstate",
			mcp.Description("Target C-state index to measure (0 = POLL)"),
			mcp.DefaultNumber(3),
		),
		mcp.WithString("des",
			mcp.Description("Delayed-event source variant"),
			mcp.DefaultString("hrt"),
			mcp.Enum("hrt", "bpf"),
		),
	)
	s.AddTool(startTool, handleStartMeasurement)

	capsTool := mcp.NewTool("get_capabilities",
		mcp.WithDescription("Report which DES variant this host supports: BPF CO-RE tracepoint, HRT + MSR bank, or neither."),
	)
	s.AddTool(capsTool, handleGetCapabilities)

	explainTool := mcp.NewTool("explain_record",
		mcp.WithDescription("Explain a Datapoint field name: what it measures and how it is computed."),
		mcp.WithString("field",
			mcp.Description("Datapoint field name, e.g. 'wake_latency', 'silent_time', 'req_cstate'. Omit to list all known fields."),
		),
	)
	s.AddTool(explainTool, handleExplainRecord)
}
