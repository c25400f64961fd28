// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes the demand dataset to LLM clients via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/demanda/internal/index"
	"github.com/starford/demanda/internal/models"
	"github.com/starford/demanda/internal/parser"
)

const (
	schemaURI       = "demanda://schema"
	maxRecordsLimit = 500
)

// Server wraps the MCP server with dataset tools.
type Server struct {
	mcp *server.MCPServer
	db  index.Reader
}

// New creates a new MCP server with all tools registered.
func New(db index.Reader, version string) *Server {
	s := &Server{db: db}

	s.mcp = server.NewMCPServer(
		"demanda",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_sources",
		mcp.WithDescription("List the indexed daily source files with their report date and row count."),
	), s.listSources)

	s.mcp.AddTool(mcp.NewTool("list_failures",
		mcp.WithDescription("List source files that could not be parsed, with the failing line and reason."),
	), s.listFailures)

	s.mcp.AddTool(mcp.NewTool("demand_summary",
		mcp.WithDescription("Descriptive statistics (count, mean, min, max) of every numeric column."),
		mcp.WithString("region", mcp.Description("Optional region code to restrict to (e.g. SIN, BCA, BCS)")),
	), s.demandSummary)

	s.mcp.AddTool(mcp.NewTool("demand_profile",
		mcp.WithDescription("Mean, min and max demand grouped by hour of day, weekday, month or season. "+
			"Seasons are winter (Dec-Feb), spring (Mar-May), summer (Jun-Aug) and autumn (Sep-Nov)."),
		mcp.WithString("kind", mcp.Required(), mcp.Description("One of hourly, weekly, monthly, seasonal")),
		mcp.WithString("region", mcp.Description("Optional region code to restrict to")),
	), s.demandProfile)

	s.mcp.AddTool(mcp.NewTool("get_records",
		mcp.WithDescription("Page through dataset records in file then row order. "+
			"net_exchange is null where the source carried no value."),
		mcp.WithString("region", mcp.Description("Optional region code")),
		mcp.WithString("sub_area", mcp.Description("Optional sub-area code")),
		mcp.WithString("source", mcp.Description("Optional source file name")),
		mcp.WithNumber("limit", mcp.Description(fmt.Sprintf("Page size, default 50, max %d", maxRecordsLimit))),
		mcp.WithNumber("offset", mcp.Description("Page offset, default 0")),
	), s.getRecords)

	s.mcp.AddResource(
		mcp.NewResource(schemaURI, "Record Schema",
			mcp.WithResourceDescription("Column layout of the source files and of returned records."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readSchemaResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) listSources(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rows, err := s.db.Sources()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(rows) == 0 {
		return mcp.NewToolResultText("no sources indexed"), nil
	}
	return jsonResult(rows)
}

func (s *Server) listFailures(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rows, err := s.db.Failures()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(rows) == 0 {
		return mcp.NewToolResultText("no failures"), nil
	}
	return jsonResult(rows)
}

func (s *Server) demandSummary(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sum, err := s.db.Summary(req.GetString("region", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(sum)
}

func (s *Server) demandProfile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := req.RequireString("kind")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	kind, err := index.ParseProfileKind(raw)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	buckets, err := s.db.Profile(kind, req.GetString("region", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(buckets) == 0 {
		return mcp.NewToolResultText("no data"), nil
	}
	return jsonResult(buckets)
}

func (s *Server) getRecords(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := req.GetInt("limit", 50)
	if limit <= 0 {
		limit = 50
	}
	limit = min(limit, maxRecordsLimit)
	offset := max(req.GetInt("offset", 0), 0)

	recs, total, err := s.db.Records(index.RecordFilter{
		Region:  req.GetString("region", ""),
		SubArea: req.GetString("sub_area", ""),
		Source:  req.GetString("source", ""),
		Limit:   limit,
		Offset:  offset,
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]any{
		"records": recs,
		"total":   total,
		"offset":  offset,
	})
}

// SchemaDoc describes the record layout for LLM clients.
func SchemaDoc() string {
	var b strings.Builder
	b.WriteString("# Record schema\n\n")
	fmt.Fprintf(&b, "Each source file has %d metadata lines, then a header row, then one row per ", parser.MetadataLines)
	b.WriteString("region, sub-area and hour. Columns, in order:\n\n")
	for i, c := range parser.Columns {
		fmt.Fprintf(&b, "%d. `%s`\n", i+1, c)
	}
	b.WriteString("\nAmounts are MWh. `hour` is 1-24. `net_exchange` is null where the source ")
	b.WriteString("published `" + models.Sentinel + "` or left the cell empty. Records also carry `source` ")
	b.WriteString("(file name) and `line` (1-based line in that file).\n")
	return b.String()
}

func (s *Server) readSchemaResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      schemaURI,
			MIMEType: "text/markdown",
			Text:     SchemaDoc(),
		},
	}, nil
}
