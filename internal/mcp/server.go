// Package mcp exposes parsing, import, duplicate detection and extraction as MCP tools.
package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const ServerName = "exposegen"

var (
	parseTool = mcp.NewTool("expose_parse",
		mcp.WithDescription("Parse exposé Markdown into family name, city and sections"),
		mcp.WithString("markdown", mcp.Required(), mcp.Description("Markdown as produced by expose_extract")),
	)
	importTool = mcp.NewTool("project_import",
		mcp.WithDescription("Recover the Markdown and photos embedded in an exposé PDF"),
		mcp.WithString("path", mcp.Required(), mcp.Description("Full path to the PDF file")),
	)
	duplicatesTool = mcp.NewTool("photos_duplicates",
		mcp.WithDescription("Find near-duplicate photos by difference hash; the first occurrence is kept"),
		mcp.WithArray("paths", mcp.Required(), mcp.Description("Photo file paths in upload order"),
			mcp.Items(map[string]any{"type": "string"})),
		mcp.WithNumber("threshold", mcp.Description("Hamming distance below which photos are duplicates")),
	)
	extractTool = mcp.NewTool("expose_extract",
		mcp.WithDescription("Extract an exposé from application documents (PDF, DOCX, images, text)"),
		mcp.WithArray("paths", mcp.Required(), mcp.Description("Document file paths"),
			mcp.Items(map[string]any{"type": "string"})),
		mcp.WithString("text", mcp.Description("Additional free text, e.g. an e-mail")),
	)
)

// toolEntry pairs a tool definition with a handler factory.
type toolEntry struct {
	def     mcp.Tool
	handler func(*Handlers) server.ToolHandlerFunc
}

var toolRegistry = map[string]toolEntry{
	"expose_parse": {
		def:     parseTool,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleParse },
	},
	"project_import": {
		def:     importTool,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleImport },
	},
	"photos_duplicates": {
		def:     duplicatesTool,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleDuplicates },
	},
	"expose_extract": {
		def:     extractTool,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleExtract },
	},
}

// NewServer creates an MCP server with every tool registered.
func NewServer(h *Handlers, version string) *server.MCPServer {
	s := server.NewMCPServer(ServerName, version, server.WithToolCapabilities(true))
	for _, entry := range toolRegistry {
		s.AddTool(entry.def, entry.handler(h))
	}
	return s
}

// Run starts the MCP server using stdio transport.
func Run(h *Handlers, version string) error {
	return server.ServeStdio(NewServer(h, version))
}
