// Package mcpserver provides an MCP (Model Context Protocol) server that
// exposes read-only note ledger tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/shopspring/decimal"

	"github.com/seedround/noteledger/internal/models"
	"github.com/seedround/noteledger/internal/noteservice"
)

// Server wraps the MCP server with ledger tools. All tools are read-only;
// lifecycle mutations go through the REST API.
type Server struct {
	mcp *server.MCPServer
	svc *noteservice.Service
}

// New creates a new MCP server with all ledger tools registered.
func New(svc *noteservice.Service) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"NoteLedger",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_notes",
		mcp.WithDescription("List convertible notes, optionally filtered by status."),
		mcp.WithString("status", mcp.Description("Optional status filter: ACTIVE, CONVERTED, REPAID or DEFAULTED")),
	), s.listNotes)

	s.mcp.AddTool(mcp.NewTool("read_note",
		mcp.WithDescription("Read the full state of a convertible note, including terms, "+
			"booked interest and lifecycle status."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Note id")),
	), s.readNote)

	s.mcp.AddTool(mcp.NewTool("accrued_interest",
		mcp.WithDescription("Project the total accrued interest of a note as of a date "+
			"without booking anything."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Note id")),
		mcp.WithString("as_of", mcp.Description("Projection date in RFC 3339 format (defaults to now)")),
	), s.accruedInterest)

	s.mcp.AddTool(mcp.NewTool("conversion_preview",
		mcp.WithDescription("Preview the conversion economics of a note for a hypothetical "+
			"priced round. Applies the discount and valuation cap and reports the better price. "+
			"Read-only; the note is not converted."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Note id")),
		mcp.WithString("price_per_share", mcp.Required(), mcp.Description("Trigger round price per share, e.g. 1.25")),
		mcp.WithString("round_valuation", mcp.Description("Pre-money valuation of the round, required when the note has a valuation cap")),
	), s.conversionPreview)

	s.mcp.AddTool(mcp.NewTool("maturing_notes",
		mcp.WithDescription("List active notes that are overdue or mature within a horizon."),
		mcp.WithString("within_days", mcp.Description("Horizon in days (defaults to 30)")),
	), s.maturingNotes)

	// Resource: note terms reference.
	s.mcp.AddResource(
		mcp.NewResource("noteledger://note-terms", "Convertible Note Terms",
			mcp.WithResourceDescription("Reference for the note term fields and lifecycle statuses."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readNoteTermsResource,
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

func (s *Server) listNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	status := models.Status("")
	if v, err := req.RequireString("status"); err == nil {
		status = models.Status(v)
	}

	notes, total, err := s.svc.List(ctx, 0, 0, status)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(map[string]any{"notes": notes, "total": total}, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) readNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	note, err := s.svc.Get(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", id)), nil
	}
	out, _ := json.MarshalIndent(note, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) accruedInterest(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var asOf time.Time
	if raw, rErr := req.RequireString("as_of"); rErr == nil && raw != "" {
		asOf, err = time.Parse(time.RFC3339, raw)
		if err != nil {
			return mcp.NewToolResultError("as_of must be RFC 3339"), nil
		}
	}

	accrued, err := s.svc.GetAccruedInterest(ctx, id, asOf)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(accrued.StringFixed(2)), nil
}

func (s *Server) conversionPreview(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	rawPrice, err := req.RequireString("price_per_share")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	price, err := decimal.NewFromString(rawPrice)
	if err != nil {
		return mcp.NewToolResultError("price_per_share must be a decimal"), nil
	}

	var valuation *decimal.Decimal
	if raw, vErr := req.RequireString("round_valuation"); vErr == nil && raw != "" {
		v, pErr := decimal.NewFromString(raw)
		if pErr != nil {
			return mcp.NewToolResultError("round_valuation must be a decimal"), nil
		}
		valuation = &v
	}

	quote, err := s.svc.CalculateConversion(ctx, id, price, valuation)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(quote, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) maturingNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	withinDays := 30
	if raw, err := req.RequireString("within_days"); err == nil && raw != "" {
		var n int
		if _, sErr := fmt.Sscanf(raw, "%d", &n); sErr != nil || n < 0 {
			return mcp.NewToolResultError("within_days must be a non-negative integer"), nil
		}
		withinDays = n
	}

	notes, err := s.svc.ListMaturing(ctx, withinDays)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(notes, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) readNoteTermsResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      "noteledger://note-terms",
			MIMEType: "text/markdown",
			Text:     NoteTermsReference,
		},
	}, nil
}
