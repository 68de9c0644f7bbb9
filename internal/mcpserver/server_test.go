package mcpserver

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/shopspring/decimal"

	"github.com/seedround/noteledger/internal/models"
	"github.com/seedround/noteledger/internal/noteservice"
	"github.com/seedround/noteledger/internal/testutil"
)

var testClock = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func testServer(t *testing.T) (*Server, *noteservice.Service) {
	t.Helper()

	db := testutil.TestDB(t)
	svc := noteservice.NewService(db, noteservice.WithClock(func() time.Time { return testClock }))
	return New(svc), svc
}

func seedNote(t *testing.T, svc *noteservice.Service) *models.ConvertibleNote {
	t.Helper()
	discount := decimal.NewFromFloat(0.20)
	n, err := svc.Create(context.Background(), noteservice.CreateParams{
		Principal:    decimal.NewFromInt(100000),
		InterestRate: decimal.NewFromFloat(0.06),
		Compounding:  "SIMPLE",
		IssuedAt:     testClock,
		MaturityDate: testClock.AddDate(2, 0, 0),
		DiscountRate: &discount,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return n
}

func callTool(t *testing.T, srv *Server, name string, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	// mcp-go doesn't expose a direct "call tool" test helper, so we test
	// through the tool handler functions directly.
	var result *mcp.CallToolResult
	var err error

	switch name {
	case "list_notes":
		result, err = srv.listNotes(ctx, req)
	case "read_note":
		result, err = srv.readNote(ctx, req)
	case "accrued_interest":
		result, err = srv.accruedInterest(ctx, req)
	case "conversion_preview":
		result, err = srv.conversionPreview(ctx, req)
	case "maturing_notes":
		result, err = srv.maturingNotes(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestListAndReadNote(t *testing.T) {
	srv, svc := testServer(t)
	n := seedNote(t, svc)

	r := callTool(t, srv, "list_notes", map[string]interface{}{})
	if !strings.Contains(resultText(r), n.ID) {
		t.Errorf("list output missing note id: %q", resultText(r))
	}

	r = callTool(t, srv, "read_note", map[string]interface{}{"id": n.ID})
	var got models.ConvertibleNote
	if err := json.Unmarshal([]byte(resultText(r)), &got); err != nil {
		t.Fatalf("unmarshal read_note output: %v", err)
	}
	if got.ID != n.ID {
		t.Errorf("id = %q, want %q", got.ID, n.ID)
	}
	if got.Status != models.StatusActive {
		t.Errorf("status = %q, want ACTIVE", got.Status)
	}
}

func TestReadNoteMissing(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "read_note", map[string]interface{}{"id": "nope"})
	if !r.IsError {
		t.Error("expected error for missing note")
	}
}

func TestAccruedInterestProjection(t *testing.T) {
	srv, svc := testServer(t)
	n := seedNote(t, svc)

	r := callTool(t, srv, "accrued_interest", map[string]interface{}{
		"id":    n.ID,
		"as_of": "2026-06-30T00:00:00Z",
	})
	if got := resultText(r); got != "2958.90" {
		t.Errorf("accrued = %q, want 2958.90", got)
	}

	// The projection must not book anything.
	fresh, err := svc.Get(context.Background(), n.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !fresh.AccruedInterest.IsZero() {
		t.Errorf("projection persisted interest: %s", fresh.AccruedInterest)
	}
}

func TestConversionPreview(t *testing.T) {
	srv, svc := testServer(t)
	n := seedNote(t, svc)

	r := callTool(t, srv, "conversion_preview", map[string]interface{}{
		"id":              n.ID,
		"price_per_share": "1.00",
	})
	text := resultText(r)
	if r.IsError {
		t.Fatalf("preview errored: %q", text)
	}
	if !strings.Contains(text, "0.8") {
		t.Errorf("preview missing discounted price: %q", text)
	}

	r = callTool(t, srv, "conversion_preview", map[string]interface{}{
		"id":              n.ID,
		"price_per_share": "not-a-number",
	})
	if !r.IsError {
		t.Error("expected error for bad price")
	}
}

func TestMaturingNotes(t *testing.T) {
	srv, svc := testServer(t)
	_, err := svc.Create(context.Background(), noteservice.CreateParams{
		Principal:    decimal.NewFromInt(50000),
		InterestRate: decimal.NewFromFloat(0.05),
		Compounding:  "SIMPLE",
		IssuedAt:     time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		MaturityDate: time.Date(2026, 1, 20, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	seedNote(t, svc) // matures in 2028

	r := callTool(t, srv, "maturing_notes", map[string]interface{}{"within_days": "30"})
	var notes []models.ConvertibleNote
	if err := json.Unmarshal([]byte(resultText(r)), &notes); err != nil {
		t.Fatalf("unmarshal maturing output: %v", err)
	}
	if len(notes) != 1 {
		t.Errorf("maturing notes = %d, want 1", len(notes))
	}
}
