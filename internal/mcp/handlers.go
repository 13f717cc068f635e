package mcp

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hpungsan/muse/internal/config"
	"github.com/hpungsan/muse/internal/credit"
	"github.com/hpungsan/muse/internal/errors"
	"github.com/hpungsan/muse/internal/generate"
	"github.com/hpungsan/muse/internal/ops"
	"github.com/hpungsan/muse/internal/prefs"
	"github.com/hpungsan/muse/internal/record"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	db      *sql.DB
	cfg     *config.Config
	tools   *generate.Toolset
	account credit.Account
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(db *sql.DB, cfg *config.Config, tools *generate.Toolset, account credit.Account) *Handlers {
	return &Handlers{db: db, cfg: cfg, tools: tools, account: account}
}

// Request types for each tool

// GenerateRequest represents the arguments shared by the generate tools.
type GenerateRequest struct {
	Niche     string   `json:"niche"`
	Platforms []string `json:"platforms"`
	Tone      string   `json:"tone"`
	Draft     string   `json:"draft,omitempty"`
	Source    string   `json:"source,omitempty"`
	Formats   []string `json:"formats,omitempty"`
}

// HistoryListRequest represents the arguments for history_list.
type HistoryListRequest struct {
	Mode   string `json:"mode,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
}

// HistoryShowRequest represents the arguments for history_show.
type HistoryShowRequest struct {
	ID string `json:"id"`
}

// HistoryExportRequest represents the arguments for history_export.
type HistoryExportRequest struct {
	ID     string `json:"id"`
	Path   string `json:"path,omitempty"`
	Format string `json:"format,omitempty"`
}

// Handler implementations

// HandleGenerateIdeas handles the generate_ideas tool call.
func (h *Handlers) HandleGenerateIdeas(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return h.generate(ctx, generate.Ideas.Name, req)
}

// HandleGenerateCaption handles the generate_caption tool call.
func (h *Handlers) HandleGenerateCaption(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return h.generate(ctx, generate.Caption.Name, req)
}

// HandleGenerateRepurpose handles the generate_repurpose tool call.
func (h *Handlers) HandleGenerateRepurpose(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return h.generate(ctx, generate.Repurpose.Name, req)
}

func (h *Handlers) generate(ctx context.Context, mode string, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[GenerateRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Generate(ctx, h.tools, ops.GenerateInput{
		Mode: mode,
		Preferences: prefs.Preferences{
			Niche:     input.Niche,
			Platforms: input.Platforms,
			Tone:      input.Tone,
		},
		Draft:   input.Draft,
		Source:  input.Source,
		Formats: input.Formats,
	}, recordNotifier(ctx))
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// recordNotifier forwards each record to the client as a log message while
// the session streams. Outside a client session it does nothing.
func recordNotifier(ctx context.Context) func(record.Record) {
	srv := server.ServerFromContext(ctx)
	if srv == nil {
		return nil
	}
	return func(r record.Record) {
		env, err := record.Wrap(r)
		if err != nil {
			return
		}
		_ = srv.SendNotificationToClient(ctx, "notifications/message", map[string]any{
			"level":  "info",
			"logger": "muse",
			"data":   env,
		})
	}
}

// HandleCreditsStatus handles the credits_status tool call.
func (h *Handlers) HandleCreditsStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := ops.Credits(ctx, h.account)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleHistoryList handles the history_list tool call.
func (h *Handlers) HandleHistoryList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[HistoryListRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.History(ctx, h.db, ops.HistoryInput{
		Mode:   input.Mode,
		Limit:  input.Limit,
		Offset: input.Offset,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleHistoryShow handles the history_show tool call.
func (h *Handlers) HandleHistoryShow(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[HistoryShowRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Show(ctx, h.db, input.ID)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleHistoryExport handles the history_export tool call.
func (h *Handlers) HandleHistoryExport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[HistoryExportRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Export(ctx, h.db, h.cfg, ops.ExportInput{
		ID:     input.ID,
		Path:   input.Path,
		Format: input.Format,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// Result helpers

// errorResult creates an MCP error result from any error.
// Uses IsError: true so MCP clients recognize failures properly.
// Details of INTERNAL errors are never exposed.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	var mErr *errors.MuseError
	if stderrors.As(err, &mErr) {
		errorObj := map[string]any{
			"code":    mErr.Code,
			"message": mErr.Message,
			"status":  mErr.Status,
		}
		if mErr.Code != errors.ErrInternal && mErr.Details != nil {
			errorObj["details"] = mErr.Details
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    "INTERNAL",
				"message": "an internal error occurred",
				"status":  500,
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
