package mcp

import (
	"database/sql"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hpungsan/muse/internal/config"
	"github.com/hpungsan/muse/internal/credit"
	"github.com/hpungsan/muse/internal/generate"
)

// KnownTypes lists all valid type names.
var KnownTypes = []string{"generate", "credits", "history"}

// toolEntry pairs a tool definition with a handler factory.
type toolEntry struct {
	def     mcp.Tool
	handler func(*Handlers) server.ToolHandlerFunc
}

// toolRegistry maps tool names to their definitions and handler factories.
var toolRegistry = map[string]toolEntry{
	"generate_ideas": {
		def:     ideasToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleGenerateIdeas },
	},
	"generate_caption": {
		def:     captionToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleGenerateCaption },
	},
	"generate_repurpose": {
		def:     repurposeToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleGenerateRepurpose },
	},
	"credits_status": {
		def:     creditsToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleCreditsStatus },
	},
	"history_list": {
		def:     historyListToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleHistoryList },
	},
	"history_show": {
		def:     historyShowToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleHistoryShow },
	},
	"history_export": {
		def:     historyExportToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleHistoryExport },
	},
}

// AllToolNames returns all valid tool names, sorted.
func AllToolNames() []string {
	names := make([]string, 0, len(toolRegistry))
	for name := range toolRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ValidateDisabledTools returns a list of unknown tool names from the given list.
func ValidateDisabledTools(names []string) []string {
	unknown := make([]string, 0)
	for _, name := range names {
		if _, ok := toolRegistry[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// ValidateDisabledTypes returns a list of unknown type names from the given list.
func ValidateDisabledTypes(names []string) []string {
	known := make(map[string]bool, len(KnownTypes))
	for _, t := range KnownTypes {
		known[t] = true
	}

	unknown := make([]string, 0)
	for _, name := range names {
		if !known[name] {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// GetTypeForTool extracts the type name from a tool name.
// Tool names follow the pattern "type_action" (e.g., "history_list" → "history").
func GetTypeForTool(toolName string) string {
	if idx := strings.Index(toolName, "_"); idx > 0 {
		return toolName[:idx]
	}
	return ""
}

// ExpandTypesToTools returns all tool names belonging to the given types.
func ExpandTypesToTools(types []string) []string {
	if len(types) == 0 {
		return nil
	}

	typeSet := make(map[string]bool, len(types))
	for _, t := range types {
		typeSet[t] = true
	}

	tools := make([]string, 0)
	for name := range toolRegistry {
		if typeSet[GetTypeForTool(name)] {
			tools = append(tools, name)
		}
	}
	return tools
}

// NewServer creates a new MCP server with Muse tools registered.
// Tools listed in cfg.DisabledTools or belonging to cfg.DisabledTypes
// are excluded from registration.
func NewServer(db *sql.DB, cfg *config.Config, tools *generate.Toolset, account credit.Account, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"muse",
		version,
		server.WithToolCapabilities(true),
		server.WithLogging(),
	)

	h := NewHandlers(db, cfg, tools, account)

	disabled := make(map[string]bool)
	for _, tool := range ExpandTypesToTools(cfg.DisabledTypes) {
		disabled[tool] = true
	}
	for _, name := range cfg.DisabledTools {
		disabled[name] = true
	}

	for name, entry := range toolRegistry {
		if disabled[name] {
			continue
		}
		s.AddTool(entry.def, entry.handler(h))
	}

	return s
}

// Run starts the MCP server using stdio transport.
func Run(db *sql.DB, cfg *config.Config, tools *generate.Toolset, account credit.Account, version string) error {
	s := NewServer(db, cfg, tools, account, version)
	return server.ServeStdio(s)
}
