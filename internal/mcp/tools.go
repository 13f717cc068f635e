package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/muse/internal/record"
)

func formatNames() []string {
	names := make([]string, 0, len(record.Formats))
	for _, f := range record.Formats {
		names = append(names, string(f))
	}
	return names
}

// preferenceOptions are shared by every generate tool.
func preferenceOptions(opts ...mcp.ToolOption) []mcp.ToolOption {
	return append([]mcp.ToolOption{
		mcp.WithString("niche",
			mcp.Required(),
			mcp.Description("Content niche, e.g. \"specialty coffee\""),
		),
		mcp.WithArray("platforms",
			mcp.Required(),
			mcp.Description("Target platforms, e.g. [\"Instagram\", \"TikTok\"]"),
			mcp.WithStringItems(),
		),
		mcp.WithString("tone",
			mcp.Required(),
			mcp.Description("Brand voice, e.g. \"Casual\" or \"Professional\""),
		),
		mcp.WithOpenWorldHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
	}, opts...)
}

var ideasToolDef = mcp.NewTool("generate_ideas", preferenceOptions(
	mcp.WithDescription("Generate content ideas for the niche, platforms and tone. Costs 1 credit."),
)...)

var captionToolDef = mcp.NewTool("generate_caption", preferenceOptions(
	mcp.WithDescription("Rewrite a draft caption and suggest hashtags. Costs 1 credit."),
	mcp.WithString("draft",
		mcp.Required(),
		mcp.Description("Draft caption to optimize"),
	),
)...)

var repurposeToolDef = mcp.NewTool("generate_repurpose", preferenceOptions(
	mcp.WithDescription("Rewrite source content into each target format. Costs 1 credit per format."),
	mcp.WithString("source",
		mcp.Required(),
		mcp.Description("Source content to repurpose"),
	),
	mcp.WithArray("formats",
		mcp.Required(),
		mcp.Description("Target formats"),
		mcp.Items(map[string]any{"type": "string", "enum": formatNames()}),
	),
)...)

var creditsToolDef = mcp.NewTool("credits_status",
	mcp.WithDescription("Report the credit balance, daily allowance and next reset time."),
	mcp.WithReadOnlyHintAnnotation(true),
)

var historyListToolDef = mcp.NewTool("history_list",
	mcp.WithDescription("List past generations, newest first."),
	mcp.WithString("mode",
		mcp.Description("Only list generations of this mode"),
		mcp.Enum("ideas", "caption", "repurpose"),
	),
	mcp.WithNumber("limit",
		mcp.Description("Max items to return (default 20, max 100)"),
	),
	mcp.WithNumber("offset",
		mcp.Description("Items to skip"),
	),
	mcp.WithReadOnlyHintAnnotation(true),
)

var historyShowToolDef = mcp.NewTool("history_show",
	mcp.WithDescription("Show one past generation with its records."),
	mcp.WithString("id",
		mcp.Required(),
		mcp.Description("Generation ID"),
	),
	mcp.WithReadOnlyHintAnnotation(true),
)

var historyExportToolDef = mcp.NewTool("history_export",
	mcp.WithDescription("Export a past generation to a Markdown or HTML file."),
	mcp.WithString("id",
		mcp.Required(),
		mcp.Description("Generation ID"),
	),
	mcp.WithString("path",
		mcp.Description("Output path (.md, .html or .txt), directly inside ~/.muse/exports or an allowed path"),
	),
	mcp.WithString("format",
		mcp.Description("Output format when path is omitted"),
		mcp.Enum("markdown", "html", "text"),
	),
)
