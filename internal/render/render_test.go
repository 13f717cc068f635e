package render

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/muse/internal/record"
)

func TestText(t *testing.T) {
	tests := []struct {
		name string
		rec  record.Record
		want string
	}{
		{
			"idea",
			record.Idea{Title: "Latte art", Description: "Start with hearts"},
			"Title: Latte art\n\nDescription: Start with hearts",
		},
		{
			"caption",
			record.OptimizedCaption{Caption: "Fresh roast.", Hashtags: []string{"#coffee", "#roast"}},
			"Caption:\nFresh roast.\n\nHashtags:\n#coffee #roast",
		},
		{
			"repurposed",
			record.RepurposedItem{Format: record.FormatBlogPost, Content: "# Post"},
			"# Post",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Text(tt.rec))
		})
	}
}

func TestDownload(t *testing.T) {
	name, data := Download(record.Idea{Title: "Cold Brew 101!", Description: "d"})
	assert.Equal(t, "cold_brew_101_", name)
	assert.True(t, strings.HasPrefix(data, "Content Idea\n\nTitle: Cold Brew 101!"))

	name, _ = Download(record.OptimizedCaption{Caption: "c"})
	assert.Equal(t, "optimized_caption", name)

	name, data = Download(record.RepurposedItem{Format: record.FormatTikTokScript, Content: "Hook"})
	assert.Equal(t, "repurposed_tiktok_script", name)
	assert.Equal(t, "Format: tiktok_script\n\nHook", data)
}

func TestPlainText(t *testing.T) {
	doc := Document{Records: []record.Record{
		record.Idea{Title: "Latte art", Description: "Start with hearts"},
		record.Idea{Title: "Beans", Description: "Origins"},
	}}

	want := "Content Idea\n\nTitle: Latte art\n\nDescription: Start with hearts" +
		"\n\n---\n\n" +
		"Content Idea\n\nTitle: Beans\n\nDescription: Origins\n"
	assert.Equal(t, want, PlainText(doc))
	assert.Empty(t, PlainText(Document{}))
}

func TestMarkdown(t *testing.T) {
	doc := Document{
		Title:     "Ideas for specialty coffee",
		Mode:      "ideas",
		CreatedAt: time.Date(2026, 2, 3, 4, 5, 0, 0, time.UTC),
		Records: []record.Record{
			record.Idea{Title: "One", Description: "First"},
			record.Idea{Title: "Two", Description: "Second"},
		},
	}

	got := Markdown(doc)
	assert.True(t, strings.HasPrefix(got, "# Ideas for specialty coffee\n\n**Mode:** ideas | **Created:** 2026-02-03 04:05 UTC\n\n"))
	assert.Contains(t, got, "## One\n\nFirst\n")
	assert.Contains(t, got, "\n---\n\n## Two\n\nSecond\n")
}

func TestMarkdown_CaptionAndRepurposed(t *testing.T) {
	got := Markdown(Document{Title: "Mixed", Records: []record.Record{
		record.OptimizedCaption{Caption: "Morning.", Hashtags: []string{"#a", "#b"}},
		record.RepurposedItem{Format: record.FormatLinkedInPost, Content: "Post body\n\n"},
	}})
	assert.Contains(t, got, "## Optimized Caption\n\nMorning.\n\n**Suggested Hashtags:** #a #b\n")
	assert.Contains(t, got, "## LinkedIn Post\n\nPost body\n")
	assert.NotContains(t, got, "**Mode:**")
}

func TestMarkdown_Empty(t *testing.T) {
	assert.Equal(t, "# Nothing\n\n_No content._\n", Markdown(Document{Title: "Nothing"}))
}

func TestHTML(t *testing.T) {
	out, err := HTML(Document{Title: "Ideas <draft>", Records: []record.Record{
		record.Idea{Title: "Bold move", Description: "Use **strong** words <script>alert(1)</script>"},
	}})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(out, "<!DOCTYPE html>"))
	assert.Contains(t, out, "<title>Ideas &lt;draft&gt;</title>")
	assert.Contains(t, out, "<h2>Bold move</h2>")
	assert.Contains(t, out, "<strong>strong</strong>")
	assert.NotContains(t, out, "<script>")
}
