package record

import (
	"github.com/oklog/ulid/v2"
)

// Kind identifies the shape of a decoded record.
type Kind string

const (
	KindIdea       Kind = "idea"
	KindCaption    Kind = "caption"
	KindRepurposed Kind = "repurposed"
)

// Record is a fully decoded object produced from one frame.
type Record interface {
	Kind() Kind
}

// Idea is one content idea.
type Idea struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Kind implements Record.
func (Idea) Kind() Kind { return KindIdea }

// OptimizedCaption is a rewritten caption with suggested hashtags.
type OptimizedCaption struct {
	Caption  string   `json:"caption"`
	Hashtags []string `json:"hashtags"`
}

// Kind implements Record.
func (OptimizedCaption) Kind() Kind { return KindCaption }

// RepurposedItem is source content rewritten for one target format.
type RepurposedItem struct {
	ID      string `json:"id"`
	Format  Format `json:"format"`
	Content string `json:"content"`
}

// Kind implements Record.
func (RepurposedItem) Kind() Kind { return KindRepurposed }

// Format is a repurposing target.
type Format string

const (
	FormatTwitterThread Format = "twitter_thread"
	FormatBlogPost      Format = "blog_post"
	FormatLinkedInPost  Format = "linkedin_post"
	FormatTikTokScript  Format = "tiktok_script"
	FormatYouTubeScript Format = "youtube_script"
)

// Formats lists every supported target format in display order.
var Formats = []Format{
	FormatTwitterThread,
	FormatBlogPost,
	FormatLinkedInPost,
	FormatTikTokScript,
	FormatYouTubeScript,
}

var formatLabels = map[Format]string{
	FormatTwitterThread: "Twitter Thread",
	FormatBlogPost:      "Blog Post",
	FormatLinkedInPost:  "LinkedIn Post",
	FormatTikTokScript:  "TikTok Script",
	FormatYouTubeScript: "YouTube Script",
}

// Valid reports whether f is a known format.
func (f Format) Valid() bool {
	_, ok := formatLabels[f]
	return ok
}

// Label returns the human-readable name of f, or f itself if unknown.
func (f Format) Label() string {
	if label, ok := formatLabels[f]; ok {
		return label
	}
	return string(f)
}

// newID returns a fresh ULID string. ulid.Make is monotonic within a process,
// so IDs handed out during one stream sort in arrival order.
func newID() string {
	return ulid.Make().String()
}
