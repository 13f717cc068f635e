package ops

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/hpungsan/muse/internal/config"
	"github.com/hpungsan/muse/internal/errors"
	"github.com/hpungsan/muse/internal/render"
)

// Export formats
const (
	FormatMarkdown = "markdown"
	FormatHTML     = "html"
	FormatText     = "text"
)

var formatExts = map[string]string{
	FormatMarkdown: ExtMarkdown,
	FormatHTML:     ExtHTML,
	FormatText:     ExtText,
}

// ExportInput contains parameters for the Export operation.
type ExportInput struct {
	ID     string // required
	Path   string // optional, default: <exports>/<mode>-<id>.<ext>
	Format string // optional, markdown, html or text; inferred from Path, default markdown
}

// ExportOutput contains the result of the Export operation.
type ExportOutput struct {
	Path       string `json:"path"`
	Format     string `json:"format"`
	Count      int    `json:"count"`
	Bytes      int    `json:"bytes"`
	ExportedAt int64  `json:"exported_at"`
}

// Export writes one generation to a Markdown, HTML or plain text file.
func Export(ctx context.Context, database *sql.DB, cfg *config.Config, input ExportInput) (*ExportOutput, error) {
	format, err := exportFormat(input.Format, input.Path)
	if err != nil {
		return nil, err
	}

	g, err := Show(ctx, database, input.ID)
	if err != nil {
		return nil, err
	}
	doc, err := Document(g)
	if err != nil {
		return nil, err
	}

	var data string
	switch format {
	case FormatHTML:
		data, err = render.HTML(doc)
		if err != nil {
			return nil, errors.NewInternal(fmt.Errorf("failed to render html: %w", err))
		}
	case FormatText:
		data = render.PlainText(doc)
	default:
		data = render.Markdown(doc)
	}

	exportPath := input.Path
	if exportPath == "" {
		dir, err := DefaultExportsDir()
		if err != nil {
			return nil, err
		}
		exportPath = filepath.Join(dir, defaultExportName(format, g.Mode, g.ID, doc)+formatExts[format])
	}

	// Default paths are validated too; they embed stored values.
	if err := ValidatePath(exportPath, cfg); err != nil {
		return nil, err
	}

	if err := writeFileAtomic(exportPath, []byte(data)); err != nil {
		return nil, err
	}

	return &ExportOutput{
		Path:       exportPath,
		Format:     format,
		Count:      len(doc.Records),
		Bytes:      len(data),
		ExportedAt: time.Now().Unix(),
	}, nil
}

// exportFormat resolves the format from the explicit value and the path
// extension, rejecting mismatches.
func exportFormat(format, path string) (string, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	switch format {
	case "md":
		format = FormatMarkdown
	case "txt":
		format = FormatText
	}
	if format != "" {
		if _, ok := formatExts[format]; !ok {
			return "", errors.NewInvalidRequest(fmt.Sprintf("unknown export format %q (want markdown, html or text)", format))
		}
	}

	if path == "" {
		if format == "" {
			return FormatMarkdown, nil
		}
		return format, nil
	}

	fromExt := ""
	switch filepath.Ext(path) {
	case ExtMarkdown:
		fromExt = FormatMarkdown
	case ExtHTML:
		fromExt = FormatHTML
	case ExtText:
		fromExt = FormatText
	default:
		// ValidatePath reports the bad extension.
		if format == "" {
			return FormatMarkdown, nil
		}
		return format, nil
	}
	if format != "" && format != fromExt {
		return "", errors.NewInvalidRequest(fmt.Sprintf("format %q does not match path extension %q", format, filepath.Ext(path)))
	}
	return fromExt, nil
}

// defaultExportName is the file name, without extension, used when no path
// is given. A text export of a single record is named after the record,
// like the per-card download; everything else is <mode>-<id>.
func defaultExportName(format, mode, id string, doc render.Document) string {
	if format == FormatText && len(doc.Records) == 1 {
		name, _ := render.Download(doc.Records[0])
		return SanitizeForFilename(name + "-" + id)
	}
	return SanitizeForFilename(mode + "-" + id)
}

// writeFileAtomic writes to a temp file beside path, then renames it into
// place so an existing file survives a failed export.
func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return errors.NewInternal(fmt.Errorf("failed to create export directory: %w", err))
	}

	randBytes := make([]byte, 8)
	if _, err := rand.Read(randBytes); err != nil {
		return errors.NewInternal(fmt.Errorf("failed to generate temp file name: %w", err))
	}
	tempPath := path + "." + hex.EncodeToString(randBytes) + ".tmp"
	file, err := openFileNoFollow(tempPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return errors.NewInternal(fmt.Errorf("failed to create export file: %w", err))
	}

	success := false
	defer func() {
		if file != nil {
			file.Close()
		}
		if !success {
			os.Remove(tempPath)
		}
	}()

	if _, err := file.Write(data); err != nil {
		return errors.NewInternal(err)
	}
	if err := file.Sync(); err != nil {
		return errors.NewInternal(err)
	}
	// Close before rename (required on Windows).
	if err := file.Close(); err != nil {
		return errors.NewInternal(fmt.Errorf("failed to close export file: %w", err))
	}
	file = nil

	// os.Rename would follow a symlink planted after validation.
	if info, err := os.Lstat(path); err == nil && info.Mode()&os.ModeSymlink != 0 {
		return errors.NewInvalidRequest("export path is a symlink")
	}

	// On Windows os.Rename fails if the destination exists; keep the original
	// rather than delete and rename non-atomically.
	if err := os.Rename(tempPath, path); err != nil {
		if runtime.GOOS == "windows" {
			if _, statErr := os.Stat(path); statErr == nil {
				return errors.NewInvalidRequest("export destination already exists; overwriting is not supported on Windows (choose a new path or delete the existing file)")
			}
		}
		return errors.NewInternal(fmt.Errorf("failed to finalize export: %w", err))
	}

	success = true
	return nil
}
