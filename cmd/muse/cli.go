package main

import (
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/hpungsan/muse/internal/config"
	"github.com/hpungsan/muse/internal/credit"
	"github.com/hpungsan/muse/internal/errors"
	"github.com/hpungsan/muse/internal/generate"
	"github.com/hpungsan/muse/internal/ops"
	"github.com/hpungsan/muse/internal/prefs"
	"github.com/hpungsan/muse/internal/record"
	"github.com/hpungsan/muse/internal/render"
	"github.com/hpungsan/muse/internal/web"
)

// Output styles for generate commands.
const (
	outputNDJSON = "ndjson"
	outputText   = "text"
)

// deps are the services shared by every command. nil is allowed for
// --help and --version, which never reach an Action.
type deps struct {
	db    *sql.DB
	cfg   *config.Config
	tools *generate.Toolset
	store *credit.Store
	log   *slog.Logger
}

// newCLIApp creates the CLI application with all commands.
func newCLIApp(d *deps) *cli.App {
	app := &cli.App{
		Name:    "muse",
		Usage:   "Content ideas, captions and repurposed posts",
		Version: Version,
		Commands: []*cli.Command{
			ideasCmd(d),
			captionCmd(d),
			repurposeCmd(d),
			creditsCmd(d),
			historyCmd(d),
			showCmd(d),
			exportCmd(d),
			serveCmd(d),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// preferenceFlags are shared by the generate commands.
func preferenceFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "niche", EnvVars: []string{"MUSE_NICHE"}, Usage: "Content niche, e.g. \"specialty coffee\""},
		&cli.StringFlag{
			Name:    "platforms",
			EnvVars: []string{"MUSE_PLATFORMS"},
			Usage:   "Comma-separated platforms (" + strings.Join(prefs.KnownPlatforms, ", ") + ")",
		},
		&cli.StringFlag{
			Name:    "tone",
			EnvVars: []string{"MUSE_TONE"},
			Usage:   "Tone of voice (" + strings.Join(prefs.KnownTones, ", ") + ")",
		},
		&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Value: outputNDJSON, Usage: "Output style: ndjson|text"},
	}
}

func preferencesFrom(c *cli.Context) prefs.Preferences {
	return prefs.Preferences{
		Niche:     c.String("niche"),
		Platforms: prefs.SplitList(c.String("platforms")),
		Tone:      c.String("tone"),
	}
}

// ideasCmd creates the ideas command.
func ideasCmd(d *deps) *cli.Command {
	return &cli.Command{
		Name:  "ideas",
		Usage: "Generate content ideas (1 credit)",
		Flags: preferenceFlags(),
		Action: func(c *cli.Context) error {
			return runGenerate(c, d, ops.GenerateInput{
				Mode:        "ideas",
				Preferences: preferencesFrom(c),
			})
		},
	}
}

// captionCmd creates the caption command.
func captionCmd(d *deps) *cli.Command {
	return &cli.Command{
		Name:  "caption",
		Usage: "Optimize a caption draft (1 credit; draft from --draft or stdin)",
		Flags: append(preferenceFlags(),
			&cli.StringFlag{Name: "draft", Aliases: []string{"d"}, Usage: "Caption draft"},
		),
		Action: func(c *cli.Context) error {
			draft, err := textArg(c, "draft")
			if err != nil {
				return outputError(err)
			}
			return runGenerate(c, d, ops.GenerateInput{
				Mode:        "caption",
				Preferences: preferencesFrom(c),
				Draft:       draft,
			})
		},
	}
}

// repurposeCmd creates the repurpose command.
func repurposeCmd(d *deps) *cli.Command {
	names := make([]string, len(record.Formats))
	for i, f := range record.Formats {
		names[i] = string(f)
	}
	return &cli.Command{
		Name:  "repurpose",
		Usage: "Repurpose content into other formats (1 credit per format; source from --source or stdin)",
		Flags: append(preferenceFlags(),
			&cli.StringFlag{Name: "source", Aliases: []string{"s"}, Usage: "Source content"},
			&cli.StringFlag{Name: "formats", Aliases: []string{"f"}, Usage: "Comma-separated formats (" + strings.Join(names, ", ") + ")"},
		),
		Action: func(c *cli.Context) error {
			source, err := textArg(c, "source")
			if err != nil {
				return outputError(err)
			}
			return runGenerate(c, d, ops.GenerateInput{
				Mode:        "repurpose",
				Preferences: preferencesFrom(c),
				Source:      source,
				Formats:     prefs.SplitList(c.String("formats")),
			})
		},
	}
}

// runGenerate streams records to stdout as they arrive. In ndjson output each
// record is a {"record": ...} line and the session ends with a {"result": ...}
// line; in text output records are rendered for reading and the summary goes
// to stderr.
func runGenerate(c *cli.Context, d *deps, input ops.GenerateInput) error {
	style := c.String("output")
	if style != outputNDJSON && style != outputText {
		return outputError(errors.NewInvalidRequest(fmt.Sprintf("output must be %s or %s", outputNDJSON, outputText)))
	}

	enc := json.NewEncoder(os.Stdout)
	emit := func(r record.Record) {
		if style == outputText {
			fmt.Fprintf(os.Stdout, "%s\n\n", render.Text(r))
			return
		}
		env, err := record.Wrap(r)
		if err != nil {
			d.log.Error("encode record", "error", err)
			return
		}
		_ = enc.Encode(map[string]any{"record": env})
	}

	result, err := ops.Generate(c.Context, d.tools, input, emit)
	if err != nil {
		return outputError(err)
	}

	if style == outputText {
		fmt.Fprintf(os.Stderr, "%d record(s), %d credit(s) used, id %s\n", len(result.Records), result.CreditsUsed, result.ID)
		return nil
	}
	return enc.Encode(map[string]any{"result": result})
}

// creditsCmd creates the credits command.
func creditsCmd(d *deps) *cli.Command {
	return &cli.Command{
		Name:  "credits",
		Usage: "Show the credit balance and next reset",
		Action: func(c *cli.Context) error {
			status, err := ops.Credits(c.Context, d.store)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(status)
		},
	}
}

// historyCmd creates the history command.
func historyCmd(d *deps) *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "List past generations, newest first",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "mode", Aliases: []string{"m"}, Usage: "Filter by mode: ideas|caption|repurpose"},
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: ops.DefaultListLimit, Usage: "Maximum items to return"},
			&cli.IntFlag{Name: "offset", Usage: "Number of items to skip"},
		},
		Action: func(c *cli.Context) error {
			result, err := ops.History(c.Context, d.db, ops.HistoryInput{
				Mode:   c.String("mode"),
				Limit:  c.Int("limit"),
				Offset: c.Int("offset"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(result)
		},
	}
}

// showCmd creates the show command.
func showCmd(d *deps) *cli.Command {
	return &cli.Command{
		Name:      "show",
		Usage:     "Show one generation with its records",
		ArgsUsage: "<id>",
		Action: func(c *cli.Context) error {
			id, err := idArg(c)
			if err != nil {
				return outputError(err)
			}
			g, err := ops.Show(c.Context, d.db, id)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(g)
		},
	}
}

// exportCmd creates the export command.
func exportCmd(d *deps) *cli.Command {
	return &cli.Command{
		Name:      "export",
		Usage:     "Export a generation as Markdown, HTML or plain text",
		ArgsUsage: "[--path p] [--format f] <id>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "path", Aliases: []string{"p"}, Usage: "Output path (defaults to ~/.muse/exports/<mode>-<id>.md)"},
			&cli.StringFlag{Name: "format", Usage: "markdown|html|text (inferred from the path extension when omitted)"},
		},
		Action: func(c *cli.Context) error {
			id, err := idArg(c)
			if err != nil {
				return outputError(err)
			}
			result, err := ops.Export(c.Context, d.db, d.cfg, ops.ExportInput{
				ID:     id,
				Path:   c.String("path"),
				Format: c.String("format"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(result)
		},
	}
}

// serveCmd creates the serve command.
func serveCmd(d *deps) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the local HTTP API",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "bind", Value: "127.0.0.1", Usage: "Address to bind"},
			&cli.IntFlag{Name: "port", Value: 8080, Usage: "Port to listen on"},
		},
		Action: func(c *cli.Context) error {
			stop, err := credit.StartResetJob(c.Context, d.store, d.cfg.ResetSchedule)
			if err != nil {
				return outputError(errors.NewInternal(err))
			}
			defer stop()

			srv := web.NewServer(web.Deps{
				DB:      d.db,
				Config:  d.cfg,
				Tools:   d.tools,
				Account: d.store,
				Logger:  d.log,
			}, c.String("bind"), c.Int("port"))

			return web.Run(srv, d.log)
		},
	}
}

// idArg returns the single <id> argument. Flags after the id are not parsed
// by urfave/cli, so trailing arguments are rejected instead of ignored.
func idArg(c *cli.Context) (string, error) {
	if c.Args().Len() > 1 {
		return "", errors.NewInvalidRequest(fmt.Sprintf("unexpected arguments after <id>: %s (flags must precede <id>)",
			strings.Join(c.Args().Tail(), " ")))
	}
	return c.Args().First(), nil
}

// textArg returns the named flag, or stdin when the flag is empty and input
// is piped.
func textArg(c *cli.Context, name string) (string, error) {
	if v := c.String(name); v != "" {
		return v, nil
	}
	if !stdinHasData() {
		return "", nil
	}
	text, err := readStdin()
	if err != nil {
		return "", errors.NewInternal(err)
	}
	return text, nil
}

// outputJSON writes JSON to stdout.
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	var mErr *errors.MuseError
	if stderrors.As(err, &mErr) {
		return cli.Exit(fmt.Sprintf("[%s] %s", mErr.Code, mErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}

// stdinHasData returns true if stdin has piped data (not a terminal).
func stdinHasData() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

// readStdin reads all content from stdin.
func readStdin() (string, error) {
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
