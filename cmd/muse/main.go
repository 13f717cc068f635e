package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/hpungsan/muse/internal/config"
	"github.com/hpungsan/muse/internal/credit"
	"github.com/hpungsan/muse/internal/db"
	"github.com/hpungsan/muse/internal/generate"
	"github.com/hpungsan/muse/internal/logger"
	"github.com/hpungsan/muse/internal/mcp"
	"github.com/hpungsan/muse/internal/ops"
)

// Version is set via -ldflags at build time.
var Version = "dev"

// cliCommands contains known CLI subcommands.
var cliCommands = map[string]bool{
	"ideas": true, "caption": true, "repurpose": true,
	"credits": true, "history": true, "show": true, "export": true,
	"serve": true,
	"help":  true,
}

// isCLIMode determines if we should run CLI vs MCP server.
func isCLIMode() bool {
	if len(os.Args) < 2 {
		return false // No args → MCP server
	}
	arg := os.Args[1]
	if cliCommands[arg] {
		return true
	}
	if arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v" {
		return true
	}
	return false
}

// isHelpOrVersion returns true if the user is requesting help or version info.
func isHelpOrVersion() bool {
	if len(os.Args) < 2 {
		return false
	}
	arg := os.Args[1]
	return arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v" || arg == "help"
}

// isTerminal returns true if stdin is a terminal (not piped).
func isTerminal() bool {
	stat, _ := os.Stdin.Stat()
	return (stat.Mode() & os.ModeCharDevice) != 0
}

// printBanner displays a friendly banner when run interactively without args.
func printBanner() {
	fmt.Println(`
   __  __
  |  \/  |_   _ ___  ___
  | |\/| | | | / __|/ _ \
  | |  | | |_| \__ \  __/
  |_|  |_|\__,_|___/\___|

  Content ideas, captions and repurposed posts

  Usage: muse <command> [options]
         muse --help

  MCP server mode requires piped input.`)
}

// stderrNotifier prints notices for a human at the terminal.
func stderrNotifier(n generate.Notice) {
	if n.Description == "" {
		fmt.Fprintf(os.Stderr, "[%s] %s\n", n.Level, n.Title)
		return
	}
	fmt.Fprintf(os.Stderr, "[%s] %s: %s\n", n.Level, n.Title, n.Description)
}

// logNotifier records notices in the log; the MCP client gets them as results.
func logNotifier(log *slog.Logger) generate.Notifier {
	return generate.NotifierFunc(func(n generate.Notice) {
		log.Info("notice", "level", string(n.Level), "title", n.Title, "description", n.Description)
	})
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(1)
}

func main() {
	// No args + interactive terminal → show banner and exit
	if len(os.Args) < 2 && isTerminal() {
		printBanner()
		return
	}

	// Handle --help/--version before DB init (no DB needed)
	if isHelpOrVersion() {
		app := newCLIApp(nil)
		if err := app.Run(os.Args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// A missing .env is fine; anything else in it is reported by config.Load.
	_ = godotenv.Load()

	baseDir, err := config.BaseDir()
	if err != nil {
		fatal("could not determine base directory: %v", err)
	}
	cwd, err := os.Getwd()
	if err != nil {
		fatal("could not determine working directory: %v", err)
	}

	cfg, err := config.LoadWithRepo(baseDir, cwd)
	if err != nil {
		fatal("failed to load config: %v", err)
	}

	log := logger.Init(cfg.LogLevel, cfg.LogFormat, os.Stderr)
	if unknown := mcp.ValidateDisabledTools(cfg.DisabledTools); len(unknown) > 0 {
		log.Warn("unknown disabled_tools entries ignored", "names", unknown)
	}
	if unknown := mcp.ValidateDisabledTypes(cfg.DisabledTypes); len(unknown) > 0 {
		log.Warn("unknown disabled_types entries ignored", "names", unknown)
	}

	database, err := db.Init(baseDir)
	if err != nil {
		fatal("failed to initialize database: %v", err)
	}
	defer database.Close()
	db.ConfigurePool(database, cfg)

	ctx := context.Background()
	store, err := credit.NewStore(ctx, database, cfg.DailyCredits, cfg.ResetSchedule, credit.WithLogger(log))
	if err != nil {
		fatal("failed to open credit ledger: %v", err)
	}

	cliMode := isCLIMode()
	var notifier generate.Notifier = generate.NotifierFunc(stderrNotifier)
	if !cliMode {
		notifier = logNotifier(log)
	}

	tools := generate.NewToolset(generate.Options{
		Client:       generate.NewClient(cfg.BaseURL, cfg.SessionID),
		Ledger:       store,
		RefundPolicy: cfg.RefundPolicy,
		Timeout:      cfg.RequestTimeout(),
		Notifier:     notifier,
		Journal:      ops.NewJournal(database),
		Logger:       log,
	})

	d := &deps{
		db:    database,
		cfg:   cfg,
		tools: tools,
		store: store,
		log:   log,
	}

	// CLI mode: known subcommand
	if cliMode {
		app := newCLIApp(d)
		if err := app.Run(os.Args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// Unknown argument + terminal → show error (don't start MCP server)
	if len(os.Args) >= 2 && isTerminal() {
		fmt.Fprintf(os.Stderr, "error: unknown command %q\n", os.Args[1])
		fmt.Fprintf(os.Stderr, "Run 'muse --help' for usage.\n")
		os.Exit(1)
	}

	stop, err := credit.StartResetJob(ctx, store, cfg.ResetSchedule)
	if err != nil {
		fatal("failed to schedule credit reset: %v", err)
	}
	defer stop()

	// MCP server mode (default)
	if err := mcp.Run(database, cfg, tools, store, Version); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
