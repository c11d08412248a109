package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/terminus-industrials/intake/internal/config"
	"github.com/terminus-industrials/intake/internal/db"
	"github.com/terminus-industrials/intake/internal/dispatch"
	"github.com/terminus-industrials/intake/internal/mcp"
	"github.com/terminus-industrials/intake/internal/relay"
)

// Version is set via -ldflags at build time.
var Version = "dev"

// cliCommands contains known CLI subcommands.
var cliCommands = map[string]bool{
	"serve": true, "relay": true,
	"fields": true, "validate": true, "save": true, "fill": true,
	"fetch": true, "list": true, "delete": true, "purge": true, "export": true,
	"submit": true, "contact": true,
	"help": true,
}

// isCLIMode determines if we should run CLI vs MCP server.
func isCLIMode(args []string) bool {
	if len(args) < 2 {
		return false // No args → MCP server
	}
	arg := args[1]
	if cliCommands[arg] {
		return true
	}
	return arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v"
}

// isHelpOrVersion returns true if the user is requesting help or version info.
func isHelpOrVersion(args []string) bool {
	if len(args) < 2 {
		return false
	}
	arg := args[1]
	return arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v" || arg == "help"
}

// splitDir removes a leading --dir flag from args and returns its value.
// The base directory has to be known before the database is opened, so it
// is taken ahead of subcommand parsing.
func splitDir(args []string) (dir string, rest []string, err error) {
	if len(args) < 2 {
		return "", args, nil
	}
	arg := args[1]
	switch {
	case arg == "--dir":
		if len(args) < 3 || strings.TrimSpace(args[2]) == "" {
			return "", nil, fmt.Errorf("--dir requires a path")
		}
		return args[2], append([]string{args[0]}, args[3:]...), nil
	case strings.HasPrefix(arg, "--dir="):
		dir = strings.TrimPrefix(arg, "--dir=")
		if strings.TrimSpace(dir) == "" {
			return "", nil, fmt.Errorf("--dir requires a path")
		}
		return dir, append([]string{args[0]}, args[2:]...), nil
	}
	return "", args, nil
}

// isTerminal returns true if stdin is a terminal (not piped).
func isTerminal() bool {
	stat, _ := os.Stdin.Stat()
	return (stat.Mode() & os.ModeCharDevice) != 0
}

// printBanner displays a friendly banner when run interactively without args.
func printBanner() {
	fmt.Println(`
   _       _        _
  (_)_ __ | |_ __ _| | _____
  | | '_ \| __/ _' | |/ / _ \
  | | | | | || (_| |   <  __/
  |_|_| |_|\__\__,_|_|\_\___|

  Terminus Industrials lead intake

  Usage: intake <command> [options]
         intake --help

  MCP server mode requires piped input.`)
}

func main() {
	dir, args, err := splitDir(os.Args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// No args + interactive terminal → show banner and exit
	if len(args) < 2 && isTerminal() {
		printBanner()
		return
	}

	// Handle --help/--version before DB init (no DB needed)
	if isHelpOrVersion(args) {
		app := newCLIApp(nil, nil, nil, "")
		if err := app.Run(args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	baseDir := dir
	if baseDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: could not determine home directory: %v\n", err)
			os.Exit(1)
		}
		baseDir = filepath.Join(homeDir, ".intake")
	}

	database, err := db.Init(baseDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to initialize database: %v\n", err)
		os.Exit(1)
	}
	defer database.Close()

	cfg, err := config.Load(baseDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to load config: %v\n", err)
		os.Exit(1)
	}
	db.ConfigurePool(database, cfg)

	dispatcher := dispatch.New(relay.NewClient(cfg.RelayURL, cfg.RelayTimeout()), cfg)

	// CLI mode: known subcommand
	if isCLIMode(args) {
		app := newCLIApp(database, cfg, dispatcher, baseDir)
		if err := app.Run(args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// Unknown argument + terminal → show error (don't start MCP server)
	if len(args) >= 2 && isTerminal() {
		fmt.Fprintf(os.Stderr, "error: unknown command %q\n", args[1])
		fmt.Fprintf(os.Stderr, "Run 'intake --help' for usage.\n")
		os.Exit(1)
	}

	for _, name := range mcp.ValidateDisabledTools(cfg.DisabledTools) {
		log.Printf("warning: unknown tool in disabled_tools: %q", name)
	}
	for _, name := range mcp.ValidateDisabledTypes(cfg.DisabledTypes) {
		log.Printf("warning: unknown type in disabled_types: %q", name)
	}

	// MCP server mode (default)
	if err := mcp.Run(database, cfg, dispatcher, Version); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
