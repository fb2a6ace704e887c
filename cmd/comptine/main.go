// Command comptine imports bank statements into a YAML ledger and reports
// monthly budgets with leftover carry-forward.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/FACorreiaa/comptine/pkg/config"
	"github.com/FACorreiaa/comptine/pkg/logger"
)

// command is one comptine subcommand.
type command struct {
	summary string
	run     func(ctx context.Context, env *env, args []string) error
}

// env is what a subcommand runs with.
type env struct {
	deps   *Dependencies
	stdout io.Writer
	stderr io.Writer
}

var commands = map[string]command{
	"categories":    {summary: "list, add, budget, rename or remove categories", run: runCategories},
	"import":        {summary: "import CSV or XLSX statements into an account", run: runImport},
	"report":        {summary: "show the budget of a month", run: runReport},
	"leftover":      {summary: "decide what happens to a category's leftover", run: runLeftover},
	"rules":         {summary: "list, add, remove, move or apply categorization rules", run: runRules},
	"search":        {summary: "full-text search over operations", run: runSearch},
	"uncategorized": {summary: "list uncategorized operations with suggestions", run: runUncategorized},
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 || args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		usage(stderr)
		return 2
	}
	name := args[0]
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(stderr, "comptine: unknown command %q\n\n", name)
		usage(stderr)
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "comptine: %v\n", err)
		return 1
	}
	log, err := logger.NewWithWriter(stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(stderr, "comptine: %v\n", err)
		return 1
	}
	log = logger.WithComponent(log, logger.ComponentApp)

	deps, err := InitDependencies(ctx, cfg, log)
	if err != nil {
		log.Error("failed to initialize", slog.Any("error", err))
		fmt.Fprintf(stderr, "comptine: %v\n", err)
		return 1
	}
	defer deps.Cleanup(ctx)

	e := &env{deps: deps, stdout: stdout, stderr: stderr}
	if err := cmd.run(ctx, e, args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 2
		}
		log.Debug("command failed", slog.String("command", name), slog.Any("error", err))
		fmt.Fprintf(stderr, "comptine %s: %v\n", name, err)
		return 1
	}
	return 0
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage: comptine <command> [flags] [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "commands:")
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %-14s %s\n", name, commands[name].summary)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "The ledger file and defaults come from the environment (LEDGER_FILE, LEDGER_DIR, ...).")
}

func newFlagSet(e *env, name, args string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(e.stderr)
	fs.Usage = func() {
		fmt.Fprintf(e.stderr, "usage: comptine %s [flags] %s\n", name, args)
		fs.PrintDefaults()
	}
	return fs
}
