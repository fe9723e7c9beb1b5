// Package app provides the top-level application lifecycle for polydesk. It
// wires the backend client, caches, stores and services from configuration
// and dispatches the requested command.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"

	"github.com/alanyoungcy/polydesk/internal/config"
)

// ErrUsage reports a malformed command line.
var ErrUsage = errors.New("usage")

// command runs one CLI command against wired dependencies.
type command struct {
	summary string
	run     func(a *App, ctx context.Context, deps *Dependencies, args []string) error
}

var commands = map[string]command{
	"serve":   {"run the dashboard server, order tracker and gas estimator", (*App).serve},
	"events":  {"list events", (*App).listEvents},
	"event":   {"show an event and its markets", (*App).showEvent},
	"markets": {"list markets", (*App).listMarkets},
	"market":  {"show a market", (*App).showMarket},
	"orders":  {"list orders", (*App).listOrders},
	"order":   {"show an order", (*App).showOrder},
	"submit":  {"sign and submit an order", (*App).submitOrder},
	"cancel":  {"cancel a pending or queued order", (*App).cancelOrder},
	"funds":   {"show balance, allowance and the gate decision", (*App).showFunds},
	"approve": {"approve USDC spending for a spend amount", (*App).approve},
	"sync":    {"queue an event sync on the backend", (*App).syncEvents},
	"export":  {"export order history as JSON lines", (*App).exportOrders},
	"theme":   {"show or set the dashboard theme", (*App).theme},
}

// App is the root application object. It owns the configuration, logger,
// the command output and a list of cleanup functions that are called in
// reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	out     io.Writer
	closers []func()
}

// New creates a new App writing command output to out.
func New(cfg *config.Config, logger *slog.Logger, out io.Writer) *App {
	return &App{
		cfg:    cfg,
		logger: logger,
		out:    out,
	}
}

// Run executes the command named by args[0]. It wires the dependencies that
// command needs and blocks until the command finishes or ctx is cancelled.
func (a *App) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		a.Usage()
		return fmt.Errorf("app: %w: no command given", ErrUsage)
	}
	name, rest := args[0], args[1:]

	if name == "encrypt-key" {
		return a.encryptKey(rest)
	}
	cmd, ok := commands[name]
	if !ok {
		a.Usage()
		return fmt.Errorf("app: %w: unknown command %q", ErrUsage, name)
	}

	a.logger.DebugContext(ctx, "app: starting command", slog.String("command", name))

	deps, cleanup, err := Wire(ctx, a.cfg, name, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	return cmd.run(a, ctx, deps, rest)
}

// Usage prints the command list.
func (a *App) Usage() {
	names := make([]string, 0, len(commands)+1)
	for name := range commands {
		names = append(names, name)
	}
	names = append(names, "encrypt-key")
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("usage: polydesk [-config path] <command> [flags]\n\ncommands:\n")
	for _, name := range names {
		summary := "write the wallet key to an encrypted key file"
		if c, ok := commands[name]; ok {
			summary = c.summary
		}
		fmt.Fprintf(&b, "  %-12s %s\n", name, summary)
	}
	fmt.Fprint(a.out, b.String())
}

// Close tears down all resources in reverse registration order. It is safe to
// call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
