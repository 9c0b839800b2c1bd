package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/qlinetech/qcode/cli"
	"github.com/qlinetech/qcode/internal/tui"
	"github.com/qlinetech/qcode/internal/ui"
	"github.com/qlinetech/qcode/model"
	"github.com/qlinetech/qcode/qcode"

	"github.com/spf13/pflag"
)

var titles = map[cli.Mode]string{
	cli.ModeApply:     "Apply",
	cli.ModeAsk:       "Ask",
	cli.ModeUndo:      "Undo",
	cli.ModeRedo:      "Redo",
	cli.ModeFormat:    "Format",
	cli.ModeDebug:     "Debug",
	cli.ModeStopDebug: "Debug",
	cli.ModeRun:       "Run",
}

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := cli.ParseFlags()
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The spinner owns the terminal, so directories are created without asking.
	animate := !cfg.NoAnimation && titles[cfg.Mode] != ""
	var opts []qcode.Option
	if animate {
		opts = append(opts, qcode.WithConfirm(func([]string) bool { return true }))
	}

	app, err := qcode.New(cfg, opts...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize application: %v\n", err)
		return 1
	}
	defer app.Close()

	// Modes that print to stdout or run until interrupted skip the TUI.
	if titles[cfg.Mode] == "" {
		if _, err := app.Execute(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		return 0
	}

	var summary model.Summary
	if animate {
		summary, err = tui.Run(titles[cfg.Mode]+"...", func() (model.Summary, error) {
			return app.Execute(ctx)
		})
	} else {
		summary, err = app.Execute(ctx)
		if err == nil {
			ui.PrintSummary(titles[cfg.Mode], summary)
		}
	}
	if err != nil {
		// The TUI has already shown the error and its stack.
		if !animate {
			var detailed *qcode.DetailedError
			if errors.As(err, &detailed) {
				fmt.Fprintf(os.Stderr, "\n--- Stack Trace ---\n%s\n", detailed.Stack)
			}
			ui.Error("Error: %v", err)
		}
		return 1
	}
	if len(summary.Failed) > 0 {
		return 1
	}
	return 0
}
