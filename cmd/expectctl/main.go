package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mattn/go-isatty"

	"github.com/user/expectctl/internal/config"
	"github.com/user/expectctl/internal/expect"
	"github.com/user/expectctl/internal/record"
	"github.com/user/expectctl/internal/script"
	"github.com/user/expectctl/internal/server"
)

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})))

	configPath := flag.String("config", "", "path to config file")
	flag.Usage = usage
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch flag.Arg(0) {
	case "run":
		if flag.NArg() != 2 {
			usage()
			os.Exit(2)
		}
		if err := runScript(ctx, cfg, flag.Arg(1)); err != nil {
			slog.Error("script failed", "error", err)
			os.Exit(1)
		}
	case "serve":
		if err := serve(ctx, cfg); err != nil {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `usage: expectctl [-config file] <command>

commands:
  run <script.yaml>   execute a script and print step results
  serve               start the HTTP API
`)
}

func openStore(ctx context.Context, cfg config.Config) (*record.Store, error) {
	if cfg.HistoryPath == "" {
		return nil, nil
	}
	return record.Open(ctx, cfg.HistoryPath)
}

func runScript(ctx context.Context, cfg config.Config, path string) error {
	sc, err := script.Load(path)
	if err != nil {
		return err
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	runner := script.NewRunner(cfg.SessionOptions(), store, nil)
	runner.OnStep = printStep(isatty.IsTerminal(os.Stdout.Fd()))

	_, err = runner.Run(ctx, sc)
	return err
}

// printStep renders results human-readably on a terminal and as JSON lines
// otherwise, so the output pipes cleanly into jq and friends.
func printStep(tty bool) func(script.StepResult) {
	enc := json.NewEncoder(os.Stdout)
	return func(res script.StepResult) {
		if !tty {
			_ = enc.Encode(res)
			return
		}
		status := "ok"
		if res.Err != "" {
			status = "FAIL: " + res.Err
		}
		fmt.Printf("step %d  %-12s %s\n", res.Step, res.Action, status)
		if res.MatchIndex >= 0 {
			fmt.Printf("        matched pattern %d: %q\n", res.MatchIndex, res.After)
		}
	}
}

func serve(ctx context.Context, cfg config.Config) error {
	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	mgr := expect.NewManager()
	defer mgr.Close()

	fmt.Printf("\nexpectctl serving at http://localhost:%d\n\n", cfg.Port)
	return server.New(cfg, mgr, store).Start(ctx)
}
