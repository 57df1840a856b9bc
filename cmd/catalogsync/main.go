package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"catalogsync/internal/config"
	"catalogsync/internal/logger"
	"catalogsync/internal/services/square"
	"catalogsync/internal/worker"
	"catalogsync/internal/worker/processors/export"
)

func main() {
	args, err := parseArgs(os.Args[1:], os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		os.Exit(2)
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration: ", err)
	}
	args.apply(cfg)

	// Initialize logger
	logger := logger.New(cfg.LogLevel, cfg.Env)
	defer logger.Sync()

	maxRetries := cfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = square.NoRetries
	}
	client := square.NewClient(square.Options{
		BaseURL:           cfg.SquareBaseURL,
		APIVersion:        cfg.SquareAPIVersion,
		AccessToken:       cfg.SquareAccessToken,
		Timeout:           cfg.RequestTimeout,
		MaxRetries:        maxRetries,
		RequestsPerSecond: cfg.RequestsPerSecond,
	}, logger)

	exporter := export.New(cfg, logger)
	defer exporter.Close()

	w, err := worker.New(cfg, logger, client, exporter, os.Stdout)
	if err != nil {
		logger.Fatal("Failed to initialize worker: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("Running %s for location %s", args.command, cfg.SquareLocationID)
	if err := w.Run(ctx, args.command); err != nil {
		logger.Error("%s failed: %v", args.command, err)
		exporter.Close()
		logger.Sync()
		os.Exit(1)
	}
	logger.Info("%s finished", args.command)
}

// cliArgs holds the command and the flags set on the command line.
type cliArgs struct {
	command      worker.Command
	dryRun       *bool
	targetMargin *string
}

// parseArgs runs before any configuration is read, so usage errors and -h
// never depend on the environment.
func parseArgs(argv []string, output io.Writer) (*cliArgs, error) {
	fs := flag.NewFlagSet("catalogsync", flag.ContinueOnError)
	fs.SetOutput(output)
	dryRun := fs.Bool("dry-run", false, "log mutations instead of sending them (env DRY_RUN)")
	targetMargin := fs.String("target-margin", "", "margin on retail to raise prices to (env TARGET_MARGIN, default 0.40)")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "usage: catalogsync [flags] <%s>\n", joinCommands())
		fs.PrintDefaults()
	}

	if err := fs.Parse(argv); err != nil {
		return nil, err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return nil, fmt.Errorf("expected one command, got %d arguments", fs.NArg())
	}

	args := &cliArgs{command: worker.Command(fs.Arg(0))}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "dry-run":
			args.dryRun = dryRun
		case "target-margin":
			args.targetMargin = targetMargin
		}
	})
	return args, nil
}

// apply overrides the environment with the flags that were given.
func (a *cliArgs) apply(cfg *config.Config) {
	if a.dryRun != nil {
		cfg.DryRun = *a.dryRun
	}
	if a.targetMargin != nil {
		cfg.TargetMargin = *a.targetMargin
	}
}

func joinCommands() string {
	names := make([]string, 0, len(worker.Commands))
	for _, c := range worker.Commands {
		names = append(names, string(c))
	}
	return strings.Join(names, "|")
}
