package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/bamsammich/fanout/internal/config"
	"github.com/bamsammich/fanout/internal/diag"
	"github.com/bamsammich/fanout/internal/engine"
	"github.com/bamsammich/fanout/internal/event"
	"github.com/bamsammich/fanout/internal/retry"
	"github.com/bamsammich/fanout/internal/stats"
)

var version = "dev"

const usageLine = "usage: fanout [flags] <source> <destination>"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// exitError carries a process exit code out of RunE.
type exitError struct {
	code int
}

func (e *exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

// enumFlag is a pflag.Value that only accepts one of a fixed set of names.
type enumFlag struct {
	value   *string
	allowed []string
}

func (f *enumFlag) String() string {
	if f.value == nil {
		return ""
	}
	return *f.value
}

func (*enumFlag) Type() string { return "string" }

func (f *enumFlag) Set(val string) error {
	if !slices.Contains(f.allowed, val) {
		return fmt.Errorf("must be one of %s", strings.Join(f.allowed, ", "))
	}
	*f.value = val
	return nil
}

type options struct {
	dispatcher  string
	guard       string
	retryDelay  string
	bwLimit     string
	logFile     string
	workers     int
	verify      bool
	strict      bool
	verbose     bool
	quiet       bool
	showVersion bool
}

// run executes the CLI and returns the process exit code.
func run(args []string, stdout, stderr io.Writer) int {
	rootCmd := newRootCmd(stdout, stderr)
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	err := rootCmd.Execute()
	if err == nil {
		return 0
	}
	var exitErr *exitError
	if errors.As(err, &exitErr) {
		return exitErr.code
	}
	fmt.Fprintf(stderr, "fanout: %v\n", err)
	return 2
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	opts := options{
		dispatcher: string(engine.DispatchSpawn),
		guard:      engine.GuardExact.String(),
		retryDelay: retry.DefaultDelay.String(),
	}

	rootCmd := &cobra.Command{
		Use:           "fanout [flags] <source> <destination>",
		Short:         "Replicate a directory tree with one concurrent task per entry",
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.showVersion {
				fmt.Fprintf(stdout, "fanout %s\n", version)
				return nil
			}
			// A wrong argument count prints usage and exits 0, as the
			// tool always has. Scripts relying on a non-zero status here
			// will not see one.
			if len(args) != 2 {
				fmt.Fprintln(stdout, usageLine)
				return nil
			}
			return replicate(cmd, &opts, args[0], args[1], stderr)
		},
	}
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.AddCommand(newDocsCmd())

	flags := rootCmd.Flags()
	flags.BoolVar(&opts.showVersion, "version", false, "print version and exit")
	flags.Var(&enumFlag{value: &opts.dispatcher, allowed: []string{"spawn", "pool", "inline"}},
		"dispatcher", "task dispatcher: spawn, pool or inline")
	flags.IntVar(&opts.workers, "workers", 0, "worker count for the pool dispatcher (0 = auto)")
	flags.StringVar(&opts.retryDelay, "retry-delay", opts.retryDelay, "pause between retries of exhausted resources")
	flags.Var(&enumFlag{value: &opts.guard, allowed: []string{"exact", "nested"}},
		"guard", "destination-inside-source guard: exact or nested")
	flags.StringVar(&opts.bwLimit, "bwlimit", "", "bandwidth limit (e.g. 100MB, 1G)")
	flags.BoolVar(&opts.verify, "verify", false, "verify copied files with BLAKE3 checksums")
	flags.BoolVar(&opts.strict, "strict", false, "exit 1 when any entry failed to copy or verify")
	flags.StringVar(&opts.logFile, "log", "", "write structured JSON log to FILE")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "log every directory and file")
	flags.BoolVarP(&opts.quiet, "quiet", "q", false, "log errors only")
	rootCmd.MarkFlagsMutuallyExclusive("verbose", "quiet")

	return rootCmd
}

//nolint:gocyclo,revive // cyclomatic,cognitive-complexity: CLI entry point wires every option
func replicate(cmd *cobra.Command, opts *options, rawSrc, rawDst string, stderr io.Writer) error {
	var logW io.Writer
	if opts.logFile != "" {
		lf, err := os.Create(opts.logFile)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		defer lf.Close()
		logW = lf
	}
	logger := diag.NewLogger(stderr, diag.Level(opts.verbose, opts.quiet), logW)
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Warn("failed to load config", "error", err)
	}
	applyConfigDefaults(cmd.Flags(), cfg.Defaults, opts)

	mode, err := engine.ParseDispatchMode(opts.dispatcher)
	if err != nil {
		return err
	}
	guard, err := engine.ParseGuard(opts.guard)
	if err != nil {
		return err
	}
	delay, err := config.ParseDelay(opts.retryDelay)
	if err != nil {
		return fmt.Errorf("invalid --retry-delay: %w", err)
	}
	var bwLimit int64
	if opts.bwLimit != "" {
		bwLimit, err = config.ParseSize(opts.bwLimit)
		if err != nil {
			return fmt.Errorf("invalid --bwlimit: %w", err)
		}
	}

	src, err := filepath.Abs(rawSrc)
	if err != nil {
		return fmt.Errorf("source: %w", err)
	}
	dst, err := filepath.Abs(rawDst)
	if err != nil {
		return fmt.Errorf("destination: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	collector := stats.NewCollector()

	// With --log, engine events are written as structured records.
	var events chan event.Event
	teeDone := make(chan struct{})
	if logW != nil {
		events = make(chan event.Event, 256)
		go func() {
			defer close(teeDone)
			for ev := range events {
				logEvent(ctx, logger, ev)
			}
		}()
	} else {
		close(teeDone)
	}

	engineCfg := engine.Config{
		Src:     src,
		Dst:     dst,
		Mode:    mode,
		Workers: opts.workers,
		Guard:   guard,
		Retry:   retry.Policy{Delay: delay},
		BWLimit: bwLimit,
		Verify:  opts.verify,
		Stats:   collector,
		Events:  events,
		Logger:  logger,
	}

	logger.Debug("starting copy",
		"src", src,
		"dst", dst,
		"dispatcher", string(mode),
		"guard", guard.String(),
		"retry_delay", delay.String(),
	)

	runHandle, err := engine.Start(ctx, engineCfg)
	if err != nil {
		if events != nil {
			close(events)
		}
		<-teeDone
		return err
	}

	result := runHandle.Wait(ctx)
	if result.Err != nil && ctx.Err() != nil {
		// Tasks may still emit, so the event channel stays open.
		logger.Warn("interrupted", "live_tasks", runHandle.Live())
		return &exitError{code: 130}
	}
	if events != nil {
		close(events)
	}
	<-teeDone
	if result.Err != nil {
		return result.Err
	}

	snap := result.Stats
	logger.Info("replication finished",
		"dirs", snap.DirsCreated,
		"files", snap.FilesCopied,
		"bytes", stats.FormatBytes(snap.BytesCopied),
		"skipped", snap.EntriesSkipped,
		"failed", snap.Failures(),
		"retries", snap.Retries,
		"elapsed", snap.Elapsed.String(),
	)
	if result.Verify != nil {
		logger.Info("verification finished", "verified", result.Verify.Verified, "failed", result.Verify.Failed)
	}

	if failures := snap.Failures(); failures > 0 {
		logger.Warn("some entries were not replicated", "failures", failures)
		if opts.strict {
			return &exitError{code: 1}
		}
	}
	return nil
}

func logEvent(ctx context.Context, logger *slog.Logger, ev event.Event) {
	attrs := []slog.Attr{
		slog.String("type", ev.Type.String()),
		slog.String("src", ev.Src),
		slog.String("dst", ev.Dst),
		slog.Int64("size", ev.Size),
	}
	if ev.Error != nil {
		attrs = append(attrs, slog.String("error", ev.Error.Error()))
	}
	logger.LogAttrs(ctx, slog.LevelInfo, "fanout.event", attrs...)
}

// applyConfigDefaults applies config file defaults for flags not explicitly set on the CLI.
func applyConfigDefaults(flags *pflag.FlagSet, defaults config.DefaultsConfig, opts *options) {
	if !flags.Changed("dispatcher") && defaults.Dispatcher != nil {
		opts.dispatcher = *defaults.Dispatcher
	}
	if !flags.Changed("workers") && defaults.Workers != nil {
		opts.workers = *defaults.Workers
	}
	if !flags.Changed("retry-delay") && defaults.RetryDelay != nil {
		opts.retryDelay = *defaults.RetryDelay
	}
	if !flags.Changed("guard") && defaults.Guard != nil {
		opts.guard = *defaults.Guard
	}
	if !flags.Changed("bwlimit") && defaults.BWLimit != nil {
		opts.bwLimit = *defaults.BWLimit
	}
	if !flags.Changed("verify") && defaults.Verify != nil {
		opts.verify = *defaults.Verify
	}
	if !flags.Changed("strict") && defaults.Strict != nil {
		opts.strict = *defaults.Strict
	}
}
