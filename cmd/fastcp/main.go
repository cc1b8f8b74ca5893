// fastcp moves a single file between a local filesystem and a remote host
// over SSH, with resumable, parallel, chunk-level, integrity-checked
// transfer.
//
// Usage:
//
//	fastcp transfer <src> <dst> [flags]
//	fastcp gc [--older-than 24h]
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/acolita/fastcp/internal/adapters/realclock"
	"github.com/acolita/fastcp/internal/adapters/realfs"
	"github.com/acolita/fastcp/internal/config"
	"github.com/acolita/fastcp/internal/logging"
	"github.com/acolita/fastcp/internal/manifest"
	"github.com/acolita/fastcp/internal/orchestrator"
	"github.com/acolita/fastcp/internal/progress"
	"github.com/acolita/fastcp/internal/security"
	"github.com/acolita/fastcp/internal/xerrors"
)

// Version information, set at build time.
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "transfer":
		os.Exit(runTransfer(os.Args[2:]))
	case "gc":
		os.Exit(runGC(os.Args[2:]))
	case "version", "--version", "-V":
		printVersion()
	case "shell", "tunnel", "sync":
		fmt.Fprintf(os.Stderr, "fastcp %s: not implemented in this build\n", os.Args[1])
		os.Exit(1)
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `fastcp - resumable, parallel, integrity-checked SSH file transfer

Usage:
  fastcp transfer <src> <dst> [flags]
  fastcp gc [--older-than 24h]
  fastcp version`)
}

func printVersion() {
	fmt.Printf("fastcp version %s\n", Version)
	fmt.Printf("  build time: %s\n", BuildTime)
	fmt.Printf("  git commit: %s\n", GitCommit)
}

func runTransfer(args []string) int {
	src, dst, tf, err := parseTransferArgs(args)
	if err != nil {
		return reportFlagError(err)
	}

	level := "info"
	if tf.verbose {
		level = "debug"
	}
	if tf.quiet {
		level = "warn"
	}
	logging.Setup(level, true)

	fsys := realfs.New()
	cfgFile, err := config.Load(config.DefaultConfigPath())
	if err != nil {
		slog.Error("load config", slog.String("error", err.Error()))
		return xerrors.Unknown.ExitCode()
	}
	if err := cfgFile.Validate(); err != nil {
		slog.Error("invalid config", slog.String("error", err.Error()))
		return xerrors.Unknown.ExitCode()
	}

	cfg, err := buildConfig(tf, cfgFile.Defaults)
	if err != nil {
		return reportFlagError(errExitCode{code: 2, err: err})
	}

	manifestDir, err := resolveManifestDir(fsys)
	if err != nil {
		slog.Error("resolve manifest directory", slog.String("error", err.Error()))
		return xerrors.Unknown.ExitCode()
	}
	store, err := manifest.NewStore(manifestDir, fsys)
	if err != nil {
		slog.Error("open manifest store", slog.String("error", err.Error()))
		return xerrors.Unknown.ExitCode()
	}

	keyring := security.NewKeyringStore()
	clock := realclock.New()
	svc := orchestrator.New(fsys, store, clock, keyring, slog.Default())
	defer svc.Close()

	opts := buildRunOptions(tf)
	if !tf.quiet {
		opts.ProgressSink = progress.NewBarSink(0, filepath.Base(dst))
	} else {
		opts.ProgressSink = progress.NopSink{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("received interrupt, cancelling transfer")
		cancel()
	}()

	result, err := svc.Run(ctx, src, dst, cfg, opts)
	signal.Stop(sigCh)
	if err != nil {
		return reportTransferError(err)
	}

	slog.Info("transfer complete",
		slog.Int64("bytes", result.BytesTransferred),
		slog.Int("chunks", result.Chunks),
		slog.Duration("elapsed", result.Elapsed),
		slog.String("sha256", result.FileHash),
	)
	return 0
}

func reportFlagError(err error) int {
	var ec errExitCode
	if e, ok := err.(errExitCode); ok {
		ec = e
	} else {
		ec = errExitCode{code: 2, err: err}
	}
	fmt.Fprintf(os.Stderr, "fastcp: %v\n", ec.err)
	return ec.code
}

func reportTransferError(err error) int {
	kind := xerrors.KindOf(err)
	fmt.Fprintf(os.Stderr, "fastcp: %v\n", err)
	return kind.ExitCode()
}

// resolveManifestDir returns $FASTCP_TRANSFER_DIR if set, otherwise
// $HOME/.remote/transfer per spec.md §6.
func resolveManifestDir(fsys interface{ Getenv(string) string }) (string, error) {
	if dir := fsys.Getenv("FASTCP_TRANSFER_DIR"); dir != "" {
		return dir, nil
	}
	home := os.Getenv("HOME")
	if home == "" {
		return "", fmt.Errorf("HOME is not set and FASTCP_TRANSFER_DIR is not set")
	}
	return filepath.Join(home, ".remote", "transfer"), nil
}
