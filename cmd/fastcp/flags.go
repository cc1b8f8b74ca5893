package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	flag "github.com/spf13/pflag"

	"github.com/acolita/fastcp/internal/config"
	"github.com/acolita/fastcp/internal/orchestrator"
	"github.com/acolita/fastcp/internal/ssh"
	"github.com/acolita/fastcp/internal/transfer"
)

// transferFlags holds the parsed flags for the transfer subcommand, before
// they're merged with config file defaults into a transfer.Config.
type transferFlags struct {
	port           int
	preserve       bool
	verbose        bool
	quiet          bool
	compress       bool
	limitRate      string
	resume         bool
	resumeExplicit bool
	noResume       bool
	force          bool
	parallel       int
	aria2          bool
	split          int
	chunk          string
	recursive      bool
	keyPath        string
	passphrase     string
	password       string
	useAgent       bool
	knownHosts     string
	timeout        time.Duration
	maxRetries     int
	retryDelay     time.Duration
}

// parseTransferArgs parses the flag table from spec.md §6 and returns the
// positional src/dst arguments alongside the raw flag values. It does not
// merge config file defaults; callers combine this with config.Defaults.
func parseTransferArgs(args []string) (src, dst string, tf transferFlags, err error) {
	fs := flag.NewFlagSet("transfer", flag.ContinueOnError)

	fs.IntVarP(&tf.port, "port", "P", 22, "SSH port")
	fs.BoolVarP(&tf.preserve, "preserve", "p", false, "preserve mode/mtime")
	fs.BoolVarP(&tf.verbose, "verbose", "v", false, "verbose logging")
	fs.BoolVarP(&tf.quiet, "quiet", "q", false, "quiet logging")
	fs.BoolVarP(&tf.compress, "compress", "C", false, "reserved: compression (accepted, may no-op)")
	fs.StringVarP(&tf.limitRate, "limit-rate", "l", "", "rate cap; accepts K/M/G suffix")
	fs.BoolVar(&tf.resume, "resume", true, "resume an interrupted transfer")
	fs.BoolVar(&tf.noResume, "no-resume", false, "ignore any existing manifest")
	fs.BoolVar(&tf.force, "force", false, "discard manifest, restart")
	fs.IntVar(&tf.parallel, "parallel", 4, "worker count")
	fs.BoolVar(&tf.aria2, "aria2", false, "aggressive chunking/parallelism profile")
	fs.IntVar(&tf.split, "split", 32, "aria2 chunk count hint")
	fs.StringVar(&tf.chunk, "chunk", "", "chunk size override; accepts K/M")
	fs.BoolVarP(&tf.recursive, "recursive", "r", false, "recursive (rejected: not supported)")
	fs.StringVar(&tf.keyPath, "identity", "", "path to SSH private key")
	fs.StringVar(&tf.passphrase, "passphrase", "", "passphrase for an encrypted private key")
	fs.StringVar(&tf.password, "password", "", "SSH password")
	fs.BoolVar(&tf.useAgent, "agent", true, "use SSH agent for authentication")
	fs.StringVar(&tf.knownHosts, "known-hosts", "", "path to known_hosts file")
	fs.DurationVar(&tf.timeout, "timeout", 30*time.Second, "per-operation timeout")
	fs.IntVar(&tf.maxRetries, "max-retries", 3, "per-chunk retry budget")
	fs.DurationVar(&tf.retryDelay, "retry-delay", time.Second, "base retry backoff delay")

	if err = fs.Parse(args); err != nil {
		return "", "", tf, err
	}
	tf.resumeExplicit = fs.Changed("resume")

	if tf.recursive {
		return "", "", tf, errExitCode{code: 2, err: fmt.Errorf("recursive transfer is not supported")}
	}

	positional := fs.Args()
	if len(positional) != 2 {
		return "", "", tf, errExitCode{code: 2, err: fmt.Errorf("expected exactly 2 arguments: <src> <dst>, got %d", len(positional))}
	}

	return positional[0], positional[1], tf, nil
}

// buildConfig merges CLI flags over the config file's defaults into a
// transfer.Config (flags win, per SPEC_FULL.md §2.3).
func buildConfig(tf transferFlags, defaults config.TransferDefaults) (transfer.Config, error) {
	cfg := transfer.Config{
		Resume:              defaults.Resume,
		Force:               tf.force,
		Parallel:            defaults.Parallel,
		Aria2:               tf.aria2,
		ChunkSize:           defaults.ChunkSize,
		LimitRate:           defaults.LimitRate,
		PreservePermissions: tf.preserve,
		Compress:            tf.compress,
		Timeout:             tf.timeout,
		MaxRetries:          defaults.MaxRetries,
		RetryDelay:          tf.retryDelay,
	}

	if tf.resumeExplicit {
		cfg.Resume = tf.resume
	}
	if tf.noResume {
		cfg.Resume = false
	}
	if cfg.Force {
		cfg.Resume = true // force replaces the manifest; resume then just means "use the new plan"
	}

	if tf.parallel != 0 {
		cfg.Parallel = tf.parallel
	}
	if tf.aria2 && tf.split > 0 {
		cfg.ChunkSize = 0 // aria2 mode derives its own chunk size from the tiering table
	}
	if tf.chunk != "" {
		size, err := humanize.ParseBytes(tf.chunk)
		if err != nil {
			return cfg, fmt.Errorf("invalid --chunk value %q: %w", tf.chunk, err)
		}
		cfg.ChunkSize = int64(size)
	}
	if tf.limitRate != "" {
		rate, err := humanize.ParseBytes(tf.limitRate)
		if err != nil {
			return cfg, fmt.Errorf("invalid --limit-rate value %q: %w", tf.limitRate, err)
		}
		cfg.LimitRate = int64(rate)
	}
	if tf.maxRetries != 0 {
		cfg.MaxRetries = tf.maxRetries
	}

	return cfg, nil
}

func buildRunOptions(tf transferFlags) orchestrator.RunOptions {
	return orchestrator.RunOptions{
		Auth: ssh.AuthConfig{
			KeyPath:       tf.keyPath,
			KeyPassphrase: tf.passphrase,
			UseAgent:      tf.useAgent,
			Password:      tf.password,
		},
		Port:           tf.port,
		KnownHostsPath: tf.knownHosts,
	}
}

// errExitCode lets a flag-parsing error request a specific process exit
// code (spec.md §6's table), bypassing xerrors.Kind mapping for cases that
// never reach the orchestrator.
type errExitCode struct {
	code int
	err  error
}

func (e errExitCode) Error() string { return e.err.Error() }
func (e errExitCode) Unwrap() error { return e.err }
