package main

import (
	"fmt"
	"os"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/acolita/fastcp/internal/adapters/realclock"
	"github.com/acolita/fastcp/internal/adapters/realfs"
	"github.com/acolita/fastcp/internal/manifest"
)

// runGC implements the gc subcommand: sweep manifests older than --older-than
// whose task is not currently locked, per spec.md §2's "enumerates/cleans up
// orphans" component description. It is a thin CLI surface over
// Manifest.Store's already-specified ListAll/Cleanup operations.
func runGC(args []string) int {
	fs := flag.NewFlagSet("gc", flag.ContinueOnError)
	olderThan := fs.Duration("older-than", 24*time.Hour, "remove manifests whose last update is older than this")
	dryRun := fs.Bool("dry-run", false, "list what would be removed without removing it")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	fsys := realfs.New()
	dir, err := resolveManifestDir(fsys)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fastcp gc: %v\n", err)
		return 1
	}
	store, err := manifest.NewStore(dir, fsys)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fastcp gc: %v\n", err)
		return 1
	}

	ids, err := store.ListAll()
	if err != nil {
		fmt.Fprintf(os.Stderr, "fastcp gc: %v\n", err)
		return 1
	}

	clock := realclock.New()
	now := float64(clock.Now().UnixNano()) / 1e9
	cutoff := now - olderThan.Seconds()

	removed := 0
	for _, id := range ids {
		m, err := store.Load(id)
		if err != nil || m == nil {
			continue
		}
		if m.UpdatedAt > cutoff {
			continue
		}
		if m.Status == manifest.StatusRunning {
			// A manifest can look stale while its engine is merely slow; the
			// lock file (not age) is the authority on whether a task is
			// actually in flight, so a running-status manifest is skipped
			// unless its lock has already been released.
			if err := store.Lock(id); err != nil {
				continue
			}
			store.Unlock(id)
		}

		if *dryRun {
			age := time.Duration((now - m.UpdatedAt) * float64(time.Second))
			fmt.Printf("would remove %s (last updated %s ago)\n", id, age)
			continue
		}
		if err := store.Cleanup(id); err != nil {
			fmt.Fprintf(os.Stderr, "fastcp gc: cleanup %s: %v\n", id, err)
			continue
		}
		removed++
	}

	if !*dryRun {
		fmt.Printf("removed %d orphaned manifest(s)\n", removed)
	}
	return 0
}
