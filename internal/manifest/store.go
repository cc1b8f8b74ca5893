package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/acolita/fastcp/internal/ports"
)

// LockHeldError is returned by Store.Lock when another process already
// holds the exclusive lock for a task, enforcing spec.md §5's
// single-engine-per-task invariant.
type LockHeldError struct {
	TaskID string
}

func (e *LockHeldError) Error() string {
	return fmt.Sprintf("manifest: task %s is locked by another fastcp process", e.TaskID)
}

// Store persists Manifests as JSON files under a directory, one file per
// task ID, with atomic replace-on-save and a sibling lock file enforcing
// single-writer access per task.
type Store struct {
	dir  string
	fsys ports.FileSystem

	mu    sync.Mutex
	locks map[string]ports.FileHandle
}

// NewStore returns a Store rooted at dir. dir is created if it doesn't
// exist.
func NewStore(dir string, fsys ports.FileSystem) (*Store, error) {
	if err := fsys.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("manifest: create store dir: %w", err)
	}
	return &Store{dir: dir, fsys: fsys, locks: make(map[string]ports.FileHandle)}, nil
}

func (s *Store) path(taskID string) string {
	return filepath.Join(s.dir, taskID+".json")
}

func (s *Store) tmpPath(taskID string) string {
	return filepath.Join(s.dir, taskID+".json.tmp")
}

func (s *Store) corruptPath(taskID string) string {
	return filepath.Join(s.dir, taskID+".json.corrupt")
}

func (s *Store) lockPath(taskID string) string {
	return filepath.Join(s.dir, taskID+".lock")
}

// Load reads the manifest for taskID. If the file doesn't exist, it returns
// (nil, nil): an absent manifest means "start fresh", not an error. A
// manifest that fails to parse as JSON is quarantined to a .corrupt sibling
// and treated the same as absent, so one damaged file doesn't wedge the
// task permanently (spec.md §4.2).
func (s *Store) Load(taskID string) (*Manifest, error) {
	data, err := s.fsys.ReadFile(s.path(taskID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("manifest: read %s: %w", taskID, err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		_ = s.fsys.Rename(s.path(taskID), s.corruptPath(taskID))
		return nil, nil
	}
	if m.Version != Version {
		// A manifest from an incompatible schema version is treated as
		// stale: the caller replans from scratch rather than trusting
		// partial progress recorded under a different layout.
		return nil, nil
	}
	return &m, nil
}

// Save writes m atomically: the new content is written to a temp file in
// the same directory, fsynced, then renamed over the final path. The
// rename is atomic on POSIX filesystems, so a crash mid-save never leaves
// a half-written manifest for Load to trip over. The parent directory is
// then best-effort fsynced so the rename itself survives a crash.
func (s *Store) Save(m *Manifest) error {
	m.Version = Version
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("manifest: marshal %s: %w", m.TaskID, err)
	}

	tmp := s.tmpPath(m.TaskID)
	if err := s.fsys.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("manifest: write temp file: %w", err)
	}
	if fh, err := s.fsys.OpenFile(tmp, os.O_RDONLY, 0); err == nil {
		syncHandle(fh)
		_ = fh.Close()
	}

	if err := s.fsys.Rename(tmp, s.path(m.TaskID)); err != nil {
		return fmt.Errorf("manifest: rename into place: %w", err)
	}

	if fh, err := s.fsys.OpenFile(s.dir, os.O_RDONLY, 0); err == nil {
		syncHandle(fh)
		_ = fh.Close()
	}
	return nil
}

type syncer interface {
	Sync() error
}

// syncHandle fsyncs fh if the underlying implementation supports it.
// fakefs's in-memory handles don't, and that's fine: fsync is a durability
// best-effort, not a correctness requirement this store depends on.
func syncHandle(fh ports.FileHandle) {
	if sy, ok := fh.(syncer); ok {
		_ = sy.Sync()
	}
}

// Cleanup removes the manifest, its lock file, and any quarantined corrupt
// copy for taskID. It's idempotent: removing files that don't exist is not
// an error.
func (s *Store) Cleanup(taskID string) error {
	for _, p := range []string{s.path(taskID), s.lockPath(taskID), s.corruptPath(taskID)} {
		if err := s.fsys.Remove(p); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("manifest: cleanup %s: %w", p, err)
		}
	}
	return nil
}

// ListAll returns the task IDs of every manifest currently on disk,
// unsorted. Used by the gc subcommand to sweep stale tasks.
func (s *Store) ListAll() ([]string, error) {
	paths, err := listDir(s.fsys, s.dir)
	if err != nil {
		return nil, fmt.Errorf("manifest: list %s: %w", s.dir, err)
	}
	var ids []string
	for _, p := range paths {
		name := filepath.Base(p)
		if filepath.Ext(name) == ".json" {
			ids = append(ids, name[:len(name)-len(".json")])
		}
	}
	return ids, nil
}

// listDir returns the paths of entries under dir. ports.FileSystem has no
// directory-listing method of its own, so this uses fakefs's Files() for
// the in-memory test double and os.ReadDir for the real filesystem.
func listDir(fsys ports.FileSystem, dir string) ([]string, error) {
	if lister, ok := fsys.(interface{ Files() []string }); ok {
		var matched []string
		for _, p := range lister.Files() {
			if filepath.Dir(p) == filepath.Clean(dir) {
				matched = append(matched, p)
			}
		}
		return matched, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, filepath.Join(dir, e.Name()))
	}
	return names, nil
}

// Validate reports whether m still matches the source file described by
// wantSize and wantMtime. A mismatch means the source changed since the
// manifest was written (spec.md §4.2): the transfer must restart from
// scratch rather than resume against stale chunk state. An
// mtimeTolerance-second drift is allowed to absorb filesystem timestamp
// rounding differences between platforms.
//
// Config is deliberately not part of this check. The chunk plan is chosen
// once and the stored manifest's plan always wins on resume (spec.md §4.3);
// "parallel" doesn't affect the plan at all (chunkplan.Plan ignores it,
// spec.md §4.1 calls the task ID itself "independent of config"), and even
// config fields that did shape the original plan (aria2, chunk_size) must
// not invalidate an otherwise-matching manifest once it exists.
func (s *Store) Validate(m *Manifest, wantSize int64, wantMtime float64) bool {
	if m.FileSize != wantSize {
		return false
	}
	if !mtimeWithinTolerance(m.FileMtime, wantMtime) {
		return false
	}
	return true
}

// Lock acquires the exclusive lock file for taskID, failing with
// *LockHeldError if another process already holds it (spec.md §5: one
// engine per task). The lock is released by Unlock or by process exit on
// platforms where the underlying open is advisory-exclusive.
func (s *Store) Lock(taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, held := s.locks[taskID]; held {
		return &LockHeldError{TaskID: taskID}
	}

	fh, err := s.fsys.OpenFile(s.lockPath(taskID), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		if os.IsExist(err) {
			return &LockHeldError{TaskID: taskID}
		}
		return fmt.Errorf("manifest: acquire lock for %s: %w", taskID, err)
	}
	s.locks[taskID] = fh
	return nil
}

// Unlock releases a lock previously acquired by Lock and removes the lock
// file. Unlocking a task this Store doesn't hold a lock for is a no-op.
func (s *Store) Unlock(taskID string) error {
	s.mu.Lock()
	fh, held := s.locks[taskID]
	if held {
		delete(s.locks, taskID)
	}
	s.mu.Unlock()

	if !held {
		return nil
	}
	_ = fh.Close()
	if err := s.fsys.Remove(s.lockPath(taskID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("manifest: remove lock for %s: %w", taskID, err)
	}
	return nil
}
