package transfer

import (
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/acolita/fastcp/internal/ports"
)

// LocalEndpoint implements RangeReadWriter against the local filesystem,
// either as the transfer source (upload) or destination (download).
type LocalEndpoint struct {
	fsys ports.FileSystem
	path string

	isSource    bool
	stagingPath string
	handle      ports.FileHandle
}

// NewLocalSource opens path for positional reads, for an upload.
func NewLocalSource(fsys ports.FileSystem, path string) (*LocalEndpoint, error) {
	h, err := fsys.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open local source %s: %w", path, err)
	}
	return &LocalEndpoint{fsys: fsys, path: path, isSource: true, handle: h}, nil
}

// NewLocalDestination creates (or reopens) the staging file
// <path>.part-<taskID> for positional writes, for a download.
func NewLocalDestination(fsys ports.FileSystem, path, taskID string) (*LocalEndpoint, error) {
	staging := stagingPathFor(path, taskID)
	h, err := fsys.OpenFile(staging, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open local staging %s: %w", staging, err)
	}
	return &LocalEndpoint{fsys: fsys, path: path, stagingPath: staging, handle: h}, nil
}

func stagingPathFor(path, taskID string) string {
	return path + ".part-" + taskID
}

func (l *LocalEndpoint) Stat() (int64, float64, fs.FileMode, error) {
	info, err := l.fsys.Stat(l.path)
	if err != nil {
		return 0, 0, 0, err
	}
	return info.Size(), float64(info.ModTime().UnixNano()) / 1e9, info.Mode(), nil
}

func (l *LocalEndpoint) ReadAt(p []byte, off int64) (int, error) {
	return l.handle.ReadAt(p, off)
}

func (l *LocalEndpoint) WriteAt(p []byte, off int64) (int, error) {
	return l.handle.WriteAt(p, off)
}

func (l *LocalEndpoint) OpenStagedForRead() (io.ReadCloser, error) {
	h, err := l.fsys.Open(l.stagingPath)
	if err != nil {
		return nil, err
	}
	return h, nil
}

func (l *LocalEndpoint) Finalize(mode fs.FileMode, applyMode bool) error {
	if applyMode {
		if chmodder, ok := l.handle.(interface{ Chmod(fs.FileMode) error }); ok {
			_ = chmodder.Chmod(mode)
		}
	}
	return l.fsys.Rename(l.stagingPath, l.path)
}

func (l *LocalEndpoint) Abandon() error {
	if l.stagingPath == "" {
		return nil
	}
	err := l.fsys.Remove(l.stagingPath)
	if err != nil && os.IsNotExist(err) {
		return nil
	}
	return err
}

func (l *LocalEndpoint) Close() error {
	if l.handle == nil {
		return nil
	}
	return l.handle.Close()
}
