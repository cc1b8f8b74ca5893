package transfer

import (
	"fmt"
	"io"
	"io/fs"
	"os"

	fastcpsftp "github.com/acolita/fastcp/internal/sftp"
	"github.com/pkg/sftp"
)

// RemoteEndpoint implements RangeReadWriter against an SFTP session,
// either as the transfer source (download) or destination (upload).
type RemoteEndpoint struct {
	client *fastcpsftp.Client
	path   string

	isSource    bool
	stagingPath string
	file        *sftp.File
}

// NewRemoteSource opens path on the remote host for positional reads, for
// a download.
func NewRemoteSource(client *fastcpsftp.Client, path string) (*RemoteEndpoint, error) {
	f, err := client.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open remote source %s: %w", path, err)
	}
	return &RemoteEndpoint{client: client, path: path, isSource: true, file: f}, nil
}

// NewRemoteDestination creates the remote staging path
// <path>.part-<taskID> for positional writes, for an upload.
func NewRemoteDestination(client *fastcpsftp.Client, path, taskID string) (*RemoteEndpoint, error) {
	staging := stagingPathFor(path, taskID)
	f, err := client.OpenFile(staging, os.O_RDWR|os.O_CREATE)
	if err != nil {
		return nil, fmt.Errorf("open remote staging %s: %w", staging, err)
	}
	return &RemoteEndpoint{client: client, path: path, stagingPath: staging, file: f}, nil
}

func (r *RemoteEndpoint) Stat() (int64, float64, fs.FileMode, error) {
	info, err := r.client.Stat(r.path)
	if err != nil {
		return 0, 0, 0, err
	}
	return info.Size(), float64(info.ModTime().UnixNano()) / 1e9, info.Mode(), nil
}

func (r *RemoteEndpoint) ReadAt(p []byte, off int64) (int, error) {
	return r.file.ReadAt(p, off)
}

func (r *RemoteEndpoint) WriteAt(p []byte, off int64) (int, error) {
	return r.file.WriteAt(p, off)
}

func (r *RemoteEndpoint) OpenStagedForRead() (io.ReadCloser, error) {
	return r.client.Open(r.stagingPath)
}

func (r *RemoteEndpoint) Finalize(mode fs.FileMode, applyMode bool) error {
	if applyMode {
		_ = r.client.Chmod(r.stagingPath, mode)
	}
	return r.client.Rename(r.stagingPath, r.path)
}

func (r *RemoteEndpoint) Abandon() error {
	if r.stagingPath == "" {
		return nil
	}
	return r.client.Remove(r.stagingPath)
}

func (r *RemoteEndpoint) Close() error {
	if r.file == nil {
		return nil
	}
	return r.file.Close()
}
