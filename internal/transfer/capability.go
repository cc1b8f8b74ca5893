package transfer

import (
	"io"
	"io/fs"
)

// Direction is the single bit distinguishing an upload from a download,
// per spec.md §9's "Polymorphism over Downloader/Uploader" note: the
// engine is polymorphic only over RangeReadWriter, and direction picks
// which side plays reader and which plays writer.
type Direction int

const (
	Upload   Direction = iota // local -> remote
	Download                  // remote -> local
)

// RangeReadWriter is the capability set the engine needs from either side
// of a transfer: positional reads and writes at arbitrary offsets, a stat,
// and a finalize step that publishes the staged result atomically.
//
// A local filesystem and an SFTP session both implement this the same way
// (pread/pwrite + rename), which is what lets one engine loop handle both
// upload and download without knowing which side is local.
type RangeReadWriter interface {
	// Stat returns the size and mode of the source side before planning.
	Stat() (size int64, mtime float64, mode fs.FileMode, err error)

	// ReadAt reads exactly len(p) bytes starting at off.
	ReadAt(p []byte, off int64) (int, error)

	// WriteAt writes p at off into the staging file.
	WriteAt(p []byte, off int64) (int, error)

	// Finalize renames the staging path over the final destination path,
	// optionally applying mode bits, and returns the final path.
	Finalize(mode fs.FileMode, applyMode bool) error

	// Abandon removes the staging file without publishing it, used when a
	// transfer fails verification or is cancelled before any bytes were
	// renamed.
	Abandon() error

	// OpenStagedForRead opens the staging file for a sequential read of
	// the whole content, used for the whole-file hash pass (spec.md
	// §4.5). Only meaningful on the destination side.
	OpenStagedForRead() (io.ReadCloser, error)

	// Close releases any underlying handle (SFTP file, local file).
	Close() error
}
