// Package memio implements an in-memory transfer.RangeReadWriter used by
// internal/transfer's tests so engine behavior can be verified without a
// real filesystem or SFTP session.
package memio

import (
	"bytes"
	"errors"
	"io"
	"io/fs"
	"sync"
)

// Endpoint is a RangeReadWriter backed by an in-memory byte slice. It can
// play source (pre-seeded with Data) or destination (written to by the
// engine, inspected afterward via Data()).
type Endpoint struct {
	mu        sync.Mutex
	data      []byte
	mode      fs.FileMode
	mtime     float64
	finalized bool
	abandoned bool
	closed    bool

	FailReadAt  error
	FailWriteAt error
}

// New returns an Endpoint pre-seeded with data, for use as a source.
func New(data []byte) *Endpoint {
	return &Endpoint{data: append([]byte(nil), data...), mode: 0o644}
}

// NewEmpty returns a zero-length Endpoint sized to grow, for use as a
// destination.
func NewEmpty() *Endpoint {
	return &Endpoint{mode: 0o644}
}

func (e *Endpoint) Stat() (int64, float64, fs.FileMode, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return int64(len(e.data)), e.mtime, e.mode, nil
}

func (e *Endpoint) ReadAt(p []byte, off int64) (int, error) {
	if e.FailReadAt != nil {
		return 0, e.FailReadAt
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if off < 0 || off > int64(len(e.data)) {
		return 0, errors.New("memio: offset out of range")
	}
	n := copy(p, e.data[off:])
	if n < len(p) {
		return n, io.ErrUnexpectedEOF
	}
	return n, nil
}

func (e *Endpoint) WriteAt(p []byte, off int64) (int, error) {
	if e.FailWriteAt != nil {
		return 0, e.FailWriteAt
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	end := off + int64(len(p))
	if end > int64(len(e.data)) {
		grown := make([]byte, end)
		copy(grown, e.data)
		e.data = grown
	}
	copy(e.data[off:end], p)
	return len(p), nil
}

func (e *Endpoint) OpenStagedForRead() (io.ReadCloser, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return io.NopCloser(bytes.NewReader(append([]byte(nil), e.data...))), nil
}

func (e *Endpoint) Finalize(mode fs.FileMode, applyMode bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.finalized = true
	if applyMode {
		e.mode = mode
	}
	return nil
}

func (e *Endpoint) Abandon() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.abandoned = true
	return nil
}

func (e *Endpoint) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

// Data returns a copy of the current contents, for test assertions.
func (e *Endpoint) Data() []byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]byte(nil), e.data...)
}

// Finalized reports whether Finalize was called.
func (e *Endpoint) Finalized() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.finalized
}

// Abandoned reports whether Abandon was called.
func (e *Endpoint) Abandoned() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.abandoned
}
