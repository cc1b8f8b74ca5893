// Package xerrors defines fastcp's error taxonomy: a small enum of Kinds
// that cmd/fastcp maps to process exit codes, plus a TransferError type
// that carries enough context (endpoint, offset, retry count, cause) for
// useful diagnostics and for errors.Is/As-based handling deeper in the
// stack, in the teacher's %w-wrapped fmt.Errorf idiom.
package xerrors

import (
	"errors"
	"fmt"
)

// Kind classifies a transfer failure into one of the categories spec.md §7
// defines. The zero value is not a valid Kind.
type Kind int

const (
	// Unknown is the zero value; never returned deliberately.
	Unknown Kind = iota
	// ParseError means the source or destination endpoint string was malformed.
	ParseError
	// AuthError means SSH handshake or authentication failed.
	AuthError
	// ConnectError means the TCP/SSH connection could not be established or was lost.
	ConnectError
	// Timeout means an operation exceeded its configured deadline.
	Timeout
	// ChunkFailed means a single chunk's transfer failed after exhausting retries.
	ChunkFailed
	// IntegrityError means a per-chunk or whole-file hash comparison failed.
	IntegrityError
	// StaleManifest means an on-disk manifest did not validate against the current source.
	StaleManifest
	// ConcurrentTransfer means a lock file for the same task_id was already held.
	ConcurrentTransfer
	// Cancelled means the user or caller cancelled the transfer.
	Cancelled
)

func (k Kind) String() string {
	switch k {
	case ParseError:
		return "ParseError"
	case AuthError:
		return "AuthError"
	case ConnectError:
		return "ConnectError"
	case Timeout:
		return "Timeout"
	case ChunkFailed:
		return "ChunkFailed"
	case IntegrityError:
		return "IntegrityError"
	case StaleManifest:
		return "StaleManifest"
	case ConcurrentTransfer:
		return "ConcurrentTransfer"
	case Cancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

// ExitCode maps a Kind to the process exit code table from spec.md §6.
func (k Kind) ExitCode() int {
	switch k {
	case Unknown:
		return 1
	case ParseError:
		return 3
	case AuthError:
		return 4
	case ConnectError, Timeout, ChunkFailed, ConcurrentTransfer:
		return 1
	case IntegrityError:
		return 5
	case StaleManifest:
		return 1
	case Cancelled:
		return 6
	default:
		return 1
	}
}

// TransferError is the error type every fastcp component returns for a
// failure that needs to cross a package boundary with enough context to
// report to the user or decide a retry.
type TransferError struct {
	Kind       Kind
	Endpoint   string // human-readable endpoint summary, e.g. "user@host:/path"
	ChunkIndex int    // -1 if not chunk-level
	Offset     int64  // -1 if not applicable
	Retries    int
	Err        error
}

func (e *TransferError) Error() string {
	msg := fmt.Sprintf("%s", e.Kind)
	if e.Endpoint != "" {
		msg += fmt.Sprintf(" (%s)", e.Endpoint)
	}
	if e.ChunkIndex >= 0 {
		msg += fmt.Sprintf(" chunk %d", e.ChunkIndex)
	}
	if e.Retries > 0 {
		msg += fmt.Sprintf(" after %d retries", e.Retries)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

// New builds a TransferError with no chunk/offset context.
func New(kind Kind, endpoint string, err error) *TransferError {
	return &TransferError{Kind: kind, Endpoint: endpoint, ChunkIndex: -1, Offset: -1, Err: err}
}

// NewChunk builds a TransferError scoped to a specific chunk.
func NewChunk(kind Kind, endpoint string, chunkIndex int, offset int64, retries int, err error) *TransferError {
	return &TransferError{
		Kind:       kind,
		Endpoint:   endpoint,
		ChunkIndex: chunkIndex,
		Offset:     offset,
		Retries:    retries,
		Err:        err,
	}
}

// KindOf extracts the Kind from err if it is (or wraps) a *TransferError,
// otherwise reports Unknown.
func KindOf(err error) Kind {
	var te *TransferError
	if errors.As(err, &te) {
		return te.Kind
	}
	return Unknown
}
