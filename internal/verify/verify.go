// Package verify implements the Verifier (spec.md §4.5): streaming SHA-256
// hashing of files and in-memory buffers, and constant-time comparison so
// hash checks don't leak timing information about where a mismatch occurs.
package verify

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"hash"
	"io"
)

// StreamingHasher accumulates a SHA-256 digest over bytes written to it.
// It implements io.Writer so it can sit in an io.MultiWriter alongside the
// actual destination writer, letting the whole-file hash be computed in the
// same pass as the copy instead of a second read of the staged file.
type StreamingHasher struct {
	h hash.Hash
}

// NewStreamingHasher returns a ready-to-use StreamingHasher.
func NewStreamingHasher() *StreamingHasher {
	return &StreamingHasher{h: sha256.New()}
}

// Write feeds p into the running hash. It never fails.
func (s *StreamingHasher) Write(p []byte) (int, error) {
	return s.h.Write(p)
}

// Sum returns the hex-encoded digest of everything written so far.
func (s *StreamingHasher) Sum() string {
	return hex.EncodeToString(s.h.Sum(nil))
}

// HashReader streams r through SHA-256 and returns the hex-encoded digest,
// without buffering the whole input in memory.
func HashReader(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// HashBytes returns the hex-encoded SHA-256 digest of buf.
func HashBytes(buf []byte) string {
	sum := sha256.Sum256(buf)
	return hex.EncodeToString(sum[:])
}

// ConstantTimeEqual compares two hex-encoded digests without leaking timing
// information about the position of the first differing byte.
func ConstantTimeEqual(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
