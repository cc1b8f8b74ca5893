// Package endpoint parses and canonicalizes the SCP-style source/destination
// arguments fastcp takes on its command line (spec.md §4.1).
package endpoint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/acolita/fastcp/internal/ports"
	"github.com/acolita/fastcp/internal/xerrors"
)

// Endpoint describes one side of a transfer: either a local path or a path
// on a remote host reached over SSH.
type Endpoint struct {
	Path    string
	IsLocal bool
	Host    string
	User    string
	Port    int
	KeyFile string
}

// remotePattern matches "[user@]host:path" where host contains no slash
// before the colon. A lone drive letter like "C:\foo" must not match, so
// a single-character host segment is rejected.
var remotePattern = regexp.MustCompile(`^(?:([^@/]+)@)?([^/:\s][^/:]*):(.*)$`)

// Parse classifies raw according to spec.md §4.1's ordered rules.
func Parse(raw string) (Endpoint, error) {
	if raw == "" {
		return Endpoint{}, xerrors.New(xerrors.ParseError, raw, fmt.Errorf("empty endpoint"))
	}

	if raw == "." || strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, "./") ||
		strings.HasPrefix(raw, "../") || strings.HasPrefix(raw, "~") {
		return Endpoint{Path: raw, IsLocal: true, Port: 22}, nil
	}

	if m := remotePattern.FindStringSubmatch(raw); m != nil {
		host := m[2]
		if len(host) == 1 && isDriveLetter(host) {
			return Endpoint{Path: raw, IsLocal: true, Port: 22}, nil
		}
		path := m[3]
		if path == "" {
			path = "." // empty path means remote home, resolved later via SFTP Getwd
		}
		return Endpoint{
			Path:    path,
			IsLocal: false,
			Host:    host,
			User:    m[1],
			Port:    22,
		}, nil
	}

	return Endpoint{Path: raw, IsLocal: true, Port: 22}, nil
}

func isDriveLetter(s string) bool {
	c := s[0]
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// ExpandLocal resolves a leading "~" against the local filesystem's home
// directory. Non-local or already-absolute paths pass through unchanged.
func ExpandLocal(e Endpoint, fsys ports.FileSystem) (Endpoint, error) {
	if !e.IsLocal || !strings.HasPrefix(e.Path, "~") {
		return e, nil
	}

	home, err := fsys.UserHomeDir()
	if err != nil {
		return e, fmt.Errorf("resolve home directory: %w", err)
	}

	rest := strings.TrimPrefix(e.Path, "~")
	rest = strings.TrimPrefix(rest, "/")
	if rest == "" {
		e.Path = home
	} else {
		e.Path = home + "/" + rest
	}
	return e, nil
}

// Canonicalize renders the stable string form used as TaskID input:
// "user@host:port:abs_path" for remote endpoints, "abs_path" for local ones.
// Callers must have already resolved the path to an absolute form (via
// ExpandLocal plus filepath.Abs, or the remote SFTP RealPath) before calling.
func Canonicalize(e Endpoint) string {
	if e.IsLocal {
		return e.Path
	}
	user := e.User
	if user == "" {
		user = "~"
	}
	return fmt.Sprintf("%s@%s:%d:%s", user, e.Host, e.Port, e.Path)
}

// TaskID computes spec.md §4.1's stable task fingerprint: SHA-256 of
// canonicalize(src) || "→" || canonicalize(dst), hex-encoded. Both
// endpoints must already be canonicalized (absolute paths resolved).
func TaskID(src, dst Endpoint) string {
	h := sha256.New()
	h.Write([]byte(Canonicalize(src)))
	h.Write([]byte("\u2192")) // "→"
	h.Write([]byte(Canonicalize(dst)))
	return hex.EncodeToString(h.Sum(nil))
}

// String renders a human-readable endpoint summary for error messages and logs.
func (e Endpoint) String() string {
	if e.IsLocal {
		return e.Path
	}
	user := e.User
	if user != "" {
		user += "@"
	}
	port := ""
	if e.Port != 0 && e.Port != 22 {
		port = ":" + strconv.Itoa(e.Port)
	}
	return fmt.Sprintf("%s%s%s:%s", user, e.Host, port, e.Path)
}
