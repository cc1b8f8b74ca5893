// Package manifest implements the Manifest Store (spec.md §4.2): the
// durable, versioned JSON projection of a transfer Task and its Chunk list
// that makes resume possible after interruption.
package manifest

import (
	"encoding/json"
	"math"
)

// Version is the only manifest schema version this store accepts. Per
// spec.md §9's open question, a non-"2.0" manifest is treated as stale
// rather than migrated.
const Version = "2.0"

// TaskStatus mirrors spec.md §3's TransferTask.status enum.
type TaskStatus string

const (
	StatusPending   TaskStatus = "pending"
	StatusRunning   TaskStatus = "running"
	StatusPaused    TaskStatus = "paused"
	StatusCompleted TaskStatus = "completed"
	StatusFailed    TaskStatus = "failed"
)

// ChunkStatus mirrors spec.md §3's Chunk.status enum, serialized lower-case
// to match the on-disk schema in spec.md §6.
type ChunkStatus string

const (
	ChunkPending    ChunkStatus = "pending"
	ChunkInProgress ChunkStatus = "in_progress"
	ChunkCompleted  ChunkStatus = "completed"
	ChunkFailed     ChunkStatus = "failed"
)

// EndpointRecord is the on-disk shape of one side of a transfer, matching
// spec.md §6's manifest JSON schema exactly.
type EndpointRecord struct {
	Path    string `json:"path"`
	IsLocal bool   `json:"is_local"`
	Host    string `json:"host,omitempty"`
	User    string `json:"user,omitempty"`
	Port    int    `json:"port,omitempty"`
}

// ChunkRecord is the on-disk shape of one Chunk entry.
type ChunkRecord struct {
	Index    int         `json:"index"`
	Offset   int64       `json:"offset"`
	Size     int64       `json:"size"`
	Status   ChunkStatus `json:"status"`
	SHA256   string      `json:"sha256,omitempty"`
	Attempts int         `json:"attempts"`
	Error    string      `json:"error,omitempty"`
}

// ConfigRecord is the on-disk record of the transfer.Config values a fresh
// plan was computed from (spec.md §6's manifest schema). It is informational
// only: Store.Validate does not compare it against the current run's config,
// because the task ID is independent of config (spec.md §4.1) and the
// stored chunk plan always wins on resume regardless of parallel, aria2, or
// chunk_size changes (spec.md §4.3).
type ConfigRecord struct {
	Parallel  int   `json:"parallel"`
	Aria2     bool  `json:"aria2"`
	ChunkSize int64 `json:"chunk_size"`
}

// Manifest is the durable projection of a Task plus its Chunk list
// (spec.md §3, on-disk schema in §6). Extra preserves any JSON object keys
// this version of fastcp doesn't know about, so future fields round-trip
// through a save instead of being silently dropped (spec.md §6: "Unknown
// fields on load must be preserved on save").
type Manifest struct {
	Version      string         `json:"version"`
	TaskID       string         `json:"task_id"`
	Src          EndpointRecord `json:"src"`
	Dst          EndpointRecord `json:"dst"`
	FileSize     int64          `json:"file_size"`
	FileMtime    float64        `json:"file_mtime"`
	FileHash     *string        `json:"file_hash"`
	Chunks       []ChunkRecord  `json:"chunks"`
	Config       ConfigRecord   `json:"config"`
	Status       TaskStatus     `json:"status"`
	CreatedAt    float64        `json:"created_at"`
	UpdatedAt    float64        `json:"updated_at"`

	Extra map[string]json.RawMessage `json:"-"`
}

// MarshalJSON merges Extra's unknown fields back in alongside the known
// ones, so round-tripping an old manifest through Load/Save preserves
// fields this binary doesn't recognize.
func (m Manifest) MarshalJSON() ([]byte, error) {
	type alias Manifest
	known, err := json.Marshal(alias(m))
	if err != nil {
		return nil, err
	}
	if len(m.Extra) == 0 {
		return known, nil
	}

	var merged map[string]json.RawMessage
	if err := json.Unmarshal(known, &merged); err != nil {
		return nil, err
	}
	for k, v := range m.Extra {
		if _, exists := merged[k]; !exists {
			merged[k] = v
		}
	}
	return json.Marshal(merged)
}

// UnmarshalJSON decodes the known fields normally and stashes every other
// top-level key into Extra.
func (m *Manifest) UnmarshalJSON(data []byte) error {
	type alias Manifest
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*m = Manifest(a)

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for _, known := range knownManifestFields {
		delete(raw, known)
	}
	if len(raw) > 0 {
		m.Extra = raw
	}
	return nil
}

var knownManifestFields = []string{
	"version", "task_id", "src", "dst", "file_size", "file_mtime",
	"file_hash", "chunks", "config", "status", "created_at", "updated_at",
}

// mtimeTolerance is the allowed drift (seconds) between a manifest's stored
// file_mtime and the source's current mtime, absorbing filesystem rounding
// differences across platforms (spec.md §4.2).
const mtimeTolerance = 1.0

func mtimeWithinTolerance(a, b float64) bool {
	return math.Abs(a-b) <= mtimeTolerance
}
