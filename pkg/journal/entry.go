// Package journal is an append-only, hash-chained audit log of the
// mutations applied to tasks and their histories.
package journal

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Entry kinds.
const (
	TaskCreated    = "task.created"
	TaskImported   = "task.imported"
	TaskUpdated    = "task.updated"
	TaskDeleted    = "task.deleted"
	TaskSaved      = "task.saved"
	VersionCreated = "version.created"
	VersionUpdated = "version.updated"
	HeadSet        = "head.set"
)

// Entry is a single link of the journal chain.
type Entry struct {
	Seq       int64          `json:"seq"` // position in the chain, assigned by Append
	ID        string         `json:"id"`  // UUID v7 (time-ordered)
	Kind      string         `json:"kind"`
	TaskID    string         `json:"taskId"`
	VersionID string         `json:"versionId,omitempty"`
	ActorID   string         `json:"actorId"`
	At        time.Time      `json:"at"`
	Detail    map[string]any `json:"detail"`
	Hash      string         `json:"hash"`
	PrevHash  string         `json:"prevHash"`
}

// NewEntry returns an unsealed entry stamped with a fresh id and the
// current time.
func NewEntry(kind, taskID, versionID, actorID string, detail map[string]any) Entry {
	if detail == nil {
		detail = map[string]any{}
	}
	return Entry{
		ID:        uuid.Must(uuid.NewV7()).String(),
		Kind:      kind,
		TaskID:    taskID,
		VersionID: versionID,
		ActorID:   actorID,
		At:        time.Now().UTC().Truncate(time.Microsecond),
		Detail:    detail,
	}
}

// Store is the contract for journal persistence. Append links e to the
// current chain tip and persists it atomically with respect to other
// appends. Chain order is Seq order; At is informational and may run
// backwards when writers race between NewEntry and Append.
type Store interface {
	Append(ctx context.Context, e Entry) (*Entry, error)
	// ByTask returns a task's entries in chain order.
	ByTask(ctx context.Context, taskID string, limit int) ([]Entry, error)
	// All returns the whole chain in order.
	All(ctx context.Context) ([]Entry, error)
	EnsureTable(ctx context.Context) error
}

// Seal links e after prevHash and computes its hash.
func Seal(e *Entry, prevHash string) error {
	detailJSON, err := json.Marshal(e.Detail)
	if err != nil {
		return fmt.Errorf("marshal detail: %w", err)
	}
	e.PrevHash = prevHash
	e.Hash = computeHash(prevHash, e.ID, e.Kind, e.TaskID, e.VersionID, e.ActorID, e.At, detailJSON)
	return nil
}

// Verify checks that entries, in chain order, form an unbroken chain.
func Verify(entries []Entry) error {
	prevHash := ""
	for i, e := range entries {
		if e.PrevHash != prevHash {
			return fmt.Errorf("entry %d (%s): prev_hash mismatch: got %s, want %s", i, e.ID, e.PrevHash, prevHash)
		}
		detailJSON, err := json.Marshal(e.Detail)
		if err != nil {
			return fmt.Errorf("entry %d (%s): marshal detail: %w", i, e.ID, err)
		}
		expected := computeHash(prevHash, e.ID, e.Kind, e.TaskID, e.VersionID, e.ActorID, e.At, detailJSON)
		if e.Hash != expected {
			return fmt.Errorf("entry %d (%s): hash mismatch: got %s, want %s", i, e.ID, e.Hash, expected)
		}
		prevHash = e.Hash
	}
	return nil
}

// VerifyChain loads the whole chain from s and verifies it.
func VerifyChain(ctx context.Context, s Store) error {
	entries, err := s.All(ctx)
	if err != nil {
		return fmt.Errorf("verify chain: %w", err)
	}
	return Verify(entries)
}

// computeHash computes a SHA-256 hash for chain integrity.
func computeHash(prevHash, id, kind, taskID, versionID, actorID string, at time.Time, detailJSON []byte) string {
	data := fmt.Sprintf("%s|%s|%s|%s|%s|%s|%d|%s", prevHash, id, kind, taskID, versionID, actorID, at.UnixNano(), string(detailJSON))
	h := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", h)
}
