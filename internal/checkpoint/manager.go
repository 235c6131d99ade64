// Package checkpoint persists completed chunks of long-running tasks so a
// crash never loses finished work.
//
// Layout under the base directory:
//
//	<base>/<taskID>/chunks/<chunkID>.json
//	<base>/<taskID>/manifest.json
//	<base>/session.json
//
// File names are deterministic from (taskID, chunkID), so resume needs no
// index. Every write is temp-file + fsync + atomic rename: a crash at any
// point leaves either the old or the new state fully intact.
package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/taskgov/governor/contracts"
	"github.com/taskgov/governor/pkg/logx"
)

const sessionFile = "session.json"

type manager struct {
	base string
	log  logx.Logger
	now  func() time.Time
}

// NewManager creates a CheckpointManager rooted at baseDir.
func NewManager(baseDir string, log logx.Logger) (contracts.CheckpointManager, error) {
	if strings.TrimSpace(baseDir) == "" {
		return nil, fmt.Errorf("checkpoint base dir is required: %w", contracts.ErrInvalidInput)
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating checkpoint dir: %w", err)
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &manager{base: baseDir, log: log, now: time.Now}, nil
}

func (m *manager) taskDir(task contracts.TaskID) string {
	return filepath.Join(m.base, string(task))
}

func (m *manager) chunkPath(task contracts.TaskID, chunk contracts.ChunkID) string {
	return filepath.Join(m.taskDir(task), "chunks", string(chunk)+".json")
}

func (m *manager) manifestPath(task contracts.TaskID) string {
	return filepath.Join(m.taskDir(task), "manifest.json")
}

// chunkRecord is the on-disk shape of one completed chunk.
type chunkRecord struct {
	Task        contracts.TaskID  `json:"task"`
	Chunk       contracts.ChunkID `json:"chunk"`
	Payload     []byte            `json:"payload"`
	CompletedAt time.Time         `json:"completed_at"`
}

// SaveChunk durably writes the chunk record, then rewrites the manifest to
// include the chunk id. A crash between the two writes leaves the chunk file
// present but unlisted; the manifest stays the recovery source of truth, so
// the chunk simply re-executes.
func (m *manager) SaveChunk(task contracts.TaskID, chunk contracts.ChunkID, payload []byte) error {
	if err := checkID(string(task)); err != nil {
		return fmt.Errorf("task %q: %w", task, err)
	}
	if err := checkID(string(chunk)); err != nil {
		return fmt.Errorf("chunk %q: %w", chunk, err)
	}

	rec := chunkRecord{Task: task, Chunk: chunk, Payload: payload, CompletedAt: m.now()}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal chunk %s/%s: %w", task, chunk, err)
	}
	if err := writeFileAtomic(m.chunkPath(task, chunk), data, 0o644); err != nil {
		return fmt.Errorf("write chunk %s/%s: %w", task, chunk, err)
	}

	manifest, err := m.readManifest(task)
	if err != nil {
		return err
	}
	if manifest == nil {
		manifest = &contracts.ChunkManifest{Task: task}
	}
	for _, done := range manifest.Completed {
		if done == chunk {
			// Already listed; saving again is a no-op for the manifest.
			return nil
		}
	}
	manifest.Completed = append(manifest.Completed, chunk)
	manifest.UpdatedAt = m.now()

	if err := m.writeManifest(task, manifest); err != nil {
		return err
	}
	m.log.Debug("chunk checkpointed",
		logx.String("task", string(task)),
		logx.String("chunk", string(chunk)),
		logx.Int("completed", len(manifest.Completed)))
	return nil
}

// CompletedChunks reads the manifest; a fresh task yields an empty set.
func (m *manager) CompletedChunks(task contracts.TaskID) (map[contracts.ChunkID]struct{}, error) {
	if err := checkID(string(task)); err != nil {
		return nil, fmt.Errorf("task %q: %w", task, err)
	}
	manifest, err := m.readManifest(task)
	if err != nil {
		return nil, err
	}
	done := make(map[contracts.ChunkID]struct{})
	if manifest == nil {
		return done, nil
	}
	for _, c := range manifest.Completed {
		done[c] = struct{}{}
	}
	return done, nil
}

// Resume returns full minus completed, preserving original order. Calling it
// twice without an intervening SaveChunk yields identical lists.
func (m *manager) Resume(task contracts.TaskID, full []contracts.ChunkID) ([]contracts.ChunkID, error) {
	done, err := m.CompletedChunks(task)
	if err != nil {
		return nil, err
	}
	remaining := make([]contracts.ChunkID, 0, len(full))
	for _, c := range full {
		if _, ok := done[c]; !ok {
			remaining = append(remaining, c)
		}
	}
	return remaining, nil
}

// Assemble reads each listed chunk in order and merges the payloads. A chunk
// listed but absent on disk is ErrChunkMissing, never a silent skip.
func (m *manager) Assemble(task contracts.TaskID, ordered []contracts.ChunkID, merge contracts.MergeFunc) ([]byte, error) {
	if merge == nil {
		return nil, fmt.Errorf("nil merge func: %w", contracts.ErrInvalidInput)
	}
	if err := checkID(string(task)); err != nil {
		return nil, fmt.Errorf("task %q: %w", task, err)
	}

	payloads := make([][]byte, 0, len(ordered))
	for _, chunk := range ordered {
		if err := checkID(string(chunk)); err != nil {
			return nil, fmt.Errorf("chunk %q: %w", chunk, err)
		}
		data, err := os.ReadFile(m.chunkPath(task, chunk))
		if err != nil {
			if os.IsNotExist(err) {
				return nil, fmt.Errorf("task %s chunk %s: %w", task, chunk, contracts.ErrChunkMissing)
			}
			return nil, fmt.Errorf("read chunk %s/%s: %w", task, chunk, err)
		}
		var rec chunkRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, fmt.Errorf("chunk %s/%s: %v: %w", task, chunk, err, contracts.ErrCheckpointCorrupt)
		}
		payloads = append(payloads, rec.Payload)
	}
	return merge(payloads)
}

// SaveSession persists the resumable queue snapshot.
func (m *manager) SaveSession(cp *contracts.SessionCheckpoint) error {
	if cp == nil {
		return contracts.ErrInvalidInput
	}
	if cp.SavedAt.IsZero() {
		cp.SavedAt = m.now()
	}
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session checkpoint: %w", err)
	}
	if err := writeFileAtomic(filepath.Join(m.base, sessionFile), data, 0o644); err != nil {
		return fmt.Errorf("write session checkpoint: %w", err)
	}
	m.log.Info("session checkpoint written",
		logx.String("stop_reason", string(cp.StopReason)),
		logx.Int("pending", len(cp.Pending)))
	return nil
}

// LoadSession returns the last session checkpoint, or (nil, nil) if none.
func (m *manager) LoadSession() (*contracts.SessionCheckpoint, error) {
	data, err := os.ReadFile(filepath.Join(m.base, sessionFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read session checkpoint: %w", err)
	}
	var cp contracts.SessionCheckpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("session checkpoint: %v: %w", err, contracts.ErrCheckpointCorrupt)
	}
	return &cp, nil
}

func (m *manager) readManifest(task contracts.TaskID) (*contracts.ChunkManifest, error) {
	data, err := os.ReadFile(m.manifestPath(task))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read manifest %s: %w", task, err)
	}
	var manifest contracts.ChunkManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("manifest %s: %v: %w", task, err, contracts.ErrCheckpointCorrupt)
	}
	return &manifest, nil
}

func (m *manager) writeManifest(task contracts.TaskID, manifest *contracts.ChunkManifest) error {
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest %s: %w", task, err)
	}
	if err := writeFileAtomic(m.manifestPath(task), data, 0o644); err != nil {
		return fmt.Errorf("write manifest %s: %w", task, err)
	}
	return nil
}

// checkID rejects identifiers that would escape the checkpoint directory.
func checkID(id string) error {
	if strings.TrimSpace(id) == "" {
		return contracts.ErrBadIdentifier
	}
	if strings.ContainsAny(id, "/\\") || id == "." || id == ".." {
		return contracts.ErrBadIdentifier
	}
	return nil
}

// writeFileAtomic writes data to a temp file in the target directory, syncs
// it, and renames it over path.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		_ = tmp.Close()
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	committed = true
	return fsyncDir(dir)
}

func fsyncDir(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}
