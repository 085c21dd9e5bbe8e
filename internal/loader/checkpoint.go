package loader

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Checkpoint tracks how far a source file has been loaded into an index.
type Checkpoint struct {
	Index     string    `json:"index"`
	Source    string    `json:"source"`
	StartedAt time.Time `json:"started_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Offset    int64     `json:"offset"` // lines consumed
	Loaded    int64     `json:"loaded"`
	Failed    int64     `json:"failed"`
	Size      int64     `json:"size"` // file size at completion
	Completed bool      `json:"completed"`
}

// ResumeFrom returns the line to continue from for a file that is now size
// bytes long. A completed checkpoint resumes at its offset when the file
// grew and starts over when it shrank, which means it was replaced.
// The second result is false when there is nothing new to load.
func (cp *Checkpoint) ResumeFrom(size int64) (int64, bool) {
	if cp == nil {
		return 0, true
	}
	if size < cp.Size {
		return 0, true
	}
	if cp.Completed && size == cp.Size {
		return cp.Offset, false
	}
	return cp.Offset, true
}

// CheckpointStore persists checkpoints as JSON files in a directory.
type CheckpointStore struct {
	dir string
}

// NewCheckpointStore creates a new checkpoint store in the given directory.
func NewCheckpointStore(dir string) (*CheckpointStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating checkpoint dir %s: %w", dir, err)
	}
	return &CheckpointStore{dir: dir}, nil
}

var unsafeName = strings.NewReplacer("/", "_", "\\", "_", "*", "_", "?", "_", ":", "_")

// sourceKey identifies a source file by its absolute path: the base name
// for readability plus a hash of the full path, so files with the same
// name in different directories never share state.
func sourceKey(source string) string {
	abs, err := filepath.Abs(source)
	if err != nil {
		abs = filepath.Clean(source)
	}
	sum := sha256.Sum256([]byte(abs))
	return unsafeName.Replace(filepath.Base(abs)) + "-" + hex.EncodeToString(sum[:6])
}

func (s *CheckpointStore) path(index, source string) string {
	return filepath.Join(s.dir, unsafeName.Replace(index)+"-"+sourceKey(source)+".checkpoint.json")
}

// Load reads the checkpoint for source. It returns nil if none exists.
func (s *CheckpointStore) Load(index, source string) (*Checkpoint, error) {
	data, err := os.ReadFile(s.path(index, source))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading checkpoint: %w", err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("parsing checkpoint: %w", err)
	}
	return &cp, nil
}

// Save persists the checkpoint to disk.
func (s *CheckpointStore) Save(cp *Checkpoint) error {
	cp.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling checkpoint: %w", err)
	}
	if err := os.WriteFile(s.path(cp.Index, cp.Source), data, 0644); err != nil {
		return fmt.Errorf("writing checkpoint: %w", err)
	}
	return nil
}
