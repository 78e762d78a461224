package index

import (
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrCorruptIndexState is returned when the persisted artifact pair for a
// user is inconsistent: one file without its partner, a dimension that does
// not match configuration, or vector/metadata counts that disagree. Starting
// empty here would silently drop user data, so loading fails instead.
var ErrCorruptIndexState = errors.New("corrupt index state")

// ChunkRecord is the metadata for one stored vector, positionally aligned
// with the rows of the Flat index.
type ChunkRecord struct {
	DocumentID  string
	ChunkIndex  int
	Content     string
	EmbeddingID string
}

// flatSnapshot is the on-disk form of a Flat index.
type flatSnapshot struct {
	Dimension int
	Vectors   [][]float32
}

func indexPath(dir, userID string) string {
	return filepath.Join(dir, userID+".index")
}

func metaPath(dir, userID string) string {
	return filepath.Join(dir, userID+".meta")
}

func validateUserID(userID string) error {
	if userID == "" {
		return fmt.Errorf("empty user id")
	}
	if strings.ContainsAny(userID, "/\\") || strings.Contains(userID, "..") {
		return fmt.Errorf("invalid user id %q", userID)
	}
	return nil
}

// saveUserIndex writes the vector and metadata artifacts for a user as a
// pair. Each artifact goes through a temp file and rename; both temps are
// written before either rename so a failure cannot leave one fresh artifact
// next to a stale partner.
func saveUserIndex(dir, userID string, f *Flat, records []ChunkRecord) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create index directory: %w", err)
	}

	snapshot := flatSnapshot{Dimension: f.Dimension(), Vectors: f.vectors}

	indexTmp, err := writeGobTemp(dir, userID+".index", snapshot)
	if err != nil {
		return err
	}
	metaTmp, err := writeGobTemp(dir, userID+".meta", records)
	if err != nil {
		os.Remove(indexTmp)
		return err
	}

	if err := os.Rename(indexTmp, indexPath(dir, userID)); err != nil {
		os.Remove(indexTmp)
		os.Remove(metaTmp)
		return fmt.Errorf("failed to replace index artifact: %w", err)
	}
	if err := os.Rename(metaTmp, metaPath(dir, userID)); err != nil {
		os.Remove(metaTmp)
		return fmt.Errorf("failed to replace meta artifact: %w", err)
	}

	return nil
}

func writeGobTemp(dir, name string, value interface{}) (string, error) {
	tmp, err := os.CreateTemp(dir, name+".tmp-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}

	if err := gob.NewEncoder(tmp).Encode(value); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to encode %s: %w", name, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to flush %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to close %s: %w", name, err)
	}

	return tmp.Name(), nil
}

// loadUserIndex reads a user's artifact pair. Returns (nil, nil, nil) when
// neither artifact exists, meaning the user has no persisted state yet.
func loadUserIndex(dir, userID string, dimension int) (*Flat, []ChunkRecord, error) {
	hasIndex := fileExists(indexPath(dir, userID))
	hasMeta := fileExists(metaPath(dir, userID))

	if !hasIndex && !hasMeta {
		return nil, nil, nil
	}
	if hasIndex != hasMeta {
		return nil, nil, fmt.Errorf("%w: user %s has index=%v meta=%v",
			ErrCorruptIndexState, userID, hasIndex, hasMeta)
	}

	var snapshot flatSnapshot
	if err := readGob(indexPath(dir, userID), &snapshot); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrCorruptIndexState, err)
	}

	var records []ChunkRecord
	if err := readGob(metaPath(dir, userID), &records); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrCorruptIndexState, err)
	}

	if snapshot.Dimension != dimension {
		return nil, nil, fmt.Errorf("%w: user %s persisted dimension %d, configured %d",
			ErrCorruptIndexState, userID, snapshot.Dimension, dimension)
	}
	if len(snapshot.Vectors) != len(records) {
		return nil, nil, fmt.Errorf("%w: user %s has %d vectors but %d metadata records",
			ErrCorruptIndexState, userID, len(snapshot.Vectors), len(records))
	}

	f, err := NewFlat(dimension)
	if err != nil {
		return nil, nil, err
	}
	if err := f.Append(snapshot.Vectors); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrCorruptIndexState, err)
	}

	return f, records, nil
}

func readGob(path string, value interface{}) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()

	if err := gob.NewDecoder(file).Decode(value); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
