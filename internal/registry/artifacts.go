package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ArtifactStore persists serialized model artifacts on the local filesystem,
// one file per version.
type ArtifactStore struct {
	dir string
}

// NewArtifactStore creates the artifact directory if needed.
func NewArtifactStore(dir string) (*ArtifactStore, error) {
	if dir == "" {
		dir = "artifacts"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("artifact dir: %w", err)
	}
	return &ArtifactStore{dir: dir}, nil
}

// Save writes one artifact, replacing any previous content for the version.
func (s *ArtifactStore) Save(versionID string, b []byte) error {
	path, err := s.path(versionID)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("write artifact: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("commit artifact: %w", err)
	}
	return nil
}

// Load reads one artifact. The boolean reports whether it exists.
func (s *ArtifactStore) Load(versionID string) ([]byte, bool, error) {
	path, err := s.path(versionID)
	if err != nil {
		return nil, false, err
	}
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read artifact: %w", err)
	}
	return b, true, nil
}

// path rejects version ids that would escape the artifact directory.
func (s *ArtifactStore) path(versionID string) (string, error) {
	if versionID == "" || strings.ContainsAny(versionID, "/\\") || strings.Contains(versionID, "..") {
		return "", fmt.Errorf("invalid version id %q", versionID)
	}
	return filepath.Join(s.dir, versionID+".json"), nil
}
