package cargo

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"starlane.ai/internal/persistence/snapshot"
)

const snapshotKind = "cargo"

// FileStore keeps the manifest in a compressed snapshot file.
type FileStore struct {
	Path string
}

func (s FileStore) Load() (*Manifest, error) {
	h, m, err := snapshot.Read[Manifest](s.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return &Manifest{}, nil
	}
	if err != nil {
		return nil, err
	}
	if h.Kind != snapshotKind {
		return nil, fmt.Errorf("cargo: unexpected snapshot kind %q", h.Kind)
	}
	return &m, nil
}

func (s FileStore) Save(m *Manifest) error {
	return snapshot.Write(s.Path, snapshot.Header{
		Kind:    snapshotKind,
		SavedAt: time.Now().UTC(),
		Entries: len(m.Cargo),
	}, *m)
}
