package snapshot

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/tripnest/tripsync/internal/codec"
)

// FileBackend keeps the Document in a single CBOR file. Writes go to a
// temporary file in the same directory which is then renamed over the
// target, so a crash never leaves a partial snapshot.
type FileBackend struct {
	path  string
	codec codec.Codec
}

func NewFileBackend(path string) *FileBackend {
	return &FileBackend{path: path, codec: codec.NewCBOR()}
}

func (b *FileBackend) Path() string { return b.path }

func (b *FileBackend) Save(_ context.Context, doc *Document) error {
	if doc == nil {
		return nil
	}
	data, err := b.codec.Marshal(doc)
	if err != nil {
		return fmt.Errorf("snapshot: encode: %w", err)
	}

	dir := filepath.Dir(b.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(b.path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), b.path)
}

func (b *FileBackend) Load(_ context.Context) (*Document, error) {
	data, err := os.ReadFile(b.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, err
	}

	var doc Document
	if err := b.codec.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("snapshot: decode %s: %w", b.path, err)
	}
	if err := checkVersion(&doc); err != nil {
		return nil, err
	}
	return &doc, nil
}
