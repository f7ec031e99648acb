package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"pkt.systems/pslog"

	"permit-board/internal/clock"
	"permit-board/internal/modal"
)

// TempSuffix marks the staging files written next to the state file.
const TempSuffix = ".tmp"

// FileBackend keeps the document in a single JSON file that is replaced
// atomically on every save.
type FileBackend struct {
	path   string
	clock  clock.Clock
	logger pslog.Logger
}

func NewFileBackend(path string, c clock.Clock, logger pslog.Logger) *FileBackend {
	if logger == nil {
		logger = pslog.NoopLogger()
	}
	return &FileBackend{path: path, clock: clock.OrReal(c), logger: logger}
}

func (b *FileBackend) Path() string { return b.path }

// Load never fails: a missing file is the first run, and an unreadable or
// unparsable one is replaced by a default document on the next save.
func (b *FileBackend) Load(_ context.Context) (modal.AppState, error) {
	now := b.clock.Now()
	raw, err := os.ReadFile(b.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			b.logger.Warn("store.file.read_failed", "path", b.path, "error", err)
		}
		return modal.NewAppState(now), nil
	}
	state, err := decodeDocument(raw, now, b.logger)
	if err != nil {
		b.logger.Warn("store.file.corrupt", "path", b.path, "error", err)
		return modal.NewAppState(now), nil
	}
	return state, nil
}

// Save writes to a temp file in the same directory and renames it over the
// state file so readers never see a partial document.
func (b *FileBackend) Save(_ context.Context, state modal.AppState) error {
	payload, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	payload = append(payload, '\n')
	dir := filepath.Dir(b.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(b.path)+TempSuffix+"-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), b.path); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := syncDir(dir); err != nil {
		b.logger.Debug("store.file.dir_sync_failed", "dir", dir, "error", err)
	}
	return nil
}

func syncDir(path string) error {
	dir, err := os.Open(path)
	if err != nil {
		return err
	}
	defer dir.Close()
	return dir.Sync()
}
