// Package users reads the static user list. The file is read again on every
// lookup so edits take effect without a restart.
package users

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/tidwall/jsonc"
	"pkt.systems/pslog"

	"permit-board/internal/modal"
)

// Directory resolves user records from a JSON array on disk. Comments and
// trailing commas are tolerated since the file is edited by hand.
type Directory struct {
	path   string
	logger pslog.Logger
}

func NewDirectory(path string, logger pslog.Logger) *Directory {
	if logger == nil {
		logger = pslog.NoopLogger()
	}
	return &Directory{path: path, logger: logger}
}

func (d *Directory) Path() string { return d.path }

// Load returns every record in the file. A missing file is an empty list.
func (d *Directory) Load(_ context.Context) ([]modal.UserRecord, error) {
	raw, err := os.ReadFile(d.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read users file: %w", err)
	}
	var records []modal.UserRecord
	if err := json.Unmarshal(jsonc.ToJSON(raw), &records); err != nil {
		return nil, fmt.Errorf("parse users file %s: %w", d.path, err)
	}
	return records, nil
}

// Lookup finds the record for user. An unreadable file behaves like an empty
// one so authentication fails closed; the cause is logged.
func (d *Directory) Lookup(ctx context.Context, user string) (modal.UserRecord, bool) {
	records, err := d.Load(ctx)
	if err != nil {
		d.logger.Warn("users.load_failed", "path", d.path, "error", err)
		return modal.UserRecord{}, false
	}
	for _, rec := range records {
		if rec.User == user {
			return rec, true
		}
	}
	return modal.UserRecord{}, false
}

// Role resolves the role for user; unknown users are ordinary users.
func (d *Directory) Role(ctx context.Context, user string) modal.Role {
	rec, ok := d.Lookup(ctx, user)
	if !ok {
		return modal.RoleUser
	}
	return rec.ResolvedRole()
}
