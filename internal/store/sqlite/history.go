package sqlite

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// Version is one saved revision of a settings document.
type Version struct {
	Data      []byte
	CreatedAt time.Time
}

// History returns up to limit previous versions of key, newest first.
func (s *Store) History(ctx context.Context, key string, limit int) ([]Version, error) {
	if limit <= 0 || limit > historyKeep {
		limit = historyKeep
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT data, created_at FROM settings_history
		WHERE key = ?
		ORDER BY id DESC
		LIMIT ?
	`, key, limit)
	if err != nil {
		return nil, errors.Wrapf(err, "sqlite query history %q", key)
	}
	defer rows.Close()

	var out []Version
	for rows.Next() {
		var data string
		var ts int64
		if err := rows.Scan(&data, &ts); err != nil {
			return nil, errors.Wrap(err, "sqlite scan history")
		}
		out = append(out, Version{Data: []byte(data), CreatedAt: time.Unix(ts, 0).UTC()})
	}
	return out, rows.Err()
}

// Restore makes the version at index i of History current again.
func (s *Store) Restore(ctx context.Context, key string, i int) ([]byte, error) {
	versions, err := s.History(ctx, key, historyKeep)
	if err != nil {
		return nil, err
	}
	if i < 0 || i >= len(versions) {
		return nil, errors.Errorf("sqlite restore %q: no version %d", key, i)
	}
	data := versions[i].Data
	if err := s.Save(ctx, key, data); err != nil {
		return nil, err
	}
	return data, nil
}
