package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// SaveSnapshot upserts the snapshot payload for a page URL.
func (s *Store) SaveSnapshot(ctx context.Context, pageURL string, payload []byte) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO snapshots (page_url, payload, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(page_url) DO UPDATE SET
			payload = excluded.payload,
			updated_at = excluded.updated_at`,
		pageURL, string(payload), time.Now().UnixMilli())
	return err
}

// LoadSnapshot returns the payload for a page URL, or nil when no snapshot
// exists.
func (s *Store) LoadSnapshot(ctx context.Context, pageURL string) ([]byte, error) {
	var payload string
	err := s.DB.QueryRowContext(ctx,
		`SELECT payload FROM snapshots WHERE page_url = ?`, pageURL).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return []byte(payload), nil
}

// DeleteSnapshot removes the snapshot row entirely. Clearing all
// annotations deletes the key rather than writing an empty payload.
func (s *Store) DeleteSnapshot(ctx context.Context, pageURL string) error {
	_, err := s.DB.ExecContext(ctx,
		`DELETE FROM snapshots WHERE page_url = ?`, pageURL)
	return err
}

// ListSnapshotURLs returns every page URL with a stored snapshot, most
// recently updated first.
func (s *Store) ListSnapshotURLs(ctx context.Context) ([]string, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT page_url FROM snapshots ORDER BY updated_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var urls []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, err
		}
		urls = append(urls, u)
	}
	return urls, rows.Err()
}
