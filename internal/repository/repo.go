package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

func NewRepo(db *sql.DB) *Repo { return &Repo{db: db} }

// Enqueue appends a track to the durable queue and returns the stored entry.
func (r *Repo) Enqueue(ctx context.Context, t Track) (*QueueEntry, error) {
	now := time.Now()
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO queue(title, url, thumbnail, added_by, added_by_id, enqueued_at) VALUES (?,?,?,?,?,?)`,
		t.Title, t.URL, t.Thumbnail, t.AddedBy, t.AddedByID, now.UnixNano(),
	)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &QueueEntry{ID: id, Track: t, EnqueuedAt: now}, nil
}

// NextInQueue returns the earliest-enqueued entry, or nil when the queue is empty.
func (r *Repo) NextInQueue(ctx context.Context) (*QueueEntry, error) {
	row := r.db.QueryRowContext(ctx, `
	SELECT id, title, url, thumbnail, added_by, added_by_id, enqueued_at
	FROM queue ORDER BY enqueued_at ASC, id ASC LIMIT 1`)
	return scanQueueEntry(row)
}

func (r *Repo) QueueEntryByID(ctx context.Context, id int64) (*QueueEntry, error) {
	row := r.db.QueryRowContext(ctx, `
	SELECT id, title, url, thumbnail, added_by, added_by_id, enqueued_at
	FROM queue WHERE id = ?`, id)
	return scanQueueEntry(row)
}

func scanQueueEntry(row *sql.Row) (*QueueEntry, error) {
	var e QueueEntry
	var enqueued int64
	err := row.Scan(&e.ID, &e.Title, &e.URL, &e.Thumbnail, &e.AddedBy, &e.AddedByID, &enqueued)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	e.EnqueuedAt = time.Unix(0, enqueued)
	return &e, nil
}

func (r *Repo) DeleteQueueEntry(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM queue WHERE id = ?`, id)
	return err
}

func (r *Repo) ListQueue(ctx context.Context) ([]QueueEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
	SELECT id, title, url, thumbnail, added_by, added_by_id, enqueued_at
	FROM queue ORDER BY enqueued_at ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []QueueEntry
	for rows.Next() {
		var e QueueEntry
		var enqueued int64
		if err := rows.Scan(&e.ID, &e.Title, &e.URL, &e.Thumbnail, &e.AddedBy, &e.AddedByID, &enqueued); err != nil {
			return nil, err
		}
		e.EnqueuedAt = time.Unix(0, enqueued)
		out = append(out, e)
	}
	return out, rows.Err()
}

// AppendHistory records a track transition into now-playing. Rows are never
// updated or deleted here; retention is the operator's concern.
func (r *Repo) AppendHistory(ctx context.Context, t Track) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO history(title, url, thumbnail, requested_by, played_at) VALUES (?,?,?,?,?)`,
		t.Title, t.URL, t.Thumbnail, t.AddedBy, time.Now().UnixNano(),
	)
	return err
}

func (r *Repo) HistoryEntryByID(ctx context.Context, id int64) (*HistoryEntry, error) {
	row := r.db.QueryRowContext(ctx, `
	SELECT id, title, url, thumbnail, requested_by, played_at
	FROM history WHERE id = ?`, id)
	var h HistoryEntry
	var played int64
	err := row.Scan(&h.ID, &h.Title, &h.URL, &h.Thumbnail, &h.RequestedBy, &played)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	h.PlayedAt = time.Unix(0, played)
	return &h, nil
}

func (r *Repo) ListHistory(ctx context.Context, limit int) ([]HistoryEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
	SELECT id, title, url, thumbnail, requested_by, played_at
	FROM history ORDER BY played_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []HistoryEntry
	for rows.Next() {
		var h HistoryEntry
		var played int64
		if err := rows.Scan(&h.ID, &h.Title, &h.URL, &h.Thumbnail, &h.RequestedBy, &played); err != nil {
			return nil, err
		}
		h.PlayedAt = time.Unix(0, played)
		out = append(out, h)
	}
	return out, rows.Err()
}

func (r *Repo) GetSetting(ctx context.Context, key string) (string, bool, error) {
	row := r.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key)
	var v string
	err := row.Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (r *Repo) SetSetting(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO settings(key, value) VALUES (?,?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	return err
}
