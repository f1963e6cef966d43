package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/nerrad567/edusat-bridge/internal/telemetry"
)

// Page size limits for List.
const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

// timeLayout is fixed-width so recorded_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Entry is one journaled snapshot.
type Entry struct {
	ID         int64              `json:"id"`
	RecordedAt time.Time          `json:"recorded_at"`
	Seq        uint64             `json:"seq"`
	DevicePath string             `json:"device_path,omitempty"`
	Snapshot   telemetry.Snapshot `json:"snapshot"`
}

// Filter controls which entries List returns.
type Filter struct {
	Since  time.Time // optional: only entries recorded at or after Since
	Limit  int       // default 50, max 500
	Offset int       // pagination offset
}

// ListResult contains a page of entries, most recent first.
type ListResult struct {
	Entries []Entry `json:"entries"`
	Total   int     `json:"total"`
	Limit   int     `json:"limit"`
	Offset  int     `json:"offset"`
}

// Repository stores journal entries.
type Repository interface {
	Create(ctx context.Context, entry *Entry) error
	List(ctx context.Context, filter Filter) (*ListResult, error)
	Prune(ctx context.Context, keep int) (int64, error)
}

var encMode = func() cbor.EncMode {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

// SQLiteRepository keeps entries in the telemetry_frames table.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository over an open database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Create inserts an entry and sets its ID. RecordedAt defaults to now.
func (r *SQLiteRepository) Create(ctx context.Context, entry *Entry) error {
	if entry.RecordedAt.IsZero() {
		entry.RecordedAt = time.Now()
	}

	payload, err := encMode.Marshal(entry.Snapshot)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO telemetry_frames (recorded_at, seq, device_path, payload)
		 VALUES (?, ?, ?, ?)`,
		entry.RecordedAt.UTC().Format(timeLayout),
		int64(entry.Seq), //nolint:gosec // sequence numbers stay far below MaxInt64
		entry.DevicePath,
		payload,
	)
	if err != nil {
		return fmt.Errorf("inserting telemetry frame: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading telemetry frame id: %w", err)
	}
	entry.ID = id
	return nil
}

// List returns entries matching the filter, most recent first.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	if filter.Limit <= 0 {
		filter.Limit = DefaultListLimit
	}
	if filter.Limit > MaxListLimit {
		filter.Limit = MaxListLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	since := ""
	if !filter.Since.IsZero() {
		since = filter.Since.UTC().Format(timeLayout)
	}

	var total int
	if err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM telemetry_frames WHERE recorded_at >= ?", since,
	).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting telemetry frames: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, recorded_at, seq, device_path, payload FROM telemetry_frames
		 WHERE recorded_at >= ? ORDER BY id DESC LIMIT ? OFFSET ?`,
		since, filter.Limit, filter.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("querying telemetry frames: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		var recordedAt string
		var seq int64
		var payload []byte

		if err := rows.Scan(&e.ID, &recordedAt, &seq, &e.DevicePath, &payload); err != nil {
			return nil, fmt.Errorf("scanning telemetry frame: %w", err)
		}

		t, err := time.Parse(timeLayout, recordedAt)
		if err != nil {
			return nil, fmt.Errorf("parsing telemetry frame timestamp %q: %w", recordedAt, err)
		}
		e.RecordedAt = t
		e.Seq = uint64(seq) //nolint:gosec // written from a uint64

		if err := cbor.Unmarshal(payload, &e.Snapshot); err != nil {
			return nil, fmt.Errorf("decoding telemetry frame %d: %w", e.ID, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating telemetry frames: %w", err)
	}

	return &ListResult{
		Entries: entries,
		Total:   total,
		Limit:   filter.Limit,
		Offset:  filter.Offset,
	}, nil
}

// Prune deletes all but the newest keep entries and reports how many went.
// keep <= 0 deletes nothing.
func (r *SQLiteRepository) Prune(ctx context.Context, keep int) (int64, error) {
	if keep <= 0 {
		return 0, nil
	}
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM telemetry_frames WHERE id NOT IN
		 (SELECT id FROM telemetry_frames ORDER BY id DESC LIMIT ?)`,
		keep,
	)
	if err != nil {
		return 0, fmt.Errorf("pruning telemetry frames: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting pruned telemetry frames: %w", err)
	}
	return n, nil
}
