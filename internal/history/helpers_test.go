package history

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/edusat-bridge/internal/infrastructure/config"
	"github.com/nerrad567/edusat-bridge/internal/infrastructure/database"
	"github.com/nerrad567/edusat-bridge/internal/telemetry"
	"github.com/nerrad567/edusat-bridge/migrations"
)

// openTestRepo opens a migrated journal database in a temp dir.
func openTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()

	db, err := database.Open(context.Background(), config.DatabaseConfig{
		Path:        filepath.Join(t.TempDir(), "journal.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	if err := db.Migrate(context.Background(), migrations.FS); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return NewSQLiteRepository(db.DB)
}

func snapshotWith(voltage0 float64) telemetry.Snapshot {
	s := telemetry.NewSnapshot(telemetry.DefaultLayout())
	s.Values["voltage"][0] = voltage0
	s.Selection["voltage"] = true
	return s
}

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// MockRepository records entries in memory.
type MockRepository struct {
	mu      sync.Mutex
	entries []Entry
	prunes  []int

	// block, when set, holds Create until closed.
	block chan struct{}
	fail  bool
}

func (m *MockRepository) Create(_ context.Context, entry *Entry) error {
	if m.block != nil {
		<-m.block
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("disk full")
	}
	entry.ID = int64(len(m.entries) + 1)
	m.entries = append(m.entries, *entry)
	return nil
}

func (m *MockRepository) List(_ context.Context, _ Filter) (*ListResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return &ListResult{Entries: append([]Entry(nil), m.entries...), Total: len(m.entries)}, nil
}

func (m *MockRepository) Prune(_ context.Context, keep int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prunes = append(m.prunes, keep)
	if len(m.entries) <= keep {
		return 0, nil
	}
	n := len(m.entries) - keep
	m.entries = m.entries[n:]
	return int64(n), nil
}

func (m *MockRepository) GetEntries() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Entry(nil), m.entries...)
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
