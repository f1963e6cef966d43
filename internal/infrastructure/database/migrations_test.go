package database

import (
	"context"
	"testing"
	"testing/fstest"
)

func testMigrations() fstest.MapFS {
	return fstest.MapFS{
		"20260101_000001_first.up.sql":    {Data: []byte("CREATE TABLE a (id INTEGER PRIMARY KEY);")},
		"20260101_000001_first.down.sql":  {Data: []byte("DROP TABLE a;")},
		"20260102_000001_second.up.sql":   {Data: []byte("CREATE TABLE b (id INTEGER PRIMARY KEY);")},
		"README.md":                       {Data: []byte("not a migration")},
		"20260102_000001_second.down.sql": {Data: []byte("DROP TABLE b;")},
	}
}

func TestMigrate(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	if err := db.Migrate(ctx, testMigrations()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	for _, table := range []string{"a", "b"} {
		var name string
		err := db.QueryRowContext(ctx,
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %s not created: %v", table, err)
		}
	}

	version, err := db.SchemaVersion(ctx)
	if err != nil {
		t.Fatalf("SchemaVersion() error = %v", err)
	}
	if version != "20260102_000001" {
		t.Errorf("SchemaVersion() = %q, want 20260102_000001", version)
	}

	// Second run is a no-op.
	if err := db.Migrate(ctx, testMigrations()); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}
	var count int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations").Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 2 {
		t.Errorf("applied migrations = %d, want 2", count)
	}
}

func TestMigrateNoMigrations(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	if err := db.Migrate(ctx, fstest.MapFS{}); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	version, err := db.SchemaVersion(ctx)
	if err != nil {
		t.Fatalf("SchemaVersion() error = %v", err)
	}
	if version != "" {
		t.Errorf("SchemaVersion() = %q, want empty", version)
	}
}

func TestMigrateFailureStops(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	fsys := fstest.MapFS{
		"20260101_000001_ok.up.sql":     {Data: []byte("CREATE TABLE ok (id INTEGER);")},
		"20260101_000002_broken.up.sql": {Data: []byte("CREATE TABLE (;")},
	}
	if err := db.Migrate(ctx, fsys); err == nil {
		t.Fatal("Migrate() should fail on broken SQL")
	}

	version, err := db.SchemaVersion(ctx)
	if err != nil {
		t.Fatalf("SchemaVersion() error = %v", err)
	}
	if version != "20260101_000001" {
		t.Errorf("SchemaVersion() = %q, want 20260101_000001", version)
	}
}

func TestLoadMigrations(t *testing.T) {
	migrations, err := LoadMigrations(testMigrations())
	if err != nil {
		t.Fatalf("LoadMigrations() error = %v", err)
	}
	if len(migrations) != 2 {
		t.Fatalf("len = %d, want 2", len(migrations))
	}
	if migrations[0].Name != "first" || migrations[1].Name != "second" {
		t.Errorf("order = %s, %s", migrations[0].Name, migrations[1].Name)
	}
	if migrations[0].DownSQL == "" {
		t.Error("DownSQL not loaded")
	}

	if _, err := LoadMigrations(fstest.MapFS{
		"20260101_000001_orphan.down.sql": {Data: []byte("DROP TABLE x;")},
	}); err == nil {
		t.Error("LoadMigrations() should reject a down file without an up file")
	}

	if got, err := LoadMigrations(nil); err != nil || got != nil {
		t.Errorf("LoadMigrations(nil) = %v, %v", got, err)
	}
}

func TestParseMigrationFilename(t *testing.T) {
	tests := []struct {
		filename    string
		wantVersion string
		wantName    string
		wantUp      bool
		wantOK      bool
	}{
		{"20260301_000001_telemetry.up.sql", "20260301_000001", "telemetry", true, true},
		{"20260301_000001_telemetry.down.sql", "20260301_000001", "telemetry", false, true},
		{"20260301_000001_add_frame_index.up.sql", "20260301_000001", "add_frame_index", true, true},
		{"20260301_000001.up.sql", "20260301_000001", "", true, true},
		{"20260301_000001_telemetry.sql", "", "", false, false},
		{"20260301.up.sql", "", "", false, false},
		{"embed.go", "", "", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			version, name, isUp, ok := parseMigrationFilename(tt.filename)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if version != tt.wantVersion || name != tt.wantName || isUp != tt.wantUp {
				t.Errorf("got (%q, %q, %v), want (%q, %q, %v)",
					version, name, isUp, tt.wantVersion, tt.wantName, tt.wantUp)
			}
		})
	}
}
