package migrator

import (
	"testing"
	"testing/fstest"

	"github.com/archon-research/stl/pool-state/db/migrations"
)

func TestMigrationFiles(t *testing.T) {
	files := fstest.MapFS{
		"002_b.sql":     {Data: []byte("SELECT 2;")},
		"001_a.sql":     {Data: []byte("SELECT 1;")},
		"README.md":     {Data: []byte("docs")},
		"archive/x.sql": {Data: []byte("SELECT 3;")},
		"010_later.sql": {Data: []byte("SELECT 10;")},
		"notes.sql.bak": {Data: []byte("old")},
	}
	m := New(nil, files, nil)

	got, err := m.migrationFiles()
	if err != nil {
		t.Fatalf("migrationFiles: %v", err)
	}
	want := []string{"001_a.sql", "002_b.sql", "010_later.sql"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("file %d = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestEmbeddedMigrations(t *testing.T) {
	files, err := New(nil, migrations.FS, nil).migrationFiles()
	if err != nil {
		t.Fatalf("migrationFiles: %v", err)
	}
	if len(files) != 3 {
		t.Fatalf("embedded migrations = %v, want 3 files", files)
	}
}
