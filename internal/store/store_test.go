package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"dolphind/internal/dolphin"
)

func sampleData() dolphin.StoreData {
	var d dolphin.StoreData
	d.Icounter = 742
	d.Butthurt = 3
	d.Timestamp = 1700000000
	d.Flags = 0x1
	d.IcounterDailyLimit[dolphin.AppSubGhz] = 7
	d.IcounterDailyLimit[dolphin.AppNfc] = 20
	return d
}

func TestOpenBackends(t *testing.T) {
	tmpDir := t.TempDir()

	tests := []struct {
		kind string
		path string
	}{
		{BackendFile, filepath.Join(tmpDir, "a", "dolphin.state")},
		{BackendSQLite, filepath.Join(tmpDir, "b", "dolphin.db")},
		{BackendMemory, ""},
		{"", filepath.Join(tmpDir, "c", "dolphin.state")},
	}
	for _, tt := range tests {
		s, err := Open(tt.kind, tt.path)
		if err != nil {
			t.Fatalf("Open(%q) failed: %v", tt.kind, err)
		}
		if err := s.Ping(context.Background()); err != nil {
			t.Errorf("Ping(%q) failed: %v", tt.kind, err)
		}
		if err := s.Close(); err != nil {
			t.Errorf("Close(%q) failed: %v", tt.kind, err)
		}
	}

	if _, err := Open("etcd", tmpDir); err == nil {
		t.Error("expected error for unknown backend")
	}
}

func TestLoadWithoutSave(t *testing.T) {
	ctx := context.Background()
	tmpDir := t.TempDir()

	fs, err := OpenFile(filepath.Join(tmpDir, "dolphin.state"))
	if err != nil {
		t.Fatalf("OpenFile failed: %v", err)
	}
	sq, err := OpenSQLite(filepath.Join(tmpDir, "dolphin.db"))
	if err != nil {
		t.Fatalf("OpenSQLite failed: %v", err)
	}
	defer sq.Close()

	for name, s := range map[string]Store{"file": fs, "sqlite": sq, "memory": NewMemoryStore()} {
		if _, err := s.Load(ctx); !errors.Is(err, dolphin.ErrNoState) {
			t.Errorf("%s: Load error = %v, want ErrNoState", name, err)
		}
	}
}

func TestRoundTrip(t *testing.T) {
	ctx := context.Background()
	tmpDir := t.TempDir()

	fs, err := OpenFile(filepath.Join(tmpDir, "dolphin.state"))
	if err != nil {
		t.Fatalf("OpenFile failed: %v", err)
	}
	sq, err := OpenSQLite(filepath.Join(tmpDir, "dolphin.db"))
	if err != nil {
		t.Fatalf("OpenSQLite failed: %v", err)
	}
	defer sq.Close()

	want := sampleData()
	for name, s := range map[string]Store{"file": fs, "sqlite": sq, "memory": NewMemoryStore()} {
		if err := s.Save(ctx, want); err != nil {
			t.Fatalf("%s: Save failed: %v", name, err)
		}
		got, err := s.Load(ctx)
		if err != nil {
			t.Fatalf("%s: Load failed: %v", name, err)
		}
		if got != want {
			t.Errorf("%s: Load = %+v, want %+v", name, got, want)
		}

		// Overwrite.
		want2 := want
		want2.Icounter++
		want2.IcounterDailyLimit[dolphin.AppSubGhz] = 0
		if err := s.Save(ctx, want2); err != nil {
			t.Fatalf("%s: second Save failed: %v", name, err)
		}
		got, err = s.Load(ctx)
		if err != nil {
			t.Fatalf("%s: second Load failed: %v", name, err)
		}
		if got != want2 {
			t.Errorf("%s: Load = %+v, want %+v", name, got, want2)
		}
	}
}

func TestFileStoreNoTempLeftBehind(t *testing.T) {
	tmpDir := t.TempDir()
	s, err := OpenFile(filepath.Join(tmpDir, "dolphin.state"))
	if err != nil {
		t.Fatalf("OpenFile failed: %v", err)
	}
	if err := s.Save(context.Background(), sampleData()); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	entries, err := os.ReadDir(tmpDir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	for _, e := range entries {
		if e.Name() != "dolphin.state" && e.Name() != "dolphin.state.lock" {
			t.Errorf("unexpected file %q", e.Name())
		}
	}
}

func TestFileStoreDetectsCorruption(t *testing.T) {
	raw, err := encodeRecord(sampleData())
	if err != nil {
		t.Fatalf("encodeRecord failed: %v", err)
	}

	tests := []struct {
		name    string
		mutate  func([]byte) []byte
		wantErr error
	}{
		{"bad magic", func(b []byte) []byte { b[0] = 0x00; return b }, ErrBadMagic},
		{"bad version", func(b []byte) []byte { b[1] = 0x7f; return b }, ErrVersion},
		{"flipped payload", func(b []byte) []byte { b[len(b)-1] ^= 0xff; return b }, ErrChecksum},
		{"truncated", func(b []byte) []byte { return b[:len(b)-2] }, ErrSize},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "dolphin.state")
			buf := tt.mutate(append([]byte(nil), raw...))
			if err := os.WriteFile(path, buf, 0o600); err != nil {
				t.Fatalf("WriteFile failed: %v", err)
			}
			s, err := OpenFile(path)
			if err != nil {
				t.Fatalf("OpenFile failed: %v", err)
			}
			if _, err := s.Load(context.Background()); !errors.Is(err, tt.wantErr) {
				t.Errorf("Load error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestOpenFileEmptyPath(t *testing.T) {
	if _, err := OpenFile(""); err == nil {
		t.Error("expected error for empty path")
	}
}

func TestSQLiteMigrations(t *testing.T) {
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "dolphin.db"))
	if err != nil {
		t.Fatalf("OpenSQLite failed: %v", err)
	}
	defer s.Close()

	v, err := SchemaVersion(s.DB())
	if err != nil {
		t.Fatalf("SchemaVersion failed: %v", err)
	}
	if v != len(migrations) {
		t.Errorf("schema version = %d, want %d", v, len(migrations))
	}

	// Re-running is a no-op.
	if err := MigrateDB(s.DB()); err != nil {
		t.Fatalf("second MigrateDB failed: %v", err)
	}

	if err := RollbackMigration(s.DB()); err != nil {
		t.Fatalf("RollbackMigration failed: %v", err)
	}
	v, _ = SchemaVersion(s.DB())
	if v != len(migrations)-1 {
		t.Errorf("schema version after rollback = %d, want %d", v, len(migrations)-1)
	}

	if err := s.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func TestSQLiteReopenKeepsState(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "dolphin.db")

	s, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite failed: %v", err)
	}
	want := sampleData()
	if err := s.Save(ctx, want); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	s.Close()

	s, err = OpenSQLite(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer s.Close()
	got, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got != want {
		t.Errorf("Load = %+v, want %+v", got, want)
	}
}

func TestMemoryStoreCountsWrites(t *testing.T) {
	m := NewMemoryStore()
	for i := 0; i < 3; i++ {
		if err := m.Save(context.Background(), sampleData()); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}
	if m.Writes() != 3 {
		t.Errorf("Writes = %d, want 3", m.Writes())
	}
}
