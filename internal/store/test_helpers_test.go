package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/ajgabz/mpf/internal/ir"
)

// createTestStore creates a new store in a temp dir for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestSession registers a session and returns it.
func createTestSession(t *testing.T, s *Store, id string, started time.Time) Session {
	t.Helper()
	sess := Session{
		ID:             id,
		ConfigHash:     "test-hash",
		EngineVersion:  ir.EngineVersion,
		JournalVersion: ir.JournalVersion,
		StartedAt:      started,
	}
	if err := s.BeginSession(context.Background(), sess); err != nil {
		t.Fatalf("BeginSession() failed: %v", err)
	}
	return sess
}

// appendTestEvent journals ev under the session and returns the record.
func appendTestEvent(t *testing.T, s *Store, session string, ev ir.Event, offset time.Duration) EventRecord {
	t.Helper()
	rec, err := NewEventRecord(session, ev, offset)
	if err != nil {
		t.Fatalf("NewEventRecord() failed: %v", err)
	}
	if err := s.AppendEvent(context.Background(), rec); err != nil {
		t.Fatalf("AppendEvent() failed: %v", err)
	}
	return rec
}

func getTableColumns(t *testing.T, db *sql.DB, table string) []string {
	t.Helper()
	rows, err := db.Query("SELECT name FROM pragma_table_info(?)", table)
	if err != nil {
		t.Fatalf("table_info(%s) failed: %v", table, err)
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			t.Fatalf("scan column: %v", err)
		}
		cols = append(cols, name)
	}
	return cols
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
