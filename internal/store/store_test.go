package store

import (
	stderrors "errors"
	"testing"
	"time"

	"github.com/Robertja98/simple-auth/pkg/errors"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	st, err := Open(t.TempDir(), time.Second)
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	return st
}

func TestInsert_AssignsMonotonicIDs(t *testing.T) {
	st := openTestStore(t)

	first, err := st.Insert(TableLoginAttempts, Record{
		"username_or_email": "alice",
		"ip_address":        "10.0.0.1",
		"success":           "0",
		"attempted_at":      FormatTime(time.Now()),
	})
	if err != nil {
		t.Fatalf("Insert error: %v", err)
	}
	if first != 1 {
		t.Fatalf("expected first id 1, got %d", first)
	}

	second, err := st.Insert(TableLoginAttempts, Record{
		"username_or_email": "bob",
		"ip_address":        "10.0.0.2",
		"success":           "1",
		"attempted_at":      FormatTime(time.Now()),
	})
	if err != nil {
		t.Fatalf("Insert error: %v", err)
	}
	if second != 2 {
		t.Fatalf("expected second id 2, got %d", second)
	}
}

func TestInsert_FillsCreatedAt(t *testing.T) {
	st := openTestStore(t)

	id, err := st.Insert(TableActivityLog, Record{
		"user_id":     "1",
		"action_type": "user_login",
	})
	if err != nil {
		t.Fatalf("Insert error: %v", err)
	}

	rec, err := st.FetchOne(TableActivityLog, Predicate{"id": "1"})
	if err != nil {
		t.Fatalf("FetchOne error: %v", err)
	}
	if rec["created_at"] == "" {
		t.Fatalf("expected created_at to be filled for id %d", id)
	}
}

func TestInsert_RejectsUnknownColumn(t *testing.T) {
	st := openTestStore(t)

	if _, err := st.Insert(TableUsers, Record{"nickname": "al"}); err == nil {
		t.Fatalf("expected unknown column error")
	}
}

func TestRoundTrip_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()

	st, err := Open(dir, time.Second)
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}

	const n = 25
	for i := 0; i < n; i++ {
		_, err := st.Insert(TableLoginAttempts, Record{
			"username_or_email": "user",
			"ip_address":        "10.0.0.1",
			"success":           "0",
			"attempted_at":      FormatTime(time.Now()),
		})
		if err != nil {
			t.Fatalf("Insert error: %v", err)
		}
	}

	// A fresh store over the same directory must see identical rows.
	reopened, err := Open(dir, time.Second)
	if err != nil {
		t.Fatalf("reopen error: %v", err)
	}

	records, err := reopened.FetchAll(TableLoginAttempts, nil)
	if err != nil {
		t.Fatalf("FetchAll error: %v", err)
	}
	if len(records) != n {
		t.Fatalf("expected %d records, got %d", n, len(records))
	}
	for i, rec := range records {
		if rec["username_or_email"] != "user" || rec["ip_address"] != "10.0.0.1" {
			t.Fatalf("record %d corrupted: %v", i, rec)
		}
	}
}

func TestFetchOne_MissingFieldNeverMatches(t *testing.T) {
	st := openTestStore(t)

	if _, err := st.Insert(TableUsers, Record{"username": "alice", "email": "alice@x.com"}); err != nil {
		t.Fatalf("Insert error: %v", err)
	}

	if _, err := st.FetchOne(TableUsers, Predicate{"no_such_field": "x"}); err != errors.ErrRecordNotFound {
		t.Fatalf("expected ErrRecordNotFound, got %v", err)
	}
}

func TestFetchOne_UsesIndexedColumns(t *testing.T) {
	st := openTestStore(t)

	for _, name := range []string{"alice", "bob", "carol"} {
		if _, err := st.Insert(TableUsers, Record{"username": name, "email": name + "@x.com"}); err != nil {
			t.Fatalf("Insert error: %v", err)
		}
	}

	rec, err := st.FetchOne(TableUsers, Predicate{"email": "bob@x.com"})
	if err != nil {
		t.Fatalf("FetchOne error: %v", err)
	}
	if rec["username"] != "bob" {
		t.Fatalf("expected bob, got %q", rec["username"])
	}
}

func TestUpdate_PatchesMatchingRows(t *testing.T) {
	st := openTestStore(t)

	if _, err := st.Insert(TableUsers, Record{"username": "alice", "email": "alice@x.com", "is_active": "1"}); err != nil {
		t.Fatalf("Insert error: %v", err)
	}

	matched, err := st.Update(TableUsers, Record{"is_active": "0"}, Predicate{"username": "alice"})
	if err != nil {
		t.Fatalf("Update error: %v", err)
	}
	if !matched {
		t.Fatalf("expected a match")
	}

	rec, err := st.FetchOne(TableUsers, Predicate{"username": "alice"})
	if err != nil {
		t.Fatalf("FetchOne error: %v", err)
	}
	if rec["is_active"] != "0" {
		t.Fatalf("patch not applied: %v", rec)
	}
	if rec["updated_at"] == "" {
		t.Fatalf("expected updated_at to be stamped")
	}

	matched, err = st.Update(TableUsers, Record{"is_active": "1"}, Predicate{"username": "nobody"})
	if err != nil {
		t.Fatalf("Update error: %v", err)
	}
	if matched {
		t.Fatalf("expected no match")
	}
}

func TestDelete_ReinitializesEmptyTable(t *testing.T) {
	dir := t.TempDir()

	st, err := Open(dir, time.Second)
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}

	if _, err := st.Insert(TableSessions, Record{"user_id": "1", "session_token": "tok"}); err != nil {
		t.Fatalf("Insert error: %v", err)
	}

	if err := st.Delete(TableSessions, Predicate{"session_token": "tok"}); err != nil {
		t.Fatalf("Delete error: %v", err)
	}

	// Deleting an absent row is a no-op, not an error.
	if err := st.Delete(TableSessions, Predicate{"session_token": "tok"}); err != nil {
		t.Fatalf("repeat Delete error: %v", err)
	}

	reopened, err := Open(dir, time.Second)
	if err != nil {
		t.Fatalf("reopen error: %v", err)
	}
	count, err := reopened.Count(TableSessions, nil)
	if err != nil {
		t.Fatalf("Count error: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected empty table, got %d rows", count)
	}
}

func TestCleanup_KeepsBlankTimeFields(t *testing.T) {
	st := openTestStore(t)

	old := FormatTime(time.Now().Add(-2 * time.Hour))
	fresh := FormatTime(time.Now().Add(2 * time.Hour))

	inserts := []Record{
		{"user_id": "1", "session_token": "a", "expires_at": old},
		{"user_id": "1", "session_token": "b", "expires_at": fresh},
		{"user_id": "1", "session_token": "c", "expires_at": ""},
	}
	for _, rec := range inserts {
		if _, err := st.Insert(TableSessions, rec); err != nil {
			t.Fatalf("Insert error: %v", err)
		}
	}

	removed, err := st.Cleanup(TableSessions, "expires_at", time.Now())
	if err != nil {
		t.Fatalf("Cleanup error: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}

	count, err := st.Count(TableSessions, nil)
	if err != nil {
		t.Fatalf("Count error: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 survivors, got %d", count)
	}
}

func TestMutation_TimesOutOnHeldLock(t *testing.T) {
	st, err := Open(t.TempDir(), 50*time.Millisecond)
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}

	tbl := st.tables[TableUsers]
	tbl.sem <- struct{}{} // hold the critical section
	defer func() { <-tbl.sem }()

	_, err = st.Insert(TableUsers, Record{"username": "alice"})
	if !stderrors.Is(err, errors.ErrLockTimeout) {
		t.Fatalf("expected ErrLockTimeout, got %v", err)
	}
}
