// Package store provides durable, crash-consistent storage for a fixed set
// of named tables, each one CSV file with a header row. Every mutation runs
// inside an exclusive per-table critical section held for the full
// read-modify-write-rewrite sequence, and every rewrite goes through a
// staging file replaced atomically, so the live file is always syntactically
// complete. It is a small append/rewrite file abstraction for single-process
// use, not a general database.
package store

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/Robertja98/simple-auth/pkg/errors"
)

// Record is one row of a table, keyed by column name. All values are
// strings in the file format.
type Record map[string]string

// Predicate selects rows whose named fields all equal the given values
// (string equality). A row missing a predicate field never matches.
type Predicate map[string]string

const defaultLockTimeout = 5 * time.Second

type Store struct {
	dataDir     string
	lockTimeout time.Duration
	tables      map[string]*table
}

type table struct {
	name    string
	path    string
	columns []string

	// sem is the table's exclusive critical section. Held for the full
	// read-modify-write-rewrite sequence of every operation.
	sem chan struct{}

	loaded  bool
	records []Record
	index   map[string]map[string]int // column -> value -> position in records
}

// Open creates the data directory and header-only table files on first use
// and returns a store over them. lockTimeout bounds how long an operation
// waits for a table's critical section; zero selects a 5s default.
func Open(dataDir string, lockTimeout time.Duration) (*Store, error) {
	if lockTimeout <= 0 {
		lockTimeout = defaultLockTimeout
	}

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	s := &Store{
		dataDir:     dataDir,
		lockTimeout: lockTimeout,
		tables:      make(map[string]*table, len(tableSchemas)),
	}

	for name, columns := range tableSchemas {
		t := &table{
			name:    name,
			path:    filepath.Join(dataDir, name+".csv"),
			columns: columns,
			sem:     make(chan struct{}, 1),
		}

		if _, err := os.Stat(t.path); os.IsNotExist(err) {
			if err := t.writeFile(nil); err != nil {
				return nil, err
			}
		} else if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", t.path, err)
		}

		s.tables[name] = t
	}

	return s, nil
}

// Insert appends a record, assigning it an id one greater than the current
// maximum (starting at 1) and filling created_at when absent. The whole
// table is rewritten; the new id is returned.
func (s *Store) Insert(tableName string, fields Record) (int, error) {
	t, err := s.table(tableName)
	if err != nil {
		return 0, err
	}
	if err := t.checkColumns(fields); err != nil {
		return 0, err
	}

	if err := t.acquire(s.lockTimeout); err != nil {
		return 0, err
	}
	defer t.release()

	if err := t.load(); err != nil {
		return 0, err
	}

	maxID := 0
	for _, rec := range t.records {
		if id, err := strconv.Atoi(rec["id"]); err == nil && id > maxID {
			maxID = id
		}
	}

	rec := cloneRecord(fields)
	rec["id"] = strconv.Itoa(maxID + 1)
	if t.hasColumn("created_at") && rec["created_at"] == "" {
		rec["created_at"] = FormatTime(time.Now())
	}

	if err := t.rewrite(append(t.records, rec)); err != nil {
		return 0, err
	}

	return maxID + 1, nil
}

// FetchOne returns the first record matching the predicate, or
// errors.ErrRecordNotFound. Single-field lookups on indexed columns are
// resolved through the secondary index.
func (s *Store) FetchOne(tableName string, where Predicate) (Record, error) {
	t, err := s.table(tableName)
	if err != nil {
		return nil, err
	}

	if err := t.acquire(s.lockTimeout); err != nil {
		return nil, err
	}
	defer t.release()

	if err := t.load(); err != nil {
		return nil, err
	}

	if rec, ok := t.lookupIndexed(where); ok {
		return cloneRecord(rec), nil
	}

	for _, rec := range t.records {
		if matches(rec, where) {
			return cloneRecord(rec), nil
		}
	}

	return nil, errors.ErrRecordNotFound
}

// FetchAll returns every record matching the predicate, in insertion order.
// An empty predicate matches everything.
func (s *Store) FetchAll(tableName string, where Predicate) ([]Record, error) {
	t, err := s.table(tableName)
	if err != nil {
		return nil, err
	}

	if err := t.acquire(s.lockTimeout); err != nil {
		return nil, err
	}
	defer t.release()

	if err := t.load(); err != nil {
		return nil, err
	}

	var results []Record
	for _, rec := range t.records {
		if matches(rec, where) {
			results = append(results, cloneRecord(rec))
		}
	}

	return results, nil
}

// Update applies the patch to every matching record, stamping updated_at
// where the schema carries it, then rewrites the table. It reports whether
// any record matched.
func (s *Store) Update(tableName string, patch Record, where Predicate) (bool, error) {
	t, err := s.table(tableName)
	if err != nil {
		return false, err
	}
	if err := t.checkColumns(patch); err != nil {
		return false, err
	}

	if err := t.acquire(s.lockTimeout); err != nil {
		return false, err
	}
	defer t.release()

	if err := t.load(); err != nil {
		return false, err
	}

	patch = cloneRecord(patch)
	if t.hasColumn("updated_at") && patch["updated_at"] == "" {
		patch["updated_at"] = FormatTime(time.Now())
	}

	updated := false
	records := make([]Record, len(t.records))
	for i, rec := range t.records {
		if matches(rec, where) {
			merged := cloneRecord(rec)
			for k, v := range patch {
				merged[k] = v
			}
			records[i] = merged
			updated = true
		} else {
			records[i] = rec
		}
	}

	if !updated {
		return false, nil
	}

	if err := t.rewrite(records); err != nil {
		return false, err
	}

	return true, nil
}

// Delete removes every matching record and rewrites the table; a table with
// no survivors is reinitialized to its header row.
func (s *Store) Delete(tableName string, where Predicate) error {
	t, err := s.table(tableName)
	if err != nil {
		return err
	}

	if err := t.acquire(s.lockTimeout); err != nil {
		return err
	}
	defer t.release()

	if err := t.load(); err != nil {
		return err
	}

	var survivors []Record
	for _, rec := range t.records {
		if !matches(rec, where) {
			survivors = append(survivors, rec)
		}
	}

	return t.rewrite(survivors)
}

// Count returns the number of records matching the predicate.
func (s *Store) Count(tableName string, where Predicate) (int, error) {
	records, err := s.FetchAll(tableName, where)
	if err != nil {
		return 0, err
	}
	return len(records), nil
}

// Filter returns every record the keep function accepts.
func (s *Store) Filter(tableName string, keep func(Record) bool) ([]Record, error) {
	t, err := s.table(tableName)
	if err != nil {
		return nil, err
	}

	if err := t.acquire(s.lockTimeout); err != nil {
		return nil, err
	}
	defer t.release()

	if err := t.load(); err != nil {
		return nil, err
	}

	var results []Record
	for _, rec := range t.records {
		if keep(rec) {
			results = append(results, cloneRecord(rec))
		}
	}

	return results, nil
}

// Cleanup removes records whose timeField is older than the cutoff and
// returns how many were removed. Records with a blank or malformed time
// field are kept. Used by the maintenance sweep, never by interactive paths.
func (s *Store) Cleanup(tableName, timeField string, cutoff time.Time) (int, error) {
	t, err := s.table(tableName)
	if err != nil {
		return 0, err
	}

	if err := t.acquire(s.lockTimeout); err != nil {
		return 0, err
	}
	defer t.release()

	if err := t.load(); err != nil {
		return 0, err
	}

	var survivors []Record
	for _, rec := range t.records {
		when := ParseTime(rec[timeField])
		if when.IsZero() || !when.Before(cutoff) {
			survivors = append(survivors, rec)
		}
	}

	removed := len(t.records) - len(survivors)
	if removed == 0 {
		return 0, nil
	}

	if err := t.rewrite(survivors); err != nil {
		return 0, err
	}

	return removed, nil
}

func (s *Store) table(name string) (*table, error) {
	t, ok := s.tables[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", errors.ErrUnknownTable, name)
	}
	return t, nil
}

// acquire enters the table's critical section, failing with ErrLockTimeout
// after the bounded wait.
func (t *table) acquire(timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case t.sem <- struct{}{}:
		return nil
	case <-timer.C:
		return fmt.Errorf("%w: %s", errors.ErrLockTimeout, t.name)
	}
}

func (t *table) release() {
	<-t.sem
}

// load reads the table file into the cache and rebuilds the secondary
// indexes. Must be called inside the critical section.
func (t *table) load() error {
	if t.loaded {
		return nil
	}

	f, err := os.Open(t.path)
	if err != nil {
		if os.IsNotExist(err) {
			t.records = nil
			t.loaded = true
			t.rebuildIndex()
			return nil
		}
		return fmt.Errorf("%w: open %s: %v", errors.ErrStorage, t.name, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		t.records = nil
		t.loaded = true
		t.rebuildIndex()
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: read %s header: %v", errors.ErrStorage, t.name, err)
	}

	var records []Record
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("%w: read %s: %v", errors.ErrStorage, t.name, err)
		}
		// Rows whose field count disagrees with the header are skipped
		// rather than failing the whole load.
		if len(row) != len(header) {
			continue
		}
		rec := make(Record, len(header))
		for i, col := range header {
			rec[col] = row[i]
		}
		records = append(records, rec)
	}

	t.records = records
	t.loaded = true
	t.rebuildIndex()
	return nil
}

// rewrite persists the given record set and, only on success, makes it the
// new cache. Must be called inside the critical section.
func (t *table) rewrite(records []Record) error {
	if err := t.writeFile(records); err != nil {
		return err
	}

	t.records = records
	t.loaded = true
	t.rebuildIndex()
	return nil
}

// writeFile writes a complete table (header plus rows) to a staging file
// and renames it over the live file. Any failure before the rename leaves
// the live file untouched.
func (t *table) writeFile(records []Record) error {
	tmpPath := t.path + ".tmp"

	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("%w: create staging file for %s: %v", errors.ErrStorage, t.name, err)
	}

	writer := csv.NewWriter(f)
	if err := writer.Write(t.columns); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("%w: write %s header: %v", errors.ErrStorage, t.name, err)
	}

	row := make([]string, len(t.columns))
	for _, rec := range records {
		for i, col := range t.columns {
			row[i] = rec[col]
		}
		if err := writer.Write(row); err != nil {
			f.Close()
			os.Remove(tmpPath)
			return fmt.Errorf("%w: write %s row: %v", errors.ErrStorage, t.name, err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("%w: flush %s: %v", errors.ErrStorage, t.name, err)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("%w: sync %s: %v", errors.ErrStorage, t.name, err)
	}

	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%w: close %s: %v", errors.ErrStorage, t.name, err)
	}

	// The rename is the only moment visibility changes.
	if err := os.Rename(tmpPath, t.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%w: replace %s: %v", errors.ErrStorage, t.name, err)
	}

	return nil
}

func (t *table) rebuildIndex() {
	columns := tableIndexes[t.name]
	if len(columns) == 0 {
		t.index = nil
		return
	}

	t.index = make(map[string]map[string]int, len(columns))
	for _, col := range columns {
		byValue := make(map[string]int, len(t.records))
		for i, rec := range t.records {
			if v := rec[col]; v != "" {
				byValue[v] = i
			}
		}
		t.index[col] = byValue
	}
}

// lookupIndexed resolves a single-field predicate through the secondary
// index when one exists for the column.
func (t *table) lookupIndexed(where Predicate) (Record, bool) {
	if len(where) != 1 || t.index == nil {
		return nil, false
	}

	for col, value := range where {
		byValue, ok := t.index[col]
		if !ok {
			return nil, false
		}
		i, ok := byValue[value]
		if !ok || i >= len(t.records) {
			return nil, false
		}
		return t.records[i], true
	}

	return nil, false
}

func (t *table) hasColumn(name string) bool {
	for _, col := range t.columns {
		if col == name {
			return true
		}
	}
	return false
}

func (t *table) checkColumns(fields Record) error {
	for name := range fields {
		if !t.hasColumn(name) {
			return fmt.Errorf("%w: %s.%s", errors.ErrUnknownColumn, t.name, name)
		}
	}
	return nil
}

func matches(rec Record, where Predicate) bool {
	for field, value := range where {
		got, ok := rec[field]
		if !ok || got != value {
			return false
		}
	}
	return true
}

func cloneRecord(rec Record) Record {
	out := make(Record, len(rec))
	for k, v := range rec {
		out[k] = v
	}
	return out
}
