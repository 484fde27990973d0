package statedb

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SchemaVersion tracks the current database schema version.
// Bump this when adding migrations.
const SchemaVersion = 1

// Preference keys and their defaults.
const (
	PrefActiveTab     = "active_tab"
	PrefSidebarWidth  = "sidebar_width"
	PrefTerminalTheme = "terminal_theme"

	DefaultSidebarWidth  = 250
	DefaultTerminalTheme = "vscode"
)

var prefDefaults = map[string]string{
	PrefSidebarWidth:  strconv.Itoa(DefaultSidebarWidth),
	PrefTerminalTheme: DefaultTerminalTheme,
}

// ErrProjectNotFound is returned when a project path is not stored.
var ErrProjectNotFound = errors.New("project not found")

// StateDB wraps a SQLite database holding the workspace: tabs, projects and
// layout preferences. Live session ids are never stored.
// Safe for concurrent use; other processes can read via WAL mode.
type StateDB struct {
	db *sql.DB
}

// TabRow is a persisted tab.
type TabRow struct {
	ID          string
	Title       string
	Dir         string
	ManualTitle bool
	Elevated    bool
	Order       int
}

// ProjectRow is a persisted project.
type ProjectRow struct {
	Path    string
	Name    string
	Type    string // empty until detected
	AddedAt time.Time
}

// Open creates or opens a SQLite database at dbPath with WAL mode and busy timeout.
func Open(dbPath string) (*StateDB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("statedb: mkdir: %w", err)
	}

	// Pragmas in the DSN apply to every pooled connection. Writers take the
	// lock at BEGIN and wait up to 5s for another process (the CLI).
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_txlock=immediate"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("statedb: open: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("statedb: wal mode: %w", err)
	}

	return &StateDB{db: db}, nil
}

// Close checkpoints WAL and closes the database.
func (s *StateDB) Close() error {
	_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return s.db.Close()
}

// DB returns the underlying sql.DB for tests.
func (s *StateDB) DB() *sql.DB {
	return s.db
}

// Migrate creates tables if they don't exist.
func (s *StateDB) Migrate() error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("statedb: begin migrate: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmts := []struct {
		name string
		sql  string
	}{
		{"metadata", `
			CREATE TABLE IF NOT EXISTS metadata (
				key   TEXT PRIMARY KEY,
				value TEXT NOT NULL
			)`},
		{"tabs", `
			CREATE TABLE IF NOT EXISTS tabs (
				id           TEXT PRIMARY KEY,
				title        TEXT NOT NULL,
				cwd          TEXT NOT NULL DEFAULT '',
				manual_title INTEGER NOT NULL DEFAULT 0,
				elevated     INTEGER NOT NULL DEFAULT 0,
				sort_order   INTEGER NOT NULL DEFAULT 0
			)`},
		{"projects", `
			CREATE TABLE IF NOT EXISTS projects (
				path     TEXT PRIMARY KEY,
				name     TEXT NOT NULL,
				type     TEXT NOT NULL DEFAULT '',
				added_at INTEGER NOT NULL
			)`},
		{"preferences", `
			CREATE TABLE IF NOT EXISTS preferences (
				key   TEXT PRIMARY KEY,
				value TEXT NOT NULL
			)`},
	}
	for _, st := range stmts {
		if _, err := tx.Exec(st.sql); err != nil {
			return fmt.Errorf("statedb: create %s: %w", st.name, err)
		}
	}

	if _, err := tx.Exec(
		"INSERT OR REPLACE INTO metadata (key, value) VALUES ('schema_version', ?)",
		strconv.Itoa(SchemaVersion),
	); err != nil {
		return fmt.Errorf("statedb: set schema version: %w", err)
	}

	return tx.Commit()
}

// --- Tabs ---

// SaveTabs replaces the stored tab set in a single transaction. Order is
// taken from slice position.
func (s *StateDB) SaveTabs(tabs []TabRow) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec("DELETE FROM tabs"); err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
		INSERT INTO tabs (id, title, cwd, manual_title, elevated, sort_order)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, t := range tabs {
		if _, err := stmt.Exec(t.ID, t.Title, t.Dir, boolInt(t.ManualTitle), boolInt(t.Elevated), i); err != nil {
			return fmt.Errorf("statedb: save tab %s: %w", t.ID, err)
		}
	}

	if err := touch(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// LoadTabs returns stored tabs in order.
func (s *StateDB) LoadTabs() ([]TabRow, error) {
	rows, err := s.db.Query(`
		SELECT id, title, cwd, manual_title, elevated, sort_order
		FROM tabs ORDER BY sort_order
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []TabRow
	for rows.Next() {
		var t TabRow
		var manual, elevated int
		if err := rows.Scan(&t.ID, &t.Title, &t.Dir, &manual, &elevated, &t.Order); err != nil {
			return nil, err
		}
		t.ManualTitle = manual != 0
		t.Elevated = elevated != 0
		result = append(result, t)
	}
	return result, rows.Err()
}

// --- Projects ---

// AddProject stores a project. It reports false if the path already exists.
func (s *StateDB) AddProject(p ProjectRow) (bool, error) {
	if p.AddedAt.IsZero() {
		p.AddedAt = time.Now()
	}
	res, err := s.db.Exec(
		"INSERT OR IGNORE INTO projects (path, name, type, added_at) VALUES (?, ?, ?, ?)",
		p.Path, p.Name, p.Type, p.AddedAt.UnixNano(),
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// RemoveProject deletes a project by path.
func (s *StateDB) RemoveProject(path string) error {
	res, err := s.db.Exec("DELETE FROM projects WHERE path = ?", path)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("statedb: remove %s: %w", path, ErrProjectNotFound)
	}
	return nil
}

// SetProjectType records a detected project type.
func (s *StateDB) SetProjectType(path, typ string) error {
	res, err := s.db.Exec("UPDATE projects SET type = ? WHERE path = ?", typ, path)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("statedb: set type %s: %w", path, ErrProjectNotFound)
	}
	return nil
}

// LoadProjects returns projects in the order they were added.
func (s *StateDB) LoadProjects() ([]ProjectRow, error) {
	rows, err := s.db.Query("SELECT path, name, type, added_at FROM projects ORDER BY added_at, path")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []ProjectRow
	for rows.Next() {
		var p ProjectRow
		var added int64
		if err := rows.Scan(&p.Path, &p.Name, &p.Type, &added); err != nil {
			return nil, err
		}
		p.AddedAt = time.Unix(0, added)
		result = append(result, p)
	}
	return result, rows.Err()
}

// --- Preferences ---

// GetPreference returns a stored preference, the built-in default for known
// keys, or "".
func (s *StateDB) GetPreference(key string) (string, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM preferences WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return prefDefaults[key], nil
	}
	return value, err
}

// SetPreference stores a preference.
func (s *StateDB) SetPreference(key, value string) error {
	_, err := s.db.Exec("INSERT OR REPLACE INTO preferences (key, value) VALUES (?, ?)", key, value)
	return err
}

// SidebarWidth returns the stored sidebar width, falling back to the default
// when the stored value is not a positive integer.
func (s *StateDB) SidebarWidth() (int, error) {
	v, err := s.GetPreference(PrefSidebarWidth)
	if err != nil {
		return DefaultSidebarWidth, err
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n <= 0 {
		return DefaultSidebarWidth, nil
	}
	return n, nil
}

// --- Metadata ---

// SetMeta sets a key-value pair in the metadata table.
func (s *StateDB) SetMeta(key, value string) error {
	_, err := s.db.Exec("INSERT OR REPLACE INTO metadata (key, value) VALUES (?, ?)", key, value)
	return err
}

// GetMeta gets a value from the metadata table. Returns "" if not found.
func (s *StateDB) GetMeta(key string) (string, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM metadata WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}

// LastModified returns when tabs were last saved, in unix nanoseconds.
// The CLI polls it to notice a running server's changes.
func (s *StateDB) LastModified() (int64, error) {
	val, err := s.GetMeta("last_modified")
	if err != nil || val == "" {
		return 0, err
	}
	return strconv.ParseInt(val, 10, 64)
}

func touch(tx *sql.Tx) error {
	_, err := tx.Exec(
		"INSERT OR REPLACE INTO metadata (key, value) VALUES ('last_modified', ?)",
		strconv.FormatInt(time.Now().UnixNano(), 10),
	)
	return err
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
