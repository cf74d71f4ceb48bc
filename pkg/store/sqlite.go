package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/glebarez/go-sqlite"
)

// SQLiteStore is a Store persisted in a SQLite database. A single write
// mutex serializes mutations; INSERT OR REPLACE keeps each key's update
// atomic at the statement level as well.
type SQLiteStore struct {
	db      *sql.DB
	writeMu sync.Mutex
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}
	stmts := []string{
		"CREATE TABLE IF NOT EXISTS policy (key TEXT PRIMARY KEY, expires INTEGER, value BLOB)",
		"CREATE INDEX IF NOT EXISTS policy_expires_idx ON policy (expires)",
		"PRAGMA journal_mode=WAL",
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("init sqlite store: %w", err)
		}
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Get(key string) ([]byte, bool, error) {
	var expires int64
	var value []byte
	err := s.db.QueryRow("SELECT expires, value FROM policy WHERE key = ?", key).
		Scan(&expires, &value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if expires != 0 && time.Now().After(time.Unix(expires, 0)) {
		return nil, false, nil
	}
	return value, true, nil
}

func (s *SQLiteStore) Put(key string, expires time.Time, value []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	var exp int64
	if !expires.IsZero() {
		exp = expires.Unix()
	}
	_, err := s.db.Exec(
		"INSERT OR REPLACE INTO policy (key, expires, value) VALUES (?, ?, ?)",
		key, exp, value)
	return err
}

// likeEscaper quotes the LIKE wildcards; keys embed request URIs, which
// may legitimately contain % and _.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func (s *SQLiteStore) All(prefix string) (map[string][]byte, error) {
	rows, err := s.db.Query(
		`SELECT key, expires, value FROM policy WHERE key LIKE ? ESCAPE '\'`,
		likeEscaper.Replace(prefix)+"%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	entries := make(map[string][]byte)
	now := time.Now()
	for rows.Next() {
		var key string
		var expires int64
		var value []byte
		if err := rows.Scan(&key, &expires, &value); err != nil {
			return entries, err
		}
		if expires != 0 && now.After(time.Unix(expires, 0)) {
			continue
		}
		entries[key] = value
	}
	return entries, rows.Err()
}

func (s *SQLiteStore) Purge(key string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_, err := s.db.Exec("DELETE FROM policy WHERE key = ?", key)
	return err
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
