// Package sqlstore provides a durable promptreg.Store on SQLite (modernc.org/sqlite,
// no cgo). It is the backend for sqlite:/// tracking URIs and for `promptreg serve`.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/skosovsky/promptreg"

	_ "modernc.org/sqlite" // SQLite driver
)

// Ensures Store implements the promptreg capability interfaces.
var (
	_ promptreg.Store         = (*Store)(nil)
	_ promptreg.VersionLister = (*Store)(nil)
	_ promptreg.AliasDeleter  = (*Store)(nil)
	_ promptreg.PromptManager = (*Store)(nil)
)

const driverName = "sqlite"

const schema = `
CREATE TABLE IF NOT EXISTS prompts (
	name       TEXT PRIMARY KEY,
	created_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS prompt_tags (
	name  TEXT NOT NULL REFERENCES prompts(name),
	key   TEXT NOT NULL,
	value TEXT NOT NULL,
	PRIMARY KEY (name, key)
);
CREATE TABLE IF NOT EXISTS prompt_versions (
	name           TEXT NOT NULL REFERENCES prompts(name),
	version        INTEGER NOT NULL,
	body           TEXT NOT NULL,
	commit_message TEXT NOT NULL DEFAULT '',
	created_at     INTEGER NOT NULL,
	PRIMARY KEY (name, version)
);
CREATE TABLE IF NOT EXISTS prompt_aliases (
	name    TEXT NOT NULL,
	alias   TEXT NOT NULL,
	version INTEGER NOT NULL,
	PRIMARY KEY (name, alias),
	FOREIGN KEY (name, version) REFERENCES prompt_versions(name, version)
);`

// Store persists prompts in a SQLite database.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the time source for CreatedAt. Default is time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// Open opens (creating if needed) the database at path and applies the schema.
// Use ":memory:" for a throwaway database.
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlstore: path must not be empty")
	}
	db, err := sql.Open(driverName, dsn(path))
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", promptreg.ErrRegistryUnavailable, path, err)
	}
	// A single connection serialises writers and keeps :memory: databases shared.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: migrate %s: %w", promptreg.ErrRegistryUnavailable, path, err)
	}
	s := &Store{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

const pragmas = "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"

// uriEscaper escapes the characters that end or alter the path of a SQLite URI filename.
var uriEscaper = strings.NewReplacer("%", "%25", "?", "%3F", "#", "%23")

// dsn builds a SQLite URI filename for path with the connection pragmas.
func dsn(path string) string {
	if path == ":memory:" {
		return "file::memory:" + pragmas
	}
	return "file:" + uriEscaper.Replace(path) + pragmas
}

// PathFromURI converts an MLflow-style sqlite:/// tracking URI to a database path.
// sqlite:///mlflow.db is relative, sqlite:////var/lib/p.db is absolute.
func PathFromURI(uri string) (string, error) {
	path, ok := strings.CutPrefix(uri, "sqlite:///")
	if !ok || path == "" {
		return "", fmt.Errorf("%w: %q is not a sqlite:/// URI", promptreg.ErrConfiguration, uri)
	}
	return path, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateVersion inserts version max+1 of req.Name in one transaction.
// Non-empty req.Tags are merged into the prompt's tags.
func (s *Store) CreateVersion(ctx context.Context, req promptreg.VersionRequest) (*promptreg.Template, error) {
	if err := promptreg.ValidateName(req.Name); err != nil {
		return nil, fmt.Errorf("%w: %w", promptreg.ErrInvalidTemplate, err)
	}
	if req.Body == "" {
		return nil, fmt.Errorf("%w: empty body", promptreg.ErrInvalidTemplate)
	}
	now := s.now().UnixMilli()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, unavailable(err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO prompts (name, created_at) VALUES (?, ?)`, req.Name, now); err != nil {
		return nil, unavailable(err)
	}
	for k, v := range req.Tags {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO prompt_tags (name, key, value) VALUES (?, ?, ?)
			 ON CONFLICT (name, key) DO UPDATE SET value = excluded.value`, req.Name, k, v); err != nil {
			return nil, unavailable(err)
		}
	}
	var next int
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) + 1 FROM prompt_versions WHERE name = ?`, req.Name).Scan(&next); err != nil {
		return nil, unavailable(err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO prompt_versions (name, version, body, commit_message, created_at) VALUES (?, ?, ?, ?, ?)`,
		req.Name, next, req.Body, req.CommitMessage, now); err != nil {
		return nil, unavailable(err)
	}
	if err := tx.Commit(); err != nil {
		return nil, unavailable(err)
	}
	return s.GetVersion(ctx, req.Name, next)
}

// SetAlias upserts alias. Returns ErrVersionNotFound if the version does not exist.
func (s *Store) SetAlias(ctx context.Context, name, alias string, version int) error {
	var exists int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM prompt_versions WHERE name = ? AND version = ?`, name, version).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s version %d", promptreg.ErrVersionNotFound, name, version)
	}
	if err != nil {
		return unavailable(err)
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO prompt_aliases (name, alias, version) VALUES (?, ?, ?)
		 ON CONFLICT (name, alias) DO UPDATE SET version = excluded.version`, name, alias, version); err != nil {
		return unavailable(err)
	}
	return nil
}

// GetVersion returns one version. Returns ErrNotFound if name or version is unknown.
func (s *Store) GetVersion(ctx context.Context, name string, version int) (*promptreg.Template, error) {
	tpl := &promptreg.Template{Name: name, Version: version}
	var created int64
	err := s.db.QueryRowContext(ctx,
		`SELECT body, commit_message, created_at FROM prompt_versions WHERE name = ? AND version = ?`,
		name, version).Scan(&tpl.Body, &tpl.CommitMessage, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s version %d", promptreg.ErrNotFound, name, version)
	}
	if err != nil {
		return nil, unavailable(err)
	}
	tpl.CreatedAt = time.UnixMilli(created).UTC()
	if err := s.decorate(ctx, tpl); err != nil {
		return nil, err
	}
	return tpl, nil
}

// GetByAlias returns the version alias points at. Returns ErrNotFound if unset.
func (s *Store) GetByAlias(ctx context.Context, name, alias string) (*promptreg.Template, error) {
	var version int
	err := s.db.QueryRowContext(ctx,
		`SELECT version FROM prompt_aliases WHERE name = ? AND alias = ?`, name, alias).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s@%s", promptreg.ErrNotFound, name, alias)
	}
	if err != nil {
		return nil, unavailable(err)
	}
	return s.GetVersion(ctx, name, version)
}

// ListVersions returns all versions of name, oldest first.
func (s *Store) ListVersions(ctx context.Context, name string) ([]*promptreg.Template, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT version FROM prompt_versions WHERE name = ? ORDER BY version`, name)
	if err != nil {
		return nil, unavailable(err)
	}
	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			_ = rows.Close()
			return nil, unavailable(err)
		}
		versions = append(versions, v)
	}
	if err := rows.Close(); err != nil {
		return nil, unavailable(err)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(err)
	}
	if len(versions) == 0 {
		if _, err := s.promptCreatedAt(ctx, name); err != nil {
			return nil, err
		}
	}
	out := make([]*promptreg.Template, 0, len(versions))
	for _, v := range versions {
		tpl, err := s.GetVersion(ctx, name, v)
		if err != nil {
			return nil, err
		}
		out = append(out, tpl)
	}
	return out, nil
}

// DeleteAlias removes alias. Returns ErrNotFound if it is not set.
func (s *Store) DeleteAlias(ctx context.Context, name, alias string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM prompt_aliases WHERE name = ? AND alias = ?`, name, alias)
	if err != nil {
		return unavailable(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return unavailable(err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s@%s", promptreg.ErrNotFound, name, alias)
	}
	return nil
}

// CreatePrompt creates a prompt with no versions. Returns ErrAlreadyExists if name exists.
func (s *Store) CreatePrompt(ctx context.Context, name string, tags map[string]string) error {
	if err := promptreg.ValidateName(name); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable(err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO prompts (name, created_at) VALUES (?, ?)`, name, s.now().UnixMilli())
	if err != nil {
		return unavailable(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return unavailable(err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", promptreg.ErrAlreadyExists, name)
	}
	for k, v := range tags {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO prompt_tags (name, key, value) VALUES (?, ?, ?)`, name, k, v); err != nil {
			return unavailable(err)
		}
	}
	if err := tx.Commit(); err != nil {
		return unavailable(err)
	}
	return nil
}

// GetPrompt returns the name-level record. Returns ErrNotFound if name is unknown.
func (s *Store) GetPrompt(ctx context.Context, name string) (*promptreg.Prompt, error) {
	created, err := s.promptCreatedAt(ctx, name)
	if err != nil {
		return nil, err
	}
	p := &promptreg.Prompt{
		Name:      name,
		Tags:      make(map[string]string),
		Aliases:   make(map[string]int),
		CreatedAt: created,
	}
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM prompt_tags WHERE name = ?`, name)
	if err != nil {
		return nil, unavailable(err)
	}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			_ = rows.Close()
			return nil, unavailable(err)
		}
		p.Tags[k] = v
	}
	if err := rows.Close(); err != nil {
		return nil, unavailable(err)
	}

	rows, err = s.db.QueryContext(ctx, `SELECT alias, version FROM prompt_aliases WHERE name = ?`, name)
	if err != nil {
		return nil, unavailable(err)
	}
	for rows.Next() {
		var a string
		var v int
		if err := rows.Scan(&a, &v); err != nil {
			_ = rows.Close()
			return nil, unavailable(err)
		}
		p.Aliases[a] = v
	}
	if err := rows.Close(); err != nil {
		return nil, unavailable(err)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(err)
	}
	return p, nil
}

// SetPromptTag sets one name-level tag. Returns ErrNotFound if name is unknown.
func (s *Store) SetPromptTag(ctx context.Context, name, key, value string) error {
	if _, err := s.promptCreatedAt(ctx, name); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO prompt_tags (name, key, value) VALUES (?, ?, ?)
		 ON CONFLICT (name, key) DO UPDATE SET value = excluded.value`, name, key, value); err != nil {
		return unavailable(err)
	}
	return nil
}

func (s *Store) promptCreatedAt(ctx context.Context, name string) (time.Time, error) {
	var created int64
	err := s.db.QueryRowContext(ctx, `SELECT created_at FROM prompts WHERE name = ?`, name).Scan(&created)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, fmt.Errorf("%w: %s", promptreg.ErrNotFound, name)
	}
	if err != nil {
		return time.Time{}, unavailable(err)
	}
	return time.UnixMilli(created).UTC(), nil
}

// decorate fills name-level tags and the aliases pointing at tpl.Version.
func (s *Store) decorate(ctx context.Context, tpl *promptreg.Template) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, value FROM prompt_tags WHERE name = ? ORDER BY key`, tpl.Name)
	if err != nil {
		return unavailable(err)
	}
	tpl.Tags = make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			_ = rows.Close()
			return unavailable(err)
		}
		tpl.Tags[k] = v
	}
	if err := rows.Close(); err != nil {
		return unavailable(err)
	}

	rows, err = s.db.QueryContext(ctx,
		`SELECT alias FROM prompt_aliases WHERE name = ? AND version = ? ORDER BY alias`, tpl.Name, tpl.Version)
	if err != nil {
		return unavailable(err)
	}
	for rows.Next() {
		var a string
		if err := rows.Scan(&a); err != nil {
			_ = rows.Close()
			return unavailable(err)
		}
		tpl.Aliases = append(tpl.Aliases, a)
	}
	if err := rows.Close(); err != nil {
		return unavailable(err)
	}
	return rows.Err()
}

func unavailable(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %w", promptreg.ErrRegistryUnavailable, err)
}
