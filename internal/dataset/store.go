// Package dataset keeps a local SQLite snapshot of a procurement dataset so that
// analyses can run without calling the public API.
package dataset

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/joelkehle/tender-advisor/internal/tenderanalysis"
)

// Store is read-mostly: cmd/tender-dataset-import fills it and the advisor
// searches it. It never holds analysis results.
type Store struct {
	db     *sqlx.DB
	fields tenderanalysis.RecordFields
}

const schema = `
CREATE TABLE IF NOT EXISTS awards (
	record_key  TEXT PRIMARY KEY,
	description TEXT NOT NULL DEFAULT '',
	agency      TEXT NOT NULL DEFAULT '',
	supplier    TEXT NOT NULL DEFAULT '',
	raw         TEXT NOT NULL,
	imported_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS awards_imported_at ON awards (imported_at);

CREATE TABLE IF NOT EXISTS snapshot_meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

type awardRow struct {
	RecordKey   string `db:"record_key"`
	Description string `db:"description"`
	Agency      string `db:"agency"`
	Supplier    string `db:"supplier"`
	Raw         string `db:"raw"`
	ImportedAt  string `db:"imported_at"`
}

func Open(dbPath string, fields tenderanalysis.RecordFields) (*Store, error) {
	db, err := sqlx.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	if fields.PrimaryID == "" && fields.FallbackID == "" {
		fields = tenderanalysis.GeBIZFields
	}
	return &Store{db: db, fields: fields}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Upsert stores records keyed by their identity. Records without one are keyed
// by a hash of their content so a re-import does not duplicate them.
func (s *Store) Upsert(ctx context.Context, records []tenderanalysis.Record, now time.Time) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stamp := now.UTC().Format(time.RFC3339Nano)
	for _, rec := range records {
		raw, err := json.Marshal(rec)
		if err != nil {
			return 0, fmt.Errorf("encode record: %w", err)
		}
		row := awardRow{
			RecordKey:   s.recordKey(rec, raw),
			Description: s.fields.DescriptionText(rec),
			Agency:      s.fields.AgencyText(rec),
			Supplier:    s.fields.SupplierText(rec),
			Raw:         string(raw),
			ImportedAt:  stamp,
		}
		if _, err := tx.NamedExecContext(ctx, `INSERT INTO awards (record_key, description, agency, supplier, raw, imported_at)
			VALUES (:record_key, :description, :agency, :supplier, :raw, :imported_at)
			ON CONFLICT(record_key) DO UPDATE SET
				description = excluded.description,
				agency = excluded.agency,
				supplier = excluded.supplier,
				raw = excluded.raw,
				imported_at = excluded.imported_at`, row); err != nil {
			return 0, fmt.Errorf("upsert %s: %w", row.RecordKey, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(records), nil
}

func (s *Store) recordKey(rec tenderanalysis.Record, raw []byte) string {
	if id := s.fields.ID(rec); id != "" {
		return "id:" + id
	}
	sum := sha256.Sum256(raw)
	return "sha:" + hex.EncodeToString(sum[:12])
}

// Search matches every word of query case-insensitively against description,
// agency and supplier, in import order.
func (s *Store) Search(ctx context.Context, query string, pageSize int) ([]tenderanalysis.Record, error) {
	if pageSize <= 0 {
		return []tenderanalysis.Record{}, nil
	}
	var where []string
	var args []any
	for _, word := range strings.Fields(strings.ToLower(query)) {
		where = append(where, `(lower(description) LIKE ? ESCAPE '\' OR lower(agency) LIKE ? ESCAPE '\' OR lower(supplier) LIKE ? ESCAPE '\')`)
		pattern := "%" + escapeLike(word) + "%"
		args = append(args, pattern, pattern, pattern)
	}
	q := "SELECT record_key, description, agency, supplier, raw, imported_at FROM awards"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY rowid LIMIT ?"
	args = append(args, pageSize)

	var rows []awardRow
	if err := s.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, fmt.Errorf("search awards: %w", err)
	}
	out := make([]tenderanalysis.Record, 0, len(rows))
	for _, r := range rows {
		var rec tenderanalysis.Record
		if err := json.Unmarshal([]byte(r.Raw), &rec); err != nil {
			return nil, fmt.Errorf("decode %s: %w", r.RecordKey, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM awards"); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *Store) SetMeta(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO snapshot_meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return err
}

// Meta returns "" for a key that was never set.
func (s *Store) Meta(ctx context.Context, key string) (string, error) {
	var v string
	err := s.db.GetContext(ctx, &v, "SELECT value FROM snapshot_meta WHERE key = ?", key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return v, err
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
