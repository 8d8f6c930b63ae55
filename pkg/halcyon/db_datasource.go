package halcyon

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.

	"halcyon-cms/pkg/ctxlog"
)

const dbSchema = `
CREATE TABLE IF NOT EXISTS halcyon_templates (
    source     TEXT NOT NULL,
    path       TEXT NOT NULL,
    content    TEXT NOT NULL,
    file_size  INTEGER NOT NULL,
    updated_at INTEGER NOT NULL,
    PRIMARY KEY (source, path)
);
`

// DbDatasource keeps templates in a SQLite table instead of files. Several
// sources (themes) can share one database.
type DbDatasource struct {
	db            *sql.DB
	source        string
	skipMalformed bool
	now           func() time.Time
}

// OpenDbDatasource opens (or creates) the database at dbPath and prepares the
// schema.
func OpenDbDatasource(ctx context.Context, dbPath, source string) (*DbDatasource, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("halcyon: open database: %w", err)
	}
	// One connection: SQLite has a single writer and the collision checks
	// below rely on serialized transactions.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("halcyon: set busy timeout: %w", err)
	}
	if _, err := db.ExecContext(ctx, dbSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("halcyon: create schema: %w", err)
	}
	return &DbDatasource{db: db, source: source, now: time.Now}, nil
}

// SkipMalformed makes List skip undecodable rows instead of failing.
func (d *DbDatasource) SkipMalformed(skip bool) { d.skipMalformed = skip }

func (d *DbDatasource) Close() error { return d.db.Close() }

func (d *DbDatasource) List(ctx context.Context, dir Directory) ([]Record, error) {
	const q = `SELECT path, content, updated_at FROM halcyon_templates
		WHERE source = ? AND path LIKE ? ESCAPE '\' ORDER BY path`
	rows, err := d.db.QueryContext(ctx, q, d.source, likePrefix(dir.Name+"/"))
	if err != nil {
		return nil, fmt.Errorf("halcyon: list %s: %w", dir.Name, err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			p, content string
			updated    int64
		)
		if err := rows.Scan(&p, &content, &updated); err != nil {
			return nil, fmt.Errorf("halcyon: scan %s: %w", dir.Name, err)
		}
		// LIKE is case-insensitive in SQLite.
		if !strings.HasPrefix(p, dir.Name+"/") {
			continue
		}
		name := strings.TrimPrefix(p, dir.Name+"/")
		if !hasAllowedExtension(name, dir.Extensions) || ValidateFileName(name, dir.MaxNesting) != nil {
			continue
		}
		rec, err := decodeRecord(dir, p, name, content, time.Unix(0, updated))
		if err != nil {
			if d.skipMalformed && !strictListing(ctx) {
				ctxlog.FromContext(ctx).Warn("skipping malformed template", "source", d.source, "path", p, "error", err)
				continue
			}
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (d *DbDatasource) Find(ctx context.Context, dir Directory, fileName string) (*Record, error) {
	if err := checkKey(dir, fileName); err != nil {
		return nil, err
	}
	p := path.Join(dir.Name, fileName)
	var (
		content string
		updated int64
	)
	err := d.db.QueryRowContext(ctx,
		`SELECT content, updated_at FROM halcyon_templates WHERE source = ? AND path = ?`,
		d.source, p).Scan(&content, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("halcyon: find %s: %w", p, err)
	}
	rec, err := decodeRecord(dir, p, fileName, content, time.Unix(0, updated))
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (d *DbDatasource) Insert(ctx context.Context, dir Directory, rec Record) error {
	if err := checkKey(dir, rec.FileName); err != nil {
		return err
	}
	data, err := dir.codec().Serialize(rec.Document)
	if err != nil {
		return err
	}
	p := path.Join(dir.Name, rec.FileName)
	return d.inTx(ctx, func(tx *sql.Tx) error {
		if err := d.ensureFree(ctx, tx, p); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO halcyon_templates (source, path, content, file_size, updated_at) VALUES (?, ?, ?, ?, ?)`,
			d.source, p, string(data), len(data), d.now().UnixNano())
		return err
	})
}

func (d *DbDatasource) Update(ctx context.Context, dir Directory, oldFileName string, rec Record) error {
	if err := checkKey(dir, oldFileName); err != nil {
		return err
	}
	if err := checkKey(dir, rec.FileName); err != nil {
		return err
	}
	data, err := dir.codec().Serialize(rec.Document)
	if err != nil {
		return err
	}
	oldPath := path.Join(dir.Name, oldFileName)
	newPath := path.Join(dir.Name, rec.FileName)
	return d.inTx(ctx, func(tx *sql.Tx) error {
		if oldPath != newPath {
			if err := d.ensureFree(ctx, tx, newPath); err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM halcyon_templates WHERE source = ? AND path = ?`, d.source, oldPath); err != nil {
				return err
			}
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO halcyon_templates (source, path, content, file_size, updated_at) VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(source, path) DO UPDATE SET content = excluded.content,
				file_size = excluded.file_size, updated_at = excluded.updated_at`,
			d.source, newPath, string(data), len(data), d.now().UnixNano())
		return err
	})
}

func (d *DbDatasource) Delete(ctx context.Context, dir Directory, fileName string) error {
	if err := checkKey(dir, fileName); err != nil {
		return err
	}
	p := path.Join(dir.Name, fileName)
	if _, err := d.db.ExecContext(ctx,
		`DELETE FROM halcyon_templates WHERE source = ? AND path = ?`, d.source, p); err != nil {
		return fmt.Errorf("halcyon: delete %s: %w", p, err)
	}
	return nil
}

func (d *DbDatasource) LastModified(ctx context.Context, dir Directory, fileName string) (time.Time, error) {
	if err := checkKey(dir, fileName); err != nil {
		return time.Time{}, err
	}
	var updated int64
	err := d.db.QueryRowContext(ctx,
		`SELECT updated_at FROM halcyon_templates WHERE source = ? AND path = ?`,
		d.source, path.Join(dir.Name, fileName)).Scan(&updated)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(0, updated), nil
}

func (d *DbDatasource) ensureFree(ctx context.Context, tx *sql.Tx, p string) error {
	var n int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM halcyon_templates WHERE source = ? AND path = ?`, d.source, p).Scan(&n); err != nil {
		return err
	}
	if n > 0 {
		return &FileExistsError{Path: p}
	}
	return nil
}

func (d *DbDatasource) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("halcyon: begin: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		var exists *FileExistsError
		if errors.As(err, &exists) {
			return err
		}
		return fmt.Errorf("halcyon: write: %w", err)
	}
	return tx.Commit()
}

func decodeRecord(dir Directory, p, name, content string, updated time.Time) (Record, error) {
	doc, err := dir.codec().Parse([]byte(content))
	if err != nil {
		var merr *MalformedDocumentError
		if errors.As(err, &merr) {
			err = merr.Err
		}
		return Record{}, &MalformedDocumentError{Path: p, Err: err}
	}
	return Record{FileName: name, Document: doc, Content: content, MTime: updated}, nil
}

func likePrefix(prefix string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(prefix) + "%"
}
