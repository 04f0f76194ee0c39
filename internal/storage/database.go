package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"go.uber.org/zap"
)

// ErrNotInitialized is returned by operations that require Initialize to
// have run first.
var ErrNotInitialized = errors.New("storage: not initialized")

// ErrNotFound is returned when no row exists for the requested URL.
var ErrNotFound = errors.New("storage: url not found")

// Connection pool tuning shared by every store.
const (
	maxOpenConns    = 16
	acquireTimeout  = 60 * time.Second
	connMaxLifetime = 30 * time.Minute
	connMaxIdleTime = 5 * time.Minute
)

// Database is one crawl store. It is safe for concurrent use; the
// underlying pool serializes writers.
type Database struct {
	db     *sql.DB
	logger *zap.Logger

	mu          sync.Mutex
	initialized bool
}

// Open opens (or creates) a crawl store at path. WAL journaling and
// NORMAL synchronous mode are applied on every new connection through
// the DSN.
func Open(path string, logger *zap.Logger) (*Database, error) {
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000", path)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxOpenConns)
	db.SetConnMaxLifetime(connMaxLifetime)
	db.SetConnMaxIdleTime(connMaxIdleTime)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Database{db: db, logger: logger}, nil
}

// Initialize creates the tables and index if missing. Idempotent.
func (d *Database) Initialize() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := d.opContext()
	defer cancel()

	if _, err := d.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	d.initialized = true
	return nil
}

// Clear empties the crawl table. Requires Initialize to have run.
func (d *Database) Clear() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.initialized {
		return ErrNotInitialized
	}

	ctx, cancel := d.opContext()
	defer cancel()

	if _, err := d.db.ExecContext(ctx, `DELETE FROM domain_crawl`); err != nil {
		return fmt.Errorf("failed to clear crawl table: %w", err)
	}
	return nil
}

// Close closes the pool.
func (d *Database) Close() error {
	return d.db.Close()
}

func (d *Database) requireInit() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.initialized {
		return ErrNotInitialized
	}
	return nil
}

// opContext bounds connection acquisition for a single operation.
func (d *Database) opContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), acquireTimeout)
}

// --- Page operations ---

// UpsertPage writes one PageRecord keyed by its canonical URL.
func (d *Database) UpsertPage(record *PageRecord) error {
	if err := d.requireInit(); err != nil {
		return err
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to serialize page record: %w", err)
	}

	ctx, cancel := d.opContext()
	defer cancel()

	if _, err := d.db.ExecContext(ctx, upsertPageSQL, record.OriginalURL, string(data)); err != nil {
		return fmt.Errorf("failed to upsert page: %w", err)
	}
	return nil
}

// UpsertPages flushes a batch in a single transaction with a prepared
// statement. Either every record lands or none does.
func (d *Database) UpsertPages(records []*PageRecord) error {
	if len(records) == 0 {
		return nil
	}
	if err := d.requireInit(); err != nil {
		return err
	}

	ctx, cancel := d.opContext()
	defer cancel()

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin batch transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, upsertPageSQL)
	if err != nil {
		return fmt.Errorf("failed to prepare batch statement: %w", err)
	}
	defer stmt.Close()

	for _, record := range records {
		data, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("failed to serialize %s: %w", record.OriginalURL, err)
		}
		if _, err := stmt.ExecContext(ctx, record.OriginalURL, string(data)); err != nil {
			return fmt.Errorf("failed to upsert %s: %w", record.OriginalURL, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}
	return nil
}

// GetPage reads one PageRecord by canonical URL.
func (d *Database) GetPage(url string) (*PageRecord, error) {
	if err := d.requireInit(); err != nil {
		return nil, err
	}

	ctx, cancel := d.opContext()
	defer cancel()

	var data string
	err := d.db.QueryRowContext(ctx, `SELECT data FROM domain_crawl WHERE url = ?`, url).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read page: %w", err)
	}

	var record PageRecord
	if err := json.Unmarshal([]byte(data), &record); err != nil {
		return nil, fmt.Errorf("failed to deserialize page record: %w", err)
	}
	return &record, nil
}

// AllPages streams every stored PageRecord keyed by URL.
func (d *Database) AllPages() (map[string]*PageRecord, error) {
	if err := d.requireInit(); err != nil {
		return nil, err
	}

	ctx, cancel := d.opContext()
	defer cancel()

	rows, err := d.db.QueryContext(ctx, `SELECT url, data FROM domain_crawl`)
	if err != nil {
		return nil, fmt.Errorf("failed to query pages: %w", err)
	}
	defer rows.Close()

	pages := make(map[string]*PageRecord)
	for rows.Next() {
		var url, data string
		if err := rows.Scan(&url, &data); err != nil {
			return nil, err
		}
		var record PageRecord
		if err := json.Unmarshal([]byte(data), &record); err != nil {
			d.logger.Warn("skipping unreadable page row", zap.String("url", url), zap.Error(err))
			continue
		}
		pages[url] = &record
	}
	return pages, rows.Err()
}

// CountPages returns the number of stored pages.
func (d *Database) CountPages() (int, error) {
	if err := d.requireInit(); err != nil {
		return 0, err
	}

	ctx, cancel := d.opContext()
	defer cancel()

	var n int
	if err := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM domain_crawl`).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// AggregateBy groups stored pages by the given key function and returns
// per-group page counts.
func (d *Database) AggregateBy(key func(*PageRecord) string) (map[string]int, error) {
	pages, err := d.AllPages()
	if err != nil {
		return nil, err
	}

	groups := make(map[string]int)
	for _, record := range pages {
		groups[key(record)]++
	}
	return groups, nil
}

// CloneInto copies every page row of this store into dest, batch by
// batch, preserving upsert-by-URL semantics in the destination.
func (d *Database) CloneInto(dest *Database, batchSize int) (int, error) {
	pages, err := d.AllPages()
	if err != nil {
		return 0, err
	}
	if batchSize < 1 {
		batchSize = 100
	}

	batch := make([]*PageRecord, 0, batchSize)
	copied := 0
	for _, record := range pages {
		batch = append(batch, record)
		if len(batch) == batchSize {
			if err := dest.UpsertPages(batch); err != nil {
				return copied, err
			}
			copied += len(batch)
			batch = batch[:0]
		}
	}
	if len(batch) > 0 {
		if err := dest.UpsertPages(batch); err != nil {
			return copied, err
		}
		copied += len(batch)
	}
	return copied, nil
}

// --- History operations ---

// AddHistory records a per-crawl summary row.
func (d *Database) AddHistory(summary *CrawlSummary) (int64, error) {
	if err := d.requireInit(); err != nil {
		return 0, err
	}

	ctx, cancel := d.opContext()
	defer cancel()

	result, err := d.db.ExecContext(ctx, `
		INSERT INTO deep_crawls_history
			(crawl_id, domain, date, pages, errors, status,
			 total_links, total_internal_links, total_external_links,
			 indexable_pages, not_indexable_pages)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		summary.CrawlID, summary.Domain, summary.Date, summary.Pages, summary.Errors,
		summary.Status, summary.TotalLinks, summary.TotalInternalLinks,
		summary.TotalExternalLinks, summary.IndexablePages, summary.NotIndexablePages)
	if err != nil {
		return 0, fmt.Errorf("failed to insert history row: %w", err)
	}
	return result.LastInsertId()
}

// History returns summary rows, newest first, up to limit (0 = all).
func (d *Database) History(limit int) ([]*CrawlSummary, error) {
	if err := d.requireInit(); err != nil {
		return nil, err
	}

	ctx, cancel := d.opContext()
	defer cancel()

	query := `
		SELECT id, crawl_id, domain, date, pages, errors, status,
		       total_links, total_internal_links, total_external_links,
		       indexable_pages, not_indexable_pages
		FROM deep_crawls_history ORDER BY date DESC, id DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var out []*CrawlSummary
	for rows.Next() {
		var s CrawlSummary
		if err := rows.Scan(&s.ID, &s.CrawlID, &s.Domain, &s.Date, &s.Pages, &s.Errors,
			&s.Status, &s.TotalLinks, &s.TotalInternalLinks, &s.TotalExternalLinks,
			&s.IndexablePages, &s.NotIndexablePages); err != nil {
			return nil, err
		}
		out = append(out, &s)
	}
	return out, rows.Err()
}

// --- Custom search configuration ---

// SetCustomSearch stores the single-row bespoke-selector configuration.
func (d *Database) SetCustomSearch(cs *CustomSearch) error {
	if err := d.requireInit(); err != nil {
		return err
	}

	ctx, cancel := d.opContext()
	defer cancel()

	_, err := d.db.ExecContext(ctx, `
		INSERT INTO custom_search (id, type, selector, search_text)
		VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			type = excluded.type,
			selector = excluded.selector,
			search_text = excluded.search_text`,
		cs.Type, cs.Selector, cs.SearchText)
	if err != nil {
		return fmt.Errorf("failed to store custom search config: %w", err)
	}
	return nil
}

// GetCustomSearch reads the bespoke-selector configuration, nil when unset.
func (d *Database) GetCustomSearch() (*CustomSearch, error) {
	if err := d.requireInit(); err != nil {
		return nil, err
	}

	ctx, cancel := d.opContext()
	defer cancel()

	var cs CustomSearch
	err := d.db.QueryRowContext(ctx,
		`SELECT type, selector, search_text FROM custom_search WHERE id = 1`).
		Scan(&cs.Type, &cs.Selector, &cs.SearchText)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read custom search config: %w", err)
	}
	return &cs, nil
}
