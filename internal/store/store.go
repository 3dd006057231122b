package store

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"time"

	"github.com/corvusreach/crawlkit/internal/metadata"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	url               TEXT PRIMARY KEY,
	title             TEXT NOT NULL,
	description       TEXT NOT NULL,
	author            TEXT NOT NULL,
	content           TEXT NOT NULL,
	publish_date      TEXT NOT NULL,
	tags              TEXT NOT NULL,
	word_count        INTEGER NOT NULL,
	reading_time      INTEGER NOT NULL,
	readability_score REAL NOT NULL,
	content_hash      TEXT NOT NULL UNIQUE,
	crawled_at        TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_documents_crawled_at ON documents(crawled_at);
CREATE INDEX IF NOT EXISTS idx_documents_content_hash ON documents(content_hash);
`

// ContentStore is the SQLite-backed content store (C2). Identity is the
// URL primary key; ContentHash carries a UNIQUE constraint so a second
// writer racing on identical content loses the write, not the process.
type ContentStore struct {
	db *sql.DB

	metadataSink metadata.MetadataSink
}

// Open opens (creating if absent) the SQLite database at dsn and lazily
// initializes its schema. dsn is whatever internal/config.Config's
// DatabaseURL() returns, e.g. "file:crawlkit.db".
func Open(ctx context.Context, dsn string, metadataSink metadata.MetadataSink) (*ContentStore, *StoreError) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, &StoreError{Message: err.Error(), Retryable: false, Cause: ErrCauseOpenFailure}
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, &StoreError{Message: err.Error(), Retryable: false, Cause: ErrCauseSchemaFailure}
	}

	return &ContentStore{db: db, metadataSink: metadataSink}, nil
}

func (s *ContentStore) Close() error {
	return s.db.Close()
}

// Save inserts a Record, returning (true, nil) on a fresh insert and
// (false, nil) when a row with the same ContentHash already exists —
// the spec's "dedup by content, not identity" rule (I1).
func (s *ContentStore) Save(ctx context.Context, record Record) (bool, *StoreError) {
	if record.CrawledAt.IsZero() {
		record.CrawledAt = time.Now().UTC()
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (
			url, title, description, author, content, publish_date,
			tags, word_count, reading_time, readability_score,
			content_hash, crawled_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(url) DO NOTHING
	`,
		record.URL, record.Title, record.Description, record.Author, record.Content,
		record.PublishDate, strings.Join(record.Tags, ","), record.WordCount,
		record.ReadingTime, record.ReadabilityScore, record.ContentHash,
		record.CrawledAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintErr(err) {
			return false, nil
		}
		storeErr := &StoreError{Message: err.Error(), Retryable: true, Cause: ErrCauseWriteFailure, URL: record.URL}
		s.recordError("Save", storeErr)
		return false, storeErr
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, &StoreError{Message: err.Error(), Retryable: false, Cause: ErrCauseWriteFailure, URL: record.URL}
	}
	return rows > 0, nil
}

// GetRecent returns the most recently crawled documents, newest first.
func (s *ContentStore) GetRecent(ctx context.Context, limit int) ([]Record, *StoreError) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT url, title, description, author, content, publish_date,
		       tags, word_count, reading_time, readability_score, content_hash, crawled_at
		FROM documents ORDER BY crawled_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, &StoreError{Message: err.Error(), Retryable: true, Cause: ErrCauseQueryFailure}
	}
	defer rows.Close()
	return scanRecords(rows)
}

// GetByTopic returns documents whose tags, title, or content contain
// topic as a substring, newest first (spec.md §4.2).
func (s *ContentStore) GetByTopic(ctx context.Context, topic string, limit int) ([]Record, *StoreError) {
	needle := "%" + topic + "%"
	rows, err := s.db.QueryContext(ctx, `
		SELECT url, title, description, author, content, publish_date,
		       tags, word_count, reading_time, readability_score, content_hash, crawled_at
		FROM documents WHERE tags LIKE ? OR title LIKE ? OR content LIKE ?
		ORDER BY crawled_at DESC LIMIT ?
	`, needle, needle, needle, limit)
	if err != nil {
		return nil, &StoreError{Message: err.Error(), Retryable: true, Cause: ErrCauseQueryFailure}
	}
	defer rows.Close()
	return scanRecords(rows)
}

// Search is the store's local fallback text search, used when the full-text
// index (C7) is unavailable. Ranking rule (spec.md §4.2): rows whose title
// matches come before description-only matches, which come before
// content-only matches; newest first within each bucket.
func (s *ContentStore) Search(ctx context.Context, query string, limit int) ([]Record, *StoreError) {
	needle := "%" + query + "%"
	rows, err := s.db.QueryContext(ctx, `
		SELECT url, title, description, author, content, publish_date,
		       tags, word_count, reading_time, readability_score, content_hash, crawled_at,
		       CASE
		           WHEN title LIKE ? THEN 0
		           WHEN description LIKE ? THEN 1
		           ELSE 2
		       END AS bucket
		FROM documents
		WHERE title LIKE ? OR description LIKE ? OR content LIKE ?
		ORDER BY bucket ASC, crawled_at DESC LIMIT ?
	`, needle, needle, needle, needle, needle, limit)
	if err != nil {
		return nil, &StoreError{Message: err.Error(), Retryable: true, Cause: ErrCauseQueryFailure}
	}
	defer rows.Close()
	return scanRecordsWithBucket(rows)
}

// Stats summarizes total content, content extracted today (UTC), and the
// ten most frequent tags (spec.md §4.2).
func (s *ContentStore) Stats(ctx context.Context) (Stats, *StoreError) {
	var stats Stats
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`)
	if err := row.Scan(&stats.TotalContent); err != nil {
		return Stats{}, &StoreError{Message: err.Error(), Retryable: true, Cause: ErrCauseQueryFailure}
	}

	today := time.Now().UTC().Format("2006-01-02")
	todayRow := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM documents WHERE substr(crawled_at, 1, 10) = ?
	`, today)
	if err := todayRow.Scan(&stats.ContentToday); err != nil {
		return Stats{}, &StoreError{Message: err.Error(), Retryable: true, Cause: ErrCauseQueryFailure}
	}

	tagRows, err := s.db.QueryContext(ctx, `SELECT tags FROM documents WHERE tags != ''`)
	if err != nil {
		return stats, &StoreError{Message: err.Error(), Retryable: true, Cause: ErrCauseQueryFailure}
	}
	defer tagRows.Close()
	freq := make(map[string]int)
	for tagRows.Next() {
		var joined string
		if err := tagRows.Scan(&joined); err != nil {
			continue
		}
		for _, tag := range strings.Split(joined, ",") {
			if tag != "" {
				freq[tag]++
			}
		}
	}
	stats.TopTags = topTags(freq, 10)

	return stats, nil
}

// topTags ranks tags by descending frequency, breaking ties lexically,
// and returns at most n of them.
func topTags(freq map[string]int, n int) []TagCount {
	ranked := make([]TagCount, 0, len(freq))
	for tag, count := range freq {
		ranked = append(ranked, TagCount{Tag: tag, Count: count})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Count != ranked[j].Count {
			return ranked[i].Count > ranked[j].Count
		}
		return ranked[i].Tag < ranked[j].Tag
	})
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}

func (s *ContentStore) recordError(action string, err *StoreError) {
	if s.metadataSink == nil {
		return
	}
	s.metadataSink.RecordError(time.Now().UTC(), "store", action, mapStoreErrorToMetadataCause(err), err.Error(), nil)
}

func scanRecords(rows *sql.Rows) ([]Record, *StoreError) {
	var records []Record
	for rows.Next() {
		var r Record
		var tags, crawledAt string
		if err := rows.Scan(
			&r.URL, &r.Title, &r.Description, &r.Author, &r.Content, &r.PublishDate,
			&tags, &r.WordCount, &r.ReadingTime, &r.ReadabilityScore, &r.ContentHash, &crawledAt,
		); err != nil {
			return nil, &StoreError{Message: err.Error(), Retryable: false, Cause: ErrCauseScanFailure}
		}
		if tags != "" {
			r.Tags = strings.Split(tags, ",")
		}
		r.CrawledAt, _ = time.Parse(time.RFC3339, crawledAt)
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, &StoreError{Message: err.Error(), Retryable: true, Cause: ErrCauseQueryFailure}
	}
	return records, nil
}

// scanRecordsWithBucket scans rows that carry Search's extra ranking
// column, discarding it once ordering has already been applied by SQL.
func scanRecordsWithBucket(rows *sql.Rows) ([]Record, *StoreError) {
	var records []Record
	for rows.Next() {
		var r Record
		var tags, crawledAt string
		var bucket int
		if err := rows.Scan(
			&r.URL, &r.Title, &r.Description, &r.Author, &r.Content, &r.PublishDate,
			&tags, &r.WordCount, &r.ReadingTime, &r.ReadabilityScore, &r.ContentHash, &crawledAt,
			&bucket,
		); err != nil {
			return nil, &StoreError{Message: err.Error(), Retryable: false, Cause: ErrCauseScanFailure}
		}
		if tags != "" {
			r.Tags = strings.Split(tags, ",")
		}
		r.CrawledAt, _ = time.Parse(time.RFC3339, crawledAt)
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, &StoreError{Message: err.Error(), Retryable: true, Cause: ErrCauseQueryFailure}
	}
	return records, nil
}

func isUniqueConstraintErr(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint")
}
