// Package store keeps a history of routed requests in SQLite so provider
// usage and fallback reasons can be inspected later.
package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/text/unicode/norm"
	_ "modernc.org/sqlite"

	"github.com/valpere/perevod/internal"
	"github.com/valpere/perevod/internal/orchestrator"
)

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite serialises writers; one connection avoids "database is locked".
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}

	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS routed_requests (
		id TEXT PRIMARY KEY,
		target_lang TEXT NOT NULL,
		source_kind TEXT NOT NULL,
		text_digest TEXT NOT NULL,
		text_runes INTEGER NOT NULL,
		ok BOOLEAN NOT NULL,
		provider_used TEXT NOT NULL DEFAULT '',
		provider TEXT NOT NULL DEFAULT '',
		fallback_reason TEXT NOT NULL DEFAULT '',
		finish_reason TEXT NOT NULL DEFAULT '',
		status_code INTEGER NOT NULL,
		upstream_status INTEGER NOT NULL DEFAULT 0,
		error TEXT NOT NULL DEFAULT '',
		latency_ms INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_requests_created ON routed_requests(created_at);
	CREATE INDEX IF NOT EXISTS idx_requests_provider ON routed_requests(provider_used);
	`

	_, err := s.db.Exec(schema)
	return err
}

// SaveRequest inserts rec. Empty ID and zero Timestamp are filled in.
func (s *Store) SaveRequest(ctx context.Context, rec internal.RequestRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO routed_requests (id, target_lang, source_kind, text_digest, text_runes, ok, provider_used, provider, fallback_reason, finish_reason, status_code, upstream_status, error, latency_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.TargetLang, rec.SourceKind, rec.TextDigest, rec.TextRunes, rec.OK, rec.ProviderUsed, rec.Provider,
		rec.FallbackReason, rec.FinishReason, rec.StatusCode, rec.UpstreamStatus, rec.Error, rec.LatencyMs, rec.Timestamp)
	return err
}

// ListRequests returns the most recent records first. limit <= 0 returns all.
func (s *Store) ListRequests(ctx context.Context, limit int) ([]internal.RequestRecord, error) {
	query := `SELECT id, target_lang, source_kind, text_digest, text_runes, ok, provider_used, provider, fallback_reason, finish_reason, status_code, upstream_status, error, latency_ms, created_at
		FROM routed_requests ORDER BY created_at DESC, id`
	var args []interface{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []internal.RequestRecord
	for rows.Next() {
		var r internal.RequestRecord
		if err := rows.Scan(&r.ID, &r.TargetLang, &r.SourceKind, &r.TextDigest, &r.TextRunes, &r.OK, &r.ProviderUsed, &r.Provider,
			&r.FallbackReason, &r.FinishReason, &r.StatusCode, &r.UpstreamStatus, &r.Error, &r.LatencyMs, &r.Timestamp); err != nil {
			return nil, err
		}
		results = append(results, r)
	}

	return results, rows.Err()
}

// HistoryStats summarises the request history.
type HistoryStats struct {
	Total        int
	Succeeded    int
	Failed       int
	AvgLatencyMs float64
	// ByRole counts successes per provider_used role, ByProvider per adapter.
	ByRole       map[string]int
	ByProvider   map[string]int
	ByReason     map[string]int
}

// Stats returns summary statistics for the request history. Requests served
// by the primary provider are counted under the reason "none".
func (s *Store) Stats(ctx context.Context) (*HistoryStats, error) {
	stats := &HistoryStats{
		ByRole:     make(map[string]int),
		ByProvider: make(map[string]int),
		ByReason:   make(map[string]int),
	}

	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN ok THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN ok THEN 0 ELSE 1 END), 0),
			COALESCE(AVG(latency_ms), 0)
		FROM routed_requests`).Scan(
		&stats.Total,
		&stats.Succeeded,
		&stats.Failed,
		&stats.AvgLatencyMs,
	)
	if err != nil {
		return nil, err
	}

	if err := s.countBy(ctx, "provider_used", stats.ByRole); err != nil {
		return nil, err
	}
	if err := s.countBy(ctx, "provider", stats.ByProvider); err != nil {
		return nil, err
	}
	if err := s.countBy(ctx, "fallback_reason", stats.ByReason); err != nil {
		return nil, err
	}
	return stats, nil
}

func (s *Store) countBy(ctx context.Context, column string, into map[string]int) error {
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT %s, COUNT(*) FROM routed_requests WHERE ok GROUP BY %s`, column, column))
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return err
		}
		if key == "" {
			key = "none"
		}
		into[key] = n
	}
	return rows.Err()
}

// Clear removes all history entries.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM routed_requests`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Prune removes entries older than before.
func (s *Store) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM routed_requests WHERE created_at < ?`, before.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Digest returns a stable fingerprint of text: whitespace is trimmed and
// the text is NFC-normalised before hashing.
func Digest(text string) string {
	sum := sha256.Sum256([]byte(normalizeText(text)))
	return hex.EncodeToString(sum[:])
}

func normalizeText(text string) string {
	return norm.NFC.String(strings.TrimSpace(text))
}

// NewRecord builds the history record of one routed request.
func NewRecord(req orchestrator.Request, out orchestrator.Outcome, elapsed time.Duration) internal.RequestRecord {
	res := orchestrator.Flatten(out)
	rec := internal.RequestRecord{
		ID:             uuid.NewString(),
		TargetLang:     req.Target,
		SourceKind:     string(req.Source),
		TextDigest:     Digest(req.Text),
		TextRunes:      utf8.RuneCountInString(strings.TrimSpace(req.Text)),
		OK:             res.OK,
		StatusCode:     res.StatusCode,
		UpstreamStatus: res.Status,
		Error:          res.Error,
		LatencyMs:      elapsed.Milliseconds(),
		Timestamp:      time.Now().UTC(),
	}
	if res.ProviderUsed != nil {
		rec.ProviderUsed = *res.ProviderUsed
	}
	if res.Provider != nil {
		rec.Provider = *res.Provider
	}
	if res.FallbackReason != nil {
		rec.FallbackReason = *res.FallbackReason
	}
	if res.FinishReason != nil {
		rec.FinishReason = *res.FinishReason
	}
	return rec
}

// Observer returns an orchestrator.Observer that persists every routed
// request. Write failures are logged and otherwise ignored.
func (s *Store) Observer(logger zerolog.Logger) orchestrator.Observer {
	return func(ctx context.Context, req orchestrator.Request, out orchestrator.Outcome, elapsed time.Duration) {
		rec := NewRecord(req, out, elapsed)
		// The request context may already be done once the response is written.
		saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := s.SaveRequest(saveCtx, rec); err != nil {
			logger.Warn().Err(err).Str("id", rec.ID).Msg("failed to save request history")
		}
	}
}
