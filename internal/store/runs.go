package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/mfriman/daybrief/internal/digest"
	"github.com/mfriman/daybrief/internal/metrics"
)

const runColumns = "id, created_at, quality_score, completeness, degraded, published, publish_note, duration_ms, token_count, cost_usd, error_count, retry_count"

// SaveRun persists a finished run, its sections, and its validation
// issues in one transaction. published records the builder's verdict
// and note explains it (empty for a clean publish).
func (s *Store) SaveRun(draft *digest.Draft, report *digest.Report, snap metrics.Snapshot, published bool, note string) error {
	tx, err := s.conn.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var publishNote *string
	if note != "" {
		publishNote = &note
	}
	_, err = tx.Exec(
		`INSERT INTO runs (`+runColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		draft.RunID,
		draft.CreatedAt.UTC().Format(time.RFC3339),
		report.QualityScore,
		draft.Completeness(),
		boolInt(!report.Passed),
		boolInt(published),
		publishNote,
		snap.TotalDurationMs,
		snap.TokenCount,
		snap.EstimatedCostUSD,
		snap.ErrorCount,
		snap.RetryCount,
	)
	if err != nil {
		return fmt.Errorf("inserting run: %w", err)
	}

	for _, d := range digest.AllDomains {
		sec, ok := draft.Sections[d]
		if !ok {
			continue
		}
		var source, fetchedAt, payload *string
		if sec.Fetch != nil {
			source = strPtr(sec.Fetch.Source)
			fetchedAt = strPtr(sec.Fetch.FetchedAt.UTC().Format(time.RFC3339))
			if sec.Fetch.Payload != nil {
				raw, err := json.Marshal(sec.Fetch.Payload)
				if err != nil {
					return fmt.Errorf("encoding %s payload: %w", d, err)
				}
				payload = strPtr(string(raw))
			}
		}
		_, err = tx.Exec(
			`INSERT INTO sections
			(run_id, domain, status, source, fetched_at, narrative, error, payload, fetch_attempts, reason_attempts, duration_ms)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			draft.RunID, string(d), string(sec.Status),
			source, fetchedAt, strPtr(sec.Narrative), strPtr(sec.Err), payload,
			sec.FetchAttempts, sec.ReasonAttempts, sec.Duration().Milliseconds(),
		)
		if err != nil {
			return fmt.Errorf("inserting %s section: %w", d, err)
		}
	}

	for _, is := range report.Issues {
		_, err = tx.Exec(
			`INSERT INTO issues (run_id, domain, rule, severity, message) VALUES (?, ?, ?, ?, ?)`,
			draft.RunID, string(is.Domain), is.Rule, string(is.Severity), is.Message,
		)
		if err != nil {
			return fmt.Errorf("inserting issue: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// GetRun returns one run by id, or nil if it does not exist.
func (s *Store) GetRun(id string) (*Run, error) {
	row := s.conn.QueryRow("SELECT "+runColumns+" FROM runs WHERE id = ?", id)
	r, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

// LatestPublished returns the most recently published run, or nil when
// nothing has been published yet.
func (s *Store) LatestPublished() (*Run, error) {
	row := s.conn.QueryRow(
		"SELECT " + runColumns + " FROM runs WHERE published = 1 ORDER BY created_at DESC LIMIT 1",
	)
	r, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

// HistoryFilter narrows ListRuns. Zero values impose no constraint.
type HistoryFilter struct {
	Since         string // inclusive lower bound on created_at (date or RFC 3339)
	PublishedOnly bool
	DegradedOnly  bool
	MinQuality    float64 // runs scoring below are excluded
	Domain        string  // with Status: only runs whose Domain section has that status
	Status        string
	Limit         uint64
}

// ListRuns returns runs newest first, narrowed by the filter.
func (s *Store) ListRuns(f HistoryFilter) ([]Run, error) {
	q := sq.Select(runColumns).From("runs").OrderBy("created_at DESC")
	if f.Since != "" {
		q = q.Where(sq.GtOrEq{"created_at": f.Since})
	}
	if f.PublishedOnly {
		q = q.Where(sq.Eq{"published": 1})
	}
	if f.DegradedOnly {
		q = q.Where(sq.Eq{"degraded": 1})
	}
	if f.MinQuality > 0 {
		q = q.Where(sq.GtOrEq{"quality_score": f.MinQuality})
	}
	if f.Domain != "" && f.Status != "" {
		q = q.Where(sq.Expr(
			"id IN (SELECT run_id FROM sections WHERE domain = ? AND status = ?)",
			f.Domain, f.Status,
		))
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building history query: %w", err)
	}

	rows, err := s.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

// GetSections returns the sections of a run in domain order.
func (s *Store) GetSections(runID string) ([]Section, error) {
	rows, err := s.conn.Query(
		`SELECT run_id, domain, status, source, fetched_at, narrative, error, payload, fetch_attempts, reason_attempts, duration_ms
		FROM sections WHERE run_id = ?`, runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byDomain := make(map[string]Section)
	for rows.Next() {
		var sec Section
		if err := rows.Scan(&sec.RunID, &sec.Domain, &sec.Status, &sec.Source, &sec.FetchedAt,
			&sec.Narrative, &sec.Error, &sec.Payload, &sec.FetchAttempts, &sec.ReasonAttempts, &sec.DurationMs); err != nil {
			return nil, err
		}
		byDomain[sec.Domain] = sec
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var sections []Section
	for _, d := range digest.AllDomains {
		if sec, ok := byDomain[string(d)]; ok {
			sections = append(sections, sec)
		}
	}
	return sections, nil
}

// GetIssues returns the validation issues of a run in insertion order.
func (s *Store) GetIssues(runID string) ([]Issue, error) {
	rows, err := s.conn.Query(
		"SELECT id, run_id, domain, rule, severity, message FROM issues WHERE run_id = ? ORDER BY id", runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var issues []Issue
	for rows.Next() {
		var is Issue
		if err := rows.Scan(&is.ID, &is.RunID, &is.Domain, &is.Rule, &is.Severity, &is.Message); err != nil {
			return nil, err
		}
		issues = append(issues, is)
	}
	return issues, rows.Err()
}

// GetStats returns aggregate statistics over the whole run history.
func (s *Store) GetStats() (*Stats, error) {
	st := &Stats{}

	counters := []struct {
		sql  string
		dest *int
	}{
		{"SELECT COUNT(*) FROM runs", &st.TotalRuns},
		{"SELECT COUNT(*) FROM runs WHERE published = 1", &st.PublishedRuns},
		{"SELECT COUNT(*) FROM runs WHERE degraded = 1", &st.DegradedRuns},
		{"SELECT COUNT(*) FROM runs WHERE published = 0", &st.RejectedRuns},
		{"SELECT COALESCE(SUM(token_count), 0) FROM runs", &st.TotalTokens},
	}
	for _, q := range counters {
		if err := s.conn.QueryRow(q.sql).Scan(q.dest); err != nil {
			return nil, err
		}
	}

	if err := s.conn.QueryRow("SELECT COALESCE(SUM(cost_usd), 0) FROM runs").Scan(&st.TotalCostUSD); err != nil {
		return nil, err
	}
	if err := s.conn.QueryRow("SELECT COALESCE(AVG(quality_score), 0) FROM runs").Scan(&st.AvgQuality); err != nil {
		return nil, err
	}

	return st, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var r Run
	var degraded, published int
	err := row.Scan(&r.ID, &r.CreatedAt, &r.QualityScore, &r.Completeness, &degraded, &published,
		&r.PublishNote, &r.DurationMs, &r.TokenCount, &r.CostUSD, &r.ErrorCount, &r.RetryCount)
	if err != nil {
		return nil, err
	}
	r.Degraded = degraded != 0
	r.Published = published != 0
	return &r, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
