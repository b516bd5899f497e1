package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/tinytelemetry/magpie/internal/diag"
	"github.com/tinytelemetry/magpie/internal/model"
)

const recordColumns = "id, source, category, verbosity, message, timestamp, frame, file, line, received_at, session_id, instance_id"

// latestSessionSubquery selects the session_id of the record with the
// greatest received_at, ties broken by the greatest id. Used as the implicit
// predicate for default-filter queries.
const latestSessionSubquery = "(SELECT session_id FROM logs ORDER BY received_at DESC, id DESC LIMIT 1)"

// filterClauses translates a filter into WHERE conditions and bind args.
// prefix qualifies column names ("l." for the search join, "" otherwise).
func filterClauses(f model.Filter, prefix string) (conds []string, args []any) {
	// Session scoping: an explicit session_id wins; otherwise default-filter
	// queries are pinned to the latest session.
	if f.SessionID != nil {
		conds = append(conds, prefix+"session_id = ?")
		args = append(args, *f.SessionID)
	} else if !f.AllSessions {
		conds = append(conds, prefix+"session_id = "+latestSessionSubquery)
	}

	if f.InstanceID != nil {
		conds = append(conds, prefix+"instance_id = ?")
		args = append(args, *f.InstanceID)
	}
	if f.Source != "" {
		conds = append(conds, prefix+"source = ?")
		args = append(args, f.Source)
	}
	if f.MinSeverity != 0 {
		// Lower ordinal = more severe, so a minimum admits verbosity <= it.
		conds = append(conds, prefix+"verbosity <= ?")
		args = append(args, int(f.MinSeverity))
	}
	if f.Category != "" {
		conds = append(conds, prefix+"category = ?")
		args = append(args, f.Category)
	}
	if f.Since != nil {
		conds = append(conds, prefix+"timestamp >= ?")
		args = append(args, *f.Since)
	}
	if f.Until != nil {
		conds = append(conds, prefix+"timestamp <= ?")
		args = append(args, *f.Until)
	}
	return conds, args
}

func scanRecord(rows *sql.Rows) (model.LogRecord, error) {
	var rec model.LogRecord
	var verbosity int
	var frame sql.NullInt64
	var file sql.NullString
	var line sql.NullInt64
	err := rows.Scan(&rec.ID, &rec.Source, &rec.Category, &verbosity, &rec.Message,
		&rec.Timestamp, &frame, &file, &line, &rec.ReceivedAt, &rec.SessionID, &rec.InstanceID)
	if err != nil {
		return rec, err
	}
	rec.Severity = model.Severity(verbosity)
	if frame.Valid {
		v := frame.Int64
		rec.Frame = &v
	}
	if file.Valid {
		v := file.String
		rec.File = &v
	}
	if line.Valid {
		v := int(line.Int64)
		rec.Line = &v
	}
	return rec, nil
}

func (s *Store) collectRecords(rows *sql.Rows) []model.LogRecord {
	var results []model.LogRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			diag.Errorf("Store", "scan error: %v", err)
			continue
		}
		results = append(results, rec)
	}
	return results
}

// Query returns records matching the filter, newest emit time first, ties
// broken by id descending.
func (s *Store) Query(f model.Filter) ([]model.LogRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := s.queryCtx()
	defer cancel()

	conds, args := filterClauses(f, "")
	query := "SELECT " + recordColumns + " FROM logs"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY timestamp DESC, id DESC LIMIT ? OFFSET ?"
	args = append(args, f.EffectiveLimit(), f.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("query", err)
	}
	defer rows.Close()

	results := s.collectRecords(rows)
	if err := rows.Err(); err != nil {
		return nil, storageErr("query rows", err)
	}
	return results, nil
}

// Search runs a full-text match over message text, combined with the filter.
// The expression supports bare terms (implicit AND), quoted phrases,
// trailing-* prefix terms, OR, and NOT; a syntactically invalid expression
// is an input error, never a storage error.
func (s *Store) Search(ftsQuery string, f model.Filter) ([]model.LogRecord, error) {
	match, err := TranslateFTSQuery(ftsQuery)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := s.queryCtx()
	defer cancel()

	cols := make([]string, 0, 12)
	for _, c := range strings.Split(recordColumns, ", ") {
		cols = append(cols, "l."+c)
	}
	query := "SELECT " + strings.Join(cols, ", ") + `
		FROM logs l
		JOIN logs_fts ON l.id = logs_fts.rowid
		WHERE logs_fts MATCH ?`
	args := []any{match}

	conds, condArgs := filterClauses(f, "l.")
	for _, c := range conds {
		query += " AND " + c
	}
	args = append(args, condArgs...)

	query += " ORDER BY l.timestamp DESC, l.id DESC LIMIT ? OFFSET ?"
	args = append(args, f.EffectiveLimit(), f.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("search", err)
	}
	defer rows.Close()

	results := s.collectRecords(rows)
	if err := rows.Err(); err != nil {
		return nil, storageErr("search rows", err)
	}
	return results, nil
}

// statsFilter builds the optional source/since predicate shared by the
// aggregate queries.
func statsFilter(source *string, since *float64) (clause string, args []any) {
	clause = "WHERE 1=1"
	if source != nil {
		clause += " AND source = ?"
		args = append(args, *source)
	}
	if since != nil {
		clause += " AND timestamp >= ?"
		args = append(args, *since)
	}
	return clause, args
}

// Stats returns aggregate counts, optionally restricted to one source and
// to records with emit time at or after since.
func (s *Store) Stats(source *string, since *float64) (model.Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := s.queryCtx()
	defer cancel()

	stats := model.Stats{
		BySource:   make(map[string]int64),
		ByCategory: make(map[string]int64),
	}
	where, args := statsFilter(source, since)

	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM logs "+where, args...).Scan(&stats.Total); err != nil {
		return stats, storageErr("stats total", err)
	}

	rows, err := s.db.QueryContext(ctx, "SELECT source, COUNT(*) FROM logs "+where+" GROUP BY source", args...)
	if err != nil {
		return stats, storageErr("stats by source", err)
	}
	for rows.Next() {
		var src string
		var count int64
		if err := rows.Scan(&src, &count); err != nil {
			diag.Errorf("Store", "scan error (stats by source): %v", err)
			continue
		}
		stats.BySource[src] = count
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return stats, storageErr("stats by source rows", err)
	}
	rows.Close()
	stats.Client = stats.BySource["client"]
	stats.Server = stats.BySource["server"]

	// Errors are Fatal+Error (verbosity <= 2); warnings are exactly
	// verbosity 3. The asymmetry is deliberate.
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM logs "+where+" AND verbosity <= 2", args...).Scan(&stats.Errors); err != nil {
		return stats, storageErr("stats errors", err)
	}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM logs "+where+" AND verbosity = 3", args...).Scan(&stats.Warnings); err != nil {
		return stats, storageErr("stats warnings", err)
	}

	rows, err = s.db.QueryContext(ctx, "SELECT category, COUNT(*) FROM logs "+where+" GROUP BY category ORDER BY COUNT(*) DESC LIMIT 20", args...)
	if err != nil {
		return stats, storageErr("stats by category", err)
	}
	for rows.Next() {
		var cat string
		var count int64
		if err := rows.Scan(&cat, &count); err != nil {
			diag.Errorf("Store", "scan error (stats by category): %v", err)
			continue
		}
		stats.ByCategory[cat] = count
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return stats, storageErr("stats by category rows", err)
	}
	rows.Close()

	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(DISTINCT session_id) FROM logs "+where, args...).Scan(&stats.SessionCount); err != nil {
		return stats, storageErr("stats sessions", err)
	}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(DISTINCT instance_id) FROM logs "+where, args...).Scan(&stats.InstanceCount); err != nil {
		return stats, storageErr("stats instances", err)
	}

	stats.CurrentSession = s.latestSessionLocked(ctx, nil)
	return stats, nil
}

// Categories returns the sorted distinct category names, optionally
// restricted to one source.
func (s *Store) Categories(source *string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := s.queryCtx()
	defer cancel()

	query := "SELECT DISTINCT category FROM logs"
	var args []any
	if source != nil {
		query += " WHERE source = ?"
		args = append(args, *source)
	}
	query += " ORDER BY category"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("categories", err)
	}
	defer rows.Close()

	var categories []string
	for rows.Next() {
		var cat string
		if err := rows.Scan(&cat); err != nil {
			diag.Errorf("Store", "scan error (categories): %v", err)
			continue
		}
		categories = append(categories, cat)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("categories rows", err)
	}
	return categories, nil
}

// Sessions returns one summary per session, most recent last_seen first,
// each carrying the distinct instance ids seen under it. A source filter
// restricts both the summaries and the instance lists.
func (s *Store) Sessions(source *string) ([]model.SessionSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := s.queryCtx()
	defer cancel()

	query := `SELECT session_id, MIN(received_at), MAX(received_at), COUNT(*) FROM logs`
	var args []any
	if source != nil {
		query += " WHERE source = ?"
		args = append(args, *source)
	}
	query += " GROUP BY session_id ORDER BY MAX(received_at) DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("sessions", err)
	}

	var sessions []model.SessionSummary
	for rows.Next() {
		var sum model.SessionSummary
		if err := rows.Scan(&sum.SessionID, &sum.FirstSeen, &sum.LastSeen, &sum.LogCount); err != nil {
			diag.Errorf("Store", "scan error (sessions): %v", err)
			continue
		}
		sessions = append(sessions, sum)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, storageErr("sessions rows", err)
	}
	rows.Close()

	for i := range sessions {
		instQuery := "SELECT DISTINCT instance_id FROM logs WHERE session_id = ?"
		instArgs := []any{sessions[i].SessionID}
		if source != nil {
			instQuery += " AND source = ?"
			instArgs = append(instArgs, *source)
		}
		instQuery += " ORDER BY instance_id"

		instRows, err := s.db.QueryContext(ctx, instQuery, instArgs...)
		if err != nil {
			return nil, storageErr("session instances", err)
		}
		for instRows.Next() {
			var inst string
			if err := instRows.Scan(&inst); err != nil {
				diag.Errorf("Store", "scan error (session instances): %v", err)
				continue
			}
			sessions[i].Instances = append(sessions[i].Instances, inst)
		}
		if err := instRows.Err(); err != nil {
			instRows.Close()
			return nil, storageErr("session instances rows", err)
		}
		instRows.Close()
	}

	return sessions, nil
}

// LatestSession returns the session_id of the record with the greatest
// receive time (ties broken by greatest id), or "" when the store is empty.
func (s *Store) LatestSession(source *string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := s.queryCtx()
	defer cancel()
	return s.latestSessionLocked(ctx, source), nil
}

func (s *Store) latestSessionLocked(ctx context.Context, source *string) string {
	query := "SELECT session_id FROM logs"
	var args []any
	if source != nil {
		query += " WHERE source = ?"
		args = append(args, *source)
	}
	query += " ORDER BY received_at DESC, id DESC LIMIT 1"

	var session string
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&session)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			diag.Errorf("Store", "latest session: %v", err)
		}
		return ""
	}
	return session
}

// Clear deletes matching records and their full-text entries, returning the
// number removed. Both predicates are optional: source restricts by emitter
// label, before restricts to emit times strictly below the bound.
func (s *Store) Clear(source *string, before *float64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := s.queryCtx()
	defer cancel()

	query := "DELETE FROM logs WHERE 1=1"
	var args []any
	if source != nil {
		query += " AND source = ?"
		args = append(args, *source)
	}
	if before != nil {
		query += " AND timestamp < ?"
		args = append(args, *before)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, storageErr("clear", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, storageErr("clear count", err)
	}
	return deleted, nil
}

// Count returns the number of live records.
func (s *Store) Count() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := s.queryCtx()
	defer cancel()

	var count int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM logs").Scan(&count); err != nil {
		return 0, storageErr("count", err)
	}
	return count, nil
}
