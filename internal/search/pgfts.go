package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
type PgFTS struct {
	db *sql.DB
}

func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true; if Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search executes a UNION ALL query across reports and notes using
// plainto_tsquery and ts_rank, with ts_headline for snippets.
func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	tsQuery := "plainto_tsquery('english', $1)"
	args := []any{q.Text}
	argN := 2

	var subQueries []string

	if q.FilterType == "" || q.FilterType == ResultReport {
		where := "r.fts @@ " + tsQuery
		if q.FilterStatus != "" {
			where += fmt.Sprintf(" AND r.status = $%d", argN)
			args = append(args, q.FilterStatus)
			argN++
		}
		if q.FilterCategory != "" {
			where += fmt.Sprintf(" AND r.category = $%d", argN)
			args = append(args, q.FilterCategory)
			argN++
		}
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'report'::text AS type, r.id, r.id AS report_id, r.location AS title,
				ts_headline('english', coalesce(r.description, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				r.status, r.category,
				ts_rank(r.fts, %s) AS rank
			FROM reports r
			WHERE %s`, tsQuery, tsQuery, where))
	}

	if q.FilterType == "" || q.FilterType == ResultNote {
		where := "n.fts @@ " + tsQuery
		if q.FilterStatus != "" {
			where += fmt.Sprintf(" AND r.status = $%d", argN)
			args = append(args, q.FilterStatus)
			argN++
		}
		if q.FilterCategory != "" {
			where += fmt.Sprintf(" AND r.category = $%d", argN)
			args = append(args, q.FilterCategory)
			argN++
		}
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'note'::text AS type, n.id, n.report_id, n.author_name AS title,
				ts_headline('english', coalesce(n.body, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				''::text AS status, ''::text AS category,
				ts_rank(n.fts, %s) AS rank
			FROM notes n
			JOIN reports r ON r.id = n.report_id
			WHERE %s`, tsQuery, tsQuery, where))
	}

	if len(subQueries) == 0 {
		return nil, 0, nil
	}

	union := strings.Join(subQueries, " UNION ALL ")
	countSQL := fmt.Sprintf("SELECT count(*) FROM (%s) sub", union)
	dataSQL := fmt.Sprintf(`SELECT type, id, report_id, title, snippet, status, category
		FROM (%s) sub
		ORDER BY rank DESC
		LIMIT %d OFFSET %d`, union, limit, offset)

	var total int
	if err := p.db.QueryRow(countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.Query(dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var typ string
		if err := rows.Scan(&typ, &r.ID, &r.ReportID, &r.Title, &r.Snippet, &r.Status, &r.Category); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		r.Type = ResultType(typ)
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("pgfts iterate: %w", err)
	}
	return results, total, nil
}

// LoadAllRecords reads every report and note for bulk reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]ReportRecord, []NoteRecord, error) {
	reportRows, err := p.db.QueryContext(ctx, `SELECT id, location, description, status, category FROM reports`)
	if err != nil {
		return nil, nil, fmt.Errorf("load reports: %w", err)
	}
	defer reportRows.Close()

	var reports []ReportRecord
	for reportRows.Next() {
		var r ReportRecord
		if err := reportRows.Scan(&r.ID, &r.Location, &r.Description, &r.Status, &r.Category); err != nil {
			return nil, nil, fmt.Errorf("scan report record: %w", err)
		}
		reports = append(reports, r)
	}
	if err := reportRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate report records: %w", err)
	}

	noteRows, err := p.db.QueryContext(ctx, `SELECT id, report_id, body, author_name FROM notes`)
	if err != nil {
		return nil, nil, fmt.Errorf("load notes: %w", err)
	}
	defer noteRows.Close()

	var notes []NoteRecord
	for noteRows.Next() {
		var n NoteRecord
		if err := noteRows.Scan(&n.ID, &n.ReportID, &n.Body, &n.AuthorName); err != nil {
			return nil, nil, fmt.Errorf("scan note record: %w", err)
		}
		notes = append(notes, n)
	}
	if err := noteRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate note records: %w", err)
	}
	return reports, notes, nil
}
