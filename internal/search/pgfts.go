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

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true — if Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search executes a UNION ALL query across notes and tags using
// plainto_tsquery and ts_rank, with ts_headline for snippets. Notes are
// scoped to what the user owns or has been shared; tags to the user's own.
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

	// Notes sub-query
	if q.FilterType == "" || q.FilterType == ResultNote {
		noteWhere := "n.fts @@ " + tsQuery
		if q.UserID != "" {
			noteWhere += fmt.Sprintf(` AND (n.owner_id = $%d OR EXISTS (
				SELECT 1 FROM shared_notes sn WHERE sn.note_id = n.id AND sn.user_id = $%d
			))`, argN, argN)
			args = append(args, q.UserID)
			argN++
		}
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'note'::text AS type, n.id, n.heading AS title,
				ts_headline('english', coalesce(n.text, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				n.id AS note_id, n.owner_id,
				ts_rank(n.fts, %s) AS rank
			FROM notes n
			WHERE %s`, tsQuery, tsQuery, noteWhere))
	}

	// Tags sub-query
	if q.FilterType == "" || q.FilterType == ResultTag {
		tagWhere := "to_tsvector('english', t.name) @@ " + tsQuery
		if q.UserID != "" {
			tagWhere += fmt.Sprintf(" AND t.owner_id = $%d", argN)
			args = append(args, q.UserID)
			argN++
		}
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'tag'::text AS type, t.id, t.name AS title,
				''::text AS snippet,
				''::text AS note_id, t.owner_id,
				ts_rank(to_tsvector('english', t.name), %s) AS rank
			FROM tags t
			WHERE %s`, tsQuery, tagWhere))
	}

	if len(subQueries) == 0 {
		return nil, 0, nil
	}

	countSQL := fmt.Sprintf("SELECT count(*) FROM (%s) sub",
		strings.Join(subQueries, " UNION ALL "))

	dataSQL := fmt.Sprintf(`SELECT type, id, title, snippet, note_id, owner_id
		FROM (%s) sub
		ORDER BY rank DESC
		LIMIT %d OFFSET %d`,
		strings.Join(subQueries, " UNION ALL "),
		limit, offset)

	ctx := context.Background()

	var total int
	if err := p.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var typ string
		if err := rows.Scan(&typ, &r.ID, &r.Title, &r.Snippet, &r.NoteID, &r.OwnerID); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		r.Type = ResultType(typ)
		results = append(results, r)
	}

	return results, total, rows.Err()
}

// LoadAllRecords returns all searchable records for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]NoteRecord, []TagRecord, error) {
	noteRows, err := p.db.QueryContext(ctx, `
		SELECT n.id, n.heading, n.text, n.owner_id,
			coalesce(array_agg(sn.user_id) FILTER (WHERE sn.user_id IS NOT NULL), '{}')
		FROM notes n
		LEFT JOIN shared_notes sn ON sn.note_id = n.id
		GROUP BY n.id
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("load notes: %w", err)
	}
	defer noteRows.Close()

	notes := make([]NoteRecord, 0)
	for noteRows.Next() {
		var n NoteRecord
		var partners []byte
		if err := noteRows.Scan(&n.ID, &n.Heading, &n.Text, &n.OwnerID, &partners); err != nil {
			return nil, nil, fmt.Errorf("scan note: %w", err)
		}
		n.PartnerIDs = parseTextArray(string(partners))
		notes = append(notes, n)
	}
	if err := noteRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate notes: %w", err)
	}

	tagRows, err := p.db.QueryContext(ctx, `
		SELECT id, name, owner_id
		FROM tags
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("load tags: %w", err)
	}
	defer tagRows.Close()

	tags := make([]TagRecord, 0)
	for tagRows.Next() {
		var t TagRecord
		if err := tagRows.Scan(&t.ID, &t.Name, &t.OwnerID); err != nil {
			return nil, nil, fmt.Errorf("scan tag: %w", err)
		}
		tags = append(tags, t)
	}
	if err := tagRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate tags: %w", err)
	}

	return notes, tags, nil
}

// parseTextArray decodes a Postgres text[] literal like {a,b}. IDs are
// generated hex strings so no quoting or escaping is expected.
func parseTextArray(s string) []string {
	s = strings.TrimPrefix(s, "{")
	s = strings.TrimSuffix(s, "}")
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}
