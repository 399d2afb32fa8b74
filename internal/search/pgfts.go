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

// Healthy always returns true; if Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search executes a UNION ALL query across projects and graph_nodes using
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

	tsQuery := "plainto_tsquery('simple', $1)"
	args := []any{q.Text}
	argN := 2

	var subQueries []string

	if q.FilterType == "" || q.FilterType == ResultProject {
		projectVector := "to_tsvector('simple', p.name || ' ' || p.description)"
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'project'::text AS type, p.id, p.name AS title,
				ts_headline('simple', coalesce(p.description, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				p.id AS project_id,
				''::text AS node_type,
				ts_rank(%s, %s) AS rank
			FROM projects p
			WHERE %s @@ %s`, tsQuery, projectVector, tsQuery, projectVector, tsQuery))
	}

	if q.FilterType == "" || q.FilterType == ResultNode {
		nodeVector := "to_tsvector('simple', n.label || ' ' || n.role)"
		nodeWhere := nodeVector + " @@ " + tsQuery
		if q.FilterProjectID != "" {
			nodeWhere += fmt.Sprintf(" AND n.project_id = $%d", argN)
			args = append(args, q.FilterProjectID)
			argN++
		}
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'node'::text AS type, n.node_id AS id, n.label AS title,
				ts_headline('simple', coalesce(n.role, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				n.project_id,
				n.node_type,
				ts_rank(%s, %s) AS rank
			FROM graph_nodes n
			WHERE %s`, tsQuery, nodeVector, tsQuery, nodeWhere))
	}

	if len(subQueries) == 0 {
		return nil, 0, nil
	}

	countSQL := fmt.Sprintf("SELECT count(*) FROM (%s) sub",
		strings.Join(subQueries, " UNION ALL "))

	dataSQL := fmt.Sprintf(`SELECT type, id, title, snippet, project_id, node_type
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
		if err := rows.Scan(&typ, &r.ID, &r.Title, &r.Snippet, &r.ProjectID, &r.NodeType); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		r.Type = ResultType(typ)
		results = append(results, r)
	}

	return results, total, rows.Err()
}

// LoadAllRecords returns all searchable records for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]ProjectRecord, []NodeRecord, error) {
	projectRows, err := p.db.QueryContext(ctx, `
		SELECT id, name, description, status
		FROM projects
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("load projects: %w", err)
	}
	defer projectRows.Close()

	projects := make([]ProjectRecord, 0)
	for projectRows.Next() {
		var p ProjectRecord
		if err := projectRows.Scan(&p.ID, &p.Name, &p.Description, &p.Status); err != nil {
			return nil, nil, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, p)
	}
	if err := projectRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate projects: %w", err)
	}

	nodeRows, err := p.db.QueryContext(ctx, `
		SELECT project_id, node_id, node_type, label, role
		FROM graph_nodes
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("load nodes: %w", err)
	}
	defer nodeRows.Close()

	nodes := make([]NodeRecord, 0)
	for nodeRows.Next() {
		var n NodeRecord
		if err := nodeRows.Scan(&n.ProjectID, &n.NodeID, &n.NodeType, &n.Label, &n.Role); err != nil {
			return nil, nil, fmt.Errorf("scan node: %w", err)
		}
		n.ID = n.ProjectID + ":" + n.NodeID
		nodes = append(nodes, n)
	}
	if err := nodeRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate nodes: %w", err)
	}

	return projects, nodes, nil
}
