package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/ukboards/ukboards/internal/graph"
	"github.com/ukboards/ukboards/internal/runs"
)

// Storage archives finished crawl graphs and their run records in sqlite.
type Storage struct {
	db *sql.DB
}

// RunRow summarizes one archived run.
type RunRow struct {
	RunID     int64
	Kind      string
	RootID    string
	StartTime time.Time
	EndTime   time.Time
	NodeCount int
	EdgeCount int
}

// NewStorage opens (or creates) the archive database and initializes its schema.
func NewStorage(dbPath string) (*Storage, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	storage := &Storage{db: db}

	if err := storage.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return storage, nil
}

// initSchema creates tables and indices if they don't exist
func (s *Storage) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		run_id INTEGER PRIMARY KEY AUTOINCREMENT,
		kind TEXT NOT NULL,
		root_id TEXT,
		start_time TEXT,
		end_time TEXT,
		connected_components INTEGER,
		success INTEGER,
		parameters TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS nodes (
		run_id INTEGER NOT NULL,
		node_id TEXT NOT NULL,
		name TEXT,
		kind TEXT NOT NULL,
		bipartite INTEGER NOT NULL,
		is_person INTEGER NOT NULL,
		category TEXT,
		data TEXT,
		PRIMARY KEY (run_id, node_id),
		FOREIGN KEY (run_id) REFERENCES runs(run_id)
	);

	CREATE TABLE IF NOT EXISTS edges (
		run_id INTEGER NOT NULL,
		org_id TEXT NOT NULL,
		person_id TEXT NOT NULL,
		data TEXT,
		PRIMARY KEY (run_id, org_id, person_id),
		FOREIGN KEY (run_id) REFERENCES runs(run_id)
	);

	CREATE INDEX IF NOT EXISTS idx_nodes_run ON nodes(run_id);
	CREATE INDEX IF NOT EXISTS idx_edges_run ON edges(run_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// ArchiveRun stores a finished graph with its run record and returns the
// archive's run id.
func (s *Storage) ArchiveRun(record *runs.Record, g *graph.Graph) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin archive transaction: %w", err)
	}
	defer tx.Rollback()

	parameters, err := json.Marshal(record.ParameterState)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal run parameters: %w", err)
	}
	rootID := record.RootID
	if rootID == "" && len(record.RootIDs) > 0 {
		rootJSON, err := json.Marshal(record.RootIDs)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal root ids: %w", err)
		}
		rootID = string(rootJSON)
	}
	var success interface{}
	if record.Success != nil {
		success = *record.Success
	}

	result, err := tx.Exec(`
		INSERT INTO runs (kind, root_id, start_time, end_time, connected_components, success, parameters)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, record.Kind, rootID,
		record.StartTime.Format(runs.TimeFormat),
		record.EndTime.Format(runs.TimeFormat),
		record.ConnectedComponentsCount, success, string(parameters))
	if err != nil {
		return 0, fmt.Errorf("failed to insert run: %w", err)
	}
	runID, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read run id: %w", err)
	}

	nodeStmt, err := tx.Prepare(`
		INSERT INTO nodes (run_id, node_id, name, kind, bipartite, is_person, category, data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare node insert: %w", err)
	}
	defer nodeStmt.Close()
	for _, node := range g.Nodes() {
		data, err := json.Marshal(node.Data)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal node %s data: %w", node.ID, err)
		}
		if _, err := nodeStmt.Exec(runID, node.ID, node.Name, node.Kind,
			node.Bipartite, node.IsPerson, node.Category, string(data)); err != nil {
			return 0, fmt.Errorf("failed to insert node %s: %w", node.ID, err)
		}
	}

	edgeStmt, err := tx.Prepare(`
		INSERT INTO edges (run_id, org_id, person_id, data) VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare edge insert: %w", err)
	}
	defer edgeStmt.Close()
	for _, edge := range g.Edges() {
		data, err := json.Marshal(edge.Data)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal edge %s-%s data: %w", edge.Org, edge.Person, err)
		}
		if _, err := edgeStmt.Exec(runID, edge.Org, edge.Person, string(data)); err != nil {
			return 0, fmt.Errorf("failed to insert edge %s-%s: %w", edge.Org, edge.Person, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit archive: %w", err)
	}
	return runID, nil
}

// LoadGraph restores an archived graph by run id.
func (s *Storage) LoadGraph(runID int64) (*graph.Graph, error) {
	nodeRows, err := s.db.Query(`
		SELECT node_id, name, kind, bipartite, is_person, category, data
		FROM nodes WHERE run_id = ?
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query nodes: %w", err)
	}
	defer nodeRows.Close()

	g := graph.New()
	for nodeRows.Next() {
		var node graph.Node
		var data string
		if err := nodeRows.Scan(&node.ID, &node.Name, &node.Kind,
			&node.Bipartite, &node.IsPerson, &node.Category, &data); err != nil {
			return nil, fmt.Errorf("failed to scan node: %w", err)
		}
		if data != "" && data != "null" {
			if err := json.Unmarshal([]byte(data), &node.Data); err != nil {
				return nil, fmt.Errorf("failed to parse node %s data: %w", node.ID, err)
			}
		}
		g.AddNode(node)
	}
	if err := nodeRows.Err(); err != nil {
		return nil, fmt.Errorf("failed reading nodes: %w", err)
	}

	edgeRows, err := s.db.Query(`
		SELECT org_id, person_id, data FROM edges WHERE run_id = ?
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query edges: %w", err)
	}
	defer edgeRows.Close()

	for edgeRows.Next() {
		var orgID, personID, data string
		if err := edgeRows.Scan(&orgID, &personID, &data); err != nil {
			return nil, fmt.Errorf("failed to scan edge: %w", err)
		}
		var payload map[string]interface{}
		if data != "" && data != "null" {
			if err := json.Unmarshal([]byte(data), &payload); err != nil {
				return nil, fmt.Errorf("failed to parse edge %s-%s data: %w", orgID, personID, err)
			}
		}
		if err := g.AddEdge(orgID, personID, payload); err != nil {
			return nil, fmt.Errorf("failed to restore edge: %w", err)
		}
	}
	if err := edgeRows.Err(); err != nil {
		return nil, fmt.Errorf("failed reading edges: %w", err)
	}
	return g, nil
}

// ListRuns returns archived run summaries, newest first.
func (s *Storage) ListRuns() ([]RunRow, error) {
	rows, err := s.db.Query(`
		SELECT r.run_id, r.kind, COALESCE(r.root_id, ''), r.start_time, r.end_time,
			(SELECT COUNT(*) FROM nodes n WHERE n.run_id = r.run_id),
			(SELECT COUNT(*) FROM edges e WHERE e.run_id = r.run_id)
		FROM runs r ORDER BY r.run_id DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var out []RunRow
	for rows.Next() {
		var row RunRow
		var start, end string
		if err := rows.Scan(&row.RunID, &row.Kind, &row.RootID, &start, &end,
			&row.NodeCount, &row.EdgeCount); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		row.StartTime, _ = time.Parse(runs.TimeFormat, start)
		row.EndTime, _ = time.Parse(runs.TimeFormat, end)
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed reading runs: %w", err)
	}
	return out, nil
}

// Close closes the underlying database connection.
func (s *Storage) Close() error {
	return s.db.Close()
}
