// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package store persists research sessions, their evidence, and finalized
// reports, and builds a full-text retrieval index over collected documents.
// Implements: prd109-store (R1-R3);
//
//	docs/ARCHITECTURE § Archive.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/deep-research/pkg/types"
)

const (
	indexDir   = "index"
	reportsDir = "reports"
	dbFile     = "research.db"
)

// Store manages the session archive SQLite database and report files.
type Store struct {
	db         *sql.DB
	dataDir    string
	maxResults int
}

// NewStore opens or creates the archive database at dataDir/index/research.db
// and ensures the reports directory exists. It creates the schema if it does
// not exist (R1.1, R1.2).
func NewStore(cfg types.StoreConfig) (*Store, error) {
	dbDir := filepath.Join(cfg.DataDir, indexDir)
	if err := os.MkdirAll(dbDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating index directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(cfg.DataDir, reportsDir), 0o755); err != nil {
		return nil, fmt.Errorf("creating reports directory: %w", err)
	}

	dbPath := filepath.Join(dbDir, dbFile)
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = 20
	}

	s := &Store{db: db, dataDir: cfg.DataDir, maxResults: maxResults}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			goal TEXT NOT NULL,
			total_iterations INTEGER,
			research_iterations INTEGER,
			revision_iterations INTEGER,
			force_approved INTEGER,
			created_at TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS documents (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL,
			session_id TEXT NOT NULL REFERENCES sessions(id),
			provider TEXT,
			query TEXT,
			url TEXT NOT NULL,
			hostname TEXT,
			title TEXT,
			excerpt TEXT,
			content TEXT,
			normalized_key TEXT,
			score REAL,
			fetched_at TEXT,
			UNIQUE(session_id, normalized_key)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_documents_session ON documents(session_id)`,
		`CREATE INDEX IF NOT EXISTS idx_documents_hostname ON documents(hostname)`,
		`CREATE TABLE IF NOT EXISTS reports (
			session_id TEXT PRIMARY KEY REFERENCES sessions(id),
			text TEXT NOT NULL,
			confidence REAL,
			citations TEXT,
			issues TEXT,
			created_at TEXT
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}

	// FTS5 virtual table with triggers for sync.
	var ftsExists int
	if err := s.db.QueryRow(
		`SELECT count(*) FROM sqlite_master WHERE type='table' AND name='documents_fts'`,
	).Scan(&ftsExists); err != nil {
		return fmt.Errorf("checking FTS table: %w", err)
	}

	if ftsExists == 0 {
		ftsStatements := []string{
			`CREATE VIRTUAL TABLE documents_fts USING fts5(title, excerpt, content, content=documents, content_rowid=rowid)`,
			`CREATE TRIGGER documents_ai AFTER INSERT ON documents BEGIN
				INSERT INTO documents_fts(rowid, title, excerpt, content) VALUES (new.rowid, new.title, new.excerpt, new.content);
			END`,
			`CREATE TRIGGER documents_ad AFTER DELETE ON documents BEGIN
				INSERT INTO documents_fts(documents_fts, rowid, title, excerpt, content) VALUES('delete', old.rowid, old.title, old.excerpt, old.content);
			END`,
			`CREATE TRIGGER documents_au AFTER UPDATE ON documents BEGIN
				INSERT INTO documents_fts(documents_fts, rowid, title, excerpt, content) VALUES('delete', old.rowid, old.title, old.excerpt, old.content);
				INSERT INTO documents_fts(rowid, title, excerpt, content) VALUES (new.rowid, new.title, new.excerpt, new.content);
			END`,
		}
		for _, stmt := range ftsStatements {
			if _, err := s.db.Exec(stmt); err != nil {
				return fmt.Errorf("creating FTS infrastructure: %w", err)
			}
		}
	}

	return nil
}

// SaveSession persists a finished session: its report row, its evidence
// documents, and the rendered report files under reports/ (R2.1-R2.3).
func (s *Store) SaveSession(ctx context.Context, report types.Report, docs []types.CanonicalDocument) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	// An upsert rather than INSERT OR REPLACE: REPLACE deletes the row,
	// which trips the documents foreign key on re-save.
	_, err = tx.ExecContext(ctx,
		`INSERT INTO sessions
			(id, goal, total_iterations, research_iterations, revision_iterations, force_approved, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			goal = excluded.goal,
			total_iterations = excluded.total_iterations,
			research_iterations = excluded.research_iterations,
			revision_iterations = excluded.revision_iterations,
			force_approved = excluded.force_approved,
			created_at = excluded.created_at`,
		report.SessionID, report.Goal,
		report.Counters.TotalIterations, report.Counters.ResearchIterations,
		report.Counters.RevisionIterations, boolInt(report.Counters.ForceApproved),
		report.CreatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("saving session: %w", err)
	}

	for _, d := range docs {
		_, err = tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO documents
				(id, session_id, provider, query, url, hostname, title, excerpt, content, normalized_key, score, fetched_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			d.ID, report.SessionID, d.Provider, d.Query, d.URL, d.Hostname,
			d.Title, d.Excerpt, d.Content, d.NormalizedKey, d.NormalizedScore,
			d.FetchedAt.UTC().Format(time.RFC3339))
		if err != nil {
			return fmt.Errorf("saving document %s: %w", d.URL, err)
		}
	}

	citations, err := json.Marshal(report.Draft.Citations)
	if err != nil {
		return fmt.Errorf("marshaling citations: %w", err)
	}
	issues, err := json.Marshal(report.Issues)
	if err != nil {
		return fmt.Errorf("marshaling issues: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO reports (session_id, text, confidence, citations, issues, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		report.SessionID, report.Draft.Text, report.Draft.Confidence,
		string(citations), string(issues),
		report.CreatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("saving report: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing session: %w", err)
	}

	return s.writeReportFiles(report)
}

// writeReportFiles renders the report as Markdown with a source list, plus a
// YAML metadata sidecar (R2.3).
func (s *Store) writeReportFiles(report types.Report) error {
	mdPath := filepath.Join(s.dataDir, reportsDir, report.SessionID+".md")
	yamlPath := filepath.Join(s.dataDir, reportsDir, report.SessionID+".yaml")

	md := renderMarkdown(report)
	if err := os.WriteFile(mdPath, []byte(md), 0o644); err != nil {
		return fmt.Errorf("writing report markdown: %w", err)
	}

	// The sidecar carries session metadata; document bodies live in the
	// database, not here.
	report.Documents = nil
	meta, err := yaml.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshaling report metadata: %w", err)
	}
	if err := os.WriteFile(yamlPath, meta, 0o644); err != nil {
		return fmt.Errorf("writing report metadata: %w", err)
	}
	return nil
}

func renderMarkdown(report types.Report) string {
	md := fmt.Sprintf("# %s\n\n%s\n", report.Goal, report.Draft.Text)
	if len(report.Draft.Citations) > 0 {
		md += "\n## Sources\n\n"
		for _, c := range report.Draft.Citations {
			md += fmt.Sprintf("%d. [%s](%s)\n", c.ID, c.Title, c.URL)
		}
	}
	return md
}

// EvidenceHit is one document matched by a full-text evidence query (R3.2).
type EvidenceHit struct {
	SessionID string  `json:"session_id" yaml:"session_id"`
	URL       string  `json:"url" yaml:"url"`
	Title     string  `json:"title" yaml:"title"`
	Excerpt   string  `json:"excerpt" yaml:"excerpt"`
	Score     float64 `json:"score" yaml:"score"`
}

// SearchEvidence runs an FTS5 query over archived documents, ranked by
// relevance (R3.1).
func (s *Store) SearchEvidence(ctx context.Context, query string, maxResults int) ([]EvidenceHit, error) {
	if query == "" {
		return nil, fmt.Errorf("evidence query is empty")
	}
	if maxResults <= 0 {
		maxResults = s.maxResults
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT d.session_id, d.url, d.title, d.excerpt, d.score
		FROM documents_fts
		JOIN documents d ON d.rowid = documents_fts.rowid
		WHERE documents_fts MATCH ?
		ORDER BY documents_fts.rank
		LIMIT ?`, query, maxResults)
	if err != nil {
		return nil, fmt.Errorf("querying evidence: %w", err)
	}
	defer rows.Close()

	var hits []EvidenceHit
	for rows.Next() {
		var h EvidenceHit
		var title, excerpt sql.NullString
		if err := rows.Scan(&h.SessionID, &h.URL, &title, &excerpt, &h.Score); err != nil {
			return nil, fmt.Errorf("scanning evidence row: %w", err)
		}
		h.Title = title.String
		h.Excerpt = excerpt.String
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// GetReport loads an archived report by session ID (R3.3).
func (s *Store) GetReport(ctx context.Context, sessionID string) (types.Report, error) {
	var (
		report        types.Report
		citations     string
		issues        string
		created       string
		forceApproved int
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT r.session_id, s.goal, r.text, r.confidence, r.citations, r.issues, r.created_at,
			s.total_iterations, s.research_iterations, s.revision_iterations, s.force_approved
		FROM reports r JOIN sessions s ON s.id = r.session_id
		WHERE r.session_id = ?`, sessionID).Scan(
		&report.SessionID, &report.Goal, &report.Draft.Text, &report.Draft.Confidence,
		&citations, &issues, &created,
		&report.Counters.TotalIterations, &report.Counters.ResearchIterations,
		&report.Counters.RevisionIterations, &forceApproved)
	if err == sql.ErrNoRows {
		return types.Report{}, fmt.Errorf("no report for session %s", sessionID)
	}
	if err != nil {
		return types.Report{}, fmt.Errorf("loading report: %w", err)
	}
	report.Counters.ForceApproved = forceApproved != 0

	if err := json.Unmarshal([]byte(citations), &report.Draft.Citations); err != nil {
		return types.Report{}, fmt.Errorf("parsing citations: %w", err)
	}
	if issues != "" && issues != "null" {
		if err := json.Unmarshal([]byte(issues), &report.Issues); err != nil {
			return types.Report{}, fmt.Errorf("parsing issues: %w", err)
		}
	}
	if t, err := time.Parse(time.RFC3339, created); err == nil {
		report.CreatedAt = t
	}
	return report, nil
}

// SessionInfo is one row of the session listing (R3.4).
type SessionInfo struct {
	ID        string    `json:"id" yaml:"id"`
	Goal      string    `json:"goal" yaml:"goal"`
	Documents int       `json:"documents" yaml:"documents"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

// ListSessions returns archived sessions, newest first.
func (s *Store) ListSessions(ctx context.Context) ([]SessionInfo, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT s.id, s.goal, s.created_at, count(d.rowid)
		FROM sessions s LEFT JOIN documents d ON d.session_id = s.id
		GROUP BY s.id ORDER BY s.created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	var sessions []SessionInfo
	for rows.Next() {
		var info SessionInfo
		var created string
		if err := rows.Scan(&info.ID, &info.Goal, &created, &info.Documents); err != nil {
			return nil, fmt.Errorf("scanning session row: %w", err)
		}
		if t, err := time.Parse(time.RFC3339, created); err == nil {
			info.CreatedAt = t
		}
		sessions = append(sessions, info)
	}
	return sessions, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
