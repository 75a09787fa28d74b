// Package ticketcache keeps a local SQLite copy of the tracker's
// tickets. The sync job refreshes it; the API serves browse and lookup
// requests from it without a round trip to the tracker.
package ticketcache

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ticketry-io/ticketry/pkg/protocol"
)

// Cache is a SQLite-backed ticket mirror.
type Cache struct {
	db *sql.DB
}

// Open opens (or creates) the cache database and runs migrations.
func Open(path string) (*Cache, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("ticket cache: open: %w", err)
	}

	// WAL mode for concurrent reads while the sync job writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("ticket cache: wal: %w", err)
	}

	c := &Cache{db: db}
	if err := c.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

func (c *Cache) migrate() error {
	_, err := c.db.Exec(`
		CREATE TABLE IF NOT EXISTS tickets (
			key         TEXT PRIMARY KEY,
			id          TEXT NOT NULL DEFAULT '',
			summary     TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			status      TEXT NOT NULL DEFAULT '',
			priority    TEXT NOT NULL DEFAULT '',
			issue_type  TEXT NOT NULL DEFAULT '',
			labels      TEXT NOT NULL DEFAULT '[]',
			created     TEXT NOT NULL DEFAULT '',
			updated     TEXT NOT NULL DEFAULT '',
			assignee    TEXT NOT NULL DEFAULT '',
			synced_at   TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_tickets_status ON tickets(status);
		CREATE INDEX IF NOT EXISTS idx_tickets_updated ON tickets(updated);
	`)
	if err != nil {
		return fmt.Errorf("ticket cache: migrate: %w", err)
	}
	return nil
}

// Upsert writes a batch of tickets, replacing rows that share a key.
func (c *Cache) Upsert(tickets []protocol.Ticket) error {
	tx, err := c.db.Begin()
	if err != nil {
		return fmt.Errorf("ticket cache: upsert: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339)
	for _, t := range tickets {
		labels, _ := json.Marshal(t.Labels)
		_, err := tx.Exec(`
			INSERT INTO tickets (key, id, summary, description, status, priority, issue_type, labels, created, updated, assignee, synced_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET
				id=excluded.id, summary=excluded.summary, description=excluded.description,
				status=excluded.status, priority=excluded.priority, issue_type=excluded.issue_type,
				labels=excluded.labels, created=excluded.created, updated=excluded.updated,
				assignee=excluded.assignee, synced_at=excluded.synced_at
		`, t.Key, t.ID, t.Summary, t.Description, t.Status, t.Priority, t.IssueType,
			string(labels), t.Created, t.Updated, t.Assignee, now)
		if err != nil {
			return fmt.Errorf("ticket cache: upsert %s: %w", t.Key, err)
		}
	}
	return tx.Commit()
}

// Get returns a single ticket by key.
func (c *Cache) Get(key string) (protocol.Ticket, error) {
	row := c.db.QueryRow(`SELECT key, id, summary, description, status, priority, issue_type, labels, created, updated, assignee FROM tickets WHERE key = ?`, key)
	t, err := scanTicket(row)
	if err == sql.ErrNoRows {
		return protocol.Ticket{}, fmt.Errorf("ticket %q not found", key)
	}
	if err != nil {
		return protocol.Ticket{}, fmt.Errorf("ticket cache: get: %w", err)
	}
	return t, nil
}

// List returns cached tickets newest-updated first, up to limit, or
// all of them when limit <= 0.
func (c *Cache) List(limit int) ([]protocol.Ticket, error) {
	query := `SELECT key, id, summary, description, status, priority, issue_type, labels, created, updated, assignee FROM tickets ORDER BY updated DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := c.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("ticket cache: list: %w", err)
	}
	defer rows.Close()

	var tickets []protocol.Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, fmt.Errorf("ticket cache: list scan: %w", err)
		}
		tickets = append(tickets, t)
	}
	return tickets, rows.Err()
}

// Count returns the number of cached tickets.
func (c *Cache) Count() (int, error) {
	var n int
	if err := c.db.QueryRow(`SELECT COUNT(*) FROM tickets`).Scan(&n); err != nil {
		return 0, fmt.Errorf("ticket cache: count: %w", err)
	}
	return n, nil
}

// Close closes the underlying database.
func (c *Cache) Close() error {
	return c.db.Close()
}

type scannable interface {
	Scan(dest ...any) error
}

func scanTicket(s scannable) (protocol.Ticket, error) {
	var t protocol.Ticket
	var labelsJSON string
	err := s.Scan(&t.Key, &t.ID, &t.Summary, &t.Description, &t.Status, &t.Priority,
		&t.IssueType, &labelsJSON, &t.Created, &t.Updated, &t.Assignee)
	if err != nil {
		return protocol.Ticket{}, err
	}
	json.Unmarshal([]byte(labelsJSON), &t.Labels)
	return t, nil
}
