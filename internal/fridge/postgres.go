package fridge

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq" // postgres driver
)

// PostgresStore implements the Store interface using PostgreSQL
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore connects to PostgreSQL, pings, and ensures the schema
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}

	store := &PostgresStore{db: db}
	if err := store.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating schema: %w", err)
	}
	return store, nil
}

func (p *PostgresStore) migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS fridges (
		uid TEXT PRIMARY KEY,
		fridge JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`)
	return err
}

// Load retrieves the document for a user
func (p *PostgresStore) Load(ctx context.Context, uid string) (*Document, error) {
	var data []byte
	err := p.db.QueryRowContext(ctx, `SELECT fridge FROM fridges WHERE uid = $1`, uid).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("fridge %q: %w", uid, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying fridge: %w", err)
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("unmarshaling document: %w", err)
	}
	return &doc, nil
}

// Save upserts the document for a user
func (p *PostgresStore) Save(ctx context.Context, uid string, doc *Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshaling document: %w", err)
	}
	_, err = p.db.ExecContext(ctx, `INSERT INTO fridges (uid, fridge) VALUES ($1, $2)
		ON CONFLICT (uid) DO UPDATE SET fridge = EXCLUDED.fridge, updated_at = now()`, uid, data)
	if err != nil {
		return fmt.Errorf("saving fridge: %w", err)
	}
	return nil
}

// List returns all stored documents
func (p *PostgresStore) List(ctx context.Context) ([]*Document, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT fridge FROM fridges ORDER BY uid`)
	if err != nil {
		return nil, fmt.Errorf("querying fridges: %w", err)
	}
	defer rows.Close()

	docs := make([]*Document, 0)
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		var doc Document
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("unmarshaling document: %w", err)
		}
		docs = append(docs, &doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}
	return docs, nil
}

// Close closes the connection pool
func (p *PostgresStore) Close() error {
	return p.db.Close()
}
