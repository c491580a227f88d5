package database

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/samogod/patentvae/pkg/config"

	_ "github.com/lib/pq"
)

var DebugLog func(string, ...interface{})

var (
	ErrDisabled    = errors.New("database is not enabled")
	ErrRunNotFound = errors.New("run not found")
)

const DBName = "patentvae_runs"

const (
	StatusNew     = "NEW"
	StatusSeen    = "SEEN"
	StatusChanged = "CHANGED"
)

type DB struct {
	conn    *sql.DB
	enabled bool
}

type RunRecord struct {
	Name        string
	Params      config.Params
	Fingerprint string
	Status      string
	FirstSeen   time.Time
	LastSeen    time.Time
}

// NextStatus decides the status of a run being recorded again.
func NextStatus(previousFingerprint, fingerprint string) string {
	if previousFingerprint == "" {
		return StatusNew
	}
	if previousFingerprint != fingerprint {
		return StatusChanged
	}
	return StatusSeen
}

func connString(cfg *config.Database, dbname string) string {
	sslmode := cfg.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, dbname, sslmode)
}

// New connects to PostgreSQL, creating the runs database on first use.
// A disabled config yields a DB whose IsEnabled is false.
func New(cfg *config.Database) (*DB, error) {
	db := &DB{
		enabled: cfg.Enabled,
	}

	if !cfg.Enabled {
		if DebugLog != nil {
			DebugLog("run registry disabled")
		}
		return db, nil
	}

	if err := ensureDatabase(cfg); err != nil {
		return db, err
	}

	conn, err := sql.Open("postgres", connString(cfg, DBName))
	if err != nil {
		return db, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return db, fmt.Errorf("failed to ping database: %w", err)
	}

	db.conn = conn
	if DebugLog != nil {
		DebugLog("run registry connected to %s:%d/%s", cfg.Host, cfg.Port, DBName)
	}

	if err := db.setup(); err != nil {
		return db, err
	}

	return db, nil
}

// setup creates the schema. On failure the connection is dropped and the DB
// reports itself disabled.
func (db *DB) setup() error {
	if err := db.initSchema(); err != nil {
		db.conn.Close()
		db.conn = nil
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

func ensureDatabase(cfg *config.Database) error {
	postgresConn, err := sql.Open("postgres", connString(cfg, "postgres"))
	if err != nil {
		return fmt.Errorf("failed to connect to postgres: %w", err)
	}
	defer postgresConn.Close()

	if err := postgresConn.Ping(); err != nil {
		return fmt.Errorf("failed to ping postgres: %w", err)
	}

	var exists bool
	err = postgresConn.QueryRow("SELECT EXISTS(SELECT 1 FROM pg_database WHERE datname = $1)", DBName).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check database existence: %w", err)
	}

	if !exists {
		if _, err := postgresConn.Exec(fmt.Sprintf("CREATE DATABASE %s", DBName)); err != nil {
			return fmt.Errorf("failed to create database: %w", err)
		}
		if DebugLog != nil {
			DebugLog("database %s created", DBName)
		}
	}
	return nil
}

func (db *DB) initSchema() error {
	if !db.IsEnabled() {
		return nil
	}

	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id SERIAL PRIMARY KEY,
		name VARCHAR(255) NOT NULL UNIQUE,
		params JSONB NOT NULL,
		fingerprint CHAR(64) NOT NULL,
		status VARCHAR(20) NOT NULL DEFAULT 'NEW',
		first_seen TIMESTAMP NOT NULL DEFAULT NOW(),
		last_seen TIMESTAMP NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
	CREATE INDEX IF NOT EXISTS idx_runs_fingerprint ON runs(fingerprint);
	`

	_, err := db.conn.Exec(schema)
	return err
}

func (db *DB) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}

func (db *DB) IsEnabled() bool {
	return db != nil && db.enabled && db.conn != nil
}

// RecordRun stores params under name and returns the resulting status.
func (db *DB) RecordRun(name string, params config.Params) (string, error) {
	if !db.IsEnabled() {
		return "", ErrDisabled
	}

	fingerprint, err := params.Fingerprint()
	if err != nil {
		return "", err
	}
	body, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("failed to encode params: %w", err)
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	var previous string
	err = tx.QueryRow(`SELECT fingerprint FROM runs WHERE name = $1 FOR UPDATE`, name).Scan(&previous)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return "", err
	}

	status := NextStatus(previous, fingerprint)
	if status == StatusNew {
		if DebugLog != nil {
			DebugLog("inserting run %s (%s)", name, fingerprint[:12])
		}
		_, err = tx.Exec(`
			INSERT INTO runs (name, params, fingerprint, status, first_seen, last_seen)
			VALUES ($1, $2, $3, $4, NOW(), NOW())
		`, name, body, fingerprint, status)
	} else {
		if DebugLog != nil {
			DebugLog("updating run %s to %s", name, status)
		}
		_, err = tx.Exec(`
			UPDATE runs
			SET params = $2, fingerprint = $3, status = $4, last_seen = NOW()
			WHERE name = $1
		`, name, body, fingerprint, status)
	}
	if err != nil {
		return "", err
	}

	if err := tx.Commit(); err != nil {
		return "", err
	}
	return status, nil
}

func (db *DB) QueryRun(name string) (*RunRecord, error) {
	if !db.IsEnabled() {
		return nil, ErrDisabled
	}

	row := db.conn.QueryRow(`
		SELECT name, params, fingerprint, status, first_seen, last_seen
		FROM runs
		WHERE name = $1
	`, name)

	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	return r, err
}

func (db *DB) QueryRuns(status string) ([]RunRecord, error) {
	if !db.IsEnabled() {
		return nil, ErrDisabled
	}

	query := `
		SELECT name, params, fingerprint, status, first_seen, last_seen
		FROM runs
	`
	var args []interface{}

	if status != "" {
		query += " WHERE status = $1"
		args = append(args, status)
	}

	query += " ORDER BY last_seen DESC"

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []RunRecord
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *r)
	}

	return records, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(s scanner) (*RunRecord, error) {
	var (
		r    RunRecord
		body []byte
	)
	if err := s.Scan(&r.Name, &body, &r.Fingerprint, &r.Status, &r.FirstSeen, &r.LastSeen); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(body, &r.Params); err != nil {
		return nil, fmt.Errorf("failed to decode params of run %s: %w", r.Name, err)
	}
	return &r, nil
}
