package db

import (
	"fmt"

	"gorm.io/gorm"
)

var postgresStatements = []string{
	`CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`,
	`CREATE TABLE IF NOT EXISTS owners (
		id              BIGSERIAL PRIMARY KEY,
		name            TEXT NOT NULL,
		username        TEXT,
		plate           TEXT NOT NULL,
		chat_id         BIGINT NOT NULL,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
	);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_owners_plate ON owners(plate);`,
	`CREATE TABLE IF NOT EXISTS approvals (
		plate           TEXT PRIMARY KEY,
		status          TEXT NOT NULL CHECK (status IN ('pending', 'allowed', 'denied')),
		updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
	);`,
	`CREATE TABLE IF NOT EXISTS gate_events (
		id              UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		type            TEXT NOT NULL,
		plate           TEXT NOT NULL,
		owner_name      TEXT,
		chat_id         BIGINT,
		track_id        TEXT,
		image_ref       TEXT,
		event_time      TIMESTAMPTZ NOT NULL,
		payload         JSONB,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
	);`,
	`CREATE INDEX IF NOT EXISTS idx_gate_events_plate ON gate_events(plate);`,
	`CREATE INDEX IF NOT EXISTS idx_gate_events_event_time ON gate_events(event_time);`,
}

var sqliteStatements = []string{
	`CREATE TABLE IF NOT EXISTS owners (
		id              INTEGER PRIMARY KEY AUTOINCREMENT,
		name            TEXT NOT NULL,
		username        TEXT,
		plate           TEXT NOT NULL,
		chat_id         INTEGER NOT NULL,
		created_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_owners_plate ON owners(plate);`,
	`CREATE TABLE IF NOT EXISTS approvals (
		plate           TEXT PRIMARY KEY,
		status          TEXT NOT NULL CHECK (status IN ('pending', 'allowed', 'denied')),
		updated_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`,
	`CREATE TABLE IF NOT EXISTS gate_events (
		id              TEXT PRIMARY KEY,
		type            TEXT NOT NULL,
		plate           TEXT NOT NULL,
		owner_name      TEXT,
		chat_id         INTEGER,
		track_id        TEXT,
		image_ref       TEXT,
		event_time      DATETIME NOT NULL,
		payload         JSON,
		created_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`,
	`CREATE INDEX IF NOT EXISTS idx_gate_events_plate ON gate_events(plate);`,
	`CREATE INDEX IF NOT EXISTS idx_gate_events_event_time ON gate_events(event_time);`,
}

func runMigrations(db *gorm.DB) error {
	statements := postgresStatements
	if db.Dialector.Name() == "sqlite" {
		statements = sqliteStatements
	}
	for i, stmt := range statements {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	return nil
}
