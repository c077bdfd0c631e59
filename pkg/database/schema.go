package database

import (
	"context"
	"fmt"
)

// CreateSchema creates the database schema for staged task storage
func (db *DB) CreateSchema(ctx context.Context) error {
	db.logger.Info("Creating database schema...")

	if err := db.createExtensions(ctx); err != nil {
		return fmt.Errorf("failed to create extensions: %w", err)
	}

	tables := []string{
		createStageTasksTable,
		createTaskStagesTable,
	}

	for _, table := range tables {
		if _, err := db.ExecContext(ctx, table); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	indexes := []string{
		createStageTasksIndexes,
		createTaskStagesIndexes,
	}

	for _, index := range indexes {
		if _, err := db.ExecContext(ctx, index); err != nil {
			return fmt.Errorf("failed to create indexes: %w", err)
		}
	}

	db.logger.Info("Database schema created successfully")
	return nil
}

// createExtensions creates required PostgreSQL extensions
func (db *DB) createExtensions(ctx context.Context) error {
	extensions := []string{
		`CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`,
	}

	for _, ext := range extensions {
		if _, err := db.ExecContext(ctx, ext); err != nil {
			return fmt.Errorf("failed to create extension: %w", err)
		}
	}

	return nil
}

const createStageTasksTable = `
CREATE TABLE IF NOT EXISTS stage_tasks (
	id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
	kind VARCHAR(32) NOT NULL,
	subject_ref VARCHAR(128) NOT NULL,
	completion_kind VARCHAR(16) NOT NULL DEFAULT 'advance',
	capture_schema VARCHAR(64),
	fork_kind VARCHAR(32),
	payload JSONB NOT NULL DEFAULT '{}',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`

const createTaskStagesTable = `
CREATE TABLE IF NOT EXISTS task_stages (
	task_id UUID NOT NULL REFERENCES stage_tasks(id) ON DELETE CASCADE,
	stage_index INT NOT NULL CHECK (stage_index >= 1),
	planned TIMESTAMPTZ,
	actual TIMESTAMPTZ,
	PRIMARY KEY (task_id, stage_index),
	CHECK (actual IS NULL OR planned IS NOT NULL)
);`

const createStageTasksIndexes = `
CREATE INDEX IF NOT EXISTS idx_stage_tasks_kind ON stage_tasks(kind);
CREATE INDEX IF NOT EXISTS idx_stage_tasks_subject ON stage_tasks(subject_ref);`

const createTaskStagesIndexes = `
CREATE INDEX IF NOT EXISTS idx_task_stages_pending ON task_stages(stage_index, planned) WHERE actual IS NULL;
CREATE INDEX IF NOT EXISTS idx_task_stages_history ON task_stages(stage_index, actual) WHERE actual IS NOT NULL;`
