package db

import (
	"context"
	_ "embed"
	"fmt"
	"strings"
)

// Installs the vector extension and the feed schema before gorm creates tables.
//
//go:embed sql/pre_automigrate.sql
var preAutoMigrateSQL string

// Adds partial indexes and status check constraints that gorm tags cannot express.
//
//go:embed sql/post_automigrate.sql
var postAutoMigrateSQL string

func (p *Pool) autoMigrate(ctx context.Context) error {
	if p == nil || p.gdb == nil {
		return fmt.Errorf("database pool is not initialized")
	}

	if err := p.runScript(ctx, "extension and schema", preAutoMigrateSQL); err != nil {
		return err
	}
	if err := p.gdb.WithContext(ctx).AutoMigrate(autoMigrateModels()...); err != nil {
		return fmt.Errorf("gorm auto-migrate feed models: %w", err)
	}
	return p.runScript(ctx, "indexes and constraints", postAutoMigrateSQL)
}

func (p *Pool) runScript(ctx context.Context, label, script string) error {
	script = strings.TrimSpace(script)
	if script == "" {
		return nil
	}
	if _, err := p.Exec(ctx, script); err != nil {
		return fmt.Errorf("migrate %s: %w", label, err)
	}
	return nil
}
