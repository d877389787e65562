package database

import (
	"context"
	"fmt"
	"slices"

	"gorm.io/gorm"
)

type DatabaseMigration struct {
	gorm.Model
	Version int64 `gorm:"not null;uniqueIndex"`
}

// Migration holds the statements AutoMigrate cannot express, applied once
// per version in ascending order.
type Migration struct {
	Version    int64
	Statements []string
}

var migrations = []Migration{
	{
		Version: 1,
		Statements: []string{
			"CREATE INDEX IF NOT EXISTS idx_post_feed_order ON post (created_at DESC, id ASC)",
			"CREATE INDEX IF NOT EXISTS idx_post_tag_lookup ON post_tag (tag, post_id)",
		},
	},
	{
		Version: 2,
		Statements: []string{
			"ALTER TABLE post ADD CONSTRAINT chk_post_counts CHECK (like_count >= 0 AND share_count >= 0 AND comment_count >= 0)",
		},
	},
}

type SchemaVersion struct {
	Migrations []Migration
}

func NewSchemaVersion() SchemaVersion {
	sv := SchemaVersion{
		Migrations: slices.Clone(migrations),
	}
	slices.SortFunc(sv.Migrations, func(a, b Migration) int {
		return int(a.Version - b.Version)
	})
	return sv
}

// Latest is the version a fully migrated database reports.
func (sv SchemaVersion) Latest() int64 {
	if len(sv.Migrations) == 0 {
		return 0
	}
	return sv.Migrations[len(sv.Migrations)-1].Version
}

// Pending returns the migrations newer than current.
func (sv SchemaVersion) Pending(current int64) []Migration {
	var out []Migration
	for _, m := range sv.Migrations {
		if m.Version > current {
			out = append(out, m)
		}
	}
	return out
}

type DBMigrator struct {
	db *gorm.DB
}

func NewDBMigrator(db *gorm.DB) *DBMigrator {
	return &DBMigrator{
		db: db,
	}
}

func (d *DBMigrator) initialize() error {
	db := d.db
	if err := db.AutoMigrate(&DatabaseMigration{}); err != nil {
		return fmt.Errorf("failed to create 'database_migration' table: %w", err)
	}

	var count int64
	if err := db.Model(&DatabaseMigration{}).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to query migration records: %w", err)
	}
	if count > 0 {
		return nil
	}
	initialRecord := DatabaseMigration{Version: 0}
	if err := db.Create(&initialRecord).Error; err != nil {
		return fmt.Errorf("failed to insert initial migration record: %w", err)
	}
	return nil
}

func (d *DBMigrator) lockVersion(ctx context.Context, tx *gorm.DB) (DatabaseMigration, error) {
	var m DatabaseMigration

	if err := tx.WithContext(ctx).
		Raw("SELECT id, version FROM database_migration ORDER BY id LIMIT 1").
		Scan(&m).Error; err != nil {
		return m, err
	}

	if m.ID == 0 {
		return m, fmt.Errorf("no row found in database_migration")
	}

	if err := tx.WithContext(ctx).
		Raw("SELECT id, version FROM database_migration WHERE id = ? FOR UPDATE", m.ID).
		Scan(&m).Error; err != nil {
		return m, err
	}

	return m, nil
}

// Migrate applies pending migrations inside one transaction holding the
// version row lock, so concurrent gateways migrate once.
func (d *DBMigrator) Migrate(ctx context.Context) error {
	if err := d.initialize(); err != nil {
		return err
	}
	sv := NewSchemaVersion()

	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := d.lockVersion(ctx, tx)
		if err != nil {
			return err
		}
		pending := sv.Pending(current.Version)
		if len(pending) == 0 {
			return nil
		}
		for _, m := range pending {
			for _, stmt := range m.Statements {
				if err := tx.Exec(stmt).Error; err != nil {
					return fmt.Errorf("migration %d failed: %w", m.Version, err)
				}
			}
		}
		return tx.Model(&DatabaseMigration{}).
			Where("id = ?", current.ID).
			Update("version", sv.Latest()).Error
	})
}
