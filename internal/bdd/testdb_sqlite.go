package bdd

import (
	"context"
	"fmt"
	"sync"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SQLiteTestDB gives BDD steps direct access to the sqlite file backing the
// server under test.
type SQLiteTestDB struct {
	Path string

	mu sync.Mutex
	db *gorm.DB
}

// clearOrder lists every table, children before parents, so a plain DELETE
// sweep never trips a foreign key.
var clearOrder = []string{
	"audit_logs",
	"field_values",
	"field_definitions",
	"field_groups",
	"attachments",
	"strain_versions",
	"strain_plasmids",
	"strains",
	"plasmids",
	"locations",
	"organisms",
	"database_memberships",
	"research_databases",
	"organization_memberships",
	"organizations",
	"users",
}

func (t *SQLiteTestDB) conn() (*gorm.DB, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.db != nil {
		return t.db, nil
	}
	db, err := gorm.Open(sqlite.Open(t.Path), &gorm.Config{Logger: logger.Discard})
	if err != nil {
		return nil, fmt.Errorf("open test db: %w", err)
	}
	t.db = db
	return db, nil
}

// ClearAll wipes every row so scenarios start from an empty inventory.
func (t *SQLiteTestDB) ClearAll(ctx context.Context) error {
	db, err := t.conn()
	if err != nil {
		return err
	}
	for _, table := range clearOrder {
		if err := db.WithContext(ctx).Exec("DELETE FROM " + table).Error; err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	return nil
}

// ExecSQL runs a raw query and returns the rows as maps.
func (t *SQLiteTestDB) ExecSQL(ctx context.Context, query string) ([]map[string]interface{}, error) {
	db, err := t.conn()
	if err != nil {
		return nil, err
	}
	var rows []map[string]interface{}
	if err := db.WithContext(ctx).Raw(query).Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
