// Package gormstore implements the inventory store on GORM. It registers
// under both the "postgres" and "sqlite" plugin names; everything except the
// dialector is shared between the two.
package gormstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/helixmapr/helixmapr/internal/config"
	"github.com/helixmapr/helixmapr/internal/model"
	registrycache "github.com/helixmapr/helixmapr/internal/registry/cache"
	registrymigrate "github.com/helixmapr/helixmapr/internal/registry/migrate"
	registrystore "github.com/helixmapr/helixmapr/internal/registry/store"
	"github.com/helixmapr/helixmapr/internal/security"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func init() {
	registrystore.Register(registrystore.Plugin{
		Name: "postgres",
		Loader: func(ctx context.Context) (registrystore.InventoryStore, error) {
			cfg := config.FromContext(ctx)
			return open(ctx, cfg, postgres.Open(cfg.DBURL))
		},
	})
	registrystore.Register(registrystore.Plugin{
		Name: "sqlite",
		Loader: func(ctx context.Context) (registrystore.InventoryStore, error) {
			cfg := config.FromContext(ctx)
			return open(ctx, cfg, sqlite.Open(cfg.DBURL))
		},
	})

	registrymigrate.Register(registrymigrate.Plugin{Order: 100, Migrator: &schemaMigrator{}})
}

// migratedModels is every persistent type, in FK dependency order.
var migratedModels = []interface{}{
	&model.User{},
	&model.Organization{},
	&model.OrganizationMembership{},
	&model.ResearchDatabase{},
	&model.DatabaseMembership{},
	&model.Organism{},
	&model.Location{},
	&model.Plasmid{},
	&model.Strain{},
	&model.StrainPlasmid{},
	&model.StrainVersion{},
	&model.Attachment{},
	&model.FieldGroup{},
	&model.FieldDefinition{},
	&model.FieldValue{},
	&model.AuditLog{},
}

type schemaMigrator struct{}

func (m *schemaMigrator) Name() string { return "inventory-schema" }
func (m *schemaMigrator) Migrate(ctx context.Context) error {
	cfg := config.FromContext(ctx)
	if cfg != nil && !cfg.DatastoreMigrateAtStart {
		return nil
	}
	log.Info("Running migration", "name", m.Name())
	db, err := gorm.Open(dialectorFor(cfg), &gorm.Config{})
	if err != nil {
		return fmt.Errorf("migration: failed to connect: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	if err := db.WithContext(ctx).AutoMigrate(migratedModels...); err != nil {
		return fmt.Errorf("migration: failed to migrate schema: %w", err)
	}
	log.Info("Schema migration complete")
	return nil
}

func dialectorFor(cfg *config.Config) gorm.Dialector {
	if cfg != nil && cfg.DatastoreType == "sqlite" {
		return sqlite.Open(cfg.DBURL)
	}
	return postgres.Open(cfg.DBURL)
}

func open(ctx context.Context, cfg *config.Config, dialector gorm.Dialector) (*GormStore, error) {
	db, err := gorm.Open(dialector, &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying db: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.DBMaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.DBMaxIdleConns)
	if security.DBPoolMaxConnections != nil {
		security.DBPoolMaxConnections.Set(float64(cfg.DBMaxOpenConns))
	}

	// Periodically update the open connections gauge.
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if security.DBPoolOpenConnections != nil {
					security.DBPoolOpenConnections.Set(float64(sqlDB.Stats().OpenConnections))
				}
			}
		}
	}()

	return &GormStore{
		db:          db,
		cfg:         cfg,
		schemaCache: registrycache.SchemaCacheFromContext(ctx),
	}, nil
}

// GormStore implements InventoryStore using GORM.
type GormStore struct {
	db          *gorm.DB
	cfg         *config.Config
	schemaCache registrycache.SchemaCache
}

func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// --- Helpers ---

// isUniqueViolation reports whether err is a uniqueness violation from either
// backend. GORM's TranslateError covers most paths; raw SQL goes through the
// driver checks.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func normalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// getUser resolves the authenticated principal. Unknown principals are
// forbidden rather than not-found so probing cannot distinguish the two.
func (s *GormStore) getUser(ctx context.Context, tx *gorm.DB, username string) (*model.User, error) {
	username = normalizeUsername(username)
	if username == "" {
		return nil, &ForbiddenError{}
	}
	var user model.User
	result := tx.WithContext(ctx).Where("username = ?", username).Limit(1).Find(&user)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to look up user: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, &ForbiddenError{}
	}
	if !user.IsSuperuser && s.cfg != nil && s.cfg.SuperuserSet()[user.Username] {
		user.IsSuperuser = true
	}
	return &user, nil
}

// requireDatabaseRole checks that userID holds at least minRole on the given
// database. Superusers resolve to owner. The database row is returned so
// callers do not refetch it.
func (s *GormStore) requireDatabaseRole(ctx context.Context, tx *gorm.DB, userID string, databaseID uint, minRole model.DatabaseRole) (*model.User, *model.ResearchDatabase, model.DatabaseRole, error) {
	user, err := s.getUser(ctx, tx, userID)
	if err != nil {
		return nil, nil, model.RoleNone, err
	}

	var db model.ResearchDatabase
	result := tx.WithContext(ctx).Where("id = ?", databaseID).Limit(1).Find(&db)
	if result.Error != nil {
		return nil, nil, model.RoleNone, fmt.Errorf("failed to look up database: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, nil, model.RoleNone, &NotFoundError{Resource: "database", ID: fmt.Sprint(databaseID)}
	}

	var membership *model.DatabaseMembership
	var m model.DatabaseMembership
	result = tx.WithContext(ctx).Where("database_id = ? AND user_id = ?", databaseID, user.ID).Limit(1).Find(&m)
	if result.Error != nil {
		return nil, nil, model.RoleNone, fmt.Errorf("failed to check access: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		membership = &m
	}

	role := model.ResolveDatabaseRole(user, membership)
	if !role.IsAtLeast(minRole) {
		return nil, nil, model.RoleNone, &ForbiddenError{}
	}
	return user, &db, role, nil
}

// requireOrganizationRole is the organization-level counterpart.
func (s *GormStore) requireOrganizationRole(ctx context.Context, tx *gorm.DB, userID string, orgID uint, minRole model.OrganizationRole) (*model.User, *model.Organization, model.OrganizationRole, error) {
	user, err := s.getUser(ctx, tx, userID)
	if err != nil {
		return nil, nil, model.OrgRoleNone, err
	}

	var org model.Organization
	result := tx.WithContext(ctx).Where("id = ?", orgID).Limit(1).Find(&org)
	if result.Error != nil {
		return nil, nil, model.OrgRoleNone, fmt.Errorf("failed to look up organization: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, nil, model.OrgRoleNone, &NotFoundError{Resource: "organization", ID: fmt.Sprint(orgID)}
	}

	var membership *model.OrganizationMembership
	var m model.OrganizationMembership
	result = tx.WithContext(ctx).Where("organization_id = ? AND user_id = ?", orgID, user.ID).Limit(1).Find(&m)
	if result.Error != nil {
		return nil, nil, model.OrgRoleNone, fmt.Errorf("failed to check access: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		membership = &m
	}

	role := model.ResolveOrganizationRole(user, membership)
	if !role.IsAtLeast(minRole) {
		return nil, nil, model.OrgRoleNone, &ForbiddenError{}
	}
	return user, &org, role, nil
}

// writeAudit appends one audit row inside the caller's transaction.
func writeAudit(ctx context.Context, tx *gorm.DB, databaseID *uint, userID *uint, action, objectType, objectID string, metadata map[string]interface{}) error {
	entry := model.AuditLog{
		DatabaseID: databaseID,
		UserID:     userID,
		Action:     action,
		ObjectType: objectType,
		ObjectID:   objectID,
		Metadata:   metadata,
		Timestamp:  time.Now().UTC(),
	}
	if err := tx.WithContext(ctx).Create(&entry).Error; err != nil {
		return fmt.Errorf("failed to write audit entry: %w", err)
	}
	return nil
}
