package gormstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/helixmapr/helixmapr/internal/fields"
	"github.com/helixmapr/helixmapr/internal/model"
	"gorm.io/gorm"
)

func (s *GormStore) EnsureUser(ctx context.Context, username string, email string, displayName string) (*model.User, error) {
	username = normalizeUsername(username)
	if username == "" {
		return nil, &ValidationError{Field: "username", Message: "must not be empty"}
	}

	var user model.User
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Where("username = ?", username).Limit(1).Find(&user)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected > 0 {
			updates := map[string]interface{}{}
			if email != "" && email != user.Email {
				updates["email"] = email
			}
			if displayName != "" && displayName != user.DisplayName {
				updates["display_name"] = displayName
			}
			if len(updates) == 0 {
				return nil
			}
			if err := tx.Model(&user).Updates(updates).Error; err != nil {
				return err
			}
			return tx.Where("username = ?", username).Take(&user).Error
		}

		user = model.User{
			Username:    username,
			Email:       email,
			DisplayName: displayName,
			CreatedAt:   time.Now().UTC(),
		}
		err := tx.Create(&user).Error
		if isUniqueViolation(err) {
			// Concurrent first login; fetch the winner.
			return tx.Where("username = ?", username).Take(&user).Error
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to ensure user: %w", err)
	}
	return &user, nil
}

func (s *GormStore) GetUser(ctx context.Context, username string) (*model.User, error) {
	username = normalizeUsername(username)
	var user model.User
	result := s.db.WithContext(ctx).Where("username = ?", username).Limit(1).Find(&user)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to look up user: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, &NotFoundError{Resource: "user", ID: username}
	}
	return &user, nil
}

// --- Organizations ---

func (s *GormStore) CreateOrganization(ctx context.Context, userID string, name string) (*model.Organization, error) {
	if name == "" {
		return nil, &ValidationError{Field: "name", Message: "must not be empty"}
	}

	var org model.Organization
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user, err := s.getUser(ctx, tx, userID)
		if err != nil {
			return err
		}
		org = model.Organization{
			UUID:        uuid.NewString(),
			Name:        name,
			Slug:        fields.Slugify(name),
			CreatedByID: &user.ID,
			CreatedAt:   time.Now().UTC(),
		}
		if err := tx.Create(&org).Error; err != nil {
			if isUniqueViolation(err) {
				return &ConflictError{Message: fmt.Sprintf("organization %q already exists", name)}
			}
			return err
		}
		membership := model.OrganizationMembership{
			OrganizationID: org.ID,
			UserID:         user.ID,
			Role:           model.OrgRoleAdmin,
			JoinedAt:       time.Now().UTC(),
		}
		return tx.Create(&membership).Error
	})
	if err != nil {
		return nil, err
	}
	return &org, nil
}

func (s *GormStore) ListOrganizations(ctx context.Context, userID string) ([]model.Organization, error) {
	user, err := s.getUser(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	var orgs []model.Organization
	q := s.db.WithContext(ctx).Order("name")
	if !user.IsSuperuser {
		q = q.Where("id IN (SELECT organization_id FROM organization_memberships WHERE user_id = ?)", user.ID)
	}
	if err := q.Find(&orgs).Error; err != nil {
		return nil, fmt.Errorf("failed to list organizations: %w", err)
	}
	return orgs, nil
}

func (s *GormStore) GetOrganization(ctx context.Context, userID string, orgID uint) (*model.Organization, error) {
	_, org, _, err := s.requireOrganizationRole(ctx, s.db, userID, orgID, model.OrgRoleMember)
	if err != nil {
		return nil, err
	}
	return org, nil
}

func (s *GormStore) ListOrganizationMembers(ctx context.Context, userID string, orgID uint) ([]model.OrganizationMembership, error) {
	if _, _, _, err := s.requireOrganizationRole(ctx, s.db, userID, orgID, model.OrgRoleMember); err != nil {
		return nil, err
	}
	var members []model.OrganizationMembership
	if err := s.db.WithContext(ctx).Where("organization_id = ?", orgID).Order("user_id").Find(&members).Error; err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	return members, nil
}

func (s *GormStore) AddOrganizationMember(ctx context.Context, userID string, orgID uint, memberUsername string, role model.OrganizationRole) (*model.OrganizationMembership, error) {
	if role != model.OrgRoleAdmin && role != model.OrgRoleMember {
		return nil, &ValidationError{Field: "role", Message: fmt.Sprintf("unknown role %q", role)}
	}

	var membership model.OrganizationMembership
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, _, _, err := s.requireOrganizationRole(ctx, tx, userID, orgID, model.OrgRoleAdmin); err != nil {
			return err
		}
		member, err := s.GetUser(ctx, normalizeUsername(memberUsername))
		if err != nil {
			return err
		}
		membership = model.OrganizationMembership{
			OrganizationID: orgID,
			UserID:         member.ID,
			Role:           role,
			JoinedAt:       time.Now().UTC(),
		}
		if err := tx.Create(&membership).Error; err != nil {
			if isUniqueViolation(err) {
				return &ConflictError{Message: fmt.Sprintf("user %q is already a member", memberUsername)}
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &membership, nil
}

func (s *GormStore) UpdateOrganizationMember(ctx context.Context, userID string, orgID uint, memberUsername string, role model.OrganizationRole) (*model.OrganizationMembership, error) {
	if role != model.OrgRoleAdmin && role != model.OrgRoleMember {
		return nil, &ValidationError{Field: "role", Message: fmt.Sprintf("unknown role %q", role)}
	}

	var membership model.OrganizationMembership
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, _, _, err := s.requireOrganizationRole(ctx, tx, userID, orgID, model.OrgRoleAdmin); err != nil {
			return err
		}
		member, err := s.GetUser(ctx, normalizeUsername(memberUsername))
		if err != nil {
			return err
		}
		result := tx.Where("organization_id = ? AND user_id = ?", orgID, member.ID).Limit(1).Find(&membership)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return &NotFoundError{Resource: "membership", ID: memberUsername}
		}
		if membership.Role == model.OrgRoleAdmin && role != model.OrgRoleAdmin {
			if err := requireAnotherOrgAdmin(ctx, tx, orgID, member.ID); err != nil {
				return err
			}
		}
		membership.Role = role
		return tx.Model(&model.OrganizationMembership{}).
			Where("organization_id = ? AND user_id = ?", orgID, member.ID).
			Update("role", role).Error
	})
	if err != nil {
		return nil, err
	}
	return &membership, nil
}

func (s *GormStore) RemoveOrganizationMember(ctx context.Context, userID string, orgID uint, memberUsername string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, _, _, err := s.requireOrganizationRole(ctx, tx, userID, orgID, model.OrgRoleAdmin); err != nil {
			return err
		}
		member, err := s.GetUser(ctx, normalizeUsername(memberUsername))
		if err != nil {
			return err
		}
		var membership model.OrganizationMembership
		result := tx.Where("organization_id = ? AND user_id = ?", orgID, member.ID).Limit(1).Find(&membership)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return &NotFoundError{Resource: "membership", ID: memberUsername}
		}
		if membership.Role == model.OrgRoleAdmin {
			if err := requireAnotherOrgAdmin(ctx, tx, orgID, member.ID); err != nil {
				return err
			}
		}
		return tx.Where("organization_id = ? AND user_id = ?", orgID, member.ID).
			Delete(&model.OrganizationMembership{}).Error
	})
}

// requireAnotherOrgAdmin rejects demoting or removing the last admin.
func requireAnotherOrgAdmin(ctx context.Context, tx *gorm.DB, orgID uint, excludeUserID uint) error {
	var count int64
	err := tx.WithContext(ctx).Model(&model.OrganizationMembership{}).
		Where("organization_id = ? AND role = ? AND user_id <> ?", orgID, model.OrgRoleAdmin, excludeUserID).
		Count(&count).Error
	if err != nil {
		return err
	}
	if count == 0 {
		return &ValidationError{Field: "role", Message: "organization must retain at least one admin"}
	}
	return nil
}

// --- Research databases ---

func (s *GormStore) CreateDatabase(ctx context.Context, userID string, orgID uint, name string, description string) (*model.ResearchDatabase, error) {
	if name == "" {
		return nil, &ValidationError{Field: "name", Message: "must not be empty"}
	}

	var db model.ResearchDatabase
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user, _, _, err := s.requireOrganizationRole(ctx, tx, userID, orgID, model.OrgRoleAdmin)
		if err != nil {
			return err
		}
		db = model.ResearchDatabase{
			OrganizationID: orgID,
			Name:           name,
			Description:    description,
			CreatedByID:    &user.ID,
			CreatedAt:      time.Now().UTC(),
		}
		if err := tx.Create(&db).Error; err != nil {
			return err
		}
		membership := model.DatabaseMembership{
			DatabaseID: db.ID,
			UserID:     user.ID,
			Role:       model.RoleOwner,
			CreatedAt:  time.Now().UTC(),
		}
		return tx.Create(&membership).Error
	})
	if err != nil {
		return nil, err
	}
	return &db, nil
}

func (s *GormStore) ListDatabases(ctx context.Context, userID string, orgID uint) ([]model.ResearchDatabase, error) {
	user, _, role, err := s.requireOrganizationRole(ctx, s.db, userID, orgID, model.OrgRoleMember)
	if err != nil {
		return nil, err
	}
	var dbs []model.ResearchDatabase
	q := s.db.WithContext(ctx).Where("organization_id = ?", orgID).Order("name")
	if role != model.OrgRoleAdmin {
		q = q.Where("id IN (SELECT database_id FROM database_memberships WHERE user_id = ?)", user.ID)
	}
	if err := q.Find(&dbs).Error; err != nil {
		return nil, fmt.Errorf("failed to list databases: %w", err)
	}
	return dbs, nil
}

func (s *GormStore) GetDatabase(ctx context.Context, userID string, databaseID uint) (*model.ResearchDatabase, error) {
	_, db, _, err := s.requireDatabaseRole(ctx, s.db, userID, databaseID, model.RoleViewer)
	if err != nil {
		return nil, err
	}
	return db, nil
}

func (s *GormStore) UpdateDatabase(ctx context.Context, userID string, databaseID uint, name *string, description *string) (*model.ResearchDatabase, error) {
	var db *model.ResearchDatabase
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		_, db, _, err = s.requireDatabaseRole(ctx, tx, userID, databaseID, model.RoleAdmin)
		if err != nil {
			return err
		}
		updates := map[string]interface{}{}
		if name != nil {
			if *name == "" {
				return &ValidationError{Field: "name", Message: "must not be empty"}
			}
			updates["name"] = *name
			db.Name = *name
		}
		if description != nil {
			updates["description"] = *description
			db.Description = *description
		}
		if len(updates) == 0 {
			return nil
		}
		return tx.Model(&model.ResearchDatabase{}).Where("id = ?", databaseID).Updates(updates).Error
	})
	if err != nil {
		return nil, err
	}
	return db, nil
}

// DeleteDatabase removes a database and all of its dependents, child rows
// first so FK constraints hold on both backends.
func (s *GormStore) DeleteDatabase(ctx context.Context, userID string, databaseID uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, _, _, err := s.requireDatabaseRole(ctx, tx, userID, databaseID, model.RoleOwner); err != nil {
			return err
		}
		return deleteDatabaseRows(ctx, tx, databaseID)
	})
}

func deleteDatabaseRows(ctx context.Context, tx *gorm.DB, databaseID uint) error {
	tx = tx.WithContext(ctx)
	strainIDs := tx.Model(&model.Strain{}).Where("database_id = ?", databaseID).Select("id")
	definitionIDs := tx.Model(&model.FieldDefinition{}).Where("database_id = ?", databaseID).Select("id")

	steps := []*gorm.DB{
		tx.Where("strain_id IN (?)", strainIDs).Delete(&model.FieldValue{}),
		tx.Where("definition_id IN (?)", definitionIDs).Delete(&model.FieldValue{}),
		tx.Where("database_id = ?", databaseID).Delete(&model.FieldDefinition{}),
		tx.Where("database_id = ?", databaseID).Delete(&model.FieldGroup{}),
		tx.Where("strain_id IN (?)", strainIDs).Delete(&model.StrainPlasmid{}),
		tx.Where("strain_id IN (?)", strainIDs).Delete(&model.StrainVersion{}),
		tx.Where("strain_id IN (?)", strainIDs).Delete(&model.Attachment{}),
		tx.Where("database_id = ?", databaseID).Delete(&model.Strain{}),
		tx.Where("database_id = ?", databaseID).Delete(&model.Plasmid{}),
		tx.Where("database_id = ?", databaseID).Delete(&model.Location{}),
		tx.Where("database_id = ?", databaseID).Delete(&model.Organism{}),
		tx.Where("database_id = ?", databaseID).Delete(&model.DatabaseMembership{}),
		tx.Where("id = ?", databaseID).Delete(&model.ResearchDatabase{}),
	}
	for _, step := range steps {
		if step.Error != nil {
			return fmt.Errorf("failed to delete database rows: %w", step.Error)
		}
	}
	return nil
}

func (s *GormStore) ResolveDatabaseRole(ctx context.Context, userID string, databaseID uint) (model.DatabaseRole, error) {
	_, _, role, err := s.requireDatabaseRole(ctx, s.db, userID, databaseID, model.RoleViewer)
	if err != nil {
		var forbidden *ForbiddenError
		if errors.As(err, &forbidden) {
			return model.RoleNone, nil
		}
		return model.RoleNone, err
	}
	return role, nil
}

// --- Database memberships ---

func (s *GormStore) ListDatabaseMembers(ctx context.Context, userID string, databaseID uint) ([]model.DatabaseMembership, error) {
	if _, _, _, err := s.requireDatabaseRole(ctx, s.db, userID, databaseID, model.RoleViewer); err != nil {
		return nil, err
	}
	var members []model.DatabaseMembership
	if err := s.db.WithContext(ctx).Where("database_id = ?", databaseID).Order("user_id").Find(&members).Error; err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	return members, nil
}

func (s *GormStore) UpsertDatabaseMember(ctx context.Context, userID string, databaseID uint, memberUsername string, role model.DatabaseRole) (*model.DatabaseMembership, error) {
	switch role {
	case model.RoleOwner, model.RoleAdmin, model.RoleEditor, model.RoleViewer:
	default:
		return nil, &ValidationError{Field: "role", Message: fmt.Sprintf("unknown role %q", role)}
	}

	var membership model.DatabaseMembership
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		required := model.RoleAdmin
		if role == model.RoleOwner {
			// Only an owner can mint another owner.
			required = model.RoleOwner
		}
		if _, _, _, err := s.requireDatabaseRole(ctx, tx, userID, databaseID, required); err != nil {
			return err
		}
		member, err := s.GetUser(ctx, normalizeUsername(memberUsername))
		if err != nil {
			return err
		}

		var existing model.DatabaseMembership
		result := tx.Where("database_id = ? AND user_id = ?", databaseID, member.ID).Limit(1).Find(&existing)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected > 0 {
			if existing.Role == model.RoleOwner && role != model.RoleOwner {
				if err := requireAnotherOwner(ctx, tx, databaseID, member.ID); err != nil {
					return err
				}
			}
			if err := tx.Model(&model.DatabaseMembership{}).
				Where("database_id = ? AND user_id = ?", databaseID, member.ID).
				Update("role", role).Error; err != nil {
				return err
			}
			existing.Role = role
			membership = existing
			return nil
		}

		membership = model.DatabaseMembership{
			DatabaseID: databaseID,
			UserID:     member.ID,
			Role:       role,
			CreatedAt:  time.Now().UTC(),
		}
		return tx.Create(&membership).Error
	})
	if err != nil {
		return nil, err
	}
	return &membership, nil
}

func (s *GormStore) RemoveDatabaseMember(ctx context.Context, userID string, databaseID uint, memberUsername string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, _, _, err := s.requireDatabaseRole(ctx, tx, userID, databaseID, model.RoleAdmin); err != nil {
			return err
		}
		member, err := s.GetUser(ctx, normalizeUsername(memberUsername))
		if err != nil {
			return err
		}
		var membership model.DatabaseMembership
		result := tx.Where("database_id = ? AND user_id = ?", databaseID, member.ID).Limit(1).Find(&membership)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return &NotFoundError{Resource: "membership", ID: memberUsername}
		}
		if membership.Role == model.RoleOwner {
			if err := requireAnotherOwner(ctx, tx, databaseID, member.ID); err != nil {
				return err
			}
		}
		return tx.Where("database_id = ? AND user_id = ?", databaseID, member.ID).
			Delete(&model.DatabaseMembership{}).Error
	})
}

// requireAnotherOwner rejects demoting or removing the last owner.
func requireAnotherOwner(ctx context.Context, tx *gorm.DB, databaseID uint, excludeUserID uint) error {
	var count int64
	err := tx.WithContext(ctx).Model(&model.DatabaseMembership{}).
		Where("database_id = ? AND role = ? AND user_id <> ?", databaseID, model.RoleOwner, excludeUserID).
		Count(&count).Error
	if err != nil {
		return err
	}
	if count == 0 {
		return &ValidationError{Field: "role", Message: "database must retain at least one owner"}
	}
	return nil
}

// --- Catalog ---

func (s *GormStore) ListOrganisms(ctx context.Context, userID string, databaseID uint) ([]model.Organism, error) {
	if _, _, _, err := s.requireDatabaseRole(ctx, s.db, userID, databaseID, model.RoleViewer); err != nil {
		return nil, err
	}
	var organisms []model.Organism
	if err := s.db.WithContext(ctx).Where("database_id = ?", databaseID).Order("name").Find(&organisms).Error; err != nil {
		return nil, fmt.Errorf("failed to list organisms: %w", err)
	}
	return organisms, nil
}

func (s *GormStore) CreateOrganism(ctx context.Context, userID string, databaseID uint, name string) (*model.Organism, error) {
	if name == "" {
		return nil, &ValidationError{Field: "name", Message: "must not be empty"}
	}
	var organism model.Organism
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, _, _, err := s.requireDatabaseRole(ctx, tx, userID, databaseID, model.RoleEditor); err != nil {
			return err
		}
		organism = model.Organism{DatabaseID: databaseID, Name: name}
		if err := tx.Create(&organism).Error; err != nil {
			if isUniqueViolation(err) {
				return &ConflictError{Message: fmt.Sprintf("organism %q already exists", name)}
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &organism, nil
}

func (s *GormStore) ListLocations(ctx context.Context, userID string, databaseID uint) ([]model.Location, error) {
	if _, _, _, err := s.requireDatabaseRole(ctx, s.db, userID, databaseID, model.RoleViewer); err != nil {
		return nil, err
	}
	var locations []model.Location
	if err := s.db.WithContext(ctx).Where("database_id = ?", databaseID).
		Order("building, room, freezer, box, position").Find(&locations).Error; err != nil {
		return nil, fmt.Errorf("failed to list locations: %w", err)
	}
	return locations, nil
}

func (s *GormStore) CreateLocation(ctx context.Context, userID string, databaseID uint, location model.Location) (*model.Location, error) {
	if location.Box == "" {
		return nil, &ValidationError{Field: "box", Message: "must not be empty"}
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, _, _, err := s.requireDatabaseRole(ctx, tx, userID, databaseID, model.RoleEditor); err != nil {
			return err
		}
		location.ID = 0
		location.DatabaseID = databaseID
		if err := tx.Create(&location).Error; err != nil {
			if isUniqueViolation(err) {
				return &ConflictError{Message: fmt.Sprintf("location %q already exists", location.Label())}
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &location, nil
}

func (s *GormStore) ListPlasmids(ctx context.Context, userID string, databaseID uint) ([]model.Plasmid, error) {
	if _, _, _, err := s.requireDatabaseRole(ctx, s.db, userID, databaseID, model.RoleViewer); err != nil {
		return nil, err
	}
	var plasmids []model.Plasmid
	if err := s.db.WithContext(ctx).Where("database_id = ?", databaseID).Order("name").Find(&plasmids).Error; err != nil {
		return nil, fmt.Errorf("failed to list plasmids: %w", err)
	}
	return plasmids, nil
}

func (s *GormStore) CreatePlasmid(ctx context.Context, userID string, databaseID uint, plasmid model.Plasmid) (*model.Plasmid, error) {
	if plasmid.Name == "" {
		return nil, &ValidationError{Field: "name", Message: "must not be empty"}
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, _, _, err := s.requireDatabaseRole(ctx, tx, userID, databaseID, model.RoleEditor); err != nil {
			return err
		}
		plasmid.ID = 0
		plasmid.DatabaseID = databaseID
		if err := tx.Create(&plasmid).Error; err != nil {
			if isUniqueViolation(err) {
				return &ConflictError{Message: fmt.Sprintf("plasmid %q already exists", plasmid.Name)}
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &plasmid, nil
}
