package gormstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/helixmapr/helixmapr/internal/model"
	registrystore "github.com/helixmapr/helixmapr/internal/registry/store"
	"github.com/helixmapr/helixmapr/internal/snapshot"
	"gorm.io/gorm"
)

// ExportOrganization walks one organization's relational subtree into a
// snapshot document. Foreign keys keep their source row ids; restore rebuilds
// the id mappings.
func (s *GormStore) ExportOrganization(ctx context.Context, userID string, orgID uint) (*snapshot.Document, error) {
	var doc *snapshot.Document
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		_, org, _, err := s.requireOrganizationRole(ctx, tx, userID, orgID, model.OrgRoleAdmin)
		if err != nil {
			return err
		}

		doc = &snapshot.Document{
			Version:    snapshot.Version,
			ExportedAt: time.Now().UTC().Format(time.RFC3339),
			Organization: snapshot.Organization{
				ID:          org.ID,
				UUID:        org.UUID,
				Name:        org.Name,
				Slug:        org.Slug,
				CreatedByID: org.CreatedByID,
				CreatedAt:   org.CreatedAt.UTC().Format(time.RFC3339),
			},
		}

		users := newUserRefResolver(tx.WithContext(ctx))

		var members []model.OrganizationMembership
		if err := tx.Where("organization_id = ?", orgID).Order("user_id").Find(&members).Error; err != nil {
			return err
		}
		for _, m := range members {
			ref, err := users.refByID(m.UserID)
			if err != nil {
				return err
			}
			doc.Members = append(doc.Members, snapshot.Member{
				UserRef:  ref,
				Role:     m.Role,
				JoinedAt: m.JoinedAt.UTC().Format(time.RFC3339),
			})
		}

		var databases []model.ResearchDatabase
		if err := tx.Where("organization_id = ?", orgID).Order("id").Find(&databases).Error; err != nil {
			return err
		}
		dbIDs := make([]uint, 0, len(databases))
		for _, db := range databases {
			dbIDs = append(dbIDs, db.ID)
			doc.Databases = append(doc.Databases, snapshot.Database{
				ID:          db.ID,
				Name:        db.Name,
				Description: db.Description,
				CreatedByID: db.CreatedByID,
				CreatedAt:   db.CreatedAt.UTC().Format(time.RFC3339),
			})
		}
		if len(dbIDs) == 0 {
			return nil
		}

		var dbMembers []model.DatabaseMembership
		if err := tx.Where("database_id IN ?", dbIDs).Order("database_id, user_id").Find(&dbMembers).Error; err != nil {
			return err
		}
		for _, m := range dbMembers {
			ref, err := users.refByID(m.UserID)
			if err != nil {
				return err
			}
			doc.DatabaseMemberships = append(doc.DatabaseMemberships, snapshot.DatabaseMembership{
				UserRef:    ref,
				DatabaseID: m.DatabaseID,
				Role:       m.Role,
				CreatedAt:  m.CreatedAt.UTC().Format(time.RFC3339),
			})
		}

		var organisms []model.Organism
		if err := tx.Where("database_id IN ?", dbIDs).Order("id").Find(&organisms).Error; err != nil {
			return err
		}
		for _, o := range organisms {
			doc.Organisms = append(doc.Organisms, snapshot.Organism{ID: o.ID, DatabaseID: o.DatabaseID, Name: o.Name})
		}

		var locations []model.Location
		if err := tx.Where("database_id IN ?", dbIDs).Order("id").Find(&locations).Error; err != nil {
			return err
		}
		for _, l := range locations {
			doc.Locations = append(doc.Locations, snapshot.Location{
				ID: l.ID, DatabaseID: l.DatabaseID,
				Building: l.Building, Room: l.Room, Freezer: l.Freezer,
				Box: l.Box, Position: l.Position,
			})
		}

		var plasmids []model.Plasmid
		if err := tx.Where("database_id IN ?", dbIDs).Order("id").Find(&plasmids).Error; err != nil {
			return err
		}
		for _, p := range plasmids {
			doc.Plasmids = append(doc.Plasmids, snapshot.Plasmid{
				ID: p.ID, DatabaseID: p.DatabaseID, Name: p.Name,
				ResistanceMarker: p.ResistanceMarker, Notes: p.Notes,
			})
		}

		var strains []model.Strain
		if err := tx.Where("database_id IN ?", dbIDs).Order("id").Find(&strains).Error; err != nil {
			return err
		}
		strainIDs := make([]uint, 0, len(strains))
		for _, st := range strains {
			strainIDs = append(strainIDs, st.ID)
			doc.Strains = append(doc.Strains, snapshot.Strain{
				ID:              st.ID,
				DatabaseID:      st.DatabaseID,
				StrainID:        st.StrainID,
				Name:            st.Name,
				OrganismID:      st.OrganismID,
				Genotype:        st.Genotype,
				SelectiveMarker: st.SelectiveMarker,
				Comments:        st.Comments,
				LocationID:      st.LocationID,
				Status:          st.Status,
				IsArchived:      st.IsArchived,
				ArchivedAt:      timePtrString(st.ArchivedAt),
				ArchivedByID:    st.ArchivedByID,
				CreatedByID:     st.CreatedByID,
				CreatedAt:       st.CreatedAt.UTC().Format(time.RFC3339),
				UpdatedAt:       st.UpdatedAt.UTC().Format(time.RFC3339),
			})
		}

		if len(strainIDs) > 0 {
			var links []model.StrainPlasmid
			if err := tx.Where("strain_id IN ?", strainIDs).Order("strain_id, plasmid_id").Find(&links).Error; err != nil {
				return err
			}
			for _, l := range links {
				doc.StrainPlasmids = append(doc.StrainPlasmids, snapshot.StrainPlasmid{StrainID: l.StrainID, PlasmidID: l.PlasmidID})
			}
		}

		var groups []model.FieldGroup
		if err := tx.Where("database_id IN ?", dbIDs).Order("id").Find(&groups).Error; err != nil {
			return err
		}
		for _, g := range groups {
			doc.FieldGroups = append(doc.FieldGroups, snapshot.FieldGroup{ID: g.ID, DatabaseID: g.DatabaseID, Name: g.Name, Order: g.Order})
		}

		var defs []model.FieldDefinition
		if err := tx.Where("database_id IN ?", dbIDs).Order("id").Find(&defs).Error; err != nil {
			return err
		}
		defIDs := make([]uint, 0, len(defs))
		for _, d := range defs {
			defIDs = append(defIDs, d.ID)
			doc.FieldDefinitions = append(doc.FieldDefinitions, snapshot.FieldDefinition{
				ID:               d.ID,
				DatabaseID:       d.DatabaseID,
				Name:             d.Name,
				Label:            d.Label,
				Key:              d.Key,
				FieldType:        d.FieldType,
				Choices:          d.Choices,
				DefaultValue:     d.DefaultValue,
				HelpText:         d.HelpText,
				Required:         d.Required,
				IsUnique:         d.IsUnique,
				ConditionalLogic: d.ConditionalLogic,
				Order:            d.Order,
				GroupID:          d.GroupID,
				VisibleToRoles:   d.VisibleToRoles,
				EditableToRoles:  d.EditableToRoles,
				RelatedKind:      d.RelatedKind,
				CreatedByID:      d.CreatedByID,
				CreatedAt:        d.CreatedAt.UTC().Format(time.RFC3339),
			})
		}

		if len(defIDs) > 0 {
			var values []model.FieldValue
			if err := tx.Where("definition_id IN ?", defIDs).Order("strain_id, definition_id").Find(&values).Error; err != nil {
				return err
			}
			for _, v := range values {
				doc.FieldValues = append(doc.FieldValues, snapshot.FieldValue{
					StrainID:          v.StrainID,
					DefinitionID:      v.DefinitionID,
					ValueText:         v.ValueText,
					ValueLongText:     v.ValueLongText,
					ValueInteger:      v.ValueInteger,
					ValueDecimal:      v.ValueDecimal,
					ValueDate:         v.ValueDate,
					ValueBoolean:      v.ValueBoolean,
					ValueSingleSelect: v.ValueSingleSelect,
					ValueMultiSelect:  v.ValueMultiSelect,
					ValueFKKind:       v.ValueFKKind,
					ValueFKID:         v.ValueFKID,
					ValueFile:         v.ValueFile,
					ValueURL:          v.ValueURL,
					ValueEmail:        v.ValueEmail,
				})
			}
		}

		var logs []model.AuditLog
		if err := tx.Where("database_id IN ?", dbIDs).Order("id").Find(&logs).Error; err != nil {
			return err
		}
		for _, entry := range logs {
			var ref snapshot.UserRef
			if entry.UserID != nil {
				ref, err = users.refByID(*entry.UserID)
				if err != nil {
					return err
				}
			}
			doc.AuditLogs = append(doc.AuditLogs, snapshot.AuditLog{
				DatabaseID: entry.DatabaseID,
				UserRef:    ref,
				Action:     entry.Action,
				ObjectType: entry.ObjectType,
				ObjectID:   entry.ObjectID,
				Metadata:   entry.Metadata,
				Timestamp:  entry.Timestamp.UTC().Format(time.RFC3339),
			})
		}

		return nil
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// RestoreOrganization replaces the organization's databases with a snapshot's
// content. Version and organization identity are checked before any row is
// touched; a mismatch is a conflict and leaves the live data untouched.
func (s *GormStore) RestoreOrganization(ctx context.Context, userID string, orgID uint, doc *snapshot.Document) (*registrystore.RestoreResult, error) {
	if doc == nil {
		return nil, &ValidationError{Field: "snapshot", Message: "snapshot document is required"}
	}

	result := &registrystore.RestoreResult{}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		actor, org, _, err := s.requireOrganizationRole(ctx, tx, userID, orgID, model.OrgRoleAdmin)
		if err != nil {
			return err
		}
		if doc.Version != snapshot.Version {
			return &ConflictError{
				Message: fmt.Sprintf("unsupported snapshot version %q", doc.Version),
				Code:    "unsupported_version",
			}
		}
		if !strings.EqualFold(doc.Organization.UUID, org.UUID) {
			return &ConflictError{
				Message: "snapshot belongs to a different organization",
				Code:    "organization_mismatch",
				Details: map[string]interface{}{"snapshotUuid": doc.Organization.UUID, "organizationUuid": org.UUID},
			}
		}

		var existing []model.ResearchDatabase
		if err := tx.Where("organization_id = ?", orgID).Find(&existing).Error; err != nil {
			return err
		}
		for _, db := range existing {
			if err := tx.Where("database_id = ?", db.ID).Delete(&model.AuditLog{}).Error; err != nil {
				return err
			}
			if err := deleteDatabaseRows(ctx, tx, db.ID); err != nil {
				return err
			}
			s.invalidateSchema(ctx, db.ID)
		}
		if err := tx.Where("organization_id = ?", orgID).Delete(&model.OrganizationMembership{}).Error; err != nil {
			return err
		}

		users := newUserRefResolver(tx.WithContext(ctx))
		resolve := func(ref snapshot.UserRef) *uint {
			if id := users.resolve(ref); id != nil {
				return id
			}
			return &actor.ID
		}

		actorIsMember := false
		for _, m := range doc.Members {
			id := resolve(m.UserRef)
			role := m.Role
			if role != model.OrgRoleAdmin && role != model.OrgRoleMember {
				role = model.OrgRoleMember
			}
			if *id == actor.ID {
				actorIsMember = true
				role = model.OrgRoleAdmin
			}
			membership := model.OrganizationMembership{
				OrganizationID: orgID,
				UserID:         *id,
				Role:           role,
				JoinedAt:       parseTimeOrNow(m.JoinedAt),
			}
			if err := tx.Create(&membership).Error; err != nil {
				if isUniqueViolation(err) {
					continue
				}
				return err
			}
			result.Members++
		}
		if !actorIsMember {
			// The acting admin always survives a restore.
			membership := model.OrganizationMembership{
				OrganizationID: orgID,
				UserID:         actor.ID,
				Role:           model.OrgRoleAdmin,
				JoinedAt:       time.Now().UTC(),
			}
			if err := tx.Create(&membership).Error; err != nil {
				return err
			}
			result.Members++
		}

		databaseIDs := map[uint]uint{}
		for _, db := range doc.Databases {
			row := model.ResearchDatabase{
				OrganizationID: orgID,
				Name:           db.Name,
				Description:    db.Description,
				CreatedByID:    users.remapOptional(db.CreatedByID, resolve),
				CreatedAt:      parseTimeOrNow(db.CreatedAt),
			}
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
			databaseIDs[db.ID] = row.ID
			result.Databases++
		}

		for _, m := range doc.DatabaseMemberships {
			newDB, ok := databaseIDs[m.DatabaseID]
			if !ok {
				continue
			}
			role := m.Role
			if !role.IsAtLeast(model.RoleViewer) {
				continue
			}
			membership := model.DatabaseMembership{
				DatabaseID: newDB,
				UserID:     *resolve(m.UserRef),
				Role:       role,
				CreatedAt:  parseTimeOrNow(m.CreatedAt),
			}
			if err := tx.Create(&membership).Error; err != nil && !isUniqueViolation(err) {
				return err
			}
		}

		organismIDs := map[uint]uint{}
		for _, o := range doc.Organisms {
			newDB, ok := databaseIDs[o.DatabaseID]
			if !ok {
				continue
			}
			row := model.Organism{DatabaseID: newDB, Name: o.Name}
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
			organismIDs[o.ID] = row.ID
			result.Organisms++
		}

		locationIDs := map[uint]uint{}
		for _, l := range doc.Locations {
			newDB, ok := databaseIDs[l.DatabaseID]
			if !ok {
				continue
			}
			row := model.Location{
				DatabaseID: newDB,
				Building:   l.Building, Room: l.Room, Freezer: l.Freezer,
				Box: l.Box, Position: l.Position,
			}
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
			locationIDs[l.ID] = row.ID
			result.Locations++
		}

		plasmidIDs := map[uint]uint{}
		for _, p := range doc.Plasmids {
			newDB, ok := databaseIDs[p.DatabaseID]
			if !ok {
				continue
			}
			row := model.Plasmid{DatabaseID: newDB, Name: p.Name, ResistanceMarker: p.ResistanceMarker, Notes: p.Notes}
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
			plasmidIDs[p.ID] = row.ID
			result.Plasmids++
		}

		groupIDs := map[uint]uint{}
		for _, g := range doc.FieldGroups {
			newDB, ok := databaseIDs[g.DatabaseID]
			if !ok {
				continue
			}
			row := model.FieldGroup{DatabaseID: newDB, Name: g.Name, Order: g.Order}
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
			groupIDs[g.ID] = row.ID
		}

		definitionIDs := map[uint]uint{}
		definitionsByNew := map[uint]model.FieldDefinition{}
		for _, d := range doc.FieldDefinitions {
			newDB, ok := databaseIDs[d.DatabaseID]
			if !ok {
				continue
			}
			row := model.FieldDefinition{
				OrganizationID:   orgID,
				DatabaseID:       newDB,
				Name:             d.Name,
				Label:            d.Label,
				Key:              d.Key,
				FieldType:        d.FieldType,
				Choices:          d.Choices,
				DefaultValue:     d.DefaultValue,
				HelpText:         d.HelpText,
				Required:         d.Required,
				IsUnique:         d.IsUnique,
				ConditionalLogic: d.ConditionalLogic,
				Order:            d.Order,
				VisibleToRoles:   d.VisibleToRoles,
				EditableToRoles:  d.EditableToRoles,
				RelatedKind:      d.RelatedKind,
				CreatedByID:      users.remapOptional(d.CreatedByID, resolve),
				CreatedAt:        parseTimeOrNow(d.CreatedAt),
			}
			if d.GroupID != nil {
				if newGroup, ok := groupIDs[*d.GroupID]; ok {
					row.GroupID = &newGroup
				}
			}
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
			definitionIDs[d.ID] = row.ID
			definitionsByNew[row.ID] = row
			result.FieldDefinitions++
		}

		strainIDs := map[uint]uint{}
		for _, st := range doc.Strains {
			newDB, ok := databaseIDs[st.DatabaseID]
			if !ok {
				continue
			}
			newOrganism, ok := organismIDs[st.OrganismID]
			if !ok {
				continue
			}
			row := model.Strain{
				DatabaseID:      newDB,
				StrainID:        st.StrainID,
				Name:            st.Name,
				OrganismID:      newOrganism,
				Genotype:        st.Genotype,
				SelectiveMarker: st.SelectiveMarker,
				Comments:        st.Comments,
				Status:          st.Status,
				IsArchived:      st.IsArchived,
				ArchivedAt:      parseTimePtr(st.ArchivedAt),
				ArchivedByID:    users.remapOptional(st.ArchivedByID, resolve),
				CreatedByID:     users.remapOptional(st.CreatedByID, resolve),
				CreatedAt:       parseTimeOrNow(st.CreatedAt),
				UpdatedAt:       parseTimeOrNow(st.UpdatedAt),
			}
			if st.LocationID != nil {
				if newLocation, ok := locationIDs[*st.LocationID]; ok {
					row.LocationID = &newLocation
				}
			}
			if row.Status == "" {
				row.Status = model.StrainActive
			}
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
			strainIDs[st.ID] = row.ID
			result.Strains++
		}

		for _, link := range doc.StrainPlasmids {
			newStrain, okS := strainIDs[link.StrainID]
			newPlasmid, okP := plasmidIDs[link.PlasmidID]
			if !okS || !okP {
				continue
			}
			row := model.StrainPlasmid{StrainID: newStrain, PlasmidID: newPlasmid}
			if err := tx.Create(&row).Error; err != nil && !isUniqueViolation(err) {
				return err
			}
		}

		for _, v := range doc.FieldValues {
			newStrain, okS := strainIDs[v.StrainID]
			newDef, okD := definitionIDs[v.DefinitionID]
			if !okS || !okD {
				continue
			}
			row := model.FieldValue{
				StrainID:          newStrain,
				DefinitionID:      newDef,
				ValueText:         v.ValueText,
				ValueLongText:     v.ValueLongText,
				ValueInteger:      v.ValueInteger,
				ValueDecimal:      v.ValueDecimal,
				ValueDate:         v.ValueDate,
				ValueBoolean:      v.ValueBoolean,
				ValueSingleSelect: v.ValueSingleSelect,
				ValueMultiSelect:  v.ValueMultiSelect,
				ValueFKKind:       v.ValueFKKind,
				ValueFile:         v.ValueFile,
				ValueURL:          v.ValueURL,
				ValueEmail:        v.ValueEmail,
			}
			if v.ValueFKID != nil {
				kind := definitionsByNew[newDef].RelatedKind
				if v.ValueFKKind != nil {
					kind = *v.ValueFKKind
				}
				if mapped := remapEntityRef(kind, *v.ValueFKID, organismIDs, plasmidIDs, locationIDs); mapped != nil {
					row.ValueFKID = mapped
				}
			}
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
			result.FieldValues++
		}

		for _, entry := range doc.AuditLogs {
			row := model.AuditLog{
				Action:     entry.Action,
				ObjectType: entry.ObjectType,
				ObjectID:   entry.ObjectID,
				Metadata:   entry.Metadata,
				Timestamp:  parseTimeOrNow(entry.Timestamp),
				UserID:     users.resolve(entry.UserRef),
			}
			if entry.DatabaseID != nil {
				newDB, ok := databaseIDs[*entry.DatabaseID]
				if !ok {
					continue
				}
				row.DatabaseID = &newDB
			}
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
			result.AuditLogs++
		}

		return writeAudit(ctx, tx, nil, &actor.ID, model.AuditSnapshotRestore, "organization",
			fmt.Sprint(orgID), map[string]interface{}{
				"databases": result.Databases,
				"strains":   result.Strains,
				"version":   doc.Version,
			})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func remapEntityRef(kind model.RelatedKind, oldID uint, organisms, plasmids, locations map[uint]uint) *uint {
	var table map[uint]uint
	switch kind {
	case model.RelatedOrganism:
		table = organisms
	case model.RelatedPlasmid:
		table = plasmids
	case model.RelatedLocation:
		table = locations
	default:
		return nil
	}
	if newID, ok := table[oldID]; ok {
		return &newID
	}
	return nil
}

// userRefResolver caches live user lookups during export and restore.
type userRefResolver struct {
	tx         *gorm.DB
	byID       map[uint]*model.User
	byUsername map[string]*model.User
	byEmail    map[string]*model.User
}

func newUserRefResolver(tx *gorm.DB) *userRefResolver {
	return &userRefResolver{
		tx:         tx,
		byID:       map[uint]*model.User{},
		byUsername: map[string]*model.User{},
		byEmail:    map[string]*model.User{},
	}
}

func (r *userRefResolver) refByID(id uint) (snapshot.UserRef, error) {
	if user, ok := r.byID[id]; ok {
		if user == nil {
			return snapshot.UserRef{UserID: &id}, nil
		}
		return snapshot.UserRef{UserID: &user.ID, Username: user.Username, Email: user.Email}, nil
	}
	var user model.User
	result := r.tx.Where("id = ?", id).Limit(1).Find(&user)
	if result.Error != nil {
		return snapshot.UserRef{}, result.Error
	}
	if result.RowsAffected == 0 {
		r.byID[id] = nil
		return snapshot.UserRef{UserID: &id}, nil
	}
	r.cache(&user)
	return snapshot.UserRef{UserID: &user.ID, Username: user.Username, Email: user.Email}, nil
}

// resolve maps a snapshot user reference to a live user id, trying the id,
// then the username, then the email. Returns nil when nothing matches.
func (r *userRefResolver) resolve(ref snapshot.UserRef) *uint {
	if ref.UserID != nil {
		if user := r.lookupByID(*ref.UserID); user != nil {
			// The id only counts when the username still agrees, so stale
			// snapshots do not credit rows to a recycled id.
			if ref.Username == "" || strings.EqualFold(user.Username, ref.Username) {
				return &user.ID
			}
		}
	}
	if ref.Username != "" {
		key := normalizeUsername(ref.Username)
		if user, ok := r.byUsername[key]; ok {
			if user != nil {
				return &user.ID
			}
		} else if user := r.fetch("username = ?", key); user != nil {
			return &user.ID
		} else {
			r.byUsername[key] = nil
		}
	}
	if ref.Email != "" {
		key := strings.ToLower(strings.TrimSpace(ref.Email))
		if user, ok := r.byEmail[key]; ok {
			if user != nil {
				return &user.ID
			}
		} else if user := r.fetch("LOWER(email) = ?", key); user != nil {
			return &user.ID
		} else {
			r.byEmail[key] = nil
		}
	}
	return nil
}

func (r *userRefResolver) lookupByID(id uint) *model.User {
	if user, ok := r.byID[id]; ok {
		return user
	}
	user := r.fetch("id = ?", id)
	if user == nil {
		r.byID[id] = nil
	}
	return user
}

func (r *userRefResolver) fetch(cond string, arg interface{}) *model.User {
	var user model.User
	result := r.tx.Where(cond, arg).Limit(1).Find(&user)
	if result.Error != nil || result.RowsAffected == 0 {
		return nil
	}
	r.cache(&user)
	return &user
}

func (r *userRefResolver) cache(user *model.User) {
	u := *user
	r.byID[u.ID] = &u
	r.byUsername[normalizeUsername(u.Username)] = &u
	if u.Email != "" {
		r.byEmail[strings.ToLower(u.Email)] = &u
	}
}

// remapOptional resolves an exported user id through the fallback chain,
// substituting the acting user when the reference cannot be resolved.
func (r *userRefResolver) remapOptional(id *uint, resolve func(snapshot.UserRef) *uint) *uint {
	if id == nil {
		return nil
	}
	ref, err := r.refByID(*id)
	if err != nil {
		return nil
	}
	return resolve(ref)
}

func timePtrString(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func parseTimePtr(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil
	}
	t = t.UTC()
	return &t
}

func parseTimeOrNow(s string) time.Time {
	if t := parseTimePtr(s); t != nil {
		return *t
	}
	return time.Now().UTC()
}
