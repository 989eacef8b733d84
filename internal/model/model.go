package model

import (
	"time"
)

// DatabaseRole is a user's role within one research database.
type DatabaseRole string

const (
	RoleOwner  DatabaseRole = "owner"
	RoleAdmin  DatabaseRole = "admin"
	RoleEditor DatabaseRole = "editor"
	RoleViewer DatabaseRole = "viewer"
	// RoleNone means the user has no access to the database.
	RoleNone DatabaseRole = ""
)

// IsAtLeast returns true if the role is at least the given level.
func (r DatabaseRole) IsAtLeast(level DatabaseRole) bool {
	return databaseRoleRank(r) >= databaseRoleRank(level)
}

func databaseRoleRank(r DatabaseRole) int {
	switch r {
	case RoleOwner:
		return 4
	case RoleAdmin:
		return 3
	case RoleEditor:
		return 2
	case RoleViewer:
		return 1
	default:
		return 0
	}
}

// OrganizationRole is a user's role within an organization.
type OrganizationRole string

const (
	OrgRoleAdmin  OrganizationRole = "admin"
	OrgRoleMember OrganizationRole = "member"
	OrgRoleNone   OrganizationRole = ""
)

// IsAtLeast returns true if the role is at least the given level.
func (r OrganizationRole) IsAtLeast(level OrganizationRole) bool {
	return orgRoleRank(r) >= orgRoleRank(level)
}

func orgRoleRank(r OrganizationRole) int {
	switch r {
	case OrgRoleAdmin:
		return 2
	case OrgRoleMember:
		return 1
	default:
		return 0
	}
}

// User is a directory entry. Authentication happens upstream; snapshot restore
// resolves recorded user references against this table.
type User struct {
	ID          uint      `json:"id"          gorm:"primaryKey"`
	Username    string    `json:"username"    gorm:"not null;uniqueIndex"`
	Email       string    `json:"email"`
	DisplayName string    `json:"displayName"`
	IsSuperuser bool      `json:"isSuperuser" gorm:"not null;default:false"`
	CreatedAt   time.Time `json:"createdAt"   gorm:"not null"`
}

func (User) TableName() string { return "users" }

// Organization is the outer tenant boundary. UUID is the stable identity used
// to match snapshots back to their source organization.
type Organization struct {
	ID          uint      `json:"id"        gorm:"primaryKey"`
	UUID        string    `json:"uuid"      gorm:"not null;uniqueIndex"`
	Name        string    `json:"name"      gorm:"not null"`
	Slug        string    `json:"slug"      gorm:"not null;uniqueIndex"`
	CreatedByID *uint     `json:"createdById,omitempty"`
	CreatedAt   time.Time `json:"createdAt" gorm:"not null"`
}

func (Organization) TableName() string { return "organizations" }

// OrganizationMembership maps (organization, user) to an organization role.
type OrganizationMembership struct {
	OrganizationID uint             `json:"-"        gorm:"primaryKey"`
	UserID         uint             `json:"userId"   gorm:"primaryKey"`
	Role           OrganizationRole `json:"role"     gorm:"not null"`
	JoinedAt       time.Time        `json:"joinedAt" gorm:"not null"`
}

func (OrganizationMembership) TableName() string { return "organization_memberships" }

// ResearchDatabase is an isolated collection of lab records under one
// organization. Membership roles are scoped per database.
type ResearchDatabase struct {
	ID             uint      `json:"id"          gorm:"primaryKey"`
	OrganizationID uint      `json:"-"           gorm:"not null;index"`
	Name           string    `json:"name"        gorm:"not null"`
	Description    string    `json:"description"`
	CreatedByID    *uint     `json:"createdById,omitempty"`
	CreatedAt      time.Time `json:"createdAt"   gorm:"not null"`
}

func (ResearchDatabase) TableName() string { return "research_databases" }

// DatabaseMembership maps (database, user) to a database role.
type DatabaseMembership struct {
	DatabaseID uint         `json:"-"         gorm:"primaryKey"`
	UserID     uint         `json:"userId"    gorm:"primaryKey"`
	Role       DatabaseRole `json:"role"      gorm:"not null"`
	CreatedAt  time.Time    `json:"createdAt" gorm:"not null"`
}

func (DatabaseMembership) TableName() string { return "database_memberships" }

// ResolveDatabaseRole returns the effective role of a user in one database.
// A superuser gets the top role unconditionally; a missing membership means no
// access. Fails closed: nil user or nil membership resolve to RoleNone.
func ResolveDatabaseRole(user *User, membership *DatabaseMembership) DatabaseRole {
	if user == nil {
		return RoleNone
	}
	if user.IsSuperuser {
		return RoleOwner
	}
	if membership == nil {
		return RoleNone
	}
	return membership.Role
}

// ResolveOrganizationRole is the organization-scope counterpart of
// ResolveDatabaseRole.
func ResolveOrganizationRole(user *User, membership *OrganizationMembership) OrganizationRole {
	if user == nil {
		return OrgRoleNone
	}
	if user.IsSuperuser {
		return OrgRoleAdmin
	}
	if membership == nil {
		return OrgRoleNone
	}
	return membership.Role
}
