package orgs

import (
	"time"

	"github.com/google/uuid"
)

// OrgRole represents a user's role within an organization
type OrgRole string

const (
	RoleOwner  OrgRole = "OWNER"
	RoleAdmin  OrgRole = "ADMIN"
	RoleMember OrgRole = "MEMBER"
	RoleViewer OrgRole = "VIEWER"
)

var roleLevel = map[OrgRole]int{
	RoleViewer: 1,
	RoleMember: 2,
	RoleAdmin:  3,
	RoleOwner:  4,
}

// Satisfies reports whether r is at least as privileged as required.
func (r OrgRole) Satisfies(required OrgRole) bool {
	level, ok := roleLevel[r]
	return ok && level >= roleLevel[required]
}

// Org represents an organization in the system
type Org struct {
	ID              uuid.UUID `db:"id" json:"id"`
	Name            string    `db:"name" json:"name"`
	Slug            string    `db:"slug" json:"slug"`
	CreatedByUserID uuid.UUID `db:"created_by_user_id" json:"created_by_user_id"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// OrgWithRole combines org information with the user's role
type OrgWithRole struct {
	Org
	Role OrgRole `db:"role" json:"role"`
}

// MemberInfo represents a member of an organization with their details
type MemberInfo struct {
	UserID    uuid.UUID `db:"user_id" json:"user_id"`
	Email     string    `db:"email" json:"email"`
	Role      OrgRole   `db:"role" json:"role"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
