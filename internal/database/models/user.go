package models

// Platform roles, lowest to highest. "admin" and above may operate the
// credential vault; only "owner" receives decrypt notifications.
const (
	RoleMember = "member"
	RoleAdmin  = "admin"
	RoleOwner  = "owner"
)

type User struct {
	Base
	Email         string `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash  string `gorm:"not null" json:"-"`
	Name          string `json:"name"`
	Role          string `gorm:"default:'member'" json:"role"` // member, admin, owner
	IsActive      bool   `gorm:"default:true" json:"is_active"`
	EmailVerified bool   `gorm:"default:false" json:"email_verified"`

	// Relationships
	Profile *Profile `gorm:"foreignKey:UserID" json:"profile,omitempty"`
}

func (User) TableName() string {
	return "users"
}

// IsAdmin reports whether the user holds the admin role or higher.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin || u.Role == RoleOwner
}
