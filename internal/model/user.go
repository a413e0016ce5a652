package model

import (
	"time"

	"procurement/internal/workflow"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// User is any account of the system: staff in one of the workflow roles, suppliers, or the super admin.
// Department applies to HODs; CompanyName, RegistrationNo and Categories apply to suppliers.
type User struct {
	ID             uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Name           string         `gorm:"type:varchar(255);not null" json:"name"`
	Email          string         `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	Phone          string         `gorm:"type:varchar(20)" json:"phone"`
	Password       string         `gorm:"type:varchar(255);not null" json:"-"`
	Role           workflow.Role  `gorm:"column:user_role;type:varchar(40);not null;index" json:"user_role"`
	IsActive       bool           `gorm:"default:false;not null" json:"is_active"`
	Department     string         `gorm:"type:varchar(255)" json:"department,omitempty"`
	CompanyName    string         `gorm:"type:varchar(255)" json:"company_name,omitempty"`
	RegistrationNo string         `gorm:"type:varchar(100)" json:"registration_no,omitempty"`
	Categories     pq.StringArray `gorm:"type:text[]" json:"categories,omitempty"`
	CreatedAt      time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`
}

// CanLogin reports whether the account may authenticate. The super admin is never locked out.
func (u *User) CanLogin() bool {
	return u.IsActive || u.Role == workflow.RoleSuperAdmin
}

// RefreshToken stores long-lived tokens allowing users to request new access tokens
type RefreshToken struct {
	ID        uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`
	User      User      `gorm:"foreignKey:UserID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
	Token     string    `gorm:"type:varchar(255);uniqueIndex;not null" json:"token"`
	ExpiresAt time.Time `gorm:"not null" json:"expires_at"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}
