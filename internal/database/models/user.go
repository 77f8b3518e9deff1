package models

import "github.com/google/uuid"

type AdminRole string

const (
	RoleAdmin      AdminRole = "admin"
	RoleSuperAdmin AdminRole = "super_admin"
)

type AdminUser struct {
	Base
	TenantID     *uuid.UUID `gorm:"type:uuid;index" json:"tenant_id,omitempty"`
	Email        string     `gorm:"uniqueIndex:idx_admin_users_email,where:deleted_at IS NULL;not null" json:"email"`
	PasswordHash string     `gorm:"not null" json:"-"`
	Name         string     `json:"name"`
	Role         AdminRole  `gorm:"not null;default:'admin'" json:"role"`
	IsActive     bool       `gorm:"default:true" json:"is_active"`

	Tenant *Tenant `gorm:"foreignKey:TenantID" json:"tenant,omitempty"`
}

func (AdminUser) TableName() string {
	return "admin_users"
}

type ElectedOfficial struct {
	Base
	TenantID        uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_elu_tenant_email,where:deleted_at IS NULL" json:"tenant_id"`
	Email           string    `gorm:"not null;uniqueIndex:idx_elu_tenant_email,where:deleted_at IS NULL" json:"email"`
	PasswordHash    string    `gorm:"not null" json:"-"`
	Name            string    `json:"name"`
	Position        string    `json:"position"`
	HasFullAccess   bool      `gorm:"default:false" json:"has_full_access"`
	MenuPermissions []string  `gorm:"type:text;serializer:json" json:"menu_permissions"`
	IsActive        bool      `gorm:"default:true" json:"is_active"`
}

func (ElectedOfficial) TableName() string {
	return "elected_officials"
}
