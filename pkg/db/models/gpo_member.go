package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/gpo-backend/pkg/enums"
)

// GpoMember is an institution participating in a group.
type GpoMember struct {
	ID              uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	GroupID         uuid.UUID             `gorm:"column:group_id;type:uuid;not null"`
	UserID          *uuid.UUID            `gorm:"column:user_id;type:uuid"`
	InstitutionName string                `gorm:"column:institution_name;not null"`
	InstitutionType enums.InstitutionType `gorm:"column:institution_type;type:text;not null"`
	RUT             *string               `gorm:"column:rut"`
	ContactName     *string               `gorm:"column:contact_name"`
	ContactEmail    *string               `gorm:"column:contact_email"`
	ContactPhone    *string               `gorm:"column:contact_phone"`
	Role            enums.MemberRole      `gorm:"column:role;type:text;not null;default:'member'"`
	Active          bool                  `gorm:"column:active;not null;default:true"`
	CreatedAt       time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}

func (GpoMember) TableName() string { return "gpo_members" }

func (m *GpoMember) BeforeCreate(*gorm.DB) error {
	ensureID(&m.ID)
	return nil
}

// IsAdmin reports whether the member administers its group.
func (m GpoMember) IsAdmin() bool {
	return m.Role == enums.MemberRoleAdmin
}
