package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RCM is one row of a client's risk and control matrix.
type RCM struct {
	ID              uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	TenantID        uuid.UUID      `gorm:"type:uuid;not null;index" json:"tenant_id"`
	ClientID        uuid.UUID      `gorm:"type:uuid;not null;index" json:"client_id"`
	ControlID       string         `gorm:"column:control_id;not null" json:"control_id"`
	ControlName     string         `gorm:"column:control_name;not null" json:"control_name"`
	ControlText     string         `gorm:"column:control_text" json:"control_text"`
	RiskDescription string         `gorm:"column:risk_description" json:"risk_description"`
	Frequency       string         `gorm:"column:frequency" json:"frequency"`
	CreatedAt       time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt       gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (RCM) TableName() string { return "rcm" }

// TestAttribute is a single requirement evidence is checked against.
type TestAttribute struct {
	ID                   uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	TenantID             uuid.UUID      `gorm:"type:uuid;not null;index" json:"tenant_id"`
	RcmID                uuid.UUID      `gorm:"type:uuid;not null;index" json:"rcm_id"`
	AttributeName        string         `gorm:"column:attribute_name;not null" json:"attribute_name"`
	AttributeDescription string         `gorm:"column:attribute_description" json:"attribute_description"`
	TestSteps            string         `gorm:"column:test_steps" json:"test_steps"`
	CreatedAt            time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt            time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt            gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (TestAttribute) TableName() string { return "test_attributes" }
