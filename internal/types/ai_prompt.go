package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AIPrompt overrides the built-in comparison prompt. A row with IsDefault
// set and a nil RcmID is the client-wide default; a row with an RcmID wins
// over it for that control.
type AIPrompt struct {
	ID         uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	TenantID   uuid.UUID      `gorm:"type:uuid;not null;index" json:"tenant_id"`
	ClientID   uuid.UUID      `gorm:"type:uuid;not null;index" json:"client_id"`
	RcmID      *uuid.UUID     `gorm:"type:uuid;index" json:"rcm_id,omitempty"`
	PromptText string         `gorm:"column:prompt_text;not null" json:"prompt_text"`
	IsDefault  bool           `gorm:"column:is_default;not null;default:false" json:"is_default"`
	CreatedAt  time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt  time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt  gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (AIPrompt) TableName() string { return "ai_prompts" }
