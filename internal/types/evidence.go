package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Evidence is a PBC (provided-by-client) request fulfilled with one or more
// uploaded documents.
type Evidence struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	TenantID    uuid.UUID      `gorm:"type:uuid;not null;index" json:"tenant_id"`
	ClientID    uuid.UUID      `gorm:"type:uuid;not null;index" json:"client_id"`
	RcmID       *uuid.UUID     `gorm:"type:uuid;index" json:"rcm_id,omitempty"`
	Name        string         `gorm:"column:name;not null" json:"name"`
	Description string         `gorm:"column:description" json:"description"`
	Status      string         `gorm:"column:status;not null;default:pending" json:"status"`
	CreatedAt   time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	Documents []EvidenceDocument `gorm:"foreignKey:EvidenceID" json:"documents,omitempty"`
}

func (Evidence) TableName() string { return "evidences" }

type EvidenceDocument struct {
	ID               uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	TenantID         uuid.UUID      `gorm:"type:uuid;not null;index" json:"tenant_id"`
	EvidenceID       uuid.UUID      `gorm:"type:uuid;not null;index" json:"evidence_id"`
	DocumentName     string         `gorm:"column:document_name;not null" json:"document_name"`
	ArtifactURL      string         `gorm:"column:artifact_url;not null" json:"artifact_url"`
	MimeType         string         `gorm:"column:mime_type" json:"mime_type"`
	SampleName       string         `gorm:"column:sample_name" json:"sample_name"`
	IsPolicyDocument bool           `gorm:"column:is_policy_document;not null;default:false" json:"is_policy_document"`
	// EvidenceAIDetails holds the extracted representation of the document,
	// produced either by native parsing (docx/xlsx) or by the model (pdf/image).
	EvidenceAIDetails datatypes.JSON `gorm:"type:jsonb;column:evidence_ai_details" json:"evidence_ai_details,omitempty"`
	CreatedAt         time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt         time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt         gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (EvidenceDocument) TableName() string { return "evidence_documents" }
