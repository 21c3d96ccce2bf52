package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	JobStatusQueued    = "queued"
	JobStatusRunning   = "running"
	JobStatusSucceeded = "succeeded"
	JobStatusFailed    = "failed"
)

// ExtractionJob tracks a background extraction of one evidence document.
// Clients poll it by id instead of waiting on the upload request.
type ExtractionJob struct {
	ID                 uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	TenantID           uuid.UUID      `gorm:"type:uuid;not null;index" json:"tenant_id"`
	EvidenceDocumentID uuid.UUID      `gorm:"type:uuid;not null;index" json:"evidence_document_id"`
	Status             string         `gorm:"column:status;not null;default:queued;index" json:"status"`
	Attempts           int            `gorm:"column:attempts;not null;default:0" json:"attempts"`
	Error              string         `gorm:"column:error" json:"error"`
	Metadata           datatypes.JSON `gorm:"type:jsonb;column:metadata" json:"metadata,omitempty"`
	StartedAt          *time.Time     `gorm:"column:started_at" json:"started_at,omitempty"`
	FinishedAt         *time.Time     `gorm:"column:finished_at" json:"finished_at,omitempty"`
	CreatedAt          time.Time      `gorm:"not null;index" json:"created_at"`
	UpdatedAt          time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt          gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (ExtractionJob) TableName() string { return "extraction_jobs" }
