package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AttributeResult is the model's judgement for a single test attribute.
// AttributeFinalResult mirrors Result until a reviewer overrides it, at
// which point AttributeResultChangeComment records why.
type AttributeResult struct {
	AttributeName                string `json:"attribute_name"`
	AttributeDescription         string `json:"attribute_description,omitempty"`
	TestSteps                    string `json:"test_steps,omitempty"`
	Result                       bool   `json:"result"`
	Reason                       string `json:"reason,omitempty"`
	AttributeFinalResult         bool   `json:"attribute_final_result"`
	AttributeResultChangeComment string `json:"attribute_result_change_comment,omitempty"`
}

// Verdict is the parsed evaluation of one evidence document against the
// attributes of a control. FinalResult is the AND over AttributesResults.
// ManualFinalResult starts as a mirror of FinalResult and is the only field
// a reviewer may flip afterwards.
type Verdict struct {
	AttributesResults     []AttributeResult `json:"attributes_results"`
	Summary               string            `json:"summary,omitempty"`
	TotalAttributes       int               `json:"total_attributes"`
	TotalAttributesPassed int               `json:"total_attributes_passed"`
	TotalAttributesFailed int               `json:"total_attributes_failed"`
	FinalResult           bool              `json:"final_result"`
	ManualFinalResult     bool              `json:"manual_final_result"`
}

// EvaluationRecord holds one verdict per evidence document per execution.
// The composite unique index closes the duplicate-evaluation race at the
// database level.
type EvaluationRecord struct {
	ID                 uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	TenantID           uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:idx_eval_exec_doc_tenant" json:"tenant_id"`
	TestExecutionID    uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:idx_eval_exec_doc_tenant" json:"test_execution_id"`
	EvidenceDocumentID uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:idx_eval_exec_doc_tenant" json:"evidence_document_id"`
	Result             datatypes.JSON `gorm:"type:jsonb;column:result" json:"result"`
	Status             string         `gorm:"column:status;not null" json:"status"`
	TotalAttributes    int            `gorm:"column:total_attributes;not null;default:0" json:"total_attributes"`
	TotalPassed        int            `gorm:"column:total_attributes_passed;not null;default:0" json:"total_attributes_passed"`
	TotalFailed        int            `gorm:"column:total_attributes_failed;not null;default:0" json:"total_attributes_failed"`
	Comment            string         `gorm:"column:comment" json:"comment"`
	ResultArtifactURL  string         `gorm:"column:result_artifact_url" json:"result_artifact_url,omitempty"`
	CreatedAt          time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt          time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt          gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (EvaluationRecord) TableName() string { return "test_execution_evidence_documents" }
