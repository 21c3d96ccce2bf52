package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	ExecutionStatusPending    = "pending"
	ExecutionStatusInProgress = "in_progress"
	ExecutionStatusCompleted  = "completed"
	ExecutionStatusFailed     = "failed"
)

const (
	ExecutionResultPass    = "pass"
	ExecutionResultFail    = "fail"
	ExecutionResultPartial = "partial"
	ExecutionResultNA      = "na"
)

type TestExecution struct {
	ID       uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	TenantID uuid.UUID  `gorm:"type:uuid;not null;index" json:"tenant_id"`
	ClientID uuid.UUID  `gorm:"type:uuid;not null;index" json:"client_id"`
	RcmID    uuid.UUID  `gorm:"type:uuid;not null;index" json:"rcm_id"`
	PbcID    *uuid.UUID `gorm:"type:uuid;index" json:"pbc_id,omitempty"`
	UserID   uuid.UUID  `gorm:"type:uuid;not null;index" json:"user_id"`
	Year     int        `gorm:"column:year;not null" json:"year"`
	Quarter  string     `gorm:"column:quarter;not null" json:"quarter"`
	Status   string     `gorm:"column:status;not null;default:pending;index" json:"status"`
	Result   string     `gorm:"column:result;not null;default:na" json:"result"`
	Remarks  string     `gorm:"column:remarks" json:"remarks"`
	// OverallExecutionResult memoizes per-sample outcomes as a JSON map keyed
	// by sample name.
	OverallExecutionResult datatypes.JSON `gorm:"type:jsonb;column:overall_execution_result" json:"overall_execution_result,omitempty"`
	CreatedAt              time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt              time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt              gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (TestExecution) TableName() string { return "test_executions" }
