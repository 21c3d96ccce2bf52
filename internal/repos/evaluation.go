package repos

import (
  "context"
  "errors"

  "github.com/google/uuid"
  "gorm.io/gorm"
  "gorm.io/gorm/clause"

  "github.com/auditlens/auditlens-backend/internal/platform/logger"
  "github.com/auditlens/auditlens-backend/internal/types"
)

type EvaluationRepo interface {
  // Upsert writes one record per (tenant, execution, document). A replay of
  // the same evaluation overwrites the previous verdict instead of failing
  // on the unique index.
  Upsert(ctx context.Context, tx *gorm.DB, rec *types.EvaluationRecord) (*types.EvaluationRecord, error)
  GetByID(ctx context.Context, tx *gorm.DB, tenantID, id uuid.UUID) (*types.EvaluationRecord, error)
  GetByExecutionAndDocument(ctx context.Context, tx *gorm.DB, tenantID, executionID, documentID uuid.UUID) (*types.EvaluationRecord, error)
  ListByExecution(ctx context.Context, tx *gorm.DB, tenantID, executionID uuid.UUID) ([]*types.EvaluationRecord, error)
  Save(ctx context.Context, tx *gorm.DB, rec *types.EvaluationRecord) error
}

type evaluationRepo struct {
  db  *gorm.DB
  log *logger.Logger
}

func NewEvaluationRepo(db *gorm.DB, baseLog *logger.Logger) EvaluationRepo {
  return &evaluationRepo{db: db, log: baseLog.With("repo", "EvaluationRepo")}
}

func (r *evaluationRepo) Upsert(ctx context.Context, tx *gorm.DB, rec *types.EvaluationRecord) (*types.EvaluationRecord, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  if rec.ID == uuid.Nil {
    rec.ID = uuid.New()
  }
  if err := transaction.WithContext(ctx).Clauses(clause.OnConflict{
    Columns: []clause.Column{
      {Name: "tenant_id"},
      {Name: "test_execution_id"},
      {Name: "evidence_document_id"},
    },
    DoUpdates: clause.AssignmentColumns([]string{
      "result",
      "status",
      "total_attributes",
      "total_attributes_passed",
      "total_attributes_failed",
      "result_artifact_url",
      "updated_at",
    }),
  }).Create(rec).Error; err != nil {
    return nil, err
  }
  return r.GetByExecutionAndDocument(ctx, transaction, rec.TenantID, rec.TestExecutionID, rec.EvidenceDocumentID)
}

func (r *evaluationRepo) GetByID(ctx context.Context, tx *gorm.DB, tenantID, id uuid.UUID) (*types.EvaluationRecord, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  var rec types.EvaluationRecord
  if err := transaction.WithContext(ctx).
    Where("id = ? AND tenant_id = ?", id, tenantID).
    First(&rec).Error; err != nil {
    if errors.Is(err, gorm.ErrRecordNotFound) {
      return nil, nil
    }
    return nil, err
  }
  return &rec, nil
}

func (r *evaluationRepo) GetByExecutionAndDocument(ctx context.Context, tx *gorm.DB, tenantID, executionID, documentID uuid.UUID) (*types.EvaluationRecord, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  var rec types.EvaluationRecord
  if err := transaction.WithContext(ctx).
    Where("tenant_id = ? AND test_execution_id = ? AND evidence_document_id = ?", tenantID, executionID, documentID).
    First(&rec).Error; err != nil {
    if errors.Is(err, gorm.ErrRecordNotFound) {
      return nil, nil
    }
    return nil, err
  }
  return &rec, nil
}

func (r *evaluationRepo) ListByExecution(ctx context.Context, tx *gorm.DB, tenantID, executionID uuid.UUID) ([]*types.EvaluationRecord, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  var results []*types.EvaluationRecord
  if err := transaction.WithContext(ctx).
    Where("tenant_id = ? AND test_execution_id = ?", tenantID, executionID).
    Order("created_at asc").
    Find(&results).Error; err != nil {
    return nil, err
  }
  return results, nil
}

func (r *evaluationRepo) Save(ctx context.Context, tx *gorm.DB, rec *types.EvaluationRecord) error {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  return transaction.WithContext(ctx).Save(rec).Error
}
