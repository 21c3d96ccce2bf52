package repos

import (
  "context"
  "errors"

  "github.com/google/uuid"
  "gorm.io/datatypes"
  "gorm.io/gorm"

  "github.com/auditlens/auditlens-backend/internal/platform/logger"
  "github.com/auditlens/auditlens-backend/internal/types"
)

type EvidenceRepo interface {
  Create(ctx context.Context, tx *gorm.DB, ev *types.Evidence) (*types.Evidence, error)
  GetByID(ctx context.Context, tx *gorm.DB, tenantID, id uuid.UUID) (*types.Evidence, error)
  ListByClient(ctx context.Context, tx *gorm.DB, tenantID, clientID uuid.UUID) ([]*types.Evidence, error)
  SoftDeleteByID(ctx context.Context, tx *gorm.DB, tenantID, id uuid.UUID) error
}

type evidenceRepo struct {
  db  *gorm.DB
  log *logger.Logger
}

func NewEvidenceRepo(db *gorm.DB, baseLog *logger.Logger) EvidenceRepo {
  return &evidenceRepo{db: db, log: baseLog.With("repo", "EvidenceRepo")}
}

func (r *evidenceRepo) Create(ctx context.Context, tx *gorm.DB, ev *types.Evidence) (*types.Evidence, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  if ev.ID == uuid.Nil {
    ev.ID = uuid.New()
  }
  if err := transaction.WithContext(ctx).Create(ev).Error; err != nil {
    return nil, err
  }
  return ev, nil
}

func (r *evidenceRepo) GetByID(ctx context.Context, tx *gorm.DB, tenantID, id uuid.UUID) (*types.Evidence, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  var ev types.Evidence
  if err := transaction.WithContext(ctx).
    Preload("Documents").
    Where("id = ? AND tenant_id = ?", id, tenantID).
    First(&ev).Error; err != nil {
    if errors.Is(err, gorm.ErrRecordNotFound) {
      return nil, nil
    }
    return nil, err
  }
  return &ev, nil
}

func (r *evidenceRepo) ListByClient(ctx context.Context, tx *gorm.DB, tenantID, clientID uuid.UUID) ([]*types.Evidence, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  var results []*types.Evidence
  if err := transaction.WithContext(ctx).
    Where("tenant_id = ? AND client_id = ?", tenantID, clientID).
    Order("created_at desc").
    Find(&results).Error; err != nil {
    return nil, err
  }
  return results, nil
}

func (r *evidenceRepo) SoftDeleteByID(ctx context.Context, tx *gorm.DB, tenantID, id uuid.UUID) error {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  return transaction.WithContext(ctx).
    Where("id = ? AND tenant_id = ?", id, tenantID).
    Delete(&types.Evidence{}).Error
}

type EvidenceDocumentRepo interface {
  CreateBatch(ctx context.Context, tx *gorm.DB, docs []*types.EvidenceDocument) ([]*types.EvidenceDocument, error)
  GetByID(ctx context.Context, tx *gorm.DB, tenantID, id uuid.UUID) (*types.EvidenceDocument, error)
  ListByEvidenceID(ctx context.Context, tx *gorm.DB, tenantID, evidenceID uuid.UUID) ([]*types.EvidenceDocument, error)
  ListByIDs(ctx context.Context, tx *gorm.DB, tenantID uuid.UUID, ids []uuid.UUID) ([]*types.EvidenceDocument, error)
  // ListForExecution returns the documents eligible for an execution: the
  // documents of its pinned PBC request when one is set, otherwise every
  // document uploaded against the execution's control.
  ListForExecution(ctx context.Context, tx *gorm.DB, tenantID uuid.UUID, exec *types.TestExecution) ([]*types.EvidenceDocument, error)
  ExistsByName(ctx context.Context, tx *gorm.DB, tenantID, evidenceID uuid.UUID, name string) (bool, error)
  UpdateAIDetails(ctx context.Context, tx *gorm.DB, tenantID, id uuid.UUID, details datatypes.JSON) error
}

type evidenceDocumentRepo struct {
  db  *gorm.DB
  log *logger.Logger
}

func NewEvidenceDocumentRepo(db *gorm.DB, baseLog *logger.Logger) EvidenceDocumentRepo {
  return &evidenceDocumentRepo{db: db, log: baseLog.With("repo", "EvidenceDocumentRepo")}
}

func (r *evidenceDocumentRepo) CreateBatch(ctx context.Context, tx *gorm.DB, docs []*types.EvidenceDocument) ([]*types.EvidenceDocument, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  if len(docs) == 0 {
    return []*types.EvidenceDocument{}, nil
  }
  for _, d := range docs {
    if d.ID == uuid.Nil {
      d.ID = uuid.New()
    }
  }
  if err := transaction.WithContext(ctx).Create(&docs).Error; err != nil {
    return nil, err
  }
  return docs, nil
}

func (r *evidenceDocumentRepo) GetByID(ctx context.Context, tx *gorm.DB, tenantID, id uuid.UUID) (*types.EvidenceDocument, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  var doc types.EvidenceDocument
  if err := transaction.WithContext(ctx).
    Where("id = ? AND tenant_id = ?", id, tenantID).
    First(&doc).Error; err != nil {
    if errors.Is(err, gorm.ErrRecordNotFound) {
      return nil, nil
    }
    return nil, err
  }
  return &doc, nil
}

func (r *evidenceDocumentRepo) ListByEvidenceID(ctx context.Context, tx *gorm.DB, tenantID, evidenceID uuid.UUID) ([]*types.EvidenceDocument, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  var results []*types.EvidenceDocument
  if err := transaction.WithContext(ctx).
    Where("tenant_id = ? AND evidence_id = ?", tenantID, evidenceID).
    Order("created_at asc").
    Find(&results).Error; err != nil {
    return nil, err
  }
  return results, nil
}

func (r *evidenceDocumentRepo) ListByIDs(ctx context.Context, tx *gorm.DB, tenantID uuid.UUID, ids []uuid.UUID) ([]*types.EvidenceDocument, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  var results []*types.EvidenceDocument
  if len(ids) == 0 {
    return results, nil
  }
  if err := transaction.WithContext(ctx).
    Where("tenant_id = ? AND id IN ?", tenantID, ids).
    Find(&results).Error; err != nil {
    return nil, err
  }
  return results, nil
}

func (r *evidenceDocumentRepo) ListForExecution(ctx context.Context, tx *gorm.DB, tenantID uuid.UUID, exec *types.TestExecution) ([]*types.EvidenceDocument, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  query := transaction.WithContext(ctx).Where("tenant_id = ?", tenantID)
  if exec.PbcID != nil {
    query = query.Where("evidence_id = ?", *exec.PbcID)
  } else {
    sub := transaction.Model(&types.Evidence{}).
      Select("id").
      Where("tenant_id = ? AND rcm_id = ?", tenantID, exec.RcmID)
    query = query.Where("evidence_id IN (?)", sub)
  }
  var results []*types.EvidenceDocument
  if err := query.Order("created_at asc").Find(&results).Error; err != nil {
    return nil, err
  }
  return results, nil
}

func (r *evidenceDocumentRepo) ExistsByName(ctx context.Context, tx *gorm.DB, tenantID, evidenceID uuid.UUID, name string) (bool, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  var count int64
  if err := transaction.WithContext(ctx).
    Model(&types.EvidenceDocument{}).
    Where("tenant_id = ? AND evidence_id = ? AND document_name = ?", tenantID, evidenceID, name).
    Count(&count).Error; err != nil {
    return false, err
  }
  return count > 0, nil
}

func (r *evidenceDocumentRepo) UpdateAIDetails(ctx context.Context, tx *gorm.DB, tenantID, id uuid.UUID, details datatypes.JSON) error {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  return transaction.WithContext(ctx).
    Model(&types.EvidenceDocument{}).
    Where("id = ? AND tenant_id = ?", id, tenantID).
    Update("evidence_ai_details", details).Error
}
