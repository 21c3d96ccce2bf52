package repos

import (
  "context"
  "errors"

  "github.com/google/uuid"
  "gorm.io/gorm"

  "github.com/auditlens/auditlens-backend/internal/platform/logger"
  "github.com/auditlens/auditlens-backend/internal/types"
)

type TestAttributeRepo interface {
  Create(ctx context.Context, tx *gorm.DB, attr *types.TestAttribute) (*types.TestAttribute, error)
  GetByID(ctx context.Context, tx *gorm.DB, tenantID, id uuid.UUID) (*types.TestAttribute, error)
  ListByRcmID(ctx context.Context, tx *gorm.DB, tenantID, rcmID uuid.UUID) ([]*types.TestAttribute, error)
  Update(ctx context.Context, tx *gorm.DB, attr *types.TestAttribute) error
  SoftDeleteByID(ctx context.Context, tx *gorm.DB, tenantID, id uuid.UUID) error
}

type testAttributeRepo struct {
  db  *gorm.DB
  log *logger.Logger
}

func NewTestAttributeRepo(db *gorm.DB, baseLog *logger.Logger) TestAttributeRepo {
  return &testAttributeRepo{db: db, log: baseLog.With("repo", "TestAttributeRepo")}
}

func (r *testAttributeRepo) Create(ctx context.Context, tx *gorm.DB, attr *types.TestAttribute) (*types.TestAttribute, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  if attr.ID == uuid.Nil {
    attr.ID = uuid.New()
  }
  if err := transaction.WithContext(ctx).Create(attr).Error; err != nil {
    return nil, err
  }
  return attr, nil
}

func (r *testAttributeRepo) GetByID(ctx context.Context, tx *gorm.DB, tenantID, id uuid.UUID) (*types.TestAttribute, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  var attr types.TestAttribute
  if err := transaction.WithContext(ctx).
    Where("id = ? AND tenant_id = ?", id, tenantID).
    First(&attr).Error; err != nil {
    if errors.Is(err, gorm.ErrRecordNotFound) {
      return nil, nil
    }
    return nil, err
  }
  return &attr, nil
}

func (r *testAttributeRepo) ListByRcmID(ctx context.Context, tx *gorm.DB, tenantID, rcmID uuid.UUID) ([]*types.TestAttribute, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  var results []*types.TestAttribute
  if err := transaction.WithContext(ctx).
    Where("tenant_id = ? AND rcm_id = ?", tenantID, rcmID).
    Order("created_at asc").
    Find(&results).Error; err != nil {
    return nil, err
  }
  return results, nil
}

func (r *testAttributeRepo) Update(ctx context.Context, tx *gorm.DB, attr *types.TestAttribute) error {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  return transaction.WithContext(ctx).Save(attr).Error
}

func (r *testAttributeRepo) SoftDeleteByID(ctx context.Context, tx *gorm.DB, tenantID, id uuid.UUID) error {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  return transaction.WithContext(ctx).
    Where("id = ? AND tenant_id = ?", id, tenantID).
    Delete(&types.TestAttribute{}).Error
}
