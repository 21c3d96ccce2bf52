package repos

import (
  "context"
  "errors"

  "github.com/google/uuid"
  "gorm.io/gorm"

  "github.com/auditlens/auditlens-backend/internal/platform/logger"
  "github.com/auditlens/auditlens-backend/internal/types"
)

type RCMRepo interface {
  Create(ctx context.Context, tx *gorm.DB, row *types.RCM) (*types.RCM, error)
  GetByID(ctx context.Context, tx *gorm.DB, tenantID, id uuid.UUID) (*types.RCM, error)
  ListByClient(ctx context.Context, tx *gorm.DB, tenantID, clientID uuid.UUID) ([]*types.RCM, error)
}

type rcmRepo struct {
  db  *gorm.DB
  log *logger.Logger
}

func NewRCMRepo(db *gorm.DB, baseLog *logger.Logger) RCMRepo {
  return &rcmRepo{db: db, log: baseLog.With("repo", "RCMRepo")}
}

func (r *rcmRepo) Create(ctx context.Context, tx *gorm.DB, row *types.RCM) (*types.RCM, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  if row.ID == uuid.Nil {
    row.ID = uuid.New()
  }
  if err := transaction.WithContext(ctx).Create(row).Error; err != nil {
    return nil, err
  }
  return row, nil
}

func (r *rcmRepo) GetByID(ctx context.Context, tx *gorm.DB, tenantID, id uuid.UUID) (*types.RCM, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  var row types.RCM
  if err := transaction.WithContext(ctx).
    Where("id = ? AND tenant_id = ?", id, tenantID).
    First(&row).Error; err != nil {
    if errors.Is(err, gorm.ErrRecordNotFound) {
      return nil, nil
    }
    return nil, err
  }
  return &row, nil
}

func (r *rcmRepo) ListByClient(ctx context.Context, tx *gorm.DB, tenantID, clientID uuid.UUID) ([]*types.RCM, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  var results []*types.RCM
  if err := transaction.WithContext(ctx).
    Where("tenant_id = ? AND client_id = ?", tenantID, clientID).
    Order("control_id asc").
    Find(&results).Error; err != nil {
    return nil, err
  }
  return results, nil
}
