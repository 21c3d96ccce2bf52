package repos

import (
  "context"

  "github.com/google/uuid"
  "gorm.io/gorm"

  "github.com/auditlens/auditlens-backend/internal/platform/logger"
  "github.com/auditlens/auditlens-backend/internal/types"
)

type AICallLogRepo interface {
  Create(ctx context.Context, tx *gorm.DB, entry *types.AICallLog) error
}

type aiCallLogRepo struct {
  db  *gorm.DB
  log *logger.Logger
}

func NewAICallLogRepo(db *gorm.DB, baseLog *logger.Logger) AICallLogRepo {
  return &aiCallLogRepo{db: db, log: baseLog.With("repo", "AICallLogRepo")}
}

func (r *aiCallLogRepo) Create(ctx context.Context, tx *gorm.DB, entry *types.AICallLog) error {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  if entry.ID == uuid.Nil {
    entry.ID = uuid.New()
  }
  return transaction.WithContext(ctx).Create(entry).Error
}
