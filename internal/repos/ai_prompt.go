package repos

import (
  "context"
  "errors"

  "github.com/google/uuid"
  "gorm.io/gorm"

  "github.com/auditlens/auditlens-backend/internal/platform/logger"
  "github.com/auditlens/auditlens-backend/internal/types"
)

type AIPromptRepo interface {
  // UpsertRcmPrompt creates or replaces the control-specific prompt.
  UpsertRcmPrompt(ctx context.Context, tx *gorm.DB, prompt *types.AIPrompt) (*types.AIPrompt, error)
  // SetClientDefault creates or replaces the client-wide default (rcm_id NULL).
  SetClientDefault(ctx context.Context, tx *gorm.DB, prompt *types.AIPrompt) (*types.AIPrompt, error)
  GetByRcmID(ctx context.Context, tx *gorm.DB, tenantID, clientID, rcmID uuid.UUID) (*types.AIPrompt, error)
  GetClientDefault(ctx context.Context, tx *gorm.DB, tenantID, clientID uuid.UUID) (*types.AIPrompt, error)
}

type aiPromptRepo struct {
  db  *gorm.DB
  log *logger.Logger
}

func NewAIPromptRepo(db *gorm.DB, baseLog *logger.Logger) AIPromptRepo {
  return &aiPromptRepo{db: db, log: baseLog.With("repo", "AIPromptRepo")}
}

func (r *aiPromptRepo) UpsertRcmPrompt(ctx context.Context, tx *gorm.DB, prompt *types.AIPrompt) (*types.AIPrompt, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  if prompt.RcmID == nil {
    return nil, errors.New("rcm_id is required for a control-specific prompt")
  }
  existing, err := r.GetByRcmID(ctx, transaction, prompt.TenantID, prompt.ClientID, *prompt.RcmID)
  if err != nil {
    return nil, err
  }
  if existing != nil {
    existing.PromptText = prompt.PromptText
    if err := transaction.WithContext(ctx).Save(existing).Error; err != nil {
      return nil, err
    }
    return existing, nil
  }
  if prompt.ID == uuid.Nil {
    prompt.ID = uuid.New()
  }
  if err := transaction.WithContext(ctx).Create(prompt).Error; err != nil {
    return nil, err
  }
  return prompt, nil
}

func (r *aiPromptRepo) SetClientDefault(ctx context.Context, tx *gorm.DB, prompt *types.AIPrompt) (*types.AIPrompt, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  prompt.RcmID = nil
  prompt.IsDefault = true
  existing, err := r.GetClientDefault(ctx, transaction, prompt.TenantID, prompt.ClientID)
  if err != nil {
    return nil, err
  }
  if existing != nil {
    existing.PromptText = prompt.PromptText
    if err := transaction.WithContext(ctx).Save(existing).Error; err != nil {
      return nil, err
    }
    return existing, nil
  }
  if prompt.ID == uuid.Nil {
    prompt.ID = uuid.New()
  }
  if err := transaction.WithContext(ctx).Create(prompt).Error; err != nil {
    return nil, err
  }
  return prompt, nil
}

func (r *aiPromptRepo) GetByRcmID(ctx context.Context, tx *gorm.DB, tenantID, clientID, rcmID uuid.UUID) (*types.AIPrompt, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  var prompt types.AIPrompt
  if err := transaction.WithContext(ctx).
    Where("tenant_id = ? AND client_id = ? AND rcm_id = ?", tenantID, clientID, rcmID).
    First(&prompt).Error; err != nil {
    if errors.Is(err, gorm.ErrRecordNotFound) {
      return nil, nil
    }
    return nil, err
  }
  return &prompt, nil
}

func (r *aiPromptRepo) GetClientDefault(ctx context.Context, tx *gorm.DB, tenantID, clientID uuid.UUID) (*types.AIPrompt, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  var prompt types.AIPrompt
  if err := transaction.WithContext(ctx).
    Where("tenant_id = ? AND client_id = ? AND rcm_id IS NULL AND is_default = ?", tenantID, clientID, true).
    First(&prompt).Error; err != nil {
    if errors.Is(err, gorm.ErrRecordNotFound) {
      return nil, nil
    }
    return nil, err
  }
  return &prompt, nil
}
