package repos

import (
  "context"
  "errors"
  "strings"

  "github.com/google/uuid"
  "gorm.io/gorm"

  "github.com/auditlens/auditlens-backend/internal/platform/logger"
  "github.com/auditlens/auditlens-backend/internal/types"
)

type UserRepo interface {
  Create(ctx context.Context, tx *gorm.DB, user *types.User) (*types.User, error)
  GetByEmail(ctx context.Context, tx *gorm.DB, email string) (*types.User, error)
  GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.User, error)
}

type userRepo struct {
  db  *gorm.DB
  log *logger.Logger
}

func NewUserRepo(db *gorm.DB, baseLog *logger.Logger) UserRepo {
  return &userRepo{db: db, log: baseLog.With("repo", "UserRepo")}
}

func (r *userRepo) Create(ctx context.Context, tx *gorm.DB, user *types.User) (*types.User, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  if user.ID == uuid.Nil {
    user.ID = uuid.New()
  }
  user.Email = strings.ToLower(strings.TrimSpace(user.Email))
  if err := transaction.WithContext(ctx).Create(user).Error; err != nil {
    return nil, err
  }
  return user, nil
}

func (r *userRepo) GetByEmail(ctx context.Context, tx *gorm.DB, email string) (*types.User, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  var user types.User
  if err := transaction.WithContext(ctx).
    Where("email = ?", strings.ToLower(strings.TrimSpace(email))).
    First(&user).Error; err != nil {
    if errors.Is(err, gorm.ErrRecordNotFound) {
      return nil, nil
    }
    return nil, err
  }
  return &user, nil
}

func (r *userRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.User, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  var user types.User
  if err := transaction.WithContext(ctx).
    Where("id = ?", id).
    First(&user).Error; err != nil {
    if errors.Is(err, gorm.ErrRecordNotFound) {
      return nil, nil
    }
    return nil, err
  }
  return &user, nil
}
