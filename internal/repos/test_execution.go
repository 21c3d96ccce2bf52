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

type TestExecutionRepo interface {
  Create(ctx context.Context, tx *gorm.DB, exec *types.TestExecution) (*types.TestExecution, error)
  GetByID(ctx context.Context, tx *gorm.DB, tenantID, id uuid.UUID) (*types.TestExecution, error)
  ListByRcm(ctx context.Context, tx *gorm.DB, tenantID, rcmID uuid.UUID) ([]*types.TestExecution, error)
  ListByClient(ctx context.Context, tx *gorm.DB, tenantID, clientID uuid.UUID) ([]*types.TestExecution, error)
  UpdateStatus(ctx context.Context, tx *gorm.DB, tenantID, id uuid.UUID, status string) error
  UpdateRemarks(ctx context.Context, tx *gorm.DB, tenantID, id uuid.UUID, remarks string) error
  UpdateResult(ctx context.Context, tx *gorm.DB, tenantID, id uuid.UUID, result string) error
  UpdateOverallResult(ctx context.Context, tx *gorm.DB, tenantID, id uuid.UUID, memo datatypes.JSON) error
}

type testExecutionRepo struct {
  db  *gorm.DB
  log *logger.Logger
}

func NewTestExecutionRepo(db *gorm.DB, baseLog *logger.Logger) TestExecutionRepo {
  return &testExecutionRepo{db: db, log: baseLog.With("repo", "TestExecutionRepo")}
}

func (r *testExecutionRepo) Create(ctx context.Context, tx *gorm.DB, exec *types.TestExecution) (*types.TestExecution, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  if exec.ID == uuid.Nil {
    exec.ID = uuid.New()
  }
  if exec.Status == "" {
    exec.Status = types.ExecutionStatusPending
  }
  if exec.Result == "" {
    exec.Result = types.ExecutionResultNA
  }
  if err := transaction.WithContext(ctx).Create(exec).Error; err != nil {
    return nil, err
  }
  return exec, nil
}

func (r *testExecutionRepo) GetByID(ctx context.Context, tx *gorm.DB, tenantID, id uuid.UUID) (*types.TestExecution, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  var exec types.TestExecution
  if err := transaction.WithContext(ctx).
    Where("id = ? AND tenant_id = ?", id, tenantID).
    First(&exec).Error; err != nil {
    if errors.Is(err, gorm.ErrRecordNotFound) {
      return nil, nil
    }
    return nil, err
  }
  return &exec, nil
}

func (r *testExecutionRepo) ListByRcm(ctx context.Context, tx *gorm.DB, tenantID, rcmID uuid.UUID) ([]*types.TestExecution, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  var results []*types.TestExecution
  if err := transaction.WithContext(ctx).
    Where("tenant_id = ? AND rcm_id = ?", tenantID, rcmID).
    Order("created_at desc").
    Find(&results).Error; err != nil {
    return nil, err
  }
  return results, nil
}

func (r *testExecutionRepo) ListByClient(ctx context.Context, tx *gorm.DB, tenantID, clientID uuid.UUID) ([]*types.TestExecution, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  var results []*types.TestExecution
  if err := transaction.WithContext(ctx).
    Where("tenant_id = ? AND client_id = ?", tenantID, clientID).
    Order("created_at desc").
    Find(&results).Error; err != nil {
    return nil, err
  }
  return results, nil
}

func (r *testExecutionRepo) UpdateStatus(ctx context.Context, tx *gorm.DB, tenantID, id uuid.UUID, status string) error {
  return r.updateColumn(ctx, tx, tenantID, id, "status", status)
}

func (r *testExecutionRepo) UpdateRemarks(ctx context.Context, tx *gorm.DB, tenantID, id uuid.UUID, remarks string) error {
  return r.updateColumn(ctx, tx, tenantID, id, "remarks", remarks)
}

func (r *testExecutionRepo) UpdateResult(ctx context.Context, tx *gorm.DB, tenantID, id uuid.UUID, result string) error {
  return r.updateColumn(ctx, tx, tenantID, id, "result", result)
}

func (r *testExecutionRepo) UpdateOverallResult(ctx context.Context, tx *gorm.DB, tenantID, id uuid.UUID, memo datatypes.JSON) error {
  return r.updateColumn(ctx, tx, tenantID, id, "overall_execution_result", memo)
}

func (r *testExecutionRepo) updateColumn(ctx context.Context, tx *gorm.DB, tenantID, id uuid.UUID, column string, value interface{}) error {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  res := transaction.WithContext(ctx).
    Model(&types.TestExecution{}).
    Where("id = ? AND tenant_id = ?", id, tenantID).
    Update(column, value)
  if res.Error != nil {
    return res.Error
  }
  if res.RowsAffected == 0 {
    return gorm.ErrRecordNotFound
  }
  return nil
}
