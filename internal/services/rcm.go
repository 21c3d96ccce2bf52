package services

import (
  "context"
  "strings"

  "github.com/google/uuid"

  "github.com/auditlens/auditlens-backend/internal/platform/apierr"
  "github.com/auditlens/auditlens-backend/internal/platform/logger"
  "github.com/auditlens/auditlens-backend/internal/repos"
  "github.com/auditlens/auditlens-backend/internal/types"
)

type CreateRcmInput struct {
  ClientID        uuid.UUID `json:"client_id"`
  ControlID       string    `json:"control_id"`
  ControlName     string    `json:"control_name"`
  ControlText     string    `json:"control_text"`
  RiskDescription string    `json:"risk_description"`
  Frequency       string    `json:"frequency"`
}

type AttributeInput struct {
  AttributeName        string `json:"attribute_name"`
  AttributeDescription string `json:"attribute_description"`
  TestSteps            string `json:"test_steps"`
}

// RcmService manages control matrix rows and the test attributes hanging off
// them. Attributes are what the comparator checks evidence against, so edits
// here change future evaluations only; stored verdicts keep the attribute
// set they were produced with.
type RcmService interface {
  CreateRcm(ctx context.Context, tenantID uuid.UUID, input CreateRcmInput) (*types.RCM, error)
  ListRcms(ctx context.Context, tenantID, clientID uuid.UUID) ([]*types.RCM, error)
  GetRcm(ctx context.Context, tenantID, rcmID uuid.UUID) (*types.RCM, []*types.TestAttribute, error)
  CreateAttribute(ctx context.Context, tenantID, rcmID uuid.UUID, input AttributeInput) (*types.TestAttribute, error)
  UpdateAttribute(ctx context.Context, tenantID, attributeID uuid.UUID, input AttributeInput) (*types.TestAttribute, error)
  DeleteAttribute(ctx context.Context, tenantID, attributeID uuid.UUID) error
}

type rcmService struct {
  log        *logger.Logger
  rcms       repos.RCMRepo
  attributes repos.TestAttributeRepo
}

func NewRcmService(baseLog *logger.Logger, rcms repos.RCMRepo, attributes repos.TestAttributeRepo) RcmService {
  return &rcmService{
    log:        baseLog.With("service", "RcmService"),
    rcms:       rcms,
    attributes: attributes,
  }
}

func (s *rcmService) CreateRcm(ctx context.Context, tenantID uuid.UUID, input CreateRcmInput) (*types.RCM, error) {
  if input.ClientID == uuid.Nil {
    return nil, apierr.Validation("client_id is required")
  }
  if strings.TrimSpace(input.ControlID) == "" {
    return nil, apierr.Validation("control_id is required")
  }
  if strings.TrimSpace(input.ControlName) == "" {
    return nil, apierr.Validation("control_name is required")
  }
  return s.rcms.Create(ctx, nil, &types.RCM{
    TenantID:        tenantID,
    ClientID:        input.ClientID,
    ControlID:       strings.TrimSpace(input.ControlID),
    ControlName:     strings.TrimSpace(input.ControlName),
    ControlText:     input.ControlText,
    RiskDescription: input.RiskDescription,
    Frequency:       input.Frequency,
  })
}

func (s *rcmService) ListRcms(ctx context.Context, tenantID, clientID uuid.UUID) ([]*types.RCM, error) {
  return s.rcms.ListByClient(ctx, nil, tenantID, clientID)
}

func (s *rcmService) GetRcm(ctx context.Context, tenantID, rcmID uuid.UUID) (*types.RCM, []*types.TestAttribute, error) {
  rcm, err := s.rcms.GetByID(ctx, nil, tenantID, rcmID)
  if err != nil {
    return nil, nil, err
  }
  if rcm == nil {
    return nil, nil, apierr.NotFound("rcm")
  }
  attrs, err := s.attributes.ListByRcmID(ctx, nil, tenantID, rcmID)
  if err != nil {
    return nil, nil, err
  }
  return rcm, attrs, nil
}

func (s *rcmService) CreateAttribute(ctx context.Context, tenantID, rcmID uuid.UUID, input AttributeInput) (*types.TestAttribute, error) {
  if strings.TrimSpace(input.AttributeName) == "" {
    return nil, apierr.Validation("attribute_name is required")
  }
  rcm, err := s.rcms.GetByID(ctx, nil, tenantID, rcmID)
  if err != nil {
    return nil, err
  }
  if rcm == nil {
    return nil, apierr.NotFound("rcm")
  }
  return s.attributes.Create(ctx, nil, &types.TestAttribute{
    TenantID:             tenantID,
    RcmID:                rcmID,
    AttributeName:        strings.TrimSpace(input.AttributeName),
    AttributeDescription: input.AttributeDescription,
    TestSteps:            input.TestSteps,
  })
}

func (s *rcmService) UpdateAttribute(ctx context.Context, tenantID, attributeID uuid.UUID, input AttributeInput) (*types.TestAttribute, error) {
  if strings.TrimSpace(input.AttributeName) == "" {
    return nil, apierr.Validation("attribute_name is required")
  }
  attr, err := s.attributes.GetByID(ctx, nil, tenantID, attributeID)
  if err != nil {
    return nil, err
  }
  if attr == nil {
    return nil, apierr.NotFound("test attribute")
  }
  attr.AttributeName = strings.TrimSpace(input.AttributeName)
  attr.AttributeDescription = input.AttributeDescription
  attr.TestSteps = input.TestSteps
  if err := s.attributes.Update(ctx, nil, attr); err != nil {
    return nil, err
  }
  return attr, nil
}

func (s *rcmService) DeleteAttribute(ctx context.Context, tenantID, attributeID uuid.UUID) error {
  attr, err := s.attributes.GetByID(ctx, nil, tenantID, attributeID)
  if err != nil {
    return err
  }
  if attr == nil {
    return apierr.NotFound("test attribute")
  }
  return s.attributes.SoftDeleteByID(ctx, nil, tenantID, attributeID)
}
