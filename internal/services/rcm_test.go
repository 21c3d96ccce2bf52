package services

import (
  "context"
  "testing"

  "github.com/google/uuid"

  "github.com/auditlens/auditlens-backend/internal/platform/apierr"
  "github.com/auditlens/auditlens-backend/internal/repos"
)

func newRcmService(t *testing.T) (RcmService, uuid.UUID, uuid.UUID) {
  t.Helper()
  log := testLogger(t)
  db := testDB(t)
  svc := NewRcmService(log, repos.NewRCMRepo(db, log), repos.NewTestAttributeRepo(db, log))
  return svc, uuid.New(), uuid.New()
}

func TestCreateRcmValidation(t *testing.T) {
  svc, tenantID, clientID := newRcmService(t)
  ctx := context.Background()

  cases := []struct {
    name  string
    input CreateRcmInput
  }{
    {"missing client", CreateRcmInput{ControlID: "ITGC-01", ControlName: "Password Policy"}},
    {"missing control id", CreateRcmInput{ClientID: clientID, ControlName: "Password Policy"}},
    {"missing control name", CreateRcmInput{ClientID: clientID, ControlID: "ITGC-01"}},
  }
  for _, tc := range cases {
    t.Run(tc.name, func(t *testing.T) {
      _, err := svc.CreateRcm(ctx, tenantID, tc.input)
      ae, ok := apierr.As(err)
      if !ok || ae.Status != 400 {
        t.Fatalf("want 400 validation error, got %v", err)
      }
    })
  }

  rcm, err := svc.CreateRcm(ctx, tenantID, CreateRcmInput{
    ClientID:    clientID,
    ControlID:   "  ITGC-01  ",
    ControlName: "Password Policy",
    Frequency:   "quarterly",
  })
  if err != nil {
    t.Fatalf("CreateRcm: %v", err)
  }
  if rcm.ControlID != "ITGC-01" {
    t.Fatalf("control id not trimmed: %q", rcm.ControlID)
  }
}

func TestAttributeLifecycle(t *testing.T) {
  svc, tenantID, clientID := newRcmService(t)
  ctx := context.Background()

  rcm, err := svc.CreateRcm(ctx, tenantID, CreateRcmInput{
    ClientID:    clientID,
    ControlID:   "ITGC-02",
    ControlName: "Account Lockout",
  })
  if err != nil {
    t.Fatalf("CreateRcm: %v", err)
  }

  _, err = svc.CreateAttribute(ctx, tenantID, uuid.New(), AttributeInput{AttributeName: "Threshold"})
  if ae, ok := apierr.As(err); !ok || ae.Status != 404 {
    t.Fatalf("unknown rcm: want 404, got %v", err)
  }

  attr, err := svc.CreateAttribute(ctx, tenantID, rcm.ID, AttributeInput{
    AttributeName: "Threshold",
    TestSteps:     "Check lockout threshold <= 5",
  })
  if err != nil {
    t.Fatalf("CreateAttribute: %v", err)
  }

  updated, err := svc.UpdateAttribute(ctx, tenantID, attr.ID, AttributeInput{
    AttributeName:        "Lockout Threshold",
    AttributeDescription: "Failed attempts before lockout",
    TestSteps:            "Check lockout threshold <= 3",
  })
  if err != nil {
    t.Fatalf("UpdateAttribute: %v", err)
  }
  if updated.ID != attr.ID {
    t.Fatalf("update created a new row: %s != %s", updated.ID, attr.ID)
  }
  if updated.AttributeName != "Lockout Threshold" {
    t.Fatalf("name not updated: %q", updated.AttributeName)
  }

  _, attrs, err := svc.GetRcm(ctx, tenantID, rcm.ID)
  if err != nil {
    t.Fatalf("GetRcm: %v", err)
  }
  if len(attrs) != 1 || attrs[0].TestSteps != "Check lockout threshold <= 3" {
    t.Fatalf("unexpected attributes: %+v", attrs)
  }

  if err := svc.DeleteAttribute(ctx, tenantID, attr.ID); err != nil {
    t.Fatalf("DeleteAttribute: %v", err)
  }
  _, attrs, err = svc.GetRcm(ctx, tenantID, rcm.ID)
  if err != nil {
    t.Fatalf("GetRcm after delete: %v", err)
  }
  if len(attrs) != 0 {
    t.Fatalf("deleted attribute still listed: %+v", attrs)
  }

  if err := svc.DeleteAttribute(ctx, tenantID, attr.ID); err == nil {
    t.Fatal("deleting a deleted attribute should fail")
  }
}

func TestAttributeTenantScoping(t *testing.T) {
  svc, tenantID, clientID := newRcmService(t)
  ctx := context.Background()

  rcm, err := svc.CreateRcm(ctx, tenantID, CreateRcmInput{
    ClientID:    clientID,
    ControlID:   "ITGC-03",
    ControlName: "Access Review",
  })
  if err != nil {
    t.Fatalf("CreateRcm: %v", err)
  }
  attr, err := svc.CreateAttribute(ctx, tenantID, rcm.ID, AttributeInput{AttributeName: "Reviewer sign-off"})
  if err != nil {
    t.Fatalf("CreateAttribute: %v", err)
  }

  otherTenant := uuid.New()
  if _, _, err := svc.GetRcm(ctx, otherTenant, rcm.ID); err == nil {
    t.Fatal("cross-tenant rcm read should fail")
  }
  if _, err := svc.UpdateAttribute(ctx, otherTenant, attr.ID, AttributeInput{AttributeName: "x"}); err == nil {
    t.Fatal("cross-tenant attribute update should fail")
  }
}
