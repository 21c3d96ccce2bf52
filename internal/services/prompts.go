package services

import (
  "context"
  "fmt"
  "strings"
  "time"

  "github.com/google/uuid"

  "github.com/auditlens/auditlens-backend/internal/platform/apierr"
  "github.com/auditlens/auditlens-backend/internal/platform/logger"
  "github.com/auditlens/auditlens-backend/internal/repos"
  "github.com/auditlens/auditlens-backend/internal/types"
)

// DefaultComparisonInstructions is the built-in fallback when neither a
// control-specific prompt nor a client default exists.
const DefaultComparisonInstructions = "Analyze the evidence and verify compliance with each requirement based on context."

const promptCacheTTL = 10 * time.Minute

const (
  PromptSourceRcm     = "rcm"
  PromptSourceClient  = "client_default"
  PromptSourceBuiltin = "builtin"
)

type PromptService interface {
  // ResolveComparisonInstructions walks the override hierarchy:
  // control-specific prompt, then client default, then the built-in text.
  ResolveComparisonInstructions(ctx context.Context, tenantID, clientID, rcmID uuid.UUID) (string, string, error)
  UpsertRcmPrompt(ctx context.Context, tenantID, clientID, rcmID uuid.UUID, text string) (*types.AIPrompt, error)
  SetClientDefault(ctx context.Context, tenantID, clientID uuid.UUID, text string) (*types.AIPrompt, error)
}

type promptService struct {
  log     *logger.Logger
  prompts repos.AIPromptRepo
  cache   CacheService
}

func NewPromptService(baseLog *logger.Logger, prompts repos.AIPromptRepo, cache CacheService) PromptService {
  return &promptService{
    log:     baseLog.With("service", "PromptService"),
    prompts: prompts,
    cache:   cache,
  }
}

func promptCacheKey(tenantID, clientID, rcmID uuid.UUID) string {
  return fmt.Sprintf("prompt:%s:%s:%s", tenantID, clientID, rcmID)
}

func (s *promptService) ResolveComparisonInstructions(ctx context.Context, tenantID, clientID, rcmID uuid.UUID) (string, string, error) {
  key := promptCacheKey(tenantID, clientID, rcmID)
  if s.cache != nil {
    if cached, ok := s.cache.Get(ctx, key); ok {
      source, text, found := strings.Cut(cached, "\x00")
      if found {
        return text, source, nil
      }
    }
  }

  rcmPrompt, err := s.prompts.GetByRcmID(ctx, nil, tenantID, clientID, rcmID)
  if err != nil {
    return "", "", err
  }
  if rcmPrompt != nil && strings.TrimSpace(rcmPrompt.PromptText) != "" {
    s.cacheResolved(ctx, key, PromptSourceRcm, rcmPrompt.PromptText)
    return rcmPrompt.PromptText, PromptSourceRcm, nil
  }

  defaultPrompt, err := s.prompts.GetClientDefault(ctx, nil, tenantID, clientID)
  if err != nil {
    return "", "", err
  }
  if defaultPrompt != nil && strings.TrimSpace(defaultPrompt.PromptText) != "" {
    s.cacheResolved(ctx, key, PromptSourceClient, defaultPrompt.PromptText)
    return defaultPrompt.PromptText, PromptSourceClient, nil
  }

  s.cacheResolved(ctx, key, PromptSourceBuiltin, DefaultComparisonInstructions)
  return DefaultComparisonInstructions, PromptSourceBuiltin, nil
}

func (s *promptService) cacheResolved(ctx context.Context, key, source, text string) {
  if s.cache == nil {
    return
  }
  s.cache.Set(ctx, key, source+"\x00"+text, promptCacheTTL)
}

func (s *promptService) UpsertRcmPrompt(ctx context.Context, tenantID, clientID, rcmID uuid.UUID, text string) (*types.AIPrompt, error) {
  if strings.TrimSpace(text) == "" {
    return nil, apierr.Validation("prompt text is required")
  }
  prompt, err := s.prompts.UpsertRcmPrompt(ctx, nil, &types.AIPrompt{
    TenantID:   tenantID,
    ClientID:   clientID,
    RcmID:      &rcmID,
    PromptText: text,
  })
  if err != nil {
    return nil, err
  }
  if s.cache != nil {
    s.cache.Del(ctx, promptCacheKey(tenantID, clientID, rcmID))
  }
  return prompt, nil
}

func (s *promptService) SetClientDefault(ctx context.Context, tenantID, clientID uuid.UUID, text string) (*types.AIPrompt, error) {
  if strings.TrimSpace(text) == "" {
    return nil, apierr.Validation("prompt text is required")
  }
  prompt, err := s.prompts.SetClientDefault(ctx, nil, &types.AIPrompt{
    TenantID:   tenantID,
    ClientID:   clientID,
    PromptText: text,
  })
  if err != nil {
    return nil, err
  }
  // the default feeds every control of the client, so the per-rcm cache
  // entries go stale together; short TTL covers the rest
  return prompt, nil
}
