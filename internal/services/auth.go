package services

import (
  "context"
  "fmt"
  "strings"
  "time"

  "github.com/golang-jwt/jwt/v5"
  "github.com/google/uuid"
  "golang.org/x/crypto/bcrypt"

  "github.com/auditlens/auditlens-backend/internal/platform/apierr"
  "github.com/auditlens/auditlens-backend/internal/platform/logger"
  "github.com/auditlens/auditlens-backend/internal/repos"
  "github.com/auditlens/auditlens-backend/internal/types"
  "github.com/auditlens/auditlens-backend/internal/utils"
)

type AuthClaims struct {
  UserID   uuid.UUID
  TenantID uuid.UUID
  ClientID uuid.UUID
}

type RegisterInput struct {
  TenantID uuid.UUID
  ClientID *uuid.UUID
  Email    string
  Password string
  FullName string
  Role     string
}

type AuthService interface {
  Register(ctx context.Context, input RegisterInput) (*types.User, error)
  Login(ctx context.Context, email, password string) (string, *types.User, error)
  ParseToken(tokenString string) (*AuthClaims, error)
}

type authService struct {
  log      *logger.Logger
  users    repos.UserRepo
  secret   []byte
  tokenTTL time.Duration
}

func NewAuthService(baseLog *logger.Logger, users repos.UserRepo) AuthService {
  log := baseLog.With("service", "AuthService")
  return &authService{
    log:      log,
    users:    users,
    secret:   []byte(utils.GetEnv("JWT_SECRET", "dev-secret-change-me", log)),
    tokenTTL: time.Duration(utils.GetEnvAsInt("JWT_TTL_HOURS", 12, log)) * time.Hour,
  }
}

func (s *authService) Register(ctx context.Context, input RegisterInput) (*types.User, error) {
  if input.TenantID == uuid.Nil {
    return nil, apierr.Validation("tenant id is required")
  }
  if strings.TrimSpace(input.Email) == "" {
    return nil, apierr.Validation("email is required")
  }
  if len(input.Password) < 8 {
    return nil, apierr.Validation("password must be at least 8 characters")
  }

  existing, err := s.users.GetByEmail(ctx, nil, input.Email)
  if err != nil {
    return nil, err
  }
  if existing != nil {
    return nil, apierr.StateConflict("a user with this email already exists")
  }

  hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
  if err != nil {
    return nil, err
  }

  role := input.Role
  if role == "" {
    role = "auditor"
  }
  return s.users.Create(ctx, nil, &types.User{
    TenantID:     input.TenantID,
    ClientID:     input.ClientID,
    Email:        input.Email,
    PasswordHash: string(hash),
    FullName:     input.FullName,
    Role:         role,
  })
}

func (s *authService) Login(ctx context.Context, email, password string) (string, *types.User, error) {
  user, err := s.users.GetByEmail(ctx, nil, email)
  if err != nil {
    return "", nil, err
  }
  if user == nil {
    return "", nil, apierr.Validation("invalid credentials")
  }
  if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
    return "", nil, apierr.Validation("invalid credentials")
  }

  claims := jwt.MapClaims{
    "user_id":   user.ID.String(),
    "tenant_id": user.TenantID.String(),
    "exp":       time.Now().Add(s.tokenTTL).Unix(),
    "iat":       time.Now().Unix(),
  }
  if user.ClientID != nil {
    claims["client_id"] = user.ClientID.String()
  }
  token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
  if err != nil {
    return "", nil, err
  }
  return token, user, nil
}

func (s *authService) ParseToken(tokenString string) (*AuthClaims, error) {
  parsed, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
    if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
      return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
    }
    return s.secret, nil
  })
  if err != nil || !parsed.Valid {
    return nil, apierr.New(401, "UNAUTHORIZED", fmt.Errorf("invalid token"))
  }
  claims, ok := parsed.Claims.(jwt.MapClaims)
  if !ok {
    return nil, apierr.New(401, "UNAUTHORIZED", fmt.Errorf("invalid claims"))
  }

  out := &AuthClaims{}
  if v, ok := claims["user_id"].(string); ok {
    out.UserID, _ = uuid.Parse(v)
  }
  if v, ok := claims["tenant_id"].(string); ok {
    out.TenantID, _ = uuid.Parse(v)
  }
  if v, ok := claims["client_id"].(string); ok {
    out.ClientID, _ = uuid.Parse(v)
  }
  if out.UserID == uuid.Nil || out.TenantID == uuid.Nil {
    return nil, apierr.New(401, "UNAUTHORIZED", fmt.Errorf("token missing identity"))
  }
  return out, nil
}
