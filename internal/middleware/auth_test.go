package middleware

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/auditlens/auditlens-backend/internal/platform/logger"
	"github.com/auditlens/auditlens-backend/internal/repos"
	"github.com/auditlens/auditlens-backend/internal/services"
	"github.com/auditlens/auditlens-backend/internal/types"
)

func setupAuth(t *testing.T) (*AuthMiddleware, string, uuid.UUID) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	t.Setenv("JWT_SECRET", "middleware-test-secret")

	log, err := logger.New("dev")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&types.User{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}

	auth := services.NewAuthService(log, repos.NewUserRepo(db, log))
	tenantID := uuid.New()
	if _, err := auth.Register(context.Background(), services.RegisterInput{
		TenantID: tenantID,
		Email:    "mw@example.com",
		Password: "longenough",
	}); err != nil {
		t.Fatalf("register: %v", err)
	}
	token, _, err := auth.Login(context.Background(), "mw@example.com", "longenough")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	return NewAuthMiddleware(log, auth), token, tenantID
}

func protectedRouter(mw *AuthMiddleware) *gin.Engine {
	r := gin.New()
	r.GET("/protected", mw.RequireAuth(), func(c *gin.Context) {
		claims := ClaimsFrom(c)
		if claims == nil {
			c.JSON(http.StatusInternalServerError, gin.H{"message": "no claims"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"tenant_id": claims.TenantID.String()})
	})
	return r
}

func TestRequireAuthMissingToken(t *testing.T) {
	mw, _, _ := setupAuth(t)
	r := protectedRouter(mw)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status got=%d want=401", w.Code)
	}
	if !strings.Contains(w.Body.String(), "Authentication required.") {
		t.Fatalf("body got=%s", w.Body.String())
	}
}

func TestRequireAuthInvalidToken(t *testing.T) {
	mw, _, _ := setupAuth(t)
	r := protectedRouter(mw)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status got=%d want=401", w.Code)
	}
	if !strings.Contains(w.Body.String(), "Invalid or expired token.") {
		t.Fatalf("body got=%s", w.Body.String())
	}
}

func TestRequireAuthBearerHeader(t *testing.T) {
	mw, token, tenantID := setupAuth(t)
	r := protectedRouter(mw)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status got=%d body=%s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), tenantID.String()) {
		t.Fatalf("body got=%s", w.Body.String())
	}
}

func TestRequireAuthQueryToken(t *testing.T) {
	mw, token, _ := setupAuth(t)
	r := protectedRouter(mw)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected?token="+token, nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status got=%d body=%s", w.Code, w.Body.String())
	}
}
