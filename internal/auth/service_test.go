package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/alertops/alertd/internal/cache"
	"github.com/alertops/alertd/internal/database"
)

func setupAuthService(t *testing.T) *Service {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	mem := cache.NewMemory()
	t.Cleanup(mem.Stop)

	tokens := NewTokenManager("access-secret", "refresh-secret", 15*time.Minute, 24*time.Hour)
	return NewService(db, mem, tokens)
}

func TestRegister(t *testing.T) {
	svc := setupAuthService(t)

	user, err := svc.Register("ops@example.com", "s3cret-pass", "Ops")
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if user.Role != "user" {
		t.Errorf("Role = %s, want user", user.Role)
	}
	if user.Password == "s3cret-pass" {
		t.Error("password must be stored hashed")
	}

	if _, err := svc.Register("ops@example.com", "other-pass", "Dup"); !errors.Is(err, ErrEmailTaken) {
		t.Errorf("err = %v, want ErrEmailTaken", err)
	}
}

func TestLogin(t *testing.T) {
	svc := setupAuthService(t)
	ctx := context.Background()

	if _, err := svc.Register("ops@example.com", "s3cret-pass", "Ops"); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	user, pair, err := svc.Login(ctx, "ops@example.com", "s3cret-pass")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if user.Email != "ops@example.com" {
		t.Errorf("Email = %s", user.Email)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatal("expected a full token pair")
	}

	claims, err := svc.tokens.VerifyAccess(pair.AccessToken)
	if err != nil {
		t.Fatalf("VerifyAccess failed: %v", err)
	}
	if claims.UserID != user.ID || claims.Role != "user" {
		t.Errorf("claims = %+v", claims)
	}

	if _, _, err := svc.Login(ctx, "ops@example.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("wrong password err = %v, want ErrInvalidCredentials", err)
	}
	if _, _, err := svc.Login(ctx, "nobody@example.com", "s3cret-pass"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("unknown email err = %v, want ErrInvalidCredentials", err)
	}
}

func TestRefresh_Rotation(t *testing.T) {
	svc := setupAuthService(t)
	ctx := context.Background()

	svc.Register("ops@example.com", "s3cret-pass", "Ops")
	_, pair, err := svc.Login(ctx, "ops@example.com", "s3cret-pass")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	rotated, err := svc.Refresh(ctx, pair.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if rotated.RefreshToken == pair.RefreshToken {
		t.Error("refresh must issue a new refresh token")
	}

	// The consumed token is revoked and cannot be replayed.
	if _, err := svc.Refresh(ctx, pair.RefreshToken); !errors.Is(err, ErrInvalidRefresh) {
		t.Errorf("replayed refresh err = %v, want ErrInvalidRefresh", err)
	}

	// The rotated token still works.
	if _, err := svc.Refresh(ctx, rotated.RefreshToken); err != nil {
		t.Errorf("rotated token refresh failed: %v", err)
	}
}

func TestRefresh_RejectsGarbage(t *testing.T) {
	svc := setupAuthService(t)

	if _, err := svc.Refresh(context.Background(), "not-a-jwt"); !errors.Is(err, ErrInvalidRefresh) {
		t.Errorf("err = %v, want ErrInvalidRefresh", err)
	}
}

func TestRefresh_RejectsAccessToken(t *testing.T) {
	svc := setupAuthService(t)
	ctx := context.Background()

	svc.Register("ops@example.com", "s3cret-pass", "Ops")
	_, pair, _ := svc.Login(ctx, "ops@example.com", "s3cret-pass")

	// Access tokens are signed with a different secret and carry no JTI.
	if _, err := svc.Refresh(ctx, pair.AccessToken); !errors.Is(err, ErrInvalidRefresh) {
		t.Errorf("err = %v, want ErrInvalidRefresh", err)
	}
}

func TestLogout(t *testing.T) {
	svc := setupAuthService(t)
	ctx := context.Background()

	svc.Register("ops@example.com", "s3cret-pass", "Ops")
	_, pair, _ := svc.Login(ctx, "ops@example.com", "s3cret-pass")

	svc.Logout(ctx, pair.RefreshToken)

	if _, err := svc.Refresh(ctx, pair.RefreshToken); !errors.Is(err, ErrInvalidRefresh) {
		t.Errorf("refresh after logout err = %v, want ErrInvalidRefresh", err)
	}

	// Garbage tokens are ignored without panicking.
	svc.Logout(ctx, "not-a-jwt")
}
