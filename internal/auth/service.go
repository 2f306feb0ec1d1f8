package auth

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/alertops/alertd/internal/cache"
	"github.com/alertops/alertd/internal/database"
)

var (
	// ErrEmailTaken is returned when registering with an existing email
	ErrEmailTaken = errors.New("email already in use")
	// ErrInvalidCredentials is returned on a failed login
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidRefresh is returned for an unknown, expired or revoked refresh token
	ErrInvalidRefresh = errors.New("invalid refresh token")
)

const refreshKeyPrefix = "refresh:"

// TokenPair is an access token plus its rotating refresh token
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Service manages operator accounts and their sessions. Refresh tokens
// rotate on use: each token's JTI is stored in the cache with the refresh
// TTL, and a refresh deletes the old JTI before issuing a new one.
type Service struct {
	db     *gorm.DB
	cache  cache.Cache
	tokens *TokenManager
}

// NewService creates a new auth service
func NewService(db *gorm.DB, c cache.Cache, tokens *TokenManager) *Service {
	return &Service{db: db, cache: c, tokens: tokens}
}

// Register creates a new operator account. The returned user carries no
// password hash in its JSON form.
func (s *Service) Register(email, password, name string) (*database.User, error) {
	var existing database.User
	err := s.db.Where("email = ?", email).First(&existing).Error
	if err == nil {
		return nil, ErrEmailTaken
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &database.User{
		Email:    email,
		Password: string(hash),
		Name:     name,
		Role:     "user",
	}
	if err := s.db.Create(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

// Login verifies credentials and issues a token pair. A cache failure while
// storing the refresh JTI is logged but does not fail the login; the refresh
// token simply won't be honored later.
func (s *Service) Login(ctx context.Context, email, password string) (*database.User, *TokenPair, error) {
	var user database.User
	if err := s.db.Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrInvalidCredentials
		}
		return nil, nil, err
	}

	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)) != nil {
		return nil, nil, ErrInvalidCredentials
	}

	pair, err := s.issuePair(ctx, &user)
	if err != nil {
		return nil, nil, err
	}
	return &user, pair, nil
}

// Refresh rotates a refresh token: the presented JTI must exist in the cache,
// it is revoked, and a fresh pair is issued.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := s.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		return nil, ErrInvalidRefresh
	}

	stored, ok, err := s.cache.Get(ctx, refreshKeyPrefix+claims.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up refresh token: %w", err)
	}
	if !ok || stored != strconv.FormatUint(uint64(claims.UserID), 10) {
		return nil, ErrInvalidRefresh
	}

	if err := s.cache.Delete(ctx, refreshKeyPrefix+claims.ID); err != nil {
		log.Printf("AuthService: failed to revoke refresh token %s: %v", claims.ID, err)
	}

	var user database.User
	if err := s.db.First(&user, claims.UserID).Error; err != nil {
		return nil, ErrInvalidRefresh
	}
	return s.issuePair(ctx, &user)
}

// Logout revokes the refresh token's JTI. Invalid tokens are ignored.
func (s *Service) Logout(ctx context.Context, refreshToken string) {
	claims, err := s.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		return
	}
	if err := s.cache.Delete(ctx, refreshKeyPrefix+claims.ID); err != nil {
		log.Printf("AuthService: failed to revoke refresh token on logout: %v", err)
	}
}

func (s *Service) issuePair(ctx context.Context, user *database.User) (*TokenPair, error) {
	access, err := s.tokens.SignAccess(user.ID, user.Role)
	if err != nil {
		return nil, fmt.Errorf("failed to sign access token: %w", err)
	}

	jti := uuid.New().String()
	refresh, err := s.tokens.SignRefresh(user.ID, jti)
	if err != nil {
		return nil, fmt.Errorf("failed to sign refresh token: %w", err)
	}

	userID := strconv.FormatUint(uint64(user.ID), 10)
	if err := s.cache.Set(ctx, refreshKeyPrefix+jti, userID, s.tokens.RefreshTTL()); err != nil {
		log.Printf("AuthService: failed to store refresh token (non-fatal): %v", err)
	}

	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}
