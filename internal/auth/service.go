package auth

import (
	"context"
	"fmt"
	"log"
	"time"

	"crypto-trading-saas/internal/database"
	"crypto-trading-saas/internal/plans"
)

// Service handles authentication operations
type Service struct {
	repo            *database.Repository
	jwtManager      *JWTManager
	passwordManager *PasswordManager
	catalog         *plans.Catalog
	config          Config
}

// NewService creates a new authentication service
func NewService(repo *database.Repository, catalog *plans.Catalog, config Config) *Service {
	if config.JWTSecret == "" {
		log.Fatal("JWT secret is required")
	}

	if config.AccessTokenDuration == 0 {
		config.AccessTokenDuration = 15 * time.Minute
	}
	if config.RefreshTokenDuration == 0 {
		config.RefreshTokenDuration = 7 * 24 * time.Hour
	}

	return &Service{
		repo:            repo,
		jwtManager:      NewJWTManager(config.JWTSecret, config.AccessTokenDuration, config.RefreshTokenDuration),
		passwordManager: NewPasswordManager(DefaultBcryptCost, config.MinPasswordLength),
		catalog:         catalog,
		config:          config,
	}
}

// GetJWTManager returns the JWT manager for use in middleware
func (s *Service) GetJWTManager() *JWTManager {
	return s.jwtManager
}

// Register creates a new user account on the free tier
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*database.User, error) {
	// Check if email exists
	existing, err := s.repo.GetUserByEmail(ctx, req.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to check email: %w", err)
	}
	if existing != nil {
		return nil, ErrEmailExists
	}

	// Validate password strength
	if err := s.passwordManager.ValidatePasswordStrength(req.Password); err != nil {
		return nil, AuthError{Code: "WEAK_PASSWORD", Message: err.Error()}
	}

	// Hash password
	passwordHash, err := s.passwordManager.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &database.User{
		Email:        req.Email,
		PasswordHash: passwordHash,
		Name:         req.Name,
	}

	if err := s.repo.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	// Every user starts on the free trial subscription
	if _, err := s.repo.CreateDefaultSubscription(ctx, user.ID, s.catalog.Version()); err != nil {
		log.Printf("Warning: failed to create default subscription for user %s: %v", user.ID, err)
	}

	return user, nil
}

// Login authenticates a user and returns tokens
func (s *Service) Login(ctx context.Context, req LoginRequest, ipAddress, userAgent string) (*LoginResponse, error) {
	user, err := s.repo.GetUserByEmail(ctx, req.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil {
		return nil, ErrInvalidCredentials
	}

	if !s.passwordManager.VerifyPassword(req.Password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	sub, err := s.repo.GetSubscriptionByUserID(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}
	tier := plans.TierFree
	if sub != nil {
		tier = sub.PlanTier
	}

	claims := UserClaims{
		UserID:           user.ID,
		Email:            user.Email,
		SubscriptionTier: string(tier),
		IsAdmin:          user.IsAdmin,
	}

	tokens, err := s.jwtManager.GenerateTokenPair(claims)
	if err != nil {
		return nil, fmt.Errorf("failed to generate tokens: %w", err)
	}

	session := &database.UserSession{
		UserID:           user.ID,
		RefreshTokenHash: HashRefreshToken(tokens.RefreshToken),
		IPAddress:        ipAddress,
		UserAgent:        userAgent,
		ExpiresAt:        time.Now().Add(s.config.RefreshTokenDuration),
	}
	if err := s.repo.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	if err := s.repo.UpdateUserLastLogin(ctx, user.ID); err != nil {
		log.Printf("Warning: failed to update last login for user %s: %v", user.ID, err)
	}

	return &LoginResponse{
		User:         s.toUserResponse(user, tier),
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		ExpiresIn:    tokens.ExpiresIn,
	}, nil
}

// Refresh exchanges a valid refresh token for a new token pair. The old
// session is revoked so refresh tokens are single-use.
func (s *Service) Refresh(ctx context.Context, refreshToken, ipAddress, userAgent string) (*RefreshResponse, error) {
	session, err := s.repo.GetSessionByTokenHash(ctx, HashRefreshToken(refreshToken))
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if session == nil {
		return nil, ErrInvalidToken
	}

	user, err := s.repo.GetUserByID(ctx, session.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}

	sub, err := s.repo.GetSubscriptionByUserID(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}
	tier := plans.TierFree
	if sub != nil {
		tier = sub.PlanTier
	}

	claims := UserClaims{
		UserID:           user.ID,
		Email:            user.Email,
		SubscriptionTier: string(tier),
		IsAdmin:          user.IsAdmin,
	}

	tokens, err := s.jwtManager.GenerateTokenPair(claims)
	if err != nil {
		return nil, fmt.Errorf("failed to generate tokens: %w", err)
	}

	// Rotate: revoke the old session, store the new one
	if err := s.repo.RevokeSession(ctx, session.ID); err != nil {
		return nil, fmt.Errorf("failed to revoke session: %w", err)
	}
	newSession := &database.UserSession{
		UserID:           user.ID,
		RefreshTokenHash: HashRefreshToken(tokens.RefreshToken),
		IPAddress:        ipAddress,
		UserAgent:        userAgent,
		ExpiresAt:        time.Now().Add(s.config.RefreshTokenDuration),
	}
	if err := s.repo.CreateSession(ctx, newSession); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return &RefreshResponse{
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		ExpiresIn:    tokens.ExpiresIn,
	}, nil
}

// Logout revokes the session tied to the given refresh token
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	session, err := s.repo.GetSessionByTokenHash(ctx, HashRefreshToken(refreshToken))
	if err != nil {
		return fmt.Errorf("failed to get session: %w", err)
	}
	if session == nil {
		return nil
	}
	return s.repo.RevokeSession(ctx, session.ID)
}

// LogoutAll revokes every active session for a user
func (s *Service) LogoutAll(ctx context.Context, userID string) error {
	return s.repo.RevokeUserSessions(ctx, userID)
}

// GetUser returns the profile view of a user
func (s *Service) GetUser(ctx context.Context, userID string) (*UserResponse, error) {
	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}

	sub, err := s.repo.GetSubscriptionByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}
	tier := plans.TierFree
	if sub != nil {
		tier = sub.PlanTier
	}

	resp := s.toUserResponse(user, tier)
	return &resp, nil
}

func (s *Service) toUserResponse(user *database.User, tier plans.PlanTier) UserResponse {
	return UserResponse{
		ID:               user.ID,
		Email:            user.Email,
		Name:             user.Name,
		WalletAddress:    user.WalletAddress,
		SubscriptionTier: tier,
		IsAdmin:          user.IsAdmin,
		CreatedAt:        user.CreatedAt,
		LastLoginAt:      user.LastLoginAt,
	}
}
