package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/taskhub/core/internal/domain/entities"
	"github.com/taskhub/core/internal/infrastructure/config"
	"github.com/taskhub/core/internal/ports"
)

type mockUserRepo struct {
	createFn        func(ctx context.Context, user *entities.User) error
	getByIDFn       func(ctx context.Context, id int64) (*entities.User, error)
	getByEmailFn    func(ctx context.Context, email string) (*entities.User, error)
	getByUsernameFn func(ctx context.Context, username string) (*entities.User, error)
}

func (m *mockUserRepo) Create(ctx context.Context, user *entities.User) error {
	if m.createFn != nil {
		return m.createFn(ctx, user)
	}
	user.ID = 1
	return nil
}

func (m *mockUserRepo) GetByID(ctx context.Context, id int64) (*entities.User, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, entities.ErrUserNotFound
}

func (m *mockUserRepo) GetByEmail(ctx context.Context, email string) (*entities.User, error) {
	if m.getByEmailFn != nil {
		return m.getByEmailFn(ctx, email)
	}
	return nil, entities.ErrUserNotFound
}

func (m *mockUserRepo) GetByUsername(ctx context.Context, username string) (*entities.User, error) {
	if m.getByUsernameFn != nil {
		return m.getByUsernameFn(ctx, username)
	}
	return nil, entities.ErrUserNotFound
}

type mockAuthRepo struct {
	tokens map[string]*entities.RefreshToken
}

func newMockAuthRepo() *mockAuthRepo {
	return &mockAuthRepo{tokens: make(map[string]*entities.RefreshToken)}
}

func (m *mockAuthRepo) CreateRefreshToken(ctx context.Context, id uuid.UUID, userID int64, tokenHash string, expiresAt time.Time) error {
	m.tokens[tokenHash] = &entities.RefreshToken{
		ID:        id,
		UserID:    userID,
		TokenHash: tokenHash,
		ExpiresAt: expiresAt,
	}
	return nil
}

func (m *mockAuthRepo) GetRefreshToken(ctx context.Context, tokenHash string) (*entities.RefreshToken, error) {
	token, ok := m.tokens[tokenHash]
	if !ok {
		return nil, entities.ErrUnauthorized
	}
	return token, nil
}

func (m *mockAuthRepo) RevokeRefreshToken(ctx context.Context, tokenHash string) error {
	if token, ok := m.tokens[tokenHash]; ok {
		now := time.Now()
		token.RevokedAt = &now
	}
	return nil
}

func (m *mockAuthRepo) RevokeAllUserTokens(ctx context.Context, userID int64) error {
	now := time.Now()
	for _, token := range m.tokens {
		if token.UserID == userID {
			token.RevokedAt = &now
		}
	}
	return nil
}

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{
		Secret:           "test-secret-for-unit-tests",
		ExpiresIn:        time.Hour,
		RefreshExpiresIn: 24 * time.Hour,
		Issuer:           "taskhub-test",
	}
}

func activeUser() *entities.User {
	hash, _ := bcrypt.GenerateFromPassword([]byte("correct horse"), bcrypt.MinCost)
	return &entities.User{
		ID:           3,
		Email:        "a@b.test",
		Username:     "alice",
		PasswordHash: string(hash),
		Role:         entities.UserRoleMember,
		IsActive:     true,
	}
}

func TestLoginAndValidateToken(t *testing.T) {
	user := activeUser()
	userRepo := &mockUserRepo{
		getByEmailFn: func(ctx context.Context, email string) (*entities.User, error) { return user, nil },
	}
	svc := NewAuthService(userRepo, newMockAuthRepo(), testJWTConfig(), testLogger())

	resp, err := svc.Login(context.Background(), ports.LoginRequest{Email: "a@b.test", Password: "correct horse"})
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}
	if resp.AccessToken == "" || resp.RefreshToken == "" {
		t.Fatal("tokens must be issued")
	}
	if resp.TokenType != "Bearer" {
		t.Errorf("token type = %q, want Bearer", resp.TokenType)
	}

	claims, err := svc.ValidateToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("ValidateToken returned error: %v", err)
	}
	if claims.UserID != 3 || claims.Role != entities.UserRoleMember {
		t.Errorf("claims = %+v, want user 3 member", claims)
	}
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	user := activeUser()
	userRepo := &mockUserRepo{
		getByEmailFn: func(ctx context.Context, email string) (*entities.User, error) { return user, nil },
	}
	svc := NewAuthService(userRepo, newMockAuthRepo(), testJWTConfig(), testLogger())

	if _, err := svc.Login(context.Background(), ports.LoginRequest{Email: "a@b.test", Password: "wrong"}); err == nil {
		t.Fatal("expected error for wrong password")
	}
}

func TestLoginRejectsInactiveAccount(t *testing.T) {
	user := activeUser()
	user.IsActive = false
	userRepo := &mockUserRepo{
		getByEmailFn: func(ctx context.Context, email string) (*entities.User, error) { return user, nil },
	}
	svc := NewAuthService(userRepo, newMockAuthRepo(), testJWTConfig(), testLogger())

	if _, err := svc.Login(context.Background(), ports.LoginRequest{Email: "a@b.test", Password: "correct horse"}); err == nil {
		t.Fatal("expected error for inactive account")
	}
}

func TestRefreshTokenRotation(t *testing.T) {
	user := activeUser()
	userRepo := &mockUserRepo{
		getByEmailFn: func(ctx context.Context, email string) (*entities.User, error) { return user, nil },
		getByIDFn:    func(ctx context.Context, id int64) (*entities.User, error) { return user, nil },
	}
	authRepo := newMockAuthRepo()
	svc := NewAuthService(userRepo, authRepo, testJWTConfig(), testLogger())

	resp, err := svc.Login(context.Background(), ports.LoginRequest{Email: "a@b.test", Password: "correct horse"})
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}

	refreshed, err := svc.RefreshToken(context.Background(), resp.RefreshToken)
	if err != nil {
		t.Fatalf("RefreshToken returned error: %v", err)
	}
	if refreshed.RefreshToken == resp.RefreshToken {
		t.Error("refresh must rotate the token")
	}

	// The old token is revoked and can no longer be used.
	if _, err := svc.RefreshToken(context.Background(), resp.RefreshToken); err == nil {
		t.Error("revoked token must be rejected")
	}
}

func TestValidateTokenRejectsGarbage(t *testing.T) {
	svc := NewAuthService(&mockUserRepo{}, newMockAuthRepo(), testJWTConfig(), testLogger())

	if _, err := svc.ValidateToken("not.a.token"); err == nil {
		t.Fatal("expected error for malformed token")
	}
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	user := activeUser()
	userRepo := &mockUserRepo{
		getByEmailFn: func(ctx context.Context, email string) (*entities.User, error) { return user, nil },
	}
	svc := NewAuthService(userRepo, newMockAuthRepo(), testJWTConfig(), testLogger())

	_, err := svc.Register(context.Background(), ports.RegisterRequest{
		Email:    "a@b.test",
		Username: "someone",
		Password: "longenough",
	})
	if err == nil {
		t.Fatal("expected error for duplicate email")
	}
}
