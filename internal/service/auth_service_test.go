package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/ignatzorin/centaur-backend/internal/models"
	"github.com/ignatzorin/centaur-backend/internal/pkg/apperror"
	"github.com/ignatzorin/centaur-backend/internal/repository"
)

// mockAuthRepository реализует AuthRepository для тестов.
type mockAuthRepository struct {
	usersByEmail map[string]*models.User
	usersByID    map[uuid.UUID]*models.User
	sessions     map[string]*models.Session
}

func newMockAuthRepository() *mockAuthRepository {
	return &mockAuthRepository{
		usersByEmail: make(map[string]*models.User),
		usersByID:    make(map[uuid.UUID]*models.User),
		sessions:     make(map[string]*models.Session),
	}
}

func (m *mockAuthRepository) Create(ctx context.Context, user *models.User) error {
	if _, ok := m.usersByEmail[user.Email]; ok {
		return repository.ErrEmailTaken
	}
	user.ID = uuid.New()
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now
	user.IsActive = true
	m.usersByEmail[user.Email] = user
	m.usersByID[user.ID] = user
	return nil
}

func (m *mockAuthRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	if user, ok := m.usersByEmail[email]; ok {
		return user, nil
	}
	return nil, repository.ErrUserNotFound
}

func (m *mockAuthRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	if user, ok := m.usersByID[id]; ok {
		return user, nil
	}
	return nil, repository.ErrUserNotFound
}

func (m *mockAuthRepository) CreateSession(ctx context.Context, session *models.Session) error {
	session.ID = uuid.New()
	session.CreatedAt = time.Now()
	m.sessions[session.RefreshToken] = session
	return nil
}

func (m *mockAuthRepository) GetSession(ctx context.Context, refreshToken string) (*models.Session, error) {
	if s, ok := m.sessions[refreshToken]; ok {
		return s, nil
	}
	return nil, repository.ErrSessionNotFound
}

func (m *mockAuthRepository) DeleteSession(ctx context.Context, refreshToken string) error {
	delete(m.sessions, refreshToken)
	return nil
}

func (m *mockAuthRepository) UpdateLastLoginAt(ctx context.Context, userID uuid.UUID) error {
	if user, ok := m.usersByID[userID]; ok {
		now := time.Now()
		user.LastLoginAt = &now
	}
	return nil
}

func TestAuthService_RegisterAndLogin(t *testing.T) {
	repo := newMockAuthRepository()
	tokenManager := NewTokenManager("access", "refresh", time.Minute, time.Hour)
	service := NewAuthService(repo, tokenManager)

	ctx := context.Background()
	res, err := service.Register(ctx, RegisterInput{
		Email:    "Test@Example.com",
		Password: "Password123",
	}, SessionMeta{IP: "127.0.0.1"})
	if err != nil {
		t.Fatalf("register returned error: %v", err)
	}

	if res.User.ID == uuid.Nil {
		t.Fatalf("user ID должен быть установлен")
	}
	if res.User.Role != models.RoleMember {
		t.Fatalf("ожидалась роль member, получили %q", res.User.Role)
	}
	if res.User.Email != "test@example.com" {
		t.Fatalf("email должен быть приведён к нижнему регистру")
	}
	if len(repo.sessions) != 1 {
		t.Fatalf("ожидалась одна сессия, получили %d", len(repo.sessions))
	}

	loginRes, err := service.Login(ctx, LoginInput{
		Email:    "test@example.com",
		Password: "Password123",
	}, SessionMeta{})
	if err != nil {
		t.Fatalf("login returned error: %v", err)
	}
	if loginRes.TokenPair.AccessToken == "" {
		t.Fatalf("ожидался access токен")
	}

	userID, role, err := tokenManager.ParseAccess(loginRes.TokenPair.AccessToken)
	if err != nil {
		t.Fatalf("access токен не разобран: %v", err)
	}
	if userID != res.User.ID || role != models.RoleMember {
		t.Fatalf("неожиданные клеймы: %s %s", userID, role)
	}
}

func TestAuthService_Register_DuplicateEmail(t *testing.T) {
	repo := newMockAuthRepository()
	service := NewAuthService(repo, NewTokenManager("a", "r", time.Minute, time.Hour))
	ctx := context.Background()

	if _, err := service.Register(ctx, RegisterInput{Email: "dup@example.com", Password: "Password123"}, SessionMeta{}); err != nil {
		t.Fatalf("register returned error: %v", err)
	}
	_, err := service.Register(ctx, RegisterInput{Email: "dup@example.com", Password: "Password123"}, SessionMeta{})
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) || appErr.Code != apperror.ErrCodeConflict {
		t.Fatalf("ожидался конфликт, получили %v", err)
	}
}

func TestAuthService_Register_WeakPassword(t *testing.T) {
	service := NewAuthService(newMockAuthRepository(), NewTokenManager("a", "r", time.Minute, time.Hour))

	_, err := service.Register(context.Background(), RegisterInput{Email: "weak@example.com", Password: "password"}, SessionMeta{})
	if !apperror.IsValidation(err) {
		t.Fatalf("ожидалась ошибка валидации, получили %v", err)
	}
}

func TestAuthService_Login_WrongPassword(t *testing.T) {
	repo := newMockAuthRepository()
	service := NewAuthService(repo, NewTokenManager("a", "r", time.Minute, time.Hour))
	ctx := context.Background()

	if _, err := service.Register(ctx, RegisterInput{Email: "user@example.com", Password: "Password123"}, SessionMeta{}); err != nil {
		t.Fatalf("register returned error: %v", err)
	}
	_, err := service.Login(ctx, LoginInput{Email: "user@example.com", Password: "Password999"}, SessionMeta{})
	if !errors.Is(err, apperror.ErrInvalidCredentials) {
		t.Fatalf("ожидалась ошибка учётных данных, получили %v", err)
	}
	_, err = service.Login(ctx, LoginInput{Email: "nobody@example.com", Password: "Password123"}, SessionMeta{})
	if !errors.Is(err, apperror.ErrInvalidCredentials) {
		t.Fatalf("неизвестный email должен давать ту же ошибку, получили %v", err)
	}
}

func TestAuthService_Refresh(t *testing.T) {
	repo := newMockAuthRepository()
	tokenManager := NewTokenManager("access-secret", "refresh-secret", time.Minute, time.Hour)
	service := NewAuthService(repo, tokenManager)

	ctx := context.Background()
	hash, _ := bcrypt.GenerateFromPassword([]byte("Password123"), bcrypt.DefaultCost)
	user := &models.User{
		ID:           uuid.New(),
		Email:        "user@example.com",
		PasswordHash: string(hash),
		Role:         models.RoleMember,
		IsActive:     true,
	}
	repo.usersByEmail[user.Email] = user
	repo.usersByID[user.ID] = user

	tokenPair, accessExp, refreshExp, err := tokenManager.GeneratePair(user)
	if err != nil {
		t.Fatalf("не удалось сгенерировать токены: %v", err)
	}
	if accessExp.After(refreshExp) {
		t.Fatalf("access должен истекать раньше refresh")
	}

	repo.sessions[tokenPair.RefreshToken] = &models.Session{
		ID:           uuid.New(),
		UserID:       user.ID,
		RefreshToken: tokenPair.RefreshToken,
		ExpiresAt:    refreshExp,
	}

	newPair, err := service.Refresh(ctx, tokenPair.RefreshToken, SessionMeta{})
	if err != nil {
		t.Fatalf("refresh вернул ошибку: %v", err)
	}
	if newPair.RefreshToken == tokenPair.RefreshToken {
		t.Fatalf("ожидался новый refresh токен")
	}

	if _, err := service.Refresh(ctx, tokenPair.RefreshToken, SessionMeta{}); !errors.Is(err, apperror.ErrUnauthorized) {
		t.Fatalf("повторный refresh старым токеном должен отклоняться, получили %v", err)
	}
}

func TestTokenManager_RejectsForeignSecret(t *testing.T) {
	user := &models.User{ID: uuid.New(), Role: models.RoleAdmin}
	pair, _, _, err := NewTokenManager("one", "one-r", time.Minute, time.Hour).GeneratePair(user)
	if err != nil {
		t.Fatalf("не удалось сгенерировать токены: %v", err)
	}

	other := NewTokenManager("two", "two-r", time.Minute, time.Hour)
	if _, _, err := other.ParseAccess(pair.AccessToken); err == nil {
		t.Fatalf("токен с чужой подписью должен отклоняться")
	}
	if _, err := other.ParseRefresh(pair.RefreshToken); err == nil {
		t.Fatalf("refresh с чужой подписью должен отклоняться")
	}
}
