package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/assessment-workflow-api/internal/models"
	appErrors "github.com/noah-isme/assessment-workflow-api/pkg/errors"
)

type fakeAuthRepo struct {
	users   map[string]*models.User
	byEmail map[string]*models.User
	tokens  map[string]*models.RefreshToken
}

func newFakeAuthRepo(users ...*models.User) *fakeAuthRepo {
	repo := &fakeAuthRepo{
		users:   map[string]*models.User{},
		byEmail: map[string]*models.User{},
		tokens:  map[string]*models.RefreshToken{},
	}
	for _, user := range users {
		repo.users[user.ID] = user
		repo.byEmail[user.Email] = user
	}
	return repo
}

func (f *fakeAuthRepo) FindByEmail(_ context.Context, email string) (*models.User, error) {
	if user, ok := f.byEmail[email]; ok {
		return user, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeAuthRepo) FindByID(_ context.Context, id string) (*models.User, error) {
	if user, ok := f.users[id]; ok {
		return user, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeAuthRepo) UpdateLastLogin(_ context.Context, _ string, _ time.Time) error { return nil }

func (f *fakeAuthRepo) UpdatePassword(_ context.Context, id, hash string, _ time.Time) error {
	f.users[id].PasswordHash = hash
	return nil
}

func (f *fakeAuthRepo) RevokeUserRefreshTokens(_ context.Context, userID string) error {
	for _, token := range f.tokens {
		if token.UserID == userID {
			token.Revoked = true
		}
	}
	return nil
}

func (f *fakeAuthRepo) CreateRefreshToken(_ context.Context, token *models.RefreshToken) error {
	f.tokens[token.Token] = token
	return nil
}

func (f *fakeAuthRepo) FindRefreshToken(_ context.Context, value string) (*models.RefreshToken, error) {
	if token, ok := f.tokens[value]; ok {
		return token, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeAuthRepo) RevokeRefreshToken(_ context.Context, id string, at time.Time) error {
	for _, token := range f.tokens {
		if token.ID == id {
			token.Revoked = true
			token.RevokedAt = &at
		}
	}
	return nil
}

func authFixture(t *testing.T) (*AuthService, *fakeAuthRepo) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("secret123"), bcrypt.MinCost)
	require.NoError(t, err)
	repo := newFakeAuthRepo(&models.User{
		ID:           "user-1",
		Email:        "lecturer@example.edu",
		PasswordHash: string(hash),
		FullName:     "Dr. Lecturer",
		Role:         models.RoleLecturer,
		Active:       true,
	})
	svc := NewAuthService(repo, &fakeAudit{}, nil, nil, AuthConfig{
		AccessTokenSecret:  "test-secret",
		AccessTokenExpiry:  15 * time.Minute,
		RefreshTokenExpiry: 24 * time.Hour,
		Issuer:             "assessment-workflow-api",
	})
	return svc, repo
}

func TestLoginSuccess(t *testing.T) {
	svc, repo := authFixture(t)

	resp, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "lecturer@example.edu",
		Password: "secret123",
	})
	require.NoError(t, err)
	require.NotEmpty(t, resp.AccessToken)
	require.NotEmpty(t, resp.RefreshToken)
	require.Equal(t, models.RoleLecturer, resp.User.Role)
	require.Contains(t, repo.tokens, resp.RefreshToken)

	claims, err := svc.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	require.Equal(t, "user-1", claims.UserID)
	require.Equal(t, models.RoleLecturer, claims.Role)
}

func TestLoginWrongPassword(t *testing.T) {
	svc, _ := authFixture(t)
	_, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "lecturer@example.edu",
		Password: "wrong",
	})
	require.True(t, appErrors.HasCode(err, appErrors.ErrInvalidCredentials))
}

func TestLoginInactiveAccount(t *testing.T) {
	svc, repo := authFixture(t)
	repo.users["user-1"].Active = false
	_, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "lecturer@example.edu",
		Password: "secret123",
	})
	require.True(t, appErrors.HasCode(err, appErrors.ErrInactiveAccount))
}

func TestRefreshRotatesToken(t *testing.T) {
	svc, repo := authFixture(t)
	login, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "lecturer@example.edu",
		Password: "secret123",
	})
	require.NoError(t, err)

	refreshed, err := svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: login.RefreshToken})
	require.NoError(t, err)
	require.NotEqual(t, login.RefreshToken, refreshed.RefreshToken)
	require.True(t, repo.tokens[login.RefreshToken].Revoked)

	_, err = svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: login.RefreshToken})
	require.True(t, appErrors.HasCode(err, appErrors.ErrUnauthorized))
}

func TestChangePasswordRevokesSessions(t *testing.T) {
	svc, repo := authFixture(t)
	login, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "lecturer@example.edu",
		Password: "secret123",
	})
	require.NoError(t, err)

	err = svc.ChangePassword(context.Background(), "user-1", models.ChangePasswordRequest{
		OldPassword: "secret123",
		NewPassword: "brand-new-pass",
	})
	require.NoError(t, err)
	require.True(t, repo.tokens[login.RefreshToken].Revoked)

	err = bcrypt.CompareHashAndPassword([]byte(repo.users["user-1"].PasswordHash), []byte("brand-new-pass"))
	require.NoError(t, err)
}
