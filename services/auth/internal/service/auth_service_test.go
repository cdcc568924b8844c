package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/diagnosis/apartment-reservations/pkg/auth"
	"github.com/diagnosis/apartment-reservations/pkg/config"
	"github.com/diagnosis/apartment-reservations/services/auth/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUsers struct {
	mu    sync.Mutex
	users map[uuid.UUID]domain.User
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{users: map[uuid.UUID]domain.User{}}
}

func (f *fakeUsers) Create(ctx context.Context, u *domain.User) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.users {
		if existing.Email == u.Email {
			return nil, domain.ErrEmailExists
		}
	}
	created := *u
	created.CreatedAt = time.Now()
	created.UpdatedAt = created.CreatedAt
	f.users[u.ID] = created
	return &created, nil
}

func (f *fakeUsers) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, nil
}

func (f *fakeUsers) FindByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (f *fakeUsers) Search(ctx context.Context, term string, limit int) ([]domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	term = strings.ToLower(term)
	out := []domain.User{}
	for _, u := range f.users {
		if strings.HasPrefix(strings.ToLower(u.FirstName), term) || strings.HasPrefix(strings.ToLower(u.LastName), term) {
			out = append(out, u)
		}
	}
	return out, nil
}

var authCfg = config.AuthConfig{JWTSecret: "test-secret", AccessTokenTTL: time.Hour}

// cheap hashing keeps the suite fast
func newTestService(repo *fakeUsers) AuthService {
	svc := NewAuthService(repo, authCfg).(*authService)
	svc.hash = func(password string) (string, error) {
		return argon2id.CreateHash(password, &argon2id.Params{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32})
	}
	return svc
}

func TestRegister_NormalizesAndHashes(t *testing.T) {
	repo := newFakeUsers()
	svc := newTestService(repo)

	user, err := svc.Register(context.Background(), &domain.RegisterRequest{
		Email:     "  Ola@Example.COM ",
		Password:  "correct horse",
		FirstName: " Ola ",
		LastName:  "Nowak",
	})
	require.NoError(t, err)

	assert.Equal(t, "ola@example.com", user.Email)
	assert.Equal(t, "Ola", user.FirstName)
	assert.Equal(t, auth.RoleUser, user.Role)
	assert.NotEqual(t, "correct horse", user.PasswordHash)

	ok, err := argon2id.ComparePasswordAndHash("correct horse", user.PasswordHash)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRegister_Rejections(t *testing.T) {
	repo := newFakeUsers()
	svc := newTestService(repo)
	ctx := context.Background()

	_, err := svc.Register(ctx, &domain.RegisterRequest{Email: "not-an-email", Password: "longenough"})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = svc.Register(ctx, &domain.RegisterRequest{Email: "a@example.com", Password: "short"})
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Contains(t, err.Error(), "password")

	_, err = svc.Register(ctx, &domain.RegisterRequest{Email: "a@example.com", Password: "longenough"})
	require.NoError(t, err)
	_, err = svc.Register(ctx, &domain.RegisterRequest{Email: "A@example.com", Password: "longenough"})
	assert.ErrorIs(t, err, domain.ErrEmailExists)
}

func TestLogin(t *testing.T) {
	repo := newFakeUsers()
	svc := newTestService(repo)
	ctx := context.Background()

	user, err := svc.Register(ctx, &domain.RegisterRequest{Email: "ola@example.com", Password: "correct horse"})
	require.NoError(t, err)

	resp, err := svc.Login(ctx, &domain.LoginRequest{Email: "OLA@example.com", Password: "correct horse"})
	require.NoError(t, err)
	assert.Equal(t, int64(3600), resp.ExpiresIn)
	assert.Equal(t, user.ID, resp.User.ID)

	claims, err := auth.Parse(resp.AccessToken, authCfg.JWTSecret)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.Sub)
	assert.Equal(t, auth.RoleUser, claims.Role)

	_, err = svc.Login(ctx, &domain.LoginRequest{Email: "ola@example.com", Password: "wrong password"})
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)

	_, err = svc.Login(ctx, &domain.LoginRequest{Email: "nobody@example.com", Password: "correct horse"})
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
}

func TestGetUser(t *testing.T) {
	repo := newFakeUsers()
	svc := newTestService(repo)
	ctx := context.Background()

	user, err := svc.Register(ctx, &domain.RegisterRequest{Email: "ola@example.com", Password: "correct horse"})
	require.NoError(t, err)

	got, err := svc.GetUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, user.Email, got.Email)

	_, err = svc.GetUser(ctx, uuid.New())
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
}

func TestSearchUsers(t *testing.T) {
	repo := newFakeUsers()
	svc := newTestService(repo)
	ctx := context.Background()

	_, err := svc.Register(ctx, &domain.RegisterRequest{Email: "ola@example.com", Password: "correct horse", FirstName: "Ola", LastName: "Nowak"})
	require.NoError(t, err)
	_, err = svc.Register(ctx, &domain.RegisterRequest{Email: "jan@example.com", Password: "correct horse", FirstName: "Jan", LastName: "Kowalski"})
	require.NoError(t, err)

	users, err := svc.SearchUsers(ctx, "now", 10)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "Ola", users[0].FirstName)

	users, err = svc.SearchUsers(ctx, "   ", 10)
	require.NoError(t, err)
	assert.Empty(t, users)
}
