package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"golang.org/x/crypto/bcrypt"

	"circleshare/internal/config"
	"circleshare/internal/model"
)

// mockUserRepository implements repository.UserRepository with per-test
// function fields; methods a test does not set fall back to zero behavior.
type mockUserRepository struct {
	createFn           func(ctx context.Context, user *model.User) error
	getByIDFn          func(ctx context.Context, id int64) (*model.User, error)
	getByUsernameFn    func(ctx context.Context, username string) (*model.User, error)
	existsByUsernameFn func(ctx context.Context, username string) (bool, error)
	summariesFn        func(ctx context.Context, ids []int64) (map[int64]model.UserSummary, error)

	createCalls []*model.User
}

func (m *mockUserRepository) Create(ctx context.Context, user *model.User) error {
	m.createCalls = append(m.createCalls, user)
	if m.createFn != nil {
		return m.createFn(ctx, user)
	}
	user.ID = int64(len(m.createCalls))
	user.CreatedAt = time.Now()
	return nil
}

func (m *mockUserRepository) GetByID(ctx context.Context, id int64) (*model.User, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, model.ErrUserNotFound
}

func (m *mockUserRepository) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	if m.getByUsernameFn != nil {
		return m.getByUsernameFn(ctx, username)
	}
	return nil, model.ErrUserNotFound
}

func (m *mockUserRepository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	if m.existsByUsernameFn != nil {
		return m.existsByUsernameFn(ctx, username)
	}
	return false, nil
}

func (m *mockUserRepository) Search(ctx context.Context, query string, limit int) ([]model.UserSummary, error) {
	return nil, nil
}

func (m *mockUserRepository) Summaries(ctx context.Context, ids []int64) (map[int64]model.UserSummary, error) {
	if m.summariesFn != nil {
		return m.summariesFn(ctx, ids)
	}
	return map[int64]model.UserSummary{}, nil
}

func (m *mockUserRepository) UpdateProfile(ctx context.Context, userID int64, req *model.UpdateProfileRequest) (*model.User, error) {
	return nil, model.ErrUserNotFound
}

func (m *mockUserRepository) IncrementFollowerCount(ctx context.Context, tx *sqlx.Tx, userID int64, delta int) error {
	return nil
}

func (m *mockUserRepository) IncrementFollowingCount(ctx context.Context, tx *sqlx.Tx, userID int64, delta int) error {
	return nil
}

func testAuthConfig() *config.Config {
	return &config.Config{
		JWTSecret:         "test-secret",
		AccessTokenMaxAge: 900,
	}
}

func TestAuthService_Register_Success(t *testing.T) {
	repo := &mockUserRepository{}
	svc := NewAuthService(repo, testAuthConfig())

	resp, err := svc.Register(context.Background(), &model.RegisterRequest{
		Username: "  Alice  ",
		Email:    "alice@example.com",
		Password: "hunter22isfine",
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	if resp.User.Username != "alice" {
		t.Errorf("username = %q, want lowercased and trimmed", resp.User.Username)
	}
	if resp.AccessToken == "" {
		t.Error("expected a signed access token")
	}
	if resp.ExpiresInS != 900 {
		t.Errorf("ExpiresInS = %d, want 900", resp.ExpiresInS)
	}
	if len(repo.createCalls) != 1 {
		t.Fatalf("Create called %d times", len(repo.createCalls))
	}
	if repo.createCalls[0].PasswordHashed == "hunter22isfine" {
		t.Error("password stored in plaintext")
	}
}

func TestAuthService_Register_Validation(t *testing.T) {
	cases := []struct {
		name string
		req  model.RegisterRequest
	}{
		{"short username", model.RegisterRequest{Username: "ab", Email: "a@b.com", Password: "longenough"}},
		{"bad email", model.RegisterRequest{Username: "alice", Email: "not-an-email", Password: "longenough"}},
		{"short password", model.RegisterRequest{Username: "alice", Email: "a@b.com", Password: "short"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo := &mockUserRepository{}
			svc := NewAuthService(repo, testAuthConfig())

			if _, err := svc.Register(context.Background(), &tc.req); err == nil {
				t.Error("expected a validation error")
			}
			if len(repo.createCalls) != 0 {
				t.Error("invalid registration reached the store")
			}
		})
	}
}

func TestAuthService_Register_UsernameTaken(t *testing.T) {
	repo := &mockUserRepository{
		existsByUsernameFn: func(ctx context.Context, username string) (bool, error) {
			return true, nil
		},
	}
	svc := NewAuthService(repo, testAuthConfig())

	_, err := svc.Register(context.Background(), &model.RegisterRequest{
		Username: "alice",
		Email:    "alice@example.com",
		Password: "hunter22isfine",
	})
	if !errors.Is(err, model.ErrUsernameExists) {
		t.Errorf("err = %v, want ErrUsernameExists", err)
	}
}

func TestAuthService_Login(t *testing.T) {
	hashed, err := bcrypt.GenerateFromPassword([]byte("hunter22isfine"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	repo := &mockUserRepository{
		getByUsernameFn: func(ctx context.Context, username string) (*model.User, error) {
			if username != "alice" {
				return nil, model.ErrUserNotFound
			}
			return &model.User{ID: 1, Username: "alice", PasswordHashed: string(hashed)}, nil
		},
	}
	svc := NewAuthService(repo, testAuthConfig())

	resp, err := svc.Login(context.Background(), &model.LoginRequest{Username: "Alice", Password: "hunter22isfine"})
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if resp.User.ID != 1 || resp.AccessToken == "" {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestAuthService_Login_BadCredentials(t *testing.T) {
	hashed, _ := bcrypt.GenerateFromPassword([]byte("rightpassword"), bcrypt.MinCost)
	repo := &mockUserRepository{
		getByUsernameFn: func(ctx context.Context, username string) (*model.User, error) {
			if username == "alice" {
				return &model.User{ID: 1, Username: "alice", PasswordHashed: string(hashed)}, nil
			}
			return nil, model.ErrUserNotFound
		},
	}
	svc := NewAuthService(repo, testAuthConfig())

	// Unknown user and wrong password collapse into the same error, so the
	// response does not reveal which usernames exist.
	if _, err := svc.Login(context.Background(), &model.LoginRequest{Username: "alice", Password: "wrongpassword"}); !errors.Is(err, model.ErrInvalidCredentials) {
		t.Errorf("wrong password: err = %v, want ErrInvalidCredentials", err)
	}
	if _, err := svc.Login(context.Background(), &model.LoginRequest{Username: "nobody", Password: "whatever"}); !errors.Is(err, model.ErrInvalidCredentials) {
		t.Errorf("unknown user: err = %v, want ErrInvalidCredentials", err)
	}
}
