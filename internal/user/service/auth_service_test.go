package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"codequest/internal/common/cache"
	"codequest/internal/common/db"
	"codequest/internal/user/repository"
	appErr "codequest/pkg/errors"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type fakeUserRepo struct {
	users map[string]*repository.User
	next  int
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]*repository.User)}
}

func (r *fakeUserRepo) Create(ctx context.Context, tx db.Transaction, user *repository.User) error {
	for _, existing := range r.users {
		if existing.Username == user.Username {
			return repository.ErrUsernameExists
		}
		if existing.Email != nil && user.Email != nil && *existing.Email == *user.Email {
			return repository.ErrEmailExists
		}
	}
	if user.ID == "" {
		r.next++
		user.ID = fmt.Sprintf("user-%d", r.next)
	}
	if user.Role == "" {
		user.Role = repository.UserRoleUser
	}
	user.CreatedAt = time.Now()
	clone := *user
	r.users[user.ID] = &clone
	return nil
}

func (r *fakeUserRepo) GetByID(ctx context.Context, tx db.Transaction, id string) (*repository.User, error) {
	user, ok := r.users[id]
	if !ok {
		return nil, nil
	}
	clone := *user
	return &clone, nil
}

func (r *fakeUserRepo) GetByUsername(ctx context.Context, tx db.Transaction, username string) (*repository.User, error) {
	for _, user := range r.users {
		if user.Username == username {
			clone := *user
			return &clone, nil
		}
	}
	return nil, nil
}

func (r *fakeUserRepo) GetByEmail(ctx context.Context, tx db.Transaction, email string) (*repository.User, error) {
	for _, user := range r.users {
		if user.Email != nil && *user.Email == email {
			clone := *user
			return &clone, nil
		}
	}
	return nil, nil
}

func (r *fakeUserRepo) GetByGitHubID(ctx context.Context, tx db.Transaction, githubID int64) (*repository.User, error) {
	for _, user := range r.users {
		if user.GitHubID != nil && *user.GitHubID == githubID {
			clone := *user
			return &clone, nil
		}
	}
	return nil, nil
}

func newTestAuthService(t *testing.T) (*AuthService, *fakeUserRepo, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	redisCache, err := cache.NewRedisCacheWithClient(client)
	if err != nil {
		t.Fatalf("create redis cache failed: %v", err)
	}
	t.Cleanup(func() {
		_ = redisCache.Close()
	})

	repo := newFakeUserRepo()
	svc := NewAuthService(repo, redisCache, TokenConfig{
		Secret:    "test-secret",
		Issuer:    "codequest",
		AccessTTL: time.Hour,
	}, LoginLimitConfig{MaxFailures: 3, Window: time.Minute})
	return svc, repo, mr
}

func registerUser(t *testing.T, svc *AuthService, username, password string) *repository.User {
	t.Helper()
	user, err := svc.Register(context.Background(), username, "", password)
	if err != nil {
		t.Fatalf("register %s failed: %v", username, err)
	}
	return user
}

func TestRegisterValidation(t *testing.T) {
	svc, _, _ := newTestAuthService(t)
	ctx := context.Background()

	cases := []struct {
		name     string
		username string
		email    string
		password string
		want     appErr.ErrorCode
	}{
		{"short username", "ab", "", "secret123", appErr.InvalidUsername},
		{"leading digit", "1user", "", "secret123", appErr.InvalidUsername},
		{"short password", "gooduser", "", "a1", appErr.InvalidPassword},
		{"password without digit", "gooduser", "", "onlyletters", appErr.InvalidPassword},
		{"bad email", "gooduser", "not-an-email", "secret123", appErr.InvalidEmail},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Register(ctx, tc.username, tc.email, tc.password)
			if appErr.GetCode(err) != tc.want {
				t.Fatalf("got %v, want code %d", err, tc.want)
			}
		})
	}
}

func TestRegisterNormalizesEmail(t *testing.T) {
	svc, _, _ := newTestAuthService(t)

	user, err := svc.Register(context.Background(), "demo", "  Demo@Example.COM ", "secret123")
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if user.Email == nil || *user.Email != "demo@example.com" {
		t.Fatalf("email not normalized: %v", user.Email)
	}
	if user.Role != repository.UserRoleUser {
		t.Fatalf("role not defaulted: %q", user.Role)
	}
}

func TestRegisterDuplicateUsername(t *testing.T) {
	svc, _, _ := newTestAuthService(t)
	registerUser(t, svc, "demo", "secret123")

	_, err := svc.Register(context.Background(), "demo", "", "secret456")
	if appErr.GetCode(err) != appErr.UsernameAlreadyExists {
		t.Fatalf("expected UsernameAlreadyExists, got %v", err)
	}
}

func TestLoginIssuesParseableToken(t *testing.T) {
	svc, _, _ := newTestAuthService(t)
	created := registerUser(t, svc, "demo", "secret123")

	token, user, err := svc.Login(context.Background(), "demo", "secret123", "10.0.0.1")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if user.ID != created.ID {
		t.Fatalf("wrong user returned: %+v", user)
	}

	userID, role, err := svc.ParseToken(token)
	if err != nil {
		t.Fatalf("parse token failed: %v", err)
	}
	if userID != created.ID || role != repository.UserRoleUser {
		t.Fatalf("token claims wrong: %s %s", userID, role)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	svc, _, _ := newTestAuthService(t)
	registerUser(t, svc, "demo", "secret123")

	_, _, err := svc.Login(context.Background(), "demo", "wrong-pass1", "10.0.0.1")
	if appErr.GetCode(err) != appErr.InvalidCredentials {
		t.Fatalf("expected InvalidCredentials, got %v", err)
	}
}

func TestLoginUnknownUserSameError(t *testing.T) {
	svc, _, _ := newTestAuthService(t)

	_, _, err := svc.Login(context.Background(), "ghost", "secret123", "10.0.0.1")
	if appErr.GetCode(err) != appErr.InvalidCredentials {
		t.Fatalf("expected InvalidCredentials, got %v", err)
	}
}

func TestLoginFailureLimit(t *testing.T) {
	svc, _, _ := newTestAuthService(t)
	registerUser(t, svc, "demo", "secret123")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, _, err := svc.Login(ctx, "demo", "wrong-pass1", "10.0.0.1"); appErr.GetCode(err) != appErr.InvalidCredentials {
			t.Fatalf("attempt %d: got %v", i+1, err)
		}
	}

	// Correct password is refused once the limit is reached.
	_, _, err := svc.Login(ctx, "demo", "secret123", "10.0.0.1")
	if appErr.GetCode(err) != appErr.LoginAttemptsExceeded {
		t.Fatalf("expected LoginAttemptsExceeded, got %v", err)
	}
}

func TestLoginLimitAppliesPerIP(t *testing.T) {
	svc, _, _ := newTestAuthService(t)
	registerUser(t, svc, "alice", "secret123")
	registerUser(t, svc, "bob", "secret123")
	ctx := context.Background()

	// Burn the IP counter across different usernames.
	for _, username := range []string{"alice", "bob", "alice"} {
		_, _, _ = svc.Login(ctx, username, "wrong-pass1", "10.0.0.9")
	}

	_, _, err := svc.Login(ctx, "bob", "secret123", "10.0.0.9")
	if appErr.GetCode(err) != appErr.LoginAttemptsExceeded {
		t.Fatalf("expected LoginAttemptsExceeded via IP counter, got %v", err)
	}

	// A different IP is unaffected for a username with room left.
	if _, _, err := svc.Login(ctx, "bob", "secret123", "10.0.0.10"); err != nil {
		t.Fatalf("login from clean IP failed: %v", err)
	}
}

func TestLoginLimitWindowExpires(t *testing.T) {
	svc, _, mr := newTestAuthService(t)
	registerUser(t, svc, "demo", "secret123")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, _, _ = svc.Login(ctx, "demo", "wrong-pass1", "10.0.0.1")
	}
	if _, _, err := svc.Login(ctx, "demo", "secret123", "10.0.0.1"); appErr.GetCode(err) != appErr.LoginAttemptsExceeded {
		t.Fatalf("expected LoginAttemptsExceeded, got %v", err)
	}

	mr.FastForward(2 * time.Minute)

	if _, _, err := svc.Login(ctx, "demo", "secret123", "10.0.0.1"); err != nil {
		t.Fatalf("login after window expiry failed: %v", err)
	}
}

func TestLoginSuccessClearsFailures(t *testing.T) {
	svc, _, _ := newTestAuthService(t)
	registerUser(t, svc, "demo", "secret123")
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, _, _ = svc.Login(ctx, "demo", "wrong-pass1", "10.0.0.1")
	}
	if _, _, err := svc.Login(ctx, "demo", "secret123", "10.0.0.1"); err != nil {
		t.Fatalf("login under limit failed: %v", err)
	}

	// Counters restart from zero after a success.
	for i := 0; i < 2; i++ {
		_, _, _ = svc.Login(ctx, "demo", "wrong-pass1", "10.0.0.1")
	}
	if _, _, err := svc.Login(ctx, "demo", "secret123", "10.0.0.1"); err != nil {
		t.Fatalf("counters were not cleared: %v", err)
	}
}

func TestParseTokenRejectsForeignSecret(t *testing.T) {
	svc, repo, _ := newTestAuthService(t)
	registerUser(t, svc, "demo", "secret123")

	other := NewAuthService(repo, nil, TokenConfig{
		Secret:    "other-secret",
		Issuer:    "codequest",
		AccessTTL: time.Hour,
	}, LoginLimitConfig{})
	token, _, err := other.Login(context.Background(), "demo", "secret123", "")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	_, _, err = svc.ParseToken(token)
	if appErr.GetCode(err) != appErr.TokenInvalid {
		t.Fatalf("expected TokenInvalid, got %v", err)
	}
}

func TestParseTokenRejectsForeignIssuer(t *testing.T) {
	svc, repo, _ := newTestAuthService(t)
	registerUser(t, svc, "demo", "secret123")

	other := NewAuthService(repo, nil, TokenConfig{
		Secret:    "test-secret",
		Issuer:    "someone-else",
		AccessTTL: time.Hour,
	}, LoginLimitConfig{})
	token, _, err := other.Login(context.Background(), "demo", "secret123", "")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	_, _, err = svc.ParseToken(token)
	if appErr.GetCode(err) != appErr.TokenInvalid {
		t.Fatalf("expected TokenInvalid, got %v", err)
	}
}

func TestParseTokenExpired(t *testing.T) {
	repo := newFakeUserRepo()
	svc := NewAuthService(repo, nil, TokenConfig{
		Secret:    "test-secret",
		Issuer:    "codequest",
		AccessTTL: -time.Minute,
	}, LoginLimitConfig{})
	registerUser(t, svc, "demo", "secret123")

	token, _, err := svc.Login(context.Background(), "demo", "secret123", "")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	_, _, err = svc.ParseToken(token)
	if appErr.GetCode(err) != appErr.TokenExpired {
		t.Fatalf("expected TokenExpired, got %v", err)
	}
}

func TestCurrentUser(t *testing.T) {
	svc, _, _ := newTestAuthService(t)
	created := registerUser(t, svc, "demo", "secret123")

	user, err := svc.CurrentUser(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("current user failed: %v", err)
	}
	if user.Username != "demo" {
		t.Fatalf("wrong user: %+v", user)
	}

	_, err = svc.CurrentUser(context.Background(), "missing")
	if appErr.GetCode(err) != appErr.UserNotFound {
		t.Fatalf("expected UserNotFound, got %v", err)
	}
}
