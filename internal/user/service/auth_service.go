package service

import (
	"context"
	stderrors "errors"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"codequest/internal/common/cache"
	"codequest/internal/user/repository"
	appErr "codequest/pkg/errors"
	"codequest/pkg/utils/logger"

	"go.uber.org/zap"
)

const (
	loginFailUserKeyPrefix = "login:fail:username:"
	loginFailIPKeyPrefix   = "login:fail:ip:"

	defaultMaxLoginFailures = 5
	defaultLoginFailWindow  = 15 * time.Minute
)

// LoginLimitConfig bounds failed login attempts per username and per
// client IP inside a rolling window.
type LoginLimitConfig struct {
	MaxFailures int
	Window      time.Duration
}

// AuthService handles registration, password login and token issuing.
type AuthService struct {
	users      repository.UserRepository
	cache      cache.BasicOps
	tokens     TokenConfig
	loginLimit LoginLimitConfig
}

func NewAuthService(users repository.UserRepository, cacheClient cache.BasicOps, tokens TokenConfig, loginLimit LoginLimitConfig) *AuthService {
	if loginLimit.MaxFailures <= 0 {
		loginLimit.MaxFailures = defaultMaxLoginFailures
	}
	if loginLimit.Window <= 0 {
		loginLimit.Window = defaultLoginFailWindow
	}
	return &AuthService{
		users:      users,
		cache:      cacheClient,
		tokens:     tokens,
		loginLimit: loginLimit,
	}
}

// Register creates a password account. Email is optional.
func (s *AuthService) Register(ctx context.Context, username, email, password string) (*repository.User, error) {
	username = strings.TrimSpace(username)
	email = normalizeEmail(email)

	if err := validateUsername(username); err != nil {
		return nil, err
	}
	if err := validatePassword(password); err != nil {
		return nil, err
	}
	if err := validateEmail(email); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErr.Wrap(err, appErr.InternalServerError)
	}
	hashString := string(hash)

	user := &repository.User{
		Username:     username,
		PasswordHash: &hashString,
		Role:         repository.UserRoleUser,
	}
	if email != "" {
		user.Email = &email
	}

	if err := s.users.Create(ctx, nil, user); err != nil {
		return nil, mapUserCreateError(err)
	}
	return user, nil
}

// Login verifies credentials and returns a signed access token.
// Failures count against both the username and the client IP.
func (s *AuthService) Login(ctx context.Context, username, password, clientIP string) (string, *repository.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return "", nil, appErr.New(appErr.InvalidCredentials)
	}

	if err := s.checkLoginLimit(ctx, username, clientIP); err != nil {
		return "", nil, err
	}

	user, err := s.users.GetByUsername(ctx, nil, username)
	if err != nil {
		return "", nil, appErr.Wrap(err, appErr.DatabaseError)
	}
	if user == nil || user.PasswordHash == nil {
		s.recordLoginFailure(ctx, username, clientIP)
		return "", nil, appErr.New(appErr.InvalidCredentials)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(*user.PasswordHash), []byte(password)); err != nil {
		s.recordLoginFailure(ctx, username, clientIP)
		return "", nil, appErr.New(appErr.InvalidCredentials)
	}

	s.clearLoginFailure(ctx, username, clientIP)

	token, err := s.generateToken(user.ID, user.Role)
	if err != nil {
		return "", nil, err
	}
	return token, user, nil
}

// CurrentUser resolves the authenticated user's profile.
func (s *AuthService) CurrentUser(ctx context.Context, userID string) (*repository.User, error) {
	user, err := s.users.GetByID(ctx, nil, userID)
	if err != nil {
		return nil, appErr.Wrap(err, appErr.DatabaseError)
	}
	if user == nil {
		return nil, appErr.New(appErr.UserNotFound)
	}
	return user, nil
}

func (s *AuthService) checkLoginLimit(ctx context.Context, username, clientIP string) error {
	if s.cache == nil {
		return nil
	}
	if s.getFailCount(ctx, loginFailUserKeyPrefix+username) >= int64(s.loginLimit.MaxFailures) {
		return appErr.New(appErr.LoginAttemptsExceeded)
	}
	if clientIP != "" && s.getFailCount(ctx, loginFailIPKeyPrefix+clientIP) >= int64(s.loginLimit.MaxFailures) {
		return appErr.New(appErr.LoginAttemptsExceeded)
	}
	return nil
}

func (s *AuthService) recordLoginFailure(ctx context.Context, username, clientIP string) {
	if s.cache == nil {
		return
	}
	s.incrementFailKey(ctx, loginFailUserKeyPrefix+username)
	if clientIP != "" {
		s.incrementFailKey(ctx, loginFailIPKeyPrefix+clientIP)
	}
}

func (s *AuthService) clearLoginFailure(ctx context.Context, username, clientIP string) {
	if s.cache == nil {
		return
	}
	keys := []string{loginFailUserKeyPrefix + username}
	if clientIP != "" {
		keys = append(keys, loginFailIPKeyPrefix+clientIP)
	}
	if err := s.cache.Del(ctx, keys...); err != nil {
		logger.Warn(ctx, "clear login failure counters failed", zap.Error(err))
	}
}

func (s *AuthService) getFailCount(ctx context.Context, key string) int64 {
	value, err := s.cache.Get(ctx, key)
	if err != nil || value == "" {
		return 0
	}
	count, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0
	}
	return count
}

func (s *AuthService) incrementFailKey(ctx context.Context, key string) {
	count, err := s.cache.Incr(ctx, key)
	if err != nil {
		logger.Warn(ctx, "record login failure failed", zap.String("key", key), zap.Error(err))
		return
	}
	// First failure starts the rolling window.
	if count == 1 {
		if err := s.cache.Expire(ctx, key, s.loginLimit.Window); err != nil {
			logger.Warn(ctx, "set login failure window failed", zap.String("key", key), zap.Error(err))
		}
	}
}

func mapUserCreateError(err error) error {
	switch {
	case stderrors.Is(err, repository.ErrUsernameExists):
		return appErr.New(appErr.UsernameAlreadyExists)
	case stderrors.Is(err, repository.ErrEmailExists):
		return appErr.New(appErr.EmailAlreadyExists)
	case stderrors.Is(err, repository.ErrDuplicate):
		return appErr.New(appErr.RecordAlreadyExists)
	default:
		return appErr.Wrap(err, appErr.DatabaseError)
	}
}
