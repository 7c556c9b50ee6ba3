package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"codequest/internal/common/cache"
	"codequest/internal/user/repository"
	appErr "codequest/pkg/errors"
)

const (
	defaultAuthorizeURL = "https://github.com/login/oauth/authorize"
	defaultTokenURL     = "https://github.com/login/oauth/access_token"
	defaultUserURL      = "https://api.github.com/user"
	defaultEmailsURL    = "https://api.github.com/user/emails"

	oauthStateKeyPrefix = "oauth:github:state:"
	oauthStateTTL       = 10 * time.Minute
)

// GitHubOAuthConfig holds the GitHub application settings.
type GitHubOAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Scope        string
	AllowSignup  bool
	AuthorizeURL string
	TokenURL     string
	UserURL      string
	EmailsURL    string
	HTTPTimeout  time.Duration
}

// GitHubOAuthService runs the authorization-code flow with PKCE. The
// code verifier lives in Redis keyed by state until the callback.
type GitHubOAuthService struct {
	config GitHubOAuthConfig
	users  repository.UserRepository
	auth   *AuthService
	cache  cache.BasicOps
	client *http.Client
}

func NewGitHubOAuthService(config GitHubOAuthConfig, users repository.UserRepository, auth *AuthService, cacheClient cache.BasicOps) *GitHubOAuthService {
	if config.AuthorizeURL == "" {
		config.AuthorizeURL = defaultAuthorizeURL
	}
	if config.TokenURL == "" {
		config.TokenURL = defaultTokenURL
	}
	if config.UserURL == "" {
		config.UserURL = defaultUserURL
	}
	if config.EmailsURL == "" {
		config.EmailsURL = defaultEmailsURL
	}
	if config.HTTPTimeout <= 0 {
		config.HTTPTimeout = 10 * time.Second
	}
	return &GitHubOAuthService{
		config: config,
		users:  users,
		auth:   auth,
		cache:  cacheClient,
		client: &http.Client{Timeout: config.HTTPTimeout},
	}
}

// AuthorizeURL generates state and a PKCE verifier, stores the verifier
// under the state, and returns the GitHub authorization URL.
func (s *GitHubOAuthService) AuthorizeURL(ctx context.Context) (string, error) {
	if err := s.ensureConfigured(); err != nil {
		return "", err
	}

	state, err := randomURLToken(16)
	if err != nil {
		return "", appErr.Wrap(err, appErr.InternalServerError)
	}
	verifier, err := randomURLToken(32)
	if err != nil {
		return "", appErr.Wrap(err, appErr.InternalServerError)
	}

	if err := s.cache.Set(ctx, oauthStateKeyPrefix+state, verifier, oauthStateTTL); err != nil {
		return "", appErr.Wrap(err, appErr.CacheSetFailed)
	}

	challenge := codeChallenge(verifier)
	params := url.Values{}
	params.Set("client_id", s.config.ClientID)
	params.Set("state", state)
	params.Set("code_challenge", challenge)
	params.Set("code_challenge_method", "S256")
	params.Set("scope", s.config.Scope)
	params.Set("redirect_uri", s.config.RedirectURI)
	if s.config.AllowSignup {
		params.Set("allow_signup", "true")
	} else {
		params.Set("allow_signup", "false")
	}

	return s.config.AuthorizeURL + "?" + params.Encode(), nil
}

// Authenticate finishes the callback: verifies state, exchanges the
// code, resolves or creates the account and returns an access token.
func (s *GitHubOAuthService) Authenticate(ctx context.Context, code, state string) (string, *repository.User, error) {
	if err := s.ensureConfigured(); err != nil {
		return "", nil, err
	}
	if code == "" || state == "" {
		return "", nil, appErr.New(appErr.OAuthStateMismatch)
	}

	verifier, err := s.consumeState(ctx, state)
	if err != nil {
		return "", nil, err
	}

	accessToken, err := s.exchangeCode(ctx, code, verifier)
	if err != nil {
		return "", nil, err
	}

	profile, err := s.fetchUser(ctx, accessToken)
	if err != nil {
		return "", nil, err
	}
	email, err := s.fetchPrimaryEmail(ctx, accessToken)
	if err != nil {
		return "", nil, err
	}

	user, err := s.getOrCreateUser(ctx, profile.ID, profile.Login, email)
	if err != nil {
		return "", nil, err
	}

	token, err := s.auth.generateToken(user.ID, user.Role)
	if err != nil {
		return "", nil, err
	}
	return token, user, nil
}

func (s *GitHubOAuthService) ensureConfigured() error {
	if s.config.ClientID == "" || s.config.ClientSecret == "" || s.config.RedirectURI == "" {
		return appErr.New(appErr.OAuthNotConfigured)
	}
	return nil
}

// consumeState looks up and deletes the verifier so each state is
// single use.
func (s *GitHubOAuthService) consumeState(ctx context.Context, state string) (string, error) {
	key := oauthStateKeyPrefix + state
	verifier, err := s.cache.Get(ctx, key)
	if err != nil {
		return "", appErr.Wrap(err, appErr.CacheError)
	}
	if verifier == "" {
		return "", appErr.New(appErr.OAuthStateMismatch)
	}
	_ = s.cache.Del(ctx, key)
	return verifier, nil
}

type githubTokenResponse struct {
	AccessToken string `json:"access_token"`
}

func (s *GitHubOAuthService) exchangeCode(ctx context.Context, code, verifier string) (string, error) {
	form := url.Values{}
	form.Set("client_id", s.config.ClientID)
	form.Set("client_secret", s.config.ClientSecret)
	form.Set("code", code)
	form.Set("code_verifier", verifier)
	form.Set("redirect_uri", s.config.RedirectURI)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", appErr.Wrap(err, appErr.OAuthTokenExchange)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	var token githubTokenResponse
	if err := s.doJSON(req, &token); err != nil {
		return "", appErr.Wrap(err, appErr.OAuthTokenExchange)
	}
	if token.AccessToken == "" {
		return "", appErr.New(appErr.OAuthTokenExchange).WithMessage("GitHub access token is missing")
	}
	return token.AccessToken, nil
}

type githubUser struct {
	ID    int64  `json:"id"`
	Login string `json:"login"`
}

func (s *GitHubOAuthService) fetchUser(ctx context.Context, accessToken string) (*githubUser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.config.UserURL, nil)
	if err != nil {
		return nil, appErr.Wrap(err, appErr.OAuthUserFetchFailed)
	}
	s.setAPIHeaders(req, accessToken)

	var profile githubUser
	if err := s.doJSON(req, &profile); err != nil {
		return nil, appErr.Wrap(err, appErr.OAuthUserFetchFailed)
	}
	if profile.ID == 0 || profile.Login == "" {
		return nil, appErr.New(appErr.OAuthUserFetchFailed)
	}
	return &profile, nil
}

type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

func (s *GitHubOAuthService) fetchPrimaryEmail(ctx context.Context, accessToken string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.config.EmailsURL, nil)
	if err != nil {
		return "", appErr.Wrap(err, appErr.OAuthEmailUnavailable)
	}
	s.setAPIHeaders(req, accessToken)

	var emails []githubEmail
	if err := s.doJSON(req, &emails); err != nil {
		return "", appErr.Wrap(err, appErr.OAuthEmailUnavailable)
	}
	for _, email := range emails {
		if email.Primary && email.Verified {
			return normalizeEmail(email.Email), nil
		}
	}
	return "", appErr.New(appErr.OAuthEmailNotVerified)
}

// getOrCreateUser resolves the GitHub identity to an account. A
// username or email already taken by another account is a conflict,
// never an implicit link.
func (s *GitHubOAuthService) getOrCreateUser(ctx context.Context, githubID int64, login, email string) (*repository.User, error) {
	existing, err := s.users.GetByGitHubID(ctx, nil, githubID)
	if err != nil {
		return nil, appErr.Wrap(err, appErr.DatabaseError)
	}
	if existing != nil {
		return existing, nil
	}

	byUsername, err := s.users.GetByUsername(ctx, nil, login)
	if err != nil {
		return nil, appErr.Wrap(err, appErr.DatabaseError)
	}
	if byUsername != nil {
		return nil, appErr.New(appErr.OAuthAccountConflict).WithDetail("username", login)
	}

	byEmail, err := s.users.GetByEmail(ctx, nil, email)
	if err != nil {
		return nil, appErr.Wrap(err, appErr.DatabaseError)
	}
	if byEmail != nil {
		return nil, appErr.New(appErr.OAuthAccountConflict).WithDetail("email", email)
	}

	user := &repository.User{
		Username: login,
		Email:    &email,
		GitHubID: &githubID,
		Role:     repository.UserRoleUser,
	}
	if err := s.users.Create(ctx, nil, user); err != nil {
		if stderrors.Is(err, repository.ErrUsernameExists) || stderrors.Is(err, repository.ErrEmailExists) {
			return nil, appErr.New(appErr.OAuthAccountConflict)
		}
		return nil, appErr.Wrap(err, appErr.DatabaseError)
	}
	return user, nil
}

func (s *GitHubOAuthService) setAPIHeaders(req *http.Request, accessToken string) {
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/vnd.github+json")
}

func (s *GitHubOAuthService) doJSON(req *http.Request, out interface{}) error {
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return stderrors.New("unexpected status " + resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func codeChallenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

func randomURLToken(bytes int) (string, error) {
	buf := make([]byte, bytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
