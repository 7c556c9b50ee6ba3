package controller

import (
	"strings"
	"time"

	"codequest/internal/user/repository"
	"codequest/internal/user/service"
	appErr "codequest/pkg/errors"
	"codequest/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// AuthController handles auth-related HTTP endpoints.
type AuthController struct {
	authService  *service.AuthService
	oauthService *service.GitHubOAuthService
}

// NewAuthController creates a new AuthController. oauthService may be
// nil when GitHub login is not configured.
func NewAuthController(authService *service.AuthService, oauthService *service.GitHubOAuthService) *AuthController {
	return &AuthController{
		authService:  authService,
		oauthService: oauthService,
	}
}

type RegisterRequest struct {
	Username string `json:"username" binding:"required"`
	Email    string `json:"email"`
	Password string `json:"password" binding:"required"`
}

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type UserResponse struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     *string   `json:"email,omitempty"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

type AuthResponse struct {
	AccessToken string       `json:"access_token"`
	TokenType   string       `json:"token_type"`
	User        UserResponse `json:"user"`
}

// Register handles user registration.
func (h *AuthController) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}

	user, err := h.authService.Register(c.Request.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, toUserResponse(user))
}

// Login handles password login.
func (h *AuthController) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}

	token, user, err := h.authService.Login(c.Request.Context(), req.Username, req.Password, c.ClientIP())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, toAuthResponse(token, user))
}

// Me returns the authenticated user's profile.
func (h *AuthController) Me(c *gin.Context) {
	user, err := h.authService.CurrentUser(c.Request.Context(), c.GetString("user_id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, toUserResponse(user))
}

// GitHubAuthorize starts the GitHub OAuth flow.
func (h *AuthController) GitHubAuthorize(c *gin.Context) {
	if h.oauthService == nil {
		response.ErrorWithCode(c, appErr.OAuthNotConfigured, "")
		return
	}
	authorizeURL, err := h.oauthService.AuthorizeURL(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"authorize_url": authorizeURL})
}

// GitHubCallback finishes the GitHub OAuth flow.
func (h *AuthController) GitHubCallback(c *gin.Context) {
	if h.oauthService == nil {
		response.ErrorWithCode(c, appErr.OAuthNotConfigured, "")
		return
	}

	code := c.Query("code")
	state := c.Query("state")
	token, user, err := h.oauthService.Authenticate(c.Request.Context(), code, state)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, toAuthResponse(token, user))
}

// AuthMiddleware parses the bearer token and stores the subject in the
// request context.
func (h *AuthController) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c.GetHeader("Authorization"))
		if token == "" {
			response.AbortWithErrorCode(c, appErr.Unauthorized, "")
			return
		}

		userID, role, err := h.authService.ParseToken(token)
		if err != nil {
			response.AbortWithError(c, err)
			return
		}

		c.Set("user_id", userID)
		c.Set("user_role", string(role))
		c.Next()
	}
}

// OptionalAuthMiddleware resolves the bearer token when present but
// never rejects the request. Anonymous callers proceed with no user id.
func (h *AuthController) OptionalAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c.GetHeader("Authorization"))
		if token != "" {
			if userID, role, err := h.authService.ParseToken(token); err == nil {
				c.Set("user_id", userID)
				c.Set("user_role", string(role))
			}
		}
		c.Next()
	}
}

// RequireRole rejects requests whose authenticated role does not match.
func RequireRole(role repository.UserRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString("user_role") != string(role) {
			response.AbortWithErrorCode(c, appErr.Forbidden, "")
			return
		}
		c.Next()
	}
}

// RegisterRoutes mounts the public auth endpoints.
func (h *AuthController) RegisterRoutes(group *gin.RouterGroup) {
	auth := group.Group("/auth")
	auth.POST("/register", h.Register)
	auth.POST("/login", h.Login)
	auth.GET("/github/authorize", h.GitHubAuthorize)
	auth.GET("/github/callback", h.GitHubCallback)
}

// RegisterAuthedRoutes mounts endpoints that need a valid token.
func (h *AuthController) RegisterAuthedRoutes(group *gin.RouterGroup) {
	group.GET("/auth/me", h.Me)
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

func toUserResponse(user *repository.User) UserResponse {
	return UserResponse{
		ID:        user.ID,
		Username:  user.Username,
		Email:     user.Email,
		Role:      string(user.Role),
		CreatedAt: user.CreatedAt,
	}
}

func toAuthResponse(token string, user *repository.User) AuthResponse {
	return AuthResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		User:        toUserResponse(user),
	}
}
