package errors

// ErrorCode represents a unique error identifier
type ErrorCode int

// Error code ranges allocation:
// 10000-10999: System & Common errors
// 11000-11999: User & Auth module errors
// 12000-12999: Lesson module errors
// 13000-13999: Execution module errors
// 14000-14999: Progress module errors

const (
	// ========== System & Common Errors (10000-10999) ==========

	// Success
	Success ErrorCode = 10000

	// Generic errors (10000-10099)
	InternalServerError ErrorCode = 10001
	InvalidParams       ErrorCode = 10002
	NotFound            ErrorCode = 10003
	Unauthorized        ErrorCode = 10004
	Forbidden           ErrorCode = 10005
	TooManyRequests     ErrorCode = 10006
	ServiceUnavailable  ErrorCode = 10007
	Timeout             ErrorCode = 10008

	// Database errors (10100-10199)
	DatabaseError       ErrorCode = 10100
	RecordNotFound      ErrorCode = 10101
	RecordAlreadyExists ErrorCode = 10102
	TransactionFailed   ErrorCode = 10103

	// Cache errors (10200-10299)
	CacheError     ErrorCode = 10200
	CacheSetFailed ErrorCode = 10201
	LockFailed     ErrorCode = 10202

	// Validation errors (10300-10399)
	ValidationFailed   ErrorCode = 10300
	InvalidFormat      ErrorCode = 10301
	InvalidValue       ErrorCode = 10302
	RequiredFieldEmpty ErrorCode = 10303

	// ========== User & Auth Module Errors (11000-11999) ==========

	// Authentication (11000-11099)
	InvalidCredentials    ErrorCode = 11000
	UserNotFound          ErrorCode = 11001
	TokenExpired          ErrorCode = 11002
	TokenInvalid          ErrorCode = 11003
	TokenGenerationFailed ErrorCode = 11004
	LoginAttemptsExceeded ErrorCode = 11005

	// Registration (11100-11199)
	UsernameAlreadyExists ErrorCode = 11100
	EmailAlreadyExists    ErrorCode = 11101
	InvalidUsername       ErrorCode = 11102
	InvalidEmail          ErrorCode = 11103
	InvalidPassword       ErrorCode = 11104

	// GitHub OAuth (11200-11299)
	OAuthNotConfigured    ErrorCode = 11200
	OAuthStateMismatch    ErrorCode = 11201
	OAuthTokenExchange    ErrorCode = 11202
	OAuthUserFetchFailed  ErrorCode = 11203
	OAuthEmailUnavailable ErrorCode = 11204
	OAuthEmailNotVerified ErrorCode = 11205
	OAuthAccountConflict  ErrorCode = 11206

	// ========== Lesson Module Errors (12000-12999) ==========

	// Lesson basic (12000-12099)
	LessonNotFound     ErrorCode = 12000
	LessonSlugConflict ErrorCode = 12001
	LessonOrderInvalid ErrorCode = 12002
	LessonCreateFailed ErrorCode = 12003
	LessonUpdateFailed ErrorCode = 12004
	LessonDeleteFailed ErrorCode = 12005

	// Lesson assets (12100-12199)
	AssetNotFound     ErrorCode = 12100
	AssetUploadFailed ErrorCode = 12101
	AssetTooLarge     ErrorCode = 12102

	// ========== Execution Module Errors (13000-13999) ==========

	ExecutionRateLimited ErrorCode = 13000
	PayloadTooLarge      ErrorCode = 13001
	SandboxUnavailable   ErrorCode = 13002
	SandboxInvalidOutput ErrorCode = 13003
	ExecutionFailed      ErrorCode = 13004

	// ========== Progress Module Errors (14000-14999) ==========

	ProgressUpdateFailed ErrorCode = 14000
	ProgressResetFailed  ErrorCode = 14001
)

// errorMessages maps error codes to their default English messages
var errorMessages = map[ErrorCode]string{
	// System & Common
	Success:             "Success",
	InternalServerError: "Internal server error",
	InvalidParams:       "Invalid parameters",
	NotFound:            "Resource not found",
	Unauthorized:        "Unauthorized access",
	Forbidden:           "Access forbidden",
	TooManyRequests:     "Too many requests, please try again later",
	ServiceUnavailable:  "Service temporarily unavailable",
	Timeout:             "Request timeout",

	// Database
	DatabaseError:       "Database operation failed",
	RecordNotFound:      "Record not found in database",
	RecordAlreadyExists: "Record already exists",
	TransactionFailed:   "Database transaction failed",

	// Cache
	CacheError:     "Cache operation failed",
	CacheSetFailed: "Failed to set cache",
	LockFailed:     "Failed to acquire lock",

	// Validation
	ValidationFailed:   "Validation failed",
	InvalidFormat:      "Invalid format",
	InvalidValue:       "Invalid value",
	RequiredFieldEmpty: "Required field is empty",

	// User - Authentication
	InvalidCredentials:    "Invalid username or password",
	UserNotFound:          "User not found",
	TokenExpired:          "Token has expired",
	TokenInvalid:          "Invalid token",
	TokenGenerationFailed: "Failed to generate token",
	LoginAttemptsExceeded: "Too many failed login attempts, please try again later",

	// User - Registration
	UsernameAlreadyExists: "Username already exists",
	EmailAlreadyExists:    "Email already exists",
	InvalidUsername:       "Invalid username format",
	InvalidEmail:          "Invalid email format",
	InvalidPassword:       "Invalid password format",

	// User - GitHub OAuth
	OAuthNotConfigured:    "GitHub OAuth is not configured",
	OAuthStateMismatch:    "OAuth state verification failed",
	OAuthTokenExchange:    "GitHub token exchange failed",
	OAuthUserFetchFailed:  "Failed to fetch GitHub user profile",
	OAuthEmailUnavailable: "GitHub account has no usable email",
	OAuthEmailNotVerified: "GitHub primary email is not verified",
	OAuthAccountConflict:  "Email is already linked to another account",

	// Lesson
	LessonNotFound:     "Lesson not found",
	LessonSlugConflict: "Lesson slug already exists",
	LessonOrderInvalid: "Lesson order is invalid",
	LessonCreateFailed: "Failed to create lesson",
	LessonUpdateFailed: "Failed to update lesson",
	LessonDeleteFailed: "Failed to delete lesson",

	// Lesson assets
	AssetNotFound:     "Lesson asset not found",
	AssetUploadFailed: "Failed to upload lesson asset",
	AssetTooLarge:     "Lesson asset is too large",

	// Execution
	ExecutionRateLimited: "Too many execution requests",
	PayloadTooLarge:      "Execution payload is too large",
	SandboxUnavailable:   "Code execution service unavailable",
	SandboxInvalidOutput: "Execution output is invalid",
	ExecutionFailed:      "Code execution failed",

	// Progress
	ProgressUpdateFailed: "Failed to update lesson progress",
	ProgressResetFailed:  "Failed to reset lesson progress",
}

// Message returns the default message for the error code
func (c ErrorCode) Message() string {
	if msg, ok := errorMessages[c]; ok {
		return msg
	}
	return "Unknown error"
}

// HTTPStatus returns the recommended HTTP status code for the error code
func (c ErrorCode) HTTPStatus() int {
	switch {
	case c == Success:
		return 200
	case c == NotFound, c == UserNotFound, c == LessonNotFound, c == AssetNotFound:
		return 404
	case c == LessonSlugConflict, c == EmailAlreadyExists, c == UsernameAlreadyExists:
		return 409
	case c == TooManyRequests, c == ExecutionRateLimited, c == LoginAttemptsExceeded:
		return 429
	case c == PayloadTooLarge, c == AssetTooLarge:
		return 413
	case c == ServiceUnavailable, c == SandboxUnavailable:
		return 503
	case c == Forbidden, c == OAuthAccountConflict:
		return 403
	case c == Unauthorized, c == TokenExpired, c == TokenInvalid:
		return 401
	case c >= 11000 && c < 11100: // Authentication errors
		return 401
	case c >= 10300 && c < 10400: // Validation errors
		return 400
	case c == InvalidParams, c == LessonOrderInvalid:
		return 400
	case c >= 11100 && c < 11200: // Registration errors
		return 400
	default:
		return 500
	}
}
