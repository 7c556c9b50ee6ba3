package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"strings"
	"time"

	"codequest/internal/common/cache"
	"codequest/internal/common/db"

	"github.com/google/uuid"
)

type UserRole string

const (
	UserRoleUser  UserRole = "user"
	UserRoleAdmin UserRole = "admin"
)

// User is the account row. Email, GitHubID and PasswordHash are
// nullable: password accounts have a hash and no github_id, OAuth
// accounts the reverse.
type User struct {
	ID           string     `json:"id"`
	Username     string     `json:"username"`
	Email        *string    `json:"email"`
	GitHubID     *int64     `json:"github_id"`
	PasswordHash *string    `json:"-"`
	Role         UserRole   `json:"role"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    *time.Time `json:"updated_at"`
}

var (
	ErrUserNotFound   = stderrors.New("user not found")
	ErrDuplicate      = stderrors.New("record already exists")
	ErrUsernameExists = stderrors.New("username already exists")
	ErrEmailExists    = stderrors.New("email already exists")
)

const (
	defaultUserTTL      = 30 * time.Minute
	defaultUserEmptyTTL = 5 * time.Minute
	userIDKeyPrefix     = "user:id:"
	userNameKeyPrefix   = "user:name:"
)

type UserRepository interface {
	Create(ctx context.Context, tx db.Transaction, user *User) error
	GetByID(ctx context.Context, tx db.Transaction, id string) (*User, error)
	GetByUsername(ctx context.Context, tx db.Transaction, username string) (*User, error)
	GetByEmail(ctx context.Context, tx db.Transaction, email string) (*User, error)
	GetByGitHubID(ctx context.Context, tx db.Transaction, githubID int64) (*User, error)
}

type MySQLUserRepository struct {
	db       db.Database
	cache    cache.Cache
	ttl      time.Duration
	emptyTTL time.Duration
}

func NewUserRepository(database db.Database, cacheClient cache.Cache) UserRepository {
	return NewUserRepositoryWithTTL(database, cacheClient, defaultUserTTL, defaultUserEmptyTTL)
}

func NewUserRepositoryWithTTL(database db.Database, cacheClient cache.Cache, ttl, emptyTTL time.Duration) UserRepository {
	if ttl <= 0 {
		ttl = defaultUserTTL
	}
	if emptyTTL <= 0 {
		emptyTTL = defaultUserEmptyTTL
	}
	return &MySQLUserRepository{
		db:       database,
		cache:    cacheClient,
		ttl:      ttl,
		emptyTTL: emptyTTL,
	}
}

const userColumns = "id, username, email, github_id, password_hash, role, created_at, updated_at"

func (r *MySQLUserRepository) Create(ctx context.Context, tx db.Transaction, user *User) error {
	if user == nil {
		return stderrors.New("user is nil")
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.Role == "" {
		user.Role = UserRoleUser
	}

	query := "INSERT INTO users (id, username, email, github_id, password_hash, role) VALUES (?, ?, ?, ?, ?, ?)"
	_, err := db.GetQuerier(r.db, tx).Exec(ctx, query,
		user.ID, user.Username, nullString(user.Email), nullInt64(user.GitHubID),
		nullString(user.PasswordHash), user.Role,
	)
	if err != nil {
		if key, ok := db.UniqueViolation(err); ok {
			normalized := strings.ToLower(strings.TrimSpace(key))
			switch {
			case strings.Contains(normalized, "username"):
				return ErrUsernameExists
			case strings.Contains(normalized, "email"):
				return ErrEmailExists
			default:
				return ErrDuplicate
			}
		}
		return err
	}
	return nil
}

func (r *MySQLUserRepository) GetByID(ctx context.Context, tx db.Transaction, id string) (*User, error) {
	if r.cache != nil && tx == nil {
		return r.getCached(ctx, userIDKeyPrefix+id, func(ctx context.Context) (*User, error) {
			return r.queryOne(ctx, nil, "SELECT "+userColumns+" FROM users WHERE id = ?", id)
		})
	}
	return r.queryOne(ctx, tx, "SELECT "+userColumns+" FROM users WHERE id = ?", id)
}

func (r *MySQLUserRepository) GetByUsername(ctx context.Context, tx db.Transaction, username string) (*User, error) {
	if r.cache != nil && tx == nil {
		return r.getCached(ctx, userNameKeyPrefix+username, func(ctx context.Context) (*User, error) {
			return r.queryOne(ctx, nil, "SELECT "+userColumns+" FROM users WHERE username = ?", username)
		})
	}
	return r.queryOne(ctx, tx, "SELECT "+userColumns+" FROM users WHERE username = ?", username)
}

func (r *MySQLUserRepository) GetByEmail(ctx context.Context, tx db.Transaction, email string) (*User, error) {
	return r.queryOne(ctx, tx, "SELECT "+userColumns+" FROM users WHERE email = ?", email)
}

func (r *MySQLUserRepository) GetByGitHubID(ctx context.Context, tx db.Transaction, githubID int64) (*User, error) {
	return r.queryOne(ctx, tx, "SELECT "+userColumns+" FROM users WHERE github_id = ?", githubID)
}

func (r *MySQLUserRepository) getCached(ctx context.Context, key string, fetch func(context.Context) (*User, error)) (*User, error) {
	return cache.GetWithCached[*User](
		ctx,
		r.cache,
		key,
		cache.JitterTTL(r.ttl),
		cache.JitterTTL(r.emptyTTL),
		func(user *User) bool { return user == nil },
		marshalUser,
		unmarshalUser,
		fetch,
	)
}

func (r *MySQLUserRepository) queryOne(ctx context.Context, tx db.Transaction, query string, arg interface{}) (*User, error) {
	rows, err := db.GetQuerier(r.db, tx).Query(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, nil
	}
	return scanUser(rows)
}

func scanUser(rows db.Rows) (*User, error) {
	var (
		user         User
		email        sql.NullString
		githubID     sql.NullInt64
		passwordHash sql.NullString
		updatedAt    *time.Time
	)
	if err := rows.Scan(
		&user.ID, &user.Username, &email, &githubID, &passwordHash,
		&user.Role, &user.CreatedAt, &updatedAt,
	); err != nil {
		return nil, err
	}
	if email.Valid {
		user.Email = &email.String
	}
	if githubID.Valid {
		user.GitHubID = &githubID.Int64
	}
	if passwordHash.Valid {
		user.PasswordHash = &passwordHash.String
	}
	user.UpdatedAt = updatedAt
	return &user, nil
}

func nullString(value *string) sql.NullString {
	if value == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *value, Valid: true}
}

func nullInt64(value *int64) sql.NullInt64 {
	if value == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *value, Valid: true}
}

// cachedUser restores the password hash that the public json tags omit.
type cachedUser struct {
	*User
	PasswordHash *string `json:"password_hash"`
}

func marshalUser(user *User) string {
	data, err := json.Marshal(cachedUser{User: user, PasswordHash: user.PasswordHash})
	if err != nil {
		return ""
	}
	return string(data)
}

func unmarshalUser(data string) (*User, error) {
	wrapped := cachedUser{User: &User{}}
	if err := json.Unmarshal([]byte(data), &wrapped); err != nil {
		return nil, err
	}
	wrapped.User.PasswordHash = wrapped.PasswordHash
	return wrapped.User, nil
}
