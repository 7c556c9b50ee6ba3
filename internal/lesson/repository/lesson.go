package repository

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"time"

	"codequest/internal/common/cache"
	"codequest/internal/common/db"
	"codequest/internal/lesson/model"

	"github.com/google/uuid"
)

const (
	defaultLessonTTL      = 30 * time.Minute
	defaultLessonEmptyTTL = 5 * time.Minute
	lessonIDKeyPrefix     = "lesson:id:"
	lessonSlugKeyPrefix   = "lesson:slug:"
)

var (
	ErrLessonNotFound     = stderrors.New("lesson not found")
	ErrLessonSlugConflict = stderrors.New("lesson slug already exists")
)

const lessonColumns = "id, `order`, slug, name, body_markdown, expected_output, code_editor_default, eval_script, sample_cases, created_at, updated_at"

// LessonRepository persists lessons with a Redis cache-aside layer on
// the read path.
type LessonRepository interface {
	Create(ctx context.Context, tx db.Transaction, lesson *model.Lesson) error
	Update(ctx context.Context, tx db.Transaction, lesson *model.Lesson) error
	Delete(ctx context.Context, tx db.Transaction, id string) (bool, error)
	GetByID(ctx context.Context, tx db.Transaction, id string) (*model.Lesson, error)
	GetBySlug(ctx context.Context, tx db.Transaction, slug string) (*model.Lesson, error)
	GetAll(ctx context.Context, tx db.Transaction) ([]*model.Lesson, error)
}

type MySQLLessonRepository struct {
	db       db.Database
	cache    cache.Cache
	ttl      time.Duration
	emptyTTL time.Duration
}

func NewLessonRepository(database db.Database, cacheClient cache.Cache) LessonRepository {
	return NewLessonRepositoryWithTTL(database, cacheClient, defaultLessonTTL, defaultLessonEmptyTTL)
}

func NewLessonRepositoryWithTTL(database db.Database, cacheClient cache.Cache, ttl, emptyTTL time.Duration) LessonRepository {
	if ttl <= 0 {
		ttl = defaultLessonTTL
	}
	if emptyTTL <= 0 {
		emptyTTL = defaultLessonEmptyTTL
	}
	return &MySQLLessonRepository{
		db:       database,
		cache:    cacheClient,
		ttl:      ttl,
		emptyTTL: emptyTTL,
	}
}

func (r *MySQLLessonRepository) Create(ctx context.Context, tx db.Transaction, lesson *model.Lesson) error {
	if lesson == nil {
		return stderrors.New("lesson is nil")
	}
	if lesson.ID == "" {
		lesson.ID = uuid.NewString()
	}
	sampleCases, err := marshalSampleCases(lesson.SampleCases)
	if err != nil {
		return err
	}

	query := "INSERT INTO lessons (id, `order`, slug, name, body_markdown, expected_output, code_editor_default, eval_script, sample_cases) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)"
	_, err = db.GetQuerier(r.db, tx).Exec(ctx, query,
		lesson.ID, lesson.Order, lesson.Slug, lesson.Name, lesson.BodyMarkdown,
		lesson.ExpectedOutput, lesson.CodeEditorDefault, lesson.EvalScript, sampleCases,
	)
	if err != nil {
		if _, dup := db.UniqueViolation(err); dup {
			return ErrLessonSlugConflict
		}
		return err
	}
	return nil
}

func (r *MySQLLessonRepository) Update(ctx context.Context, tx db.Transaction, lesson *model.Lesson) error {
	if lesson == nil || lesson.ID == "" {
		return stderrors.New("lesson id is required")
	}
	sampleCases, err := marshalSampleCases(lesson.SampleCases)
	if err != nil {
		return err
	}

	// Load the current row so a renamed slug drops its stale cache key.
	existing, err := r.getByIDFromDB(ctx, tx, lesson.ID)
	if err != nil {
		return err
	}
	if existing == nil {
		return ErrLessonNotFound
	}

	query := "UPDATE lessons SET `order` = ?, slug = ?, name = ?, body_markdown = ?, expected_output = ?, code_editor_default = ?, eval_script = ?, sample_cases = ?, updated_at = NOW() WHERE id = ?"
	_, err = db.GetQuerier(r.db, tx).Exec(ctx, query,
		lesson.Order, lesson.Slug, lesson.Name, lesson.BodyMarkdown,
		lesson.ExpectedOutput, lesson.CodeEditorDefault, lesson.EvalScript, sampleCases, lesson.ID,
	)
	if err != nil {
		if _, dup := db.UniqueViolation(err); dup {
			return ErrLessonSlugConflict
		}
		return err
	}
	r.invalidate(ctx, existing)
	r.invalidate(ctx, lesson)
	return nil
}

func (r *MySQLLessonRepository) Delete(ctx context.Context, tx db.Transaction, id string) (bool, error) {
	lesson, err := r.getByIDFromDB(ctx, tx, id)
	if err != nil {
		return false, err
	}
	if lesson == nil {
		return false, nil
	}

	result, err := db.GetQuerier(r.db, tx).Exec(ctx, "DELETE FROM lessons WHERE id = ?", id)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	r.invalidate(ctx, lesson)
	return affected > 0, nil
}

func (r *MySQLLessonRepository) GetByID(ctx context.Context, tx db.Transaction, id string) (*model.Lesson, error) {
	if r.cache != nil && tx == nil {
		return r.getCached(ctx, lessonIDKeyPrefix+id, func(ctx context.Context) (*model.Lesson, error) {
			return r.getByIDFromDB(ctx, nil, id)
		})
	}
	return r.getByIDFromDB(ctx, tx, id)
}

func (r *MySQLLessonRepository) GetBySlug(ctx context.Context, tx db.Transaction, slug string) (*model.Lesson, error) {
	if r.cache != nil && tx == nil {
		return r.getCached(ctx, lessonSlugKeyPrefix+slug, func(ctx context.Context) (*model.Lesson, error) {
			return r.getBySlugFromDB(ctx, nil, slug)
		})
	}
	return r.getBySlugFromDB(ctx, tx, slug)
}

func (r *MySQLLessonRepository) GetAll(ctx context.Context, tx db.Transaction) ([]*model.Lesson, error) {
	query := "SELECT " + lessonColumns + " FROM lessons ORDER BY `order` ASC"
	rows, err := db.GetQuerier(r.db, tx).Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lessons []*model.Lesson
	for rows.Next() {
		lesson, err := scanLesson(rows)
		if err != nil {
			return nil, err
		}
		lessons = append(lessons, lesson)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return lessons, nil
}

// getCached runs the cache-aside read for one lesson key. A cached
// null marks a confirmed miss.
func (r *MySQLLessonRepository) getCached(ctx context.Context, key string, fetch func(context.Context) (*model.Lesson, error)) (*model.Lesson, error) {
	return cache.GetWithCached[*model.Lesson](
		ctx,
		r.cache,
		key,
		cache.JitterTTL(r.ttl),
		cache.JitterTTL(r.emptyTTL),
		func(lesson *model.Lesson) bool { return lesson == nil },
		marshalLesson,
		unmarshalLesson,
		fetch,
	)
}

// invalidate drops both cache keys for a lesson.
func (r *MySQLLessonRepository) invalidate(ctx context.Context, lesson *model.Lesson) {
	if r.cache == nil || lesson == nil {
		return
	}
	_ = r.cache.Del(ctx, lessonIDKeyPrefix+lesson.ID, lessonSlugKeyPrefix+lesson.Slug)
}

func (r *MySQLLessonRepository) getByIDFromDB(ctx context.Context, tx db.Transaction, id string) (*model.Lesson, error) {
	query := "SELECT " + lessonColumns + " FROM lessons WHERE id = ?"
	return r.queryOne(ctx, tx, query, id)
}

func (r *MySQLLessonRepository) getBySlugFromDB(ctx context.Context, tx db.Transaction, slug string) (*model.Lesson, error) {
	query := "SELECT " + lessonColumns + " FROM lessons WHERE slug = ?"
	return r.queryOne(ctx, tx, query, slug)
}

func (r *MySQLLessonRepository) queryOne(ctx context.Context, tx db.Transaction, query string, arg interface{}) (*model.Lesson, error) {
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
	return scanLesson(rows)
}

func scanLesson(rows db.Rows) (*model.Lesson, error) {
	var (
		lesson      model.Lesson
		sampleCases []byte
		updatedAt   *time.Time
	)
	if err := rows.Scan(
		&lesson.ID, &lesson.Order, &lesson.Slug, &lesson.Name, &lesson.BodyMarkdown,
		&lesson.ExpectedOutput, &lesson.CodeEditorDefault, &lesson.EvalScript,
		&sampleCases, &lesson.CreatedAt, &updatedAt,
	); err != nil {
		return nil, err
	}
	lesson.UpdatedAt = updatedAt
	if len(sampleCases) > 0 {
		if err := json.Unmarshal(sampleCases, &lesson.SampleCases); err != nil {
			return nil, err
		}
	}
	return &lesson, nil
}

func marshalSampleCases(cases []model.SampleCase) ([]byte, error) {
	if cases == nil {
		cases = []model.SampleCase{}
	}
	return json.Marshal(cases)
}

func marshalLesson(lesson *model.Lesson) string {
	data, err := json.Marshal(lesson)
	if err != nil {
		return ""
	}
	return string(data)
}

func unmarshalLesson(data string) (*model.Lesson, error) {
	var lesson model.Lesson
	if err := json.Unmarshal([]byte(data), &lesson); err != nil {
		return nil, err
	}
	return &lesson, nil
}
