package service

import (
	"context"
	stderrors "errors"
	"sort"
	"strings"

	"codequest/internal/lesson/model"
	"codequest/internal/lesson/repository"

	execservice "codequest/internal/execution/service"
	appErr "codequest/pkg/errors"
	"codequest/pkg/utils/logger"

	"go.uber.org/zap"
)

// ProgressCleaner removes completions that reference a lesson.
type ProgressCleaner interface {
	DeleteByLesson(ctx context.Context, lessonID string) error
}

// LessonService owns lesson business rules: slug uniqueness and the
// dense ordering invariant (orders form 1..N with no holes).
type LessonService struct {
	repo     repository.LessonRepository
	progress ProgressCleaner
}

// NewLessonService creates a new LessonService.
func NewLessonService(repo repository.LessonRepository) *LessonService {
	return &LessonService{repo: repo}
}

// SetProgressCleaner wires progress cleanup into lesson deletion.
func (s *LessonService) SetProgressCleaner(cleaner ProgressCleaner) {
	s.progress = cleaner
}

// CreateInput carries fields for a new lesson.
type CreateInput struct {
	Order             int
	Slug              string
	Name              string
	BodyMarkdown      string
	ExpectedOutput    string
	CodeEditorDefault string
	EvalScript        string
	SampleCases       []model.SampleCase
}

// UpdateInput carries partial lesson changes. Nil fields keep their
// current value.
type UpdateInput struct {
	Order             *int
	Slug              *string
	Name              *string
	BodyMarkdown      *string
	ExpectedOutput    *string
	CodeEditorDefault *string
	EvalScript        *string
	SampleCases       []model.SampleCase
}

// GetByID returns one lesson or LessonNotFound.
func (s *LessonService) GetByID(ctx context.Context, id string) (*model.Lesson, error) {
	lesson, err := s.repo.GetByID(ctx, nil, id)
	if err != nil {
		return nil, appErr.Wrap(err, appErr.DatabaseError)
	}
	if lesson == nil {
		return nil, appErr.New(appErr.LessonNotFound)
	}
	return lesson, nil
}

// GetBySlug returns one lesson or LessonNotFound.
func (s *LessonService) GetBySlug(ctx context.Context, slug string) (*model.Lesson, error) {
	lesson, err := s.repo.GetBySlug(ctx, nil, slug)
	if err != nil {
		return nil, appErr.Wrap(err, appErr.DatabaseError)
	}
	if lesson == nil {
		return nil, appErr.New(appErr.LessonNotFound)
	}
	return lesson, nil
}

// GetAll returns all lessons sorted by order.
func (s *LessonService) GetAll(ctx context.Context) ([]*model.Lesson, error) {
	lessons, err := s.repo.GetAll(ctx, nil)
	if err != nil {
		return nil, appErr.Wrap(err, appErr.DatabaseError)
	}
	sort.Slice(lessons, func(i, j int) bool { return lessons[i].Order < lessons[j].Order })
	return lessons, nil
}

// Create validates and persists a new lesson.
func (s *LessonService) Create(ctx context.Context, input CreateInput) (*model.Lesson, error) {
	if strings.TrimSpace(input.Slug) == "" {
		return nil, appErr.ValidationError("slug", "required")
	}
	if strings.TrimSpace(input.Name) == "" {
		return nil, appErr.ValidationError("name", "required")
	}
	if err := s.validateSlugUnique(ctx, input.Slug, ""); err != nil {
		return nil, err
	}
	if err := s.validateOrder(ctx, input.Order, ""); err != nil {
		return nil, err
	}

	lesson := &model.Lesson{
		Order:             input.Order,
		Slug:              input.Slug,
		Name:              input.Name,
		BodyMarkdown:      input.BodyMarkdown,
		ExpectedOutput:    input.ExpectedOutput,
		CodeEditorDefault: input.CodeEditorDefault,
		EvalScript:        input.EvalScript,
		SampleCases:       input.SampleCases,
	}
	if lesson.BodyMarkdown == "" {
		lesson.BodyMarkdown = "body"
	}
	if err := s.repo.Create(ctx, nil, lesson); err != nil {
		if stderrors.Is(err, repository.ErrLessonSlugConflict) {
			return nil, appErr.New(appErr.LessonSlugConflict)
		}
		return nil, appErr.Wrap(err, appErr.LessonCreateFailed)
	}
	return s.GetByID(ctx, lesson.ID)
}

// Update applies a partial update to an existing lesson.
func (s *LessonService) Update(ctx context.Context, id string, input UpdateInput) (*model.Lesson, error) {
	lesson, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if input.Slug != nil && *input.Slug != lesson.Slug {
		if err := s.validateSlugUnique(ctx, *input.Slug, id); err != nil {
			return nil, err
		}
		lesson.Slug = *input.Slug
	}
	if input.Order != nil && *input.Order != lesson.Order {
		if err := s.validateOrder(ctx, *input.Order, id); err != nil {
			return nil, err
		}
		lesson.Order = *input.Order
	}
	if input.Name != nil {
		lesson.Name = *input.Name
	}
	if input.BodyMarkdown != nil {
		lesson.BodyMarkdown = *input.BodyMarkdown
	}
	if input.ExpectedOutput != nil {
		lesson.ExpectedOutput = *input.ExpectedOutput
	}
	if input.CodeEditorDefault != nil {
		lesson.CodeEditorDefault = *input.CodeEditorDefault
	}
	if input.EvalScript != nil {
		lesson.EvalScript = *input.EvalScript
	}
	if input.SampleCases != nil {
		lesson.SampleCases = input.SampleCases
	}

	if err := s.repo.Update(ctx, nil, lesson); err != nil {
		if stderrors.Is(err, repository.ErrLessonNotFound) {
			return nil, appErr.New(appErr.LessonNotFound)
		}
		if stderrors.Is(err, repository.ErrLessonSlugConflict) {
			return nil, appErr.New(appErr.LessonSlugConflict)
		}
		return nil, appErr.Wrap(err, appErr.LessonUpdateFailed)
	}
	return s.GetByID(ctx, id)
}

// Delete removes a lesson. Returns LessonNotFound when nothing matched.
func (s *LessonService) Delete(ctx context.Context, id string) error {
	deleted, err := s.repo.Delete(ctx, nil, id)
	if err != nil {
		return appErr.Wrap(err, appErr.LessonDeleteFailed)
	}
	if !deleted {
		return appErr.New(appErr.LessonNotFound)
	}
	if s.progress != nil {
		if err := s.progress.DeleteByLesson(ctx, id); err != nil {
			logger.Warn(ctx, "cleanup lesson progress failed",
				zap.String("lesson_id", id),
				zap.Error(err),
			)
		}
	}
	return nil
}

// CountLessons reports the current lesson count.
func (s *LessonService) CountLessons(ctx context.Context) (int, error) {
	lessons, err := s.repo.GetAll(ctx, nil)
	if err != nil {
		return 0, appErr.Wrap(err, appErr.DatabaseError)
	}
	return len(lessons), nil
}

// ExecutionLesson adapts a lesson for the execution pipeline.
func (s *LessonService) ExecutionLesson(ctx context.Context, lessonID string) (execservice.Lesson, error) {
	lesson, err := s.GetByID(ctx, lessonID)
	if err != nil {
		return execservice.Lesson{}, err
	}
	sampleCases := make([]execservice.SampleCase, 0, len(lesson.SampleCases))
	for _, sample := range lesson.SampleCases {
		sampleCases = append(sampleCases, execservice.SampleCase{Name: sample.Name, Label: sample.Label})
	}
	return execservice.Lesson{
		ID:          lesson.ID,
		EvalScript:  lesson.EvalScript,
		SampleCases: sampleCases,
	}, nil
}

func (s *LessonService) validateSlugUnique(ctx context.Context, slug, excludeID string) error {
	existing, err := s.repo.GetBySlug(ctx, nil, slug)
	if err != nil {
		return appErr.Wrap(err, appErr.DatabaseError)
	}
	if existing == nil {
		return nil
	}
	if excludeID != "" && existing.ID == excludeID {
		return nil
	}
	return appErr.New(appErr.LessonSlugConflict)
}

// validateOrder keeps lesson orders dense: a new order must land in
// 1..max+1 and must not collide with another lesson.
func (s *LessonService) validateOrder(ctx context.Context, order int, excludeID string) error {
	if order < 1 {
		return appErr.New(appErr.LessonOrderInvalid)
	}
	lessons, err := s.repo.GetAll(ctx, nil)
	if err != nil {
		return appErr.Wrap(err, appErr.DatabaseError)
	}

	maxOrder := 0
	for _, lesson := range lessons {
		if excludeID != "" && lesson.ID == excludeID {
			continue
		}
		if lesson.Order == order {
			return appErr.New(appErr.LessonOrderInvalid)
		}
		if lesson.Order > maxOrder {
			maxOrder = lesson.Order
		}
	}
	if order > maxOrder+1 {
		return appErr.New(appErr.LessonOrderInvalid)
	}
	return nil
}
