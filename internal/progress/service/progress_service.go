package service

import (
	"context"

	"codequest/internal/progress/repository"
	appErr "codequest/pkg/errors"
)

// Progress summarizes a user's position in the course.
type Progress struct {
	CompletedLessons []repository.CompletedLesson `json:"completed_lessons"`
	CompletedCount   int                          `json:"completed_count"`
	TotalLessons     int                          `json:"total_lessons"`
}

// LessonCounter reports how many lessons the course currently has.
type LessonCounter interface {
	CountLessons(ctx context.Context) (int, error)
}

type ProgressService struct {
	repo    repository.ProgressRepository
	lessons LessonCounter
}

func NewProgressService(repo repository.ProgressRepository, lessons LessonCounter) *ProgressService {
	return &ProgressService{
		repo:    repo,
		lessons: lessons,
	}
}

// MarkCompleted records a completed lesson for a user. Repeat
// completions are idempotent.
func (s *ProgressService) MarkCompleted(ctx context.Context, userID, lessonID string) error {
	if err := s.repo.MarkCompleted(ctx, nil, userID, lessonID); err != nil {
		return appErr.Wrap(err, appErr.ProgressUpdateFailed)
	}
	return nil
}

// GetProgress returns the user's completed lessons and course totals.
func (s *ProgressService) GetProgress(ctx context.Context, userID string) (*Progress, error) {
	completed, err := s.repo.GetCompleted(ctx, nil, userID)
	if err != nil {
		return nil, appErr.Wrap(err, appErr.DatabaseError)
	}

	total := 0
	if s.lessons != nil {
		if total, err = s.lessons.CountLessons(ctx); err != nil {
			return nil, err
		}
	}

	if completed == nil {
		completed = []repository.CompletedLesson{}
	}
	return &Progress{
		CompletedLessons: completed,
		CompletedCount:   len(completed),
		TotalLessons:     total,
	}, nil
}

// DeleteByLesson drops every completion of a lesson.
func (s *ProgressService) DeleteByLesson(ctx context.Context, lessonID string) error {
	return s.repo.DeleteByLesson(ctx, nil, lessonID)
}

// Reset wipes the user's progress and returns how many completions
// were removed.
func (s *ProgressService) Reset(ctx context.Context, userID string) (int64, error) {
	removed, err := s.repo.Reset(ctx, nil, userID)
	if err != nil {
		return 0, appErr.Wrap(err, appErr.ProgressResetFailed)
	}
	return removed, nil
}
