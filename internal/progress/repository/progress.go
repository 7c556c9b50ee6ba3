package repository

import (
	"context"
	stderrors "errors"
	"time"

	"codequest/internal/common/db"
)

// CompletedLesson is one finished lesson for a user.
type CompletedLesson struct {
	LessonID    string    `json:"lesson_id"`
	CompletedAt time.Time `json:"completed_at"`
}

type ProgressRepository interface {
	MarkCompleted(ctx context.Context, tx db.Transaction, userID, lessonID string) error
	GetCompleted(ctx context.Context, tx db.Transaction, userID string) ([]CompletedLesson, error)
	Reset(ctx context.Context, tx db.Transaction, userID string) (int64, error)
	DeleteByLesson(ctx context.Context, tx db.Transaction, lessonID string) error
}

type MySQLProgressRepository struct {
	db db.Database
}

func NewProgressRepository(database db.Database) ProgressRepository {
	return &MySQLProgressRepository{db: database}
}

// MarkCompleted records a finished lesson. Replays are no-ops: the
// first completion time is kept.
func (r *MySQLProgressRepository) MarkCompleted(ctx context.Context, tx db.Transaction, userID, lessonID string) error {
	if userID == "" || lessonID == "" {
		return stderrors.New("user id and lesson id are required")
	}
	query := "INSERT IGNORE INTO lesson_progress (user_id, lesson_id) VALUES (?, ?)"
	_, err := db.GetQuerier(r.db, tx).Exec(ctx, query, userID, lessonID)
	return err
}

func (r *MySQLProgressRepository) GetCompleted(ctx context.Context, tx db.Transaction, userID string) ([]CompletedLesson, error) {
	query := "SELECT lesson_id, completed_at FROM lesson_progress WHERE user_id = ? ORDER BY completed_at ASC"
	rows, err := db.GetQuerier(r.db, tx).Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var completed []CompletedLesson
	for rows.Next() {
		var entry CompletedLesson
		if err := rows.Scan(&entry.LessonID, &entry.CompletedAt); err != nil {
			return nil, err
		}
		completed = append(completed, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return completed, nil
}

func (r *MySQLProgressRepository) Reset(ctx context.Context, tx db.Transaction, userID string) (int64, error) {
	result, err := db.GetQuerier(r.db, tx).Exec(ctx, "DELETE FROM lesson_progress WHERE user_id = ?", userID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// DeleteByLesson drops all completions of a lesson, used when the
// lesson itself is deleted.
func (r *MySQLProgressRepository) DeleteByLesson(ctx context.Context, tx db.Transaction, lessonID string) error {
	_, err := db.GetQuerier(r.db, tx).Exec(ctx, "DELETE FROM lesson_progress WHERE lesson_id = ?", lessonID)
	return err
}
