package service

import (
	"context"
	"fmt"
	"testing"

	"codequest/internal/common/db"
	"codequest/internal/lesson/model"
	"codequest/internal/lesson/repository"
	appErr "codequest/pkg/errors"

	"github.com/google/uuid"
)

type fakeLessonRepo struct {
	lessons map[string]*model.Lesson
}

func newFakeLessonRepo() *fakeLessonRepo {
	return &fakeLessonRepo{lessons: make(map[string]*model.Lesson)}
}

func (r *fakeLessonRepo) Create(ctx context.Context, tx db.Transaction, lesson *model.Lesson) error {
	for _, existing := range r.lessons {
		if existing.Slug == lesson.Slug {
			return repository.ErrLessonSlugConflict
		}
	}
	if lesson.ID == "" {
		lesson.ID = uuid.NewString()
	}
	clone := *lesson
	r.lessons[lesson.ID] = &clone
	return nil
}

func (r *fakeLessonRepo) Update(ctx context.Context, tx db.Transaction, lesson *model.Lesson) error {
	if _, ok := r.lessons[lesson.ID]; !ok {
		return repository.ErrLessonNotFound
	}
	for _, existing := range r.lessons {
		if existing.ID != lesson.ID && existing.Slug == lesson.Slug {
			return repository.ErrLessonSlugConflict
		}
	}
	clone := *lesson
	r.lessons[lesson.ID] = &clone
	return nil
}

func (r *fakeLessonRepo) Delete(ctx context.Context, tx db.Transaction, id string) (bool, error) {
	if _, ok := r.lessons[id]; !ok {
		return false, nil
	}
	delete(r.lessons, id)
	return true, nil
}

func (r *fakeLessonRepo) GetByID(ctx context.Context, tx db.Transaction, id string) (*model.Lesson, error) {
	lesson, ok := r.lessons[id]
	if !ok {
		return nil, nil
	}
	clone := *lesson
	return &clone, nil
}

func (r *fakeLessonRepo) GetBySlug(ctx context.Context, tx db.Transaction, slug string) (*model.Lesson, error) {
	for _, lesson := range r.lessons {
		if lesson.Slug == slug {
			clone := *lesson
			return &clone, nil
		}
	}
	return nil, nil
}

func (r *fakeLessonRepo) GetAll(ctx context.Context, tx db.Transaction) ([]*model.Lesson, error) {
	result := make([]*model.Lesson, 0, len(r.lessons))
	for _, lesson := range r.lessons {
		clone := *lesson
		result = append(result, &clone)
	}
	return result, nil
}

func seedLessons(t *testing.T, svc *LessonService, count int) []*model.Lesson {
	t.Helper()
	created := make([]*model.Lesson, 0, count)
	for i := 1; i <= count; i++ {
		lesson, err := svc.Create(context.Background(), CreateInput{
			Order: i,
			Slug:  fmt.Sprintf("lesson-%d", i),
			Name:  fmt.Sprintf("Lesson %d", i),
		})
		if err != nil {
			t.Fatalf("seed lesson %d failed: %v", i, err)
		}
		created = append(created, lesson)
	}
	return created
}

func TestCreateRequiresSlugAndName(t *testing.T) {
	svc := NewLessonService(newFakeLessonRepo())

	_, err := svc.Create(context.Background(), CreateInput{Order: 1, Name: "n"})
	if appErr.GetCode(err) != appErr.ValidationFailed {
		t.Fatalf("missing slug: got %v", err)
	}
	_, err = svc.Create(context.Background(), CreateInput{Order: 1, Slug: "s"})
	if appErr.GetCode(err) != appErr.ValidationFailed {
		t.Fatalf("missing name: got %v", err)
	}
}

func TestCreateDefaultsBody(t *testing.T) {
	svc := NewLessonService(newFakeLessonRepo())
	lesson, err := svc.Create(context.Background(), CreateInput{Order: 1, Slug: "intro", Name: "Intro"})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if lesson.BodyMarkdown != "body" {
		t.Fatalf("body default missing: %q", lesson.BodyMarkdown)
	}
}

func TestCreateSlugConflict(t *testing.T) {
	svc := NewLessonService(newFakeLessonRepo())
	seedLessons(t, svc, 1)

	_, err := svc.Create(context.Background(), CreateInput{Order: 2, Slug: "lesson-1", Name: "Dup"})
	if appErr.GetCode(err) != appErr.LessonSlugConflict {
		t.Fatalf("expected slug conflict, got %v", err)
	}
}

func TestCreateOrderMustBeDense(t *testing.T) {
	svc := NewLessonService(newFakeLessonRepo())
	seedLessons(t, svc, 2)

	for _, order := range []int{0, -1, 2, 4} {
		_, err := svc.Create(context.Background(), CreateInput{Order: order, Slug: fmt.Sprintf("bad-%d", order), Name: "Bad"})
		if appErr.GetCode(err) != appErr.LessonOrderInvalid {
			t.Fatalf("order %d: expected LessonOrderInvalid, got %v", order, err)
		}
	}

	// max+1 extends the sequence.
	if _, err := svc.Create(context.Background(), CreateInput{Order: 3, Slug: "three", Name: "Three"}); err != nil {
		t.Fatalf("order max+1 rejected: %v", err)
	}
}

func TestUpdatePartialFields(t *testing.T) {
	svc := NewLessonService(newFakeLessonRepo())
	lessons := seedLessons(t, svc, 1)

	name := "Renamed"
	updated, err := svc.Update(context.Background(), lessons[0].ID, UpdateInput{Name: &name})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if updated.Name != "Renamed" || updated.Slug != "lesson-1" {
		t.Fatalf("partial update wrong: %+v", updated)
	}
}

func TestUpdateKeepingOwnOrderAndSlug(t *testing.T) {
	svc := NewLessonService(newFakeLessonRepo())
	lessons := seedLessons(t, svc, 2)

	order := 1
	slug := "lesson-1"
	if _, err := svc.Update(context.Background(), lessons[0].ID, UpdateInput{Order: &order, Slug: &slug}); err != nil {
		t.Fatalf("no-op order/slug update rejected: %v", err)
	}
}

func TestUpdateSlugCollision(t *testing.T) {
	svc := NewLessonService(newFakeLessonRepo())
	lessons := seedLessons(t, svc, 2)

	slug := "lesson-2"
	_, err := svc.Update(context.Background(), lessons[0].ID, UpdateInput{Slug: &slug})
	if appErr.GetCode(err) != appErr.LessonSlugConflict {
		t.Fatalf("expected slug conflict, got %v", err)
	}
}

func TestUpdateUnknownLesson(t *testing.T) {
	svc := NewLessonService(newFakeLessonRepo())
	name := "n"
	_, err := svc.Update(context.Background(), "missing", UpdateInput{Name: &name})
	if appErr.GetCode(err) != appErr.LessonNotFound {
		t.Fatalf("expected LessonNotFound, got %v", err)
	}
}

func TestDeleteUnknownLesson(t *testing.T) {
	svc := NewLessonService(newFakeLessonRepo())
	if err := svc.Delete(context.Background(), "missing"); appErr.GetCode(err) != appErr.LessonNotFound {
		t.Fatalf("expected LessonNotFound, got %v", err)
	}
}

func TestGetAllSortedByOrder(t *testing.T) {
	svc := NewLessonService(newFakeLessonRepo())
	seedLessons(t, svc, 3)

	lessons, err := svc.GetAll(context.Background())
	if err != nil {
		t.Fatalf("get all failed: %v", err)
	}
	for i, lesson := range lessons {
		if lesson.Order != i+1 {
			t.Fatalf("lessons not ordered: %+v", lessons)
		}
	}
}

func TestExecutionLessonAdapter(t *testing.T) {
	svc := NewLessonService(newFakeLessonRepo())
	created, err := svc.Create(context.Background(), CreateInput{
		Order:      1,
		Slug:       "adapted",
		Name:       "Adapted",
		EvalScript: "{{USER_CODE}}",
		SampleCases: []model.SampleCase{
			{Name: "case_1", Label: "First"},
		},
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	lesson, err := svc.ExecutionLesson(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("adapter failed: %v", err)
	}
	if lesson.ID != created.ID || lesson.EvalScript != "{{USER_CODE}}" {
		t.Fatalf("adapter lost fields: %+v", lesson)
	}
	if len(lesson.SampleCases) != 1 || lesson.SampleCases[0].Name != "case_1" {
		t.Fatalf("sample cases not mapped: %+v", lesson.SampleCases)
	}
}
