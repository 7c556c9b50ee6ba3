package service

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"testing"

	"codequest/internal/execution/sandbox"
	appErr "codequest/pkg/errors"
)

type fakeLessons struct {
	lessons map[string]Lesson
}

func (f *fakeLessons) ExecutionLesson(ctx context.Context, lessonID string) (Lesson, error) {
	lesson, ok := f.lessons[lessonID]
	if !ok {
		return Lesson{}, appErr.New(appErr.LessonNotFound)
	}
	return lesson, nil
}

type fakeRunner struct {
	payload    sandbox.Payload
	err        error
	lastSource string
	calls      int
}

func (f *fakeRunner) Execute(ctx context.Context, source string) (sandbox.Payload, error) {
	f.calls++
	f.lastSource = source
	return f.payload, f.err
}

type fakeProgress struct {
	err       error
	completed []string
}

func (f *fakeProgress) MarkCompleted(ctx context.Context, userID, lessonID string) error {
	if f.err != nil {
		return f.err
	}
	f.completed = append(f.completed, userID+"/"+lessonID)
	return nil
}

type recordedEvent struct {
	lessonID string
	userID   string
	status   Status
}

type fakeEvents struct {
	events []recordedEvent
}

func (f *fakeEvents) ExecutionCompleted(ctx context.Context, lessonID, userID string, status Status, durationMs *float64) {
	f.events = append(f.events, recordedEvent{lessonID: lessonID, userID: userID, status: status})
}

func acceptedPayload() sandbox.Payload {
	stdout := `{"ok": true, "cases": []}`
	code := 0
	return sandbox.Payload{Run: &sandbox.Stage{Stdout: &stdout, Code: &code}}
}

func newHarness(lesson Lesson, runner *fakeRunner) (*ExecutionService, *fakeProgress, *fakeEvents) {
	progress := &fakeProgress{}
	events := &fakeEvents{}
	svc := NewExecutionService(
		&fakeLessons{lessons: map[string]Lesson{lesson.ID: lesson}},
		runner,
		progress,
		events,
		Limits{
			MaxUserCodeChars:   100,
			MaxEvalScriptChars: 200,
			MaxSourceChars:     400,
			MaxOutputChars:     1000,
		},
	)
	return svc, progress, events
}

func validLesson() Lesson {
	return Lesson{
		ID:         "lesson-1",
		EvalScript: "{{USER_CODE}}\nprint('{\"ok\": true, \"cases\": []}')",
	}
}

func TestExecuteUnknownLesson(t *testing.T) {
	svc, _, _ := newHarness(validLesson(), &fakeRunner{payload: acceptedPayload()})
	_, err := svc.Execute(context.Background(), "missing", "x = 1", "")
	if appErr.GetCode(err) != appErr.LessonNotFound {
		t.Fatalf("expected LessonNotFound, got %v", err)
	}
}

func TestExecutePayloadTooLarge(t *testing.T) {
	runner := &fakeRunner{payload: acceptedPayload()}
	svc, _, _ := newHarness(validLesson(), runner)

	_, err := svc.Execute(context.Background(), "lesson-1", strings.Repeat("x", 101), "")
	if appErr.GetCode(err) != appErr.PayloadTooLarge {
		t.Fatalf("expected PayloadTooLarge, got %v", err)
	}
	if runner.calls != 0 {
		t.Fatalf("sandbox called despite size guard")
	}
}

func TestExecuteBlankEvalScript(t *testing.T) {
	runner := &fakeRunner{payload: acceptedPayload()}
	lesson := Lesson{ID: "lesson-1", EvalScript: "   \n\t"}
	svc, _, events := newHarness(lesson, runner)

	result, err := svc.Execute(context.Background(), "lesson-1", "x = 1", "")
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if result.Status != StatusRuntimeError {
		t.Fatalf("expected runtime_error, got %s", result.Status)
	}
	if result.Stderr == nil || *result.Stderr != "Evaluation script is not configured." {
		t.Fatalf("unexpected stderr: %v", result.Stderr)
	}
	if runner.calls != 0 {
		t.Fatalf("sandbox called despite guard")
	}
	if len(events.events) != 1 || events.events[0].status != StatusRuntimeError {
		t.Fatalf("guard verdict not audited: %+v", events.events)
	}
}

func TestExecuteMissingPlaceholder(t *testing.T) {
	runner := &fakeRunner{payload: acceptedPayload()}
	lesson := Lesson{ID: "lesson-1", EvalScript: "print('no slot')"}
	svc, _, _ := newHarness(lesson, runner)

	result, err := svc.Execute(context.Background(), "lesson-1", "x = 1", "")
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if result.Stderr == nil || *result.Stderr != "Evaluation script is missing {{USER_CODE}} placeholder." {
		t.Fatalf("unexpected stderr: %v", result.Stderr)
	}
	if runner.calls != 0 {
		t.Fatalf("sandbox called despite guard")
	}
}

func TestExecuteRendersUserCode(t *testing.T) {
	runner := &fakeRunner{payload: acceptedPayload()}
	svc, _, _ := newHarness(validLesson(), runner)

	if _, err := svc.Execute(context.Background(), "lesson-1", "x = 1", ""); err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if !strings.Contains(runner.lastSource, "try:\n    x = 1\n") {
		t.Fatalf("user code not wrapped into source: %q", runner.lastSource)
	}
}

func TestExecuteSandboxUnavailable(t *testing.T) {
	runner := &fakeRunner{err: fmt.Errorf("%w: connect refused", sandbox.ErrUnavailable)}
	svc, _, _ := newHarness(validLesson(), runner)

	_, err := svc.Execute(context.Background(), "lesson-1", "x = 1", "")
	if appErr.GetCode(err) != appErr.SandboxUnavailable {
		t.Fatalf("expected SandboxUnavailable, got %v", err)
	}
}

func TestExecuteInvalidSandboxOutput(t *testing.T) {
	runner := &fakeRunner{err: fmt.Errorf("%w: bad json", sandbox.ErrInvalidOutput)}
	svc, _, events := newHarness(validLesson(), runner)

	result, err := svc.Execute(context.Background(), "lesson-1", "x = 1", "")
	if err != nil {
		t.Fatalf("expected degraded verdict, got error: %v", err)
	}
	if result.Status != StatusRuntimeError {
		t.Fatalf("expected runtime_error, got %s", result.Status)
	}
	if len(events.events) != 1 {
		t.Fatalf("degraded verdict not audited")
	}
}

func TestExecuteAcceptedMarksProgress(t *testing.T) {
	runner := &fakeRunner{payload: acceptedPayload()}
	svc, progress, events := newHarness(validLesson(), runner)

	result, err := svc.Execute(context.Background(), "lesson-1", "x = 1", "user-9")
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if result.Status != StatusAccepted {
		t.Fatalf("expected accepted, got %s", result.Status)
	}
	if len(progress.completed) != 1 || progress.completed[0] != "user-9/lesson-1" {
		t.Fatalf("progress not recorded: %v", progress.completed)
	}
	if len(events.events) != 1 || events.events[0].userID != "user-9" {
		t.Fatalf("event not recorded: %+v", events.events)
	}
}

func TestExecuteAnonymousSkipsProgress(t *testing.T) {
	runner := &fakeRunner{payload: acceptedPayload()}
	svc, progress, _ := newHarness(validLesson(), runner)

	if _, err := svc.Execute(context.Background(), "lesson-1", "x = 1", ""); err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if len(progress.completed) != 0 {
		t.Fatalf("anonymous run recorded progress: %v", progress.completed)
	}
}

func TestExecuteProgressFailureKeepsVerdict(t *testing.T) {
	runner := &fakeRunner{payload: acceptedPayload()}
	svc, progress, _ := newHarness(validLesson(), runner)
	progress.err = stderrors.New("db down")

	result, err := svc.Execute(context.Background(), "lesson-1", "x = 1", "user-9")
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if result.Status != StatusAccepted {
		t.Fatalf("verdict altered by progress failure: %s", result.Status)
	}
}

func TestExecuteWrongAnswerSkipsProgress(t *testing.T) {
	stdout := `{"ok": false, "cases": []}`
	code := 0
	runner := &fakeRunner{payload: sandbox.Payload{Run: &sandbox.Stage{Stdout: &stdout, Code: &code}}}
	svc, progress, _ := newHarness(validLesson(), runner)

	result, err := svc.Execute(context.Background(), "lesson-1", "x = 1", "user-9")
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if result.Status != StatusWrongAnswer {
		t.Fatalf("expected wrong_answer, got %s", result.Status)
	}
	if len(progress.completed) != 0 {
		t.Fatalf("non-accepted run recorded progress")
	}
}

func TestExecuteNilEventSink(t *testing.T) {
	runner := &fakeRunner{payload: acceptedPayload()}
	svc := NewExecutionService(
		&fakeLessons{lessons: map[string]Lesson{"lesson-1": validLesson()}},
		runner,
		&fakeProgress{},
		nil,
		Limits{MaxUserCodeChars: 100, MaxEvalScriptChars: 200, MaxSourceChars: 400, MaxOutputChars: 1000},
	)
	if _, err := svc.Execute(context.Background(), "lesson-1", "x = 1", ""); err != nil {
		t.Fatalf("execute with nil events failed: %v", err)
	}
}
