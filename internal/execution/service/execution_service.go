package service

import (
	"context"
	stderrors "errors"
	"strings"

	"codequest/internal/execution/render"
	"codequest/internal/execution/sandbox"
	appErr "codequest/pkg/errors"
	"codequest/pkg/utils/logger"

	"go.uber.org/zap"
)

// Guard messages returned as runtime_error verdicts before any sandbox call.
const (
	msgEvalScriptMissing  = "Evaluation script is not configured."
	msgPlaceholderMissing = "Evaluation script is missing {{USER_CODE}} placeholder."
)

// ExecutionService orchestrates one code execution: lesson resolution,
// size guards, rendering, the sandbox call, interpretation and
// progress recording.
type ExecutionService struct {
	lessons  LessonSource
	runner   Runner
	progress ProgressSink
	events   EventSink
	limits   Limits
}

// NewExecutionService creates the execution orchestrator. events may
// be nil when auditing is disabled.
func NewExecutionService(lessons LessonSource, runner Runner, progress ProgressSink, events EventSink, limits Limits) *ExecutionService {
	return &ExecutionService{
		lessons:  lessons,
		runner:   runner,
		progress: progress,
		events:   events,
		limits:   limits,
	}
}

// Execute runs user code against the lesson's evaluation script and
// returns the verdict. userID is empty for anonymous runs; progress is
// only recorded for identified users and never alters the verdict.
func (s *ExecutionService) Execute(ctx context.Context, lessonID, code, userID string) (Result, error) {
	lesson, err := s.lessons.ExecutionLesson(ctx, lessonID)
	if err != nil {
		return Result{}, err
	}

	if err := s.validatePayloadSizes(code, lesson.EvalScript); err != nil {
		return Result{}, err
	}

	if strings.TrimSpace(lesson.EvalScript) == "" {
		return s.finish(ctx, lessonID, userID, guardVerdict(msgEvalScriptMissing)), nil
	}
	if !render.HasPlaceholder(lesson.EvalScript) {
		return s.finish(ctx, lessonID, userID, guardVerdict(msgPlaceholderMissing)), nil
	}

	source := render.Render(lesson.EvalScript, code)
	if len(source) > s.limits.MaxSourceChars {
		return Result{}, appErr.New(appErr.PayloadTooLarge)
	}

	payload, err := s.runner.Execute(ctx, source)
	if err != nil {
		if stderrors.Is(err, sandbox.ErrInvalidOutput) {
			return s.finish(ctx, lessonID, userID, invalidOutputVerdict()), nil
		}
		return Result{}, appErr.Wrap(err, appErr.SandboxUnavailable)
	}

	result, err := s.interpret(payload, lesson.SampleCases)
	if err != nil {
		// Missing run stage: same degraded verdict as undecodable output.
		return s.finish(ctx, lessonID, userID, invalidOutputVerdict()), nil
	}

	if result.Status == StatusAccepted && userID != "" {
		if err := s.progress.MarkCompleted(ctx, userID, lessonID); err != nil {
			logger.Warn(ctx, "mark lesson completed failed",
				zap.String("lesson_id", lessonID),
				zap.String("user_id", userID),
				zap.Error(err),
			)
		}
	}

	return s.finish(ctx, lessonID, userID, result), nil
}

// finish publishes the audit event and hands the verdict back.
func (s *ExecutionService) finish(ctx context.Context, lessonID, userID string, result Result) Result {
	if s.events != nil {
		s.events.ExecutionCompleted(ctx, lessonID, userID, result.Status, result.DurationMs)
	}
	return result
}

func (s *ExecutionService) validatePayloadSizes(code, evalScript string) error {
	if len(code) > s.limits.MaxUserCodeChars {
		return appErr.New(appErr.PayloadTooLarge)
	}
	if len(evalScript) > s.limits.MaxEvalScriptChars {
		return appErr.New(appErr.PayloadTooLarge)
	}
	return nil
}

// guardVerdict is a runtime_error verdict produced before any sandbox
// call, with the guard message as stderr.
func guardVerdict(message string) Result {
	stderr := message
	return Result{
		Status: StatusRuntimeError,
		Cases:  []Case{},
		Stderr: &stderr,
	}
}

// invalidOutputVerdict is a runtime_error verdict with no output,
// used when the sandbox response could not be interpreted at all.
func invalidOutputVerdict() Result {
	return Result{
		Status: StatusRuntimeError,
		Cases:  []Case{},
	}
}
