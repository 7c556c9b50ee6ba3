package service

import (
	"context"

	"codequest/internal/execution/sandbox"
)

// Status is the overall verdict of one execution.
type Status string

const (
	StatusAccepted     Status = "accepted"
	StatusWrongAnswer  Status = "wrong_answer"
	StatusCompileError Status = "compile_error"
	StatusRuntimeError Status = "runtime_error"
	StatusTimeout      Status = "timeout"
)

// Result is the immutable outcome of one execution.
type Result struct {
	Status     Status   `json:"status"`
	Cases      []Case   `json:"cases"`
	Stdout     *string  `json:"stdout"`
	Stderr     *string  `json:"stderr"`
	DurationMs *float64 `json:"duration_ms"`
}

// Case is the per-sample-case grading outcome shown to the learner.
type Case struct {
	Name   string  `json:"name"`
	Label  string  `json:"label"`
	OK     bool    `json:"ok"`
	Reason *string `json:"reason"`
}

// Lesson carries the slice of lesson data the execution pipeline needs.
type Lesson struct {
	ID          string
	EvalScript  string
	SampleCases []SampleCase
}

// SampleCase is a lesson-defined grading case shown to the learner.
type SampleCase struct {
	Name  string
	Label string
}

// LessonSource resolves lessons for execution.
type LessonSource interface {
	ExecutionLesson(ctx context.Context, lessonID string) (Lesson, error)
}

// ProgressSink records lesson completion for identified users.
type ProgressSink interface {
	MarkCompleted(ctx context.Context, userID, lessonID string) error
}

// Runner executes rendered source in the sandbox.
type Runner interface {
	Execute(ctx context.Context, source string) (sandbox.Payload, error)
}

// EventSink receives execution audit events. Implementations must be
// nil-safe and must never fail the caller.
type EventSink interface {
	ExecutionCompleted(ctx context.Context, lessonID, userID string, status Status, durationMs *float64)
}

// Limits bounds execution payload and output sizes.
type Limits struct {
	MaxUserCodeChars   int
	MaxEvalScriptChars int
	MaxSourceChars     int
	MaxOutputChars     int
}
