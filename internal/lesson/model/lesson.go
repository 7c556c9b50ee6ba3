package model

import "time"

// SampleCase is a lesson-defined grading case. Name keys the evaluator
// output; Label is what learners see.
type SampleCase struct {
	Name  string `json:"name"`
	Label string `json:"label"`
}

// Lesson is the lessons table row.
type Lesson struct {
	ID                string       `json:"id"`
	Order             int          `json:"order"`
	Slug              string       `json:"slug"`
	Name              string       `json:"name"`
	BodyMarkdown      string       `json:"body_markdown"`
	ExpectedOutput    string       `json:"expected_output"`
	CodeEditorDefault string       `json:"code_editor_default"`
	EvalScript        string       `json:"eval_script"`
	SampleCases       []SampleCase `json:"sample_cases"`
	CreatedAt         time.Time    `json:"created_at"`
	UpdatedAt         *time.Time   `json:"updated_at"`
}
