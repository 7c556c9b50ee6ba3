package service

import (
	"encoding/json"
	"strings"

	"codequest/internal/execution/sandbox"
)

const truncationSuffix = "\n...[output truncated]"

// interpret turns a sandbox payload into a verdict. It returns
// sandbox.ErrInvalidOutput only when the run stage is missing; every
// other malformed evaluator output degrades into a runtime_error
// verdict carrying the run output.
func (s *ExecutionService) interpret(payload sandbox.Payload, sampleCases []SampleCase) (Result, error) {
	if payload.Compile != nil {
		if result, failed := s.buildCompileError(payload.Compile); failed {
			return result, nil
		}
	}

	run := payload.Run
	if run == nil {
		return Result{}, sandbox.ErrInvalidOutput
	}

	if result, failed := s.buildRunError(run); failed {
		return result, nil
	}

	parsed, err := parseStdout(run.Stdout)
	if err == nil {
		var caseMap map[string]map[string]interface{}
		caseMap, err = buildCaseMap(parsed["cases"])
		if err == nil {
			status := StatusWrongAnswer
			if ok, isBool := parsed["ok"].(bool); isBool && ok {
				status = StatusAccepted
			}
			return Result{
				Status:     status,
				Cases:      buildSampleCases(caseMap, sampleCases),
				Stdout:     s.capOutput(run.Stdout),
				Stderr:     s.capOutput(normalizeStderr(run.Stderr)),
				DurationMs: run.WallTime,
			}, nil
		}
	}

	// Evaluator printed something that is not a grading payload.
	return Result{
		Status:     StatusRuntimeError,
		Cases:      []Case{},
		Stdout:     s.capOutput(run.Stdout),
		Stderr:     s.capOutput(normalizeStderr(run.Stderr)),
		DurationMs: run.WallTime,
	}, nil
}

// buildCompileError reports whether the compile stage failed and, if
// so, the compile_error verdict. A stage counts as failed on a TO/SG
// status or a non-zero exit code.
func (s *ExecutionService) buildCompileError(stage *sandbox.Stage) (Result, bool) {
	if !stageFailed(stage) {
		return Result{}, false
	}
	return Result{
		Status:     StatusCompileError,
		Cases:      []Case{},
		Stdout:     s.capOutput(stage.Stdout),
		Stderr:     s.capOutput(normalizeStderr(stage.Stderr)),
		DurationMs: stage.WallTime,
	}, true
}

// buildRunError reports whether the run stage failed and, if so, the
// timeout or runtime_error verdict.
func (s *ExecutionService) buildRunError(stage *sandbox.Stage) (Result, bool) {
	if stage.Status == sandbox.StatusTimeout {
		return Result{
			Status:     StatusTimeout,
			Cases:      []Case{},
			Stdout:     s.capOutput(stage.Stdout),
			Stderr:     s.capOutput(normalizeStderr(stage.Stderr)),
			DurationMs: stage.WallTime,
		}, true
	}
	if stage.Status != sandbox.StatusSignal && stage.Status != sandbox.StatusRuntimeError &&
		(stage.Code == nil || *stage.Code == 0) {
		return Result{}, false
	}
	return Result{
		Status:     StatusRuntimeError,
		Cases:      []Case{},
		Stdout:     s.capOutput(stage.Stdout),
		Stderr:     s.capOutput(normalizeStderr(stage.Stderr)),
		DurationMs: stage.WallTime,
	}, true
}

func stageFailed(stage *sandbox.Stage) bool {
	if stage.Status == sandbox.StatusTimeout || stage.Status == sandbox.StatusSignal {
		return true
	}
	return stage.Code != nil && *stage.Code != 0
}

// parseStdout decodes the evaluator's stdout as a JSON object.
func parseStdout(stdout *string) (map[string]interface{}, error) {
	output := ""
	if stdout != nil {
		output = *stdout
	}
	var decoded interface{}
	if err := json.Unmarshal([]byte(output), &decoded); err != nil {
		return nil, sandbox.ErrInvalidOutput
	}
	parsed, ok := decoded.(map[string]interface{})
	if !ok {
		return nil, sandbox.ErrInvalidOutput
	}
	return parsed, nil
}

// buildCaseMap normalizes the evaluator's cases array into a map by
// case name. Elements that are not objects or lack a string name are
// dropped; duplicate names keep the last occurrence.
func buildCaseMap(casesPayload interface{}) (map[string]map[string]interface{}, error) {
	cases, ok := casesPayload.([]interface{})
	if !ok {
		return nil, sandbox.ErrInvalidOutput
	}
	caseMap := make(map[string]map[string]interface{})
	for _, entry := range cases {
		obj, ok := entry.(map[string]interface{})
		if !ok {
			continue
		}
		name, ok := obj["name"].(string)
		if !ok {
			continue
		}
		caseMap[name] = obj
	}
	return caseMap, nil
}

// buildSampleCases grades the lesson's sample cases against the
// evaluator's case map. Cases the evaluator did not report come back
// as failed with no reason.
func buildSampleCases(caseMap map[string]map[string]interface{}, sampleCases []SampleCase) []Case {
	result := make([]Case, 0, len(sampleCases))
	for _, sample := range sampleCases {
		payload := caseMap[sample.Name]
		ok, _ := payload["ok"].(bool)
		var reason *string
		if r, isString := payload["reason"].(string); isString {
			reason = &r
		}
		result = append(result, Case{
			Name:   sample.Name,
			Label:  sample.Label,
			OK:     ok,
			Reason: reason,
		})
	}
	return result
}

// normalizeStderr collapses the duplicated traceback the re-raising
// wrapper produces: when the line count is even and the first half
// equals the second, only the first half is kept.
func normalizeStderr(stderr *string) *string {
	if stderr == nil || *stderr == "" {
		return stderr
	}
	trimmed := strings.Trim(*stderr, "\n")
	var lines []string
	if trimmed != "" {
		lines = strings.Split(trimmed, "\n")
	}
	if len(lines)%2 != 0 {
		return stderr
	}
	half := len(lines) / 2
	for i := 0; i < half; i++ {
		if lines[i] != lines[half+i] {
			return stderr
		}
	}
	normalized := strings.Join(lines[:half], "\n")
	if strings.HasSuffix(*stderr, "\n") {
		normalized += "\n"
	}
	return &normalized
}

// capOutput truncates oversized output and appends a marker. The total
// length never exceeds MaxOutputChars. Nil passes through.
func (s *ExecutionService) capOutput(output *string) *string {
	if output == nil {
		return nil
	}
	maxChars := s.limits.MaxOutputChars
	runes := []rune(*output)
	if len(runes) <= maxChars {
		return output
	}
	capped := string(runes[:maxChars-len(truncationSuffix)]) + truncationSuffix
	return &capped
}
