// Package render merges user code into an evaluation script template.
// Rendering is pure: no I/O, no clock, no global state.
package render

import "strings"

// Placeholder marks where user code is spliced into an evaluation script.
const Placeholder = "{{USER_CODE}}"

// HasPlaceholder reports whether the template contains the user code slot.
func HasPlaceholder(template string) bool {
	return strings.Contains(template, Placeholder)
}

// Render replaces every placeholder occurrence with the wrapped user code.
func Render(template, userCode string) string {
	return strings.ReplaceAll(template, Placeholder, wrapUserCode(userCode))
}

// wrapUserCode indents the user code and wraps it in a re-raising
// try/except so the interpreter's native traceback points at the
// user's lines. Empty code renders to an empty string.
func wrapUserCode(code string) string {
	lines := splitLines(code)
	if len(lines) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("try:\n")
	for _, line := range lines {
		if line != "" {
			b.WriteString("    ")
			b.WriteString(line)
		}
		b.WriteByte('\n')
	}
	b.WriteString("except Exception:\n    raise\n")
	return b.String()
}

// splitLines splits on newlines without producing a trailing empty
// element for a final newline.
func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	lines := strings.Split(s, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
