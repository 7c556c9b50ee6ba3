package command

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// Registry returns all CLI commands keyed by "service action".
func Registry() map[string]Command {
	commands := []Command{
		{
			Service:      "auth",
			Action:       "register",
			Method:       "POST",
			PathTemplate: "/api/v1/auth/register",
			Fields: []Field{
				{Name: "username", Prompt: "username", Type: FieldString, Required: true},
				{Name: "password", Prompt: "password", Type: FieldString, Required: true},
				{Name: "email", Prompt: "email", Type: FieldString},
			},
		},
		{
			Service:      "auth",
			Action:       "login",
			Method:       "POST",
			PathTemplate: "/api/v1/auth/login",
			Fields: []Field{
				{Name: "username", Prompt: "username", Type: FieldString, Required: true},
				{Name: "password", Prompt: "password", Type: FieldString, Required: true},
			},
		},
		{
			Service:      "auth",
			Action:       "me",
			Method:       "GET",
			PathTemplate: "/api/v1/auth/me",
			RequiresAuth: true,
		},
		{
			Service:      "auth",
			Action:       "github",
			Method:       "GET",
			PathTemplate: "/api/v1/auth/github/authorize",
		},
		{
			Service:      "lesson",
			Action:       "list",
			Method:       "GET",
			PathTemplate: "/api/v1/lessons",
		},
		{
			Service:      "lesson",
			Action:       "get",
			Method:       "GET",
			PathTemplate: "/api/v1/lessons/:slug",
			Fields: []Field{
				{Name: "slug", Prompt: "slug", Type: FieldString, Required: true},
			},
		},
		{
			Service:      "lesson",
			Action:       "show",
			Method:       "GET",
			PathTemplate: "/api/v1/admin/lessons/:id",
			RequiresAuth: true,
			Fields: []Field{
				{Name: "id", Prompt: "lesson_id", Type: FieldString, Required: true},
			},
		},
		{
			Service:      "lesson",
			Action:       "create",
			Method:       "POST",
			PathTemplate: "/api/v1/admin/lessons",
			RequiresAuth: true,
			Fields: []Field{
				{Name: "order", Prompt: "order", Type: FieldInt, Required: true},
				{Name: "slug", Prompt: "slug", Type: FieldString, Required: true},
				{Name: "name", Prompt: "name", Type: FieldString, Required: true},
				{Name: "body_markdown", Prompt: "body_markdown", Type: FieldString},
				{Name: "expected_output", Prompt: "expected_output", Type: FieldString},
				{Name: "code_editor_default", Prompt: "code_editor_default", Type: FieldString},
				{Name: "eval_script", Prompt: "eval_script", Type: FieldString},
				{Name: "eval_script_file", Prompt: "eval_script_file", Type: FieldFile},
				{Name: "sample_cases", Prompt: "sample_cases (json)", Type: FieldJSON},
			},
		},
		{
			Service:      "lesson",
			Action:       "update",
			Method:       "PUT",
			PathTemplate: "/api/v1/admin/lessons/:id",
			RequiresAuth: true,
			Fields: []Field{
				{Name: "id", Prompt: "lesson_id", Type: FieldString, Required: true},
				{Name: "order", Prompt: "order", Type: FieldInt},
				{Name: "slug", Prompt: "slug", Type: FieldString},
				{Name: "name", Prompt: "name", Type: FieldString},
				{Name: "body_markdown", Prompt: "body_markdown", Type: FieldString},
				{Name: "expected_output", Prompt: "expected_output", Type: FieldString},
				{Name: "code_editor_default", Prompt: "code_editor_default", Type: FieldString},
				{Name: "eval_script", Prompt: "eval_script", Type: FieldString},
				{Name: "eval_script_file", Prompt: "eval_script_file", Type: FieldFile},
				{Name: "sample_cases", Prompt: "sample_cases (json)", Type: FieldJSON},
			},
		},
		{
			Service:      "lesson",
			Action:       "delete",
			Method:       "DELETE",
			PathTemplate: "/api/v1/admin/lessons/:id",
			RequiresAuth: true,
			Fields: []Field{
				{Name: "id", Prompt: "lesson_id", Type: FieldString, Required: true},
			},
		},
		{
			Service:      "run",
			Action:       "execute",
			Method:       "POST",
			PathTemplate: "/api/v1/execute/run",
			Fields: []Field{
				{Name: "lesson_id", Aliases: []string{"lesson"}, Prompt: "lesson_id", Type: FieldString, Required: true},
				{Name: "code", Prompt: "code", Type: FieldString},
				{Name: "code_file", Aliases: []string{"file"}, Prompt: "code_file", Type: FieldFile},
			},
		},
		{
			Service:      "progress",
			Action:       "show",
			Method:       "GET",
			PathTemplate: "/api/v1/progress",
			RequiresAuth: true,
		},
		{
			Service:      "progress",
			Action:       "reset",
			Method:       "DELETE",
			PathTemplate: "/api/v1/progress",
			RequiresAuth: true,
		},
		{
			Service:      "asset",
			Action:       "list",
			Method:       "GET",
			PathTemplate: "/api/v1/admin/lessons/:id/assets",
			RequiresAuth: true,
			Fields: []Field{
				{Name: "id", Prompt: "lesson_id", Type: FieldString, Required: true},
			},
		},
		{
			Service:      "asset",
			Action:       "presign",
			Method:       "GET",
			PathTemplate: "/api/v1/admin/assets/presign/:key",
			RequiresAuth: true,
			Fields: []Field{
				{Name: "key", Prompt: "object key", Type: FieldString, Required: true},
			},
		},
		{
			Service:      "asset",
			Action:       "delete",
			Method:       "DELETE",
			PathTemplate: "/api/v1/admin/assets/:key",
			RequiresAuth: true,
			Fields: []Field{
				{Name: "key", Prompt: "object key", Type: FieldString, Required: true},
			},
		},
	}

	registry := make(map[string]Command, len(commands))
	for _, cmd := range commands {
		registry[fmt.Sprintf("%s %s", cmd.Service, cmd.Action)] = cmd
	}
	return registry
}

// BuildRequest turns a command and its params into an HTTP request.
func BuildRequest(cmd Command, params Params) (RequestSpec, error) {
	params.Canonicalize(cmd.Fields)
	path, err := buildPath(cmd.PathTemplate, params)
	if err != nil {
		return RequestSpec{}, err
	}

	var body []byte
	if cmd.Method != "GET" && cmd.Method != "DELETE" {
		payload, err := buildPayload(cmd, params)
		if err != nil {
			return RequestSpec{}, err
		}
		if payload != nil {
			body, err = json.Marshal(payload)
			if err != nil {
				return RequestSpec{}, fmt.Errorf("marshal request body failed: %w", err)
			}
		}
	}

	return RequestSpec{
		Method:  cmd.Method,
		Path:    path,
		Headers: map[string]string{},
		Body:    body,
	}, nil
}

func buildPath(template string, params Params) (string, error) {
	path := template
	for _, key := range []string{"id", "slug", "key"} {
		placeholder := ":" + key
		if strings.Contains(path, placeholder) {
			value := params.Get(key)
			if value == "" {
				return "", fmt.Errorf("missing path parameter: %s", key)
			}
			path = strings.ReplaceAll(path, placeholder, escapePathValue(key, value))
		}
	}
	return path, nil
}

// Object keys may contain slashes, which the asset routes accept as a
// wildcard segment.
func escapePathValue(key, value string) string {
	if key == "key" {
		segments := strings.Split(value, "/")
		for i, segment := range segments {
			segments[i] = url.PathEscape(segment)
		}
		return strings.Join(segments, "/")
	}
	return url.PathEscape(value)
}

func buildPayload(cmd Command, params Params) (interface{}, error) {
	switch cmd.Service {
	case "auth":
		switch cmd.Action {
		case "register":
			payload := map[string]string{
				"username": params.Get("username"),
				"password": params.Get("password"),
			}
			if params.Get("email") != "" {
				payload["email"] = params.Get("email")
			}
			return payload, nil
		case "login":
			return map[string]string{
				"username": params.Get("username"),
				"password": params.Get("password"),
			}, nil
		}
	case "lesson":
		switch cmd.Action {
		case "create":
			return buildLessonPayload(params, true)
		case "update":
			return buildLessonPayload(params, false)
		}
	case "run":
		if cmd.Action == "execute" {
			return buildRunPayload(params)
		}
	}
	return nil, nil
}

// buildLessonPayload assembles a lesson body. For updates only the
// provided fields are sent so the server keeps the rest.
func buildLessonPayload(params Params, create bool) (interface{}, error) {
	payload := map[string]interface{}{}

	if create || params.Has("order") {
		order, err := ParseInt(params.Get("order"))
		if err != nil {
			return nil, fmt.Errorf("invalid order: %w", err)
		}
		payload["order"] = order
	}
	for _, key := range []string{"slug", "name", "body_markdown", "expected_output", "code_editor_default"} {
		if create || params.Has(key) {
			if value := params.Get(key); create || value != "" {
				payload[key] = value
			}
		}
	}

	evalScript := params.Get("eval_script")
	if evalScript == "" && params.Get("eval_script_file") != "" {
		data, err := ReadFile(params.Get("eval_script_file"))
		if err != nil {
			return nil, err
		}
		evalScript = data
	}
	if evalScript != "" {
		payload["eval_script"] = evalScript
	}

	if raw := params.Get("sample_cases"); raw != "" {
		cases, err := ParseJSON(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid sample_cases: %w", err)
		}
		payload["sample_cases"] = cases
	}
	return payload, nil
}

func buildRunPayload(params Params) (interface{}, error) {
	code := params.Get("code")
	if code == "" && params.Get("code_file") != "" {
		data, err := ReadFile(params.Get("code_file"))
		if err != nil {
			return nil, err
		}
		code = data
	}
	return map[string]string{
		"lesson_id": params.Get("lesson_id"),
		"code":      code,
	}, nil
}
