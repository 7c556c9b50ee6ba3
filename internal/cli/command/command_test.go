package command

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func mustCommand(t *testing.T, service, action string) Command {
	t.Helper()
	cmd, ok := Registry()[service+" "+action]
	if !ok {
		t.Fatalf("command %s %s not registered", service, action)
	}
	return cmd
}

func decodeBody(t *testing.T, body []byte) map[string]interface{} {
	t.Helper()
	var decoded map[string]interface{}
	if err := json.Unmarshal(body, &decoded); err != nil {
		t.Fatalf("body is not valid json: %v", err)
	}
	return decoded
}

func TestBuildRequestLessonGetPath(t *testing.T) {
	cmd := mustCommand(t, "lesson", "get")
	params := Params{}
	params.Set("slug", "hello world")

	req, err := BuildRequest(cmd, params)
	if err != nil {
		t.Fatalf("build request failed: %v", err)
	}
	if req.Method != "GET" {
		t.Fatalf("wrong method: %s", req.Method)
	}
	if req.Path != "/api/v1/lessons/hello%20world" {
		t.Fatalf("wrong path: %s", req.Path)
	}
	if req.Body != nil {
		t.Fatalf("GET request must not carry a body: %s", req.Body)
	}
}

func TestBuildRequestMissingPathParam(t *testing.T) {
	cmd := mustCommand(t, "lesson", "get")
	if _, err := BuildRequest(cmd, Params{}); err == nil {
		t.Fatal("expected error for missing slug")
	}
}

func TestBuildRequestAssetKeyKeepsSlashes(t *testing.T) {
	cmd := mustCommand(t, "asset", "presign")
	params := Params{}
	params.Set("key", "lessons/abc/img 1.png")

	req, err := BuildRequest(cmd, params)
	if err != nil {
		t.Fatalf("build request failed: %v", err)
	}
	if req.Path != "/api/v1/admin/assets/presign/lessons/abc/img%201.png" {
		t.Fatalf("wrong path: %s", req.Path)
	}
}

func TestBuildRequestLoginBody(t *testing.T) {
	cmd := mustCommand(t, "auth", "login")
	params := Params{}
	params.Set("username", "demo")
	params.Set("password", "secret123")

	req, err := BuildRequest(cmd, params)
	if err != nil {
		t.Fatalf("build request failed: %v", err)
	}
	body := decodeBody(t, req.Body)
	if body["username"] != "demo" || body["password"] != "secret123" {
		t.Fatalf("wrong body: %v", body)
	}
}

func TestBuildRequestRegisterOmitsEmptyEmail(t *testing.T) {
	cmd := mustCommand(t, "auth", "register")
	params := Params{}
	params.Set("username", "demo")
	params.Set("password", "secret123")

	req, err := BuildRequest(cmd, params)
	if err != nil {
		t.Fatalf("build request failed: %v", err)
	}
	body := decodeBody(t, req.Body)
	if _, ok := body["email"]; ok {
		t.Fatalf("empty email must be omitted: %v", body)
	}
}

func TestBuildRequestRunUsesCodeFile(t *testing.T) {
	dir := t.TempDir()
	codePath := filepath.Join(dir, "solution.py")
	if err := os.WriteFile(codePath, []byte("print('hi')\n"), 0o600); err != nil {
		t.Fatalf("write code file: %v", err)
	}

	cmd := mustCommand(t, "run", "execute")
	params := Params{}
	params.Set("lesson", "lesson-1")
	params.Set("file", codePath)

	req, err := BuildRequest(cmd, params)
	if err != nil {
		t.Fatalf("build request failed: %v", err)
	}
	body := decodeBody(t, req.Body)
	if body["lesson_id"] != "lesson-1" {
		t.Fatalf("lesson alias not canonicalized: %v", body)
	}
	if body["code"] != "print('hi')\n" {
		t.Fatalf("code file not loaded: %v", body)
	}
}

func TestBuildRequestLessonUpdatePartial(t *testing.T) {
	cmd := mustCommand(t, "lesson", "update")
	params := Params{}
	params.Set("id", "lesson-1")
	params.Set("name", "Renamed")

	req, err := BuildRequest(cmd, params)
	if err != nil {
		t.Fatalf("build request failed: %v", err)
	}
	if req.Method != "PUT" {
		t.Fatalf("wrong method: %s", req.Method)
	}
	body := decodeBody(t, req.Body)
	if body["name"] != "Renamed" {
		t.Fatalf("name missing: %v", body)
	}
	for _, key := range []string{"order", "slug", "eval_script", "sample_cases"} {
		if _, ok := body[key]; ok {
			t.Fatalf("unset field %s must be omitted: %v", key, body)
		}
	}
}

func TestBuildRequestLessonCreateParsesSampleCases(t *testing.T) {
	cmd := mustCommand(t, "lesson", "create")
	params := Params{}
	params.Set("order", "1")
	params.Set("slug", "intro")
	params.Set("name", "Intro")
	params.Set("eval_script", "{{USER_CODE}}")
	params.Set("sample_cases", `[{"name":"c1","label":"First"}]`)

	req, err := BuildRequest(cmd, params)
	if err != nil {
		t.Fatalf("build request failed: %v", err)
	}
	body := decodeBody(t, req.Body)
	if body["order"] != float64(1) {
		t.Fatalf("order not numeric: %v", body["order"])
	}
	cases, ok := body["sample_cases"].([]interface{})
	if !ok || len(cases) != 1 {
		t.Fatalf("sample_cases not embedded as json: %v", body["sample_cases"])
	}
}

func TestBuildRequestLessonCreateRejectsBadJSON(t *testing.T) {
	cmd := mustCommand(t, "lesson", "create")
	params := Params{}
	params.Set("order", "1")
	params.Set("slug", "intro")
	params.Set("name", "Intro")
	params.Set("sample_cases", "{not json")

	if _, err := BuildRequest(cmd, params); err == nil {
		t.Fatal("expected error for malformed sample_cases")
	}
}

func TestBuildRequestDeleteHasNoBody(t *testing.T) {
	cmd := mustCommand(t, "lesson", "delete")
	params := Params{}
	params.Set("id", "lesson-1")

	req, err := BuildRequest(cmd, params)
	if err != nil {
		t.Fatalf("build request failed: %v", err)
	}
	if req.Method != "DELETE" || req.Body != nil {
		t.Fatalf("unexpected request: %s %s", req.Method, req.Body)
	}
}
