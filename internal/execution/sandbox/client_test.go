package sandbox

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

type fakeSandbox struct {
	runtimeStatus  int
	runtimeCalls   atomic.Int64
	executeCalls   atomic.Int64
	executeHandler func(w http.ResponseWriter, r *http.Request, attempt int64)
	lastRequest    atomic.Value
}

func newFakeSandbox(t *testing.T) (*fakeSandbox, *httptest.Server) {
	t.Helper()
	fake := &fakeSandbox{runtimeStatus: http.StatusOK}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v2/runtimes", func(w http.ResponseWriter, r *http.Request) {
		fake.runtimeCalls.Add(1)
		w.WriteHeader(fake.runtimeStatus)
		_, _ = w.Write([]byte("[]"))
	})
	mux.HandleFunc("/api/v2/execute", func(w http.ResponseWriter, r *http.Request) {
		attempt := fake.executeCalls.Add(1)
		var req map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&req); err == nil {
			fake.lastRequest.Store(req)
		}
		fake.executeHandler(w, r, attempt)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return fake, server
}

func testConfig(baseURL string) Config {
	return Config{
		BaseURL:                 baseURL,
		Language:                "python",
		Version:                 "3.10",
		RunTimeout:              5 * time.Second,
		CompileTimeout:          5 * time.Second,
		RunMemoryLimitBytes:     64 << 20,
		CompileMemoryLimitBytes: 64 << 20,
		MaxRetries:              2,
		RetryDelay:              time.Millisecond,
		HealthCheckTTL:          time.Minute,
		HTTPTimeout:             5 * time.Second,
	}
}

func writeRunPayload(w http.ResponseWriter, stdout string) {
	code := 0
	payload := Payload{Run: &Stage{Stdout: &stdout, Code: &code}}
	_ = json.NewEncoder(w).Encode(payload)
}

func TestExecuteSuccess(t *testing.T) {
	fake, server := newFakeSandbox(t)
	fake.executeHandler = func(w http.ResponseWriter, r *http.Request, attempt int64) {
		writeRunPayload(w, `{"ok": true, "cases": []}`)
	}
	client := NewClient(testConfig(server.URL))

	payload, err := client.Execute(context.Background(), "print('hi')")
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if payload.Run == nil || payload.Run.Stdout == nil {
		t.Fatalf("run stage missing: %+v", payload)
	}

	req, _ := fake.lastRequest.Load().(map[string]interface{})
	if req["language"] != "python" || req["version"] != "3.10" {
		t.Fatalf("runtime fields wrong: %v", req)
	}
	files, _ := req["files"].([]interface{})
	if len(files) != 1 {
		t.Fatalf("expected one file, got %v", req["files"])
	}
	file, _ := files[0].(map[string]interface{})
	if file["name"] != "main.py" || file["content"] != "print('hi')" {
		t.Fatalf("file payload wrong: %v", file)
	}
	if req["run_timeout"] != float64(5000) {
		t.Fatalf("run_timeout not in milliseconds: %v", req["run_timeout"])
	}
}

func TestExecuteHealthCheckFailure(t *testing.T) {
	fake, server := newFakeSandbox(t)
	fake.runtimeStatus = http.StatusInternalServerError
	fake.executeHandler = func(w http.ResponseWriter, r *http.Request, attempt int64) {
		writeRunPayload(w, "{}")
	}
	client := NewClient(testConfig(server.URL))

	_, err := client.Execute(context.Background(), "x")
	if !stderrors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if fake.executeCalls.Load() != 0 {
		t.Fatalf("execute endpoint reached despite failed health check")
	}
}

func TestExecuteHealthCheckCached(t *testing.T) {
	fake, server := newFakeSandbox(t)
	fake.executeHandler = func(w http.ResponseWriter, r *http.Request, attempt int64) {
		writeRunPayload(w, "{}")
	}
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	client := NewClientWithClock(testConfig(server.URL), func() time.Time { return now })

	for i := 0; i < 3; i++ {
		if _, err := client.Execute(context.Background(), "x"); err != nil {
			t.Fatalf("execute %d failed: %v", i, err)
		}
	}
	if got := fake.runtimeCalls.Load(); got != 1 {
		t.Fatalf("health check ran %d times within TTL", got)
	}
}

func TestExecuteHealthCheckExpires(t *testing.T) {
	fake, server := newFakeSandbox(t)
	fake.executeHandler = func(w http.ResponseWriter, r *http.Request, attempt int64) {
		writeRunPayload(w, "{}")
	}
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	client := NewClientWithClock(testConfig(server.URL), func() time.Time { return now })

	if _, err := client.Execute(context.Background(), "x"); err != nil {
		t.Fatalf("first execute failed: %v", err)
	}
	now = now.Add(2 * time.Minute)
	if _, err := client.Execute(context.Background(), "x"); err != nil {
		t.Fatalf("second execute failed: %v", err)
	}
	if got := fake.runtimeCalls.Load(); got != 2 {
		t.Fatalf("health check ran %d times, want 2", got)
	}
}

func TestExecuteRetriesTransientFailure(t *testing.T) {
	fake, server := newFakeSandbox(t)
	fake.executeHandler = func(w http.ResponseWriter, r *http.Request, attempt int64) {
		if attempt == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		writeRunPayload(w, "{}")
	}
	client := NewClient(testConfig(server.URL))

	if _, err := client.Execute(context.Background(), "x"); err != nil {
		t.Fatalf("execute failed after retry: %v", err)
	}
	if fake.executeCalls.Load() != 2 {
		t.Fatalf("expected 2 attempts, got %d", fake.executeCalls.Load())
	}
}

func TestExecuteRetriesExhausted(t *testing.T) {
	fake, server := newFakeSandbox(t)
	fake.executeHandler = func(w http.ResponseWriter, r *http.Request, attempt int64) {
		w.WriteHeader(http.StatusBadGateway)
	}
	client := NewClient(testConfig(server.URL))

	_, err := client.Execute(context.Background(), "x")
	if !stderrors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	// First attempt plus MaxRetries.
	if fake.executeCalls.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", fake.executeCalls.Load())
	}
}

func TestExecuteInvalidOutputNotRetried(t *testing.T) {
	fake, server := newFakeSandbox(t)
	fake.executeHandler = func(w http.ResponseWriter, r *http.Request, attempt int64) {
		_, _ = w.Write([]byte("not json"))
	}
	client := NewClient(testConfig(server.URL))

	_, err := client.Execute(context.Background(), "x")
	if !stderrors.Is(err, ErrInvalidOutput) {
		t.Fatalf("expected ErrInvalidOutput, got %v", err)
	}
	if fake.executeCalls.Load() != 1 {
		t.Fatalf("invalid output retried: %d attempts", fake.executeCalls.Load())
	}
}
