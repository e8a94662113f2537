package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sync/atomic"
	"testing"
	"time"

	"agentboard/internal/domain"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Config{BaseURL: srv.URL, OnlineURL: srv.URL})
}

func TestHealthReportsBackendState(t *testing.T) {
	healthy := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			t.Errorf("path=%s want /health", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "healthy"})
	}))
	if !healthy.Health(context.Background()) {
		t.Fatalf("healthy backend reported unhealthy")
	}

	failing := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	if failing.Health(context.Background()) {
		t.Fatalf("failing backend reported healthy")
	}

	down := NewClient(Config{BaseURL: "http://127.0.0.1:1", RequestTimeout: 200 * time.Millisecond})
	if down.Health(context.Background()) {
		t.Fatalf("unreachable backend reported healthy")
	}
}

func TestSendPromptDecodesChatResponse(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/chat" {
			t.Errorf("%s %s want POST /chat", r.Method, r.URL.Path)
		}
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req["prompt"] != "build a calculator" {
			t.Errorf("prompt=%v", req["prompt"])
		}
		if _, ok := req["code_history"].([]any); !ok {
			t.Errorf("code_history missing or not a list: %v", req["code_history"])
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"type":         "coding",
			"message":      "Task completed",
			"code":         "def add(a, b):\n    return a + b\n",
			"tests":        "def test_add():\n    assert add(1, 2) == 3\n",
			"test_results": "TESTS PASSED",
			"tests_passed": true,
			"success":      true,
		})
	}))

	res, err := c.SendPrompt(context.Background(), "build a calculator", "conv-1")
	if err != nil {
		t.Fatalf("send prompt: %v", err)
	}
	if res.Type != "coding" || !res.Success {
		t.Fatalf("type=%s success=%t", res.Type, res.Success)
	}
	if res.Code == "" || res.Tests == "" {
		t.Fatalf("code or tests missing")
	}
	if res.TestsPassed == nil || !*res.TestsPassed {
		t.Fatalf("tests_passed not decoded")
	}
}

func TestSendPromptNormalizesSparseBody(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	res, err := c.SendPrompt(context.Background(), "hello", "")
	if err != nil {
		t.Fatalf("send prompt: %v", err)
	}
	if res.Type != "info" {
		t.Fatalf("type=%q want info", res.Type)
	}
	if res.Message != "No response from backend" {
		t.Fatalf("message=%q", res.Message)
	}
	if res.TestsPassed != nil {
		t.Fatalf("tests_passed should stay unset")
	}
}

func TestSendPromptSurfacesAPIError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model gateway exploded", http.StatusBadGateway)
	}))
	_, err := c.SendPrompt(context.Background(), "hello", "")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err=%v want *APIError", err)
	}
	if apiErr.Status != http.StatusBadGateway {
		t.Fatalf("status=%d want 502", apiErr.Status)
	}
}

func TestRunManualFlowRoundTrip(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/run-manual-flow" {
			t.Errorf("path=%s", r.URL.Path)
		}
		var req struct {
			Prompt      string              `json:"prompt"`
			Boxes       []domain.AgentBox   `json:"boxes"`
			Connections []domain.Connection `json:"connections"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if len(req.Boxes) != 2 || req.Boxes[0].AgentType != domain.AgentTypeCoordinator {
			t.Errorf("boxes not forwarded: %+v", req.Boxes)
		}
		if len(req.Connections) != 1 || req.Connections[0].FromSide != domain.SideRight {
			t.Errorf("connections not forwarded: %+v", req.Connections)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"messages": []map[string]any{
				{
					"from":      "coordinator",
					"to":        "coder",
					"type":      "task",
					"content":   "Write the function",
					"timestamp": "2025-01-02T10:30:00.123456",
				},
			},
			"results":         map[string]any{"coder": map[string]any{"status": "completed"}},
			"generated_files": []string{"code_1.py"},
		})
	}))

	boxes := []domain.AgentBox{
		{ID: "a", X: 0, Y: 0, Width: 160, Height: 100, AgentType: domain.AgentTypeCoordinator, Role: "Smart Coordinator"},
		{ID: "b", X: 300, Y: 0, Width: 160, Height: 100, AgentType: domain.AgentTypeCoder, Role: "Python Developer"},
	}
	conns := []domain.Connection{
		{ID: "c1", FromID: "a", FromSide: domain.SideRight, ToID: "b", ToSide: domain.SideLeft},
	}
	res, err := c.RunManualFlow(context.Background(), "build it", boxes, conns)
	if err != nil {
		t.Fatalf("run manual flow: %v", err)
	}
	if !res.Success || len(res.Messages) != 1 {
		t.Fatalf("success=%t messages=%d", res.Success, len(res.Messages))
	}
	msg := res.Messages[0]
	if msg.From != "coordinator" || msg.To != "coder" || msg.Kind != "task" {
		t.Fatalf("message fields: %+v", msg)
	}
	want := time.Date(2025, 1, 2, 10, 30, 0, 123456000, time.UTC)
	if !msg.Timestamp.Equal(want) {
		t.Fatalf("timestamp=%v want %v", msg.Timestamp, want)
	}
	if len(res.GeneratedFiles) != 1 || res.GeneratedFiles[0] != "code_1.py" {
		t.Fatalf("generated files: %v", res.GeneratedFiles)
	}
	if len(res.Results) == 0 {
		t.Fatalf("results payload dropped")
	}
}

func TestRunManualFlowErrorEnvelope(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success":  false,
			"error":    "No coordinator agent found",
			"messages": []any{},
		})
	}))
	res, err := c.RunManualFlow(context.Background(), "build it", nil, nil)
	if err != nil {
		t.Fatalf("run manual flow: %v", err)
	}
	if res.Success {
		t.Fatalf("failed flow reported success")
	}
	if res.Error != "No coordinator agent found" {
		t.Fatalf("error=%q", res.Error)
	}
}

func TestUpdateAgentModelUsesQueryParams(t *testing.T) {
	var gotAgent, gotModel string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAgent = r.URL.Query().Get("agent_id")
		gotModel = r.URL.Query().Get("model_name")
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "message": "updated"})
	}))
	if err := c.UpdateAgentModel(context.Background(), "coder", "mistral-large"); err != nil {
		t.Fatalf("update agent model: %v", err)
	}
	if gotAgent != "coder" || gotModel != "mistral-large" {
		t.Fatalf("query agent=%q model=%q", gotAgent, gotModel)
	}

	declined := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "message": "unknown agent"})
	}))
	if err := declined.UpdateAgentModel(context.Background(), "x", "y"); err == nil {
		t.Fatalf("expected error for declined update")
	}
}

func TestGeneratedFileOperations(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/list-files", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"files": []string{"test_2.py", "code_1.py"}})
	})
	mux.HandleFunc("/generated/", func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/generated/code_1.py":
			_, _ = w.Write([]byte("def add(a, b):\n    return a + b\n"))
		case r.Method == http.MethodDelete && r.URL.Path == "/generated/code_1.py":
			_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "message": "Deleted code_1.py"})
		default:
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(map[string]any{"detail": "File not found"})
		}
	})
	c := newTestClient(t, mux)

	files, err := c.ListGenerated(context.Background())
	if err != nil {
		t.Fatalf("list generated: %v", err)
	}
	if !reflect.DeepEqual(files, []string{"code_1.py", "test_2.py"}) {
		t.Fatalf("files=%v want sorted", files)
	}

	text, err := c.ReadGenerated(context.Background(), "code_1.py")
	if err != nil {
		t.Fatalf("read generated: %v", err)
	}
	if text == "" || text[:7] != "def add" {
		t.Fatalf("unexpected content %q", text)
	}

	if _, err := c.ReadGenerated(context.Background(), "missing.py"); !IsNotFound(err) {
		t.Fatalf("err=%v want not-found", err)
	}

	if err := c.DeleteGenerated(context.Background(), "code_1.py"); err != nil {
		t.Fatalf("delete generated: %v", err)
	}

	for _, bad := range []string{"", "../etc/passwd", "a/b.py", `a\b.py`} {
		if _, err := c.ReadGenerated(context.Background(), bad); !errors.Is(err, ErrInvalidFilename) {
			t.Fatalf("name %q: err=%v want ErrInvalidFilename", bad, err)
		}
	}
}

func TestListGeneratedSurfacesBackendError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"files": []string{}, "error": "disk unavailable"})
	}))
	if _, err := c.ListGenerated(context.Background()); err == nil {
		t.Fatalf("expected error from backend error field")
	}
}

func TestExampleWorkflowDecodes(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"agents": []map[string]any{
				{"id": "coordinator", "type": "coordinator", "role": "Smart Coordinator"},
				{"id": "coder", "type": "coder", "role": "Python Developer"},
				{"id": "tester", "type": "tester", "role": "Test Engineer"},
				{"id": "runner", "type": "runner", "role": "Test Runner"},
			},
			"description": "A complete workflow for code generation and testing",
		})
	}))
	wf, err := c.ExampleWorkflow(context.Background())
	if err != nil {
		t.Fatalf("example workflow: %v", err)
	}
	if len(wf.Agents) != 4 {
		t.Fatalf("agents=%d want 4", len(wf.Agents))
	}
	if wf.Agents[1].Type != domain.AgentTypeCoder {
		t.Fatalf("agent[1].type=%s", wf.Agents[1].Type)
	}
}

func TestOnlineModelsFlattensCatalog(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models" {
			t.Errorf("path=%s want /models", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{
			"available_models": {
				"mistral-large": {"provider": "mistral", "model": "mistral-large-latest"},
				"gpt-4": {"provider": "openai", "model": "gpt-4"}
			},
			"default_model": "gpt-4",
			"providers": {"openai": ["gpt-4"], "mistral": ["mistral-large"]}
		}`))
	}))
	models, err := c.OnlineModels(context.Background())
	if err != nil {
		t.Fatalf("online models: %v", err)
	}
	if !reflect.DeepEqual(models.Available, []string{"gpt-4", "mistral-large"}) {
		t.Fatalf("available=%v", models.Available)
	}
	if models.Default != "gpt-4" {
		t.Fatalf("default=%q", models.Default)
	}
	if !reflect.DeepEqual(models.Providers["mistral"], []string{"mistral-large"}) {
		t.Fatalf("providers=%v", models.Providers)
	}
}

func TestPollOnlineWorkflowStopsOnTerminalStatus(t *testing.T) {
	var calls int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		status := "running"
		if n >= 3 {
			status = "completed"
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"workflow_id":     "wf-1",
			"status":          status,
			"agents":          map[string]string{"coder": "completed"},
			"message_count":   int(n),
			"conversation_id": "conv-1",
		})
	}))

	status, err := c.PollOnlineWorkflow(context.Background(), "wf-1", PollConfig{
		Interval:      time.Millisecond,
		BackoffFactor: 2,
		MaxInterval:   4 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("poll online workflow: %v", err)
	}
	if status.Status != "completed" {
		t.Fatalf("status=%q want completed", status.Status)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Fatalf("calls=%d want 3", got)
	}
}

func TestParseTimestampFormats(t *testing.T) {
	cases := []struct {
		in   string
		want time.Time
	}{
		{"2025-01-02T10:30:00.123456", time.Date(2025, 1, 2, 10, 30, 0, 123456000, time.UTC)},
		{"2025-01-02T10:30:00", time.Date(2025, 1, 2, 10, 30, 0, 0, time.UTC)},
		{"2025-01-02T10:30:00Z", time.Date(2025, 1, 2, 10, 30, 0, 0, time.UTC)},
		{"not a timestamp", time.Time{}},
		{"", time.Time{}},
	}
	for _, tc := range cases {
		got := parseTimestamp(tc.in)
		if !got.Equal(tc.want) {
			t.Fatalf("parseTimestamp(%q)=%v want %v", tc.in, got, tc.want)
		}
	}
}
