package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/haasonsaas/kondate/internal/agent"
	"github.com/haasonsaas/kondate/internal/auth"
	"github.com/haasonsaas/kondate/internal/classify"
	"github.com/haasonsaas/kondate/internal/config"
	"github.com/haasonsaas/kondate/internal/history"
	"github.com/haasonsaas/kondate/internal/orchestrator"
	"github.com/haasonsaas/kondate/internal/planner"
	"github.com/haasonsaas/kondate/internal/progress"
	"github.com/haasonsaas/kondate/internal/prompts"
	"github.com/haasonsaas/kondate/internal/providers"
	"github.com/haasonsaas/kondate/internal/sessions"
	"github.com/haasonsaas/kondate/internal/tools"
	"github.com/haasonsaas/kondate/pkg/models"
)

type stubCompleter struct{}

func (stubCompleter) Complete(ctx context.Context, req *providers.CompletionRequest) (*providers.CompletionResponse, error) {
	return &providers.CompletionResponse{Text: `{"tasks": []}`, Model: "test-model"}, nil
}

func (stubCompleter) Model() string { return "test-model" }

type stubTransport struct{}

func (stubTransport) Call(ctx context.Context, server, tool string, params map[string]any, authToken string) (*models.ToolResult, error) {
	return &models.ToolResult{Success: true, Data: map[string]any{}}, nil
}

func testServer(t *testing.T) (*httptest.Server, *progress.Hub, string) {
	t.Helper()

	registry := tools.NewRegistry(stubTransport{}, tools.Catalog())
	hub := progress.NewHub(nil, progress.WithHeartbeatInterval(time.Hour))
	exec := agent.NewExecutor(registry, hub, &agent.ExecutorConfig{MaxConcurrency: 2, CallTimeout: time.Second}, nil, nil, nil)
	hist, err := history.NewStore("")
	if err != nil {
		t.Fatalf("history.NewStore() error = %v", err)
	}
	t.Cleanup(func() { hist.Close() })

	orch := orchestrator.New(
		sessions.NewMemoryStore(),
		classify.New(classify.Config{}),
		prompts.New(registry),
		planner.New(stubCompleter{}, registry, nil, nil, nil),
		exec,
		hub,
		hist,
		"test-model",
		nil,
		nil,
	)

	jwt := auth.NewJWTService("test-secret", time.Hour)
	server := NewServer(config.ServerConfig{}, orch, hub, jwt, nil, nil, nil)

	ts := httptest.NewServer(server.routes())
	t.Cleanup(ts.Close)

	token, err := jwt.Generate("u1", "")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	return ts, hub, token
}

func postJSON(t *testing.T, url, token string, body any) *http.Response {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	return resp
}

func TestHealthzNeedsNoAuth(t *testing.T) {
	ts, _, _ := testServer(t)

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestChatRequiresAuth(t *testing.T) {
	ts, _, _ := testServer(t)

	resp := postJSON(t, ts.URL+"/api/chat", "", models.ChatRequest{Message: "hi"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
}

func TestChatValidation(t *testing.T) {
	ts, _, token := testServer(t)

	resp := postJSON(t, ts.URL+"/api/chat", token, models.ChatRequest{})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("empty message status = %d, want 400", resp.StatusCode)
	}

	long := strings.Repeat("あ", models.MaxMessageLength+1)
	resp = postJSON(t, ts.URL+"/api/chat", token, models.ChatRequest{Message: long})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("oversize message status = %d, want 400", resp.StatusCode)
	}
}

func TestChatGreeting(t *testing.T) {
	ts, _, token := testServer(t)

	resp := postJSON(t, ts.URL+"/api/chat", token, models.ChatRequest{Message: "こんにちは"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var chat models.ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chat); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !chat.Success || chat.UserID != "u1" {
		t.Fatalf("response = %+v", chat)
	}
}

func TestSelectUnknownSession(t *testing.T) {
	ts, _, token := testServer(t)

	resp := postJSON(t, ts.URL+"/api/select", token, models.SelectionRequest{SSESessionID: "nope", SelectionIndex: 0})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestEventsRequireSession(t *testing.T) {
	ts, _, token := testServer(t)

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/events", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestEventsStream(t *testing.T) {
	ts, hub, token := testServer(t)

	// Published before the subscriber connects; the buffer replays it.
	hub.Publish("u1", models.NewProgress("task1", 50, "halfway"))
	hub.Publish("u1", models.NewComplete("done"))

	// The token rides in the query, as an EventSource client would send it.
	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/events?session=u1&token="+token, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}

	// The terminal event closes the stream, so the body reads to EOF.
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read stream: %v", err)
	}
	text := string(body)
	for _, want := range []string{
		string(models.EventConnected),
		"halfway",
		string(models.EventComplete),
		string(models.EventClose),
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("stream missing %q:\n%s", want, text)
		}
	}
	if !strings.HasPrefix(text, "data: ") {
		t.Fatalf("frames must use the data: prefix:\n%s", text)
	}
}

func TestEventsRejectForeignSession(t *testing.T) {
	ts, _, token := testServer(t)

	// u1's chat creates the session under their default id.
	resp := postJSON(t, ts.URL+"/api/chat", token, models.ChatRequest{Message: "こんにちは"})
	resp.Body.Close()

	jwt := auth.NewJWTService("test-secret", time.Hour)
	otherToken, err := jwt.Generate("u2", "")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/events?session=u1&token="+otherToken, nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", resp.StatusCode)
	}
}

func TestDomainErrorMapsToolFailureTo500(t *testing.T) {
	s := &Server{logger: slog.Default()}

	tests := []struct {
		name        string
		err         error
		wantMessage string
	}{
		{
			name:        "failed tool",
			err:         &agent.ToolError{TaskID: "task1", Tool: "inventory_service.get_inventory", Kind: agent.ToolErrorFailed, Err: errors.New("backend down")},
			wantMessage: "Something went wrong",
		},
		{
			name:        "timed out tool",
			err:         &agent.ToolError{TaskID: "task1", Tool: "inventory_service.get_inventory", Kind: agent.ToolErrorTimeout, Err: context.DeadlineExceeded},
			wantMessage: "took too long",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			s.writeDomainError(rec, tt.err)
			if rec.Code != http.StatusInternalServerError {
				t.Fatalf("status = %d, want 500", rec.Code)
			}
			if !strings.Contains(rec.Body.String(), tt.wantMessage) {
				t.Fatalf("body = %q, want %q", rec.Body.String(), tt.wantMessage)
			}
		})
	}
}

func TestLogout(t *testing.T) {
	ts, _, token := testServer(t)

	resp := postJSON(t, ts.URL+"/api/chat", token, models.ChatRequest{Message: "こんにちは"})
	resp.Body.Close()

	resp = postJSON(t, ts.URL+"/api/logout", token, struct{}{})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	// A fresh session is created on the next chat; the old one is gone.
	resp = postJSON(t, ts.URL+"/api/select", token, models.SelectionRequest{})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("select after logout status = %d, want 404", resp.StatusCode)
	}
}
