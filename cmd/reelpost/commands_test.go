package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   string
	Auth   string
}

type testServer struct {
	server   *httptest.Server
	requests []recordedRequest
}

func newTestServer(t *testing.T, responses map[string]string) *testServer {
	t.Helper()
	ts := &testServer{}

	ts.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body bytes.Buffer
		body.ReadFrom(r.Body)

		ts.requests = append(ts.requests, recordedRequest{
			Method: r.Method,
			Path:   r.URL.RequestURI(),
			Body:   body.String(),
			Auth:   r.Header.Get("Authorization"),
		})

		key := r.Method + " " + r.URL.Path
		if resp, ok := responses[key]; ok {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(resp))
			return
		}

		w.WriteHeader(404)
		w.Write([]byte(`{"error":{"message":"not found","type":"not_found"}}`))
	}))

	t.Cleanup(ts.server.Close)
	return ts
}

func (ts *testServer) client() *apiClient {
	return &apiClient{
		baseURL:    ts.server.URL,
		token:      "test-token",
		httpClient: ts.server.Client(),
	}
}

var ctx = context.Background()

func TestGenerateRequest(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /generate": `{"id":"post-1","remotePostId":"remote-42","generationMs":12345}`,
	})

	client := ts.client()
	resp, err := client.post(ctx, "/generate", map[string]string{"topic": "romance scams"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var record map[string]any
	if err := decodeJSON(resp, &record); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if record["remotePostId"] != "remote-42" {
		t.Errorf("remotePostId = %v, want remote-42", record["remotePostId"])
	}

	if len(ts.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(ts.requests))
	}
	r := ts.requests[0]
	if r.Auth != "Bearer test-token" {
		t.Errorf("auth = %q, want Bearer test-token", r.Auth)
	}

	var body map[string]any
	if err := json.Unmarshal([]byte(r.Body), &body); err != nil {
		t.Fatalf("body parse error: %v", err)
	}
	if body["topic"] != "romance scams" {
		t.Errorf("body.topic = %v, want romance scams", body["topic"])
	}
}

func TestEnqueueRequestShape(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /jobs": `{"id":"job-1","status":"pending"}`,
	})

	client := ts.client()
	runAt := time.Date(2026, 9, 2, 8, 0, 0, 0, time.UTC)
	resp, err := client.post(ctx, "/jobs", map[string]any{
		"topic": "phishing red flags",
		"runAt": runAt.Format(time.RFC3339),
		"kind":  "daily",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var job map[string]any
	if err := decodeJSON(resp, &job); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if job["id"] != "job-1" {
		t.Errorf("id = %v, want job-1", job["id"])
	}

	var body map[string]any
	if err := json.Unmarshal([]byte(ts.requests[0].Body), &body); err != nil {
		t.Fatalf("body parse error: %v", err)
	}
	if body["kind"] != "daily" {
		t.Errorf("body.kind = %v, want daily", body["kind"])
	}
	if body["runAt"] != "2026-09-02T08:00:00Z" {
		t.Errorf("body.runAt = %v", body["runAt"])
	}
}

func TestEnqueueCommand_MissingArgs(t *testing.T) {
	defer rootCmd.SetArgs(nil)

	rootCmd.SetArgs([]string{"enqueue"})
	err := rootCmd.Execute()
	if err == nil {
		t.Fatal("expected error for missing args")
	}
	if !strings.Contains(err.Error(), "arg") {
		t.Errorf("error = %q, want it to mention args", err.Error())
	}
}

func TestKeysList(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /credentials/cerebras": `[{"id":"cred-1","provider":"cerebras","secret":"****3456","active":true}]`,
	})

	client := ts.client()
	resp, err := client.get(ctx, "/credentials/cerebras")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var creds []map[string]any
	if err := decodeJSON(resp, &creds); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if len(creds) != 1 {
		t.Fatalf("expected 1 credential, got %d", len(creds))
	}
	if creds[0]["secret"] != "****3456" {
		t.Errorf("secret = %v, want redacted", creds[0]["secret"])
	}
}

func TestStatusCommand_Running(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /health": `{"status":"ok"}`,
	})

	client := ts.client()
	resp, err := client.get(ctx, "/health")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("status code = %d, want 200", resp.StatusCode)
	}
}

func TestStatusCommand_Stopped(t *testing.T) {
	ts := newTestServer(t, map[string]string{})
	ts.server.Close()

	client := ts.client()
	_, err := client.get(ctx, "/health")
	if err == nil {
		t.Fatal("expected error for stopped server")
	}
	if !strings.Contains(err.Error(), "not reachable") {
		t.Errorf("error = %q, want it to mention 'not reachable'", err.Error())
	}
}

func TestNoColorFlag(t *testing.T) {
	old := noColor
	defer func() { noColor = old }()

	noColor = true
	result := colorize(colorGreen, "test message")
	if strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=true should not contain ANSI codes, got %q", result)
	}
	if result != "test message" {
		t.Errorf("result = %q, want %q", result, "test message")
	}

	noColor = false
	result = colorize(colorGreen, "test message")
	if !strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=false should contain ANSI codes, got %q", result)
	}
}

func TestDecodeJSON_ErrorResponse(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(401)
		w.Write([]byte(`{"error":{"message":"unauthorized","type":"authentication_error"}}`))
	}))
	defer ts.Close()

	client := &apiClient{
		baseURL:    ts.URL,
		token:      "bad-token",
		httpClient: ts.Client(),
	}

	resp, err := client.get(ctx, "/posts")
	if err != nil {
		t.Fatalf("unexpected transport error: %v", err)
	}

	var result any
	err = decodeJSON(resp, &result)
	if err == nil {
		t.Fatal("expected error for 401 response")
	}
	if !strings.Contains(err.Error(), "401") {
		t.Errorf("error = %q, want it to contain '401'", err.Error())
	}
}

func TestWatchParsesEventLines(t *testing.T) {
	lines := []string{
		"data: {\"type\":\"PostPublished\",\"at\":\"2026-09-01T08:00:00Z\"}",
		"",
		"data: {\"type\":\"JobEnqueued\",\"at\":\"2026-09-01T08:01:00Z\"}",
	}

	var types []string
	for _, raw := range lines {
		line := strings.TrimPrefix(raw, "data: ")
		if line == "" {
			continue
		}
		var ev map[string]any
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			continue
		}
		types = append(types, ev["type"].(string))
	}

	if len(types) != 2 || types[0] != "PostPublished" || types[1] != "JobEnqueued" {
		t.Errorf("parsed types = %v", types)
	}
}
