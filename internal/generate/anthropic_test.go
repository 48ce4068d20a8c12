package generate

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func messageResponse(text string) map[string]any {
	return map[string]any{
		"id":            "msg_test",
		"type":          "message",
		"role":          "assistant",
		"model":         "claude-test",
		"stop_reason":   "end_turn",
		"stop_sequence": nil,
		"content":       []map[string]any{{"type": "text", "text": text}},
		"usage":         map[string]any{"input_tokens": 10, "output_tokens": 20},
	}
}

func newTestGenerator(t *testing.T, url string) *AnthropicGenerator {
	t.Helper()
	gen, err := NewAnthropicGenerator(AnthropicConfig{APIKey: "test-key", Model: "claude-test", MaxTokens: 1024, BaseURL: url})
	if err != nil {
		t.Fatalf("new generator: %v", err)
	}
	return gen
}

func TestAnthropicGenerator_ParsesFencedJSON(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("X-Api-Key") != "test-key" {
			t.Errorf("api key header missing")
		}
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &body)

		payload, _ := json.Marshal(Result{Markup: `<div data-cv-slot="work"></div>`, Stylesheet: ".cv{}"})
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(messageResponse("```json\n" + string(payload) + "\n```"))
	}))
	defer srv.Close()

	gen := newTestGenerator(t, srv.URL)
	res, err := gen.Generate(context.Background(), Request{
		Description:        "two columns",
		ReferenceImage:     []byte("\x89PNG\r\n"),
		ReferenceImageType: "image/png",
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if res.Markup != `<div data-cv-slot="work"></div>` || res.Stylesheet != ".cv{}" {
		t.Fatalf("unexpected result %+v", res)
	}

	if body["model"] != "claude-test" {
		t.Fatalf("model not forwarded: %v", body["model"])
	}
	messages, _ := body["messages"].([]any)
	if len(messages) != 1 {
		t.Fatalf("expected one user message, got %v", body["messages"])
	}
	content, _ := messages[0].(map[string]any)["content"].([]any)
	if len(content) != 2 {
		t.Fatalf("expected text + image blocks, got %d", len(content))
	}
	text, _ := content[0].(map[string]any)["text"].(string)
	if !strings.Contains(text, "two columns") || !strings.Contains(text, "data-cv-slot") {
		t.Fatalf("prompt missing brief or slot list: %s", text)
	}
	if kind, _ := content[1].(map[string]any)["type"].(string); kind != "image" {
		t.Fatalf("second block should be the reference image, got %q", kind)
	}
}

func TestAnthropicGenerator_InvalidJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(messageResponse("I cannot help with that."))
	}))
	defer srv.Close()

	_, err := newTestGenerator(t, srv.URL).Generate(context.Background(), Request{Description: "x"})
	if err == nil || !strings.Contains(err.Error(), "parse generator response") {
		t.Fatalf("expected parse error, got %v", err)
	}
}

func TestAnthropicGenerator_TimeoutMapsToErrTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)

	svc := NewService(newTestGenerator(t, srv.URL), &fakeStore{}, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := svc.GenerateAndCreate(ctx, Request{OwnerID: 1, Description: "x"}, proCaps, "", "")
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestNewAnthropicGenerator_RequiresKey(t *testing.T) {
	if _, err := NewAnthropicGenerator(AnthropicConfig{Model: "m"}); err == nil {
		t.Fatalf("expected error without api key")
	}
}
