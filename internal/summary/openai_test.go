package summary

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestOpenAIGenerate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("Unexpected path: %s", r.URL.Path)
		}

		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("Failed to decode request: %v", err)
		}
		if req.Model != "gpt-4o-mini" {
			t.Errorf("Expected model 'gpt-4o-mini', got '%s'", req.Model)
		}
		if len(req.Messages) != 2 || req.Messages[1].Content != "test prompt" {
			t.Errorf("Unexpected messages: %+v", req.Messages)
		}

		fmt.Fprint(w, `{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1700000000,
			"model": "gpt-4o-mini",
			"choices": [{
				"index": 0,
				"message": {"role": "assistant", "content": "A solid project."},
				"finish_reason": "stop"
			}]
		}`)
	}))
	defer server.Close()

	provider := NewOpenAIProvider("test-key", "gpt-4o-mini", server.URL+"/v1")
	text, err := provider.Generate(context.Background(), "test prompt")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if text != "A solid project." {
		t.Errorf("Expected 'A solid project.', got %q", text)
	}
}

func TestOpenAIGenerateRateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error": {"message": "Rate limit reached", "type": "rate_limit_exceeded"}}`)
	}))
	defer server.Close()

	provider := NewOpenAIProvider("test-key", "gpt-4o-mini", server.URL+"/v1")
	_, err := provider.Generate(context.Background(), "test prompt")
	if !errors.Is(err, ErrRateLimited) {
		t.Errorf("Expected ErrRateLimited, got %v", err)
	}
}

func TestOpenAIGenerateContentFilter(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{
			"id": "chatcmpl-2",
			"object": "chat.completion",
			"created": 1700000000,
			"model": "gpt-4o-mini",
			"choices": [{
				"index": 0,
				"message": {"role": "assistant", "content": ""},
				"finish_reason": "content_filter"
			}]
		}`)
	}))
	defer server.Close()

	provider := NewOpenAIProvider("test-key", "gpt-4o-mini", server.URL+"/v1")
	_, err := provider.Generate(context.Background(), "test prompt")
	if !errors.Is(err, ErrContentPolicy) {
		t.Errorf("Expected ErrContentPolicy, got %v", err)
	}
}

func TestOpenAIGenerateNoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{
			"id": "chatcmpl-3",
			"object": "chat.completion",
			"created": 1700000000,
			"model": "gpt-4o-mini",
			"choices": []
		}`)
	}))
	defer server.Close()

	provider := NewOpenAIProvider("test-key", "gpt-4o-mini", server.URL+"/v1")
	_, err := provider.Generate(context.Background(), "test prompt")
	if !errors.Is(err, ErrUpstream) {
		t.Errorf("Expected ErrUpstream, got %v", err)
	}
}
