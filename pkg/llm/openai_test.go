package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func completionFixture(content string) openAIResponse {
	return openAIResponse{
		Choices: []struct {
			Message message `json:"message"`
		}{
			{Message: message{Role: "assistant", Content: content}},
		},
	}
}

func TestOpenAIComplete_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" {
			t.Errorf("Expected POST, got %s", r.Method)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("Expected Bearer test-key, got %s", r.Header.Get("Authorization"))
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("Expected application/json, got %s", r.Header.Get("Content-Type"))
		}

		resp := completionFixture("A microgrid is a locally controlled power network.")
		resp.Usage.PromptTokens = 12
		resp.Usage.CompletionTokens = 34
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := NewOpenAIClient("test-key", WithBaseURL(server.URL))

	result, usage, err := client.Complete(context.Background(), "Describe a microgrid.")
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if result != "A microgrid is a locally controlled power network." {
		t.Errorf("Unexpected completion: %s", result)
	}
	if usage.TokensIn != 12 || usage.TokensOut != 34 {
		t.Errorf("Usage mismatch: got %+v, want {12 34}", usage)
	}
}

func TestOpenAIComplete_EmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(openAIResponse{})
	}))
	defer server.Close()

	client := NewOpenAIClient("test-key", WithBaseURL(server.URL))

	_, _, err := client.Complete(context.Background(), "prompt")
	if err == nil {
		t.Fatal("Expected error for empty response, got nil")
	}
	if !strings.Contains(err.Error(), "no completion choices") {
		t.Errorf("Expected 'no completion choices' error, got: %v", err)
	}
}

func TestOpenAIComplete_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte("Bad request"))
	}))
	defer server.Close()

	client := NewOpenAIClient("test-key", WithBaseURL(server.URL))

	_, _, err := client.Complete(context.Background(), "prompt")
	if err == nil {
		t.Fatal("Expected error for 400 status, got nil")
	}
	if !strings.Contains(err.Error(), "HTTP 400") {
		t.Errorf("Expected 'HTTP 400' error, got: %v", err)
	}
}

func TestOpenAIComplete_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := openAIResponse{
			Error: &struct {
				Message string `json:"message"`
				Type    string `json:"type"`
			}{
				Message: "Invalid API key",
				Type:    "invalid_request_error",
			},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := NewOpenAIClient("test-key", WithBaseURL(server.URL))

	_, _, err := client.Complete(context.Background(), "prompt")
	if err == nil {
		t.Fatal("Expected error for API error, got nil")
	}
	if !strings.Contains(err.Error(), "Invalid API key") {
		t.Errorf("Expected 'Invalid API key' error, got: %v", err)
	}
}

func TestOpenAIComplete_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
		json.NewEncoder(w).Encode(completionFixture("late"))
	}))
	defer server.Close()

	client := NewOpenAIClient("test-key", WithBaseURL(server.URL))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, _, err := client.Complete(ctx, "prompt")
	if err == nil {
		t.Fatal("Expected context cancellation error, got nil")
	}
	if !strings.Contains(err.Error(), "context") {
		t.Errorf("Expected context error, got: %v", err)
	}
}

func TestOpenAIComplete_RetryOn500(t *testing.T) {
	attemptCount := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attemptCount++
		if attemptCount < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte("Server error"))
			return
		}
		json.NewEncoder(w).Encode(completionFixture("Success after retries"))
	}))
	defer server.Close()

	client := NewOpenAIClient("test-key", WithBaseURL(server.URL))

	result, _, err := client.Complete(context.Background(), "prompt")
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if result != "Success after retries" {
		t.Errorf("Unexpected completion: %s", result)
	}
	if attemptCount != 3 {
		t.Errorf("Expected 3 attempts, got %d", attemptCount)
	}
}

func TestOpenAIComplete_RetryOn429(t *testing.T) {
	attemptCount := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attemptCount++
		if attemptCount < 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte("Rate limited"))
			return
		}
		json.NewEncoder(w).Encode(completionFixture("Success after rate limit"))
	}))
	defer server.Close()

	client := NewOpenAIClient("test-key", WithBaseURL(server.URL))

	result, _, err := client.Complete(context.Background(), "prompt")
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if result != "Success after rate limit" {
		t.Errorf("Unexpected completion: %s", result)
	}
	if attemptCount != 2 {
		t.Errorf("Expected 2 attempts, got %d", attemptCount)
	}
}

func TestOpenAIComplete_MaxRetriesExceeded(t *testing.T) {
	attemptCount := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attemptCount++
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("Persistent error"))
	}))
	defer server.Close()

	client := NewOpenAIClient("test-key", WithBaseURL(server.URL))

	_, _, err := client.Complete(context.Background(), "prompt")
	if err == nil {
		t.Fatal("Expected error after max retries, got nil")
	}
	if !strings.Contains(err.Error(), "failed after") {
		t.Errorf("Expected 'failed after' error, got: %v", err)
	}

	// Initial attempt plus three retries.
	if attemptCount != 4 {
		t.Errorf("Expected 4 attempts, got %d", attemptCount)
	}
}

func TestCompleteWithSchema_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(completionFixture(
			`{"themes": [{"theme": "battery storage", "orbiting_phrases": ["depth of discharge"]}]}`))
	}))
	defer server.Close()

	client := NewOpenAIClient("test-key", WithBaseURL(server.URL))

	type theme struct {
		Theme           string   `json:"theme"`
		OrbitingPhrases []string `json:"orbiting_phrases"`
	}
	var out struct {
		Themes []theme `json:"themes"`
	}
	if _, err := client.CompleteWithSchema(context.Background(), "prompt", &out); err != nil {
		t.Fatalf("CompleteWithSchema failed: %v", err)
	}

	if len(out.Themes) != 1 {
		t.Fatalf("Expected 1 theme, got %d", len(out.Themes))
	}
	if out.Themes[0].Theme != "battery storage" {
		t.Errorf("Theme mismatch: got %q", out.Themes[0].Theme)
	}
	if len(out.Themes[0].OrbitingPhrases) != 1 || out.Themes[0].OrbitingPhrases[0] != "depth of discharge" {
		t.Errorf("Orbiting phrases mismatch: %v", out.Themes[0].OrbitingPhrases)
	}
}

func TestCompleteWithSchema_InvalidJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(completionFixture("not valid json"))
	}))
	defer server.Close()

	client := NewOpenAIClient("test-key", WithBaseURL(server.URL))

	var out struct {
		Themes []string `json:"themes"`
	}
	_, err := client.CompleteWithSchema(context.Background(), "prompt", &out)
	if err == nil {
		t.Fatal("Expected error for invalid JSON, got nil")
	}
	if !strings.Contains(err.Error(), "unmarshal") {
		t.Errorf("Expected unmarshal error, got: %v", err)
	}
}

func TestCompleteWithSchema_StripsMarkdownFence(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(completionFixture(
			"```json\n{\"themes\": [{\"theme\": \"islanding\", \"orbiting_phrases\": []}]}\n```"))
	}))
	defer server.Close()

	client := NewOpenAIClient("test-key", WithBaseURL(server.URL))

	var out struct {
		Themes []struct {
			Theme           string   `json:"theme"`
			OrbitingPhrases []string `json:"orbiting_phrases"`
		} `json:"themes"`
	}
	if _, err := client.CompleteWithSchema(context.Background(), "prompt", &out); err != nil {
		t.Fatalf("CompleteWithSchema failed: %v", err)
	}
	if len(out.Themes) != 1 || out.Themes[0].Theme != "islanding" {
		t.Errorf("Themes mismatch: %+v", out.Themes)
	}
}

func TestStripMarkdownCodeFence(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "plain JSON",
			input:    `{"themes": []}`,
			expected: `{"themes": []}`,
		},
		{
			name:     "with json fence",
			input:    "```json\n{\"themes\": []}\n```",
			expected: `{"themes": []}`,
		},
		{
			name:     "with plain fence",
			input:    "```\n{\"themes\": []}\n```",
			expected: `{"themes": []}`,
		},
		{
			name:     "with surrounding whitespace",
			input:    "  ```json\n{\"themes\": []}\n```  ",
			expected: `{"themes": []}`,
		},
		{
			name:     "multiline JSON in fence",
			input:    "```json\n{\n  \"themes\": []\n}\n```",
			expected: "{\n  \"themes\": []\n}",
		},
		{
			name:     "no closing fence - return as is",
			input:    "```json\n{\"themes\": []}",
			expected: "```json\n{\"themes\": []}",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := StripMarkdownCodeFence(tt.input)
			if result != tt.expected {
				t.Errorf("StripMarkdownCodeFence(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}
