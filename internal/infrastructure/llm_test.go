package infrastructure

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestGroqClientComplete(t *testing.T) {
	var gotAuth string
	var gotBody map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s, want /chat/completions", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&gotBody)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"content":"extracted"},"finish_reason":"stop"}]}`))
	}))
	defer server.Close()

	client := NewGroqClient("test-key", server.URL, "test-model")
	result, err := client.Complete(context.Background(), "system here", "user here", 0.1)
	if err != nil {
		t.Fatalf("Complete returned error: %v", err)
	}
	if result != "extracted" {
		t.Errorf("result = %q, want extracted", result)
	}
	if gotAuth != "Bearer test-key" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotBody["model"] != "test-model" {
		t.Errorf("model = %v, want test-model", gotBody["model"])
	}
	if temp, ok := gotBody["temperature"].(float64); !ok || temp != 0.1 {
		t.Errorf("temperature = %v, want 0.1", gotBody["temperature"])
	}

	messages, _ := gotBody["messages"].([]any)
	if len(messages) != 2 {
		t.Fatalf("sent %d messages, want 2 (system + user)", len(messages))
	}
	first, _ := messages[0].(map[string]any)
	if first["role"] != "system" {
		t.Errorf("first message role = %v, want system", first["role"])
	}
}

func TestGroqClientOmitsEmptySystemPrompt(t *testing.T) {
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer server.Close()

	client := NewGroqClient("k", server.URL, "m")
	if _, err := client.Complete(context.Background(), "", "hi", 0.7); err != nil {
		t.Fatalf("Complete returned error: %v", err)
	}

	messages, _ := gotBody["messages"].([]any)
	if len(messages) != 1 {
		t.Errorf("sent %d messages, want 1 (user only)", len(messages))
	}
}

func TestGroqClientErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{"api error", http.StatusTooManyRequests, `{"error":"rate limited"}`, "status 429"},
		{"no choices", http.StatusOK, `{"choices":[]}`, "no choices"},
		{"bad json", http.StatusOK, `not json`, "parse response"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client := NewGroqClient("k", server.URL, "m")
			_, err := client.Complete(context.Background(), "s", "u", 0.1)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want substring %q", err.Error(), tt.wantErr)
			}
		})
	}
}
