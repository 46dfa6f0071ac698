package nero

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

type chatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func TestOpenAICompleterSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("wrong auth header: %s", r.Header.Get("Authorization"))
		}

		var req chatRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Model != "gpt-test" {
			t.Errorf("model = %s", req.Model)
		}
		if len(req.Messages) != 3 || req.Messages[0].Role != "system" || req.Messages[2].Role != "assistant" {
			t.Errorf("messages = %+v", req.Messages)
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1,
			"model": "gpt-test",
			"choices": [{"index": 0, "finish_reason": "stop",
				"message": {"role": "assistant", "content": "  Start with the first email.  "}}]
		}`))
	}))
	defer srv.Close()

	c := NewOpenAICompleter("test-key", WithCompleterBaseURL(srv.URL+"/"), WithCompleterModel("gpt-test"))
	got, err := c.Complete(context.Background(), CompletionRequest{
		SystemPrompt: "You are Nero.",
		Messages: []ChatMessage{
			{Role: ChatUser, Content: "what should I do"},
			{Role: ChatAssistant, Content: "What's on the list?"},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if got != "Start with the first email." {
		t.Errorf("reply = %q", got)
	}
}

func TestOpenAICompleterNoRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, `{"error":{"message":"overloaded"}}`, http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewOpenAICompleter("k", WithCompleterBaseURL(srv.URL+"/"))
	if _, err := c.Complete(context.Background(), CompletionRequest{SystemPrompt: "x"}); err == nil {
		t.Fatal("expected error")
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("server called %d times, want 1", n)
	}
}

func TestOpenAICompleterEmptyReply(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"x","object":"chat.completion","created":1,"model":"m","choices":[]}`))
	}))
	defer srv.Close()

	c := NewOpenAICompleter("k", WithCompleterBaseURL(srv.URL+"/"))
	if _, err := c.Complete(context.Background(), CompletionRequest{SystemPrompt: "x"}); err == nil {
		t.Error("expected error for no choices")
	}
}

func TestOpenAISpeaker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/speech" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Write([]byte("ID3fake"))
	}))
	defer srv.Close()

	var out bytes.Buffer
	s := NewOpenAISpeaker("k", &out, WithCompleterBaseURL(srv.URL+"/"))
	if err := s.Speak(context.Background(), "hello"); err != nil {
		t.Fatal(err)
	}
	if out.String() != "ID3fake" {
		t.Errorf("audio = %q", out.String())
	}

	mute := NewOpenAISpeaker("k", nil)
	if err := mute.Speak(context.Background(), "hello"); !errors.Is(err, ErrSpeechUnavailable) {
		t.Errorf("Speak without output = %v", err)
	}
}
