package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(url string) *OllamaClient {
	return NewOllamaClient(Options{
		Host:         url,
		PromptPrefix: "As a maternal health assistant named Janani, please answer: ",
		RetryMax:     2,
		RetryWait:    time.Millisecond,
	})
}

func TestAskSendsPrefixedPrompt(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "mistral", req.Model)
		assert.False(t, req.Stream)
		require.Len(t, req.Messages, 1)
		assert.Equal(t, "As a maternal health assistant named Janani, please answer: Is walking safe?", req.Messages[0].Content)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"message": map[string]string{"role": "assistant", "content": " Yes, gentle walking is safe. "},
			"done":    true,
		})
	}))
	defer server.Close()

	answer, err := newClient(server.URL).Ask(context.Background(), "Is walking safe?")
	require.NoError(t, err)
	assert.Equal(t, "Yes, gentle walking is safe.", answer)
}

func TestAskRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"message": map[string]string{"role": "assistant", "content": "Drink water."},
		})
	}))
	defer server.Close()

	answer, err := newClient(server.URL).Ask(context.Background(), "hydration?")
	require.NoError(t, err)
	assert.Equal(t, "Drink water.", answer)
	assert.Equal(t, int32(3), calls.Load())
}

func TestAskGivesUpAfterThreeAttempts(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := newClient(server.URL).Ask(context.Background(), "hello")
	require.Error(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestAskDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"error": "model 'mistral' not found"})
	}))
	defer server.Close()

	_, err := newClient(server.URL).Ask(context.Background(), "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
	assert.Equal(t, int32(1), calls.Load())
}

func TestAskValidation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"message": map[string]string{"content": "  "}})
	}))
	defer server.Close()

	client := newClient(server.URL)
	_, err := client.Ask(context.Background(), "   ")
	assert.True(t, errors.Is(err, ErrEmptyQuestion))

	_, err = client.Ask(context.Background(), "hello")
	assert.True(t, errors.Is(err, ErrEmptyResponse))
}
