package agent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(Options{BaseURL: server.URL, Timeout: 2 * time.Second})
}

func TestClientClassify(t *testing.T) {
	var got ClassifyRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/classify", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"category":"Support"}`))
	})

	resp, err := client.Classify(context.Background(), ClassifyRequest{
		Subject:    "Help",
		Body:       "my account is broken",
		Sender:     "customer@example.com",
		Categories: []string{"Support", "Marketing"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Support", resp.Category)
	assert.Equal(t, []string{"Support", "Marketing"}, got.Categories)
	assert.Equal(t, "customer@example.com", got.Sender)
}

func TestClientRespond(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/respond", r.URL.Path)
		var req RespondRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "user-1", req.UserID)
		_, _ = w.Write([]byte(`{"subject":"Re: Help","body":"On it.","confidence":9,"scale":10}`))
	})

	resp, err := client.Respond(context.Background(), RespondRequest{UserID: "user-1", Subject: "Help"})
	require.NoError(t, err)
	assert.Equal(t, "Re: Help", resp.Subject)
	assert.Equal(t, "On it.", resp.Body)
	assert.InDelta(t, 9.0, resp.Confidence, 1e-9)
	assert.InDelta(t, 10.0, resp.Scale, 1e-9)
}

func TestClientErrors(t *testing.T) {
	t.Run("non-2xx status", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "model overloaded", http.StatusServiceUnavailable)
		})

		_, err := client.Classify(context.Background(), ClassifyRequest{})
		var statusErr *StatusError
		require.ErrorAs(t, err, &statusErr)
		assert.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)
		assert.Equal(t, "classify", statusErr.Endpoint)
		assert.Equal(t, "model overloaded", statusErr.Body)
	})

	t.Run("malformed body", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`not json`))
		})

		_, err := client.Respond(context.Background(), RespondRequest{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to decode agent respond response")
	})

	t.Run("unreachable", func(t *testing.T) {
		client := NewClient(Options{BaseURL: "http://127.0.0.1:1", Timeout: time.Second})
		_, err := client.Classify(context.Background(), ClassifyRequest{})
		assert.Error(t, err)
	})
}

func TestClientCircuitBreaker(t *testing.T) {
	var classifyCalls, respondCalls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/classify" {
			classifyCalls.Add(1)
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		respondCalls.Add(1)
		_, _ = w.Write([]byte(`{"subject":"s","body":"b","confidence":0.9}`))
	})

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := client.Classify(ctx, ClassifyRequest{})
		var statusErr *StatusError
		require.ErrorAs(t, err, &statusErr)
	}

	_, err := client.Classify(ctx, ClassifyRequest{})
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, int32(5), classifyCalls.Load(), "open breaker must not reach the server")

	_, err = client.Respond(ctx, RespondRequest{})
	assert.NoError(t, err, "breakers are per endpoint")
	assert.Equal(t, int32(1), respondCalls.Load())
}

func TestCallStatus(t *testing.T) {
	assert.Equal(t, "ok", callStatus(nil))
	assert.Equal(t, "502", callStatus(&StatusError{StatusCode: 502}))
	assert.Equal(t, "error", callStatus(context.DeadlineExceeded))
}
