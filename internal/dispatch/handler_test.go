package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-dispatch-secret"

func newTestServer(t *testing.T) (*httptest.Server, *fakeRepo, *fakeSender) {
	t.Helper()

	registry, err := NewRegistry()
	require.NoError(t, err)

	repo := newFakeRepo()
	sender := newFakeSender()
	processor := NewProcessor(DefaultProcessorConfig(), repo, registry, sender)
	queue := NewQueue(repo, registry)
	resolver := &fakeResolver{users: map[string][2]string{
		"a81bc81b-dead-4e5d-abff-90865d1e13b1": {"ayse@example.com", "Ayşe"},
	}}
	hooks := NewHooks(queue, resolver, "https://spotfound.example", "ops@spotfound.example")

	handler := NewHandler(processor, queue, hooks, testSecret, 50)

	r := chi.NewRouter()
	handler.RegisterRoutes(r)

	server := httptest.NewServer(r)
	t.Cleanup(server.Close)

	return server, repo, sender
}

func doRequest(t *testing.T, method, url, secret string, body any) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	if secret != "" {
		req.Header.Set(SecretHeader, secret)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestHandler_RequiresSecret(t *testing.T) {
	server, _, _ := newTestServer(t)

	tests := []struct {
		name   string
		secret string
	}{
		{"missing secret", ""},
		{"wrong secret", "not-the-secret"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := doRequest(t, http.MethodPost, server.URL+"/internal/dispatch/process", tt.secret, nil)
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		})
	}
}

func TestHandler_ProcessEmptyQueue(t *testing.T) {
	server, _, _ := newTestServer(t)

	resp := doRequest(t, http.MethodPost, server.URL+"/internal/dispatch/process", testSecret, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var summary Summary
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&summary))
	assert.Equal(t, Summary{}, summary)
}

func TestHandler_ProcessDrainsQueue(t *testing.T) {
	server, repo, sender := newTestServer(t)

	repo.stage(QueueItem{
		Kind:      KindWelcome,
		Recipient: "ayse@example.com",
		Payload:   []byte(`{"name":"Ayşe"}`),
	})

	resp := doRequest(t, http.MethodPost, server.URL+"/internal/dispatch/process", testSecret, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var summary Summary
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&summary))
	assert.Equal(t, Summary{Processed: 1, Succeeded: 1}, summary)
	assert.Equal(t, 1, sender.sentCount())
}

func TestHandler_ProcessRejectsBadLimit(t *testing.T) {
	server, _, _ := newTestServer(t)

	resp := doRequest(t, http.MethodPost, server.URL+"/internal/dispatch/process", testSecret,
		map[string]int{"limit": 100000})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandler_Stats(t *testing.T) {
	server, repo, _ := newTestServer(t)

	repo.stage(QueueItem{Kind: KindWelcome, Recipient: "a@example.com", Payload: []byte(`{}`)})

	resp := doRequest(t, http.MethodGet, server.URL+"/internal/dispatch/stats", testSecret, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Data QueueStats `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, 1, body.Data.Pending)
}

func TestHandler_EventUserRegistered(t *testing.T) {
	server, repo, _ := newTestServer(t)

	resp := doRequest(t, http.MethodPost, server.URL+"/internal/dispatch/events/user-registered", testSecret,
		map[string]string{"user_id": "a81bc81b-dead-4e5d-abff-90865d1e13b1"})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	stats, err := repo.QueueStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Pending)
}

func TestHandler_EventUnknownUserStillAccepted(t *testing.T) {
	server, repo, _ := newTestServer(t)

	resp := doRequest(t, http.MethodPost, server.URL+"/internal/dispatch/events/user-registered", testSecret,
		map[string]string{"user_id": "00000000-0000-4000-8000-000000000000"})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	stats, err := repo.QueueStats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.Pending)
}

func TestHandler_EventValidation(t *testing.T) {
	server, _, _ := newTestServer(t)

	resp := doRequest(t, http.MethodPost, server.URL+"/internal/dispatch/events/user-registered", testSecret,
		map[string]string{"user_id": "not-a-uuid"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandler_EventPasswordReset(t *testing.T) {
	server, repo, _ := newTestServer(t)

	resp := doRequest(t, http.MethodPost, server.URL+"/internal/dispatch/events/password-reset", testSecret,
		map[string]string{
			"user_id":   "a81bc81b-dead-4e5d-abff-90865d1e13b1",
			"reset_url": "https://spotfound.example/reset?token=abc",
			"ttl":       "1 hour",
		})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	item := repo.get("item-1")
	assert.Equal(t, KindPasswordReset, item.Kind)
}
