package remote

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sadmanHT/PoraKhela-sub000/internal/domain/learning"
	"github.com/sadmanHT/PoraKhela-sub000/internal/domain/shared"
)

func testItem() *learning.SyncQueueItem {
	return &learning.SyncQueueItem{
		ID:             "item1",
		Kind:           learning.QueueKindSubmission,
		RefID:          "sub1",
		UserID:         "user1",
		LessonID:       "lesson1",
		IdempotencyKey: "abc123",
		Payload:        []byte(`{"submission_id":"sub1"}`),
	}
}

func newTestClient(baseURL string) *Client {
	cfg := DefaultClientConfig(baseURL)
	cfg.APIKey = "secret"
	cfg.Timeout = 2 * time.Second
	return NewClient(cfg)
}

func TestSendEvent_Applied(t *testing.T) {
	var gotIdempotencyKey, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/progress/events", r.URL.Path)
		gotIdempotencyKey = r.Header.Get("Idempotency-Key")
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"status":"applied"}`))
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	outcome, err := client.SendEvent(context.Background(), testItem())

	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, outcome)
	assert.Equal(t, "abc123", gotIdempotencyKey)
	assert.Equal(t, "Bearer secret", gotAuth)
}

func TestSendEvent_DuplicateByBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"duplicate"}`))
	}))
	defer srv.Close()

	outcome, err := newTestClient(srv.URL).SendEvent(context.Background(), testItem())

	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, outcome)
}

func TestSendEvent_DuplicateByConflictStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))
	defer srv.Close()

	outcome, err := newTestClient(srv.URL).SendEvent(context.Background(), testItem())

	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, outcome)
}

func TestSendEvent_PermanentRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"status":"rejected","detail":"unknown lesson"}`))
	}))
	defer srv.Close()

	outcome, err := newTestClient(srv.URL).SendEvent(context.Background(), testItem())

	require.NoError(t, err)
	assert.Equal(t, OutcomeRejected, outcome)
}

func TestSendEvent_ServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).SendEvent(context.Background(), testItem())

	assert.ErrorIs(t, err, shared.ErrRemoteUnavailable)
}

func TestSendEvent_TooManyRequestsIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).SendEvent(context.Background(), testItem())

	assert.ErrorIs(t, err, shared.ErrRemoteUnavailable)
}

func TestSendEvent_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // nothing listening anymore

	_, err := newTestClient(srv.URL).SendEvent(context.Background(), testItem())

	assert.ErrorIs(t, err, shared.ErrRemoteUnavailable)
}

func TestSendEvent_SameKeyEverySend(t *testing.T) {
	var keys []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		keys = append(keys, r.Header.Get("Idempotency-Key"))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"applied"}`))
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	item := testItem()

	_, err := client.SendEvent(context.Background(), item)
	require.NoError(t, err)
	_, err = client.SendEvent(context.Background(), item)
	require.NoError(t, err)

	// Redelivery carries the identical key so the remote can dedupe.
	require.Len(t, keys, 2)
	assert.Equal(t, keys[0], keys[1])
}

func TestHealthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/health", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	assert.True(t, client.Healthy(context.Background()))

	srv.Close()
	assert.False(t, client.Healthy(context.Background()))
}
