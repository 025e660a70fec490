package webhook

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testEvent() EventPayload {
	return EventPayload{
		ID:        uuid.New(),
		Type:      EventSessionCompleted,
		SessionID: uuid.New(),
		Data: SessionSummary{
			Success:       true,
			Status:        "completed",
			Steps:         []string{"look_left", "smile"},
			StepsPassed:   2,
			HasFinalPhoto: true,
			FinishedAt:    time.Now(),
		},
		Timestamp: time.Now(),
	}
}

func TestService_Send_Delivers(t *testing.T) {
	var received EventPayload
	var signatureOK atomic.Bool

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		ts, _ := strconv.ParseInt(r.Header.Get("X-Rekko-Timestamp"), 10, 64)
		signatureOK.Store(Verify("secret", ts, body, r.Header.Get("X-Rekko-Signature"), time.Minute))
		_ = json.Unmarshal(body, &received)
		assert.Equal(t, EventSessionCompleted, r.Header.Get("X-Rekko-Event"))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	svc := NewService(mock, Config{URL: server.URL, Secret: "secret"}, discardLogger())
	event := testEvent()

	require.NoError(t, svc.Send(context.Background(), event))

	assert.True(t, signatureOK.Load())
	assert.Equal(t, event.SessionID, received.SessionID)
	assert.Equal(t, []string{"look_left", "smile"}, received.Data.Steps)
	assert.NoError(t, mock.ExpectationsWereMet(), "nothing should be enqueued")
}

func TestService_Send_EnqueuesOnFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	event := testEvent()
	mock.ExpectExec(`INSERT INTO webhook_queue`).
		WithArgs(event.SessionID, EventSessionCompleted, pgxmock.AnyArg(), 5, "HTTP 503").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	svc := NewService(mock, Config{URL: server.URL, Secret: "secret"}, discardLogger())

	require.NoError(t, svc.Send(context.Background(), event))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestService_Send_Disabled(t *testing.T) {
	svc := NewService(nil, Config{}, discardLogger())

	assert.False(t, svc.Enabled())
	assert.NoError(t, svc.Send(context.Background(), testEvent()))
}

func TestWorker_ProcessQueue(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	delivered := uuid.New()
	retried := uuid.New()
	exhausted := uuid.New()
	sessionID := uuid.New()

	mock.ExpectQuery(`UPDATE webhook_queue SET next_retry_at`).
		WithArgs(claimLease.Seconds(), batchSize).
		WillReturnRows(pgxmock.NewRows([]string{"id", "session_id", "event_type", "payload", "attempts", "max_attempts"}).
			AddRow(delivered, sessionID, EventSessionCompleted, []byte(`{}`), 0, 5).
			AddRow(retried, sessionID, EventSessionCompleted, []byte(`{}`), 1, 5).
			AddRow(exhausted, sessionID, EventSessionExpired, []byte(`{}`), 4, 5))
	mock.ExpectExec(`SET status = 'delivered'`).
		WithArgs(delivered).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`SET attempts = attempts \+ 1, next_retry_at = \$1`).
		WithArgs(pgxmock.AnyArg(), "HTTP 502", retried).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`SET status = 'failed'`).
		WithArgs("HTTP 502", exhausted).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	svc := NewService(mock, Config{URL: server.URL, Secret: "secret"}, discardLogger())
	worker := NewWorker(mock, svc, discardLogger())

	require.NoError(t, worker.processQueue(context.Background()))
	assert.Equal(t, int32(3), calls.Load())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWorker_StopsOnContext(t *testing.T) {
	worker := NewWorker(nil, NewService(nil, Config{}, discardLogger()), discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		worker.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}
