package sync

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/evanrusso/gmailvault/internal/api"
	"github.com/evanrusso/gmailvault/internal/domain"
	"github.com/evanrusso/gmailvault/internal/store"
)

func pushBody(t *testing.T, email string, historyID uint64) *bytes.Buffer {
	t.Helper()
	payload, err := json.Marshal(pushPayload{EmailAddress: email, HistoryID: historyID})
	if err != nil {
		t.Fatal(err)
	}
	var env pushEnvelope
	env.Message.Data = base64.StdEncoding.EncodeToString(payload)
	env.Message.MessageID = "pubsub-1"
	env.Subscription = "projects/p/subscriptions/s"
	body, err := json.Marshal(env)
	if err != nil {
		t.Fatal(err)
	}
	return bytes.NewBuffer(body)
}

func TestPushHandlerTriggersIncrementalSync(t *testing.T) {
	e, db, c := newTestEngine(t)
	ctx := context.Background()

	if err := db.SetSyncState(ctx, &store.SyncState{AccountID: "acct1", HistoryID: 5}); err != nil {
		t.Fatal(err)
	}
	mail := &fakeMail{
		messages: map[string]*domain.Message{"fresh": remoteMessage("fresh")},
		events:   []api.HistoryEvent{{Type: api.HistoryMessageAdded, MessageID: "fresh"}},
		latest:   8,
	}
	h := NewPushHandler(e, db, func(ctx context.Context, accountID string) (Mail, error) {
		if accountID != "acct1" {
			return nil, fmt.Errorf("unexpected account %s", accountID)
		}
		return mail, nil
	})

	req := httptest.NewRequest(http.MethodPost, "/notifications", pushBody(t, "user@example.com", 8))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if msg, _ := c.Get(ctx, "fresh"); msg == nil {
		t.Error("notification did not sync the new message")
	}
	state, _ := db.GetSyncState(ctx, "acct1")
	if state.HistoryID != 8 {
		t.Errorf("HistoryID = %d, want 8", state.HistoryID)
	}
}

func TestPushHandlerAcksUnknownAccount(t *testing.T) {
	e, db, _ := newTestEngine(t)
	h := NewPushHandler(e, db, func(ctx context.Context, accountID string) (Mail, error) {
		t.Fatal("dialer should not be called for unknown accounts")
		return nil, nil
	})

	req := httptest.NewRequest(http.MethodPost, "/notifications", pushBody(t, "stranger@example.com", 8))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", rec.Code)
	}
}

func TestPushHandlerRejectsBadRequests(t *testing.T) {
	e, db, _ := newTestEngine(t)
	h := NewPushHandler(e, db, func(ctx context.Context, accountID string) (Mail, error) {
		return &fakeMail{}, nil
	})

	tests := []struct {
		name   string
		method string
		body   string
		want   int
	}{
		{"wrong method", http.MethodGet, "", http.StatusMethodNotAllowed},
		{"invalid json", http.MethodPost, "{not json", http.StatusBadRequest},
		{"bad base64", http.MethodPost, `{"message":{"data":"!!!"}}`, http.StatusBadRequest},
		{"empty email", http.MethodPost, `{"message":{"data":"` +
			base64.StdEncoding.EncodeToString([]byte(`{"historyId":3}`)) + `"}}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/notifications", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}
