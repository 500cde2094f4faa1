package sync

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log"
	"net/http"

	"github.com/evanrusso/gmailvault/internal/store"
)

// MailDialer builds a mail client for an account on demand.
type MailDialer func(ctx context.Context, accountID string) (Mail, error)

// pushEnvelope is the Pub/Sub push delivery wrapper.
type pushEnvelope struct {
	Message struct {
		Data      string `json:"data"`
		MessageID string `json:"messageId"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

// pushPayload is the Gmail notification inside the envelope. The history
// id it carries is informational only; sync always resumes from the
// stored cursor.
type pushPayload struct {
	EmailAddress string `json:"emailAddress"`
	HistoryID    uint64 `json:"historyId"`
}

// PushHandler ingests Gmail change notifications delivered over Pub/Sub
// push and triggers incremental syncs.
type PushHandler struct {
	engine *Engine
	store  store.Store
	dial   MailDialer
}

func NewPushHandler(engine *Engine, s store.Store, dial MailDialer) *PushHandler {
	return &PushHandler{engine: engine, store: s, dial: dial}
}

// ServeHTTP acknowledges every well-formed delivery. Notifications for
// unknown accounts are acknowledged and dropped so Pub/Sub does not
// redeliver them forever.
func (h *PushHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var env pushEnvelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		http.Error(w, "malformed envelope", http.StatusBadRequest)
		return
	}
	raw, err := base64.StdEncoding.DecodeString(env.Message.Data)
	if err != nil {
		http.Error(w, "malformed payload", http.StatusBadRequest)
		return
	}
	var payload pushPayload
	if err := json.Unmarshal(raw, &payload); err != nil || payload.EmailAddress == "" {
		http.Error(w, "malformed payload", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	acct, err := h.store.GetAccountByEmail(ctx, payload.EmailAddress)
	if err != nil {
		http.Error(w, "lookup failed", http.StatusInternalServerError)
		return
	}
	if acct == nil {
		log.Printf("[sync] dropping notification for unknown account %s", payload.EmailAddress)
		w.WriteHeader(http.StatusNoContent)
		return
	}

	mail, err := h.dial(ctx, acct.Account.ID)
	if err != nil {
		log.Printf("[sync] failed to build client for account %s: %v", acct.Account.ID, err)
		http.Error(w, "client unavailable", http.StatusInternalServerError)
		return
	}

	if _, err := h.engine.HandleNotification(ctx, acct.Account.ID, mail); err != nil {
		log.Printf("[sync] notification sync failed for account %s: %v", acct.Account.ID, err)
		http.Error(w, "sync failed", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
