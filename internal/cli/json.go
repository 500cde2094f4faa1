package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/evanrusso/gmailvault/internal/domain"
	mailsync "github.com/evanrusso/gmailvault/internal/sync"
)

// printJSON writes v as indented JSON to stdout, for --json mode.
func printJSON(v any) error {
	return fprintJSON(os.Stdout, v)
}

func fprintJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}

type jsonAction struct {
	OK     bool   `json:"ok"`
	Action string `json:"action"`
	Email  string `json:"email,omitempty"`
}

type jsonAccount struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Active   bool   `json:"active"`
	LastSync string `json:"last_sync,omitempty"`
}

func toJSONAccounts(accounts []domain.Account) []jsonAccount {
	out := make([]jsonAccount, 0, len(accounts))
	for _, a := range accounts {
		ja := jsonAccount{ID: a.ID, Email: a.Email, Active: a.IsActive}
		if !a.LastSyncAt.IsZero() {
			ja.LastSync = a.LastSyncAt.Format(time.RFC3339)
		}
		out = append(out, ja)
	}
	return out
}

type jsonAddress struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email"`
}

type jsonAttachment struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	MIMEType string `json:"mime_type"`
	Size     int64  `json:"size"`
}

type jsonMessage struct {
	ID          string           `json:"id"`
	ThreadID    string           `json:"thread_id"`
	From        jsonAddress      `json:"from"`
	To          []jsonAddress    `json:"to,omitempty"`
	Subject     string           `json:"subject"`
	Snippet     string           `json:"snippet,omitempty"`
	Body        string           `json:"body,omitempty"`
	Date        string           `json:"date"`
	Labels      []string         `json:"labels,omitempty"`
	Attachments []jsonAttachment `json:"attachments,omitempty"`
}

func toJSONMessage(m *domain.Message) jsonMessage {
	jm := jsonMessage{
		ID:       m.ID,
		ThreadID: m.ThreadID,
		From:     jsonAddress{Name: m.From.Name, Email: m.From.Email},
		Subject:  m.Subject,
		Snippet:  m.Snippet,
		Body:     m.BodyText,
		Date:     m.Date.Format(time.RFC3339),
		Labels:   m.Labels,
	}
	for _, to := range m.To {
		jm.To = append(jm.To, jsonAddress{Name: to.Name, Email: to.Email})
	}
	for _, a := range m.Attachments {
		jm.Attachments = append(jm.Attachments, jsonAttachment{
			ID: a.ID, Filename: a.Filename, MIMEType: a.MIMEType, Size: a.Size,
		})
	}
	return jm
}

func toJSONMessages(messages []domain.Message) []jsonMessage {
	out := make([]jsonMessage, 0, len(messages))
	for i := range messages {
		jm := toJSONMessage(&messages[i])
		jm.Body = "" // listing omits bodies
		out = append(out, jm)
	}
	return out
}

type jsonReport struct {
	AccountID string   `json:"account_id"`
	Full      bool     `json:"full"`
	Processed int      `json:"processed"`
	Failed    int      `json:"failed"`
	Errors    []string `json:"errors,omitempty"`
}

func toJSONReport(r *mailsync.Report) jsonReport {
	jr := jsonReport{
		AccountID: r.AccountID,
		Full:      r.Full,
		Processed: r.Processed,
		Failed:    r.Failed,
	}
	for _, e := range r.Errors {
		jr.Errors = append(jr.Errors, e.Error())
	}
	return jr
}
