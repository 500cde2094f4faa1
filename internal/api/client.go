// Package api issues authenticated, rate-limited, retrying calls to the
// Gmail REST API. Every call first obtains a valid access token from the
// vault and a slot from the rate limiter.
package api

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"time"

	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/evanrusso/gmailvault/internal/domain"
	"github.com/evanrusso/gmailvault/internal/errs"
	"github.com/evanrusso/gmailvault/internal/rate"
)

const userID = "me"

// maxAttempts bounds retries per call; backoff doubles from retryBaseWait.
const (
	maxAttempts   = 4
	retryBaseWait = 500 * time.Millisecond
)

// Limiter gates outbound calls by endpoint class. Satisfied by
// rate.Limiter.
type Limiter interface {
	Acquire(ctx context.Context, class rate.Class) error
}

// Client is an authenticated Gmail API client for a single account.
type Client struct {
	accountID string
	svc       *gmailapi.Service
	limiter   Limiter
}

// New creates a Client whose requests draw tokens from the vault and slots
// from the limiter. Extra options are passed to the Gmail service,
// e.g. option.WithEndpoint for tests.
func New(ctx context.Context, accountID string, tokens TokenProvider, limiter Limiter, opts ...option.ClientOption) (*Client, error) {
	src := &vaultTokenSource{ctx: ctx, vault: tokens, accountID: accountID}
	all := append([]option.ClientOption{option.WithTokenSource(src)}, opts...)
	svc, err := gmailapi.NewService(ctx, all...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gmail service: %w", err)
	}
	return &Client{accountID: accountID, svc: svc, limiter: limiter}, nil
}

// AccountID returns the account this client serves.
func (c *Client) AccountID() string { return c.accountID }

// do runs one guarded call: limiter slot, the call itself, retry with
// exponential backoff on retryable failures. Token values never appear in
// logs; only the account id and attempt count do.
func (c *Client) do(ctx context.Context, class rate.Class, fn func() error) error {
	wait := retryBaseWait
	for attempt := 1; ; attempt++ {
		if err := c.limiter.Acquire(ctx, class); err != nil {
			return err
		}

		err := classify(fn())
		if err == nil {
			return nil
		}
		if !errs.Retryable(err) || attempt >= maxAttempts {
			return err
		}

		log.Printf("[api] retryable failure for account %s (attempt %d/%d): %v",
			c.accountID, attempt, maxAttempts, err)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		wait *= 2
	}
}

// Profile is the authenticated mailbox profile.
type Profile struct {
	Email     string
	HistoryID uint64
}

// GetProfile returns the mailbox address and its current history cursor.
func (c *Client) GetProfile(ctx context.Context) (*Profile, error) {
	var p *Profile
	err := c.do(ctx, rate.ClassRead, func() error {
		resp, err := c.svc.Users.GetProfile(userID).Context(ctx).Do()
		if err != nil {
			return err
		}
		p = &Profile{Email: resp.EmailAddress, HistoryID: resp.HistoryId}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get gmail profile: %w", err)
	}
	return p, nil
}

// ListMessageIDs returns one page of message identifiers.
func (c *Client) ListMessageIDs(ctx context.Context, pageToken string, max int64) (ids []string, next string, err error) {
	err = c.do(ctx, rate.ClassRead, func() error {
		call := c.svc.Users.Messages.List(userID)
		if max > 0 {
			call = call.MaxResults(max)
		}
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		resp, err := call.Context(ctx).Do()
		if err != nil {
			return err
		}
		ids = ids[:0]
		for _, m := range resp.Messages {
			ids = append(ids, m.Id)
		}
		next = resp.NextPageToken
		return nil
	})
	if err != nil {
		return nil, "", fmt.Errorf("failed to list gmail messages: %w", err)
	}
	return ids, next, nil
}

// GetMessage fetches one message with its full payload and maps it to the
// domain form.
func (c *Client) GetMessage(ctx context.Context, id string) (*domain.Message, error) {
	var msg *domain.Message
	err := c.do(ctx, rate.ClassRead, func() error {
		resp, err := c.svc.Users.Messages.Get(userID, id).Format("full").Context(ctx).Do()
		if err != nil {
			return err
		}
		msg = mapMessage(resp, c.accountID)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get gmail message %s: %w", id, err)
	}
	return msg, nil
}

// HistoryEventType enumerates mailbox change kinds.
type HistoryEventType int

const (
	HistoryMessageAdded HistoryEventType = iota
	HistoryMessageDeleted
	HistoryLabelsChanged
)

// HistoryEvent is one mailbox change since a history cursor.
type HistoryEvent struct {
	Type      HistoryEventType
	MessageID string
	LabelIDs  []string
}

// ListHistory returns all change events since startHistoryID together with
// the newest history cursor seen. An expired cursor surfaces as an
// APIError for which IsHistoryExpired reports true.
func (c *Client) ListHistory(ctx context.Context, startHistoryID uint64) ([]HistoryEvent, uint64, error) {
	var (
		events []HistoryEvent
		latest uint64
	)
	err := c.do(ctx, rate.ClassRead, func() error {
		events, latest = nil, 0
		call := c.svc.Users.History.List(userID).StartHistoryId(startHistoryID)
		return call.Pages(ctx, func(resp *gmailapi.ListHistoryResponse) error {
			latest = resp.HistoryId
			for _, h := range resp.History {
				for _, added := range h.MessagesAdded {
					events = append(events, HistoryEvent{
						Type:      HistoryMessageAdded,
						MessageID: added.Message.Id,
						LabelIDs:  added.Message.LabelIds,
					})
				}
				for _, deleted := range h.MessagesDeleted {
					events = append(events, HistoryEvent{
						Type:      HistoryMessageDeleted,
						MessageID: deleted.Message.Id,
					})
				}
				for _, la := range h.LabelsAdded {
					events = append(events, HistoryEvent{
						Type:      HistoryLabelsChanged,
						MessageID: la.Message.Id,
						LabelIDs:  la.Message.LabelIds,
					})
				}
				for _, lr := range h.LabelsRemoved {
					events = append(events, HistoryEvent{
						Type:      HistoryLabelsChanged,
						MessageID: lr.Message.Id,
						LabelIDs:  lr.Message.LabelIds,
					})
				}
			}
			return nil
		})
	})
	if err != nil {
		return nil, 0, err
	}
	return events, latest, nil
}

// SendMessage sends a raw RFC 2822 message and returns its assigned id.
func (c *Client) SendMessage(ctx context.Context, raw []byte) (string, error) {
	var id string
	err := c.do(ctx, rate.ClassWrite, func() error {
		msg := &gmailapi.Message{Raw: base64.URLEncoding.EncodeToString(raw)}
		resp, err := c.svc.Users.Messages.Send(userID, msg).Context(ctx).Do()
		if err != nil {
			return err
		}
		id = resp.Id
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to send gmail message: %w", err)
	}
	return id, nil
}

// GetAttachment fetches one attachment body by id.
func (c *Client) GetAttachment(ctx context.Context, messageID, attachmentID string) ([]byte, error) {
	var data []byte
	err := c.do(ctx, rate.ClassRead, func() error {
		resp, err := c.svc.Users.Messages.Attachments.Get(userID, messageID, attachmentID).Context(ctx).Do()
		if err != nil {
			return err
		}
		decoded, err := base64.URLEncoding.WithPadding(base64.NoPadding).DecodeString(resp.Data)
		if err != nil {
			return fmt.Errorf("failed to decode attachment data: %w", err)
		}
		data = decoded
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get attachment %s/%s: %w", messageID, attachmentID, err)
	}
	return data, nil
}

// Label is a mailbox label, system or user-defined.
type Label struct {
	ID   string
	Name string
	Type string
}

// ListLabels returns all labels on the mailbox.
func (c *Client) ListLabels(ctx context.Context) ([]Label, error) {
	var labels []Label
	err := c.do(ctx, rate.ClassRead, func() error {
		labels = nil
		resp, err := c.svc.Users.Labels.List(userID).Context(ctx).Do()
		if err != nil {
			return err
		}
		for _, l := range resp.Labels {
			labels = append(labels, Label{ID: l.Id, Name: l.Name, Type: l.Type})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list labels: %w", err)
	}
	return labels, nil
}

// WatchInfo describes an active push subscription.
type WatchInfo struct {
	HistoryID  uint64
	Expiration time.Time
}

// Watch registers the mailbox with a Pub/Sub topic for push notifications.
func (c *Client) Watch(ctx context.Context, topic string, labelIDs []string) (*WatchInfo, error) {
	var info *WatchInfo
	err := c.do(ctx, rate.ClassWrite, func() error {
		req := &gmailapi.WatchRequest{TopicName: topic, LabelIds: labelIDs}
		resp, err := c.svc.Users.Watch(userID, req).Context(ctx).Do()
		if err != nil {
			return err
		}
		info = &WatchInfo{
			HistoryID:  resp.HistoryId,
			Expiration: time.UnixMilli(resp.Expiration),
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start gmail watch: %w", err)
	}
	return info, nil
}

// StopWatch tears the push subscription down.
func (c *Client) StopWatch(ctx context.Context) error {
	err := c.do(ctx, rate.ClassWrite, func() error {
		return c.svc.Users.Stop(userID).Context(ctx).Do()
	})
	if err != nil {
		return fmt.Errorf("failed to stop gmail watch: %w", err)
	}
	return nil
}
