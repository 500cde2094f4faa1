// Package sync reconciles remote mailboxes with the local cache. A full
// sync pages through the newest messages; an incremental sync replays
// mailbox history from the last stored cursor.
package sync

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/evanrusso/gmailvault/internal/api"
	"github.com/evanrusso/gmailvault/internal/domain"
	"github.com/evanrusso/gmailvault/internal/store"
)

// DefaultInitialCount is how many messages a full sync retrieves.
const DefaultInitialCount = 500

const listPageSize = 100

// Mail is the slice of the Gmail client the engine needs.
type Mail interface {
	GetProfile(ctx context.Context) (*api.Profile, error)
	ListMessageIDs(ctx context.Context, pageToken string, max int64) ([]string, string, error)
	GetMessage(ctx context.Context, id string) (*domain.Message, error)
	ListHistory(ctx context.Context, startHistoryID uint64) ([]api.HistoryEvent, uint64, error)
	Watch(ctx context.Context, topic string, labelIDs []string) (*api.WatchInfo, error)
	StopWatch(ctx context.Context) error
}

// Cacher is the slice of the message cache the engine writes through.
type Cacher interface {
	Put(ctx context.Context, msg *domain.Message) error
	Delete(ctx context.Context, id string) error
	SetLabels(ctx context.Context, id string, labels []string) error
}

// Report summarizes one sync run.
type Report struct {
	AccountID   string
	Full        bool
	Processed   int
	Failed      int
	Errors      []error
	NewCursor   uint64
	StartedAt   time.Time
	CompletedAt time.Time
}

// Engine coordinates sync runs for any number of accounts. At most one
// run per account is active at a time; overlapping requests are dropped.
type Engine struct {
	store        store.Store
	cache        Cacher
	initialCount int

	mu     sync.Mutex
	active map[string]bool
}

func NewEngine(s store.Store, cache Cacher, initialCount int) *Engine {
	if initialCount <= 0 {
		initialCount = DefaultInitialCount
	}
	return &Engine{
		store:        s,
		cache:        cache,
		initialCount: initialCount,
		active:       map[string]bool{},
	}
}

// Sync runs an incremental sync when a history cursor is stored and a
// full sync otherwise. A nil report with nil error means a run for this
// account was already in progress and this request was dropped.
func (e *Engine) Sync(ctx context.Context, accountID string, mail Mail, force bool) (*Report, error) {
	if !e.tryAcquire(accountID) {
		log.Printf("[sync] account %s already syncing, skipping", accountID)
		return nil, nil
	}
	defer e.release(accountID)

	state, err := e.store.GetSyncState(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to load sync state: %w", err)
	}

	if force || state.HistoryID == 0 {
		return e.fullSync(ctx, accountID, mail)
	}

	report, err := e.incrementalSync(ctx, accountID, mail, state.HistoryID)
	if err != nil && api.IsHistoryExpired(err) {
		log.Printf("[sync] history cursor expired for account %s, falling back to full sync", accountID)
		return e.fullSync(ctx, accountID, mail)
	}
	return report, err
}

// HandleNotification responds to a mailbox change push. The notification
// payload's own history id is deliberately ignored; changes are replayed
// from the stored cursor so missed or reordered pushes cannot lose
// events. Duplicate notifications become no-ops.
func (e *Engine) HandleNotification(ctx context.Context, accountID string, mail Mail) (*Report, error) {
	return e.Sync(ctx, accountID, mail, false)
}

func (e *Engine) tryAcquire(accountID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active[accountID] {
		return false
	}
	e.active[accountID] = true
	return true
}

func (e *Engine) release(accountID string) {
	e.mu.Lock()
	delete(e.active, accountID)
	e.mu.Unlock()
}

// fullSync pages through the newest messages up to the configured
// initial count and stores each one, then records the mailbox's current
// history cursor.
func (e *Engine) fullSync(ctx context.Context, accountID string, mail Mail) (*Report, error) {
	report := &Report{AccountID: accountID, Full: true, StartedAt: time.Now()}

	profile, err := mail.GetProfile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch mailbox profile: %w", err)
	}

	var (
		pageToken string
		remaining = e.initialCount
	)
	for remaining > 0 {
		size := int64(listPageSize)
		if int64(remaining) < size {
			size = int64(remaining)
		}
		ids, next, err := mail.ListMessageIDs(ctx, pageToken, size)
		if err != nil {
			return nil, fmt.Errorf("failed to list messages: %w", err)
		}
		for _, id := range ids {
			if err := e.fetchAndStore(ctx, mail, id); err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				report.Failed++
				report.Errors = append(report.Errors, fmt.Errorf("message %s: %w", id, err))
				continue
			}
			report.Processed++
		}
		remaining -= len(ids)
		if next == "" {
			break
		}
		pageToken = next
	}

	report.NewCursor = profile.HistoryID
	if err := e.finishRun(ctx, accountID, report); err != nil {
		return nil, err
	}
	log.Printf("[sync] full sync for account %s: %d processed, %d failed", accountID, report.Processed, report.Failed)
	return report, nil
}

// incrementalSync replays history events since the stored cursor.
func (e *Engine) incrementalSync(ctx context.Context, accountID string, mail Mail, cursor uint64) (*Report, error) {
	report := &Report{AccountID: accountID, StartedAt: time.Now()}

	events, latest, err := mail.ListHistory(ctx, cursor)
	if err != nil {
		return nil, err
	}

	for _, ev := range events {
		if err := e.applyEvent(ctx, mail, ev); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			report.Failed++
			report.Errors = append(report.Errors, fmt.Errorf("message %s: %w", ev.MessageID, err))
			continue
		}
		report.Processed++
	}

	report.NewCursor = latest
	if err := e.finishRun(ctx, accountID, report); err != nil {
		return nil, err
	}
	if len(events) > 0 {
		log.Printf("[sync] incremental sync for account %s: %d events, %d failed", accountID, len(events), report.Failed)
	}
	return report, nil
}

func (e *Engine) applyEvent(ctx context.Context, mail Mail, ev api.HistoryEvent) error {
	switch ev.Type {
	case api.HistoryMessageAdded:
		return e.fetchAndStore(ctx, mail, ev.MessageID)
	case api.HistoryMessageDeleted:
		return e.cache.Delete(ctx, ev.MessageID)
	case api.HistoryLabelsChanged:
		return e.cache.SetLabels(ctx, ev.MessageID, ev.LabelIDs)
	default:
		return fmt.Errorf("unknown history event type %d", ev.Type)
	}
}

func (e *Engine) fetchAndStore(ctx context.Context, mail Mail, id string) error {
	msg, err := mail.GetMessage(ctx, id)
	if err != nil {
		return err
	}
	return e.cache.Put(ctx, msg)
}

// finishRun advances the history cursor and the account's last sync
// time. The cursor never moves backwards.
func (e *Engine) finishRun(ctx context.Context, accountID string, report *Report) error {
	report.CompletedAt = time.Now()
	if report.NewCursor > 0 {
		state, err := e.store.GetSyncState(ctx, accountID)
		if err != nil {
			return fmt.Errorf("failed to load sync state: %w", err)
		}
		state.HistoryID = report.NewCursor
		state.LastSync = report.CompletedAt
		if err := e.store.SetSyncState(ctx, state); err != nil {
			return fmt.Errorf("failed to advance sync cursor: %w", err)
		}
	}
	if err := e.store.TouchLastSync(ctx, accountID, report.CompletedAt); err != nil {
		return fmt.Errorf("failed to record sync time: %w", err)
	}
	return nil
}
