package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/evanrusso/gmailvault/internal/domain"
	"github.com/evanrusso/gmailvault/internal/store"
	"github.com/evanrusso/gmailvault/internal/store/sqlite"
)

func newTestCache(t *testing.T, opts ...Option) (*Cache, store.Store) {
	t.Helper()
	db, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	acct := &domain.Account{ID: "acct1", Email: "user@example.com", IsActive: true}
	if err := db.UpsertAccount(context.Background(), &store.AccountRecord{Account: *acct}); err != nil {
		t.Fatalf("failed to seed account: %v", err)
	}
	return New(db, opts...), db
}

func testMessage(id string, priority int, date time.Time) *domain.Message {
	labels := []string{}
	switch priority {
	case domain.PriorityInbox:
		labels = []string{"INBOX"}
	case domain.PriorityStarred:
		labels = []string{"STARRED"}
	case domain.PriorityImportant:
		labels = []string{"IMPORTANT"}
	}
	return &domain.Message{
		ID:        id,
		ThreadID:  "t-" + id,
		AccountID: "acct1",
		Subject:   "subject " + id,
		Date:      date,
		Labels:    labels,
		Priority:  priority,
	}
}

func TestPutGetRoundTrip(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	msg := testMessage("m1", domain.PriorityNormal, time.Now())
	if err := c.Put(ctx, msg); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := c.Get(ctx, "m1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got == nil || got.Subject != "subject m1" {
		t.Errorf("got %+v", got)
	}
}

func TestGetMiss(t *testing.T) {
	c, _ := newTestCache(t)
	got, err := c.Get(context.Background(), "nope")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil on miss, got %+v", got)
	}
}

func TestCapacityNeverExceeded(t *testing.T) {
	c, _ := newTestCache(t, WithMaxEntries(10), WithEvictBatch(3))
	ctx := context.Background()

	for i := 0; i < 25; i++ {
		msg := testMessage(fmt.Sprintf("m%02d", i), domain.PriorityNormal, time.Now())
		if err := c.Put(ctx, msg); err != nil {
			t.Fatalf("Put %d: %v", i, err)
		}
		n, err := c.Len(ctx)
		if err != nil {
			t.Fatalf("Len: %v", err)
		}
		if n > 10 {
			t.Fatalf("cache holds %d entries after put %d, cap is 10", n, i)
		}
	}
}

func TestEvictionPrefersLowPriorityThenOldest(t *testing.T) {
	c, db := newTestCache(t, WithMaxEntries(3), WithEvictBatch(1))
	ctx := context.Background()

	// Fill to capacity: one starred, two normal.
	if err := c.Put(ctx, testMessage("starred", domain.PriorityStarred, time.Now())); err != nil {
		t.Fatal(err)
	}
	if err := c.Put(ctx, testMessage("old", domain.PriorityNormal, time.Now())); err != nil {
		t.Fatal(err)
	}
	if err := c.Put(ctx, testMessage("new", domain.PriorityNormal, time.Now())); err != nil {
		t.Fatal(err)
	}

	// Touch "new" so "old" is the least recently accessed normal entry.
	time.Sleep(10 * time.Millisecond)
	if _, err := c.Get(ctx, "new"); err != nil {
		t.Fatal(err)
	}

	// Going over capacity must evict "old", never "starred".
	if err := c.Put(ctx, testMessage("extra", domain.PriorityNormal, time.Now())); err != nil {
		t.Fatal(err)
	}

	if msg, _ := db.GetMessage(ctx, "old"); msg != nil {
		t.Error("oldest normal message survived eviction")
	}
	if msg, _ := db.GetMessage(ctx, "starred"); msg == nil {
		t.Error("starred message was evicted before normal ones")
	}
	if msg, _ := db.GetMessage(ctx, "new"); msg == nil {
		t.Error("recently accessed message was evicted")
	}
}

func TestGetRefreshesAccessTime(t *testing.T) {
	c, db := newTestCache(t)
	ctx := context.Background()

	if err := c.Put(ctx, testMessage("first", domain.PriorityNormal, time.Now())); err != nil {
		t.Fatal(err)
	}
	if err := c.Put(ctx, testMessage("second", domain.PriorityNormal, time.Now())); err != nil {
		t.Fatal(err)
	}

	// Reading "first" must make "second" the eviction candidate.
	time.Sleep(10 * time.Millisecond)
	if _, err := c.Get(ctx, "first"); err != nil {
		t.Fatal(err)
	}

	ids, err := db.EvictionCandidates(ctx, 1)
	if err != nil {
		t.Fatalf("EvictionCandidates: %v", err)
	}
	if len(ids) != 1 || ids[0] != "second" {
		t.Errorf("eviction candidates = %v, want [second]", ids)
	}
}

func TestQueryFiltersByLabel(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	if err := c.Put(ctx, testMessage("inbox", domain.PriorityInbox, time.Now())); err != nil {
		t.Fatal(err)
	}
	if err := c.Put(ctx, testMessage("starred", domain.PriorityStarred, time.Now())); err != nil {
		t.Fatal(err)
	}

	got, err := c.Query(ctx, store.QueryOptions{AccountID: "acct1", Label: "INBOX"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(got) != 1 || got[0].ID != "inbox" {
		t.Errorf("got %+v, want the INBOX message only", got)
	}
}

func TestSetLabelsUpdatesPriority(t *testing.T) {
	c, db := newTestCache(t)
	ctx := context.Background()

	if err := c.Put(ctx, testMessage("m1", domain.PriorityNormal, time.Now())); err != nil {
		t.Fatal(err)
	}
	if err := c.SetLabels(ctx, "m1", []string{"STARRED"}); err != nil {
		t.Fatalf("SetLabels: %v", err)
	}
	got, err := db.GetMessage(ctx, "m1")
	if err != nil || got == nil {
		t.Fatalf("GetMessage: %v, %v", got, err)
	}
	if got.Priority != domain.PriorityStarred {
		t.Errorf("Priority = %d, want %d", got.Priority, domain.PriorityStarred)
	}
}

func TestDeleteIdempotent(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	if err := c.Put(ctx, testMessage("m1", domain.PriorityNormal, time.Now())); err != nil {
		t.Fatal(err)
	}
	if err := c.Delete(ctx, "m1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := c.Delete(ctx, "m1"); err != nil {
		t.Fatalf("second Delete: %v", err)
	}
}
