package store

import (
	"context"
	"time"

	"github.com/evanrusso/gmailvault/internal/domain"
)

// Store defines the persistence interface for the Gmail subsystem.
// Account lookups return (nil, nil) when no row exists.
type Store interface {
	// Accounts
	UpsertAccount(ctx context.Context, rec *AccountRecord) error
	GetAccount(ctx context.Context, id string) (*AccountRecord, error)
	GetAccountByEmail(ctx context.Context, email string) (*AccountRecord, error)
	ListAccounts(ctx context.Context) ([]domain.Account, error)
	DeleteAccount(ctx context.Context, id string) error
	TouchLastSync(ctx context.Context, accountID string, at time.Time) error

	// Sync state
	GetSyncState(ctx context.Context, accountID string) (*SyncState, error)
	SetSyncState(ctx context.Context, state *SyncState) error

	// Cached messages
	UpsertMessage(ctx context.Context, msg *domain.Message) error
	GetMessage(ctx context.Context, id string) (*domain.Message, error)
	TouchMessage(ctx context.Context, id string, at time.Time) error
	DeleteMessage(ctx context.Context, id string) error
	DeleteMessages(ctx context.Context, ids []string) error
	CountMessages(ctx context.Context) (int, error)
	EvictionCandidates(ctx context.Context, n int) ([]string, error)
	QueryMessages(ctx context.Context, opts QueryOptions) ([]domain.Message, error)
	SetMessageLabels(ctx context.Context, messageID string, labels []string) error

	// Lifecycle
	Close() error
}

// AccountRecord is an account row together with its encrypted token
// columns. Token ciphertexts are opaque base64 blobs owned by the secrets
// package.
type AccountRecord struct {
	Account         domain.Account
	AccessTokenEnc  string
	RefreshTokenEnc string
	TokenExpiry     time.Time
	TokenType       string
}

// SyncState tracks the synchronization progress for an account.
type SyncState struct {
	AccountID          string
	HistoryID          uint64
	LastSync           time.Time
	PushSubscriptionID string
	PushExpiration     time.Time
}

// QueryOptions configures cached-message queries. Zero values mean
// "no filter"; Limit defaults to 50.
type QueryOptions struct {
	AccountID string
	Label     string
	Since     time.Time
	Until     time.Time
	Limit     int
	Offset    int
}
