package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/evanrusso/gmailvault/internal/api"
	"github.com/evanrusso/gmailvault/internal/authflow"
	"github.com/evanrusso/gmailvault/internal/cache"
	"github.com/evanrusso/gmailvault/internal/config"
	"github.com/evanrusso/gmailvault/internal/rate"
	"github.com/evanrusso/gmailvault/internal/secrets"
	"github.com/evanrusso/gmailvault/internal/store/sqlite"
	mailsync "github.com/evanrusso/gmailvault/internal/sync"
	"github.com/evanrusso/gmailvault/internal/vault"
)

var (
	// version is set via ldflags at build time.
	version = "dev"
	cfgFile string

	// jsonFlag enables JSON output for all commands.
	jsonFlag bool
)

func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "gmailvault",
		Short:         "Gmail account vault and offline message cache",
		Long:          "Authorizes Gmail accounts, keeps their tokens encrypted at rest, and maintains a bounded local cache of messages via incremental sync.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.SetVersionTemplate(fmt.Sprintf("gmailvault %s\n", version))
	root.CompletionOptions.DisableDefaultCmd = true
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")
	root.PersistentFlags().BoolVar(&jsonFlag, "json", false, "output in JSON format")
	root.AddCommand(newAccountCmd())
	root.AddCommand(newSyncCmd())
	root.AddCommand(newMessagesCmd())
	root.AddCommand(newLabelsCmd())
	root.AddCommand(newSendCmd())
	root.AddCommand(newAttachmentCmd())
	root.AddCommand(newShowCmd())
	root.AddCommand(newWatchCmd())
	root.AddCommand(newServeCmd())
	return root
}

func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// openDB creates the data directory and opens the SQLite database.
func openDB() (*sqlite.DB, error) {
	dataDir := config.DataDir()
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "gmailvault.db")
	db, err := sqlite.New(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

// loadConfig loads the application configuration from the config file.
func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		path = filepath.Join(config.ConfigDir(), "config.toml")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// components bundles the wired subsystems most commands need.
type components struct {
	db      *sqlite.DB
	cfg     *config.Config
	vault   *vault.Vault
	limiter *rate.Limiter
	cache   *cache.Cache
	engine  *mailsync.Engine
	coord   *authflow.Coordinator
}

// buildComponents opens the database and wires the vault, limiter, cache
// and sync engine from config. The caller must Close the result.
func buildComponents() (*components, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if !cfg.HasCredentials() {
		return nil, fmt.Errorf("no Gmail OAuth credentials configured; set gmail.client_id and gmail.client_secret in %s or the GMAIL_CLIENT_ID / GMAIL_CLIENT_SECRET environment variables",
			filepath.Join(config.ConfigDir(), "config.toml"))
	}

	db, err := openDB()
	if err != nil {
		return nil, err
	}

	key, err := secrets.NewKeyringSource().Key()
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to load cipher key: %w", err)
	}
	cipher, err := secrets.NewCipher(key)
	if err != nil {
		db.Close()
		return nil, err
	}

	coord := authflow.NewCoordinator(authflow.Config{
		ClientID:     cfg.Gmail.ClientID,
		ClientSecret: cfg.Gmail.ClientSecret,
	})

	limits, err := limitsFromConfig(cfg)
	if err != nil {
		db.Close()
		return nil, err
	}

	c := cache.New(db,
		cache.WithMaxEntries(cfg.Cache.MaxEntries),
		cache.WithEvictBatch(cfg.Cache.EvictBatch),
	)

	return &components{
		db:      db,
		cfg:     cfg,
		vault:   vault.New(db, cipher, coord),
		limiter: rate.NewLimiter(limits),
		cache:   c,
		engine:  mailsync.NewEngine(db, c, cfg.Sync.InitialCount),
		coord:   coord,
	}, nil
}

func (c *components) Close() error {
	return c.db.Close()
}

// mailClient builds a rate-limited Gmail client drawing tokens from the
// vault for one account.
func (c *components) mailClient(ctx context.Context, accountID string) (*api.Client, error) {
	return api.New(ctx, accountID, c.vault, c.limiter)
}

func limitsFromConfig(cfg *config.Config) (rate.Limits, error) {
	limits := rate.DefaultLimits()
	if cfg.Rate.ReadPerMinute > 0 {
		limits.Read = cfg.Rate.ReadPerMinute
	}
	if cfg.Rate.WritePerMinute > 0 {
		limits.Write = cfg.Rate.WritePerMinute
	}
	if cfg.Rate.BatchPerMinute > 0 {
		limits.Batch = cfg.Rate.BatchPerMinute
	}
	if cfg.Rate.MaxWait != "" {
		d, err := time.ParseDuration(cfg.Rate.MaxWait)
		if err != nil {
			return limits, fmt.Errorf("invalid rate.max_wait: %w", err)
		}
		limits.MaxWait = d
	}
	return limits, nil
}

// resolveAccount maps an email address or account id to the stored
// account id. An empty selector picks the only account, if there is
// exactly one.
func (c *components) resolveAccount(ctx context.Context, selector string) (string, error) {
	accounts, err := c.db.ListAccounts(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to list accounts: %w", err)
	}
	if selector == "" {
		switch len(accounts) {
		case 0:
			return "", fmt.Errorf("no accounts configured; run 'gmailvault account add' first")
		case 1:
			return accounts[0].ID, nil
		default:
			return "", fmt.Errorf("multiple accounts configured; pass --account")
		}
	}
	for _, a := range accounts {
		if a.ID == selector || a.Email == selector {
			return a.ID, nil
		}
	}
	return "", fmt.Errorf("account not found: %s", selector)
}
