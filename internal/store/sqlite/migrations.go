package sqlite

const schema = `
CREATE TABLE IF NOT EXISTS accounts (
    id                TEXT PRIMARY KEY,
    email             TEXT NOT NULL,
    user_id           TEXT NOT NULL DEFAULT '',
    display_name      TEXT NOT NULL DEFAULT '',
    picture_url       TEXT NOT NULL DEFAULT '',
    access_token_enc  TEXT NOT NULL DEFAULT '',
    refresh_token_enc TEXT NOT NULL DEFAULT '',
    token_expires_at  TEXT NOT NULL DEFAULT '',
    token_type        TEXT NOT NULL DEFAULT '',
    scopes_json       TEXT NOT NULL DEFAULT '[]',
    is_active         BOOLEAN NOT NULL DEFAULT TRUE,
    last_sync_at      TEXT NOT NULL DEFAULT '',
    created_at        DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at        DATETIME DEFAULT CURRENT_TIMESTAMP,
    UNIQUE (email, user_id)
);

CREATE TABLE IF NOT EXISTS sync_state (
    account_id           TEXT PRIMARY KEY REFERENCES accounts(id) ON DELETE CASCADE,
    history_id           INTEGER NOT NULL DEFAULT 0,
    last_sync            TEXT NOT NULL DEFAULT '',
    push_subscription_id TEXT NOT NULL DEFAULT '',
    push_expiration      TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS cached_messages (
    id               TEXT PRIMARY KEY,
    account_id       TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
    thread_id        TEXT NOT NULL DEFAULT '',
    from_addr        TEXT NOT NULL DEFAULT '',
    from_name        TEXT NOT NULL DEFAULT '',
    to_addrs         TEXT NOT NULL DEFAULT '[]',
    subject          TEXT NOT NULL DEFAULT '',
    snippet          TEXT NOT NULL DEFAULT '',
    body_text        TEXT NOT NULL DEFAULT '',
    attachments_json TEXT NOT NULL DEFAULT '[]',
    date             TEXT NOT NULL DEFAULT '',
    size_bytes       INTEGER NOT NULL DEFAULT 0,
    priority         INTEGER NOT NULL DEFAULT 0,
    cached_at        TEXT NOT NULL,
    last_accessed    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS message_labels (
    message_id TEXT NOT NULL REFERENCES cached_messages(id) ON DELETE CASCADE,
    label_id   TEXT NOT NULL,
    PRIMARY KEY (message_id, label_id)
);

CREATE INDEX IF NOT EXISTS idx_cached_account  ON cached_messages(account_id);
CREATE INDEX IF NOT EXISTS idx_cached_date     ON cached_messages(date DESC);
CREATE INDEX IF NOT EXISTS idx_cached_eviction ON cached_messages(priority ASC, last_accessed ASC);
CREATE INDEX IF NOT EXISTS idx_message_labels  ON message_labels(label_id);
`
