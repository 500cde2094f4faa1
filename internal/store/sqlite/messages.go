package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/evanrusso/gmailvault/internal/domain"
	"github.com/evanrusso/gmailvault/internal/store"
)

// UpsertMessage inserts or updates a cached message and its label
// associations. Cached-at and last-accessed are set to now on insert;
// last-accessed is preserved on update.
func (s *DB) UpsertMessage(ctx context.Context, msg *domain.Message) error {
	toJSON, err := json.Marshal(msg.To)
	if err != nil {
		return fmt.Errorf("failed to marshal To addresses: %w", err)
	}
	attJSON, err := json.Marshal(msg.Attachments)
	if err != nil {
		return fmt.Errorf("failed to marshal attachments: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := formatTime(time.Now())
	_, err = tx.ExecContext(ctx, `
		INSERT INTO cached_messages (id, account_id, thread_id, from_addr, from_name,
			to_addrs, subject, snippet, body_text, attachments_json, date,
			size_bytes, priority, cached_at, last_accessed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			account_id       = excluded.account_id,
			thread_id        = excluded.thread_id,
			from_addr        = excluded.from_addr,
			from_name        = excluded.from_name,
			to_addrs         = excluded.to_addrs,
			subject          = excluded.subject,
			snippet          = excluded.snippet,
			body_text        = excluded.body_text,
			attachments_json = excluded.attachments_json,
			date             = excluded.date,
			size_bytes       = excluded.size_bytes,
			priority         = excluded.priority,
			cached_at        = excluded.cached_at`,
		msg.ID, msg.AccountID, msg.ThreadID,
		msg.From.Email, msg.From.Name, string(toJSON),
		msg.Subject, msg.Snippet, msg.BodyText, string(attJSON),
		formatTime(msg.Date), msg.SizeBytes, msg.Priority, now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert message: %w", err)
	}

	// Delete existing labels, then reinsert.
	if _, err := tx.ExecContext(ctx, `DELETE FROM message_labels WHERE message_id = ?`, msg.ID); err != nil {
		return fmt.Errorf("failed to delete message labels: %w", err)
	}
	for _, labelID := range msg.Labels {
		if _, err := tx.ExecContext(ctx, `INSERT INTO message_labels (message_id, label_id) VALUES (?, ?)`,
			msg.ID, labelID); err != nil {
			return fmt.Errorf("failed to insert message label: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit message upsert: %w", err)
	}
	return nil
}

const messageColumns = `id, account_id, thread_id, from_addr, from_name, to_addrs,
	subject, snippet, body_text, attachments_json, date, size_bytes, priority`

// GetMessage retrieves a cached message by ID, including its labels.
// Returns (nil, nil) if no row exists.
func (s *DB) GetMessage(ctx context.Context, id string) (*domain.Message, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+messageColumns+` FROM cached_messages WHERE id = ?`, id)

	msg, err := scanMessage(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message %s: %w", id, err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT label_id FROM message_labels WHERE message_id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query message labels: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var label string
		if err := rows.Scan(&label); err != nil {
			return nil, fmt.Errorf("failed to scan message label: %w", err)
		}
		msg.Labels = append(msg.Labels, label)
	}
	return msg, rows.Err()
}

func scanMessage(scan func(...any) error) (*domain.Message, error) {
	var (
		m       domain.Message
		toJSON  string
		attJSON string
		dateStr string
	)
	err := scan(&m.ID, &m.AccountID, &m.ThreadID, &m.From.Email, &m.From.Name,
		&toJSON, &m.Subject, &m.Snippet, &m.BodyText, &attJSON, &dateStr,
		&m.SizeBytes, &m.Priority)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(toJSON), &m.To); err != nil {
		return nil, fmt.Errorf("failed to unmarshal To addresses: %w", err)
	}
	if err := json.Unmarshal([]byte(attJSON), &m.Attachments); err != nil {
		return nil, fmt.Errorf("failed to unmarshal attachments: %w", err)
	}
	if m.Date, err = parseTime(dateStr); err != nil {
		return nil, err
	}
	return &m, nil
}

// TouchMessage updates a cached message's last-accessed time.
func (s *DB) TouchMessage(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE cached_messages SET last_accessed = ? WHERE id = ?`,
		formatTime(at), id)
	if err != nil {
		return fmt.Errorf("failed to touch message %s: %w", id, err)
	}
	return nil
}

// DeleteMessage removes one cached message.
func (s *DB) DeleteMessage(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM cached_messages WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete message %s: %w", id, err)
	}
	return nil
}

// DeleteMessages removes a batch of cached messages in one statement.
func (s *DB) DeleteMessages(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM cached_messages WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return fmt.Errorf("failed to delete %d messages: %w", len(ids), err)
	}
	return nil
}

// CountMessages returns the number of cached messages across all accounts.
func (s *DB) CountMessages(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cached_messages`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return n, nil
}

// EvictionCandidates returns up to n message IDs ordered lowest priority
// first, then least recently accessed.
func (s *DB) EvictionCandidates(ctx context.Context, n int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM cached_messages
		ORDER BY priority ASC, last_accessed ASC
		LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query eviction candidates: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan eviction candidate: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// QueryMessages returns a page of cached messages matching the filter,
// newest first. It never loads the entire store; paging is pushed down to
// SQL. Labels are not populated on list results.
func (s *DB) QueryMessages(ctx context.Context, opts store.QueryOptions) ([]domain.Message, error) {
	var (
		where []string
		args  []any
	)
	if opts.AccountID != "" {
		where = append(where, "account_id = ?")
		args = append(args, opts.AccountID)
	}
	if opts.Label != "" {
		where = append(where, "id IN (SELECT message_id FROM message_labels WHERE label_id = ?)")
		args = append(args, opts.Label)
	}
	if !opts.Since.IsZero() {
		where = append(where, "date >= ?")
		args = append(args, formatTime(opts.Since))
	}
	if !opts.Until.IsZero() {
		where = append(where, "date < ?")
		args = append(args, formatTime(opts.Until))
	}

	query := `SELECT ` + messageColumns + ` FROM cached_messages`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY date DESC LIMIT ? OFFSET ?"

	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var msgs []domain.Message
	for rows.Next() {
		m, err := scanMessage(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msgs = append(msgs, *m)
	}
	return msgs, rows.Err()
}

// SetMessageLabels replaces the label set of a cached message and updates
// its retention priority to match.
func (s *DB) SetMessageLabels(ctx context.Context, messageID string, labels []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM message_labels WHERE message_id = ?`, messageID); err != nil {
		return fmt.Errorf("failed to delete message labels: %w", err)
	}
	for _, labelID := range labels {
		if _, err := tx.ExecContext(ctx, `INSERT INTO message_labels (message_id, label_id) VALUES (?, ?)`,
			messageID, labelID); err != nil {
			return fmt.Errorf("failed to insert message label: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx, `UPDATE cached_messages SET priority = ? WHERE id = ?`,
		domain.PriorityForLabels(labels), messageID); err != nil {
		return fmt.Errorf("failed to update message priority: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit label update: %w", err)
	}
	return nil
}

// Interface compliance check.
var _ store.Store = (*DB)(nil)
