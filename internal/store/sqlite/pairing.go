package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nextlevelbuilder/groupclaw/internal/store"
)

// PairingStore implements store.PairingStore on SQLite.
type PairingStore struct {
	db *sql.DB
}

func NewPairingStore(db *sql.DB) *PairingStore {
	return &PairingStore{db: db}
}

func (s *PairingStore) AddPending(ctx context.Context, p store.PendingUser) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM pairing_paired WHERE user_id = ?`, p.UserID).Scan(&exists)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return false, err
	}

	if p.RequestedAt.IsZero() {
		p.RequestedAt = time.Now()
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO pairing_pending (user_id, channel, chat_id, requested_at, sample)
		 VALUES (?, ?, ?, ?, ?) ON CONFLICT(user_id) DO NOTHING`,
		p.UserID, p.Channel, p.ChatID, toMillis(p.RequestedAt), p.Sample)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, tx.Commit()
}

func (s *PairingStore) Approve(ctx context.Context, userID, approvedBy string, at time.Time) (*store.PendingUser, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	p, err := takePending(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO pairing_paired (user_id, channel, approved_by, paired_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET channel = excluded.channel, approved_by = excluded.approved_by, paired_at = excluded.paired_at`,
		p.UserID, p.Channel, approvedBy, toMillis(at))
	if err != nil {
		return nil, fmt.Errorf("insert paired: %w", err)
	}
	return p, tx.Commit()
}

func (s *PairingStore) Deny(ctx context.Context, userID string) (*store.PendingUser, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	p, err := takePending(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	return p, tx.Commit()
}

// takePending reads and deletes one pending row inside tx.
func takePending(ctx context.Context, tx *sql.Tx, userID string) (*store.PendingUser, error) {
	var (
		p   store.PendingUser
		req int64
	)
	err := tx.QueryRowContext(ctx,
		`SELECT user_id, channel, chat_id, requested_at, sample FROM pairing_pending WHERE user_id = ?`, userID,
	).Scan(&p.UserID, &p.Channel, &p.ChatID, &req, &p.Sample)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	p.RequestedAt = fromMillis(req)
	if _, err := tx.ExecContext(ctx, `DELETE FROM pairing_pending WHERE user_id = ?`, userID); err != nil {
		return nil, fmt.Errorf("delete pending: %w", err)
	}
	return &p, nil
}

func (s *PairingStore) ListPending(ctx context.Context) ([]store.PendingUser, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, channel, chat_id, requested_at, sample FROM pairing_pending ORDER BY requested_at, user_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.PendingUser
	for rows.Next() {
		var (
			p   store.PendingUser
			req int64
		)
		if err := rows.Scan(&p.UserID, &p.Channel, &p.ChatID, &req, &p.Sample); err != nil {
			return nil, err
		}
		p.RequestedAt = fromMillis(req)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *PairingStore) ListPaired(ctx context.Context) ([]store.PairedUser, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, channel, approved_by, paired_at FROM pairing_paired ORDER BY paired_at, user_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.PairedUser
	for rows.Next() {
		var (
			p  store.PairedUser
			at int64
		)
		if err := rows.Scan(&p.UserID, &p.Channel, &p.ApprovedBy, &at); err != nil {
			return nil, err
		}
		p.PairedAt = fromMillis(at)
		out = append(out, p)
	}
	return out, rows.Err()
}
