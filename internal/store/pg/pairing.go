package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nextlevelbuilder/groupclaw/internal/store"
)

// PGPairingStore implements store.PairingStore backed by Postgres.
type PGPairingStore struct {
	db *sql.DB
}

func NewPGPairingStore(db *sql.DB) *PGPairingStore {
	return &PGPairingStore{db: db}
}

func (s *PGPairingStore) AddPending(ctx context.Context, p store.PendingUser) (bool, error) {
	if p.RequestedAt.IsZero() {
		p.RequestedAt = time.Now()
	}
	// Single statement: skip when already paired, no-op when already pending.
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO pairing_pending (user_id, channel, chat_id, requested_at, sample)
		 SELECT $1, $2, $3, $4, $5
		 WHERE NOT EXISTS (SELECT 1 FROM pairing_paired WHERE user_id = $1)
		 ON CONFLICT (user_id) DO NOTHING`,
		p.UserID, p.Channel, p.ChatID, p.RequestedAt, p.Sample)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (s *PGPairingStore) Approve(ctx context.Context, userID, approvedBy string, at time.Time) (*store.PendingUser, error) {
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
		`INSERT INTO pairing_paired (user_id, channel, approved_by, paired_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (user_id) DO UPDATE SET channel = EXCLUDED.channel, approved_by = EXCLUDED.approved_by, paired_at = EXCLUDED.paired_at`,
		p.UserID, p.Channel, approvedBy, at)
	if err != nil {
		return nil, fmt.Errorf("insert paired: %w", err)
	}
	return p, tx.Commit()
}

func (s *PGPairingStore) Deny(ctx context.Context, userID string) (*store.PendingUser, error) {
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

func takePending(ctx context.Context, tx *sql.Tx, userID string) (*store.PendingUser, error) {
	var p store.PendingUser
	err := tx.QueryRowContext(ctx,
		`DELETE FROM pairing_pending WHERE user_id = $1
		 RETURNING user_id, channel, chat_id, requested_at, sample`, userID,
	).Scan(&p.UserID, &p.Channel, &p.ChatID, &p.RequestedAt, &p.Sample)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	p.RequestedAt = p.RequestedAt.UTC()
	return &p, nil
}

func (s *PGPairingStore) ListPending(ctx context.Context) ([]store.PendingUser, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, channel, chat_id, requested_at, sample FROM pairing_pending ORDER BY requested_at, user_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.PendingUser
	for rows.Next() {
		var p store.PendingUser
		if err := rows.Scan(&p.UserID, &p.Channel, &p.ChatID, &p.RequestedAt, &p.Sample); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *PGPairingStore) ListPaired(ctx context.Context) ([]store.PairedUser, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, channel, approved_by, paired_at FROM pairing_paired ORDER BY paired_at, user_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.PairedUser
	for rows.Next() {
		var p store.PairedUser
		if err := rows.Scan(&p.UserID, &p.Channel, &p.ApprovedBy, &p.PairedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
