package record

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"otpguard/internal/otp/models"
	"otpguard/pkg/platform/sentinel"
)

// Schema is the DDL for the passcode record table, applied by migrations.
//
//	CREATE TABLE IF NOT EXISTS otp_records (
//	    identity       TEXT        NOT NULL,
//	    purpose        TEXT        NOT NULL,
//	    code_hash      TEXT        NOT NULL,
//	    otp_id         TEXT        NOT NULL,
//	    issued_at      TIMESTAMPTZ NOT NULL,
//	    expires_at     TIMESTAMPTZ NOT NULL,
//	    attempts_used  INT         NOT NULL DEFAULT 0,
//	    max_attempts   INT         NOT NULL,
//	    consumed       BOOLEAN     NOT NULL DEFAULT FALSE,
//	    requesting_ip  TEXT        NOT NULL DEFAULT '',
//	    PRIMARY KEY (identity, purpose)
//	);

// PostgresRecordStore persists passcode records in PostgreSQL. Single-row
// UPDATE ... RETURNING statements give the atomic increment and compare-and-set
// the contract requires; row-level locking orders concurrent racers.
type PostgresRecordStore struct {
	pool *pgxpool.Pool
}

// NewPostgres constructs a PostgreSQL-backed record store.
func NewPostgres(pool *pgxpool.Pool) *PostgresRecordStore {
	return &PostgresRecordStore{pool: pool}
}

// Put upserts the pair's record in one statement; ON CONFLICT makes the
// supersede atomic with respect to concurrent verification updates.
func (s *PostgresRecordStore) Put(ctx context.Context, record *models.Record) error {
	query := `
		INSERT INTO otp_records (identity, purpose, code_hash, otp_id, issued_at, expires_at, attempts_used, max_attempts, consumed, requesting_ip)
		VALUES ($1, $2, $3, $4, $5, $6, 0, $7, FALSE, $8)
		ON CONFLICT (identity, purpose) DO UPDATE SET
			code_hash = EXCLUDED.code_hash,
			otp_id = EXCLUDED.otp_id,
			issued_at = EXCLUDED.issued_at,
			expires_at = EXCLUDED.expires_at,
			attempts_used = 0,
			max_attempts = EXCLUDED.max_attempts,
			consumed = FALSE,
			requesting_ip = EXCLUDED.requesting_ip
	`
	_, err := s.pool.Exec(ctx, query,
		record.Identity, string(record.Purpose), record.CodeHash, record.OTPID,
		record.IssuedAt, record.ExpiresAt, record.MaxAttempts, record.RequestingIP)
	if err != nil {
		return fmt.Errorf("put otp record: %w: %w", sentinel.ErrUnavailable, err)
	}
	return nil
}

func (s *PostgresRecordStore) Get(ctx context.Context, identity string, purpose models.Purpose, now time.Time) (*models.Record, error) {
	query := `
		SELECT identity, purpose, code_hash, otp_id, issued_at, expires_at, attempts_used, max_attempts, consumed, requesting_ip
		FROM otp_records
		WHERE identity = $1 AND purpose = $2 AND expires_at > $3
	`
	record, err := scanRecord(s.pool.QueryRow(ctx, query, identity, string(purpose), now))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("otp record not found: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("get otp record: %w: %w", sentinel.ErrUnavailable, err)
	}
	return record, nil
}

func (s *PostgresRecordStore) IncrementAttempt(ctx context.Context, identity string, purpose models.Purpose) (int, error) {
	query := `
		UPDATE otp_records
		SET attempts_used = attempts_used + 1
		WHERE identity = $1 AND purpose = $2
		RETURNING attempts_used
	`
	var attempts int
	err := s.pool.QueryRow(ctx, query, identity, string(purpose)).Scan(&attempts)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("otp record not found: %w", sentinel.ErrNotFound)
		}
		return 0, fmt.Errorf("increment otp attempt: %w: %w", sentinel.ErrUnavailable, err)
	}
	return attempts, nil
}

// MarkConsumed flips the consumed flag for at most one caller: the WHERE
// clause filters already-consumed rows, so the row count decides the winner.
func (s *PostgresRecordStore) MarkConsumed(ctx context.Context, identity string, purpose models.Purpose) (bool, error) {
	query := `
		UPDATE otp_records
		SET consumed = TRUE
		WHERE identity = $1 AND purpose = $2 AND consumed = FALSE
	`
	tag, err := s.pool.Exec(ctx, query, identity, string(purpose))
	if err != nil {
		return false, fmt.Errorf("mark otp consumed: %w: %w", sentinel.ErrUnavailable, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresRecordStore) Delete(ctx context.Context, identity string, purpose models.Purpose) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM otp_records WHERE identity = $1 AND purpose = $2`, identity, string(purpose))
	if err != nil {
		return fmt.Errorf("delete otp record: %w: %w", sentinel.ErrUnavailable, err)
	}
	return nil
}

func (s *PostgresRecordStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM otp_records WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired otp records: %w: %w", sentinel.ErrUnavailable, err)
	}
	return int(tag.RowsAffected()), nil
}

func scanRecord(row pgx.Row) (*models.Record, error) {
	var record models.Record
	var purpose string
	err := row.Scan(
		&record.Identity, &purpose, &record.CodeHash, &record.OTPID,
		&record.IssuedAt, &record.ExpiresAt, &record.AttemptsUsed,
		&record.MaxAttempts, &record.Consumed, &record.RequestingIP,
	)
	if err != nil {
		return nil, err
	}
	record.Purpose = models.Purpose(purpose)
	return &record, nil
}
