package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// rateLimitsRepo is the shared counter store behind the distributed limiter.
//
// The increment is a single upsert so the check-then-increment sequence the
// limiter performs cannot race: two concurrent requests always observe
// distinct counts. A counter row's expires_at is fixed when the window row
// is first created (window start + TTL) and never extended afterwards.
// Enforcement reads key on the clock-derived window index, so housekeeping
// deletions of dead rows can never hand quota back early.
type rateLimitsRepo struct {
	db querier
}

func (r *rateLimitsRepo) Increment(ctx context.Context, policy, key string, window int64, ttl time.Duration) (int64, error) {
	expiresAt := time.UnixMilli((window + 1) * ttl.Milliseconds()).UTC()

	row := r.db.QueryRowContext(ctx, `
		INSERT INTO rate_limit_counters
			(policy, subject_key, window_index, count, created_at, expires_at)
		VALUES (?, ?, ?, 1, CURRENT_TIMESTAMP, ?)
		ON CONFLICT (policy, subject_key, window_index)
			DO UPDATE SET count = count + 1
		RETURNING count`,
		policy, key, window, expiresAt)

	var count int64
	if err := row.Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (r *rateLimitsRepo) Count(ctx context.Context, policy, key string, window int64) (int64, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT count FROM rate_limit_counters
		WHERE policy = ? AND subject_key = ? AND window_index = ?`,
		policy, key, window)

	var count int64
	if err := row.Scan(&count); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	return count, nil
}

func (r *rateLimitsRepo) SetBlock(ctx context.Context, policy, key string, until time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO rate_limit_blocks (policy, subject_key, expires_at, created_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (policy, subject_key)
			DO UPDATE SET expires_at = excluded.expires_at`,
		policy, key, until.UTC())
	return err
}

func (r *rateLimitsRepo) Block(ctx context.Context, policy, key string) (time.Time, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT expires_at FROM rate_limit_blocks
		WHERE policy = ? AND subject_key = ?`,
		policy, key)

	var until time.Time
	if err := row.Scan(&until); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, nil
		}
		return time.Time{}, err
	}
	return until, nil
}

func (r *rateLimitsRepo) DeleteExpiredCounters(ctx context.Context, now time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM rate_limit_counters WHERE expires_at <= ?`, now.UTC())
	return err
}

func (r *rateLimitsRepo) DeleteExpiredBlocks(ctx context.Context, now time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM rate_limit_blocks WHERE expires_at <= ?`, now.UTC())
	return err
}
