package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"telegram-crypto-subscription/internal/domain"
	"telegram-crypto-subscription/internal/domain/model"
	"telegram-crypto-subscription/internal/domain/ports/repository"
	"telegram-crypto-subscription/internal/infra/metrics"
)

var _ repository.SubscriptionRepository = (*subscriptionRepo)(nil)

const subscriptionColumns = `id, user_id, plan, started_at, expires_at`

type subscriptionRepo struct{ pool *pgxpool.Pool }

func NewSubscriptionRepo(pool *pgxpool.Pool) *subscriptionRepo {
	return &subscriptionRepo{pool: pool}
}

// Append inserts a row. Rows are never updated or deleted, so the history of
// every extension stays queryable.
func (r *subscriptionRepo) Append(ctx context.Context, tx repository.Tx, s *model.Subscription) error {
	const q = `
INSERT INTO subscriptions (id, user_id, plan, started_at, expires_at)
VALUES ($1,$2,$3,$4,$5);`

	_, err := execSQL(ctx, r.pool, tx, q, s.ID, s.UserID, string(s.Plan), s.StartedAt, s.ExpiresAt)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidArgument) || errors.Is(err, domain.ErrInvalidExecContext) {
			return err
		}
		return domain.ErrOperationFailed
	}
	metrics.IncSubscriptionExtension(string(s.Plan))
	return nil
}

func (r *subscriptionRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string) ([]*model.Subscription, error) {
	q := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE user_id=$1 ORDER BY started_at ASC;`
	rows, err := queryRows(ctx, r.pool, tx, q, userID)
	if err != nil {
		return nil, mapQueryErr(err)
	}
	defer rows.Close()
	return collectSubscriptions(rows)
}

func (r *subscriptionRepo) FindEffective(ctx context.Context, tx repository.Tx, userID string, now time.Time) (*model.Subscription, error) {
	q := `
SELECT ` + subscriptionColumns + `
  FROM subscriptions
 WHERE user_id=$1 AND expires_at > $2
 ORDER BY expires_at DESC
 LIMIT 1;`
	row, err := pickRow(ctx, r.pool, tx, q, userID, now)
	if err != nil {
		return nil, err
	}
	return scanSubscription(row)
}

// ListExpiring returns, per user, the effective row whose expiry falls inside
// (now, now+within]. A user with a longer row further out is not expiring.
func (r *subscriptionRepo) ListExpiring(ctx context.Context, tx repository.Tx, within time.Duration) ([]*model.Subscription, error) {
	now := time.Now().UTC()
	q := `
SELECT DISTINCT ON (user_id) ` + subscriptionColumns + `
  FROM subscriptions
 WHERE expires_at > $1
 ORDER BY user_id, expires_at DESC;`
	rows, err := queryRows(ctx, r.pool, tx, q, now)
	if err != nil {
		return nil, mapQueryErr(err)
	}
	defer rows.Close()
	all, err := collectSubscriptions(rows)
	if err != nil {
		return nil, err
	}
	cutoff := now.Add(within)
	var out []*model.Subscription
	for _, s := range all {
		if !s.ExpiresAt.After(cutoff) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *subscriptionRepo) CountActive(ctx context.Context, tx repository.Tx, now time.Time) (int, error) {
	const q = `SELECT COUNT(DISTINCT user_id) FROM subscriptions WHERE expires_at > $1;`
	row, err := pickRow(ctx, r.pool, tx, q, now)
	if err != nil {
		return 0, err
	}
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, domain.ErrReadDatabaseRow
	}
	return n, nil
}

func scanSubscription(row pgx.Row) (*model.Subscription, error) {
	s := &model.Subscription{}
	var plan string
	if err := row.Scan(&s.ID, &s.UserID, &plan, &s.StartedAt, &s.ExpiresAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	s.Plan = model.Plan(plan)
	return s, nil
}

func collectSubscriptions(rows pgx.Rows) ([]*model.Subscription, error) {
	var out []*model.Subscription
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}
