package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/shopspring/decimal"

	"telegram-crypto-subscription/internal/domain"
	"telegram-crypto-subscription/internal/domain/model"
	"telegram-crypto-subscription/internal/domain/ports/repository"
)

var _ repository.ObligationRepository = (*obligationRepo)(nil)

const obligationColumns = `id, user_id, plan, currency, expected_amount, recipient, tx_ref, created_at, settled_at, matched_tx_ref`

type obligationRepo struct{ pool *pgxpool.Pool }

func NewObligationRepo(pool *pgxpool.Pool) *obligationRepo {
	return &obligationRepo{pool: pool}
}

func (r *obligationRepo) Save(ctx context.Context, tx repository.Tx, o *model.PendingObligation) error {
	const q = `
INSERT INTO pending_obligations (
  id, user_id, plan, currency, expected_amount, recipient, tx_ref, created_at, settled_at, matched_tx_ref
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (id) DO UPDATE SET tx_ref=$7;`

	_, err := execSQL(ctx, r.pool, tx, q,
		o.ID, o.UserID, string(o.Plan), string(o.Currency), o.ExpectedAmount.String(),
		o.Recipient, nullIfEmpty(o.TxRef), o.CreatedAt, o.SettledAt, o.MatchedTxRef)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidArgument) || errors.Is(err, domain.ErrInvalidExecContext) {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *obligationRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.PendingObligation, error) {
	q := `SELECT ` + obligationColumns + ` FROM pending_obligations WHERE id=$1;`
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	return scanObligation(row)
}

func (r *obligationRepo) ListOpen(ctx context.Context, tx repository.Tx, currency *model.Currency, limit int) ([]*model.PendingObligation, error) {
	if limit <= 0 {
		limit = 100
	}
	q := `SELECT ` + obligationColumns + ` FROM pending_obligations WHERE settled_at IS NULL`
	args := []interface{}{}
	if currency != nil {
		q += ` AND currency=$1`
		args = append(args, string(*currency))
	}
	// oldest first: creation order drives FIFO matching
	if currency != nil {
		q += ` ORDER BY created_at ASC LIMIT $2;`
	} else {
		q += ` ORDER BY created_at ASC LIMIT $1;`
	}
	args = append(args, limit)

	rows, err := queryRows(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, mapQueryErr(err)
	}
	defer rows.Close()
	return collectObligations(rows)
}

func (r *obligationRepo) ListOpenByUser(ctx context.Context, tx repository.Tx, userID string) ([]*model.PendingObligation, error) {
	q := `SELECT ` + obligationColumns + ` FROM pending_obligations WHERE settled_at IS NULL AND user_id=$1 ORDER BY created_at ASC;`
	rows, err := queryRows(ctx, r.pool, tx, q, userID)
	if err != nil {
		return nil, mapQueryErr(err)
	}
	defer rows.Close()
	return collectObligations(rows)
}

func (r *obligationRepo) AttachTxRef(ctx context.Context, tx repository.Tx, id, txRef string) error {
	if txRef == "" {
		return domain.ErrInvalidArgument
	}
	const q = `UPDATE pending_obligations SET tx_ref=$2 WHERE id=$1 AND settled_at IS NULL;`
	cmd, err := execSQL(ctx, r.pool, tx, q, id, txRef)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidArgument) || errors.Is(err, domain.ErrInvalidExecContext) {
			return err
		}
		return domain.ErrOperationFailed
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrAlreadySettled
	}
	return nil
}

// SettleIfOpen is the exactly-once surface: a single conditional UPDATE, not
// a read-then-write pair, so two concurrent callers cannot both observe the
// row as open. The partial unique index on matched_tx_ref makes a reused
// reference fail with 23505 regardless of which obligation it targets.
func (r *obligationRepo) SettleIfOpen(ctx context.Context, tx repository.Tx, id, txRef string, settledAt time.Time) (bool, error) {
	const q = `
UPDATE pending_obligations
   SET settled_at=$2, matched_tx_ref=$3
 WHERE id=$1
   AND settled_at IS NULL;`

	cmd, err := execSQL(ctx, r.pool, tx, q, id, settledAt, txRef)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return false, domain.ErrTxRefConsumed
		}
		if errors.Is(err, domain.ErrInvalidArgument) || errors.Is(err, domain.ErrInvalidExecContext) {
			return false, err
		}
		return false, domain.ErrOperationFailed
	}
	return cmd.RowsAffected() >= 1, nil
}

func (r *obligationRepo) CountOpen(ctx context.Context, tx repository.Tx) (int, error) {
	const q = `SELECT COUNT(*) FROM pending_obligations WHERE settled_at IS NULL;`
	row, err := pickRow(ctx, r.pool, tx, q)
	if err != nil {
		return 0, err
	}
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, domain.ErrReadDatabaseRow
	}
	return n, nil
}

func (r *obligationRepo) SumSettledAmount(ctx context.Context, tx repository.Tx, currency model.Currency, since time.Time) (decimal.Decimal, error) {
	const q = `
SELECT COALESCE(SUM(expected_amount::numeric),0)::text
  FROM pending_obligations
 WHERE settled_at IS NOT NULL AND currency=$1 AND settled_at >= $2;`
	row, err := pickRow(ctx, r.pool, tx, q, string(currency), since)
	if err != nil {
		return decimal.Zero, err
	}
	var raw string
	if err := row.Scan(&raw); err != nil {
		return decimal.Zero, domain.ErrReadDatabaseRow
	}
	sum, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, domain.ErrReadDatabaseRow
	}
	return sum, nil
}

func scanObligation(row pgx.Row) (*model.PendingObligation, error) {
	o := &model.PendingObligation{}
	var (
		plan, currency, amount string
		txRef                  *string
	)
	if err := row.Scan(&o.ID, &o.UserID, &plan, &currency, &amount, &o.Recipient, &txRef, &o.CreatedAt, &o.SettledAt, &o.MatchedTxRef); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	o.Plan = model.Plan(plan)
	o.Currency = model.Currency(currency)
	if txRef != nil {
		o.TxRef = *txRef
	}
	var err error
	if o.ExpectedAmount, err = decimal.NewFromString(amount); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return o, nil
}

func collectObligations(rows pgx.Rows) ([]*model.PendingObligation, error) {
	var out []*model.PendingObligation
	for rows.Next() {
		o, err := scanObligation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}

func mapQueryErr(err error) error {
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return domain.ErrNotFound
	case errors.Is(err, domain.ErrInvalidArgument), errors.Is(err, domain.ErrInvalidExecContext):
		return err
	default:
		return domain.ErrOperationFailed
	}
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
