package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/tourneyhub/economy/internal/domain"
	"github.com/tourneyhub/economy/internal/infra"
)

const transactionColumns = `id, user_id, currency, amount, kind, description,
		       reference_id, reference_type, balance_after, metadata, created_at`

type transactionRepo struct{}

// NewTransactionRepository returns a pgx-backed TransactionRepository.
func NewTransactionRepository() TransactionRepository {
	return &transactionRepo{}
}

func (r *transactionRepo) FindExisting(ctx context.Context, db DBTX, key domain.IdempotencyKey) (*domain.Transaction, error) {
	row := db.QueryRow(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE reference_id = $1 AND reference_type = $2 AND kind = $3`,
		key.ReferenceID, string(key.ReferenceType), string(key.Kind))
	return scanTransaction(row)
}

func (r *transactionRepo) Insert(ctx context.Context, db DBTX, params domain.LedgerEntryParams, balanceAfter decimal.Decimal) (*domain.Transaction, error) {
	meta := params.Metadata
	if meta == nil {
		meta = json.RawMessage(`{}`)
	}
	var refType *string
	if params.ReferenceType != nil {
		s := string(*params.ReferenceType)
		refType = &s
	}

	// clock_timestamp keeps entries from one database transaction in insertion order.
	row := db.QueryRow(ctx, `
		INSERT INTO transactions
		  (id, user_id, currency, amount, kind, description,
		   reference_id, reference_type, balance_after, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, clock_timestamp())
		RETURNING `+transactionColumns,
		uuid.New(),
		params.UserID,
		string(params.Currency),
		infra.DecimalToNumeric(params.Amount),
		string(params.Kind),
		params.Description,
		params.ReferenceID,
		refType,
		infra.DecimalToNumeric(balanceAfter),
		meta,
	)
	return scanTransaction(row)
}

func (r *transactionRepo) ListByUser(ctx context.Context, db DBTX, q domain.TransactionQuery) ([]domain.Transaction, error) {
	where := []string{"user_id = $1"}
	args := []interface{}{q.UserID}

	if q.Currency != nil {
		args = append(args, string(*q.Currency))
		where = append(where, fmt.Sprintf("currency = $%d", len(args)))
	}
	if q.Cursor != nil {
		args = append(args, *q.Cursor)
		where = append(where, fmt.Sprintf(
			"(created_at, id) < (SELECT created_at, id FROM transactions WHERE id = $%d)", len(args)))
	}
	args = append(args, q.NormalizedLimit())

	rows, err := db.Query(ctx, fmt.Sprintf(`
		SELECT %s
		FROM transactions
		WHERE %s
		ORDER BY created_at DESC, id DESC
		LIMIT $%d`, transactionColumns, strings.Join(where, " AND "), len(args)), args...)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	var txs []domain.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, *tx)
	}
	return txs, rows.Err()
}

func (r *transactionRepo) SumByUser(ctx context.Context, db DBTX, userID string, currency domain.Currency) (decimal.Decimal, error) {
	var sum pgtype.Numeric
	err := db.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0)
		FROM transactions
		WHERE user_id = $1 AND currency = $2`, userID, string(currency)).Scan(&sum)
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum transactions: %w", err)
	}
	return infra.NumericToDecimal(sum)
}

func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	var tx domain.Transaction
	var amountNum, balNum pgtype.Numeric
	var refType *string
	err := row.Scan(
		&tx.ID, &tx.UserID, &tx.Currency, &amountNum, &tx.Kind, &tx.Description,
		&tx.ReferenceID, &refType, &balNum, &tx.Metadata, &tx.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan transaction: %w", err)
	}
	if refType != nil {
		rt := domain.ReferenceType(*refType)
		tx.ReferenceType = &rt
	}

	var convErr error
	tx.Amount, convErr = infra.NumericToDecimal(amountNum)
	if convErr != nil {
		return nil, fmt.Errorf("convert amount: %w", convErr)
	}
	tx.BalanceAfter, convErr = infra.NumericToDecimal(balNum)
	if convErr != nil {
		return nil, fmt.Errorf("convert balance_after: %w", convErr)
	}

	return &tx, nil
}
