package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/tourneyhub/economy/internal/domain"
	"github.com/tourneyhub/economy/internal/infra"
)

const walletColumns = `user_id, qp_balance, cash_balance, total_qp_purchased,
		       total_cash_earned, total_cash_withdrawn, created_at, updated_at`

type walletRepo struct{}

// NewWalletRepository returns a pgx-backed WalletRepository.
func NewWalletRepository() WalletRepository {
	return &walletRepo{}
}

func (r *walletRepo) Get(ctx context.Context, db DBTX, userID string) (*domain.Wallet, error) {
	row := db.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE user_id = $1`, userID)
	return scanWallet(row)
}

func (r *walletRepo) EnsureExists(ctx context.Context, db DBTX, userID string) error {
	_, err := db.Exec(ctx, `
		INSERT INTO wallets (user_id) VALUES ($1)
		ON CONFLICT (user_id) DO NOTHING`, userID)
	if err != nil {
		return fmt.Errorf("insert wallet: %w", err)
	}
	return nil
}

func (r *walletRepo) LockForUpdate(ctx context.Context, tx pgx.Tx, userID string) (*domain.Wallet, error) {
	row := tx.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE user_id = $1 FOR UPDATE`, userID)
	return scanWallet(row)
}

// UpdateBalances uses server-side arithmetic with dynamic SET clauses.
// updated_at always moves forward, even when two updates share a clock tick.
func (r *walletRepo) UpdateBalances(ctx context.Context, tx pgx.Tx, userID string, delta domain.BalanceDelta) (*domain.Wallet, error) {
	setClauses := []string{"updated_at = GREATEST(now(), updated_at + interval '1 microsecond')"}
	args := []interface{}{}
	argIdx := 1

	if delta.HasQPDelta() {
		setClauses = append(setClauses, fmt.Sprintf("qp_balance = qp_balance + $%d", argIdx))
		args = append(args, delta.QP)
		argIdx++
	}
	if delta.HasCashDelta() {
		setClauses = append(setClauses, fmt.Sprintf("cash_balance = cash_balance + $%d", argIdx))
		args = append(args, infra.DecimalToNumeric(delta.Cash))
		argIdx++
	}
	if delta.HasQPPurchasedDelta() {
		setClauses = append(setClauses, fmt.Sprintf("total_qp_purchased = total_qp_purchased + $%d", argIdx))
		args = append(args, delta.TotalQPPurchased)
		argIdx++
	}
	if delta.HasCashEarnedDelta() {
		setClauses = append(setClauses, fmt.Sprintf("total_cash_earned = total_cash_earned + $%d", argIdx))
		args = append(args, infra.DecimalToNumeric(delta.TotalCashEarned))
		argIdx++
	}
	if delta.HasCashWithdrawnDelta() {
		setClauses = append(setClauses, fmt.Sprintf("total_cash_withdrawn = total_cash_withdrawn + $%d", argIdx))
		args = append(args, infra.DecimalToNumeric(delta.TotalCashWithdrawn))
		argIdx++
	}

	args = append(args, userID)
	query := fmt.Sprintf(`
		UPDATE wallets SET %s
		WHERE user_id = $%d
		RETURNING %s`,
		strings.Join(setClauses, ", "), argIdx, walletColumns)

	row := tx.QueryRow(ctx, query, args...)
	return scanWallet(row)
}

func scanWallet(row pgx.Row) (*domain.Wallet, error) {
	var w domain.Wallet
	var cashNum, earnedNum, withdrawnNum pgtype.Numeric
	err := row.Scan(&w.UserID, &w.QPBalance, &cashNum, &w.TotalQPPurchased,
		&earnedNum, &withdrawnNum, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan wallet: %w", err)
	}

	var convErr error
	w.CashBalance, convErr = infra.NumericToDecimal(cashNum)
	if convErr != nil {
		return nil, fmt.Errorf("convert cash_balance: %w", convErr)
	}
	w.TotalCashEarned, convErr = infra.NumericToDecimal(earnedNum)
	if convErr != nil {
		return nil, fmt.Errorf("convert total_cash_earned: %w", convErr)
	}
	w.TotalCashWithdrawn, convErr = infra.NumericToDecimal(withdrawnNum)
	if convErr != nil {
		return nil, fmt.Errorf("convert total_cash_withdrawn: %w", convErr)
	}

	return &w, nil
}
