package ledger

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/tourneyhub/economy/internal/domain"
	"github.com/tourneyhub/economy/internal/projection"
	"github.com/tourneyhub/economy/internal/repository"
)

// ReconcileReport holds the outcome of checking one wallet against its ledger.
type ReconcileReport struct {
	UserID     string           `json:"user_id"`
	Wallet     *domain.Wallet   `json:"wallet"`
	Invariants []InvariantCheck `json:"invariants"`
	AllPassed  bool             `json:"all_passed"`
}

// InvariantCheck records a single invariant validation.
type InvariantCheck struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

var currencies = []domain.Currency{domain.CurrencyQP, domain.CurrencyCash}

// Reconcile validates, under the wallet lock:
//  1. Balance non-negativity for both currencies
//  2. Ledger sum parity: sum of entries equals the stored balance
//  3. Snapshot parity: the newest entry's balance_after equals the stored balance
func (e *Engine) Reconcile(ctx context.Context, userID string) (*ReconcileReport, error) {
	if err := domain.ValidateUserID(userID); err != nil {
		return nil, domain.ErrValidation(err.Error())
	}

	var report *ReconcileReport
	err := e.store.WithinTx(ctx, func(ctx context.Context, uow repository.UnitOfWork) error {
		wallet, err := uow.LockWallet(ctx, userID)
		if err != nil {
			return fmt.Errorf("lock wallet: %w", err)
		}

		sums := make(map[domain.Currency]decimal.Decimal, len(currencies))
		latest := make(map[domain.Currency]*domain.Transaction, len(currencies))
		for _, c := range currencies {
			sum, err := uow.SumTransactions(ctx, userID, c)
			if err != nil {
				return fmt.Errorf("sum %s: %w", c, err)
			}
			sums[c] = sum

			currency := c
			txs, err := e.store.ListTransactions(ctx, domain.TransactionQuery{UserID: userID, Currency: &currency, Limit: 1})
			if err != nil {
				return fmt.Errorf("latest %s: %w", c, err)
			}
			if len(txs) > 0 {
				latest[c] = &txs[0]
			}
		}

		report = buildReport(wallet, sums, latest)
		return nil
	})
	if err != nil {
		return nil, storeError("reconcile", err)
	}

	if !report.AllPassed {
		e.logger.Error("wallet reconciliation failed", "user_id", userID, "invariants", report.Invariants)
		if e.projections != nil {
			if err := projection.InvalidateBalance(ctx, e.projections, userID); err != nil {
				e.logger.Warn("balance projection invalidate failed", "user_id", userID, "error", err)
			}
		}
	}
	return report, nil
}

func buildReport(w *domain.Wallet, sums map[domain.Currency]decimal.Decimal, latest map[domain.Currency]*domain.Transaction) *ReconcileReport {
	checks := make([]InvariantCheck, 0, 1+2*len(currencies))

	checks = append(checks, InvariantCheck{
		Name:   "balance_non_negative",
		Passed: w.QPBalance >= 0 && !w.CashBalance.IsNegative(),
		Detail: fmt.Sprintf("qp=%d cash=%s", w.QPBalance, w.CashBalance.StringFixed(domain.CashPlaces)),
	})

	for _, c := range currencies {
		balance := w.Balance(c)
		checks = append(checks, InvariantCheck{
			Name:   fmt.Sprintf("ledger_sum_%s", c),
			Passed: sums[c].Equal(balance),
			Detail: fmt.Sprintf("balance=%s ledger=%s", balance.String(), sums[c].String()),
		})

		if tx := latest[c]; tx != nil {
			checks = append(checks, InvariantCheck{
				Name:   fmt.Sprintf("snapshot_parity_%s", c),
				Passed: tx.BalanceAfter.Equal(balance),
				Detail: fmt.Sprintf("balance=%s last_balance_after=%s", balance.String(), tx.BalanceAfter.String()),
			})
		} else {
			checks = append(checks, InvariantCheck{
				Name:   fmt.Sprintf("snapshot_parity_%s", c),
				Passed: balance.IsZero(),
				Detail: "no transactions (empty ledger)",
			})
		}
	}

	allPassed := true
	for _, c := range checks {
		if !c.Passed {
			allPassed = false
		}
	}
	return &ReconcileReport{UserID: w.UserID, Wallet: w, Invariants: checks, AllPassed: allPassed}
}
