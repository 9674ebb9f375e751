package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/tourneyhub/economy/internal/auth"
	"github.com/tourneyhub/economy/internal/domain"
	"github.com/tourneyhub/economy/internal/ledger"
)

// WalletAdmin is the set of wallet operations exposed to operators.
type WalletAdmin interface {
	Credit(ctx context.Context, params domain.CreditParams) (*domain.CommandResult, error)
	Debit(ctx context.Context, params domain.DebitParams) (*domain.CommandResult, error)
	Reconcile(ctx context.Context, userID string) (*ledger.ReconcileReport, error)
}

// PrizeAdmin is the set of prize pool operations exposed to operators.
type PrizeAdmin interface {
	CreatePool(ctx context.Context, pool *domain.PrizePool) (*domain.PrizePool, error)
	GetPool(ctx context.Context, tournamentID string) (*domain.PrizePool, error)
	Distribute(ctx context.Context, tournamentID string, rankings []domain.Ranking) (*domain.DistributionResult, error)
}

// AdminHandler serves the operator endpoints.
type AdminHandler struct {
	wallets WalletAdmin
	prizes  PrizeAdmin
	logger  *slog.Logger
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(wallets WalletAdmin, prizes PrizeAdmin, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{wallets: wallets, prizes: prizes, logger: logger}
}

type createPoolRequest struct {
	TournamentID string                  `json:"tournament_id"`
	TotalPool    decimal.Decimal         `json:"total_pool"`
	Distribution map[int]decimal.Decimal `json:"distribution"`
}

// CreatePrizePool handles POST /admin/prize-pools.
func (h *AdminHandler) CreatePrizePool(w http.ResponseWriter, r *http.Request) {
	var req createPoolRequest
	if err := DecodeJSON(r, &req); err != nil {
		RespondError(w, domain.ErrValidation("invalid request body"))
		return
	}

	pool, err := h.prizes.CreatePool(r.Context(), &domain.PrizePool{
		TournamentID: req.TournamentID,
		TotalPool:    req.TotalPool,
		Distribution: req.Distribution,
	})
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusCreated, pool)
}

// GetPrizePool handles GET /admin/prize-pools/{tournamentID}.
func (h *AdminHandler) GetPrizePool(w http.ResponseWriter, r *http.Request) {
	pool, err := h.prizes.GetPool(r.Context(), chi.URLParam(r, "tournamentID"))
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, pool)
}

type distributeRequest struct {
	Rankings []domain.Ranking `json:"rankings"`
}

// Distribute handles POST /admin/tournaments/{tournamentID}/distribute.
// A run that left the pool open answers 202 so the caller knows to retry.
func (h *AdminHandler) Distribute(w http.ResponseWriter, r *http.Request) {
	tournamentID := chi.URLParam(r, "tournamentID")

	var req distributeRequest
	if err := DecodeJSON(r, &req); err != nil {
		RespondError(w, domain.ErrValidation("invalid request body"))
		return
	}

	h.logger.Info("prize distribution requested",
		"tournament_id", tournamentID,
		"rankings", len(req.Rankings),
		"admin", auth.SubjectFromContext(r.Context()),
	)

	result, err := h.prizes.Distribute(r.Context(), tournamentID, req.Rankings)
	if err != nil {
		RespondError(w, err)
		return
	}
	status := http.StatusOK
	if !result.PaidOut {
		status = http.StatusAccepted
	}
	RespondJSON(w, status, result)
}

type adjustRequest struct {
	Currency    domain.Currency `json:"currency"`
	Amount      decimal.Decimal `json:"amount"`
	Reason      string          `json:"reason"`
	ReferenceID string          `json:"reference_id"`
	// Withdrawal books a negative Cash amount as a payout to the player.
	Withdrawal bool `json:"withdrawal"`
}

type adjustResponse struct {
	Transaction *domain.Transaction `json:"transaction"`
	Wallet      *domain.Wallet      `json:"wallet"`
	Idempotent  bool                `json:"idempotent"`
}

// AdjustWallet handles POST /admin/wallets/{userID}/adjust. A positive amount
// credits and a negative one debits; reference_id makes retries safe. Only
// withdrawals count toward the wallet's lifetime withdrawn total.
func (h *AdminHandler) AdjustWallet(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	var req adjustRequest
	if err := DecodeJSON(r, &req); err != nil {
		RespondError(w, domain.ErrValidation("invalid request body"))
		return
	}
	if req.ReferenceID == "" {
		RespondError(w, domain.ErrValidation("reference_id is required"))
		return
	}
	if req.Amount.IsZero() {
		RespondError(w, domain.ErrValidation("amount must not be zero"))
		return
	}
	if req.Withdrawal && (req.Currency != domain.CurrencyCash || !req.Amount.IsNegative()) {
		RespondError(w, domain.ErrValidation("withdrawal requires a negative CASH amount"))
		return
	}

	admin := auth.SubjectFromContext(r.Context())
	meta, _ := json.Marshal(map[string]string{"admin": admin, "reason": req.Reason})
	description := fmt.Sprintf("Admin adjustment: %s", req.Reason)
	debitKind, debitRef := domain.KindAdminAdjustment, domain.RefAdminAction
	if req.Withdrawal {
		description = fmt.Sprintf("Withdrawal: %s", req.Reason)
		debitKind, debitRef = domain.KindWithdrawal, domain.RefWithdrawalRequest
	}

	var (
		res *domain.CommandResult
		err error
	)
	if req.Amount.IsPositive() {
		res, err = h.wallets.Credit(r.Context(), domain.CreditParams{
			UserID:        userID,
			Currency:      req.Currency,
			Amount:        req.Amount,
			Kind:          domain.KindAdminAdjustment,
			Description:   description,
			ReferenceID:   req.ReferenceID,
			ReferenceType: domain.RefAdminAction,
			Metadata:      meta,
		})
	} else {
		res, err = h.wallets.Debit(r.Context(), domain.DebitParams{
			UserID:        userID,
			Currency:      req.Currency,
			Amount:        req.Amount.Neg(),
			Kind:          debitKind,
			Description:   description,
			ReferenceID:   req.ReferenceID,
			ReferenceType: debitRef,
			Metadata:      meta,
		})
	}
	if err != nil {
		RespondError(w, err)
		return
	}

	h.logger.Info("wallet adjusted",
		"user_id", userID,
		"currency", req.Currency,
		"amount", req.Amount.String(),
		"withdrawal", req.Withdrawal,
		"admin", admin,
		"idempotent", res.Idempotent,
	)
	RespondJSON(w, http.StatusOK, adjustResponse{
		Transaction: res.Transaction,
		Wallet:      res.Wallet,
		Idempotent:  res.Idempotent,
	})
}

// ReconcileWallet handles GET /admin/wallets/{userID}/reconcile.
func (h *AdminHandler) ReconcileWallet(w http.ResponseWriter, r *http.Request) {
	report, err := h.wallets.Reconcile(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, report)
}
