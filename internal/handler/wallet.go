package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/tourneyhub/economy/internal/auth"
	"github.com/tourneyhub/economy/internal/domain"
	"github.com/tourneyhub/economy/internal/projection"
)

// WalletReader serves player-facing wallet reads.
type WalletReader interface {
	Balance(ctx context.Context, userID string) (*projection.BalanceProjection, error)
	ListTransactions(ctx context.Context, q domain.TransactionQuery) ([]domain.Transaction, error)
}

// WalletHandler handles wallet balance and transaction endpoints.
type WalletHandler struct {
	wallets WalletReader
}

// NewWalletHandler creates a new WalletHandler.
func NewWalletHandler(wallets WalletReader) *WalletHandler {
	return &WalletHandler{wallets: wallets}
}

// balanceResponse is the shape of GET /wallet/balance.
type balanceResponse struct {
	UserID      string `json:"user_id"`
	QPBalance   int64  `json:"qp_balance"`
	CashBalance string `json:"cash_balance"`
}

// GetBalance handles GET /wallet/balance.
func (h *WalletHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r)
	if err != nil {
		RespondError(w, err)
		return
	}

	p, err := h.wallets.Balance(r.Context(), userID)
	if err != nil {
		RespondError(w, err)
		return
	}

	RespondJSON(w, http.StatusOK, balanceResponse{
		UserID:      p.UserID,
		QPBalance:   p.QPBalance,
		CashBalance: p.CashBalance.StringFixed(domain.CashPlaces),
	})
}

// txListResponse wraps a list of transactions with cursor.
type txListResponse struct {
	Transactions []domain.Transaction `json:"transactions"`
	NextCursor   *string              `json:"next_cursor,omitempty"`
}

// GetTransactions handles GET /wallet/transactions with cursor-based pagination.
func (h *WalletHandler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r)
	if err != nil {
		RespondError(w, err)
		return
	}

	q, err := parseTransactionQuery(r, userID)
	if err != nil {
		RespondError(w, err)
		return
	}

	txs, err := h.wallets.ListTransactions(r.Context(), q)
	if err != nil {
		RespondError(w, err)
		return
	}

	resp := txListResponse{Transactions: txs}
	if resp.Transactions == nil {
		resp.Transactions = []domain.Transaction{}
	}
	if len(txs) == q.NormalizedLimit() {
		next := txs[len(txs)-1].ID.String()
		resp.NextCursor = &next
	}
	RespondJSON(w, http.StatusOK, resp)
}

func parseTransactionQuery(r *http.Request, userID string) (domain.TransactionQuery, error) {
	q := domain.TransactionQuery{UserID: userID}
	values := r.URL.Query()

	if s := values.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return q, domain.ErrValidation("limit must be an integer")
		}
		q.Limit = n
	}
	if s := values.Get("currency"); s != "" {
		c := domain.Currency(s)
		q.Currency = &c
	}
	if s := values.Get("cursor"); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			return q, domain.ErrValidation("cursor must be a transaction id")
		}
		q.Cursor = &id
	}
	return q, nil
}

// userIDFromContext extracts the authenticated player id.
func userIDFromContext(r *http.Request) (string, error) {
	sub := auth.SubjectFromContext(r.Context())
	if sub == "" {
		return "", domain.ErrUnauthorized("no subject in context")
	}
	return sub, nil
}
