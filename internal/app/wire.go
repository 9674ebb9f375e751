package app

import (
	"log/slog"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tourneyhub/economy/internal/auth"
	"github.com/tourneyhub/economy/internal/guard"
	"github.com/tourneyhub/economy/internal/handler"
	"github.com/tourneyhub/economy/internal/ledger"
	"github.com/tourneyhub/economy/internal/projection"
	"github.com/tourneyhub/economy/internal/provider"
	"github.com/tourneyhub/economy/internal/repository"
	"github.com/tourneyhub/economy/internal/service"
	"github.com/tourneyhub/economy/internal/settlement"
)

// RouterDeps holds all dependencies needed by NewRouter.
type RouterDeps struct {
	Store  repository.Store
	JWTMgr *auth.JWTManager
	Logger *slog.Logger

	// Projections may be nil to serve balances from the store only.
	Projections   projection.Store
	ProjectionTTL time.Duration

	StripeWebhookSecret string
	// WebhookRateLimit is requests per minute per client address; <= 0 disables.
	WebhookRateLimit int

	// Health lists the dependencies /health pings.
	Health map[string]handler.Pinger
}

// NewRouter assembles the chi.Router with all routes and middleware.
func NewRouter(deps RouterDeps) chi.Router {
	logger := deps.Logger
	jwtMgr := deps.JWTMgr

	// Core
	engine := ledger.NewEngine(deps.Store, deps.Projections, logger).WithProjectionTTL(deps.ProjectionTTL)
	prizes := settlement.NewPrizeSettlement(deps.Store, engine, logger)

	// Payments
	stripeProvider := provider.NewStripeProvider(deps.StripeWebhookSecret)
	payments := service.NewPaymentProcessor(stripeProvider, engine, logger)

	// Handlers
	walletHandler := handler.NewWalletHandler(engine)
	webhookHandler := handler.NewWebhookHandler(payments, guard.NewRateLimiter(deps.WebhookRateLimit, time.Minute), logger)
	adminHandler := handler.NewAdminHandler(engine, prizes, logger)

	r := chi.NewRouter()

	// Global middleware (order matters)
	r.Use(handler.Recovery(logger))
	r.Use(handler.RequestID)
	r.Use(handler.RequestLogger(logger))
	r.Use(handler.JSONContentType)

	// Health (no auth)
	r.Get("/health", handler.HealthHandler(deps.Health))

	// Webhooks (no auth; the signature authenticates the body)
	r.Post("/webhooks/stripe", webhookHandler.HandleStripeWebhook)

	// Player-authenticated routes
	r.Group(func(r chi.Router) {
		r.Use(auth.AuthenticatePlayer(jwtMgr))

		r.Route("/wallet", func(r chi.Router) {
			r.Get("/balance", walletHandler.GetBalance)
			r.Get("/transactions", walletHandler.GetTransactions)
		})
	})

	// Admin-authenticated routes
	r.Route("/admin", func(r chi.Router) {
		r.Use(auth.AuthenticateAdmin(jwtMgr))

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireRole(auth.AllAdminRoles()...))
			r.Get("/prize-pools/{tournamentID}", adminHandler.GetPrizePool)
			r.Get("/wallets/{userID}/reconcile", adminHandler.ReconcileWallet)
		})

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireRole(auth.WriteRoles()...))
			r.Post("/prize-pools", adminHandler.CreatePrizePool)
			r.Post("/tournaments/{tournamentID}/distribute", adminHandler.Distribute)
			r.Post("/wallets/{userID}/adjust", adminHandler.AdjustWallet)
		})
	})

	return r
}
