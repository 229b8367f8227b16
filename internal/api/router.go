/**
 * @description
 * This file sets up the HTTP router for the ledger service. It defines the
 * API endpoints, associates them with their corresponding handlers, and
 * applies the shared middleware stack.
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP functionality.
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 * - github.com/go-chi/cors: CORS configuration for browser-based callers.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// LedgerRoutes creates and returns the router for the ledger service.
func LedgerRoutes(h *LedgerHandlers) http.Handler {
	r := chi.NewRouter()

	// Add standard middleware for logging, panic recovery, and timeouts.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(RequestIDMiddleware)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", RequestIDHeader},
		MaxAge:         300,
	}))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/users", h.RegisterUserHandler)

		r.Route("/users/{userID}", func(r chi.Router) {
			r.Get("/balance", h.BalanceHandler)

			r.Post("/deposits", h.DepositHandler)
			r.Post("/withdrawals", h.WithdrawHandler)

			r.Post("/transfers", h.TransferHandler)
			r.Get("/transactions", h.TransactionHistoryHandler)
			r.Get("/transactions/{transactionID}", h.GetTransactionHandler)

			r.Get("/beneficiaries", h.ListBeneficiariesHandler)
			r.Post("/beneficiaries", h.AddBeneficiaryHandler)
			r.Get("/beneficiaries/search", h.SearchBeneficiariesHandler)
			r.Delete("/beneficiaries/{beneficiaryID}", h.RemoveBeneficiaryHandler)
		})
	})

	return r
}
