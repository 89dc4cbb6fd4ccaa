package api

import (
	"github.com/gorilla/mux"
)

// SetupRoutes configures all API routes
func SetupRoutes(handler *Handler) *mux.Router {
	r := mux.NewRouter()
	r.Use(handler.logRequests, noCache)

	// Health check
	r.HandleFunc("/health", handler.HealthCheck).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()

	// Account routes
	api.HandleFunc("/register", handler.Register).Methods("POST")
	api.HandleFunc("/login", handler.Login).Methods("POST")
	api.HandleFunc("/logout", handler.Logout).Methods("POST")
	api.HandleFunc("/market", handler.MarketStatus).Methods("GET")

	// Everything below needs a session
	private := api.NewRoute().Subrouter()
	private.Use(handler.requireSession)
	private.HandleFunc("/password", handler.ChangePassword).Methods("POST")
	private.HandleFunc("/quote/{symbol}", handler.GetQuote).Methods("GET")
	private.HandleFunc("/portfolio", handler.GetPortfolio).Methods("GET")
	private.HandleFunc("/positions", handler.GetPositions).Methods("GET")
	private.HandleFunc("/history", handler.GetHistory).Methods("GET")
	private.HandleFunc("/buy", handler.Buy).Methods("POST")
	private.HandleFunc("/sell", handler.Sell).Methods("POST")
	private.HandleFunc("/deposit", handler.Deposit).Methods("POST")
	private.HandleFunc("/withdraw", handler.Withdraw).Methods("POST")

	return r
}
