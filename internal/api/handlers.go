package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"stock-sim-go/internal/auth"
	"stock-sim-go/internal/database"
	"stock-sim-go/internal/models"
	"stock-sim-go/internal/portfolio"
	"stock-sim-go/internal/quote"
	"stock-sim-go/internal/trader"
)

var (
	errBadRequest   = errors.New("invalid request body")
	errBodyTooLarge = errors.New("request body too large")
)

// MarketClock reports whether the exchange is trading.
type MarketClock interface {
	IsMarketOpen(now time.Time) bool
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	logger    *zap.Logger
	trader    *trader.Service
	accounts  *auth.Service
	market    MarketClock
	currency  string
	startTime time.Time
}

// NewHandler creates a new Handler
func NewHandler(logger *zap.Logger, svc *trader.Service, accounts *auth.Service, market MarketClock, currency string) *Handler {
	return &Handler{
		logger:    logger.Named("api"),
		trader:    svc,
		accounts:  accounts,
		market:    market,
		currency:  currency,
		startTime: time.Now(),
	}
}

// HealthCheck handles GET /health
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":     "healthy",
		"start_time": h.startTime.Format(time.RFC3339),
		"uptime":     time.Since(h.startTime).Round(time.Second).String(),
	})
}

// MarketStatus handles GET /api/market
func (h *Handler) MarketStatus(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	open := h.market.IsMarketOpen(now)
	respondJSON(w, http.StatusOK, map[string]any{
		"open":   open,
		"status": marketLabel(open),
		"time":   now.Format(time.RFC3339),
	})
}

type credentials struct {
	Username     string `json:"username"`
	Password     string `json:"password"`
	Confirmation string `json:"confirmation"`
}

// Register handles POST /api/register. The new account is logged in.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := decodeJSON(w, r, &req); err != nil {
		h.respondError(w, err)
		return
	}

	user, err := h.accounts.Register(r.Context(), req.Username, req.Password, req.Confirmation)
	if err != nil {
		h.respondError(w, err)
		return
	}
	session, err := h.accounts.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		h.respondError(w, err)
		return
	}

	setSessionCookie(w, session)
	respondJSON(w, http.StatusCreated, map[string]any{
		"user":       user,
		"token":      session.Token,
		"expires_at": session.ExpiresAt,
	})
}

// Login handles POST /api/login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := decodeJSON(w, r, &req); err != nil {
		h.respondError(w, err)
		return
	}

	session, err := h.accounts.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		h.respondError(w, err)
		return
	}

	setSessionCookie(w, session)
	respondJSON(w, http.StatusOK, map[string]any{
		"token":      session.Token,
		"expires_at": session.ExpiresAt,
	})
}

// Logout handles POST /api/logout
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.accounts.Logout(r.Context(), sessionToken(r)); err != nil {
		h.respondError(w, err)
		return
	}
	http.SetCookie(w, &http.Cookie{Name: sessionCookie, Value: "", Path: "/", MaxAge: -1, HttpOnly: true})
	w.WriteHeader(http.StatusNoContent)
}

// ChangePassword handles POST /api/password
func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Current      string `json:"current"`
		Password     string `json:"password"`
		Confirmation string `json:"confirmation"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		h.respondError(w, err)
		return
	}

	err := h.accounts.ChangePassword(r.Context(), ownerFrom(r.Context()), req.Current, req.Password, req.Confirmation)
	if err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetQuote handles GET /api/quote/{symbol}
func (h *Handler) GetQuote(w http.ResponseWriter, r *http.Request) {
	q, err := h.trader.Quote(r.Context(), mux.Vars(r)["symbol"])
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, newQuoteView(q))
}

// GetPortfolio handles GET /api/portfolio
func (h *Handler) GetPortfolio(w http.ResponseWriter, r *http.Request) {
	summary, err := h.trader.Portfolio(r.Context(), ownerFrom(r.Context()))
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, newPortfolioView(summary, h.currency))
}

// GetPositions handles GET /api/positions
func (h *Handler) GetPositions(w http.ResponseWriter, r *http.Request) {
	positions, err := h.trader.Positions(r.Context(), ownerFrom(r.Context()))
	if err != nil {
		h.respondError(w, err)
		return
	}

	type position struct {
		Symbol string `json:"symbol"`
		Shares int64  `json:"shares"`
	}
	out := make([]position, 0, len(positions))
	for _, p := range positions {
		out = append(out, position{Symbol: p.Symbol, Shares: p.Shares})
	}
	respondJSON(w, http.StatusOK, out)
}

// GetHistory handles GET /api/history
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	ledger, err := h.trader.History(r.Context(), ownerFrom(r.Context()))
	if err != nil {
		h.respondError(w, err)
		return
	}

	out := make([]historyEntry, 0, len(ledger))
	for _, t := range ledger {
		out = append(out, newHistoryEntry(t))
	}
	respondJSON(w, http.StatusOK, out)
}

type tradeRequest struct {
	Symbol string `json:"symbol"`
	Shares int64  `json:"shares"`
}

// Buy handles POST /api/buy
func (h *Handler) Buy(w http.ResponseWriter, r *http.Request) {
	h.trade(w, r, h.trader.BuyAtMarket)
}

// Sell handles POST /api/sell
func (h *Handler) Sell(w http.ResponseWriter, r *http.Request) {
	h.trade(w, r, h.trader.SellAtMarket)
}

func (h *Handler) trade(w http.ResponseWriter, r *http.Request, execute func(context.Context, uint, string, int64) (*models.Transaction, error)) {
	var req tradeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.respondError(w, err)
		return
	}

	owner := ownerFrom(r.Context())
	entry, err := execute(r.Context(), owner, req.Symbol, req.Shares)
	if err != nil {
		h.respondError(w, err)
		return
	}
	cash, err := h.trader.Cash(r.Context(), owner)
	if err != nil {
		h.respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"transaction": newHistoryEntry(*entry),
		"cash":        cash,
	})
}

type cashRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

// Deposit handles POST /api/deposit
func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request) {
	h.adjustCash(w, r, h.trader.Deposit)
}

// Withdraw handles POST /api/withdraw
func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	h.adjustCash(w, r, h.trader.Withdraw)
}

func (h *Handler) adjustCash(w http.ResponseWriter, r *http.Request, execute func(context.Context, uint, decimal.Decimal) (decimal.Decimal, error)) {
	var req cashRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.respondError(w, err)
		return
	}

	cash, err := execute(r.Context(), ownerFrom(r.Context()), req.Amount)
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"cash": cash})
}

func setSessionCookie(w http.ResponseWriter, s *models.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    s.Token,
		Path:     "/",
		Expires:  s.ExpiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return fmt.Errorf("%w: limit is %d bytes", errBodyTooLarge, tooLarge.Limit)
		}
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, auth.ErrSessionExpired),
		errors.Is(err, database.ErrUserNotFound):
		return http.StatusUnauthorized
	case errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusForbidden
	case errors.Is(err, quote.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, errBodyTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, quote.ErrMissingData),
		errors.Is(err, quote.ErrDivision),
		errors.Is(err, portfolio.ErrMissingQuote):
		return http.StatusUnprocessableEntity
	case errors.Is(err, quote.ErrProviderUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, errBadRequest),
		errors.Is(err, auth.ErrMissingField),
		errors.Is(err, auth.ErrPasswordMismatch),
		errors.Is(err, auth.ErrUsernameTaken),
		errors.Is(err, trader.ErrInvalidSymbol),
		errors.Is(err, trader.ErrInvalidQuantity),
		errors.Is(err, trader.ErrInvalidPrice),
		errors.Is(err, trader.ErrInvalidAmount),
		errors.Is(err, trader.ErrInsufficientFunds),
		errors.Is(err, trader.ErrInsufficientShares):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// publicMessage hides provider and storage details from clients.
func publicMessage(err error) string {
	var qerr *quote.Error
	if errors.As(err, &qerr) {
		if qerr.Field != "" {
			return fmt.Sprintf("%s: %v (%s)", qerr.Symbol, qerr.Err, qerr.Field)
		}
		return fmt.Sprintf("%s: %v", qerr.Symbol, qerr.Err)
	}
	return err.Error()
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	msg := publicMessage(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("Request failed", zap.Error(err))
		msg = http.StatusText(status)
	}
	respondJSON(w, status, map[string]string{"error": msg})
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
