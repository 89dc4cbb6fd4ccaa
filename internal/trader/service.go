package trader

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"stock-sim-go/internal/config"
	"stock-sim-go/internal/database"
	"stock-sim-go/internal/events"
	"stock-sim-go/internal/models"
	"stock-sim-go/internal/portfolio"
	"stock-sim-go/internal/quote"
)

var (
	ErrInvalidSymbol      = errors.New("symbol is required")
	ErrInvalidQuantity    = errors.New("share count must be a positive integer")
	ErrInvalidPrice       = errors.New("price must be positive")
	ErrInvalidAmount      = errors.New("amount must be positive")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrInsufficientShares = errors.New("insufficient shares")
)

// QuoteFetcher returns the live quote for a symbol.
type QuoteFetcher interface {
	FetchQuote(ctx context.Context, symbol string) (quote.Quote, error)
}

// Service executes simulated trades and values portfolios.
type Service struct {
	logger      *zap.Logger
	db          *gorm.DB
	quotes      QuoteFetcher
	publisher   events.Publisher
	concurrency int
	locks       *accountLocks
	now         func() time.Time
}

// NewService creates a new trading service.
func NewService(logger *zap.Logger, cfg *config.Trading, db *gorm.DB, quotes QuoteFetcher, publisher events.Publisher) *Service {
	concurrency := cfg.QuoteConcurrency
	if concurrency < 1 {
		concurrency = 1
	}
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &Service{
		logger:      logger.Named("trader"),
		db:          db,
		quotes:      quotes,
		publisher:   publisher,
		concurrency: concurrency,
		locks:       newAccountLocks(),
		now:         time.Now,
	}
}

// NormalizeSymbol trims and uppercases a ticker.
func NormalizeSymbol(symbol string) (string, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return "", ErrInvalidSymbol
	}
	return symbol, nil
}

// Quote looks up the live quote for symbol.
func (s *Service) Quote(ctx context.Context, symbol string) (quote.Quote, error) {
	symbol, err := NormalizeSymbol(symbol)
	if err != nil {
		return quote.Quote{}, err
	}
	return s.quotes.FetchQuote(ctx, symbol)
}

// BuyAtMarket buys shares at the current quote.
func (s *Service) BuyAtMarket(ctx context.Context, owner uint, symbol string, shares int64) (*models.Transaction, error) {
	if shares <= 0 {
		return nil, ErrInvalidQuantity
	}
	q, err := s.Quote(ctx, symbol)
	if err != nil {
		return nil, err
	}
	return s.Buy(ctx, owner, q.Symbol, shares, q.Price)
}

// SellAtMarket sells shares at the current quote.
func (s *Service) SellAtMarket(ctx context.Context, owner uint, symbol string, shares int64) (*models.Transaction, error) {
	if shares <= 0 {
		return nil, ErrInvalidQuantity
	}
	q, err := s.Quote(ctx, symbol)
	if err != nil {
		return nil, err
	}
	return s.Sell(ctx, owner, q.Symbol, shares, q.Price)
}

// Buy records a purchase of shares at livePrice and debits the account.
// Nothing is written unless the account can pay for the whole order.
func (s *Service) Buy(ctx context.Context, owner uint, symbol string, shares int64, livePrice decimal.Decimal) (*models.Transaction, error) {
	return s.trade(ctx, owner, symbol, shares, livePrice, true)
}

// Sell records a sale of shares at livePrice and credits the account.
// Nothing is written unless the owner holds at least shares of symbol.
func (s *Service) Sell(ctx context.Context, owner uint, symbol string, shares int64, livePrice decimal.Decimal) (*models.Transaction, error) {
	return s.trade(ctx, owner, symbol, shares, livePrice, false)
}

func (s *Service) trade(ctx context.Context, owner uint, symbol string, shares int64, livePrice decimal.Decimal, buy bool) (*models.Transaction, error) {
	symbol, err := NormalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}
	if shares <= 0 {
		return nil, ErrInvalidQuantity
	}
	if !livePrice.IsPositive() {
		return nil, ErrInvalidPrice
	}

	side := "SELL"
	if buy {
		side = "BUY"
	}
	l := s.logger.With(
		zap.Uint("owner", owner),
		zap.String("symbol", symbol),
		zap.String("side", side),
		zap.Int64("shares", shares),
		zap.String("price", livePrice.String()),
	)

	entry := &models.Transaction{
		Owner:     owner,
		Symbol:    symbol,
		Price:     livePrice,
		Amount:    shares,
		Timestamp: s.now(),
	}
	if !buy {
		entry.Amount = -shares
	}

	// Publishing happens after the account lock is released.
	err = s.commitTrade(ctx, entry, buy)
	if err != nil {
		l.Warn("Trade rejected", zap.Error(err))
		return nil, err
	}
	l.Info("Trade executed", zap.Uint("transaction_id", entry.ID))

	if err := s.publisher.PublishTrade(ctx, *entry); err != nil {
		// The trade is committed; the event stream is best effort.
		l.Error("Failed to publish trade event", zap.Error(err))
	}
	return entry, nil
}

// commitTrade validates and records entry under the owner's lock.
func (s *Service) commitTrade(ctx context.Context, entry *models.Transaction, buy bool) error {
	unlock := s.locks.lock(entry.Owner)
	defer unlock()

	shares := entry.Amount
	if !buy {
		shares = -shares
	}
	total := entry.Price.Mul(decimal.NewFromInt(shares))

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user, err := database.GetUser(tx, entry.Owner)
		if err != nil {
			return err
		}

		var cash decimal.Decimal
		if buy {
			if total.GreaterThan(user.Cash) {
				return ErrInsufficientFunds
			}
			cash = user.Cash.Sub(total)
		} else {
			ledger, err := database.ListTransactions(tx, entry.Owner)
			if err != nil {
				return err
			}
			if held := portfolio.NetPositions(ledger)[entry.Symbol]; shares > held {
				return ErrInsufficientShares
			}
			cash = user.Cash.Add(total)
		}

		if err := database.AppendTransaction(tx, entry); err != nil {
			return err
		}
		return database.UpdateCash(tx, user, cash)
	})
}

// Deposit credits amount to the account and returns the new balance.
func (s *Service) Deposit(ctx context.Context, owner uint, amount decimal.Decimal) (decimal.Decimal, error) {
	return s.adjustCash(ctx, owner, amount, true)
}

// Withdraw debits amount from the account and returns the new balance.
func (s *Service) Withdraw(ctx context.Context, owner uint, amount decimal.Decimal) (decimal.Decimal, error) {
	return s.adjustCash(ctx, owner, amount, false)
}

func (s *Service) adjustCash(ctx context.Context, owner uint, amount decimal.Decimal, credit bool) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}

	unlock := s.locks.lock(owner)
	defer unlock()

	var balance decimal.Decimal
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user, err := database.GetUser(tx, owner)
		if err != nil {
			return err
		}
		balance = user.Cash.Add(amount)
		if !credit {
			if amount.GreaterThan(user.Cash) {
				return ErrInsufficientFunds
			}
			balance = user.Cash.Sub(amount)
		}
		return database.UpdateCash(tx, user, balance)
	})
	if err != nil {
		return decimal.Zero, err
	}

	s.logger.Info("Cash balance updated",
		zap.Uint("owner", owner),
		zap.Bool("deposit", credit),
		zap.String("amount", amount.String()),
		zap.String("balance", balance.String()),
	)
	return balance, nil
}

// Portfolio values the owner's holdings at live prices.
func (s *Service) Portfolio(ctx context.Context, owner uint) (*portfolio.Summary, error) {
	var user *models.User
	var ledger []models.Transaction
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if user, err = database.GetUser(tx, owner); err != nil {
			return err
		}
		ledger, err = database.ListTransactions(tx, owner)
		return err
	})
	if err != nil {
		return nil, err
	}

	quotes, err := s.fetchQuotes(ctx, portfolio.HeldSymbols(ledger))
	if err != nil {
		return nil, err
	}

	summary, err := portfolio.Aggregate(ledger, quotes, user.Cash)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate portfolio for owner %d: %w", owner, err)
	}
	return &summary, nil
}

// fetchQuotes looks up symbols concurrently. The first failure cancels the rest.
func (s *Service) fetchQuotes(ctx context.Context, symbols []string) (map[string]quote.Quote, error) {
	results := make([]quote.Quote, len(symbols))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, symbol := range symbols {
		i, symbol := i, symbol
		g.Go(func() error {
			q, err := s.quotes.FetchQuote(gctx, symbol)
			if err != nil {
				return err
			}
			results[i] = q
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	quotes := make(map[string]quote.Quote, len(symbols))
	for i, symbol := range symbols {
		quotes[symbol] = results[i]
	}
	return quotes, nil
}

// Positions returns the symbols the owner can sell and how many shares of each.
func (s *Service) Positions(ctx context.Context, owner uint) ([]database.Position, error) {
	return database.OpenPositions(s.db.WithContext(ctx), owner)
}

// History returns the owner's ledger, newest first.
func (s *Service) History(ctx context.Context, owner uint) ([]models.Transaction, error) {
	return database.ListTransactionsNewestFirst(s.db.WithContext(ctx), owner)
}

// Cash returns the owner's current balance.
func (s *Service) Cash(ctx context.Context, owner uint) (decimal.Decimal, error) {
	user, err := database.GetUser(s.db.WithContext(ctx), owner)
	if err != nil {
		return decimal.Zero, err
	}
	return user.Cash, nil
}
