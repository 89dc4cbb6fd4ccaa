package trader

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"stock-sim-go/internal/config"
	"stock-sim-go/internal/database"
	"stock-sim-go/internal/models"
	"stock-sim-go/internal/portfolio"
	"stock-sim-go/internal/quote"
)

// MockQuoteFetcher is a mock implementation of the QuoteFetcher interface.
type MockQuoteFetcher struct {
	mock.Mock
}

func (m *MockQuoteFetcher) FetchQuote(ctx context.Context, symbol string) (quote.Quote, error) {
	args := m.Called(ctx, symbol)
	q, _ := args.Get(0).(quote.Quote)
	return q, args.Error(1)
}

type recordingPublisher struct {
	mu     sync.Mutex
	trades []models.Transaction
	err    error
}

func (p *recordingPublisher) PublishTrade(ctx context.Context, t models.Transaction) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.trades = append(p.trades, t)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// setupTest creates a service backed by a fresh in-memory database and a
// single user holding the given cash.
func setupTest(t *testing.T, cash string) (*Service, *MockQuoteFetcher, *recordingPublisher, *gorm.DB, uint) {
	t.Helper()
	db, err := database.NewDatabase("file::memory:")
	require.NoError(t, err)

	user := &models.User{Username: "alice", Hash: "x", Cash: dec(cash)}
	require.NoError(t, db.Create(user).Error)

	fetcher := new(MockQuoteFetcher)
	publisher := &recordingPublisher{}
	svc := NewService(zap.NewNop(), &config.Trading{QuoteConcurrency: 2}, db, fetcher, publisher)
	svc.now = func() time.Time { return time.Date(2024, 3, 5, 15, 0, 0, 0, time.UTC) }
	return svc, fetcher, publisher, db, user.ID
}

func ledgerOf(t *testing.T, db *gorm.DB, owner uint) []models.Transaction {
	t.Helper()
	rows, err := database.ListTransactions(db, owner)
	require.NoError(t, err)
	return rows
}

func cashOf(t *testing.T, svc *Service, owner uint) decimal.Decimal {
	t.Helper()
	cash, err := svc.Cash(context.Background(), owner)
	require.NoError(t, err)
	return cash
}

func TestService_Buy(t *testing.T) {
	ctx := context.Background()

	t.Run("ExactlyAffordable", func(t *testing.T) {
		svc, _, publisher, db, owner := setupTest(t, "1000")

		entry, err := svc.Buy(ctx, owner, "aapl", 10, dec("99.99"))
		require.NoError(t, err)
		assert.Equal(t, "AAPL", entry.Symbol)
		assert.Equal(t, int64(10), entry.Amount)

		assert.True(t, dec("0.10").Equal(cashOf(t, svc, owner)), cashOf(t, svc, owner).String())
		rows := ledgerOf(t, db, owner)
		require.Len(t, rows, 1)
		assert.True(t, dec("99.99").Equal(rows[0].Price))
		require.Len(t, publisher.trades, 1)
		assert.Equal(t, entry.ID, publisher.trades[0].ID)
	})

	t.Run("OneCentShort", func(t *testing.T) {
		svc, _, publisher, db, owner := setupTest(t, "1000")

		_, err := svc.Buy(ctx, owner, "AAPL", 10, dec("100.01"))
		assert.ErrorIs(t, err, ErrInsufficientFunds)

		assert.True(t, dec("1000").Equal(cashOf(t, svc, owner)))
		assert.Empty(t, ledgerOf(t, db, owner))
		assert.Empty(t, publisher.trades)
	})

	t.Run("Validation", func(t *testing.T) {
		svc, _, _, db, owner := setupTest(t, "1000")

		_, err := svc.Buy(ctx, owner, "AAPL", 0, dec("10"))
		assert.ErrorIs(t, err, ErrInvalidQuantity)
		_, err = svc.Buy(ctx, owner, "AAPL", -1, dec("10"))
		assert.ErrorIs(t, err, ErrInvalidQuantity)
		_, err = svc.Buy(ctx, owner, "AAPL", 1, decimal.Zero)
		assert.ErrorIs(t, err, ErrInvalidPrice)
		_, err = svc.Buy(ctx, owner, "  ", 1, dec("10"))
		assert.ErrorIs(t, err, ErrInvalidSymbol)

		assert.Empty(t, ledgerOf(t, db, owner))
	})

	t.Run("UnknownOwner", func(t *testing.T) {
		svc, _, _, _, _ := setupTest(t, "1000")
		_, err := svc.Buy(ctx, 999, "AAPL", 1, dec("10"))
		assert.ErrorIs(t, err, database.ErrUserNotFound)
	})
}

func TestService_Sell(t *testing.T) {
	ctx := context.Background()
	svc, fetcher, _, db, owner := setupTest(t, "1000")

	_, err := svc.Buy(ctx, owner, "AAPL", 5, dec("100"))
	require.NoError(t, err)

	_, err = svc.Sell(ctx, owner, "AAPL", 6, dec("110"))
	assert.ErrorIs(t, err, ErrInsufficientShares)
	assert.Len(t, ledgerOf(t, db, owner), 1)
	assert.True(t, dec("500").Equal(cashOf(t, svc, owner)))

	_, err = svc.Sell(ctx, owner, "MSFT", 1, dec("110"))
	assert.ErrorIs(t, err, ErrInsufficientShares)

	entry, err := svc.Sell(ctx, owner, "AAPL", 5, dec("110"))
	require.NoError(t, err)
	assert.Equal(t, int64(-5), entry.Amount)
	assert.True(t, dec("1050").Equal(cashOf(t, svc, owner)))
	assert.Equal(t, int64(0), portfolio.NetPositions(ledgerOf(t, db, owner))["AAPL"])

	// A closed position is not looked up and not shown.
	summary, err := svc.Portfolio(ctx, owner)
	require.NoError(t, err)
	assert.Empty(t, summary.Holdings)
	fetcher.AssertNotCalled(t, "FetchQuote", mock.Anything, "AAPL")

	positions, err := svc.Positions(ctx, owner)
	require.NoError(t, err)
	assert.Empty(t, positions)
}

func TestService_ConcurrentSells(t *testing.T) {
	ctx := context.Background()
	svc, _, _, db, owner := setupTest(t, "1000")

	_, err := svc.Buy(ctx, owner, "AAPL", 5, dec("10"))
	require.NoError(t, err)

	const sellers = 8
	var wg sync.WaitGroup
	errs := make([]error, sellers)
	for i := 0; i < sellers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Sell(ctx, owner, "AAPL", 2, dec("10"))
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, ErrInsufficientShares)
	}
	assert.Equal(t, 2, succeeded)
	assert.Equal(t, int64(1), portfolio.NetPositions(ledgerOf(t, db, owner))["AAPL"])
	assert.True(t, dec("990").Equal(cashOf(t, svc, owner)))
}

func TestService_PublishFailureKeepsTrade(t *testing.T) {
	svc, _, publisher, db, owner := setupTest(t, "1000")
	publisher.err = errors.New("broker down")

	_, err := svc.Buy(context.Background(), owner, "AAPL", 1, dec("10"))
	require.NoError(t, err)
	assert.Len(t, ledgerOf(t, db, owner), 1)
	assert.True(t, dec("990").Equal(cashOf(t, svc, owner)))
}

func TestService_DepositWithdraw(t *testing.T) {
	ctx := context.Background()
	svc, _, _, _, owner := setupTest(t, "100")

	balance, err := svc.Deposit(ctx, owner, dec("50.25"))
	require.NoError(t, err)
	assert.True(t, dec("150.25").Equal(balance))

	balance, err = svc.Withdraw(ctx, owner, dec("150.25"))
	require.NoError(t, err)
	assert.True(t, balance.IsZero())

	_, err = svc.Withdraw(ctx, owner, dec("0.01"))
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	_, err = svc.Deposit(ctx, owner, decimal.Zero)
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = svc.Withdraw(ctx, owner, dec("-5"))
	assert.ErrorIs(t, err, ErrInvalidAmount)

	assert.True(t, cashOf(t, svc, owner).IsZero())
}

func TestService_Portfolio(t *testing.T) {
	ctx := context.Background()
	svc, fetcher, _, _, owner := setupTest(t, "10000")

	_, err := svc.Buy(ctx, owner, "AAPL", 10, dec("100"))
	require.NoError(t, err)
	_, err = svc.Buy(ctx, owner, "MSFT", 2, dec("300"))
	require.NoError(t, err)

	fetcher.On("FetchQuote", mock.Anything, "AAPL").Return(quote.Quote{Symbol: "AAPL", CompanyName: "Apple Inc.", Price: dec("110")}, nil).Once()
	fetcher.On("FetchQuote", mock.Anything, "MSFT").Return(quote.Quote{Symbol: "MSFT", CompanyName: "Microsoft", Price: dec("300")}, nil).Once()

	summary, err := svc.Portfolio(ctx, owner)
	require.NoError(t, err)
	require.Len(t, summary.Holdings, 2)
	assert.Equal(t, "AAPL", summary.Holdings[0].Symbol)
	assert.Equal(t, "Apple Inc.", summary.Holdings[0].Name)
	assert.True(t, dec("8400").Equal(summary.Totals.Cash))
	assert.True(t, dec("1700").Equal(summary.Totals.HoldingsValue))
	assert.True(t, dec("100").Equal(summary.Totals.Performance))
	fetcher.AssertExpectations(t)
}

func TestService_PortfolioQuoteFailure(t *testing.T) {
	ctx := context.Background()
	svc, fetcher, _, _, owner := setupTest(t, "10000")

	_, err := svc.Buy(ctx, owner, "AAPL", 1, dec("100"))
	require.NoError(t, err)

	fetcher.On("FetchQuote", mock.Anything, "AAPL").
		Return(nil, &quote.Error{Symbol: "AAPL", Err: quote.ErrProviderUnavailable})

	_, err = svc.Portfolio(ctx, owner)
	assert.ErrorIs(t, err, quote.ErrProviderUnavailable)
}

func TestService_AtMarket(t *testing.T) {
	ctx := context.Background()
	svc, fetcher, _, _, owner := setupTest(t, "1000")

	fetcher.On("FetchQuote", mock.Anything, "NVDA").Return(quote.Quote{Symbol: "NVDA", Price: dec("120.50")}, nil)
	fetcher.On("FetchQuote", mock.Anything, "ZZZZ").Return(nil, &quote.Error{Symbol: "ZZZZ", Err: quote.ErrNotFound})

	entry, err := svc.BuyAtMarket(ctx, owner, " nvda ", 2)
	require.NoError(t, err)
	assert.True(t, dec("120.50").Equal(entry.Price))
	assert.True(t, dec("759").Equal(cashOf(t, svc, owner)))

	entry, err = svc.SellAtMarket(ctx, owner, "NVDA", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(-1), entry.Amount)

	_, err = svc.BuyAtMarket(ctx, owner, "ZZZZ", 1)
	assert.ErrorIs(t, err, quote.ErrNotFound)

	// Invalid share counts are rejected before any lookup.
	_, err = svc.SellAtMarket(ctx, owner, "MSFT", 0)
	assert.ErrorIs(t, err, ErrInvalidQuantity)
	fetcher.AssertNotCalled(t, "FetchQuote", mock.Anything, "MSFT")
}

func TestService_History(t *testing.T) {
	ctx := context.Background()
	svc, _, _, _, owner := setupTest(t, "1000")

	_, err := svc.Buy(ctx, owner, "AAPL", 1, dec("10"))
	require.NoError(t, err)
	_, err = svc.Buy(ctx, owner, "MSFT", 1, dec("20"))
	require.NoError(t, err)

	history, err := svc.History(ctx, owner)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "MSFT", history[0].Symbol)
	assert.Equal(t, "AAPL", history[1].Symbol)
}

func TestAccountLocks_Released(t *testing.T) {
	locks := newAccountLocks()
	unlock := locks.lock(1)
	assert.Len(t, locks.locks, 1)
	unlock()
	assert.Empty(t, locks.locks)
}

// blockingPublisher holds PublishTrade until released.
type blockingPublisher struct {
	started chan struct{}
	release chan struct{}
}

func (p *blockingPublisher) PublishTrade(ctx context.Context, t models.Transaction) error {
	close(p.started)
	<-p.release
	return nil
}

func (p *blockingPublisher) Close() error { return nil }

func TestService_SlowPublisherDoesNotHoldAccount(t *testing.T) {
	ctx := context.Background()
	svc, _, _, _, owner := setupTest(t, "1000")
	publisher := &blockingPublisher{started: make(chan struct{}), release: make(chan struct{})}
	svc.publisher = publisher

	bought := make(chan error, 1)
	go func() {
		_, err := svc.Buy(ctx, owner, "AAPL", 1, dec("10"))
		bought <- err
	}()
	<-publisher.started

	deposited := make(chan error, 1)
	go func() {
		_, err := svc.Deposit(ctx, owner, dec("5"))
		deposited <- err
	}()

	select {
	case err := <-deposited:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		close(publisher.release)
		t.Fatal("deposit waited for the trade event to be published")
	}

	close(publisher.release)
	require.NoError(t, <-bought)
	assert.True(t, dec("995").Equal(cashOf(t, svc, owner)))
}

func TestService_DepositKeepsExactBalance(t *testing.T) {
	ctx := context.Background()
	svc, _, _, _, owner := setupTest(t, "0")

	balance, err := svc.Deposit(ctx, owner, dec("1234567890123.4567"))
	require.NoError(t, err)
	assert.True(t, balance.Equal(cashOf(t, svc, owner)), cashOf(t, svc, owner).String())
}
