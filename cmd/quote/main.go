package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"stock-sim-go/internal/config"
	"stock-sim-go/internal/logger"
	"stock-sim-go/internal/quote"
	"stock-sim-go/internal/yahoo"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: quote SYMBOL [SYMBOL...]")
		os.Exit(2)
	}

	cfg, err := config.LoadConfig("./configs")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(cfg.Logger.Level, cfg.Logger.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	calendar, err := quote.NewCalendar(cfg.Market)
	if err != nil {
		log.Fatal("Invalid market calendar", zap.Error(err))
	}
	normalizer := quote.NewNormalizer(yahoo.NewRestClient(&cfg.Provider, log), calendar, cfg.Trading.Currency, log)

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Provider.TimeoutSeconds*len(os.Args))*time.Second)
	defer cancel()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SYMBOL\tNAME\tPRICE\tCHANGE\tVOLUME\tMARKET")
	failed := false
	for _, symbol := range os.Args[1:] {
		symbol = strings.ToUpper(strings.TrimSpace(symbol))
		if symbol == "" {
			continue
		}
		q, err := normalizer.FetchQuote(ctx, symbol)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			failed = true
			continue
		}
		change := q.Change.StringFixed(2)
		if q.Change.IsPositive() {
			change = "+" + change
		}
		market := "Closed"
		if q.MarketOpen {
			market = "Open"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s (%s%%)\t%s\t%s\n",
			q.Symbol,
			q.CompanyName,
			quote.FormatMoney(q.Price, q.Currency),
			change,
			q.ChangePercent.StringFixed(2),
			quote.Humanize(decimal.NewFromInt(q.Volume)),
			market,
		)
	}
	w.Flush()

	if failed {
		os.Exit(1)
	}
}
