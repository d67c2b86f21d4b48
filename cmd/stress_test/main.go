package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rl1809/flower-auction/internal/adapter/storage"
	"github.com/rl1809/flower-auction/internal/core/domain"
	"github.com/rl1809/flower-auction/internal/core/service"
	"github.com/rl1809/flower-auction/internal/port"
)

// maxAttempts bounds client retries after a version conflict.
const maxAttempts = 100

type options struct {
	bidders int
	stock   int
	driver  string
}

func main() {
	var opts options
	cmd := &cobra.Command{
		Use:          "stress_test",
		Short:        "Race concurrent bidders for the last units of one product",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts)
		},
	}
	cmd.Flags().IntVar(&opts.bidders, "bidders", 50, "concurrent bidders, one unit each")
	cmd.Flags().IntVar(&opts.stock, "stock", 20, "units on the clock")
	cmd.Flags().StringVar(&opts.driver, "store", "sqlite", "store: sqlite or memory")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options) error {
	store, cleanup, err := openStore(ctx, opts.driver)
	if err != nil {
		return err
	}
	defer cleanup()

	events := service.NewEventQueue(opts.bidders*2+16, zap.NewNop())
	deps := service.Deps{Store: store, Cache: storage.NewMemoryCache(), Events: events}
	products := service.NewProductService(deps)
	clocks := service.NewClockService(deps)
	placement := service.NewPlacementService(deps)

	price := decimal.RequireFromString("0.50")
	product, err := products.CreateProduct(ctx, service.CreateProductInput{
		GrowerID: "grower-stress", Name: "Rose Red Naomi", MinimumPrice: price, Stock: opts.stock,
	})
	if err != nil {
		return err
	}
	clock, err := clocks.CreateAuctionClock(ctx, service.CreateClockInput{
		OwnerID:         "auctioneer-stress",
		ScheduledAt:     time.Now().Add(time.Minute),
		DurationSeconds: 60,
		Region:          "Noord-Holland",
		Country:         "NL",
		Items:           []service.ClockItem{{ProductID: product.ID, AuctionPrice: price}},
	})
	if err != nil {
		return err
	}
	if _, err := clocks.TransitionClockStatus(ctx, clock.ID, domain.ClockStatusStarted, clock.Version); err != nil {
		return err
	}

	// Counters
	var (
		successCount  atomic.Int32
		soldOutCount  atomic.Int32
		conflictCount atomic.Int32
		otherCount    atomic.Int32
	)

	// Spawn concurrent bidders
	var wg sync.WaitGroup
	start := time.Now()
	for i := 0; i < opts.bidders; i++ {
		wg.Add(1)
		go func(bidder int) {
			defer wg.Done()
			in := service.PlaceBidInput{
				RequestID:    fmt.Sprintf("stress-%d", bidder),
				BuyerID:      fmt.Sprintf("buyer-%d", bidder),
				ClockID:      clock.ID,
				ProductID:    product.ID,
				Quantity:     1,
				OfferedPrice: price,
			}
			for attempt := 0; attempt < maxAttempts; attempt++ {
				_, err := placement.PlaceBid(ctx, in)
				switch {
				case err == nil:
					successCount.Add(1)
					return
				case errors.Is(err, domain.ErrConcurrencyConflict):
					conflictCount.Add(1)
					continue
				case errors.Is(err, domain.ErrValidation):
					soldOutCount.Add(1)
					return
				default:
					otherCount.Add(1)
					return
				}
			}
			otherCount.Add(1)
		}(i)
	}
	wg.Wait()
	elapsed := time.Since(start)

	final, err := products.GetProduct(ctx, product.ID)
	if err != nil {
		return err
	}

	// Results
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.SetTitle("STRESS TEST RESULTS")
	tw.AppendHeader(table.Row{"Metric", "Value"})
	tw.AppendRows([]table.Row{
		{"Store", opts.driver},
		{"Initial stock", opts.stock},
		{"Bidders", opts.bidders},
		{"Successful bids", successCount.Load()},
		{"Sold out", soldOutCount.Load()},
		{"Version conflicts retried", conflictCount.Load()},
		{"Other failures", otherCount.Load()},
		{"Final stock", final.Stock},
		{"Product version", final.Version},
		{"Duration", elapsed.Round(time.Millisecond)},
	})
	tw.Render()

	// Assertions
	expectedSold := min(opts.stock, opts.bidders)
	if int(successCount.Load()) != expectedSold || final.Stock != opts.stock-expectedSold {
		fmt.Printf("FAIL: expected %d sold and stock %d, got %d sold and stock %d\n",
			expectedSold, opts.stock-expectedSold, successCount.Load(), final.Stock)
		return errors.New("oversell or undersell detected")
	}
	fmt.Printf("PASS: exactly %d units sold, stock %d\n", expectedSold, final.Stock)
	return nil
}

func openStore(ctx context.Context, driver string) (port.Store, func(), error) {
	switch driver {
	case "memory":
		return storage.NewMemoryStore(), func() {}, nil
	case "sqlite":
		dir, err := os.MkdirTemp("", "auction-stress-*")
		if err != nil {
			return nil, nil, err
		}
		db, err := storage.OpenSQLite(ctx, filepath.Join(dir, "stress.db"))
		if err != nil {
			os.RemoveAll(dir)
			return nil, nil, err
		}
		cleanup := func() {
			db.Close()
			os.RemoveAll(dir)
		}
		if _, err := storage.Migrate(ctx, db, storage.DialectSQLite); err != nil {
			cleanup()
			return nil, nil, err
		}
		return storage.NewSQLStore(db, storage.DialectSQLite), cleanup, nil
	default:
		return nil, nil, fmt.Errorf("unknown store %q", driver)
	}
}
