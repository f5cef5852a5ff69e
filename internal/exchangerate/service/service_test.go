package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/estate/internal/clock"
	"github.com/smallbiznis/estate/internal/config"
	"github.com/smallbiznis/estate/internal/events"
	"github.com/smallbiznis/estate/internal/exchangerate/domain"
	"github.com/smallbiznis/estate/internal/exchangerate/repository"
	"github.com/smallbiznis/estate/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSource struct {
	clock *clock.FakeClock
	calls atomic.Int32
	delay time.Duration

	mu    sync.Mutex
	base  string
	rates map[string]string
	err   error
}

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) Fetch(context.Context) (*domain.Snapshot, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	rates := make(map[string]decimal.Decimal, len(f.rates))
	for code, raw := range f.rates {
		rates[code] = decimal.RequireFromString(raw)
	}
	return &domain.Snapshot{Base: f.base, Source: "fake", FetchedAt: f.clock.Now(), Rates: rates}, nil
}

func (f *fakeSource) fail(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

type fixture struct {
	svc       *Service
	source    *fakeSource
	clock     *clock.FakeClock
	repo      domain.Repository
	pricing   *config.PricingConfigHolder
	publisher *events.Recorder
}

func newFixture(t *testing.T, mutate func(*config.PricingConfig), client *redis.Client) *fixture {
	t.Helper()
	db := testutil.OpenDB(t, &domain.ExchangeRate{})
	clk := clock.NewFakeClock(time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC))

	cfg := config.DefaultPricingConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	pricing := config.NewStaticPricingConfigHolder(cfg)
	src := &fakeSource{clock: clk, base: "USD", rates: map[string]string{"SAR": "3.75", "AED": "3.6725", "JPY": "150.2"}}
	repo := repository.Provide(db)
	rec := &events.Recorder{}

	svc := New(Params{
		Log:       zap.NewNop(),
		Clock:     clk,
		Pricing:   pricing,
		Source:    src,
		Repo:      repo,
		Redis:     client,
		Publisher: rec,
	})
	return &fixture{svc: svc, source: src, clock: clk, repo: repo, pricing: pricing, publisher: rec}
}

func TestRateBaseCurrencyIsParity(t *testing.T) {
	f := newFixture(t, nil, nil)
	quote, err := f.svc.Rate(context.Background(), "usd")
	require.NoError(t, err)
	assert.True(t, quote.Rate.Equal(decimal.NewFromInt(1)))
	assert.Zero(t, f.source.calls.Load())
}

func TestRateRefreshesOnFirstUseAndPersists(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()

	quote, err := f.svc.Rate(ctx, "SAR")
	require.NoError(t, err)
	assert.True(t, quote.Rate.Equal(decimal.RequireFromString("3.75")))
	assert.False(t, quote.Stale)

	rows, err := f.repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, rows, 3)
	assert.Equal(t, []string{events.ExchangeRatesUpdated}, f.publisher.Types())

	_, err = f.svc.Rate(ctx, "AED")
	require.NoError(t, err)
	assert.Equal(t, int32(1), f.source.calls.Load())
}

func TestRateMissingCurrency(t *testing.T) {
	f := newFixture(t, nil, nil)
	_, err := f.svc.Rate(context.Background(), "EGP")
	assert.ErrorIs(t, err, domain.ErrRateUnavailable)
}

func TestRateServesStaleSnapshotWhenUpstreamFails(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()

	_, err := f.svc.Rate(ctx, "SAR")
	require.NoError(t, err)

	f.clock.Advance(7 * time.Hour)
	f.source.fail(errors.New("connection refused"))

	quote, err := f.svc.Rate(ctx, "SAR")
	require.NoError(t, err)
	assert.True(t, quote.Stale)
	assert.True(t, quote.Rate.Equal(decimal.RequireFromString("3.75")))
}

func TestRateWithoutStaleServingFails(t *testing.T) {
	f := newFixture(t, func(cfg *config.PricingConfig) { cfg.ExchangeRates.ServeStale = false }, nil)
	ctx := context.Background()

	_, err := f.svc.Rate(ctx, "SAR")
	require.NoError(t, err)

	f.clock.Advance(7 * time.Hour)
	f.source.fail(errors.New("timeout"))

	_, err = f.svc.Rate(ctx, "SAR")
	assert.ErrorIs(t, err, domain.ErrUpstreamUnavailable)
}

func TestRateWithNoSnapshotAndUpstreamDown(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.source.fail(errors.New("dns failure"))

	_, err := f.svc.Rate(context.Background(), "SAR")
	assert.ErrorIs(t, err, domain.ErrUpstreamUnavailable)
}

func TestFailedRefreshBacksOff(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.source.fail(errors.New("down"))
	ctx := context.Background()

	_, _ = f.svc.Rate(ctx, "SAR")
	_, _ = f.svc.Rate(ctx, "SAR")
	assert.Equal(t, int32(1), f.source.calls.Load())

	f.clock.Advance(time.Minute)
	_, _ = f.svc.Rate(ctx, "SAR")
	assert.Equal(t, int32(2), f.source.calls.Load())
}

func TestRateLoadsPersistedSnapshotAfterRestart(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()
	_, err := f.svc.Refresh(ctx)
	require.NoError(t, err)

	restarted := New(Params{
		Log:     zap.NewNop(),
		Clock:   f.clock,
		Pricing: f.pricing,
		Source:  f.source,
		Repo:    f.repo,
	})
	quote, err := restarted.Rate(ctx, "JPY")
	require.NoError(t, err)
	assert.True(t, quote.Rate.Equal(decimal.RequireFromString("150.2")))
	assert.Equal(t, int32(1), f.source.calls.Load())
}

func TestConcurrentRefreshIsCollapsed(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.source.delay = 50 * time.Millisecond

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = f.svc.Refresh(context.Background())
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), f.source.calls.Load())
}

func TestRefreshRebasesForeignBase(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.source.base = "EUR"
	f.source.rates = map[string]string{"USD": "1.25", "SAR": "4.6875"}

	snap, err := f.svc.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "USD", snap.Base)
	assert.Equal(t, "3.75", snap.Rates["SAR"].String())
	assert.Equal(t, "0.8", snap.Rates["EUR"].String())
	assert.NotContains(t, snap.Rates, "USD")
}

func TestRefreshDropsNonPositiveRates(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.source.rates = map[string]string{"SAR": "3.75", "EGP": "0", "JOD": "-1"}

	snap, err := f.svc.Refresh(context.Background())
	require.NoError(t, err)
	assert.Len(t, snap.Rates, 1)
}

func TestSharedSnapshotAcrossReplicas(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	first := newFixture(t, nil, client)
	_, err := first.svc.Refresh(context.Background())
	require.NoError(t, err)

	second := newFixture(t, nil, client)
	second.clock.Set(first.clock.Now())
	quote, err := second.svc.Rate(context.Background(), "AED")
	require.NoError(t, err)
	assert.True(t, quote.Rate.Equal(decimal.RequireFromString("3.6725")))
	assert.Zero(t, second.source.calls.Load())
}

func TestSnapshotAge(t *testing.T) {
	f := newFixture(t, nil, nil)
	_, ok := f.svc.SnapshotAge(context.Background())
	assert.False(t, ok)

	_, err := f.svc.Refresh(context.Background())
	require.NoError(t, err)
	f.clock.Advance(90 * time.Second)

	age, ok := f.svc.SnapshotAge(context.Background())
	assert.True(t, ok)
	assert.Equal(t, 90*time.Second, age)
}
