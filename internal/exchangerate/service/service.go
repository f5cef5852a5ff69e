package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/estate/internal/clock"
	"github.com/smallbiznis/estate/internal/config"
	"github.com/smallbiznis/estate/internal/events"
	"github.com/smallbiznis/estate/internal/exchangerate/domain"
	"github.com/smallbiznis/estate/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	sharedSnapshotKey = "estate:exchange_rates:snapshot"
	refreshTimeout    = 30 * time.Second
	failureBackoff    = 30 * time.Second
)

type Params struct {
	fx.In

	Log       *zap.Logger
	Clock     clock.Clock
	Pricing   *config.PricingConfigHolder
	Source    domain.Source
	Repo      domain.Repository
	Redis     *redis.Client    `optional:"true"`
	Metrics   *metrics.Metrics `optional:"true"`
	Publisher events.Publisher `optional:"true"`
}

// Service serves rates from the freshest of: process memory, the shared
// redis snapshot, and the persisted last-known-good table.
type Service struct {
	log       *zap.Logger
	clock     clock.Clock
	pricing   *config.PricingConfigHolder
	source    domain.Source
	repo      domain.Repository
	redis     *redis.Client
	metrics   *metrics.Metrics
	publisher events.Publisher

	current     atomic.Pointer[domain.Snapshot]
	group       singleflight.Group
	failMu      sync.Mutex
	lastFailure time.Time
}

func New(p Params) *Service {
	publisher := p.Publisher
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	return &Service{
		log:       p.Log.Named("exchangerate.service"),
		clock:     p.Clock,
		pricing:   p.Pricing,
		source:    p.Source,
		repo:      p.Repo,
		redis:     p.Redis,
		metrics:   p.Metrics,
		publisher: publisher,
	}
}

func (s *Service) Base() string {
	return strings.ToUpper(strings.TrimSpace(s.pricing.Get().BaseCurrency))
}

func (s *Service) Rate(ctx context.Context, currency string) (domain.Quote, error) {
	code := strings.ToUpper(strings.TrimSpace(currency))
	if code == s.Base() {
		return domain.Quote{Currency: code, Rate: decimal.NewFromInt(1), UpdatedAt: s.clock.Now()}, nil
	}

	snap, stale, err := s.snapshot(ctx)
	if err != nil {
		return domain.Quote{}, err
	}
	rate, ok := snap.Rates[code]
	if !ok {
		return domain.Quote{}, fmt.Errorf("%w: %s", domain.ErrRateUnavailable, code)
	}
	return domain.Quote{Currency: code, Rate: rate, UpdatedAt: snap.FetchedAt, Stale: stale}, nil
}

// Rates returns a copy of the current snapshot including the base currency.
func (s *Service) Rates(ctx context.Context) (*domain.Snapshot, error) {
	snap, _, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	out := *snap
	out.Rates = make(map[string]decimal.Decimal, len(snap.Rates)+1)
	for code, rate := range snap.Rates {
		out.Rates[code] = rate
	}
	out.Rates[snap.Base] = decimal.NewFromInt(1)
	return &out, nil
}

// SnapshotAge reports how old the in-use snapshot is without triggering a refresh.
func (s *Service) SnapshotAge(ctx context.Context) (time.Duration, bool) {
	snap := s.current.Load()
	if snap == nil {
		snap = s.loadStored(ctx)
	}
	if snap == nil {
		return 0, false
	}
	return snap.Age(s.clock.Now()), true
}

func (s *Service) snapshot(ctx context.Context) (*domain.Snapshot, bool, error) {
	cfg := s.pricing.Get().ExchangeRates
	now := s.clock.Now()
	base := s.Base()

	usable := func(snap *domain.Snapshot) bool {
		return snap != nil && snap.Base == base
	}
	fresh := func(snap *domain.Snapshot) bool {
		return usable(snap) && snap.Age(now) <= cfg.MaxAge
	}

	snap := s.current.Load()
	if fresh(snap) {
		return snap, false, nil
	}

	if shared := s.loadShared(ctx); usable(shared) && (!usable(snap) || shared.FetchedAt.After(snap.FetchedAt)) {
		snap = shared
		s.current.Store(shared)
		if fresh(snap) {
			return snap, false, nil
		}
	}

	if !usable(snap) {
		if stored := s.loadStored(ctx); usable(stored) {
			snap = stored
			s.current.Store(stored)
			if fresh(snap) {
				return snap, false, nil
			}
		}
	}

	refreshErr := s.recentFailure(now)
	if refreshErr == nil {
		refreshed, err := s.Refresh(ctx)
		if err == nil {
			return refreshed, false, nil
		}
		refreshErr = err
	}

	if usable(snap) && cfg.ServeStale {
		s.log.Warn("serving stale exchange rates",
			zap.Duration("age", snap.Age(now)),
			zap.Error(refreshErr),
		)
		return snap, true, nil
	}
	if errors.Is(refreshErr, domain.ErrUpstreamUnavailable) {
		return nil, false, refreshErr
	}
	return nil, false, fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, refreshErr)
}

func (s *Service) recentFailure(now time.Time) error {
	s.failMu.Lock()
	defer s.failMu.Unlock()
	if !s.lastFailure.IsZero() && now.Sub(s.lastFailure) < failureBackoff {
		return fmt.Errorf("%w: last refresh failed %s ago", domain.ErrUpstreamUnavailable, now.Sub(s.lastFailure).Truncate(time.Second))
	}
	return nil
}

func (s *Service) markFailure(failed bool) {
	s.failMu.Lock()
	if failed {
		s.lastFailure = s.clock.Now()
	} else {
		s.lastFailure = time.Time{}
	}
	s.failMu.Unlock()
}

// Refresh fetches a new snapshot from the source and makes it current.
// Concurrent callers share one upstream request.
func (s *Service) Refresh(ctx context.Context) (*domain.Snapshot, error) {
	result, err, _ := s.group.Do("refresh", func() (any, error) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
		defer cancel()
		return s.refresh(ctx)
	})
	if err != nil {
		return nil, err
	}
	return result.(*domain.Snapshot), nil
}

func (s *Service) refresh(ctx context.Context) (*domain.Snapshot, error) {
	sourceName := s.source.Name()

	fetched, err := s.source.Fetch(ctx)
	if err != nil {
		s.markFailure(true)
		s.metrics.RecordRateRefresh(ctx, sourceName, "error")
		s.log.Warn("exchange rate fetch failed", zap.String("source", sourceName), zap.Error(err))
		return nil, err
	}

	snap, err := s.normalize(fetched)
	if err != nil {
		s.markFailure(true)
		s.metrics.RecordRateRefresh(ctx, sourceName, "invalid")
		return nil, err
	}

	rows := make([]domain.ExchangeRate, 0, len(snap.Rates))
	for code, rate := range snap.Rates {
		rows = append(rows, domain.ExchangeRate{
			CurrencyCode: code,
			BaseCurrency: snap.Base,
			Rate:         rate,
			Source:       snap.Source,
			UpdatedAt:    snap.FetchedAt,
		})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].CurrencyCode < rows[j].CurrencyCode })
	if err := s.repo.UpsertAll(ctx, rows); err != nil {
		s.markFailure(true)
		s.metrics.RecordRateRefresh(ctx, sourceName, "error")
		return nil, fmt.Errorf("persist exchange rates: %w", err)
	}

	s.storeShared(ctx, snap)
	s.current.Store(snap)
	s.markFailure(false)
	s.metrics.RecordRateRefresh(ctx, sourceName, "ok")
	s.publisher.Publish(ctx, events.ExchangeRatesUpdated, map[string]any{
		"base":       snap.Base,
		"source":     snap.Source,
		"fetched_at": snap.FetchedAt,
		"currencies": len(snap.Rates),
	})
	s.log.Info("exchange rates refreshed",
		zap.String("source", sourceName),
		zap.Int("currencies", len(snap.Rates)),
	)
	return snap, nil
}

// normalize rebases the fetched table onto the configured base currency and
// drops non-positive rates.
func (s *Service) normalize(fetched *domain.Snapshot) (*domain.Snapshot, error) {
	base := s.Base()
	divisor := decimal.NewFromInt(1)
	if fetched.Base != "" && fetched.Base != base {
		rate, ok := fetched.Rates[base]
		if !ok || !rate.IsPositive() {
			return nil, fmt.Errorf("%w: source base %s cannot be rebased to %s", domain.ErrRateUnavailable, fetched.Base, base)
		}
		divisor = rate
	}

	rates := make(map[string]decimal.Decimal, len(fetched.Rates))
	for code, rate := range fetched.Rates {
		if !rate.IsPositive() {
			s.log.Warn("dropping non-positive exchange rate", zap.String("currency", code), zap.String("rate", rate.String()))
			continue
		}
		if code == base {
			continue
		}
		rates[code] = rate.DivRound(divisor, 8)
	}
	if fetched.Base != "" && fetched.Base != base {
		rates[fetched.Base] = decimal.NewFromInt(1).DivRound(divisor, 8)
	}
	if len(rates) == 0 {
		return nil, domain.ErrEmptySnapshot
	}

	return &domain.Snapshot{
		Base:      base,
		Source:    fetched.Source,
		FetchedAt: fetched.FetchedAt,
		Rates:     rates,
	}, nil
}

func (s *Service) loadShared(ctx context.Context) *domain.Snapshot {
	if s.redis == nil {
		return nil
	}
	raw, err := s.redis.Get(ctx, sharedSnapshotKey).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.log.Warn("failed to read shared exchange rates", zap.Error(err))
		}
		return nil
	}
	var snap domain.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		s.log.Warn("invalid shared exchange rate snapshot", zap.Error(err))
		return nil
	}
	return &snap
}

func (s *Service) storeShared(ctx context.Context, snap *domain.Snapshot) {
	if s.redis == nil {
		return
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		return
	}
	ttl := 4 * s.pricing.Get().ExchangeRates.MaxAge
	if err := s.redis.Set(ctx, sharedSnapshotKey, payload, ttl).Err(); err != nil {
		s.log.Warn("failed to publish shared exchange rates", zap.Error(err))
	}
}

func (s *Service) loadStored(ctx context.Context) *domain.Snapshot {
	rows, err := s.repo.List(ctx)
	if err != nil {
		s.log.Warn("failed to load stored exchange rates", zap.Error(err))
		return nil
	}
	if len(rows) == 0 {
		return nil
	}

	snap := &domain.Snapshot{
		Base:   rows[0].BaseCurrency,
		Source: rows[0].Source,
		Rates:  make(map[string]decimal.Decimal, len(rows)),
	}
	for _, row := range rows {
		if row.BaseCurrency != snap.Base {
			continue
		}
		snap.Rates[row.CurrencyCode] = row.Rate
		// The oldest row bounds the age of the whole table.
		if snap.FetchedAt.IsZero() || row.UpdatedAt.Before(snap.FetchedAt) {
			snap.FetchedAt = row.UpdatedAt.UTC()
		}
	}
	return snap
}

var _ domain.Provider = (*Service)(nil)
