// Package poller reads external state (transfers, prices, mentions) and
// compares it against the memory store to find what is new.
package poller

import (
	"context"
	"math"
	"slices"
	"time"

	"guardian-sentinel-bot/internal/memory"
	"guardian-sentinel-bot/internal/metrics"
	"guardian-sentinel-bot/internal/price"
	"guardian-sentinel-bot/internal/types"
	"guardian-sentinel-bot/lib/helpers"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

const (
	DefaultLimit               = 5
	DefaultVolatilityThreshold = 2.0
)

type TransferSource interface {
	RecentTransfers(ctx context.Context, target types.WatchTarget, limit int) ([]types.TransferEvent, error)
}

type PriceSource interface {
	SpotPrice(ctx context.Context) (price.PriceInfo, error)
}

type MentionSource interface {
	Mentions(ctx context.Context, afterID int64) ([]types.Mention, error)
	SelfID() int64
}

// MentionHandler answers a single direct mention.
type MentionHandler func(ctx context.Context, m types.Mention) error

type Options struct {
	Targets   []types.WatchTarget
	VIPs      []types.VipEntry
	Transfers TransferSource
	Prices    PriceSource
	Mentions  MentionSource
	Memory    *memory.Store
	Metrics   *metrics.Metrics
	// Limit is the number of recent transfers fetched per target.
	Limit int
	// VolatilityThreshold is the absolute price change, in percent, that
	// produces a market signal.
	VolatilityThreshold float64
	Now                 func() time.Time
}

type Poller struct {
	targets   []types.WatchTarget
	vips      []types.VipEntry
	transfers TransferSource
	prices    PriceSource
	mentions  MentionSource
	memory    *memory.Store
	metrics   *metrics.Metrics
	limit     int
	threshold float64
	now       func() time.Time
}

func New(opts Options) *Poller {
	p := &Poller{
		targets:   opts.Targets,
		vips:      opts.VIPs,
		transfers: opts.Transfers,
		prices:    opts.Prices,
		mentions:  opts.Mentions,
		memory:    opts.Memory,
		metrics:   opts.Metrics,
		limit:     opts.Limit,
		threshold: opts.VolatilityThreshold,
		now:       opts.Now,
	}
	if p.limit <= 0 {
		p.limit = DefaultLimit
	}
	if p.threshold <= 0 {
		p.threshold = DefaultVolatilityThreshold
	}
	if p.metrics == nil {
		p.metrics = metrics.New()
	}
	if p.now == nil {
		p.now = time.Now
	}
	return p
}

// ScanTransfers records every new transfer in the ledger and returns the ones
// worth analyzing, oldest first. A failing target is logged and skipped.
func (p *Poller) ScanTransfers(ctx context.Context) ([]types.Candidate, error) {
	known := p.memory.Snapshot()
	// threshold of the target each new event came from, keyed by tx id
	thresholds := make(map[string]decimal.Decimal)
	var fresh []types.TransferEvent

	for _, target := range p.targets {
		events, err := p.transfers.RecentTransfers(ctx, target, p.limit)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			p.metrics.UpstreamErrors.WithLabelValues("indexer").Inc()
			log.Warnf("⚠️ Could not fetch transfers for %s: %v", target.Name, err)
			continue
		}

		// indexer order is newest first
		for i := len(events) - 1; i >= 0; i-- {
			ev := events[i]
			if _, dup := thresholds[ev.TxID]; dup || ev.TxID == "" || known.HasHandled(ev.TxID) {
				continue
			}
			thresholds[ev.TxID] = target.AlertThreshold

			amount, err := scale(ev.RawAmount, target.Decimals)
			if err != nil {
				log.Warnf("⚠️ Bad amount %q in tx %s: %v", ev.RawAmount, ev.TxID, err)
			}
			ev.Amount = amount
			fresh = append(fresh, ev)
		}
	}

	var recorded []types.TransferEvent
	err := p.memory.Update(func(r *memory.Record) error {
		recorded = recorded[:0]
		for _, ev := range fresh {
			if r.MarkHandled(ev.TxID) {
				recorded = append(recorded, ev)
			}
		}
		r.Stats.TotalScans++
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "could not record handled transfers")
	}

	p.metrics.ScansTotal.Inc()
	p.metrics.EventsSeen.Add(float64(len(recorded)))

	var candidates []types.Candidate
	for _, ev := range recorded {
		vip := types.FindVIP(p.vips, ev.From)
		if vip == nil && !ev.Amount.GreaterThan(thresholds[ev.TxID]) {
			log.Debugf("Transfer %s of %s %s is below threshold", ev.TxID, helpers.FormatAmount(ev.Amount), ev.Token)
			continue
		}
		candidates = append(candidates, types.Candidate{Event: ev, VIP: vip})
	}

	if len(recorded) > 0 {
		log.Infof("🔄 Transfer scan: %d new, %d qualifying", len(recorded), len(candidates))
	}
	return candidates, nil
}

// scale converts a raw integer amount to token units.
func scale(raw string, decimals int32) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, err
	}
	return d.Shift(-decimals), nil
}

// ScanPrice records the current spot price and returns a signal when it moved
// at least the volatility threshold since the previous observation.
func (p *Poller) ScanPrice(ctx context.Context) (*types.MarketSignal, error) {
	info, err := p.prices.SpotPrice(ctx)
	if err != nil {
		p.metrics.UpstreamErrors.WithLabelValues("price").Inc()
		return nil, errors.Wrap(err, "spot price")
	}

	var previous float64
	err = p.memory.Update(func(r *memory.Record) error {
		previous = r.Market.LastPrice
		r.ObservePrice(p.now().UTC(), info.PriceUSD)
		if !info.FetchedAt.IsZero() {
			r.ObserveChange(info.FetchedAt, info.PriceChange24h)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "could not record price")
	}
	p.metrics.LastPrice.Set(info.PriceUSD)

	if previous <= 0 {
		log.Infof("📈 First price observation: $%s", helpers.FormatPriceUS(info.PriceUSD))
		return nil, nil
	}

	change := (info.PriceUSD - previous) / previous * 100
	if math.Abs(change) < p.threshold {
		log.Debugf("Price %s -> %s (%s), below threshold", helpers.FormatPriceUS(previous), helpers.FormatPriceUS(info.PriceUSD), helpers.FormatPercent(change))
		return nil, nil
	}

	token := info.Symbol
	if token == "" {
		token = info.ID
	}
	signal := &types.MarketSignal{
		Token:         token,
		PreviousPrice: previous,
		CurrentPrice:  info.PriceUSD,
		ChangePercent: change,
	}
	log.Infof("⚡ %s moved %s in one scan", token, helpers.FormatPercent(change))
	return signal, nil
}

// ScanMentions hands every direct mention newer than the cursor to handle,
// oldest first. The cursor moves past each mention whatever the outcome.
func (p *Poller) ScanMentions(ctx context.Context, handle MentionHandler) (int, error) {
	cursor := p.memory.Snapshot().Mentions.LastID

	mentions, err := p.mentions.Mentions(ctx, cursor)
	if err != nil {
		p.metrics.UpstreamErrors.WithLabelValues("social").Inc()
		return 0, errors.Wrap(err, "mentions")
	}
	slices.SortFunc(mentions, func(a, b types.Mention) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})

	self := p.mentions.SelfID()
	handled := 0
	for _, m := range mentions {
		if m.ID <= cursor {
			continue
		}
		if err := ctx.Err(); err != nil {
			return handled, err
		}

		result := "replied"
		switch {
		case m.AuthorID == self:
			result = "self"
		case !m.Direct:
			result = "ignored"
		default:
			if err := handle(ctx, m); err != nil {
				result = "failed"
				log.Warnf("⚠️ Could not answer mention %d from %s: %v", m.ID, m.Author, err)
			} else {
				handled++
			}
		}
		p.metrics.Mentions.WithLabelValues(result).Inc()

		if err := p.memory.Update(func(r *memory.Record) error {
			r.AdvanceMention(m.ID)
			return nil
		}); err != nil {
			return handled, errors.Wrapf(err, "could not advance mention cursor to %d", m.ID)
		}
		cursor = m.ID
	}
	return handled, nil
}
