// Package sentinel runs the poll, analyze and publish tasks on their own
// timers until the context is cancelled.
package sentinel

import (
	"bytes"
	"context"
	"runtime"
	"time"

	"guardian-sentinel-bot/internal/memory"
	"guardian-sentinel-bot/internal/metrics"
	"guardian-sentinel-bot/internal/poller"
	"guardian-sentinel-bot/internal/publisher"
	"guardian-sentinel-bot/internal/types"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const DefaultBriefingPeriod = 24 * time.Hour

// Intervals between runs of each task.
type Intervals struct {
	Whale    time.Duration
	Price    time.Duration
	Briefing time.Duration
	Mentions time.Duration
}

func DefaultIntervals() Intervals {
	return Intervals{
		Whale:    15 * time.Second,
		Price:    60 * time.Second,
		Briefing: 10 * time.Minute,
		Mentions: 120 * time.Second,
	}
}

type Platform interface {
	Identity(ctx context.Context) (string, error)
	Reply(ctx context.Context, m types.Mention, text string) error
}

type Scanner interface {
	ScanTransfers(ctx context.Context) ([]types.Candidate, error)
	ScanPrice(ctx context.Context) (*types.MarketSignal, error)
	ScanMentions(ctx context.Context, handle poller.MentionHandler) (int, error)
}

type Analyzer interface {
	AnalyzeTransfer(ctx context.Context, c types.Candidate) types.Decision
	AnalyzeMarket(ctx context.Context, s types.MarketSignal) types.Decision
	Reply(ctx context.Context, m types.Mention) string
}

type Publisher interface {
	Publish(ctx context.Context, d publisher.Draft) (publisher.Outcome, error)
}

// AlertLog is the database mirror of published alerts.
type AlertLog interface {
	CountAlertsSince(since time.Time) (map[string]int, error)
	RecentAlerts(limit int) ([]memory.AlertEntry, error)
}

type ChartRenderer interface {
	RenderPriceHistory(symbol string, points []memory.PricePoint) ([]byte, error)
}

type Options struct {
	Platform  Platform
	Scanner   Scanner
	Analyzer  Analyzer
	Publisher Publisher
	Memory    *memory.Store
	Alerts    AlertLog
	Charts    ChartRenderer
	Metrics   *metrics.Metrics
	Intervals Intervals
	// Symbol names the tracked coin in briefings.
	Symbol         string
	BriefingPeriod time.Duration
	Now            func() time.Time
}

type Sentinel struct {
	platform  Platform
	scanner   Scanner
	analyzer  Analyzer
	publisher Publisher
	memory    *memory.Store
	alerts    AlertLog
	charts    ChartRenderer
	metrics   *metrics.Metrics
	intervals Intervals
	symbol    string
	period    time.Duration
	now       func() time.Time
}

func New(opts Options) *Sentinel {
	s := &Sentinel{
		platform:  opts.Platform,
		scanner:   opts.Scanner,
		analyzer:  opts.Analyzer,
		publisher: opts.Publisher,
		memory:    opts.Memory,
		alerts:    opts.Alerts,
		charts:    opts.Charts,
		metrics:   opts.Metrics,
		intervals: opts.Intervals,
		symbol:    opts.Symbol,
		period:    opts.BriefingPeriod,
		now:       opts.Now,
	}

	def := DefaultIntervals()
	if s.intervals.Whale <= 0 {
		s.intervals.Whale = def.Whale
	}
	if s.intervals.Price <= 0 {
		s.intervals.Price = def.Price
	}
	if s.intervals.Briefing <= 0 {
		s.intervals.Briefing = def.Briefing
	}
	if s.intervals.Mentions <= 0 {
		s.intervals.Mentions = def.Mentions
	}
	if s.period <= 0 {
		s.period = DefaultBriefingPeriod
	}
	if s.metrics == nil {
		s.metrics = metrics.New()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

type task struct {
	name  string
	every time.Duration
	run   func(ctx context.Context) error
}

func (s *Sentinel) tasks() []task {
	return []task{
		{name: "whale", every: s.intervals.Whale, run: s.WhaleScan},
		{name: "price", every: s.intervals.Price, run: s.PriceScan},
		{name: "briefing", every: s.intervals.Briefing, run: s.Briefing},
		{name: "mentions", every: s.intervals.Mentions, run: s.MentionScan},
	}
}

// Run verifies the platform identity, runs every task once and then keeps
// them on their schedules. It returns nil after ctx is cancelled, or the
// identity error.
func (s *Sentinel) Run(ctx context.Context) error {
	name, err := s.platform.Identity(ctx)
	if err != nil {
		return errors.Wrap(err, "identity verification failed")
	}
	log.Infof("🚀 Guardian sentinel online as @%s", name)

	tasks := s.tasks()
	for _, t := range tasks {
		s.runOnce(ctx, t)
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, t := range tasks {
		g.Go(func() error {
			s.schedule(ctx, t)
			return nil
		})
	}

	err = g.Wait()
	log.Info("🛑 Sentinel stopped")
	return err
}

func (s *Sentinel) schedule(ctx context.Context, t task) {
	ticker := time.NewTicker(t.every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx, t)
		}
	}
}

func (s *Sentinel) runOnce(ctx context.Context, t task) {
	defer func() {
		if r := recover(); r != nil {
			stackBuf := make([]byte, 1024)
			stackSize := runtime.Stack(stackBuf, false)
			stackTrace := bytes.TrimRight(stackBuf[:stackSize], "\x00")
			log.Errorf("Recovered from panic in %s task: %v\nStack trace: %s", t.name, r, stackTrace)
		}
	}()

	if ctx.Err() != nil {
		return
	}
	if err := t.run(ctx); err != nil && ctx.Err() == nil {
		log.Errorf("❌ %s task failed: %v", t.name, err)
	}
}

func (s *Sentinel) countDecision(kind string, d types.Decision) {
	s.metrics.Analyses.WithLabelValues(kind).Inc()
	if d.Fallback {
		s.metrics.Fallbacks.WithLabelValues(kind).Inc()
	}
}
