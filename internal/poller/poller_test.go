package poller

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"guardian-sentinel-bot/internal/memory"
	"guardian-sentinel-bot/internal/metrics"
	"guardian-sentinel-bot/internal/price"
	"guardian-sentinel-bot/internal/types"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTransfers struct {
	events map[string][]types.TransferEvent
	errs   map[string]error
	calls  []string
}

func (f *fakeTransfers) RecentTransfers(_ context.Context, target types.WatchTarget, limit int) ([]types.TransferEvent, error) {
	f.calls = append(f.calls, target.Name)
	if err := f.errs[target.Name]; err != nil {
		return nil, err
	}
	if events, ok := f.events[target.ContractAddress]; ok {
		return events, nil
	}
	return f.events[target.Name], nil
}

type fakePrices struct {
	prices  []float64
	change  float64
	fetched time.Time
	err     error
}

func (f *fakePrices) SpotPrice(_ context.Context) (price.PriceInfo, error) {
	if f.err != nil {
		return price.PriceInfo{}, f.err
	}
	p := f.prices[0]
	f.prices = f.prices[1:]
	return price.PriceInfo{ID: "sun-sun-token", Symbol: "SUN", PriceUSD: p, PriceChange24h: f.change, FetchedAt: f.fetched}, nil
}

type fakeMentions struct {
	mentions []types.Mention
	err      error
	after    []int64
}

func (f *fakeMentions) Mentions(_ context.Context, afterID int64) ([]types.Mention, error) {
	f.after = append(f.after, afterID)
	if f.err != nil {
		return nil, f.err
	}
	var out []types.Mention
	for _, m := range f.mentions {
		if m.ID > afterID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeMentions) SelfID() int64 { return 42 }

var sunai = types.WatchTarget{
	Name:            "$SUNAI",
	ContractAddress: "TContractSunai",
	Decimals:        6,
	AlertThreshold:  decimal.NewFromInt(5_000_000),
}

var sundog = types.WatchTarget{
	Name:            "$SUNDOG",
	ContractAddress: "TContractSundog",
	Decimals:        18,
	AlertThreshold:  decimal.NewFromInt(1_000_000),
}

func transfer(tx, token, from, raw string) types.TransferEvent {
	return types.TransferEvent{TxID: tx, Token: token, From: from, RawAmount: raw}
}

func openStore(t *testing.T) *memory.Store {
	t.Helper()
	store, err := memory.Open(filepath.Join(t.TempDir(), "memory.json"))
	require.NoError(t, err)
	return store
}

func TestScanTransfers_ThresholdScenarios(t *testing.T) {
	store := openStore(t)
	src := &fakeTransfers{events: map[string][]types.TransferEvent{
		"$SUNAI": {
			// newest first
			transfer("tx-big", "$SUNAI", "TWhale", "9000000000000"),
			transfer("tx-small", "$SUNAI", "TMinnow", "8000000000"),
		},
	}}
	p := New(Options{Targets: []types.WatchTarget{sunai}, Transfers: src, Memory: store})

	candidates, err := p.ScanTransfers(context.Background())
	require.NoError(t, err)

	require.Len(t, candidates, 1)
	assert.Equal(t, "tx-big", candidates[0].Event.TxID)
	assert.True(t, decimal.NewFromInt(9_000_000).Equal(candidates[0].Event.Amount))
	assert.Nil(t, candidates[0].VIP)

	rec := store.Snapshot()
	assert.Equal(t, []string{"tx-small", "tx-big"}, rec.HandledTx, "both recorded, oldest first")
	assert.Equal(t, int64(1), rec.Stats.TotalScans)
}

func TestScanTransfers_ReplayIsIdempotent(t *testing.T) {
	store := openStore(t)
	src := &fakeTransfers{events: map[string][]types.TransferEvent{
		"$SUNAI": {transfer("tx1", "$SUNAI", "TWhale", "9000000000000")},
	}}
	m := metrics.New()
	p := New(Options{Targets: []types.WatchTarget{sunai}, Transfers: src, Memory: store, Metrics: m})

	first, err := p.ScanTransfers(context.Background())
	require.NoError(t, err)
	second, err := p.ScanTransfers(context.Background())
	require.NoError(t, err)

	assert.Len(t, first, 1)
	assert.Empty(t, second)
	rec := store.Snapshot()
	assert.Equal(t, []string{"tx1"}, rec.HandledTx)
	assert.Equal(t, int64(2), rec.Stats.TotalScans)
	assert.Equal(t, 2.0, metrics.GetMetricValue(m.ScansTotal))
	assert.Equal(t, 1.0, metrics.GetMetricValue(m.EventsSeen))
}

func TestScanTransfers_VIPBelowThreshold(t *testing.T) {
	store := openStore(t)
	src := &fakeTransfers{events: map[string][]types.TransferEvent{
		"$SUNAI": {transfer("tx1", "$SUNAI", "TJustinVip", "1000000")},
	}}
	vips := []types.VipEntry{{DisplayName: "Justin", Address: "tjustinvip"}}
	p := New(Options{Targets: []types.WatchTarget{sunai}, VIPs: vips, Transfers: src, Memory: store})

	candidates, err := p.ScanTransfers(context.Background())
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	require.NotNil(t, candidates[0].VIP)
	assert.Equal(t, "Justin", candidates[0].VIP.DisplayName)
	assert.True(t, decimal.NewFromInt(1).Equal(candidates[0].Event.Amount))
}

func TestScanTransfers_ExactThresholdDoesNotQualify(t *testing.T) {
	store := openStore(t)
	src := &fakeTransfers{events: map[string][]types.TransferEvent{
		"$SUNAI": {transfer("tx1", "$SUNAI", "TWhale", "5000000000000")},
	}}
	p := New(Options{Targets: []types.WatchTarget{sunai}, Transfers: src, Memory: store})

	candidates, err := p.ScanTransfers(context.Background())
	require.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestScanTransfers_FailingTargetIsIsolated(t *testing.T) {
	store := openStore(t)
	src := &fakeTransfers{
		events: map[string][]types.TransferEvent{
			"$SUNDOG": {transfer("tx-dog", "$SUNDOG", "TWhale", "2000000000000000000000000")},
		},
		errs: map[string]error{"$SUNAI": errors.New("indexer down")},
	}
	m := metrics.New()
	p := New(Options{Targets: []types.WatchTarget{sunai, sundog}, Transfers: src, Memory: store, Metrics: m})

	candidates, err := p.ScanTransfers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"$SUNAI", "$SUNDOG"}, src.calls)
	require.Len(t, candidates, 1)
	assert.Equal(t, "tx-dog", candidates[0].Event.TxID)
	assert.True(t, decimal.NewFromInt(2_000_000).Equal(candidates[0].Event.Amount))
	assert.Equal(t, 1.0, metrics.GetMetricValue(m.UpstreamErrors.WithLabelValues("indexer")))
}

func TestScanTransfers_DuplicateWithinBatch(t *testing.T) {
	store := openStore(t)
	ev := transfer("tx1", "$SUNAI", "TWhale", "9000000000000")
	src := &fakeTransfers{events: map[string][]types.TransferEvent{"$SUNAI": {ev, ev}}}
	p := New(Options{Targets: []types.WatchTarget{sunai}, Transfers: src, Memory: store})

	candidates, err := p.ScanTransfers(context.Background())
	require.NoError(t, err)
	assert.Len(t, candidates, 1)
	assert.Len(t, store.Snapshot().HandledTx, 1)
}

func TestScanTransfers_ThresholdFollowsTheTarget(t *testing.T) {
	strict := types.WatchTarget{Name: "$SUN", ContractAddress: "TStrict", AlertThreshold: decimal.NewFromInt(1000)}
	loose := types.WatchTarget{Name: "$SUN", ContractAddress: "TLoose", AlertThreshold: decimal.NewFromInt(10)}
	src := &fakeTransfers{events: map[string][]types.TransferEvent{
		"TStrict": {transfer("tx-strict", "$SUN", "TA", "100")},
		"TLoose":  {transfer("tx-loose", "$SUN", "TB", "100")},
	}}
	p := New(Options{Targets: []types.WatchTarget{strict, loose}, Transfers: src, Memory: openStore(t)})

	candidates, err := p.ScanTransfers(context.Background())
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, "tx-loose", candidates[0].Event.TxID)
}

func TestScanTransfers_UnrecordedEventsAreNotAnalyzed(t *testing.T) {
	dir := t.TempDir()
	store, err := memory.Open(filepath.Join(dir, "sub", "memory.json"))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub"), []byte("not a dir"), 0o600))

	src := &fakeTransfers{events: map[string][]types.TransferEvent{
		"$SUNAI": {transfer("tx1", "$SUNAI", "TWhale", "9000000000000")},
	}}
	p := New(Options{Targets: []types.WatchTarget{sunai}, Transfers: src, Memory: store})

	candidates, err := p.ScanTransfers(context.Background())
	assert.Error(t, err)
	assert.Empty(t, candidates)
	assert.Empty(t, store.Snapshot().HandledTx)
}

func TestScanPrice(t *testing.T) {
	store := openStore(t)
	src := &fakePrices{prices: []float64{0.260, 0.270, 0.271, 0.25}}
	m := metrics.New()
	p := New(Options{Prices: src, Memory: store, Metrics: m})
	ctx := context.Background()

	signal, err := p.ScanPrice(ctx)
	require.NoError(t, err)
	assert.Nil(t, signal, "first observation has nothing to compare with")

	signal, err = p.ScanPrice(ctx)
	require.NoError(t, err)
	require.NotNil(t, signal)
	assert.Equal(t, "SUN", signal.Token)
	assert.Equal(t, types.RiskSurge, signal.Direction())
	assert.InDelta(t, 3.846, signal.ChangePercent, 0.001)
	assert.Equal(t, 0.260, signal.PreviousPrice)

	signal, err = p.ScanPrice(ctx)
	require.NoError(t, err)
	assert.Nil(t, signal, "0.270 -> 0.271 is below 2%")

	signal, err = p.ScanPrice(ctx)
	require.NoError(t, err)
	require.NotNil(t, signal)
	assert.Equal(t, types.RiskDump, signal.Direction())

	rec := store.Snapshot()
	assert.Equal(t, 0.25, rec.Market.LastPrice)
	assert.Len(t, rec.Market.History, 1, "observations within five minutes share a history point")
	assert.True(t, rec.Market.ChangeAt.IsZero())
	assert.Equal(t, 0.25, metrics.GetMetricValue(m.LastPrice))
}

func TestScanPrice_KeepsADayOfHistory(t *testing.T) {
	store := openStore(t)
	prices := make([]float64, 24*60+1)
	for i := range prices {
		prices[i] = 0.25
	}
	prices[len(prices)-1] = 0.26

	start := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	now := start
	p := New(Options{Prices: &fakePrices{prices: prices}, Memory: store, Now: func() time.Time { return now }})

	for i := range prices {
		now = start.Add(time.Duration(i) * time.Minute)
		_, err := p.ScanPrice(context.Background())
		require.NoError(t, err)
	}

	rec := store.Snapshot()
	require.Len(t, rec.Market.History, memory.HistoryCap)
	assert.GreaterOrEqual(t, now.Sub(rec.Market.History[0].At), 24*time.Hour-memory.HistoryResolution)

	change, ok := rec.Change24h(now)
	require.True(t, ok)
	assert.InDelta(t, 4.0, change, 0.0001)
}

func TestScanPrice_RecordsFeedChange(t *testing.T) {
	store := openStore(t)
	fetched := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	p := New(Options{Prices: &fakePrices{prices: []float64{0.27}, change: 3.5, fetched: fetched}, Memory: store})

	_, err := p.ScanPrice(context.Background())
	require.NoError(t, err)

	rec := store.Snapshot()
	assert.Equal(t, 3.5, rec.Market.Change24h)
	assert.Equal(t, fetched, rec.Market.ChangeAt)
}

func TestScanPrice_FetchError(t *testing.T) {
	store := openStore(t)
	require.NoError(t, store.Update(func(r *memory.Record) error {
		r.Market.LastPrice = 0.27
		return nil
	}))
	m := metrics.New()
	p := New(Options{Prices: &fakePrices{err: errors.New("rate limited")}, Memory: store, Metrics: m})

	signal, err := p.ScanPrice(context.Background())
	assert.Error(t, err)
	assert.Nil(t, signal)
	assert.Equal(t, 0.27, store.Snapshot().Market.LastPrice)
	assert.Equal(t, 1.0, metrics.GetMetricValue(m.UpstreamErrors.WithLabelValues("price")))
}

func TestScanPrice_CustomThreshold(t *testing.T) {
	store := openStore(t)
	p := New(Options{Prices: &fakePrices{prices: []float64{1.0, 1.006}}, Memory: store, VolatilityThreshold: 0.5})

	_, err := p.ScanPrice(context.Background())
	require.NoError(t, err)
	signal, err := p.ScanPrice(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, signal)
}

func TestScanMentions(t *testing.T) {
	store := openStore(t)
	require.NoError(t, store.Update(func(r *memory.Record) error {
		r.AdvanceMention(10)
		return nil
	}))
	src := &fakeMentions{mentions: []types.Mention{
		{ID: 14, AuthorID: 7, Author: "cy", Direct: true, Text: "fail me"},
		{ID: 11, AuthorID: 42, Author: "guardian_bot", Direct: true},
		{ID: 13, AuthorID: 5, Author: "ann", Direct: true, Text: "status?"},
		{ID: 12, AuthorID: 6, Author: "bo", Direct: false},
	}}
	m := metrics.New()
	p := New(Options{Mentions: src, Memory: store, Metrics: m})

	var answered []int64
	handled, err := p.ScanMentions(context.Background(), func(_ context.Context, mention types.Mention) error {
		answered = append(answered, mention.ID)
		if mention.ID == 14 {
			return errors.New("reply failed")
		}
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, 1, handled)
	assert.Equal(t, []int64{13, 14}, answered, "direct mentions only, oldest first")
	assert.Equal(t, []int64{10}, src.after)
	assert.Equal(t, int64(14), store.Snapshot().Mentions.LastID, "cursor passes the failed reply")

	assert.Equal(t, 1.0, metrics.GetMetricValue(m.Mentions.WithLabelValues("self")))
	assert.Equal(t, 1.0, metrics.GetMetricValue(m.Mentions.WithLabelValues("ignored")))
	assert.Equal(t, 1.0, metrics.GetMetricValue(m.Mentions.WithLabelValues("failed")))
	assert.Equal(t, 1.0, metrics.GetMetricValue(m.Mentions.WithLabelValues("replied")))

	// nothing new: the failed mention is not retried and the cursor holds
	answered = nil
	handled, err = p.ScanMentions(context.Background(), func(_ context.Context, mention types.Mention) error {
		answered = append(answered, mention.ID)
		return nil
	})
	require.NoError(t, err)
	assert.Zero(t, handled)
	assert.Empty(t, answered)
	assert.Equal(t, int64(14), store.Snapshot().Mentions.LastID)
}

func TestScanMentions_CursorNeverMovesBack(t *testing.T) {
	store := openStore(t)
	require.NoError(t, store.Update(func(r *memory.Record) error {
		r.AdvanceMention(20)
		return nil
	}))
	// a misbehaving source returns stale ids
	src := &stale{mentions: []types.Mention{{ID: 5, Direct: true}, {ID: 19, Direct: true}}}
	p := New(Options{Mentions: src, Memory: store})

	handled, err := p.ScanMentions(context.Background(), func(context.Context, types.Mention) error {
		t.Fatal("stale mention handled")
		return nil
	})
	require.NoError(t, err)
	assert.Zero(t, handled)
	assert.Equal(t, int64(20), store.Snapshot().Mentions.LastID)
}

func TestScanMentions_FetchError(t *testing.T) {
	store := openStore(t)
	p := New(Options{Mentions: &fakeMentions{err: errors.New("timeout")}, Memory: store})

	_, err := p.ScanMentions(context.Background(), func(context.Context, types.Mention) error { return nil })
	assert.Error(t, err)
	assert.Zero(t, store.Snapshot().Mentions.LastID)
}

type stale struct {
	mentions []types.Mention
}

func (s *stale) Mentions(context.Context, int64) ([]types.Mention, error) { return s.mentions, nil }

func (s *stale) SelfID() int64 { return 42 }

func TestScale(t *testing.T) {
	got, err := scale("8000000000", 6)
	require.NoError(t, err)
	assert.Equal(t, "8000", got.String())

	got, err = scale("1", 18)
	require.NoError(t, err)
	assert.Equal(t, "0.000000000000000001", got.String())

	_, err = scale("0xff", 6)
	assert.Error(t, err)
}

func TestNew_Defaults(t *testing.T) {
	p := New(Options{})
	assert.Equal(t, DefaultLimit, p.limit)
	assert.Equal(t, DefaultVolatilityThreshold, p.threshold)
	assert.NotNil(t, p.metrics)
	assert.WithinDuration(t, time.Now(), p.now(), time.Second)
}
