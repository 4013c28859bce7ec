package sentinel

import (
	"context"
	"fmt"
	"strings"
	"time"

	"guardian-sentinel-bot/internal/memory"
	"guardian-sentinel-bot/internal/publisher"
	"guardian-sentinel-bot/internal/types"
	"guardian-sentinel-bot/lib/helpers"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// WhaleScan analyzes and publishes every qualifying new transfer.
func (s *Sentinel) WhaleScan(ctx context.Context) error {
	candidates, err := s.scanner.ScanTransfers(ctx)
	if err != nil {
		return err
	}

	for _, c := range candidates {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		d := s.analyzer.AnalyzeTransfer(ctx, c)
		s.countDecision("whale", d)

		subject := helpers.ShortAddress(c.Event.From)
		if c.VIP != nil {
			subject = c.VIP.DisplayName
		}
		draft := publisher.Draft{
			Kind:     publisher.KindWhale,
			Token:    c.Event.Token,
			Amount:   helpers.FormatAmount(c.Event.Amount),
			Subject:  subject,
			Decision: d,
			SeedKey:  c.Event.TxID,
		}
		if _, err := s.publisher.Publish(ctx, draft); err != nil {
			log.Warnf("⚠️ Whale alert for %s not published: %v", c.Event.TxID, err)
		}
	}
	return nil
}

// PriceScan publishes a market post when the price moved past the threshold.
func (s *Sentinel) PriceScan(ctx context.Context) error {
	signal, err := s.scanner.ScanPrice(ctx)
	if err != nil || signal == nil {
		return err
	}

	d := s.analyzer.AnalyzeMarket(ctx, *signal)
	s.countDecision("market", d)

	draft := publisher.Draft{
		Kind:     publisher.KindMarket,
		Token:    signal.Token,
		Amount:   helpers.FormatPercent(signal.ChangePercent),
		Subject:  helpers.FormatPriceUS(signal.CurrentPrice),
		Decision: d,
		SeedKey:  fmt.Sprintf("%s-%d", signal.Token, s.now().Unix()),
	}
	if _, err := s.publisher.Publish(ctx, draft); err != nil {
		log.Warnf("⚠️ Market alert for %s not published: %v", signal.Token, err)
	}
	return nil
}

// MentionScan answers direct mentions. Replies do not wait for the post cooldown.
func (s *Sentinel) MentionScan(ctx context.Context) error {
	n, err := s.scanner.ScanMentions(ctx, func(ctx context.Context, m types.Mention) error {
		text, ok := s.commandReply(m)
		if !ok {
			text = s.analyzer.Reply(ctx, m)
		}
		log.Debugf("Replying to mention %d: %q", m.ID, text)
		return s.platform.Reply(ctx, m, text)
	})
	if n > 0 {
		log.Infof("💬 Answered %d mentions", n)
	}
	return err
}

// Briefing posts the daily summary once the briefing period has elapsed.
func (s *Sentinel) Briefing(ctx context.Context) error {
	now := s.now().UTC()
	rec := s.memory.Snapshot()

	if rec.Stats.LastBriefing.IsZero() {
		log.Info("🗞️ No briefing on record, starting the 24h clock now")
		return s.memory.Update(func(r *memory.Record) error {
			r.Stats.LastBriefing = now
			return nil
		})
	}
	if now.Sub(rec.Stats.LastBriefing) < s.period {
		return nil
	}

	body := s.briefingBody(rec, now)
	draft := publisher.Draft{
		Kind:  publisher.KindBriefing,
		Token: s.symbol,
		Body:  body,
		Decision: types.Decision{
			RiskLevel: types.RiskBriefing,
			Reason:    "Daily briefing",
		},
		Image: s.briefingChart(rec, now),
	}

	outcome, err := s.publisher.Publish(ctx, draft)
	if err != nil {
		return errors.Wrap(err, "briefing not published")
	}
	if outcome != publisher.Published {
		log.Infof("🗞️ Briefing %s, retrying at the next check", outcome)
		return nil
	}

	return s.memory.Update(func(r *memory.Record) error {
		r.Stats.TotalScans = 0
		r.Stats.LastBriefing = now
		return nil
	})
}

func (s *Sentinel) briefingBody(rec memory.Record, now time.Time) string {
	whales, market := s.alertCounts(rec, rec.Stats.LastBriefing)

	var b strings.Builder
	fmt.Fprintf(&b, "🔍 Scans completed: %d\n", rec.Stats.TotalScans)
	fmt.Fprintf(&b, "🐋 Whale alerts: %d\n", whales)
	fmt.Fprintf(&b, "📊 Market alerts: %d\n", market)

	if last := rec.Market.LastPrice; last > 0 {
		line := fmt.Sprintf("💵 %s: $%s", s.symbol, helpers.FormatPriceUS(last))
		if change, ok := rec.Change24h(now); ok {
			line += fmt.Sprintf(" (24h %s)", helpers.FormatPercent(change))
		}
		b.WriteString(line)
	} else {
		b.WriteString("💵 Price feed unavailable")
	}
	return b.String()
}

// recentAlerts prefers the database mirror and falls back to the memory audit log.
func (s *Sentinel) recentAlerts(rec memory.Record, limit int) []memory.AlertEntry {
	if s.alerts != nil {
		recent, err := s.alerts.RecentAlerts(limit)
		if err != nil {
			log.Warnf("⚠️ Could not load recent alerts from database: %v", err)
		} else if len(recent) > 0 {
			return recent
		}
	}
	if len(rec.Alerts) > limit {
		return rec.Alerts[:limit]
	}
	return rec.Alerts
}

// alertCounts prefers the database mirror and falls back to the memory audit log.
func (s *Sentinel) alertCounts(rec memory.Record, since time.Time) (whales, market int) {
	var byRisk map[string]int
	if s.alerts != nil {
		counts, err := s.alerts.CountAlertsSince(since)
		if err != nil {
			log.Warnf("⚠️ Could not count alerts in database: %v", err)
		} else {
			byRisk = counts
		}
	}
	if byRisk == nil {
		byRisk = make(map[string]int)
		for _, a := range rec.Alerts {
			if a.Timestamp.Before(since) {
				break
			}
			byRisk[a.RiskLevel]++
		}
	}
	return byRisk[types.RiskHigh] + byRisk[types.RiskLow], byRisk[types.RiskSurge] + byRisk[types.RiskDump]
}

func (s *Sentinel) briefingChart(rec memory.Record, now time.Time) []byte {
	if s.charts == nil {
		return nil
	}
	var points []memory.PricePoint
	for _, p := range rec.Market.History {
		if !p.At.Before(now.Add(-s.period)) {
			points = append(points, p)
		}
	}
	if len(points) < 2 {
		return nil
	}
	img, err := s.charts.RenderPriceHistory(s.symbol, points)
	if err != nil {
		log.Warnf("⚠️ Could not render briefing chart: %v", err)
		return nil
	}
	return img
}
