// Package analyzer asks a generative model to judge detected events. Any model
// failure or unusable answer is replaced by a deterministic fallback decision,
// so a qualifying event always yields something to publish.
package analyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"strings"
	"unicode/utf8"

	"guardian-sentinel-bot/internal/types"
	"guardian-sentinel-bot/lib/helpers"

	"github.com/davecgh/go-spew/spew"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const (
	FallbackTicker       = "DEF"
	FallbackMarketTicker = "MKT"
	maxReplyLength       = 280
)

var fallbackReplies = []string{
	"Guardian is on watch. Every whale move gets logged, every dump gets called out. 🛡️",
	"Scanning the chain as we speak. Nothing slips past the sentinel. 👀",
	"Message received. The shield holds, stay tuned for the next briefing. 🛰️",
}

// Analyzer produces decisions for transfers and market moves.
type Analyzer struct {
	gen    Generator
	suffix func() int
}

// New creates an analyzer. A nil generator makes every decision a fallback.
func New(gen Generator) *Analyzer {
	return &Analyzer{
		gen:    gen,
		suffix: func() int { return 100 + rand.IntN(900) },
	}
}

// AnalyzeTransfer judges a qualifying transfer.
func (a *Analyzer) AnalyzeTransfer(ctx context.Context, c types.Candidate) types.Decision {
	vip := ""
	if c.VIP != nil {
		vip = fmt.Sprintf(vipLine, c.VIP.DisplayName)
	}
	prompt := fmt.Sprintf(transferPrompt, c.Event.Token, helpers.FormatAmount(c.Event.Amount), c.Event.From, vip,
		helpers.FormatCompact(c.Event.Amount))

	d, err := a.ask(ctx, prompt, validateTransfer)
	if err != nil {
		log.Warnf("⚠️ Transfer analysis for %s fell back: %v", c.Event.TxID, err)
		return a.transferFallback(c)
	}
	log.Debugf("Transfer decision for %s: %s", c.Event.TxID, spew.Sdump(d))
	return d
}

// AnalyzeMarket judges a price move that crossed the volatility threshold.
func (a *Analyzer) AnalyzeMarket(ctx context.Context, s types.MarketSignal) types.Decision {
	prompt := fmt.Sprintf(marketPrompt, s.Token,
		helpers.FormatPriceUS(s.PreviousPrice), helpers.FormatPriceUS(s.CurrentPrice), helpers.FormatPercent(s.ChangePercent))

	d, err := a.ask(ctx, prompt, validateMarket)
	if err != nil {
		log.Warnf("⚠️ Market analysis for %s fell back: %v", s.Token, err)
		return a.marketFallback(s)
	}
	// the model may not contradict the observed direction
	d.RiskLevel = s.Direction()
	log.Debugf("Market decision for %s: %s", s.Token, spew.Sdump(d))
	return d
}

// Reply writes a short in-character answer to a mention.
func (a *Analyzer) Reply(ctx context.Context, m types.Mention) string {
	if a.gen != nil {
		text, err := a.gen.Generate(ctx, fmt.Sprintf(replyPrompt, m.Author, m.Text), false)
		if err == nil {
			if text = strings.TrimSpace(text); text != "" {
				return truncate(text, maxReplyLength)
			}
		} else {
			log.Warnf("⚠️ Reply generation for mention %d failed: %v", m.ID, err)
		}
	}
	return fallbackReplies[rand.IntN(len(fallbackReplies))]
}

func (a *Analyzer) ask(ctx context.Context, prompt string, validate func(*types.Decision) error) (types.Decision, error) {
	if a.gen == nil {
		return types.Decision{}, errors.New("no generator configured")
	}

	text, err := a.gen.Generate(ctx, prompt, true)
	if err != nil {
		return types.Decision{}, err
	}
	return parseDecision(text, validate)
}

func parseDecision(text string, validate func(*types.Decision) error) (types.Decision, error) {
	var d types.Decision
	if err := json.Unmarshal([]byte(helpers.StripCodeFence(text)), &d); err != nil {
		return types.Decision{}, errors.Wrap(err, "could not decode decision")
	}

	d.RiskLevel = strings.ToUpper(strings.TrimSpace(d.RiskLevel))
	d.Reason = strings.TrimSpace(d.Reason)
	d.UnitName = strings.TrimSpace(d.UnitName)
	d.Ticker = strings.ToUpper(strings.TrimLeft(strings.TrimSpace(d.Ticker), "$"))

	if err := validate(&d); err != nil {
		return types.Decision{}, err
	}
	return d, nil
}

func validateTransfer(d *types.Decision) error {
	if d.RiskLevel != types.RiskHigh && d.RiskLevel != types.RiskLow {
		return errors.Errorf("invalid risk level %q", d.RiskLevel)
	}
	if d.Reason == "" {
		return errors.New("missing reason")
	}
	if d.UnitName == "" || d.Ticker == "" {
		return errors.New("missing unit name or ticker")
	}
	return nil
}

func validateMarket(d *types.Decision) error {
	if d.RiskLevel != types.RiskSurge && d.RiskLevel != types.RiskDump {
		return errors.Errorf("invalid market tag %q", d.RiskLevel)
	}
	if d.Reason == "" {
		return errors.New("missing reason")
	}
	if d.UnitName == "" {
		d.UnitName = "Market Watch"
	}
	if d.Ticker == "" {
		d.Ticker = FallbackMarketTicker
	}
	return nil
}

func (a *Analyzer) transferFallback(c types.Candidate) types.Decision {
	who := helpers.ShortAddress(c.Event.From)
	if c.VIP != nil {
		who = c.VIP.DisplayName
	}
	return types.Decision{
		RiskLevel: types.RiskHigh,
		Reason: fmt.Sprintf("Large movement of %s %s detected from %s. Shields up until the dust settles.",
			helpers.FormatAmount(c.Event.Amount), c.Event.Token, who),
		UnitName: fmt.Sprintf("Sentinel Unit-%d", a.suffix()),
		Ticker:   FallbackTicker,
		Fallback: true,
	}
}

func (a *Analyzer) marketFallback(s types.MarketSignal) types.Decision {
	verb := "surged"
	if s.Direction() == types.RiskDump {
		verb = "dropped"
	}
	return types.Decision{
		RiskLevel: s.Direction(),
		Reason: fmt.Sprintf("%s %s %s in a single scan, from $%s to $%s.",
			s.Token, verb, helpers.FormatPercent(s.ChangePercent),
			helpers.FormatPriceUS(s.PreviousPrice), helpers.FormatPriceUS(s.CurrentPrice)),
		UnitName: fmt.Sprintf("Market Watch-%d", a.suffix()),
		Ticker:   FallbackMarketTicker,
		Fallback: true,
	}
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	return string(r[:max-1]) + "…"
}
