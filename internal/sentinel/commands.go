package sentinel

import (
	"fmt"
	"strings"

	"guardian-sentinel-bot/internal/types"
	"guardian-sentinel-bot/lib/helpers"

	log "github.com/sirupsen/logrus"
)

const statusRecentAlerts = 3

// commandReply answers the built-in slash commands from stored state without
// asking the model. ok is false for anything else.
func (s *Sentinel) commandReply(m types.Mention) (string, bool) {
	command := parseCommand(m.Text)
	if command == "" {
		return "", false
	}
	log.Debugf("processing command /%s from %s", command, m.Author)

	rec := s.memory.Snapshot()
	switch command {
	case "p", "price":
		if rec.Market.LastPrice <= 0 {
			return fmt.Sprintf("No %s price observed yet, the price feed is warming up.", s.symbol), true
		}
		text := fmt.Sprintf("💵 %s price: $%s", s.symbol, helpers.FormatPriceUS(rec.Market.LastPrice))
		if change, ok := rec.Change24h(s.now()); ok {
			text += fmt.Sprintf("\n24h change: %s", helpers.FormatPercent(change))
		}
		return text, true
	case "status":
		text := fmt.Sprintf("🛡️ Guardian on watch\n\nScans since last briefing: %d\nTransactions in ledger: %d\nPosts on record: %d",
			rec.Stats.TotalScans, len(rec.HandledTx), len(rec.Alerts))
		if recent := s.recentAlerts(rec, statusRecentAlerts); len(recent) > 0 {
			text += "\n\nRecent posts:"
			for _, a := range recent {
				text += fmt.Sprintf("\n• %s %s (%s)", a.Token, a.RiskLevel, a.Timestamp.Format("2006-01-02 15:04 MST"))
			}
		}
		return text, true
	}
	return "", false
}

// parseCommand returns the command name of "/name@bot args", or "".
func parseCommand(text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return ""
	}
	name, _, _ := strings.Cut(strings.TrimPrefix(fields[0], "/"), "@")
	return strings.ToLower(name)
}
