package publisher

import (
	"strings"

	"guardian-sentinel-bot/lib/translation"
)

// Templates are gettext message IDs. Placeholders in braces are substituted
// after translation so a locale may reorder or drop any of them.
var templates = map[Kind][]string{
	KindWhale: {
		"🚨 GUARDIAN ALERT [{risk}]\n\n{amount} {token} just moved from {subject}.\n\n🛡️ Deploying {unit} (${ticker})\n{reason}\n\nref {stamp}",
		"🐋 Whale sighted on {token}!\n\n{amount} tokens left {subject}. Threat level: {risk}.\n\n{reason}\n\nDefense unit {unit} (${ticker}) is on patrol.\n#{stamp}",
		"🛰️ Sentinel report\n\nTransfer: {amount} {token}\nFrom: {subject}\nRisk: {risk}\n\n{reason}\n\n⚔️ {unit} (${ticker}) has been scrambled. [{stamp}]",
	},
	KindMarket: {
		"📈 MARKET {risk} on {token}\n\nPrice now ${subject} ({amount}).\n\n{reason}\n\n🛡️ {unit} is watching the charts. ref {stamp}",
		"⚡ Volatility detected: {token} {amount}\n\nSpot: ${subject} | Signal: {risk}\n\n{reason}\n\n#{stamp}",
	},
	KindBriefing: {
		"🗞️ GUARDIAN DAILY BRIEFING\n\n{body}\n\nStay safe out there. ref {stamp}",
		"🛡️ 24h sentinel briefing\n\n{body}\n\nThe watch continues. [{stamp}]",
	},
}

func render(tpl string, d Draft, stamp string) string {
	r := strings.NewReplacer(
		"{risk}", d.Decision.RiskLevel,
		"{reason}", d.Decision.Reason,
		"{unit}", d.Decision.UnitName,
		"{ticker}", d.Decision.Ticker,
		"{token}", d.Token,
		"{amount}", d.Amount,
		"{subject}", d.Subject,
		"{body}", d.Body,
		"{stamp}", stamp,
	)
	return r.Replace(translation.Text(tpl))
}
