package types

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// WatchTarget is a monitored token contract with its alert threshold.
type WatchTarget struct {
	Name            string          `json:"name"`
	ContractAddress string          `json:"contract_address"`
	Decimals        int32           `json:"decimals"`
	AlertThreshold  decimal.Decimal `json:"alert_threshold"`
}

// VipEntry is a wallet whose transfers are always analyzed.
type VipEntry struct {
	DisplayName string `json:"display_name"`
	Address     string `json:"address"`
}

// TransferEvent is a single token transfer reported by the indexer.
type TransferEvent struct {
	TxID      string          `json:"tx_id"`
	Token     string          `json:"token"`
	From      string          `json:"from"`
	To        string          `json:"to"`
	RawAmount string          `json:"raw_amount"`
	Amount    decimal.Decimal `json:"amount"`
	Timestamp time.Time       `json:"timestamp"`
}

// Risk levels returned by the analyzer. Whale events use HIGH/LOW, market
// events use SURGE/DUMP.
const (
	RiskHigh  = "HIGH"
	RiskLow   = "LOW"
	RiskSurge = "SURGE"
	RiskDump  = "DUMP"

	// RiskBriefing marks daily briefings in the audit log.
	RiskBriefing = "BRIEFING"
)

// Decision is the analyzer's verdict for an event.
type Decision struct {
	RiskLevel string `json:"riskLevel"`
	Reason    string `json:"reason"`
	UnitName  string `json:"unitName"`
	Ticker    string `json:"ticker"`
	Fallback  bool   `json:"-"`
}

// Candidate is a new transfer that qualified for analysis.
type Candidate struct {
	Event TransferEvent
	VIP   *VipEntry
}

// MarketSignal describes a price move that crossed the volatility threshold.
type MarketSignal struct {
	Token         string
	PreviousPrice float64
	CurrentPrice  float64
	ChangePercent float64
}

// Direction returns SURGE for upward moves and DUMP otherwise.
func (s MarketSignal) Direction() string {
	if s.ChangePercent >= 0 {
		return RiskSurge
	}
	return RiskDump
}

// Mention is an inbound message seen by the bot.
type Mention struct {
	ID        int64
	AuthorID  int64
	Author    string
	Text      string
	ChatID    int64
	MessageID int
	// Direct is set when the message is addressed to the bot.
	Direct bool
}

// FindVIP returns the VIP entry matching address, if any.
func FindVIP(vips []VipEntry, address string) *VipEntry {
	for i := range vips {
		if strings.EqualFold(vips[i].Address, address) {
			return &vips[i]
		}
	}
	return nil
}
