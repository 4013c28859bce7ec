package memory

import "time"

const (
	// HandledCap bounds the de-duplication ledger.
	HandledCap = 200
	// HistoryResolution is the minimum spacing of stored price points.
	HistoryResolution = 5 * time.Minute
	// HistoryCap bounds the stored price history (24h at HistoryResolution).
	HistoryCap = 288
	// ChangeFreshness is how long a feed-reported 24h change is trusted.
	ChangeFreshness = 15 * time.Minute
)

// Record is the persisted memory document.
type Record struct {
	Stats     Stats        `json:"stats"`
	Market    Market       `json:"market"`
	Mentions  Mentions     `json:"mentions"`
	HandledTx []string     `json:"handledTx"`
	Alerts    []AlertEntry `json:"alerts"`
}

type Stats struct {
	TotalScans   int64     `json:"totalScans"`
	LastBriefing time.Time `json:"lastBriefing"`
}

type Market struct {
	LastPrice float64 `json:"lastPrice"`
	// Change24h is the 24h change in percent reported by the price feed at ChangeAt.
	Change24h float64      `json:"change24h"`
	ChangeAt  time.Time    `json:"changeAt"`
	History   []PricePoint `json:"history"`
}

type PricePoint struct {
	At    time.Time `json:"at"`
	Price float64   `json:"price"`
}

type Mentions struct {
	LastID int64 `json:"lastId"`
}

// AlertEntry is one line of the audit log of published posts.
type AlertEntry struct {
	Timestamp     time.Time `json:"timestamp"`
	Token         string    `json:"token"`
	Amount        string    `json:"amount"`
	RiskLevel     string    `json:"riskLevel"`
	Reason        string    `json:"reason"`
	PublishedText string    `json:"publishedText"`
}

// HasHandled reports whether txID is in the ledger.
func (r *Record) HasHandled(txID string) bool {
	for _, id := range r.HandledTx {
		if id == txID {
			return true
		}
	}
	return false
}

// MarkHandled appends txID to the ledger, evicting the oldest entries past HandledCap.
// Returns false if txID was already present.
func (r *Record) MarkHandled(txID string) bool {
	if r.HasHandled(txID) {
		return false
	}
	r.HandledTx = append(r.HandledTx, txID)
	if over := len(r.HandledTx) - HandledCap; over > 0 {
		r.HandledTx = append([]string(nil), r.HandledTx[over:]...)
	}
	return true
}

// AdvanceMention moves the mention cursor forward. It never moves backwards.
func (r *Record) AdvanceMention(id int64) bool {
	if id <= r.Mentions.LastID {
		return false
	}
	r.Mentions.LastID = id
	return true
}

// AddAlert records a published post, most recent first.
func (r *Record) AddAlert(entry AlertEntry) {
	r.Alerts = append([]AlertEntry{entry}, r.Alerts...)
}

// ObservePrice updates the last observed price. The history only takes a new
// point once HistoryResolution has passed since the previous one.
func (r *Record) ObservePrice(at time.Time, price float64) {
	r.Market.LastPrice = price
	if n := len(r.Market.History); n > 0 && at.Sub(r.Market.History[n-1].At) < HistoryResolution {
		return
	}
	r.Market.History = append(r.Market.History, PricePoint{At: at, Price: price})
	if over := len(r.Market.History) - HistoryCap; over > 0 {
		r.Market.History = append([]PricePoint(nil), r.Market.History[over:]...)
	}
}

// ObserveChange stores the feed-reported 24h change.
func (r *Record) ObserveChange(at time.Time, percent float64) {
	r.Market.Change24h = percent
	r.Market.ChangeAt = at
}

// Change24h returns the price change over the last 24h in percent. A fresh
// feed figure wins. Otherwise it is derived from the history, which must reach
// back to 24h ago.
func (r *Record) Change24h(now time.Time) (float64, bool) {
	m := r.Market
	if !m.ChangeAt.IsZero() && now.Sub(m.ChangeAt) <= ChangeFreshness {
		return m.Change24h, true
	}
	if m.LastPrice <= 0 || len(m.History) == 0 {
		return 0, false
	}
	since := now.Add(-24 * time.Hour)
	for _, p := range m.History {
		if p.At.Before(since) {
			continue
		}
		if p.At.Sub(since) > HistoryResolution || p.Price <= 0 {
			return 0, false
		}
		return (m.LastPrice - p.Price) / p.Price * 100, true
	}
	return 0, false
}

func (r Record) clone() Record {
	c := r
	c.HandledTx = append([]string(nil), r.HandledTx...)
	c.Alerts = append([]AlertEntry(nil), r.Alerts...)
	c.Market.History = append([]PricePoint(nil), r.Market.History...)
	return c
}
