package price

import (
	"context"
	"net/http"
	"time"

	"github.com/coinpaprika/coinpaprika-api-go-client/v2/coinpaprika"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// PriceInfo represents the pricing details of a cryptocurrency
type PriceInfo struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Symbol         string    `json:"symbol"`
	PriceUSD       float64   `json:"price_usd"`
	PriceChange24h float64   `json:"percent_change_24h"`
	FetchedAt      time.Time `json:"fetched_at"`
}

// Feed reads the spot price of a single coin from CoinPaprika.
type Feed struct {
	client *coinpaprika.Client
	coinID string
}

// NewFeed creates a price feed. httpClient may be nil.
func NewFeed(coinID, apiProKey string, httpClient *http.Client) *Feed {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}

	var client *coinpaprika.Client
	if apiProKey != "" {
		client = coinpaprika.NewClient(httpClient, coinpaprika.WithAPIKey(apiProKey))
	} else {
		client = coinpaprika.NewClient(httpClient)
	}

	return &Feed{client: client, coinID: coinID}
}

// SpotPrice fetches the current USD price of the tracked coin.
func (f *Feed) SpotPrice(ctx context.Context) (PriceInfo, error) {
	if err := ctx.Err(); err != nil {
		return PriceInfo{}, err
	}

	ticker, err := f.client.Tickers.GetByID(f.coinID, &coinpaprika.TickersOptions{Quotes: "USD"})
	if err != nil {
		return PriceInfo{}, errors.Wrapf(err, "could not fetch ticker %s", f.coinID)
	}

	usd, ok := ticker.Quotes["USD"]
	if !ok || usd.Price == nil {
		return PriceInfo{}, errors.Errorf("ticker %s has no USD price", f.coinID)
	}

	info := PriceInfo{
		ID:        f.coinID,
		PriceUSD:  *usd.Price,
		FetchedAt: time.Now().UTC(),
	}
	if ticker.Name != nil {
		info.Name = *ticker.Name
	}
	if ticker.Symbol != nil {
		info.Symbol = *ticker.Symbol
	}
	if usd.PercentChange24h != nil {
		info.PriceChange24h = *usd.PercentChange24h
	}

	log.Debugf("Price for %s: %f USD", f.coinID, info.PriceUSD)
	return info, nil
}
