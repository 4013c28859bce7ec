package chart

import (
	"bytes"
	"fmt"
	"time"

	"guardian-sentinel-bot/internal/memory"
	"guardian-sentinel-bot/lib/helpers"

	"github.com/golang/freetype/truetype"
	"github.com/pkg/errors"
	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

var (
	backgroundColor = drawing.Color{R: 55, G: 55, B: 55, A: 255}
	textColor       = drawing.Color{R: 200, G: 200, B: 200, A: 255}
	seriesColor     = drawing.Color{R: 0, G: 122, B: 255, A: 255}
	seriesFillColor = drawing.Color{R: 0, G: 122, B: 255, A: 40}
)

// Renderer draws price history charts.
type Renderer struct {
	font *truetype.Font
}

// NewRenderer creates a renderer using go-chart's bundled font.
func NewRenderer() (*Renderer, error) {
	font, err := chart.GetDefaultFont()
	if err != nil {
		return nil, errors.Wrap(err, "could not load chart font")
	}
	return &Renderer{font: font}, nil
}

// RenderPriceHistory renders points as a PNG line chart.
func (r *Renderer) RenderPriceHistory(symbol string, points []memory.PricePoint) ([]byte, error) {
	if len(points) < 2 {
		return nil, errors.New("not enough price points to draw a chart")
	}

	times := make([]time.Time, len(points))
	prices := make([]float64, len(points))
	for i, p := range points {
		times[i] = p.At
		prices[i] = p.Price
	}

	minPrice, maxPrice := getMinMax(prices)
	padding := (maxPrice - minPrice) * 0.1
	if padding == 0 {
		padding = maxPrice * 0.01
	}

	graph := chart.Chart{
		Title:  fmt.Sprintf("%s 24h price - Guardian briefing", symbol),
		Font:   r.font,
		Width:  1200,
		Height: 600,
		TitleStyle: chart.Style{
			FontColor: textColor,
			FontSize:  16,
		},
		Background: chart.Style{
			FillColor: backgroundColor,
			Padding:   chart.Box{Top: 50, Left: 20, Right: 20, Bottom: 20},
		},
		Canvas: chart.Style{
			FillColor: backgroundColor,
		},
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeHourValueFormatter,
			Style:          chart.Style{FontColor: textColor, StrokeColor: textColor},
		},
		YAxis: chart.YAxis{
			Range: &chart.ContinuousRange{Min: minPrice - padding, Max: maxPrice + padding},
			ValueFormatter: func(v interface{}) string {
				if f, ok := v.(float64); ok {
					return helpers.FormatPriceUS(f)
				}
				return ""
			},
			Style: chart.Style{FontColor: textColor, StrokeColor: textColor},
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    symbol,
				XValues: times,
				YValues: prices,
				Style: chart.Style{
					StrokeColor: seriesColor,
					StrokeWidth: 2,
					FillColor:   seriesFillColor,
				},
			},
		},
	}

	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return nil, errors.Wrap(err, "could not render chart")
	}
	return buf.Bytes(), nil
}

func getMinMax(prices []float64) (min, max float64) {
	if len(prices) == 0 {
		return 0, 1
	}

	min, max = prices[0], prices[0]
	for _, price := range prices {
		if price < min {
			min = price
		}
		if price > max {
			max = price
		}
	}
	return min, max
}
