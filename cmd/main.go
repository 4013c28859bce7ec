package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"guardian-sentinel-bot/config"
	"guardian-sentinel-bot/internal/analyzer"
	"guardian-sentinel-bot/internal/avatar"
	"guardian-sentinel-bot/internal/chart"
	"guardian-sentinel-bot/internal/database"
	"guardian-sentinel-bot/internal/indexer"
	"guardian-sentinel-bot/internal/memory"
	"guardian-sentinel-bot/internal/metrics"
	"guardian-sentinel-bot/internal/poller"
	"guardian-sentinel-bot/internal/price"
	"guardian-sentinel-bot/internal/publisher"
	"guardian-sentinel-bot/internal/sentinel"
	"guardian-sentinel-bot/internal/telegram"
	"guardian-sentinel-bot/lib/translation"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const metricsSaveInterval = 5 * time.Minute

func init() {
	config.InitConfig()
	setupLogging()
}

// openDatabase is replaced in tests.
var openDatabase = database.Open

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		stop()
		log.Fatalf("❌ %v", err)
	}
	log.Info("Metrics saved, shutting down...")
}

func run(ctx context.Context) error {
	translation.Configure("locales", config.GetString("lang"))
	log.Infof("🌐 Posting in language: %s", translation.GetLanguage())

	targets, err := config.Targets()
	if err != nil {
		return errors.Wrap(err, "invalid WATCH_TARGETS")
	}
	if len(targets) == 0 {
		log.Warn("⚠️ No watch targets configured, whale scans will be idle")
	}
	vips, err := config.VIPs()
	if err != nil {
		return errors.Wrap(err, "invalid VIP_WALLETS")
	}

	store, err := memory.Open(config.GetString("memory_path"))
	if err != nil {
		return errors.Wrap(err, "failed to open memory")
	}

	db, err := openDatabase(config.GetString("db_path"))
	if err != nil {
		return errors.Wrap(err, "failed to initialize database")
	}
	defer db.Close()

	m := metrics.New()
	m.LoadFrom(db)

	bot, err := telegram.NewBot(telegram.BotConfig{
		Token:     config.GetString("telegram_bot_token"),
		ChannelID: config.GetString("telegram_channel_id"),
		Debug:     config.GetBool("debug"),
	})
	if err != nil {
		return errors.Wrap(err, "failed to create bot")
	}

	coinID := config.GetString("price_coin_id")
	scanner := poller.New(poller.Options{
		Targets:             targets,
		VIPs:                vips,
		Transfers:           indexer.NewClient(config.GetString("indexer_url"), indexer.WithAPIKey(config.GetString("indexer_api_key"))),
		Prices:              price.NewFeed(coinID, config.GetString("api_pro_key"), nil),
		Mentions:            bot,
		Memory:              store,
		Metrics:             m,
		VolatilityThreshold: config.GetFloat64("volatility_threshold"),
	})

	pub := publisher.New(publisher.Options{
		Platform: bot,
		Images:   avatar.NewClient(config.GetString("avatar_url"), nil),
		Memory:   store,
		Audit:    db,
		Metrics:  m,
		Cooldown: config.GetDuration("post_cooldown"),
		Penalty:  config.GetDuration("penalty_cooldown"),
	})

	var charts sentinel.ChartRenderer
	if r, err := chart.NewRenderer(); err != nil {
		log.Warnf("⚠️ Briefing charts disabled: %v", err)
	} else {
		charts = r
	}

	s := sentinel.New(sentinel.Options{
		Platform:  bot,
		Scanner:   scanner,
		Analyzer:  analyzer.New(newGenerator(ctx)),
		Publisher: pub,
		Memory:    store,
		Alerts:    db,
		Charts:    charts,
		Metrics:   m,
		Intervals: sentinel.Intervals{
			Whale:    config.GetDuration("whale_interval"),
			Price:    config.GetDuration("price_interval"),
			Briefing: config.GetDuration("briefing_interval"),
			Mentions: config.GetDuration("mention_interval"),
		},
		Symbol: symbolFromCoinID(coinID),
	})

	go saveMetricsPeriodically(ctx, m, db)
	go func() {
		if err := launchMetricsAndHealthServer(ctx, config.GetInt("metrics_port"), m); err != nil {
			log.Errorf("Metrics and health server failed: %v", err)
		}
	}()

	err = s.Run(ctx)
	m.SaveTo(db)
	return errors.Wrap(err, "sentinel failed")
}

func setupLogging() {
	log.SetLevel(log.InfoLevel)
	if config.GetBool("debug") {
		log.SetLevel(log.DebugLevel)
	}
	log.Debug("Starting guardian sentinel...")
}

// newGenerator returns nil when no model is configured, which makes every
// decision a fallback.
func newGenerator(ctx context.Context) analyzer.Generator {
	key := config.GetString("gemini_api_key")
	if key == "" {
		log.Warn("⚠️ GEMINI_API_KEY not set, all decisions will use the fallback")
		return nil
	}
	gen, err := analyzer.NewGeminiGenerator(ctx, key, config.GetString("gemini_model"))
	if err != nil {
		log.Warnf("⚠️ Gemini unavailable, all decisions will use the fallback: %v", err)
		return nil
	}
	return gen
}

// symbolFromCoinID turns a CoinPaprika id such as "sun-sun-token" into "SUN".
func symbolFromCoinID(coinID string) string {
	symbol, _, _ := strings.Cut(coinID, "-")
	return strings.ToUpper(symbol)
}

func saveMetricsPeriodically(ctx context.Context, m *metrics.Metrics, store metrics.Store) {
	ticker := time.NewTicker(metricsSaveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.SaveTo(store)
		}
	}
}

func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func launchMetricsAndHealthServer(ctx context.Context, port int, m *metrics.Metrics) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/health", healthCheckHandler)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	log.Infof("Launching metrics and health endpoint on :%d", port)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
