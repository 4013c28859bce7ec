package config

import (
	"sync"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

var once sync.Once

func InitConfig() {
	once.Do(func() {
		if err := godotenv.Load(); err != nil {
			log.Debug("No .env file found, relying on OS environment variables")
		}

		viper.AutomaticEnv()

		viper.BindEnv("metrics_port", "METRICS_PORT")
		viper.BindEnv("debug", "DEBUG")
		viper.BindEnv("lang", "LANG")

		viper.BindEnv("telegram_bot_token", "TELEGRAM_BOT_TOKEN")
		viper.BindEnv("telegram_channel_id", "TELEGRAM_CHANNEL_ID")
		viper.BindEnv("gemini_api_key", "GEMINI_API_KEY")
		viper.BindEnv("gemini_model", "GEMINI_MODEL")
		viper.BindEnv("indexer_url", "INDEXER_URL")
		viper.BindEnv("indexer_api_key", "INDEXER_API_KEY")
		viper.BindEnv("avatar_url", "AVATAR_URL")
		viper.BindEnv("price_coin_id", "PRICE_COIN_ID")
		viper.BindEnv("api_pro_key", "API_PRO_KEY")

		viper.BindEnv("watch_targets", "WATCH_TARGETS")
		viper.BindEnv("vip_wallets", "VIP_WALLETS")

		viper.BindEnv("memory_path", "MEMORY_PATH")
		viper.BindEnv("db_path", "DB_PATH")

		viper.BindEnv("whale_interval", "WHALE_INTERVAL")
		viper.BindEnv("price_interval", "PRICE_INTERVAL")
		viper.BindEnv("briefing_interval", "BRIEFING_INTERVAL")
		viper.BindEnv("mention_interval", "MENTION_INTERVAL")
		viper.BindEnv("post_cooldown", "POST_COOLDOWN")
		viper.BindEnv("penalty_cooldown", "PENALTY_COOLDOWN")
		viper.BindEnv("volatility_threshold", "VOLATILITY_THRESHOLD")

		viper.SetDefault("metrics_port", 9090)
		viper.SetDefault("debug", false)
		viper.SetDefault("lang", "en")
		viper.SetDefault("gemini_model", "gemini-2.0-flash")
		viper.SetDefault("indexer_url", "https://api.trongrid.io")
		viper.SetDefault("avatar_url", "https://robohash.org")
		viper.SetDefault("price_coin_id", "sun-sun-token")
		viper.SetDefault("memory_path", "data/guardian_memory.json")
		viper.SetDefault("db_path", "data/guardian.db")
		viper.SetDefault("whale_interval", 15*time.Second)
		viper.SetDefault("price_interval", 60*time.Second)
		viper.SetDefault("briefing_interval", 10*time.Minute)
		viper.SetDefault("mention_interval", 120*time.Second)
		viper.SetDefault("post_cooldown", 60*time.Second)
		viper.SetDefault("penalty_cooldown", 5*time.Minute)
		viper.SetDefault("volatility_threshold", 2.0)
	})
}

func GetString(key string) string {
	InitConfig()
	return viper.GetString(key)
}

func GetInt(key string) int {
	InitConfig()
	return viper.GetInt(key)
}

func GetBool(key string) bool {
	InitConfig()
	return viper.GetBool(key)
}

func GetFloat64(key string) float64 {
	InitConfig()
	return viper.GetFloat64(key)
}

func GetDuration(key string) time.Duration {
	InitConfig()
	return viper.GetDuration(key)
}
