package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config 热舒适决策引擎服务配置
type Config struct {
	Database DatabaseConfig
	Redis    RedisConfig
	MQTT     MQTTConfig

	HTTP struct {
		Bind string
	}

	// 决策引擎配置
	Engine struct {
		// 决策窗口长度（小时），默认 8 小时
		WindowHours int
		// 低层决策使用的分类器滞后窗口（记录条数，5 秒一条，默认 12 ≈ 1 分钟）
		ClassifierLag int
		// 矛盾动作抑制窗口（分钟），默认 30 分钟
		ContradictionBlockMins int
	}

	// 舒适度分类器（外部推理服务）
	Classifier struct {
		BaseURL        string
		TimeoutSeconds int
		RetryCount     int
	}

	// 融合记录摄入（Redis Streams）
	Ingest struct {
		Enabled       bool
		Stream        string // 如 "thermal:fused-records"
		ConsumerGroup string
		ConsumerName  string
		BatchSize     int
	}

	// 最新决策缓存（供 dashboard 读取）
	Cache struct {
		TTLSeconds int
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load 加载配置（环境变量优先，支持 .env 文件）
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}

	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = 5432
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "biosignal")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.LoadFromEnv("DB")

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = 0

	cfg.MQTT.Broker = getEnv("MQTT_BROKER", "tcp://localhost:1883")
	cfg.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", "smarthome-biosignal")
	cfg.MQTT.Username = getEnv("MQTT_USERNAME", "")
	cfg.MQTT.Password = getEnv("MQTT_PASSWORD", "")
	cfg.MQTT.QoS = 1

	cfg.HTTP.Bind = getEnv("HTTP_BIND", ":8050")

	cfg.Engine.WindowHours = getEnvInt("ENGINE_WINDOW_HOURS", 8)
	cfg.Engine.ClassifierLag = getEnvInt("ENGINE_CLASSIFIER_LAG", 12)
	cfg.Engine.ContradictionBlockMins = getEnvInt("ENGINE_CONTRADICTION_BLOCK_MINS", 30)

	cfg.Classifier.BaseURL = getEnv("CLASSIFIER_BASE_URL", "http://localhost:8060")
	cfg.Classifier.TimeoutSeconds = getEnvInt("CLASSIFIER_TIMEOUT_SECONDS", 10)
	cfg.Classifier.RetryCount = getEnvInt("CLASSIFIER_RETRY_COUNT", 3)

	cfg.Ingest.Enabled = getEnv("INGEST_ENABLED", "true") == "true"
	cfg.Ingest.Stream = getEnv("INGEST_STREAM", "thermal:fused-records")
	cfg.Ingest.ConsumerGroup = getEnv("INGEST_CONSUMER_GROUP", "thermal-engine-group")
	cfg.Ingest.ConsumerName = getEnv("INGEST_CONSUMER_NAME", "thermal-engine-1")
	cfg.Ingest.BatchSize = getEnvInt("INGEST_BATCH_SIZE", 10)

	cfg.Cache.TTLSeconds = getEnvInt("CACHE_TTL_SECONDS", 60)

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if v, err := strconv.Atoi(value); err == nil && v > 0 {
			return v
		}
	}
	return defaultValue
}
