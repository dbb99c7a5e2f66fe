package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port              string
	RealtimePort      string
	StoreDriver       string
	DatabaseURL       string
	FirebaseProjectID string

	QueueStartNumber  int
	MaxQueueNumber    int
	DailyResetHour    int
	RoomCount         int
	ProvisionRooms    bool
	RoomDoctors       []string
	Location          *time.Location
	TimezoneInvalid   bool
	TxMaxAttempts     int
	ReconcileInterval time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisChannel  string

	MQTTBroker      string
	MQTTClientID    string
	MQTTUsername    string
	MQTTPassword    string
	MQTTTopicPrefix string

	FCMTopic string

	RateLimitPerMinute int
	RateLimitBurst     int

	LogLevel  string
	LogFormat string
}

const (
	DriverMemory    = "memory"
	DriverPostgres  = "postgres"
	DriverFirestore = "firestore"
)

// Load reads the environment, after merging an optional .env file from the working directory.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		Port:              readString("PORT", "8080"),
		RealtimePort:      readString("REALTIME_PORT", "8085"),
		StoreDriver:       strings.ToLower(readString("STORE_DRIVER", DriverMemory)),
		DatabaseURL:       os.Getenv("DB_DSN"),
		FirebaseProjectID: os.Getenv("FIREBASE_PROJECT_ID"),

		QueueStartNumber:  readInt("QUEUE_START_NUMBER", 1),
		MaxQueueNumber:    readInt("MAX_QUEUE_NUMBER", 999),
		DailyResetHour:    readInt("DAILY_RESET_HOUR", 0),
		RoomCount:         readInt("ROOM_COUNT", 5),
		ProvisionRooms:    readBool("PROVISION_ROOMS", true),
		RoomDoctors:       readList("ROOM_DOCTORS"),
		TxMaxAttempts:     readInt("QUEUE_TX_MAX_ATTEMPTS", 5),
		ReconcileInterval: readDurationSeconds("RECONCILE_INTERVAL_SECONDS", 60),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       readInt("REDIS_DB", 0),
		RedisChannel:  readString("REDIS_CHANNEL", "qms:events"),

		MQTTBroker:      os.Getenv("MQTT_BROKER"),
		MQTTClientID:    readString("MQTT_CLIENT_ID", "queue-service"),
		MQTTUsername:    os.Getenv("MQTT_USERNAME"),
		MQTTPassword:    os.Getenv("MQTT_PASSWORD"),
		MQTTTopicPrefix: readString("MQTT_TOPIC_PREFIX", "qms"),

		FCMTopic: os.Getenv("FCM_TOPIC"),

		RateLimitPerMinute: readInt("RATE_LIMIT_PER_MIN", 120),
		RateLimitBurst:     readInt("RATE_LIMIT_BURST", 30),

		LogLevel:  readString("LOG_LEVEL", "info"),
		LogFormat: readString("LOG_FORMAT", "json"),
	}

	cfg.Location, cfg.TimezoneInvalid = readLocation("QUEUE_TIMEZONE")
	cfg.normalize()
	return cfg
}

func (c *Config) normalize() {
	if c.QueueStartNumber <= 0 {
		c.QueueStartNumber = 1
	}
	if c.MaxQueueNumber < c.QueueStartNumber {
		c.MaxQueueNumber = c.QueueStartNumber
	}
	if c.DailyResetHour < 0 || c.DailyResetHour > 23 {
		c.DailyResetHour = 0
	}
	if c.RoomCount <= 0 {
		c.RoomCount = 5
	}
	if c.TxMaxAttempts <= 0 {
		c.TxMaxAttempts = 5
	}
}

func readLocation(key string) (*time.Location, bool) {
	name := os.Getenv(key)
	if name == "" {
		return time.Local, false
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.Local, true
	}
	return loc, false
}

func readString(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func readList(key string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		values = append(values, strings.TrimSpace(part))
	}
	return values
}

func readDurationSeconds(key string, fallback int) time.Duration {
	value := readInt(key, fallback)
	if value <= 0 {
		return 0
	}
	return time.Duration(value) * time.Second
}

func readInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

func readBool(key string, fallback bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return value
}
