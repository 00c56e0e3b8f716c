package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Env   string
	Port  int
	DBURL string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	JWTSecret           string
	JWTAccessTTLMinutes int

	AdminUsername     string
	AdminPasswordHash string

	RemoteExecutorBaseURL      string
	RemoteExecutorAccessToken  string
	RemoteExecutorPollInterval time.Duration

	SchedulerConcurrency     int
	HoursOldJobsDeleted      int
	HoursNotExecutedDeleted  int
	TimeoutSweepInterval     time.Duration
	OldJobsSweepInterval     time.Duration
	NotExecutedSweepInterval time.Duration
	QueueDrainInterval       time.Duration

	CacheTTL time.Duration

	HealthAddr string
}

func Load() Config {
	env := getEnv("APP_ENV", "dev")
	port := getEnvInt("PORT", 8080)
	dbURL := buildDBURL()

	return Config{
		Env:   env,
		Port:  port,
		DBURL: dbURL,

		RedisAddr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		JWTSecret:           getEnv("JWT_SECRET", "dev-secret-change-me"),
		JWTAccessTTLMinutes: getEnvInt("JWT_ACCESS_TTL_MINUTES", 60),

		AdminUsername:     getEnv("ADMIN_USERNAME", "admin"),
		AdminPasswordHash: getEnv("ADMIN_PASSWORD_HASH", ""),

		RemoteExecutorBaseURL:      getEnv("REMOTE_EXECUTOR_BASE_URL", "http://127.0.0.1:9090"),
		RemoteExecutorAccessToken:  getEnv("REMOTE_EXECUTOR_ACCESS_TOKEN", ""),
		RemoteExecutorPollInterval: getEnvDuration("REMOTE_EXECUTOR_POLL_INTERVAL", 2*time.Second),

		SchedulerConcurrency:     getEnvInt("SCHEDULER_CONCURRENCY", 4),
		HoursOldJobsDeleted:      getEnvInt("HOURS_OLD_JOBS_DELETED", 168),
		HoursNotExecutedDeleted:  getEnvInt("HOURS_NOT_EXECUTED_DELETED", 4),
		TimeoutSweepInterval:     getEnvDuration("TIMEOUT_SWEEP_INTERVAL", 30*time.Second),
		OldJobsSweepInterval:     getEnvDuration("OLD_JOBS_SWEEP_INTERVAL", 1*time.Hour),
		NotExecutedSweepInterval: getEnvDuration("NOT_EXECUTED_SWEEP_INTERVAL", 1*time.Hour),
		QueueDrainInterval:       getEnvDuration("QUEUE_DRAIN_INTERVAL", 2*time.Second),

		CacheTTL: getEnvDuration("CACHE_TTL", 5*time.Second),

		HealthAddr: getEnv("HEALTH_ADDR", ":9090"),
	}
}

func buildDBURL() string {
	host := getEnv("DB_HOST", "127.0.0.1")
	port := getEnv("DB_PORT", "5432")
	user := getEnv("DB_USER", "eventhub")
	pass := getEnv("DB_PASSWORD", "eventhub")
	name := getEnv("DB_NAME", "eventhub")
	ssl := getEnv("DB_SSLMODE", "disable")

	return "postgres://" + user + ":" + pass + "@" + host + ":" + port + "/" + name + "?sslmode=" + ssl
}

func WithTimeout(duration time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), duration)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return fallback
}
func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		num, err := strconv.Atoi(v)

		if err != nil {
			fmt.Println(err)
			return fallback
		}

		return num
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			fmt.Println(err)
			return fallback
		}
		return d
	}
	return fallback
}
