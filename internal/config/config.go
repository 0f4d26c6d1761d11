package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

type Config struct {
	PostgresConn        string
	ServerAddress       string
	Schedule            string
	Workers             int
	RankChangeThreshold int
	DryRun              bool
	RunOnStart          bool
	RedisAddr           string
	RedisStream         string
	NotifyRatePerSec    float64
	LogLevel            logrus.Level
	LogFormat           string
	MigrationsEnabled   bool
}

// Load читает конфигурацию из окружения. Если рядом есть .env,
// его значения подставляются, но не перекрывают уже заданные переменные.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !os.IsNotExist(err) {
			return nil, errors.Wrapf(err, "load %s", f)
		}
	}

	cfg := &Config{
		PostgresConn:  os.Getenv("POSTGRES_CONN"),
		ServerAddress: getEnv("SERVER_ADDRESS", "0.0.0.0:8080"),
		Schedule:      getEnv("RANKING_SCHEDULE", "@every 5m"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisStream:   getEnv("REDIS_STREAM", "ranking:events"),
		LogFormat:     strings.ToLower(getEnv("LOG_FORMAT", "text")),
	}
	if cfg.PostgresConn == "" {
		return nil, errors.New("POSTGRES_CONN env variable is not set")
	}

	var err error
	if cfg.Workers, err = getInt("RANKING_WORKERS", 4); err != nil {
		return nil, err
	}
	if cfg.Workers < 1 {
		return nil, errors.Errorf("RANKING_WORKERS must be positive, got %d", cfg.Workers)
	}
	if cfg.RankChangeThreshold, err = getInt("RANK_CHANGE_THRESHOLD", 2); err != nil {
		return nil, err
	}
	if cfg.RankChangeThreshold < 1 {
		return nil, errors.Errorf("RANK_CHANGE_THRESHOLD must be positive, got %d", cfg.RankChangeThreshold)
	}
	if cfg.DryRun, err = getBool("RANKING_DRY_RUN", false); err != nil {
		return nil, err
	}
	if cfg.RunOnStart, err = getBool("RANKING_RUN_ON_START", true); err != nil {
		return nil, err
	}
	if cfg.MigrationsEnabled, err = getBool("MIGRATIONS_ENABLED", true); err != nil {
		return nil, err
	}
	if cfg.NotifyRatePerSec, err = getFloat("NOTIFY_RATE_PER_SEC", 50); err != nil {
		return nil, err
	}
	if cfg.LogLevel, err = logrus.ParseLevel(getEnv("LOG_LEVEL", "info")); err != nil {
		return nil, errors.Wrap(err, "LOG_LEVEL")
	}
	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		return nil, errors.Errorf("LOG_FORMAT must be text or json, got %q", cfg.LogFormat)
	}
	return cfg, nil
}

// NewLogger собирает logrus.Logger по настройкам
func (c *Config) NewLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(c.LogLevel)
	if c.LogFormat == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return log
}

func getEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, errors.Wrapf(err, "%s", key)
	}
	return n, nil
}

func getFloat(key string, def float64) (float64, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "%s", key)
	}
	return f, nil
}

func getBool(key string, def bool) (bool, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, errors.Wrapf(err, "%s", key)
	}
	return b, nil
}
