package config

import (
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

// Settings is the process configuration read from the environment.
type Settings struct {
	Port           string   `env:"PORT" envDefault:"8080"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:","`
	LogLevel       string   `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat      string   `env:"LOG_FORMAT" envDefault:"json"`
	LogFile        string   `env:"LOG_FILE"`

	DBHost     string `env:"DB_HOST" envDefault:"localhost"`
	DBPort     string `env:"DB_PORT" envDefault:"5432"`
	DBUser     string `env:"DB_USER"`
	DBPassword string `env:"DB_PASSWORD"`
	DBName     string `env:"DB_NAME"`
	DBSSLMode  string `env:"DB_SSLMODE" envDefault:"disable"`

	RunMigrations bool   `env:"RUN_MIGRATIONS" envDefault:"false"`
	MigrationsDir string `env:"MIGRATIONS_DIR" envDefault:"migrations"`

	RedisURL string `env:"REDIS_URL"`

	RabbitMQHost     string `env:"RABBITMQ_HOST"`
	RabbitMQPort     string `env:"RABBITMQ_PORT" envDefault:"5672"`
	RabbitMQUser     string `env:"RABBITMQ_USER" envDefault:"guest"`
	RabbitMQPassword string `env:"RABBITMQ_PASSWORD" envDefault:"guest"`

	SettlementWorkers int           `env:"SETTLEMENT_WORKERS" envDefault:"8"`
	SettlementTimeout time.Duration `env:"SETTLEMENT_TIMEOUT" envDefault:"10m"`
	WeekLockTTL       time.Duration `env:"WEEK_LOCK_TTL" envDefault:"15m"`
	SettlementCron    string        `env:"SETTLEMENT_CRON" envDefault:"0 30 0 * * MON"`
	GhostSweepCron    string        `env:"GHOST_SWEEP_CRON" envDefault:"0 */15 * * * *"`
	AutoFinalize      bool          `env:"AUTO_FINALIZE" envDefault:"false"`

	RateLimitRPS   float64 `env:"RATE_LIMIT_RPS" envDefault:"2"`
	RateLimitBurst int     `env:"RATE_LIMIT_BURST" envDefault:"5"`
}

var Env *Settings

// LoadSettings reads an optional .env file and then the environment.
func LoadSettings() *Settings {
	if err := godotenv.Load(); err != nil {
		log.Debug("No .env file loaded, using process environment")
	}
	s, err := env.ParseAs[Settings]()
	if err != nil {
		log.Fatal("Failed to parse environment: ", err)
	}
	for i, o := range s.AllowedOrigins {
		s.AllowedOrigins[i] = strings.TrimSpace(o)
	}
	Env = &s
	return Env
}

// RabbitMQEnabled reports whether a broker is configured.
func (s *Settings) RabbitMQEnabled() bool {
	return s.RabbitMQHost != ""
}
