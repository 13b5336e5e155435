package config

import (
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	Database DatabaseConfig `mapstructure:"database"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Quest    QuestConfig    `mapstructure:"quest"`
	Security SecurityConfig `mapstructure:"security"`
	Script   ScriptConfig   `mapstructure:"script"`
}

type ServerConfig struct {
	Port     int    `mapstructure:"port" env:"PORT"`
	Debug    bool   `mapstructure:"debug" env:"DEBUG"`
	AdminKey string `mapstructure:"admin_key" env:"ADMIN_KEY"`
	// AdminWhitelist restricts the admin API to these IPs/CIDRs; empty allows all.
	AdminWhitelist []string `mapstructure:"admin_whitelist" env:"ADMIN_WHITELIST"`
}

type LogConfig struct {
	File       string `mapstructure:"file" env:"LOG_FILE"` // empty logs to stderr only
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

type DatabaseConfig struct {
	Mode         string        `mapstructure:"mode" env:"DB_MODE"` // sqlite | mysql
	SQLitePath   string        `mapstructure:"sqlite_path" env:"SQLITE_PATH"`
	MySQLDSN     string        `mapstructure:"mysql_dsn" env:"MYSQL_DSN"`
	MySQLMaxOpen int           `mapstructure:"mysql_max_open"`
	MySQLMaxIdle int           `mapstructure:"mysql_max_idle"`
	MySQLMaxLife time.Duration `mapstructure:"mysql_max_life"`
}

type CacheConfig struct {
	RedisAddr       string        `mapstructure:"redis_addr" env:"REDIS_ADDR"`
	RedisPassword   string        `mapstructure:"redis_password" env:"REDIS_PASSWORD"`
	RedisDB         int           `mapstructure:"redis_db"`
	LocalGCInterval time.Duration `mapstructure:"local_gc_interval"`
	LocalPubSubBuf  int           `mapstructure:"local_pubsub_buf"`
}

// StorageConfig picks where quest definitions and player progress live.
type StorageConfig struct {
	Backend string `mapstructure:"backend" env:"STORAGE_BACKEND"` // gorm | cache
	// QuestDir, when set, is a directory of *.yaml quest definitions
	// imported at startup.
	QuestDir string `mapstructure:"quest_dir" env:"QUEST_DIR"`
}

type QuestConfig struct {
	// DependencyGating locks objectives until their dependencies complete.
	DependencyGating bool          `mapstructure:"dependency_gating"`
	FlushInterval    time.Duration `mapstructure:"flush_interval"`
	EvictInterval    time.Duration `mapstructure:"evict_interval"`
	JournalEnabled   bool          `mapstructure:"journal_enabled"`
}

type SecurityConfig struct {
	JWTSecret      string        `mapstructure:"jwt_secret" env:"JWT_SECRET"`
	JWTTTLH        time.Duration `mapstructure:"jwt_ttl_h"`
	RateLimitRPS   float64       `mapstructure:"rate_limit_rps"`
	RateLimitBurst int           `mapstructure:"rate_limit_burst"`
	// AllowedOrigins lists the WebSocket/SSE origins that are permitted.
	// An empty slice allows all origins (useful for local development only).
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type ScriptConfig struct {
	VMPoolSize int           `mapstructure:"vm_pool_size"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// EnvPrefix prefixes every environment override.
const EnvPrefix = "QUESTFORGE_"

// Load reads config from the given YAML file path, then applies
// QUESTFORGE_* environment overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	return decode(v)
}

// Default returns the defaults with environment overrides applied.
func Default() (*Config, error) {
	v := viper.New()
	setDefaults(v)
	return decode(v)
}

func decode(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.debug", false)
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 30)
	v.SetDefault("database.mode", "sqlite")
	v.SetDefault("database.sqlite_path", "./data/quests.db")
	v.SetDefault("database.mysql_max_open", 50)
	v.SetDefault("database.mysql_max_idle", 10)
	v.SetDefault("database.mysql_max_life", "1h")
	v.SetDefault("cache.local_gc_interval", "30s")
	v.SetDefault("cache.local_pubsub_buf", 256)
	v.SetDefault("storage.backend", "gorm")
	v.SetDefault("quest.flush_interval", "5s")
	v.SetDefault("quest.evict_interval", "1m")
	v.SetDefault("quest.journal_enabled", true)
	v.SetDefault("security.jwt_ttl_h", "72h")
	v.SetDefault("security.rate_limit_rps", 100)
	v.SetDefault("security.rate_limit_burst", 200)
	v.SetDefault("script.vm_pool_size", 8)
	v.SetDefault("script.timeout", "5s")
}
