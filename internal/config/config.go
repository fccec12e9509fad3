package config

import (
	"fmt"
	"log"
	"strings"

	"jonglog-service/internal/engine"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	Rules    engine.Rules   `mapstructure:"rules"`
	TieBreak TieBreakConfig `mapstructure:"tieBreak"`
	Feed     FeedConfig     `mapstructure:"feed"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug, release
}

type DatabaseConfig struct {
	Driver string `mapstructure:"driver"` // postgres, mysql, sqlite
	DSN    string `mapstructure:"dsn"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type JWTConfig struct {
	Secret string `mapstructure:"secret"`
	Expire int    `mapstructure:"expire"` // hours
}

type TieBreakConfig struct {
	TTLSeconds int `mapstructure:"ttlSeconds"`
}

type FeedConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

var GlobalConfig *Config

func setDefaults(v *viper.Viper) {
	def := engine.DefaultRules()
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("jwt.expire", 72)
	v.SetDefault("rules.startScore", def.StartScore)
	v.SetDefault("rules.returnScore", def.ReturnScore)
	v.SetDefault("rules.uma", def.Uma)
	v.SetDefault("rules.tieBreaker", string(def.TieBreaker))
	v.SetDefault("tieBreak.ttlSeconds", 600)
	v.SetDefault("feed.enabled", true)
}

// Load reads the YAML file at path. Keys can be overridden from the
// environment with the JONGLOG_ prefix, e.g. JONGLOG_SERVER_PORT.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("JONGLOG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Rules.Validate(); err != nil {
		return nil, err
	}
	cfg.Rules = cfg.Rules.Normalize()
	return &cfg, nil
}

func LoadConfig(path string) {
	cfg, err := Load(path)
	if err != nil {
		log.Fatalf("Error loading config, %s", err)
	}
	GlobalConfig = cfg
}
