package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type DBConfig struct {
	URL string `yaml:"url"`
}

type AMQPConfig struct {
	URL      string `yaml:"url"`
	Exchange string `yaml:"exchange"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type JWTConfig struct {
	Secret string `yaml:"secret"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type FeesConfig struct {
	// PlatformRate is the fraction taken on funding and release, e.g. "0.10".
	PlatformRate string `yaml:"platform_rate"`
}

type Config struct {
	DB     DBConfig     `yaml:"db"`
	AMQP   AMQPConfig   `yaml:"amqp"`
	Redis  RedisConfig  `yaml:"redis"`
	JWT    JWTConfig    `yaml:"jwt"`
	Server ServerConfig `yaml:"server"`
	Fees   FeesConfig   `yaml:"fees"`
}

// Load reads the YAML config at path and applies environment overrides. A
// missing file is not an error so a container can run on env vars alone.
func Load(path string) (*Config, error) {
	cfg := &Config{
		AMQP:   AMQPConfig{Exchange: "events"},
		Server: ServerConfig{Addr: ":8080"},
		Fees:   FeesConfig{PlatformRate: "0.10"},
	}

	if path != "" {
		f, err := os.Open(path)
		switch {
		case err == nil:
			defer f.Close()
			if err := yaml.NewDecoder(f).Decode(cfg); err != nil {
				return nil, fmt.Errorf("config: decode %s: %w", path, err)
			}
		case os.IsNotExist(err):
			// env-only deployment
		default:
			return nil, fmt.Errorf("config: open %s: %w", path, err)
		}
	}

	overrideFromEnv(cfg)

	if cfg.DB.URL == "" {
		return nil, fmt.Errorf("config: database url is required")
	}
	return cfg, nil
}

func overrideFromEnv(cfg *Config) {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DB.URL = v
	}
	if v := os.Getenv("AMQP_URL"); v != "" {
		cfg.AMQP.URL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		cfg.JWT.Secret = v
	}
	if v := os.Getenv("SERVER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("PLATFORM_FEE_RATE"); v != "" {
		cfg.Fees.PlatformRate = v
	}
}
