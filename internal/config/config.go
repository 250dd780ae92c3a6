package config

import (
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port         string `yaml:"port"`
		ReadTimeout  string `yaml:"read_timeout"`
		WriteTimeout string `yaml:"write_timeout"`
		AdminToken   string `yaml:"admin_token"`
	} `yaml:"server"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
		Channel  string `yaml:"channel"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Auth struct {
		Secret   string `yaml:"secret"`
		TokenTTL string `yaml:"token_ttl"`
	} `yaml:"auth"`
	Game struct {
		CodeLength         int     `yaml:"code_length"`
		CodeGrace          string  `yaml:"code_grace"`
		QuestionsPerRoom   int     `yaml:"questions_per_room"`
		FullCreditFraction float64 `yaml:"full_credit_fraction"`
		MinFraction        float64 `yaml:"min_fraction"`
		LatencyAllowance   string  `yaml:"latency_allowance"`
		IdleTimeout        string  `yaml:"idle_timeout"`
		SweepInterval      string  `yaml:"sweep_interval"`
	} `yaml:"game"`
	Questions struct {
		BankFile string `yaml:"bank_file"`
		TTL      string `yaml:"ttl"`
	} `yaml:"questions"`
}

// Load reads YAML config from path and applies environment overrides.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	cfg.applyEnv()
	return cfg, nil
}

// applyEnv lets deployments override secrets and endpoints without editing the file.
func (c *Config) applyEnv() {
	setString(&c.Redis.Addr, "REDIS_ADDR")
	setString(&c.Redis.Password, "REDIS_PASSWORD")
	setString(&c.Postgres.URL, "DATABASE_URL")
	setString(&c.Auth.Secret, "JWT_SECRET")
	setString(&c.Server.AdminToken, "ADMIN_TOKEN")
	setString(&c.Log.Level, "LOG_LEVEL")
	setString(&c.Questions.BankFile, "QUESTION_BANK_FILE")
	if raw := os.Getenv("REDIS_DB"); raw != "" {
		if db, err := strconv.Atoi(raw); err == nil {
			c.Redis.DB = db
		}
	}
}

func setString(dst *string, env string) {
	if v := os.Getenv(env); v != "" {
		*dst = v
	}
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
