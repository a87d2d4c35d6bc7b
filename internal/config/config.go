package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Auth struct {
		JWTSecret string `yaml:"jwt_secret"`
	} `yaml:"auth"`
	Questions struct {
		CacheTTL string `yaml:"cache_ttl"`
	} `yaml:"questions"`
	Rooms struct {
		Expiry             string `yaml:"expiry"`
		InitialCredits     int    `yaml:"initial_credits"`
		SweepInterval      string `yaml:"sweep_interval"`
		MinTimePerQuestion string `yaml:"min_time_per_question"`
		MaxTimePerQuestion string `yaml:"max_time_per_question"`
	} `yaml:"rooms"`
	Gamification struct {
		WeeklyGoal int    `yaml:"weekly_goal"`
		Timezone   string `yaml:"timezone"`
	} `yaml:"gamification"`
	Notifications struct {
		Queue     string `yaml:"queue"`
		DedupeTTL string `yaml:"dedupe_ttl"`
	} `yaml:"notifications"`
}

// Load reads YAML config from path and applies environment overrides. A missing file is
// fine as long as the environment carries what is needed; a .env file in the working
// directory is loaded first without overriding variables already set.
func Load(path string) (Config, error) {
	cfg := Config{}
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return cfg, err
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return cfg, err
	}
	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.Server.Port, "PORT")
	setString(&cfg.Redis.Addr, "REDIS_ADDR")
	setString(&cfg.Redis.Password, "REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "REDIS_DB")
	setString(&cfg.Postgres.URL, "DATABASE_URL")
	setString(&cfg.Auth.JWTSecret, "JWT_SECRET")
	setString(&cfg.Questions.CacheTTL, "QUESTION_CACHE_TTL")
	setString(&cfg.Rooms.Expiry, "ROOM_EXPIRY")
	setInt(&cfg.Rooms.InitialCredits, "ROOM_INITIAL_CREDITS")
	setString(&cfg.Rooms.SweepInterval, "ROOM_SWEEP_INTERVAL")
	setInt(&cfg.Gamification.WeeklyGoal, "WEEKLY_GOAL")
	setString(&cfg.Gamification.Timezone, "TIMEZONE")
	setString(&cfg.Notifications.Queue, "NOTIFICATION_QUEUE")
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
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

// Location resolves the gamification time zone, defaulting to UTC.
func (c Config) Location() (*time.Location, error) {
	if c.Gamification.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.Gamification.Timezone)
}
