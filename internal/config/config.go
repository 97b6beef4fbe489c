package config

import (
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Feed struct {
		BaseURL        string `mapstructure:"base_url"`
		Station        string `mapstructure:"station"`
		LoopstreamURL  string `mapstructure:"loopstream_url"`
		TimeoutSeconds int    `mapstructure:"timeout_seconds"`
		ImageTimeout   int    `mapstructure:"image_timeout_seconds"`
		Attempts       int    `mapstructure:"fetch_attempts"`
		UserAgent      string `mapstructure:"user_agent"`
	} `mapstructure:"feed"`
	Sync struct {
		LiveInterval     int `mapstructure:"live_interval_seconds"`
		BackupInterval   int `mapstructure:"backup_interval_minutes"`
		HistoricalDays   int `mapstructure:"historical_days"`
		RetentionDays    int `mapstructure:"retention_days"`
		ThrottleMillis   int `mapstructure:"throttle_millis"`
		CompletionGraceM int `mapstructure:"completion_grace_minutes"`
	} `mapstructure:"sync"`
	Images struct {
		MaxWidth int    `mapstructure:"max_width"`
		Bucket   string `mapstructure:"bucket"`
	} `mapstructure:"images"`
	Storage struct {
		Provider     string `mapstructure:"provider"`
		LocalStorage string `mapstructure:"local_path"`
		KeyID        string `mapstructure:"key_id"`
		AppKey       string `mapstructure:"app_key"`
		Endpoint     string `mapstructure:"endpoint"`
		Region       string `mapstructure:"region"`
	} `mapstructure:"storage"`
	Server struct {
		Port        string `mapstructure:"port"`
		MetricsPort string `mapstructure:"metrics_port"`
		LogLevel    string `mapstructure:"log_level"`
	} `mapstructure:"server"`
	Database struct {
		Host     string `mapstructure:"host"`
		Port     string `mapstructure:"port"`
		User     string `mapstructure:"user"`
		Password string `mapstructure:"password"`
		Name     string `mapstructure:"name"`
	} `mapstructure:"database"`
}

// FeedTimeout is the timeout used for live/list/detail fetches.
func (c *Config) FeedTimeout() time.Duration {
	return time.Duration(c.Feed.TimeoutSeconds) * time.Second
}

// ImageTimeout is the (longer) timeout used for binary downloads.
func (c *Config) ImageTimeout() time.Duration {
	return time.Duration(c.Feed.ImageTimeout) * time.Second
}

func Load() *Config {
	viper.SetEnvPrefix("FM4")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Register keys
	viper.BindEnv("feed.base_url")
	viper.BindEnv("feed.station")
	viper.BindEnv("feed.loopstream_url")
	viper.BindEnv("feed.timeout_seconds")
	viper.BindEnv("feed.image_timeout_seconds")
	viper.BindEnv("feed.fetch_attempts")
	viper.BindEnv("feed.user_agent")

	viper.BindEnv("sync.live_interval_seconds")
	viper.BindEnv("sync.backup_interval_minutes")
	viper.BindEnv("sync.historical_days")
	viper.BindEnv("sync.retention_days")
	viper.BindEnv("sync.throttle_millis")
	viper.BindEnv("sync.completion_grace_minutes")

	viper.BindEnv("images.max_width")
	viper.BindEnv("images.bucket")

	viper.BindEnv("storage.provider")
	viper.BindEnv("storage.local_path")
	viper.BindEnv("storage.key_id")
	viper.BindEnv("storage.app_key")
	viper.BindEnv("storage.endpoint")
	viper.BindEnv("storage.region")

	viper.BindEnv("server.port")
	viper.BindEnv("server.metrics_port")
	viper.BindEnv("server.log_level")

	// Register Database keys
	viper.BindEnv("database.host")
	viper.BindEnv("database.port")
	viper.BindEnv("database.user")
	viper.BindEnv("database.password")
	viper.BindEnv("database.name")

	// Defaults
	viper.SetDefault("feed.base_url", "https://audioapi.orf.at/fm4/api/json/current")
	viper.SetDefault("feed.station", "fm4")
	viper.SetDefault("feed.loopstream_url", "https://loopstream01.apa.at/?channel=fm4")
	viper.SetDefault("feed.timeout_seconds", 10)
	viper.SetDefault("feed.image_timeout_seconds", 30)
	viper.SetDefault("feed.fetch_attempts", 3)
	viper.SetDefault("feed.user_agent", "fm4-api-backend/1.0")

	viper.SetDefault("sync.live_interval_seconds", 30)
	viper.SetDefault("sync.backup_interval_minutes", 5)
	viper.SetDefault("sync.historical_days", 30)
	viper.SetDefault("sync.retention_days", 90)
	viper.SetDefault("sync.throttle_millis", 500)
	viper.SetDefault("sync.completion_grace_minutes", 5)

	viper.SetDefault("images.max_width", 1024)
	viper.SetDefault("images.bucket", "images")

	viper.SetDefault("storage.provider", "local")
	viper.SetDefault("storage.local_path", "./data")

	viper.SetDefault("server.port", ":8080")
	viper.SetDefault("server.metrics_port", ":9091")
	viper.SetDefault("server.log_level", "error")

	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", "5432")
	viper.SetDefault("database.user", "fm4")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("../")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("Warning: Config error: %s", err)
		} else {
			log.Println("Info: config.yaml not found, using Environment Variables only.")
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		log.Fatalf("Unable to decode config: %v", err)
	}

	if cfg.Database.Name == "" {
		log.Fatal("Critical: Database name is missing (FM4_DATABASE_NAME)")
	}

	return &cfg
}
