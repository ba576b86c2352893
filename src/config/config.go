package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Service ServiceConfig `mapstructure:"service"`
	Backend BackendConfig `mapstructure:"backend"`
	Storage StorageConfig `mapstructure:"storage"`
	Polling PollingConfig `mapstructure:"polling"`
	Session SessionConfig `mapstructure:"session"`
	Log     LogConfig     `mapstructure:"log"`
}

type ServiceConfig struct {
	Port           string   `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowedOrigins"`
}

type BackendConfig struct {
	BaseURL    string        `mapstructure:"baseUrl"`
	Timeout    time.Duration `mapstructure:"timeout"`
	Retries    uint64        `mapstructure:"retries"`
	RetryDelay time.Duration `mapstructure:"retryDelay"`
}

type StorageDriver string

const (
	RedisStorage  StorageDriver = "redis"
	MemoryStorage StorageDriver = "memory"
)

type StorageConfig struct {
	Driver   StorageDriver `mapstructure:"driver"`
	CacheTTL time.Duration `mapstructure:"cacheTTL"`
	Redis    RedisConfig   `mapstructure:"redis"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Database int    `mapstructure:"database"`
	TLS      bool   `mapstructure:"tls"`
}

type PollingConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

type SessionConfig struct {
	RevalidateCron string `mapstructure:"revalidateCron"`
}

type LogConfig struct {
	Level    string `mapstructure:"level"`
	ToFile   bool   `mapstructure:"toFile"`
	FilePath string `mapstructure:"filePath"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("service.port", "8000")
	v.SetDefault("backend.baseUrl", "http://localhost:8080")
	v.SetDefault("backend.timeout", 10*time.Second)
	v.SetDefault("backend.retries", 2)
	v.SetDefault("backend.retryDelay", 200*time.Millisecond)
	v.SetDefault("storage.driver", string(MemoryStorage))
	v.SetDefault("storage.cacheTTL", 10*time.Minute)
	v.SetDefault("polling.interval", 10*time.Second)
	v.SetDefault("session.revalidateCron", "@every 15m")
	v.SetDefault("log.level", "info")
}

// LoadConfig reads settings/appsettings.yaml and, when env is set, merges
// appsettings.<env>.yaml on top. STOCKDESK_* environment variables win over both.
func LoadConfig(path string, env string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	var cfg Config
	v := viper.New()
	setDefaults(v)

	v.AddConfigPath(path)
	v.SetConfigName("appsettings")
	v.SetConfigType("yaml")
	v.SetEnvPrefix("STOCKDESK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	err := v.ReadInConfig()
	if err != nil {
		return nil, err
	}

	if env != "" {
		v.SetConfigName("appsettings." + env)
		err = v.MergeInConfig()
		var notFound viper.ConfigFileNotFoundError
		if err != nil && !errors.As(err, &notFound) {
			return nil, err
		}
	}

	err = v.Unmarshal(&cfg)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}
