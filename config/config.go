package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the chat backend
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Storage StorageConfig `mapstructure:"storage"`
	Search  SearchConfig  `mapstructure:"search"`
	Fetch   FetchConfig   `mapstructure:"fetch"`
	LLM     LLMConfig     `mapstructure:"llm"`
	Stream  StreamConfig  `mapstructure:"stream"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Address string `mapstructure:"address"`
}

// StorageConfig groups persistence settings
type StorageConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// PostgresConfig contains Postgres connection settings. URL wins when
// set; otherwise the DSN is assembled from the parts.
type PostgresConfig struct {
	URL      string `mapstructure:"url"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

func (p PostgresConfig) Validate() error {
	if strings.TrimSpace(p.URL) != "" {
		return nil
	}
	if strings.TrimSpace(p.Host) == "" {
		return fmt.Errorf("storage.postgres.host required when url is not provided")
	}
	if strings.TrimSpace(p.Port) == "" {
		return fmt.Errorf("storage.postgres.port required when url is not provided")
	}
	if strings.TrimSpace(p.DBName) == "" {
		return fmt.Errorf("storage.postgres.dbname required when url is not provided")
	}
	return nil
}

// DSN returns the connection string for lib/pq.
func (p PostgresConfig) DSN() string {
	if strings.TrimSpace(p.URL) != "" {
		return p.URL
	}
	ssl := p.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", p.User, p.Password, p.Host, p.Port, p.DBName, ssl)
}

// SearchConfig contains web-search provider and retrieval settings
type SearchConfig struct {
	Provider    string `mapstructure:"provider"`
	APIKey      string `mapstructure:"api_key"`
	Endpoint    string `mapstructure:"endpoint"`
	NumResults  int    `mapstructure:"num_results"`
	TopK        int    `mapstructure:"top_k"`
	MaxKeywords int    `mapstructure:"max_keywords"`
	MaxWorkers  int    `mapstructure:"max_workers"`
	TTLDays     int    `mapstructure:"ttl_days"`
}

func (s SearchConfig) Validate() error {
	if s.Provider != "bocha" && s.Provider != "tavily" {
		return fmt.Errorf("search.provider must be bocha or tavily, got %q", s.Provider)
	}
	if s.NumResults <= 0 {
		return fmt.Errorf("search.num_results must be > 0")
	}
	return nil
}

// TTL converts the day-granular cache lifetime into a duration. Zero
// means every read misses while writes still land.
func (s SearchConfig) TTL() time.Duration {
	return time.Duration(s.TTLDays) * 24 * time.Hour
}

// FetchConfig contains page-fetching settings
type FetchConfig struct {
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxWorkers int           `mapstructure:"max_workers"`
	MaxDocLen  int           `mapstructure:"max_doc_len"`
}

// LLMConfig contains the OpenAI-compatible endpoint settings
type LLMConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
	Model   string `mapstructure:"model"`
}

// StreamConfig controls reasoning-stream truncation
type StreamConfig struct {
	PivotWords []string `mapstructure:"pivot_words"`
}

// LoadConfig loads config from file
func LoadConfig(path string) *Config {
	viper.SetConfigName("config")
	viper.SetConfigType("json")

	viper.SetDefault("server.address", ":8080")
	viper.SetDefault("search.provider", "bocha")
	viper.SetDefault("search.num_results", 10)
	viper.SetDefault("search.top_k", 2)
	viper.SetDefault("search.max_keywords", 4)
	viper.SetDefault("search.max_workers", 32)
	viper.SetDefault("search.ttl_days", 0)
	viper.SetDefault("fetch.timeout", "4s")
	viper.SetDefault("fetch.max_workers", 32)
	viper.SetDefault("fetch.max_doc_len", 3000)
	viper.SetDefault("llm.base_url", "https://cloud.infini-ai.com/maas/v1")
	viper.SetDefault("llm.model", "qwen2.5-72b-instruct")
	viper.SetDefault("stream.pivot_words", []string{"Wait", "wait", "Alternatively", "alternatively"})
	viper.SetDefault("storage.postgres.sslmode", "disable")

	if path == "" {
		viper.AddConfigPath("./config")
		viper.AddConfigPath(".")
		exe, _ := os.Executable()
		exeDir := filepath.Dir(exe)
		viper.AddConfigPath(exeDir)
		viper.AddConfigPath(filepath.Join(exeDir, ".."))
		viper.AddConfigPath(filepath.Join(exeDir, "..", "config"))
	} else {
		viper.SetConfigFile(path)
	}

	viper.SetEnvPrefix("DEEPCHAT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv() // read in environment variables that match (DEEPCHAT_*)

	if err := viper.ReadInConfig(); err != nil {
		// Env-only deployments carry no file; anything else is fatal.
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			panic(fmt.Errorf("fatal error config file: %w", err))
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}

	if err := config.Storage.Postgres.Validate(); err != nil {
		panic(err)
	}
	if err := config.Search.Validate(); err != nil {
		panic(err)
	}
	return &config
}
