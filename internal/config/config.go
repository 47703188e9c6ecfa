package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
	"golang.org/x/text/language"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
// If FOO_FILE is set, reads the file content and sets FOO.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	fileKey := envKey + "_FILE"
	filePath := os.Getenv(fileKey)
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	val := strings.TrimSpace(string(data))
	os.Setenv(envKey, val)
}

type Config struct {
	Server    ServerConfig
	Redis     RedisConfig
	JWT       JWTConfig
	RateLimit RateLimitConfig
	OpenAI    OpenAIConfig
	ImageGen  ImageGenConfig
	R2        R2Config
	YouTube   YouTubeConfig
	News      NewsConfig
	Scrape    ScrapeConfig
	Blog      BlogConfig
	Discord   DiscordConfig
	Digest    DigestConfig
	Portfolio PortfolioConfig
	Gateway   GatewayConfig
}

type ServerConfig struct {
	Port     string
	Env      string
	LogLevel string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Expiration int // hours
}

type RateLimitConfig struct {
	RunsPerHour int
	JobsPerMin  int
}

type OpenAIConfig struct {
	APIKey           string
	BaseURL          string
	Model            string
	CompletionWindow string // batch completion window, e.g. "24h"
}

type ImageGenConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	PublicURL       string
}

type YouTubeConfig struct {
	APIKey        string
	BaseURL       string
	TranscriptURL string // transcript extraction service
}

type NewsConfig struct {
	APIKey  string
	BaseURL string
}

type ScrapeConfig struct {
	ServiceURL   string
	Timeout      int // seconds
	PortfolioURL string
}

type BlogConfig struct {
	BaseURL  string
	APIToken string
}

type DiscordConfig struct {
	WebhookURL string
}

type DigestConfig struct {
	Channels      []string
	Languages     []string // translation targets, BCP 47 tags
	CachePath     string
	ArtifactDir   string
	ChunkSize     int
	MaxUnits      int
	LookbackHours int
	Cron          string
	PollCron      string
}

type PortfolioConfig struct {
	Cron string
}

type GatewayConfig struct {
	Enabled bool
}

func Load() (*Config, error) {
	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("REDIS_PASSWORD")
	readSecret("JWT_SECRET")
	readSecret("OPENAI_API_KEY")
	readSecret("IMAGEGEN_API_KEY")
	readSecret("R2_ACCOUNT_ID")
	readSecret("R2_ACCESS_KEY_ID")
	readSecret("R2_SECRET_ACCESS_KEY")
	readSecret("YOUTUBE_API_KEY")
	readSecret("NEWS_API_KEY")
	readSecret("BLOG_API_TOKEN")
	readSecret("DISCORD_WEBHOOK_URL")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Environment variables
	viper.AutomaticEnv()

	// Bind environment variables with underscores to nested config keys
	_ = viper.BindEnv("server.port", "SERVER_PORT")
	_ = viper.BindEnv("server.env", "SERVER_ENV")
	_ = viper.BindEnv("server.log_level", "LOG_LEVEL")
	_ = viper.BindEnv("redis.addr", "REDIS_ADDR")
	_ = viper.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = viper.BindEnv("redis.db", "REDIS_DB")
	_ = viper.BindEnv("jwt.secret", "JWT_SECRET")
	_ = viper.BindEnv("jwt.expiration", "JWT_EXPIRATION")
	_ = viper.BindEnv("ratelimit.runs_per_hour", "RATELIMIT_RUNS_PER_HOUR")
	_ = viper.BindEnv("ratelimit.jobs_per_min", "RATELIMIT_JOBS_PER_MIN")
	_ = viper.BindEnv("openai.api_key", "OPENAI_API_KEY")
	_ = viper.BindEnv("openai.base_url", "OPENAI_BASE_URL")
	_ = viper.BindEnv("openai.model", "OPENAI_MODEL")
	_ = viper.BindEnv("openai.completion_window", "OPENAI_COMPLETION_WINDOW")
	_ = viper.BindEnv("imagegen.api_key", "IMAGEGEN_API_KEY")
	_ = viper.BindEnv("imagegen.base_url", "IMAGEGEN_BASE_URL")
	_ = viper.BindEnv("imagegen.model", "IMAGEGEN_MODEL")
	_ = viper.BindEnv("r2.account_id", "R2_ACCOUNT_ID")
	_ = viper.BindEnv("r2.access_key_id", "R2_ACCESS_KEY_ID")
	_ = viper.BindEnv("r2.secret_access_key", "R2_SECRET_ACCESS_KEY")
	_ = viper.BindEnv("r2.bucket_name", "R2_BUCKET_NAME")
	_ = viper.BindEnv("r2.public_url", "R2_PUBLIC_URL")
	_ = viper.BindEnv("youtube.api_key", "YOUTUBE_API_KEY")
	_ = viper.BindEnv("youtube.base_url", "YOUTUBE_BASE_URL")
	_ = viper.BindEnv("youtube.transcript_url", "YOUTUBE_TRANSCRIPT_URL")
	_ = viper.BindEnv("news.api_key", "NEWS_API_KEY")
	_ = viper.BindEnv("news.base_url", "NEWS_BASE_URL")
	_ = viper.BindEnv("scrape.service_url", "SCRAPE_SERVICE_URL")
	_ = viper.BindEnv("scrape.timeout", "SCRAPE_TIMEOUT")
	_ = viper.BindEnv("scrape.portfolio_url", "SCRAPE_PORTFOLIO_URL")
	_ = viper.BindEnv("blog.base_url", "BLOG_BASE_URL")
	_ = viper.BindEnv("blog.api_token", "BLOG_API_TOKEN")
	_ = viper.BindEnv("discord.webhook_url", "DISCORD_WEBHOOK_URL")
	_ = viper.BindEnv("digest.channels", "DIGEST_CHANNELS")
	_ = viper.BindEnv("digest.languages", "DIGEST_LANGUAGES")
	_ = viper.BindEnv("digest.cache_path", "DIGEST_CACHE_PATH")
	_ = viper.BindEnv("digest.artifact_dir", "DIGEST_ARTIFACT_DIR")
	_ = viper.BindEnv("digest.chunk_size", "DIGEST_CHUNK_SIZE")
	_ = viper.BindEnv("digest.max_units", "DIGEST_MAX_UNITS")
	_ = viper.BindEnv("digest.lookback_hours", "DIGEST_LOOKBACK_HOURS")
	_ = viper.BindEnv("digest.cron", "DIGEST_CRON")
	_ = viper.BindEnv("digest.poll_cron", "DIGEST_POLL_CRON")
	_ = viper.BindEnv("portfolio.cron", "PORTFOLIO_CRON")
	_ = viper.BindEnv("gateway.enabled", "GATEWAY_ENABLED")

	// Defaults
	viper.SetDefault("server.port", "8000")
	viper.SetDefault("server.env", "development")
	viper.SetDefault("server.log_level", "info")
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("jwt.secret", "change-me-in-production")
	viper.SetDefault("jwt.expiration", 24)
	viper.SetDefault("ratelimit.runs_per_hour", 20)
	viper.SetDefault("ratelimit.jobs_per_min", 60)

	// OpenAI defaults
	viper.SetDefault("openai.base_url", "")
	viper.SetDefault("openai.model", "gpt-4o-mini")
	viper.SetDefault("openai.completion_window", "24h")

	// Image generation defaults
	viper.SetDefault("imagegen.base_url", "https://generativelanguage.googleapis.com")
	viper.SetDefault("imagegen.model", "gemini-2.5-flash-image")

	// YouTube defaults
	viper.SetDefault("youtube.base_url", "https://www.googleapis.com/youtube/v3")
	viper.SetDefault("youtube.transcript_url", "http://localhost:8091")

	// News defaults
	viper.SetDefault("news.base_url", "https://newsapi.org")

	// Scraper service defaults
	viper.SetDefault("scrape.service_url", "http://localhost:8092")
	viper.SetDefault("scrape.timeout", 90)

	// Digest pipeline defaults
	viper.SetDefault("digest.channels", "")
	viper.SetDefault("digest.languages", "")
	viper.SetDefault("digest.cache_path", "batch-jobs.json")
	viper.SetDefault("digest.artifact_dir", "artifacts")
	viper.SetDefault("digest.chunk_size", 4)
	viper.SetDefault("digest.max_units", 20)
	viper.SetDefault("digest.lookback_hours", 24)
	viper.SetDefault("digest.cron", "0 21 * * *")
	viper.SetDefault("digest.poll_cron", "@every 2m")

	// Portfolio defaults
	viper.SetDefault("portfolio.cron", "30 22 * * *")

	// Gateway defaults
	viper.SetDefault("gateway.enabled", false)

	// Try to read config file (optional)
	_ = viper.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:     viper.GetString("server.port"),
			Env:      viper.GetString("server.env"),
			LogLevel: viper.GetString("server.log_level"),
		},
		Redis: RedisConfig{
			Addr:     viper.GetString("redis.addr"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			Secret:     viper.GetString("jwt.secret"),
			Expiration: viper.GetInt("jwt.expiration"),
		},
		RateLimit: RateLimitConfig{
			RunsPerHour: viper.GetInt("ratelimit.runs_per_hour"),
			JobsPerMin:  viper.GetInt("ratelimit.jobs_per_min"),
		},
		OpenAI: OpenAIConfig{
			APIKey:           viper.GetString("openai.api_key"),
			BaseURL:          viper.GetString("openai.base_url"),
			Model:            viper.GetString("openai.model"),
			CompletionWindow: viper.GetString("openai.completion_window"),
		},
		ImageGen: ImageGenConfig{
			APIKey:  viper.GetString("imagegen.api_key"),
			BaseURL: viper.GetString("imagegen.base_url"),
			Model:   viper.GetString("imagegen.model"),
		},
		R2: R2Config{
			AccountID:       viper.GetString("r2.account_id"),
			AccessKeyID:     viper.GetString("r2.access_key_id"),
			SecretAccessKey: viper.GetString("r2.secret_access_key"),
			BucketName:      viper.GetString("r2.bucket_name"),
			PublicURL:       viper.GetString("r2.public_url"),
		},
		YouTube: YouTubeConfig{
			APIKey:        viper.GetString("youtube.api_key"),
			BaseURL:       viper.GetString("youtube.base_url"),
			TranscriptURL: viper.GetString("youtube.transcript_url"),
		},
		News: NewsConfig{
			APIKey:  viper.GetString("news.api_key"),
			BaseURL: viper.GetString("news.base_url"),
		},
		Scrape: ScrapeConfig{
			ServiceURL:   viper.GetString("scrape.service_url"),
			Timeout:      viper.GetInt("scrape.timeout"),
			PortfolioURL: viper.GetString("scrape.portfolio_url"),
		},
		Blog: BlogConfig{
			BaseURL:  viper.GetString("blog.base_url"),
			APIToken: viper.GetString("blog.api_token"),
		},
		Discord: DiscordConfig{
			WebhookURL: viper.GetString("discord.webhook_url"),
		},
		Digest: DigestConfig{
			Channels:      splitList(viper.GetString("digest.channels")),
			Languages:     splitList(viper.GetString("digest.languages")),
			CachePath:     viper.GetString("digest.cache_path"),
			ArtifactDir:   viper.GetString("digest.artifact_dir"),
			ChunkSize:     viper.GetInt("digest.chunk_size"),
			MaxUnits:      viper.GetInt("digest.max_units"),
			LookbackHours: viper.GetInt("digest.lookback_hours"),
			Cron:          viper.GetString("digest.cron"),
			PollCron:      viper.GetString("digest.poll_cron"),
		},
		Portfolio: PortfolioConfig{
			Cron: viper.GetString("portfolio.cron"),
		},
		Gateway: GatewayConfig{
			Enabled: viper.GetBool("gateway.enabled"),
		},
	}

	if err := validateLanguages(cfg.Digest.Languages); err != nil {
		return nil, err
	}

	return cfg, nil
}

// splitList parses a comma-separated config value into a clean slice
func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// validateLanguages rejects translation targets that are not valid BCP 47 tags
func validateLanguages(tags []string) error {
	for _, tag := range tags {
		if _, err := language.Parse(tag); err != nil {
			return fmt.Errorf("invalid digest language %q: %w", tag, err)
		}
	}
	return nil
}
