package config

import (
	"fmt"
	"reflect"
	"runtime"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config carries everything the pipeline needs. Every field is bound to an
// environment variable of the same name as its mapstructure tag.
type Config struct {
	// OpenAI-compatible API
	APIKey           string `mapstructure:"OPENAI_API_KEY"`
	APIBaseURL       string `mapstructure:"OPENAI_BASE_URL"`
	ChatModel        string `mapstructure:"CHAT_MODEL" validate:"required"`
	EmbeddingModel   string `mapstructure:"EMBEDDING_MODEL" validate:"required"`
	TranscribeModel  string `mapstructure:"TRANSCRIBE_MODEL" validate:"required"`
	EmbeddingDim     int    `mapstructure:"EMBEDDING_DIM" validate:"gt=0"`

	// Storage
	DataRoot    string `mapstructure:"DATA_ROOT" validate:"required"`
	StoreKind   string `mapstructure:"VECTOR_STORE" validate:"oneof=memory pgvector milvus"`
	PostgresURL string `mapstructure:"PG_URL" validate:"required_if=StoreKind pgvector"`
	MilvusAddr  string `mapstructure:"MILVUS_ADDR" validate:"required_if=StoreKind milvus"`

	// External tools
	YtdlpPath  string `mapstructure:"YTDLP_PATH"`
	FFmpegPath string `mapstructure:"FFMPEG_PATH"`

	// Scheduling
	MaxExtractWorkers    int `mapstructure:"MAX_EXTRACT_WORKERS" validate:"gt=0"`
	MaxTranscribeWorkers int `mapstructure:"MAX_TRANSCRIBE_WORKERS" validate:"gt=0"`
	DirectModeLimitSec   int `mapstructure:"DIRECT_MODE_LIMIT_SEC" validate:"gt=0"`

	// HTTP
	ListenAddr string `mapstructure:"LISTEN_ADDR" validate:"required"`
}

// use reflect to bind environment variables based on mapstructure tags
func bindEnv(c Config) {
	typ := reflect.TypeOf(c)
	for i := 0; i < typ.NumField(); i++ {
		if tag := typ.Field(i).Tag.Get("mapstructure"); tag != "" {
			viper.BindEnv(tag)
		}
	}
}

func Load() (*Config, error) {
	bindEnv(Config{})
	viper.AutomaticEnv()

	viper.SetDefault("OPENAI_BASE_URL", "https://api.openai.com/v1")
	viper.SetDefault("CHAT_MODEL", "gpt-4o-mini")
	viper.SetDefault("EMBEDDING_MODEL", "text-embedding-3-small")
	viper.SetDefault("TRANSCRIBE_MODEL", "whisper-1")
	viper.SetDefault("EMBEDDING_DIM", 1536)
	viper.SetDefault("DATA_ROOT", "./data")
	viper.SetDefault("VECTOR_STORE", "memory")
	viper.SetDefault("YTDLP_PATH", "yt-dlp")
	viper.SetDefault("FFMPEG_PATH", "ffmpeg")
	viper.SetDefault("MAX_EXTRACT_WORKERS", runtime.NumCPU())
	viper.SetDefault("MAX_TRANSCRIBE_WORKERS", 5)
	viper.SetDefault("DIRECT_MODE_LIMIT_SEC", 1800)
	viper.SetDefault("LISTEN_ADDR", ":8080")

	cfg := Config{}
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// HasValidAPI reports whether remote transcription, embedding and chat calls
// can be attempted at all.
func (c *Config) HasValidAPI() bool {
	return c.APIKey != ""
}
