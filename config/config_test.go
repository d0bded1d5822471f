package config

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func resetViper(t *testing.T) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
}

func TestLoadDefaults(t *testing.T) {
	resetViper(t)

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "memory", cfg.StoreKind)
	require.Equal(t, 1800, cfg.DirectModeLimitSec)
	require.Equal(t, 1536, cfg.EmbeddingDim)
	require.Equal(t, "whisper-1", cfg.TranscribeModel)
	require.False(t, cfg.HasValidAPI())
}

func TestLoadFromEnv(t *testing.T) {
	resetViper(t)
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("VECTOR_STORE", "pgvector")
	t.Setenv("PG_URL", "postgres://localhost/videoqa")
	t.Setenv("MAX_TRANSCRIBE_WORKERS", "3")

	cfg, err := Load()
	require.NoError(t, err)
	require.True(t, cfg.HasValidAPI())
	require.Equal(t, "pgvector", cfg.StoreKind)
	require.Equal(t, 3, cfg.MaxTranscribeWorkers)
}

func TestLoadRejectsUnknownStore(t *testing.T) {
	resetViper(t)
	t.Setenv("VECTOR_STORE", "redis")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadRequiresStoreAddress(t *testing.T) {
	resetViper(t)
	t.Setenv("VECTOR_STORE", "milvus")

	_, err := Load()
	require.Error(t, err)
}
