package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	content := `
market:
  holidays: ["2026-12-25"]
  early_closes: ["2026-12-24"]
trading:
  initial_cash: 5000
kafka:
  brokers: ["localhost:9092"]
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yml"), []byte(content), 0o600))

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)

	assert.Equal(t, 5000.0, cfg.Trading.InitialCash)
	assert.Equal(t, []string{"2026-12-25"}, cfg.Market.Holidays)
	assert.Equal(t, []string{"2026-12-24"}, cfg.Market.EarlyCloses)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)

	// Defaults fill whatever the file leaves out.
	assert.Equal(t, "America/New_York", cfg.Market.Timezone)
	assert.Equal(t, "09:30", cfg.Market.Open)
	assert.Equal(t, 8, cfg.Provider.TimeoutSeconds)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "USD", cfg.Trading.Currency)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(t.TempDir())
	assert.Error(t, err)
}
