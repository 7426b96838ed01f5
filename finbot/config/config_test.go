package config

import (
	"os"
	"path/filepath"
	"testing"

	internal "github.com/finbot-ai/finbot/finbot"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// ConfigTestSuite tests the config package functionality
type ConfigTestSuite struct {
	suite.Suite
	tempDir string
	origDir string
}

func TestConfigSuite(t *testing.T) {
	suite.Run(t, new(ConfigTestSuite))
}

func (suite *ConfigTestSuite) SetupTest() {
	viper.Reset()

	var err error
	suite.origDir, err = os.Getwd()
	require.NoError(suite.T(), err)

	tempDir, err := os.MkdirTemp("", "finbot-config-test-*")
	require.NoError(suite.T(), err)
	suite.tempDir = tempDir

	err = os.Chdir(tempDir)
	require.NoError(suite.T(), err)
}

func (suite *ConfigTestSuite) TearDownTest() {
	if suite.origDir != "" {
		os.Chdir(suite.origDir)
	}
	if suite.tempDir != "" {
		os.RemoveAll(suite.tempDir)
	}
}

func (suite *ConfigTestSuite) TestLoadConfigWithDefaults() {
	cfg, err := LoadConfig("")

	require.NoError(suite.T(), err)
	require.NotNil(suite.T(), cfg)

	assert.Equal(suite.T(), internal.DefaultDataDir, cfg.Finbot.DataDir)
	assert.Equal(suite.T(), internal.DefaultDatabasePath, cfg.Finbot.Database.Path)
	assert.Equal(suite.T(), "tools", cfg.Finbot.Fallback)

	assert.Equal(suite.T(), "https://query1.finance.yahoo.com", cfg.Market.BaseURL)
	assert.Equal(suite.T(), 8, cfg.Market.NewsLimit)

	assert.Equal(suite.T(), "gpt-4o", cfg.LLM.Model)
	assert.InDelta(suite.T(), 0.2, cfg.LLM.Temperature, 0.001)
	assert.Equal(suite.T(), 150, cfg.LLM.MaxTokens)

	assert.Equal(suite.T(), internal.DefaultStoreID, cfg.Retrieval.StoreID)
	assert.Equal(suite.T(), 768, cfg.Retrieval.ChunkSize)
	assert.Equal(suite.T(), 128, cfg.Retrieval.ChunkOverlap)
	assert.Equal(suite.T(), 2, cfg.Retrieval.K)

	assert.True(suite.T(), cfg.Harness.EnableGuardrails)
	assert.ElementsMatch(suite.T(), []string{"get_stock_info", "trade_stock"}, cfg.Harness.AllowedTools)
}

func (suite *ConfigTestSuite) TestLoadConfigFromFile() {
	configYAML := `
finbot:
  fallback: rag
retrieval:
  chunk_size: 512
  chunk_overlap: 64
  k: 3
llm:
  model: mixtral-8x7b-32768
  temperature: 0.5
`
	configFile := filepath.Join(suite.tempDir, "config.yaml")
	require.NoError(suite.T(), os.WriteFile(configFile, []byte(configYAML), 0o644))

	cfg, err := LoadConfig(configFile)
	require.NoError(suite.T(), err)

	assert.Equal(suite.T(), "rag", cfg.Finbot.Fallback)
	assert.Equal(suite.T(), 512, cfg.Retrieval.ChunkSize)
	assert.Equal(suite.T(), 64, cfg.Retrieval.ChunkOverlap)
	assert.Equal(suite.T(), 3, cfg.Retrieval.K)
	assert.Equal(suite.T(), "mixtral-8x7b-32768", cfg.LLM.Model)
	assert.InDelta(suite.T(), 0.5, cfg.LLM.Temperature, 0.001)

	// Unset values still fall back to defaults.
	assert.Equal(suite.T(), internal.DefaultGuidelinePath, cfg.Retrieval.DocumentPath)
}

func (suite *ConfigTestSuite) TestLoadConfigRejectsBadFallback() {
	configYAML := `
finbot:
  fallback: both
`
	configFile := filepath.Join(suite.tempDir, "config.yaml")
	require.NoError(suite.T(), os.WriteFile(configFile, []byte(configYAML), 0o644))

	_, err := LoadConfig(configFile)
	require.Error(suite.T(), err)
	assert.Contains(suite.T(), err.Error(), "fallback")
}

func (suite *ConfigTestSuite) TestLoadConfigRejectsOverlapLargerThanChunk() {
	configYAML := `
retrieval:
  chunk_size: 100
  chunk_overlap: 100
`
	configFile := filepath.Join(suite.tempDir, "config.yaml")
	require.NoError(suite.T(), os.WriteFile(configFile, []byte(configYAML), 0o644))

	_, err := LoadConfig(configFile)
	require.Error(suite.T(), err)
	assert.Contains(suite.T(), err.Error(), "chunk_overlap")
}
