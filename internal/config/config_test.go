package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("testdata/does-not-exist.yaml")
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Graph.MainConnectionPoolSize)
	assert.Equal(t, 16, cfg.Graph.FraudConnectionPoolSize)
	assert.Equal(t, AutoFlagBoth, cfg.Engine.AutoFlagMode)
	assert.False(t, cfg.Engine.AutoFlagEnabled)
}

func TestValidate_RejectsUnknownAutoFlagMode(t *testing.T) {
	cfg := defaultConfig()
	cfg.Engine.AutoFlagMode = "both-and-then-some"

	err := cfg.validate()
	assert.Error(t, err)
}

func TestValidate_RejectsNonPositivePoolSizes(t *testing.T) {
	cfg := defaultConfig()
	cfg.Graph.FraudConnectionPoolSize = 0

	err := cfg.validate()
	assert.Error(t, err)
}

func TestValidate_RejectsInvertedAmountRange(t *testing.T) {
	cfg := defaultConfig()
	cfg.Generator.MinAmount = 100
	cfg.Generator.MaxAmount = 50

	err := cfg.validate()
	assert.Error(t, err)
}

func TestMetadataConfig_FlushInterval(t *testing.T) {
	cfg := MetadataConfig{FlushIntervalMs: 1500}
	assert.Equal(t, 1500000000, int(cfg.FlushInterval()))
}
