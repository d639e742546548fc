package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultLedgerConfigIsValid(t *testing.T) {
	require.NoError(t, ValidateLedgerConfig(DefaultLedgerConfig()))
}

func TestValidateLedgerConfig(t *testing.T) {
	cfg := DefaultLedgerConfig()
	cfg.Numbering.PadWidth = 3
	assert.Error(t, ValidateLedgerConfig(cfg))

	cfg = DefaultLedgerConfig()
	cfg.Tax.InclusiveMethod = "magic"
	assert.Error(t, ValidateLedgerConfig(cfg))

	cfg = DefaultLedgerConfig()
	cfg.DefaultCurrency = "EURO"
	assert.Error(t, ValidateLedgerConfig(cfg))
}

func TestStaticHolderNormalizes(t *testing.T) {
	holder := NewStaticLedgerConfigHolder(LedgerConfig{DefaultCurrency: "eur"})
	got := holder.Get()
	assert.Equal(t, "EUR", got.DefaultCurrency)
	assert.Equal(t, 4, got.Numbering.PadWidth)
	assert.Equal(t, InclusiveTaxExtract, got.Tax.InclusiveMethod)
}

func TestNilHolderFallsBackToDefaults(t *testing.T) {
	var holder *LedgerConfigHolder
	assert.Equal(t, DefaultLedgerConfig(), holder.Get())
}
