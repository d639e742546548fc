package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/fx"
)

const (
	// InclusiveTaxExtract computes the tax contained in a gross price: gross*bp/(10000+bp).
	InclusiveTaxExtract = "extract"
	// InclusiveTaxGross computes inclusive tax as gross*bp/10000, the "tax is X% of the sticker" convention.
	InclusiveTaxGross = "gross"
)

// LedgerConfig is the business configuration passed into ledger services.
type LedgerConfig struct {
	DefaultCurrency     string          `mapstructure:"defaultCurrency"`
	DefaultNetTermsDays int             `mapstructure:"defaultNetTermsDays"`
	Numbering           NumberingConfig `mapstructure:"numbering"`
	Tax                 TaxConfig       `mapstructure:"tax"`
	Discounts           DiscountConfig  `mapstructure:"discounts"`
}

type NumberingConfig struct {
	PadWidth int `mapstructure:"padWidth"`
}

type TaxConfig struct {
	InclusiveMethod string `mapstructure:"inclusiveMethod"`
}

type DiscountConfig struct {
	// CountVoidedRedemptions keeps redemptions of voided invoices counted
	// toward max_redemptions and the per-customer cap.
	CountVoidedRedemptions bool `mapstructure:"countVoidedRedemptions"`
}

func DefaultLedgerConfig() LedgerConfig {
	return LedgerConfig{
		DefaultCurrency:     "USD",
		DefaultNetTermsDays: 30,
		Numbering:           NumberingConfig{PadWidth: 4},
		Tax:                 TaxConfig{InclusiveMethod: InclusiveTaxExtract},
		Discounts:           DiscountConfig{CountVoidedRedemptions: false},
	}
}

type LedgerConfigHolder struct {
	current atomic.Value // holds LedgerConfig
}

func NewLedgerConfigHolder() (*LedgerConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("ledger")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/ledgerbook")
	v.AddConfigPath(".")

	v.SetEnvPrefix("LEDGER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultLedgerConfig()
	v.SetDefault("ledger.defaultCurrency", defaults.DefaultCurrency)
	v.SetDefault("ledger.defaultNetTermsDays", defaults.DefaultNetTermsDays)
	v.SetDefault("ledger.numbering.padWidth", defaults.Numbering.PadWidth)
	v.SetDefault("ledger.tax.inclusiveMethod", defaults.Tax.InclusiveMethod)
	v.SetDefault("ledger.discounts.countVoidedRedemptions", defaults.Discounts.CountVoidedRedemptions)

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileLoaded = false
	}

	var cfg LedgerConfig
	if err := v.UnmarshalKey("ledger", &cfg); err != nil {
		return nil, err
	}
	cfg = normalizeLedgerConfig(cfg)
	if err := ValidateLedgerConfig(cfg); err != nil {
		return nil, err
	}

	holder := &LedgerConfigHolder{}
	holder.current.Store(cfg)

	if fileLoaded {
		v.WatchConfig()
		v.OnConfigChange(func(e fsnotify.Event) {
			var updated LedgerConfig
			if err := v.UnmarshalKey("ledger", &updated); err != nil {
				log.Printf("[ledger-config] reload failed: %v", err)
				return
			}
			updated = normalizeLedgerConfig(updated)
			if err := ValidateLedgerConfig(updated); err != nil {
				log.Printf("[ledger-config] invalid config ignored: %v", err)
				return
			}
			holder.current.Store(updated)
			log.Printf("[ledger-config] reloaded from %s", e.Name)
		})
	}

	return holder, nil
}

// NewStaticLedgerConfigHolder returns a holder that never reloads.
func NewStaticLedgerConfigHolder(cfg LedgerConfig) *LedgerConfigHolder {
	holder := &LedgerConfigHolder{}
	holder.current.Store(normalizeLedgerConfig(cfg))
	return holder
}

func (h *LedgerConfigHolder) Get() LedgerConfig {
	if h == nil {
		return DefaultLedgerConfig()
	}
	return h.current.Load().(LedgerConfig)
}

func normalizeLedgerConfig(cfg LedgerConfig) LedgerConfig {
	cfg.DefaultCurrency = strings.ToUpper(strings.TrimSpace(cfg.DefaultCurrency))
	cfg.Tax.InclusiveMethod = strings.ToLower(strings.TrimSpace(cfg.Tax.InclusiveMethod))
	if cfg.Tax.InclusiveMethod == "" {
		cfg.Tax.InclusiveMethod = InclusiveTaxExtract
	}
	if cfg.Numbering.PadWidth == 0 {
		cfg.Numbering.PadWidth = 4
	}
	return cfg
}

func ValidateLedgerConfig(cfg LedgerConfig) error {
	if len(cfg.DefaultCurrency) != 3 {
		return errors.New("ledger.defaultCurrency must be an ISO 4217 code")
	}
	if cfg.DefaultNetTermsDays < 0 {
		return errors.New("ledger.defaultNetTermsDays cannot be negative")
	}
	if cfg.Numbering.PadWidth < 4 || cfg.Numbering.PadWidth > 12 {
		return errors.New("ledger.numbering.padWidth must be between 4 and 12")
	}
	switch cfg.Tax.InclusiveMethod {
	case InclusiveTaxExtract, InclusiveTaxGross:
	default:
		return errors.New("ledger.tax.inclusiveMethod must be extract or gross")
	}
	return nil
}

var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(NewLedgerConfigHolder),
)
