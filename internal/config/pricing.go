package config

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gosimple/slug"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// PricingFile mirrors the `pricing` key of pricing.yml.
type PricingFile struct {
	DefaultCurrency     string            `mapstructure:"defaultCurrency"`
	RuleCacheTTL        time.Duration     `mapstructure:"ruleCacheTTL"`
	SalesTaxRates       map[string]string `mapstructure:"salesTaxRates"`
	WithholdingTaxRates map[string]string `mapstructure:"withholdingTaxRates"`
	// DutyRates are keyed by category slug. DefaultDutyRate covers the rest
	// when set.
	DutyRates       map[string]string `mapstructure:"dutyRates"`
	DefaultDutyRate string            `mapstructure:"defaultDutyRate"`
}

// PricingSettings is the validated, immutable form of PricingFile.
type PricingSettings struct {
	DefaultCurrency     string
	RuleCacheTTL        time.Duration
	SalesTaxRates       map[string]decimal.Decimal
	WithholdingTaxRates map[string]decimal.Decimal
	DutyRates           map[string]decimal.Decimal
	DefaultDutyRate     *decimal.Decimal
}

func DefaultPricingFile() PricingFile {
	return PricingFile{
		DefaultCurrency: "NGN",
		RuleCacheTTL:    5 * time.Minute,
	}
}

// SalesTaxRate returns the fallback sales tax rate (fraction) for a country.
func (s PricingSettings) SalesTaxRate(country string) (decimal.Decimal, bool) {
	rate, ok := s.SalesTaxRates[strings.ToUpper(strings.TrimSpace(country))]
	return rate, ok
}

// WithholdingTaxRate returns the fallback withholding rate (fraction) for a country.
func (s PricingSettings) WithholdingTaxRate(country string) (decimal.Decimal, bool) {
	rate, ok := s.WithholdingTaxRates[strings.ToUpper(strings.TrimSpace(country))]
	return rate, ok
}

// DutyRate returns the import duty rate (fraction) for a category slug.
func (s PricingSettings) DutyRate(category string) (decimal.Decimal, bool) {
	if rate, ok := s.DutyRates[slug.Make(category)]; ok {
		return rate, true
	}
	if s.DefaultDutyRate != nil {
		return *s.DefaultDutyRate, true
	}
	return decimal.Zero, false
}

type PricingConfigHolder struct {
	current atomic.Value // holds PricingSettings
}

// NewStaticPricingConfigHolder returns a holder that never reloads.
func NewStaticPricingConfigHolder(settings PricingSettings) *PricingConfigHolder {
	holder := &PricingConfigHolder{}
	holder.current.Store(settings)
	return holder
}

func NewPricingConfigHolder(cfg Config, log *zap.Logger) (*PricingConfigHolder, error) {
	v := viper.New()

	if path := strings.TrimSpace(cfg.PricingConfigPath); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("pricing")
		v.SetConfigType("yml")
		v.AddConfigPath("/var/lib/pricing/config") // Volume-mounted config
		v.AddConfigPath("/etc/pricing")            // System config
		v.AddConfigPath(".")                       // Current directory (dev mode)
	}

	v.SetEnvPrefix("PRICING")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultPricingFile()
	v.SetDefault("pricing.defaultCurrency", defaults.DefaultCurrency)
	v.SetDefault("pricing.ruleCacheTTL", defaults.RuleCacheTTL)

	watch := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		watch = false
	}

	settings, err := loadPricingSettings(v)
	if err != nil {
		return nil, err
	}

	holder := NewStaticPricingConfigHolder(settings)
	if !watch {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := loadPricingSettings(v)
		if err != nil {
			log.Warn("pricing config reload rejected", zap.String("file", e.Name), zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("pricing config reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

func (h *PricingConfigHolder) Get() PricingSettings {
	return h.current.Load().(PricingSettings)
}

func loadPricingSettings(v *viper.Viper) (PricingSettings, error) {
	var file PricingFile
	if err := v.UnmarshalKey("pricing", &file); err != nil {
		return PricingSettings{}, err
	}
	return ParsePricingFile(file)
}

// ParsePricingFile validates raw settings and converts rates to decimals.
func ParsePricingFile(file PricingFile) (PricingSettings, error) {
	currency := strings.ToUpper(strings.TrimSpace(file.DefaultCurrency))
	if len(currency) != 3 {
		return PricingSettings{}, fmt.Errorf("pricing.defaultCurrency %q is not an ISO 4217 code", file.DefaultCurrency)
	}
	if file.RuleCacheTTL < 0 {
		return PricingSettings{}, errors.New("pricing.ruleCacheTTL cannot be negative")
	}

	sales, err := parseRates("pricing.salesTaxRates", file.SalesTaxRates)
	if err != nil {
		return PricingSettings{}, err
	}
	withholding, err := parseRates("pricing.withholdingTaxRates", file.WithholdingTaxRates)
	if err != nil {
		return PricingSettings{}, err
	}

	duty, err := parseDutyRates(file.DutyRates)
	if err != nil {
		return PricingSettings{}, err
	}

	settings := PricingSettings{
		DefaultCurrency:     currency,
		RuleCacheTTL:        file.RuleCacheTTL,
		SalesTaxRates:       sales,
		WithholdingTaxRates: withholding,
		DutyRates:           duty,
	}
	if raw := strings.TrimSpace(file.DefaultDutyRate); raw != "" {
		rate, err := parseRate("pricing.defaultDutyRate", raw)
		if err != nil {
			return PricingSettings{}, err
		}
		settings.DefaultDutyRate = &rate
	}
	return settings, nil
}

func parseRates(key string, raw map[string]string) (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal, len(raw))
	for country, value := range raw {
		// viper lower-cases map keys
		code := strings.ToUpper(strings.TrimSpace(country))
		if len(code) != 2 {
			return nil, fmt.Errorf("%s: invalid country %q", key, country)
		}
		rate, err := parseRate(key+"."+code, value)
		if err != nil {
			return nil, err
		}
		out[code] = rate
	}
	return out, nil
}

func parseDutyRates(raw map[string]string) (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal, len(raw))
	for category, value := range raw {
		key := slug.Make(category)
		if key == "" {
			return nil, fmt.Errorf("pricing.dutyRates: invalid category %q", category)
		}
		rate, err := parseRate("pricing.dutyRates."+key, value)
		if err != nil {
			return nil, err
		}
		out[key] = rate
	}
	return out, nil
}

func parseRate(key, value string) (decimal.Decimal, error) {
	rate, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: %w", key, err)
	}
	if rate.IsNegative() || rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return decimal.Zero, fmt.Errorf("%s: rate must be a fraction in [0, 1)", key)
	}
	return rate, nil
}
