package config

import (
	"errors"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// BillingConfig holds the tunables that billing services read on every
// call. It is reloaded from billing.yml without a restart.
type BillingConfig struct {
	InvoiceDueDays           int    `mapstructure:"invoiceDueDays"`
	SubscriptionNumberPrefix string `mapstructure:"subscriptionNumberPrefix"`
	InvoiceNumberPrefix      string `mapstructure:"invoiceNumberPrefix"`
}

func DefaultBillingConfig() BillingConfig {
	return BillingConfig{
		InvoiceDueDays:           30,
		SubscriptionNumberPrefix: "SUB",
		InvoiceNumberPrefix:      "INV",
	}
}

var defaultConfigPaths = []string{
	"/etc/billingcore",
	".",
}

type BillingConfigHolder struct {
	current atomic.Value // holds BillingConfig
}

func NewBillingConfigHolder(log *zap.Logger) (*BillingConfigHolder, error) {
	return LoadBillingConfig(log, defaultConfigPaths...)
}

// NewStaticBillingConfigHolder returns a holder that never reloads.
func NewStaticBillingConfigHolder(cfg BillingConfig) *BillingConfigHolder {
	holder := &BillingConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

// LoadBillingConfig reads billing.yml from the first matching path. A
// missing file falls back to defaults; a file that is found is watched and
// valid edits replace the current config.
func LoadBillingConfig(log *zap.Logger, paths ...string) (*BillingConfigHolder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("config.billing")

	v := viper.New()
	v.SetConfigName("billing")
	v.SetConfigType("yml")
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	v.SetEnvPrefix("BILLINGCORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultBillingConfig()
	v.SetDefault("billing.invoiceDueDays", defaults.InvoiceDueDays)
	v.SetDefault("billing.subscriptionNumberPrefix", defaults.SubscriptionNumberPrefix)
	v.SetDefault("billing.invoiceNumberPrefix", defaults.InvoiceNumberPrefix)

	fileFound := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		fileFound = false
	}

	cfg, err := decodeBillingConfig(v)
	if err != nil {
		return nil, err
	}
	if err := validateBillingConfig(cfg); err != nil {
		return nil, err
	}

	holder := NewStaticBillingConfigHolder(cfg)
	if !fileFound {
		log.Info("billing config file not found, using defaults")
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := decodeBillingConfig(v)
		if err != nil {
			log.Warn("reload failed", zap.Error(err))
			return
		}
		if err := validateBillingConfig(updated); err != nil {
			log.Warn("invalid config ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

// decodeBillingConfig unmarshals the whole tree so defaults fill keys the
// file leaves out.
func decodeBillingConfig(v *viper.Viper) (BillingConfig, error) {
	var root struct {
		Billing BillingConfig `mapstructure:"billing"`
	}
	if err := v.Unmarshal(&root); err != nil {
		return BillingConfig{}, err
	}
	return root.Billing, nil
}

func (h *BillingConfigHolder) Get() BillingConfig {
	return h.current.Load().(BillingConfig)
}

func validateBillingConfig(cfg BillingConfig) error {
	if cfg.InvoiceDueDays < 0 {
		return errors.New("billing.invoiceDueDays cannot be negative")
	}
	if strings.TrimSpace(cfg.SubscriptionNumberPrefix) == "" {
		return errors.New("billing.subscriptionNumberPrefix cannot be empty")
	}
	if strings.TrimSpace(cfg.InvoiceNumberPrefix) == "" {
		return errors.New("billing.invoiceNumberPrefix cannot be empty")
	}
	return nil
}
