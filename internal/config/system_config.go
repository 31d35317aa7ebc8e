package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// SystemConfig holds the platform's small set of
// operator-tunable thresholds that can change without a redeploy.
type SystemConfig struct {
	WalletMaxBalancePaise      int64
	AIProofConfidenceThreshold int
	AIAutoVerifyThreshold      int
}

func DefaultSystemConfig() SystemConfig {
	return SystemConfig{
		WalletMaxBalancePaise:      10_000_000_00,
		AIProofConfidenceThreshold: 75,
		AIAutoVerifyThreshold:      90,
	}
}

// SystemConfigHolder hot-reloads SystemConfig from a watched YAML file,
// falling back to env-derived defaults when no file is present.
type SystemConfigHolder struct {
	current atomic.Value // holds SystemConfig
}

func NewSystemConfigHolder(base Config) (*SystemConfigHolder, error) {
	holder := &SystemConfigHolder{}
	holder.current.Store(SystemConfig{
		WalletMaxBalancePaise:      base.WalletMaxBalancePaise,
		AIProofConfidenceThreshold: base.AIProofConfidenceThreshold,
		AIAutoVerifyThreshold:      base.AIAutoVerifyThreshold,
	})

	v := viper.New()
	v.SetConfigName("system")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/partnerledger")

	v.SetEnvPrefix("SYSTEM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return holder, nil
		}
		return nil, err
	}

	var cfg SystemConfig
	if err := v.UnmarshalKey("system", &cfg); err != nil {
		return nil, err
	}
	if err := validateSystemConfig(cfg); err != nil {
		return nil, err
	}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated SystemConfig
		if err := v.UnmarshalKey("system", &updated); err != nil {
			log.Printf("[system-config] reload failed: %v", err)
			return
		}
		if err := validateSystemConfig(updated); err != nil {
			log.Printf("[system-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[system-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *SystemConfigHolder) Get() SystemConfig {
	return h.current.Load().(SystemConfig)
}

func validateSystemConfig(cfg SystemConfig) error {
	if cfg.WalletMaxBalancePaise <= 0 {
		return errors.New("system.walletMaxBalancePaise must be positive")
	}
	if cfg.AIProofConfidenceThreshold < 0 || cfg.AIProofConfidenceThreshold > 100 {
		return errors.New("system.aiProofConfidenceThreshold must be in [0,100]")
	}
	if cfg.AIAutoVerifyThreshold < 0 || cfg.AIAutoVerifyThreshold > 100 {
		return errors.New("system.aiAutoVerifyThreshold must be in [0,100]")
	}
	return nil
}
