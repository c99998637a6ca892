package metric

import (
	"errors"
	"fmt"
)

// Config holds indicator periods used by the metrics.
type Config struct {
	VolumeBaselinePeriod int     `yaml:"volume_baseline_period"`
	MomentumPeriod       int     `yaml:"momentum_period"`
	ZScorePeriod         int     `yaml:"zscore_period"`
	SupertrendPeriod     int     `yaml:"supertrend_period"`
	SupertrendMultiplier float64 `yaml:"supertrend_multiplier"`
	Workers              int     `yaml:"workers"`
}

func DefaultConfig() Config {
	return Config{
		VolumeBaselinePeriod: 20,
		MomentumPeriod:       14,
		ZScorePeriod:         20,
		SupertrendPeriod:     10,
		SupertrendMultiplier: 3.0,
		Workers:              8,
	}
}

// MinCandles is the largest warm-up requirement among the configured periods.
func (c Config) MinCandles() int {
	return max(c.VolumeBaselinePeriod, c.MomentumPeriod, c.ZScorePeriod, c.SupertrendPeriod)
}

func (c Config) Validate() error {
	var errs []error
	periods := []struct {
		name string
		v    int
	}{
		{"volume_baseline_period", c.VolumeBaselinePeriod},
		{"momentum_period", c.MomentumPeriod},
		{"zscore_period", c.ZScorePeriod},
		{"supertrend_period", c.SupertrendPeriod},
	}
	for _, p := range periods {
		if p.v <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %d", p.name, p.v))
		}
	}
	if c.SupertrendMultiplier <= 0 {
		errs = append(errs, fmt.Errorf("supertrend_multiplier must be positive, got %v", c.SupertrendMultiplier))
	}
	if c.Workers < 0 {
		errs = append(errs, fmt.Errorf("workers cannot be negative, got %d", c.Workers))
	}
	return errors.Join(errs...)
}
