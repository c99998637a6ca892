// Package opportunity flags symbols whose overall rank crossed into or out
// of the top band within a short time window.
package opportunity

import (
	"errors"
	"fmt"
	"time"

	"github.com/amirphl/rank-trader/internal/metric"
)

type Direction string

const (
	Long  Direction = "long"
	Short Direction = "short"
)

// Thresholds scale each component of the strength score.
type Thresholds struct {
	Volume     float64 `yaml:"volume"`
	Momentum   float64 `yaml:"momentum"`
	ZScore     float64 `yaml:"zscore"`
	RankChange float64 `yaml:"rank_change"`
	Price      float64 `yaml:"price"`
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		Volume:     2.0,
		Momentum:   0.8,
		ZScore:     1.5,
		RankChange: 3,
		Price:      1.5,
	}
}

func (t Thresholds) Validate() error {
	var errs []error
	check := func(name string, v float64) {
		if v <= 0 {
			errs = append(errs, fmt.Errorf("%s threshold must be positive, got %v", name, v))
		}
	}
	check("volume", t.Volume)
	check("momentum", t.Momentum)
	check("zscore", t.ZScore)
	check("rank_change", t.RankChange)
	check("price", t.Price)
	return errors.Join(errs...)
}

type Opportunity struct {
	Symbol         string    `json:"symbol" db:"symbol"`
	Direction      Direction `json:"direction" db:"direction"`
	Price          float64   `json:"current_price" db:"price"`
	VolumeMetric   float64   `json:"volume_metric" db:"volume_metric"`
	MomentumMetric float64   `json:"momentum_metric" db:"momentum_metric"`
	ZScoreMetric   float64   `json:"zscore_metric" db:"zscore_metric"`
	PriceMetric    float64   `json:"price_metric" db:"price_metric"`
	OverallRank    int       `json:"overall_rank" db:"overall_rank"`
	RankChange     int       `json:"rank_change" db:"rank_change"`
	Strength       float64   `json:"opportunity_strength" db:"strength"`
	DetectedAt     time.Time `json:"detection_time" db:"detected_at"`
}

// Result holds one cycle's opportunities, strongest first.
type Result struct {
	Long  []Opportunity `json:"long"`
	Short []Opportunity `json:"short"`
}

func (r Result) Len() int { return len(r.Long) + len(r.Short) }

func newOpportunity(symbol string, dir Direction, m metric.Record, overall, change int, strength float64, at time.Time) Opportunity {
	return Opportunity{
		Symbol:         symbol,
		Direction:      dir,
		Price:          m.Price,
		VolumeMetric:   m.VolumeMetric,
		MomentumMetric: m.MomentumMetric,
		ZScoreMetric:   m.ZScoreMetric,
		PriceMetric:    m.PriceMetric,
		OverallRank:    overall,
		RankChange:     change,
		Strength:       strength,
		DetectedAt:     at,
	}
}
