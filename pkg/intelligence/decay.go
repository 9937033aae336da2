package intelligence

import (
	"math"
	"time"

	"github.com/powerbrain/brainmem-go/pkg/model"
)

// DecayConfig contains configuration for TemporalDecay.
type DecayConfig struct {
	// DecayRate is the exponential decay constant per day.
	// 0.01 gives about 0.74 at 30 days and 0.41 at 90 days.
	DecayRate float64 `json:"decay_rate"`
}

// DefaultDecayConfig returns the default decay rate of 0.01 per day.
func DefaultDecayConfig() DecayConfig {
	return DecayConfig{DecayRate: 0.01}
}

// Clock returns the current time.
type Clock func() time.Time

// DecayOption configures a TemporalDecay.
type DecayOption func(*TemporalDecay)

// WithClock overrides the time source, mainly for tests.
func WithClock(clock Clock) DecayOption {
	return func(d *TemporalDecay) {
		if clock != nil {
			d.now = clock
		}
	}
}

// TemporalDecay converts memory age into a recency multiplier.
//
// The decay follows an exponential forgetting curve:
//
//	decay = e^(-decay_rate * days_elapsed)
//
// where days_elapsed is measured from the memory's creation timestamp.
// Negative elapsed time (clock skew) is clamped to zero.
type TemporalDecay struct {
	rate float64
	now  Clock
}

// NewTemporalDecay creates a decay calculator. A negative rate is treated as zero.
func NewTemporalDecay(config DecayConfig, opts ...DecayOption) *TemporalDecay {
	rate := config.DecayRate
	if rate < 0 || math.IsNaN(rate) {
		rate = 0
	}
	d := &TemporalDecay{
		rate: rate,
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Rate returns the configured decay rate.
func (d *TemporalDecay) Rate() float64 {
	return d.rate
}

// CalculateDecay returns the recency multiplier of m in (0, 1].
//
// Elapsed time is taken from Unix seconds, so timestamps in any zone (or
// centuries old) compare without time.Duration saturation. With a zero decay
// rate the result is exactly 1.0 regardless of age. Once the exponent
// underflows float64 (about 200 years at the default rate) the result is held
// at the smallest positive float64, so it stays above zero but stops falling.
//
// A nil m panics. The Ranker rejects memories without a timestamp before
// calling this.
func (d *TemporalDecay) CalculateDecay(m *model.Memory) float64 {
	if m == nil {
		panic("intelligence: CalculateDecay called with nil memory")
	}
	if d.rate == 0 {
		return 1.0
	}

	days := elapsedSeconds(d.now(), m.Timestamp) / secondsPerDay
	if days < 0 {
		days = 0
	}

	decay := math.Exp(-d.rate * days)
	if decay == 0 {
		return math.SmallestNonzeroFloat64
	}
	return decay
}

const secondsPerDay = 86400

func elapsedSeconds(now, ts time.Time) float64 {
	return float64(now.Unix()-ts.Unix()) + float64(now.Nanosecond()-ts.Nanosecond())/1e9
}

// CalculateAccessBoost returns 1 + log1p(access_count)*0.1, capped at 2.0.
// It matches Scorer.CalculateAccessBoost.
func (d *TemporalDecay) CalculateAccessBoost(m *model.Memory) float64 {
	return accessBoost(m)
}

// ApplyDecayWithBoost returns decay * access boost, in [0, 2].
func (d *TemporalDecay) ApplyDecayWithBoost(m *model.Memory) float64 {
	return d.CalculateDecay(m) * d.CalculateAccessBoost(m)
}
