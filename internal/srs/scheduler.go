// Package srs computes review intervals for flashcards using an SM-2 style
// ease factor and a bounded random jitter.
package srs

import (
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"
)

const (
	DefaultEaseFactor = 2.5
	MinEaseFactor     = 1.3

	// EaseFactorModifier is the per-grade step of the linear ease update.
	EaseFactorModifier = 0.08

	// MaxIntervalDays caps every interval, keeping next review dates
	// representable in time.Time and in Postgres timestamptz.
	MaxIntervalDays = 36500

	jitterMin = 0.95
	jitterMax = 1.05
)

const (
	EaseFormulaSM2    = "sm2"
	EaseFormulaLinear = "linear"
)

// RandomSource returns pseudo-random numbers in [0, 1).
type RandomSource interface {
	Float64() float64
}

// lockedSource makes a *rand.Rand safe for concurrent sessions.
type lockedSource struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func (s *lockedSource) Float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Float64()
}

// NewRandomSource returns a goroutine-safe source seeded with seed.
func NewRandomSource(seed int64) RandomSource {
	return &lockedSource{rng: rand.New(rand.NewSource(seed))}
}

// EaseFunc derives a card's new ease factor from a rating and its previous
// ease factor. Implementations must never return less than MinEaseFactor.
type EaseFunc func(quality Rating, previous float64) float64

type Scheduler struct {
	rng  RandomSource
	ease EaseFunc
}

// NewScheduler returns a Scheduler drawing jitter from rng and updating ease
// factors with ease. A nil rng is replaced by a time-seeded source and a nil
// ease by NextEaseFactor.
func NewScheduler(rng RandomSource, ease EaseFunc) *Scheduler {
	if rng == nil {
		rng = NewRandomSource(time.Now().UnixNano())
	}
	if ease == nil {
		ease = NextEaseFactor
	}
	return &Scheduler{rng: rng, ease: ease}
}

// EaseFuncByName resolves the ease formula configured for the deployment.
func EaseFuncByName(name string) (EaseFunc, error) {
	switch name {
	case "", EaseFormulaSM2:
		return NextEaseFactor, nil
	case EaseFormulaLinear:
		return LinearEaseFactor, nil
	default:
		return nil, fmt.Errorf("unknown ease factor formula %q", name)
	}
}

// Result is the outcome of scheduling one review.
type Result struct {
	EaseFactor       float64   `json:"ease_factor"`
	BaseIntervalDays int       `json:"base_interval_days"`
	IntervalDays     int       `json:"interval_days"`
	NextReview       time.Time `json:"next_review"`
}

// NextEaseFactor is the SM-2 update:
// EF' = max(1.3, EF + (0.1 - (5-q) * (0.08 + (5-q) * 0.02))).
func NextEaseFactor(quality Rating, previous float64) float64 {
	d := float64(5 - int(quality))
	return floorEase(previous + (0.1 - d*(0.08+d*0.02)))
}

// LinearEaseFactor drops the quadratic term:
// EF' = max(1.3, EF + (0.1 - (5-q) * EaseFactorModifier)).
func LinearEaseFactor(quality Rating, previous float64) float64 {
	d := float64(5 - int(quality))
	return floorEase(previous + (0.1 - d*EaseFactorModifier))
}

func floorEase(ef float64) float64 {
	if ef < MinEaseFactor {
		return MinEaseFactor
	}
	return ef
}

// BaseInterval returns the interval in days before jitter is applied.
// repetitions is the number of reviews completed before this one.
func BaseInterval(quality Rating, repetitions int, previousEF, newEF float64) int {
	switch {
	case quality < Good:
		return 1
	case repetitions <= 0:
		return 1
	case repetitions == 1:
		return 6
	}

	lastInterval := math.Max(6, math.Pow(previousEF, float64(repetitions-1)))
	return capDays(lastInterval * newEF)
}

// Jitter spreads days by a uniform factor in [0.95, 1.05], never past
// MaxIntervalDays.
func (s *Scheduler) Jitter(days int) int {
	factor := jitterMin + s.rng.Float64()*(jitterMax-jitterMin)
	return capDays(float64(days) * factor)
}

func capDays(days float64) int {
	if math.IsNaN(days) || days > MaxIntervalDays {
		return MaxIntervalDays
	}
	return int(math.Round(days))
}

// ComputeNextReview schedules the next review of a card rated quality.
// previousEF of zero means the card has no history and DefaultEaseFactor is used.
// quality outside Again..Easy is a caller bug and is not checked here.
func (s *Scheduler) ComputeNextReview(quality Rating, repetitions int, previousEF float64, now time.Time) Result {
	if previousEF == 0 {
		previousEF = DefaultEaseFactor
	}

	ef := s.ease(quality, previousEF)
	base := BaseInterval(quality, repetitions, previousEF, ef)
	days := s.Jitter(base)

	return Result{
		EaseFactor:       ef,
		BaseIntervalDays: base,
		IntervalDays:     days,
		NextReview:       now.AddDate(0, 0, days),
	}
}
