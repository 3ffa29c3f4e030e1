// Package trend implements a two-state Kalman filter over logit-transformed
// mid-price, with hysteresis-gated direction output. One Filter instance
// tracks one asset and must only be stepped from that asset's actor
// goroutine.
package trend

import (
	"math"
	"time"

	"github.com/hunterlabs/polyhunter/internal/domain"
)

const (
	// q0 scales the continuous-time process noise.
	q0 = 1e-6
	// rFloor is the minimum measurement variance in price space.
	rFloor = 1e-5
	// maxDT clamps the propagation interval in seconds.
	maxDT = 1.0
	// tEnter and tHold are the hysteresis thresholds on the smoothed t-stat.
	tEnter = 2.0
	tHold  = 1.0
	// tAlpha is the EMA smoothing factor applied to the raw t-stat.
	tAlpha = 0.3
	// resetZ triggers covariance inflation when the normalized innovation
	// exceeds it, so the filter re-converges quickly after a price jump.
	resetZ = 8.0
	// resetInflate is the covariance multiplier applied on divergence.
	resetInflate = 10.0
	// priceClip keeps the logit transform finite.
	priceClip = 1e-3
	// maxJacobian caps the logit Jacobian near the price boundaries.
	maxJacobian = 30.0
)

// Observation is one mid-price sample fed to the filter.
type Observation struct {
	Price    float64 // mid price in (0, 1)
	Spread   float64 // best ask minus best bid
	TickSize float64
	At       time.Time
}

// Filter tracks level and velocity of the logit-transformed price.
type Filter struct {
	initialized bool
	lastAt      time.Time

	// State vector [level, velocity] and covariance.
	x0, x1           float64
	p00, p01, p11    float64

	tSmooth   float64
	direction domain.TrendDirection
	reversal  time.Time
}

// NewFilter returns an empty filter. The first observation initializes the
// state; direction stays FLAT until the t-stat clears the enter threshold.
func NewFilter() *Filter {
	return &Filter{direction: domain.TrendFlat}
}

// logit maps a clipped price to log-odds.
func logit(p float64) float64 {
	p = clamp(p, priceClip, 1-priceClip)
	return math.Log(p / (1 - p))
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Step feeds one observation and returns the updated prediction.
func (f *Filter) Step(obs Observation) domain.TrendPrediction {
	z := logit(obs.Price)

	if !f.initialized {
		f.initialized = true
		f.lastAt = obs.At
		f.x0, f.x1 = z, 0
		f.p00, f.p01, f.p11 = 1e-3, 0, 1e-2
		return f.prediction(obs.At)
	}

	dt := obs.At.Sub(f.lastAt).Seconds()
	if dt < 0 {
		dt = 0
	}
	if dt > maxDT {
		dt = maxDT
	}
	f.lastAt = obs.At

	// Predict: x <- F x, P <- F P F' + Q with F = [[1,dt],[0,1]].
	f.x0 += dt * f.x1
	p00 := f.p00 + dt*(2*f.p01+dt*f.p11)
	p01 := f.p01 + dt*f.p11
	p11 := f.p11

	dt2 := dt * dt
	p00 += q0 * dt2 * dt / 3
	p01 += q0 * dt2 / 2
	p11 += q0 * dt

	// Measurement noise: half-spread variance in price space, inflated for
	// stale samples, floored at quantization noise, mapped through the
	// logit Jacobian.
	halfSpread := obs.Spread / 2
	varP := (halfSpread*halfSpread + 1e-5) * (1 + 2*dt)
	if tick := obs.TickSize; tick > 0 {
		if q := tick * tick / 12; varP < q {
			varP = q
		}
	}
	if varP < rFloor {
		varP = rFloor
	}

	p := clamp(obs.Price, priceClip, 1-priceClip)
	jac := 1 / (p * (1 - p))
	if jac > maxJacobian {
		jac = maxJacobian
	}
	r := jac * jac * varP

	// Divergence check on the normalized innovation.
	y := z - f.x0
	s := p00 + r
	if math.Abs(y)/math.Sqrt(s) > resetZ {
		p00 *= resetInflate
		p01 *= resetInflate
		p11 *= resetInflate
		s = p00 + r
	}

	// Update with H = [1, 0].
	k0 := p00 / s
	k1 := p01 / s
	f.x0 += k0 * y
	f.x1 += k1 * y
	f.p00 = (1 - k0) * p00
	f.p01 = (1 - k0) * p01
	f.p11 = p11 - k1*p01

	// Smoothed t-stat and hysteresis.
	tRaw := f.x1 / math.Sqrt(math.Max(f.p11, 1e-12))
	f.tSmooth = tAlpha*tRaw + (1-tAlpha)*f.tSmooth
	f.updateDirection(obs.At)

	return f.prediction(obs.At)
}

// updateDirection applies the enter/hold hysteresis. In the neutral band
// between tHold and tEnter the previous non-FLAT direction persists.
func (f *Filter) updateDirection(now time.Time) {
	abs := math.Abs(f.tSmooth)
	prev := f.direction

	switch {
	case abs >= tEnter:
		if f.tSmooth > 0 {
			f.direction = domain.TrendUp
		} else {
			f.direction = domain.TrendDown
		}
	case abs < tHold:
		f.direction = domain.TrendFlat
	}
	// tHold <= abs < tEnter: keep prev.

	if prev != f.direction && prev != domain.TrendFlat && f.direction != domain.TrendFlat {
		f.reversal = now
	}
}

// prediction snapshots the filter output.
func (f *Filter) prediction(at time.Time) domain.TrendPrediction {
	abs := math.Abs(f.tSmooth)
	return domain.TrendPrediction{
		Direction:    f.direction,
		Confidence:   abs / (1 + abs),
		TStat:        f.tSmooth,
		Velocity:     f.x1,
		UpdatedAt:    at,
		LastReversal: f.reversal,
	}
}

// Direction returns the current hysteresis-gated direction.
func (f *Filter) Direction() domain.TrendDirection {
	return f.direction
}
