package refine

import (
	"context"
	"math"
	"strings"
)

type (
	// CalibrationOptions tunes the confidence calibration layer.
	CalibrationOptions struct {
		// EntropyWeight scales the entropy penalty. Defaults to 0.3.
		EntropyWeight float64
		// GapWeight scales the top-two gap penalty. Defaults to 0.2.
		GapWeight float64
		// ShortMessagePenalty is subtracted for messages of three words or
		// fewer. Defaults to 0.1.
		ShortMessagePenalty float64
		// MinDelta is the smallest reduction worth reporting as a
		// refinement. Defaults to 0.01.
		MinDelta float64
	}

	// Calibration dampens systematically overconfident classifications. LLM
	// classifiers report near-certain confidence even on ambiguous input;
	// this layer folds the alternative distribution's entropy, the gap
	// between the top two candidates and cheap message heuristics into a
	// penalty on the reported confidence. It never raises confidence and
	// never changes the intent.
	Calibration struct {
		entropyW float64
		gapW     float64
		shortP   float64
		minDelta float64
	}
)

// NewCalibration builds the confidence calibration layer.
func NewCalibration(opts CalibrationOptions) *Calibration {
	c := &Calibration{
		entropyW: opts.EntropyWeight,
		gapW:     opts.GapWeight,
		shortP:   opts.ShortMessagePenalty,
		minDelta: opts.MinDelta,
	}
	if c.entropyW <= 0 {
		c.entropyW = 0.3
	}
	if c.gapW <= 0 {
		c.gapW = 0.2
	}
	if c.shortP <= 0 {
		c.shortP = 0.1
	}
	if c.minDelta <= 0 {
		c.minDelta = 0.01
	}
	return c
}

// Name implements Layer.
func (c *Calibration) Name() string { return "confidence_calibration" }

// Priority implements Layer.
func (c *Calibration) Priority() int { return PriorityCritical }

// FeatureFlag implements Layer.
func (c *Calibration) FeatureFlag() string { return "" }

// Applies implements Layer.
func (c *Calibration) Applies(rc *Context) bool { return rc.Confidence > 0 }

// Refine implements Layer.
func (c *Calibration) Refine(_ context.Context, rc *Context) (Result, error) {
	penalty := c.penalty(rc)
	if penalty <= 0 {
		return PassThrough(rc, c.Name()), nil
	}
	if penalty > 1 {
		penalty = 1
	}
	calibrated := rc.Confidence * (1 - penalty)
	if calibrated < 0 {
		calibrated = 0
	}
	if rc.Confidence-calibrated < c.minDelta {
		return PassThrough(rc, c.Name()), nil
	}
	res := Refine(rc, c.Name(), rc.Intent, calibrated, "confidence_calibrated")
	res.Metadata = map[string]any{"calibration_penalty": penalty}
	return res, nil
}

// penalty combines the entropy of the alternative distribution, the inverted
// top-two gap and the short-message heuristic into one multiplier.
func (c *Calibration) penalty(rc *Context) float64 {
	var p float64
	if alts := rc.Alternatives(); len(alts) > 1 {
		p += c.entropyW * normalizedEntropy(alts)
		p += c.gapW * (1 - topTwoGap(alts))
	}
	if len(strings.Fields(rc.Message)) <= 3 {
		p += c.shortP
	}
	return p
}

// normalizedEntropy returns the Shannon entropy of the distribution scaled to
// [0, 1] by the maximum entropy for its support size.
func normalizedEntropy(dist map[string]float64) float64 {
	var total float64
	for _, v := range dist {
		if v > 0 {
			total += v
		}
	}
	if total <= 0 {
		return 0
	}
	var h float64
	for _, v := range dist {
		if v <= 0 {
			continue
		}
		p := v / total
		h -= p * math.Log2(p)
	}
	max := math.Log2(float64(len(dist)))
	if max <= 0 {
		return 0
	}
	return h / max
}

// topTwoGap returns the difference between the two strongest candidates,
// clamped to [0, 1]. A wide gap means the classifier was decisive.
func topTwoGap(dist map[string]float64) float64 {
	var first, second float64
	for _, v := range dist {
		switch {
		case v > first:
			first, second = v, first
		case v > second:
			second = v
		}
	}
	gap := first - second
	if gap < 0 {
		return 0
	}
	if gap > 1 {
		return 1
	}
	return gap
}
