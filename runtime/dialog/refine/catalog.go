package refine

// CatalogOptions configures the stock layer set.
type CatalogOptions struct {
	// Style configures the style modifier layer.
	Style StyleModifierOptions
	// Calibration configures the confidence calibration layer.
	Calibration CalibrationOptions
	// IntentStreakThreshold tunes the intent pattern guard. Zero uses the
	// default.
	IntentStreakThreshold int
}

// DefaultLayers returns the stock layer catalog in registration order.
// Disambiguation resolution registers before confidence calibration on
// purpose: both are Critical and calibration must score the resolved intent,
// not the raw one.
func DefaultLayers(opts CatalogOptions) []Layer {
	return []Layer{
		NewStyleModifier(opts.Style),
		NewDisambiguationResolution(),
		NewCalibration(opts.Calibration),
		NewSecondaryIntentDetection(),
		NewOptionSelection(),
		NewComparisonRefinement(),
		NewObjectionUncertainty(),
		NewShortAnswer(),
		NewDataAware(),
		NewComposite(),
		NewFirstContact(),
		NewGreetingContext(),
		NewContentRepetitionGuard(),
		NewIntentPatternGuard(opts.IntentStreakThreshold),
	}
}

// NewDefaultChain builds a chain over the stock catalog.
func NewDefaultChain(chain ChainOptions, catalog CatalogOptions) *Chain {
	return NewChain(chain, DefaultLayers(catalog)...)
}
