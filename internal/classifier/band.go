package classifier

// Band groups confidences for display.
type Band string

const (
	BandCertain  Band = "certain"
	BandProbable Band = "probable"
	BandGuess    Band = "guess"
	BandNone     Band = "none"
)

func BandFor(confidence float64) Band {
	switch {
	case confidence >= 0.8:
		return BandCertain
	case confidence >= 0.5:
		return BandProbable
	case confidence > 0:
		return BandGuess
	default:
		return BandNone
	}
}
