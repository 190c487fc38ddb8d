package payments

import "math"

// Platform takes 10% of the gross amount, the processing provider 2.9%; the
// lawyer keeps the remainder. All three are rounded to cents and always sum
// back to the gross amount.
const (
	platformFeeRate   = 0.10
	processingFeeRate = 0.029
)

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// SplitFees computes the fee breakdown for a gross amount.
func SplitFees(amount float64) (platformFee, processingFee, lawyerEarnings float64) {
	platformFee = round2(amount * platformFeeRate)
	processingFee = round2(amount * processingFeeRate)
	lawyerEarnings = round2(amount - platformFee - processingFee)
	return
}
