// Package policy holds the pure pricing and policy rules of the settlement
// engine. Nothing here touches storage, clocks or the network.
package policy

import (
	"fmt"
	"math"
	"time"
)

// DefaultPlatformFeeBps is the platform surcharge (10%) added on top of the
// caregiver's earnings and paid by the parent.
const DefaultPlatformFeeBps int64 = 1000

const bpsDenominator int64 = 10000

// FeeBreakdown is the split of a booking's price, in cents.
type FeeBreakdown struct {
	CaregiverAmount int64
	ServiceFee      int64
	TotalAmount     int64
}

// FeeCalculator computes booking prices with a rate fixed at construction.
type FeeCalculator struct {
	platformFeeBps int64
}

func NewFeeCalculator(platformFeeBps int64) FeeCalculator {
	if platformFeeBps < 0 {
		platformFeeBps = DefaultPlatformFeeBps
	}
	return FeeCalculator{platformFeeBps: platformFeeBps}
}

func (c FeeCalculator) PlatformFeeBps() int64 {
	return c.platformFeeBps
}

// Calculate prices a booking. ratePerHour is in cents.
func (c FeeCalculator) Calculate(ratePerHour int64, hoursPerDay float64, numberOfDays int) (FeeBreakdown, error) {
	if ratePerHour <= 0 {
		return FeeBreakdown{}, fmt.Errorf("%w: rate per hour must be positive", ErrInvalidAmount)
	}
	if hoursPerDay <= 0 || math.IsNaN(hoursPerDay) || math.IsInf(hoursPerDay, 0) {
		return FeeBreakdown{}, fmt.Errorf("%w: hours per day must be positive", ErrInvalidAmount)
	}
	if numberOfDays <= 0 {
		return FeeBreakdown{}, fmt.Errorf("%w: number of days must be at least 1", ErrInvalidAmount)
	}

	caregiverAmount := int64(math.Round(float64(ratePerHour) * hoursPerDay * float64(numberOfDays)))
	if caregiverAmount <= 0 {
		return FeeBreakdown{}, fmt.Errorf("%w: booking total rounds to zero", ErrInvalidAmount)
	}
	serviceFee := ApplyBps(caregiverAmount, c.platformFeeBps)

	return FeeBreakdown{
		CaregiverAmount: caregiverAmount,
		ServiceFee:      serviceFee,
		TotalAmount:     caregiverAmount + serviceFee,
	}, nil
}

// ApplyBps returns amount * bps / 10000 rounded half up.
func ApplyBps(amount, bps int64) int64 {
	return (amount*bps + bpsDenominator/2) / bpsDenominator
}

// NumberOfDays counts started 24h periods between start and end.
func NumberOfDays(start, end time.Time) int {
	d := end.Sub(start)
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Hours() / 24))
}

// DollarsToCents converts an API decimal amount to cents.
func DollarsToCents(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

func CentsToDollars(amount int64) float64 {
	return float64(amount) / 100
}
