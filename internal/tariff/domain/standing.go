package tariff

import (
	"fmt"
	"time"

	amr "energy-costing/internal/amr/domain"
)

// Period is the billing period a standing charge is quoted per.
type Period string

const (
	PerDay     Period = "day"
	PerMonth   Period = "month"
	PerQuarter Period = "quarter"
)

// ParsePeriod validates a configured period.
func ParsePeriod(value string) (Period, error) {
	switch p := Period(value); p {
	case PerDay, PerMonth, PerQuarter:
		return p, nil
	default:
		return "", fmt.Errorf("%w: standing charge per %q", ErrUnexpectedRateType, value)
	}
}

// StandingCharge is a fixed charge independent of consumption.
type StandingCharge struct {
	Name string
	Rate float64
	Per  Period
}

// DailyAmount converts the charge into £ for one day using that day's period length.
func (c StandingCharge) DailyAmount(date time.Time) (float64, error) {
	switch c.Per {
	case PerDay:
		return c.Rate, nil
	case PerMonth:
		return c.Rate / float64(amr.DaysInMonth(date)), nil
	case PerQuarter:
		return c.Rate / float64(amr.DaysInQuarter(date)), nil
	default:
		return 0, fmt.Errorf("%w: standing charge %s per %q", ErrUnexpectedRateType, c.Name, c.Per)
	}
}

func mergeStandingCharges(base, overlay []StandingCharge) []StandingCharge {
	merged := append([]StandingCharge(nil), base...)
	for _, charge := range overlay {
		replaced := false
		for i := range merged {
			if merged[i].Name == charge.Name {
				merged[i] = charge
				replaced = true
				break
			}
		}
		if !replaced {
			merged = append(merged, charge)
		}
	}
	return merged
}
