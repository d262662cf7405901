package tariff

import (
	"fmt"
	"strings"

	amr "energy-costing/internal/amr/domain"
)

// Fingerprint is a stable description of the tariff's configuration. Two tariffs
// with equal fingerprints price identical consumption identically.
func (t *AccountingTariff) Fingerprint() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s|%s|%t|%s|%t|", formatStart(t), formatEnd(t), t.Default, t.Tag, t.ClimateChangeLevy)
	describeRates(&b, t.Rates)
	for _, c := range t.StandingCharges {
		fmt.Fprintf(&b, "|%s=%g/%s", c.Name, c.Rate, c.Per)
	}
	return b.String()
}

func formatStart(t *AccountingTariff) string {
	if t.StartDate.IsZero() {
		return "-"
	}
	return amr.FormatDay(t.StartDate)
}

func formatEnd(t *AccountingTariff) string {
	if t.EndDate.IsZero() {
		return "-"
	}
	return amr.FormatDay(t.EndDate)
}

func describeRates(b *strings.Builder, rates RateStructure) {
	switch r := rates.(type) {
	case *FlatRate:
		fmt.Fprintf(b, "flat:%g", r.Rate)
	case *DayNightRates:
		fmt.Fprintf(b, "daynight:%s@%g,%s@%g", r.Day.Range, r.Day.Rate, r.Night.Range, r.Night.Rate)
	case *GenericRates:
		b.WriteString("generic")
		for _, bucket := range r.Buckets {
			fmt.Fprintf(b, ":%s[%s,%s]@%g", bucket.Name, bucket.timeRange(), bucket.DayType, bucket.Rate)
			for _, tier := range bucket.Tiers {
				fmt.Fprintf(b, "(%g-%g@%g)", tier.Low, tier.High, tier.Rate)
			}
		}
	}
}
