package tariff

import "errors"

var (
	// ErrMissingAccountingTariff is returned when no accounting tariff covers a date that must be costed.
	ErrMissingAccountingTariff = errors.New("tariff: missing accounting tariff")
	// ErrOverlappingTariffs is returned when two tariffs of one default tier overlap and are not a weekday/weekend pair.
	ErrOverlappingTariffs = errors.New("tariff: overlapping accounting tariffs")
	// ErrTooManyWeekdayTariffs is returned when more than one weekday tariff covers a date.
	ErrTooManyWeekdayTariffs = errors.New("tariff: too many weekday tariffs")
	// ErrTooManyWeekendTariffs is returned when more than one weekend tariff covers a date.
	ErrTooManyWeekendTariffs = errors.New("tariff: too many weekend tariffs")
	// ErrMissingWeekdayTariff is returned when a weekend tariff has no weekday partner.
	ErrMissingWeekdayTariff = errors.New("tariff: missing weekday tariff")
	// ErrMissingWeekendTariff is returned when a weekday tariff has no weekend partner.
	ErrMissingWeekendTariff = errors.New("tariff: missing weekend tariff")
	// ErrMixedWeekdayWeekendTariffs is returned when tagged and untagged tariffs both cover a date.
	ErrMixedWeekdayWeekendTariffs = errors.New("tariff: mixed tagged and untagged tariffs")
	// ErrMissingWeekdayTagValue is returned when a tariff carries a day tag key without a true value.
	ErrMissingWeekdayTagValue = errors.New("tariff: weekday/weekend tag without value")
	// ErrBothWeekdayAndWeekend is returned when a tariff is tagged both weekday and weekend.
	ErrBothWeekdayAndWeekend = errors.New("tariff: tagged both weekday and weekend")
	// ErrUnexpectedRateType is returned for unsupported standing charge periods or rate types.
	ErrUnexpectedRateType = errors.New("tariff: unexpected rate type")
	// ErrInvalidTimeRanges is returned in strict mode when differential time ranges are incomplete.
	ErrInvalidTimeRanges = errors.New("tariff: invalid time ranges")
	// ErrInvalidDateRange is returned when a tariff's end date is before its start date.
	ErrInvalidDateRange = errors.New("tariff: invalid date range")
	// ErrMissingRates is returned when a tariff has no rate structure.
	ErrMissingRates = errors.New("tariff: missing rates")
	// ErrInvalidTimeOfDay is returned when a time of day cannot be parsed.
	ErrInvalidTimeOfDay = errors.New("tariff: invalid time of day")
	// ErrMissingEconomicTariff is returned when economic cost is requested without an economic tariff.
	ErrMissingEconomicTariff = errors.New("tariff: missing economic tariff")
)

// DiagnosticCode names a soft validation issue.
type DiagnosticCode string

const (
	DiagnosticMisaligned DiagnosticCode = "time_range_misaligned"
	DiagnosticGap        DiagnosticCode = "time_range_gap"
	DiagnosticOverlap    DiagnosticCode = "time_range_overlap"
	DiagnosticEmpty      DiagnosticCode = "time_range_empty"
)

// Diagnostic is a soft validation issue returned alongside a best-effort result.
type Diagnostic struct {
	Code    DiagnosticCode
	Tariff  string
	Message string
}

func (d Diagnostic) String() string {
	if d.Tariff == "" {
		return string(d.Code) + ": " + d.Message
	}
	return string(d.Code) + ": " + d.Tariff + ": " + d.Message
}

// ValidationMode selects how differential time-range problems are treated.
type ValidationMode int

const (
	// ValidationLenient records diagnostics and keeps the tariff.
	ValidationLenient ValidationMode = iota
	// ValidationStrict rejects the tariff with ErrInvalidTimeRanges.
	ValidationStrict
)

// ParseValidationMode maps a config string to a mode; unknown values are lenient.
func ParseValidationMode(value string) ValidationMode {
	if value == "strict" {
		return ValidationStrict
	}
	return ValidationLenient
}

// ErrorKind separates data gaps from configuration mistakes.
type ErrorKind int

const (
	KindNone ErrorKind = iota
	// KindData covers dates no tariff was configured for.
	KindData
	// KindConfig covers tariff configuration that cannot be used.
	KindConfig
)

var configErrors = []error{
	ErrOverlappingTariffs,
	ErrTooManyWeekdayTariffs,
	ErrTooManyWeekendTariffs,
	ErrMissingWeekdayTariff,
	ErrMissingWeekendTariff,
	ErrMixedWeekdayWeekendTariffs,
	ErrMissingWeekdayTagValue,
	ErrBothWeekdayAndWeekend,
	ErrUnexpectedRateType,
	ErrInvalidTimeRanges,
	ErrInvalidDateRange,
	ErrMissingRates,
	ErrInvalidTimeOfDay,
}

// Kind classifies a tariff error.
func Kind(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	if errors.Is(err, ErrMissingAccountingTariff) || errors.Is(err, ErrMissingEconomicTariff) {
		return KindData
	}
	for _, target := range configErrors {
		if errors.Is(err, target) {
			return KindConfig
		}
	}
	return KindNone
}
