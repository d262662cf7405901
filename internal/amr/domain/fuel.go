package amr

// FuelType is the metered commodity.
type FuelType string

const (
	FuelElectricity FuelType = "electricity"
	FuelGas         FuelType = "gas"
)

// IsValid checks the fuel type is supported.
func (f FuelType) IsValid() bool {
	switch f {
	case FuelElectricity, FuelGas:
		return true
	default:
		return false
	}
}
