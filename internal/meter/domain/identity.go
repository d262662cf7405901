package meter

import (
	"fmt"
	"strconv"

	"github.com/google/uuid"
)

// Kind is the sub-type of a synthetic meter.
type Kind string

const (
	KindElectricity          Kind = "electricity"
	KindGas                  Kind = "gas"
	KindStorageHeater        Kind = "storage_heater"
	KindSolarPV              Kind = "solar_pv"
	KindExportedSolarPV      Kind = "exported_solar_pv"
	KindSolarSelfConsumption Kind = "solar_self_consumption"
	KindMainsPlusSelfConsume Kind = "mains_plus_self_consume"
)

var mpxnPrefixes = map[Kind]int64{
	KindElectricity:          9,
	KindGas:                  8,
	KindStorageHeater:        7,
	KindSolarPV:              6,
	KindExportedSolarPV:      5,
	KindSolarSelfConsumption: 4,
	KindMainsPlusSelfConsume: 3,
}

const mpxnScale = 10_000_000_000_000

var namespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("energy-costing/meters"))

// SyntheticMPXN derives a synthetic meter's mpxn from the site and the meter kind.
func SyntheticMPXN(siteURN int64, kind Kind) (string, error) {
	prefix, ok := mpxnPrefixes[kind]
	if !ok {
		return "", fmt.Errorf("meter: unknown synthetic kind %q", kind)
	}
	if siteURN < 0 || siteURN >= mpxnScale {
		return "", fmt.Errorf("meter: site urn %d out of range", siteURN)
	}
	return strconv.FormatInt(prefix*mpxnScale+siteURN, 10), nil
}

// SyntheticID derives a stable uuid for a synthetic meter.
func SyntheticID(siteURN int64, kind Kind) uuid.UUID {
	return uuid.NewSHA1(namespace, []byte(fmt.Sprintf("site/%d/%s", siteURN, kind)))
}
