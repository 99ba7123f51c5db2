package cultivation

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"hash"
	"math"
)

// stateDigest is a stable fingerprint of the facility's simulation state.
// Two same-seed runs fed the same commands must produce identical digests
// tick for tick; it exists to catch nondeterminism, not to restore state.
func (f *Facility) stateDigest(nowTick uint64) string {
	h := sha256.New()
	var tmp [8]byte

	digestU64(h, &tmp, nowTick)
	digestU64(h, &tmp, uint64(len(f.plants)))

	for _, p := range f.sortedPlants() {
		digestStr(h, &tmp, p.ID)
		digestStr(h, &tmp, p.StrainID)
		digestStr(h, &tmp, p.ZoneID)
		digestU64(h, &tmp, uint64(p.Stage))
		digestF64(h, &tmp, p.Health)
		digestF64(h, &tmp, p.Stress)
		digestF64(h, &tmp, p.Water)
		digestF64(h, &tmp, p.Nutrient)
		digestF64(h, &tmp, p.Progress)
		digestF64(h, &tmp, p.DaysInStage)
		digestF64(h, &tmp, p.AgeDays)
		h.Write([]byte{boolByte(p.Dead), boolByte(p.Harvested)})
	}

	for _, id := range f.zones.sortedIDs() {
		z := f.zones.zones[id]
		if z == nil {
			continue
		}
		digestStr(h, &tmp, z.ID)
		digestEnv(h, &tmp, z.Setpoint)
		digestEnv(h, &tmp, z.Actual)
		digestF64(h, &tmp, z.Insulation)
		digestU64(h, &tmp, uint64(len(z.PlantIDs)))
		if z.Alert != nil {
			digestU64(h, &tmp, uint64(z.Alert.Severity)+1)
			digestU64(h, &tmp, uint64(len(z.Alert.Issues)))
		} else {
			digestU64(h, &tmp, 0)
		}
	}

	digestU64(h, &tmp, f.harvestedLots)
	digestF64(h, &tmp, f.harvestedGrams)

	return hex.EncodeToString(h.Sum(nil))
}

func digestU64(h hash.Hash, tmp *[8]byte, v uint64) {
	binary.LittleEndian.PutUint64(tmp[:], v)
	h.Write(tmp[:])
}

func digestF64(h hash.Hash, tmp *[8]byte, v float64) {
	digestU64(h, tmp, math.Float64bits(v))
}

func digestStr(h hash.Hash, tmp *[8]byte, s string) {
	digestU64(h, tmp, uint64(len(s)))
	h.Write([]byte(s))
}

func digestEnv(h hash.Hash, tmp *[8]byte, e Environment) {
	digestF64(h, tmp, e.TempC)
	digestF64(h, tmp, e.Humidity)
	digestF64(h, tmp, e.CO2PPM)
	digestF64(h, tmp, e.LightDLI)
	digestF64(h, tmp, e.Airflow)
	digestF64(h, tmp, e.PH)
	digestF64(h, tmp, e.EC)
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
