package catalogs

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// DefaultBaseYieldG is used when neither the strain nor its species
// supplies yield data.
const DefaultBaseYieldG = 50

type Catalogs struct {
	Strains StrainCatalog
	Species SpeciesCatalog
}

type StrainCatalog struct {
	Palette       []string
	Index         map[string]uint16
	ByID          map[string]StrainDef
	PaletteDigest string
	DefsDigest    string
}

type StrainDef struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Species string `json:"species"` // "INDICA","SATIVA","HYBRID"

	BaseYieldG        float64 `json:"base_yield_g,omitempty"`
	GeneticPotential  float64 `json:"genetic_potential"`
	StressSensitivity float64 `json:"stress_sensitivity"`
	FloweringDays     float64 `json:"flowering_days"`

	Cannabinoids CannabinoidProfile `json:"cannabinoids"`
	Terpenes     []string           `json:"terpenes,omitempty"`
}

type CannabinoidProfile struct {
	THCPct float64 `json:"thc_pct"`
	CBDPct float64 `json:"cbd_pct"`
}

type SpeciesCatalog struct {
	ByID   map[string]SpeciesDef
	Digest string
}

type SpeciesDef struct {
	ID         string     `json:"id"`
	YieldRange [2]float64 `json:"yield_range"` // grams per plant, [lo,hi]
}

func Load(configDir string) (*Catalogs, error) {
	var c Catalogs

	if err := loadStrains(filepath.Join(configDir, "strains.json"), &c.Strains); err != nil {
		return nil, err
	}
	if err := loadSpecies(filepath.Join(configDir, "species.json"), &c.Species); err != nil {
		return nil, err
	}

	return &c, nil
}

// BaseYieldGrams resolves a strain's base yield: the strain's own value,
// else the species yield-range midpoint, else DefaultBaseYieldG.
func (c *Catalogs) BaseYieldGrams(strainID string) float64 {
	s, ok := c.Strains.ByID[strainID]
	if !ok {
		return DefaultBaseYieldG
	}
	if s.BaseYieldG > 0 {
		return s.BaseYieldG
	}
	if sp, ok := c.Species.ByID[s.Species]; ok {
		lo, hi := sp.YieldRange[0], sp.YieldRange[1]
		if hi > 0 && hi >= lo {
			return (lo + hi) / 2
		}
	}
	return DefaultBaseYieldG
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func loadStrains(path string, out *StrainCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	out.DefsDigest = sha256Hex(raw)

	var defs []StrainDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("strains.json: %w", err)
	}
	out.ByID = map[string]StrainDef{}
	for _, d := range defs {
		if d.ID == "" {
			return fmt.Errorf("strains.json: empty id")
		}
		if d.GeneticPotential < 0 || d.GeneticPotential > 1 {
			return fmt.Errorf("strains.json: %s: genetic_potential out of [0,1]", d.ID)
		}
		if d.StressSensitivity <= 0 {
			return fmt.Errorf("strains.json: %s: stress_sensitivity must be > 0", d.ID)
		}
		out.ByID[d.ID] = d
	}

	ids := make([]string, 0, len(out.ByID))
	for id := range out.ByID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out.Palette = ids
	out.Index = make(map[string]uint16, len(ids))
	for i, id := range ids {
		out.Index[id] = uint16(i)
	}
	palJSON, _ := json.Marshal(ids)
	out.PaletteDigest = sha256Hex(palJSON)
	return nil
}

func loadSpecies(path string, out *SpeciesCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		// Optional catalog; built-in profiles cover the common species.
		if os.IsNotExist(err) {
			out.ByID = defaultSpecies()
			out.Digest = sha256Hex(nil)
			return nil
		}
		return err
	}
	out.Digest = sha256Hex(raw)

	var defs []SpeciesDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("species.json: %w", err)
	}
	out.ByID = map[string]SpeciesDef{}
	for _, d := range defs {
		if d.ID == "" {
			return fmt.Errorf("species.json: empty id")
		}
		out.ByID[d.ID] = d
	}
	return nil
}

func defaultSpecies() map[string]SpeciesDef {
	return map[string]SpeciesDef{
		"INDICA": {ID: "INDICA", YieldRange: [2]float64{300, 500}},
		"SATIVA": {ID: "SATIVA", YieldRange: [2]float64{350, 550}},
		"HYBRID": {ID: "HYBRID", YieldRange: [2]float64{325, 525}},
	}
}
