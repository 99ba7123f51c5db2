package cultivation

import (
	"fmt"
	"sort"
	"strings"
)

// DefaultZoneID is the built-in zone every facility starts with. It cannot be
// removed; plants from deleted zones fall back into it.
const DefaultZoneID = "default"

// Zone is one climate-controlled room. Setpoint is what the controller is
// asked for; Actual is what the room currently reads (drift moves Actual
// toward Setpoint, weather leaks through the walls per Insulation).
type Zone struct {
	ID   string `json:"id"`
	Name string `json:"name"`

	Setpoint Environment `json:"setpoint"`
	Actual   Environment `json:"actual"`

	// Insulation 0..1: 1 is a sealed room outdoor weather cannot touch,
	// 0 is effectively outdoors.
	Insulation float64 `json:"insulation"`

	PlantIDs []string `json:"plant_ids"`

	HarvestedLots   uint64  `json:"harvested_lots"`
	HarvestedGrams  float64 `json:"harvested_grams"`
	Alert           *Alert  `json:"alert,omitempty"`
	CreatedTick     uint64  `json:"created_tick"`
	LastChangedTick uint64  `json:"last_changed_tick"`
}

func (z *Zone) removePlant(id string) {
	for i, pid := range z.PlantIDs {
		if pid == id {
			z.PlantIDs = append(z.PlantIDs[:i], z.PlantIDs[i+1:]...)
			return
		}
	}
}

// zoneStore owns the zone table and the plant-to-zone assignment. Assignment
// is exclusive: a plant is in exactly one zone at a time.
type zoneStore struct {
	zones map[string]*Zone
	order []string // creation order, default zone first

	plantZone map[string]string
}

func newZoneStore(defaultEnv Environment) *zoneStore {
	def := &Zone{
		ID:         DefaultZoneID,
		Name:       "Default Zone",
		Setpoint:   defaultEnv,
		Actual:     defaultEnv,
		Insulation: 0.9,
	}
	return &zoneStore{
		zones:     map[string]*Zone{DefaultZoneID: def},
		order:     []string{DefaultZoneID},
		plantZone: map[string]string{},
	}
}

func normalizeZoneID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

func (s *zoneStore) get(id string) *Zone { return s.zones[id] }

func (s *zoneStore) create(id, name string, env Environment, insulation float64, nowTick uint64) (*Zone, error) {
	id = normalizeZoneID(id)
	if id == "" {
		return nil, fmt.Errorf("zone id: %w", ErrBadRequest)
	}
	if _, ok := s.zones[id]; ok {
		return nil, fmt.Errorf("zone %s: %w", id, ErrExists)
	}
	if name == "" {
		name = id
	}
	env.clampRanges()
	z := &Zone{
		ID:              id,
		Name:            name,
		Setpoint:        env,
		Actual:          env,
		Insulation:      clamp01(insulation),
		CreatedTick:     nowTick,
		LastChangedTick: nowTick,
	}
	s.zones[id] = z
	s.order = append(s.order, id)
	return z, nil
}

// remove deletes a zone and reassigns its plants to the default zone,
// returning the moved plant ids in their in-zone order.
func (s *zoneStore) remove(id string) ([]string, error) {
	id = normalizeZoneID(id)
	if id == DefaultZoneID {
		return nil, fmt.Errorf("zone %s: %w", id, ErrZoneProtected)
	}
	z, ok := s.zones[id]
	if !ok {
		return nil, fmt.Errorf("zone %s: %w", id, ErrNotFound)
	}
	def := s.zones[DefaultZoneID]
	moved := make([]string, 0, len(z.PlantIDs))
	for _, pid := range z.PlantIDs {
		s.plantZone[pid] = DefaultZoneID
		def.PlantIDs = append(def.PlantIDs, pid)
		moved = append(moved, pid)
	}
	delete(s.zones, id)
	for i, zid := range s.order {
		if zid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return moved, nil
}

func (s *zoneStore) setEnvironment(id string, env Environment, nowTick uint64) (*Zone, error) {
	z, ok := s.zones[normalizeZoneID(id)]
	if !ok {
		return nil, fmt.Errorf("zone %s: %w", id, ErrNotFound)
	}
	env.clampRanges()
	// Operator override: the controller is assumed to reach the new target
	// immediately; drift perturbs from there.
	z.Setpoint = env
	z.Actual = env
	z.LastChangedTick = nowTick
	return z, nil
}

// assign moves a plant into a zone, detaching it from its previous zone
// first. Returns the previous zone id ("" for a brand new plant).
func (s *zoneStore) assign(plantID, zoneID string) (string, error) {
	zoneID = normalizeZoneID(zoneID)
	z, ok := s.zones[zoneID]
	if !ok {
		return "", fmt.Errorf("zone %s: %w", zoneID, ErrNotFound)
	}
	prev := s.plantZone[plantID]
	if prev == zoneID {
		return prev, nil
	}
	if prev != "" {
		if pz := s.zones[prev]; pz != nil {
			pz.removePlant(plantID)
		}
	}
	s.plantZone[plantID] = zoneID
	z.PlantIDs = append(z.PlantIDs, plantID)
	return prev, nil
}

func (s *zoneStore) unassign(plantID string) {
	zid, ok := s.plantZone[plantID]
	if !ok {
		return
	}
	if z := s.zones[zid]; z != nil {
		z.removePlant(plantID)
	}
	delete(s.plantZone, plantID)
}

// zoneOf returns the zone a plant lives in, falling back to the default zone
// so callers always get a usable environment.
func (s *zoneStore) zoneOf(plantID string) *Zone {
	if zid, ok := s.plantZone[plantID]; ok {
		if z := s.zones[zid]; z != nil {
			return z
		}
	}
	return s.zones[DefaultZoneID]
}

// sortedIDs returns zone ids in lexical order for stable external views.
// Internal sweeps iterate s.order (creation order) instead.
func (s *zoneStore) sortedIDs() []string {
	out := make([]string, 0, len(s.zones))
	for id := range s.zones {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
