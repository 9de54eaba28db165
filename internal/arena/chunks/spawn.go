package chunks

import (
	"encoding/json"
	"fmt"
)

// SpawnKind is a closed set: only this package can implement it.
type SpawnKind interface {
	spawnKind()
	Kind() string
}

type EnemySpawn struct {
	Archetype string `json:"archetype,omitempty"`
}

type ResourceSpawn struct {
	Item  string `json:"item,omitempty"`
	Count int    `json:"count,omitempty"`
}

type HazardSpawn struct {
	Damage float64 `json:"damage,omitempty"`
}

func (EnemySpawn) spawnKind()    {}
func (ResourceSpawn) spawnKind() {}
func (HazardSpawn) spawnKind()   {}

func (EnemySpawn) Kind() string    { return "ENEMY" }
func (ResourceSpawn) Kind() string { return "RESOURCE" }
func (HazardSpawn) Kind() string   { return "HAZARD" }

type Spawn struct {
	Kind SpawnKind
	Pos  Vec2
}

type spawnJSON struct {
	Kind      string  `json:"kind"`
	Pos       Vec2    `json:"pos"`
	Archetype string  `json:"archetype,omitempty"`
	Item      string  `json:"item,omitempty"`
	Count     int     `json:"count,omitempty"`
	Damage    float64 `json:"damage,omitempty"`
}

func (s Spawn) MarshalJSON() ([]byte, error) {
	out := spawnJSON{Pos: s.Pos}
	switch k := s.Kind.(type) {
	case EnemySpawn:
		out.Kind = k.Kind()
		out.Archetype = k.Archetype
	case ResourceSpawn:
		out.Kind = k.Kind()
		out.Item = k.Item
		out.Count = k.Count
	case HazardSpawn:
		out.Kind = k.Kind()
		out.Damage = k.Damage
	default:
		return nil, fmt.Errorf("spawn: unknown kind %T", s.Kind)
	}
	return json.Marshal(out)
}

func (s *Spawn) UnmarshalJSON(b []byte) error {
	var in spawnJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	s.Pos = in.Pos
	switch in.Kind {
	case "ENEMY":
		s.Kind = EnemySpawn{Archetype: in.Archetype}
	case "RESOURCE":
		s.Kind = ResourceSpawn{Item: in.Item, Count: in.Count}
	case "HAZARD":
		s.Kind = HazardSpawn{Damage: in.Damage}
	default:
		return fmt.Errorf("spawn: unknown kind %q", in.Kind)
	}
	return nil
}

// CountByKind tallies spawns per kind name.
func CountByKind(spawns []Spawn) map[string]int {
	out := map[string]int{}
	for _, sp := range spawns {
		switch k := sp.Kind.(type) {
		case EnemySpawn, ResourceSpawn, HazardSpawn:
			out[k.Kind()]++
		}
	}
	return out
}
