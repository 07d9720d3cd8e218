// Package system defines the System entity of spec §3: the stable identity
// of a solar system, enriched once with static-info data.
package system

import "github.com/guarzo/wanderer-notifier/internal/apperror"

// Type is the solar-system variant.
type Type string

const (
	TypeWormhole Type = "wormhole"
	TypeHighsec  Type = "highsec"
	TypeLowsec   Type = "lowsec"
	TypeNullsec  Type = "nullsec"
	TypePochven  Type = "pochven"
	TypeAbyssal  Type = "abyssal"
	TypeUnknown  Type = "unknown"
)

// StaticDetail is one wormhole-exit descriptor from the static-info
// enrichment response.
type StaticDetail struct {
	Name              string
	DestinationID     string
	DestinationName   string
	DestinationShort  string
	Lifetime          string
	MaxJumpMass       float64
	MaxMass           float64
	MassRegeneration  float64
}

// System is the stable identity of a solar system.
type System struct {
	SolarSystemID int64
	Name          string
	OriginalName  string
	SystemType    Type
	ClassTitle    string
	EffectName    string
	IsShattered   bool
	RegionName    string
	StaticDetails []StaticDetail // nil until enriched
	SunTypeID     int64
}

// FromFields validates and constructs a System from loosely-typed fields,
// e.g. the payload of an add_system SSE event.
func FromFields(fields map[string]interface{}) (System, error) {
	idRaw, hasID := fields["solar_system_id"]
	name, _ := fields["name"].(string)

	var missing []string
	if !hasID {
		missing = append(missing, "solar_system_id")
	}
	if name == "" {
		missing = append(missing, "name")
	}
	if len(missing) > 0 {
		return System{}, apperror.Validation("system payload rejected", missing)
	}

	id, err := toInt64(idRaw)
	if err != nil {
		return System{}, apperror.Validation("system payload rejected", []string{"solar_system_id"})
	}

	s := System{
		SolarSystemID: id,
		Name:          name,
		SystemType:    TypeUnknown,
	}
	if v, ok := fields["original_name"].(string); ok {
		s.OriginalName = v
	}
	if v, ok := fields["system_type"].(string); ok {
		s.SystemType = Type(v)
	}
	if v, ok := fields["class_title"].(string); ok {
		s.ClassTitle = v
	}
	if v, ok := fields["effect_name"].(string); ok {
		s.EffectName = v
	}
	if v, ok := fields["is_shattered"].(bool); ok {
		s.IsShattered = v
	}
	if v, ok := fields["region_name"].(string); ok {
		s.RegionName = v
	}
	return s, nil
}

// MergeMetadata applies the fields present in updates, used by
// system_metadata_changed's "merge changed fields" handler. An empty
// class_title or region_name is ignored; effect_name and is_shattered are
// applied whenever present, including "" and false.
func (s System) MergeMetadata(updates map[string]interface{}) System {
	merged := s
	if v, ok := updates["class_title"].(string); ok && v != "" {
		merged.ClassTitle = v
	}
	if v, ok := updates["effect_name"].(string); ok {
		merged.EffectName = v
	}
	if v, ok := updates["is_shattered"].(bool); ok {
		merged.IsShattered = v
	}
	if v, ok := updates["region_name"].(string); ok && v != "" {
		merged.RegionName = v
	}
	return merged
}

// WithStaticInfo returns a copy of s enriched with static-info fields.
func (s System) WithStaticInfo(classTitle, effectName string, shattered bool, regionName string, details []StaticDetail, sunTypeID int64) System {
	merged := s
	merged.ClassTitle = classTitle
	merged.EffectName = effectName
	merged.IsShattered = shattered
	merged.RegionName = regionName
	merged.StaticDetails = details
	merged.SunTypeID = sunTypeID
	return merged
}

func toInt64(v interface{}) (int64, error) {
	switch t := v.(type) {
	case float64:
		return int64(t), nil
	case int64:
		return t, nil
	case int:
		return int64(t), nil
	default:
		return 0, apperror.Decode("unsupported numeric type", nil)
	}
}
