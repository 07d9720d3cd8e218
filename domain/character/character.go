// Package character defines the Character entity of spec §3: the stable
// identity of a tracked pilot.
package character

import (
	"strconv"

	"github.com/guarzo/wanderer-notifier/internal/apperror"
)

// Character is the stable identity of a tracked pilot. Integer fields are
// parsed once at construction; mutation happens only via full replacement
// in the per-map character-list cache.
type Character struct {
	CharacterID       string
	Name              string
	CorporationID     *int64
	CorporationTicker string
	AllianceID        *int64
	AllianceTicker    string
	Tracked           bool
}

// FromFields validates and constructs a Character from loosely-typed
// fields, e.g. the payload of a character_added SSE event. character_id
// and name are required.
func FromFields(fields map[string]interface{}) (Character, error) {
	characterID, _ := fields["character_id"].(string)
	name, _ := fields["name"].(string)

	var missing []string
	if characterID == "" {
		missing = append(missing, "character_id")
	}
	if name == "" {
		missing = append(missing, "name")
	}
	if len(missing) > 0 {
		return Character{}, apperror.Validation("character payload rejected", missing)
	}

	c := Character{CharacterID: characterID, Name: name}
	if v, ok := fields["corporation_id"]; ok {
		if id, err := toInt64(v); err == nil {
			c.CorporationID = &id
		}
	}
	if v, ok := fields["corporation_ticker"].(string); ok {
		c.CorporationTicker = v
	}
	if v, ok := fields["alliance_id"]; ok {
		if id, err := toInt64(v); err == nil {
			c.AllianceID = &id
		}
	}
	if v, ok := fields["alliance_ticker"].(string); ok {
		c.AllianceTicker = v
	}
	if v, ok := fields["tracked"].(bool); ok {
		c.Tracked = v
	} else {
		c.Tracked = true
	}

	return c, nil
}

// Merge applies the fields present in updates onto c, used by
// character_updated's "merge changed fields" handler. An empty name is
// ignored; the tickers and tracked are applied whenever present, including
// "" and false.
func (c Character) Merge(updates map[string]interface{}) Character {
	merged := c
	if v, ok := updates["name"].(string); ok && v != "" {
		merged.Name = v
	}
	if v, ok := updates["corporation_id"]; ok {
		if id, err := toInt64(v); err == nil {
			merged.CorporationID = &id
		}
	}
	if v, ok := updates["corporation_ticker"].(string); ok {
		merged.CorporationTicker = v
	}
	if v, ok := updates["alliance_id"]; ok {
		if id, err := toInt64(v); err == nil {
			merged.AllianceID = &id
		}
	}
	if v, ok := updates["alliance_ticker"].(string); ok {
		merged.AllianceTicker = v
	}
	if v, ok := updates["tracked"].(bool); ok {
		merged.Tracked = v
	}
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
	case string:
		return strconv.ParseInt(t, 10, 64)
	default:
		return 0, apperror.Decode("unsupported numeric type", nil)
	}
}
