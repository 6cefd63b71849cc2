package nws

import "encoding/json"

// Properties carries the subset of alert properties the bridge acts on.
type Properties struct {
	ID            string   `json:"id"`
	Event         string   `json:"event"`
	Headline      string   `json:"headline"`
	MessageType   string   `json:"messageType"`
	AffectedZones []string `json:"affectedZones"`
}

// Alert is one feature from the active-alerts feed. Alerts are immutable
// snapshots; nothing in the bridge mutates them.
type Alert struct {
	ID         string          `json:"id"`
	Properties Properties      `json:"properties"`
	Geometry   json.RawMessage `json:"geometry"`
}

// AlertID returns the stable identifier, preferring the property over the
// feature-level id.
func (a *Alert) AlertID() string {
	if a.Properties.ID != "" {
		return a.Properties.ID
	}
	return a.ID
}

type Pagination struct {
	Next string `json:"next"`
}

// AlertCollection is one page of the active-alerts feed.
type AlertCollection struct {
	Features   []Alert     `json:"features"`
	Pagination *Pagination `json:"pagination"`
}

// Next returns the continuation reference, or "" when this is the last page.
func (c *AlertCollection) Next() string {
	if c.Pagination == nil {
		return ""
	}
	return c.Pagination.Next
}

// zoneResource decodes a dereferenced affected-zone URL. The endpoint answers
// either a single feature with a geometry or a feature collection whose
// members may carry geometries.
type zoneResource struct {
	Geometry json.RawMessage `json:"geometry"`
	Features []struct {
		Geometry json.RawMessage `json:"geometry"`
	} `json:"features"`
}

// geometryType peeks at the type of a raw GeoJSON geometry without decoding
// the coordinates.
func geometryType(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return ""
	}
	return head.Type
}

// IsPolygonal reports whether the raw geometry is a polygon or multi-polygon,
// the only types usable as alert boundaries.
func IsPolygonal(raw json.RawMessage) bool {
	switch geometryType(raw) {
	case "Polygon", "MultiPolygon":
		return true
	}
	return false
}
