package geometry

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/nwspush/nwspush/internal/nws"
)

// Provenance tags for resolved boundary candidates.
const (
	SourceAlertDirect   = "alert-direct"
	SourceZoneReference = "zone-reference"
)

// Candidate is one boundary geometry for an alert with its provenance.
type Candidate struct {
	Source string
	Geom   geom.T
}

// ZoneFetcher dereferences affected-zone URLs into raw polygonal geometries.
// Implemented by the nws client; faked in tests.
type ZoneFetcher interface {
	ZoneGeometries(ctx context.Context, urls []string) []json.RawMessage
}

// Resolver gathers boundary geometries for an alert, preferring the alert's
// own polygon and additionally dereferencing its affected zones. Both sources
// may combine.
type Resolver struct {
	zones ZoneFetcher
	log   zerolog.Logger
}

func NewResolver(zones ZoneFetcher) *Resolver {
	return &Resolver{
		zones: zones,
		log:   zlog.With().Str("component", "geometry").Logger(),
	}
}

// Resolve returns the candidate boundaries for an alert in priority order.
// An empty result means the alert has no usable boundary; the caller decides
// what that implies, it is not an error here.
func (r *Resolver) Resolve(ctx context.Context, alert *nws.Alert) []Candidate {
	var candidates []Candidate

	if direct, err := Decode(alert.Geometry); err != nil {
		r.log.Warn().Err(err).Str("alert", alert.AlertID()).Msg("undecodable alert geometry")
	} else if direct != nil {
		candidates = append(candidates, Candidate{Source: SourceAlertDirect, Geom: direct})
	}

	if len(alert.Properties.AffectedZones) > 0 {
		for _, raw := range r.zones.ZoneGeometries(ctx, alert.Properties.AffectedZones) {
			zone, err := Decode(raw)
			if err != nil || zone == nil {
				continue
			}
			candidates = append(candidates, Candidate{Source: SourceZoneReference, Geom: zone})
		}
	}

	return candidates
}

// Decode parses a raw GeoJSON geometry, returning nil for absent geometries
// and for types other than polygon/multi-polygon.
func Decode(raw json.RawMessage) (geom.T, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var g geom.T
	if err := geojson.Unmarshal(raw, &g); err != nil {
		return nil, fmt.Errorf("decode geometry: %w", err)
	}
	switch g.(type) {
	case *geom.Polygon, *geom.MultiPolygon:
		return g, nil
	}
	return nil, nil
}
