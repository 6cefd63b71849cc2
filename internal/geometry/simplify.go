package geometry

import (
	"fmt"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/wkb"
	"github.com/twpayne/go-geos"

	"github.com/nwspush/nwspush/internal/config"
)

// Point is one vertex of a delivery-side zone ring. Axis order is swapped
// relative to GeoJSON coordinates.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Payload is the delivery-channel encoding of a boundary: an ordered list of
// closed rings. Total point count across rings is bounded by MaxPoints.
type Payload [][]Point

// Simplifier unions candidate boundaries and reduces them to a payload within
// the configured point budget. Tolerance controls geometric fidelity; the
// point budget is a hard ceiling imposed by the delivery channel.
type Simplifier struct {
	maxPoints int
	preferred int
	tolerance float64
	rounds    int
	geos      *geos.Context
	log       zerolog.Logger
}

func NewSimplifier(cfg *config.Config) *Simplifier {
	return &Simplifier{
		maxPoints: cfg.MaxPoints,
		preferred: cfg.PreferredPoints,
		tolerance: cfg.SimplifyTolerance,
		rounds:    cfg.SimplifyRounds,
		geos:      geos.NewContext(),
		log:       zlog.With().Str("component", "simplify").Logger(),
	}
}

// Union collapses the candidate boundaries into one geometry. Overlapping
// zone boundaries merge into a single outline. A single candidate passes
// through untouched; an empty list yields nil.
func (s *Simplifier) Union(candidates []Candidate) (geom.T, error) {
	switch len(candidates) {
	case 0:
		return nil, nil
	case 1:
		return candidates[0].Geom, nil
	}

	var union *geos.Geom
	for _, candidate := range candidates {
		g, err := s.toGEOS(candidate.Geom)
		if err != nil {
			return nil, err
		}
		if union == nil {
			union = g
			continue
		}
		if err := geosSafe(func() { union = union.Union(g) }); err != nil {
			return nil, fmt.Errorf("union boundaries: %w", err)
		}
	}
	return s.fromGEOS(union)
}

// Payload converts a unioned boundary into closed delivery rings. Geometries
// already within the point budget are emitted unsimplified; larger ones go
// through iterative tolerance-doubling simplification. A nil return is the
// valid "no zone targeting possible" outcome, not an error.
func (s *Simplifier) Payload(g geom.T) (Payload, error) {
	if g == nil {
		return nil, nil
	}

	rings := exteriorRings(g)
	count := pointCount(rings)
	if count == 0 {
		return nil, nil
	}
	if count <= s.maxPoints {
		return toPayload(rings), nil
	}

	simplified, err := s.simplify(g)
	if err != nil {
		return nil, err
	}
	rings = exteriorRings(simplified)
	count = pointCount(rings)
	if count == 0 {
		return nil, nil
	}
	if count > s.maxPoints {
		s.log.Warn().Int("points", count).Msg("boundary still over the point ceiling after simplification")
		return nil, nil
	}
	return toPayload(rings), nil
}

// simplify applies topology-preserving simplification, doubling the tolerance
// until the geometry fits the preferred point count or the round cap is
// reached. A round that collapses the shape to empty falls back to the last
// non-empty result.
func (s *Simplifier) simplify(g geom.T) (geom.T, error) {
	current, err := s.toGEOS(g)
	if err != nil {
		return nil, err
	}

	tolerance := s.tolerance
	for round := 0; round < s.rounds; round++ {
		var candidate *geos.Geom
		if err := geosSafe(func() { candidate = current.TopologyPreserveSimplify(tolerance) }); err != nil {
			return nil, fmt.Errorf("simplify boundary: %w", err)
		}
		if candidate.IsEmpty() {
			s.log.Debug().Float64("tolerance", tolerance).Msg("simplification collapsed, keeping previous result")
			break
		}
		current = candidate

		simplified, err := s.fromGEOS(current)
		if err != nil {
			return nil, err
		}
		if pointCount(exteriorRings(simplified)) <= s.preferred {
			return simplified, nil
		}
		tolerance *= 2
	}

	return s.fromGEOS(current)
}

// geosSafe runs fn, converting a GEOS panic into an error. go-geos reports
// GEOS failures by panicking, and invalid rings in feed polygons raise a
// TopologyException inside union and simplify calls.
func geosSafe(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok {
				err = e
				return
			}
			err = fmt.Errorf("%v", r)
		}
	}()
	fn()
	return nil
}

func (s *Simplifier) toGEOS(g geom.T) (*geos.Geom, error) {
	data, err := wkb.Marshal(g, wkb.NDR)
	if err != nil {
		return nil, fmt.Errorf("marshal wkb: %w", err)
	}
	gg, err := s.geos.NewGeomFromWKB(data)
	if err != nil {
		return nil, fmt.Errorf("read wkb: %w", err)
	}
	return gg, nil
}

func (s *Simplifier) fromGEOS(g *geos.Geom) (geom.T, error) {
	out, err := wkb.Unmarshal(g.ToWKB())
	if err != nil {
		return nil, fmt.Errorf("unmarshal wkb: %w", err)
	}
	return out, nil
}

// exteriorRings returns the exterior ring coordinates of each polygon member.
// Holes are not delivered; the channel targets devices by outline only.
func exteriorRings(g geom.T) [][]geom.Coord {
	switch t := g.(type) {
	case *geom.Polygon:
		if t.NumLinearRings() == 0 {
			return nil
		}
		return [][]geom.Coord{t.LinearRing(0).Coords()}
	case *geom.MultiPolygon:
		var rings [][]geom.Coord
		for i := 0; i < t.NumPolygons(); i++ {
			polygon := t.Polygon(i)
			if polygon.NumLinearRings() == 0 {
				continue
			}
			rings = append(rings, polygon.LinearRing(0).Coords())
		}
		return rings
	}
	return nil
}

func pointCount(rings [][]geom.Coord) int {
	total := 0
	for _, ring := range rings {
		total += len(ring)
	}
	return total
}

// toPayload swaps axis order to lat/lng and closes every ring explicitly.
func toPayload(rings [][]geom.Coord) Payload {
	var payload Payload
	for _, ring := range rings {
		if len(ring) == 0 {
			continue
		}
		points := make([]Point, 0, len(ring)+1)
		for _, coord := range ring {
			points = append(points, Point{Lat: coord[1], Lng: coord[0]})
		}
		if points[0] != points[len(points)-1] {
			points = append(points, points[0])
		}
		payload = append(payload, points)
	}
	if len(payload) == 0 {
		return nil
	}
	return payload
}
