// Package geo ranks pharmacy locations by straight-line distance from the user.
package geo

import (
	"errors"
	"math"
	"sort"

	"github.com/vcscsvcscs/rxtag/pkg/model"
)

// EarthRadiusMeters is the mean Earth radius used by Distance
const EarthRadiusMeters = 6371000.0

// ErrInvalidLocation is returned when the user coordinates are not a valid position
var ErrInvalidLocation = errors.New("geo: invalid location")

// Location is a latitude/longitude pair in degrees
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Valid reports whether the coordinates are finite and in range
func (l Location) Valid() bool {
	return validCoordinate(l.Latitude, 90) && validCoordinate(l.Longitude, 180)
}

func validCoordinate(v, limit float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= -limit && v <= limit
}

// Distance returns the great-circle distance in meters between two points using
// the haversine formula
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusMeters * c
}

// Ranking is the result of ranking a point set around a location
type Ranking struct {
	// NearestK holds at most k points in ascending distance order
	NearestK []model.RankedPoint `json:"nearest"`
	// WithinRadius holds every point no farther than the radius
	WithinRadius []model.RankedPoint `json:"within_radius"`
	// Relevant is the union of NearestK and WithinRadius without duplicates
	Relevant []model.RankedPoint `json:"relevant"`
	// Skipped counts points excluded for invalid coordinates
	Skipped int `json:"skipped"`
}

type candidate struct {
	index int
	model.RankedPoint
}

// Rank sorts points by distance from user and selects the k nearest plus every
// point within radiusMeters. Ties keep catalog order. Points with invalid
// coordinates are skipped.
func Rank(user Location, points []model.PharmacyPoint, radiusMeters float64, k int) (Ranking, error) {
	var r Ranking
	if !user.Valid() {
		return r, ErrInvalidLocation
	}

	candidates := make([]candidate, 0, len(points))
	for i, p := range points {
		if !(Location{Latitude: p.Latitude, Longitude: p.Longitude}).Valid() {
			r.Skipped++
			continue
		}
		candidates = append(candidates, candidate{
			index: i,
			RankedPoint: model.RankedPoint{
				Point:    p,
				Distance: Distance(user.Latitude, user.Longitude, p.Latitude, p.Longitude),
			},
		})
	}

	sort.SliceStable(candidates, func(a, b int) bool {
		return candidates[a].Distance < candidates[b].Distance
	})

	if math.IsNaN(radiusMeters) {
		radiusMeters = -1
	}
	if k < 0 {
		k = 0
	}
	if k > len(candidates) {
		k = len(candidates)
	}

	seen := make(map[int]bool, len(candidates))
	r.NearestK = make([]model.RankedPoint, 0, k)
	for _, c := range candidates[:k] {
		r.NearestK = append(r.NearestK, c.RankedPoint)
		r.Relevant = append(r.Relevant, c.RankedPoint)
		seen[c.index] = true
	}

	r.WithinRadius = []model.RankedPoint{}
	for _, c := range candidates {
		if c.Distance > radiusMeters {
			continue
		}
		r.WithinRadius = append(r.WithinRadius, c.RankedPoint)
		if !seen[c.index] {
			r.Relevant = append(r.Relevant, c.RankedPoint)
			seen[c.index] = true
		}
	}
	if r.Relevant == nil {
		r.Relevant = []model.RankedPoint{}
	}

	return r, nil
}
