package geo

import (
	"fmt"
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vcscsvcscs/rxtag/pkg/model"
)

var madrid = Location{Latitude: 40.4168, Longitude: -3.7038}

// pointNorth places a pharmacy the given number of meters due north of loc
func pointNorth(loc Location, meters float64, name string) model.PharmacyPoint {
	return model.PharmacyPoint{
		Name:      name,
		Latitude:  loc.Latitude + meters/EarthRadiusMeters*180/math.Pi,
		Longitude: loc.Longitude,
	}
}

func names(points []model.RankedPoint) []string {
	out := make([]string, 0, len(points))
	for _, p := range points {
		out = append(out, p.Point.Name)
	}
	return out
}

func TestDistance(t *testing.T) {
	tests := []struct {
		name                   string
		lat1, lon1, lat2, lon2 float64
		want, tolerance        float64
	}{
		{"same point", 40.4168, -3.7038, 40.4168, -3.7038, 0, 1e-9},
		{"madrid to barcelona", 40.4168, -3.7038, 41.3874, 2.1686, 505000, 2000},
		{"one degree of latitude", 0, 0, 1, 0, 111195, 1},
		{"antipodes", 0, 0, 0, 180, math.Pi * EarthRadiusMeters, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Distance(tt.lat1, tt.lon1, tt.lat2, tt.lon2)
			assert.InDelta(t, tt.want, got, tt.tolerance)
		})
	}
}

// Feature: nfc-prescription-pipeline, Property 7: Nearest K And Radius Merge
func TestRank_NearestAndRadius(t *testing.T) {
	points := []model.PharmacyPoint{
		pointNorth(madrid, 8000, "far"),
		pointNorth(madrid, 500, "b"),
		pointNorth(madrid, 2000, "c"),
		pointNorth(madrid, 100, "a"),
	}

	r, err := Rank(madrid, points, 6000, 3)
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b", "c"}, names(r.NearestK))
	assert.Equal(t, []string{"a", "b", "c"}, names(r.WithinRadius))
	assert.Equal(t, []string{"a", "b", "c"}, names(r.Relevant))
	assert.InDelta(t, 100, r.NearestK[0].Distance, 0.01)
	assert.InDelta(t, 500, r.NearestK[1].Distance, 0.01)
	assert.InDelta(t, 2000, r.NearestK[2].Distance, 0.01)
}

func TestRank_SparseRegionStillShowsNearest(t *testing.T) {
	points := []model.PharmacyPoint{
		pointNorth(madrid, 20000, "x"),
		pointNorth(madrid, 15000, "y"),
	}

	r, err := Rank(madrid, points, 6000, 3)
	require.NoError(t, err)

	assert.Empty(t, r.WithinRadius)
	assert.Equal(t, []string{"y", "x"}, names(r.NearestK))
	assert.Equal(t, []string{"y", "x"}, names(r.Relevant))
}

func TestRank_RadiusAddsBeyondK(t *testing.T) {
	points := []model.PharmacyPoint{
		pointNorth(madrid, 300, "a"),
		pointNorth(madrid, 900, "b"),
		pointNorth(madrid, 1200, "c"),
		pointNorth(madrid, 4000, "d"),
		pointNorth(madrid, 7000, "e"),
	}

	r, err := Rank(madrid, points, 6000, 2)
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b"}, names(r.NearestK))
	assert.Equal(t, []string{"a", "b", "c", "d"}, names(r.WithinRadius))
	assert.Equal(t, []string{"a", "b", "c", "d"}, names(r.Relevant))
}

func TestRank_TiesKeepCatalogOrder(t *testing.T) {
	points := []model.PharmacyPoint{
		pointNorth(madrid, 700, "first"),
		pointNorth(madrid, 700, "second"),
		pointNorth(madrid, 700, "third"),
	}

	r, err := Rank(madrid, points, 0, 2)
	require.NoError(t, err)

	assert.Equal(t, []string{"first", "second"}, names(r.NearestK))
	assert.Empty(t, r.WithinRadius)
}

func TestRank_InvalidInput(t *testing.T) {
	_, err := Rank(Location{Latitude: math.NaN()}, nil, 100, 3)
	assert.ErrorIs(t, err, ErrInvalidLocation)

	_, err = Rank(Location{Latitude: 91}, nil, 100, 3)
	assert.ErrorIs(t, err, ErrInvalidLocation)

	points := []model.PharmacyPoint{
		{Name: "nan", Latitude: math.NaN(), Longitude: 0},
		{Name: "out of range", Latitude: 10, Longitude: 200},
		pointNorth(madrid, 50, "ok"),
	}
	r, err := Rank(madrid, points, math.NaN(), 5)
	require.NoError(t, err)
	assert.Equal(t, 2, r.Skipped)
	assert.Equal(t, []string{"ok"}, names(r.NearestK))
	assert.Empty(t, r.WithinRadius)
}

func TestRank_NonPositiveK(t *testing.T) {
	points := []model.PharmacyPoint{pointNorth(madrid, 50, "a")}

	r, err := Rank(madrid, points, 100, 0)
	require.NoError(t, err)
	assert.Empty(t, r.NearestK)
	assert.Equal(t, []string{"a"}, names(r.Relevant))

	r, err = Rank(madrid, points, 100, -4)
	require.NoError(t, err)
	assert.Empty(t, r.NearestK)
}

// Feature: nfc-prescription-pipeline, Property 13: Ranking Invariants
func TestProperty_RankInvariants(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("nearest is sorted, bounded by k, and relevant is a duplicate-free union", prop.ForAll(
		func(offsets []float64, radius float64, k int) bool {
			points := make([]model.PharmacyPoint, len(offsets))
			for i, off := range offsets {
				points[i] = pointNorth(madrid, off, fmt.Sprintf("p%d", i))
			}

			r, err := Rank(madrid, points, radius, k)
			if err != nil {
				return false
			}

			want := k
			if want > len(points) {
				want = len(points)
			}
			if len(r.NearestK) != want {
				return false
			}
			for i := 1; i < len(r.NearestK); i++ {
				if r.NearestK[i-1].Distance > r.NearestK[i].Distance {
					return false
				}
			}

			seen := map[string]bool{}
			for _, p := range r.Relevant {
				if seen[p.Point.Name] {
					return false
				}
				seen[p.Point.Name] = true
			}
			for _, p := range r.NearestK {
				if !seen[p.Point.Name] {
					return false
				}
			}
			for _, p := range r.WithinRadius {
				if p.Distance > radius || !seen[p.Point.Name] {
					return false
				}
			}
			return len(r.Relevant) <= len(r.NearestK)+len(r.WithinRadius)
		},
		gen.SliceOf(gen.Float64Range(0, 50000)),
		gen.Float64Range(0, 20000),
		gen.IntRange(0, 10),
	))

	properties.Property("distance is symmetric and non-negative", prop.ForAll(
		func(lat1, lon1, lat2, lon2 float64) bool {
			d1 := Distance(lat1, lon1, lat2, lon2)
			d2 := Distance(lat2, lon2, lat1, lon1)
			return d1 >= 0 && math.Abs(d1-d2) < 1e-6 && d1 <= math.Pi*EarthRadiusMeters+1e-6
		},
		gen.Float64Range(-90, 90),
		gen.Float64Range(-180, 180),
		gen.Float64Range(-90, 90),
		gen.Float64Range(-180, 180),
	))

	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 100
	properties.TestingRun(t, params)
}
