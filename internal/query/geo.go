package query

import (
	"context"
	"math"
	"sort"

	"github.com/spf13/cast"

	"github.com/rpattn/trialnotes/internal/domain"
	"github.com/rpattn/trialnotes/pkg/jsonlogic"
)

// LocationsPath is where a study lists its sites.
const LocationsPath = "rawJson.contactsLocationsModule.locations"

// GeoPoint is one distinct site coordinate and how many sites share it.
type GeoPoint struct {
	Lat   float64 `json:"lat"`
	Lon   float64 `json:"lon"`
	Count int     `json:"count"`
}

// GeoHeatMap counts study sites per coordinate. Coordinates are rounded
// to decimals places when decimals is non-negative. Sites without a
// usable geoPoint are skipped. Points are ordered by count, then latitude,
// then longitude.
func GeoHeatMap(rows []*domain.Row, decimals int) []GeoPoint {
	type coord struct{ lat, lon float64 }
	counts := make(map[coord]int)
	for _, row := range rows {
		v, _ := jsonlogic.Resolve(row, LocationsPath)
		locations, _ := v.([]any)
		for _, loc := range locations {
			lat, lon, ok := geoPointOf(loc)
			if !ok {
				continue
			}
			if decimals >= 0 {
				lat, lon = roundTo(lat, decimals), roundTo(lon, decimals)
			}
			counts[coord{lat, lon}]++
		}
	}

	points := make([]GeoPoint, 0, len(counts))
	for c, n := range counts {
		points = append(points, GeoPoint{Lat: c.lat, Lon: c.lon, Count: n})
	}
	sort.Slice(points, func(i, j int) bool {
		if points[i].Count != points[j].Count {
			return points[i].Count > points[j].Count
		}
		if points[i].Lat != points[j].Lat {
			return points[i].Lat < points[j].Lat
		}
		return points[i].Lon < points[j].Lon
	})
	return points
}

func geoPointOf(loc any) (float64, float64, bool) {
	obj, ok := loc.(map[string]any)
	if !ok {
		return 0, 0, false
	}
	point, ok := obj["geoPoint"].(map[string]any)
	if !ok {
		return 0, 0, false
	}
	lat, err := cast.ToFloat64E(point["lat"])
	if err != nil || point["lat"] == nil {
		return 0, 0, false
	}
	lon, err := cast.ToFloat64E(point["lon"])
	if err != nil || point["lon"] == nil {
		return 0, 0, false
	}
	return lat, lon, true
}

func roundTo(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}

// GeoHeatMap counts the site coordinates of the filtered, derived rows.
func (s *Service) GeoHeatMap(ctx context.Context, rules []domain.DeriveRule, tree *domain.FilterGroup, decimals int) ([]GeoPoint, error) {
	rows, err := s.GetFilteredRows(ctx, rules, tree)
	if err != nil {
		return nil, err
	}
	return GeoHeatMap(rows, decimals), nil
}
